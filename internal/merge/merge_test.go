package merge

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return m
}

func TestNullNeverErasesCachedValue(t *testing.T) {
	cached := json.RawMessage(`{"title":"Old","content":"A"}`)
	remote := json.RawMessage(`{"title":"New","content":null}`)

	out, err := Payloads(cached, remote)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	m := decode(t, out)
	if m["content"] != "A" {
		t.Errorf("expected content to stay A, got %v", m["content"])
	}
	if m["title"] != "New" {
		t.Errorf("expected remote title to win, got %v", m["title"])
	}
}

func TestEmptyStringNeverErasesCachedValue(t *testing.T) {
	out, _ := Payloads(json.RawMessage(`{"content":"A"}`), json.RawMessage(`{"content":""}`))
	if decode(t, out)["content"] != "A" {
		t.Errorf("expected content A, got %s", out)
	}
}

func TestRemoteNullFillsAbsentField(t *testing.T) {
	out, _ := Payloads(json.RawMessage(`{"title":"x"}`), json.RawMessage(`{"excerpt":null}`))
	m := decode(t, out)
	if v, ok := m["excerpt"]; !ok || v != nil {
		t.Errorf("expected excerpt present as null, got %v (present=%v)", v, ok)
	}
}

func TestCachedFieldsNotInRemoteSurvive(t *testing.T) {
	out, _ := Payloads(json.RawMessage(`{"a":1,"b":2}`), json.RawMessage(`{"b":3}`))
	m := decode(t, out)
	if m["a"] != float64(1) || m["b"] != float64(3) {
		t.Errorf("unexpected merge %v", m)
	}
}

func TestEmptySides(t *testing.T) {
	out, _ := Payloads(nil, json.RawMessage(`{"a":1}`))
	if string(out) != `{"a":1}` {
		t.Errorf("expected remote when cache empty, got %s", out)
	}
	out, _ = Payloads(json.RawMessage(`{"a":1}`), json.RawMessage(`null`))
	if string(out) != `{"a":1}` {
		t.Errorf("expected cached when remote null, got %s", out)
	}
}

func TestInvalidPayload(t *testing.T) {
	if _, err := Payloads(json.RawMessage(`[1]`), json.RawMessage(`{"a":1}`)); err == nil {
		t.Error("expected error for non-object cached payload")
	}
}
