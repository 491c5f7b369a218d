// Package merge combines cached and remote resource payloads field by field.
//
// Remote values win, except that an empty remote value never replaces a
// cached value that holds data. A backend that is still reprocessing a record
// therefore cannot erase content the client already has.
package merge

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Payloads merges remote over cached. Both must be JSON objects or empty.
func Payloads(cached, remote json.RawMessage) (json.RawMessage, error) {
	if isEmpty(cached) {
		return remote, nil
	}
	if isEmpty(remote) {
		return cached, nil
	}

	var base map[string]json.RawMessage
	if err := json.Unmarshal(cached, &base); err != nil {
		return nil, fmt.Errorf("decode cached payload: %w", err)
	}
	var incoming map[string]json.RawMessage
	if err := json.Unmarshal(remote, &incoming); err != nil {
		return nil, fmt.Errorf("decode remote payload: %w", err)
	}
	if base == nil {
		base = map[string]json.RawMessage{}
	}

	for field, value := range incoming {
		if isEmpty(value) {
			if existing, ok := base[field]; ok && !isEmpty(existing) {
				continue
			}
		}
		base[field] = value
	}

	out, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("encode merged payload: %w", err)
	}
	return out, nil
}

// isEmpty treats null, "" and missing values as absent.
func isEmpty(v json.RawMessage) bool {
	t := bytes.TrimSpace(v)
	return len(t) == 0 || bytes.Equal(t, []byte("null")) || bytes.Equal(t, []byte(`""`))
}
