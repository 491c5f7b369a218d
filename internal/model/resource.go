// Package model defines the core cached-record types.
package model

import (
	"encoding/json"
	"time"
)

// Kind names a resource collection mirrored from the remote API.
type Kind string

const (
	KindArticle    Kind = "article"
	KindProject    Kind = "project"
	KindMemory     Kind = "memory"
	KindList       Kind = "list"
	KindConnection Kind = "connection"
)

// ValidKinds are the resource kinds the store accepts.
var ValidKinds = map[Kind]bool{
	KindArticle:    true,
	KindProject:    true,
	KindMemory:     true,
	KindList:       true,
	KindConnection: true,
}

// Article processing statuses reported by the remote API.
const (
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

// CachedResource is one locally cached record of a remote resource.
type CachedResource struct {
	ID               string          `json:"id"`
	Kind             Kind            `json:"kind"`
	Status           string          `json:"status,omitempty"`
	Payload          json.RawMessage `json:"payload"`
	OfflineAvailable bool            `json:"offline_available"`
	FullyCached      bool            `json:"fully_cached"`
	LastSynced       time.Time       `json:"last_synced"`
}

// Content returns the content body carried in the payload, if any.
func (r CachedResource) Content() string {
	return PayloadString(r.Payload, "content")
}

// Title returns the payload title, if any.
func (r CachedResource) Title() string {
	return PayloadString(r.Payload, "title")
}

// CachedMedia is one downloaded media asset referenced by a resource.
type CachedMedia struct {
	ID          int64     `json:"id"`
	ResourceID  string    `json:"resource_id"`
	URL         string    `json:"url"`
	Data        []byte    `json:"-"`
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
	CachedAt    time.Time `json:"cached_at"`
}

// ReadingProgress is the saved reading position for one resource.
type ReadingProgress struct {
	ID           int64     `json:"id"`
	ResourceID   string    `json:"resource_id"`
	ScrollOffset float64   `json:"scroll_offset"`
	Percent      float64   `json:"percent"`
	Snippet      string    `json:"snippet,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PendingCapture is user input queued while the remote API was unreachable.
type PendingCapture struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	Synced     bool      `json:"synced"`
	RetryCount int       `json:"retry_count"`
	LastError  string    `json:"last_error,omitempty"`
}

// Snapshot is a named auxiliary payload such as a dashboard section.
type Snapshot struct {
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PayloadString reads a top-level string field from a JSON object payload.
func PayloadString(payload json.RawMessage, field string) string {
	if len(payload) == 0 {
		return ""
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return ""
	}
	raw, ok := m[field]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
