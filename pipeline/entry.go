package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/pipecache/validity"
)

// Entry is a stored pipeline output and the token it was produced under.
type Entry struct {
	Key          string          `json:"key"`
	Validity     json.RawMessage `json:"validity"`
	Created      time.Time       `json:"created"`
	MimeType     string          `json:"mime_type,omitempty"`
	LastModified time.Time       `json:"last_modified,omitzero"`
	Payload      []byte          `json:"payload"`
}

// NewEntry builds an entry. token must not contain deferred parts.
func NewEntry(key string, token validity.Token, payload []byte, created time.Time) (*Entry, error) {
	v, err := validity.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("pipeline: entry validity: %w", err)
	}
	return &Entry{
		Key:      key,
		Validity: v,
		Created:  created.UTC(),
		Payload:  payload,
	}, nil
}

// Token decodes the stored validity.
func (e *Entry) Token() (validity.Token, error) {
	return validity.Unmarshal(e.Validity)
}

// MarshalEntry encodes e for the store.
func MarshalEntry(e *Entry) ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEntry decodes a stored entry.
func UnmarshalEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("pipeline: decode entry: %w", err)
	}
	if e.Key == "" {
		return nil, errors.New("pipeline: decode entry: missing key")
	}
	return &e, nil
}
