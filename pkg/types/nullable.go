package types

import (
	"bytes"
	"encoding/json"
)

// Nullable tracks whether a JSON field was present, and whether it was null.
// Present=false means "leave unchanged"; Present=true with Value=nil means "clear".
type Nullable[T any] struct {
	Present bool
	Value   *T
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	n.Present = true
	if bytes.Equal(trimmed, []byte("null")) {
		n.Value = nil
		return nil
	}

	var parsed T
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return err
	}
	n.Value = &parsed
	return nil
}

// Set builds a present, non-null value.
func Set[T any](v T) Nullable[T] {
	return Nullable[T]{Present: true, Value: &v}
}
