package resultstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
)

var (
	// ErrResultExists is returned when a job already has a persisted result.
	ErrResultExists = errors.New("result already persisted")

	// ErrResultNotFound is returned when a job has no persisted result.
	ErrResultNotFound = errors.New("result not found")

	// ErrInvalidID is returned for job ids that cannot name a stored entry.
	ErrInvalidID = errors.New("invalid job id")

	// ErrNotObject is returned when a result does not encode to a JSON object.
	ErrNotObject = errors.New("result is not a JSON object")
)

// Store persists one write-once JSON object per job id.
type Store interface {
	// Save encodes result and stores it under id. It fails with
	// ErrResultExists if id already has an entry.
	Save(ctx context.Context, id string, result interface{}) error

	// Open returns a reader over the stored entry of id.
	Open(ctx context.Context, id string) (io.ReadCloser, error)

	// List returns the ids of every stored entry.
	List(ctx context.Context) ([]string, error)
}

// Error wraps a failure of the underlying storage medium.
type Error struct {
	Op  string
	ID  string
	Err error
}

func (e *Error) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("result store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("result store %s %q: %v", e.Op, e.ID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidID reports whether id can be used as a storage key.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// encode marshals result into the compact JSON object that gets stored.
func encode(result interface{}) ([]byte, error) {
	var data []byte
	switch v := result.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	default:
		var err error
		data, err = json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to compact result: %w", err)
	}
	if buf.Len() == 0 || buf.Bytes()[0] != '{' {
		return nil, ErrNotObject
	}
	return buf.Bytes(), nil
}
