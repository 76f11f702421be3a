package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedResult is returned when a persisted result is not a JSON object.
var ErrMalformedResult = errors.New("persisted result is not a JSON object")

const completedPrefix = `{"error":null,"data":{"progress":100,"complete":true`

// reserved members belong to the envelope and are never copied from the
// persisted result.
var reserved = map[string]bool{
	"progress": true,
	"complete": true,
}

// WriteCompleted streams the completed-job envelope for the persisted
// result in src to w, decoding src one member at a time.
//
// The opening brace and first member are read before anything is written,
// so written is false for an empty, missing or malformed entry and the
// caller can still answer with an error envelope. Once written is true a
// later error has left a truncated body on w.
func WriteCompleted(w io.Writer, src io.Reader) (written bool, err error) {
	dec := json.NewDecoder(src)

	tok, err := dec.Token()
	if err != nil {
		return false, fmt.Errorf("failed to read persisted result: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return false, ErrMalformedResult
	}

	var member bytes.Buffer
	for dec.More() {
		member.Reset()
		if err := readMember(dec, &member); err != nil {
			return written, err
		}
		if member.Len() == 0 {
			continue
		}
		if !written {
			if _, err := io.WriteString(w, completedPrefix); err != nil {
				return false, err
			}
			written = true
		}
		if _, err := w.Write(member.Bytes()); err != nil {
			return written, err
		}
	}

	tok, err = dec.Token()
	if err != nil {
		return written, fmt.Errorf("failed to read persisted result: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '}' {
		return written, ErrMalformedResult
	}

	if !written {
		if _, err := io.WriteString(w, completedPrefix); err != nil {
			return false, err
		}
		written = true
	}
	_, err = io.WriteString(w, "}}")
	return written, err
}

// readMember decodes the next key/value pair and renders it as
// `,"key":value` into buf. Reserved keys leave buf empty.
func readMember(dec *json.Decoder, buf *bytes.Buffer) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read persisted result: %w", err)
	}
	key, ok := tok.(string)
	if !ok {
		return ErrMalformedResult
	}

	var value json.RawMessage
	if err := dec.Decode(&value); err != nil {
		return fmt.Errorf("failed to read persisted result: %w", err)
	}
	if reserved[key] {
		return nil
	}

	quoted, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.WriteByte(',')
	buf.Write(quoted)
	buf.WriteByte(':')
	return json.Compact(buf, value)
}
