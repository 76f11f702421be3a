package validation

import (
	"fmt"
	"net/http"
)

// Source is one candidate set of request values, e.g. the body or the
// query string.
type Source map[string]string

// Field declares a named request field and its type.
type Field struct {
	Name string
	Type Type
}

// Schema is an ordered list of fields; validation follows this order.
type Schema []Field

// ErrorKind distinguishes the two ways a field can fail.
type ErrorKind int

const (
	Required ErrorKind = iota
	WrongType
)

// Error reports the first field that failed validation.
type Error struct {
	Kind  ErrorKind
	Field string
	Type  Type
}

func (e *Error) Error() string {
	if e.Kind == Required {
		return fmt.Sprintf("Parameter %q is required.", e.Field)
	}
	return fmt.Sprintf("Parameter %q is not the correct data type, expected %s.", e.Field, e.Type)
}

// StatusCode marks validation failures as caller errors.
func (e *Error) StatusCode() int {
	return http.StatusBadRequest
}

// Params holds the coerced values of a successful validation.
type Params map[string]interface{}

// Int returns the integer value of name, or 0 when absent.
func (p Params) Int(name string) int {
	v, _ := p[name].(int)
	return v
}

// String returns the string value of name, or "" when absent.
func (p Params) String(name string) string {
	v, _ := p[name].(string)
	return v
}

// Bool returns the boolean value of name, or false when absent.
func (p Params) Bool(name string) bool {
	v, _ := p[name].(bool)
	return v
}

// Has reports whether name was present in any source.
func (p Params) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// Validate resolves every required then optional field against sources in
// priority order. The first source holding a non-empty value decides the
// field, even when that value is invalid and a later source would pass.
// Processing stops at the first failing field.
func Validate(sources []Source, required, optional Schema) (Params, error) {
	result := make(Params, len(required)+len(optional))

	for _, f := range required {
		raw, found := lookup(sources, f.Name)
		if !found {
			return nil, &Error{Kind: Required, Field: f.Name, Type: f.Type}
		}
		v, ok := f.Type.accept(raw)
		if !ok {
			return nil, &Error{Kind: WrongType, Field: f.Name, Type: f.Type}
		}
		result[f.Name] = v
	}

	for _, f := range optional {
		raw, found := lookup(sources, f.Name)
		if !found {
			continue
		}
		v, ok := f.Type.accept(raw)
		if !ok {
			return nil, &Error{Kind: WrongType, Field: f.Name, Type: f.Type}
		}
		result[f.Name] = v
	}

	return result, nil
}

func lookup(sources []Source, name string) (string, bool) {
	for _, src := range sources {
		if v := src[name]; v != "" {
			return v, true
		}
	}
	return "", false
}
