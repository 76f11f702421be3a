package validation

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Type is the declared type of a request field.
type Type int

const (
	// Untyped fields are accepted as-is.
	Untyped Type = iota
	Int
	SafeString
	Boolean
	String
)

// integerTag is registered on the package validator and matches a signed
// base-10 integer. Leading zeros are allowed; the value is read as decimal.
const integerTag = "integer"

var integerPattern = regexp.MustCompile(`^[-+]?[0-9]+$`)

// kind is the variant behind a Type: the validator tag acting as its
// predicate and the coercion into its semantic value.
type kind struct {
	name   string
	tag    string
	coerce func(string) (interface{}, error)
}

var kinds = map[Type]kind{
	Untyped:    {name: "any", coerce: passthrough},
	Int:        {name: "int", tag: integerTag, coerce: toInt},
	SafeString: {name: "safe_string", tag: "alphanum", coerce: passthrough},
	Boolean:    {name: "boolean", tag: "oneof=true false", coerce: toBool},
	String:     {name: "string", coerce: passthrough},
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	if err := validate.RegisterValidation(integerTag, func(fl validator.FieldLevel) bool {
		return integerPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
}

func (t Type) String() string {
	if k, ok := kinds[t]; ok {
		return k.name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

func (t Type) variant() kind {
	if k, ok := kinds[t]; ok {
		return k
	}
	return kinds[Untyped]
}

// accept validates and coerces a raw value in one step.
func (t Type) accept(raw string) (interface{}, bool) {
	k := t.variant()
	if k.tag != "" {
		if err := validate.Var(raw, k.tag); err != nil {
			return nil, false
		}
	}
	v, err := k.coerce(raw)
	if err != nil {
		return nil, false
	}
	return v, true
}

func passthrough(raw string) (interface{}, error) {
	return raw, nil
}

func toInt(raw string) (interface{}, error) {
	return strconv.Atoi(raw)
}

func toBool(raw string) (interface{}, error) {
	return raw == "true", nil
}
