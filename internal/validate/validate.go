// Package validate wraps go-playground/validator with the storefront's
// custom rules and converts its failures into a single error type that the
// HTTP layer can render field by field.
package validate

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
)

// moneyPattern accepts non-negative amounts with at most two decimal places.
var moneyPattern = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)

var std = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names so messages match what clients sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		default:
			return name
		}
	})

	if err := v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		return moneyPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// FieldError describes a single failed rule.
type FieldError struct {
	Field   string
	Rule    string
	Message string
}

// Error is returned when a struct fails validation.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// Struct validates s according to its `validate` tags.
func Struct(s any) error {
	err := std.Struct(s)
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return errors.Wrap(err, "validate")
	}

	out := &Error{Fields: make([]FieldError, 0, len(ves))}
	for _, fe := range ves {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: message(fe),
		})
	}
	return out
}

// Var validates a single value against tag.
func Var(field string, value any, tag string) error {
	if err := std.Var(value, tag); err != nil {
		return &Error{Fields: []FieldError{{
			Field:   field,
			Rule:    tag,
			Message: fmt.Sprintf("%s is invalid", field),
		}}}
	}
	return nil
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		if fe.Kind() == reflect.String || fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must be at least %s long", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", fe.Field(), fe.Param())
	case "numeric":
		return fmt.Sprintf("%s must contain digits only", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "unique":
		return fmt.Sprintf("%s must not contain duplicates", fe.Field())
	case "money":
		return fmt.Sprintf("%s must be a non-negative amount with at most two decimal places", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
