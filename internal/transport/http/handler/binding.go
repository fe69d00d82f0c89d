package handler

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// bindingErrors turns a gin binding failure into the field-level error map
// the API returns with 422. Non-validator failures (malformed JSON) are
// reported under "body".
func bindingErrors(err error) map[string][]string {
	out := map[string][]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			field := toSnake(fe.Field())
			out[field] = append(out[field], fieldMessage(field, fe))
		}
		return out
	}
	out["body"] = []string{err.Error()}
	return out
}

func fieldMessage(field string, fe validator.FieldError) string {
	name := strings.ReplaceAll(field, "_", " ")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", name)
	case "email":
		return fmt.Sprintf("The %s must be a valid email address.", name)
	case "min":
		return fmt.Sprintf("The %s must be at least %s.", name, fe.Param())
	case "max":
		return fmt.Sprintf("The %s may not be greater than %s.", name, fe.Param())
	case "gte":
		return fmt.Sprintf("The %s must be at least %s.", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid.", name)
	case "eqfield":
		return fmt.Sprintf("The %s must match %s.", name, toSnake(fe.Param()))
	default:
		return fmt.Sprintf("The %s is invalid.", name)
	}
}

func toSnake(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
