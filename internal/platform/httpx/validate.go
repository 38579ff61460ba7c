package httpx

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate runs struct tag validation and reports failures as FieldErrors
// keyed by JSON field path.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe.Namespace())] = tagMessage(fe.Tag())
	}
	return fields
}

func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func tagMessage(tag string) string {
	switch tag {
	case "required", "required_if", "required_without":
		return "is required"
	case "gt":
		return "must be greater than zero"
	case "gte":
		return "must not be negative"
	case "datetime":
		return "must be a valid date"
	case "gtfield":
		return "must be after start_time"
	default:
		return "is invalid"
	}
}
