package types

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"json", "query", "param"} {
			name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return field.Name
	})
	return v
}

// validateStruct runs the struct tags and flattens the first failure into a readable message.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return err
	}

	fe := validationErrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "required_without":
		return fmt.Errorf("%s is required when %s is empty", fe.Field(), toSnake(fe.Param()))
	case "email":
		return fmt.Errorf("%s must be a valid email address", fe.Field())
	case "min":
		return fmt.Errorf("%s must be at least %s characters long", fe.Field(), fe.Param())
	case "max":
		return fmt.Errorf("%s must be at most %s characters long", fe.Field(), fe.Param())
	case "numeric":
		return fmt.Errorf("%s must contain only digits", fe.Field())
	default:
		return fmt.Errorf("%s is invalid", fe.Field())
	}
}

func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
