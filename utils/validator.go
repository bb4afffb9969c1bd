package utils

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Usernames follow the usual account rules: letters, digits and @.+-_ only.
var reUsername = regexp.MustCompile(`^[\w.@+-]+$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// report fields by their json name
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
		_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return reUsername.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// ValidateStruct runs the `validate` tags of s and converts failures into a ValidationError
// with one message per field.
func ValidateStruct(s interface{}) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Internal(err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return NewValidationError("Validation failed", fields)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return "Ensure this field has no more than " + fe.Param() + " characters."
	case "min":
		return "Ensure this value is at least " + fe.Param() + "."
	case "gte":
		return "Ensure this value is greater than or equal to " + fe.Param() + "."
	case "username":
		return "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	default:
		return "Invalid value."
	}
}
