package application

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
)

var inputValidator = newInputValidator()

func newInputValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if label := field.Tag.Get("label"); label != "" {
			return label
		}
		return field.Name
	})
	return v
}

// validateInput runs the struct tag rules and converts failures into field errors.
func validateInput(input any) *ValidationError {
	vErr := &ValidationError{}

	err := inputValidator.Struct(input)
	if err == nil {
		return vErr
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		vErr.add("input", err.Error())
		return vErr
	}
	for _, fe := range fieldErrs {
		field := fieldName(fe)
		vErr.add(field, fieldMessage(field, fe))
	}
	return vErr
}

// fieldName strips slice indexes so that "attenders[2]" reports as "attenders".
func fieldName(fe validator.FieldError) string {
	name := fe.Field()
	for i, r := range name {
		if r == '[' {
			return name[:i]
		}
	}
	return name
}

func fieldMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		if fe.Kind() == reflect.String && fe.Field() != field {
			return fmt.Sprintf("%s must not contain empty values", field)
		}
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "excludesall":
		return fmt.Sprintf("%s must not contain any of %q", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
