package serrors

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

type ValidationErrors map[string]string

func NewFieldRequiredError(field string) string {
	return fmt.Sprintf("%s is required", field)
}

// ProcessValidatorErrors turns validator failures into one message per field.
// fieldName maps a struct field to the name exposed to clients; an empty result
// keeps the struct field name.
func ProcessValidatorErrors(errs validator.ValidationErrors, fieldName func(string) string) ValidationErrors {
	out := make(ValidationErrors, len(errs))
	for _, fe := range errs {
		name := fe.Field()
		if fieldName != nil {
			if mapped := fieldName(fe.Field()); mapped != "" {
				name = mapped
			}
		}
		switch fe.Tag() {
		case "required":
			out[name] = NewFieldRequiredError(name)
		case "min", "gte":
			out[name] = fmt.Sprintf("%s must be at least %s", name, fe.Param())
		case "max", "lte":
			out[name] = fmt.Sprintf("%s must be at most %s", name, fe.Param())
		case "oneof":
			out[name] = fmt.Sprintf("%s must be one of [%s]", name, fe.Param())
		case "gtefield":
			out[name] = fmt.Sprintf("%s must not be before %s", name, fe.Param())
		default:
			out[name] = fmt.Sprintf("%s is invalid", name)
		}
	}
	return out
}
