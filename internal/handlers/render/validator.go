package render

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

func configureValidator(validate *validator.Validate) {
	_ = validate.RegisterValidation("notblank", validateNotBlank, true)
	validate.RegisterTagNameFunc(useJSONTagNames)
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

// Absent pointers pass, present values must contain something besides spaces
func validateNotBlank(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return true
		}
		field = field.Elem()
	}
	if field.Kind() != reflect.String {
		return false
	}
	return strings.TrimSpace(field.String()) != ""
}
