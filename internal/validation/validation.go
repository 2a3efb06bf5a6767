package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/apperr"
)

// New returns a validator that reports fields by their JSON names
func New() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Fields maps each failing field to the tag it failed on
func Fields(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string, len(validationErrors))
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
		return fields
	}
	return nil
}

// Struct validates s and converts failures to an InvalidArgument error
func Struct(v *validator.Validate, s interface{}) error {
	if err := v.Struct(s); err != nil {
		return apperr.InvalidFields("Validation failed", Fields(err))
	}
	return nil
}
