package middleware

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// FieldError is one failed binding rule, named by its json field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var validationMessages = map[string]string{
	"required": "is required",
	"email":    "must be a valid email address",
	"min":      "is too small or too short",
	"max":      "is too large or too long",
	"oneof":    "has an unsupported value",
	"gte":      "is too small",
	"lte":      "is too large",
	"url":      "must be a valid URL",
}

// RegisterValidation makes gin's validator report json field names.
func RegisterValidation() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

// ValidationErrors flattens a binding error into per-field messages. It
// returns nil for errors that are not validation failures (bad JSON).
func ValidationErrors(err error) []FieldError {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return nil
	}
	out := make([]FieldError, 0, len(errs))
	for _, e := range errs {
		msg, ok := validationMessages[e.Tag()]
		if !ok {
			msg = "failed " + e.Tag() + " validation"
		}
		out = append(out, FieldError{Field: e.Field(), Message: msg})
	}
	return out
}
