package validator

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var hhmmPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// messages are keyed by validation tag; tags that take a parameter have it
// appended.
var messages = map[string]string{
	"required": "This field is required",
	"email":    "Invalid email format",
	"min":      "Value is too short",
	"max":      "Value is too long",
	"gte":      "Value must be greater than or equal to ",
	"lte":      "Value must be less than or equal to ",
	"oneof":    "Value must be one of: ",
	"hhmm":     "Time must use the HH:MM 24-hour format",
	"timezone": "Unknown timezone",
}

var withParam = map[string]bool{"gte": true, "lte": true, "oneof": true}

type Validator struct {
	validate *validator.Validate
}

// New returns a validator that knows the hhmm and timezone tags and reports
// fields by their JSON name when they have one.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(jsonName)
	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return hhmmPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("timezone", validateTimezone)
	return &Validator{validate: v}
}

func (v *Validator) Validate(i any) error {
	return v.validate.Struct(i)
}

func (v *Validator) ValidateVar(field any, tag string) error {
	return v.validate.Var(field, tag)
}

// jsonName falls back to the Go field name when there is no json tag.
func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// validateTimezone accepts IANA zone names the runtime can load.
func validateTimezone(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// TranslateValidationErrors flattens err into per-field messages. It returns
// nil for anything that is not a validation failure.
func TranslateValidationErrors(err error) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil
	}
	out := make([]ValidationError, 0, len(fieldErrs))
	for _, e := range fieldErrs {
		out = append(out, ValidationError{Field: e.Field(), Message: message(e)})
	}
	return out
}

func message(e validator.FieldError) string {
	msg, ok := messages[e.Tag()]
	if !ok {
		return "Invalid value"
	}
	if withParam[e.Tag()] {
		msg += e.Param()
	}
	return msg
}
