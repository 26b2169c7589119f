package commands

import (
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	val "github.com/go-playground/validator/v10"

	"github.com/felixgeelhaar/reservo/internal/booking/domain"
)

var validate = newValidator()

var messages = map[string]string{
	"required": "is required",
	"min":      "must be at least {param}",
	"max":      "must be at most {param}",
	"len":      "must be {param} characters long",
	"oneof":    "must be one of {param}",
	"numeric":  "must be a decimal number",
}

func newValidator() *val.Validate {
	v := val.New(val.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validateCommand checks the struct tags of cmd and reports the first failure
// as a domain.ValidationError.
func validateCommand(cmd any) error {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}

	var fieldErrs val.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errors.Wrap(err, "validate command")
	}
	fe := fieldErrs[0]
	reason, ok := messages[fe.Tag()]
	if !ok {
		reason = "failed " + fe.Tag()
	}
	return &domain.ValidationError{
		Field:  fe.Field(),
		Reason: strings.ReplaceAll(reason, "{param}", fe.Param()),
	}
}
