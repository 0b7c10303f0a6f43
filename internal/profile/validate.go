package profile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidValue  = errors.New("invalid preference value")
	ErrRequiredField = errors.New("preference cannot be unset")
)

var validate = validator.New()

// rule builds the validator tag for f from its option list.
func rule(f Field) string {
	oneof := "oneof=" + strings.Join(options[f], " ")
	if f.Required() {
		return "required," + oneof
	}
	return "omitempty," + oneof
}

// Validate reports whether v is an acceptable value for f. The empty string
// means unset.
func Validate(f Field, v string) error { return validateField(f, v) }

// validateField checks v against the allowed values for f.
func validateField(f Field, v string) error {
	if _, ok := options[f]; !ok {
		return fmt.Errorf("%w: unknown field %q", ErrInvalidValue, f)
	}
	err := validate.Var(v, rule(f))
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "required" {
		return fmt.Errorf("%w: %s", ErrRequiredField, f)
	}
	return fmt.Errorf("%w: %s must be one of %s, got %q", ErrInvalidValue, f, strings.Join(options[f], ", "), v)
}
