package auth

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// checkInput validates v and converts the first failure into a user-facing Error.
func checkInput(v any) *Error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &Error{Message: err.Error()}
	}
	fe := verrs[0]
	switch fe.Field() {
	case "Email":
		if fe.Tag() == "required" {
			return &Error{Message: "Email is required"}
		}
		return &Error{Message: "Please enter a valid email address"}
	case "Password":
		switch fe.Tag() {
		case "required":
			return &Error{Message: "Password is required"}
		case "min":
			return &Error{Message: "Password must be at least 8 characters"}
		default:
			return &Error{Message: "Password must be at most 100 characters"}
		}
	case "FullName":
		return &Error{Message: "Name must be at most 255 characters"}
	}
	return &Error{Message: fe.Error()}
}
