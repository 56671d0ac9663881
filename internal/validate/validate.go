// Package validate turns struct tags into apperror.ValidationFailed errors.
//
// Each endpoint declares its input schema as a struct with `validate` tags;
// handlers decode the JSON body (unknown fields rejected) and services call
// Struct before any business logic runs.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/pinboard/internal/apperror"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Validator wraps a configured *validator.Validate. It is safe for
// concurrent use; build one at startup and share it.
type Validator struct {
	v *validator.Validate
}

// New builds a Validator that reports JSON field names and knows the
// "username" tag (letters, digits and underscore).
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report `json:"confirmPassword"` instead of the Go field name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	// RegisterValidation only fails for an empty tag or a nil func.
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})

	return &Validator{v: v}
}

// Struct validates s and returns the first failure as an *apperror.AppError
// wrapping apperror.ErrValidation.
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate: %w", err)
	}

	fe := verrs[0]
	return apperror.ValidationFailed(fe.Field(), message(fe))
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "username":
		return field + " may only contain letters, numbers and underscores"
	case "url":
		return field + " must be a valid URL"
	case "eqfield":
		return fmt.Sprintf("%s must match %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}
