package service

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var reservedCodes = map[string]bool{
	"api":   true,
	"admin": true,
	"r":     true,
	"track": true,
}

var shortCodeRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("shortcode", func(fl validator.FieldLevel) bool {
		return ValidateShortCode(fl.Field().String())
	})
	return v
}

// ValidateShortCode reports whether code can be used as a new short code.
func ValidateShortCode(code string) bool {
	if reservedCodes[strings.ToLower(code)] {
		return false
	}
	return shortCodeRegex.MatchString(code)
}

type redirectInput struct {
	ShortCode   string `validate:"required,shortcode"`
	Destination string `validate:"required,max=2048"`
}

// describe turns the first failed rule into a short user-facing message.
func (in redirectInput) describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return "invalid input"
	}
	fe := verrs[0]
	switch {
	case fe.Field() == "ShortCode" && fe.Tag() == "required":
		return "short_id is required"
	case fe.Field() == "ShortCode":
		return "short_id must be 1-50 letters, digits, '-' or '_' and not a reserved name"
	case fe.Tag() == "required":
		return "destination is required"
	default:
		return "destination is too long"
	}
}
