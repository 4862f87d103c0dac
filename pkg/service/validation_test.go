package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateShortCode(t *testing.T) {
	tests := []struct {
		code     string
		expected bool
	}{
		{"promo1", true},
		{"valid_code-123", true},
		{"a", true},
		{"", false},
		{"api", false},
		{"Track", false},
		{"has space", false},
		{"bad/slash", false},
		{"very_long_code_that_exceeds_the_fifty_character_limit", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateShortCode(tt.code))
		})
	}
}

func TestRedirectInputDescribe(t *testing.T) {
	tests := []struct {
		name  string
		input redirectInput
		msg   string
	}{
		{"missing code", redirectInput{Destination: "https://x"}, "short_id is required"},
		{"bad code", redirectInput{ShortCode: "no spaces", Destination: "https://x"}, "short_id must be 1-50 letters, digits, '-' or '_' and not a reserved name"},
		{"missing destination", redirectInput{ShortCode: "a"}, "destination is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.input)
			if assert.Error(t, err) {
				assert.Equal(t, tt.msg, tt.input.describe(err))
			}
		})
	}
	assert.Equal(t, "invalid input", redirectInput{}.describe(errors.New("x")))
}
