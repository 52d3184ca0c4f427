package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePlate(t *testing.T) {
	cases := map[string]string{
		"ab 1234":    "AB1234",
		"abc-123":    "ABC123",
		" 123 a-bc ": "123ABC",
		"":           "",
		"--  --":     "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePlate(in), "input %q", in)
	}
}
