package plate

import (
	"regexp"
	"unicode/utf8"
)

var (
	hasLetter = regexp.MustCompile(`[A-Z]`)
	hasDigit  = regexp.MustCompile(`[0-9]`)

	// Common plate layouts.
	canonicalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^[A-Z]{2,3}[0-9]{3,4}$`), // AB1234, ABC1234
		regexp.MustCompile(`^[0-9]{3}[A-Z]{3}$`),     // 123ABC
	}
)

// ValidFormat reports whether normalized text looks like a license plate.
func ValidFormat(text string) bool {
	n := utf8.RuneCountInString(text)
	if n < 2 || n > 10 {
		return false
	}
	for _, p := range canonicalPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return hasLetter.MatchString(text) && hasDigit.MatchString(text)
}
