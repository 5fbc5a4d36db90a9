package parse

import (
	"fmt"
	"regexp"
	"strings"
)

const maxPlateLen = 20

var (
	plateRe      = regexp.MustCompile(`^[A-Z0-9][A-Z0-9 -]*$`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Plate normalizes a vehicle registration: upper case, trimmed, with runs of
// whitespace collapsed to one space. Only letters, digits, spaces and hyphens
// are accepted.
func Plate(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = whitespaceRe.ReplaceAllString(s, " ")
	if s == "" {
		return "", fmt.Errorf("empty vehicle plate")
	}
	if len(s) > maxPlateLen {
		return "", fmt.Errorf("vehicle plate longer than %d characters: %q", maxPlateLen, raw)
	}
	if !plateRe.MatchString(s) {
		return "", fmt.Errorf("invalid vehicle plate: %q", raw)
	}
	return s, nil
}
