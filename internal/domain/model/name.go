package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxNameLength bounds display names in runes.
const MaxNameLength = 40

// NormalizeName folds a display name into its reservation key: trimmed,
// inner whitespace collapsed, lower-cased.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// CleanName validates a display name and returns it with whitespace tidied.
func CleanName(name string) (string, error) {
	clean := strings.Join(strings.Fields(name), " ")
	switch {
	case clean == "":
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	case utf8.RuneCountInString(clean) > MaxNameLength:
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidName, MaxNameLength)
	case NormalizeName(clean) == strings.ToLower(string(HostSessionID)):
		return "", fmt.Errorf("%w: reserved", ErrInvalidName)
	}
	return clean, nil
}

// ValidateRating checks a participant star rating.
func ValidateRating(rating int) error {
	if rating < MinRating || rating > MaxRating {
		return fmt.Errorf("%w: %d outside %d..%d", ErrInvalidRating, rating, MinRating, MaxRating)
	}
	return nil
}
