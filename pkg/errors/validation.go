package errors

import (
	"math"
	"strings"
	"unicode"
)

// maxKeyLength bounds artifact keys so they stay usable as file names,
// badger keys and redis keys alike.
const maxKeyLength = 512

// ValidateKey validates an artifact key for safety and correctness.
// Keys are slash-separated relative names such as "lut/tile/0_1_2".
//
// The validation rules are intentionally conservative:
//   - No empty keys
//   - No control characters or null bytes
//   - No absolute keys, no path traversal (..), no empty segments (//)
//   - No backslashes
//   - Maximum length of 512 characters
func ValidateKey(key string) error {
	if key == "" {
		return New(ErrCodeInvalidKey, "artifact key cannot be empty")
	}
	if len(key) > maxKeyLength {
		return New(ErrCodeInvalidKey, "artifact key too long (max %d characters)", maxKeyLength)
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidKey, "artifact key contains invalid control characters")
		}
	}
	if strings.HasPrefix(key, "/") {
		return New(ErrCodeInvalidKey, "artifact key must be relative: %q", key)
	}
	for _, pattern := range []string{"..", "//", "\\"} {
		if strings.Contains(key, pattern) {
			return New(ErrCodeInvalidKey, "artifact key contains invalid characters: %q", pattern)
		}
	}
	return nil
}

// ValidateIntervals checks that ERL interval thresholds are finite and
// strictly ascending. A nil or empty slice is valid and disables binning.
func ValidateIntervals(thresholds []float64) error {
	for i, v := range thresholds {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return New(ErrCodeInvalidInput, "interval threshold %d is not finite: %v", i, v)
		}
		if i > 0 && v <= thresholds[i-1] {
			return New(ErrCodeInvalidInput, "interval thresholds must be ascending: %v after %v", v, thresholds[i-1])
		}
	}
	return nil
}

// ValidatePositive checks that a named integer parameter is at least one.
func ValidatePositive(name string, v int) error {
	if v < 1 {
		return New(ErrCodeInvalidInput, "%s must be positive, got %d", name, v)
	}
	return nil
}
