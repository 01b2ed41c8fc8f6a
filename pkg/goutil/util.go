package goutil

import (
	"strings"

	"github.com/google/uuid"
)

func ContainsStr(arr []string, str string) bool {
	for _, v := range arr {
		if v == str {
			return true
		}
	}
	return false
}

// NewTrackingID returns an opaque token suitable for per-recipient
// tracking pixels. Never reused.
func NewTrackingID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// NewShortCode returns a candidate short code for link tracking.
// Callers must collision-check against existing codes.
func NewShortCode() string {
	return uuid.New().String()[:8]
}

func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
