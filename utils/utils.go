package utils

import (
	"github.com/google/uuid"
)

// GenerateUUIDString returns a random (v4) UUID in its canonical form.
func GenerateUUIDString() string {
	return uuid.New().String()
}

// IsUUID reports whether s parses as a UUID.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
