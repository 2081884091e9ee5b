package uid

import "github.com/google/uuid"

// New generates a random (v4) identifier.
func New() string {
	return uuid.New().String()
}

// Short returns the first block of an identifier for compact log prefixes.
func Short(id string) string {
	if len(id) < 8 {
		return id
	}
	return id[:8]
}

// IsValid checks if a string is a valid UUID.
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
