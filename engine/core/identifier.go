package core

import "github.com/google/uuid"

// NewInstanceID returns a random identifier used to tell apart device
// instances and native objects in logs.
func NewInstanceID() string {
	return uuid.New().String()
}

// ShortID trims an identifier down to its first block for compact log prefixes.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
