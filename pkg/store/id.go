package store

import "github.com/google/uuid"

// NewID returns a random identifier suitable for any entity row.
func NewID() string {
	return uuid.NewString()
}
