package models

import (
	"time"

	"github.com/google/uuid"
)

// newID generates a new unique identifier for any entity in the data model.
func newID() string {
	return uuid.New().String()
}

// now returns the current wall-clock time. Centralised so callers never
// reach for time.Now() directly when constructing entities, keeping
// timestamp semantics consistent across the model package.
func now() time.Time {
	return time.Now()
}
