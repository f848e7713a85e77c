package models

import (
	"github.com/google/uuid"
)

// newID returns a time-ordered UUIDv7 so primary keys sort in creation order.
func newID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = newID()
	}
}
