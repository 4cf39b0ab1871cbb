package sk

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so retention and naming are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the current time in UTC. Stored timestamps are always
// UTC so that retention comparisons in the store are ordered correctly.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator abstracts record ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random (version 4) UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.NewString() }
