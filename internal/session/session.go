// Package session provides the identity of one run of the player.
//
// Local media references are only valid inside the run that created them.
// Items stamped with another run's identity must be rebound before use.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Identity is the process-lifetime token for the current run.
type Identity struct {
	id      string
	started time.Time
}

// New creates a fresh identity. Two calls never return the same ID.
func New() *Identity {
	now := time.Now()
	return &Identity{
		id:      fmt.Sprintf("%d_%s", now.UnixMilli(), uuid.NewString()),
		started: now,
	}
}

// FromString wraps a known ID. Tests use it to simulate earlier runs.
func FromString(id string) *Identity {
	return &Identity{id: id, started: time.Now()}
}

// ID returns the identity token.
func (i *Identity) ID() string {
	return i.id
}

// Owns reports whether state stamped with owner was created by this run.
func (i *Identity) Owns(owner string) bool {
	return owner != "" && owner == i.id
}

// Started returns when this run began.
func (i *Identity) Started() time.Time {
	return i.started
}

func (i *Identity) String() string {
	return i.id
}
