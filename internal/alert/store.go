package alert

import (
	"context"
	"time"
)

// Store is the persistence interface for alert records.
type Store interface {
	// Create persists a new alert, assigning an ID if the caller left it
	// empty. Creating twice with the same caller-chosen ID is idempotent:
	// the first stored record wins and its ID is returned.
	Create(ctx context.Context, a *Alert) (string, error)

	// Get retrieves an alert by ID. A miss is (nil, false, nil).
	Get(ctx context.Context, id string) (*Alert, bool, error)

	// AttachOutcome records the terminal call outcome on an existing alert.
	AttachOutcome(ctx context.Context, id string, outcome CallOutcome) error
}

// CooldownStore gates alerting per patient token.
type CooldownStore interface {
	// TryAcquire atomically sets a cooldown expiring at now+window iff no
	// unexpired entry exists for token. Exactly one of two concurrent calls
	// for the same token may succeed. An error means the store could not
	// decide; callers must treat that as not-acquired, never as "no cooldown
	// active".
	TryAcquire(ctx context.Context, token string, now time.Time, window time.Duration) (bool, error)
}
