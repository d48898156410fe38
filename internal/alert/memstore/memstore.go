// Package memstore provides in-memory implementations of alert.Store and
// alert.CooldownStore. Process-lifetime only; the fallback when no Redis URL
// is configured or the configured backend is unreachable at startup.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/callout/internal/alert"
	"github.com/oklog/ulid/v2"
)

// Store holds alert records in memory.
type Store struct {
	mu     sync.RWMutex
	alerts map[string]*alert.Alert // alert ID -> record
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{alerts: make(map[string]*alert.Alert)}
}

// Create stores a copy of the alert, assigning an ID if unset. A second
// create with the same ID returns the already-stored record's ID without
// overwriting it.
func (s *Store) Create(_ context.Context, a *alert.Alert) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = "alrt_" + ulid.Make().String()
	}
	if _, ok := s.alerts[a.ID]; ok {
		return a.ID, nil
	}
	cp := *a
	cp.TopFactors = append([]alert.Factor(nil), a.TopFactors...)
	s.alerts[a.ID] = &cp
	return a.ID, nil
}

// Get retrieves an alert by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*alert.Alert, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, false, nil
	}
	cp := *a
	cp.TopFactors = append([]alert.Factor(nil), a.TopFactors...)
	return &cp, true, nil
}

// AttachOutcome records the call outcome on an existing alert. Attaching to
// a missing alert is a no-op rather than an error; the record may only exist
// on the other backend after a mid-flight fallback.
func (s *Store) AttachOutcome(_ context.Context, id string, outcome alert.CallOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.alerts[id]; ok {
		a.CallOutcome = outcome
	}
	return nil
}

// CooldownStore tracks per-patient cooldown expiry in memory with per-token
// mutual exclusion and expiry-on-read. No background sweep.
type CooldownStore struct {
	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	expires map[string]time.Time
}

// NewCooldowns initializes a new in-memory CooldownStore.
func NewCooldowns() *CooldownStore {
	return &CooldownStore{
		locks:   make(map[string]*sync.Mutex),
		expires: make(map[string]time.Time),
	}
}

// TryAcquire atomically sets the cooldown iff no unexpired entry exists for
// token. Concurrent calls for the same token serialize on a per-token lock;
// distinct tokens do not contend past the map lookup.
func (c *CooldownStore) TryAcquire(_ context.Context, token string, now time.Time, window time.Duration) (bool, error) {
	lk := c.tokenLock(token)
	lk.Lock()
	defer lk.Unlock()

	c.mu.Lock()
	expires, ok := c.expires[token]
	c.mu.Unlock()
	if ok && now.Before(expires) {
		return false, nil
	}

	c.mu.Lock()
	c.expires[token] = now.Add(window)
	c.mu.Unlock()
	return true, nil
}

func (c *CooldownStore) tokenLock(token string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lk, ok := c.locks[token]
	if !ok {
		lk = &sync.Mutex{}
		c.locks[token] = lk
	}
	return lk
}
