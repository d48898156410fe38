// Package redistore provides Redis implementations of alert.Store and
// alert.CooldownStore. Alerts persist across restarts under alert:{id};
// cooldowns live under cooldown:{token} with native TTL expiry.
package redistore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/linnemanlabs/callout/internal/alert"
)

var tracer = otel.Tracer("github.com/linnemanlabs/callout/internal/alert/redistore")

// Store persists alert records in Redis.
type Store struct {
	client *redis.Client
}

// New returns a Store over an already-connected client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func alertKey(id string) string     { return "alert:" + id }
func cooldownKey(tok string) string { return "cooldown:" + tok }

// Create persists a new alert as a JSON blob under alert:{id}. Writing with
// SET NX makes a retried create with the same caller-chosen ID idempotent:
// the first stored record wins.
func (s *Store) Create(ctx context.Context, a *alert.Alert) (string, error) {
	ctx, span := tracer.Start(ctx, "redistore.Create", trace.WithAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation.name", "SET"),
	))
	defer span.End()

	if a.ID == "" {
		a.ID = "alrt_" + ulid.Make().String()
	}

	body, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("marshal alert: %w", err)
	}

	if err := s.client.SetNX(ctx, alertKey(a.ID), body, 0).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("set alert: %w", err)
	}
	return a.ID, nil
}

// Get retrieves an alert by ID. A missing key is (nil, false, nil).
func (s *Store) Get(ctx context.Context, id string) (*alert.Alert, bool, error) {
	ctx, span := tracer.Start(ctx, "redistore.Get", trace.WithAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation.name", "GET"),
	))
	defer span.End()

	body, err := s.client.Get(ctx, alertKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("get alert: %w", err)
	}

	var a alert.Alert
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, false, fmt.Errorf("unmarshal alert: %w", err)
	}
	return &a, true, nil
}

// AttachOutcome rewrites the stored alert with the terminal call outcome.
// A single detached notification task owns this write per alert, so a plain
// read-modify-write is sufficient.
func (s *Store) AttachOutcome(ctx context.Context, id string, outcome alert.CallOutcome) error {
	ctx, span := tracer.Start(ctx, "redistore.AttachOutcome", trace.WithAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation.name", "SET"),
	))
	defer span.End()

	a, ok, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("attach outcome: alert %s not found", id)
	}

	a.CallOutcome = outcome
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := s.client.Set(ctx, alertKey(id), body, 0).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("set alert: %w", err)
	}
	return nil
}

// CooldownStore gates alerting per patient token using Redis TTL keys.
type CooldownStore struct {
	client *redis.Client
}

// NewCooldowns returns a CooldownStore over an already-connected client.
func NewCooldowns(client *redis.Client) *CooldownStore {
	return &CooldownStore{client: client}
}

// TryAcquire issues SET NX with the window as the key TTL: atomic on the
// server, so exactly one of two concurrent acquisitions for the same token
// succeeds and expiry needs no sweep. A backend error is returned as-is;
// the caller must fail closed rather than read it as "no cooldown active".
func (c *CooldownStore) TryAcquire(ctx context.Context, token string, now time.Time, window time.Duration) (bool, error) {
	ctx, span := tracer.Start(ctx, "redistore.TryAcquire", trace.WithAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation.name", "SET"),
	))
	defer span.End()

	expiry := now.Add(window).UTC().Format(time.RFC3339)
	acquired, err := c.client.SetNX(ctx, cooldownKey(token), expiry, window).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("set cooldown: %w", err)
	}
	return acquired, nil
}
