package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/callout/internal/alert"
)

func TestCreateAndGet(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	a := &alert.Alert{
		PatientToken: "p1",
		Risk:         0.91,
		TopFactors:   []alert.Factor{{Name: "chol", Impact: 0.4}},
		CreatedAt:    time.Now(),
		CallOutcome:  alert.OutcomePending,
	}

	id, err := s.Create(ctx, a)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == "" {
		t.Fatal("expected assigned ID")
	}

	got, ok, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("Get returned ok=false, want true")
	}
	if got.Risk != 0.91 || got.PatientToken != "p1" {
		t.Errorf("got = %+v, want stored fields back", got)
	}
}

func TestCreate_IdempotentForCallerChosenID(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	first := &alert.Alert{ID: "alrt_fixed", Risk: 0.85}
	if _, err := s.Create(ctx, first); err != nil {
		t.Fatalf("first Create: %v", err)
	}

	// a retry with the same ID must not produce a duplicate or overwrite
	retry := &alert.Alert{ID: "alrt_fixed", Risk: 0.99}
	id, err := s.Create(ctx, retry)
	if err != nil {
		t.Fatalf("retry Create: %v", err)
	}
	if id != "alrt_fixed" {
		t.Errorf("id = %q, want alrt_fixed", id)
	}

	got, _, _ := s.Get(ctx, "alrt_fixed")
	if got.Risk != 0.85 {
		t.Errorf("Risk = %g, want first write to win", got.Risk)
	}
}

func TestGet_Miss(t *testing.T) {
	t.Parallel()

	s := New()
	_, ok, err := s.Get(context.Background(), "alrt_missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("expected ok=false for missing ID")
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	id, _ := s.Create(ctx, &alert.Alert{Risk: 0.9, TopFactors: []alert.Factor{{Name: "age", Impact: 0.1}}})

	got, _, _ := s.Get(ctx, id)
	got.Risk = 0.1
	got.TopFactors[0].Impact = 99

	again, _, _ := s.Get(ctx, id)
	if again.Risk != 0.9 || again.TopFactors[0].Impact != 0.1 {
		t.Error("mutating a returned alert leaked into the store")
	}
}

func TestAttachOutcome(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	id, _ := s.Create(ctx, &alert.Alert{Risk: 0.9, CallOutcome: alert.OutcomePending})

	if err := s.AttachOutcome(ctx, id, alert.OutcomePlaced); err != nil {
		t.Fatalf("AttachOutcome: %v", err)
	}

	got, _, _ := s.Get(ctx, id)
	if got.CallOutcome != alert.OutcomePlaced {
		t.Errorf("CallOutcome = %q, want %q", got.CallOutcome, alert.OutcomePlaced)
	}
}

func TestTryAcquire_Basic(t *testing.T) {
	t.Parallel()

	c := NewCooldowns()
	ctx := context.Background()
	now := time.Now()

	acquired, err := c.TryAcquire(ctx, "p1", now, 30*time.Minute)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if !acquired {
		t.Fatal("expected first acquisition to succeed")
	}

	acquired, err = c.TryAcquire(ctx, "p1", now.Add(time.Minute), 30*time.Minute)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if acquired {
		t.Error("expected in-window acquisition to fail")
	}
}

func TestTryAcquire_ExpiresByTimestamp(t *testing.T) {
	t.Parallel()

	c := NewCooldowns()
	ctx := context.Background()
	now := time.Now()
	window := 30 * time.Minute

	if acquired, _ := c.TryAcquire(ctx, "p1", now, window); !acquired {
		t.Fatal("expected first acquisition to succeed")
	}

	// still forbidden right at the boundary minus epsilon
	if acquired, _ := c.TryAcquire(ctx, "p1", now.Add(window-time.Second), window); acquired {
		t.Error("expected acquisition just inside the window to fail")
	}

	// permitted again at T + window + epsilon
	if acquired, _ := c.TryAcquire(ctx, "p1", now.Add(window+time.Second), window); !acquired {
		t.Error("expected acquisition past the window to succeed")
	}
}

func TestTryAcquire_DistinctTokens(t *testing.T) {
	t.Parallel()

	c := NewCooldowns()
	ctx := context.Background()
	now := time.Now()

	a1, _ := c.TryAcquire(ctx, "p1", now, time.Hour)
	a2, _ := c.TryAcquire(ctx, "p2", now, time.Hour)
	if !a1 || !a2 {
		t.Errorf("acquired = (%v, %v), want both true", a1, a2)
	}
}

func TestTryAcquire_ConcurrentSameToken(t *testing.T) {
	t.Parallel()

	c := NewCooldowns()
	ctx := context.Background()

	const n = 64
	var wg sync.WaitGroup
	results := make([]bool, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acquired, err := c.TryAcquire(ctx, "p1", time.Now(), time.Hour)
			if err != nil {
				t.Errorf("TryAcquire: %v", err)
				return
			}
			results[i] = acquired
		}()
	}
	wg.Wait()

	count := 0
	for _, r := range results {
		if r {
			count++
		}
	}
	if count != 1 {
		t.Errorf("acquisitions = %d, want exactly 1", count)
	}
}
