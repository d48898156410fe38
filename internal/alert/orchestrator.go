package alert

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

// Notifier places a single voice notification for an alert and reports the
// terminal outcome. Implementations own exactly one connection per call and
// must honor the context deadline.
type Notifier interface {
	Notify(ctx context.Context, a *Alert) CallOutcome
}

// Decision is the outcome of one rule evaluation.
type Decision struct {
	Alerted bool   `json:"alerted"`
	AlertID string `json:"alert_id,omitempty"`
}

// Orchestrator is the public entry point of the alert engine. It evaluates
// the threshold+cooldown rule and, on a positive decision, persists the
// alert, sets the cooldown, and dispatches a detached, time-bounded voice
// notification whose outcome is attached asynchronously.
type Orchestrator struct {
	store         Store
	cooldowns     CooldownStore
	notifier      Notifier
	threshold     float64
	window        time.Duration
	topN          int
	notifyTimeout time.Duration
	logger        log.Logger
	metrics       *Metrics
}

// NewOrchestrator creates an orchestrator with a fixed, validated rule
// configuration. notifier may be nil when telephony is not configured;
// metrics may be nil.
func NewOrchestrator(store Store, cooldowns CooldownStore, notifier Notifier, threshold float64, window time.Duration, topN int, notifyTimeout time.Duration, logger log.Logger, metrics *Metrics) *Orchestrator {
	if logger == nil {
		logger = log.Nop()
	}
	return &Orchestrator{
		store:         store,
		cooldowns:     cooldowns,
		notifier:      notifier,
		threshold:     threshold,
		window:        window,
		topN:          topN,
		notifyTimeout: notifyTimeout,
		logger:        logger,
		metrics:       metrics,
	}
}

// Evaluate applies the alerting rule for one scoring request.
//
// Risk exactly equal to the threshold triggers. The cooldown is acquired
// before the alert is written: the acquisition is the concurrency gate, and
// an alert-write failure after it leaves the cooldown in place, which fails
// closed (suppresses, never double-calls). The returned error covers only
// failure to persist the decision; notification failures are absorbed and
// recorded on the alert.
func (o *Orchestrator) Evaluate(ctx context.Context, token string, as *Assessment) (*Decision, error) {
	if as.Risk < o.threshold {
		o.countEvaluation("below_threshold")
		return &Decision{Alerted: false}, nil
	}

	acquired, err := o.cooldowns.TryAcquire(ctx, token, time.Now(), o.window)
	if err != nil {
		o.countEvaluation("error")
		return nil, fmt.Errorf("cooldown acquire: %w", err)
	}
	if !acquired {
		o.countEvaluation("cooldown")
		return &Decision{Alerted: false}, nil
	}

	a := &Alert{
		ID:           "alrt_" + ulid.Make().String(),
		PatientToken: token,
		Risk:         as.Risk,
		TopFactors:   TopFactors(as.Factors, o.topN),
		CreatedAt:    time.Now(),
		CallOutcome:  OutcomePending,
	}

	id, err := o.store.Create(ctx, a)
	if err != nil {
		// Cooldown stays set; the next in-window request must not fire.
		o.countEvaluation("error")
		return nil, fmt.Errorf("persist alert: %w", err)
	}
	a.ID = id

	o.countEvaluation("alerted")
	o.logger.Info(ctx, "alert triggered", "alert_id", id, "risk", as.Risk)

	// Detach from the request so a slow telephony server cannot stall the
	// caller; the decision is already durable at this point.
	go o.dispatch(context.WithoutCancel(ctx), a)

	return &Decision{Alerted: true, AlertID: id}, nil
}

// Get retrieves a persisted alert for case lookup.
func (o *Orchestrator) Get(ctx context.Context, id string) (*Alert, bool, error) {
	return o.store.Get(ctx, id)
}

func (o *Orchestrator) dispatch(ctx context.Context, a *Alert) {
	outcome := OutcomeNotConfigured
	if o.notifier != nil {
		nctx, cancel := context.WithTimeout(ctx, o.notifyTimeout)
		start := time.Now()
		outcome = o.notifier.Notify(nctx, a)
		cancel()
		o.observeCall(outcome, time.Since(start))
	} else {
		o.observeCall(outcome, 0)
	}

	if err := o.store.AttachOutcome(ctx, a.ID, outcome); err != nil {
		o.logger.Error(ctx, err, "failed to attach call outcome", "alert_id", a.ID, "outcome", string(outcome))
		return
	}

	o.logger.Info(ctx, "call outcome recorded", "alert_id", a.ID, "outcome", string(outcome))
}

func (o *Orchestrator) countEvaluation(decision string) {
	if o.metrics != nil {
		o.metrics.EvaluationsTotal.WithLabelValues(decision).Inc()
	}
}

func (o *Orchestrator) observeCall(outcome CallOutcome, dur time.Duration) {
	if o.metrics != nil {
		o.metrics.CallsTotal.WithLabelValues(string(outcome)).Inc()
		o.metrics.CallDuration.Observe(dur.Seconds())
	}
}

// TopFactors ranks factors by absolute impact, descending, keeping input
// order on ties, and truncates to n. An empty list is valid.
func TopFactors(factors []Factor, n int) []Factor {
	ranked := make([]Factor, len(factors))
	copy(ranked, factors)
	sort.SliceStable(ranked, func(i, j int) bool {
		return abs(ranked[i].Impact) > abs(ranked[j].Impact)
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
