package scoreapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/callout/internal/alert"
)

// Scorer computes a risk assessment from a raw feature vector.
type Scorer interface {
	Score(features map[string]float64) *alert.Assessment
}

// AlertService defines the orchestrator operations scoreapi needs.
type AlertService interface {
	Evaluate(ctx context.Context, token string, as *alert.Assessment) (*alert.Decision, error)
	Get(ctx context.Context, id string) (*alert.Alert, bool, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	scorer Scorer
	svc    AlertService
	topN   int
}

// New creates a new API handler.
func New(logger log.Logger, scorer Scorer, svc AlertService, topN int) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if scorer == nil {
		panic(xerrors.New("scorer is required"))
	}
	if svc == nil {
		panic(xerrors.New("alert service is required"))
	}
	return &API{
		logger: logger,
		scorer: scorer,
		svc:    svc,
		topN:   topN,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Post("/score", a.handleScore)
	r.Get("/case/{id}", a.handleCaseView)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/case/{id}", a.handleGetCase)
	})
}

type scoreRequest struct {
	PatientRefToken string             `json:"patient_ref_token"`
	Features        map[string]float64 `json:"features"`
}

type scoreResponse struct {
	Risk       float64        `json:"risk"`
	TopFactors []alert.Factor `json:"top_factors"`
	Alerted    bool           `json:"alerted"`
	AlertID    string         `json:"alert_id,omitempty"`
}

func (a *API) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if req.PatientRefToken == "" {
		http.Error(w, `{"error":"patient_ref_token is required"}`, http.StatusBadRequest)
		return
	}

	as := a.scorer.Score(req.Features)

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Float64("callout.risk", as.Risk))

	decision, err := a.svc.Evaluate(r.Context(), req.PatientRefToken, as)
	if err != nil {
		// Only a decision that could not be persisted reaches here; telephony
		// failures never do.
		a.logger.Error(r.Context(), err, "evaluation failed")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	span.SetAttributes(attribute.Bool("callout.alerted", decision.Alerted))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(scoreResponse{
		Risk:       as.Risk,
		TopFactors: alert.TopFactors(as.Factors, a.topN),
		Alerted:    decision.Alerted,
		AlertID:    decision.AlertID,
	})
}

func (a *API) handleGetCase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("callout.alert.id", id))

	al, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get alert", "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(al)
}
