package alert

import "time"

// CallOutcome is the terminal status of a single voice notification attempt.
type CallOutcome string

const (
	// OutcomePending means the notification task has not finished yet.
	OutcomePending CallOutcome = "pending"

	// OutcomePlaced means the telephony server accepted the originate.
	OutcomePlaced CallOutcome = "placed"

	// OutcomeAuthFailed means the manager interface rejected our credentials.
	OutcomeAuthFailed CallOutcome = "auth_failed"

	// OutcomeUnreachable means the telephony server could not be reached.
	OutcomeUnreachable CallOutcome = "unreachable"

	// OutcomeTimeout means the notification deadline expired mid-sequence.
	OutcomeTimeout CallOutcome = "timeout"

	// OutcomeFailed means the server rejected the originate action.
	OutcomeFailed CallOutcome = "failed"

	// OutcomeNotConfigured means telephony settings are absent. This is a
	// configuration state, not an error, and is never retried.
	OutcomeNotConfigured CallOutcome = "not_configured"
)

// Factor is a single feature's signed contribution to a risk score.
type Factor struct {
	Name   string  `json:"feature"`
	Impact float64 `json:"impact"`
}

// Assessment is an externally computed risk result for one patient.
// Immutable; factors keep the scorer's order.
type Assessment struct {
	Risk       float64   `json:"risk"`
	Factors    []Factor  `json:"factors"`
	ComputedAt time.Time `json:"computed_at"`
}

// Alert is the persisted record of one triggered notification decision.
// Created exactly once per triggering decision; only CallOutcome is written
// after creation, once the notification task reports back.
type Alert struct {
	ID           string      `json:"alert_id"`
	PatientToken string      `json:"patient_token"`
	Risk         float64     `json:"risk"`
	TopFactors   []Factor    `json:"top_factors"`
	CreatedAt    time.Time   `json:"created_at"`
	CallOutcome  CallOutcome `json:"call_outcome"`
}

// ShortID returns the tail of the alert identifier, safe to speak aloud in a
// voice message. Never contains patient-identifying content.
func (a *Alert) ShortID() string {
	if len(a.ID) <= 6 {
		return a.ID
	}
	return a.ID[len(a.ID)-6:]
}

// RiskBand maps a risk value to the coarse band spoken in the voice message.
func RiskBand(risk float64) string {
	if risk >= 0.9 {
		return "critical"
	}
	return "high"
}
