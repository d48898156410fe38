package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config adds application-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	RiskThreshold         float64
	CooldownMinutes       int
	TopFactors            int
	ModelPath             string
	RedisURL              string
	AMIHost               string
	AMIPort               int
	AMIUsername           string
	AMISecret             string
	AMICallNumber         string
	NotifyTimeoutSeconds  int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.Float64Var(&c.RiskThreshold, "risk-threshold", 0.80, "risk at or above this value triggers an alert (0..1)")
	fs.IntVar(&c.CooldownMinutes, "cooldown-minutes", 30, "minimum minutes between alerts for the same patient token (>= 1)")
	fs.IntVar(&c.TopFactors, "top-factors", 3, "number of contributing factors persisted with an alert (>= 1)")
	fs.StringVar(&c.ModelPath, "model-path", "", "path to the trained model JSON export (required)")
	fs.StringVar(&c.RedisURL, "redis-url", "", "Redis connection URL for durable storage (empty = in-memory store)")
	fs.StringVar(&c.AMIHost, "ami-host", "", "Asterisk manager interface host (empty = voice alerts disabled)")
	fs.IntVar(&c.AMIPort, "ami-port", 5038, "Asterisk manager interface TCP port (1..65535)")
	fs.StringVar(&c.AMIUsername, "ami-username", "", "Asterisk manager interface username")
	fs.StringVar(&c.AMISecret, "ami-secret", "", "Asterisk manager interface secret")
	fs.StringVar(&c.AMICallNumber, "ami-call-number", "", "destination number for voice alerts")
	fs.IntVar(&c.NotifyTimeoutSeconds, "notify-timeout-seconds", 15, "hard deadline for one voice notification attempt (1..120)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Alerting rule parameters
	// written to also reject NaN
	if !(c.RiskThreshold >= 0 && c.RiskThreshold <= 1) {
		errs = append(errs, fmt.Errorf("invalid RISK_THRESHOLD %g (must be 0..1)", c.RiskThreshold))
	}
	if c.CooldownMinutes < 1 {
		errs = append(errs, fmt.Errorf("invalid COOLDOWN_MINUTES %d (must be >= 1)", c.CooldownMinutes))
	}
	if c.TopFactors < 1 {
		errs = append(errs, fmt.Errorf("invalid TOP_FACTORS %d (must be >= 1)", c.TopFactors))
	}

	// Model export is required for scoring
	if c.ModelPath == "" {
		errs = append(errs, errors.New("MODEL_PATH is required"))
	}

	if c.AMIPort <= 0 || c.AMIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid AMI_PORT %d (must be 1..65535)", c.AMIPort))
	}
	if c.NotifyTimeoutSeconds <= 0 || c.NotifyTimeoutSeconds > 120 {
		errs = append(errs, fmt.Errorf("invalid NOTIFY_TIMEOUT_SECONDS %d (must be 1..120)", c.NotifyTimeoutSeconds))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// TelephonyConfigured reports whether every field needed to place a voice
// call is present. Anything less is the valid not-configured state, not a
// validation failure.
func (c *Config) TelephonyConfigured() bool {
	return c.AMIHost != "" && c.AMIUsername != "" && c.AMISecret != "" && c.AMICallNumber != ""
}
