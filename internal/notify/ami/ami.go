// Package ami places voice notifications through the Asterisk Manager
// Interface: a persistent text protocol of CRLF-delimited Key: Value lines
// in blank-line-terminated blocks.
package ami

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/callout/internal/alert"
)

// Config holds the manager interface connection settings. All fields are
// required for the client to place calls; anything less is the valid
// not-configured state.
type Config struct {
	Host       string
	Port       int
	Username   string
	Secret     string
	CallNumber string
}

// Complete reports whether every field needed to place a call is set.
func (c Config) Complete() bool {
	return c.Host != "" && c.Port > 0 && c.Username != "" && c.Secret != "" && c.CallNumber != ""
}

// Client implements alert.Notifier over AMI. Each Notify owns exactly one
// connection for its lifetime and closes it on every exit path.
type Client struct {
	cfg    Config
	logger log.Logger
}

// New creates an AMI client. The config may be incomplete; Notify then
// short-circuits to the not-configured outcome without connecting.
func New(cfg Config, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{cfg: cfg, logger: logger}
}

// Notify runs the login → originate → logoff sequence for one alert and
// reports the terminal outcome. The context deadline bounds the whole
// sequence; exceeding it maps to the timeout outcome.
func (c *Client) Notify(ctx context.Context, a *alert.Alert) alert.CallOutcome {
	if !c.cfg.Complete() {
		c.logger.Warn(ctx, "telephony not configured, skipping voice alert", "alert_id", a.ID)
		return alert.OutcomeNotConfigured
	}

	outcome := c.place(ctx, a)
	if outcome == alert.OutcomePlaced {
		c.logger.Info(ctx, "voice alert placed", "alert_id", a.ID, "number", c.cfg.CallNumber)
	} else {
		c.logger.Warn(ctx, "voice alert not placed", "alert_id", a.ID, "outcome", string(outcome))
	}
	return outcome
}

func (c *Client) place(ctx context.Context, a *alert.Alert) alert.CallOutcome {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		if isTimeout(err) {
			return alert.OutcomeTimeout
		}
		return alert.OutcomeUnreachable
	}
	defer func() { _ = conn.Close() }()

	// The context deadline bounds every read and write on the connection.
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	tc := textproto.NewConn(conn)

	banner, err := tc.ReadLine()
	if err != nil {
		if isTimeout(err) {
			return alert.OutcomeTimeout
		}
		return alert.OutcomeUnreachable
	}
	if !strings.HasPrefix(banner, "Asterisk") {
		return alert.OutcomeUnreachable
	}

	// Authenticating: a malformed or missing response within the deadline
	// is treated as an authentication failure.
	resp, err := c.action(tc, "Login",
		"Username", c.cfg.Username,
		"Secret", c.cfg.Secret,
	)
	if err != nil || resp.Get("Response") != "Success" {
		return alert.OutcomeAuthFailed
	}

	// Logged in: from here every exit attempts a graceful logoff first.
	// Its failure never changes the already-decided outcome.
	defer c.logoff(tc)

	resp, err = c.action(tc, "Originate",
		"Channel", "SIP/"+c.cfg.CallNumber,
		"Application", "Playback",
		"Data", spokenMessage(a),
		"Async", "true",
	)
	if err != nil {
		if isTimeout(err) {
			return alert.OutcomeTimeout
		}
		return alert.OutcomeUnreachable
	}
	if resp.Get("Response") != "Success" {
		return alert.OutcomeFailed
	}
	return alert.OutcomePlaced
}

// action writes one manager action block and reads the response block.
func (c *Client) action(tc *textproto.Conn, name string, kv ...string) (textproto.MIMEHeader, error) {
	if err := tc.PrintfLine("Action: %s", name); err != nil {
		return nil, fmt.Errorf("write action: %w", err)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		if err := tc.PrintfLine("%s: %s", kv[i], kv[i+1]); err != nil {
			return nil, fmt.Errorf("write action: %w", err)
		}
	}
	if err := tc.PrintfLine(""); err != nil {
		return nil, fmt.Errorf("write action: %w", err)
	}

	resp, err := tc.ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

func (c *Client) logoff(tc *textproto.Conn) {
	_ = tc.PrintfLine("Action: Logoff")
	_ = tc.PrintfLine("")
}

// spokenMessage builds the PHI-free announcement: risk band and alert
// identifier tail only, never patient-identifying content.
func spokenMessage(a *alert.Alert) string {
	return fmt.Sprintf("Cardiac risk alert, band %s, for case %s. Check your secure portal.",
		alert.RiskBand(a.Risk), a.ShortID())
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
