package ami

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/callout/internal/alert"
)

// fakeServer is a minimal in-process manager interface for tests: banner,
// then blank-line-terminated action blocks answered per the configured
// responses.
type fakeServer struct {
	banner        string
	loginResp     string // Success, Error, or "stall"
	originateResp string // Success, Error, or "stall"

	mu      sync.Mutex
	actions []string
}

func (f *fakeServer) start(t *testing.T) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		f.serve(conn)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func (f *fakeServer) serve(conn net.Conn) {
	if _, err := conn.Write([]byte(f.banner + "\r\n")); err != nil {
		return
	}

	r := bufio.NewReader(conn)
	for {
		action, ok := readBlock(r)
		if !ok {
			return
		}
		f.mu.Lock()
		f.actions = append(f.actions, action)
		f.mu.Unlock()

		var resp string
		switch action {
		case "Login":
			resp = f.loginResp
		case "Originate":
			resp = f.originateResp
		case "Logoff":
			resp = "Goodbye"
		default:
			resp = "Error"
		}
		if resp == "stall" {
			// hold the connection open without answering
			time.Sleep(5 * time.Second)
			return
		}
		if _, err := conn.Write([]byte("Response: " + resp + "\r\n\r\n")); err != nil {
			return
		}
	}
}

func (f *fakeServer) sawAction(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.actions {
		if a == name {
			return true
		}
	}
	return false
}

// readBlock reads one action block and returns its Action value.
func readBlock(r *bufio.Reader) (string, bool) {
	action := ""
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", false
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return action, true
		}
		if v, ok := strings.CutPrefix(line, "Action: "); ok {
			action = v
		}
	}
}

func testConfig(host string, port int) Config {
	return Config{
		Host:       host,
		Port:       port,
		Username:   "callout",
		Secret:     "hunter2",
		CallNumber: "1000",
	}
}

func testAlert() *alert.Alert {
	return &alert.Alert{
		ID:           "alrt_01HTESTTESTTESTTESTTESTTST",
		PatientToken: "p1",
		Risk:         0.92,
		CreatedAt:    time.Now(),
		CallOutcome:  alert.OutcomePending,
	}
}

func notifyWithTimeout(c *Client, a *alert.Alert, timeout time.Duration) alert.CallOutcome {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Notify(ctx, a)
}

func TestNotify_Placed(t *testing.T) {
	t.Parallel()

	srv := &fakeServer{
		banner:        "Asterisk Call Manager/5.0.2",
		loginResp:     "Success",
		originateResp: "Success",
	}
	host, port := srv.start(t)

	c := New(testConfig(host, port), nil)
	outcome := notifyWithTimeout(c, testAlert(), 2*time.Second)
	if outcome != alert.OutcomePlaced {
		t.Errorf("outcome = %q, want %q", outcome, alert.OutcomePlaced)
	}
	if !srv.sawAction("Login") || !srv.sawAction("Originate") {
		t.Error("expected Login and Originate actions on the wire")
	}
}

func TestNotify_AuthFailed(t *testing.T) {
	t.Parallel()

	srv := &fakeServer{
		banner:    "Asterisk Call Manager/5.0.2",
		loginResp: "Error",
	}
	host, port := srv.start(t)

	c := New(testConfig(host, port), nil)
	outcome := notifyWithTimeout(c, testAlert(), 2*time.Second)
	if outcome != alert.OutcomeAuthFailed {
		t.Errorf("outcome = %q, want %q", outcome, alert.OutcomeAuthFailed)
	}
	if srv.sawAction("Originate") {
		t.Error("expected no Originate after failed login")
	}
}

func TestNotify_MissingLoginResponseIsAuthFailed(t *testing.T) {
	t.Parallel()

	srv := &fakeServer{
		banner:    "Asterisk Call Manager/5.0.2",
		loginResp: "stall",
	}
	host, port := srv.start(t)

	c := New(testConfig(host, port), nil)
	outcome := notifyWithTimeout(c, testAlert(), 300*time.Millisecond)
	if outcome != alert.OutcomeAuthFailed {
		t.Errorf("outcome = %q, want %q", outcome, alert.OutcomeAuthFailed)
	}
}

func TestNotify_OriginateRejected(t *testing.T) {
	t.Parallel()

	srv := &fakeServer{
		banner:        "Asterisk Call Manager/5.0.2",
		loginResp:     "Success",
		originateResp: "Error",
	}
	host, port := srv.start(t)

	c := New(testConfig(host, port), nil)
	outcome := notifyWithTimeout(c, testAlert(), 2*time.Second)
	if outcome != alert.OutcomeFailed {
		t.Errorf("outcome = %q, want %q", outcome, alert.OutcomeFailed)
	}
}

func TestNotify_OriginateTimeout(t *testing.T) {
	t.Parallel()

	srv := &fakeServer{
		banner:        "Asterisk Call Manager/5.0.2",
		loginResp:     "Success",
		originateResp: "stall",
	}
	host, port := srv.start(t)

	c := New(testConfig(host, port), nil)
	outcome := notifyWithTimeout(c, testAlert(), 300*time.Millisecond)
	if outcome != alert.OutcomeTimeout {
		t.Errorf("outcome = %q, want %q", outcome, alert.OutcomeTimeout)
	}
}

func TestNotify_Unreachable(t *testing.T) {
	t.Parallel()

	// grab a port that nothing is listening on
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	c := New(testConfig("127.0.0.1", port), nil)
	outcome := notifyWithTimeout(c, testAlert(), 2*time.Second)
	if outcome != alert.OutcomeUnreachable {
		t.Errorf("outcome = %q, want %q", outcome, alert.OutcomeUnreachable)
	}
}

func TestNotify_BadBanner(t *testing.T) {
	t.Parallel()

	srv := &fakeServer{banner: "220 mail.example.com ESMTP"}
	host, port := srv.start(t)

	c := New(testConfig(host, port), nil)
	outcome := notifyWithTimeout(c, testAlert(), 2*time.Second)
	if outcome != alert.OutcomeUnreachable {
		t.Errorf("outcome = %q, want %q", outcome, alert.OutcomeUnreachable)
	}
}

func TestNotify_NotConfigured(t *testing.T) {
	t.Parallel()

	c := New(Config{Host: "ami.example.com", Port: 5038}, nil)
	outcome := notifyWithTimeout(c, testAlert(), 2*time.Second)
	if outcome != alert.OutcomeNotConfigured {
		t.Errorf("outcome = %q, want %q", outcome, alert.OutcomeNotConfigured)
	}
}

func TestConfig_Complete(t *testing.T) {
	t.Parallel()

	full := testConfig("ami.example.com", 5038)
	if !full.Complete() {
		t.Error("expected complete config")
	}

	partial := full
	partial.Secret = ""
	if partial.Complete() {
		t.Error("expected incomplete config without secret")
	}
}

func TestSpokenMessage_NoPatientContent(t *testing.T) {
	t.Parallel()

	a := testAlert()
	msg := spokenMessage(a)
	if strings.Contains(msg, a.PatientToken) {
		t.Errorf("message %q leaks patient token", msg)
	}
	if !strings.Contains(msg, a.ShortID()) {
		t.Errorf("message %q missing case short id", msg)
	}
	if !strings.Contains(msg, "critical") {
		t.Errorf("message %q missing risk band", msg)
	}
}
