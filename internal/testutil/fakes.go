// Package testutil provides fakes for the device session capabilities and
// helpers for tests that need external services.
package testutil

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/newtron-network/cfgpush/pkg/device"
)

// FakeTransport opens FakeSessions and records every attempt.
type FakeTransport struct {
	// OpenErr maps a host to the error Open returns for it.
	OpenErr map[string]error
	// Outputs maps a command to its output on every device.
	Outputs map[string]string
	// CommandErr maps "host command" to an error returned by SendCommand.
	CommandErr map[string]error
	// ConfigErr maps a host to an error returned by SendConfigSet.
	ConfigErr map[string]error

	mu       sync.Mutex
	opened   []string
	sessions []*FakeSession
}

func (t *FakeTransport) Open(ctx context.Context, host string, creds device.Credentials) (device.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.opened = append(t.opened, host)
	if err, ok := t.OpenErr[host]; ok {
		return nil, err
	}
	s := &FakeSession{host: host, creds: creds, transport: t}
	t.sessions = append(t.sessions, s)
	return s, nil
}

// Opened returns the hosts Open was called with, in order.
func (t *FakeTransport) Opened() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.opened...)
}

// Session returns the session opened for host, or nil.
func (t *FakeTransport) Session(host string) *FakeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.sessions {
		if s.host == host {
			return s
		}
	}
	return nil
}

// FakeSession records calls as "enable", "config <lines joined by ;>",
// "send <cmd>" and "close".
type FakeSession struct {
	host      string
	creds     device.Credentials
	transport *FakeTransport

	mu     sync.Mutex
	calls  []string
	closed int
}

func (s *FakeSession) record(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *FakeSession) Enable(ctx context.Context) error {
	s.record("enable")
	return ctx.Err()
}

func (s *FakeSession) SendCommand(ctx context.Context, cmd string) (string, error) {
	s.record("send " + cmd)
	if err := s.transport.CommandErr[s.host+" "+cmd]; err != nil {
		return "", err
	}
	return s.transport.Outputs[cmd], ctx.Err()
}

func (s *FakeSession) SendConfigSet(ctx context.Context, lines []string) (string, error) {
	s.record("config " + strings.Join(lines, ";"))
	if err := s.transport.ConfigErr[s.host]; err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), ctx.Err()
}

func (s *FakeSession) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	s.record("close")
	return nil
}

// Calls returns the recorded calls in order.
func (s *FakeSession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Sent returns only the commands passed to SendCommand.
func (s *FakeSession) Sent() []string {
	var sent []string
	for _, c := range s.Calls() {
		if cmd, ok := strings.CutPrefix(c, "send "); ok {
			sent = append(sent, cmd)
		}
	}
	return sent
}

// Credentials returns what the session was opened with.
func (s *FakeSession) Credentials() device.Credentials { return s.creds }

// Closed returns how many times Close was called.
func (s *FakeSession) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Confirmer answers from a script. Once the script is exhausted it returns
// false and io.EOF, like a closed stdin.
type Confirmer struct {
	Answers []bool

	mu    sync.Mutex
	asked []string
}

func (c *Confirmer) Confirm(question string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.asked = append(c.asked, question)
	if len(c.Answers) == 0 {
		return false, io.EOF
	}
	a := c.Answers[0]
	c.Answers = c.Answers[1:]
	return a, nil
}

// Asked returns the questions asked so far.
func (c *Confirmer) Asked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.asked...)
}

// Recorder keeps run-log records in memory.
type Recorder struct {
	mu      sync.Mutex
	records []string
}

func (r *Recorder) Record(msg string) {
	r.mu.Lock()
	r.records = append(r.records, msg)
	r.mu.Unlock()
}

// Records returns the records in order.
func (r *Recorder) Records() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.records...)
}

// Contains reports whether any record contains substr.
func (r *Recorder) Contains(substr string) bool {
	for _, rec := range r.Records() {
		if strings.Contains(rec, substr) {
			return true
		}
	}
	return false
}
