package audit

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEvent_New(t *testing.T) {
	event := NewEvent("alice", "r1", OpConfigure)

	if event.User != "alice" {
		t.Errorf("User = %q, want %q", event.User, "alice")
	}
	if event.Device != "r1" {
		t.Errorf("Device = %q, want %q", event.Device, "r1")
	}
	if event.Operation != OpConfigure {
		t.Errorf("Operation = %q, want %q", event.Operation, OpConfigure)
	}
	if len(event.ID) != 36 {
		t.Errorf("ID = %q, want a UUID", event.ID)
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
	if other := NewEvent("alice", "r1", OpConfigure); other.ID == event.ID {
		t.Error("two events share an ID")
	}
}

func TestEvent_Chaining(t *testing.T) {
	event := NewEvent("alice", "r1", OpConfigureVerify).
		WithRun("run-1").
		WithConfigFile("/tmp/ntp.cfg").
		WithCommands(2).
		WithOutcome("succeeded").
		WithSaved(true).
		WithSuccess().
		WithDuration(time.Second)

	if event.RunID != "run-1" {
		t.Errorf("RunID = %q", event.RunID)
	}
	if event.ConfigFile != "/tmp/ntp.cfg" {
		t.Errorf("ConfigFile = %q", event.ConfigFile)
	}
	if event.Commands != 2 {
		t.Errorf("Commands = %d", event.Commands)
	}
	if event.Outcome != "succeeded" || !event.Saved || !event.Success {
		t.Errorf("Outcome/Saved/Success = %q/%v/%v", event.Outcome, event.Saved, event.Success)
	}
	if event.Duration != time.Second {
		t.Errorf("Duration = %v", event.Duration)
	}
}

func TestEvent_WithError(t *testing.T) {
	event := NewEvent("alice", "r1", OpVerify).WithSuccess().WithError(errors.New("dial tcp: i/o timeout"))
	if event.Success {
		t.Error("Success should be false")
	}
	if event.Error != "dial tcp: i/o timeout" {
		t.Errorf("Error = %q", event.Error)
	}

	event = NewEvent("alice", "r1", OpVerify).WithError(nil)
	if event.Success || event.Error != "" {
		t.Errorf("WithError(nil) = %v/%q", event.Success, event.Error)
	}
}

func newTestLogger(t *testing.T, rotation RotationConfig) (*FileLogger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.log")
	logger, err := NewFileLogger(path, rotation)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger, path
}

func TestFileLogger_Basic(t *testing.T) {
	logger, _ := newTestLogger(t, RotationConfig{})

	event := NewEvent("alice", "r1", OpConfigure).WithConfigFile("/etc/ntp.cfg").WithSaved(true).WithSuccess()
	if err := logger.Log(event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	got := events[0]
	if got.ID != event.ID || got.Device != "r1" || got.ConfigFile != "/etc/ntp.cfg" || !got.Saved {
		t.Errorf("round trip = %+v", got)
	}
}

func TestFileLogger_QueryFilters(t *testing.T) {
	logger, _ := newTestLogger(t, RotationConfig{})

	events := []*Event{
		NewEvent("alice", "r1", OpConfigure).WithRun("a").WithSuccess(),
		NewEvent("bob", "r1", OpVerify).WithRun("a").WithSuccess(),
		NewEvent("alice", "r2", OpConfigureVerify).WithRun("b").WithError(errors.New("auth")),
		NewEvent("carol", "r3", OpConfigure).WithRun("b").WithSuccess(),
	}
	for _, e := range events {
		if err := logger.Log(e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"no filter", Filter{}, 4},
		{"by user", Filter{User: "alice"}, 2},
		{"by device", Filter{Device: "r1"}, 2},
		{"by operation", Filter{Operation: OpConfigure}, 2},
		{"by run", Filter{RunID: "b"}, 2},
		{"success only", Filter{SuccessOnly: true}, 3},
		{"failure only", Filter{FailureOnly: true}, 1},
		{"limit", Filter{Limit: 3}, 3},
		{"offset", Filter{Offset: 3}, 1},
		{"offset beyond", Filter{Offset: 10}, 0},
		{"in range", Filter{StartTime: time.Now().Add(-time.Hour), EndTime: time.Now().Add(time.Hour)}, 4},
		{"after", Filter{StartTime: time.Now().Add(time.Hour)}, 0},
		{"before", Filter{EndTime: time.Now().Add(-time.Hour)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := logger.Query(tt.filter)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(results) != tt.want {
				t.Errorf("got %d events, want %d", len(results), tt.want)
			}
		})
	}
}

func TestFileLogger_QueryMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	content := `{"user":"alice","device":"r1","operation":"verify","success":true}
invalid json line
{"user":"bob","device":"r2","operation":"verify","success":true}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test data: %v", err)
	}

	logger, err := NewFileLogger(path, RotationConfig{})
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	results, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Expected 2 valid events, got %d", len(results))
	}
}

func TestFileLogger_LogRotation(t *testing.T) {
	logger, path := newTestLogger(t, RotationConfig{MaxSize: 100, MaxBackups: 2})

	for i := 0; i < 6; i++ {
		if err := logger.Log(NewEvent("alice", "r1", OpConfigure).WithSuccess()); err != nil {
			t.Fatalf("Log failed on iteration %d: %v", i, err)
		}
	}

	matches, err := filepath.Glob(path + ".*")
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(matches) == 0 {
		t.Error("Expected rotation to create backup files")
	}
	if len(matches) > 2 {
		t.Errorf("Expected at most 2 backup files, got %d", len(matches))
	}

	// The live file only holds events written since the last rotation.
	results, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) == 0 || len(results) >= 6 {
		t.Errorf("live file holds %d events", len(results))
	}
}

func TestFileLogger_OpenErrors(t *testing.T) {
	if _, err := NewFileLogger("/dev/null/impossible/audit.log", RotationConfig{}); err == nil {
		t.Error("NewFileLogger should fail when directory creation fails")
	}

	dir := filepath.Join(t.TempDir(), "audit.log")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileLogger(dir, RotationConfig{}); err == nil {
		t.Error("NewFileLogger should fail when log path is a directory")
	}
}

func TestFileLogger_QueryMissingFile(t *testing.T) {
	logger, path := newTestLogger(t, RotationConfig{})
	os.Remove(path)

	results, err := logger.Query(Filter{})
	if err != nil {
		t.Errorf("Query on missing file should not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected 0 events, got %d", len(results))
	}
}

func TestFileLogger_CloseTwice(t *testing.T) {
	logger, _ := newTestLogger(t, RotationConfig{})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

type failingLogger struct{ err error }

func (f failingLogger) Log(*Event) error               { return f.err }
func (f failingLogger) Query(Filter) ([]*Event, error) { return nil, f.err }
func (f failingLogger) Close() error                   { return f.err }

func TestMultiLogger(t *testing.T) {
	first, _ := newTestLogger(t, RotationConfig{})
	second, _ := newTestLogger(t, RotationConfig{})
	boom := errors.New("redis down")

	m := MultiLogger{first, failingLogger{boom}, second}
	err := m.Log(NewEvent("alice", "r1", OpVerify).WithSuccess())
	if !errors.Is(err, boom) {
		t.Errorf("Log() error = %v, want %v", err, boom)
	}

	for i, l := range []*FileLogger{first, second} {
		results, _ := l.Query(Filter{})
		if len(results) != 1 {
			t.Errorf("backend %d holds %d events, want 1", i, len(results))
		}
	}

	results, err := m.Query(Filter{})
	if err != nil || len(results) != 1 {
		t.Errorf("Query() = %d events, %v", len(results), err)
	}

	if err := (MultiLogger{}).Close(); err != nil {
		t.Errorf("empty Close() = %v", err)
	}
	if err := m.Close(); err == nil || !strings.Contains(err.Error(), "redis down") {
		t.Errorf("Close() = %v", err)
	}
}
