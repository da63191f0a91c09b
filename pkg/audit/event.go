// Package audit records one event per device processed by a run, to a
// rotating JSON-lines file or a Redis stream.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event is the audit record of one device in one run.
type Event struct {
	ID         string        `json:"id"`
	RunID      string        `json:"run_id,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	User       string        `json:"user"`
	Device     string        `json:"device"`
	Operation  string        `json:"operation"`
	ConfigFile string        `json:"config_file,omitempty"`
	Commands   int           `json:"commands,omitempty"`
	Outcome    string        `json:"outcome,omitempty"`
	Saved      bool          `json:"saved"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Operations recorded by cfgpush.
const (
	OpConfigure       = "configure"
	OpVerify          = "verify"
	OpConfigureVerify = "configure+verify"
)

// Filter defines criteria for querying audit events
type Filter struct {
	Device      string
	User        string
	Operation   string
	RunID       string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event
func NewEvent(user, device, operation string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		User:      user,
		Device:    device,
		Operation: operation,
	}
}

// WithRun ties the event to one invocation.
func (e *Event) WithRun(runID string) *Event {
	e.RunID = runID
	return e
}

// WithConfigFile records the configuration file that was pushed.
func (e *Event) WithConfigFile(path string) *Event {
	e.ConfigFile = path
	return e
}

// WithCommands records how many verification commands ran.
func (e *Event) WithCommands(n int) *Event {
	e.Commands = n
	return e
}

// WithOutcome sets the device outcome label.
func (e *Event) WithOutcome(outcome string) *Event {
	e.Outcome = outcome
	return e
}

// WithSaved records whether the running configuration was persisted.
func (e *Event) WithSaved(saved bool) *Event {
	e.Saved = saved
	return e
}

// WithSuccess marks the event as successful
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event as failed
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

// Matches reports whether e satisfies every criterion of f. Limit and
// Offset are applied by the caller.
func (f Filter) Matches(e *Event) bool {
	if f.Device != "" && e.Device != f.Device {
		return false
	}
	if f.User != "" && e.User != f.User {
		return false
	}
	if f.Operation != "" && e.Operation != f.Operation {
		return false
	}
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	if f.SuccessOnly && !e.Success {
		return false
	}
	if f.FailureOnly && e.Success {
		return false
	}
	return true
}

// page applies Offset and Limit.
func (f Filter) page(events []*Event) []*Event {
	if f.Offset > 0 {
		if f.Offset >= len(events) {
			return []*Event{}
		}
		events = events[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(events) {
		events = events[:f.Limit]
	}
	return events
}
