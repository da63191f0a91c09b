package bulk

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/newtron-network/cfgpush/pkg/audit"
	"github.com/newtron-network/cfgpush/pkg/device"
	"github.com/newtron-network/cfgpush/pkg/util"
)

// Separator is printed before each device.
var Separator = strings.Repeat("-", 79)

// Confirmer asks the operator a yes/no question. An error counts as "no".
type Confirmer interface {
	Confirm(question string) (bool, error)
}

// Recorder appends one record to the run log. It never fails.
type Recorder interface {
	Record(msg string)
}

// Orchestrator runs a Plan against a list of devices, strictly one device at
// a time. Only Transport is required.
type Orchestrator struct {
	Transport device.Transport
	Confirmer Confirmer
	Recorder  Recorder
	Audit     audit.Logger
	Out       io.Writer // operator console, defaults to stdout
	User      string    // recorded in audit events
}

type discardRecorder struct{}

func (discardRecorder) Record(string) {}

type declineAll struct{}

func (declineAll) Confirm(string) (bool, error) { return false, nil }

func (o *Orchestrator) defaults() {
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.Recorder == nil {
		o.Recorder = discardRecorder{}
	}
	if o.Confirmer == nil {
		o.Confirmer = declineAll{}
	}
	if o.Audit == nil {
		o.Audit = audit.Discard{}
	}
}

// Run processes every device in order. A device that cannot be reached or
// fails mid-session is reported and skipped; it never stops the batch. When
// ctx is cancelled the loop stops before the next device and the partial
// report is returned with ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, devices []string, plan Plan, creds device.Credentials) (*Report, error) {
	if plan.Empty() {
		return nil, ErrNothingToDo
	}
	o.defaults()

	report := &Report{
		RunID:     uuid.NewString(),
		Operation: plan.Operation(),
		Started:   time.Now(),
	}
	if plan.Batch != nil {
		report.ConfigFile = plan.Batch.Source
	}
	util.WithFields(map[string]interface{}{
		"run":     report.RunID,
		"devices": len(devices),
		"op":      report.Operation,
	}).Debug("starting run")

	for _, host := range devices {
		if err := ctx.Err(); err != nil {
			report.Finished = time.Now()
			return report, err
		}
		res := o.runDevice(ctx, host, plan, creds)
		report.Results = append(report.Results, res)
		o.audit(report, plan, res)
	}
	report.Finished = time.Now()

	if err := ctx.Err(); err != nil {
		return report, err
	}

	if n := report.Failed(); n > 0 {
		return report, fmt.Errorf("%w: %d of %d", ErrDevicesFailed, n, len(report.Results))
	}
	return report, nil
}

func (o *Orchestrator) runDevice(ctx context.Context, host string, plan Plan, creds device.Credentials) (res Result) {
	start := time.Now()
	res.Host = host
	defer func() { res.Duration = time.Since(start) }()

	fmt.Fprintln(o.Out, Separator)
	fmt.Fprintf(o.Out, "Connecting to %s...\n", host)

	sess, err := o.Transport.Open(ctx, host, creds)
	if err != nil {
		o.fail(&res, device.NewSessionError(host, device.KindConnect, err))
		return res
	}
	defer func() {
		if err := sess.Close(); err != nil {
			util.WithHost(host).Debugf("closing session: %v", err)
		}
	}()

	w := &workflow{
		host:    host,
		plan:    plan,
		sess:    sess,
		out:     o.Out,
		rec:     o.Recorder,
		confirm: o.Confirmer,
	}
	res.Save, err = w.run(ctx)
	if err != nil {
		o.fail(&res, device.NewSessionError(host, device.KindTransport, err))
	}
	return res
}

func (o *Orchestrator) fail(res *Result, err *device.SessionError) {
	res.Outcome = outcomeOf(err)
	res.Err = err
	res.Error = err.Error()

	var msg string
	if err.Kind == device.KindTransport {
		msg = "Session failed: " + err.Error()
	} else {
		msg = "Failed to connect: " + err.Error()
	}
	fmt.Fprintln(o.Out, msg)
	o.Recorder.Record(msg)
}

func (o *Orchestrator) audit(report *Report, plan Plan, res Result) {
	event := audit.NewEvent(o.User, res.Host, report.Operation).
		WithRun(report.RunID).
		WithConfigFile(report.ConfigFile).
		WithOutcome(res.Outcome.String()).
		WithSaved(res.Save == Saved).
		WithDuration(res.Duration)
	if plan.Verification != nil {
		event.WithCommands(len(plan.Verification.Commands))
	}
	if res.Err != nil {
		event.WithError(res.Err)
	} else {
		event.WithSuccess()
	}
	if err := o.Audit.Log(event); err != nil {
		util.WithHost(res.Host).Warnf("audit: %v", err)
	}
}
