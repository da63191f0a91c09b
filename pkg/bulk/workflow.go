package bulk

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/newtron-network/cfgpush/pkg/device"
	"github.com/newtron-network/cfgpush/pkg/util"
)

// SaveQuestion is asked after verification when configuration was pushed.
const SaveQuestion = "Check the output, OK to save? (y/n)"

type state int

const (
	stateStart state = iota
	stateConfiguring
	stateDirectSave
	stateVerifying
	stateConfirm
	stateDone
)

func (s state) String() string {
	return [...]string{"start", "configuring", "direct-save", "verifying", "confirm", "done"}[s]
}

// workflow drives one open session through the plan. Errors from the
// session are returned as-is; the orchestrator classifies them.
type workflow struct {
	host    string
	plan    Plan
	sess    device.Session
	out     io.Writer
	rec     Recorder
	confirm Confirmer

	save SaveState
}

func (w *workflow) run(ctx context.Context) (SaveState, error) {
	log := util.WithHost(w.host)
	for st := stateStart; st != stateDone; {
		next, err := w.step(ctx, st)
		if err != nil {
			log.Debugf("%s failed: %v", st, err)
			return w.save, err
		}
		log.Debugf("%s -> %s", st, next)
		st = next
	}
	return w.save, nil
}

func (w *workflow) step(ctx context.Context, st state) (state, error) {
	switch st {
	case stateStart:
		if w.plan.Batch != nil {
			return stateConfiguring, nil
		}
		return stateVerifying, nil
	case stateConfiguring:
		return w.configure(ctx)
	case stateDirectSave:
		return w.directSave(ctx)
	case stateVerifying:
		return w.verify(ctx)
	case stateConfirm:
		return w.confirmSave(ctx)
	default:
		return stateDone, nil
	}
}

func (w *workflow) configure(ctx context.Context) (state, error) {
	if err := w.sess.Enable(ctx); err != nil {
		return stateDone, err
	}
	fmt.Fprintln(w.out, "Sending commands...")
	transcript, err := w.sess.SendConfigSet(ctx, w.plan.Batch.Lines)
	if err != nil {
		return stateDone, err
	}
	util.WithHost(w.host).Debugf("config transcript:\n%s", transcript)
	w.rec.Record("Sending commands from " + w.plan.Batch.Source)

	if w.plan.Verification != nil {
		return stateVerifying, nil
	}
	return stateDirectSave, nil
}

func (w *workflow) directSave(ctx context.Context) (state, error) {
	if err := w.persist(ctx); err != nil {
		return stateDone, err
	}
	msg := "Commands sent and saved to startup-config on " + w.host
	fmt.Fprintln(w.out, msg)
	w.rec.Record(msg)
	return stateDone, nil
}

func (w *workflow) verify(ctx context.Context) (state, error) {
	if w.plan.Verification == nil {
		return stateDone, nil
	}
	if err := w.sess.Enable(ctx); err != nil {
		return stateDone, err
	}
	for _, cmd := range w.plan.Verification.Commands {
		output, err := w.sess.SendCommand(ctx, cmd)
		if err != nil {
			return stateDone, err
		}
		banner := Banner(cmd)
		fmt.Fprintln(w.out, banner+output)
		w.rec.Record(fmt.Sprintf("%s %s %s", w.host, banner, output))
	}

	// Verification-only runs never persist.
	if w.plan.Batch != nil {
		return stateConfirm, nil
	}
	return stateDone, nil
}

func (w *workflow) confirmSave(ctx context.Context) (state, error) {
	ok, err := w.confirm.Confirm(SaveQuestion)
	if err != nil {
		util.WithHost(w.host).Warnf("reading confirmation: %v", err)
	}
	if !ok {
		w.save = SaveDeclined
		fmt.Fprintln(w.out, "Configuration was NOT saved, back out changes manually (or reload)")
		w.rec.Record("Configuration was NOT saved on " + w.host)
		return stateDone, nil
	}

	if err := w.persist(ctx); err != nil {
		return stateDone, err
	}
	fmt.Fprintln(w.out, "Configuration saved")
	w.rec.Record("Configuration saved on " + w.host)
	return stateDone, nil
}

func (w *workflow) persist(ctx context.Context) error {
	out, err := w.sess.SendCommand(ctx, w.plan.saveCommand())
	if err != nil {
		return err
	}
	util.WithHost(w.host).Debugf("%s: %s", w.plan.saveCommand(), out)
	w.save = Saved
	return nil
}

// Banner frames a verification command in console and log output.
func Banner(cmd string) string {
	return "\n>>>>>>>>>>> " + strings.ToUpper(cmd) + " <<<<<<<<<<<<\n"
}
