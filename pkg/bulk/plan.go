// Package bulk pushes configuration to and verifies a list of network
// devices, one device at a time, isolating each device's failure from the
// rest of the batch.
package bulk

import (
	"errors"
	"fmt"
	"io"

	"github.com/newtron-network/cfgpush/pkg/audit"
	"github.com/newtron-network/cfgpush/pkg/util"
)

// DefaultSaveCommand persists the running configuration on IOS-like devices.
const DefaultSaveCommand = "write memory"

var (
	// ErrNothingToDo is returned before any connection when a plan has
	// neither a configuration batch nor verification commands.
	ErrNothingToDo = fmt.Errorf("%w: at least one of a configuration file or a show-commands file is required", util.ErrUsage)

	// ErrDevicesFailed is returned by Run when at least one device did not
	// complete. The report is still returned.
	ErrDevicesFailed = errors.New("one or more devices failed")
)

// CommandBatch is a configuration file read once and replayed, unchanged,
// on every device.
type CommandBatch struct {
	Source string // absolute path, recorded in the run log
	Lines  []string
}

// Verification is the ordered list of show commands run on every device.
type Verification struct {
	Commands []string
}

// Plan is what a run does to each device. A nil Batch or Verification means
// that part is absent. A present but empty Verification still counts.
type Plan struct {
	Batch        *CommandBatch
	Verification *Verification
	SaveCommand  string
}

// Empty reports whether the plan has nothing to do.
func (p Plan) Empty() bool {
	return p.Batch == nil && p.Verification == nil
}

func (p Plan) saveCommand() string {
	if p.SaveCommand != "" {
		return p.SaveCommand
	}
	return DefaultSaveCommand
}

// Operation names the plan for the audit trail.
func (p Plan) Operation() string {
	switch {
	case p.Batch != nil && p.Verification != nil:
		return audit.OpConfigureVerify
	case p.Batch != nil:
		return audit.OpConfigure
	default:
		return audit.OpVerify
	}
}

// SaveBehavior describes when the running configuration is persisted.
func (p Plan) SaveBehavior() string {
	switch {
	case p.Batch != nil && p.Verification != nil:
		return "after operator confirmation"
	case p.Batch != nil:
		return "automatically"
	default:
		return "never"
	}
}

// Describe writes a human-readable summary of what a run would do.
func (p Plan) Describe(w io.Writer, devices []string) {
	fmt.Fprintf(w, "Devices (%d):\n", len(devices))
	for _, d := range devices {
		fmt.Fprintf(w, "  %s\n", d)
	}
	if p.Batch != nil {
		fmt.Fprintf(w, "Configuration from %s (%d lines):\n", p.Batch.Source, len(p.Batch.Lines))
		for _, l := range p.Batch.Lines {
			fmt.Fprintf(w, "  %s\n", l)
		}
	}
	if p.Verification != nil {
		fmt.Fprintf(w, "Show commands (%d):\n", len(p.Verification.Commands))
		for _, c := range p.Verification.Commands {
			fmt.Fprintf(w, "  %s\n", c)
		}
	}
	fmt.Fprintf(w, "Save (%s): %s\n", p.saveCommand(), p.SaveBehavior())
}
