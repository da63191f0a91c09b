package bulk

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/cfgpush/pkg/device"
)

// Outcome is the result of processing one device.
type Outcome int

const (
	Succeeded Outcome = iota
	ConnectFailed
	AuthFailed
	TransportFailed
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case ConnectFailed:
		return "connect-failed"
	case AuthFailed:
		return "auth-failed"
	case TransportFailed:
		return "transport-failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

func (o Outcome) MarshalYAML() (interface{}, error) {
	return o.String(), nil
}

// outcomeOf maps a device error to its outcome. Untyped errors count as
// transport failures.
func outcomeOf(err error) Outcome {
	if err == nil {
		return Succeeded
	}
	var se *device.SessionError
	if !errors.As(err, &se) {
		return TransportFailed
	}
	switch se.Kind {
	case device.KindConnect:
		return ConnectFailed
	case device.KindAuth:
		return AuthFailed
	default:
		return TransportFailed
	}
}

// SaveState records whether the running configuration was persisted.
type SaveState int

const (
	SaveNotAttempted SaveState = iota
	Saved
	SaveDeclined
)

func (s SaveState) String() string {
	switch s {
	case SaveNotAttempted:
		return "not-attempted"
	case Saved:
		return "saved"
	case SaveDeclined:
		return "declined"
	default:
		return fmt.Sprintf("SaveState(%d)", int(s))
	}
}

func (s SaveState) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// Result is the record of one device.
type Result struct {
	Host     string        `yaml:"host"`
	Outcome  Outcome       `yaml:"outcome"`
	Save     SaveState     `yaml:"save"`
	Error    string        `yaml:"error,omitempty"`
	Duration time.Duration `yaml:"duration"`

	Err error `yaml:"-"`
}

// Report collects the results of one run, in device order.
type Report struct {
	RunID      string    `yaml:"run_id"`
	Operation  string    `yaml:"operation"`
	ConfigFile string    `yaml:"config_file,omitempty"`
	Started    time.Time `yaml:"started"`
	Finished   time.Time `yaml:"finished"`
	Results    []Result  `yaml:"results"`
}

// Count returns the number of devices with the given outcome.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Failed returns the number of devices that did not succeed.
func (r *Report) Failed() int {
	return len(r.Results) - r.Count(Succeeded)
}

// SavedCount returns the number of devices whose configuration was persisted.
func (r *Report) SavedCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Save == Saved {
			n++
		}
	}
	return n
}

// WriteYAML writes the report to path.
func (r *Report) WriteYAML(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
