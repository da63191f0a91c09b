// Package settings manages persistent user settings for cfgpush. Settings
// sit below command-line flags and CFGPUSH_* environment variables.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/newtron-network/cfgpush/pkg/util"
)

// Settings holds persistent user preferences
type Settings struct {
	// Platform is the device profile used when --platform is not given.
	Platform     string `json:"platform,omitempty"`
	PlatformFile string `json:"platform_file,omitempty"`

	Port           int    `json:"port,omitempty"`
	DialTimeout    string `json:"dial_timeout,omitempty"`
	CommandTimeout string `json:"command_timeout,omitempty"`
	KnownHosts     string `json:"known_hosts,omitempty"`
	LegacyCrypto   bool   `json:"legacy_crypto,omitempty"`

	// LogFile overrides the run log path (default output.log).
	LogFile string `json:"log_file,omitempty"`

	// AuditLog overrides ~/.cfgpush/audit.log.
	AuditLog string `json:"audit_log,omitempty"`

	// AuditRedis sends audit events to a Redis stream at this address.
	AuditRedis string `json:"audit_redis,omitempty"`
}

// Dir returns ~/.cfgpush, or the working directory if there is no home.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".cfgpush")
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	return filepath.Join(Dir(), "settings.json")
}

// DefaultAuditLogPath returns where audit events go unless configured.
func DefaultAuditLogPath() string {
	return filepath.Join(Dir(), "audit.log")
}

// GetAuditLog returns the audit log path (with fallback)
func (s *Settings) GetAuditLog() string {
	if s.AuditLog != "" {
		return s.AuditLog
	}
	return DefaultAuditLogPath()
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path. A missing file yields
// empty settings.
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}

// field maps a settings key, named after its command-line flag, to the
// struct member behind it.
type field struct {
	get func(*Settings) string
	set func(*Settings, string) error
}

func stringField(p func(*Settings) *string) field {
	return field{
		get: func(s *Settings) string { return *p(s) },
		set: func(s *Settings, v string) error {
			*p(s) = v
			return nil
		},
	}
}

func durationField(p func(*Settings) *string) field {
	return field{
		get: func(s *Settings) string { return *p(s) },
		set: func(s *Settings, v string) error {
			if v != "" {
				if d, err := time.ParseDuration(v); err != nil || d <= 0 {
					return fmt.Errorf("%w: %q is not a positive duration", util.ErrInvalidConfig, v)
				}
			}
			*p(s) = v
			return nil
		},
	}
}

var fields = map[string]field{
	"platform":        stringField(func(s *Settings) *string { return &s.Platform }),
	"platform-file":   stringField(func(s *Settings) *string { return &s.PlatformFile }),
	"dial-timeout":    durationField(func(s *Settings) *string { return &s.DialTimeout }),
	"command-timeout": durationField(func(s *Settings) *string { return &s.CommandTimeout }),
	"known-hosts":     stringField(func(s *Settings) *string { return &s.KnownHosts }),
	"log-file":        stringField(func(s *Settings) *string { return &s.LogFile }),
	"audit-log":       stringField(func(s *Settings) *string { return &s.AuditLog }),
	"audit-redis":     stringField(func(s *Settings) *string { return &s.AuditRedis }),
	"port": {
		get: func(s *Settings) string {
			if s.Port == 0 {
				return ""
			}
			return strconv.Itoa(s.Port)
		},
		set: func(s *Settings, v string) error {
			if v == "" {
				s.Port = 0
				return nil
			}
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 65535 {
				return fmt.Errorf("%w: port %q", util.ErrInvalidConfig, v)
			}
			s.Port = n
			return nil
		},
	},
	"legacy-crypto": {
		get: func(s *Settings) string {
			if !s.LegacyCrypto {
				return ""
			}
			return "true"
		},
		set: func(s *Settings, v string) error {
			if v == "" {
				s.LegacyCrypto = false
				return nil
			}
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: legacy-crypto %q", util.ErrInvalidConfig, v)
			}
			s.LegacyCrypto = b
			return nil
		},
	},
}

// Keys returns the settable keys, sorted.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value of key, empty when unset.
func (s *Settings) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: setting %q", util.ErrNotFound, key)
	}
	return f.get(s), nil
}

// Set validates and stores value under key. An empty value unsets it.
func (s *Settings) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("%w: setting %q", util.ErrNotFound, key)
	}
	return f.set(s, value)
}

// Values returns every key that has a value.
func (s *Settings) Values() map[string]string {
	out := map[string]string{}
	for k, f := range fields {
		if v := f.get(s); v != "" {
			out[k] = v
		}
	}
	return out
}
