package device

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/cfgpush/pkg/util"
)

// DefaultPlatform is used when no --platform is given.
const DefaultPlatform = "cisco_ios"

// Platform describes the CLI conventions of one network OS.
type Platform struct {
	Name string `yaml:"name"`

	// PromptPattern matches the last line of output when the device is
	// waiting for input.
	PromptPattern string `yaml:"prompt_pattern"`

	// PrivilegedSuffix is the prompt suffix that marks privileged mode.
	PrivilegedSuffix string `yaml:"privileged_suffix"`

	// SetupCommands run once after login (paging, width).
	SetupCommands []string `yaml:"setup_commands,omitempty"`

	// EnableCommand elevates privilege. Empty means login is already privileged.
	EnableCommand   string `yaml:"enable_command,omitempty"`
	PasswordPattern string `yaml:"password_pattern,omitempty"`

	ConfigEnter string `yaml:"config_enter"`
	ConfigExit  string `yaml:"config_exit"`

	// SaveCommand persists the running configuration.
	SaveCommand string `yaml:"save_command"`

	prompt   *regexp.Regexp
	password *regexp.Regexp
}

// Validate checks required fields and compiles the patterns.
func (p *Platform) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(p.Name != "", "platform name is required")
	v.Add(p.PromptPattern != "", fmt.Sprintf("platform %q: prompt_pattern is required", p.Name))
	v.Add(p.PrivilegedSuffix != "", fmt.Sprintf("platform %q: privileged_suffix is required", p.Name))
	v.Add(p.ConfigEnter != "" && p.ConfigExit != "", fmt.Sprintf("platform %q: config_enter and config_exit are required", p.Name))
	v.Add(p.SaveCommand != "", fmt.Sprintf("platform %q: save_command is required", p.Name))

	if p.PromptPattern != "" {
		re, err := regexp.Compile(p.PromptPattern)
		if err != nil {
			v.AddErrorf("platform %q: prompt_pattern: %v", p.Name, err)
		}
		p.prompt = re
	}
	if p.EnableCommand != "" {
		pattern := p.PasswordPattern
		if pattern == "" {
			pattern = `(?i)password:\s*$`
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			v.AddErrorf("platform %q: password_pattern: %v", p.Name, err)
		}
		p.password = re
	}
	return v.Build()
}

// IsPrompt reports whether line looks like a CLI prompt.
func (p *Platform) IsPrompt(line string) bool {
	return p.prompt != nil && p.prompt.MatchString(line)
}

// IsPasswordPrompt reports whether line asks for the enable secret.
func (p *Platform) IsPasswordPrompt(line string) bool {
	return p.password != nil && p.password.MatchString(line)
}

// IsPrivileged reports whether prompt is a privileged-mode prompt.
func (p *Platform) IsPrivileged(prompt string) bool {
	return strings.HasSuffix(strings.TrimSpace(prompt), p.PrivilegedSuffix)
}

// Hostname, optional mode in parentheses, then > or #. Progress bars such as
// "[#####" do not match.
const iosPrompt = `^[\w.\-/:@]+(\([\w.\-/:@]+\))?[>#]\s*$`

func builtinPlatforms() []*Platform {
	return []*Platform{
		{
			Name:             "cisco_ios",
			PromptPattern:    iosPrompt,
			PrivilegedSuffix: "#",
			SetupCommands:    []string{"terminal length 0", "terminal width 511"},
			EnableCommand:    "enable",
			ConfigEnter:      "configure terminal",
			ConfigExit:       "end",
			SaveCommand:      "write memory",
		},
		{
			Name:             "cisco_nxos",
			PromptPattern:    iosPrompt,
			PrivilegedSuffix: "#",
			SetupCommands:    []string{"terminal length 0", "terminal width 511"},
			ConfigEnter:      "configure terminal",
			ConfigExit:       "end",
			SaveCommand:      "copy running-config startup-config",
		},
		{
			Name:             "arista_eos",
			PromptPattern:    iosPrompt,
			PrivilegedSuffix: "#",
			SetupCommands:    []string{"terminal length 0", "terminal width 32767"},
			EnableCommand:    "enable",
			ConfigEnter:      "configure terminal",
			ConfigExit:       "end",
			SaveCommand:      "write memory",
		},
	}
}

// Platforms is a registry of platform profiles keyed by name.
type Platforms map[string]*Platform

// BuiltinPlatforms returns the profiles compiled into the binary.
func BuiltinPlatforms() Platforms {
	reg := Platforms{}
	for _, p := range builtinPlatforms() {
		if err := p.Validate(); err != nil {
			panic(err)
		}
		reg[p.Name] = p
	}
	return reg
}

type platformFile struct {
	Platforms []*Platform `yaml:"platforms"`
}

// LoadPlatformFile returns the built-in profiles plus those defined in the
// YAML file at path. File entries replace built-ins of the same name.
//
//	platforms:
//	  - name: cisco_asa
//	    prompt_pattern: '^\S+[>#]\s*$'
//	    privileged_suffix: '#'
//	    setup_commands: ["terminal pager 0"]
//	    enable_command: enable
//	    config_enter: configure terminal
//	    config_exit: end
//	    save_command: write memory
func LoadPlatformFile(path string) (Platforms, error) {
	reg := BuiltinPlatforms()
	if path == "" {
		return reg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading platform file: %w", err)
	}

	var pf platformFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing platform file %s: %w", path, err)
	}

	for _, p := range pf.Platforms {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		reg[p.Name] = p
	}
	return reg, nil
}

// Lookup returns the named profile.
func (r Platforms) Lookup(name string) (*Platform, error) {
	if name == "" {
		name = DefaultPlatform
	}
	p, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("%w: platform %q (known: %s)", util.ErrNotFound, name, strings.Join(r.Names(), ", "))
	}
	return p, nil
}

// Names returns the registered profile names, sorted.
func (r Platforms) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
