// Package inputs reads the device list and command files a run is driven by.
package inputs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Inputs holds everything read from disk before the first connection.
// ConfigPath and ShowPath are empty when the corresponding file was not given.
type Inputs struct {
	Devices      []string
	ConfigPath   string // absolute
	ConfigLines  []string
	ShowPath     string
	ShowCommands []string
}

// HasConfig reports whether a configuration file was supplied.
func (in *Inputs) HasConfig() bool { return in.ConfigPath != "" }

// HasShowCommands reports whether a show-commands file was supplied.
func (in *Inputs) HasShowCommands() bool { return in.ShowPath != "" }

// Load reads the device list and whichever command files are named.
// Empty configPath or showPath means the file was not given.
func Load(devicesPath, configPath, showPath string) (*Inputs, error) {
	devices, err := ReadLines(devicesPath)
	if err != nil {
		return nil, fmt.Errorf("reading devices: %w", err)
	}

	in := &Inputs{Devices: devices}

	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", configPath, err)
		}
		lines, err := ReadLines(abs)
		if err != nil {
			return nil, fmt.Errorf("reading configs: %w", err)
		}
		in.ConfigPath = abs
		in.ConfigLines = lines
	}

	if showPath != "" {
		cmds, err := ReadLines(showPath)
		if err != nil {
			return nil, fmt.Errorf("reading show commands: %w", err)
		}
		in.ShowPath = showPath
		in.ShowCommands = cmds
	}

	return in, nil
}

// ReadLines returns the lines of a file after trimming surrounding whitespace
// from the whole content. Each line loses trailing whitespace (and any \r);
// interior blank lines are kept. An empty file yields no lines.
func ReadLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return SplitLines(string(data)), nil
}

// SplitLines applies the ReadLines trimming rules to in-memory content.
func SplitLines(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return []string{}
	}
	raw := strings.Split(content, "\n")
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	return lines
}
