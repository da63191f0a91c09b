// Package cli provides console helpers for cfgpush: colors, aligned tables
// and the interactive line prompter.
package cli

import (
	"os"
	"strings"
)

// colorEnabled is false when NO_COLOR env var is set (per no-color.org).
var colorEnabled = os.Getenv("NO_COLOR") == ""

// Green wraps s in ANSI green. Returns s unchanged when NO_COLOR is set.
func Green(s string) string {
	return paint("32", s)
}

// Yellow wraps s in ANSI yellow. Returns s unchanged when NO_COLOR is set.
func Yellow(s string) string {
	return paint("33", s)
}

// Red wraps s in ANSI red. Returns s unchanged when NO_COLOR is set.
func Red(s string) string {
	return paint("31", s)
}

func Bold(s string) string {
	return paint("1", s)
}

func Dim(s string) string {
	return paint("2", s)
}

func paint(code, s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// Status colors a device outcome or save state label: green for success and
// saved, yellow for declined or skipped, red for anything that failed.
func Status(label string) string {
	switch {
	case label == "succeeded" || label == "saved":
		return Green(label)
	case strings.HasSuffix(label, "failed"):
		return Red(label)
	default:
		return Yellow(label)
	}
}

// DotPad pads name with dots to the given width.
// Example: DotPad("platform", 20) → "platform ..........."
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	dots := width - len(name) - 1
	return name + " " + strings.Repeat(".", dots)
}
