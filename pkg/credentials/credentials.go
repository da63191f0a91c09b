// Package credentials obtains the single username and password used for
// every device of a run.
package credentials

import (
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/newtron-network/cfgpush/pkg/device"
	"github.com/newtron-network/cfgpush/pkg/util"
)

// Environment overrides for unattended runs.
const (
	EnvPassword     = "CFGPUSH_PASSWORD"
	EnvEnableSecret = "CFGPUSH_ENABLE_SECRET"
)

// LineReader is the operator input used for prompting.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	ReadSecret(prompt string) (string, error)
}

// Provider collects credentials once per run.
type Provider struct {
	Input LineReader

	// Username skips the username prompt when set.
	Username string

	// Getenv and CurrentUser default to os.Getenv and the OS account name.
	Getenv      func(string) string
	CurrentUser func() (string, error)
}

// Get prompts for whatever was not supplied. The enable secret equals the
// password unless CFGPUSH_ENABLE_SECRET is set.
func (p *Provider) Get() (device.Credentials, error) {
	getenv := p.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	var creds device.Credentials
	var err error

	creds.Username = p.Username
	if creds.Username == "" {
		if creds.Username, err = p.askUsername(); err != nil {
			return device.Credentials{}, err
		}
	}

	creds.Password = getenv(EnvPassword)
	if creds.Password == "" {
		if creds.Password, err = p.Input.ReadSecret("Password: "); err != nil {
			return device.Credentials{}, fmt.Errorf("reading password: %w", err)
		}
	} else {
		util.Debugf("password taken from %s", EnvPassword)
	}
	creds.Secret = getenv(EnvEnableSecret)

	if creds.Password == "" {
		return device.Credentials{}, util.NewUsageError("empty password")
	}
	return creds, nil
}

func (p *Provider) askUsername() (string, error) {
	def, err := p.osUser()
	if err != nil {
		util.Debugf("looking up OS user: %v", err)
	}

	prompt := "Username: "
	if def != "" {
		prompt = fmt.Sprintf("Username [%s]: ", def)
	}
	answer, err := p.Input.ReadLine(prompt)
	if err != nil {
		return "", fmt.Errorf("reading username: %w", err)
	}
	if answer = strings.TrimSpace(answer); answer != "" {
		return answer, nil
	}
	if def == "" {
		return "", util.NewUsageError("no username given")
	}
	return def, nil
}

func (p *Provider) osUser() (string, error) {
	if p.CurrentUser != nil {
		return p.CurrentUser()
	}
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	// Windows accounts come back as DOMAIN\name.
	name := u.Username
	if i := strings.LastIndexByte(name, '\\'); i >= 0 {
		name = name[i+1:]
	}
	return name, nil
}
