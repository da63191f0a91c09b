package credentials

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/newtron-network/cfgpush/pkg/cli"
	"github.com/newtron-network/cfgpush/pkg/util"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func osUser(name string) func() (string, error) {
	return func() (string, error) { return name, nil }
}

func TestProvider_Get(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		username   string
		env        map[string]string
		wantUser   string
		wantPass   string
		wantSecret string
		wantErr    error
	}{
		{
			name:     "defaults to OS user",
			input:    "\ns3cret\n",
			wantUser: "jdoe",
			wantPass: "s3cret",
		},
		{
			name:     "typed username",
			input:    " netops \ns3cret\n",
			wantUser: "netops",
			wantPass: "s3cret",
		},
		{
			name:     "flag username skips prompt",
			input:    "s3cret\n",
			username: "admin",
			wantUser: "admin",
			wantPass: "s3cret",
		},
		{
			name:       "environment",
			input:      "",
			username:   "admin",
			env:        map[string]string{EnvPassword: "pw", EnvEnableSecret: "en"},
			wantUser:   "admin",
			wantPass:   "pw",
			wantSecret: "en",
		},
		{
			name:    "empty password",
			input:   "\n\n",
			wantErr: util.ErrUsage,
		},
		{
			name:    "stdin closed",
			input:   "",
			wantErr: io.EOF,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Provider{
				Input:       cli.NewPrompter(strings.NewReader(tt.input), io.Discard),
				Username:    tt.username,
				Getenv:      env(tt.env),
				CurrentUser: osUser("jdoe"),
			}
			creds, err := p.Get()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Get() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if creds.Username != tt.wantUser || creds.Password != tt.wantPass || creds.Secret != tt.wantSecret {
				t.Errorf("Get() = %q/%q/%q", creds.Username, creds.Password, creds.Secret)
			}
		})
	}
}

func TestProvider_PromptShowsDefault(t *testing.T) {
	var out strings.Builder
	p := &Provider{
		Input:       cli.NewPrompter(strings.NewReader("\npw\n"), &out),
		Getenv:      env(nil),
		CurrentUser: osUser("jdoe"),
	}
	if _, err := p.Get(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Username [jdoe]: ") || !strings.Contains(out.String(), "Password: ") {
		t.Errorf("prompts = %q", out.String())
	}
}

func TestProvider_NoUsernameAvailable(t *testing.T) {
	p := &Provider{
		Input:       cli.NewPrompter(strings.NewReader("\n"), io.Discard),
		Getenv:      env(nil),
		CurrentUser: func() (string, error) { return "", errors.New("unknown userid") },
	}
	if _, err := p.Get(); !errors.Is(err, util.ErrUsage) {
		t.Errorf("Get() error = %v, want usage error", err)
	}
}
