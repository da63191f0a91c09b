package device

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/newtron-network/cfgpush/pkg/util"
)

// loginSettle is how long the stream must stay quiet after the first prompt
// before setup commands are sent.
var loginSettle = 250 * time.Millisecond

// cliSession drives an interactive CLI over any reader/writer pair. The SSH
// transport supplies the PTY streams; tests supply pipes.
type cliSession struct {
	host     string
	platform *Platform
	secret   string
	vty      *vty
	prompt   string // most recent prompt seen

	closeOnce sync.Once
	closeErr  error
	closer    func() error
}

func newCLISession(host string, platform *Platform, secret string, r io.Reader, w io.Writer, timeout time.Duration, closer func() error) *cliSession {
	return &cliSession{
		host:     host,
		platform: platform,
		secret:   secret,
		vty:      newVTY(r, w, timeout),
		closer:   closer,
	}
}

// start waits for the login prompt and runs the platform setup commands.
func (s *cliSession) start(ctx context.Context) error {
	if err := s.vty.writeLine(""); err != nil {
		return err
	}
	raw, err := s.vty.readUntil(ctx, s.promptAfter(""))
	if err != nil {
		return fmt.Errorf("waiting for login prompt: %w", err)
	}
	_, s.prompt = splitResponse(raw, "")
	if extra := lastLine(s.vty.drain(ctx, loginSettle)); s.platform.IsPrompt(extra) {
		s.prompt = strings.TrimSpace(extra)
	}
	util.WithHost(s.host).Debugf("login prompt %q", s.prompt)

	for _, cmd := range s.platform.SetupCommands {
		if _, err := s.exec(ctx, cmd); err != nil {
			return fmt.Errorf("setup %q: %w", cmd, err)
		}
	}
	return nil
}

// exec sends one line and waits for the next prompt.
func (s *cliSession) exec(ctx context.Context, cmd string) (string, error) {
	if err := s.vty.writeLine(cmd); err != nil {
		return "", err
	}
	raw, err := s.vty.readUntil(ctx, s.promptAfter(cmd))
	if err != nil {
		return normalize(raw), fmt.Errorf("%q: %w", cmd, err)
	}
	body, prompt := splitResponse(raw, cmd)
	s.prompt = prompt
	util.WithHost(s.host).Debugf("%q -> %d bytes, prompt %q", cmd, len(body), prompt)
	return body, nil
}

// promptAfter matches output that ends in a prompt following the echo of
// cmd. Requiring the echo keeps a stale prompt already in flight from being
// taken as the end of this command's output.
func (s *cliSession) promptAfter(cmd string) func(string) bool {
	return func(out string) bool {
		tail, ok := afterEcho(out, cmd)
		return ok && s.platform.IsPrompt(lastLine(tail))
	}
}

func (s *cliSession) promptOrPasswordAfter(cmd string) func(string) bool {
	return func(out string) bool {
		tail, ok := afterEcho(out, cmd)
		if !ok {
			return false
		}
		line := lastLine(tail)
		return s.platform.IsPrompt(line) || s.platform.IsPasswordPrompt(line)
	}
}

func afterEcho(out, cmd string) (string, bool) {
	echo := strings.TrimSpace(cmd)
	if echo == "" {
		return out, true
	}
	i := strings.Index(out, echo)
	if i < 0 {
		return "", false
	}
	return out[i+len(echo):], true
}

func (s *cliSession) Enable(ctx context.Context) error {
	if s.platform.EnableCommand == "" || s.platform.IsPrivileged(s.prompt) {
		return nil
	}

	if err := s.vty.writeLine(s.platform.EnableCommand); err != nil {
		return err
	}
	raw, err := s.vty.readUntil(ctx, s.promptOrPasswordAfter(s.platform.EnableCommand))
	if err != nil {
		return fmt.Errorf("%q: %w", s.platform.EnableCommand, err)
	}

	if s.platform.IsPasswordPrompt(lastLine(raw)) {
		if err := s.vty.writeLine(s.secret); err != nil {
			return err
		}
		raw, err = s.vty.readUntil(ctx, s.promptOrPasswordAfter(""))
		if err != nil {
			return fmt.Errorf("sending enable secret: %w", err)
		}
		if s.platform.IsPasswordPrompt(lastLine(raw)) {
			// Rejected secret: the device asks again. Break out of the prompt.
			_ = s.vty.writeLine("")
			return fmt.Errorf("%w: enable secret rejected", ErrEnableRejected)
		}
	}

	_, s.prompt = splitResponse(raw, s.platform.EnableCommand)
	if !s.platform.IsPrivileged(s.prompt) {
		return fmt.Errorf("%w: prompt is %q", ErrEnableRejected, s.prompt)
	}
	return nil
}

func (s *cliSession) SendCommand(ctx context.Context, cmd string) (string, error) {
	return s.exec(ctx, cmd)
}

func (s *cliSession) SendConfigSet(ctx context.Context, lines []string) (string, error) {
	var transcript strings.Builder

	run := func(cmd string) error {
		transcript.WriteString(s.prompt + cmd + "\n")
		out, err := s.exec(ctx, cmd)
		if out != "" {
			transcript.WriteString(out + "\n")
		}
		return err
	}

	if err := run(s.platform.ConfigEnter); err != nil {
		return transcript.String(), err
	}
	for _, line := range lines {
		if err := run(line); err != nil {
			return transcript.String(), err
		}
	}
	if err := run(s.platform.ConfigExit); err != nil {
		return transcript.String(), err
	}
	transcript.WriteString(s.prompt)
	return transcript.String(), nil
}

func (s *cliSession) Close() error {
	s.closeOnce.Do(func() {
		s.vty.close()
		if s.closer != nil {
			s.closeErr = s.closer()
		}
	})
	return s.closeErr
}
