// Package device provides the remote command session used to drive network
// devices: an SSH connection with an interactive PTY shell, prompt detection,
// privilege elevation and configuration mode handling per platform profile.
package device

import (
	"context"
	"errors"
	"fmt"
)

// Credentials are shared by every device of a run. Secret is the privilege
// elevation password and normally equals Password.
type Credentials struct {
	Username string
	Password string
	Secret   string
}

// String never includes the password or secret.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username: %q}", c.Username)
}

// EnableSecret returns Secret, falling back to Password.
func (c Credentials) EnableSecret() string {
	if c.Secret != "" {
		return c.Secret
	}
	return c.Password
}

// Session is an authenticated command channel to one device.
type Session interface {
	// Enable enters privileged mode. It is a no-op when already privileged.
	Enable(ctx context.Context) error

	// SendCommand runs one command and returns its output without the
	// echoed command line or the trailing prompt.
	SendCommand(ctx context.Context, cmd string) (string, error)

	// SendConfigSet applies lines as one unit inside configuration mode and
	// returns the session transcript.
	SendConfigSet(ctx context.Context, lines []string) (string, error)

	// Close releases the session. Safe to call more than once.
	Close() error
}

// Transport opens sessions. Open returns a *SessionError on failure.
type Transport interface {
	Open(ctx context.Context, host string, creds Credentials) (Session, error)
}

// ErrorKind distinguishes why a device could not be processed.
type ErrorKind int

const (
	// KindConnect: the device could not be reached (refused, timeout, DNS).
	KindConnect ErrorKind = iota
	// KindAuth: the device rejected the credentials.
	KindAuth
	// KindTransport: the session was authenticated and then failed.
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindAuth:
		return "auth"
	case KindTransport:
		return "transport"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Sentinel errors, one per ErrorKind, matched with errors.Is.
var (
	ErrConnectFailed   = errors.New("connection failed")
	ErrAuthFailed      = errors.New("authentication failed")
	ErrTransportFailed = errors.New("session failed")

	ErrCommandTimeout = errors.New("timed out waiting for device prompt")
	ErrEnableRejected = errors.New("privileged mode not reached")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindAuth:
		return ErrAuthFailed
	case KindTransport:
		return ErrTransportFailed
	default:
		return ErrConnectFailed
	}
}

// SessionError is the typed failure of one device. It unwraps to both the
// kind sentinel and the underlying cause.
type SessionError struct {
	Host string
	Kind ErrorKind
	Err  error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Host, e.Err)
}

func (e *SessionError) Unwrap() []error {
	return []error{e.Kind.sentinel(), e.Err}
}

// NewSessionError wraps err for host. An err that already is a *SessionError
// is returned unchanged so the first classification wins.
func NewSessionError(host string, kind ErrorKind, err error) *SessionError {
	var se *SessionError
	if errors.As(err, &se) {
		return se
	}
	return &SessionError{Host: host, Kind: kind, Err: err}
}
