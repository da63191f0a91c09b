package device

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// sshDevice is an in-process SSH server whose shell is an iosEmulator.
type sshDevice struct {
	listener net.Listener
	hostKey  ssh.Signer

	mu  sync.Mutex
	emu *iosEmulator
}

func newSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	return signer
}

func startSSHDevice(t *testing.T, user, password string) *sshDevice {
	t.Helper()

	d := &sshDevice{hostKey: newSigner(t)}
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == user && string(pass) == password {
				return nil, nil
			}
			return nil, errors.New("password rejected")
		},
	}
	cfg.AddHostKey(d.hostKey)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	d.listener = l
	t.Cleanup(func() { l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go d.handle(conn, cfg)
		}
	}()
	return d
}

func (d *sshDevice) addr() string { return d.listener.Addr().String() }

func (d *sshDevice) emulator() *iosEmulator {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.emu
}

func (d *sshDevice) handle(conn net.Conn, cfg *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			nc.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		ch, in, err := nc.Accept()
		if err != nil {
			continue
		}

		shell := make(chan struct{})
		go func() {
			for req := range in {
				switch req.Type {
				case "pty-req":
					req.Reply(true, nil)
				case "shell":
					req.Reply(true, nil)
					close(shell)
				default:
					req.Reply(false, nil)
				}
			}
		}()

		go func() {
			<-shell
			e := newIOSEmulator()
			d.mu.Lock()
			d.emu = e
			d.mu.Unlock()
			e.serve(ch, ch)
			ch.Close()
		}()
	}
}

func testTransport(t *testing.T, cfg SSHConfig) *SSHTransport {
	t.Helper()
	if cfg.Platform == nil {
		cfg.Platform = iosPlatform(t)
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 2 * time.Second
	}
	tr, err := NewSSHTransport(cfg)
	if err != nil {
		t.Fatalf("NewSSHTransport() error = %v", err)
	}
	return tr
}

func TestSSHTransport_OpenAndSave(t *testing.T) {
	dev := startSSHDevice(t, "admin", "s3cret")
	tr := testTransport(t, SSHConfig{})
	ctx := context.Background()

	sess, err := tr.Open(ctx, dev.addr(), Credentials{Username: "admin", Password: "s3cret"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer sess.Close()

	if err := sess.Enable(ctx); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if _, err := sess.SendConfigSet(ctx, []string{"ntp server 10.0.0.9"}); err != nil {
		t.Fatalf("SendConfigSet() error = %v", err)
	}
	out, err := sess.SendCommand(ctx, "write memory")
	if err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	if !strings.Contains(out, "[OK]") {
		t.Errorf("write memory output = %q", out)
	}

	seen := strings.Join(dev.emulator().lines(), "|")
	if !strings.Contains(seen, "configure terminal|ntp server 10.0.0.9|end|write memory") {
		t.Errorf("device saw %q", seen)
	}

	if err := sess.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		t.Logf("Close() = %v", err)
	}
	if err := sess.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		t.Logf("second Close() = %v", err)
	}
}

func TestSSHTransport_OpenFailures(t *testing.T) {
	dev := startSSHDevice(t, "admin", "s3cret")

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	closedAddr := closed.Addr().String()
	closed.Close()

	tests := []struct {
		name     string
		host     string
		creds    Credentials
		wantKind ErrorKind
		wantErr  error
	}{
		{
			name:     "wrong password",
			host:     dev.addr(),
			creds:    Credentials{Username: "admin", Password: "nope"},
			wantKind: KindAuth,
			wantErr:  ErrAuthFailed,
		},
		{
			name:     "connection refused",
			host:     closedAddr,
			creds:    Credentials{Username: "admin", Password: "s3cret"},
			wantKind: KindConnect,
			wantErr:  ErrConnectFailed,
		},
	}

	tr := testTransport(t, SSHConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := tr.Open(context.Background(), tt.host, tt.creds)
			if err == nil {
				sess.Close()
				t.Fatal("Open() succeeded, want error")
			}
			var se *SessionError
			if !errors.As(err, &se) {
				t.Fatalf("Open() error type = %T, want *SessionError", err)
			}
			if se.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", se.Kind, tt.wantKind)
			}
			if se.Host != tt.host {
				t.Errorf("Host = %q, want %q", se.Host, tt.host)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.wantErr)
			}
		})
	}
}

func TestSSHTransport_KnownHosts(t *testing.T) {
	dev := startSSHDevice(t, "admin", "s3cret")
	creds := Credentials{Username: "admin", Password: "s3cret"}

	write := func(t *testing.T, key ssh.PublicKey) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "known_hosts")
		line := knownhosts.Line([]string{dev.addr()}, key) + "\n"
		if err := os.WriteFile(path, []byte(line), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	t.Run("matching key", func(t *testing.T) {
		tr := testTransport(t, SSHConfig{KnownHostsFile: write(t, dev.hostKey.PublicKey())})
		sess, err := tr.Open(context.Background(), dev.addr(), creds)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		sess.Close()
	})

	t.Run("mismatched key", func(t *testing.T) {
		tr := testTransport(t, SSHConfig{KnownHostsFile: write(t, newSigner(t).PublicKey())})
		sess, err := tr.Open(context.Background(), dev.addr(), creds)
		if err == nil {
			sess.Close()
			t.Fatal("Open() succeeded with a mismatched host key")
		}
		if !errors.Is(err, ErrConnectFailed) {
			t.Errorf("Open() error = %v, want ErrConnectFailed", err)
		}
	})
}

func TestSSHTransport_EmptyHostNeverDials(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	accepted := make(chan net.Addr, 4)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			accepted <- conn.RemoteAddr()
			conn.Close()
		}
	}()

	_, portStr, _ := net.SplitHostPort(l.Addr().String())
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	tr := testTransport(t, SSHConfig{Port: port})
	creds := Credentials{Username: "admin", Password: "s3cret"}

	for _, host := range []string{"", "   ", "\t"} {
		sess, err := tr.Open(context.Background(), host, creds)
		if err == nil {
			sess.Close()
			t.Fatalf("Open(%q) succeeded", host)
		}
		var se *SessionError
		if !errors.As(err, &se) || se.Kind != KindConnect {
			t.Errorf("Open(%q) error = %v, want KindConnect", host, err)
		}
		if !errors.Is(err, ErrConnectFailed) {
			t.Errorf("Open(%q) error = %v, want ErrConnectFailed", host, err)
		}
	}

	select {
	case from := <-accepted:
		t.Errorf("empty host dialed the local machine (connection from %v)", from)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNewSSHTransport_Defaults(t *testing.T) {
	if _, err := NewSSHTransport(SSHConfig{}); err == nil {
		t.Error("NewSSHTransport() without platform succeeded")
	}

	tr := testTransport(t, SSHConfig{Platform: iosPlatform(t), DialTimeout: time.Second})
	if tr.cfg.Port != 22 {
		t.Errorf("Port = %d, want 22", tr.cfg.Port)
	}
	if got := tr.address("10.0.0.1"); got != "10.0.0.1:22" {
		t.Errorf("address() = %q", got)
	}
	if got := tr.address("10.0.0.1:2222"); got != "10.0.0.1:2222" {
		t.Errorf("address() with port = %q", got)
	}
	if got := tr.address("fe80::1"); got != "[fe80::1]:22" {
		t.Errorf("address() IPv6 = %q", got)
	}
}

func TestClassifyHandshake(t *testing.T) {
	auth := errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password], no supported methods remain")
	if got := classifyHandshake(auth); got != KindAuth {
		t.Errorf("classifyHandshake(auth) = %v", got)
	}
	if got := classifyHandshake(errors.New("ssh: handshake failed: EOF")); got != KindConnect {
		t.Errorf("classifyHandshake(EOF) = %v", got)
	}
}
