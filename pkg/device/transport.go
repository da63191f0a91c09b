package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/newtron-network/cfgpush/pkg/util"
	"github.com/newtron-network/cfgpush/pkg/version"
)

// SSHConfig configures the SSH transport.
type SSHConfig struct {
	Platform       *Platform
	Port           int           // used when the host carries no port
	DialTimeout    time.Duration // TCP connect plus SSH handshake
	CommandTimeout time.Duration // silence allowed while waiting for a prompt

	// KnownHostsFile enables host key verification. Empty accepts any key.
	KnownHostsFile string

	// LegacyCrypto offers CBC ciphers, SHA-1 key exchanges and ssh-rsa host
	// keys for older switches.
	LegacyCrypto bool

	// UseAgent offers keys from SSH_AUTH_SOCK before the password.
	UseAgent bool
}

// SSHTransport opens interactive CLI sessions over SSH.
type SSHTransport struct {
	cfg     SSHConfig
	hostKey ssh.HostKeyCallback
}

// NewSSHTransport validates cfg and prepares host key checking.
func NewSSHTransport(cfg SSHConfig) (*SSHTransport, error) {
	if cfg.Platform == nil {
		return nil, fmt.Errorf("%w: no platform profile", util.ErrInvalidConfig)
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 30 * time.Second
	}

	t := &SSHTransport{cfg: cfg}
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("known_hosts: %w", err)
		}
		t.hostKey = cb
	} else {
		t.hostKey = ssh.InsecureIgnoreHostKey()
	}
	return t, nil
}

// Open dials host, authenticates, starts a PTY shell and waits for the
// first prompt. Failures are returned as *SessionError.
func (t *SSHTransport) Open(ctx context.Context, host string, creds Credentials) (Session, error) {
	// An empty host would dial the local machine.
	if strings.TrimSpace(host) == "" {
		return nil, NewSessionError(host, KindConnect, errors.New("empty host"))
	}
	addr := t.address(host)
	log := util.WithHost(host)

	d := net.Dialer{Timeout: t.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, NewSessionError(host, KindConnect, describeDialError(err, t.cfg.DialTimeout))
	}

	_ = conn.SetDeadline(time.Now().Add(t.cfg.DialTimeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, t.clientConfig(creds))
	if err != nil {
		conn.Close()
		return nil, NewSessionError(host, classifyHandshake(err), describeDialError(err, t.cfg.DialTimeout))
	}
	_ = conn.SetDeadline(time.Time{})
	client := ssh.NewClient(c, chans, reqs)
	log.Debugf("authenticated as %s, server %s", creds.Username, c.ServerVersion())

	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, NewSessionError(host, KindTransport, fmt.Errorf("SSH session: %w", err))
	}

	cli, err := t.startShell(ctx, host, creds, client, sess)
	if err != nil {
		sess.Close()
		client.Close()
		return nil, NewSessionError(host, KindTransport, err)
	}
	return cli, nil
}

func (t *SSHTransport) startShell(ctx context.Context, host string, creds Credentials, client *ssh.Client, sess *ssh.Session) (*cliSession, error) {
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty("vt100", 200, 511, modes); err != nil {
		return nil, fmt.Errorf("request PTY: %w", err)
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := sess.Shell(); err != nil {
		return nil, fmt.Errorf("start shell: %w", err)
	}

	closer := func() error {
		sess.Close()
		return client.Close()
	}
	cli := newCLISession(host, t.cfg.Platform, creds.EnableSecret(), stdout, stdin, t.cfg.CommandTimeout, closer)
	if err := cli.start(ctx); err != nil {
		cli.vty.close()
		return nil, err
	}
	return cli, nil
}

func (t *SSHTransport) address(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(t.cfg.Port))
}

func (t *SSHTransport) clientConfig(creds Credentials) *ssh.ClientConfig {
	var auths []ssh.AuthMethod

	if t.cfg.UseAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			if conn, err := net.Dial("unix", sock); err == nil {
				auths = append(auths, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			} else {
				util.Debugf("ssh agent unavailable: %v", err)
			}
		}
	}

	auths = append(auths,
		ssh.Password(creds.Password),
		// IOS and NX-OS commonly only offer keyboard-interactive.
		ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range questions {
				answers[i] = creds.Password
			}
			return answers, nil
		}),
	)

	cfg := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            auths,
		HostKeyCallback: t.hostKey,
		Timeout:         t.cfg.DialTimeout,
		ClientVersion:   version.SSHClientVersion(),
	}
	if t.cfg.LegacyCrypto {
		cfg.Config.Ciphers = legacyCiphers
		cfg.Config.KeyExchanges = legacyKeyExchanges
		cfg.HostKeyAlgorithms = legacyHostKeyAlgorithms
	}
	return cfg
}

var (
	legacyCiphers = []string{
		"aes128-gcm@openssh.com", "aes256-gcm@openssh.com", "chacha20-poly1305@openssh.com",
		"aes128-ctr", "aes192-ctr", "aes256-ctr",
		"aes128-cbc", "3des-cbc",
	}
	legacyKeyExchanges = []string{
		"curve25519-sha256", "ecdh-sha2-nistp256", "ecdh-sha2-nistp384", "ecdh-sha2-nistp521",
		"diffie-hellman-group14-sha256", "diffie-hellman-group14-sha1", "diffie-hellman-group1-sha1",
	}
	legacyHostKeyAlgorithms = []string{
		"ssh-ed25519", "ecdsa-sha2-nistp256", "rsa-sha2-512", "rsa-sha2-256", "ssh-rsa",
	}
)

// classifyHandshake separates credential rejection from other handshake
// failures. x/crypto/ssh reports rejection only through the message text.
func classifyHandshake(err error) ErrorKind {
	if strings.Contains(err.Error(), "unable to authenticate") {
		return KindAuth
	}
	return KindConnect
}

func describeDialError(err error, timeout time.Duration) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("timed out after %s: %w", timeout, err)
	}
	return err
}
