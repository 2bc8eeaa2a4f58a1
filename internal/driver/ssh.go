package driver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"regexp"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHDriver opens interactive shell sessions over SSH. It does not
// perform host key verification beyond what HostKeyCallback is
// configured with, mirroring the trust model of unattended device
// automation agents that dial devices on a known management network.
type SSHDriver struct {
	HostKeyCallback ssh.HostKeyCallback
}

// NewSSHDriver builds a driver. A nil callback defaults to accepting any
// host key, which is the common posture for fleets whose devices are
// reached over an isolated management VLAN rather than the public
// internet.
func NewSSHDriver(hostKeyCallback ssh.HostKeyCallback) *SSHDriver {
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec
	}
	return &SSHDriver{HostKeyCallback: hostKeyCallback}
}

// Open dials the device and starts an interactive shell.
func (d *SSHDriver) Open(ctx context.Context, address string, port int, cred Credential, promptPattern *regexp.Regexp, connectTimeout time.Duration) (Session, error) {
	if promptPattern == nil {
		promptPattern = regexp.MustCompile(`[\$#>]\s*$`)
	}

	cfg := &ssh.ClientConfig{
		User:            cred.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(cred.Secret)},
		HostKeyCallback: d.HostKeyCallback,
		Timeout:         connectTimeout,
	}

	dialer := net.Dialer{Timeout: connectTimeout}
	addr := fmt.Sprintf("%s:%d", address, port)

	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(rawConn, addr, cfg)
	if err != nil {
		rawConn.Close()
		return nil, err
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, err
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, err
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 115200,
		ssh.TTY_OP_OSPEED: 115200,
	}
	if err := session.RequestPty("vt100", 0, 512, modes); err != nil {
		session.Close()
		client.Close()
		return nil, err
	}
	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return nil, err
	}

	s := &sshSession{
		client:  client,
		session: session,
		stdin:   stdin,
		stdout:  stdout,
		prompt:  promptPattern,
	}

	// Drain the initial banner/prompt before the first command so it is
	// not mistaken for the first command's output.
	if _, err := s.readUntilPrompt(ctx, promptPattern, connectTimeout); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

type sshSession struct {
	mu      sync.Mutex
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	prompt  *regexp.Regexp
	closed  bool
}

func (s *sshSession) Run(ctx context.Context, command string, commandTimeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", fmt.Errorf("session closed")
	}

	if _, err := s.stdin.Write([]byte(command + "\n")); err != nil {
		return "", err
	}

	out, err := s.readUntilPrompt(ctx, s.prompt, commandTimeout)
	if err != nil {
		return "", err
	}
	return stripEcho(command, out), nil
}

// readUntilPrompt accumulates bytes from stdout until promptPattern
// matches the trailing text, ctx is cancelled, or timeout elapses.
func (s *sshSession) readUntilPrompt(ctx context.Context, promptPattern *regexp.Regexp, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)

	type readResult struct {
		n   int
		err error
	}

	var buf bytes.Buffer
	chunk := make([]byte, 4096)
	resultCh := make(chan readResult, 1)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return buf.String(), fmt.Errorf("timed out waiting for device prompt")
		}

		go func() {
			n, err := s.stdout.Read(chunk)
			resultCh <- readResult{n, err}
		}()

		select {
		case <-ctx.Done():
			return buf.String(), ctx.Err()
		case <-time.After(remaining):
			return buf.String(), fmt.Errorf("timed out waiting for device prompt")
		case r := <-resultCh:
			if r.n > 0 {
				buf.Write(chunk[:r.n])
				if promptPattern.Match(bytes.TrimRight(buf.Bytes(), "\r\n \t")) {
					return buf.String(), nil
				}
			}
			if r.err != nil {
				return buf.String(), r.err
			}
		}
	}
}

func (s *sshSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.session.Close()
	return s.client.Close()
}

// stripEcho removes the echoed command line and trailing prompt from raw
// device output, leaving just the command's result.
func stripEcho(command, raw string) string {
	lines := splitLines(raw)
	if len(lines) == 0 {
		return raw
	}
	if len(lines) > 0 && trimmed(lines[0]) == trimmed(command) {
		lines = lines[1:]
	}
	if len(lines) > 0 {
		lines = lines[:len(lines)-1]
	}
	return joinLines(lines)
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func joinLines(lines []string) string {
	var buf bytes.Buffer
	for i, l := range lines {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(l)
	}
	return buf.String()
}

func trimmed(s string) string {
	return string(bytes.TrimSpace([]byte(s)))
}
