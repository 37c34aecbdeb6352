// Package routeros runs CLI commands on MikroTik routers over SSH.
package routeros

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// DefaultTimeout bounds a whole Run, dial included.
const DefaultTimeout = 15 * time.Second

// maxOutput caps what is kept from a single command.
const maxOutput = 64 << 10

type Target struct {
	Host     string
	Port     int
	Username string
	Password string
	// HostKey is the router's public key in authorized_keys format. When
	// empty the key is not checked.
	HostKey string
}

func (t Target) addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// Output is the result of one command of a Run.
type Output struct {
	Command string
	Text    string
	Err     error
}

type Runner struct {
	Timeout time.Duration
}

func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{Timeout: timeout}
}

// Run executes cmds in order on one connection, each in its own session.
// It stops at the first failing command.
func (r *Runner) Run(ctx context.Context, t Target, cmds ...string) ([]Output, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cfg, err := clientConfig(t, r.Timeout)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.addr())
	if err != nil {
		return nil, fmt.Errorf("routeros: dial %s: %w", t.addr(), err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, t.addr(), cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("routeros: handshake: %w", err)
	}
	client := ssh.NewClient(c, chans, reqs)
	defer client.Close()

	// Closing the client unblocks a session stuck on a dead router.
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	out := make([]Output, 0, len(cmds))
	for _, cmd := range cmds {
		text, err := runOne(client, cmd)
		if ctx.Err() != nil {
			err = fmt.Errorf("routeros: timed out after %s", r.Timeout)
		}
		out = append(out, Output{Command: cmd, Text: text, Err: err})
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func runOne(client *ssh.Client, cmd string) (string, error) {
	sess, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("routeros: session: %w", err)
	}
	defer sess.Close()

	var buf limitedBuffer
	sess.Stdout = &buf
	sess.Stderr = &buf
	err = sess.Run(cmd)
	text := strings.TrimRight(buf.String(), "\r\n")

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return text, fmt.Errorf("routeros: exit status %d", exitErr.ExitStatus())
	}
	if err != nil {
		return text, fmt.Errorf("routeros: %w", err)
	}
	// RouterOS reports bad commands on stdout with a zero exit status.
	if looksFailed(text) {
		return text, errors.New("routeros: command rejected")
	}
	return text, nil
}

func looksFailed(text string) bool {
	t := strings.ToLower(text)
	return strings.HasPrefix(t, "bad command name") ||
		strings.HasPrefix(t, "syntax error") ||
		strings.HasPrefix(t, "expected end of command") ||
		strings.Contains(t, "failure:")
}

func clientConfig(t Target, timeout time.Duration) (*ssh.ClientConfig, error) {
	cb := ssh.InsecureIgnoreHostKey()
	if t.HostKey != "" {
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(t.HostKey))
		if err != nil {
			return nil, fmt.Errorf("routeros: invalid host key: %w", err)
		}
		cb = ssh.FixedHostKey(key)
	}
	return &ssh.ClientConfig{
		User: t.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(t.Password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = t.Password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: cb,
		Timeout:         timeout,
	}, nil
}

type limitedBuffer struct {
	bytes.Buffer
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := maxOutput - b.Len(); room < len(p) {
		if room > 0 {
			b.Buffer.Write(p[:room])
		}
		return len(p), nil
	}
	return b.Buffer.Write(p)
}
