package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/crypto/ssh"

	"github.com/andrej220/netcheck/pkg/lg"
)

// DefaultPromptPattern matches the usual network-device prompt at the end of
// a line: hostname plus "#" (exec) or ">" (user mode). IOS-XR prefixes like
// RP/0/RSP0/CPU0: are covered by the character class.
const DefaultPromptPattern = `^[A-Za-z0-9._/:@()-]+[#>]\s*$`

const dialFailLimit = 5

// Options configures the SSH transport. Settle is the quiet period after
// which accumulated output is taken as complete when no prompt was seen;
// CmdTimeout is the hard per-command bound.
type Options struct {
	Port        int
	DialTimeout time.Duration
	Settle      time.Duration
	CmdTimeout  time.Duration
	Prompt      string // regexp, DefaultPromptPattern when empty
}

// SSHTransport opens interactive shells over SSH. Dials go through a shared
// circuit breaker: once several hosts in a row are unreachable the rest of
// the batch fails fast instead of waiting out every dial timeout.
type SSHTransport struct {
	opts    Options
	prompt  *regexp.Regexp
	breaker *gobreaker.CircuitBreaker
	lg      lg.Logger
}

var _ Transport = (*SSHTransport)(nil)

func NewSSH(opts Options, logger lg.Logger) (*SSHTransport, error) {
	if logger == nil {
		logger = lg.Discard
	}
	pattern := opts.Prompt
	if pattern == "" {
		pattern = DefaultPromptPattern
	}
	prompt, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("prompt pattern %q: %w", pattern, err)
	}
	if opts.Port <= 0 {
		opts.Port = 22
	}
	if opts.Settle <= 0 {
		opts.Settle = 3 * time.Second
	}
	if opts.CmdTimeout <= 0 {
		opts.CmdTimeout = 3 * time.Minute
	}

	cbs := gobreaker.Settings{
		Name:     "ssh-dial",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > dialFailLimit
		},
	}

	return &SSHTransport{
		opts:    opts,
		prompt:  prompt,
		breaker: gobreaker.NewCircuitBreaker(cbs),
		lg:      logger,
	}, nil
}

func (t *SSHTransport) Open(ctx context.Context, host string, creds Credentials) (Session, error) {
	auth := []ssh.AuthMethod{ssh.Password(creds.Password)}
	if creds.KeyPath != "" {
		keyAuth, err := publicKeyAuth(creds.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("open %s: %v: %w", host, err, ErrConnection)
		}
		auth = append([]ssh.AuthMethod{keyAuth}, auth...)
	}

	config := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         t.opts.DialTimeout,
		BannerCallback:  func(message string) error { return nil }, // ignore banner
	}

	addr := net.JoinHostPort(host, strconv.Itoa(t.opts.Port))
	res, err := t.breaker.Execute(func() (any, error) {
		return ssh.Dial("tcp", addr, config)
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", host, err, ErrConnection)
	}
	client := res.(*ssh.Client)

	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("open %s: session: %v: %w", host, err, ErrConnection)
	}

	if err := sess.RequestPty("vt100", 80, 200, ssh.TerminalModes{}); err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("open %s: pty: %v: %w", host, err, ErrConnection)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("open %s: stdin: %v: %w", host, err, ErrConnection)
	}

	buf := &captureBuffer{}
	sess.Stdout = buf
	sess.Stderr = buf

	if err := sess.Shell(); err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("open %s: shell: %v: %w", host, err, ErrConnection)
	}

	s := &sshSession{
		host:   host,
		client: client,
		sess:   sess,
		stdin:  stdin,
		buf:    buf,
		prompt: t.prompt,
		opts:   t.opts,
		lg:     t.lg.With(lg.String("host", host)),
	}
	s.drainGreeting(ctx)

	t.lg.Info("session established", lg.String("host", host))
	return s, nil
}

type sshSession struct {
	host   string
	client *ssh.Client
	sess   *ssh.Session
	stdin  io.WriteCloser
	buf    *captureBuffer
	prompt *regexp.Regexp
	opts   Options
	lg     lg.Logger
}

// drainGreeting consumes the login banner and first prompt so the first
// command's capture starts clean. Best effort; a device that never shows a
// prompt just costs one settle period here.
func (s *sshSession) drainGreeting(ctx context.Context) {
	_, err := awaitOutput(ctx, s.buf, 0, s.prompt, s.opts.Settle, s.opts.Settle*2)
	if err != nil {
		s.lg.Debug("no greeting before first command", lg.Err(err))
	}
}

func (s *sshSession) Run(ctx context.Context, command string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = s.opts.CmdTimeout
	}

	mark := s.buf.Len()
	if _, err := s.stdin.Write([]byte(command + "\n")); err != nil {
		return "", fmt.Errorf("run %q on %s: %v: %w", command, s.host, err, ErrConnection)
	}

	raw, err := awaitOutput(ctx, s.buf, mark, s.prompt, s.opts.Settle, timeout)
	out := cleanEcho(command, raw, s.prompt)
	if err != nil {
		return out, fmt.Errorf("run %q on %s: %w", command, s.host, err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("run %q on %s: %w", command, s.host, ErrEmptyOutput)
	}
	return out, nil
}

func (s *sshSession) Close() error {
	s.sess.Close()
	err := s.client.Close()
	s.lg.Debug("session closed")
	return err
}

// awaitOutput polls buf for bytes written after mark until the device prompt
// reappears at the tail, the output has been quiet for settle, or timeout
// expires. Polling intervals back off exponentially and reset whenever new
// bytes arrive, so streaming output is drained promptly.
func awaitOutput(ctx context.Context, buf *captureBuffer, mark int, prompt *regexp.Regexp, settle, timeout time.Duration) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 0

	deadline := time.Now().Add(timeout)
	lastLen := 0
	lastGrowth := time.Now()

	for {
		select {
		case <-ctx.Done():
			return buf.Since(mark), ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}

		chunk := buf.Since(mark)
		if promptAtTail(chunk, prompt) {
			return chunk, nil
		}
		if len(chunk) > lastLen {
			lastLen = len(chunk)
			lastGrowth = time.Now()
			bo.Reset()
		} else if time.Since(lastGrowth) >= settle {
			if lastLen == 0 {
				return "", ErrEmptyOutput
			}
			return chunk, nil
		}
		if time.Now().After(deadline) {
			return chunk, ErrTimeout
		}
	}
}

// promptAtTail reports whether the last non-empty line of chunk matches the
// prompt pattern.
func promptAtTail(chunk string, prompt *regexp.Regexp) bool {
	if chunk == "" {
		return false
	}
	lines := strings.Split(strings.ReplaceAll(chunk, "\r", ""), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		return prompt.MatchString(line)
	}
	return false
}

// cleanEcho strips the device's echo of the command from the head of the
// capture and the trailing prompt line, leaving the output itself untouched.
func cleanEcho(command, raw string, prompt *regexp.Regexp) string {
	out := strings.ReplaceAll(raw, "\r", "")
	lines := strings.Split(out, "\n")

	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if start < len(lines) && strings.Contains(lines[start], command) {
		start++
	}

	end := len(lines)
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	if end > start && prompt.MatchString(strings.TrimSpace(lines[end-1])) {
		end--
	}

	return strings.TrimRight(strings.Join(lines[start:end], "\n"), "\n")
}

func publicKeyAuth(privateKeyPath string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read private key: %v", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("unable to parse private key: %v", err)
	}
	return ssh.PublicKeys(signer), nil
}
