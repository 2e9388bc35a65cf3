// Package ssh runs shell commands on a freshly booted server.
//
// Connecting is retried with backoff because the server may still be
// booting. Commands themselves are never retried: a non-zero exit is
// returned as a *CommandError carrying the host, command and output.
//
// Host keys are not verified by default; the server is created by the same
// run that connects to it.
package ssh

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

	"github.com/dimo-network/k3sform/internal/util/retry"
)

const (
	defaultPort           = 22
	defaultDialTimeout    = 10 * time.Second
	defaultMaxRetries     = 60
	defaultRetryDelay     = 5 * time.Second
	defaultMaxDelay       = 10 * time.Second
	defaultConnectTimeout = 5 * time.Minute
	defaultCommandTimeout = 10 * time.Minute
)

// Executor runs a command on a remote host and returns its combined output.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// Config holds SSH client configuration.
type Config struct {
	Host       string
	Port       int
	User       string
	PrivateKey []byte

	// DialTimeout bounds a single TCP connect and handshake.
	DialTimeout time.Duration

	// MaxRetries is the maximum number of connection attempts.
	MaxRetries int

	// RetryDelay is the initial delay between connection attempts.
	RetryDelay time.Duration

	// ConnectTimeout bounds the whole connection phase including retries.
	ConnectTimeout time.Duration

	// CommandTimeout bounds a single remote command.
	CommandTimeout time.Duration

	// HostKeyCallback defaults to ssh.InsecureIgnoreHostKey.
	HostKeyCallback ssh.HostKeyCallback
}

// CommandError reports a remote command that ran and failed.
type CommandError struct {
	Host       string
	Command    string
	Output     string
	ExitStatus int
	Err        error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command failed on %s: %v\nCommand: %s\nOutput: %s", e.Host, e.Err, e.Command, e.Output)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Client executes commands on a remote server via SSH. The private key is
// parsed once and a connection is opened per Execute call.
type Client struct {
	config *Config
	signer ssh.Signer
}

var _ Executor = (*Client)(nil)

// NewClient validates cfg, applies defaults and parses the private key.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("config host cannot be empty")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("config user cannot be empty")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, fmt.Errorf("config private key cannot be empty")
	}

	c := *cfg
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = defaultCommandTimeout
	}
	if c.HostKeyCallback == nil {
		c.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // servers are created by the same run
	}

	signer, err := ssh.ParsePrivateKey(c.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &Client{config: &c, signer: signer}, nil
}

// Address returns host:port.
func (c *Client) Address() string {
	return net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
}

// Execute runs command once and returns its combined stdout and stderr.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	cmdCtx, cancel := context.WithTimeout(ctx, c.config.CommandTimeout)
	defer cancel()
	return c.runCommand(cmdCtx, client, command)
}

func (c *Client) connect(ctx context.Context) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            c.config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(c.signer)},
		HostKeyCallback: c.config.HostKeyCallback,
		Timeout:         c.config.DialTimeout,
	}
	addr := c.Address()

	connectCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	var client *ssh.Client
	err := retry.WithExponentialBackoff(connectCtx, func() error {
		var dialErr error
		client, dialErr = dial(connectCtx, addr, config)
		return dialErr
	},
		retry.WithMaxRetries(c.config.MaxRetries),
		retry.WithInitialDelay(c.config.RetryDelay),
		retry.WithMaxDelay(defaultMaxDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to establish SSH connection to %s: %w", addr, err)
	}
	return client, nil
}

func dial(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: config.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if config.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(config.Timeout))
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// runCommand returns the command's standard output. Standard error is kept
// out of the result and only surfaces through CommandError.Output.
func (c *Client) runCommand(ctx context.Context, client *ssh.Client, command string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session on %s: %w", c.config.Host, err)
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Close()
		return "", &CommandError{Host: c.config.Host, Command: command, ExitStatus: -1, Err: ctx.Err()}
	case err := <-done:
		if err != nil {
			cmdErr := &CommandError{
				Host:       c.config.Host,
				Command:    command,
				Output:     joinStreams(stdout.String(), stderr.String()),
				ExitStatus: -1,
				Err:        err,
			}
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				cmdErr.ExitStatus = exitErr.ExitStatus()
			}
			return stdout.String(), cmdErr
		}
		return stdout.String(), nil
	}
}

func joinStreams(stdout, stderr string) string {
	switch {
	case stderr == "":
		return stdout
	case stdout == "":
		return stderr
	case strings.HasSuffix(stdout, "\n"):
		return stdout + stderr
	default:
		return stdout + "\n" + stderr
	}
}
