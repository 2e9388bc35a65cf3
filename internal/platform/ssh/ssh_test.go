package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/dimo-network/k3sform/internal/util/keygen"
)

// generateTestKey generates a test RSA key pair for use in tests.
func generateTestKey(t *testing.T) *keygen.KeyPair {
	t.Helper()
	keyPair, err := keygen.GenerateRSAKeyPair(2048)
	require.NoError(t, err)
	return keyPair
}

type reply struct {
	output string
	stderr string
	status uint32
	delay  time.Duration
}

// testServer is a minimal SSH server answering "exec" requests from a table.
type testServer struct {
	listener net.Listener
	config   *ssh.ServerConfig
	replies  map[string]reply
	execs    atomic.Int32
	wg       sync.WaitGroup
}

func newTestServer(t *testing.T, authorized ssh.PublicKey, replies map[string]reply) *testServer {
	t.Helper()

	_, hostKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostKey)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if string(key.Marshal()) == string(authorized.Marshal()) {
				return &ssh.Permissions{}, nil
			}
			return nil, errors.New("unknown key")
		},
	}
	cfg.AddHostKey(hostSigner)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &testServer{listener: l, config: cfg, replies: replies}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(func() {
		_ = l.Close()
		s.wg.Wait()
	})
	return s
}

func (s *testServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *testServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *testServer) handle(conn net.Conn) {
	_, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		_ = conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer func() { _ = ch.Close() }()
			for req := range requests {
				if req.Type != "exec" {
					if req.WantReply {
						_ = req.Reply(false, nil)
					}
					continue
				}
				var payload struct{ Command string }
				if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
					_ = req.Reply(false, nil)
					return
				}
				s.execs.Add(1)
				_ = req.Reply(true, nil)

				r, ok := s.replies[payload.Command]
				if !ok {
					r = reply{output: "sh: command not found\n", status: 127}
				}
				time.Sleep(r.delay)
				if r.stderr != "" {
					_, _ = ch.Stderr().Write([]byte(r.stderr))
				}
				_, _ = ch.Write([]byte(r.output))
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{r.status}))
				return
			}
		}()
	}
}

func clientFor(t *testing.T, key *keygen.KeyPair, port int) *Client {
	t.Helper()
	c, err := NewClient(&Config{
		Host:           "127.0.0.1",
		Port:           port,
		User:           "root",
		PrivateKey:     key.PrivateKey,
		MaxRetries:     2,
		RetryDelay:     10 * time.Millisecond,
		CommandTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func authorizedKey(t *testing.T, key *keygen.KeyPair) ssh.PublicKey {
	t.Helper()
	pub, _, _, _, err := ssh.ParseAuthorizedKey(key.PublicKey)
	require.NoError(t, err)
	return pub
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()
	keyPair := generateTestKey(t)

	client, err := NewClient(&Config{Host: "192.168.1.100", User: "root", PrivateKey: keyPair.PrivateKey})
	require.NoError(t, err)

	assert.Equal(t, defaultPort, client.config.Port)
	assert.Equal(t, defaultDialTimeout, client.config.DialTimeout)
	assert.Equal(t, defaultMaxRetries, client.config.MaxRetries)
	assert.Equal(t, defaultRetryDelay, client.config.RetryDelay)
	assert.Equal(t, defaultConnectTimeout, client.config.ConnectTimeout)
	assert.Equal(t, defaultCommandTimeout, client.config.CommandTimeout)
	assert.Equal(t, "192.168.1.100:22", client.Address())
}

func TestNewClient_DoesNotMutateConfig(t *testing.T) {
	t.Parallel()
	keyPair := generateTestKey(t)

	cfg := &Config{Host: "10.0.1.2", User: "root", PrivateKey: keyPair.PrivateKey}
	_, err := NewClient(cfg)
	require.NoError(t, err)
	assert.Zero(t, cfg.Port)
	assert.Nil(t, cfg.HostKeyCallback)
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()
	keyPair := generateTestKey(t)

	tests := []struct {
		name string
		cfg  *Config
		want string
	}{
		{"nil", nil, "config cannot be nil"},
		{"host", &Config{User: "root", PrivateKey: keyPair.PrivateKey}, "host cannot be empty"},
		{"user", &Config{Host: "h", PrivateKey: keyPair.PrivateKey}, "user cannot be empty"},
		{"key", &Config{Host: "h", User: "root"}, "private key cannot be empty"},
		{"bad key", &Config{Host: "h", User: "root", PrivateKey: []byte("invalid key")}, "failed to parse private key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewClient(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExecute_ReturnsOutput(t *testing.T) {
	t.Parallel()
	key := generateTestKey(t)
	srv := newTestServer(t, authorizedKey(t, key), map[string]reply{
		"sudo cat /etc/rancher/k3s/k3s.yaml": {output: "apiVersion: v1\n"},
	})

	out, err := clientFor(t, key, srv.port()).Execute(context.Background(), "sudo cat /etc/rancher/k3s/k3s.yaml")
	require.NoError(t, err)
	assert.Equal(t, "apiVersion: v1\n", out)
}

func TestExecute_StderrKeptOutOfOutput(t *testing.T) {
	t.Parallel()
	key := generateTestKey(t)
	srv := newTestServer(t, authorizedKey(t, key), map[string]reply{
		"sudo cat /etc/rancher/k3s/k3s.yaml": {
			output: "apiVersion: v1\nkind: Config\n",
			stderr: "sudo: unable to resolve host demo-server: Name or service not known\n",
		},
	})

	out, err := clientFor(t, key, srv.port()).Execute(context.Background(), "sudo cat /etc/rancher/k3s/k3s.yaml")
	require.NoError(t, err)
	assert.Equal(t, "apiVersion: v1\nkind: Config\n", out)
}

func TestExecute_FailureOutputCarriesBothStreams(t *testing.T) {
	t.Parallel()
	key := generateTestKey(t)
	srv := newTestServer(t, authorizedKey(t, key), map[string]reply{
		"k3s check-config": {
			output: "partial result",
			stderr: "fatal: missing kernel module\n",
			status: 2,
		},
	})

	out, err := clientFor(t, key, srv.port()).Execute(context.Background(), "k3s check-config")
	require.Error(t, err)
	assert.Equal(t, "partial result", out)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 2, cmdErr.ExitStatus)
	assert.Equal(t, "partial result\nfatal: missing kernel module\n", cmdErr.Output)
}

func TestExecute_NonZeroExitIsNotRetried(t *testing.T) {
	t.Parallel()
	key := generateTestKey(t)
	srv := newTestServer(t, authorizedKey(t, key), map[string]reply{
		"sudo cat /etc/rancher/k3s/k3s.yaml": {
			output: "cat: /etc/rancher/k3s/k3s.yaml: No such file or directory\n",
			status: 1,
		},
	})

	out, err := clientFor(t, key, srv.port()).Execute(context.Background(), "sudo cat /etc/rancher/k3s/k3s.yaml")
	require.Error(t, err)
	assert.Contains(t, out, "No such file or directory")

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.ExitStatus)
	assert.Equal(t, "127.0.0.1", cmdErr.Host)
	assert.Contains(t, err.Error(), "Command: sudo cat /etc/rancher/k3s/k3s.yaml")
	assert.Equal(t, int32(1), srv.execs.Load())
}

func TestExecute_CommandTimeout(t *testing.T) {
	t.Parallel()
	key := generateTestKey(t)
	srv := newTestServer(t, authorizedKey(t, key), map[string]reply{
		"sleep 5": {delay: time.Second},
	})

	c := clientFor(t, key, srv.port())
	c.config.CommandTimeout = 50 * time.Millisecond

	_, err := c.Execute(context.Background(), "sleep 5")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecute_ConnectRetriesThenFails(t *testing.T) {
	t.Parallel()
	key := generateTestKey(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	_, err = clientFor(t, key, port).Execute(context.Background(), "true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to establish SSH connection")
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestExecute_WrongKeyFails(t *testing.T) {
	t.Parallel()
	key := generateTestKey(t)
	other := generateTestKey(t)
	srv := newTestServer(t, authorizedKey(t, other), nil)

	_, err := clientFor(t, key, srv.port()).Execute(context.Background(), "true")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unable to authenticate"), err.Error())
	assert.Zero(t, srv.execs.Load())
}
