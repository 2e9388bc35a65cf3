// Package handlers implements the business logic for CLI commands.
//
// Handlers are called by the command definitions in the commands package
// and can be tested without cobra.
package handlers

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dimo-network/k3sform/internal/config"
	"github.com/dimo-network/k3sform/internal/orchestration"
	"github.com/dimo-network/k3sform/internal/outputs"
	hcloud_client "github.com/dimo-network/k3sform/internal/platform/hcloud"
	"github.com/dimo-network/k3sform/internal/provisioning"
)

// Log formats accepted by --log-format.
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Options are the global flags shared by every command.
type Options struct {
	ConfigPath string
	LogFormat  string
	LogLevel   string
}

// Factory function variables, replaced in tests.
var (
	findConfigFile = config.FindConfigFile
	loadConfigFile = config.Load
	loadEnv        = config.LoadEnv
	loadTimeouts   = config.LoadTimeouts
	openStore      = outputs.Open

	newInfraClient = func(token string, timeouts *config.Timeouts, logf func(string, ...any)) hcloud_client.InfrastructureManager {
		return hcloud_client.NewRealClient(token,
			hcloud_client.WithTimeouts(timeouts),
			hcloud_client.WithLogf(logf),
		)
	}

	orchestratorOptions = func() []orchestration.Option { return nil }

	stdout io.Writer = os.Stdout
)

// session bundles what a command needs to drive the orchestrator.
type session struct {
	cfg      *config.Config
	env      config.Env
	timeouts *config.Timeouts
	observer provisioning.Observer
	store    outputs.Store
	close    func()
}

// loadConfig resolves the configuration path and loads it. Without a path
// it looks for k3sform.yaml in the working directory and its parents.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		path, err := findConfigFile()
		if err != nil {
			return nil, fmt.Errorf("no config file found: %w\nRun 'k3sform init' to create one", err)
		}
		configPath = path
	}
	cfg, err := loadConfigFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newObserver returns the log observer selected by --log-format and a
// function flushing it.
func newObserver(format, level string) (provisioning.Observer, func(), error) {
	switch format {
	case "", LogFormatConsole:
		return provisioning.NewConsoleObserver(), func() {}, nil
	case LogFormatJSON:
		if level == "" {
			level = "info"
		}
		logger, err := provisioning.NewJSONLogger(level)
		if err != nil {
			return nil, nil, err
		}
		obs := provisioning.NewZapObserver(logger)
		return obs, func() { _ = obs.Sync() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown log format %q (want %s or %s)", format, LogFormatConsole, LogFormatJSON)
	}
}

func openSession(ctx context.Context, opts Options) (*session, error) {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	env, err := loadEnv()
	if err != nil {
		return nil, err
	}
	timeouts, err := loadTimeouts()
	if err != nil {
		return nil, err
	}
	obs, closeFn, err := newObserver(opts.LogFormat, opts.LogLevel)
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg, env)
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("failed to open outputs store: %w", err)
	}
	return &session{cfg: cfg, env: env, timeouts: timeouts, observer: obs, store: store, close: closeFn}, nil
}

// orchestrator builds an orchestrator for s. Commands that touch cloud
// resources require the token.
func (s *session) orchestrator(observer provisioning.Observer, needToken bool, extra ...orchestration.Option) (*orchestration.Orchestrator, error) {
	var infra hcloud_client.InfrastructureManager
	if needToken {
		if err := s.env.RequireToken(); err != nil {
			return nil, err
		}
		infra = newInfraClient(s.env.HCloudToken, s.timeouts, observer.Printf)
	}
	opts := append(orchestratorOptions(), extra...)
	return orchestration.New(s.cfg, s.env, s.timeouts, infra, s.store, observer, opts...), nil
}
