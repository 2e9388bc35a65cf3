package handlers

import (
	"context"
	"fmt"
	"log"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/dimo-network/k3sform/internal/dag"
	"github.com/dimo-network/k3sform/internal/orchestration"
	"github.com/dimo-network/k3sform/internal/outputs"
	"github.com/dimo-network/k3sform/internal/provisioning"
	"github.com/dimo-network/k3sform/internal/ui/tui"
)

// ApplyLogFile receives the log lines while the progress view is shown.
const ApplyLogFile = "apply.log"

// ApplyOptions are the flags of the apply command.
type ApplyOptions struct {
	TUI         bool
	Concurrency int
	MetricsFile string
}

var (
	isTerminal = func() bool {
		fd := os.Stdout.Fd()
		return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}

	runApplyTUI = tui.RunApply
)

// Apply provisions the server, bootstraps k3s and deploys the releases.
//
// Outputs are stored even when a release fails as long as the kubeconfig
// was fetched, so a re-run only repeats the failed part.
func Apply(ctx context.Context, opts Options, aopts ApplyOptions) error {
	if aopts.TUI && !isTerminal() {
		return fmt.Errorf("--tui requires an interactive terminal")
	}

	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.close()

	var extra []orchestration.Option
	if aopts.Concurrency > 0 {
		extra = append(extra, orchestration.WithConcurrency(aopts.Concurrency))
	}
	var metrics *provisioning.Metrics
	if aopts.MetricsFile != "" {
		metrics = provisioning.NewMetrics()
		extra = append(extra, orchestration.WithMetrics(metrics))
	}

	var (
		out    *outputs.Outputs
		report *dag.Report
	)
	apply := func(ctx context.Context, obs provisioning.Observer) error {
		orch, err := s.orchestrator(obs, true, extra...)
		if err != nil {
			return err
		}
		out, report, err = orch.Apply(ctx)
		return err
	}

	if aopts.TUI {
		err = applyWithTUI(ctx, s, apply)
	} else {
		err = apply(ctx, s.observer)
	}

	if metrics != nil {
		if werr := metrics.WriteToTextfile(aopts.MetricsFile); werr != nil {
			s.observer.Printf("Warning: failed to write metrics to %s: %v", aopts.MetricsFile, werr)
		}
	}

	if err != nil {
		printApplyFailure(report)
		return fmt.Errorf("apply failed: %w", err)
	}
	printApplySuccess(out, s.store)
	return nil
}

// applyWithTUI runs apply behind the progress view. Log lines go to a file
// next to the outputs so they do not tear the screen.
func applyWithTUI(ctx context.Context, s *session, apply func(context.Context, provisioning.Observer) error) error {
	plan, err := orchestration.New(s.cfg, s.env, s.timeouts, nil, s.store, provisioning.Discard{}).Plan()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.cfg.Outputs.Dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.cfg.Outputs.Dir, err)
	}
	logPath := filepath.Join(s.cfg.Outputs.Dir, ApplyLogFile)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()
	fileObs := provisioning.NewConsoleObserverWithLogger(log.New(f, "", log.LstdFlags))

	return runApplyTUI(ctx, s.cfg.Name, s.cfg.Location, plan, func(ctx context.Context, obs provisioning.Observer) error {
		return apply(ctx, provisioning.Multi{obs, fileObs})
	})
}

func printApplySuccess(out *outputs.Outputs, store outputs.Store) {
	fmt.Fprintf(stdout, "\nApply complete!\n")
	if out == nil {
		return
	}
	fmt.Fprintf(stdout, "  Project:     %s\n", out.Project)
	fmt.Fprintf(stdout, "  Server:      %s (%s)\n", out.InstanceName, out.ExternalIP)
	if out.ReservedIP != "" {
		fmt.Fprintf(stdout, "  Reserved IP: %s\n", out.ReservedIP)
	}
	fmt.Fprintf(stdout, "  API server:  %s\n", out.APIServer)
	if len(out.NodeNames) > 0 {
		fmt.Fprintf(stdout, "  Nodes:       %s\n", strings.Join(out.NodeNames, ", "))
	}
	if len(out.Releases) > 0 {
		fmt.Fprintf(stdout, "\nReleases:\n")
		for _, name := range slices.Sorted(maps.Keys(out.Releases)) {
			fmt.Fprintf(stdout, "  %-24s %s\n", name, out.Releases[name])
		}
	}
	fmt.Fprintf(stdout, "\nOutputs saved to: %s\n", store.Location())

	if fs, ok := store.(*outputs.FileStore); ok {
		fmt.Fprintf(stdout, "\nYou can now access your cluster with:\n")
		fmt.Fprintf(stdout, "  export KUBECONFIG=%s\n", fs.KubeconfigPath())
	} else {
		fmt.Fprintf(stdout, "\nFetch the kubeconfig with:\n")
		fmt.Fprintf(stdout, "  k3sform kubeconfig > kubeconfig\n")
	}
	fmt.Fprintf(stdout, "  kubectl get nodes\n")
}

func printApplyFailure(report *dag.Report) {
	if report == nil {
		return
	}
	if failed := report.Failed(); len(failed) > 0 {
		fmt.Fprintf(stdout, "\nFailed tasks:  %s\n", strings.Join(failed, ", "))
	}
	if skipped := report.Skipped(); len(skipped) > 0 {
		fmt.Fprintf(stdout, "Skipped tasks: %s\n", strings.Join(skipped, ", "))
	}
}
