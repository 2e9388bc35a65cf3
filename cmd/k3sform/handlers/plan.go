package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/dimo-network/k3sform/internal/orchestration"
	"github.com/dimo-network/k3sform/internal/provisioning"
)

// Plan prints the configuration warnings, the enabled releases and the
// order tasks run in. It does not contact Hetzner Cloud.
func Plan(_ context.Context, opts Options) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	env, err := loadEnv()
	if err != nil {
		return err
	}
	timeouts, err := loadTimeouts()
	if err != nil {
		return err
	}

	orch := orchestration.New(cfg, env, timeouts, nil, nil, provisioning.Discard{})
	releases, err := orch.Releases()
	if err != nil {
		return err
	}
	plan, err := orch.Plan()
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Project %s in %s (%s, %s)\n", cfg.Name, cfg.Location, cfg.MachineType, cfg.OSImage)
	for _, w := range cfg.Warnings() {
		fmt.Fprintf(stdout, "  warning: %s: %s\n", w.Field, w.Message)
	}

	fmt.Fprintf(stdout, "\nReleases:\n")
	for _, r := range releases {
		line := fmt.Sprintf("  %-24s %-20s %s", r.Name, r.Namespace, r.Chart)
		if len(r.DependsOn) > 0 {
			line += "  after " + strings.Join(r.DependsOn, ", ")
		}
		fmt.Fprintln(stdout, line)
	}

	fmt.Fprintf(stdout, "\nTasks (%d):\n", len(plan))
	for i, name := range plan {
		fmt.Fprintf(stdout, "  %2d. %s\n", i+1, name)
	}
	return nil
}
