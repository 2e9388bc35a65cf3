package handlers

import (
	"context"
	"fmt"

	"github.com/dimo-network/k3sform/internal/orchestration"
)

// Destroy uninstalls the releases and deletes every cloud resource labeled
// with the project.
func Destroy(ctx context.Context, opts Options, dopts orchestration.DestroyOptions) error {
	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.close()

	orch, err := s.orchestrator(s.observer, !dopts.AppsOnly)
	if err != nil {
		return err
	}

	s.observer.Printf("Destroying project: %s", s.cfg.Name)
	if err := orch.Destroy(ctx, dopts); err != nil {
		return fmt.Errorf("destroy failed: %w", err)
	}

	if dopts.AppsOnly {
		fmt.Fprintf(stdout, "Releases of %s uninstalled\n", s.cfg.Name)
	} else {
		fmt.Fprintf(stdout, "Project %s destroyed\n", s.cfg.Name)
	}
	return nil
}
