package destroy

import (
	"context"
	"fmt"
	"time"

	"github.com/dimo-network/k3sform/internal/config"
	"github.com/dimo-network/k3sform/internal/provisioning"
	"github.com/dimo-network/k3sform/internal/util/labels"
)

const phase = "destroy"

// Cleaner deletes resources by label.
type Cleaner interface {
	CleanupByLabel(ctx context.Context, labels map[string]string) error
}

// Provisioner removes every resource of the configured project.
type Provisioner struct {
	cfg      *config.Config
	infra    Cleaner
	observer provisioning.Observer
}

// NewProvisioner creates a destroy provisioner.
func NewProvisioner(cfg *config.Config, infra Cleaner, observer provisioning.Observer) *Provisioner {
	return &Provisioner{cfg: cfg, infra: infra, observer: observer}
}

// Provision deletes the project's resources.
func (p *Provisioner) Provision(ctx context.Context) error {
	start := time.Now()
	provisioning.LogPhaseStart(p.observer, phase)

	// Only the project label: resources from older runs may carry other
	// managed-by or tag values.
	selector := labels.ForProject(p.cfg.Name)
	p.observer.Printf("[%s] Deleting resources labelled %s...", phase, labels.Selector(selector))

	if err := p.infra.CleanupByLabel(ctx, selector); err != nil {
		err = fmt.Errorf("failed to clean up project resources: %w", err)
		provisioning.LogPhaseFailed(p.observer, phase, err)
		return err
	}
	provisioning.LogPhaseComplete(p.observer, phase, time.Since(start))
	return nil
}
