package provisioning

import (
	"fmt"
	"strings"

	"github.com/dimo-network/k3sform/internal/config"
)

// Preflight runs the configuration checks before anything touches the cloud.
// Warnings are reported as events; errors fail the run.
func Preflight(obs Observer, cfg *config.Config) error {
	obs.Printf("[Validation] Running pre-flight validation...")

	var errs config.ValidationErrors
	for _, finding := range cfg.Check() {
		if finding.IsError() {
			errs = append(errs, finding)
			continue
		}
		obs.Event(Event{
			Type:    EventValidationWarning,
			Phase:   "validation",
			Message: finding.Message,
			Fields:  map[string]string{"field": finding.Field},
		})
	}

	if len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  %s: %w", strings.Join(msgs, "\n  "), errs)
	}

	obs.Printf("[Validation] Validation passed")
	return nil
}
