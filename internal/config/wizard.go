package config

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/charmbracelet/huh"
)

// WizardResult holds the answers of the init wizard.
type WizardResult struct {
	Name            string
	Location        string
	MachineType     string
	SourceRange     string
	KubePort        string
	ReservedAddress bool
	DiscoverNodes   bool
}

// RunWizard asks for the handful of settings that differ between
// deployments.
func RunWizard(ctx context.Context) (*WizardResult, error) {
	r := &WizardResult{
		Name:            DefaultName,
		Location:        DefaultLocation,
		MachineType:     DefaultMachineType,
		KubePort:        strconv.Itoa(DefaultKubePort),
		ReservedAddress: true,
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Project name").
				Description("Prefix for every cloud resource (lowercase, DNS-safe)").
				Value(&r.Name).
				Validate(validateName),
			huh.NewSelect[string]().
				Title("Location").
				Options(
					huh.NewOption("Falkenstein, Germany (fsn1)", "fsn1"),
					huh.NewOption("Nuremberg, Germany (nbg1)", "nbg1"),
					huh.NewOption("Helsinki, Finland (hel1)", "hel1"),
					huh.NewOption("Ashburn, USA (ash)", "ash"),
					huh.NewOption("Hillsboro, USA (hil)", "hil"),
					huh.NewOption("Singapore (sin)", "sin"),
				).
				Value(&r.Location),
			huh.NewSelect[string]().
				Title("Machine type").
				Options(
					huh.NewOption("CX22 - 2 vCPU, 4GB RAM", "cx22"),
					huh.NewOption("CX32 - 4 vCPU, 8GB RAM", "cx32"),
					huh.NewOption("CX42 - 8 vCPU, 16GB RAM", "cx42"),
				).
				Value(&r.MachineType),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Allowed source range").
				Description("CIDR allowed to reach SSH and the Kubernetes API, usually your public IP as /32").
				Placeholder("203.0.113.7/32").
				Value(&r.SourceRange).
				Validate(func(s string) error {
					_, _, err := net.ParseCIDR(s)
					return err
				}),
			huh.NewInput().
				Title("Kubernetes API port").
				Value(&r.KubePort).
				Validate(func(s string) error {
					p, err := strconv.Atoi(s)
					if err != nil || !validPort(p) {
						return fmt.Errorf("enter a port between 1 and 65535")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Reserve a public address for the ingress controller?").
				Value(&r.ReservedAddress),
			huh.NewConfirm().
				Title("Discover node names after bootstrap?").
				Value(&r.DiscoverNodes),
		),
	)

	if err := form.RunWithContext(ctx); err != nil {
		return nil, fmt.Errorf("wizard canceled: %w", err)
	}
	return r, nil
}

// ToConfig converts the answers into a defaulted Config.
func (r *WizardResult) ToConfig() *Config {
	port, _ := strconv.Atoi(r.KubePort)
	reserved := r.ReservedAddress
	cfg := &Config{
		Name:            r.Name,
		Location:        r.Location,
		NetworkZone:     ValidLocations[r.Location],
		MachineType:     r.MachineType,
		InstanceTag:     r.Name,
		KubePort:        port,
		SourceRanges:    []string{r.SourceRange},
		ReservedAddress: ReservedAddressConfig{Enabled: &reserved},
		DiscoverNodes:   r.DiscoverNodes,
	}
	cfg.ApplyDefaults()
	return cfg
}
