package deploy

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/dimo-network/k3sform/internal/config"
	"github.com/dimo-network/k3sform/internal/deploy/helm"
)

// Release names of the default catalog.
const (
	MetalLB             = "metallb"
	NginxIngress        = "nginx-ingress"
	PostgresOperator    = "postgres-operator"
	PostgresOperatorUI  = "postgres-operator-ui"
	PostgresCluster     = "zalando-postgres-cluster"
	Kafka               = "kafka"
	IdentityAPI         = "identity-api"
	CertManager         = "cert-manager"
	LinkerdCRDs         = "linkerd-crds"
	LinkerdControlPlane = "linkerd-control-plane"
)

const (
	zalandoRepo = "https://opensource.zalando.com/postgres-operator/charts/"
	linkerdRepo = "https://helm.linkerd.io/stable"
)

// DefaultCatalog returns the stock releases with their dependency edges.
// cert-manager and linkerd are present but disabled.
func DefaultCatalog(cfg *config.Config) []Release {
	local := func(name string) helm.ChartRef {
		return helm.ChartRef{Path: filepath.Join(cfg.ChartsDir, name)}
	}
	return []Release{
		{
			Name:      MetalLB,
			Chart:     helm.ChartRef{Repository: "https://metallb.github.io/metallb", Name: "metallb"},
			Namespace: "metallb-system",
			Enabled:   true,
		},
		{
			Name:      NginxIngress,
			Chart:     helm.ChartRef{Repository: "https://helm.nginx.com/stable", Name: "nginx-ingress"},
			Namespace: "nginx-ingress",
			Values:    IngressValues(),
			Enabled:   true,
		},
		{
			Name:      PostgresOperator,
			Chart:     helm.ChartRef{Repository: zalandoRepo + "postgres-operator", Name: "postgres-operator"},
			Namespace: "postgres-operator",
			Values:    helm.Values{"service": helm.Values{"type": "ClusterIP"}},
			Enabled:   true,
		},
		{
			Name:      PostgresOperatorUI,
			Chart:     helm.ChartRef{Repository: zalandoRepo + "postgres-operator-ui", Name: "postgres-operator-ui"},
			Namespace: "postgres-operator",
			Values:    helm.Values{"service": helm.Values{"type": "ClusterIP"}},
			Enabled:   true,
		},
		{
			Name:       PostgresCluster,
			Chart:      local(PostgresCluster),
			Namespace:  "postgres",
			Values:     PostgresValues(cfg),
			DependsOn:  []string{PostgresOperator, PostgresOperatorUI},
			Enabled:    true,
			NeedsNodes: true,
		},
		{
			Name:      Kafka,
			Chart:     helm.ChartRef{Repository: "https://charts.bitnami.com/bitnami", Name: "kafka"},
			Namespace: "kafka",
			Values:    KafkaValues(cfg),
			Enabled:   true,
		},
		{
			Name:      IdentityAPI,
			Chart:     local(IdentityAPI),
			Namespace: "identity-api",
			Values:    IdentityAPIValues(),
			DependsOn: []string{PostgresCluster, Kafka},
			Enabled:   true,
		},
		{
			Name:      CertManager,
			Chart:     helm.ChartRef{Repository: "https://charts.jetstack.io", Name: "cert-manager"},
			Namespace: "cert-manager",
			Values:    helm.Values{"installCRDs": true},
		},
		{
			Name:      LinkerdCRDs,
			Chart:     helm.ChartRef{Repository: linkerdRepo, Name: "linkerd-crds"},
			Namespace: "linkerd",
		},
		{
			Name:      LinkerdControlPlane,
			Chart:     helm.ChartRef{Repository: linkerdRepo, Name: "linkerd-control-plane"},
			Namespace: "linkerd",
			DependsOn: []string{LinkerdCRDs},
		},
	}
}

// Releases applies the configured applications to the default catalog and
// returns the enabled releases. defaultTimeout applies to every release
// without its own timeout.
func Releases(cfg *config.Config, defaultTimeout time.Duration) ([]Release, error) {
	catalog := DefaultCatalog(cfg)
	index := make(map[string]int, len(catalog))
	for i, r := range catalog {
		index[r.Name] = i
	}

	for _, app := range cfg.Applications {
		i, known := index[app.Name]
		if !known {
			rel, err := customRelease(app)
			if err != nil {
				return nil, err
			}
			index[app.Name] = len(catalog)
			catalog = append(catalog, rel)
			i = index[app.Name]
		}
		if err := applyOverride(&catalog[i], app); err != nil {
			return nil, err
		}
	}

	enabled := make(map[string]bool, len(catalog))
	var out []Release
	for _, r := range catalog {
		if !r.Enabled {
			continue
		}
		if r.Timeout == 0 {
			r.Timeout = defaultTimeout
		}
		enabled[r.Name] = true
		out = append(out, r)
	}
	for _, r := range out {
		for _, dep := range r.DependsOn {
			if enabled[dep] {
				continue
			}
			if _, exists := index[dep]; exists {
				return nil, fmt.Errorf("release %s depends on disabled release %s", r.Name, dep)
			}
			return nil, fmt.Errorf("release %s depends on unknown release %s", r.Name, dep)
		}
	}
	return out, nil
}

func customRelease(app config.Application) (Release, error) {
	if app.Path == "" && (app.Repository == "" || app.Chart == "") {
		return Release{}, fmt.Errorf("application %s is not in the default catalog and needs a path or a repository and chart", app.Name)
	}
	ns := app.Namespace
	if ns == "" {
		ns = app.Name
	}
	return Release{Name: app.Name, Namespace: ns, Enabled: true}, nil
}

func applyOverride(r *Release, app config.Application) error {
	if app.Enabled != nil {
		r.Enabled = *app.Enabled
	}
	switch {
	case app.Path != "":
		r.Chart = helm.ChartRef{Path: app.Path}
	case app.Repository != "" || app.Chart != "":
		if app.Repository != "" {
			r.Chart.Repository = app.Repository
		}
		if app.Chart != "" {
			r.Chart.Name = app.Chart
		}
		r.Chart.Path = ""
	}
	if app.Version != "" {
		r.Chart.Version = app.Version
	}
	if app.Namespace != "" {
		r.Namespace = app.Namespace
	}
	if app.DependsOn != nil {
		r.DependsOn = slices.Clone(*app.DependsOn)
	}
	if len(app.Values) > 0 {
		r.Overrides = helm.Merge(r.Overrides, app.Values)
	}
	r.ValuesFiles = append(r.ValuesFiles, app.ValuesFiles...)
	if app.Timeout != "" {
		d, err := time.ParseDuration(app.Timeout)
		if err != nil {
			return fmt.Errorf("application %s: invalid timeout %q: %w", app.Name, app.Timeout, err)
		}
		r.Timeout = d
	}
	return nil
}
