package deploy

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/dimo-network/k3sform/internal/deploy/helm"
	"github.com/dimo-network/k3sform/internal/util/labels"
)

// ValueInjector computes values at task run time, typically from resolved
// futures.
type ValueInjector func(ctx context.Context) (helm.Values, error)

// Namespace is a namespace the releases are installed into.
type Namespace struct {
	Name   string
	Labels map[string]string
}

// Release is one Helm release of the deployment.
type Release struct {
	Name      string
	Chart     helm.ChartRef
	Namespace string
	// Values are the built-in defaults.
	Values helm.Values
	// ValuesFiles and Overrides come from configuration and win over
	// Values and injected values.
	ValuesFiles []string
	Overrides   helm.Values
	DependsOn   []string
	Timeout     time.Duration
	Enabled     bool
	// NeedsNodes sequences the release after node discovery.
	NeedsNodes bool
	Injectors  []ValueInjector
}

// TaskName is the graph task that installs the release.
func (r Release) TaskName() string { return ReleaseTask(r.Name) }

// ReleaseTask names the graph task of a release.
func ReleaseTask(name string) string { return "release/" + name }

// NamespaceTask names the graph task of a namespace.
func NamespaceTask(name string) string { return "namespace/" + name }

// RenderValues merges defaults, injected values, values files and inline
// overrides, in that order.
func (r Release) RenderValues(ctx context.Context) (helm.Values, error) {
	layers := []helm.Values{r.Values}
	for _, inject := range r.Injectors {
		v, err := inject(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to compute values for %s: %w", r.Name, err)
		}
		layers = append(layers, v)
	}
	if len(r.ValuesFiles) > 0 {
		fromFiles, err := helm.ReadFiles(r.ValuesFiles...)
		if err != nil {
			return nil, err
		}
		layers = append(layers, fromFiles)
	}
	layers = append(layers, r.Overrides)
	return helm.Merge(layers...), nil
}

// Request builds the Helm request for rendered values.
func (r Release) Request(values helm.Values) helm.Request {
	return helm.Request{
		Name:      r.Name,
		Namespace: r.Namespace,
		Chart:     r.Chart,
		Values:    values,
		Timeout:   r.Timeout,
	}
}

// Namespaces returns the distinct namespaces of releases, sorted by name.
func Namespaces(project string, releases []Release) []Namespace {
	seen := map[string]bool{}
	for _, r := range releases {
		seen[r.Namespace] = true
	}
	out := make([]Namespace, 0, len(seen))
	for _, name := range slices.Sorted(maps.Keys(seen)) {
		out = append(out, Namespace{
			Name: name,
			Labels: map[string]string{
				"app.kubernetes.io/managed-by": labels.ManagedBy,
				labels.KeyProject:              project,
			},
		})
	}
	return out
}
