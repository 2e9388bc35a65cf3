package helm

import (
	"context"
	"fmt"
	"net/url"

	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/cli"
	"helm.sh/helm/v3/pkg/getter"
	"helm.sh/helm/v3/pkg/repo"
)

// ChartRef names a chart either in a repository or on local disk.
type ChartRef struct {
	Repository string
	Name       string
	Version    string
	// Path is a local chart directory or archive. It takes precedence over
	// Repository.
	Path string
}

func (r ChartRef) String() string {
	if r.Path != "" {
		return r.Path
	}
	if r.Version == "" {
		return r.Repository + "/" + r.Name
	}
	return r.Repository + "/" + r.Name + "@" + r.Version
}

// ChartLoader resolves a ChartRef to a loaded chart.
type ChartLoader func(ctx context.Context, ref ChartRef) (*chart.Chart, error)

// LoadChart loads a local chart or downloads one from its repository.
func LoadChart(_ context.Context, ref ChartRef) (*chart.Chart, error) {
	if ref.Path != "" {
		ch, err := loader.Load(ref.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load chart from %s: %w", ref.Path, err)
		}
		return ch, nil
	}
	if ref.Repository == "" || ref.Name == "" {
		return nil, fmt.Errorf("chart reference needs a repository and a name or a path")
	}

	getters := getter.All(cli.New())
	chartURL, err := repo.FindChartInRepoURL(ref.Repository, ref.Name, ref.Version, "", "", "", getters)
	if err != nil {
		return nil, fmt.Errorf("failed to find chart %s in repo %s: %w", ref.Name, ref.Repository, err)
	}
	u, err := url.Parse(chartURL)
	if err != nil {
		return nil, fmt.Errorf("invalid chart URL %q: %w", chartURL, err)
	}
	g, err := getters.ByScheme(u.Scheme)
	if err != nil {
		return nil, fmt.Errorf("no getter for %s: %w", chartURL, err)
	}
	buf, err := g.Get(chartURL, getter.WithURL(ref.Repository))
	if err != nil {
		return nil, fmt.Errorf("failed to download chart %s: %w", chartURL, err)
	}
	ch, err := loader.LoadArchive(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to load chart %s: %w", chartURL, err)
	}
	return ch, nil
}
