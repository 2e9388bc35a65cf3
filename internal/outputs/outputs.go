package outputs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by Load when nothing was stored yet.
var ErrNotFound = errors.New("no outputs stored")

// Outputs is the result of a successful apply.
type Outputs struct {
	Project      string    `yaml:"project"`
	RunID        string    `yaml:"runId"`
	AppliedAt    time.Time `yaml:"appliedAt"`
	InstanceName string    `yaml:"instanceName"`
	ServerID     int64     `yaml:"serverId,omitempty"`
	ExternalIP   string    `yaml:"externalIp"`
	InternalIP   string    `yaml:"internalIp"`
	ReservedIP   string    `yaml:"reservedIp,omitempty"`
	APIServer    string    `yaml:"apiServer"`
	NodeNames    []string  `yaml:"nodeNames,omitempty"`
	// Releases maps release names to the last Helm action.
	Releases map[string]string `yaml:"releases,omitempty"`

	// Kubeconfig is stored next to the document, never inside it.
	Kubeconfig []byte `yaml:"-"`
}

// Store saves and loads outputs.
type Store interface {
	Save(ctx context.Context, o *Outputs) error
	Load(ctx context.Context) (*Outputs, error)
	Delete(ctx context.Context) error
	Location() string
}

// Marshal renders the document.
func Marshal(o *Outputs) ([]byte, error) {
	data, err := yaml.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outputs: %w", err)
	}
	return data, nil
}

// Unmarshal parses a document.
func Unmarshal(data []byte) (*Outputs, error) {
	var o Outputs
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse outputs: %w", err)
	}
	return &o, nil
}
