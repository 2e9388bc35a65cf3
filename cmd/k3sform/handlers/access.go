package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/dimo-network/k3sform/internal/outputs"
)

// Kubeconfig prints the kubeconfig stored by the last apply.
func Kubeconfig(ctx context.Context, opts Options) error {
	out, err := storedOutputs(ctx, opts)
	if err != nil {
		return err
	}
	if len(out.Kubeconfig) == 0 {
		return fmt.Errorf("stored outputs have no kubeconfig; run 'k3sform apply' first")
	}
	_, err = stdout.Write(out.Kubeconfig)
	return err
}

// Outputs prints the stored outputs document.
func Outputs(ctx context.Context, opts Options) error {
	out, err := storedOutputs(ctx, opts)
	if err != nil {
		return err
	}
	data, err := outputs.Marshal(out)
	if err != nil {
		return err
	}
	_, err = stdout.Write(data)
	return err
}

// Nodes lists the ready nodes of the cluster.
func Nodes(ctx context.Context, opts Options) error {
	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.close()

	orch, err := s.orchestrator(s.observer, false)
	if err != nil {
		return err
	}
	names, err := orch.Nodes(ctx)
	if errors.Is(err, outputs.ErrNotFound) {
		return fmt.Errorf("nothing applied yet: %w", err)
	}
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(stdout, n)
	}
	return nil
}

func storedOutputs(ctx context.Context, opts Options) (*outputs.Outputs, error) {
	s, err := openSession(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer s.close()

	out, err := s.store.Load(ctx)
	if errors.Is(err, outputs.ErrNotFound) {
		return nil, fmt.Errorf("nothing applied yet (%s): %w", s.store.Location(), err)
	}
	return out, err
}
