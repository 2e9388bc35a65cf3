package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dimo-network/k3sform/internal/provisioning"
)

// RunApply shows the apply progress while applyFn runs. Events reach the
// view through the observer handed to applyFn; callers usually combine it
// with their log observer. Quitting the view cancels the apply and waits
// for it to stop.
func RunApply(
	ctx context.Context,
	project, location string,
	plan []string,
	applyFn func(ctx context.Context, obs provisioning.Observer) error,
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := NewApplyModel(project, location, plan)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	result := make(chan error, 1)
	go func() {
		err := applyFn(ctx, NewObserver(p))
		result <- err
		p.Send(DoneMsg{Err: err})
	}()

	finalModel, runErr := p.Run()
	if fm, ok := finalModel.(Model); ok && fm.Done && runErr == nil {
		return fm.Err
	}

	cancel()
	applyErr := <-result
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return errors.Join(fmt.Errorf("TUI error: %w", runErr), applyErr)
	}
	if applyErr != nil {
		return applyErr
	}
	return fmt.Errorf("apply interrupted")
}
