// Package coord pumps session state into the running TUI.
package coord

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/callsight/internal/session"
	"github.com/abelbrown/callsight/internal/ui"
)

// Coordinator forwards controller snapshots to the Bubble Tea program as
// they are published. Runs themselves are launched by the UI through its
// command functions; the coordinator only moves state in the other
// direction. Uses context cancellation as the ONLY stop mechanism.
type Coordinator struct {
	updates <-chan session.State

	// send is the delivery function; Start wires it to program.Send.
	// Tests inject their own.
	send func(tea.Msg)

	g errgroup.Group
}

// NewCoordinator creates a Coordinator pumping the controller's feed.
func NewCoordinator(ctrl *session.Controller) *Coordinator {
	return &Coordinator{updates: ctrl.Updates()}
}

// NewCoordinatorWithUpdates allows injecting a custom snapshot feed (for
// testing).
func NewCoordinatorWithUpdates(updates <-chan session.State) *Coordinator {
	return &Coordinator{updates: updates}
}

// Start begins forwarding snapshots. Call with a cancellable context.
// A nil program is tolerated; snapshots are then drained and dropped.
func (c *Coordinator) Start(ctx context.Context, program *tea.Program) {
	if c.send == nil && program != nil {
		c.send = program.Send
	}

	c.g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case s, ok := <-c.updates:
				if !ok {
					return nil
				}
				if c.send != nil {
					c.send(ui.SessionUpdated{State: s})
				}
			}
		}
	})
}

// Wait blocks until the pump exits. Call after canceling the context
// passed to Start.
func (c *Coordinator) Wait() {
	_ = c.g.Wait()
}
