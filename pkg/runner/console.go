package runner

import (
	"context"
	"sync"
)

// Console serializes builds for one tab context: at most one live session
// at a time. Starting a new build cancels the active session and waits for
// it to reach a terminal state before the new one is spawned, so the old
// session is Cancelled strictly before the new one is Running.
//
// Each session gets a fresh terminal buffer; a finished session's output
// stays readable through its own handle until the caller drops it.
type Console struct {
	runner *Runner

	// startMu serializes Start end to end, displacement wait included.
	startMu sync.Mutex

	mu      sync.Mutex
	session *Session
}

// NewConsole creates a console backed by runner.
func NewConsole(runner *Runner) *Console {
	return &Console{runner: runner}
}

// Start begins a new build, displacing any active one first.
func (c *Console) Start(ctx context.Context, project *Project, cmd Command) (*Session, error) {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if prev := c.Session(); prev != nil && !prev.State().Terminal() {
		prev.Cancel()
		if _, err := prev.Wait(ctx); err != nil {
			return nil, err
		}
	}

	session, err := c.runner.Start(ctx, project, cmd)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	return session, nil
}

// Session returns the most recently started session, nil before the first.
func (c *Console) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Cancel cancels the active session, if any. A no-op otherwise.
func (c *Console) Cancel() {
	if s := c.Session(); s != nil {
		s.Cancel()
	}
}
