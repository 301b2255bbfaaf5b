package runner

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"playbench/pkg/term"
)

// State is a build session's lifecycle state.
type State uint8

const (
	// StateRunning means the process is alive.
	StateRunning State = iota
	// StateSuccess means the process exited with code zero.
	StateSuccess
	// StateFailed means the process exited nonzero or could not be spawned.
	StateFailed
	// StateCancelled means the session was cancelled before the process
	// finished on its own.
	StateCancelled
)

// String returns the state name for logs and API responses.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "cancelled"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool { return s != StateRunning }

// Session supervises one build process. It owns a fresh terminal buffer
// that the process's combined stdout/stderr is rendered into; nothing from
// a prior session leaks into it.
//
// All methods are safe for concurrent use.
type Session struct {
	// ID uniquely identifies the session.
	ID uuid.UUID
	// StartTime is when the process was spawned.
	StartTime time.Time

	buffer *term.Buffer
	done   chan struct{}

	mu        sync.Mutex
	state     State
	exitCode  int
	cancelled bool
	proc      *os.Process
}

func newSession(buffer *term.Buffer) *Session {
	return &Session{
		ID:        uuid.New(),
		StartTime: time.Now(),
		buffer:    buffer,
		done:      make(chan struct{}),
	}
}

// Buffer returns the session's terminal buffer. Renderers poll its
// Snapshot; the session's writer goroutine is the only mutator.
func (s *Session) Buffer() *term.Buffer { return s.buffer }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ExitCode returns the process exit code. It is meaningful only once the
// state is StateSuccess or StateFailed.
func (s *Session) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Done is closed once the session reaches a terminal state and all output
// has been applied to the buffer.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session finishes or the context is done.
func (s *Session) Wait(ctx context.Context) (State, error) {
	select {
	case <-s.done:
		return s.State(), nil
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}
}

// Cancel terminates the session's process and its children. It is
// idempotent: cancelling twice, or cancelling a finished session, is a
// no-op. The session reaches StateCancelled once the reader drains.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.state.Terminal() || s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	proc := s.proc
	s.mu.Unlock()

	if proc != nil {
		killTree(proc)
	}
}

// finish records the terminal state and releases waiters. exitCode applies
// to StateFailed and StateSuccess.
func (s *Session) finish(state State, exitCode int) {
	s.mu.Lock()
	if !s.state.Terminal() {
		s.state = state
		s.exitCode = exitCode
	}
	s.mu.Unlock()
	close(s.done)
}

// wasCancelled reports whether Cancel was requested.
func (s *Session) wasCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *Session) setProcess(p *os.Process) {
	s.mu.Lock()
	s.proc = p
	s.mu.Unlock()
}
