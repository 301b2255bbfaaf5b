package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/charmbracelet/log"

	"playbench/pkg/ansi"
	"playbench/pkg/term"
)

// chunkQueueDepth bounds the queue between the process reader and the
// parser. A slow consumer blocks the reader (and, via the pipe, the child
// process) instead of dropping or hoarding output.
const chunkQueueDepth = 64

// readChunkSize is the read size for process output.
const readChunkSize = 4096

// Runner spawns and supervises build processes.
type Runner struct {
	// BufferLines is the terminal buffer capacity per session;
	// term.DefaultCapacity when zero.
	BufferLines int

	logger *log.Logger
}

// New creates a Runner logging through logger, or log.Default when nil.
func New(logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{logger: logger}
}

// Start spawns the command in the project directory and returns a running
// session. The process's stdout and stderr share one pipe, so bytes reach
// the parser in arrival order; a goroutine streams them into the session's
// buffer incrementally.
//
// A spawn failure (missing toolchain, permissions) is not returned as an
// error: it is rendered into the session's buffer as an error line and the
// session is returned already in StateFailed, matching how compile errors
// surface.
//
// The context bounds the whole run; when it is cancelled the session is.
func (r *Runner) Start(ctx context.Context, project *Project, cmd Command) (*Session, error) {
	capacity := r.BufferLines
	if capacity == 0 {
		capacity = term.DefaultCapacity
	}
	session := newSession(term.NewBuffer(capacity))

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	proc := exec.Command(cmd.Path(), cmd.Args()...)
	proc.Dir = project.Dir
	proc.Stdout = pw
	proc.Stderr = pw
	proc.Env = append(os.Environ(), cmd.Env()...)
	proc.SysProcAttr = sysProcAttr()

	logger := r.logger.With("session", session.ID, "dir", project.Dir)
	logger.Debug("starting build", "program", cmd.Path(), "args", cmd.Args())

	if err := proc.Start(); err != nil {
		pr.Close()
		pw.Close()
		renderSpawnFailure(session.Buffer(), cmd.Path(), err)
		session.finish(StateFailed, -1)
		logger.Error("spawn failed", "err", err)
		return session, nil
	}
	// The child holds its own copy of the write end; closing ours makes the
	// reader see EOF when the child and its descendants exit.
	pw.Close()
	session.setProcess(proc.Process)

	chunks := make(chan []byte, chunkQueueDepth)

	go func() {
		defer pr.Close()
		defer close(chunks)
		buf := make([]byte, readChunkSize)
		for {
			n, err := pr.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				chunks <- chunk
			}
			if err != nil {
				return
			}
		}
	}()

	go func() {
		parser := ansi.NewParser()
		buffer := session.Buffer()
		for chunk := range chunks {
			for _, ev := range parser.Feed(chunk) {
				buffer.Apply(ev)
			}
		}

		err := proc.Wait()
		switch {
		case session.wasCancelled():
			logger.Debug("build cancelled")
			session.finish(StateCancelled, -1)
		case err == nil:
			logger.Debug("build succeeded")
			session.finish(StateSuccess, 0)
		default:
			code := -1
			if exit, ok := err.(*exec.ExitError); ok {
				code = exit.ExitCode()
			}
			logger.Debug("build failed", "code", code)
			session.finish(StateFailed, code)
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			session.Cancel()
		case <-session.Done():
		}
	}()

	return session, nil
}

// renderSpawnFailure writes a compiler-style error line into the buffer.
func renderSpawnFailure(buffer *term.Buffer, program string, err error) {
	buffer.Append(ansi.Style{Fg: ansi.BasicOf(ansi.Red), Bold: true}, "error")
	buffer.Append(ansi.Style{}, fmt.Sprintf(": failed to start %s: %v", program, err))
	buffer.NewLine()
}
