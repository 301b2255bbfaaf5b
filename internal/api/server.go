// Package api exposes the build pipeline over a local HTTP API, so editor
// and UI collaborators can trigger builds and poll styled output.
//
// Endpoints:
//
//	POST   /v1/builds            run a snippet (infer, resolve, build)
//	GET    /v1/builds/{id}       session status
//	GET    /v1/builds/{id}/output  styled terminal lines
//	DELETE /v1/builds/{id}       cancel the session
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"playbench/pkg/errors"
	"playbench/pkg/infer"
	"playbench/pkg/manifest"
	"playbench/pkg/registry"
	"playbench/pkg/runner"
)

// Config wires the pipeline services into a Server.
type Config struct {
	Resolver *registry.Resolver
	Runner   *runner.Runner
	// Command is the base build invocation; per-request options are layered
	// on top of it.
	Command runner.Command
	// Manifest controls the generated [package] stanza.
	Manifest manifest.Options
	Logger   *log.Logger
}

// Server owns build sessions created over HTTP. Builds are grouped into tab
// contexts: each tab holds at most one live session, and a new build on a
// tab displaces the running one. Finished sessions stay queryable until the
// server shuts down.
type Server struct {
	cfg    Config
	logger *log.Logger

	// ctx parents every session so Shutdown can cancel them all.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	consoles map[string]*runner.Console
	builds   map[uuid.UUID]*build
}

type build struct {
	session  *runner.Session
	resolved []registry.Resolved
}

// NewServer creates a Server from cfg.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		logger:   cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
		consoles: make(map[string]*runner.Console),
		builds:   make(map[uuid.UUID]*build),
	}
}

// Shutdown cancels every live session.
func (s *Server) Shutdown() {
	s.cancel()
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/v1/builds", func(r chi.Router) {
		r.Post("/", s.createBuild)
		r.Get("/{id}", s.getBuild)
		r.Get("/{id}/output", s.getOutput)
		r.Delete("/{id}", s.cancelBuild)
	})
	return r
}

type buildRequest struct {
	// Source is the snippet to build and run.
	Source string `json:"source"`
	// Overrides is an optional raw manifest fragment; its entries win over
	// inferred dependencies.
	Overrides string `json:"overrides,omitempty"`
	// Tab names the tab context; one live session per tab. Empty means the
	// default tab.
	Tab string `json:"tab,omitempty"`
	// Release builds with optimizations.
	Release bool `json:"release,omitempty"`
	// Channel selects a toolchain.
	Channel string `json:"channel,omitempty"`
	// Refresh bypasses the resolution cache.
	Refresh bool `json:"refresh,omitempty"`
}

type buildResponse struct {
	ID           string              `json:"id"`
	State        string              `json:"state"`
	ExitCode     *int                `json:"exit_code,omitempty"`
	StartTime    time.Time           `json:"start_time"`
	Dependencies []registry.Resolved `json:"dependencies"`
}

func (s *Server) createBuild(w http.ResponseWriter, r *http.Request) {
	var req buildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New(errors.ErrCodeInvalidInput, "decode request: %v", err))
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, errors.New(errors.ErrCodeInvalidSource, "source is required"))
		return
	}

	scanned := infer.Scan(req.Source)
	overrides := &manifest.Overrides{}
	if err := overrides.AddDirectives(scanned.Directives); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if req.Overrides != "" {
		if err := overrides.AddFragment(req.Overrides); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
	}

	resolved := s.resolve(r.Context(), scanned.Candidates, overrides, req.Refresh)

	effective, err := manifest.Synthesize(resolved, overrides, s.cfg.Manifest)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	project, err := runner.Materialize(effective, req.Source)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	cmd := s.cfg.Command
	cmd.Release = cmd.Release || req.Release
	if req.Channel != "" {
		cmd.Channel = req.Channel
	}

	// Sessions outlive the request; they are parented to the server.
	session, err := s.console(req.Tab).Start(s.ctx, project, cmd)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.mu.Lock()
	s.builds[session.ID] = &build{session: session, resolved: resolved}
	s.mu.Unlock()

	s.logger.Info("build started", "id", session.ID, "tab", req.Tab, "deps", len(resolved))
	writeJSON(w, http.StatusAccepted, sessionResponse(session, resolved))
}

// resolve maps candidates to registry names, skipping any name the user
// already overrode.
func (s *Server) resolve(ctx context.Context, candidates []infer.Candidate, overrides *manifest.Overrides, refresh bool) []registry.Resolved {
	var ids []string
candidates:
	for _, c := range candidates {
		for _, name := range overrides.Names() {
			if infer.NamesEqual(c.Identifier, name) {
				continue candidates
			}
		}
		ids = append(ids, c.Identifier)
	}
	if refresh {
		out := make([]registry.Resolved, len(ids))
		for i, id := range ids {
			out[i] = s.cfg.Resolver.Refresh(ctx, id)
		}
		return out
	}
	return s.cfg.Resolver.ResolveAll(ctx, ids)
}

func (s *Server) lookup(r *http.Request) (*build, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "invalid build id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.builds[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeSessionNotFound, "no build with id %s", id)
	}
	return b, nil
}

func (s *Server) getBuild(w http.ResponseWriter, r *http.Request) {
	b, err := s.lookup(r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(b.session, b.resolved))
}

type outputResponse struct {
	State string     `json:"state"`
	Lines []lineJSON `json:"lines"`
}

type lineJSON struct {
	Runs []runJSON `json:"runs"`
}

type runJSON struct {
	Text          string `json:"text"`
	Fg            string `json:"fg,omitempty"`
	Bg            string `json:"bg,omitempty"`
	Bold          bool   `json:"bold,omitempty"`
	Dim           bool   `json:"dim,omitempty"`
	Italic        bool   `json:"italic,omitempty"`
	Underline     bool   `json:"underline,omitempty"`
	Reverse       bool   `json:"reverse,omitempty"`
	Strikethrough bool   `json:"strikethrough,omitempty"`
}

func (s *Server) getOutput(w http.ResponseWriter, r *http.Request) {
	b, err := s.lookup(r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	snapshot := b.session.Buffer().Snapshot()
	resp := outputResponse{State: b.session.State().String(), Lines: make([]lineJSON, len(snapshot))}
	for i, line := range snapshot {
		runs := make([]runJSON, len(line.Runs))
		for j, run := range line.Runs {
			runs[j] = runJSON{
				Text:          run.Text,
				Fg:            run.Style.Fg.String(),
				Bg:            run.Style.Bg.String(),
				Bold:          run.Style.Bold,
				Dim:           run.Style.Dim,
				Italic:        run.Style.Italic,
				Underline:     run.Style.Underline,
				Reverse:       run.Style.Reverse,
				Strikethrough: run.Style.Strikethrough,
			}
		}
		resp.Lines[i] = lineJSON{Runs: runs}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) cancelBuild(w http.ResponseWriter, r *http.Request) {
	b, err := s.lookup(r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	b.session.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) console(tab string) *runner.Console {
	if tab == "" {
		tab = "default"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consoles[tab]
	if !ok {
		c = runner.NewConsole(s.cfg.Runner)
		s.consoles[tab] = c
	}
	return c
}

func sessionResponse(session *runner.Session, resolved []registry.Resolved) buildResponse {
	resp := buildResponse{
		ID:           session.ID.String(),
		State:        session.State().String(),
		StartTime:    session.StartTime,
		Dependencies: resolved,
	}
	if state := session.State(); state == runner.StateSuccess || state == runner.StateFailed {
		code := session.ExitCode()
		resp.ExitCode = &code
	}
	return resp
}

func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeSessionNotFound, errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidSource:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{
		Error: errors.UserMessage(err),
		Code:  string(errors.GetCode(err)),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
