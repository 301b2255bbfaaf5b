package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"playbench/pkg/cache"
	"playbench/pkg/registry"
	"playbench/pkg/runner"
)

// newRegistry serves a minimal slice of the crates.io API.
func newRegistry(t *testing.T, crates map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for name, version := range crates {
		mux.HandleFunc("/crates/"+name, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{"crate":{"name":%q,"max_version":%q}}`, name, version)
		})
	}
	mux.HandleFunc("/", http.NotFound)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newTestServer builds a Server whose "cargo" is a shell script, so builds
// finish without a Rust toolchain.
func newTestServer(t *testing.T, crates map[string]string, script string) *httptest.Server {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test scripts need a POSIX shell")
	}
	t.Setenv("TMPDIR", t.TempDir())

	registrySrv := newRegistry(t, crates)
	client := registry.NewCratesClient(cache.NewMemoryCache(), time.Hour)
	client.SetBaseURL(registrySrv.URL)

	server := NewServer(Config{
		Resolver: registry.NewResolver(client, cache.NewMemoryCache(), nil),
		Runner:   runner.New(nil),
		Command:  runner.Command{Program: "/bin/sh", Subcommand: "-c", SubcommandFlags: []string{script}},
	})
	t.Cleanup(server.Shutdown)

	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)
	return srv
}

func postBuild(t *testing.T, srv *httptest.Server, body string) (int, buildResponse) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/builds", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var build buildResponse
	if resp.StatusCode == http.StatusAccepted {
		if err := json.NewDecoder(resp.Body).Decode(&build); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode, build
}

func getBuild(t *testing.T, srv *httptest.Server, id string) (int, buildResponse) {
	t.Helper()
	resp, err := http.Get(srv.URL + "/v1/builds/" + id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var build buildResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&build); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode, build
}

func awaitTerminal(t *testing.T, srv *httptest.Server, id string) buildResponse {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		status, build := getBuild(t, srv, id)
		if status != http.StatusOK {
			t.Fatalf("status = %d", status)
		}
		if build.State != "running" {
			return build
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("build did not finish")
	return buildResponse{}
}

func TestBuildLifecycle(t *testing.T) {
	srv := newTestServer(t, map[string]string{"serde_json": "1.0.193"},
		`printf 'Compiling\n\033[32mok\033[0m\n'`)

	status, created := postBuild(t, srv,
		`{"source": "use serde_json::Value;\nfn main() {}\n"}`)
	if status != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", status)
	}
	if len(created.Dependencies) != 1 {
		t.Fatalf("dependencies = %v, want one", created.Dependencies)
	}
	dep := created.Dependencies[0]
	if dep.Identifier != "serde_json" || dep.RegistryName != "serde_json" || dep.Resolution != registry.Exact {
		t.Errorf("dependency = %+v, want exact serde_json", dep)
	}

	final := awaitTerminal(t, srv, created.ID)
	if final.State != "success" {
		t.Fatalf("state = %q, want success", final.State)
	}
	if final.ExitCode == nil || *final.ExitCode != 0 {
		t.Errorf("exit_code = %v, want 0", final.ExitCode)
	}

	resp, err := http.Get(srv.URL + "/v1/builds/" + created.ID + "/output")
	if err != nil {
		t.Fatalf("get output: %v", err)
	}
	defer resp.Body.Close()
	var output outputResponse
	if err := json.NewDecoder(resp.Body).Decode(&output); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(output.Lines) != 2 {
		t.Fatalf("lines = %+v, want 2", output.Lines)
	}
	ok := output.Lines[1].Runs[0]
	if ok.Text != "ok" || ok.Fg != "green" {
		t.Errorf("styled run = %+v, want green ok", ok)
	}
}

func TestBuildValidation(t *testing.T) {
	srv := newTestServer(t, nil, "true")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty source", `{"source": ""}`, http.StatusBadRequest},
		{"malformed json", `{`, http.StatusBadRequest},
		{"broken override fragment", `{"source": "fn main() {}", "overrides": "= not toml"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, _ := postBuild(t, srv, tt.body); status != tt.want {
				t.Errorf("status = %d, want %d", status, tt.want)
			}
		})
	}
}

func TestBuildNotFound(t *testing.T) {
	srv := newTestServer(t, nil, "true")

	if status, _ := getBuild(t, srv, "7f3c1893-9d6e-4f6e-9a3e-3b17a76cf7a1"); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
	if status, _ := getBuild(t, srv, "not-a-uuid"); status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

func TestTabDisplacement(t *testing.T) {
	srv := newTestServer(t, nil, "sleep 30")

	_, first := postBuild(t, srv, `{"source": "fn main() {}", "tab": "left"}`)
	_, second := postBuild(t, srv, `{"source": "fn main() { let _ = 1; }", "tab": "left"}`)

	// The POST for the second build returns only after the first was
	// displaced.
	if _, b := getBuild(t, srv, first.ID); b.State != "cancelled" {
		t.Errorf("first state = %q, want cancelled", b.State)
	}
	if second.State != "running" {
		t.Errorf("second state = %q, want running", second.State)
	}
}

func TestSeparateTabsRunConcurrently(t *testing.T) {
	srv := newTestServer(t, nil, "sleep 30")

	_, first := postBuild(t, srv, `{"source": "fn main() {}", "tab": "left"}`)
	_, second := postBuild(t, srv, `{"source": "fn main() { let _ = 1; }", "tab": "right"}`)

	if _, b := getBuild(t, srv, first.ID); b.State != "running" {
		t.Errorf("first state = %q, want still running", b.State)
	}
	if second.State != "running" {
		t.Errorf("second state = %q, want running", second.State)
	}
}

func TestCancelBuild(t *testing.T) {
	srv := newTestServer(t, nil, "sleep 30")

	_, created := postBuild(t, srv, `{"source": "fn main() {}"}`)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/builds/"+created.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	if final := awaitTerminal(t, srv, created.ID); final.State != "cancelled" {
		t.Errorf("state = %q, want cancelled", final.State)
	}

	// Cancelling a finished build is a no-op, not an error.
	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/v1/builds/"+created.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
}

func TestInlineDirectiveSkipsResolution(t *testing.T) {
	// No registry entries at all: the directive must keep rmp_serde out of
	// resolution, and the unknown crate passes through as Unresolved.
	srv := newTestServer(t, nil, "true")

	source := "//# rmp-serde = \"1\"\nuse rmp_serde::to_vec;\nuse no_such_crate::x;\nfn main() {}\n"
	body, _ := json.Marshal(map[string]string{"source": source})
	status, created := postBuild(t, srv, string(bytes.TrimSpace(body)))
	if status != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", status)
	}
	if len(created.Dependencies) != 1 {
		t.Fatalf("dependencies = %+v, want only the unresolved crate", created.Dependencies)
	}
	dep := created.Dependencies[0]
	if dep.Identifier != "no_such_crate" || dep.Resolution != registry.Unresolved {
		t.Errorf("dependency = %+v, want unresolved no_such_crate", dep)
	}
}
