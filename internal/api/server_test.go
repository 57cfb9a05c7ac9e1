package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/pyros-projects/clawde/internal/agent"
	"github.com/pyros-projects/clawde/internal/beads"
	"github.com/pyros-projects/clawde/internal/coordinator"
	"github.com/pyros-projects/clawde/internal/eventbus"
	"github.com/pyros-projects/clawde/internal/gitvcs"
	"github.com/pyros-projects/clawde/internal/openspec"
	"github.com/pyros-projects/clawde/pkg/cerr"
)

func noCLI(_ context.Context, _ string, _ ...string) ([]byte, error) {
	return nil, errors.New("not installed")
}

type fixture struct {
	root  string
	coord *coordinator.Coordinator
	srv   *httptest.Server
}

func newFixture(t *testing.T, beadsRun beads.Runner) *fixture {
	t.Helper()
	root := t.TempDir()
	if beadsRun == nil {
		beadsRun = noCLI
	}
	coord := coordinator.NewForTest(root,
		openspec.NewAdapter(),
		beads.NewAdapterWithRunner(beadsRun),
		gitvcs.NewAdapterWithRunner(noCLI),
		eventbus.New())

	r := chi.NewRouter()
	r.Use(cerr.NewJSONResponseChiMiddleware())
	NewServer(coord, agent.NewService()).Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		coord.StopWatching()
	})
	return &fixture{root: root, coord: coord, srv: srv}
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func TestGetProject(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := http.Get(f.srv.URL + "/project")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	proj := body["project"].(map[string]any)
	require.Equal(t, filepath.Base(f.root), proj["name"])
	require.Equal(t, false, proj["hasBeads"])
}

func TestListTasksReadyFilter(t *testing.T) {
	run := func(_ context.Context, _ string, args ...string) ([]byte, error) {
		switch args[0] {
		case "list":
			return []byte(`[
				{"id":"X-1","title":"A","status":"closed"},
				{"id":"X-2","title":"B","status":"open"},
				{"id":"X-3","title":"C","status":"open"}
			]`), nil
		case "dep":
			if args[2] == "X-3" {
				return []byte(`[{"from":"X-3","to":"X-2"}]`), nil
			}
			return []byte(`[]`), nil
		}
		return nil, errors.New("unexpected")
	}
	f := newFixture(t, run)
	require.NoError(t, os.Mkdir(filepath.Join(f.root, ".beads"), 0755))

	resp, err := http.Get(f.srv.URL + "/tasks")
	require.NoError(t, err)
	body := decode(t, resp)
	require.Len(t, body["tasks"], 3)

	resp, err = http.Get(f.srv.URL + "/tasks?ready=true")
	require.NoError(t, err)
	body = decode(t, resp)
	tasks := body["tasks"].([]any)
	require.Len(t, tasks, 1)
	require.Equal(t, "X-2", tasks[0].(map[string]any)["id"])
}

func TestGetTaskNotFound(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := http.Get(f.srv.URL + "/tasks/nope-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateTaskRequiresTracker(t *testing.T) {
	f := newFixture(t, nil)
	req, err := http.NewRequest(http.MethodPatch, f.srv.URL+"/tasks/X-1", strings.NewReader(`{"status":"done"}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
}

func TestUpdateTaskInvalidID(t *testing.T) {
	f := newFixture(t, nil)
	req, err := http.NewRequest(http.MethodPatch, f.srv.URL+"/tasks/bad_id", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateChange(t *testing.T) {
	f := newFixture(t, nil)
	resp := postJSON(t, f.srv.URL+"/changes", map[string]string{
		"name":        "Add Dark Mode",
		"description": "Let users toggle a dark theme.",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	require.Equal(t, "add-dark-mode", body["changeId"])

	proposal, err := os.ReadFile(filepath.Join(f.root, "openspec", "changes", "add-dark-mode", "proposal.md"))
	require.NoError(t, err)
	require.Contains(t, string(proposal), "Let users toggle a dark theme.")

	// Creating the same change again conflicts.
	resp = postJSON(t, f.srv.URL+"/changes", map[string]string{
		"name":        "Add Dark Mode",
		"description": "again",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCreateChangeValidation(t *testing.T) {
	f := newFixture(t, nil)
	resp := postJSON(t, f.srv.URL+"/changes", map[string]string{"name": "x"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func seedChangeDir(t *testing.T, root, id string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(root, "openspec", "changes", id)
	require.NoError(t, os.MkdirAll(dir, 0755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
}

func TestPlanDryRun(t *testing.T) {
	f := newFixture(t, nil)
	seedChangeDir(t, f.root, "add-dark-mode", map[string]string{
		"proposal.md": "# Add Dark Mode\n\nBody.\n",
	})

	resp := postJSON(t, f.srv.URL+"/changes/add-dark-mode/plan", map[string]any{"dryRun": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	require.Equal(t, true, body["dryRun"])
	require.Contains(t, body["preview"].(string), "### T1:")
	require.Contains(t, body["diff"].(string), "+# add-dark-mode")

	// Dry run must not write tasks.md.
	_, err := os.Stat(filepath.Join(f.root, "openspec", "changes", "add-dark-mode", "tasks.md"))
	require.True(t, os.IsNotExist(err))
}

func TestPlanWritesTasks(t *testing.T) {
	f := newFixture(t, nil)
	seedChangeDir(t, f.root, "add-dark-mode", map[string]string{
		"proposal.md": "# Add Dark Mode\n\nBody.\n",
	})

	resp := postJSON(t, f.srv.URL+"/changes/add-dark-mode/plan", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	require.Equal(t, float64(4), body["taskCount"])

	raw, err := os.ReadFile(filepath.Join(f.root, "openspec", "changes", "add-dark-mode", "tasks.md"))
	require.NoError(t, err)
	require.Contains(t, string(raw), "**Deps:** none")
}

func TestPlanMissingProposal(t *testing.T) {
	f := newFixture(t, nil)
	seedChangeDir(t, f.root, "no-proposal", map[string]string{})
	resp := postJSON(t, f.srv.URL+"/changes/no-proposal/plan", map[string]any{})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPlanUnknownChange(t *testing.T) {
	f := newFixture(t, nil)
	resp := postJSON(t, f.srv.URL+"/changes/missing/plan", map[string]any{})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

const seedTasksMD = `# add-dark-mode — Tasks

## Phase 1: Foundation

### T1: Setup
- **Deps:** none

### T2: Theme
- **Deps:** T1

### T3: Persist
- **Deps:** T1, T2
`

func TestSeedPartialSuccess(t *testing.T) {
	calls := 0
	run := func(_ context.Context, _ string, args ...string) ([]byte, error) {
		switch args[0] {
		case "list":
			return []byte(`[]`), nil
		case "add":
			calls++
			if calls == 2 {
				return nil, errors.New("tracker hiccup")
			}
			return []byte(`{"id":"bd-` + args[2] + `"}`), nil
		case "dep":
			return []byte(``), nil
		}
		return nil, errors.New("unexpected: " + strings.Join(args, " "))
	}
	f := newFixture(t, run)
	require.NoError(t, os.Mkdir(filepath.Join(f.root, ".beads"), 0755))
	seedChangeDir(t, f.root, "add-dark-mode", map[string]string{"tasks.md": seedTasksMD})

	resp := postJSON(t, f.srv.URL+"/changes/add-dark-mode/seed", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)

	// T2 failed; T1 and T3 were still created and T3 kept its T1 edge.
	require.Equal(t, false, body["success"])
	require.Equal(t, float64(2), body["created"])
	require.Equal(t, float64(1), body["dependencies"])
	errs := body["errors"].([]any)
	require.Len(t, errs, 2)
	require.Contains(t, errs[0], "failed to create T2")
	require.Contains(t, errs[1], "dep T2 not found for T3")
}

func TestSeedDryRun(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, os.Mkdir(filepath.Join(f.root, ".beads"), 0755))
	seedChangeDir(t, f.root, "add-dark-mode", map[string]string{"tasks.md": seedTasksMD})

	resp := postJSON(t, f.srv.URL+"/changes/add-dark-mode/seed", map[string]any{"dryRun": true})
	body := decode(t, resp)
	require.Equal(t, true, body["success"])
	tasks := body["tasks"].([]any)
	require.Len(t, tasks, 3)
	first := tasks[0].(map[string]any)
	require.Equal(t, "add-dark-m-T1", first["id"])
}

func TestSeedRequiresTasksFile(t *testing.T) {
	f := newFixture(t, nil)
	seedChangeDir(t, f.root, "add-dark-mode", map[string]string{"proposal.md": "# X\n"})
	resp := postJSON(t, f.srv.URL+"/changes/add-dark-mode/seed", map[string]any{})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatRequiresAgent(t *testing.T) {
	f := newFixture(t, nil)
	resp := postJSON(t, f.srv.URL+"/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	require.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
}
