package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nordmark/raido/internal/models"
	"github.com/nordmark/raido/internal/orchestrator"
	"github.com/nordmark/raido/internal/testutil"
	"github.com/nordmark/raido/internal/vault"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv sets up a temp vault with seed notes, an orchestrator, and a
// router. authToken == "" means auth disabled.
func testEnv(t *testing.T, authToken string, opts ...orchestrator.Option) (*orchestrator.Orchestrator, http.Handler, string) {
	t.Helper()

	vaultDir, fs := testutil.TestVault(t, map[string]string{
		"alpha.md":          "# Alpha\nlinks to [[beta]] #planning\n- [ ] Ship it @ana project:launch due:2025-03-01 #high\n- [x] Done thing\n",
		"beta.md":           "# Beta\njust text #reference\n",
		"daily/2025.md":     "mentions [[alpha]]\n- [/] In progress task\n",
		"projects/notes.md": "see [[alpha]] too\n",
	})
	orch := orchestrator.New(fs, discardLogger(), opts...)
	if err := orch.Rescan(context.Background()); err != nil {
		t.Fatalf("Rescan: %v", err)
	}

	enabled := authToken != ""
	router := NewRouter(orch, fs, nil, enabled, authToken, nil)
	return orch, router, vaultDir
}

func doJSON(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListTasks(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodGet, "/tasks", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d, body = %s", w.Code, w.Body.String())
	}
	var resp TaskListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 3 {
		t.Errorf("total = %d, want 3", resp.Total)
	}
}

func TestListTasks_StatusFilter(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodGet, "/tasks?status=doing", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp TaskListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Fatalf("total = %d, want 1", resp.Total)
	}
	if resp.Tasks[0].Title != "In progress task" {
		t.Errorf("title = %q", resp.Tasks[0].Title)
	}
}

func TestListTasks_QuerySubstring(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodGet, "/tasks?q=ship", nil)
	var resp TaskListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("total = %d, want 1", resp.Total)
	}
}

func TestListTasks_InvalidStatus(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodGet, "/tasks?status=blocked", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid status = %d, want 400", w.Code)
	}
}

func TestListTasks_WithMirror(t *testing.T) {
	orch, _, vaultDir := testEnv(t, "")

	db := testutil.TestDB(t)

	fs, err := vault.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	snap := orch.Snapshot()
	if err := db.ReplaceSnapshot(snap.Tasks, snap.Tags, snap.Backlinks); err != nil {
		t.Fatalf("ReplaceSnapshot: %v", err)
	}
	router := NewRouter(orch, fs, db, false, "", nil)

	w := doJSON(t, router, http.MethodGet, "/tasks?project=launch", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d, body = %s", w.Code, w.Body.String())
	}
	var resp TaskListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("total = %d, want 1", resp.Total)
	}
}

func TestToggleTask(t *testing.T) {
	_, router, vaultDir := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/tasks/toggle", ToggleTaskRequest{
		NotePath:   "alpha.md",
		LineNumber: 2,
		Status:     "done",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("toggle = %d, body = %s", w.Code, w.Body.String())
	}
	var task models.Task
	_ = json.Unmarshal(w.Body.Bytes(), &task)
	if task.Status != models.StatusDone {
		t.Errorf("status = %q, want done", task.Status)
	}

	raw, err := os.ReadFile(filepath.Join(vaultDir, "alpha.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(raw, []byte("- [x] Ship it")) {
		t.Errorf("file not updated: %q", raw)
	}
}

func TestToggleTask_NotFound(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/tasks/toggle", ToggleTaskRequest{
		NotePath:   "alpha.md",
		LineNumber: 99,
		Status:     "done",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("toggle missing = %d, want 404", w.Code)
	}
}

func TestToggleTask_StaleLine(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/tasks/toggle", ToggleTaskRequest{
		NotePath:     "alpha.md",
		LineNumber:   2,
		OriginalLine: "- [ ] something the client remembered",
		Status:       "done",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("stale toggle = %d, want 409", w.Code)
	}
}

func TestToggleTask_InvalidStatus(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/tasks/toggle", ToggleTaskRequest{
		NotePath:   "alpha.md",
		LineNumber: 2,
		Status:     "archived",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad status = %d, want 400", w.Code)
	}
}

func TestListTags(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodGet, "/tags", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tags = %d", w.Code)
	}
	var resp TagListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	want := []string{"alpha", "beta", "planning", "reference"}
	if len(resp.Tags) != len(want) {
		t.Fatalf("tags = %v, want %v", resp.Tags, want)
	}
	for i, tag := range want {
		if resp.Tags[i] != tag {
			t.Errorf("tags[%d] = %q, want %q", i, resp.Tags[i], tag)
		}
	}
}

func TestNoteTree(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tree = %d", w.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	notes := resp["notes"].([]any)
	// daily, projects folders then alpha.md, beta.md.
	if len(notes) != 4 {
		t.Errorf("root entries = %d, want 4", len(notes))
	}
}

func TestGetNote(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodGet, "/notes/alpha.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d, body = %s", w.Code, w.Body.String())
	}
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Path != "alpha.md" {
		t.Errorf("path = %q", note.Path)
	}
	if note.Title != "alpha" {
		t.Errorf("title = %q, want alpha", note.Title)
	}
	if len(note.Tasks) != 2 {
		t.Errorf("tasks = %d, want 2", len(note.Tasks))
	}
	// alpha.md is referenced from daily/2025.md and projects/notes.md.
	if len(note.Backlinks) != 2 {
		t.Errorf("backlinks = %d, want 2", len(note.Backlinks))
	}
	foundPlanning := false
	for _, tag := range note.Tags {
		if tag == "planning" {
			foundPlanning = true
		}
	}
	if !foundPlanning {
		t.Errorf("tags = %v, want to contain planning", note.Tags)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodGet, "/notes/nope.md", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d, want 404", w.Code)
	}
}

func TestSaveNote(t *testing.T) {
	_, router, vaultDir := testEnv(t, "")

	w := doJSON(t, router, http.MethodPut, "/notes/beta.md", SaveNoteRequest{
		Content: "# Beta\nnow with a task\n- [ ] New task #urgent\n",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d, body = %s", w.Code, w.Body.String())
	}

	raw, err := os.ReadFile(filepath.Join(vaultDir, "beta.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(raw, []byte("New task")) {
		t.Errorf("file not written: %q", raw)
	}

	// The save is followed by a refresh, so the new task is queryable.
	w = doJSON(t, router, http.MethodGet, "/tasks?q=new+task", nil)
	var resp TaskListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("tasks after save = %d, want 1", resp.Total)
	}
}

func TestSaveNote_Autosave(t *testing.T) {
	_, router, vaultDir := testEnv(t, "", orchestrator.WithDebounce(30*time.Millisecond))

	w := doJSON(t, router, http.MethodPut, "/notes/beta.md?autosave=true", SaveNoteRequest{
		Content: "autosaved content\n",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("autosave = %d, want 202", w.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		raw, err := os.ReadFile(filepath.Join(vaultDir, "beta.md"))
		if err == nil && bytes.Contains(raw, []byte("autosaved content")) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("debounced save never landed")
}

func TestSaveNote_EmptyContent(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodPut, "/notes/beta.md", SaveNoteRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty save = %d, want 400", w.Code)
	}
}

func TestBacklinksEndpoint(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodGet, "/backlinks/beta.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("backlinks = %d", w.Code)
	}
	var resp BacklinkResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Backlinks) != 1 || resp.Backlinks[0].Path != "alpha.md" {
		t.Errorf("backlinks = %+v, want [alpha.md]", resp.Backlinks)
	}
}

func TestBacklinksEndpoint_NotFound(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodGet, "/backlinks/ghost.md", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing = %d, want 404", w.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	orch, router, vaultDir := testEnv(t, "")

	before := orch.Snapshot().Generation

	// Drop a file behind the orchestrator's back; only a rescan sees it.
	if err := os.WriteFile(filepath.Join(vaultDir, "gamma.md"), []byte("- [ ] Sneaky task\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, router, http.MethodPost, "/refresh", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh = %d, body = %s", w.Code, w.Body.String())
	}
	var resp RefreshResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Generation <= before {
		t.Errorf("generation = %d, want > %d", resp.Generation, before)
	}

	w = doJSON(t, router, http.MethodGet, "/tasks?q=sneaky", nil)
	var tasksResp TaskListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &tasksResp)
	if tasksResp.Total != 1 {
		t.Errorf("tasks after refresh = %d, want 1", tasksResp.Total)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/tags", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123")

	w := doJSON(t, router, http.MethodGet, "/tasks", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodGet, "/tasks", nil)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}
