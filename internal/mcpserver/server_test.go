package mcpserver

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nordmark/raido/internal/orchestrator"
	"github.com/nordmark/raido/internal/testutil"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()

	vaultDir, fs := testutil.TestVault(t, map[string]string{
		"alpha.md":      "# Alpha\nlinks to [[beta]]\n- [ ] Ship it @ana project:launch #high\n",
		"beta.md":       "# Beta\n#reference\n",
		"daily/plan.md": "mentions [[alpha]]\n- [/] Draft plan\n",
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := orchestrator.New(fs, logger)
	if err := orch.Rescan(context.Background()); err != nil {
		t.Fatalf("Rescan: %v", err)
	}

	return New(orch, fs, nil), vaultDir
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go doesn't expose a direct "call tool" test helper, so we call the
	// handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_tasks":
		result, err = srv.listTasks(ctx, req)
	case "toggle_task":
		result, err = srv.toggleTask(ctx, req)
	case "get_backlinks":
		result, err = srv.getBacklinks(ctx, req)
	case "list_tags":
		result, err = srv.listTags(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListTasks(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_tasks", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, "Ship it") || !strings.Contains(text, "Draft plan") {
		t.Errorf("list_tasks = %q, want both tasks", text)
	}
}

func TestListTasks_ProjectFilter(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_tasks", map[string]interface{}{"project": "launch"})
	text := resultText(r)
	if !strings.Contains(text, "Ship it") {
		t.Errorf("filtered list missing task: %q", text)
	}
	if strings.Contains(text, "Draft plan") {
		t.Errorf("filter leaked other project: %q", text)
	}
}

func TestListTasks_InvalidStatus(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_tasks", map[string]interface{}{"status": "blocked"})
	if !r.IsError {
		t.Error("expected error for invalid status")
	}
}

func TestToggleTask(t *testing.T) {
	srv, vaultDir := testServer(t)

	r := callTool(t, srv, "toggle_task", map[string]interface{}{
		"path":   "alpha.md",
		"line":   2,
		"status": "done",
	})
	if r.IsError {
		t.Fatalf("toggle_task error: %s", resultText(r))
	}

	raw, err := os.ReadFile(filepath.Join(vaultDir, "alpha.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "- [x] Ship it") {
		t.Errorf("file not updated: %q", raw)
	}
}

func TestToggleTask_Missing(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "toggle_task", map[string]interface{}{
		"path":   "alpha.md",
		"line":   99,
		"status": "done",
	})
	if !r.IsError {
		t.Error("expected error for missing task")
	}
}

func TestGetBacklinks(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_backlinks", map[string]interface{}{"path": "alpha.md"})
	text := resultText(r)
	if text != "daily/plan.md" {
		t.Errorf("backlinks = %q, want daily/plan.md", text)
	}
}

func TestGetBacklinks_None(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_backlinks", map[string]interface{}{"path": "daily/plan.md"})
	text := resultText(r)
	if text != "no backlinks found" {
		t.Errorf("backlinks = %q", text)
	}
}

func TestListTags(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_tags", map[string]interface{}{})
	text := resultText(r)
	for _, want := range []string{"alpha", "beta", "reference"} {
		if !strings.Contains(text, want) {
			t.Errorf("list_tags = %q, missing %q", text, want)
		}
	}
}

func TestReadNote(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "read_note", map[string]interface{}{"path": "beta.md"})
	text := resultText(r)
	if !strings.Contains(text, "# Beta") {
		t.Errorf("read_note = %q", text)
	}
}

func TestReadNote_Missing(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "read_note", map[string]interface{}{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}
