// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Raido vault intelligence tools for LLM integration via
// stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nordmark/raido/internal/models"
	"github.com/nordmark/raido/internal/orchestrator"
	"github.com/nordmark/raido/internal/store"
	"github.com/nordmark/raido/internal/vault"
)

// Server wraps the MCP server with Raido tools.
type Server struct {
	mcp      *server.MCPServer
	orch     *orchestrator.Orchestrator
	provider vault.Provider
	mirror   *store.DB
}

// New creates a new MCP server with all Raido tools registered. mirror may
// be nil; task queries then run against the in-memory snapshot.
func New(orch *orchestrator.Orchestrator, provider vault.Provider, mirror *store.DB) *Server {
	s := &Server{orch: orch, provider: provider, mirror: mirror}

	s.mcp = server.NewMCPServer(
		"Raido",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List checkbox tasks across the vault, optionally filtered by "+
			"status, project, owner, priority, or a title substring."),
		mcp.WithString("status", mcp.Description("Filter by status: todo, doing or done")),
		mcp.WithString("project", mcp.Description("Filter by project name")),
		mcp.WithString("owner", mcp.Description("Filter by owner (@mention)")),
		mcp.WithString("priority", mcp.Description("Filter by priority: low, med or high")),
		mcp.WithString("query", mcp.Description("Substring match against task titles")),
	), s.listTasks)

	s.mcp.AddTool(mcp.NewTool("toggle_task",
		mcp.WithDescription("Change the status of a checkbox task identified by its note "+
			"path and line number. Writes through to the Markdown file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path of the note (e.g. projects/launch.md)")),
		mcp.WithNumber("line", mcp.Required(), mcp.Description("Zero-based line number of the task in the note")),
		mcp.WithString("status", mcp.Required(), mcp.Description("New status: todo, doing or done")),
	), s.toggleTask)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the specified note via [[wikilinks]]."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List every tag used across the vault (hashtags and wikilink targets)."),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a Markdown note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.readNote)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := store.TaskFilter{
		Status:   req.GetString("status", ""),
		Project:  req.GetString("project", ""),
		Owner:    req.GetString("owner", ""),
		Priority: req.GetString("priority", ""),
		Query:    req.GetString("query", ""),
	}
	if f.Status != "" && !models.TaskStatus(f.Status).Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("invalid status: %s", f.Status)), nil
	}

	var (
		items []models.Task
		err   error
	)
	if s.mirror != nil {
		items, err = s.mirror.ListTasks(f)
	} else {
		items = store.Filter(s.orch.Tasks(), f)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no tasks found"), nil
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) toggleTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	line, err := req.RequireInt("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	statusArg, err := req.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status := models.TaskStatus(statusArg)
	if !status.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("invalid status: %s", statusArg)), nil
	}

	var task models.Task
	found := false
	for _, t := range s.orch.Tasks() {
		if t.NotePath == path && t.LineNumber == line {
			task = t
			found = true
			break
		}
	}
	if !found {
		return mcp.NewToolResultError(fmt.Sprintf("task not found: %s:%d", path, line)), nil
	}

	if err := s.orch.ToggleTask(ctx, task, status); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s:%d -> %s", path, line, status)), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note := s.orch.FindNote(path)
	if note == nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	sources := s.orch.Backlinks(note)
	if len(sources) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	paths := make([]string, 0, len(sources))
	for _, src := range sources {
		paths = append(paths, src.ID)
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) listTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tagSet := s.orch.Tags()
	if len(tagSet) == 0 {
		return mcp.NewToolResultText("no tags found"), nil
	}
	return mcp.NewToolResultText(strings.Join(tagSet, "\n")), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.provider.Read(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
