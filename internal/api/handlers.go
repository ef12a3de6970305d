package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/nordmark/raido/internal/apperr"
	"github.com/nordmark/raido/internal/models"
	"github.com/nordmark/raido/internal/orchestrator"
	"github.com/nordmark/raido/internal/store"
	"github.com/nordmark/raido/internal/tags"
	"github.com/nordmark/raido/internal/tasks"
	"github.com/nordmark/raido/internal/vault"
)

// Handler holds API route handlers.
type Handler struct {
	orch     *orchestrator.Orchestrator
	provider vault.Provider
	mirror   *store.DB // optional; task filtering falls back to the snapshot
}

// NewHandler creates a new Handler. mirror may be nil, in which case task
// queries are answered from the in-memory snapshot.
func NewHandler(orch *orchestrator.Orchestrator, provider vault.Provider, mirror *store.DB) *Handler {
	return &Handler{orch: orch, provider: provider, mirror: mirror}
}

// notePath extracts the note path from the URL (everything after the route
// prefix). Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListTasks handles GET /api/tasks.
//
//	@Summary		List tasks across the vault with optional filters
//	@Tags			tasks
//	@Produce		json
//	@Param			status		query		string	false	"Filter by status"	Enums(todo, doing, done)
//	@Param			project		query		string	false	"Filter by project"
//	@Param			owner		query		string	false	"Filter by owner"
//	@Param			priority	query		string	false	"Filter by priority"	Enums(low, med, high)
//	@Param			q			query		string	false	"Substring match against the title"
//	@Param			limit		query		int		false	"Max results"
//	@Success		200			{object}	TaskListResponse
//	@Security		BearerAuth
//	@Router			/tasks [get]
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	f := store.TaskFilter{
		Status:   q.Get("status"),
		Project:  q.Get("project"),
		Owner:    q.Get("owner"),
		Priority: q.Get("priority"),
		Query:    q.Get("q"),
		Limit:    limit,
	}
	if f.Status != "" && !models.TaskStatus(f.Status).Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid status"))
		return
	}

	var (
		items []models.Task
		err   error
	)
	if h.mirror != nil {
		items, err = h.mirror.ListTasks(f)
	} else {
		items = store.Filter(h.orch.Tasks(), f)
	}
	if err != nil {
		slog.Error("list tasks failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if items == nil {
		items = []models.Task{}
	}
	writeJSON(w, http.StatusOK, TaskListResponse{Tasks: items, Total: len(items)})
}

// ToggleTask handles POST /api/tasks/toggle.
//
//	@Summary		Change the status of a checkbox task
//	@Tags			tasks
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ToggleTaskRequest	true	"Task reference and new status"
//	@Success		200		{object}	models.Task
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/toggle [post]
func (h *Handler) ToggleTask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ToggleTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	status := models.TaskStatus(req.Status)
	if !status.Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody("status must be todo, doing or done"))
		return
	}
	if req.NotePath == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("notePath is required"))
		return
	}

	task, ok := h.findTask(req.NotePath, req.LineNumber)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("task not found"))
		return
	}
	if req.OriginalLine != "" && req.OriginalLine != task.OriginalLine {
		writeJSON(w, http.StatusConflict, errorBody("task line changed"))
		return
	}

	if err := h.orch.ToggleTask(r.Context(), task, status); err != nil {
		switch {
		case errors.Is(err, apperr.ErrStaleTask):
			writeJSON(w, http.StatusConflict, errorBody("task line changed"))
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		default:
			slog.Error("toggle task failed",
				slog.String("path", req.NotePath),
				slog.Int("line", req.LineNumber),
				slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	task.Status = status
	writeJSON(w, http.StatusOK, task)
}

// findTask locates a task in the current snapshot by note path and line
// number.
func (h *Handler) findTask(notePath string, line int) (models.Task, bool) {
	for _, t := range h.orch.Tasks() {
		if t.NotePath == notePath && t.LineNumber == line {
			return t, true
		}
	}
	return models.Task{}, false
}

// ListTags handles GET /api/tags.
//
//	@Summary		List all tags used in the vault
//	@Tags			tags
//	@Produce		json
//	@Success		200	{object}	TagListResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	tagSet := h.orch.Tags()
	if tagSet == nil {
		tagSet = []string{}
	}
	writeJSON(w, http.StatusOK, TagListResponse{Tags: tagSet})
}

// NoteTree handles GET /api/notes.
//
//	@Summary		Get the vault note tree
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) NoteTree(w http.ResponseWriter, r *http.Request) {
	tree := h.orch.NoteTree()
	if tree == nil {
		tree = []*models.NoteMeta{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": tree})
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a note with its derived tasks, tags and backlinks
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note := h.orch.FindNote(path)
	if note == nil || !note.IsFile() {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	raw, err := h.provider.Read(note.ID)
	if err != nil {
		slog.Error("read note failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	content := string(raw)

	noteTasks := tasks.Parse(content)
	for i := range noteTasks {
		noteTasks[i].NotePath = note.ID
	}

	writeJSON(w, http.StatusOK, NoteDetail{
		Path:      note.ID,
		Title:     note.Title,
		Content:   content,
		Tags:      emptyIfNil(tags.Extract(content)),
		Tasks:     noteTasks,
		Backlinks: backlinkRefs(h.orch.Backlinks(note)),
	})
}

// SaveNote handles PUT /api/notes/*.
//
//	@Summary		Save note content, immediately or via debounced autosave
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path		path		string			true	"Note path"
//	@Param			autosave	query		bool			false	"Debounce the write instead of saving immediately"
//	@Param			body		body		SaveNoteRequest	true	"New content"
//	@Success		200			{object}	map[string]string
//	@Success		202			{object}	map[string]string
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [put]
func (h *Handler) SaveNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req SaveNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	if r.URL.Query().Get("autosave") == "true" {
		h.orch.ScheduleSave(path, []byte(req.Content))
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
		return
	}

	if err := h.orch.SaveNow(r.Context(), path, []byte(req.Content)); err != nil {
		slog.Error("save note failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// Backlinks handles GET /api/backlinks/*.
//
//	@Summary		List notes that link to the given note
//	@Tags			backlinks
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	BacklinkResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backlinks/{path} [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note := h.orch.FindNote(path)
	if note == nil || !note.IsFile() {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, BacklinkResponse{
		Backlinks: backlinkRefs(h.orch.Backlinks(note)),
	})
}

// Refresh handles POST /api/refresh.
//
//	@Summary		Rescan the vault tree and rebuild the derived snapshot
//	@Tags			vault
//	@Produce		json
//	@Success		200	{object}	RefreshResponse
//	@Security		BearerAuth
//	@Router			/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.Rescan(r.Context()); err != nil {
		slog.Error("refresh failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{Generation: h.orch.Snapshot().Generation})
}

func backlinkRefs(sources []*models.NoteMeta) []BacklinkRef {
	refs := make([]BacklinkRef, 0, len(sources))
	for _, s := range sources {
		refs = append(refs, BacklinkRef{Path: s.ID, Title: s.Title})
	}
	return refs
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
