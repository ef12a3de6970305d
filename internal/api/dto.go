package api

import "github.com/nordmark/raido/internal/models"

// ToggleTaskRequest identifies a task by its position in a note and the
// desired status. originalLine lets the server detect that the line moved
// or changed since the client last refreshed.
type ToggleTaskRequest struct {
	NotePath     string `json:"notePath" example:"projects/launch.md" validate:"required"`
	LineNumber   int    `json:"lineNumber" example:"4" validate:"required"`
	OriginalLine string `json:"originalLine,omitempty"`
	Status       string `json:"status" example:"done" validate:"required"`
}

// SaveNoteRequest is the request body for saving note content.
type SaveNoteRequest struct {
	Content string `json:"content" example:"# Note\n- [ ] task" validate:"required"`
}

// TaskListResponse wraps a filtered task listing.
type TaskListResponse struct {
	Tasks []models.Task `json:"tasks" validate:"required"`
	Total int           `json:"total" example:"7" validate:"required"`
}

// TagListResponse wraps the vault-wide tag set.
type TagListResponse struct {
	Tags []string `json:"tags" validate:"required"`
}

// BacklinkRef is one source note that links to the requested note.
type BacklinkRef struct {
	Path  string `json:"path" example:"daily/2025-03-01.md" validate:"required"`
	Title string `json:"title" example:"2025-03-01" validate:"required"`
}

// NoteDetail is the full note response: raw content plus everything the
// intelligence layer derives from it.
type NoteDetail struct {
	Path      string        `json:"path" example:"projects/launch.md" validate:"required"`
	Title     string        `json:"title" example:"launch" validate:"required"`
	Content   string        `json:"content" validate:"required"`
	Tags      []string      `json:"tags" validate:"required"`
	Tasks     []models.Task `json:"tasks" validate:"required"`
	Backlinks []BacklinkRef `json:"backlinks" validate:"required"`
}

// BacklinkResponse wraps the sources that reference a note.
type BacklinkResponse struct {
	Backlinks []BacklinkRef `json:"backlinks" validate:"required"`
}

// RefreshResponse reports the snapshot generation produced by a manual
// rescan.
type RefreshResponse struct {
	Generation uint64 `json:"generation" example:"3" validate:"required"`
}
