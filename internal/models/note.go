// Package models defines the domain types for Raido.
package models

// NoteType distinguishes files from folders in the vault tree.
type NoteType string

// Note tree node types.
const (
	NoteTypeFile   NoteType = "file"
	NoteTypeFolder NoteType = "folder"
)

// NoteMeta is one node of the vault tree produced by a directory scan.
// Files are leaves; folders carry ordered children (folders before files,
// then alphabetical by title). The tree is authoritative ground truth
// supplied by the scan; the indexing layer traverses it but never mutates it.
type NoteMeta struct {
	ID       string      `json:"id"`   // vault-relative path, unique
	Path     string      `json:"path"` // absolute path on disk
	Title    string      `json:"title"`
	Type     NoteType    `json:"type"`
	Children []*NoteMeta `json:"children,omitempty"`
}

// IsFile reports whether the node is a Markdown file.
func (n *NoteMeta) IsFile() bool {
	return n != nil && n.Type == NoteTypeFile
}

// TaskStatus is the state of a checkbox task.
type TaskStatus string

// Checkbox states: ' ' → todo, '/' → doing, 'x'/'X' → done.
const (
	StatusTodo  TaskStatus = "todo"
	StatusDoing TaskStatus = "doing"
	StatusDone  TaskStatus = "done"
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusDoing, StatusDone:
		return true
	}
	return false
}

// Task is one parsed checkbox line in one note. Tasks are recreated
// wholesale on every parse; identity across edits is only as stable as the
// ID encoding (line index plus a content prefix).
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Status       TaskStatus `json:"status"`
	Owner        string     `json:"owner,omitempty"`
	Project      string     `json:"project,omitempty"`
	Due          string     `json:"due,omitempty"`
	Priority     string     `json:"priority,omitempty"`
	NotePath     string     `json:"notePath,omitempty"`
	LineNumber   int        `json:"lineNumber"` // 0-indexed
	OriginalLine string     `json:"originalLine"`
}
