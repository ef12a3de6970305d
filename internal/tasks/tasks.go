// Package tasks parses Markdown checkbox lines into Task values and performs
// targeted status write-backs against the originating line.
package tasks

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/nordmark/raido/internal/apperr"
	"github.com/nordmark/raido/internal/models"
)

// checkboxRe matches a checkbox list item: optional indent, one list marker,
// one-or-more spaces, a bracketed status character, one-or-more spaces, then
// the remainder. Zero spaces between marker and bracket is deliberately not
// a task.
var checkboxRe = regexp.MustCompile(`^[ \t]*[-*+] +\[([ xX/])\] +(.*)$`)

// Inline metadata grammars. Each runs against the full original line,
// independently of the others, and none of them strips text from the title.
var (
	dueRe      = regexp.MustCompile(`@due\((\d{4}-\d{2}-\d{2})\)|due[: ](\d{4}-\d{2}-\d{2})`)
	priorityRe = regexp.MustCompile(`(?i)#(low|med|high)`)
	ownerRe    = regexp.MustCompile(`@([A-Za-z0-9_-]+)`)
	projectRe  = regexp.MustCompile(`(?i)project:([A-Za-z0-9_-]+)`)
)

const idPrefixLen = 20

// Parse extracts all checkbox tasks from content, in line order. Lines that
// do not match the checkbox shape, or whose remainder is empty after
// trimming, are silently skipped.
func Parse(content string) []models.Task {
	var out []models.Task
	for i, line := range strings.Split(content, "\n") {
		m := checkboxRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[2])
		if title == "" {
			continue
		}
		t := models.Task{
			ID:           taskID(i, line),
			Title:        title,
			Status:       statusFromMark(m[1]),
			LineNumber:   i,
			OriginalLine: line,
		}
		applyMetadata(&t, line)
		out = append(out, t)
	}
	return out
}

// UpdateStatus returns a copy of content with the checkbox status character
// of t's originating line replaced. All other characters on the line,
// including metadata tokens, are left untouched.
//
// The task must carry its OriginalLine and a LineNumber that is still in
// bounds for content; otherwise apperr.ErrStaleTask is returned. The line at
// that index is not re-validated against OriginalLine — callers must
// re-parse before trusting a task reference across intervening edits.
func UpdateStatus(content string, t models.Task, status models.TaskStatus) (string, error) {
	if t.OriginalLine == "" {
		return "", fmt.Errorf("tasks: update status: task has no original line: %w", apperr.ErrStaleTask)
	}
	lines := strings.Split(content, "\n")
	if t.LineNumber < 0 || t.LineNumber >= len(lines) {
		return "", fmt.Errorf("tasks: update status: line %d out of range (%d lines): %w",
			t.LineNumber, len(lines), apperr.ErrStaleTask)
	}

	line := lines[t.LineNumber]
	loc := checkboxRe.FindStringSubmatchIndex(line)
	if loc == nil {
		return "", fmt.Errorf("tasks: update status: line %d is not a checkbox: %w",
			t.LineNumber, apperr.ErrStaleTask)
	}

	// loc[2]:loc[3] is the single status character inside the brackets.
	lines[t.LineNumber] = line[:loc[2]] + statusMark(status) + line[loc[3]:]
	return strings.Join(lines, "\n"), nil
}

// statusFromMark maps a checkbox character to a TaskStatus.
func statusFromMark(mark string) models.TaskStatus {
	switch mark {
	case "x", "X":
		return models.StatusDone
	case "/":
		return models.StatusDoing
	}
	return models.StatusTodo
}

// statusMark maps a TaskStatus back to its checkbox character.
func statusMark(s models.TaskStatus) string {
	switch s {
	case models.StatusDone:
		return "x"
	case models.StatusDoing:
		return "/"
	}
	return " "
}

// applyMetadata extracts owner/project/due/priority from the full line.
// A task may match zero or several fields; first match wins per field.
func applyMetadata(t *models.Task, line string) {
	if m := dueRe.FindStringSubmatch(line); m != nil {
		if m[1] != "" {
			t.Due = m[1]
		} else {
			t.Due = m[2]
		}
	}
	if m := priorityRe.FindStringSubmatch(line); m != nil {
		t.Priority = strings.ToLower(m[1])
	}
	if m := ownerRe.FindStringSubmatch(line); m != nil {
		t.Owner = m[1]
	}
	if m := projectRe.FindStringSubmatch(line); m != nil {
		t.Project = m[1]
	}
}

// taskID synthesizes a per-line identifier: line index plus a short prefix
// of the trimmed line. Stable across re-parses of unchanged content, not
// across edits that shift line numbers.
func taskID(lineIdx int, line string) string {
	trimmed := strings.TrimSpace(line)
	if utf8.RuneCountInString(trimmed) > idPrefixLen {
		runes := []rune(trimmed)
		trimmed = string(runes[:idPrefixLen])
	}
	return fmt.Sprintf("%d-%s", lineIdx, trimmed)
}
