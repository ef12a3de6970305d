// Package backlinks builds the vault-wide reverse link index: for every note
// it resolves outgoing [[wikilinks]] against the note tree and records the
// linking note under the resolved target's key.
package backlinks

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nordmark/raido/internal/models"
	"github.com/nordmark/raido/internal/tags"
)

// LoadFunc supplies raw note content for a vault-relative path.
type LoadFunc func(ctx context.Context, path string) (string, error)

// Index maps a normalized key (extension-less path or title) to the notes
// that link to it. Rebuilt wholesale on every build; never updated in place.
type Index map[string][]*models.NoteMeta

// maxConcurrentLoads bounds the content-load fan-out during a build.
const maxConcurrentLoads = 16

// Build flattens the note tree, loads every file's content concurrently, and
// resolves each wikilink target by path or title. A note whose content fails
// to load is logged and skipped as a link source but still participates as a
// target. Self-links are dropped silently.
func Build(ctx context.Context, notes []*models.NoteMeta, load LoadFunc, logger *slog.Logger) (Index, error) {
	files := Flatten(notes)

	byPath := make(map[string]*models.NoteMeta, len(files))
	byTitle := make(map[string][]*models.NoteMeta, len(files))
	for _, n := range files {
		byPath[NormalizePath(n.ID)] = n
		titleKey := NormalizeTitle(n.Title)
		byTitle[titleKey] = append(byTitle[titleKey], n)
	}

	// Fire all loads, await all. Aggregation happens only after the whole
	// batch settles so partial results are never published.
	contents := make([]string, len(files))
	failed := make([]bool, len(files))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLoads)
	for i, n := range files {
		g.Go(func() error {
			data, err := load(gCtx, n.ID)
			if err != nil {
				logger.Warn("backlinks: load failed",
					slog.String("path", n.ID),
					slog.String("error", err.Error()))
				failed[i] = true
				return nil
			}
			contents[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	idx := make(Index)
	for i, src := range files {
		if failed[i] {
			continue
		}
		for _, target := range tags.ExtractLinks(contents[i]) {
			key, resolved := resolve(target, byPath, byTitle, files)
			if resolved == nil || resolved.ID == src.ID {
				continue
			}
			idx[key] = appendUnique(idx[key], src)
		}
	}
	return idx, nil
}

// Get returns the notes linking to note: the union of its path-key and
// title-key entries, deduplicated by note identity. A nil note yields nil.
func Get(note *models.NoteMeta, idx Index) []*models.NoteMeta {
	if note == nil {
		return nil
	}
	var out []*models.NoteMeta
	for _, src := range idx[NormalizePath(note.ID)] {
		out = appendUnique(out, src)
	}
	for _, src := range idx[NormalizeTitle(note.Title)] {
		out = appendUnique(out, src)
	}
	return out
}

// Flatten returns the file-type notes of a tree in depth-first order.
func Flatten(notes []*models.NoteMeta) []*models.NoteMeta {
	var out []*models.NoteMeta
	var walk func(nodes []*models.NoteMeta)
	walk = func(nodes []*models.NoteMeta) {
		for _, n := range nodes {
			if n == nil {
				continue
			}
			if n.IsFile() {
				out = append(out, n)
			}
			if len(n.Children) > 0 {
				walk(n.Children)
			}
		}
	}
	walk(notes)
	return out
}

// NormalizePath canonicalizes a vault-relative path for lookup: backslashes
// to forward slashes, trimmed, lowercased, .md extension stripped.
func NormalizePath(p string) string {
	p = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(p, `\`, "/")))
	return strings.TrimSuffix(p, ".md")
}

// NormalizeTitle canonicalizes a note title for lookup.
func NormalizeTitle(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// resolve maps a wikilink target to a note and the index key it matched
// under. Precedence: exact path, extension variant, trailing path segments,
// then title (bare names only). Title collisions resolve to the first note
// in flatten order; the ambiguity is accepted, not an error.
func resolve(target string, byPath map[string]*models.NoteMeta, byTitle map[string][]*models.NoteMeta, files []*models.NoteMeta) (string, *models.NoteMeta) {
	norm := NormalizePath(target)
	if norm == "" {
		return "", nil
	}

	// 1. Exact normalized-path match (NormalizePath already strips .md, so
	// targets written with or without the extension land on the same key).
	if n, ok := byPath[norm]; ok {
		return norm, n
	}

	// 2. Extension variant: the target may carry a non-.md suffix typed
	// explicitly; retry with the last extension stripped.
	if i := strings.LastIndex(norm, "."); i > strings.LastIndex(norm, "/") {
		variant := norm[:i]
		if n, ok := byPath[variant]; ok {
			return variant, n
		}
	}

	// 3. Suffix match for partial paths: only when the target contains a
	// separator, find a known path whose trailing segments equal it.
	if strings.Contains(norm, "/") {
		suffix := "/" + norm
		for _, n := range files {
			key := NormalizePath(n.ID)
			if strings.HasSuffix(key, suffix) {
				return key, n
			}
		}
	} else {
		// 4. Title match: a bare name is a title reference, never a path.
		// First flatten-order note wins when titles collide.
		if cands := byTitle[norm]; len(cands) > 0 {
			return norm, cands[0]
		}
	}

	return "", nil
}

// appendUnique adds n to set unless a note with the same ID is present.
func appendUnique(set []*models.NoteMeta, n *models.NoteMeta) []*models.NoteMeta {
	for _, existing := range set {
		if existing.ID == n.ID {
			return set
		}
	}
	return append(set, n)
}
