// Package tags extracts #hashtags and [[wikilink]] tokens from Markdown,
// skipping fenced code blocks and inline code spans.
package tags

import (
	"regexp"
	"sort"
	"strings"
)

var (
	// codeSpanRe matches inline code spans: single-backtick delimited,
	// shortest match, never spanning lines.
	codeSpanRe = regexp.MustCompile("`[^`]*`")

	hashtagRe  = regexp.MustCompile(`#([A-Za-z0-9_-]+)`)
	wikilinkRe = regexp.MustCompile(`\[\[([^\]|]+?)(?:\|[^\]]*)?\]\]`)

	whitespaceRe = regexp.MustCompile(`\s+`)
)

// priorityTokens are task-priority markers (#low/#med/#high). They share the
// hashtag shape but belong to the task grammar, so the extractor never adds
// them to the tag set.
var priorityTokens = map[string]struct{}{
	"low":  {},
	"med":  {},
	"high": {},
}

// Extract returns the sorted, deduplicated, lowercased union of hashtags and
// wikilink targets found in text. Lines inside triple-backtick fences are
// skipped entirely; matches starting inside an inline code span are dropped.
func Extract(text string) []string {
	set := make(map[string]struct{})
	inFence := false
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		scanLine(line, set)
	}
	return sorted(set)
}

// ExtractFromLine is the line-scoped variant of Extract: same token grammars
// and code-span exclusion, no cross-line fence state. Used for single-line
// contexts such as live inline rendering.
func ExtractFromLine(line string) []string {
	set := make(map[string]struct{})
	scanLine(line, set)
	return sorted(set)
}

// ExtractLinks returns wikilink targets in order of first appearance,
// deduplicated, with aliases stripped at the pipe and surrounding whitespace
// trimmed. Case and internal spacing are preserved; resolution against the
// note tree happens elsewhere. The same fence and code-span exclusion as
// Extract applies.
func ExtractLinks(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	inFence := false
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		spans := codeSpanRe.FindAllStringIndex(line, -1)
		for _, m := range wikilinkRe.FindAllStringSubmatchIndex(line, -1) {
			if insideSpan(spans, m[0]) {
				continue
			}
			target := strings.TrimSpace(line[m[2]:m[3]])
			if target == "" {
				continue
			}
			if _, dup := seen[target]; dup {
				continue
			}
			seen[target] = struct{}{}
			out = append(out, target)
		}
	}
	return out
}

// scanLine runs both token grammars over one line and adds normalized tags
// to set. Code spans are located first so either grammar can be rejected by
// match start offset.
func scanLine(line string, set map[string]struct{}) {
	spans := codeSpanRe.FindAllStringIndex(line, -1)

	for _, m := range hashtagRe.FindAllStringSubmatchIndex(line, -1) {
		if insideSpan(spans, m[0]) {
			continue
		}
		tag := strings.ToLower(line[m[2]:m[3]])
		if tag == "" {
			continue
		}
		if _, reserved := priorityTokens[tag]; reserved {
			continue
		}
		set[tag] = struct{}{}
	}

	for _, m := range wikilinkRe.FindAllStringSubmatchIndex(line, -1) {
		if insideSpan(spans, m[0]) {
			continue
		}
		target := strings.TrimSpace(line[m[2]:m[3]])
		if target == "" {
			continue
		}
		// Wikilink targets become tags: lowercased, whitespace runs collapsed
		// to a single hyphen.
		tag := whitespaceRe.ReplaceAllString(strings.ToLower(target), "-")
		set[tag] = struct{}{}
	}
}

func insideSpan(spans [][]int, pos int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}
	return false
}

func sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
