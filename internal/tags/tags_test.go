package tags

import (
	"reflect"
	"testing"
)

func TestExtract_HashtagsAndWikilinks(t *testing.T) {
	text := "Notes on #Go and #go-tooling.\nSee [[Project Plan]] and [[other|alias]]."
	got := Extract(text)
	want := []string{"go", "go-tooling", "other", "project-plan"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract = %v, want %v", got, want)
	}
}

func TestExtract_CaseInsensitiveDedup(t *testing.T) {
	got := Extract("#Alpha #alpha #ALPHA")
	if !reflect.DeepEqual(got, []string{"alpha"}) {
		t.Errorf("Extract = %v, want [alpha]", got)
	}
}

func TestExtract_CodeSpanExcluded(t *testing.T) {
	got := Extract("`#nottag` and #realtag")
	if !reflect.DeepEqual(got, []string{"realtag"}) {
		t.Errorf("Extract = %v, want [realtag]", got)
	}
}

func TestExtract_FenceExcluded(t *testing.T) {
	text := "before\n```\n#hidden\n[[also hidden]]\n```\n#visible"
	got := Extract(text)
	if !reflect.DeepEqual(got, []string{"visible"}) {
		t.Errorf("Extract = %v, want [visible]", got)
	}

	// The line-scoped variant has no fence state, so the same tag line
	// scanned alone must differ from the document-scoped result.
	line := ExtractFromLine("#hidden")
	if !reflect.DeepEqual(line, []string{"hidden"}) {
		t.Errorf("ExtractFromLine = %v, want [hidden]", line)
	}
}

func TestExtract_FenceMarkerLineSkipped(t *testing.T) {
	// A tag on the fence marker line itself is not scanned.
	got := Extract("``` #onfence\ncode\n```")
	if len(got) != 0 {
		t.Errorf("Extract = %v, want empty", got)
	}
}

func TestExtract_WikilinkAliasAndWhitespace(t *testing.T) {
	got := Extract("[[ Big  Note |shown]]")
	if !reflect.DeepEqual(got, []string{"big-note"}) {
		t.Errorf("Extract = %v, want [big-note]", got)
	}
}

func TestExtract_EmptyCapturesIgnored(t *testing.T) {
	got := Extract("[[ ]] and [[|alias]] and # space")
	if len(got) != 0 {
		t.Errorf("Extract = %v, want empty", got)
	}
}

func TestExtract_PriorityTokensNotTags(t *testing.T) {
	// #high on a task line is a priority marker for the task parser; the tag
	// extractor runs independently and must not count it as a generic tag.
	if got := Extract("- [ ] todo item #high"); len(got) != 0 {
		t.Errorf("Extract = %v, want empty", got)
	}
	if got := Extract("#low #med #high #highlight"); !reflect.DeepEqual(got, []string{"highlight"}) {
		t.Errorf("Extract = %v, want [highlight]", got)
	}
}

func TestExtractFromLine_CodeSpanExcluded(t *testing.T) {
	got := ExtractFromLine("start `[[masked]]` [[kept]] end")
	if !reflect.DeepEqual(got, []string{"kept"}) {
		t.Errorf("ExtractFromLine = %v, want [kept]", got)
	}
}

func TestExtractLinks_OrderAndDedup(t *testing.T) {
	text := "See [[Note B]] then [[Note A|alias]].\nAgain [[Note B]]."
	got := ExtractLinks(text)
	want := []string{"Note B", "Note A"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractLinks = %v, want %v", got, want)
	}
}

func TestExtractLinks_FenceAndSpanExcluded(t *testing.T) {
	text := "`[[inline]]` ok [[real]]\n```\n[[fenced]]\n```"
	got := ExtractLinks(text)
	if !reflect.DeepEqual(got, []string{"real"}) {
		t.Errorf("ExtractLinks = %v, want [real]", got)
	}
}

func TestExtractLinks_PreservesCase(t *testing.T) {
	got := ExtractLinks("[[Folder/Some Note.md]]")
	if !reflect.DeepEqual(got, []string{"Folder/Some Note.md"}) {
		t.Errorf("ExtractLinks = %v", got)
	}
}
