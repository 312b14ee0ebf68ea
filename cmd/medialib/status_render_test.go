package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"medialib/internal/library"
	"medialib/internal/migration"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Library database", statusError, "missing tables: prompts", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Library database:", "[ERROR] missing tables: prompts")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Result", statusOK, "no errors", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestCountStatus(t *testing.T) {
	if got := countStatus(0, statusWarn); got != statusOK {
		t.Fatalf("countStatus(0) = %v, want OK", got)
	}
	if got := countStatus(3, statusWarn); got != statusWarn {
		t.Fatalf("countStatus(3) = %v, want WARN", got)
	}
}

func TestRenderFindingsTruncates(t *testing.T) {
	findings := make([]migration.Finding, maxFindingRows+5)
	for i := range findings {
		findings[i] = migration.Finding{
			Code:    migration.CodeMissingMetadata,
			Message: "missing mime_type",
			Kind:    library.KindImage,
			AssetID: int64(i + 1),
		}
	}
	out := renderFindings(findings, 0)
	requireContains(t, out, "image#1")
	requireContains(t, out, "and 5 more")
	if strings.Contains(out, fmt.Sprintf("image#%d ", maxFindingRows+1)) {
		t.Fatalf("expected rows beyond the limit to be hidden")
	}
}

func TestFindingTarget(t *testing.T) {
	got := findingTarget(migration.Finding{ScriptID: 5, SceneID: "act0-scene0", MappingID: 9, Kind: library.KindVideo, AssetID: 3})
	if got != "script 5 act0-scene0 mapping 9 video#3" {
		t.Fatalf("findingTarget = %q", got)
	}
	if got := findingTarget(migration.Finding{}); got != "-" {
		t.Fatalf("empty findingTarget = %q", got)
	}
}

func TestKindLabelAndSceneArg(t *testing.T) {
	if got := kindLabel(library.KindAudio); got != "Audio" {
		t.Fatalf("kindLabel = %q", got)
	}
	if got := sceneArg("-"); got != "" {
		t.Fatalf("sceneArg(-) = %q", got)
	}
	if got := sceneArg(" act1-scene2 "); got != "act1-scene2" {
		t.Fatalf("sceneArg = %q", got)
	}
}
