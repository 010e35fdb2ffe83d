package util

import (
	"strings"
	"testing"
)

func TestPathToURI_AbsolutePath(t *testing.T) {
	uri := PathToURI("/workspace/src/a.ts")
	if uri != "file:///workspace/src/a.ts" {
		t.Fatalf("expected file:///workspace/src/a.ts, got %s", uri)
	}
}

func TestURIToPath_RoundTrip(t *testing.T) {
	path := "/workspace/src/a.ts"
	if got := URIToPath(PathToURI(path)); got != path {
		t.Fatalf("expected %s, got %s", path, got)
	}
}

func TestURIToPath_NonFileURI(t *testing.T) {
	if got := URIToPath("untitled:Untitled-1"); got != "untitled:Untitled-1" {
		t.Fatalf("expected non-file values unchanged, got %s", got)
	}
}

func TestWorkspaceRelative_InsideRoot(t *testing.T) {
	got := WorkspaceRelative("/workspace", "file:///workspace/src/a.ts")
	if got != "src/a.ts" {
		t.Fatalf("expected src/a.ts, got %s", got)
	}
}

func TestWorkspaceRelative_PlainPath(t *testing.T) {
	got := WorkspaceRelative("/workspace", "/workspace/src/deep/b.ts")
	if got != "src/deep/b.ts" {
		t.Fatalf("expected src/deep/b.ts, got %s", got)
	}
}

func TestWorkspaceRelative_OutsideRoot(t *testing.T) {
	got := WorkspaceRelative("/workspace", "file:///other/src/a.ts")
	if strings.HasPrefix(got, "..") {
		t.Fatalf("expected no parent traversal for outside paths, got %s", got)
	}
	if got != "/other/src/a.ts" {
		t.Fatalf("expected absolute slash path for outside paths, got %s", got)
	}
}

func TestWorkspaceURI_RoundTrip(t *testing.T) {
	uri := WorkspaceURI("/workspace", "src/a.ts")
	if uri != "file:///workspace/src/a.ts" {
		t.Fatalf("expected file:///workspace/src/a.ts, got %s", uri)
	}
	if got := WorkspaceRelative("/workspace", uri); got != "src/a.ts" {
		t.Fatalf("expected round trip back to src/a.ts, got %s", got)
	}
}
