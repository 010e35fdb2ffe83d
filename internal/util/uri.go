package util

import (
	"path/filepath"
	"strings"
)

// PathToURI converts a filesystem path to a file:// URI with forward slashes.
func PathToURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "file://" + path
	}
	return "file://" + filepath.ToSlash(abs)
}

// URIToPath converts a file:// URI back to a platform path. Values without
// the file scheme are returned unchanged.
func URIToPath(uri string) string {
	if strings.HasPrefix(uri, "file://") {
		return filepath.FromSlash(strings.TrimPrefix(uri, "file://"))
	}
	return uri
}

// WorkspaceRelative converts a file URI or path to a slash-separated path
// relative to the workspace root. Paths outside the root come back as
// cleaned absolute slash paths rather than climbing with "..".
func WorkspaceRelative(root string, uri string) string {
	path := URIToPath(uri)
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// WorkspaceURI converts a workspace-relative path back into a file:// URI
// under the given root.
func WorkspaceURI(root string, rel string) string {
	return PathToURI(filepath.Join(root, filepath.FromSlash(rel)))
}
