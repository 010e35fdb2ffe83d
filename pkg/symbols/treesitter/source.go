// Package treesitter provides a symbols.Source backed by tree-sitter
// parsing, for use where no language server is available.
package treesitter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/trellis-ai/trellis/backend/internal/util"
	"github.com/trellis-ai/trellis/backend/pkg/common"
	"github.com/trellis-ai/trellis/backend/pkg/symbols"
)

// Source answers symbol lookups from parsed syntax trees. Parsed files are
// cached by content hash, so repeated lookups against unchanged files stay
// cheap.
//
// Definition resolution is heuristic: local declarations win, then files
// reachable through the document's import statements, matched by exported
// name. Go files instead scan the sibling files of their package.
type Source struct {
	workspace string
	parser    *Parser

	mu    sync.Mutex
	cache map[string]*parsedFile
}

type parsedFile struct {
	sha      string
	language string
	symbols  []common.DocumentSymbol
	imports  []importStatement
	idents   []symbols.Reference
}

type SourceParams struct {
	Workspace string
}

// NewSource creates a tree-sitter backed symbol source rooted at a
// workspace directory.
//
// Example:
//
//	source, err := treesitter.NewSource(treesitter.SourceParams{
//		Workspace: "/path/to/repo",
//	})
//	if err != nil {
//		// handle error
//	}
//	syms, err := source.GetSymbols(ctx, doc)
func NewSource(params SourceParams) (*Source, error) {
	if params.Workspace == "" {
		return nil, errors.New("workspace is required")
	}
	return &Source{
		workspace: params.Workspace,
		parser:    NewParser(),
		cache:     make(map[string]*parsedFile),
	}, nil
}

var (
	_ symbols.Source  = (*Source)(nil)
	_ symbols.Scanner = (*Source)(nil)
)

func (s *Source) GetSymbols(ctx context.Context, doc common.Document) ([]common.DocumentSymbol, error) {
	pf, err := s.parsed(ctx, doc)
	if err != nil || pf == nil {
		return nil, err
	}
	return pf.symbols, nil
}

func (s *Source) GetDefinition(ctx context.Context, doc common.Document, position common.Position) ([]common.Location, error) {
	return s.definition(ctx, doc, position, nil)
}

func (s *Source) GetTypeDefinition(ctx context.Context, doc common.Document, position common.Position) ([]common.Location, error) {
	return s.definition(ctx, doc, position, func(kind common.SymbolKind) bool {
		return kind.Container() || kind == common.SymbolKindEnum
	})
}

func (s *Source) ScanReferences(ctx context.Context, doc common.Document, within common.Range) ([]symbols.Reference, error) {
	pf, err := s.parsed(ctx, doc)
	if err != nil || pf == nil {
		return nil, err
	}
	var out []symbols.Reference
	for _, ref := range pf.idents {
		if within.Contains(ref.Position) {
			out = append(out, ref)
		}
	}
	return out, nil
}

func (s *Source) ScanImports(ctx context.Context, doc common.Document) ([]common.Range, error) {
	pf, err := s.parsed(ctx, doc)
	if err != nil || pf == nil {
		return nil, err
	}
	var out []common.Range
	for i, st := range pf.imports {
		// one python line can yield one statement per module
		if i > 0 && st.Range == pf.imports[i-1].Range {
			continue
		}
		out = append(out, st.Range)
	}
	return out, nil
}

// parsed returns the cached parse of a document, refreshing it when the
// content hash changed. Unsupported file types return nil without error.
func (s *Source) parsed(ctx context.Context, doc common.Document) (*parsedFile, error) {
	path := util.URIToPath(doc.URI)
	language, ok := LanguageForPath(path)
	if !ok {
		return nil, nil
	}

	text := doc.Text
	if text == "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		text = string(data)
	}

	sum := sha256.Sum256([]byte(text))
	sha := hex.EncodeToString(sum[:])

	s.mu.Lock()
	if pf, ok := s.cache[doc.URI]; ok && pf.sha == sha {
		s.mu.Unlock()
		return pf, nil
	}
	s.mu.Unlock()

	src := []byte(text)
	tree, err := s.parser.Parse(ctx, src, language)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	pf := &parsedFile{
		sha:      sha,
		language: language,
		symbols:  buildSymbols(language, root, src),
		imports:  collectImports(language, root, src),
		idents:   collectIdentifiers(language, root, src),
	}

	s.mu.Lock()
	s.cache[doc.URI] = pf
	s.mu.Unlock()

	return pf, nil
}

func (s *Source) definition(ctx context.Context, doc common.Document, position common.Position, keep func(common.SymbolKind) bool) ([]common.Location, error) {
	pf, err := s.parsed(ctx, doc)
	if err != nil || pf == nil {
		return nil, err
	}

	name := identifierAt(pf.idents, position)
	if name == "" {
		return nil, nil
	}

	if locs := matchSymbols(pf.symbols, doc.URI, name, keep, true); len(locs) > 0 {
		return locs, nil
	}

	if pf.language == "go" {
		return s.goSiblingDefinitions(ctx, doc.URI, name, keep), nil
	}
	return s.importedDefinitions(ctx, doc.URI, pf, name, keep), nil
}

func identifierAt(idents []symbols.Reference, position common.Position) string {
	for _, ref := range idents {
		if ref.Position.Line != position.Line {
			continue
		}
		if position.Character >= ref.Position.Character &&
			position.Character <= ref.Position.Character+len(ref.Name) {
			return ref.Name
		}
	}
	return ""
}

func matchSymbols(syms []common.DocumentSymbol, uri, name string, keep func(common.SymbolKind) bool, deep bool) []common.Location {
	var out []common.Location
	for _, sym := range syms {
		if sym.Name == name && (keep == nil || keep(sym.Kind)) {
			out = append(out, common.Location{URI: uri, Range: sym.SelectionRange})
		}
		if deep && len(sym.Children) > 0 {
			out = append(out, matchSymbols(sym.Children, uri, name, keep, true)...)
		}
	}
	return out
}

// importedDefinitions follows the document's imports. Failures on target
// files count as misses so one unreadable neighbor cannot fail the lookup.
func (s *Source) importedDefinitions(ctx context.Context, uri string, pf *parsedFile, name string, keep func(common.SymbolKind) bool) []common.Location {
	fromPath := util.URIToPath(uri)

	var out []common.Location
	for _, st := range pf.imports {
		if !st.binds(name) {
			continue
		}

		var targetPath string
		switch pf.language {
		case "python":
			targetPath = resolvePythonImport(s.workspace, fromPath, st.Specifier)
		default:
			targetPath = resolveScriptImport(fromPath, st.Specifier)
		}
		if targetPath == "" {
			continue
		}
		targetURI := util.PathToURI(targetPath)

		if st.Namespace == name && !st.Wildcard {
			// the binding names the module itself
			if keep == nil {
				out = append(out, common.Location{URI: targetURI})
			}
			continue
		}

		target, err := s.parsed(ctx, common.Document{URI: targetURI})
		if err != nil || target == nil {
			continue
		}
		out = append(out, matchSymbols(target.symbols, targetURI, st.lookupName(name), keep, false)...)
	}
	return out
}

// goSiblingDefinitions scans the other files of the same directory, since
// one Go package spans files without imports.
func (s *Source) goSiblingDefinitions(ctx context.Context, uri, name string, keep func(common.SymbolKind) bool) []common.Location {
	fromPath := util.URIToPath(uri)
	dir := filepath.Dir(fromPath)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var out []common.Location
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".go") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if path == fromPath {
			continue
		}
		sibling, err := s.parsed(ctx, common.Document{URI: util.PathToURI(path)})
		if err != nil || sibling == nil {
			continue
		}
		out = append(out, matchSymbols(sibling.symbols, util.PathToURI(path), name, keep, false)...)
	}
	return out
}
