package treesitter

import (
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/trellis-ai/trellis/backend/pkg/common"
)

// importedName is one binding introduced by an import statement. Exported
// is the name declared in the source module, Local the name visible in the
// importing file.
type importedName struct {
	Exported string
	Local    string
}

type importStatement struct {
	Range     common.Range
	Specifier string
	Names     []importedName
	Default   string
	Namespace string
	Wildcard  bool
}

func (st importStatement) binds(name string) bool {
	if name == "" {
		return false
	}
	if st.Default == name || st.Namespace == name || st.Wildcard {
		return true
	}
	for _, n := range st.Names {
		if n.Local == name {
			return true
		}
	}
	return false
}

// lookupName maps a local binding back to the name declared in the source
// module. Default imports and wildcards resolve by the local name.
func (st importStatement) lookupName(name string) string {
	for _, n := range st.Names {
		if n.Local == name {
			return n.Exported
		}
	}
	return name
}

func collectImports(language string, root *sitter.Node, src []byte) []importStatement {
	switch language {
	case "typescript", "tsx", "javascript":
		return scriptImports(root, src)
	case "go":
		return goImports(root)
	case "python":
		return pythonImports(root, src)
	default:
		return nil
	}
}

func scriptImports(root *sitter.Node, src []byte) []importStatement {
	var out []importStatement
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		if node.Type() != "import_statement" {
			continue
		}

		st := importStatement{Range: nodeRange(node)}
		if source := node.ChildByFieldName("source"); source != nil {
			st.Specifier = unquote(source.Content(src))
		}

		for j := 0; j < int(node.NamedChildCount()); j++ {
			clause := node.NamedChild(j)
			if clause.Type() != "import_clause" {
				continue
			}
			for k := 0; k < int(clause.NamedChildCount()); k++ {
				part := clause.NamedChild(k)
				switch part.Type() {
				case "identifier":
					st.Default = part.Content(src)
				case "namespace_import":
					for l := 0; l < int(part.NamedChildCount()); l++ {
						if id := part.NamedChild(l); id.Type() == "identifier" {
							st.Namespace = id.Content(src)
						}
					}
				case "named_imports":
					st.Names = append(st.Names, namedImportSpecifiers(part, src)...)
				}
			}
		}
		out = append(out, st)
	}
	return out
}

func namedImportSpecifiers(node *sitter.Node, src []byte) []importedName {
	var out []importedName
	for i := 0; i < int(node.NamedChildCount()); i++ {
		spec := node.NamedChild(i)
		if spec.Type() != "import_specifier" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		in := importedName{Exported: nameNode.Content(src)}
		in.Local = in.Exported
		if alias := spec.ChildByFieldName("alias"); alias != nil {
			in.Local = alias.Content(src)
		}
		out = append(out, in)
	}
	return out
}

// goImports records statement ranges only. Go resolution never follows
// import paths, it scans package siblings instead.
func goImports(root *sitter.Node) []importStatement {
	var out []importStatement
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		if node.Type() == "import_declaration" {
			out = append(out, importStatement{Range: nodeRange(node)})
		}
	}
	return out
}

func pythonImports(root *sitter.Node, src []byte) []importStatement {
	var out []importStatement
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "import_statement":
			for j := 0; j < int(node.NamedChildCount()); j++ {
				child := node.NamedChild(j)
				switch child.Type() {
				case "dotted_name":
					dotted := child.Content(src)
					local := dotted
					if k := strings.IndexByte(dotted, '.'); k >= 0 {
						local = dotted[:k]
					}
					out = append(out, importStatement{
						Range:     nodeRange(node),
						Specifier: dotted,
						Namespace: local,
					})
				case "aliased_import":
					nameNode := child.ChildByFieldName("name")
					alias := child.ChildByFieldName("alias")
					if nameNode == nil || alias == nil {
						continue
					}
					out = append(out, importStatement{
						Range:     nodeRange(node),
						Specifier: nameNode.Content(src),
						Namespace: alias.Content(src),
					})
				}
			}

		case "import_from_statement":
			st := importStatement{Range: nodeRange(node)}
			module := node.ChildByFieldName("module_name")
			if module != nil {
				st.Specifier = module.Content(src)
			}
			for j := 0; j < int(node.NamedChildCount()); j++ {
				child := node.NamedChild(j)
				if module != nil && child.StartByte() == module.StartByte() {
					continue
				}
				switch child.Type() {
				case "dotted_name":
					name := child.Content(src)
					st.Names = append(st.Names, importedName{Exported: name, Local: name})
				case "aliased_import":
					nameNode := child.ChildByFieldName("name")
					alias := child.ChildByFieldName("alias")
					if nameNode == nil || alias == nil {
						continue
					}
					st.Names = append(st.Names, importedName{
						Exported: nameNode.Content(src),
						Local:    alias.Content(src),
					})
				case "wildcard_import":
					st.Wildcard = true
				}
			}
			out = append(out, st)
		}
	}
	return out
}

func unquote(s string) string {
	return strings.Trim(s, "\"'`")
}

// resolveScriptImport maps a relative specifier to a file on disk. Bare
// specifiers resolve through package managers and are skipped.
func resolveScriptImport(fromPath, specifier string) string {
	if !strings.HasPrefix(specifier, "./") && !strings.HasPrefix(specifier, "../") {
		return ""
	}
	base := filepath.Join(filepath.Dir(fromPath), filepath.FromSlash(specifier))

	candidates := []string{base}
	switch ext := filepath.Ext(base); ext {
	case ".js", ".jsx", ".mjs", ".cjs":
		// NodeNext specifiers name the emitted file
		trimmed := strings.TrimSuffix(base, ext)
		candidates = append(candidates, trimmed+".ts", trimmed+".tsx")
	case "":
		candidates = append(candidates,
			base+".ts", base+".tsx", base+".js", base+".jsx", base+".mjs", base+".cjs",
			filepath.Join(base, "index.ts"),
			filepath.Join(base, "index.tsx"),
			filepath.Join(base, "index.js"),
		)
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate
		}
	}
	return ""
}

// resolvePythonImport maps a module path to a file, relative to the
// importing file for leading dots and to the workspace root otherwise.
func resolvePythonImport(workspace, fromPath, specifier string) string {
	if specifier == "" {
		return ""
	}

	dots := 0
	for dots < len(specifier) && specifier[dots] == '.' {
		dots++
	}
	rest := strings.ReplaceAll(specifier[dots:], ".", string(filepath.Separator))

	var base string
	if dots > 0 {
		base = filepath.Dir(fromPath)
		for i := 1; i < dots; i++ {
			base = filepath.Dir(base)
		}
	} else {
		base = workspace
	}

	target := filepath.Join(base, rest)
	for _, candidate := range []string{target + ".py", filepath.Join(target, "__init__.py")} {
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate
		}
	}
	return ""
}
