package treesitter

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/trellis-ai/trellis/backend/pkg/common"
	"github.com/trellis-ai/trellis/backend/pkg/symbols"
)

var identifierTypes = map[string]map[string]bool{
	"typescript": {"identifier": true, "type_identifier": true},
	"tsx":        {"identifier": true, "type_identifier": true},
	"javascript": {"identifier": true},
	"go":         {"identifier": true, "type_identifier": true},
	"python":     {"identifier": true},
}

// collectIdentifiers gathers every identifier leaf in document order.
// Member and property names are excluded where the grammar types them
// distinctly; Python attributes parse as plain identifiers and stay in.
func collectIdentifiers(language string, root *sitter.Node, src []byte) []symbols.Reference {
	types := identifierTypes[language]
	if types == nil {
		return nil
	}

	var out []symbols.Reference
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if types[n.Type()] && n.NamedChildCount() == 0 {
			out = append(out, symbols.Reference{
				Name: n.Content(src),
				Position: common.Position{
					Line:      int(n.StartPoint().Row),
					Character: int(n.StartPoint().Column),
				},
			})
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
	return out
}
