package treesitter

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/trellis-ai/trellis/backend/pkg/common"
)

func buildSymbols(language string, root *sitter.Node, src []byte) []common.DocumentSymbol {
	switch language {
	case "typescript", "tsx", "javascript":
		return scriptSymbols(root, src)
	case "go":
		return goSymbols(root, src)
	case "python":
		return pythonSymbols(root, src, false)
	default:
		return nil
	}
}

func nodeRange(n *sitter.Node) common.Range {
	return common.Range{
		Start: common.Position{Line: int(n.StartPoint().Row), Character: int(n.StartPoint().Column)},
		End:   common.Position{Line: int(n.EndPoint().Row), Character: int(n.EndPoint().Column)},
	}
}

func makeSymbol(node, nameNode *sitter.Node, kind common.SymbolKind, src []byte) common.DocumentSymbol {
	return common.DocumentSymbol{
		Name:           nameNode.Content(src),
		Detail:         signature(node, src),
		Kind:           kind,
		Range:          nodeRange(node),
		SelectionRange: nodeRange(nameNode),
	}
}

// signature keeps the head of a declaration, cut before its body.
func signature(node *sitter.Node, src []byte) string {
	text := node.Content(src)
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n', '{':
			return strings.TrimSpace(text[:i])
		}
	}
	if len(text) > 200 {
		return strings.TrimSpace(text[:200])
	}
	return strings.TrimSpace(text)
}

func scriptSymbols(container *sitter.Node, src []byte) []common.DocumentSymbol {
	var out []common.DocumentSymbol
	for i := 0; i < int(container.NamedChildCount()); i++ {
		out = append(out, scriptSymbol(container.NamedChild(i), src)...)
	}
	return out
}

func scriptSymbol(node *sitter.Node, src []byte) []common.DocumentSymbol {
	switch node.Type() {
	case "export_statement":
		if decl := node.ChildByFieldName("declaration"); decl != nil {
			out := scriptSymbol(decl, src)
			for i := range out {
				// keep the export keyword in the fragment
				out[i].Range = nodeRange(node)
				out[i].Detail = signature(node, src)
			}
			return out
		}
		return nil

	case "function_declaration", "generator_function_declaration":
		nameNode := node.ChildByFieldName("name")
		if nameNode == nil {
			return nil
		}
		return []common.DocumentSymbol{makeSymbol(node, nameNode, common.SymbolKindFunction, src)}

	case "class_declaration", "abstract_class_declaration":
		nameNode := node.ChildByFieldName("name")
		if nameNode == nil {
			return nil
		}
		sym := makeSymbol(node, nameNode, common.SymbolKindClass, src)
		sym.Children = classMembers(node.ChildByFieldName("body"), src)
		return []common.DocumentSymbol{sym}

	case "interface_declaration":
		nameNode := node.ChildByFieldName("name")
		if nameNode == nil {
			return nil
		}
		return []common.DocumentSymbol{makeSymbol(node, nameNode, common.SymbolKindInterface, src)}

	case "enum_declaration":
		nameNode := node.ChildByFieldName("name")
		if nameNode == nil {
			return nil
		}
		return []common.DocumentSymbol{makeSymbol(node, nameNode, common.SymbolKindEnum, src)}

	case "type_alias_declaration":
		nameNode := node.ChildByFieldName("name")
		if nameNode == nil {
			return nil
		}
		return []common.DocumentSymbol{makeSymbol(node, nameNode, common.SymbolKindVariable, src)}

	case "internal_module", "module":
		nameNode := node.ChildByFieldName("name")
		if nameNode == nil {
			return nil
		}
		sym := makeSymbol(node, nameNode, common.SymbolKindNamespace, src)
		if body := node.ChildByFieldName("body"); body != nil {
			sym.Children = scriptSymbols(body, src)
		}
		return []common.DocumentSymbol{sym}

	case "lexical_declaration", "variable_declaration":
		return declaratorSymbols(node, src)
	}
	return nil
}

func declaratorSymbols(decl *sitter.Node, src []byte) []common.DocumentSymbol {
	kind := common.SymbolKindVariable
	if first := decl.Child(0); first != nil && first.Type() == "const" {
		kind = common.SymbolKindConstant
	}

	var out []common.DocumentSymbol
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		d := decl.NamedChild(i)
		if d.Type() != "variable_declarator" {
			continue
		}
		nameNode := d.ChildByFieldName("name")
		if nameNode == nil || nameNode.Type() != "identifier" {
			// destructuring patterns bind no single symbol
			continue
		}
		declKind := kind
		if isFunctionValue(d.ChildByFieldName("value")) {
			declKind = common.SymbolKindFunction
		}
		sym := makeSymbol(d, nameNode, declKind, src)
		if decl.NamedChildCount() == 1 {
			// include the declaration keyword in the fragment
			sym.Range = nodeRange(decl)
			sym.Detail = signature(decl, src)
		}
		out = append(out, sym)
	}
	return out
}

func isFunctionValue(value *sitter.Node) bool {
	if value == nil {
		return false
	}
	switch value.Type() {
	case "arrow_function", "function", "function_expression", "generator_function":
		return true
	}
	return false
}

func classMembers(body *sitter.Node, src []byte) []common.DocumentSymbol {
	if body == nil {
		return nil
	}
	var out []common.DocumentSymbol
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "method_definition":
			nameNode := member.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			kind := common.SymbolKindMethod
			if nameNode.Content(src) == "constructor" {
				kind = common.SymbolKindConstructor
			}
			out = append(out, makeSymbol(member, nameNode, kind, src))

		case "public_field_definition":
			nameNode := member.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			kind := common.SymbolKindProperty
			if isFunctionValue(member.ChildByFieldName("value")) {
				kind = common.SymbolKindMethod
			}
			out = append(out, makeSymbol(member, nameNode, kind, src))
		}
	}
	return out
}

func goSymbols(root *sitter.Node, src []byte) []common.DocumentSymbol {
	var out []common.DocumentSymbol
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "function_declaration":
			if nameNode := node.ChildByFieldName("name"); nameNode != nil {
				out = append(out, makeSymbol(node, nameNode, common.SymbolKindFunction, src))
			}
		case "method_declaration":
			if nameNode := node.ChildByFieldName("name"); nameNode != nil {
				out = append(out, makeSymbol(node, nameNode, common.SymbolKindMethod, src))
			}
		case "type_declaration":
			out = append(out, goTypeSpecs(node, src)...)
		case "const_declaration":
			out = append(out, goValueSpecs(node, "const_spec", common.SymbolKindConstant, src)...)
		case "var_declaration":
			out = append(out, goValueSpecs(node, "var_spec", common.SymbolKindVariable, src)...)
		}
	}
	return out
}

// Go methods carry their receiver at top level, so type symbols have no
// child symbols here.
func goTypeSpecs(decl *sitter.Node, src []byte) []common.DocumentSymbol {
	var out []common.DocumentSymbol
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		spec := decl.NamedChild(i)
		if spec.Type() != "type_spec" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		kind := common.SymbolKindClass
		if t := spec.ChildByFieldName("type"); t != nil {
			switch t.Type() {
			case "struct_type":
				kind = common.SymbolKindStruct
			case "interface_type":
				kind = common.SymbolKindInterface
			}
		}
		sym := makeSymbol(spec, nameNode, kind, src)
		if decl.NamedChildCount() == 1 {
			sym.Range = nodeRange(decl)
			sym.Detail = signature(decl, src)
		}
		out = append(out, sym)
	}
	return out
}

func goValueSpecs(decl *sitter.Node, specType string, kind common.SymbolKind, src []byte) []common.DocumentSymbol {
	var out []common.DocumentSymbol
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		spec := decl.NamedChild(i)
		if spec.Type() != specType {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		out = append(out, makeSymbol(spec, nameNode, kind, src))
	}
	return out
}

func pythonSymbols(container *sitter.Node, src []byte, inClass bool) []common.DocumentSymbol {
	var out []common.DocumentSymbol
	for i := 0; i < int(container.NamedChildCount()); i++ {
		node := container.NamedChild(i)
		wrapper := node
		if node.Type() == "decorated_definition" {
			if def := node.ChildByFieldName("definition"); def != nil {
				node = def
			}
		}

		switch node.Type() {
		case "function_definition":
			nameNode := node.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			kind := common.SymbolKindFunction
			if inClass {
				kind = common.SymbolKindMethod
				if nameNode.Content(src) == "__init__" {
					kind = common.SymbolKindConstructor
				}
			}
			sym := makeSymbol(node, nameNode, kind, src)
			if wrapper != node {
				// decorators belong to the fragment
				sym.Range = nodeRange(wrapper)
			}
			out = append(out, sym)

		case "class_definition":
			nameNode := node.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			sym := makeSymbol(node, nameNode, common.SymbolKindClass, src)
			if wrapper != node {
				sym.Range = nodeRange(wrapper)
			}
			if body := node.ChildByFieldName("body"); body != nil {
				sym.Children = pythonSymbols(body, src, true)
			}
			out = append(out, sym)
		}
	}
	return out
}
