package scan

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/specialistvlad/bundlesplit/internal/runtime"
)

// shapeKind is the closed set of node shapes the scanner reacts to.
type shapeKind int

const (
	shapeOther shapeKind = iota
	// require('<module>')
	shapeRequireCall
	// import ... from '<module>'
	shapeImportDecl
	// <expr>.<object>.<method>(arg, ...)
	shapeLoadCall
	// 'x' or "x"
	shapeStringLiteral
	// `x` with no ${} substitution
	shapeTemplateOneQuasi
)

func (k shapeKind) String() string {
	switch k {
	case shapeRequireCall:
		return "require call"
	case shapeImportDecl:
		return "import declaration"
	case shapeLoadCall:
		return "load call"
	case shapeStringLiteral:
		return "string literal"
	case shapeTemplateOneQuasi:
		return "template string"
	default:
		return "other"
	}
}

// shape is a classified node. For calls and imports, arg is the node holding
// the module specifier.
type shape struct {
	kind shapeKind
	node *sitter.Node
	arg  *sitter.Node
}

// classify matches n against the shapes of conv.
func classify(n *sitter.Node, src []byte, conv runtime.Convention) shape {
	switch n.Type() {
	case "string":
		return shape{kind: shapeStringLiteral, node: n}
	case "template_string":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if n.NamedChild(i).Type() == "template_substitution" {
				return shape{kind: shapeOther, node: n}
			}
		}
		return shape{kind: shapeTemplateOneQuasi, node: n}
	case "import_statement":
		if source := n.ChildByFieldName("source"); source != nil {
			return shape{kind: shapeImportDecl, node: n, arg: source}
		}
	case "call_expression":
		fn := n.ChildByFieldName("function")
		args := n.ChildByFieldName("arguments")
		if fn == nil || args == nil || args.Type() != "arguments" {
			break
		}
		first := firstArgument(args)
		if fn.Type() == "identifier" && fn.Content(src) == "require" {
			return shape{kind: shapeRequireCall, node: n, arg: first}
		}
		if isLoadCallee(fn, src, conv) {
			return shape{kind: shapeLoadCall, node: n, arg: first}
		}
	}
	return shape{kind: shapeOther, node: n}
}

// isLoadCallee matches `<expr>.<object>.<method>`: a member call named
// method on an object whose own property is named object.
func isLoadCallee(fn *sitter.Node, src []byte, conv runtime.Convention) bool {
	if fn.Type() != "member_expression" {
		return false
	}
	prop := fn.ChildByFieldName("property")
	if prop == nil || prop.Content(src) != conv.Method {
		return false
	}
	obj := fn.ChildByFieldName("object")
	if obj == nil || obj.Type() != "member_expression" {
		return false
	}
	objProp := obj.ChildByFieldName("property")
	return objProp != nil && objProp.Content(src) == conv.Object
}

func firstArgument(args *sitter.Node) *sitter.Node {
	for i := 0; i < int(args.NamedChildCount()); i++ {
		child := args.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		return child
	}
	return nil
}

// stringValue returns the cooked value of a string literal or
// interpolation-free template string node.
func stringValue(n *sitter.Node, src []byte, conv runtime.Convention) (string, bool) {
	if n == nil {
		return "", false
	}
	switch classify(n, src, conv).kind {
	case shapeStringLiteral, shapeTemplateOneQuasi:
		raw := n.Content(src)
		if len(raw) < 2 {
			return "", false
		}
		return unescape(raw[1 : len(raw)-1])
	default:
		return "", false
	}
}
