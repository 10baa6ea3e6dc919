package treesitter

import (
	"iter"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/spetr/pyast-rag/pkg/types"
)

// nodeKind is the walker's view of a syntax node.
type nodeKind int

const (
	kindOther nodeKind = iota
	kindClass
	kindFunction
)

func classify(n *sitter.Node) nodeKind {
	switch n.Type() {
	case "class_definition":
		return kindClass
	case "function_definition":
		// async def is a function_definition with a leading "async" token
		return kindFunction
	default:
		return kindOther
	}
}

// definition is a class or function node selected for chunking.
type definition struct {
	node       *sitter.Node // class_definition or function_definition
	span       *sitter.Node // node itself, or its decorated_definition
	name       string
	parentName string
	chunkType  types.ChunkType
	startLine  int
	endLine    int
}

// walker finds definitions in one tree. It is not shared between files.
type walker struct {
	src     []byte
	skipped []types.SkippedNode
}

// walk yields definitions in document order, each class before its members.
// Function bodies are not entered: nested helpers stay inside their
// enclosing function's chunk.
func (w *walker) walk(root *sitter.Node) iter.Seq[definition] {
	return func(yield func(definition) bool) {
		w.visit(root, nil, yield)
	}
}

// visit returns false when the consumer stopped the iteration.
// scope holds enclosing class names, innermost last.
func (w *walker) visit(n *sitter.Node, scope []string, yield func(definition) bool) bool {
	switch classify(n) {
	case kindClass:
		def, ok := w.define(n, scope, types.ChunkTypeClass)
		if !ok {
			return true
		}
		if !yield(def) {
			return false
		}
		inner := append(scope[:len(scope):len(scope)], def.name)
		if body := n.ChildByFieldName("body"); body != nil {
			return w.visitChildren(body, inner, yield)
		}
		return true

	case kindFunction:
		chunkType := types.ChunkTypeFunction
		if len(scope) > 0 {
			chunkType = types.ChunkTypeMethod
		}
		def, ok := w.define(n, scope, chunkType)
		if !ok {
			return true
		}
		return yield(def)

	case kindOther:
		return w.visitChildren(n, scope, yield)
	}
	return true
}

func (w *walker) visitChildren(n *sitter.Node, scope []string, yield func(definition) bool) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if !w.visit(n.NamedChild(i), scope, yield) {
			return false
		}
	}
	return true
}

// define builds the definition record for n, or records n as skipped when
// its shape is not understood.
func (w *walker) define(n *sitter.Node, scope []string, chunkType types.ChunkType) (definition, bool) {
	name := nodeText(n.ChildByFieldName("name"), w.src)
	if name == "" {
		w.skipped = append(w.skipped, types.SkippedNode{
			Kind:   n.Type(),
			Line:   startLine(n),
			Reason: "definition has no name",
		})
		return definition{}, false
	}

	def := definition{
		node:      n,
		span:      decoratedSpan(n),
		name:      name,
		chunkType: chunkType,
		startLine: startLine(n),
		endLine:   endLine(n, w.src),
	}
	if len(scope) > 0 {
		def.parentName = scope[len(scope)-1]
	}
	if line, ok := decoratorStart(n); ok {
		def.startLine = line
	}
	return def, true
}
