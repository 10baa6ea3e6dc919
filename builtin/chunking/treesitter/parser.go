package treesitter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/spetr/pyast-rag/pkg/types"
)

// SyntaxError reports Python source that does not conform to the grammar.
// It wraps types.ErrParseError.
type SyntaxError struct {
	Path   string
	Line   int // 1-based
	Column int // 1-based
	Msg    string
}

func (e *SyntaxError) Error() string {
	path := e.Path
	if path == "" {
		path = "<source>"
	}
	return fmt.Sprintf("%s:%d:%d: syntax error: %s", path, e.Line, e.Column, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return types.ErrParseError
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// codingCookie matches a PEP 263 encoding declaration.
var codingCookie = regexp.MustCompile(`^[ \t\f]*#.*?coding[:=][ \t]*([-\w.]+)`)

// encodingAliases maps Python codec names to WHATWG labels where they differ.
var encodingAliases = map[string]string{
	"latin-1":     "latin1",
	"iso-latin-1": "latin1",
	"cp1252":      "windows-1252",
	"shift-jis":   "shift_jis",
}

// normalize converts raw file bytes to UTF-8 text: the BOM is dropped and a
// coding declaration on line 1 or 2 is honored.
func normalize(path string, src []byte) ([]byte, error) {
	src = bytes.TrimPrefix(src, utf8BOM)

	if name := declaredEncoding(src); name != "" && !isUTF8Name(name) {
		label := strings.ReplaceAll(strings.ToLower(name), "_", "-")
		if alias, ok := encodingAliases[label]; ok {
			label = alias
		}
		enc, err := htmlindex.Get(label)
		if err != nil {
			return nil, &SyntaxError{Path: path, Line: 1, Column: 1, Msg: "unknown encoding: " + name}
		}
		decoded, err := enc.NewDecoder().Bytes(src)
		if err != nil {
			return nil, &SyntaxError{Path: path, Line: 1, Column: 1, Msg: fmt.Sprintf("cannot decode as %s: %v", name, err)}
		}
		src = decoded
	}

	if !utf8.Valid(src) {
		line, col := invalidUTF8Position(src)
		return nil, &SyntaxError{Path: path, Line: line, Column: col, Msg: "invalid UTF-8"}
	}
	return src, nil
}

// declaredEncoding returns the encoding named by a coding cookie, if any.
// The cookie may sit on line 2 only when line 1 is a comment or blank.
func declaredEncoding(src []byte) string {
	for i := 0; i < 2 && len(src) > 0; i++ {
		line := src
		if nl := bytes.IndexByte(src, '\n'); nl >= 0 {
			line, src = src[:nl], src[nl+1:]
		} else {
			src = nil
		}
		if m := codingCookie.FindSubmatch(line); m != nil {
			return string(m[1])
		}
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 && trimmed[0] != '#' {
			return ""
		}
	}
	return ""
}

func isUTF8Name(name string) bool {
	n := strings.ToLower(strings.ReplaceAll(name, "_", "-"))
	return n == "utf-8" || n == "utf8" || strings.HasPrefix(n, "utf-8-")
}

func invalidUTF8Position(src []byte) (line, col int) {
	line, col = 1, 1
	for len(src) > 0 {
		r, size := utf8.DecodeRune(src)
		if r == utf8.RuneError && size <= 1 {
			return line, col
		}
		if r == '\n' {
			line++
			col = 1
		} else {
			col++
		}
		src = src[size:]
	}
	return line, col
}

// parse parses normalized source with the Python grammar. The returned tree
// must be closed by the caller. Trees containing error recovery nodes are
// rejected with a *SyntaxError.
func parse(ctx context.Context, path string, src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, fmt.Errorf("parse %s: %w", path, types.ErrTimeout)
			}
			return nil, fmt.Errorf("parse %s: %w", path, types.ErrCancelled)
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	root := tree.RootNode()
	if root.HasError() {
		se := syntaxErrorAt(path, root)
		tree.Close()
		return nil, se
	}
	if se := invalidConstruct(path, root); se != nil {
		tree.Close()
		return nil, se
	}
	return tree, nil
}

// invalidConstruct finds the first construct the grammar accepts but
// Python 3 rejects: print and exec statements, deleting a call, and
// iterable unpacking after keyword unpacking in a call.
func invalidConstruct(path string, n *sitter.Node) *SyntaxError {
	at, msg := n, ""
	switch n.Type() {
	case "print_statement":
		msg = "Missing parentheses in call to 'print'"
	case "exec_statement":
		msg = "Missing parentheses in call to 'exec'"
	case "delete_statement":
		if bad := deletedCall(n); bad != nil {
			at, msg = bad, "cannot delete function call"
		}
	case "argument_list":
		if bad := splatAfterKwargs(n); bad != nil {
			at, msg = bad, "iterable argument unpacking follows keyword argument unpacking"
		}
	}
	if msg != "" {
		p := at.StartPoint()
		return &SyntaxError{Path: path, Line: int(p.Row) + 1, Column: int(p.Column) + 1, Msg: msg}
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		if se := invalidConstruct(path, n.NamedChild(i)); se != nil {
			return se
		}
	}
	return nil
}

// deletedCall returns the first call among the targets of a del statement.
func deletedCall(del *sitter.Node) *sitter.Node {
	for i := 0; i < int(del.NamedChildCount()); i++ {
		target := del.NamedChild(i)
		if target.Type() == "expression_list" {
			for j := 0; j < int(target.NamedChildCount()); j++ {
				if t := target.NamedChild(j); t.Type() == "call" {
					return t
				}
			}
			continue
		}
		if target.Type() == "call" {
			return target
		}
	}
	return nil
}

// splatAfterKwargs returns a *args argument that follows a **kwargs one.
func splatAfterKwargs(args *sitter.Node) *sitter.Node {
	seenKwargs := false
	for i := 0; i < int(args.NamedChildCount()); i++ {
		switch arg := args.NamedChild(i); arg.Type() {
		case "dictionary_splat":
			seenKwargs = true
		case "list_splat":
			if seenKwargs {
				return arg
			}
		}
	}
	return nil
}

// syntaxErrorAt locates the first ERROR or MISSING node below root.
func syntaxErrorAt(path string, root *sitter.Node) *SyntaxError {
	bad := firstErrorNode(root)
	if bad == nil {
		bad = root
	}
	msg := "invalid syntax"
	if bad.IsMissing() {
		msg = fmt.Sprintf("expected %q", bad.Type())
	}
	p := bad.StartPoint()
	return &SyntaxError{Path: path, Line: int(p.Row) + 1, Column: int(p.Column) + 1, Msg: msg}
}

func firstErrorNode(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if bad := firstErrorNode(n.Child(i)); bad != nil {
			return bad
		}
	}
	return nil
}

// decoratorStart returns the line of the first decorator attached to a
// function or class definition.
func decoratorStart(def *sitter.Node) (int, bool) {
	parent := def.Parent()
	if parent == nil || parent.Type() != "decorated_definition" {
		return 0, false
	}
	return startLine(parent), true
}

// decoratedSpan returns the node covering a definition and its decorators.
func decoratedSpan(def *sitter.Node) *sitter.Node {
	if parent := def.Parent(); parent != nil && parent.Type() == "decorated_definition" {
		return parent
	}
	return def
}

func startLine(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

// endLine returns the line of the last non-whitespace byte of n. The
// grammar lets a block absorb the newline that ends its last statement.
func endLine(n *sitter.Node, src []byte) int {
	start, end := int(n.StartByte()), int(n.EndByte())
	for end > start && isSpace(src[end-1]) {
		end--
	}
	return startLine(n) + bytes.Count(src[start:end], []byte{'\n'})
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n' || b == '\f' || b == '\v'
}

func nodeText(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return string(src[n.StartByte():n.EndByte()])
}
