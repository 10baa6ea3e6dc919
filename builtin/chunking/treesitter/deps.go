package treesitter

import (
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// extractDependencies returns the sorted set of names a definition refers
// to: call targets, attribute bases, superclasses and imports inside it.
// Names bound inside the definition, its parameters and its own name are
// left out. Unknown node shapes contribute nothing.
func extractDependencies(def definition, src []byte) []string {
	e := &depExtractor{
		src:   src,
		bound: map[string]bool{def.name: true},
		found: map[string]bool{},
	}
	e.collectBindings(def.span)
	e.visit(def.span)

	deps := make([]string, 0, len(e.found))
	for name := range e.found {
		if name == def.name {
			continue
		}
		deps = append(deps, name)
	}
	slices.Sort(deps)
	return deps
}

type depExtractor struct {
	src   []byte
	bound map[string]bool // local names, parameters, own name
	found map[string]bool
}

// addRef records a call target or attribute base unless its first segment
// is a local name.
func (e *depExtractor) addRef(path string) {
	if path == "" {
		return
	}
	root, _, _ := strings.Cut(path, ".")
	if e.bound[root] {
		return
	}
	e.found[path] = true
}

func (e *depExtractor) addImport(name string) {
	if name != "" && strings.Trim(name, ".") != "" {
		e.found[name] = true
	}
}

func (e *depExtractor) visit(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "call":
		if path, ok := e.dotted(n.ChildByFieldName("function")); ok {
			e.addRef(stripReceiver(path))
			e.visit(n.ChildByFieldName("arguments"))
			return
		}

	case "attribute":
		if path, ok := e.dotted(n); ok {
			root, _, _ := strings.Cut(path, ".")
			if !isReceiver(root) {
				e.addRef(root)
			}
			return
		}

	case "class_definition":
		if supers := n.ChildByFieldName("superclasses"); supers != nil {
			for i := 0; i < int(supers.NamedChildCount()); i++ {
				if path, ok := e.dotted(supers.NamedChild(i)); ok {
					e.addRef(path)
				}
			}
		}

	case "import_statement":
		for i := 0; i < int(n.ChildCount()); i++ {
			if n.FieldNameForChild(i) == "name" {
				e.addImport(e.importedName(n.Child(i)))
			}
		}
		return

	case "import_from_statement":
		module := nodeText(n.ChildByFieldName("module_name"), e.src)
		e.addImport(module)
		for i := 0; i < int(n.ChildCount()); i++ {
			if n.FieldNameForChild(i) != "name" {
				continue
			}
			if name := e.importedName(n.Child(i)); name != "" {
				e.addImport(joinModule(module, name))
			}
		}
		return
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		e.visit(n.NamedChild(i))
	}
}

// dotted renders an identifier or a chain of attribute accesses on an
// identifier as a dotted path.
func (e *depExtractor) dotted(n *sitter.Node) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Type() {
	case "identifier":
		return nodeText(n, e.src), true
	case "attribute":
		base, ok := e.dotted(n.ChildByFieldName("object"))
		if !ok {
			return "", false
		}
		attr := n.ChildByFieldName("attribute")
		if attr == nil {
			return "", false
		}
		return base + "." + nodeText(attr, e.src), true
	}
	return "", false
}

func (e *depExtractor) importedName(n *sitter.Node) string {
	switch n.Type() {
	case "dotted_name":
		return nodeText(n, e.src)
	case "aliased_import":
		return nodeText(n.ChildByFieldName("name"), e.src)
	}
	return ""
}

// collectBindings marks every name bound anywhere inside n.
func (e *depExtractor) collectBindings(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "parameters", "lambda_parameters":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			e.bindParameter(n.NamedChild(i))
		}
	case "assignment", "augmented_assignment", "for_statement", "for_in_clause":
		e.bindTarget(n.ChildByFieldName("left"))
	case "named_expression":
		e.bindTarget(n.ChildByFieldName("name"))
	case "as_pattern":
		e.bindTarget(n.ChildByFieldName("alias"))
	case "except_clause":
		// except E as name
		for i := 0; i+1 < int(n.ChildCount()); i++ {
			if n.Child(i).Type() == "as" {
				e.bindTarget(n.Child(i + 1))
			}
		}
	case "function_definition", "class_definition":
		e.bindTarget(n.ChildByFieldName("name"))
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		e.collectBindings(n.NamedChild(i))
	}
}

func (e *depExtractor) bindParameter(n *sitter.Node) {
	switch n.Type() {
	case "identifier":
		e.bound[nodeText(n, e.src)] = true
	case "default_parameter", "typed_default_parameter":
		e.bindParameter(n.ChildByFieldName("name"))
	case "typed_parameter", "list_splat_pattern", "dictionary_splat_pattern":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "identifier" || strings.HasSuffix(child.Type(), "splat_pattern") {
				e.bindParameter(child)
				return
			}
		}
	}
}

// bindTarget marks the identifiers of an assignment target. Attribute and
// subscript targets bind nothing.
func (e *depExtractor) bindTarget(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "identifier":
		e.bound[nodeText(n, e.src)] = true
	case "attribute", "subscript":
	default:
		for i := 0; i < int(n.NamedChildCount()); i++ {
			e.bindTarget(n.NamedChild(i))
		}
	}
}

func isReceiver(name string) bool {
	return name == "self" || name == "cls"
}

// stripReceiver turns self.load into load.
func stripReceiver(path string) string {
	root, rest, found := strings.Cut(path, ".")
	if !isReceiver(root) {
		return path
	}
	if !found {
		return ""
	}
	return rest
}

func joinModule(module, name string) string {
	if module == "" {
		return name
	}
	if strings.HasSuffix(module, ".") {
		return module + name
	}
	return module + "." + name
}
