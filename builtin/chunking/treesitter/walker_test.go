package treesitter

import (
	"context"
	"testing"

	"github.com/spetr/pyast-rag/pkg/types"
)

func walkSource(t *testing.T, src string) (*walker, []definition) {
	t.Helper()
	tree, err := parse(context.Background(), "walk.py", []byte(src))
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	t.Cleanup(tree.Close)

	w := &walker{src: []byte(src)}
	var defs []definition
	for def := range w.walk(tree.RootNode()) {
		defs = append(defs, def)
	}
	return w, defs
}

func TestWalkerScope(t *testing.T) {
	src := `class A:
    class B:
        class C:
            def deep(self):
                pass

        def mid(self):
            pass

    def top(self):
        pass
`
	_, defs := walkSource(t, src)

	want := []struct {
		name, parent string
		typ          types.ChunkType
	}{
		{"A", "", types.ChunkTypeClass},
		{"B", "A", types.ChunkTypeClass},
		{"C", "B", types.ChunkTypeClass},
		{"deep", "C", types.ChunkTypeMethod},
		{"mid", "B", types.ChunkTypeMethod},
		{"top", "A", types.ChunkTypeMethod},
	}
	if len(defs) != len(want) {
		t.Fatalf("got %d definitions, want %d", len(defs), len(want))
	}
	for i, w := range want {
		d := defs[i]
		if d.name != w.name || d.parentName != w.parent || d.chunkType != w.typ {
			t.Errorf("definition %d = (%s, %q, %s), want (%s, %q, %s)",
				i, d.name, d.parentName, d.chunkType, w.name, w.parent, w.typ)
		}
	}
}

func TestWalkerStopsEarly(t *testing.T) {
	src := "def a():\n    pass\n\ndef b():\n    pass\n\ndef c():\n    pass\n"
	tree, err := parse(context.Background(), "stop.py", []byte(src))
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	defer tree.Close()

	w := &walker{src: []byte(src)}
	var names []string
	for def := range w.walk(tree.RootNode()) {
		names = append(names, def.name)
		if len(names) == 2 {
			break
		}
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("names = %v, want [a b]", names)
	}
}

func TestWalkerDecoratedSpan(t *testing.T) {
	src := "@first\n@second(1)\ndef f():\n    pass\n"
	w, defs := walkSource(t, src)
	if len(defs) != 1 {
		t.Fatalf("got %d definitions, want 1", len(defs))
	}
	d := defs[0]
	if d.startLine != 1 || d.endLine != 4 {
		t.Errorf("span = %d-%d, want 1-4", d.startLine, d.endLine)
	}
	if d.span.Type() != "decorated_definition" {
		t.Errorf("span node = %s, want decorated_definition", d.span.Type())
	}
	if len(w.skipped) != 0 {
		t.Errorf("skipped = %v, want none", w.skipped)
	}
}

func TestWalkerRecordsNamelessDefinition(t *testing.T) {
	src := "x = 1\n\ndef kept():\n    pass\n"
	w, defs := walkSource(t, src)
	if len(defs) != 1 {
		t.Fatalf("got %d definitions, want 1", len(defs))
	}

	tree, err := parse(context.Background(), "walk.py", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Close()

	// A statement has no name field, so it stands in for a definition
	// whose name cannot be read.
	stmt := tree.RootNode().NamedChild(0)
	if _, ok := w.define(stmt, []string{"C"}, types.ChunkTypeMethod); ok {
		t.Fatal("define() accepted a node without a name")
	}

	want := types.SkippedNode{Kind: "expression_statement", Line: 1, Reason: "definition has no name"}
	if len(w.skipped) != 1 || w.skipped[0] != want {
		t.Errorf("skipped = %+v, want %+v", w.skipped, want)
	}
}
