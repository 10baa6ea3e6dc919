package treesitter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/spetr/pyast-rag/pkg/types"
)

// chunkSummary is the subset of chunk fields most tests compare.
type chunkSummary struct {
	Name       string
	Type       types.ChunkType
	Parent     string
	Start, End int
}

func summarize(chunks []*types.Chunk) []chunkSummary {
	out := make([]chunkSummary, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, chunkSummary{c.Name, c.ChunkType, c.ParentName, c.StartLine, c.EndLine})
	}
	return out
}

func mustParse(t *testing.T, src string) []*types.Chunk {
	t.Helper()
	chunks, err := ParseSource([]byte(src), "example.py")
	if err != nil {
		t.Fatalf("ParseSource() error = %v", err)
	}
	return chunks
}

func findChunk(t *testing.T, chunks []*types.Chunk, name string) *types.Chunk {
	t.Helper()
	for _, c := range chunks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no chunk named %q in %v", name, summarize(chunks))
	return nil
}

const serviceSource = `import os
from typing import Optional


def helper(value):
    return value * 2


@dataclass
class Config:
    name: str = "default"

    @property
    def upper(self):
        return self.name.upper()


class Service(Base):
    """Talks to the backend."""

    retries = 3

    def __init__(self, client, timeout=30):
        self.client = client
        self.timeout = timeout

    @staticmethod
    @functools.lru_cache(maxsize=None)
    def build_path(root, *parts):
        return os.path.join(root, *parts)

    async def fetch(self, url: str) -> Optional[bytes]:
        async with self.client.session() as session:
            response = await session.get(url)
            return helper(response)

    class Options:
        verbose = False

        def describe(self):
            return str(self.verbose)


def outer(items):
    def inner(x):
        return x + 1

    class Local:
        pass

    return [inner(i) for i in items]
`

func TestParseSourceScenarioA(t *testing.T) {
	src := "class MyClass:\n    def hello(self):\n        print(\"Hello World\")"
	chunks := mustParse(t, src)

	want := []chunkSummary{
		{"MyClass", types.ChunkTypeClass, "", 1, 3},
		{"hello", types.ChunkTypeMethod, "MyClass", 2, 3},
	}
	if diff := cmp.Diff(want, summarize(chunks)); diff != "" {
		t.Fatalf("chunks mismatch (-want +got):\n%s", diff)
	}

	for _, c := range chunks {
		if c.FilePath != "example.py" {
			t.Errorf("%s: FilePath = %q, want example.py", c.Name, c.FilePath)
		}
		if c.Language != types.LanguagePython {
			t.Errorf("%s: Language = %q", c.Name, c.Language)
		}
	}
	if chunks[0].Content != src {
		t.Errorf("class content = %q, want whole source", chunks[0].Content)
	}
	wantMethod := "    def hello(self):\n        print(\"Hello World\")"
	if chunks[1].Content != wantMethod {
		t.Errorf("method content = %q, want %q", chunks[1].Content, wantMethod)
	}
	if !chunks[1].HasDependency("print") {
		t.Errorf("method dependencies = %v, want print", chunks[1].Dependencies)
	}
}

func TestParseSourceEmptyInput(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"blank lines", "\n\n\t\n  \n"},
		{"bom only", "\ufeff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := ParseSource([]byte(tt.src), "empty.py")
			if err != nil {
				t.Fatalf("ParseSource() error = %v", err)
			}
			if len(chunks) != 0 {
				t.Errorf("got %d chunks, want 0", len(chunks))
			}
		})
	}
}

func TestParseSourceSyntaxError(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		maxLine int
	}{
		{"unclosed parameters", "def f(:\n  pass", 2},
		{"bad class header", "class :\n    pass\n", 2},
		{"error after valid code", "def ok():\n    return 1\n\ndef broken(\n", 5},
		{"print statement", "def f():\n    print \"hi\"\n", 2},
		{"print chevron", "import sys\n\ndef f():\n    print >>sys.stderr, 'x'\n", 4},
		{"exec statement", "def f():\n    exec \"x = 1\"\n", 2},
		{"delete call", "def f():\n    del g()\n", 2},
		{"delete call in list", "def f(a):\n    del a[0], g()\n", 2},
		{"splat after kwargs", "def f(a, b):\n    return g(**a, *b)\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := ParseSource([]byte(tt.src), "bad.py")
			if err == nil {
				t.Fatalf("ParseSource() error = nil, want syntax error")
			}
			if chunks != nil {
				t.Errorf("got %d chunks alongside error, want none", len(chunks))
			}
			if !errors.Is(err, types.ErrParseError) {
				t.Errorf("errors.Is(err, ErrParseError) = false for %v", err)
			}
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("error %T is not *SyntaxError", err)
			}
			if se.Path != "bad.py" {
				t.Errorf("Path = %q, want bad.py", se.Path)
			}
			if se.Line < 1 || se.Line > tt.maxLine {
				t.Errorf("Line = %d, want within 1..%d", se.Line, tt.maxLine)
			}
			if !IsSyntaxError(err) {
				t.Error("IsSyntaxError() = false")
			}
		})
	}
}

func TestParseSourcePython3Forms(t *testing.T) {
	src := `import sys

def f(a, b):
    print("hi", file=sys.stderr)
    exec("x = 1")
    del a[0], b.c
    return g(*a, **b)
`
	chunks, err := ParseSource([]byte(src), "ok.py")
	if err != nil {
		t.Fatalf("ParseSource() error = %v", err)
	}
	if len(chunks) != 1 || chunks[0].Name != "f" {
		t.Errorf("got %d chunks, want f only", len(chunks))
	}
}

func TestParseSourceScenarioD(t *testing.T) {
	src := `import os


def build(path, name):
    helper()
    return os.path.join(path, name)
`
	chunks := mustParse(t, src)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	deps := chunks[0].Dependencies
	for _, want := range []string{"os.path.join", "helper"} {
		if !chunks[0].HasDependency(want) {
			t.Errorf("dependencies %v missing %q", deps, want)
		}
	}
	for _, unwanted := range []string{"path", "name", "build"} {
		if chunks[0].HasDependency(unwanted) {
			t.Errorf("dependencies %v contain %q", deps, unwanted)
		}
	}
}

func TestParseSourceStructure(t *testing.T) {
	chunks := mustParse(t, serviceSource)

	want := []chunkSummary{
		{"helper", types.ChunkTypeFunction, "", 5, 6},
		{"Config", types.ChunkTypeClass, "", 9, 15},
		{"upper", types.ChunkTypeMethod, "Config", 13, 15},
		{"Service", types.ChunkTypeClass, "", 18, 43},
		{"__init__", types.ChunkTypeMethod, "Service", 23, 25},
		{"build_path", types.ChunkTypeMethod, "Service", 27, 30},
		{"fetch", types.ChunkTypeMethod, "Service", 32, 35},
		{"Options", types.ChunkTypeClass, "Service", 37, 41},
		{"describe", types.ChunkTypeMethod, "Options", 40, 41},
		{"outer", types.ChunkTypeFunction, "", 44, 51},
	}
	if diff := cmp.Diff(want, summarize(chunks)); diff != "" {
		t.Fatalf("chunks mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSourceDecorators(t *testing.T) {
	chunks := mustParse(t, serviceSource)

	buildPath := findChunk(t, chunks, "build_path")
	if !strings.HasPrefix(buildPath.Content, "    @staticmethod\n    @functools.lru_cache(maxsize=None)\n    def build_path") {
		t.Errorf("build_path content does not start with its decorators:\n%s", buildPath.Content)
	}

	config := findChunk(t, chunks, "Config")
	if !strings.HasPrefix(config.Content, "@dataclass\nclass Config:") {
		t.Errorf("Config content does not start with its decorator:\n%s", config.Content)
	}
	if !buildPath.HasDependency("functools.lru_cache") {
		t.Errorf("build_path dependencies %v missing decorator call", buildPath.Dependencies)
	}
}

func TestParseSourceAsync(t *testing.T) {
	src := `import asyncio


async def main():
    await asyncio.sleep(1)


class Worker:
    async def run(self):
        await self.step()
`
	chunks := mustParse(t, src)
	want := []chunkSummary{
		{"main", types.ChunkTypeFunction, "", 4, 5},
		{"Worker", types.ChunkTypeClass, "", 8, 10},
		{"run", types.ChunkTypeMethod, "Worker", 9, 10},
	}
	if diff := cmp.Diff(want, summarize(chunks)); diff != "" {
		t.Fatalf("chunks mismatch (-want +got):\n%s", diff)
	}
	if !chunks[0].HasDependency("asyncio.sleep") {
		t.Errorf("main dependencies = %v, want asyncio.sleep", chunks[0].Dependencies)
	}
	if !chunks[2].HasDependency("step") {
		t.Errorf("run dependencies = %v, want step", chunks[2].Dependencies)
	}
}

func TestParseSourceNestedHelpersStayInside(t *testing.T) {
	chunks := mustParse(t, serviceSource)

	for _, c := range chunks {
		if c.Name == "inner" || c.Name == "Local" {
			t.Errorf("nested definition %q emitted as its own chunk", c.Name)
		}
	}
	outer := findChunk(t, chunks, "outer")
	if !strings.Contains(outer.Content, "def inner(x):") || !strings.Contains(outer.Content, "class Local:") {
		t.Errorf("outer content lost its nested definitions:\n%s", outer.Content)
	}
	if outer.HasDependency("inner") {
		t.Errorf("outer dependencies %v contain its own nested helper", outer.Dependencies)
	}
}

func TestParseSourceControlFlowDefinitions(t *testing.T) {
	src := `try:
    import ujson as json
except ImportError:
    import json

if json:
    def dumps(obj):
        return json.dumps(obj)
else:
    def dumps(obj):
        return repr(obj)
`
	chunks := mustParse(t, src)
	want := []chunkSummary{
		{"dumps", types.ChunkTypeFunction, "", 7, 8},
		{"dumps", types.ChunkTypeFunction, "", 10, 11},
	}
	if diff := cmp.Diff(want, summarize(chunks)); diff != "" {
		t.Fatalf("chunks mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSourceRoundTrip(t *testing.T) {
	for _, src := range []string{serviceSource, "class A:\n    pass\n\n\n\ndef f():\n    return 1   \n\n"} {
		chunks := mustParse(t, src)
		for _, c := range chunks {
			start, end := c.LineRange()
			if got := SliceLines(src, start, end); got != c.Content {
				t.Errorf("%s: SliceLines(%d, %d) = %q, want %q", c.Name, start, end, got, c.Content)
			}
			if strings.TrimRight(c.Content, " \t\r\n") != c.Content {
				t.Errorf("%s: content has trailing whitespace", c.Name)
			}
		}
	}
}

func TestParseSourceStandalone(t *testing.T) {
	chunks := mustParse(t, serviceSource)
	for _, c := range chunks {
		if err := CheckStandalone(context.Background(), c.Content); err != nil {
			t.Errorf("%s does not parse on its own: %v\n%s", c.Name, err, Dedent(c.Content))
		}
	}
}

func TestParseSourceOrderAndOverlap(t *testing.T) {
	chunks := mustParse(t, serviceSource)

	// Chunks sharing a parent are siblings and must not overlap.
	lastEnd := map[string]int{}
	prevStart := 0
	for _, c := range chunks {
		if c.StartLine < prevStart {
			t.Errorf("%s starts at %d, before previous chunk at %d", c.Name, c.StartLine, prevStart)
		}
		prevStart = c.StartLine
		if c.StartLine > c.EndLine {
			t.Errorf("%s: start %d > end %d", c.Name, c.StartLine, c.EndLine)
		}
		if end, ok := lastEnd[c.ParentName]; ok && c.StartLine <= end {
			t.Errorf("%s overlaps a sibling ending at line %d", c.Name, end)
		}
		lastEnd[c.ParentName] = c.EndLine
	}
}

func TestParseSourceIDs(t *testing.T) {
	chunks := mustParse(t, serviceSource)
	seen := map[string]string{}
	for _, c := range chunks {
		if c.ID == "" || c.Hash == "" {
			t.Errorf("%s: empty ID or hash", c.Name)
		}
		if other, dup := seen[c.ID]; dup {
			t.Errorf("%s and %s share ID %s", c.Name, other, c.ID)
		}
		seen[c.ID] = c.Name
	}
}

func TestParseSourceEncodings(t *testing.T) {
	t.Run("bom and crlf", func(t *testing.T) {
		src := "\ufeffdef f():\r\n    return 1\r\n"
		chunks := mustParse(t, src)
		want := []chunkSummary{{"f", types.ChunkTypeFunction, "", 1, 2}}
		if diff := cmp.Diff(want, summarize(chunks)); diff != "" {
			t.Fatalf("chunks mismatch (-want +got):\n%s", diff)
		}
		if strings.HasPrefix(chunks[0].Content, "\ufeff") {
			t.Error("content kept the byte order mark")
		}
	})

	t.Run("coding declaration", func(t *testing.T) {
		src := []byte("# -*- coding: latin-1 -*-\ndef greet():\n    return \"caf\xe9\"\n")
		chunks, err := ParseSource(src, "latin.py")
		if err != nil {
			t.Fatalf("ParseSource() error = %v", err)
		}
		if len(chunks) != 1 {
			t.Fatalf("got %d chunks, want 1", len(chunks))
		}
		if !strings.Contains(chunks[0].Content, "café") {
			t.Errorf("content not decoded to UTF-8: %q", chunks[0].Content)
		}
	})

	t.Run("invalid utf-8", func(t *testing.T) {
		src := []byte("def f():\n    return \"\xff\"\n")
		_, err := ParseSource(src, "broken.py")
		var se *SyntaxError
		if !errors.As(err, &se) {
			t.Fatalf("error = %v, want *SyntaxError", err)
		}
		if se.Line != 2 {
			t.Errorf("Line = %d, want 2", se.Line)
		}
	})

	t.Run("unknown encoding", func(t *testing.T) {
		src := []byte("# coding: no-such-codec\nx = 1\n")
		if _, err := ParseSource(src, "odd.py"); !IsSyntaxError(err) {
			t.Errorf("error = %v, want syntax error", err)
		}
	})
}

func TestParseSourceConcurrent(t *testing.T) {
	want := summarize(mustParse(t, serviceSource))

	var wg sync.WaitGroup
	errs := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			chunks, err := ParseSource([]byte(serviceSource), "example.py")
			if err != nil {
				errs <- err.Error()
				return
			}
			if diff := cmp.Diff(want, summarize(chunks)); diff != "" {
				errs <- diff
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

func TestChunkerStrategy(t *testing.T) {
	c := New(Config{ParseTimeout: 5 * time.Second})
	defer c.Close()

	if c.Name() != "treesitter" {
		t.Errorf("Name() = %q", c.Name())
	}
	if !c.SupportsLanguage("python") || c.SupportsLanguage("go") {
		t.Error("SupportsLanguage() wrong for python/go")
	}

	file := &types.SourceFile{Path: "svc.py", Content: []byte(serviceSource), Language: types.LanguagePython}
	chunks, err := c.Chunk(file)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(chunks) != 10 {
		t.Errorf("Chunk() returned %d chunks, want 10", len(chunks))
	}

	col, err := c.ChunkContext(context.Background(), file)
	if err != nil {
		t.Fatalf("ChunkContext() error = %v", err)
	}
	if col.FilePath != "svc.py" || col.Len() != 10 || len(col.Skipped) != 0 {
		t.Errorf("ChunkContext() = %s with %d chunks and %d skipped", col.FilePath, col.Len(), len(col.Skipped))
	}
}

func TestChunkerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	big := strings.Repeat(serviceSource, 200)
	_, err := ParseSourceContext(ctx, []byte(big), "big.py")
	if err == nil {
		// Tiny inputs may finish before the cancellation flag is checked.
		t.Skip("parse finished before observing cancellation")
	}
	if !errors.Is(err, types.ErrCancelled) {
		t.Errorf("error = %v, want ErrCancelled", err)
	}
}
