package treesitter

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/spetr/pyast-rag/pkg/types"
)

// buildChunk turns a definition into a chunk. Content is the exact text of
// the definition's lines, so SliceLines over the chunk's range reproduces it.
func buildChunk(def definition, src []byte, filePath string) *types.Chunk {
	content := SliceLines(string(src), def.startLine, def.endLine)
	hash := sha256.Sum256([]byte(content))

	chunk := &types.Chunk{
		FilePath:     filePath,
		Language:     types.LanguagePython,
		Content:      content,
		ChunkType:    def.chunkType,
		Name:         def.name,
		ParentName:   def.parentName,
		StartLine:    def.startLine,
		EndLine:      def.endLine,
		Dependencies: extractDependencies(def, src),
		Hash:         hex.EncodeToString(hash[:]),
	}
	chunk.ID = chunk.GenerateID()
	return chunk
}

// SliceLines returns lines start through end (1-based, inclusive) of text
// with trailing whitespace removed. Out of range bounds are clamped.
func SliceLines(text string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end < start {
		return ""
	}

	line := 1
	from := -1
	if start == 1 {
		from = 0
	}
	to := len(text)
	for i := 0; i < len(text); i++ {
		if text[i] != '\n' {
			continue
		}
		if line == end {
			to = i
			break
		}
		line++
		if line == start {
			from = i + 1
		}
	}
	if from < 0 {
		return ""
	}
	return strings.TrimRight(text[from:to], " \t\r\n\f\v")
}

// Dedent removes the first line's indentation from every line that starts
// with it, so a method's content can be parsed on its own.
func Dedent(content string) string {
	indent := content[:len(content)-len(strings.TrimLeft(content, " \t"))]
	if indent == "" {
		return content
	}
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimPrefix(l, indent)
	}
	return strings.Join(lines, "\n")
}
