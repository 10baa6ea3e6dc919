package types

// ChunkRecord is the flat form of a chunk handed to stores and tools.
// All fields are primitives or lists of primitives.
type ChunkRecord struct {
	ID           string   `json:"id"`
	Content      string   `json:"content"`
	FilePath     string   `json:"file_path"`
	NodeType     string   `json:"node_type"`
	Name         string   `json:"name"`
	ParentName   string   `json:"parent_name,omitempty"`
	StartLine    int      `json:"start_line"`
	EndLine      int      `json:"end_line"`
	Dependencies []string `json:"dependencies"`
}

// Record flattens the chunk into a ChunkRecord.
func (c *Chunk) Record() ChunkRecord {
	deps := c.Dependencies
	if deps == nil {
		deps = []string{}
	}
	return ChunkRecord{
		ID:           c.ID,
		Content:      c.Content,
		FilePath:     c.FilePath,
		NodeType:     string(c.ChunkType),
		Name:         c.Name,
		ParentName:   c.ParentName,
		StartLine:    c.StartLine,
		EndLine:      c.EndLine,
		Dependencies: deps,
	}
}

// ChunkFromRecord rebuilds a chunk from its flat form.
func ChunkFromRecord(r ChunkRecord) *Chunk {
	c := &Chunk{
		ID:           r.ID,
		FilePath:     r.FilePath,
		Language:     LanguagePython,
		Content:      r.Content,
		ChunkType:    ChunkType(r.NodeType),
		Name:         r.Name,
		ParentName:   r.ParentName,
		StartLine:    r.StartLine,
		EndLine:      r.EndLine,
		Dependencies: append([]string(nil), r.Dependencies...),
	}
	if c.ID == "" {
		c.ID = c.GenerateID()
	}
	return c
}
