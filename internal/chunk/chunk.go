// Package chunk splits file content into semantic spans for search
// indexing (spec §4.3). Chunks are search auxiliaries, never independent
// memories.
package chunk

// Chunk is one sub-span of a file's content.
type Chunk struct {
	Content   string
	StartLine int // 1-based, inclusive
	EndLine   int // 1-based, inclusive
	StartByte int // 0-based
	EndByte   int // 0-based, exclusive
	NodeType  string
	NodeName  string
}

// Config carries the line/paragraph fallback tunables (spec §4.3).
type Config struct {
	LineChunkSize int
	LineOverlap   int
	MinChunkLines int
	MaxChunkLines int
}

// DefaultConfig matches spec §4.3's stated defaults.
func DefaultConfig() Config {
	return Config{
		LineChunkSize: 50,
		LineOverlap:   10,
		MinChunkLines: 5,
		MaxChunkLines: 200,
	}
}

// Chunk splits content according to the strategy selected for language.
func (c Config) Chunk(content, language string) []Chunk {
	var chunks []Chunk
	switch language {
	case "go":
		chunks = chunkGoAST(content)
	case "rust":
		chunks = chunkBraceAST(content, rustNodePatterns)
	case "typescript", "javascript":
		chunks = chunkBraceAST(content, tsNodePatterns)
	case "python":
		chunks = chunkPythonAST(content)
	case "markdown":
		chunks = chunkMarkdownHeadings(content)
	case "":
		chunks = chunkParagraphs(content, c.MinChunkLines)
	default:
		chunks = chunkLines(content, c.LineChunkSize, c.LineOverlap)
	}

	chunks = enforceMaxLines(chunks, content, c.MaxChunkLines)

	out := chunks[:0]
	for _, ch := range chunks {
		if len(ch.Content) == 0 {
			continue
		}
		out = append(out, ch)
	}
	return out
}

// enforceMaxLines splits any chunk longer than maxLines into consecutive
// sub-chunks of at most maxLines lines each, preserving node metadata on
// the first sub-chunk only.
func enforceMaxLines(chunks []Chunk, content string, maxLines int) []Chunk {
	if maxLines <= 0 {
		return chunks
	}
	var out []Chunk
	for _, ch := range chunks {
		lineCount := ch.EndLine - ch.StartLine + 1
		if lineCount <= maxLines {
			out = append(out, ch)
			continue
		}
		// Split on ch.Content's own bytes (not joinLines, which trims a
		// trailing newline unconditionally and would leave a gap between
		// consecutive sub-chunks' byte ranges).
		lines := splitLinesKeepEnds(ch.Content)
		start := 0
		lineNo := ch.StartLine
		byteOffset := 0
		for start < len(lines) {
			end := start + maxLines
			if end > len(lines) {
				end = len(lines)
			}
			rawLen := 0
			for _, l := range lines[start:end] {
				rawLen += len(l)
			}
			sub := ch.Content[byteOffset : byteOffset+rawLen]
			nodeType, nodeName := "", ""
			if start == 0 {
				nodeType, nodeName = ch.NodeType, ch.NodeName
			}
			out = append(out, Chunk{
				Content:   sub,
				StartLine: lineNo,
				EndLine:   lineNo + (end - start) - 1,
				StartByte: ch.StartByte + byteOffset,
				EndByte:   ch.StartByte + byteOffset + rawLen,
				NodeType:  nodeType,
				NodeName:  nodeName,
			})
			lineNo += end - start
			byteOffset += rawLen
			start = end
		}
	}
	return out
}
