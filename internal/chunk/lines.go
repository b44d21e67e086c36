package chunk

import "strings"

// lineSpan is an internal helper recording byte offsets alongside 1-based
// line numbers for a slice of the original content.
type lineSpan struct {
	text      string
	startByte int
	endByte   int
}

// splitLinesKeepEnds splits s into lines, keeping each line's trailing
// "\n" (the last line has one only if s ends with a newline), so
// sub-chunks can be rejoined exactly.
func splitLinesKeepEnds(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.SplitAfter(s, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

func joinLines(lines []string) string {
	return strings.TrimRight(strings.Join(lines, ""), "\n")
}

// spansOf breaks content into 1-based-line-numbered spans with byte
// offsets, one per source line (newline-inclusive removed from Content).
func spansOf(content string) []lineSpan {
	lines := splitLinesKeepEnds(content)
	spans := make([]lineSpan, len(lines))
	offset := 0
	for i, l := range lines {
		spans[i] = lineSpan{
			text:      strings.TrimRight(l, "\n"),
			startByte: offset,
			endByte:   offset + len(l),
		}
		offset += len(l)
	}
	return spans
}

func chunkLines(content string, size, overlap int) []Chunk {
	if size <= 0 {
		size = 50
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	spans := spansOf(content)
	if len(spans) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < len(spans) {
		end := start + size
		if end > len(spans) {
			end = len(spans)
		}
		chunks = append(chunks, buildChunk(spans, start, end-1))
		if end >= len(spans) {
			break
		}
		start = end - overlap
		if start <= 0 {
			start = end
		}
	}
	return chunks
}

func chunkParagraphs(content string, minLines int) []Chunk {
	spans := spansOf(content)
	if len(spans) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for i := 0; i < len(spans); i++ {
		blank := strings.TrimSpace(spans[i].text) == ""
		if blank || i == len(spans)-1 {
			end := i - 1
			if i == len(spans)-1 && !blank {
				end = i
			}
			if end >= start {
				chunks = append(chunks, buildChunk(spans, start, end))
			}
			start = i + 1
		}
	}

	return mergeSmallParagraphs(chunks, minLines)
}

// mergeSmallParagraphs folds consecutive paragraph chunks forward until
// each merged group has at least minLines lines (spec §4.3).
func mergeSmallParagraphs(chunks []Chunk, minLines int) []Chunk {
	if minLines <= 1 || len(chunks) == 0 {
		return chunks
	}
	var out []Chunk
	var pending *Chunk
	for i := range chunks {
		c := chunks[i]
		if pending == nil {
			pending = &c
			continue
		}
		if pending.EndLine-pending.StartLine+1 < minLines {
			pending.Content = pending.Content + "\n\n" + c.Content
			pending.EndLine = c.EndLine
			pending.EndByte = c.EndByte
			continue
		}
		out = append(out, *pending)
		pending = &c
	}
	if pending != nil {
		out = append(out, *pending)
	}
	return out
}

func chunkMarkdownHeadings(content string) []Chunk {
	spans := spansOf(content)
	if len(spans) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	inFence := false
	for i, sp := range spans {
		trimmed := strings.TrimSpace(sp.text)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			if i > start {
				chunks = append(chunks, buildChunk(spans, start, i-1))
			}
			start = i
		}
	}
	if start < len(spans) {
		chunks = append(chunks, buildChunk(spans, start, len(spans)-1))
	}

	for i := range chunks {
		heading := strings.TrimSpace(strings.TrimLeft(firstLine(chunks[i].Content), "#"))
		chunks[i].NodeType = "heading"
		chunks[i].NodeName = strings.TrimSpace(heading)
	}
	return chunks
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func buildChunk(spans []lineSpan, startIdx, endIdx int) Chunk {
	if endIdx < startIdx {
		endIdx = startIdx
	}
	var sb strings.Builder
	for i := startIdx; i <= endIdx && i < len(spans); i++ {
		sb.WriteString(spans[i].text)
		if i != endIdx {
			sb.WriteString("\n")
		}
	}
	return Chunk{
		Content:   sb.String(),
		StartLine: startIdx + 1,
		EndLine:   endIdx + 1,
		StartByte: spans[startIdx].startByte,
		EndByte:   spans[min(endIdx, len(spans)-1)].endByte,
	}
}
