package chunk

import (
	"regexp"
	"strings"
)

// nodePattern pairs a regex that recognizes the start of a top-level
// declaration with the node_type label to attach to its chunk.
type nodePattern struct {
	re       *regexp.Regexp
	nodeType string
}

// rustNodePatterns and tsNodePatterns are heuristic substitutes for a
// real parser: no tree-sitter or other multi-language AST binding is
// available anywhere in the retrieved example pack, so top-level
// declarations are recognized by brace-matching from a keyword regex
// rather than a grammar.
var rustNodePatterns = []nodePattern{
	{regexp.MustCompile(`^\s*(pub(\([^)]*\))?\s+)?(async\s+)?fn\s+(\w+)`), "function"},
	{regexp.MustCompile(`^\s*(pub\s+)?impl\b`), "impl"},
	{regexp.MustCompile(`^\s*(pub\s+)?struct\s+(\w+)`), "struct"},
	{regexp.MustCompile(`^\s*(pub\s+)?enum\s+(\w+)`), "enum"},
	{regexp.MustCompile(`^\s*(pub\s+)?trait\s+(\w+)`), "trait"},
	{regexp.MustCompile(`^\s*(pub\s+)?mod\s+(\w+)`), "module"},
}

var tsNodePatterns = []nodePattern{
	{regexp.MustCompile(`^\s*(export\s+)?(default\s+)?(async\s+)?function\s*\*?\s+(\w+)`), "function"},
	{regexp.MustCompile(`^\s*(export\s+)?(default\s+)?class\s+(\w+)`), "class"},
	{regexp.MustCompile(`^\s*(export\s+)?interface\s+(\w+)`), "interface"},
	{regexp.MustCompile(`^\s*(public|private|protected|static|async)*\s*\w+\s*\([^)]*\)\s*\{`), "method"},
}

var identRe = regexp.MustCompile(`[A-Za-z_$][A-Za-z0-9_$]*`)

// chunkBraceAST scans line by line for declaration-start patterns, then
// captures each declaration's body by counting braces until they balance.
func chunkBraceAST(content string, patterns []nodePattern) []Chunk {
	spans := spansOf(content)
	if len(spans) == 0 {
		return nil
	}

	var chunks []Chunk
	i := 0
	for i < len(spans) {
		matched := false
		for _, p := range patterns {
			loc := p.re.FindStringIndex(spans[i].text)
			if loc == nil {
				continue
			}
			name := lastIdentAfter(spans[i].text, loc[0])
			end := findMatchingBraceEnd(spans, i)
			chunks = append(chunks, tagged(buildChunk(spans, i, end), p.nodeType, name))
			i = end + 1
			matched = true
			break
		}
		if !matched {
			i++
		}
	}

	if len(chunks) == 0 {
		return chunkLines(content, 50, 10)
	}
	return chunks
}

// chunkPythonAST uses indentation instead of braces to find the extent of
// top-level def/class blocks.
func chunkPythonAST(content string) []Chunk {
	spans := spansOf(content)
	if len(spans) == 0 {
		return nil
	}
	defRe := regexp.MustCompile(`^(\s*)(async\s+)?def\s+(\w+)`)
	classRe := regexp.MustCompile(`^(\s*)class\s+(\w+)`)

	var chunks []Chunk
	i := 0
	for i < len(spans) {
		line := spans[i].text
		var indent int
		var nodeType, name string
		if m := defRe.FindStringSubmatch(line); m != nil {
			indent = len(m[1])
			nodeType, name = "function", m[3]
		} else if m := classRe.FindStringSubmatch(line); m != nil {
			indent = len(m[1])
			nodeType, name = "class", m[2]
		} else {
			i++
			continue
		}

		end := i
		for j := i + 1; j < len(spans); j++ {
			trimmed := strings.TrimRight(spans[j].text, " \t")
			if trimmed == "" {
				end = j
				continue
			}
			lineIndent := len(spans[j].text) - len(strings.TrimLeft(spans[j].text, " \t"))
			if lineIndent <= indent {
				break
			}
			end = j
		}
		chunks = append(chunks, tagged(buildChunk(spans, i, end), nodeType, name))
		i = end + 1
	}

	if len(chunks) == 0 {
		return chunkLines(content, 50, 10)
	}
	return chunks
}

func lastIdentAfter(line string, from int) string {
	if from >= len(line) {
		return ""
	}
	matches := identRe.FindAllString(line[from:], -1)
	for _, m := range matches {
		switch m {
		case "pub", "async", "static", "public", "private", "protected", "default", "export", "function", "fn", "class", "interface", "impl", "struct", "enum", "trait", "mod":
			continue
		}
		return m
	}
	return ""
}

func findMatchingBraceEnd(spans []lineSpan, start int) int {
	depth := 0
	seenOpen := false
	for i := start; i < len(spans); i++ {
		for _, r := range spans[i].text {
			switch r {
			case '{':
				depth++
				seenOpen = true
			case '}':
				depth--
			}
		}
		if seenOpen && depth <= 0 {
			return i
		}
	}
	return len(spans) - 1
}

func tagged(c Chunk, nodeType, name string) Chunk {
	c.NodeType = nodeType
	c.NodeName = name
	return c
}
