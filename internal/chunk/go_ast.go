package chunk

import (
	"go/ast"
	"go/parser"
	"go/token"
)

// chunkGoAST extracts function, method, and type declarations from a Go
// source file using the standard library parser, the same fset/ast walk
// shape used elsewhere in the ecosystem for declaration scanning.
func chunkGoAST(content string) []Chunk {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", content, parser.ParseComments)
	if err != nil {
		return chunkLines(content, 50, 10)
	}

	spans := spansOf(content)
	var chunks []Chunk

	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			nodeType := "function"
			name := d.Name.Name
			if d.Recv != nil && len(d.Recv.List) > 0 {
				nodeType = "method"
				if recvName := receiverTypeName(d.Recv.List[0].Type); recvName != "" {
					name = recvName + "." + name
				}
			}
			chunks = append(chunks, spanChunk(fset, spans, d.Pos(), d.End(), nodeType, name))
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				chunks = append(chunks, spanChunk(fset, spans, d.Pos(), d.End(), "type", ts.Name.Name))
			}
		}
	}

	if len(chunks) == 0 {
		return chunkLines(content, 50, 10)
	}
	return chunks
}

func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		if ident, ok := t.X.(*ast.Ident); ok {
			return ident.Name
		}
	case *ast.Ident:
		return t.Name
	}
	return ""
}

func spanChunk(fset *token.FileSet, spans []lineSpan, pos, end token.Pos, nodeType, nodeName string) Chunk {
	startLine := fset.Position(pos).Line
	endLine := fset.Position(end).Line
	c := buildChunk(spans, startLine-1, endLine-1)
	c.NodeType = nodeType
	c.NodeName = nodeName
	return c
}
