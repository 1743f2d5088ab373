package recipe

import (
	"fmt"

	"github.com/goccy/go-yaml/ast"
)

// Span records where in a recipe source file a value or error originated.
// It mirrors the line/column pairs goccy/go-yaml attaches to every AST node,
// but is otherwise detached from any particular downstream consumer (we are
// not a BuildKit frontend, so unlike Azure-dalec's sourceMap this carries no
// llb.ConstraintsOpt machinery).
type Span struct {
	File      string
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

func (s *Span) String() string {
	if s == nil {
		return "<unknown>"
	}
	if s.File == "" {
		return fmt.Sprintf("%d:%d", s.StartLine, s.StartCol)
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.StartLine, s.StartCol)
}

// spanFromNode derives a Span from a YAML AST node's token position, walking
// the node to find its end position the way Azure-dalec's nodeToRange does
// (minus the protobuf Range it built for BuildKit's source-map protocol).
func spanFromNode(file string, node ast.Node) *Span {
	if node == nil {
		return nil
	}
	tok := node.GetToken()
	if tok == nil || tok.Position == nil {
		return &Span{File: file}
	}

	start := tok.Position
	end := &endPosVisitor{endLine: start.Line, endChar: start.Column}
	ast.Walk(end, node)

	return &Span{
		File:      file,
		StartLine: start.Line,
		StartCol:  start.Column,
		EndLine:   end.endLine,
		EndCol:    end.endChar,
	}
}

type endPosVisitor struct {
	endLine int
	endChar int
}

func (v *endPosVisitor) Visit(n ast.Node) ast.Visitor {
	if n == nil {
		return nil
	}
	if n.Type() == ast.CommentType {
		return v
	}

	tok := n.GetToken()
	if tok != nil && tok.Position != nil {
		pos := tok.Position
		line := pos.Line
		col := pos.Column + len(tok.Value)
		if line > v.endLine || (line == v.endLine && col > v.endChar) {
			v.endLine = line
			v.endChar = col
		}
	}
	return v
}
