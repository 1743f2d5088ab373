package recipe

import (
	"context"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/ast"
)

// templateMarker is the opening delimiter of a Jinja-like template
// expression, e.g. "${{ python }}".
const templateMarker = "${{"

func hasTemplate(s string) bool {
	return strings.Contains(s, templateMarker)
}

// Value is a Stage 0 field that is either a concrete T or an unevaluated
// template string, always carrying a source span for diagnostics. This is
// the generic counterpart of Azure-dalec's sourceMappedValue[T]
// (sourcemap.go), generalized to also track whether the value is still a
// template (dalec never needed this distinction: its shell-style
// substitution is always-on and never deferred past decode time).
type Value[T any] struct {
	IsTemplate bool
	Template   string
	Concrete   T
	Span       *Span
}

// Static constructs an already-concrete Value, useful when building a Stage 1
// tree programmatically (e.g. in tests, or after evaluation).
func Static[T any](v T) Value[T] {
	return Value[T]{Concrete: v}
}

func (v Value[T]) String() string {
	if v.IsTemplate {
		return v.Template
	}
	return anyToString(v.Concrete)
}

func anyToString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// UnmarshalYAML implements goccy/go-yaml's NodeUnmarshaler, following the
// same ctx+ast.Node shape as Azure-dalec/sourcemap.go's
// sourceMappedValue.UnmarshalYAML.
func (v *Value[T]) UnmarshalYAML(ctx context.Context, node ast.Node) error {
	v.Span = spanFromNode(docFilename(ctx), node)

	if s, ok := scalarString(node); ok && hasTemplate(s) {
		v.IsTemplate = true
		v.Template = s
		return nil
	}

	var concrete T
	if node.Type() != ast.NullType {
		if err := yaml.NodeToValue(node, &concrete, decodeOptsFrom(ctx)...); err != nil {
			return invalidValue(v.Span, "", err)
		}
	}
	v.Concrete = concrete
	return nil
}

// scalarString returns the raw string content of a scalar YAML node (string,
// or otherwise quoted/plain scalar), and whether the node was in fact scalar.
func scalarString(node ast.Node) (string, bool) {
	switch n := node.(type) {
	case *ast.StringNode:
		return n.Value, true
	case *ast.LiteralNode:
		return n.String(), true
	}
	return "", false
}

type docFilenameKey struct{}
type decodeOptsKey struct{}

func ContextWithFilename(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, docFilenameKey{}, name)
}

func docFilename(ctx context.Context) string {
	if v, ok := ctx.Value(docFilenameKey{}).(string); ok {
		return v
	}
	return ""
}

func contextWithDecodeOpts(ctx context.Context, opts []yaml.DecodeOption) context.Context {
	if len(opts) == 0 {
		return ctx
	}
	return context.WithValue(ctx, decodeOptsKey{}, opts)
}

func decodeOptsFrom(ctx context.Context) []yaml.DecodeOption {
	if v, ok := ctx.Value(decodeOptsKey{}).([]yaml.DecodeOption); ok {
		return v
	}
	return nil
}
