package recipe

import (
	"context"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/ast"
)

// CondBranch is the "then" or "else" arm of a conditional list element. It
// may be a single item or a list of items (spec.md §3: "{if, then: list|item,
// else: list|item}").
type CondBranch[T any] struct {
	IsList bool
	Item   T
	List   []T
	Absent bool
}

func (b *CondBranch[T]) UnmarshalYAML(ctx context.Context, node ast.Node) error {
	if node == nil || node.Type() == ast.NullType {
		b.Absent = true
		return nil
	}
	if node.Type() == ast.SequenceType {
		b.IsList = true
		return yaml.NodeToValue(node, &b.List, decodeOptsFrom(ctx)...)
	}
	return yaml.NodeToValue(node, &b.Item, decodeOptsFrom(ctx)...)
}

func (b CondBranch[T]) items() []T {
	if b.Absent {
		return nil
	}
	if b.IsList {
		return b.List
	}
	return []T{b.Item}
}

// CondElement is one element of a ConditionalList: either a plain item, or a
// {if, then, else} record (spec.md §3 ConditionalList<T>). This generalizes
// the discriminated-decode idiom Azure-dalec uses for its output/cache
// top-level key (a mapping distinguished by which of a closed set of keys is
// present), applied here at the list-element level instead of document
// level.
type CondElement[T any] struct {
	IsConditional bool
	Plain         T
	If            string
	Then          CondBranch[T]
	Else          CondBranch[T]
	Span          *Span
}

func (e *CondElement[T]) UnmarshalYAML(ctx context.Context, node ast.Node) error {
	e.Span = spanFromNode(docFilename(ctx), node)

	if ifExpr, ok, err := probeConditional(ctx, node); ok {
		e.IsConditional = true
		e.If = ifExpr
		var body struct {
			Then CondBranch[T] `yaml:"then"`
			Else CondBranch[T] `yaml:"else"`
		}
		if err := yaml.NodeToValue(node, &body, decodeOptsFrom(ctx)...); err != nil {
			return invalidValue(e.Span, "then/else", err)
		}
		e.Then = body.Then
		e.Else = body.Else
		if _, values, err := mappingEntries(ctx, node); err == nil {
			if _, ok := values["else"]; !ok {
				e.Else.Absent = true
			}
		}
		return nil
	} else if err != nil {
		return err
	}

	return yaml.NodeToValue(node, &e.Plain, decodeOptsFrom(ctx)...)
}

// probeConditional reports whether a sequence-element mapping is a
// conditional record (has an "if" key), per spec.md §4.1: "{if: cond, then:
// X, else: Y} record in sequence positions as a conditional node, not a
// mapping value."
func probeConditional(ctx context.Context, node ast.Node) (string, bool, error) {
	switch node.Type() {
	case ast.MappingType, ast.MappingValueType:
	default:
		return "", false, nil
	}

	var probe struct {
		If *string `yaml:"if"`
	}
	if err := yaml.NodeToValue(node, &probe, decodeOptsFrom(ctx)...); err != nil {
		// Not shaped like {if: ...}; treat as a plain item and let the
		// caller's own decode surface any real error.
		return "", false, nil
	}
	if probe.If == nil {
		return "", false, nil
	}
	return *probe.If, true, nil
}

// ConditionalList is an ordered sequence whose elements are either plain
// items or conditional records (spec.md §3). Flattening is ordered.
type ConditionalList[T any] []CondElement[T]

func (cl *ConditionalList[T]) UnmarshalYAML(ctx context.Context, node ast.Node) error {
	if node == nil || node.Type() == ast.NullType {
		*cl = nil
		return nil
	}
	if node.Type() != ast.SequenceType {
		return &ParseError{Kind: KindExpectedSequence, Span: spanFromNode(docFilename(ctx), node)}
	}

	seq, ok := node.(*ast.SequenceNode)
	if !ok {
		return &ParseError{Kind: KindExpectedSequence, Span: spanFromNode(docFilename(ctx), node)}
	}

	out := make(ConditionalList[T], 0, len(seq.Values))
	for _, v := range seq.Values {
		var el CondElement[T]
		if err := el.UnmarshalYAML(ctx, v); err != nil {
			return err
		}
		out = append(out, el)
	}
	*cl = out
	return nil
}

// Flatten expands the conditional list under the given truthy predicate,
// preserving the order of surviving items (spec.md §8 property 9: "for any
// list L and predicate p with {if: p, then: T}: if p is true, the resulting
// list equals L with T spliced in-place; if false, equals L with that
// element removed").
func (cl ConditionalList[T]) Flatten(truthy func(expr string) (bool, error)) ([]T, error) {
	var out []T
	for _, el := range cl {
		if !el.IsConditional {
			out = append(out, el.Plain)
			continue
		}

		ok, err := truthy(el.If)
		if err != nil {
			return nil, TemplateError(el.Span, err)
		}

		branch := el.Else
		if ok {
			branch = el.Then
		}
		out = append(out, branch.items()...)
	}
	return out, nil
}

// Items returns every plain and conditional item without evaluating any
// condition, used by the variant expander to discover free identifiers and
// free-spec dependency names that appear inside `then`/`else` branches too
// (spec.md §4.3 step 1).
func (cl ConditionalList[T]) Items() []T {
	var out []T
	for _, el := range cl {
		if !el.IsConditional {
			out = append(out, el.Plain)
			continue
		}
		out = append(out, el.Then.items()...)
		out = append(out, el.Else.items()...)
	}
	return out
}

// Conditions returns every `if` expression string in the list, used for
// free-identifier scanning.
func (cl ConditionalList[T]) Conditions() []string {
	var out []string
	for _, el := range cl {
		if el.IsConditional {
			out = append(out, el.If)
		}
	}
	return out
}
