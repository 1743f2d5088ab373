// Package planner implements the Output Planner (spec.md §4.4): for a
// multi-output recipe rendered under one variant combination, it
// topologically orders the outputs by their pin_subpackage/free-spec
// references, then streams hash and build-string computation over that
// order so an exact pin can see its referent's already-resolved
// build-string.
//
// The graph and its Tarjan strongly-connected-components sort are ported
// from Azure-dalec/graph.go nearly directly: same algorithm, same
// k8s.io/apimachinery/pkg/util/sets edge representation, generalized from
// dalec's package-dependency graph to recipe-output pin references.
// Azure-dalec imports github.com/pmengelbert/stack for the Tarjan stack, but
// that module is not declared anywhere in its own go.mod, so the stack here
// is a plain slice instead of fabricating an undeclared dependency.
package planner

import (
	"sort"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/prefix-dev/rattler-build-go/recipe"
	"github.com/prefix-dev/rattler-build-go/stage1"
)

type vertex struct {
	index   int // position of this output in the Graph's outputs slice
	name    string
	idx     *int
	lowlink int
	onStack bool
}

type edgeKind int

const (
	// edgeExact marks a pin_subpackage(exact=true) reference: the
	// referenced output's build-string must be resolved first, and a cycle
	// through an edgeExact edge is fatal (CyclicPinError).
	edgeExact edgeKind = iota
	// edgeSoft marks a non-exact pin_subpackage or a free-spec name match:
	// still ordered, but a cycle through only edgeSoft edges is tolerated
	// (broken by original recipe order) since no hash actually depends on
	// the predecessor's resolved build-string in that case.
	edgeSoft
)

type dependency struct {
	v1, v2 *vertex
	kind   edgeKind
}

// Graph is one variant combination's output dependency graph.
type Graph struct {
	vertices []*vertex
	edges    sets.Set[dependency]
}

// Build constructs a Graph from a rendered multi-output recipe's outputs,
// wiring an edge from O to P whenever O references P, matching dalec's "v
// depends on w" direction so that Tarjan's finishing order places
// dependencies (P) before dependents (O).
func Build(outputs []stage1.Output) (*Graph, error) {
	g := &Graph{edges: sets.New[dependency]()}

	byName := make(map[string]*vertex, len(outputs))
	vertices := make([]*vertex, len(outputs))
	for i := range outputs {
		v := &vertex{index: i, name: string(recipe.Normalize(outputs[i].Name))}
		vertices[i] = v
		byName[v.name] = v
	}

	for i, o := range outputs {
		v := vertices[i]
		for _, d := range dependenciesOf(o) {
			name, kind, ok := pinTarget(d, byName)
			if !ok || name == v.name {
				continue
			}
			w := byName[name]
			g.edges.Insert(dependency{v1: v, v2: w, kind: kind})
		}
		for _, name := range o.FreeSpecNames() {
			key := string(recipe.Normalize(name))
			if key == v.name {
				continue
			}
			if w, ok := byName[key]; ok {
				g.edges.Insert(dependency{v1: v, v2: w, kind: edgeSoft})
			}
		}
	}

	g.vertices = vertices
	return g, nil
}

func dependenciesOf(o stage1.Output) []recipe.Dependency {
	var out []recipe.Dependency
	if o.IsStaging {
		out = append(out, o.StagingRequirements.Build...)
		out = append(out, o.StagingRequirements.Host...)
		return out
	}
	out = append(out, o.Requirements.Build...)
	out = append(out, o.Requirements.Host...)
	out = append(out, o.Requirements.Run...)
	out = append(out, o.Requirements.RunConstraints...)
	return out
}

func pinTarget(d recipe.Dependency, byName map[string]*vertex) (string, edgeKind, bool) {
	if d.Kind != recipe.DepPinSubpackage {
		return "", edgeSoft, false
	}
	name := string(recipe.Normalize(d.Name))
	if _, ok := byName[name]; !ok {
		return "", edgeSoft, false
	}
	if d.Exact {
		return name, edgeExact, true
	}
	return name, edgeSoft, true
}

// topSort runs Tarjan's strongly-connected-components algorithm
// (https://en.wikipedia.org/wiki/Tarjan%27s_strongly_connected_components_algorithm),
// returning components in the order Tarjan finishes them: a component
// closer to a sink of the v1->v2 ("depends on") edges is emitted before one
// that depends on it.
func (g *Graph) topSort() [][]*vertex {
	index := 0
	var stack []*vertex
	var output [][]*vertex

	var strongConnect func(v *vertex)
	strongConnect = func(v *vertex) {
		v.idx = new(int)
		*v.idx = index
		v.lowlink = index
		index++

		stack = append(stack, v)
		v.onStack = true

		for edge := range g.edges {
			if edge.v1 != v {
				continue
			}
			w := edge.v2
			if w.idx == nil {
				strongConnect(w)
				if w.lowlink < v.lowlink {
					v.lowlink = w.lowlink
				}
				continue
			}
			if w.onStack && *w.idx < v.lowlink {
				v.lowlink = *w.idx
			}
		}

		if v.lowlink == *v.idx {
			var component []*vertex
			for len(stack) > 0 {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				w.onStack = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			output = append(output, component)
		}
	}

	for _, v := range g.vertices {
		if v.idx == nil {
			strongConnect(v)
		}
	}
	return output
}

// order returns the output indices in dependency order (predecessors
// before dependents). A component with more than one vertex is a cycle; it
// is only fatal when at least one of its internal edges is an exact pin
// (CyclicPinError). A purely soft cycle is broken by original recipe
// order, a documented compromise since no hash computation actually
// requires a soft predecessor's resolved build-string.
func (g *Graph) order() ([]int, error) {
	components := g.topSort()

	var out []int
	for _, comp := range components {
		if len(comp) == 1 {
			out = append(out, comp[0].index)
			continue
		}
		if names, cyclic := exactCycle(comp, g.edges); cyclic {
			return nil, &CyclicPinError{Names: names}
		}
		idxs := make([]int, len(comp))
		for i, v := range comp {
			idxs[i] = v.index
		}
		sort.Ints(idxs)
		out = append(out, idxs...)
	}
	return out, nil
}

func exactCycle(comp []*vertex, edges sets.Set[dependency]) ([]string, bool) {
	inComp := make(map[*vertex]bool, len(comp))
	for _, v := range comp {
		inComp[v] = true
	}
	for edge := range edges {
		if edge.kind == edgeExact && inComp[edge.v1] && inComp[edge.v2] {
			names := make([]string, len(comp))
			for i, v := range comp {
				names[i] = v.name
			}
			return names, true
		}
	}
	return nil, false
}
