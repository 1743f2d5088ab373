package recipe

import "fmt"

// DependencyKind discriminates the three Dependency variants of spec.md §3.
type DependencyKind int

const (
	DepMatchSpec DependencyKind = iota
	DepPinSubpackage
	DepPinCompatible
)

// Dependency is a Stage 1 value: a package name with optional version/build
// constraints, or a reference to a sibling output of the same recipe. Stage 0
// only ever carries the raw (possibly templated) string; the Evaluator is
// what produces a Dependency, recognizing `pin_subpackage`/`pin_compatible`
// calls the way spec.md §4.2 describes ("inject typed Dependency values...
// at the point where dependency strings would otherwise appear").
type Dependency struct {
	Kind DependencyKind

	// DepMatchSpec
	MatchSpec string

	// DepPinSubpackage / DepPinCompatible
	Name  string
	Exact bool // DepPinSubpackage only

	// DepPinCompatible
	LowerBound string
	UpperBound string

	Span *Span
}

func MatchSpecDependency(spec string, span *Span) Dependency {
	return Dependency{Kind: DepMatchSpec, MatchSpec: spec, Span: span}
}

func PinSubpackageDependency(name string, exact bool, span *Span) Dependency {
	return Dependency{Kind: DepPinSubpackage, Name: name, Exact: exact, Span: span}
}

func PinCompatibleDependency(name, lower, upper string, span *Span) Dependency {
	return Dependency{Kind: DepPinCompatible, Name: name, LowerBound: lower, UpperBound: upper, Span: span}
}

// FreeSpecName returns the bare package name and true if this dependency is
// a "free spec" per spec.md GLOSSARY: a MatchSpec with no version or build
// constraint (i.e. it is just an identifier). Such names become candidate
// variant keys when present in the variant config (spec.md §4.3 step 1b).
func (d Dependency) FreeSpecName() (string, bool) {
	if d.Kind != DepMatchSpec {
		return "", false
	}
	name := d.MatchSpec
	for _, r := range name {
		switch {
		case r == ' ', r == '=', r == '<', r == '>', r == '!':
			return "", false
		}
	}
	if name == "" {
		return "", false
	}
	return name, true
}

func (d Dependency) String() string {
	switch d.Kind {
	case DepPinSubpackage:
		return fmt.Sprintf("pin_subpackage(%s, exact=%v)", d.Name, d.Exact)
	case DepPinCompatible:
		return fmt.Sprintf("pin_compatible(%s)", d.Name)
	default:
		return d.MatchSpec
	}
}

// RunExportsBuckets holds the five labelled run_exports buckets from
// spec.md §3.
type RunExportsBuckets struct {
	NoArch            []Dependency
	Strong            []Dependency
	StrongConstraints []Dependency
	Weak              []Dependency
	WeakConstraints   []Dependency
}

func (r RunExportsBuckets) IsEmpty() bool {
	return len(r.NoArch) == 0 && len(r.Strong) == 0 && len(r.StrongConstraints) == 0 &&
		len(r.Weak) == 0 && len(r.WeakConstraints) == 0
}

// Requirements is the four ordered sequences plus run_exports and
// ignore_run_exports from spec.md §3.
type Requirements struct {
	Build           []Dependency
	Host            []Dependency
	Run             []Dependency
	RunConstraints  []Dependency
	RunExports      RunExportsBuckets
	IgnoreRunExports []string // normalized package names to filter out of inherited run_exports
}
