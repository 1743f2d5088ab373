package recipe

// This file defines the Stage 0 recipe tree: the parsed shape of a recipe
// document with every template preserved and every conditional list element
// still unflattened (spec.md §3, §4.1). It mirrors the way Azure-dalec's
// Spec/Target/PackageDependencies structs are plain, tagged Go structs
// decoded straight off goccy/go-yaml's AST rather than via an intermediate
// generic document model.

// ContextMap is the Stage 0 `context:` block: an insertion-ordered mapping
// of names to (possibly templated) values, evaluated in order per spec.md
// §4.2 ("context entries evaluate in insertion order; each entry sees the
// already-evaluated earlier entries").
type ContextMap struct {
	Keys   []string
	Values map[string]Value[string]
}

func (c *ContextMap) Get(key string) (Value[string], bool) {
	if c == nil {
		return Value[string]{}, false
	}
	v, ok := c.Values[key]
	return v, ok
}

// PackageBlock is the single-output `package:` section.
type PackageBlock struct {
	Name    Value[string] `yaml:"name"`
	Version Value[string] `yaml:"version"`
}

// BuildBlock is the `build:` section, shared by single-output recipes,
// per-output package blocks, and staging blocks (spec.md §4.5: staging
// `build` is limited to `{script}`).
type BuildBlock struct {
	Number        Value[int]                    `yaml:"number"`
	String        Value[string]                 `yaml:"string"` // optional user-supplied build-string template
	Script        ConditionalList[Value[string]] `yaml:"script"`
	NoArch        Value[string]                  `yaml:"noarch"` // "python" | "generic" | ""
	AlwaysInclude []string                       `yaml:"always_include,omitempty"` // supplemented: force-keep these prefix paths into the staging cache
	Env           map[string]Value[string]       `yaml:"env,omitempty"`
}

func (b *BuildBlock) IsNoArch() bool {
	return b != nil && !b.NoArch.IsTemplate && b.NoArch.Concrete != ""
}

// RequirementsBlock is the `requirements:` section (spec.md §3).
type RequirementsBlock struct {
	Build            ConditionalList[Value[string]] `yaml:"build"`
	Host             ConditionalList[Value[string]] `yaml:"host"`
	Run              ConditionalList[Value[string]] `yaml:"run"`
	RunConstraints   ConditionalList[Value[string]] `yaml:"run_constraints"`
	RunExports       RunExportsBlock                `yaml:"run_exports"`
	IgnoreRunExports ConditionalList[Value[string]] `yaml:"ignore_run_exports"`
}

// RunExportsBlock is the five labelled run_exports buckets (spec.md §3).
type RunExportsBlock struct {
	NoArch            ConditionalList[Value[string]] `yaml:"noarch"`
	Strong            ConditionalList[Value[string]] `yaml:"strong"`
	StrongConstraints ConditionalList[Value[string]] `yaml:"strong_constraints"`
	Weak              ConditionalList[Value[string]] `yaml:"weak"`
	WeakConstraints   ConditionalList[Value[string]] `yaml:"weak_constraints"`
}

// AboutBlock is the `about:` section.
type AboutBlock struct {
	Home        Value[string] `yaml:"home"`
	License     Value[string] `yaml:"license"`
	Summary     Value[string] `yaml:"summary"`
	Description Value[string] `yaml:"description"`
}

// TestEntry is one element of the `tests:` list.
type TestEntry struct {
	Script ConditionalList[Value[string]] `yaml:"script"`
}

// SourceKind discriminates SourceEntry's three shapes (spec.md §3
// SourceSpec).
type SourceKind int

const (
	SourceURL SourceKind = iota
	SourceGit
	SourcePath
)

// SourceEntry is the Stage 0 form of spec.md's SourceSpec sum type.
type SourceEntry struct {
	Kind SourceKind
	Span *Span

	// SourceURL
	URLs       []Value[string]
	Sha256     *Value[string]
	Md5        *Value[string]
	FileName   *Value[string]
	TargetDir  *Value[string]
	URLPatches []Value[string]

	// SourceGit
	GitURL         Value[string]
	Rev            *Value[string]
	Tag            *Value[string]
	Branch         *Value[string]
	Depth          *Value[int]
	Lfs            Value[bool]
	ExpectedCommit *Value[string]

	// SourcePath
	Path         Value[string]
	Include      []Value[string]
	Exclude      []Value[string]
	UseGitignore Value[bool]
	PathPatches  []Value[string]
}

// StagingBlock is an output's `staging:` discriminator section (spec.md
// §4.1: "an output is staging iff its mapping has a staging key").
type StagingBlock struct {
	Name Value[string] `yaml:"name"`
}

// PackageOutputBlock is an output's `package:` discriminator section.
type PackageOutputBlock struct {
	Name    Value[string] `yaml:"name"`
	Version Value[string] `yaml:"version"`
}

// InheritBlock is a package output's `inherit:` field (spec.md §4.5).
type InheritBlock struct {
	From               string
	RunExports         Value[bool]
	HasRunExportsField bool
}

// OutputBlock is one element of a multi-output recipe's `outputs:` list.
type OutputBlock struct {
	Span *Span

	IsStaging bool
	Staging   *StagingBlock
	Package   *PackageOutputBlock

	Source       ConditionalList[SourceEntry] `yaml:"source"`
	Requirements *RequirementsBlock           `yaml:"requirements"`
	Build        *BuildBlock                  `yaml:"build"`
	Tests        ConditionalList[TestEntry]   `yaml:"tests"`
	About        *AboutBlock                  `yaml:"about"`
	Inherit      *InheritBlock
}

func (o *OutputBlock) Name() Value[string] {
	if o.IsStaging {
		return o.Staging.Name
	}
	return o.Package.Name
}

// RecipeHeaderBlock is the shared top-level fields of a multi-output recipe.
type RecipeHeaderBlock struct {
	Name    Value[string] `yaml:"name"`
	Version Value[string] `yaml:"version"`
}

// Recipe is the Stage 0 tree root: either single-output or multi-output
// (spec.md §3).
type Recipe struct {
	Filename      string
	SchemaVersion int
	Context       *ContextMap

	IsMultiOutput bool

	// Single-output
	Package      *PackageBlock
	Requirements *RequirementsBlock

	// Shared across both shapes
	Source ConditionalList[SourceEntry]
	Build  *BuildBlock
	Tests  ConditionalList[TestEntry]
	About  *AboutBlock
	Extra  map[string]any

	// Multi-output
	RecipeHeader *RecipeHeaderBlock
	Outputs      []OutputBlock
}
