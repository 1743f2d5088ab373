// Package stagingcache implements the Staging Cache (spec.md §4.5):
// content-addressed reuse of intermediate builds shared across package
// outputs, including build-time-prefix rewriting on restore. Directory
// layout, locking, and restore protocol are grounded on the same
// "locks are scoped, released on every exit path" discipline
// Azure-dalec's Graph applies to its own sync.Mutex-guarded mutation
// (graph.go), generalized from an in-process mutex to a cross-process
// github.com/gofrs/flock file lock.
package stagingcache

import "github.com/prefix-dev/rattler-build-go/recipe"

// Metadata is StagingMetadata from spec.md §4.5.
type Metadata struct {
	Name                  string               `json:"name"`
	FinalizedDependencies recipe.Requirements  `json:"finalized_dependencies"`
	FinalizedSources      []recipe.SourceSpec  `json:"finalized_sources"`
	PrefixFiles           []string             `json:"prefix_files"`
	WorkDirFiles          []string             `json:"work_dir_files"`
	Prefix                string               `json:"prefix"`
	Variant               recipe.VariantSubset `json:"variant"`
}

// Result is what BuildOrRestore hands back to the driver: the staging
// output's finalized dependencies/sources (either freshly computed or
// restored from cache) plus the prefix they now live under.
type Result struct {
	FinalizedDependencies recipe.Requirements
	FinalizedSources      []recipe.SourceSpec
	Prefix                string
	Restored              bool
}
