package stagingcache

import (
	"encoding/json"
	"strings"

	"github.com/prefix-dev/rattler-build-go/recipe"
)

// SelectVariant implements spec.md §4.5's cache-key variant projection:
// the intersection of def's build+host dependency names with outputVariant,
// plus host_platform/build_platform unconditionally.
func SelectVariant(def recipe.StagingCache, outputVariant recipe.VariantSubset) recipe.VariantSubset {
	sel := recipe.VariantSubset{}

	addFreeSpecs := func(deps []recipe.Dependency) {
		for _, d := range deps {
			name, ok := d.FreeSpecName()
			if !ok {
				name = d.Name
				if d.Kind == recipe.DepMatchSpec {
					name = strings.TrimSpace(d.MatchSpec)
					if i := strings.IndexAny(name, " =<>!~"); i >= 0 {
						name = name[:i]
					}
				}
			}
			if name == "" {
				continue
			}
			k := recipe.Normalize(name)
			if v, ok := outputVariant[k]; ok {
				sel[k] = v
			}
		}
	}
	addFreeSpecs(def.Requirements.Build)
	addFreeSpecs(def.Requirements.Host)

	for _, name := range []string{"host_platform", "build_platform"} {
		k := recipe.Normalize(name)
		if v, ok := outputVariant[k]; ok {
			sel[k] = v
		}
	}
	return sel
}

// Key computes spec.md §4.5's cache key: sha256(canonical_json(definition,
// selected_variant)), hex-encoded in full (the staging cache, unlike the
// output planner's build-string hash, uses the complete digest as a
// directory-name-safe key).
func Key(def recipe.StagingCache, selectedVariant recipe.VariantSubset) (string, error) {
	raw, err := json.Marshal(def)
	if err != nil {
		return "", err
	}
	var defAny any
	if err := json.Unmarshal(raw, &defAny); err != nil {
		return "", err
	}
	payload := map[string]any{"definition": defAny, "variant": selectedVariant}
	return recipe.HashCanonical(payload)
}
