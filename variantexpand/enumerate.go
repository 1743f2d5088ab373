package variantexpand

import (
	"sort"

	"github.com/prefix-dev/rattler-build-go/recipe"
	"github.com/prefix-dev/rattler-build-go/variantconfig"
)

// Combination is one concrete assignment of variant keys drawn from the
// matrix (spec.md §4.3 step 3), in a deterministic key order.
type Combination struct {
	Vars []recipe.NamedVariable
}

// Enumerate implements spec.md §4.3 steps 2-3: intersect usedVars with the
// config's declared keys, partition into zip groups vs free keys, iterate
// zip groups in lock-step, and cross-product the result with every free
// key's value list. If no variable is actually used, a single empty
// combination is emitted (step 3's final bullet).
func Enumerate(usedVars []string, cfg *variantconfig.ResolvedConfig) ([]Combination, error) {
	usedSet := make(map[recipe.NormalizedKey]bool, len(usedVars))
	for _, v := range usedVars {
		usedSet[recipe.Normalize(v)] = true
	}

	inGroup := make(map[recipe.NormalizedKey]int, len(cfg.ZipKeys))
	for gi, group := range cfg.ZipKeys {
		for _, k := range group {
			inGroup[k] = gi
		}
	}

	var usedConfigKeys []recipe.NormalizedKey
	for _, k := range cfg.Keys {
		if usedSet[k] {
			usedConfigKeys = append(usedConfigKeys, k)
		}
	}
	if len(usedConfigKeys) == 0 {
		return []Combination{{}}, nil
	}

	activeGroups := map[int]bool{}
	var freeKeys []recipe.NormalizedKey
	for _, k := range usedConfigKeys {
		if gi, ok := inGroup[k]; ok {
			activeGroups[gi] = true
		} else {
			freeKeys = append(freeKeys, k)
		}
	}

	var groupIdxs []int
	for gi := range activeGroups {
		groupIdxs = append(groupIdxs, gi)
	}
	sort.Ints(groupIdxs)

	var axes [][][]recipe.NamedVariable
	for _, gi := range groupIdxs {
		group := cfg.ZipKeys[gi]
		if len(group) == 0 {
			continue
		}
		n := len(cfg.Values[group[0]])
		axis := make([][]recipe.NamedVariable, 0, n)
		for i := 0; i < n; i++ {
			var assign []recipe.NamedVariable
			for _, k := range group {
				if usedSet[k] && i < len(cfg.Values[k]) {
					assign = append(assign, recipe.NamedVariable{Key: k, Value: cfg.Values[k][i]})
				}
			}
			axis = append(axis, assign)
		}
		axes = append(axes, axis)
	}
	for _, k := range freeKeys {
		axis := make([][]recipe.NamedVariable, 0, len(cfg.Values[k]))
		for _, val := range cfg.Values[k] {
			axis = append(axis, []recipe.NamedVariable{{Key: k, Value: val}})
		}
		axes = append(axes, axis)
	}

	combos := [][]recipe.NamedVariable{{}}
	for _, axis := range axes {
		next := make([][]recipe.NamedVariable, 0, len(combos)*len(axis))
		for _, c := range combos {
			for _, a := range axis {
				merged := make([]recipe.NamedVariable, 0, len(c)+len(a))
				merged = append(merged, c...)
				merged = append(merged, a...)
				next = append(next, merged)
			}
		}
		combos = next
	}

	out := make([]Combination, len(combos))
	for i, c := range combos {
		out[i] = Combination{Vars: c}
	}
	return out, nil
}
