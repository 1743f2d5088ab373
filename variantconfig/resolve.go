package variantconfig

import (
	"github.com/pkg/errors"

	"github.com/prefix-dev/rattler-build-go/eval"
	"github.com/prefix-dev/rattler-build-go/recipe"
)

// ResolvedConfig is a Config with every per-key ConditionalList flattened
// under a platform-only EvaluationContext into its ordered candidate
// Variable list — the input the variant expander cross-products (spec.md
// §4.3).
type ResolvedConfig struct {
	Keys    []recipe.NormalizedKey
	Values  map[recipe.NormalizedKey][]recipe.Variable
	ZipKeys [][]recipe.NormalizedKey
}

// Resolve flattens every key's ConditionalList under platformCtx — a bare
// EvaluationContext carrying only the platform triple, no recipe
// `context:` bindings, since variant-config selectors only ever reference
// `unix`/`win`/`osx`/`linux`/`target_platform`-style predicates (spec.md §6
// legacy selector support), never recipe-specific context variables.
func Resolve(cfg *Config, platformCtx *eval.EvaluationContext) (*ResolvedConfig, error) {
	out := &ResolvedConfig{
		Keys:    append([]recipe.NormalizedKey(nil), cfg.Keys...),
		Values:  make(map[recipe.NormalizedKey][]recipe.Variable, len(cfg.Entries)),
		ZipKeys: cfg.ZipKeys,
	}
	truthy := func(expr string) (bool, error) { return eval.Truthy(platformCtx, expr) }

	for _, k := range cfg.Keys {
		items, err := cfg.Entries[k].Flatten(truthy)
		if err != nil {
			return nil, errors.Wrapf(err, "variant config key %q", k)
		}
		vars := make([]recipe.Variable, 0, len(items))
		for _, v := range items {
			s, err := eval.RenderValueString(platformCtx, v)
			if err != nil {
				return nil, errors.Wrapf(err, "variant config key %q", k)
			}
			vars = append(vars, recipe.InferVariable(s))
		}
		out.Values[k] = vars
	}

	if err := validateZipGroups(out); err != nil {
		return nil, err
	}
	return out, nil
}

// validateZipGroups enforces spec.md §4.3 step 3: "all keys in a zip group
// must have equal list length (error otherwise)".
func validateZipGroups(cfg *ResolvedConfig) error {
	for _, group := range cfg.ZipKeys {
		if len(group) == 0 {
			continue
		}
		for _, k := range group {
			if _, ok := cfg.Values[k]; !ok {
				return &UnknownKeyInZipGroupError{Key: k}
			}
		}
		n := len(cfg.Values[group[0]])
		for _, k := range group[1:] {
			if len(cfg.Values[k]) != n {
				return &ZipLengthMismatchError{Keys: group}
			}
		}
	}
	return nil
}

// ZipLengthMismatchError is spec.md §7's VariantConfig.ZipLengthMismatch.
type ZipLengthMismatchError struct {
	Keys []recipe.NormalizedKey
}

func (e *ZipLengthMismatchError) Error() string {
	return "zip_keys group " + joinKeys(e.Keys) + " has mismatched value-list lengths"
}

// UnknownKeyInZipGroupError is spec.md §7's VariantConfig.UnknownKeyInZipGroup.
type UnknownKeyInZipGroupError struct {
	Key recipe.NormalizedKey
}

func (e *UnknownKeyInZipGroupError) Error() string {
	return "zip_keys references unknown key " + string(e.Key)
}

func joinKeys(keys []recipe.NormalizedKey) string {
	s := "["
	for i, k := range keys {
		if i > 0 {
			s += ", "
		}
		s += string(k)
	}
	return s + "]"
}
