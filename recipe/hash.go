package recipe

// Canonical JSON hashing for variant subsets and build-strings (spec.md
// §4.4, §4.5). There is no canonical-JSON library anywhere in the retrieval
// pack (dalec hashes raw YAML bytes via its own frontend digest machinery,
// not a variant projection), so the encoder here is hand-written; it is kept
// deliberately narrow — a recursive sorted-map/array/scalar writer, not a
// general JSON library replacement. Hashing itself reuses
// `github.com/opencontainers/go-digest`, the same digest type dalec threads
// through its content-addressed image references.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	digest "github.com/opencontainers/go-digest"
)

// HashInfo is the (hash, prefix) pair from spec.md §3/§4.4.
type HashInfo struct {
	Hash   string // first 7 hex chars of sha256(canonical_json(V*))
	Prefix string // "py{M}{m}" | "py0" | ""
}

// BuildString renders the default "{prefix}h{hash}_{build_number}" shape,
// or a template override supplied by the recipe.
func (h HashInfo) BuildString(buildNumber int, template string) string {
	if template != "" {
		r := templateRenderer{hash: h.Hash, prefix: h.Prefix, buildNumber: buildNumber}
		return r.render(template)
	}
	return fmt.Sprintf("%sh%s_%d", h.Prefix, h.Hash, buildNumber)
}

type templateRenderer struct {
	hash        string
	prefix      string
	buildNumber int
}

// render performs the narrow `{hash}`/`{prefix}`/`{build_number}` Python
// str.format-style substitution spec.md §4.4 requires for a custom
// build-string template; it does not attempt the full expression language.
func (r templateRenderer) render(template string) string {
	replacer := map[string]string{
		"{hash}":         r.hash,
		"{prefix}":       r.prefix,
		"{build_number}": strconv.Itoa(r.buildNumber),
	}
	out := template
	for k, v := range replacer {
		out = strings.ReplaceAll(out, k, v)
	}
	return out
}

// NoarchPrefix computes the "py{M}{m}" | "py0" | "" prefix from spec.md
// §4.4 given the output's noarch kind and, for "python", a "major.minor"
// or "major.minor.patch" Python version string drawn from the variant.
func NoarchPrefix(noarchKind string, pythonVersion string) string {
	if noarchKind != "python" {
		return ""
	}
	major, minor, ok := splitMajorMinor(pythonVersion)
	if !ok {
		return "py0"
	}
	return fmt.Sprintf("py%s%s", major, minor)
}

func splitMajorMinor(v string) (string, string, bool) {
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// VariantSubset is the effective variant subset V* from spec.md §4.4: a
// sorted-by-NormalizedKey projection of the variant used as hash input.
type VariantSubset map[NormalizedKey]Variable

// CanonicalJSON serialises a value as canonical JSON per spec.md §4.4's tie
// break rule: object keys sorted lexicographically by their normalised
// form, arrays preserve order, NaN/Infinity are rejected.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case VariantSubset:
		keys := make([]string, 0, len(t))
		byKey := make(map[string]Variable, len(t))
		for k, val := range t {
			keys = append(keys, string(k))
			byKey[string(k)] = val
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, byKey[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case Variable:
		return writeVariable(buf, t)
	case string:
		writeJSONString(buf, t)
		return nil
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case int:
		buf.WriteString(strconv.Itoa(t))
		return nil
	case int64:
		buf.WriteString(strconv.FormatInt(t, 10))
		return nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Errorf("canonical JSON cannot encode NaN/Infinity")
		}
		buf.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
		return nil
	default:
		// Fall back to the standard encoder for any other concrete type
		// (e.g. structs used in staging-cache definitions); its output is
		// already key-sorted for maps via json.Marshal's documented
		// behavior, but nested custom types above take priority so that
		// Variable's structural projection (not its String() method) is
		// what gets hashed.
		enc, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(enc)
		return nil
	}
}

func writeVariable(buf *bytes.Buffer, v Variable) error {
	b, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// HashVariantSubset computes spec.md §4.4's `hash = sha256(canonical_json(V*))[0..7]`.
func HashVariantSubset(v VariantSubset) (string, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	d := digest.FromBytes(data)
	return d.Encoded()[:7], nil
}

// HashCanonical hashes an arbitrary canonical-JSON-able value and returns
// the full hex digest, used by the staging and source caches (spec.md §4.5,
// §4.6) where the full 64-char digest, not just 7 chars, is the cache key.
func HashCanonical(v any) (string, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return digest.FromBytes(data).Encoded(), nil
}
