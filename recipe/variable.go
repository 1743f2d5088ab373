package recipe

import (
	"strconv"
	"strings"
)

// NormalizedKey is the casefold/underscore-normalised form of a dependency
// name or variant variable name (spec.md §3), used so that "Python",
// "python", and "PYTHON" all address the same variant slot.
type NormalizedKey string

// Normalize canonicalises a raw identifier into a NormalizedKey: lowercase,
// with each '-' and '.' replaced by '_' the way conda package names and
// recipe variable names are commonly spelled interchangeably.
func Normalize(name string) NormalizedKey {
	lower := strings.ToLower(name)
	lower = strings.Map(func(r rune) rune {
		switch r {
		case '-', '.':
			return '_'
		default:
			return r
		}
	}, lower)
	return NormalizedKey(lower)
}

// NamedVariable pairs a NormalizedKey with its Variable, preserving
// caller-supplied order; used to seed an evaluation context from a variant
// combination (spec.md §4.3) without losing the deterministic order the
// variant expander already established.
type NamedVariable struct {
	Key   NormalizedKey
	Value Variable
}

// VariableKind tags the scalar kind stored in a Variable.
type VariableKind int

const (
	VariableString VariableKind = iota
	VariableBool
	VariableInt
)

// Variable is a variant value: a sum of scalar kinds with a stable string
// projection (spec.md §3). Arithmetic is not required by the core per
// spec.md's design notes, so this stays a plain tagged union rather than a
// general numeric tower.
type Variable struct {
	Kind VariableKind
	Str  string
	Bool bool
	Int  int64
}

func StringVariable(s string) Variable { return Variable{Kind: VariableString, Str: s} }
func BoolVariable(b bool) Variable      { return Variable{Kind: VariableBool, Bool: b} }
func IntVariable(i int64) Variable      { return Variable{Kind: VariableInt, Int: i} }

// String is the total projection to string used for template insertion.
func (v Variable) String() string {
	switch v.Kind {
	case VariableBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case VariableInt:
		return strconv.FormatInt(v.Int, 10)
	default:
		return v.Str
	}
}

// Truthy implements spec.md §4.2's truthiness rule: "true, non-empty
// non-'0'/'false' strings, non-zero numbers".
func (v Variable) Truthy() bool {
	switch v.Kind {
	case VariableBool:
		return v.Bool
	case VariableInt:
		return v.Int != 0
	default:
		s := v.Str
		return s != "" && s != "0" && s != "false"
	}
}

// MarshalJSON gives Variable a structural projection distinct from its
// string projection, used when hashing the effective variant subset
// (spec.md §3 HashInfo: "JSON projection of the relevant subset").
func (v Variable) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case VariableBool:
		if v.Bool {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case VariableInt:
		return []byte(strconv.FormatInt(v.Int, 10)), nil
	default:
		return strconv.AppendQuote(nil, v.Str), nil
	}
}

// ParseVariable coerces a rendered template string into a Variable of the
// requested kind; used when a Value[Variable]-typed field resolves its
// template text, and by the legacy variant-config text scanner.
func ParseVariable(s string, kind VariableKind) Variable {
	switch kind {
	case VariableBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return StringVariable(s)
		}
		return BoolVariable(b)
	case VariableInt:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return StringVariable(s)
		}
		return IntVariable(i)
	default:
		return StringVariable(s)
	}
}

// InferVariable guesses a Variable's kind from its rendered text: "true"/
// "false" become bool, a plain integer becomes int, everything else stays a
// string. This is how scalar YAML values without an explicit schema
// (variant-config lists, in particular) get typed.
func InferVariable(s string) Variable {
	switch s {
	case "true":
		return BoolVariable(true)
	case "false":
		return BoolVariable(false)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return IntVariable(i)
	}
	return StringVariable(s)
}
