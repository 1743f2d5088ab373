package recipe

// ParseRecipe and the UnmarshalYAML methods in this file are the entry point
// for turning recipe bytes into the Stage 0 tree (spec.md §3, §4.1, §6). The
// overall shape — parse into an `internal<Type>` alias via a Decoder built
// from the incoming ctx's decode options, then post-process — follows
// Azure-dalec's Spec.UnmarshalYAML (load.go) exactly; the closed top-level
// key validation follows spec.md §6 directly since dalec's own top-level
// shape (a single fixed struct) never needed a discriminator at this level.

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/ast"
	"github.com/pkg/errors"
)

// ParseRecipe decodes a recipe.yaml document into its Stage 0 tree. filename
// is attached to every Span for diagnostics; it may be empty.
func ParseRecipe(data []byte, filename string) (*Recipe, error) {
	ctx := ContextWithFilename(context.Background(), filename)

	var r Recipe
	r.Filename = filename

	opts := []yaml.DecodeOption{yaml.Strict()}
	ctx = contextWithDecodeOpts(ctx, opts)

	if err := yaml.UnmarshalContext(ctx, data, &r, opts...); err != nil {
		return nil, errors.Wrap(err, "parsing recipe")
	}
	return &r, nil
}

func decodeNode(ctx context.Context, node ast.Node, target any) error {
	var buf bytes.Buffer
	dec := yaml.NewDecoder(&buf, decodeOptsFrom(ctx)...)
	return dec.DecodeFromNodeContext(ctx, node, target)
}

// mappingEntries returns the ordered key/value pairs of a mapping node, or an
// error if node is not a mapping. Duplicate keys are rejected the way
// spec.md §7 KindDuplicateField expects.
func mappingEntries(ctx context.Context, node ast.Node) ([]string, map[string]ast.Node, error) {
	if node == nil || node.Type() == ast.NullType {
		return nil, nil, nil
	}
	mn, ok := node.(*ast.MappingNode)
	if !ok {
		if single, ok := node.(*ast.MappingValueNode); ok {
			mn = &ast.MappingNode{Values: []*ast.MappingValueNode{single}}
		} else {
			return nil, nil, &ParseError{Kind: KindExpectedMapping, Span: spanFromNode(docFilename(ctx), node)}
		}
	}

	keys := make([]string, 0, len(mn.Values))
	values := make(map[string]ast.Node, len(mn.Values))
	for _, v := range mn.Values {
		keyNode, ok := v.Key.(*ast.StringNode)
		if !ok {
			return nil, nil, &ParseError{Kind: KindExpectedScalar, Span: spanFromNode(docFilename(ctx), v.Key)}
		}
		key := keyNode.Value
		if _, dup := values[key]; dup {
			return nil, nil, &ParseError{Kind: KindDuplicateField, Field: key, Span: spanFromNode(docFilename(ctx), v.Key)}
		}
		keys = append(keys, key)
		values[key] = v.Value
	}
	return keys, values, nil
}

// checkClosedKeys errors with a suggestion if keys contains anything outside
// allowed, per spec.md §4.1 ("unknown keys at known sections are errors with
// a suggestion listing the allowed keys").
func checkClosedKeys(ctx context.Context, node ast.Node, keys []string, allowed map[string]bool) error {
	suggestion := make([]string, 0, len(allowed))
	for k := range allowed {
		suggestion = append(suggestion, k)
	}
	sort.Strings(suggestion)

	for _, k := range keys {
		if !allowed[k] {
			return invalidField(spanFromNode(docFilename(ctx), node), k, suggestion)
		}
	}
	return nil
}

func keySet(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

var singleOutputKeys = keySet("schema_version", "context", "package", "source", "build", "requirements", "tests", "about", "extra", "cache")
var multiOutputKeys = keySet("schema_version", "context", "recipe", "source", "build", "about", "extra", "outputs", "cache")
var outputKeys = keySet("staging", "package", "source", "requirements", "build", "tests", "about", "inherit")
var stagingOutputKeys = keySet("staging", "source", "requirements", "build")
var stagingRequirementsKeys = keySet("build", "host", "ignore_run_exports")
var stagingBuildKeys = keySet("script")

// UnmarshalYAML implements goccy/go-yaml's NodeUnmarshalerContext, performing
// the single-vs-multi-output discrimination and closed top-level key check
// from spec.md §4.1/§6.
func (r *Recipe) UnmarshalYAML(ctx context.Context, node ast.Node) error {
	filename := docFilename(ctx)
	keys, values, err := mappingEntries(ctx, node)
	if err != nil {
		return err
	}

	_, hasCache := values["cache"]
	_, isMulti := values["outputs"]

	allowed := singleOutputKeys
	if isMulti {
		allowed = multiOutputKeys
	}
	if err := checkClosedKeys(ctx, node, keys, allowed); err != nil {
		return err
	}
	if hasCache && !isMulti {
		return invalidField(spanFromNode(filename, node), "cache", []string{"requires top-level outputs"})
	}

	if n, ok := values["schema_version"]; ok {
		var v int
		if err := decodeNode(ctx, n, &v); err != nil {
			return invalidValue(spanFromNode(filename, n), "schema_version", err)
		}
		if v != 1 {
			return invalidValue(spanFromNode(filename, n), "schema_version", fmt.Errorf("unsupported schema_version %d, expected 1", v))
		}
		r.SchemaVersion = v
	} else {
		r.SchemaVersion = 1
	}

	if n, ok := values["context"]; ok {
		var cm ContextMap
		if err := cm.UnmarshalYAML(ctx, n); err != nil {
			return err
		}
		r.Context = &cm
	}

	if n, ok := values["source"]; ok {
		if err := r.Source.UnmarshalYAML(ctx, n); err != nil {
			return err
		}
	}
	if n, ok := values["build"]; ok {
		var b BuildBlock
		if err := decodeNode(ctx, n, &b); err != nil {
			return err
		}
		r.Build = &b
	}
	if n, ok := values["tests"]; ok {
		if err := r.Tests.UnmarshalYAML(ctx, n); err != nil {
			return err
		}
	}
	if n, ok := values["about"]; ok {
		var a AboutBlock
		if err := decodeNode(ctx, n, &a); err != nil {
			return err
		}
		r.About = &a
	}
	if n, ok := values["extra"]; ok {
		var extra map[string]any
		if err := decodeNode(ctx, n, &extra); err != nil {
			return err
		}
		r.Extra = extra
	}

	if isMulti {
		r.IsMultiOutput = true

		if n, ok := values["recipe"]; ok {
			var header RecipeHeaderBlock
			if err := decodeNode(ctx, n, &header); err != nil {
				return err
			}
			r.RecipeHeader = &header
		} else if !hasCache {
			return missingField(spanFromNode(filename, node), "recipe")
		}

		outputsNode := values["outputs"]
		seq, ok := outputsNode.(*ast.SequenceNode)
		if !ok {
			return &ParseError{Kind: KindExpectedSequence, Span: spanFromNode(filename, outputsNode)}
		}
		outputs := make([]OutputBlock, 0, len(seq.Values))
		for _, on := range seq.Values {
			var ob OutputBlock
			if err := ob.UnmarshalYAML(ctx, on); err != nil {
				return err
			}
			outputs = append(outputs, ob)
		}
		r.Outputs = outputs

		if hasCache {
			if err := r.migrateCache(ctx, values["cache"]); err != nil {
				return err
			}
		}
		return nil
	}

	n, ok := values["package"]
	if !ok {
		return missingField(spanFromNode(filename, node), "package")
	}
	var pkg PackageBlock
	if err := decodeNode(ctx, n, &pkg); err != nil {
		return err
	}
	r.Package = &pkg

	if n, ok := values["requirements"]; ok {
		var req RequirementsBlock
		if err := decodeNode(ctx, n, &req); err != nil {
			return err
		}
		r.Requirements = &req
	}

	return nil
}

// UnmarshalYAML decodes the ordered `context:` mapping, preserving insertion
// order per spec.md §4.2.
func (c *ContextMap) UnmarshalYAML(ctx context.Context, node ast.Node) error {
	keys, values, err := mappingEntries(ctx, node)
	if err != nil {
		return err
	}
	c.Keys = keys
	c.Values = make(map[string]Value[string], len(keys))
	for _, k := range keys {
		var v Value[string]
		if err := v.UnmarshalYAML(ctx, values[k]); err != nil {
			return err
		}
		c.Values[k] = v
	}
	return nil
}

// UnmarshalYAML decodes one `source:` list element, discriminating on which
// of `url`/`git`/`path` is present (spec.md §3 SourceSpec).
func (s *SourceEntry) UnmarshalYAML(ctx context.Context, node ast.Node) error {
	filename := docFilename(ctx)
	s.Span = spanFromNode(filename, node)

	keys, values, err := mappingEntries(ctx, node)
	if err != nil {
		return err
	}

	_, hasURL := values["url"]
	_, hasGit := values["git"]
	_, hasPath := values["path"]

	switch {
	case hasURL && !hasGit && !hasPath:
		return s.unmarshalURL(ctx, keys, values)
	case hasGit && !hasURL && !hasPath:
		return s.unmarshalGit(ctx, keys, values)
	case hasPath && !hasURL && !hasGit:
		return s.unmarshalPath(ctx, keys, values)
	default:
		return invalidField(s.Span, "url|git|path", []string{"url", "git", "path"})
	}
}

var sourceURLKeys = keySet("url", "sha256", "md5", "file_name", "target_directory", "patches")
var sourceGitKeys = keySet("git", "rev", "tag", "branch", "depth", "lfs", "target_directory", "expected_commit")
var sourcePathKeys = keySet("path", "include", "exclude", "use_gitignore", "target_directory", "patches")

func (s *SourceEntry) unmarshalURL(ctx context.Context, keys []string, values map[string]ast.Node) error {
	if err := checkClosedKeys(ctx, values["url"], keys, sourceURLKeys); err != nil {
		return err
	}
	s.Kind = SourceURL

	switch n := values["url"].(type) {
	case *ast.SequenceNode:
		urls := make([]Value[string], 0, len(n.Values))
		for _, v := range n.Values {
			var u Value[string]
			if err := u.UnmarshalYAML(ctx, v); err != nil {
				return err
			}
			urls = append(urls, u)
		}
		s.URLs = urls
	default:
		var u Value[string]
		if err := u.UnmarshalYAML(ctx, n); err != nil {
			return err
		}
		s.URLs = []Value[string]{u}
	}

	if n, ok := values["sha256"]; ok {
		var v Value[string]
		if err := v.UnmarshalYAML(ctx, n); err != nil {
			return err
		}
		s.Sha256 = &v
	}
	if n, ok := values["md5"]; ok {
		var v Value[string]
		if err := v.UnmarshalYAML(ctx, n); err != nil {
			return err
		}
		s.Md5 = &v
	}
	if n, ok := values["file_name"]; ok {
		var v Value[string]
		if err := v.UnmarshalYAML(ctx, n); err != nil {
			return err
		}
		s.FileName = &v
	}
	if n, ok := values["target_directory"]; ok {
		var v Value[string]
		if err := v.UnmarshalYAML(ctx, n); err != nil {
			return err
		}
		s.TargetDir = &v
	}
	if n, ok := values["patches"]; ok {
		patches, err := decodeValueList[string](ctx, n)
		if err != nil {
			return err
		}
		s.URLPatches = patches
	}
	return nil
}

func (s *SourceEntry) unmarshalGit(ctx context.Context, keys []string, values map[string]ast.Node) error {
	if err := checkClosedKeys(ctx, values["git"], keys, sourceGitKeys); err != nil {
		return err
	}
	s.Kind = SourceGit

	var u Value[string]
	if err := u.UnmarshalYAML(ctx, values["git"]); err != nil {
		return err
	}
	s.GitURL = u

	for field, dst := range map[string]**Value[string]{
		"rev":    &s.Rev,
		"tag":    &s.Tag,
		"branch": &s.Branch,
	} {
		if n, ok := values[field]; ok {
			var v Value[string]
			if err := v.UnmarshalYAML(ctx, n); err != nil {
				return err
			}
			*dst = &v
		}
	}
	if n, ok := values["depth"]; ok {
		var v Value[int]
		if err := v.UnmarshalYAML(ctx, n); err != nil {
			return err
		}
		s.Depth = &v
	}
	if n, ok := values["lfs"]; ok {
		var v Value[bool]
		if err := v.UnmarshalYAML(ctx, n); err != nil {
			return err
		}
		s.Lfs = v
	}
	if n, ok := values["expected_commit"]; ok {
		var v Value[string]
		if err := v.UnmarshalYAML(ctx, n); err != nil {
			return err
		}
		s.ExpectedCommit = &v
	}
	return nil
}

func (s *SourceEntry) unmarshalPath(ctx context.Context, keys []string, values map[string]ast.Node) error {
	if err := checkClosedKeys(ctx, values["path"], keys, sourcePathKeys); err != nil {
		return err
	}
	s.Kind = SourcePath

	var p Value[string]
	if err := p.UnmarshalYAML(ctx, values["path"]); err != nil {
		return err
	}
	s.Path = p

	if n, ok := values["include"]; ok {
		globs, err := decodeValueList[string](ctx, n)
		if err != nil {
			return err
		}
		s.Include = globs
	}
	if n, ok := values["exclude"]; ok {
		globs, err := decodeValueList[string](ctx, n)
		if err != nil {
			return err
		}
		s.Exclude = globs
	}
	if n, ok := values["use_gitignore"]; ok {
		var v Value[bool]
		if err := v.UnmarshalYAML(ctx, n); err != nil {
			return err
		}
		s.UseGitignore = v
	}
	if n, ok := values["patches"]; ok {
		patches, err := decodeValueList[string](ctx, n)
		if err != nil {
			return err
		}
		s.PathPatches = patches
	}
	return nil
}

// decodeValueList decodes a YAML sequence of scalars into Value[T]s,
// tolerating a single bare scalar in place of a one-element list (the same
// convention source.url already follows).
func decodeValueList[T any](ctx context.Context, node ast.Node) ([]Value[T], error) {
	seq, ok := node.(*ast.SequenceNode)
	if !ok {
		var v Value[T]
		if err := v.UnmarshalYAML(ctx, node); err != nil {
			return nil, err
		}
		return []Value[T]{v}, nil
	}
	out := make([]Value[T], 0, len(seq.Values))
	for _, n := range seq.Values {
		var v Value[T]
		if err := v.UnmarshalYAML(ctx, n); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// UnmarshalYAML decodes one `outputs:` list element, discriminating on
// staging-vs-package and enforcing the staging output's restricted key set
// (spec.md §4.1).
func (o *OutputBlock) UnmarshalYAML(ctx context.Context, node ast.Node) error {
	filename := docFilename(ctx)
	o.Span = spanFromNode(filename, node)

	keys, values, err := mappingEntries(ctx, node)
	if err != nil {
		return err
	}

	_, hasStaging := values["staging"]
	_, hasPackage := values["package"]
	if hasStaging == hasPackage {
		return invalidField(o.Span, "staging|package", []string{"staging", "package"})
	}

	if hasStaging {
		o.IsStaging = true
		if err := checkClosedKeys(ctx, node, keys, stagingOutputKeys); err != nil {
			return err
		}

		var sb StagingBlock
		if err := decodeNode(ctx, values["staging"], &sb); err != nil {
			return err
		}
		o.Staging = &sb

		if n, ok := values["requirements"]; ok {
			reqKeys, _, err := mappingEntries(ctx, n)
			if err != nil {
				return err
			}
			if err := checkClosedKeys(ctx, n, reqKeys, stagingRequirementsKeys); err != nil {
				return err
			}
			var req RequirementsBlock
			if err := decodeNode(ctx, n, &req); err != nil {
				return err
			}
			o.Requirements = &req
		}
		if n, ok := values["build"]; ok {
			buildKeys, _, err := mappingEntries(ctx, n)
			if err != nil {
				return err
			}
			if err := checkClosedKeys(ctx, n, buildKeys, stagingBuildKeys); err != nil {
				return err
			}
			var b BuildBlock
			if err := decodeNode(ctx, n, &b); err != nil {
				return err
			}
			o.Build = &b
		}
	} else {
		if err := checkClosedKeys(ctx, node, keys, outputKeys); err != nil {
			return err
		}

		var pb PackageOutputBlock
		if err := decodeNode(ctx, values["package"], &pb); err != nil {
			return err
		}
		o.Package = &pb

		if n, ok := values["requirements"]; ok {
			var req RequirementsBlock
			if err := decodeNode(ctx, n, &req); err != nil {
				return err
			}
			o.Requirements = &req
		}
		if n, ok := values["build"]; ok {
			var b BuildBlock
			if err := decodeNode(ctx, n, &b); err != nil {
				return err
			}
			o.Build = &b
		}
		if n, ok := values["tests"]; ok {
			if err := o.Tests.UnmarshalYAML(ctx, n); err != nil {
				return err
			}
		}
		if n, ok := values["about"]; ok {
			var a AboutBlock
			if err := decodeNode(ctx, n, &a); err != nil {
				return err
			}
			o.About = &a
		}
		if n, ok := values["inherit"]; ok {
			var ib InheritBlock
			if err := ib.UnmarshalYAML(ctx, n); err != nil {
				return err
			}
			o.Inherit = &ib
		}
	}

	if n, ok := values["source"]; ok {
		if err := o.Source.UnmarshalYAML(ctx, n); err != nil {
			return err
		}
	}

	return nil
}

// UnmarshalYAML decodes `inherit:`, accepting either a bare staging name or a
// mapping `{from, run_exports}` (spec.md §4.5).
func (i *InheritBlock) UnmarshalYAML(ctx context.Context, node ast.Node) error {
	if s, ok := scalarString(node); ok {
		i.From = s
		return nil
	}

	keys, values, err := mappingEntries(ctx, node)
	if err != nil {
		return err
	}
	if err := checkClosedKeys(ctx, node, keys, keySet("from", "run_exports")); err != nil {
		return err
	}

	n, ok := values["from"]
	if !ok {
		return missingField(spanFromNode(docFilename(ctx), node), "from")
	}
	from, ok := scalarString(n)
	if !ok {
		return &ParseError{Kind: KindExpectedScalar, Span: spanFromNode(docFilename(ctx), n)}
	}
	i.From = from

	if n, ok := values["run_exports"]; ok {
		var v Value[bool]
		if err := v.UnmarshalYAML(ctx, n); err != nil {
			return err
		}
		i.RunExports = v
		i.HasRunExportsField = true
	}
	return nil
}
