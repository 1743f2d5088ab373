// Package variantexpand implements the Variant Matrix Expander (spec.md
// §4.3): given a Stage 0 recipe.Recipe and a resolved variantconfig.Config,
// it collects the variable keys the recipe could possibly reference,
// enumerates the matrix of concrete combinations (respecting zip groups),
// and evaluates the recipe once per combination into a RenderedVariant.
package variantexpand

import (
	"github.com/prefix-dev/rattler-build-go/eval"
	"github.com/prefix-dev/rattler-build-go/recipe"
)

// alwaysIncludeKeys are unconditionally part of used_vars regardless of
// whether the recipe's templates reference them (spec.md §4.3 step 1,
// "Always include target_platform, channel_targets, channel_sources").
var alwaysIncludeKeys = []string{"target_platform", "channel_targets", "channel_sources"}

// CollectUsedVars implements spec.md §4.3 step 1: the set of candidate
// variant keys a recipe could reference, before intersecting with the
// config's declared keys. Keys are returned in first-seen order, except
// that names reached through Go maps (build.env values, keyword arguments
// inside templates) follow map iteration order. Enumerate does not depend
// on this order: it iterates the config's own key order.
func CollectUsedVars(r *recipe.Recipe) []string {
	c := &collector{seen: map[string]bool{}}
	for _, k := range alwaysIncludeKeys {
		c.add(k)
	}
	c.walkContext(r.Context)
	c.walkSources(r.Source)
	c.walkBuild(r.Build)
	c.walkRequirements(r.Requirements)
	c.walkTests(r.Tests)
	c.walkAbout(r.About)

	for _, ob := range r.Outputs {
		c.walkValueString(ob.Name())
		if ob.Package != nil {
			c.walkValueString(ob.Package.Version)
		}
		c.walkSources(ob.Source)
		c.walkBuild(ob.Build)
		c.walkRequirements(ob.Requirements)
		c.walkTests(ob.Tests)
		c.walkAbout(ob.About)
	}

	return c.order
}

type collector struct {
	seen  map[string]bool
	order []string
}

func (c *collector) add(name string) {
	name = string(recipe.Normalize(name))
	if !c.seen[name] {
		c.seen[name] = true
		c.order = append(c.order, name)
	}
}

func (c *collector) addExprFreeIdents(expr string) {
	ids, err := eval.FreeIdentifiers(expr)
	if err != nil {
		return // malformed expressions surface properly during real evaluation
	}
	for _, id := range ids {
		c.add(id)
	}
}

func (c *collector) walkValueString(v recipe.Value[string]) {
	if !v.IsTemplate {
		return
	}
	for _, expr := range eval.TemplateExpressions(v.Template) {
		c.addExprFreeIdents(expr)
	}
}

func (c *collector) walkValueInt(v recipe.Value[int]) {
	if v.IsTemplate {
		for _, expr := range eval.TemplateExpressions(v.Template) {
			c.addExprFreeIdents(expr)
		}
	}
}

func (c *collector) walkValueBool(v recipe.Value[bool]) {
	if v.IsTemplate {
		for _, expr := range eval.TemplateExpressions(v.Template) {
			c.addExprFreeIdents(expr)
		}
	}
}

// walkDependencyValue scans one requirement-list Value[string], both as a
// template (free identifiers) and, when untemplated, as a candidate free
// spec name (spec.md §4.3 step 1b).
func (c *collector) walkDependencyValue(v recipe.Value[string]) {
	if v.IsTemplate {
		for _, expr := range eval.TemplateExpressions(v.Template) {
			c.addExprFreeIdents(expr)
		}
		return
	}
	if name, ok := freeSpecText(v.Concrete); ok {
		c.add(name)
	}
}

// freeSpecText mirrors recipe.Dependency.FreeSpecName's rule but operates
// on Stage 0 raw text, before a Dependency value exists.
func freeSpecText(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	for _, r := range s {
		switch {
		case r == ' ', r == '=', r == '<', r == '>', r == '!':
			return "", false
		}
	}
	return s, true
}

func (c *collector) walkConditionalDeps(cl recipe.ConditionalList[recipe.Value[string]]) {
	for _, expr := range cl.Conditions() {
		c.addExprFreeIdents(expr)
	}
	for _, v := range cl.Items() {
		c.walkDependencyValue(v)
	}
}

func (c *collector) walkConditionalStrings(cl recipe.ConditionalList[recipe.Value[string]]) {
	for _, expr := range cl.Conditions() {
		c.addExprFreeIdents(expr)
	}
	for _, v := range cl.Items() {
		c.walkValueString(v)
	}
}

func (c *collector) walkContext(cm *recipe.ContextMap) {
	if cm == nil {
		return
	}
	for _, k := range cm.Keys {
		v, _ := cm.Get(k)
		c.walkValueString(v)
	}
}

func (c *collector) walkSources(cl recipe.ConditionalList[recipe.SourceEntry]) {
	for _, expr := range cl.Conditions() {
		c.addExprFreeIdents(expr)
	}
	for _, se := range cl.Items() {
		switch se.Kind {
		case recipe.SourceURL:
			for _, u := range se.URLs {
				c.walkValueString(u)
			}
			if se.Sha256 != nil {
				c.walkValueString(*se.Sha256)
			}
			if se.Md5 != nil {
				c.walkValueString(*se.Md5)
			}
			if se.FileName != nil {
				c.walkValueString(*se.FileName)
			}
			for _, p := range se.URLPatches {
				c.walkValueString(p)
			}
		case recipe.SourceGit:
			c.walkValueString(se.GitURL)
			if se.Rev != nil {
				c.walkValueString(*se.Rev)
			}
			if se.Tag != nil {
				c.walkValueString(*se.Tag)
			}
			if se.Branch != nil {
				c.walkValueString(*se.Branch)
			}
			if se.Depth != nil {
				c.walkValueInt(*se.Depth)
			}
			c.walkValueBool(se.Lfs)
		case recipe.SourcePath:
			c.walkValueString(se.Path)
			for _, v := range se.Include {
				c.walkValueString(v)
			}
			for _, v := range se.Exclude {
				c.walkValueString(v)
			}
			c.walkValueBool(se.UseGitignore)
			for _, p := range se.PathPatches {
				c.walkValueString(p)
			}
		}
	}
}

func (c *collector) walkBuild(b *recipe.BuildBlock) {
	if b == nil {
		return
	}
	c.walkValueInt(b.Number)
	c.walkValueString(b.String)
	c.walkValueString(b.NoArch)
	c.walkConditionalStrings(b.Script)
	for _, v := range b.Env {
		c.walkValueString(v)
	}
}

func (c *collector) walkRequirements(rb *recipe.RequirementsBlock) {
	if rb == nil {
		return
	}
	c.walkConditionalDeps(rb.Build)
	c.walkConditionalDeps(rb.Host)
	c.walkConditionalDeps(rb.Run)
	c.walkConditionalDeps(rb.RunConstraints)
	c.walkConditionalDeps(rb.RunExports.NoArch)
	c.walkConditionalDeps(rb.RunExports.Strong)
	c.walkConditionalDeps(rb.RunExports.StrongConstraints)
	c.walkConditionalDeps(rb.RunExports.Weak)
	c.walkConditionalDeps(rb.RunExports.WeakConstraints)
	c.walkConditionalStrings(rb.IgnoreRunExports)
}

func (c *collector) walkTests(tl recipe.ConditionalList[recipe.TestEntry]) {
	for _, expr := range tl.Conditions() {
		c.addExprFreeIdents(expr)
	}
	for _, te := range tl.Items() {
		c.walkConditionalStrings(te.Script)
	}
}

func (c *collector) walkAbout(a *recipe.AboutBlock) {
	if a == nil {
		return
	}
	c.walkValueString(a.Home)
	c.walkValueString(a.License)
	c.walkValueString(a.Summary)
	c.walkValueString(a.Description)
}

