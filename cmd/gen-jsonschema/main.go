// Command gen-jsonschema emits JSON Schema for the two document shapes this
// module accepts on disk: a recipe and a variant config. Ported from
// Azure-dalec/cmd/gen-jsonschema, retargeted at recipe.Recipe and
// variantconfig.Config.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/prefix-dev/rattler-build-go/recipe"
	"github.com/prefix-dev/rattler-build-go/variantconfig"
)

func main() {
	var r jsonschema.Reflector
	if err := r.AddGoComments("github.com/prefix-dev/rattler-build-go", "./"); err != nil {
		panic(err)
	}

	schema := struct {
		Recipe        *jsonschema.Schema `json:"recipe"`
		VariantConfig *jsonschema.Schema `json:"variant_config"`
	}{
		Recipe:        r.Reflect(&recipe.Recipe{}),
		VariantConfig: r.Reflect(&variantconfig.Config{}),
	}

	dt, err := json.MarshalIndent(schema, "", "\t")
	if err != nil {
		panic(err)
	}

	if len(os.Args) > 1 {
		if err := os.MkdirAll(filepath.Dir(os.Args[1]), 0o755); err != nil {
			panic(err)
		}
		if err := os.WriteFile(os.Args[1], dt, 0o644); err != nil {
			panic(err)
		}
		return
	}
	fmt.Println(string(dt))
}
