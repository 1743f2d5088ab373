package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"

	"github.com/prefix-dev/rattler-build-go/internal/pipeline"
	"github.com/prefix-dev/rattler-build-go/internal/rlog"
	"github.com/prefix-dev/rattler-build-go/recipe"
)

// plannedOutput is the JSON-facing summary of one stage1.Output after
// planning: just the fields a caller needs to locate/identify a build
// (spec.md §4.4's hash/build-string/prefix), not the full rendered recipe.
type plannedOutput struct {
	Name        string            `json:"name"`
	Version     string            `json:"version,omitempty"`
	Hash        string            `json:"hash"`
	BuildString string            `json:"build_string"`
	Prefix      string            `json:"prefix"`
	Variant     map[string]string `json:"variant"`
}

type plannedVariantJSON struct {
	Variant map[string]string `json:"variant"`
	Outputs []plannedOutput   `json:"outputs"`
}

func planCommand() *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "render a recipe's variant matrix and plan every output's build order, hash and build string",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "recipe",
				Aliases:  []string{"r"},
				Required: true,
				Usage:    "path to the recipe YAML file",
			},
			&cli.StringFlag{
				Name:    "variant-config",
				Aliases: []string{"m"},
				Usage:   "path to the variant_config.yaml; omitted means no variant overrides",
			},
			&cli.StringFlag{
				Name:  "target-platform",
				Value: "linux-64",
				Usage: "target_platform (spec.md §4.2)",
			},
			&cli.StringFlag{
				Name:  "build-platform",
				Value: "linux-64",
				Usage: "build_platform",
			},
			&cli.StringFlag{
				Name:  "host-platform",
				Value: "linux-64",
				Usage: "host_platform",
			},
			&cli.StringSliceFlag{
				Name:  "channel",
				Usage: "channel target, can be repeated (order is significant)",
			},
			&cli.StringSliceFlag{
				Name:  "channel-source",
				Usage: "channel source, can be repeated",
			},
			&cli.StringSliceFlag{
				Name:  "env",
				Usage: "environment variable exposed to template evaluation, format key=value, can be repeated",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			recipeData, err := os.ReadFile(cmd.String("recipe"))
			if err != nil {
				return errors.Wrap(err, "reading recipe")
			}

			var variantConfigData []byte
			variantConfigPath := cmd.String("variant-config")
			if variantConfigPath != "" {
				variantConfigData, err = os.ReadFile(variantConfigPath)
				if err != nil {
					return errors.Wrap(err, "reading variant config")
				}
			}

			env, err := parseEnvPairs(cmd.StringSlice("env"))
			if err != nil {
				return err
			}

			opts := pipeline.Options{
				Platforms: pipeline.Platforms{
					Target: cmd.String("target-platform"),
					Build:  cmd.String("build-platform"),
					Host:   cmd.String("host-platform"),
				},
				ChannelTargets: cmd.StringSlice("channel"),
				ChannelSources: cmd.StringSlice("channel-source"),
				Env:            env,
			}

			rlog.G(ctx).WithField("recipe", cmd.String("recipe")).Info("planning recipe")

			variants, err := pipeline.Run(ctx, recipeData, variantConfigData, cmd.String("recipe"), variantConfigPath, opts)
			if err != nil {
				return err
			}

			out := make([]plannedVariantJSON, len(variants))
			for i, v := range variants {
				pv := plannedVariantJSON{
					Variant: stringifyVariant(v.Variant),
					Outputs: make([]plannedOutput, len(v.Outputs)),
				}
				for j, o := range v.Outputs {
					pv.Outputs[j] = plannedOutput{
						Name:        o.Name,
						Version:     o.Version,
						Hash:        o.Hash,
						BuildString: o.BuildString,
						Prefix:      o.Prefix,
						Variant:     stringifyVariant(o.EffectiveVariant),
					}
				}
				out[i] = pv
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func stringifyVariant(v recipe.VariantSubset) map[string]string {
	out := make(map[string]string, len(v))
	for k, val := range v {
		out[string(k)] = fmt.Sprint(val)
	}
	return out
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, errors.Errorf("invalid --env %q: expected key=value", p)
		}
		out[k] = v
	}
	return out, nil
}
