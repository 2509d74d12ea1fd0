package main

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kotoba/internal/config"
)

func initCmd(g *globalFlags) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "init [paths...]",
		Short: "Import lexicon sources and build the indices",
		Long: `Import wordlists into the lexicon database, then build the exact, fuzzy and
semantic indices and persist the vector index so later runs start warm.

Paths may be files or directories; directories are imported recursively. Without
paths, lexicon.sources from the config is used. A source's language is taken from
its path ("words.fr.txt", "fr/words.txt") or lexicon.default_language.`,
		Example: `  kotoba init ~/wordlists
  kotoba init --save en.txt fr/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, g, args, save)
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "add the given paths to lexicon.sources in the config file")
	return cmd
}

func runInit(cmd *cobra.Command, g *globalFlags, args []string, save bool) error {
	c, err := setup(g)
	if err != nil {
		return err
	}
	defer c.Close()

	sources, err := initSources(c.Config, args)
	if err != nil {
		return err
	}
	ctx := context.Background()
	st, err := c.Importer.ImportAll(ctx, sources)
	if err != nil {
		return err
	}
	if err := c.buildEngine(ctx, c.Config.Search.SemanticEnabled()); err != nil {
		return err
	}
	es := c.Engine.Stats()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Imported %d file(s), %d unchanged, %d removed (%d words)\n", st.Files, st.Skipped, st.Removed, st.Words)
	fmt.Fprintf(out, "Index %s ready: %d words", es.Generation, es.Words)
	if es.SemanticAvailable {
		fmt.Fprintf(out, ", %d vectors", es.SemanticVectors)
	}
	fmt.Fprintln(out)

	if save && len(args) > 0 {
		path := c.ConfigPath
		if path == "" {
			path = g.configPath
		}
		if err := saveSources(path, c.Config, sources); err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved sources to %s\n", path)
	}
	return nil
}

// initSources returns the absolute source paths to import: args when given, else the
// configured sources.
func initSources(cfg *config.Config, args []string) ([]string, error) {
	if len(args) == 0 {
		if len(cfg.Lexicon.Sources) == 0 {
			return nil, errors.New("no lexicon sources: pass paths or set lexicon.sources")
		}
		return cfg.Lexicon.Sources, nil
	}
	return absPaths(args)
}

func saveSources(path string, cfg *config.Config, sources []string) error {
	for _, s := range sources {
		if !slices.Contains(cfg.Lexicon.Sources, s) {
			cfg.Lexicon.Sources = append(cfg.Lexicon.Sources, s)
		}
	}
	return config.Save(path, cfg)
}
