package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kotoba/internal/cli"
	"github.com/hyperjump/kotoba/internal/models"
)

type wordFlags struct {
	output    string
	minScore  float64
	semantic  bool
	languages []string
	limit     int
	broad     bool
	serverURL string
}

func wordCmd(g *globalFlags) *cobra.Command {
	f := &wordFlags{}
	cmd := &cobra.Command{
		Use:   "word [flags] <query>",
		Short: "Search the lexicon",
		Long: `Search the lexicon and print ranked matches.

The query is all remaining arguments joined by spaces, so multi-word phrases work
with or without quotes. Each result carries the method that found it: exact, fuzzy,
semantic or ai-fallback. Stages that timed out or were unavailable are listed as
degraded; the remaining results are still returned.`,
		Example: `  kotoba word ephemeral
  kotoba word by and large
  kotoba word --min-score 0.8 --lang en recieve
  kotoba word --semantic=false --broad apple
  kotoba word --output json --server http://localhost:8080 glad`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWord(cmd, g, f, args)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.output, "output", "o", "text", "output format: text, compact (one word per line) or json")
	fl.Float64Var(&f.minScore, "min-score", 0, "minimum score; cannot go below search.min_score")
	fl.BoolVar(&f.semantic, "semantic", true, "enable semantic search (default from search.enable_semantic)")
	fl.StringSliceVar(&f.languages, "lang", nil, "restrict to language codes, e.g. --lang en,fr")
	fl.IntVar(&f.limit, "limit", 0, "maximum number of results (default search.default_limit)")
	fl.BoolVar(&f.broad, "broad", false, "run fuzzy matching even when an exact match exists")
	fl.StringVar(&f.serverURL, "server", "", "query a running kotoba server instead of opening the index")
	return cmd
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting (e.g. "by and large" vs by and large).
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchOptions maps flags to options, leaving unset flags to the configured defaults.
func (f *wordFlags) searchOptions(cmd *cobra.Command) models.SearchOptions {
	opts := models.SearchOptions{
		Languages:   f.languages,
		MaxResults:  f.limit,
		BroadRecall: f.broad,
	}
	if cmd.Flags().Changed("min-score") {
		opts.MinScore = models.Float64(f.minScore)
	}
	if cmd.Flags().Changed("semantic") {
		opts.EnableSemantic = models.Bool(f.semantic)
	}
	return opts
}

func runWord(cmd *cobra.Command, g *globalFlags, f *wordFlags, args []string) error {
	format, err := cli.ParseOutputFormat(f.output)
	if err != nil {
		return err
	}
	query := buildSearchQuery(args)
	opts := f.searchOptions(cmd)
	if err := opts.Validate(); err != nil {
		return err
	}

	var resp *models.SearchResponse
	if f.serverURL != "" {
		resp = &models.SearchResponse{}
		req := models.SearchRequest{Query: query, SearchOptions: opts}
		if err := postJSON(f.serverURL, "/api/v1/search", req, resp); err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
	} else {
		c, err := setup(g)
		if err != nil {
			return err
		}
		defer c.Close()
		ctx := context.Background()
		if err := c.buildEngine(ctx, false); err != nil {
			return err
		}
		if resp, err = c.Engine.Search(ctx, query, opts); err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
	}
	return cli.WriteSearchResults(cmd.OutOrStdout(), resp, format)
}

func prefixCmd(g *globalFlags) *cobra.Command {
	var (
		output    string
		languages []string
		limit     int
		serverURL string
	)
	cmd := &cobra.Command{
		Use:     "prefix [flags] <prefix>",
		Short:   "List lexicon entries starting with a prefix",
		Example: "  kotoba prefix app\n  kotoba prefix --lang fr --limit 5 pom",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			prefix := buildSearchQuery(args)
			var words []models.Word
			if serverURL != "" {
				q := url.Values{"p": {prefix}}
				if limit > 0 {
					q.Set("limit", strconv.Itoa(limit))
				}
				if len(languages) > 0 {
					q.Set("lang", strings.Join(languages, ","))
				}
				var out struct {
					Words []models.Word `json:"words"`
				}
				if err := getJSON(serverURL, "/api/v1/prefix", q, &out); err != nil {
					return fmt.Errorf("prefix failed: %w", err)
				}
				words = out.Words
			} else {
				c, err := setup(g)
				if err != nil {
					return err
				}
				defer c.Close()
				// Prefix lookups never reach the semantic stage.
				c.Config.Search.EnableSemantic = models.Bool(false)
				if err := c.buildEngine(context.Background(), false); err != nil {
					return err
				}
				if words, err = c.Engine.Prefix(prefix, languages, limit); err != nil {
					return fmt.Errorf("prefix failed: %w", err)
				}
			}
			return cli.WriteWords(cmd.OutOrStdout(), words, format)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&output, "output", "o", "text", "output format: text, compact or json")
	fl.StringSliceVar(&languages, "lang", nil, "restrict to language codes")
	fl.IntVar(&limit, "limit", 0, "maximum number of entries (default search.default_limit)")
	fl.StringVar(&serverURL, "server", "", "query a running kotoba server instead of opening the index")
	return cmd
}

func absPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, err
		}
		out = append(out, abs)
	}
	return out, nil
}
