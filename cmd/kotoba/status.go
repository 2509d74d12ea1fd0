package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kotoba/internal/cli"
	"github.com/hyperjump/kotoba/internal/storage"
)

func statusCmd(g *globalFlags) *cobra.Command {
	var output, serverURL string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show lexicon and index status",
		Long: `Show stored word counts per language, source count and disk usage.

With --server, the running server's status is shown, including the live index
generation and semantic availability.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			var st cli.Status
			if serverURL != "" {
				if err := getJSON(serverURL, "/api/v1/status", nil, &st); err != nil {
					return fmt.Errorf("status failed: %w", err)
				}
				return cli.WriteStatus(cmd.OutOrStdout(), st, format)
			}

			c, err := setup(g)
			if err != nil {
				return err
			}
			defer c.Close()
			if st, err = collectStatus(context.Background(), c); err != nil {
				return err
			}
			return cli.WriteStatus(cmd.OutOrStdout(), st, format)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	cmd.Flags().StringVar(&serverURL, "server", "", "query a running kotoba server")
	return cmd
}

// collectStatus reads counts from storage without building the index.
func collectStatus(ctx context.Context, c *Components) (cli.Status, error) {
	var st cli.Status
	var err error
	if st.StoredWords, err = c.Storage.CountWords(ctx); err != nil {
		return st, err
	}
	sources, err := c.Storage.ListSources(ctx)
	if err != nil {
		return st, err
	}
	st.Sources = len(sources)
	if st.Languages, err = c.Storage.Languages(ctx); err != nil {
		return st, err
	}
	cfg := c.Config.Storage
	if st.DiskUsage, err = storage.DiskUsage(map[string]string{
		"database":     cfg.DatabasePath,
		"vector_index": cfg.VectorIndexPath,
		"embeddings":   cfg.EmbeddingCachePath,
	}); err != nil {
		return st, err
	}
	st.DiskTotal, err = storage.DiskUsageBytes(cfg.DatabasePath, cfg.VectorIndexPath, cfg.EmbeddingCachePath)
	return st, err
}
