package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/server"
	"github.com/hyperjump/kotoba/internal/watcher"
)

func serverCmd(g *globalFlags) *cobra.Command {
	var (
		host  string
		port  int
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API",
		Long: `Import the configured lexicon sources, build the indices and serve the search API.

With --watch (or watch.enabled), source files are watched and changed files are
re-imported and the index rebuilt in the background.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(g)
			if err != nil {
				return err
			}
			defer c.Close()
			cfg := c.Config
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("watch") {
				cfg.Watch.Enabled = watch
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if len(cfg.Lexicon.Sources) > 0 {
				st, err := c.Importer.ImportAll(ctx, cfg.Lexicon.Sources)
				if err != nil {
					return err
				}
				c.Logger.Info("Imported lexicon sources",
					zap.Int("files", st.Files), zap.Int("unchanged", st.Skipped), zap.Int("words", st.Words))
			}
			if err := c.buildEngine(ctx, false); err != nil {
				return err
			}

			var sw server.SourceWatcher
			if cfg.Watch.Enabled && len(cfg.Lexicon.Sources) > 0 {
				w := watcher.NewWatcher(cfg.Lexicon.Sources, c.Importer.Accepts, func(ch watcher.Change) {
					st, err := c.Importer.Apply(ctx, ch.Updated, ch.Removed)
					if err != nil {
						c.Logger.Error("Failed to apply source changes", zap.Error(err))
						return
					}
					if !st.Changed() {
						return
					}
					if err := c.Engine.Rebuild(ctx); err != nil {
						c.Logger.Error("Rebuild after source change failed", zap.Error(err))
					}
				},
					watcher.WithLogger(c.Logger),
					watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMs)*time.Millisecond),
				)
				if err := w.Start(ctx); err != nil {
					return fmt.Errorf("failed to watch sources: %w", err)
				}
				defer w.Stop()
				sw = w
			}

			srv := server.NewServer(c.Engine, c.Importer, c.Storage, cfg, c.Logger, sw)
			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			select {
			case err := <-errCh:
				return fmt.Errorf("server error: %w", err)
			case <-sigCh:
			}

			c.Logger.Info("Shutting down server")
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			return srv.Stop(shutdownCtx)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&host, "host", "", "listen host (default server.host)")
	fl.IntVar(&port, "port", 0, "listen port (default server.port)")
	fl.BoolVar(&watch, "watch", false, "watch lexicon sources and rebuild on change (default watch.enabled)")
	return cmd
}
