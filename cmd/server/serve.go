package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/warp/oee-tracker/api"
	"github.com/warp/oee-tracker/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the line monitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.Get()

	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
	}()

	h := api.NewHandler(st, api.Options{
		Catalog:          catalog,
		OEE:              cfg.OEE.Calculator(),
		OfflineThreshold: cfg.Monitor.OfflineThreshold,
	})
	h.Monitor.Interval = cfg.Monitor.Interval

	router := api.NewRouter(h, api.RouterOptions{AllowedOrigins: cfg.HTTP.CORSOrigins})
	server := api.NewServer(cfg.HTTP.Address(), router, cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout)

	log.Info().
		Str("addr", cfg.HTTP.Address()).
		Str("store", cfg.Store.Driver).
		Strs("parts", catalog.Names()).
		Msg("oee tracker starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return h.Monitor.Run(gctx) })

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("oee tracker stopped")
	return nil
}
