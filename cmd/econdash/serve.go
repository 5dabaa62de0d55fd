package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"econdash/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if host, _ := cmd.Flags().GetString("host"); host != "" {
			cfg.API.Host = host
		}
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.API.Port = port
		}
		order, err := cfg.Forecast.Order()
		if err != nil {
			return err
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := api.NewServer(a.service, api.Config{
			CORSOrigins:  cfg.API.CORSOrigins,
			DefaultOrder: &order,
		}, logger)

		fmt.Printf("econdash API listening on %s\n", cfg.API.Addr())
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			a.warm(gctx, cfg.Catalog.RefreshOnStart)
			a.catalog.Run(gctx, cfg.Catalog.RefreshInterval)
			return nil
		})
		g.Go(func() error {
			return srv.ListenAndServe(gctx, cfg.API.Addr())
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().String("host", "", "listen host override")
	serveCmd.Flags().Int("port", 0, "listen port override")
	rootCmd.AddCommand(serveCmd)
}
