package main

import (
	"context"
	"fmt"
	"os"

	"github.com/FranksOps/llmsearch/internal/mcpserver"
	"github.com/FranksOps/llmsearch/internal/metrics"
	"github.com/spf13/cobra"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		transport string
		httpAddr  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := root.cfg, root.logger
			if cmd.Flags().Changed("transport") {
				cfg.Server.Transport = transport
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.Server.HTTPAddr = httpAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Error("shutdown failed", "error", err)
				}
			}()

			if cfg.Server.MetricsPort > 0 {
				ms, err := metrics.Start(cfg.Server.MetricsPort, logger)
				if err != nil {
					return fmt.Errorf("metrics server: %w", err)
				}
				defer ms.Stop(context.WithoutCancel(ctx))
			}

			srv := mcpserver.New(cfg.Server.Name, version, a.pipeline, logger)
			logger.Info("starting llm-search",
				"version", version,
				"transport", cfg.Server.Transport,
				"renderer", cfg.Crawl.Renderer,
				"audit", cfg.Audit.Backend,
			)

			switch cfg.Server.Transport {
			case "http":
				err = srv.ServeHTTP(ctx, cfg.Server.HTTPAddr)
			default:
				err = srv.ServeStdio(ctx, os.Stdin, os.Stdout)
			}
			logger.Info("llm-search stopped")
			return err
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "stdio or http (overrides server.transport)")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "listen address for the http transport")
	return cmd
}
