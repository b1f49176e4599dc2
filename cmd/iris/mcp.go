package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/retz8/iris/internal/mcpserver"
	"github.com/retz8/iris/internal/telemetry"
)

var metricsAddr string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve analyze_file and file_structure as MCP tools over stdio",
	Long: `Run an MCP server on stdin/stdout so editors and agents can call IRIS.

Example client configuration:
  {"command": "iris", "args": ["mcp", "--metrics-addr", "127.0.0.1:9464"]}`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	mcpCmd.Flags().StringVar(&offlineScript, "offline-script", "", "replay replies from a YAML or JSON script instead of calling a provider")
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sinks []telemetry.Sink
	if metricsAddr != "" {
		prom := telemetry.NewPrometheusSink()
		sinks = append(sinks, prom)

		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		logger.WithField("addr", metricsAddr).Info("serving metrics")
	}

	a, err := newApp(ctx, offlineScript, sinks...)
	if err != nil {
		return err
	}
	defer a.Close()

	return mcpserver.New(a.analyzer, Version).Run(ctx)
}
