package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/audiolibrelab/wavrecorder/internal/recorder"
	"github.com/audiolibrelab/wavrecorder/internal/server"
	"github.com/audiolibrelab/wavrecorder/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the wavrecorder web server to control recording via a web interface.
This allows you to start, pause and stop recordings from any device on the same network.

Prometheus metrics are exposed on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = cfg.Server.Port
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics, err := recorder.NewMetrics(reg)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}

		svc, err := service.New(cfg,
			service.WithLogger(slog.Default()),
			service.WithMetrics(metrics),
		)
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		defer svc.Close()

		srv := server.New(svc, port, reg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		slog.Info("wavrecorder web server starting", "port", port, "profile", cfg.Profile, "output_dir", cfg.Output.Directory)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(gctx) })
		g.Go(func() error { return svc.Run(gctx) })

		if err := g.Wait(); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}

		// Finalize a session still open at shutdown
		if err := svc.StopRecording(); err != nil {
			slog.Warn("Failed to stop recording on shutdown", "error", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "port for the web server (default from config, 8080)")
}
