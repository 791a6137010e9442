package powchain

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/liftedinit/powchain/internal/client"
	"github.com/liftedinit/powchain/internal/config"
	"github.com/liftedinit/powchain/internal/consensus"
	"github.com/liftedinit/powchain/internal/extractor"
	"github.com/liftedinit/powchain/internal/metrics"
	"github.com/liftedinit/powchain/internal/output"
	"github.com/liftedinit/powchain/internal/server"
)

var ExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the chain of a node to various output formats",
	Long:  `Export the validated chain of a running node. The export is a one-way mirror and is never read back by a node.`,
}

func init() {
	ExportCmd.PersistentFlags().Int("difficulty", consensus.DefaultDifficulty, "Difficulty the exported chain is validated against")
	ExportCmd.PersistentFlags().UintP("max-retries", "r", 3, "Maximum number of retries of a failed chain request")
	ExportCmd.PersistentFlags().Duration("peer-timeout", 30*time.Second, "Timeout of a single chain request")
	ExportCmd.PersistentFlags().Bool("live", false, "Enable live monitoring")
	ExportCmd.PersistentFlags().Duration("poll-interval", 5*time.Second, "Interval between chain polls in live mode")
	ExportCmd.PersistentFlags().Bool("reindex", false, "Discard the existing export and export the whole chain again")
	ExportCmd.PersistentFlags().Bool("enable-prometheus", false, "Enable Prometheus metrics server")
	ExportCmd.PersistentFlags().String("prometheus-addr", "0.0.0.0:2112", "Address and port of the Prometheus metrics server")

	ExportCmd.AddCommand(jsonCmd)
	ExportCmd.AddCommand(tsvCmd)
	ExportCmd.AddCommand(PostgresCmd)
}

func loadExportConfig() (config.ExportConfig, error) {
	exportConfig := config.LoadExportConfigFromCLI()
	if err := exportConfig.Validate(); err != nil {
		return exportConfig, fmt.Errorf("invalid export configuration: %w", err)
	}
	slog.Debug("Command-line arguments", "exportConfig", exportConfig)
	return exportConfig, nil
}

// export mirrors the chain of the node at address into outputHandler until the
// export is done, or until interrupted in live mode.
func export(ctx context.Context, address string, outputHandler output.OutputHandler, cfg config.ExportConfig, collector ...prometheus.Collector) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.EnablePrometheus {
		metricsServer, err := metrics.CreateMetricsServer(cfg.PrometheusAddr, collector...)
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		defer func() {
			if err := server.Shutdown(metricsServer, shutdownTimeout); err != nil {
				slog.Error("Failed to stop metrics server", "error", err)
			}
		}()
	}

	fetcher := client.NewClient(cfg.PeerTimeout, cfg.MaxRetries)
	if err := extractor.Extract(ctx, fetcher, address, outputHandler, cfg); err != nil {
		return fmt.Errorf("failed to export chain: %w", err)
	}
	slog.Info("Export done", "address", address)
	return nil
}
