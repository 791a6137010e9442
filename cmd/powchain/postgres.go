package powchain

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/liftedinit/powchain/internal/config"
	sqlcollectors "github.com/liftedinit/powchain/internal/metrics/collectors/sql"
	"github.com/liftedinit/powchain/internal/output/postgresql"
)

var PostgresCmd = &cobra.Command{
	Use:     "postgres [node-address] [flags]",
	Short:   "Export the chain to a PostgreSQL database",
	Args:    cobra.ExactArgs(1),
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		exportConfig, err := loadExportConfig()
		if err != nil {
			return err
		}
		postgresConfig := config.LoadPostgresConfigFromCLI()
		if err := postgresConfig.Validate(); err != nil {
			return fmt.Errorf("invalid PostgreSQL configuration: %w", err)
		}

		outputHandler, err := postgresql.NewPostgresOutputHandler(cmd.Context(), postgresConfig.ConnString, postgresConfig.MaxConns)
		if err != nil {
			return fmt.Errorf("failed to create PostgreSQL output handler: %w", err)
		}
		defer outputHandler.Close()

		latest, err := outputHandler.GetLatestBlock(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get the latest exported block: %w", err)
		}
		if latest != nil {
			slog.Info("Existing export found", "height", latest.Index)
		}

		var collectors []prometheus.Collector
		if exportConfig.EnablePrometheus {
			db := outputHandler.DB()
			defer db.Close()

			collectors, err = sqlcollectors.DefaultRegistry.CreateCollectors(db)
			if err != nil {
				return fmt.Errorf("failed to create SQL collectors: %w", err)
			}
		}

		return export(cmd.Context(), args[0], outputHandler, exportConfig, collectors...)
	},
}

func init() {
	PostgresCmd.Flags().StringP("postgres-conn", "p", "", "PostgreSQL connection string")
	PostgresCmd.Flags().Uint("max-conns", 10, "Maximum number of PostgreSQL connections")
}
