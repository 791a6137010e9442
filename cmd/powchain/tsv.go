package powchain

import (
	"log/slog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/liftedinit/powchain/internal/config"
	"github.com/liftedinit/powchain/internal/output"
)

var tsvCmd = &cobra.Command{
	Use:     "tsv [node-address] [flags]",
	Short:   "Export the chain to TSV files",
	Args:    cobra.ExactArgs(1),
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		exportConfig, err := loadExportConfig()
		if err != nil {
			return err
		}
		tsvConfig := config.LoadTSVConfigFromCLI()
		if err := tsvConfig.Validate(); err != nil {
			return errors.WithMessage(err, "invalid TSV configuration")
		}
		slog.Debug("Command-line argument", "tsv-out", tsvConfig.Output)

		outputHandler, err := output.NewTSVOutputHandler(tsvConfig.Output)
		if err != nil {
			return errors.WithMessage(err, "failed to create TSV output handler")
		}
		defer outputHandler.Close()

		return export(cmd.Context(), args[0], outputHandler, exportConfig)
	},
}

func init() {
	tsvCmd.Flags().StringP("tsv-out", "o", "tsv", "Output directory")
}
