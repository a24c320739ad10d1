// Command nlquery runs the school ERP natural language query service and its
// operator tools.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"erp-nlquery/internal/common/config"
	"erp-nlquery/internal/common/logger"
)

var (
	cfg    *config.Config
	zapLog *zap.Logger
	appLog logger.Logger
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "nlquery",
		Short: "Natural language questions over the school ERP database",
		Long: `nlquery answers plain-English questions about timetables, attendance,
fees, marks and the rest of the school ERP. Questions are classified into a
fixed set of intents, checked against the caller's roles and answered from
parameterized SQL.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if configPath != "" {
				cfg, err = config.LoadFromFile(configPath)
			} else {
				cfg, err = config.Load()
			}
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
			appLog = logger.NewZapAdapter(zapLog)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if zapLog != nil {
				_ = zapLog.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: configs/config.yaml)")
	root.AddCommand(newServeCmd(), newClassifyCmd(), newIntentsCmd(), newSchemaCmd(), newWorkersCmd(), newTokenCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
