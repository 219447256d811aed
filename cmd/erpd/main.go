// Command erpd runs the ERP data service and its offline tools.
package main

import (
	"os"

	"github.com/buildcore/erp-core/pkg/logger"
	"github.com/spf13/cobra"
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "erpd",
		Short:         "Document store and reporting service for construction-materials ERP data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), queryCmd(), tokenCmd())
	return root
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		logger.Errorf("%v", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}
