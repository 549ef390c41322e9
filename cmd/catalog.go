package cmd

import (
	"fmt"

	"mediarelay/pkg/catalog"
	"mediarelay/pkg/ui"

	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show the configured channels and directories",
	Long:  "Prints the channel and directory lists the bot offers, as resolved from the environment and config file.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, log, err := loadRuntime("cmd.catalog")
		if err != nil {
			fmt.Println(err)
			return
		}

		source := catalog.NewEnvSource(cfg.Catalog, log)
		fmt.Fprint(cmd.OutOrStdout(), ui.RenderCatalog(source.Channels(), source.Directories()))
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}
