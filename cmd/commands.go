package cmd

import (
	"context"
	"fmt"
	"time"

	"mediarelay/pkg/channel/telegram"
	"mediarelay/pkg/gateway"

	"github.com/spf13/cobra"
)

var commandsChatID int64

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "Register the bot command menus",
	Long:  "Installs the private and group command menus on every Telegram scope.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, log, err := loadRuntime("cmd.commands")
		if err != nil {
			fmt.Println(err)
			return
		}

		adapter, err := telegram.NewAdapter(cfg.Telegram, log)
		if err != nil {
			log.Error("Failed to configure telegram channel", "error", err)
			return
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		if err := gateway.RegisterCommands(ctx, adapter.Messenger(), commandsChatID); err != nil {
			log.Error("Command menu registration failed", "error", err)
			return
		}
		fmt.Println("Command menus registered.")
	},
}

func init() {
	rootCmd.AddCommand(commandsCmd)
	commandsCmd.Flags().Int64Var(&commandsChatID, "chat-id", 0, "also force the private menu onto this chat")
}
