package cmd

import (
	"context"
	"fmt"
	"time"

	"mediarelay/pkg/batch"
	"mediarelay/pkg/kv"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear media-group coordination state",
	Long:  "Deletes every batch and panel mapping key from the configured coordination store.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, log, err := loadRuntime("cmd.reset")
		if err != nil {
			fmt.Println(err)
			return
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		store, closeStore, err := kv.Open(ctx, cfg.Store)
		if err != nil {
			log.Error("Failed to open coordination store", "backend", cfg.Store.Backend, "error", err)
			return
		}
		defer closeStore()

		count, err := batch.New(store, nil, batch.Options{TTL: cfg.Store.TTL()}, log).Reset(ctx)
		if err != nil {
			log.Error("Reset failed", "deleted", count, "error", err)
			return
		}
		fmt.Printf("Removed %d coordination keys from the %s store.\n", count, cfg.Store.Backend)
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
