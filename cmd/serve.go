package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"mediarelay/pkg/batch"
	"mediarelay/pkg/catalog"
	"mediarelay/pkg/channel/telegram"
	"mediarelay/pkg/config"
	"mediarelay/pkg/gateway"
	"mediarelay/pkg/kv"
	"mediarelay/pkg/router"
	"mediarelay/pkg/storage"
	"mediarelay/pkg/upload"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the upload relay bot",
	Long:  "Runs the Telegram bot with webhook, health and readiness endpoints until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, log, err := loadRuntime("cmd.serve")
		if err != nil {
			fmt.Println(err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, closeStore, err := kv.Open(runCtx, cfg.Store)
		if err != nil {
			log.Error("Failed to open coordination store", "backend", cfg.Store.Backend, "error", err)
			return
		}
		defer closeStore()

		svc, err := buildService(cfg, store, log)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}

		log.Info("Relay started", "mode", cfg.Telegram.Mode, "store", cfg.Store.Backend)
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Relay runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// buildService wires the transport, storage client, coordinator and router into a gateway service.
func buildService(cfg *config.Config, store kv.Store, log *slog.Logger) (*gateway.Service, error) {
	adapter, err := telegram.NewAdapter(cfg.Telegram, log)
	if err != nil {
		return nil, fmt.Errorf("configure telegram channel: %w", err)
	}
	messenger := adapter.Messenger()

	client, err := storage.New(cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("configure storage client: %w", err)
	}

	source := catalog.NewEnvSource(cfg.Catalog, log)
	downloads := resty.New().SetTimeout(cfg.Storage.RequestTimeout())
	dispatcher := upload.NewDispatcher(messenger, client, downloads, cfg.Batch.MaxParallel, log)

	jitterMin, jitterMax := cfg.Batch.Jitter()
	coordinator := batch.New(store, messenger, batch.Options{
		TTL:       cfg.Store.TTL(),
		JitterMin: jitterMin,
		JitterMax: jitterMax,
	}, log)

	location := cfg.Catalog.Location()
	presses := router.New(messenger, source, coordinator, dispatcher, client, router.Options{
		PageSize: cfg.Catalog.PageSize,
		Location: location,
	}, log)

	handler := gateway.NewHandler(messenger, source, coordinator, presses, gateway.HandlerOptions{Location: location}, log)

	return gateway.NewService(cfg, adapter, handler.Handle, store, log)
}
