package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "ingest/cmd/ingest-service/docs"
	"ingest/internal/config"
	"ingest/internal/constants"
	"ingest/internal/logger"
	"ingest/internal/transform"
	"ingest/pkg/logging"
)

var (
	configFile string
)

// @title           Ingest Service Ops API
// @version         1.0
// @description     Read-only operational API of the S3 notification ingestion service

// @BasePath  /api/v1

// @schemes   http

func main() {
	rootCmd := &cobra.Command{
		Use:          constants.ServiceName,
		Short:        "S3 notification ingestion service",
		Long:         "Consumes object-created notifications, normalizes each object with the transformer registered for its key prefix and writes NDJSON to the output bucket",
		SilenceUsage: true,
		RunE:         serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (optional, env variables may carry the whole configuration)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(transformersCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(earlyLog *logging.EarlyLog) (*config.Config, error) {
	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the ingestion loop and the ops server",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			cfg, err := loadConfig(earlyLog)
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting Ingest Service")

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				if shutdownErr := app.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
					log.ErrorwCtx(ctx, "Shutdown after failed start", "error", shutdownErr)
				}
				return err
			}

			runErr := app.Run(ctx)
			if runErr != nil {
				log.ErrorwCtx(ctx, "Service stopped with error", "error", runErr)
			}

			if err := app.Shutdown(context.WithoutCancel(ctx)); err != nil {
				log.ErrorwCtx(ctx, "Shutdown finished with errors", "error", err)
				if runErr == nil {
					runErr = err
				}
			}
			return runErr
		},
	}
}

func transformersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transformers",
		Short: "Validate the configuration and list the registered transformer keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(logging.NewEarlyLog())
			if err != nil {
				return err
			}

			registry, err := transform.NewRegistryFromConfig(cfg.Transformers)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, key := range registry.Keys() {
				fmt.Fprintln(out, key)
			}
			return nil
		},
	}
}
