package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/altafino/order-mail-extractor/internal/app"
	"github.com/altafino/order-mail-extractor/internal/config"
	"github.com/altafino/order-mail-extractor/internal/logger"
	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/altafino/order-mail-extractor/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	settingsPath string
	logLevel     string
	logFormat    string
	serverPort   int
	jobType      string
	log          *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "order-mail-extractor",
	Short: "Order and estimate extraction from a mailbox",
	Long: `A service that reads new mail over IMAP or POP3, routes it by sender rules,
classifies orders and estimates and extracts their data into per-customer folders.`,
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the HTTP API",
	RunE:  runServe,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run a single mailbox pass and exit",
	RunE:  runIngest,
}

func init() {
	// default logger until the settings are loaded
	log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	viper.SetEnvPrefix("OME")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&settingsPath, "config", "./config/settings.yaml", "settings file")
	flags.StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "override logging format (text, json, dev)")
	flags.IntVar(&serverPort, "port", 0, "override server port")

	viper.BindPFlag("config", flags.Lookup("config"))
	viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	viper.BindPFlag("logging.format", flags.Lookup("log-format"))
	viper.BindPFlag("server.port", flags.Lookup("port"))

	ingestCmd.Flags().StringVar(&jobType, "type", string(models.JobPlain), "job type (plain, rule-preloaded)")

	rootCmd.AddCommand(serveCmd, ingestCmd, CreateOAuth2Command())
}

// loadSettings opens the settings store and applies flag and environment
// overrides to the process logger. Overrides are not written back to disk.
func loadSettings() (*config.Store, error) {
	store, err := config.Load(viper.GetString("config"), log)
	if err != nil {
		return nil, err
	}

	cfg := store.Get()
	applyOverrides(cfg)
	log = logger.Setup(cfg)
	slog.SetDefault(log)

	return store, nil
}

func applyOverrides(cfg *types.Settings) {
	if v := viper.GetString("logging.level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := viper.GetString("logging.format"); v != "" {
		cfg.Logging.Format = v
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	store, err := loadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	a, err := app.New(store, log)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(ctx, viper.GetInt("server.port")); err != nil {
		a.Stop()
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-ctx.Done()
	log.Info("shutting down application")
	a.Stop()
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	store, err := loadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	a, err := app.New(store, log)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer a.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result, err := a.RunOnce(ctx, models.JobType(jobType))
	if err != nil {
		return err
	}

	fmt.Printf("processed: %d, skipped: %d, errors: %d\n",
		result.ProcessedCount, result.SkippedCount, len(result.Errors))
	for _, e := range result.Errors {
		fmt.Printf("  %s\n", e)
	}
	return nil
}
