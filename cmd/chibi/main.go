package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fjod/chibi-storefront/internal/config"
	"github.com/fjod/chibi-storefront/internal/logger"
	"github.com/fjod/chibi-storefront/internal/storefront"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration
	asJSON     bool

	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chibi",
	Short: "Chibi Fitness storefront client",
	Long: `chibi talks to the Chibi Fitness storefront API: browse products, keep a
cart and favorites as a guest or signed-in user, and manage products as an
administrator.

Session tokens, the guest cart key and guest favorites are kept in the
configured state store (sqlite by default) between runs.

Run "chibi serve" to expose the same session as a local REST gateway.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		log, err = logger.New(cfg.Log, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		zap.ReplaceGlobals(log)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall command timeout")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	rootCmd.AddCommand(loginCmd, logoutCmd, registerCmd, whoamiCmd)
	rootCmd.AddCommand(productsCmd, productCmd, categoriesCmd)
	rootCmd.AddCommand(cartCmd, favoritesCmd, adminCmd)
	rootCmd.AddCommand(serveCmd, eventsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// withApp builds the storefront, restores the persisted session, runs fn
// and prints the notifications it produced.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *storefront.App) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	app, err := storefront.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Warn("closing storefront failed", zap.Error(err))
		}
	}()

	if err := app.Start(ctx); err != nil {
		return err
	}
	runErr := fn(ctx, app)
	printNotifications(cmd.ErrOrStderr(), app)
	return runErr
}

func printNotifications(w io.Writer, app *storefront.App) {
	for _, n := range app.Notifications.List() {
		fmt.Fprintf(w, "[%s] %s\n", n.Severity, n.Message)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
