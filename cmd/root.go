// Package cmd defines and implements the CLI commands for the imgscout executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/imgscout/internal/app"
	"github.com/JakeFAU/imgscout/internal/config"
	"github.com/JakeFAU/imgscout/internal/imagesearch"
	"github.com/JakeFAU/imgscout/internal/pipeline"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use, so tests can
// inject an App built over fakes.
type App interface {
	Close(ctx context.Context)
	Config() config.Config
	Logger() *zap.Logger
	Pipeline() *pipeline.Pipeline
	History() imagesearch.HistoryStore
	Serve(ctx context.Context) error
}

// appFactory builds the App for a config file path.
type appFactory func(ctx context.Context, cfgPath string) (App, error)

func buildApp(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a, err := app.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newRootCmd creates the root command with its subcommands.
func newRootCmd(factory appFactory) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "imgscout",
		Short: "Search an image site, preview the results, and save the ones you want.",
		Long: `imgscout renders an image site's search results page in a headless browser,
collects up to 20 image URLs, downloads them one by one with a short randomized
pause, and saves the images you pick as JPEG files.`,
		SilenceUsage: true,

		// Runs before every subcommand's RunE: build the App and stash it in the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := factory(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close(context.Background())
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./imgscout.yaml or $HOME/.imgscout/imgscout.yaml)")

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHistoryCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(buildApp).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
