package cmd

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/radiotracker/cmd/scrape"
	"github.com/tphakala/radiotracker/cmd/stations"
	"github.com/tphakala/radiotracker/cmd/worker"
	"github.com/tphakala/radiotracker/internal/buildinfo"
	"github.com/tphakala/radiotracker/internal/conf"
	"github.com/tphakala/radiotracker/internal/logger"
)

const sentryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command
func RootCommand(info *buildinfo.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "radiotracker",
		Short:         "Radio now-playing tracker",
		Long:          "Polls radio stations for what is playing, keeps a play history and alerts on repeats during work hours.",
		Version:       info.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		worker.Command(info),
		scrape.Command(),
		stations.Command(),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initialize(configFile, info)
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		sentry.Flush(sentryFlushTimeout)
		_ = logger.Global().Close()
	}

	return rootCmd
}

// initialize loads configuration and sets up logging and error reporting
// before any subcommand runs.
func initialize(configFile string, info *buildinfo.Context) error {
	settings, err := conf.Load(configFile)
	if err != nil {
		return err
	}

	centralLogger, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(centralLogger)

	if settings.Scraper.UserAgent == "" {
		settings.Scraper.UserAgent = info.UserAgent()
	}

	if err := initSentry(settings, info); err != nil {
		// Error reporting is optional; the process keeps running without it.
		logger.Global().Module("main").Warn("sentry initialization failed", logger.Error(err))
	}

	logger.Global().Module("main").Debug("configuration loaded",
		logger.String("version", info.GetVersion()),
		logger.String("database", settings.Database.Type),
		logger.Int("stations", len(settings.Stations)))
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config file (default searches the standard locations)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("main.debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
