package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/surge-downloader/ferry/internal/config"
	"github.com/surge-downloader/ferry/internal/state"
	"github.com/surge-downloader/ferry/internal/utils"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// globalSettings is loaded once per invocation by initializeGlobalState
var globalSettings = config.DefaultSettings()

var rootCmd = &cobra.Command{
	Use:   "ferry",
	Short: "A resumable HTTP file transfer tool",
	Long: `Ferry fetches files over HTTP(S) with pause, resume and cancel.

Run 'ferry get <url>' for a foreground transfer, or 'ferry server' to keep a
daemon that other ferry commands talk to.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		return initializeGlobalState(verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		state.CloseDB()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Write debug-level logs")
	rootCmd.SetVersionTemplate("ferry version {{.Version}}\n")
}

// initializeGlobalState sets up directories, settings, the session store and logging
func initializeGlobalState(verbose bool) error {
	if err := config.EnsureDirs(); err != nil {
		return fmt.Errorf("failed to create config dirs: %w", err)
	}

	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using defaults\n", err)
		settings = config.DefaultSettings()
	}
	globalSettings = settings

	state.Configure(filepath.Join(config.GetStateDir(), "ferry.db"))

	utils.ConfigureDebug(config.GetLogsDir())
	utils.SetVerbose(verbose || settings.Logging.Debug)
	utils.CleanupLogs(settings.Logging.KeepLogs)
	utils.Debug("ferry %s (built %s) starting", Version, BuildTime)
	return nil
}

// defaultOutputDir picks the directory downloads land in when -o is absent
func defaultOutputDir(flag string) string {
	if flag != "" {
		return flag
	}
	if dir := globalSettings.General.DefaultDownloadDir; dir != "" {
		return dir
	}
	return "."
}
