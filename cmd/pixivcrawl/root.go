package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"pixivcrawl/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pixivcrawl",
	Short: "Search pixiv by keyword and download every new illustration",
	Long: `pixivcrawl searches pixiv for illustrations matching a list of keywords
and downloads the ones it has not seen before.

Every accepted illustration is appended to a CSV record (illust_data.csv) so
later runs skip it. Images are fetched at original resolution where
possible, falling back to the other format and then the compressed master.`,
	Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.SetColor(!noColor && os.Getenv("NO_COLOR") == "")

		if !quiet && cmd.Name() == crawlCmd.Name() {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./pixivcrawl.yaml or ~/.config/pixivcrawl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output and logs below error")

	rootCmd.SetVersionTemplate(`pixivcrawl {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
