package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"pixivcrawl/pkg/auth"
	"pixivcrawl/pkg/config"
	"pixivcrawl/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage pixivcrawl configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (PIXIVCRAWL_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as 'pixivcrawl.yaml'
unless a different path is specified with the --config flag.`,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration after merging all sources.

The refresh token is masked.`,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Validate the configuration for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Value ranges and the provider error policy
  - That the output and log directories can be created`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# pixivcrawl configuration
#
# Every option can also be set with a PIXIVCRAWL_ environment variable,
# for example PIXIVCRAWL_REFRESH_TOKEN or PIXIVCRAWL_KEYWORDS=風景,夕日

pixiv:
  # Refresh token of the pixiv app login. Prefer 'pixivcrawl auth login',
  # which keeps it in the system keychain instead of this file.
  refresh_token: ""
  # Stored account to use when refresh_token is empty
  account: ""
  user_agent: "PixivIOSApp/7.13.3 (iOS 14.6; iPhone13,2)"

crawl:
  keywords:
    - "風景"
  # Maximum number of new illustrations per run
  max_items: 50000
  # Maximum number of result pages per keyword
  max_pages: 1000
  # skip_keyword: log and continue with the next keyword
  # abort_run: stop the whole run on the first search error
  on_provider_error: skip_keyword
  # partial_match_for_tags, exact_match_for_tags or title_and_caption
  search_target: partial_match_for_tags
  # date_desc or date_asc
  sort: date_desc

rate_limit:
  # Search API calls per minute
  requests_per_minute: 60

output:
  base_directory: "."
  illustrations_dir: "Illustrations"
  record_file: "illust_data.csv"
  # Replace files that already exist instead of skipping them
  overwrite_existing: false

download:
  workers: 10
  # Per-request timeout, e.g. 30s. 0 waits indefinitely.
  timeout: 0s
  source_host: i.pximg.net
  mirror_host: i.pixiv.cat
  user_agent: "Mozilla/5.0"

logging:
  # debug, info, warn, error
  level: info
  # Optional JSON log file in addition to the console
  file: ""
  json: false
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = "pixivcrawl.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		return fmt.Errorf("refusing to overwrite %s", configPath)
	}

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0600); err != nil {
		ui.PrintError("Failed to create configuration file", err.Error())
		return err
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Run 'pixivcrawl auth login' to store your refresh token")
	fmt.Println("2. Edit crawl.keywords in the configuration file")
	fmt.Println("3. Run 'pixivcrawl config validate', then 'pixivcrawl crawl'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return err
	}

	data, err := maskedYAML(cfg)
	if err != nil {
		ui.PrintError("Failed to format configuration", err.Error())
		return err
	}

	fmt.Println(ui.Magenta("Current Configuration"))
	fmt.Println()
	fmt.Print(string(data))
	return nil
}

// maskedYAML renders cfg with the refresh token masked
func maskedYAML(cfg *config.Config) ([]byte, error) {
	display := *cfg
	if display.Pixiv.RefreshToken != "" {
		display.Pixiv.RefreshToken = auth.SanitizeAccount(&auth.Account{RefreshToken: cfg.Pixiv.RefreshToken}).RefreshToken
	}
	return yaml.Marshal(&display)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		ui.PrintInfo("Validating configuration", configFile)
	}

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		return err
	}

	warnings, problems := checkEnvironment(cfg)

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors:")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return fmt.Errorf("configuration has %d error(s)", len(problems))
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Keywords: %v\n", cfg.Crawl.Keywords)
	fmt.Printf("  Illustrations: %s\n", cfg.IllustrationsPath())
	fmt.Printf("  Record: %s\n", cfg.RecordPath())
	fmt.Printf("  Workers: %d\n", cfg.Download.Workers)
	fmt.Printf("  Limits: %d items, %d pages per keyword\n", cfg.Crawl.MaxItems, cfg.Crawl.MaxPages)
	fmt.Printf("  Rate limit: %d requests/minute\n", cfg.RateLimit.RequestsPerMinute)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}

// checkEnvironment looks for problems Validate cannot see
func checkEnvironment(cfg *config.Config) (warnings, problems []string) {
	if len(cfg.Crawl.Keywords) == 0 {
		warnings = append(warnings, "no crawl.keywords configured; pass keywords on the command line")
	}
	if cfg.Pixiv.RefreshToken == "" && cfg.Pixiv.Account == "" {
		warnings = append(warnings, "no refresh token configured; the most recently stored account will be used")
	}

	if err := os.MkdirAll(cfg.IllustrationsPath(), 0755); err != nil {
		problems = append(problems, fmt.Sprintf("Cannot create output directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("Cannot create log directory: %v", err))
		}
	}
	return warnings, problems
}
