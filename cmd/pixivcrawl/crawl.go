package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"pixivcrawl/internal/downloader"
	"pixivcrawl/pkg/auth"
	"pixivcrawl/pkg/config"
	"pixivcrawl/pkg/crawler"
	"pixivcrawl/pkg/dedup"
	"pixivcrawl/pkg/logger"
	"pixivcrawl/pkg/pixiv"
	"pixivcrawl/pkg/ratelimit"
	"pixivcrawl/pkg/storage"
	"pixivcrawl/pkg/ui"
)

// imageReferer is sent with every image request; the image host rejects
// requests without a pixiv referer
const imageReferer = "https://www.pixiv.net/"

var (
	// Crawl command flags
	maxItems        int
	maxPages        int
	onProviderError string
	outputDir       string
	overwrite       bool
	workers         int
	accountName     string
	notify          bool
)

// crawlCmd represents the crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl [keywords...]",
	Short: "Search keywords and download new illustrations",
	Long: `Search pixiv for each keyword in turn and download every illustration
that is not yet in the record.

Keywords come from the arguments, or from crawl.keywords in the config file or
PIXIVCRAWL_KEYWORDS (comma separated) when no arguments are given.

Credentials are resolved in this order:
  - pixiv.refresh_token in the config file or PIXIVCRAWL_REFRESH_TOKEN
  - the stored account named by --account
  - the most recently stored account (see 'pixivcrawl auth login')

Press Ctrl-C to stop after the page being downloaded; press it again to quit
immediately.`,
	Example: `  # Crawl two keywords with default limits
  pixivcrawl crawl 風景 夕日

  # Cap the run at 500 new illustrations and 20 pages per keyword
  pixivcrawl crawl landscape --max-items 500 --max-pages 20

  # Stop the whole run on the first search error
  pixivcrawl crawl landscape --on-provider-error abort_run`,
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	crawlCmd.Flags().IntVar(&maxItems, "max-items", 0, "maximum number of new illustrations per run (default 50000)")
	crawlCmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum number of result pages per keyword (default 1000)")
	crawlCmd.Flags().StringVar(&onProviderError, "on-provider-error", "", "skip_keyword or abort_run (default skip_keyword)")
	crawlCmd.Flags().StringVarP(&outputDir, "output", "o", "", "base directory for Illustrations/ and the record (default: current directory)")
	crawlCmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace files that already exist on disk")
	crawlCmd.Flags().IntVarP(&workers, "workers", "w", 0, "number of concurrent downloads (default 10)")
	crawlCmd.Flags().StringVarP(&accountName, "account", "a", "", "use a specific stored account")
	crawlCmd.Flags().BoolVar(&notify, "notify", false, "send a desktop notification when the run ends")
}

// crawlFlags collects the flags the user actually set
func crawlFlags(cmd *cobra.Command, args []string) map[string]interface{} {
	flags := make(map[string]interface{})
	if len(args) > 0 {
		flags["keywords"] = args
	}
	if cmd.Flags().Changed("max-items") {
		flags["max-items"] = maxItems
	}
	if cmd.Flags().Changed("max-pages") {
		flags["max-pages"] = maxPages
	}
	if cmd.Flags().Changed("on-provider-error") {
		flags["on-provider-error"] = onProviderError
	}
	if cmd.Flags().Changed("output") {
		flags["output"] = outputDir
	}
	if cmd.Flags().Changed("overwrite") {
		flags["overwrite"] = overwrite
	}
	if cmd.Flags().Changed("workers") {
		flags["workers"] = workers
	}
	if cmd.Flags().Changed("account") {
		flags["account"] = accountName
	}
	if quiet {
		flags["log-level"] = "error"
	} else if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return flags
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, crawlFlags(cmd, args))
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return err
	}
	if len(cfg.Crawl.Keywords) == 0 {
		return fmt.Errorf("no keywords given; pass them as arguments or set crawl.keywords")
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("pixivcrawl starting")

	account, err := resolveAccount(cfg, nil)
	if err != nil {
		ui.PrintError("No pixiv credentials", err.Error())
		auth.ShowQuickTokenGuide(os.Stdout)
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		// A second signal gets the default behaviour and kills the process
		stop()
	}()

	var progress io.Writer
	if !quiet {
		progress = os.Stdout
	}

	result, err := executeCrawl(ctx, cfg, account, progress, log)
	if result != nil {
		ui.PrintSummary(os.Stdout, result.summary())
	}

	if notify {
		notifier := ui.NewNotifier()
		switch {
		case err != nil:
			notifier.SendError("pixivcrawl failed", err.Error())
		case result != nil:
			notifier.SendSuccess("pixivcrawl finished", fmt.Sprintf("%d new illustrations", result.state.Downloaded))
		}
	}
	return err
}

// resolveAccount picks the refresh token for this run. creds may be nil, in
// which case the default credential manager is opened when needed.
func resolveAccount(cfg *config.Config, creds *auth.Manager) (*auth.Account, error) {
	if cfg.Pixiv.RefreshToken != "" {
		name := cfg.Pixiv.Account
		if name == "" {
			name = "config"
		}
		return &auth.Account{Username: name, RefreshToken: cfg.Pixiv.RefreshToken}, nil
	}

	if creds == nil {
		var err error
		creds, err = auth.NewManager()
		if err != nil {
			return nil, fmt.Errorf("failed to open credential store: %w", err)
		}
	}

	if cfg.Pixiv.Account != "" {
		return creds.Retrieve(cfg.Pixiv.Account)
	}
	return creds.RetrieveDefault()
}

// crawlResult is what a finished or interrupted run reports
type crawlResult struct {
	state  *crawler.RunState
	known  int
	record string
}

func (r *crawlResult) summary() ui.RunSummary {
	return ui.RunSummary{
		RunID:          r.state.RunID,
		Keywords:       r.state.Keywords,
		PagesScanned:   r.state.PagesScanned,
		ItemsScanned:   r.state.ItemsScanned,
		NewItems:       r.state.Accepted,
		Downloaded:     r.state.Downloaded,
		Failed:         r.state.Failed,
		Skipped:        r.state.Skipped,
		TotalKnown:     r.known,
		RecordPath:     r.record,
		StopReason:     r.state.StopReason,
		Elapsed:        r.state.Elapsed(),
		FailedKeywords: r.state.FailedKeywords,
	}
}

// executeCrawl wires the record, storage, download pool and pixiv client for
// one run and crawls cfg.Crawl.Keywords. progress may be nil. Errors before
// the crawl starts return a nil result.
func executeCrawl(ctx context.Context, cfg *config.Config, account *auth.Account, progress io.Writer, log logger.Logger) (*crawlResult, error) {
	store, err := dedup.Open(cfg.RecordPath(), log)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	files, err := storage.NewManager(cfg.IllustrationsPath())
	if err != nil {
		return nil, err
	}

	rewrite := downloader.DefaultRewrite()
	rewrite.SourceHost = cfg.Download.SourceHost
	rewrite.MirrorHost = cfg.Download.MirrorHost

	fetcher := downloader.NewFetcher(downloader.FetcherOptions{
		Timeout:           cfg.Download.Timeout,
		UserAgent:         cfg.Download.UserAgent,
		Referer:           imageReferer,
		Rewrite:           rewrite,
		OverwriteExisting: cfg.Output.OverwriteExisting,
	}, files, log)
	pool := downloader.NewWorkerPool(cfg.Download.Workers, fetcher, log)
	pool.Start()
	defer pool.Stop()

	client := pixiv.NewClient(pixiv.ClientOptions{
		UserAgent:  cfg.Pixiv.UserAgent,
		AuthURL:    cfg.Pixiv.AuthURL,
		APIBaseURL: cfg.Pixiv.APIBaseURL,
		Limiter:    ratelimit.NewPerMinute(cfg.RateLimit.RequestsPerMinute),
	}, log)
	if _, err := client.Authenticate(ctx, account.RefreshToken); err != nil {
		return nil, fmt.Errorf("pixiv authentication failed: %w", err)
	}

	provider := pixiv.NewSearchProvider(client, pixiv.SearchOptions{
		SearchTarget: cfg.Crawl.SearchTarget,
		Sort:         cfg.Crawl.Sort,
	}, log)

	c := crawler.New(provider, store, pool, crawler.OptionsFromConfig(cfg), log)
	if progress != nil {
		c.SetObserver(ui.NewProgressDisplay(progress))
	}

	state, runErr := c.Run(ctx, cfg.Crawl.Keywords)
	rememberRotatedToken(account, client.RefreshToken(), log)

	return &crawlResult{state: state, known: store.Len(), record: store.Path()}, runErr
}

// rememberRotatedToken stores a refresh token pixiv replaced during the run
// back into the credential store it came from
func rememberRotatedToken(account *auth.Account, current string, log logger.Logger) {
	if current == "" || current == account.RefreshToken || strings.TrimSpace(account.Username) == "" {
		return
	}
	if account.Username == "config" || account.Username == "default" {
		log.Warn("pixiv issued a new refresh token; update your configuration")
		return
	}

	creds, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Warn("Could not open credential store to save the new refresh token")
		return
	}
	updated := *account
	updated.RefreshToken = current
	if err := creds.Store(&updated); err != nil {
		log.WithError(err).Warn("Could not save the new refresh token")
	}
}
