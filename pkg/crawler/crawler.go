package crawler

import (
	"context"
	"fmt"

	"pixivcrawl/pkg/config"
	"pixivcrawl/pkg/errors"
	"pixivcrawl/pkg/logger"
)

// Options bounds a crawl
type Options struct {
	// MaxItems caps the number of accepted items across the whole run
	MaxItems int
	// MaxPages caps the number of pages fetched per keyword
	MaxPages int
	// OnProviderError is config.OnProviderErrorSkipKeyword or
	// config.OnProviderErrorAbortRun
	OnProviderError string
}

// OptionsFromConfig reads crawl options from the configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxItems:        cfg.Crawl.MaxItems,
		MaxPages:        cfg.Crawl.MaxPages,
		OnProviderError: cfg.Crawl.OnProviderError,
	}
}

// Crawler alternates between batching a page of results and downloading it.
// Page N is fully downloaded before page N+1 is requested.
type Crawler struct {
	provider Provider
	store    DedupStore
	executor Executor
	batcher  *Batcher
	opts     Options
	observer Observer
	logger   logger.Logger
}

// New creates a Crawler
func New(provider Provider, store DedupStore, executor Executor, opts Options, log logger.Logger) *Crawler {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.OnProviderError == "" {
		opts.OnProviderError = config.OnProviderErrorSkipKeyword
	}
	return &Crawler{
		provider: provider,
		store:    store,
		executor: executor,
		batcher:  NewBatcher(store, opts.MaxItems, log),
		opts:     opts,
		logger:   log.WithField("component", "crawler"),
	}
}

// SetObserver registers o for progress callbacks
func (c *Crawler) SetObserver(o Observer) {
	c.observer = o
}

// Run crawls keywords in order. The returned state is always usable for a
// summary. An error is returned only when the dedup store fails; provider
// failures are handled according to Options.OnProviderError and cancellation
// ends the run after the page in flight has drained.
func (c *Crawler) Run(ctx context.Context, keywords []string) (*RunState, error) {
	state := NewRunState(keywords)
	log := c.logger.WithField("run_id", state.RunID)

	logger.LogComponentStart(log, "crawler", map[string]interface{}{
		"keywords":          keywords,
		"max_items":         c.opts.MaxItems,
		"max_pages":         c.opts.MaxPages,
		"on_provider_error": c.opts.OnProviderError,
		"known":             c.store.Len(),
	})

	for _, keyword := range keywords {
		if ctx.Err() != nil {
			state.StopReason = StopReasonCancelled
			break
		}
		if c.capReached(state) {
			state.StopReason = StopReasonItemCap
			break
		}

		err := c.crawlKeyword(ctx, log.WithField("keyword", keyword), keyword, state)
		if err == nil {
			continue
		}

		if errors.IsType(err, errors.ErrorTypeStoreUnavailable) {
			log.WithError(err).Error("Dedup record unavailable, stopping")
			return state, err
		}

		state.FailedKeywords = append(state.FailedKeywords, keyword)
		log.WithError(err).ErrorWithFields("Unexpected error while paging results", map[string]interface{}{
			"severity": "critical",
			"keyword":  keyword,
			"policy":   c.opts.OnProviderError,
		})
		if c.opts.OnProviderError == config.OnProviderErrorAbortRun {
			state.StopReason = StopReasonProviderError
			break
		}
	}

	if state.StopReason == "" && ctx.Err() != nil {
		state.StopReason = StopReasonCancelled
	}
	if state.StopReason == "" && c.capReached(state) {
		state.StopReason = StopReasonItemCap
	}

	reason := state.StopReason
	if reason == "" {
		reason = "completed"
	}
	logger.LogComponentStop(log, "crawler", reason)
	logger.LogMetrics(log, "crawl", map[string]interface{}{
		"pages":      state.PagesScanned,
		"scanned":    state.ItemsScanned,
		"accepted":   state.Accepted,
		"downloaded": state.Downloaded,
		"failed":     state.Failed,
		"skipped":    state.Skipped,
		"known":      c.store.Len(),
		"elapsed":    state.Elapsed(),
	})

	return state, nil
}

// crawlKeyword pages through one keyword until results run out, a cap is hit
// or ctx is cancelled
func (c *Crawler) crawlKeyword(ctx context.Context, log logger.Logger, keyword string, state *RunState) error {
	log.Info("Start scanning")
	source := c.provider.Pages(keyword)

	for page := 0; c.opts.MaxPages <= 0 || page < c.opts.MaxPages; page++ {
		if ctx.Err() != nil || c.capReached(state) {
			return nil
		}

		result, err := source.NextPage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Provider(err, fmt.Sprintf("keyword %q page %d", keyword, page))
		}
		state.PagesScanned++

		knownBefore, overCapBefore := state.AlreadyKnown, state.OverCap
		jobs, err := c.batcher.BuildBatch(result.Items, state)
		if err != nil {
			return err
		}
		logger.LogPageScanned(log, keyword, page, len(result.Items), len(jobs),
			state.AlreadyKnown-knownBefore+state.OverCap-overCapBefore)
		if c.observer != nil {
			c.observer.PageScanned(keyword, page, len(result.Items), len(jobs))
		}

		if len(jobs) > 0 {
			// Downloads of an accepted page always finish; cancellation is
			// observed before the next page.
			report := c.executor.Run(context.WithoutCancel(ctx), jobs)
			state.absorb(report)
			if c.observer != nil {
				c.observer.BatchCompleted(keyword, report)
			}
		}

		if !result.HasMore {
			log.InfoWithFields("No more pages", map[string]interface{}{"pages": page + 1})
			return nil
		}
	}

	log.InfoWithFields("Page limit reached", map[string]interface{}{"max_pages": c.opts.MaxPages})
	return nil
}

func (c *Crawler) capReached(state *RunState) bool {
	return c.opts.MaxItems > 0 && state.Accepted >= c.opts.MaxItems
}
