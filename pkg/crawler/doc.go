// Package crawler drives a keyword search crawl.
//
// For each keyword a PageSource is opened and walked page by page. Every page
// goes through the Batcher, which drops illustrations already present in the
// dedup record, stops accepting once the run-wide item cap is hit and records
// the accepted IDs before any download starts. The resulting jobs are handed
// to an Executor and the crawler waits for the whole batch before asking for
// the next page.
//
// Basic usage:
//
//	c := crawler.New(provider, store, pool, crawler.OptionsFromConfig(cfg), log)
//	state, err := c.Run(ctx, cfg.Crawl.Keywords)
//	if err != nil {
//		// the dedup record could not be written
//	}
//	fmt.Println(state.Downloaded, state.StopReason)
package crawler
