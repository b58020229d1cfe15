package crawler

import (
	"context"

	"pixivcrawl/internal/downloader"
	"pixivcrawl/pkg/models"
)

// Page is one page of search results
type Page struct {
	Items   []models.Illustration
	HasMore bool
}

// PageSource walks the result pages of a single keyword
type PageSource interface {
	NextPage(ctx context.Context) (Page, error)
}

// Provider opens a PageSource per keyword
type Provider interface {
	Pages(keyword string) PageSource
}

// Executor runs a batch of download jobs and returns once all have completed
type Executor interface {
	Run(ctx context.Context, jobs []models.DownloadJob) downloader.BatchReport
}

// DedupStore is the persisted set of already fetched illustration IDs
type DedupStore interface {
	Contains(id int64) bool
	Record(id int64, title string) error
	Flush() error
	Len() int
}

// Observer is told about progress as the crawl advances. Calls come from the
// goroutine running Crawler.Run.
type Observer interface {
	PageScanned(keyword string, page, fetched, accepted int)
	BatchCompleted(keyword string, report downloader.BatchReport)
}
