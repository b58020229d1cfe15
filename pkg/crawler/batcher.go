package crawler

import (
	"pixivcrawl/pkg/errors"
	"pixivcrawl/pkg/logger"
	"pixivcrawl/pkg/models"
)

// Batcher turns a page of search results into download jobs, skipping
// illustrations the dedup store already knows about. It is not safe for
// concurrent use.
type Batcher struct {
	store    DedupStore
	maxItems int
	logger   logger.Logger
}

// NewBatcher creates a Batcher that accepts at most maxItems items per run
func NewBatcher(store DedupStore, maxItems int, log logger.Logger) *Batcher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Batcher{
		store:    store,
		maxItems: maxItems,
		logger:   log.WithField("component", "batcher"),
	}
}

// BuildBatch walks items in page order. Known IDs are skipped. New IDs get the
// next sequence number, are recorded in the store and become jobs until the
// run has accepted maxItems items; the rest of the page is still counted. The
// store is flushed before returning so every job's ID is on disk before any
// download starts.
func (b *Batcher) BuildBatch(items []models.Illustration, state *RunState) ([]models.DownloadJob, error) {
	var jobs []models.DownloadJob

	for index, item := range items {
		state.ItemsScanned++
		b.logger.InfoWithFields("Scanning", map[string]interface{}{
			"page":      state.PagesScanned,
			"index":     index,
			"illust_id": item.ID,
			"title":     item.Title,
		})

		if b.store.Contains(item.ID) {
			state.AlreadyKnown++
			b.logger.InfoWithFields("Illustration already existed, skip", map[string]interface{}{
				"illust_id": item.ID,
				"title":     item.Title,
			})
			continue
		}

		if b.maxItems > 0 && state.Accepted >= b.maxItems {
			state.OverCap++
			continue
		}

		if err := b.store.Record(item.ID, item.Title); err != nil {
			return nil, errors.StoreUnavailable(err, "cannot record illustration")
		}

		jobs = append(jobs, models.DownloadJob{
			Sequence:       state.takeSequence(),
			IllustID:       item.ID,
			Title:          item.Title,
			MediaReference: item.MediaReference(),
		})
		state.Accepted++
	}

	if err := b.store.Flush(); err != nil {
		return nil, errors.StoreUnavailable(err, "cannot flush dedup record")
	}

	return jobs, nil
}
