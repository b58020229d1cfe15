package downloader

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pixivcrawl/pkg/logger"
	"pixivcrawl/pkg/models"
	"pixivcrawl/pkg/storage"
)

// MockFetcher records calls and returns a canned outcome per illustration ID
type MockFetcher struct {
	delay    time.Duration
	outcomes map[int64]Status
	panicOn  map[int64]bool

	active    int32
	maxActive int32
	mu        sync.Mutex
	seen      []int
}

func (m *MockFetcher) Fetch(ctx context.Context, job models.DownloadJob) FetchOutcome {
	n := atomic.AddInt32(&m.active, 1)
	defer atomic.AddInt32(&m.active, -1)
	for {
		peak := atomic.LoadInt32(&m.maxActive)
		if n <= peak || atomic.CompareAndSwapInt32(&m.maxActive, peak, n) {
			break
		}
	}

	m.mu.Lock()
	m.seen = append(m.seen, job.Sequence)
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.panicOn[job.IllustID] {
		panic(fmt.Sprintf("boom on %d", job.IllustID))
	}

	status := OutcomeSucceeded
	if s, ok := m.outcomes[job.IllustID]; ok {
		status = s
	}
	return FetchOutcome{Job: job, Status: status}
}

func (m *MockFetcher) sequences() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.seen...)
}

func makeJobs(start, n int) []models.DownloadJob {
	jobs := make([]models.DownloadJob, n)
	for i := range jobs {
		jobs[i] = models.DownloadJob{
			Sequence:       start + i,
			IllustID:       int64(1000 + start + i),
			Title:          fmt.Sprintf("illust %d", start+i),
			MediaReference: "https://i.pximg.net/img-original/img/x.jpg",
		}
	}
	return jobs
}

func TestWorkerPoolBasicFunctionality(t *testing.T) {
	fetcher := &MockFetcher{}
	pool := NewWorkerPool(3, fetcher, logger.NewNopLogger())
	pool.Start()
	defer pool.Stop()

	report := pool.Run(context.Background(), makeJobs(0, 5))

	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 5, report.Succeeded)
	assert.Len(t, report.Outcomes, 5)
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4}, fetcher.sequences())
}

func TestWorkerPoolConcurrencyBound(t *testing.T) {
	fetcher := &MockFetcher{delay: 20 * time.Millisecond}
	pool := NewWorkerPool(4, fetcher, logger.NewNopLogger())
	pool.Start()
	defer pool.Stop()

	report := pool.Run(context.Background(), makeJobs(0, 20))

	assert.Equal(t, 20, report.Succeeded)
	assert.LessOrEqual(t, atomic.LoadInt32(&fetcher.maxActive), int32(4))
	assert.Greater(t, atomic.LoadInt32(&fetcher.maxActive), int32(1))
}

func TestWorkerPoolRunBlocksUntilDrained(t *testing.T) {
	fetcher := &MockFetcher{delay: 10 * time.Millisecond}
	pool := NewWorkerPool(2, fetcher, logger.NewNopLogger())
	pool.Start()
	defer pool.Stop()

	report := pool.Run(context.Background(), makeJobs(0, 6))

	assert.Equal(t, int32(0), atomic.LoadInt32(&fetcher.active))
	assert.Len(t, fetcher.sequences(), 6)
	assert.Equal(t, 6, report.Total)
}

func TestWorkerPoolFailureIsolation(t *testing.T) {
	jobs := makeJobs(0, 6)
	fetcher := &MockFetcher{
		outcomes: map[int64]Status{
			jobs[1].IllustID: OutcomeFailed,
			jobs[2].IllustID: OutcomeWriteFailed,
			jobs[3].IllustID: OutcomeSkipped,
		},
		panicOn: map[int64]bool{jobs[4].IllustID: true},
	}
	tl := logger.NewTestLogger()
	pool := NewWorkerPool(2, fetcher, tl)
	pool.Start()
	defer pool.Stop()

	report := pool.Run(context.Background(), jobs)

	assert.Equal(t, 6, report.Total)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 1, report.WriteFailed)
	assert.Equal(t, 1, report.Skipped)

	var panicked *FetchOutcome
	for i := range report.Outcomes {
		if report.Outcomes[i].Job.IllustID == jobs[4].IllustID {
			panicked = &report.Outcomes[i]
		}
	}
	require.NotNil(t, panicked)
	assert.Equal(t, OutcomeFailed, panicked.Status)
	assert.Contains(t, panicked.Err.Error(), "boom on")

	assert.Len(t, tl.GetMessagesByLevel("ERROR"), 3)
}

func TestWorkerPoolReusedAcrossBatches(t *testing.T) {
	fetcher := &MockFetcher{}
	pool := NewWorkerPool(3, fetcher, logger.NewNopLogger())
	pool.Start()
	defer pool.Stop()

	first := pool.Run(context.Background(), makeJobs(0, 4))
	second := pool.Run(context.Background(), makeJobs(4, 3))
	empty := pool.Run(context.Background(), nil)

	assert.Equal(t, 4, first.Succeeded)
	assert.Equal(t, 3, second.Succeeded)
	assert.Equal(t, 0, empty.Total)
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6}, fetcher.sequences())
}

func TestWorkerPoolRunStartsLazily(t *testing.T) {
	pool := NewWorkerPool(2, &MockFetcher{}, logger.NewNopLogger())
	defer pool.Stop()

	report := pool.Run(context.Background(), makeJobs(0, 3))
	assert.Equal(t, 3, report.Succeeded)
}

func TestWorkerPoolRunAfterStop(t *testing.T) {
	fetcher := &MockFetcher{}
	pool := NewWorkerPool(2, fetcher, logger.NewNopLogger())
	pool.Start()
	pool.Stop()
	pool.Stop()

	report := pool.Run(context.Background(), makeJobs(0, 2))
	assert.Equal(t, 2, report.Failed)
	assert.Empty(t, fetcher.sequences())
}

func TestWorkerPoolWithFetcher(t *testing.T) {
	server := newImageServer(t, map[string]string{originalJPG: "jpg", originalPNG: "png"})
	manager, err := storage.NewManager(filepath.Join(t.TempDir(), "Illustrations"))
	require.NoError(t, err)

	f := NewFetcher(FetcherOptions{Client: server.Client(), Rewrite: sourceRewrite(server.Server)}, manager, logger.NewNopLogger())
	pool := NewWorkerPool(2, f, logger.NewNopLogger())
	defer pool.Stop()

	jobs := []models.DownloadJob{
		{Sequence: 0, IllustID: 102, Title: "one", MediaReference: sourceMaster},
		{Sequence: 1, IllustID: 102, Title: "two", MediaReference: sourceMaster},
		{Sequence: 2, IllustID: 103, Title: "three", MediaReference: ""},
	}
	report := pool.Run(context.Background(), jobs)

	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, manager.SavedCount())
	for _, o := range report.Outcomes {
		if o.Status == OutcomeSucceeded {
			assert.Equal(t, http.StatusOK, o.LastStatus)
		}
	}
}
