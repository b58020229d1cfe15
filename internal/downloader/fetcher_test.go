package downloader

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pixivcrawl/pkg/errors"
	"pixivcrawl/pkg/logger"
	"pixivcrawl/pkg/models"
	"pixivcrawl/pkg/storage"
)

// imageServer serves the paths in files with 200 and everything else with 404,
// recording every request path
type imageServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []string
	headers  []http.Header
}

func newImageServer(t *testing.T, files map[string]string) *imageServer {
	t.Helper()
	s := &imageServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.URL.Path)
		s.headers = append(s.headers, r.Header.Clone())
		s.mu.Unlock()

		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *imageServer) paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// sourceRewrite maps a fake source host onto the test server
func sourceRewrite(server *httptest.Server) Rewrite {
	rw := DefaultRewrite()
	rw.SourceHost = "i.pximg.test"
	rw.MirrorHost = strings.TrimPrefix(server.URL, "http://")
	return rw
}

const (
	masterPath   = "/c/600x1200_90_webp/img-master/img/2021/01/01/00/00/00/102_p0_master1200.jpg"
	originalJPG  = "/img-original/img/2021/01/01/00/00/00/102_p0.jpg"
	originalPNG  = "/img-original/img/2021/01/01/00/00/00/102_p0.png"
	sourceMaster = "http://i.pximg.test" + masterPath
)

func newTestFetcher(t *testing.T, server *httptest.Server, overwrite bool) (*Fetcher, *storage.Manager) {
	t.Helper()
	manager, err := storage.NewManager(filepath.Join(t.TempDir(), "Illustrations"))
	require.NoError(t, err)

	f := NewFetcher(FetcherOptions{
		Client:            server.Client(),
		Referer:           "https://www.pixiv.net/",
		Rewrite:           sourceRewrite(server),
		OverwriteExisting: overwrite,
	}, manager, logger.NewNopLogger())
	return f, manager
}

func job(title string) models.DownloadJob {
	return models.DownloadJob{Sequence: 4, IllustID: 102, Title: title, MediaReference: sourceMaster}
}

func TestFetchOriginalJPG(t *testing.T) {
	server := newImageServer(t, map[string]string{originalJPG: "original jpg"})
	f, manager := newTestFetcher(t, server.Server, false)

	outcome := f.Fetch(context.Background(), job("sea"))

	require.Equal(t, OutcomeSucceeded, outcome.Status, "err: %v", outcome.Err)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, "jpg", outcome.Candidate.Suffix)
	assert.Equal(t, manager.IllustrationPath(102, "sea", "jpg"), outcome.Path)
	assert.Equal(t, []string{originalJPG}, server.paths())

	data, err := os.ReadFile(outcome.Path)
	require.NoError(t, err)
	assert.Equal(t, "original jpg", string(data))

	assert.Equal(t, "Mozilla/5.0", server.headers[0].Get("User-Agent"))
	assert.Equal(t, "https://www.pixiv.net/", server.headers[0].Get("Referer"))
}

func TestFetchFallsBackToPNG(t *testing.T) {
	server := newImageServer(t, map[string]string{originalPNG: "original png"})
	f, manager := newTestFetcher(t, server.Server, false)

	outcome := f.Fetch(context.Background(), job("sea"))

	require.Equal(t, OutcomeSucceeded, outcome.Status)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, manager.IllustrationPath(102, "sea", "png"), outcome.Path)
	assert.Equal(t, []string{originalJPG, originalPNG}, server.paths())
}

func TestFetchFallsBackToMaster(t *testing.T) {
	server := newImageServer(t, map[string]string{masterPath: "compressed"})
	f, manager := newTestFetcher(t, server.Server, false)

	outcome := f.Fetch(context.Background(), job("a/b"))

	require.Equal(t, OutcomeSucceeded, outcome.Status)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, []string{originalJPG, originalPNG, masterPath}, server.paths())
	assert.Equal(t, manager.IllustrationPath(102, "a b", "jpg"), outcome.Path)

	data, err := os.ReadFile(outcome.Path)
	require.NoError(t, err)
	assert.Equal(t, "compressed", string(data))
}

func TestFetchAllCandidatesFail(t *testing.T) {
	server := newImageServer(t, nil)
	f, manager := newTestFetcher(t, server.Server, false)

	outcome := f.Fetch(context.Background(), job("sea"))

	assert.Equal(t, OutcomeFailed, outcome.Status)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, http.StatusNotFound, outcome.LastStatus)
	assert.Len(t, outcome.Candidates, 3)
	assert.True(t, errors.IsType(outcome.Err, errors.ErrorTypeNotFound))
	assert.Len(t, server.paths(), 3)

	entries, err := os.ReadDir(manager.GetOutputDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchSkipsExistingDestination(t *testing.T) {
	server := newImageServer(t, map[string]string{originalJPG: "fresh"})
	f, manager := newTestFetcher(t, server.Server, false)

	existing := manager.IllustrationPath(102, "sea", "png")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0644))

	outcome := f.Fetch(context.Background(), job("sea"))

	assert.Equal(t, OutcomeSkipped, outcome.Status)
	assert.Equal(t, existing, outcome.Path)
	assert.Empty(t, server.paths())
}

func TestFetchOverwritesWhenEnabled(t *testing.T) {
	server := newImageServer(t, map[string]string{originalJPG: "fresh"})
	f, manager := newTestFetcher(t, server.Server, true)

	existing := manager.IllustrationPath(102, "sea", "jpg")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0644))

	outcome := f.Fetch(context.Background(), job("sea"))

	require.Equal(t, OutcomeSucceeded, outcome.Status)
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
}

type brokenStore struct{ *storage.Manager }

func (brokenStore) Save(r io.Reader, path string) (int64, error) {
	return 0, os.ErrPermission
}

func TestFetchWriteFailure(t *testing.T) {
	server := newImageServer(t, map[string]string{originalJPG: "bytes"})
	manager, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)

	f := NewFetcher(FetcherOptions{Client: server.Client(), Rewrite: sourceRewrite(server.Server)},
		brokenStore{manager}, logger.NewNopLogger())

	outcome := f.Fetch(context.Background(), job("sea"))

	assert.Equal(t, OutcomeWriteFailed, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
	assert.True(t, errors.IsType(outcome.Err, errors.ErrorTypeWrite))
	assert.ErrorIs(t, outcome.Err, os.ErrPermission)
}

func TestFetchNetworkError(t *testing.T) {
	server := newImageServer(t, nil)
	f, _ := newTestFetcher(t, server.Server, false)
	server.Close()

	outcome := f.Fetch(context.Background(), job("sea"))

	assert.Equal(t, OutcomeFailed, outcome.Status)
	assert.Equal(t, 0, outcome.LastStatus)
	assert.True(t, errors.IsType(outcome.Err, errors.ErrorTypeNetwork))
}

func TestFetchCancelledContext(t *testing.T) {
	server := newImageServer(t, map[string]string{originalJPG: "bytes"})
	f, _ := newTestFetcher(t, server.Server, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := f.Fetch(ctx, job("sea"))

	assert.Equal(t, OutcomeFailed, outcome.Status)
	assert.Equal(t, 0, outcome.Attempts)
	assert.ErrorIs(t, outcome.Err, context.Canceled)
	assert.Empty(t, server.paths())
}

func TestFetchLogsFallbacks(t *testing.T) {
	server := newImageServer(t, map[string]string{masterPath: "compressed"})
	manager, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)
	tl := logger.NewTestLogger()

	f := NewFetcher(FetcherOptions{Client: server.Client(), Rewrite: sourceRewrite(server.Server)}, manager, tl)
	outcome := f.Fetch(context.Background(), job("sea"))
	require.Equal(t, OutcomeSucceeded, outcome.Status)

	warns := tl.GetMessagesByLevel("WARN")
	require.Len(t, warns, 2)
	assert.Equal(t, http.StatusNotFound, warns[0].Fields["status_code"])
}
