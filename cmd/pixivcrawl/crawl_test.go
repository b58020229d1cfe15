package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
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
	"gopkg.in/yaml.v3"
	"pixivcrawl/pkg/auth"
	"pixivcrawl/pkg/config"
	"pixivcrawl/pkg/logger"
	"pixivcrawl/pkg/models"
	"pixivcrawl/pkg/pixiv"
)

const (
	testImageHost = "i.pximg.test"
	masterPath    = "/c/600x1200_90_webp/img-master/img/2022/05/05/10/00/00/"
	originalPath  = "/img-original/img/2022/05/05/10/00/00/"
)

// fakePixiv serves the token endpoint, keyword search and images from one
// server
type fakePixiv struct {
	*httptest.Server

	mu       sync.Mutex
	illusts  map[string][]int64
	images   map[string]string
	searches int
	fetches  int
}

func newFakePixiv(t *testing.T) *fakePixiv {
	t.Helper()
	f := &fakePixiv{illusts: map[string][]int64{}, images: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := r.ParseForm(); err != nil || r.PostForm.Get("refresh_token") != "good-token" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"has_error":true}`)
			return
		}
		json.NewEncoder(w).Encode(pixiv.AuthResponse{
			AccessToken:  "access",
			RefreshToken: "good-token",
			User:         pixiv.AuthUser{ID: "7", Account: "collector"},
		})
	})
	mux.HandleFunc(pixiv.SearchIllustEndpoint, f.handleSearch)
	mux.HandleFunc("/", f.handleImage)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakePixiv) handleSearch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++

	var resp pixiv.SearchIllustResponse
	for _, id := range f.illusts[r.URL.Query().Get("word")] {
		resp.Illusts = append(resp.Illusts, models.Illustration{
			ID:        id,
			Title:     fmt.Sprintf("Lake %d", id),
			ImageURLs: models.ImageURLs{Large: fmt.Sprintf("http://%s%s%d_p0_master1200.jpg", testImageHost, masterPath, id)},
		})
	}
	json.NewEncoder(w).Encode(resp)
}

func (f *fakePixiv) handleImage(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.fetches++
	body, ok := f.images[r.URL.Path]
	f.mu.Unlock()
	if !ok || r.Header.Get("Referer") != imageReferer {
		http.NotFound(w, r)
		return
	}
	io.WriteString(w, body)
}

func (f *fakePixiv) config(t *testing.T, keywords ...string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Pixiv.AuthURL = f.URL + "/auth/token"
	cfg.Pixiv.APIBaseURL = f.URL
	cfg.Crawl.Keywords = keywords
	cfg.Output.BaseDirectory = t.TempDir()
	cfg.Download.SourceHost = testImageHost
	cfg.Download.MirrorHost = strings.TrimPrefix(f.URL, "http://")
	cfg.Download.Workers = 2
	return cfg
}

func TestExecuteCrawl(t *testing.T) {
	f := newFakePixiv(t)
	f.illusts["lake"] = []int64{11, 12}
	f.images[originalPath+"11_p0.jpg"] = "original-11"
	f.images[masterPath+"12_p0_master1200.jpg"] = "master-12"

	cfg := f.config(t, "lake")
	account := &auth.Account{Username: "config", RefreshToken: "good-token"}

	var progress bytes.Buffer
	result, err := executeCrawl(context.Background(), cfg, account, &progress, logger.NewNopLogger())
	require.NoError(t, err)
	require.NotNil(t, result)

	summary := result.summary()
	assert.Equal(t, 1, summary.PagesScanned)
	assert.Equal(t, 2, summary.NewItems)
	assert.Equal(t, 2, summary.Downloaded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 2, summary.TotalKnown)
	assert.Equal(t, cfg.RecordPath(), summary.RecordPath)
	assert.Equal(t, []string{"lake"}, summary.Keywords)

	data, err := os.ReadFile(filepath.Join(cfg.IllustrationsPath(), "11 Lake 11.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "original-11", string(data))
	data, err = os.ReadFile(filepath.Join(cfg.IllustrationsPath(), "12 Lake 12.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "master-12", string(data))

	record, err := os.ReadFile(cfg.RecordPath())
	require.NoError(t, err)
	assert.Equal(t, "id,title\n11,Lake 11\n12,Lake 12\n", string(record))

	assert.Contains(t, progress.String(), "[SCANNING]")
	assert.Contains(t, progress.String(), "[EXTRACTED]")

	// A second run over the same output finds nothing new
	f.mu.Lock()
	fetches := f.fetches
	f.mu.Unlock()

	again, err := executeCrawl(context.Background(), cfg, account, nil, logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, again.state.Accepted)
	assert.Equal(t, 2, again.state.AlreadyKnown)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, fetches, f.fetches)
}

func TestExecuteCrawlRejectedToken(t *testing.T) {
	f := newFakePixiv(t)
	cfg := f.config(t, "lake")

	result, err := executeCrawl(context.Background(), cfg, &auth.Account{Username: "config", RefreshToken: "expired"}, nil, logger.NewNopLogger())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "pixiv authentication failed")
	assert.Equal(t, 0, f.searches)
}

func TestResolveAccount(t *testing.T) {
	t.Run("config token wins", func(t *testing.T) {
		manager, store := auth.NewMockManager()
		require.NoError(t, store.Store(&auth.Account{Username: "stored", RefreshToken: "stored-token"}))

		cfg := config.DefaultConfig()
		cfg.Pixiv.RefreshToken = "from-config"

		account, err := resolveAccount(cfg, manager)
		require.NoError(t, err)
		assert.Equal(t, "config", account.Username)
		assert.Equal(t, "from-config", account.RefreshToken)
	})

	t.Run("named account", func(t *testing.T) {
		manager, store := auth.NewMockManager()
		require.NoError(t, store.Store(&auth.Account{Username: "alice", RefreshToken: "a"}))
		require.NoError(t, store.Store(&auth.Account{Username: "bob", RefreshToken: "b"}))

		cfg := config.DefaultConfig()
		cfg.Pixiv.Account = "alice"

		account, err := resolveAccount(cfg, manager)
		require.NoError(t, err)
		assert.Equal(t, "a", account.RefreshToken)
	})

	t.Run("unknown account", func(t *testing.T) {
		manager, _ := auth.NewMockManager()
		cfg := config.DefaultConfig()
		cfg.Pixiv.Account = "nobody"

		_, err := resolveAccount(cfg, manager)
		assert.ErrorIs(t, err, auth.ErrCredentialsNotFound)
	})

	t.Run("default account", func(t *testing.T) {
		manager, store := auth.NewMockManager()
		require.NoError(t, store.Store(&auth.Account{Username: "only", RefreshToken: "o"}))

		account, err := resolveAccount(config.DefaultConfig(), manager)
		require.NoError(t, err)
		assert.Equal(t, "only", account.Username)
	})
}

func TestMaskedYAML(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Pixiv.RefreshToken = "abcdefghijklmnopqrstuvwxyz"

	data, err := maskedYAML(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "abcdefghijklmnopqrstuvwxyz")
	assert.Equal(t, "abcdefghijklmnopqrstuvwxyz", cfg.Pixiv.RefreshToken)

	var decoded config.Config
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, cfg.Crawl.MaxItems, decoded.Crawl.MaxItems)
	assert.Equal(t, cfg.Output.RecordFile, decoded.Output.RecordFile)
}

func TestExampleConfigIsValid(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte(exampleConfig), cfg))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"風景"}, cfg.Crawl.Keywords)
	assert.Equal(t, config.OnProviderErrorSkipKeyword, cfg.Crawl.OnProviderError)
}

func TestCheckEnvironment(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = t.TempDir()

	warnings, problems := checkEnvironment(cfg)
	assert.Empty(t, problems)
	assert.Len(t, warnings, 2)

	cfg.Crawl.Keywords = []string{"sky"}
	cfg.Pixiv.Account = "alice"
	warnings, problems = checkEnvironment(cfg)
	assert.Empty(t, problems)
	assert.Empty(t, warnings)
	assert.DirExists(t, cfg.IllustrationsPath())

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	cfg.Output.BaseDirectory = blocker
	_, problems = checkEnvironment(cfg)
	assert.Len(t, problems, 1)
}

func TestCrawlFlags(t *testing.T) {
	t.Cleanup(func() {
		quiet = false
		logLevel = ""
		crawlCmd.Flags().Set("max-items", "0")
		crawlCmd.Flags().Lookup("max-items").Changed = false
	})

	require.NoError(t, crawlCmd.Flags().Set("max-items", "25"))
	quiet = true

	flags := crawlFlags(crawlCmd, []string{"sea"})
	assert.Equal(t, []string{"sea"}, flags["keywords"])
	assert.Equal(t, 25, flags["max-items"])
	assert.Equal(t, "error", flags["log-level"])
	assert.NotContains(t, flags, "max-pages")
	assert.NotContains(t, flags, "workers")
}

func TestPrintAccounts(t *testing.T) {
	var buf bytes.Buffer
	printAccounts(&buf, []*auth.Account{
		{Username: "alice", RefreshToken: "abcdefghijklmnop"},
		{Username: "bob", RefreshToken: "qrstuvwxyz012345"},
	})

	out := buf.String()
	assert.Contains(t, out, " * alice")
	assert.Contains(t, out, "   bob")
	assert.NotContains(t, out, "abcdefghijklmnop")
	assert.Contains(t, out, "unknown")
}

func TestConfirm(t *testing.T) {
	assert.True(t, confirm(strings.NewReader("y\n"), ""))
	assert.True(t, confirm(strings.NewReader("Yes\n"), ""))
	assert.False(t, confirm(strings.NewReader("\n"), ""))
	assert.False(t, confirm(strings.NewReader(""), ""))
}
