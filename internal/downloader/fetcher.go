package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"pixivcrawl/pkg/errors"
	"pixivcrawl/pkg/logger"
	"pixivcrawl/pkg/models"
)

// Status is the final state of a download job
type Status string

const (
	OutcomeSucceeded   Status = "succeeded"
	OutcomeFailed      Status = "failed"
	OutcomeWriteFailed Status = "write_failed"
	OutcomeSkipped     Status = "skipped"
)

// FetchOutcome reports what happened to a single job
type FetchOutcome struct {
	Job        models.DownloadJob
	Status     Status
	Candidate  Candidate   // the candidate that answered 200, if any
	Candidates []Candidate // every candidate that was resolved
	Attempts   int
	LastStatus int
	Path       string
	Bytes      int64
	Duration   time.Duration
	Err        error
}

// FileStore is where downloads are written
type FileStore interface {
	IllustrationPath(id int64, title, ext string) string
	Exists(path string) bool
	Save(r io.Reader, path string) (int64, error)
}

// FetcherOptions configures a Fetcher
type FetcherOptions struct {
	Client            *http.Client
	Timeout           time.Duration // ignored when Client is set
	UserAgent         string
	Referer           string
	Rewrite           Rewrite
	OverwriteExisting bool
}

// Fetcher downloads one job by trying its candidates in order
type Fetcher struct {
	client    *http.Client
	store     FileStore
	rewrite   Rewrite
	userAgent string
	referer   string
	overwrite bool
	logger    logger.Logger
}

// NewFetcher creates a Fetcher writing into store
func NewFetcher(opts FetcherOptions, store FileStore, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0"
	}

	return &Fetcher{
		client:    client,
		store:     store,
		rewrite:   opts.Rewrite,
		userAgent: opts.UserAgent,
		referer:   opts.Referer,
		overwrite: opts.OverwriteExisting,
		logger:    log.WithField("component", "fetcher"),
	}
}

// Fetch tries each candidate of job at most once, in order, and stops at the
// first one that answers 200. The body is streamed to the destination named
// after the job and the winning candidate's suffix.
func (f *Fetcher) Fetch(ctx context.Context, job models.DownloadJob) FetchOutcome {
	start := time.Now()
	outcome := FetchOutcome{
		Job:        job,
		Candidates: ResolveCandidates(job.MediaReference, f.rewrite),
	}
	defer func() { outcome.Duration = time.Since(start) }()

	if len(outcome.Candidates) == 0 {
		outcome.Status = OutcomeFailed
		outcome.Err = errors.New(errors.ErrorTypeParsing, "illustration has no media reference")
		return outcome
	}

	if !f.overwrite {
		for _, c := range outcome.Candidates {
			path := f.store.IllustrationPath(job.IllustID, job.Title, c.Suffix)
			if f.store.Exists(path) {
				outcome.Status = OutcomeSkipped
				outcome.Candidate = c
				outcome.Path = path
				return outcome
			}
		}
	}

	var lastErr error
	for i, c := range outcome.Candidates {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		outcome.Attempts++

		resp, err := f.get(ctx, c.URL)
		if err != nil {
			lastErr = err
			outcome.LastStatus = 0
		} else if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = nil
			outcome.LastStatus = resp.StatusCode
		} else {
			outcome.LastStatus = resp.StatusCode
			outcome.Candidate = c
			outcome.Path = f.store.IllustrationPath(job.IllustID, job.Title, c.Suffix)

			n, err := f.store.Save(resp.Body, outcome.Path)
			resp.Body.Close()
			outcome.Bytes = n
			if err != nil {
				outcome.Status = OutcomeWriteFailed
				outcome.Err = errors.Wrap(errors.ErrorTypeWrite, err, fmt.Sprintf("cannot write %s", outcome.Path))
				return outcome
			}
			outcome.Status = OutcomeSucceeded
			return outcome
		}

		if i < len(outcome.Candidates)-1 {
			logger.LogFallback(f.logger, job.IllustID, c.URL, outcome.LastStatus, lastErr)
		}
	}

	outcome.Status = OutcomeFailed
	outcome.Err = exhaustedError(len(outcome.Candidates), outcome.LastStatus, lastErr)
	return outcome
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	if f.referer != "" {
		req.Header.Set("Referer", f.referer)
	}
	return f.client.Do(req)
}

func exhaustedError(count, lastStatus int, lastErr error) error {
	msg := fmt.Sprintf("all %d candidates failed", count)
	if lastErr != nil {
		return errors.Wrap(errors.ErrorTypeNetwork, lastErr, msg)
	}

	errorType := errors.ErrorTypeUnknown
	switch {
	case lastStatus == http.StatusNotFound:
		errorType = errors.ErrorTypeNotFound
	case lastStatus == http.StatusTooManyRequests:
		errorType = errors.ErrorTypeRateLimit
	case lastStatus >= 500:
		errorType = errors.ErrorTypeServerError
	}
	e := errors.New(errorType, msg)
	e.Code = lastStatus
	return e
}
