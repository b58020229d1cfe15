package crawler

import (
	"time"

	"github.com/google/uuid"
	"pixivcrawl/internal/downloader"
)

// Reasons a run stopped early
const (
	StopReasonItemCap       = "item_cap"
	StopReasonCancelled     = "cancelled"
	StopReasonProviderError = "provider_error"
)

// RunState carries the counters of one crawl through every phase
type RunState struct {
	RunID     string
	Keywords  []string
	StartedAt time.Time

	PagesScanned int
	ItemsScanned int
	AlreadyKnown int
	OverCap      int
	Accepted     int

	Downloaded int
	Failed     int
	Skipped    int

	// NextSequence is the sequence number the next accepted item gets
	NextSequence int

	FailedKeywords []string
	StopReason     string
}

// NewRunState starts a run for keywords
func NewRunState(keywords []string) *RunState {
	return &RunState{
		RunID:     uuid.NewString(),
		Keywords:  append([]string(nil), keywords...),
		StartedAt: time.Now(),
	}
}

// takeSequence returns the next sequence number and advances the counter
func (s *RunState) takeSequence() int {
	seq := s.NextSequence
	s.NextSequence++
	return seq
}

// absorb adds a batch report to the download counters
func (s *RunState) absorb(report downloader.BatchReport) {
	s.Downloaded += report.Succeeded
	s.Failed += report.Failed + report.WriteFailed
	s.Skipped += report.Skipped
}

// Elapsed returns the time since the run started
func (s *RunState) Elapsed() time.Duration {
	return time.Since(s.StartedAt)
}
