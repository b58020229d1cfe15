package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"pixivcrawl/internal/downloader"
)

// ProgressDisplay prints one line per scanned page and per finished batch.
// It satisfies crawler.Observer.
type ProgressDisplay struct {
	mu         sync.Mutex
	w          io.Writer
	startTime  time.Time
	downloaded int
	failed     int
	skipped    int
	bytes      int64
	now        func() time.Time
}

// NewProgressDisplay creates a display writing to w
func NewProgressDisplay(w io.Writer) *ProgressDisplay {
	return &ProgressDisplay{
		w:         w,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// PageScanned reports a page of search results
func (p *ProgressDisplay) PageScanned(keyword string, page, fetched, accepted int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "%s %s page %d • %d found • %d new\n",
		Magenta("[SCANNING]"), Cyan(keyword), page+1, fetched, accepted)
}

// BatchCompleted reports a drained download batch
func (p *ProgressDisplay) BatchCompleted(keyword string, report downloader.BatchReport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.downloaded += report.Succeeded
	p.failed += report.Failed + report.WriteFailed
	p.skipped += report.Skipped
	for _, o := range report.Outcomes {
		p.bytes += o.Bytes
	}

	line := fmt.Sprintf("%s %d/%d in %s • total %d • %s • %.1f/min",
		Green("[EXTRACTED]"),
		report.Succeeded,
		report.Total,
		formatDuration(report.Duration),
		p.downloaded,
		formatBytes(p.bytes),
		p.rate(),
	)
	if p.failed > 0 {
		line += " • " + Red(fmt.Sprintf("%d failed", p.failed))
	}
	if p.skipped > 0 {
		line += " • " + Dim(fmt.Sprintf("%d skipped", p.skipped))
	}
	fmt.Fprintln(p.w, line)
}

// rate returns downloads per minute since the display was created
func (p *ProgressDisplay) rate() float64 {
	elapsed := p.now().Sub(p.startTime).Minutes()
	if elapsed <= 0 {
		return 0
	}
	return float64(p.downloaded) / elapsed
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// formatBytes formats bytes in a human-readable way
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
