package ui

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// RunSummary is what the closing banner reports
type RunSummary struct {
	RunID        string
	Keywords     []string
	PagesScanned int
	ItemsScanned int
	NewItems     int
	Downloaded   int
	Failed       int
	Skipped      int
	TotalKnown   int
	RecordPath   string
	StopReason   string
	Elapsed      time.Duration

	FailedKeywords []string
}

// PrintSummary writes the end of run banner to w
func PrintSummary(w io.Writer, s RunSummary) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(w)
	fmt.Fprintln(w, Cyan(rule))
	fmt.Fprintln(w, Cyan("  CRAWL SUMMARY"))
	fmt.Fprintln(w, Cyan(rule))

	row := func(label, value string) {
		fmt.Fprintf(w, "  %-16s %s\n", label+":", Yellow(value))
	}
	row("Keywords", strings.Join(s.Keywords, ", "))
	row("Pages Scanned", fmt.Sprint(s.PagesScanned))
	row("Items Scanned", fmt.Sprint(s.ItemsScanned))
	row("New Items", fmt.Sprint(s.NewItems))
	row("Downloaded", fmt.Sprint(s.Downloaded))
	if s.Failed > 0 {
		fmt.Fprintf(w, "  %-16s %s\n", "Failed:", Red(fmt.Sprint(s.Failed)))
	}
	if s.Skipped > 0 {
		row("Skipped", fmt.Sprint(s.Skipped))
	}
	row("Total Known", fmt.Sprint(s.TotalKnown))
	if s.RecordPath != "" {
		row("Record", s.RecordPath)
	}
	if len(s.FailedKeywords) > 0 {
		fmt.Fprintf(w, "  %-16s %s\n", "Failed Keywords:", Red(strings.Join(s.FailedKeywords, ", ")))
	}
	if s.StopReason != "" {
		row("Stopped", s.StopReason)
	}
	row("Time Used", FormatElapsed(s.Elapsed))
	if s.RunID != "" {
		fmt.Fprintf(w, "  %s\n", Dim("run "+s.RunID))
	}
	fmt.Fprintln(w, Cyan(rule))
}

// FormatElapsed renders d as "N min M sec"
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%d min %d sec", total/60, total%60)
}
