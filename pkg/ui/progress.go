package ui

import (
	"context"
	"fmt"
	"time"
)

// Snapshot is the run state shown on a progress line
type Snapshot struct {
	Things        int64
	Files         int64
	Bytes         int64
	Visited       uint64
	LastCommitted uint64
	HasCommitted  bool
}

// Progress periodically prints a one-line status of a running mirror
type Progress struct {
	printer   *Printer
	interval  time.Duration
	snapshot  func() Snapshot
	startTime time.Time
	now       func() time.Time
}

// NewProgress creates a reporter that calls snapshot every interval
func NewProgress(p *Printer, interval time.Duration, snapshot func() Snapshot) *Progress {
	return &Progress{
		printer:   p,
		interval:  interval,
		snapshot:  snapshot,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Run prints until ctx is done
func (pr *Progress) Run(ctx context.Context) {
	ticker := time.NewTicker(pr.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintln(pr.printer.Writer(), pr.Line(pr.snapshot()))
		}
	}
}

// Rate returns mirrored things per minute since the reporter was created
func (pr *Progress) Rate(s Snapshot) float64 {
	elapsed := pr.now().Sub(pr.startTime).Minutes()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.Things) / elapsed
}

// Line formats a snapshot
func (pr *Progress) Line(s Snapshot) string {
	checkpoint := "none"
	if s.HasCommitted {
		checkpoint = fmt.Sprintf("%d", s.LastCommitted)
	}
	return fmt.Sprintf("%s things %d | files %d | %s | visited %d | checkpoint %s | %.1f/min",
		pr.printer.Green("[MIRROR]"),
		s.Things, s.Files, FormatBytes(s.Bytes), s.Visited, checkpoint, pr.Rate(s))
}

// FormatBytes renders n with a binary unit
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
