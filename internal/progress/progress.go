// Package progress renders upload progress as log lines.
package progress

import (
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/docker/go-units"
	"github.com/oyoms/go-officeclient/transfer"
)

const barWidth = 30

var labelStyle = lipgloss.NewStyle().Bold(true)

// Reporter prints one line per uploaded chunk.
type Reporter struct {
	logger log.Logger
	label  string
	bar    progress.Model
}

// NewReporter ...
func NewReporter(logger log.Logger, label string) *Reporter {
	return &Reporter{
		logger: logger,
		label:  label,
		bar:    progress.New(progress.WithWidth(barWidth), progress.WithoutPercentage(), progress.WithSolidFill("63")),
	}
}

// Func returns a transfer.ProgressFunc bound to r.
func (r *Reporter) Func() transfer.ProgressFunc {
	return r.Report
}

// Report logs p.
func (r *Reporter) Report(p transfer.Progress) {
	r.logger.Printf("%s", r.Line(p))
}

// Line formats p as a label, a bar and the transferred sizes.
func (r *Reporter) Line(p transfer.Progress) string {
	return fmt.Sprintf("%s %s %s", labelStyle.Render(r.label), r.bar.ViewAs(p.Fraction()), Summary(p))
}

// Summary describes p without the bar, for example "1.5MiB / 3MiB (1/2 chunks, 768KiB/s)".
func Summary(p transfer.Progress) string {
	s := fmt.Sprintf("%s / %s (%d/%d chunks",
		units.BytesSize(float64(p.BytesSent)), units.BytesSize(float64(p.TotalBytes)), p.ChunksSent, p.ChunkCount)
	if rate := Rate(p); rate > 0 {
		s += fmt.Sprintf(", %s/s", units.BytesSize(rate))
	}
	return s + ")"
}

// Rate is the average throughput in bytes per second, 0 before any time has passed.
func Rate(p transfer.Progress) float64 {
	if p.Elapsed < time.Millisecond {
		return 0
	}
	return float64(p.BytesSent) / p.Elapsed.Seconds()
}
