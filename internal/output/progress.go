/*
PURPOSE:
  Progress bar over the whole grid; skips advance it too.

USAGE:
  p := output.NewProgress(os.Stderr, "GROK2", total)
*/

package output

import (
	"fmt"
	"io"

	"github.com/daryltucker/bench-sweep/internal/model"
	"github.com/schollz/progressbar/v3"
)

// Progress renders sweep progress as a terminal bar. Skipped and attempted
// combinations both advance it.
type Progress struct {
	bar *progressbar.ProgressBar
}

// NewProgress creates a bar for total combinations written to w.
func NewProgress(w io.Writer, model string, total int) *Progress {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(fmt.Sprintf("Sweep %s", model)),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
	return &Progress{bar: bar}
}

// Write advances the bar for a finished attempt.
func (p *Progress) Write(a model.Attempt) error {
	p.bar.Describe(fmt.Sprintf("%s [%s]", a.Identity, a.Status))
	return p.bar.Add(1)
}

// Skip advances the bar for a combination that was already complete.
func (p *Progress) Skip(identity string) {
	p.bar.Describe(fmt.Sprintf("%s [skipped]", identity))
	_ = p.bar.Add(1)
}

// Finish completes the bar.
func (p *Progress) Finish() error {
	return p.bar.Finish()
}
