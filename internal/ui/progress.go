package ui

import (
	"fmt"
	"io"

	"github.com/forest-guardian/greenwatch/internal/sentinel"
	"github.com/schollz/progressbar/v3"
)

// SearchProgress advances one step per searched year.
type SearchProgress struct {
	bar *progressbar.ProgressBar
}

func NewSearchProgress(years int, w io.Writer) *SearchProgress {
	bar := progressbar.NewOptions(years,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Searching Sentinel-2 archive"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	return &SearchProgress{bar: bar}
}

// OnEvent is meant for sentinel.Diagnostics.OnEvent.
func (p *SearchProgress) OnEvent(e sentinel.Event) {
	switch e.Kind {
	case sentinel.EventSegment:
		p.bar.Describe(fmt.Sprintf("Year %d", e.Year))
		p.bar.Add(1)
	case sentinel.EventCandidate:
		if e.Accepted {
			p.bar.Describe(fmt.Sprintf("Year %d: sample %s accepted", e.Year, e.Date))
		}
	}
}

func (p *SearchProgress) Finish() {
	p.bar.Finish()
}

// Steps returns the number of years searched so far.
func (p *SearchProgress) Steps() int {
	return int(p.bar.State().CurrentNum)
}
