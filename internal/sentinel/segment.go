package sentinel

import (
	"fmt"
	"time"
)

// Segment is a half-open [Start, End) window covering at most one calendar year.
type Segment struct {
	Year  int
	Start time.Time
	End   time.Time
}

func (s Segment) String() string {
	return fmt.Sprintf("%d [%s, %s)", s.Year, s.Start.Format("2006-01-02"), s.End.Format(time.RFC3339))
}

// Segments returns the year segments searched for an end date, newest first. The segment
// containing end stops at end; earlier segments cover whole calendar years.
func Segments(end time.Time, lookbackYears int) []Segment {
	segments := make([]Segment, 0, lookbackYears)
	for offset := 0; offset < lookbackYears; offset++ {
		year := end.Year() - offset
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, end.Location())
		segmentEnd := time.Date(year+1, time.January, 1, 0, 0, 0, 0, end.Location())
		if offset == 0 {
			segmentEnd = end
		}
		segments = append(segments, Segment{Year: year, Start: start, End: segmentEnd})
	}
	return segments
}
