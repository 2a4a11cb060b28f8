package sentinel

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/forest-guardian/greenwatch/internal/greenness"
)

type EventKind string

const (
	EventSegment   EventKind = "segment"
	EventCandidate EventKind = "candidate"
)

// Event is one diagnostic entry produced by a search.
type Event struct {
	Kind     EventKind         `json:"kind"`
	Year     int               `json:"year"`
	Size     int               `json:"size,omitempty"`
	Index    int               `json:"index,omitempty"`
	ImageID  string            `json:"image_id,omitempty"`
	Date     string            `json:"date,omitempty"`
	Shapes   map[string][2]int `json:"shapes,omitempty"`
	Stage    string            `json:"stage,omitempty"`
	Accepted bool              `json:"accepted"`
	Reason   string            `json:"reason,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case EventSegment:
		if e.Reason != "" {
			stage := e.Stage
			if stage == "" {
				stage = stageSize
			}
			return fmt.Sprintf("Year %d: %s error: %s", e.Year, stage, e.Reason)
		}
		return fmt.Sprintf("Year %d: ImageCollection size: %d", e.Year, e.Size)
	default:
		if e.Date == "" {
			return fmt.Sprintf("Image %d: Exception: %s", e.Index, e.Reason)
		}
		msg := fmt.Sprintf("Image %d, Date=%s, Array shapes: %s", e.Index, e.Date, formatShapes(e.Shapes))
		if e.Reason != "" {
			msg += ", rejected: " + e.Reason
		}
		return msg
	}
}

func formatShapes(shapes map[string][2]int) string {
	keys := make([]string, 0, len(shapes))
	for k := range shapes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: (%d, %d)", k, shapes[k][0], shapes[k][1]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func bandShapes(bands map[greenness.Band]greenness.Grid) map[string][2]int {
	shapes := make(map[string][2]int, len(bands))
	for band, grid := range bands {
		rows, cols := grid.Shape()
		shapes[string(band)] = [2]int{rows, cols}
	}
	return shapes
}

// Diagnostics collects the outcome of every segment query and candidate of one search.
// It belongs to a single request; OnEvent, when set, is called for each recorded event.
type Diagnostics struct {
	Region  string
	OnEvent func(Event)

	mu     sync.Mutex
	events []Event
}

func NewDiagnostics() *Diagnostics {
	return &Diagnostics{}
}

func (d *Diagnostics) record(e Event) {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.events = append(d.events, e)
	d.mu.Unlock()
	if d.OnEvent != nil {
		d.OnEvent(e)
	}
}

func (d *Diagnostics) Events() []Event {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

// Messages renders the events as human readable lines.
func (d *Diagnostics) Messages() []string {
	events := d.Events()
	messages := make([]string, 0, len(events))
	for _, e := range events {
		messages = append(messages, e.String())
	}
	return messages
}

// SegmentCount returns the number of segment queries recorded.
func (d *Diagnostics) SegmentCount() int {
	count := 0
	for _, e := range d.Events() {
		if e.Kind == EventSegment {
			count++
		}
	}
	return count
}
