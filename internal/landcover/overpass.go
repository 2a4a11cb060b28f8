package landcover

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/forest-guardian/greenwatch/internal/properties"
	"github.com/serjvanilla/go-overpass"
)

type querier interface {
	Query(query string) (overpass.Result, error)
}

// Summary counts mapped land-cover features around an analyzed point.
type Summary struct {
	Features int            `json:"features"`
	Classes  map[string]int `json:"classes"`
	Dominant string         `json:"dominant,omitempty"`
}

type Service struct {
	client  querier
	timeout time.Duration
}

func NewService(endpoint string, timeout time.Duration) *Service {
	httpClient := &http.Client{
		Timeout: timeout,
	}
	client := overpass.NewWithSettings(endpoint, 2, httpClient)
	return &Service{
		client:  &client,
		timeout: timeout,
	}
}

// NewServiceFromEnv returns nil when no Overpass endpoint is configured.
func NewServiceFromEnv() *Service {
	endpoint := properties.OverpassURL()
	if endpoint == "" {
		return nil
	}
	return NewService(endpoint, 30*time.Second)
}

// Describe summarizes the vegetation-related features inside bbox ([minLon, minLat, maxLon, maxLat]).
func (s *Service) Describe(ctx context.Context, bbox [4]float64) (*Summary, error) {
	area := fmt.Sprintf("%f,%f,%f,%f", bbox[1], bbox[0], bbox[3], bbox[2])
	query := fmt.Sprintf(`
		[out:json][timeout:25];
		(
			way["landuse"~"forest|farmland|meadow"](%[1]s);
			way["natural"~"wood|wetland|scrub"](%[1]s);
			relation["landuse"~"forest|farmland|meadow"](%[1]s);
			relation["natural"~"wood|wetland|scrub"](%[1]s);
		);
		out tags;
	`, area)

	result, err := s.executeQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute land cover query: %w", err)
	}

	return summarize(result), nil
}

func (s *Service) executeQuery(ctx context.Context, query string) (*overpass.Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	type response struct {
		result overpass.Result
		err    error
	}
	done := make(chan response, 1)
	go func() {
		result, err := s.client.Query(query)
		done <- response{result, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("overpass query failed: %w", r.err)
		}
		return &r.result, nil
	}
}

func summarize(result *overpass.Result) *Summary {
	summary := &Summary{Classes: map[string]int{}}
	add := func(tags map[string]string) {
		if class := classify(tags); class != "" {
			summary.Classes[class]++
			summary.Features++
		}
	}
	for _, way := range result.Ways {
		add(way.Tags)
	}
	for _, relation := range result.Relations {
		add(relation.Tags)
	}

	classes := make([]string, 0, len(summary.Classes))
	for class := range summary.Classes {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool {
		if summary.Classes[classes[i]] != summary.Classes[classes[j]] {
			return summary.Classes[classes[i]] > summary.Classes[classes[j]]
		}
		return classes[i] < classes[j]
	})
	if len(classes) > 0 {
		summary.Dominant = classes[0]
	}
	return summary
}

func classify(tags map[string]string) string {
	switch tags["natural"] {
	case "wood":
		return "wood"
	case "scrub":
		return "scrub"
	case "wetland":
		if tags["wetland"] == "mangrove" {
			return "mangrove"
		}
		return "wetland"
	}
	switch tags["landuse"] {
	case "forest":
		return "forest"
	case "farmland", "meadow":
		return "farmland"
	}
	return ""
}
