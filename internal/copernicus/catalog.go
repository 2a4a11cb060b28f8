package copernicus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/forest-guardian/greenwatch/internal/sentinel"
	"github.com/forest-guardian/greenwatch/internal/utils"
	"github.com/paulmach/orb/geojson"
)

const (
	collection  = "sentinel-2-l2a"
	catalogPath = "/api/v1/catalog/1.0.0/search"
	catalogPage = 100
	maxPages    = 50
)

type catalogRequest struct {
	Collections []string   `json:"collections"`
	BBox        [4]float64 `json:"bbox"`
	Datetime    string     `json:"datetime"`
	Limit       int        `json:"limit"`
	Next        int        `json:"next,omitempty"`
	Filter      string     `json:"filter,omitempty"`
	FilterLang  string     `json:"filter-lang,omitempty"`
}

type catalogResponse struct {
	Features []*geojson.Feature `json:"features"`
	Context  struct {
		Next     int `json:"next"`
		Returned int `json:"returned"`
	} `json:"context"`
}

// SearchScenes lists every Sentinel-2 L2A acquisition intersecting bbox within [start, end),
// most recent first. A positive maxCloudCover keeps scenes at or below that percentage.
func (c *Client) SearchScenes(ctx context.Context, bbox [4]float64, start, end time.Time, maxCloudCover float64) ([]sentinel.ImageHandle, error) {
	request := catalogRequest{
		Collections: []string{collection},
		BBox:        bbox,
		Datetime:    fmt.Sprintf("%s/%s", start.UTC().Format(time.RFC3339), end.Add(-time.Second).UTC().Format(time.RFC3339)),
		Limit:       catalogPage,
	}
	if maxCloudCover > 0 {
		request.Filter = fmt.Sprintf("eo:cloud_cover <= %g", maxCloudCover)
		request.FilterLang = "cql2-text"
	}

	var scenes []sentinel.ImageHandle
	for page := 0; page < maxPages; page++ {
		payload, err := json.Marshal(request)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal catalog request: %w", err)
		}

		body, err := c.post(ctx, catalogPath, payload, "application/geo+json")
		if err != nil {
			return nil, fmt.Errorf("catalog search: %w", err)
		}

		var response catalogResponse
		if err := json.Unmarshal(body, &response); err != nil {
			return nil, fmt.Errorf("failed to decode catalog response: %w", err)
		}

		for _, feature := range response.Features {
			scene, err := sceneFromFeature(feature)
			if err != nil {
				return nil, err
			}
			scenes = append(scenes, scene)
		}

		if response.Context.Next == 0 {
			break
		}
		request.Next = response.Context.Next
	}

	return utils.SortByDate(scenes, func(s sentinel.ImageHandle) time.Time { return s.AcquiredAt }, false), nil
}

func sceneFromFeature(feature *geojson.Feature) (sentinel.ImageHandle, error) {
	id, _ := feature.ID.(string)
	if id == "" {
		return sentinel.ImageHandle{}, fmt.Errorf("catalog feature without id")
	}

	acquired, err := time.Parse(time.RFC3339, feature.Properties.MustString("datetime", ""))
	if err != nil {
		return sentinel.ImageHandle{}, fmt.Errorf("catalog feature %s has invalid datetime: %w", id, err)
	}

	scene := sentinel.ImageHandle{ID: id, AcquiredAt: acquired}
	if cloud, ok := feature.Properties["eo:cloud_cover"].(float64); ok {
		scene.CloudCover = &cloud
	}
	return scene, nil
}
