package copernicus

import (
	"context"
	"fmt"
	"sync"

	"github.com/forest-guardian/greenwatch/internal/cache"
	"github.com/forest-guardian/greenwatch/internal/greenness"
	"github.com/forest-guardian/greenwatch/internal/sentinel"
)

// Archive serves the historical search from the Copernicus catalog and process APIs.
type Archive struct {
	client *Client
	cache  cache.CacheService[map[string][][]float64]

	// pending holds listings fetched by Size until the following Query on the same
	// segment takes them.
	mu      sync.Mutex
	pending map[string][]sentinel.ImageHandle
}

// NewArchive returns an archive backed by client. A nil cache disables band caching.
func NewArchive(client *Client, bandCache cache.CacheService[map[string][][]float64]) *Archive {
	return &Archive{
		client:  client,
		cache:   bandCache,
		pending: make(map[string][]sentinel.ImageHandle),
	}
}

func (a *Archive) Size(ctx context.Context, q sentinel.Query) (int, error) {
	scenes, err := a.client.SearchScenes(ctx, q.Region.BBox(), q.Window.Start, q.Window.End, q.MaxCloudCover)
	if err != nil {
		return 0, err
	}
	if len(scenes) > 0 {
		a.mu.Lock()
		a.pending[listingKey(q)] = scenes
		a.mu.Unlock()
	}
	return len(scenes), nil
}

func (a *Archive) Query(ctx context.Context, q sentinel.Query) ([]sentinel.ImageHandle, error) {
	key := listingKey(q)
	a.mu.Lock()
	scenes, ok := a.pending[key]
	delete(a.pending, key)
	a.mu.Unlock()

	if !ok {
		var err error
		scenes, err = a.client.SearchScenes(ctx, q.Region.BBox(), q.Window.Start, q.Window.End, q.MaxCloudCover)
		if err != nil {
			return nil, err
		}
	}
	if q.Limit > 0 && len(scenes) > q.Limit {
		scenes = scenes[:q.Limit]
	}
	return append([]sentinel.ImageHandle(nil), scenes...), nil
}

func listingKey(q sentinel.Query) string {
	return fmt.Sprintf("%v|%d|%d|%g", q.Region.BBox(), q.Window.Start.Unix(), q.Window.End.Unix(), q.MaxCloudCover)
}

func (a *Archive) SampleBands(ctx context.Context, image sentinel.ImageHandle, bands []greenness.Band, region sentinel.Region) (map[greenness.Band]greenness.Grid, error) {
	names := make([]string, 0, len(bands))
	for _, band := range bands {
		name, ok := bandNames[band]
		if !ok {
			return nil, fmt.Errorf("%w: %s", sentinel.ErrBandMissing, band)
		}
		names = append(names, name)
	}

	bbox := region.BBox()
	var key string
	if a.cache != nil {
		key = a.cache.GenerateKey(image.ID, bbox, names)
		if cached, ok := a.cache.Get(key); ok {
			return toBands(cached), nil
		}
	}

	grids, err := a.client.RequestBands(ctx, image, names, bbox)
	if err != nil {
		return nil, err
	}

	sampled := make(map[greenness.Band]greenness.Grid, len(bands))
	for i, band := range bands {
		sampled[band] = grids[i]
	}

	if a.cache != nil {
		if err := a.cache.Set(key, fromBands(sampled)); err != nil {
			fmt.Printf("\033[33mFailed to cache bands of %s: %v\033[0m\n", image.ID, err)
		}
	}
	return sampled, nil
}

func toBands(cached map[string][][]float64) map[greenness.Band]greenness.Grid {
	bands := make(map[greenness.Band]greenness.Grid, len(cached))
	for name, grid := range cached {
		bands[greenness.Band(name)] = greenness.Grid(grid)
	}
	return bands
}

func fromBands(bands map[greenness.Band]greenness.Grid) map[string][][]float64 {
	out := make(map[string][][]float64, len(bands))
	for band, grid := range bands {
		out[string(band)] = [][]float64(grid)
	}
	return out
}
