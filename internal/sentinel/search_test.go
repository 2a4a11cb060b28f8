package sentinel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/forest-guardian/greenwatch/internal/greenness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImage struct {
	handle ImageHandle
	bands  map[greenness.Band]greenness.Grid
	err    error
}

// fakeArchive serves images per year and counts calls.
type fakeArchive struct {
	mu        sync.Mutex
	images    map[int][]fakeImage
	sizeErr   map[int]error
	queryErr  map[int]error
	sizeCalls []int
	queries   []Query
	sampled   []string
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		images:   map[int][]fakeImage{},
		sizeErr:  map[int]error{},
		queryErr: map[int]error{},
	}
}

func (f *fakeArchive) Size(_ context.Context, q Query) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sizeCalls = append(f.sizeCalls, q.Window.Year)
	if err := f.sizeErr[q.Window.Year]; err != nil {
		return 0, err
	}
	return len(f.images[q.Window.Year]), nil
}

func (f *fakeArchive) Query(_ context.Context, q Query) ([]ImageHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if err := f.queryErr[q.Window.Year]; err != nil {
		return nil, err
	}
	var handles []ImageHandle
	for _, img := range f.images[q.Window.Year] {
		if len(handles) == q.Limit {
			break
		}
		handles = append(handles, img.handle)
	}
	return handles, nil
}

func (f *fakeArchive) SampleBands(_ context.Context, image ImageHandle, _ []greenness.Band, _ Region) (map[greenness.Band]greenness.Grid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sampled = append(f.sampled, image.ID)
	for _, imgs := range f.images {
		for _, img := range imgs {
			if img.handle.ID == image.ID {
				return img.bands, img.err
			}
		}
	}
	return nil, fmt.Errorf("unknown image %s", image.ID)
}

func (f *fakeArchive) add(year int, id string, bands map[greenness.Band]greenness.Grid, err error) {
	f.images[year] = append(f.images[year], fakeImage{
		handle: ImageHandle{ID: id, AcquiredAt: time.Date(year, time.June, 1+len(f.images[year]), 0, 0, 0, 0, time.UTC)},
		bands:  bands,
		err:    err,
	})
}

func grid(rows, cols int, v float64) greenness.Grid {
	g := make(greenness.Grid, rows)
	for i := range g {
		g[i] = make([]float64, cols)
		for j := range g[i] {
			g[i][j] = v
		}
	}
	return g
}

func goodBands() map[greenness.Band]greenness.Grid {
	return map[greenness.Band]greenness.Grid{
		greenness.BandNIR:   grid(3, 3, 0.6),
		greenness.BandRed:   grid(3, 3, 0.1),
		greenness.BandGreen: grid(3, 3, 0.2),
	}
}

var (
	searchEnd   = time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	searchPoint = Point{Latitude: -3.1, Longitude: -60.0}
)

func TestSearch_ExhaustsLookbackWindow(t *testing.T) {
	archive := newFakeArchive()
	diag := NewDiagnostics()

	samples, err := Search(context.Background(), archive, searchPoint, searchEnd, DefaultOptions(), diag)

	require.Error(t, err)
	assert.Nil(t, samples)
	assert.True(t, errors.Is(err, ErrNoSamples))

	var noSamples *NoSamplesError
	require.True(t, errors.As(err, &noSamples))
	assert.Len(t, noSamples.Diagnostics, 8)
	assert.Equal(t, "Year 2024: ImageCollection size: 0", noSamples.Diagnostics[0])

	assert.Equal(t, []int{2024, 2023, 2022, 2021, 2020, 2019, 2018, 2017}, archive.sizeCalls)
	assert.Empty(t, archive.queries, "empty segments are not listed")
	assert.Equal(t, 8, diag.SegmentCount())
}

func TestSearch_StopsAtFirstProductiveSegment(t *testing.T) {
	archive := newFakeArchive()
	archive.add(2022, "S2_2022_a", goodBands(), nil)
	archive.add(2022, "S2_2022_b", goodBands(), nil)
	archive.add(2021, "S2_2021_a", goodBands(), nil)

	samples, err := Search(context.Background(), archive, searchPoint, searchEnd, DefaultOptions(), nil)

	require.NoError(t, err)
	require.Len(t, samples, 2, "a productive segment ends the search even below the requested count")
	assert.Equal(t, "S2_2022_a", samples[0].Image.ID)
	assert.Equal(t, "S2_2022_b", samples[1].Image.ID)
	assert.Equal(t, []int{2024, 2023, 2022}, archive.sizeCalls)
	assert.NotContains(t, archive.sampled, "S2_2021_a")
}

func TestSearch_SkipsUnusableCandidates(t *testing.T) {
	archive := newFakeArchive()
	missingNIR := map[greenness.Band]greenness.Grid{greenness.BandRed: grid(3, 3, 0.1)}
	empty := map[greenness.Band]greenness.Grid{greenness.BandNIR: {}, greenness.BandRed: {}}
	mismatch := map[greenness.Band]greenness.Grid{greenness.BandNIR: grid(3, 3, 0.5), greenness.BandRed: grid(2, 3, 0.1)}

	archive.add(2024, "missing", missingNIR, nil)
	archive.add(2024, "empty", empty, nil)
	archive.add(2024, "mismatch", mismatch, nil)
	archive.add(2024, "broken", nil, errors.New("sampling exploded"))
	archive.add(2024, "good", goodBands(), nil)

	diag := NewDiagnostics()
	samples, err := Search(context.Background(), archive, searchPoint, searchEnd, DefaultOptions(), diag)

	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "good", samples[0].Image.ID)

	var rejected, accepted int
	for _, e := range diag.Events() {
		if e.Kind != EventCandidate {
			continue
		}
		if e.Accepted {
			accepted++
		} else {
			rejected++
			assert.NotEmpty(t, e.Reason)
		}
	}
	assert.Equal(t, 4, rejected)
	assert.Equal(t, 1, accepted)
}

func noDataBands() map[greenness.Band]greenness.Grid {
	return map[greenness.Band]greenness.Grid{
		greenness.BandNIR: grid(3, 3, math.NaN()),
		greenness.BandRed: grid(3, 3, math.NaN()),
	}
}

func TestSearch_NoDataSampleDoesNotEndSearch(t *testing.T) {
	archive := newFakeArchive()
	archive.add(2024, "nodata", noDataBands(), nil)
	archive.add(2023, "S2_2023_a", goodBands(), nil)

	diag := NewDiagnostics()
	samples, err := Search(context.Background(), archive, searchPoint, searchEnd, DefaultOptions(), diag)

	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "S2_2023_a", samples[0].Image.ID)
	assert.Equal(t, []int{2024, 2023}, archive.sizeCalls)

	events := diag.Events()
	require.Len(t, events, 4)
	assert.Equal(t, "nodata", events[1].ImageID)
	assert.False(t, events[1].Accepted)
	assert.Contains(t, events[1].Reason, "all index values undefined")
	assert.True(t, events[3].Accepted)
}

func TestSearch_CustomAcceptRejects(t *testing.T) {
	archive := newFakeArchive()
	archive.add(2024, "S2_2024_a", goodBands(), nil)
	archive.add(2022, "S2_2022_a", goodBands(), nil)

	opts := DefaultOptions()
	opts.Accept = func(r greenness.Raster) error {
		if r.Date.Year() == 2024 {
			return errors.New("too recent")
		}
		return nil
	}
	diag := NewDiagnostics()
	samples, err := Search(context.Background(), archive, searchPoint, searchEnd, opts, diag)

	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "S2_2022_a", samples[0].Image.ID)
	assert.Contains(t, diag.Messages()[1], "rejected: too recent")
}

func TestSearch_OptionalBandMayBeAbsent(t *testing.T) {
	archive := newFakeArchive()
	archive.add(2024, "no-green", map[greenness.Band]greenness.Grid{
		greenness.BandNIR: grid(2, 2, 0.7),
		greenness.BandRed: grid(2, 2, 0.1),
	}, nil)

	samples, err := Search(context.Background(), archive, searchPoint, searchEnd, DefaultOptions(), nil)

	require.NoError(t, err)
	require.Len(t, samples, 1)
}

func TestSearch_ProviderUnavailableEscalates(t *testing.T) {
	archive := newFakeArchive()
	archive.sizeErr[2023] = fmt.Errorf("catalog search: %w", ErrProviderUnavailable)
	archive.add(2022, "S2_2022_a", goodBands(), nil)

	_, err := Search(context.Background(), archive, searchPoint, searchEnd, DefaultOptions(), nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderUnavailable))
	assert.False(t, errors.Is(err, ErrNoSamples))
	assert.Equal(t, []int{2024, 2023}, archive.sizeCalls)
}

func TestSearch_SamplingProviderErrorEscalates(t *testing.T) {
	archive := newFakeArchive()
	archive.add(2024, "down", nil, fmt.Errorf("process: %w", ErrProviderUnavailable))
	archive.add(2024, "good", goodBands(), nil)

	_, err := Search(context.Background(), archive, searchPoint, searchEnd, DefaultOptions(), nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderUnavailable))
	assert.Equal(t, []string{"down"}, archive.sampled)
}

func TestSearch_SegmentErrorIsRecordedAndSkipped(t *testing.T) {
	archive := newFakeArchive()
	archive.sizeErr[2024] = errors.New("bad filter")
	archive.add(2023, "S2_2023_a", goodBands(), nil)

	diag := NewDiagnostics()
	samples, err := Search(context.Background(), archive, searchPoint, searchEnd, DefaultOptions(), diag)

	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "Year 2024: Size error: bad filter", diag.Messages()[0])
}

func TestSearch_QueryErrorIsRecordedAsQuery(t *testing.T) {
	archive := newFakeArchive()
	archive.add(2024, "S2_2024_a", goodBands(), nil)
	archive.queryErr[2024] = errors.New("listing expired")
	archive.add(2023, "S2_2023_a", goodBands(), nil)

	diag := NewDiagnostics()
	samples, err := Search(context.Background(), archive, searchPoint, searchEnd, DefaultOptions(), diag)

	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "S2_2023_a", samples[0].Image.ID)
	first := diag.Events()[0]
	assert.Equal(t, stageQuery, first.Stage)
	assert.Equal(t, 1, first.Size)
	assert.Equal(t, "Year 2024: Query error: listing expired", diag.Messages()[0])
}

func TestSearch_LimitsCandidatesToCount(t *testing.T) {
	archive := newFakeArchive()
	for i := 0; i < 7; i++ {
		archive.add(2024, fmt.Sprintf("S2_%d", i), goodBands(), nil)
	}
	opts := DefaultOptions()
	opts.Count = 3

	samples, err := Search(context.Background(), archive, searchPoint, searchEnd, opts, nil)

	require.NoError(t, err)
	assert.Len(t, samples, 3)
	require.Len(t, archive.queries, 1)
	assert.Equal(t, 3, archive.queries[0].Limit)
}

func TestSearch_RejectsInvalidInput(t *testing.T) {
	archive := newFakeArchive()

	_, err := Search(context.Background(), archive, Point{Latitude: 91}, searchEnd, DefaultOptions(), nil)
	assert.True(t, errors.Is(err, ErrInvalidPoint))

	opts := DefaultOptions()
	opts.Count = 0
	_, err = Search(context.Background(), archive, searchPoint, searchEnd, opts, nil)
	assert.Error(t, err)
	assert.Empty(t, archive.sizeCalls)
}

func TestSearch_CancelledContext(t *testing.T) {
	archive := newFakeArchive()
	archive.add(2024, "S2_2024_a", goodBands(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Search(ctx, archive, searchPoint, searchEnd, DefaultOptions(), nil)

	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSearch_PrefetchKeepsOrder(t *testing.T) {
	archive := newFakeArchive()
	archive.sizeErr[2022] = fmt.Errorf("catalog search: %w", ErrProviderUnavailable)
	archive.add(2023, "S2_2023_a", goodBands(), nil)

	opts := DefaultOptions()
	opts.Prefetch = 3

	samples, err := Search(context.Background(), archive, searchPoint, searchEnd, opts, nil)

	require.NoError(t, err, "a failure in a later prefetched segment is never committed")
	require.Len(t, samples, 1)
	assert.Equal(t, "S2_2023_a", samples[0].Image.ID)
	assert.ElementsMatch(t, []int{2024, 2023, 2022}, archive.sizeCalls)
}

func TestSearch_PrefetchExhaustion(t *testing.T) {
	archive := newFakeArchive()
	opts := DefaultOptions()
	opts.Prefetch = 3

	diag := NewDiagnostics()
	_, err := Search(context.Background(), archive, searchPoint, searchEnd, opts, diag)

	assert.True(t, errors.Is(err, ErrNoSamples))
	assert.Len(t, archive.sizeCalls, 8)
	assert.Equal(t, 8, diag.SegmentCount())
	assert.Equal(t, "Year 2017: ImageCollection size: 0", diag.Messages()[7])
}

func TestSearch_OnEventCallback(t *testing.T) {
	archive := newFakeArchive()
	archive.add(2023, "S2_2023_a", goodBands(), nil)

	var kinds []EventKind
	diag := NewDiagnostics()
	diag.OnEvent = func(e Event) { kinds = append(kinds, e.Kind) }

	_, err := Search(context.Background(), archive, searchPoint, searchEnd, DefaultOptions(), diag)

	require.NoError(t, err)
	assert.Equal(t, []EventKind{EventSegment, EventSegment, EventCandidate}, kinds)
	assert.Equal(t, "Lat=-3.100000, Lon=-60.000000, Buffer=250m", diag.Region)
}

func TestSegments(t *testing.T) {
	segments := Segments(searchEnd, 3)

	require.Len(t, segments, 3)
	assert.Equal(t, 2024, segments[0].Year)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), segments[0].Start)
	assert.Equal(t, searchEnd, segments[0].End)
	assert.Equal(t, 2023, segments[1].Year)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), segments[1].End)
	assert.Equal(t, time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC), segments[2].Start)
}

func TestSegments_NoLookback(t *testing.T) {
	assert.Empty(t, Segments(searchEnd, 0))
}
