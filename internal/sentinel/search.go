package sentinel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/forest-guardian/greenwatch/internal/greenness"
	"github.com/forest-guardian/greenwatch/internal/properties"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	BufferMeters float64
	// Count is both the per-segment query limit and the maximum number of samples returned.
	Count         int
	LookbackYears int
	Required      []greenness.Band
	Optional      []greenness.Band
	// MaxCloudCover filters scenes by cloud percentage. Zero disables the filter.
	MaxCloudCover float64
	// Prefetch is the number of segments queried concurrently ahead of the one being sampled.
	Prefetch int
	// Accept rejects samples the historical estimator cannot use. Nil checks them with
	// the reflectance estimator at the configured threshold.
	Accept func(greenness.Raster) error
}

func DefaultOptions() Options {
	return Options{
		BufferMeters:  250,
		Count:         5,
		LookbackYears: 8,
		Required:      []greenness.Band{greenness.BandNIR, greenness.BandRed},
		Optional:      []greenness.Band{greenness.BandGreen},
		Prefetch:      1,
	}
}

func OptionsFromEnv() Options {
	opts := DefaultOptions()
	opts.BufferMeters = properties.RegionBufferMeters()
	opts.Count = properties.PreviousImages()
	opts.LookbackYears = properties.MaxLookbackYears()
	opts.MaxCloudCover = properties.MaxCloudCover()
	opts.Prefetch = properties.SearchPrefetchYears()
	return opts
}

func (o Options) bands() []greenness.Band {
	return append(append([]greenness.Band{}, o.Required...), o.Optional...)
}

// step is a state of the search progression.
type step int

const (
	stepQuery step = iota
	stepSample
	stepAdvance
	stepDone
)

type segmentResult struct {
	size    int
	handles []ImageHandle
	err     error
	// stage names the archive call that failed.
	stage string
}

const (
	stageSize  = "Size"
	stageQuery = "Query"
)

type search struct {
	ctx      context.Context
	archive  Archive
	opts     Options
	region   Region
	segments []Segment
	diag     *Diagnostics

	index             int
	prefetched        map[int]segmentResult
	candidates        []ImageHandle
	acceptedInSegment int
	accepted          []Sample
	err               error
}

// Search walks backward year by year from end until a segment yields at least one usable
// sample or the lookback window is exhausted. Samples are returned newest first, truncated
// to opts.Count.
func Search(ctx context.Context, archive Archive, point Point, end time.Time, opts Options, diag *Diagnostics) ([]Sample, error) {
	if err := point.Validate(); err != nil {
		return nil, err
	}
	if opts.Count <= 0 {
		return nil, fmt.Errorf("sample count must be positive, got %d", opts.Count)
	}
	if len(opts.Required) == 0 {
		opts.Required = DefaultOptions().Required
	}
	if opts.Accept == nil {
		opts.Accept = EstimatorAccept(greenness.NewReflectance(properties.ReflectanceVegetationThreshold()))
	}
	if diag == nil {
		diag = NewDiagnostics()
	}

	region := NewRegion(point, opts.BufferMeters)
	diag.Region = region.String()
	log.Printf("Sampling region: %s", region)

	s := &search{
		ctx:        ctx,
		archive:    archive,
		opts:       opts,
		region:     region,
		segments:   Segments(end, opts.LookbackYears),
		diag:       diag,
		prefetched: make(map[int]segmentResult),
	}
	s.run()

	if s.err != nil {
		return nil, s.err
	}
	if len(s.accepted) == 0 {
		return nil, &NoSamplesError{Diagnostics: diag.Messages()}
	}
	if len(s.accepted) > opts.Count {
		s.accepted = s.accepted[:opts.Count]
	}
	return s.accepted, nil
}

func (s *search) run() {
	next := stepQuery
	if len(s.segments) == 0 {
		next = stepDone
	}
	for next != stepDone {
		switch next {
		case stepQuery:
			next = s.query()
		case stepSample:
			next = s.sample()
		case stepAdvance:
			next = s.advance()
		}
	}
}

func (s *search) query() step {
	s.acceptedInSegment = 0
	s.candidates = nil
	segment := s.segments[s.index]

	result := s.fetch(s.index)
	if result.err != nil {
		if escalates(result.err) {
			s.err = result.err
			return stepDone
		}
		s.diag.record(Event{Kind: EventSegment, Year: segment.Year, Size: result.size, Stage: result.stage, Reason: result.err.Error()})
		return stepAdvance
	}

	s.diag.record(Event{Kind: EventSegment, Year: segment.Year, Size: result.size})
	if result.size == 0 {
		return stepAdvance
	}
	s.candidates = result.handles
	return stepSample
}

func (s *search) sample() step {
	for i, image := range s.candidates {
		if err := s.ctx.Err(); err != nil {
			s.err = err
			return stepDone
		}

		event := Event{Kind: EventCandidate, Year: s.segments[s.index].Year, Index: i, ImageID: image.ID}
		bands, err := s.archive.SampleBands(s.ctx, image, s.opts.bands(), s.region)
		if err != nil {
			if escalates(err) {
				s.err = err
				return stepDone
			}
			event.Reason = err.Error()
			s.diag.record(event)
			continue
		}

		event.Date = image.AcquiredAt.Format("2006-01-02")
		event.Shapes = bandShapes(bands)
		if err := s.validate(image, bands); err != nil {
			event.Reason = err.Error()
			s.diag.record(event)
			continue
		}

		event.Accepted = true
		s.diag.record(event)
		s.accepted = append(s.accepted, Sample{Image: image, Bands: bands})
		s.acceptedInSegment++
	}
	return stepAdvance
}

// advance stops at the first segment with an accepted sample, even when it holds fewer
// samples than requested.
func (s *search) advance() step {
	if s.acceptedInSegment > 0 {
		return stepDone
	}
	s.index++
	if s.index >= len(s.segments) {
		return stepDone
	}
	return stepQuery
}

// validate checks the band shapes, then lets opts.Accept reject samples that would
// only be dropped after the search, such as scenes with no valid pixel.
func (s *search) validate(image ImageHandle, bands map[greenness.Band]greenness.Grid) error {
	present := append([]greenness.Band{}, s.opts.Required...)
	for _, band := range s.opts.Optional {
		if _, ok := bands[band]; ok {
			present = append(present, band)
		}
	}
	raster := greenness.Raster{Bands: bands}
	if _, _, err := raster.Shape(present...); err != nil {
		return err
	}
	return s.opts.Accept(Sample{Image: image, Bands: bands}.Raster())
}

// EstimatorAccept accepts the samples e can estimate.
func EstimatorAccept(e greenness.Estimator) func(greenness.Raster) error {
	return func(r greenness.Raster) error {
		_, err := e.Estimate(r)
		return err
	}
}

// fetch returns the size and candidates of a segment. With prefetching enabled the next
// segments are queried concurrently; their results are only consumed in order.
func (s *search) fetch(index int) segmentResult {
	if s.opts.Prefetch <= 1 {
		return s.fetchSegment(s.segments[index])
	}

	if result, ok := s.prefetched[index]; ok {
		delete(s.prefetched, index)
		return result
	}

	last := index + s.opts.Prefetch
	if last > len(s.segments) {
		last = len(s.segments)
	}
	results := make([]segmentResult, last-index)
	var g errgroup.Group
	g.SetLimit(s.opts.Prefetch)
	for i := index; i < last; i++ {
		i := i
		g.Go(func() error {
			results[i-index] = s.fetchSegment(s.segments[i])
			return nil
		})
	}
	g.Wait()

	for i := index + 1; i < last; i++ {
		s.prefetched[i] = results[i-index]
	}
	return results[0]
}

func (s *search) fetchSegment(segment Segment) segmentResult {
	q := Query{
		Region:        s.region,
		Window:        segment,
		Limit:         s.opts.Count,
		MaxCloudCover: s.opts.MaxCloudCover,
	}

	size, err := s.archive.Size(s.ctx, q)
	if err != nil {
		return segmentResult{err: err, stage: stageSize}
	}
	log.Printf("Year %d: ImageCollection size after filters: %d", segment.Year, size)
	if size == 0 {
		return segmentResult{}
	}

	handles, err := s.archive.Query(s.ctx, q)
	if err != nil {
		return segmentResult{size: size, err: err, stage: stageQuery}
	}
	return segmentResult{size: size, handles: handles}
}

func escalates(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
