package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/forest-guardian/greenwatch/internal/observability"
	"github.com/forest-guardian/greenwatch/internal/photo"
	"github.com/forest-guardian/greenwatch/internal/sentinel"
)

// Outcome classifies an analysis error for transports and metrics.
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeInvalid      Outcome = "invalid_input"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeUnavailable  Outcome = "unavailable"
	OutcomeError        Outcome = "error"
)

func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, ErrInvalidInput), errors.Is(err, photo.ErrUndecodable), errors.Is(err, sentinel.ErrInvalidPoint):
		return OutcomeInvalid
	case errors.Is(err, sentinel.ErrNoSamples):
		return OutcomeNotFound
	case errors.Is(err, sentinel.ErrProviderUnavailable), errors.Is(err, context.DeadlineExceeded):
		return OutcomeUnavailable
	default:
		return OutcomeError
	}
}

// Handler serves decoded requests; both transports depend on it.
type Handler interface {
	Handle(ctx context.Context, transport string, req Request) (*Response, error)
}

// Service validates requests, decodes the photo and runs the analyzer.
type Service struct {
	Analyzer *Analyzer
	Photo    photo.Options
	Metrics  *observability.Metrics
}

func NewService(analyzer *Analyzer, metrics *observability.Metrics) *Service {
	analyzer.Metrics = metrics
	return &Service{
		Analyzer: analyzer,
		Photo:    photo.OptionsFromEnv(),
		Metrics:  metrics,
	}
}

func (s *Service) Handle(ctx context.Context, transport string, req Request) (*Response, error) {
	start := time.Now()
	response, err := s.handle(ctx, req)

	outcome := Classify(err)
	s.Metrics.RecordAnalysis(transport, string(outcome), time.Since(start).Seconds())
	if err != nil {
		log.Printf("[%s] analysis failed (%s): %v", transport, outcome, err)
		return nil, err
	}
	log.Printf("[%s] analysis complete in %v", transport, time.Since(start))
	return response, nil
}

func (s *Service) handle(ctx context.Context, req Request) (*Response, error) {
	input, err := req.Validate()
	if err != nil {
		return nil, err
	}

	raster, err := photo.Decode(input.Photo, s.Photo)
	if err != nil {
		return nil, fmt.Errorf("%w: Invalid base64 image: %v", ErrInvalidInput, err)
	}

	report, err := s.Analyzer.Analyze(ctx, raster, input.Point, input.End, nil)
	if err != nil {
		return nil, err
	}

	response := NewResponse(report)
	return &response, nil
}
