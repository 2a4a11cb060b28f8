package delivery

import (
	"fmt"

	"github.com/forest-guardian/greenwatch/internal/cache"
	"github.com/forest-guardian/greenwatch/internal/copernicus"
	"github.com/forest-guardian/greenwatch/internal/landcover"
	"github.com/forest-guardian/greenwatch/internal/notification"
	"github.com/forest-guardian/greenwatch/internal/observability"
	"github.com/forest-guardian/greenwatch/internal/weather"
)

// NewAnalyzerFromEnv builds an analyzer backed by Copernicus with the optional land cover,
// weather and alert collaborators enabled when their endpoints are configured.
func NewAnalyzerFromEnv() (*Analyzer, error) {
	client, err := copernicus.NewClientFromEnv()
	if err != nil {
		return nil, fmt.Errorf("error creating Copernicus client: %w", err)
	}

	archive := copernicus.NewArchive(client, cache.NewFileCache[map[string][][]float64]("samples"))
	analyzer := NewAnalyzer(archive)

	// A nil *landcover.Service must not become a non-nil interface.
	if service := landcover.NewServiceFromEnv(); service != nil {
		analyzer.LandCover = service
	}
	if service := weather.NewServiceFromEnv(); service != nil {
		analyzer.Weather = service
	}
	analyzer.Alerts = notification.NewDiscord()
	return analyzer, nil
}

// NewServiceFromEnv builds the request service shared by the HTTP and gRPC transports.
func NewServiceFromEnv(metrics *observability.Metrics) (*Service, error) {
	analyzer, err := NewAnalyzerFromEnv()
	if err != nil {
		return nil, err
	}
	return NewService(analyzer, metrics), nil
}
