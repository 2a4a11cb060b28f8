package delivery

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/forest-guardian/greenwatch/internal/greenness"
	"github.com/forest-guardian/greenwatch/internal/landcover"
	"github.com/forest-guardian/greenwatch/internal/properties"
	"github.com/forest-guardian/greenwatch/internal/sentinel"
	"github.com/forest-guardian/greenwatch/internal/weather"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("Invalid user credentials")
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type User struct {
	ID     string `json:"id"`
	APIKey string `json:"api_key"`
}

// Request is the analysis request shared by the HTTP and gRPC transports.
type Request struct {
	ImageBase64 string   `json:"image_base64"`
	Latitude    *float64 `json:"lat"`
	Longitude   *float64 `json:"lon"`
	Timestamp   string   `json:"timestamp"`
	User        User     `json:"user"`
}

// Input is a validated request.
type Input struct {
	Photo []byte
	Point sentinel.Point
	End   time.Time
}

// Validate checks the request shape, then the credentials, then decodes the photo payload.
func (r Request) Validate() (*Input, error) {
	if r.Latitude == nil || r.Longitude == nil {
		return nil, fmt.Errorf("%w: lat and lon are required", ErrInvalidInput)
	}
	point := sentinel.Point{Latitude: *r.Latitude, Longitude: *r.Longitude}
	if err := point.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	end, err := parseTimestamp(r.Timestamp)
	if err != nil {
		return nil, err
	}

	if r.User.ID == "" || r.User.APIKey == "" {
		return nil, ErrUnauthorized
	}

	photo, err := decodeImage(r.ImageBase64)
	if err != nil {
		return nil, err
	}

	return &Input{Photo: photo, Point: point, End: end}, nil
}

func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: timestamp is required", ErrInvalidInput)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid timestamp %q", ErrInvalidInput, value)
}

// decodeImage accepts plain base64 and data URLs.
func decodeImage(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "data:") {
		if i := strings.Index(value, ","); i >= 0 {
			value = value[i+1:]
		}
	}
	if value == "" {
		return nil, fmt.Errorf("%w: Invalid base64 image: empty payload", ErrInvalidInput)
	}

	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(value, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: Invalid base64 image: %v", ErrInvalidInput, err)
		}
	}
	return data, nil
}

// Response is the delivered analysis. Drops are rounded here and nowhere else.
type Response struct {
	Status                   string             `json:"status"`
	Message                  string             `json:"message"`
	PublicURL                string             `json:"public_url,omitempty"`
	DeforestationPercentDrop float64            `json:"deforestation_percent_drop"`
	PoisoningGreennessDrop   float64            `json:"poisoning_greenness_drop"`
	DeforestationFlag        bool               `json:"deforestation_flag"`
	PoisoningFlag            bool               `json:"poisoning_flag"`
	CurrentMetrics           greenness.Metric   `json:"current_metrics"`
	HistoricalMetrics        []greenness.Metric `json:"historical_metrics"`
	LandCover                *landcover.Summary `json:"land_cover,omitempty"`
	Weather                  *weather.Summary   `json:"weather,omitempty"`
	Diagnostics              []string           `json:"diagnostics,omitempty"`
}

func NewResponse(report *Report) Response {
	return Response{
		Status:                   "ok",
		Message:                  "Analysis complete",
		PublicURL:                properties.PublicURL(),
		DeforestationPercentDrop: Round(report.PercentDrop, 2),
		PoisoningGreennessDrop:   Round(report.GreennessDrop, 3),
		DeforestationFlag:        report.DeforestationFlag,
		PoisoningFlag:            report.PoisoningFlag,
		CurrentMetrics:           report.Current,
		HistoricalMetrics:        report.Historical,
		LandCover:                report.LandCover,
		Weather:                  report.Weather,
		Diagnostics:              report.Diagnostics,
	}
}

// Round rounds half away from zero to the given number of decimals.
func Round(value float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(value*scale) / scale
}
