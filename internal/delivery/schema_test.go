package delivery

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/forest-guardian/greenwatch/internal/photo"
	"github.com/forest-guardian/greenwatch/internal/sentinel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float(v float64) *float64 { return &v }

func validRequest() Request {
	return Request{
		ImageBase64: base64.StdEncoding.EncodeToString([]byte("photo")),
		Latitude:    float(10),
		Longitude:   float(20),
		Timestamp:   "2024-03-10T12:00:00Z",
		User:        User{ID: "u", APIKey: "k"},
	}
}

func TestRequest_Validate(t *testing.T) {
	input, err := validRequest().Validate()

	require.NoError(t, err)
	assert.Equal(t, []byte("photo"), input.Photo)
	assert.Equal(t, sentinel.Point{Latitude: 10, Longitude: 20}, input.Point)
	assert.Equal(t, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), input.End)
}

func TestRequest_ValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *Request)
		outcome Outcome
	}{
		{"missing lat", func(r *Request) { r.Latitude = nil }, OutcomeInvalid},
		{"lat out of range", func(r *Request) { r.Latitude = float(-95) }, OutcomeInvalid},
		{"lon out of range", func(r *Request) { r.Longitude = float(181) }, OutcomeInvalid},
		{"missing timestamp", func(r *Request) { r.Timestamp = "" }, OutcomeInvalid},
		{"bad timestamp", func(r *Request) { r.Timestamp = "yesterday" }, OutcomeInvalid},
		{"missing user id", func(r *Request) { r.User.ID = "" }, OutcomeUnauthorized},
		{"missing api key", func(r *Request) { r.User.APIKey = "" }, OutcomeUnauthorized},
		{"bad base64", func(r *Request) { r.ImageBase64 = "%%%" }, OutcomeInvalid},
		{"empty image", func(r *Request) { r.ImageBase64 = "" }, OutcomeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			tt.mutate(&r)
			_, err := r.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.outcome, Classify(err))
		})
	}
}

func TestRequest_CredentialsCheckedBeforeImage(t *testing.T) {
	r := validRequest()
	r.User = User{}
	r.ImageBase64 = "%%%"

	_, err := r.Validate()

	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.EqualError(t, err, "Invalid user credentials")
}

func TestRequest_TimestampLayouts(t *testing.T) {
	for _, ts := range []string{"2024-03-10T00:00:00Z", "2024-03-10T00:00:00", "2024-03-10 00:00:00", "2024-03-10"} {
		r := validRequest()
		r.Timestamp = ts
		input, err := r.Validate()
		require.NoError(t, err, ts)
		assert.Equal(t, 2024, input.End.Year())
		assert.Equal(t, time.March, input.End.Month())
	}
}

func TestDecodeImage_DataURLAndUnpadded(t *testing.T) {
	data, err := decodeImage("data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("abcd")))
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), data)

	data, err = decodeImage(base64.RawStdEncoding.EncodeToString([]byte("abcde")))
	require.NoError(t, err)
	assert.Equal(t, []byte("abcde"), data)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 8.75, Round(8.7454, 2))
	assert.Equal(t, 57.35, Round(57.3529, 2))
	assert.Equal(t, 0.714, Round(0.7142857, 3))
	assert.Equal(t, -0.05, Round(-0.0500001, 3))
	assert.Equal(t, 0.0, Round(0, 2))
}

func TestNewResponse_RoundsOnlyDrops(t *testing.T) {
	report := &Report{}
	report.PercentDrop = 12.34567
	report.GreennessDrop = 0.123456
	report.BaselineFraction = 0.123456789
	report.Diagnostics = []string{"Year 2024: ImageCollection size: 1"}

	response := NewResponse(report)

	assert.Equal(t, 12.35, response.DeforestationPercentDrop)
	assert.Equal(t, 0.123, response.PoisoningGreennessDrop)
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, report.Diagnostics, response.Diagnostics)
}

func TestClassify(t *testing.T) {
	tests := map[error]Outcome{
		nil:                   OutcomeOK,
		ErrUnauthorized:       OutcomeUnauthorized,
		photo.ErrUndecodable:  OutcomeInvalid,
		sentinel.ErrNoSamples: OutcomeNotFound,
		fmt.Errorf("wrapped: %w", sentinel.ErrProviderUnavailable): OutcomeUnavailable,
		context.DeadlineExceeded: OutcomeUnavailable,
		errors.New("boom"):       OutcomeError,
	}
	for err, want := range tests {
		assert.Equal(t, want, Classify(err), fmt.Sprint(err))
	}
}
