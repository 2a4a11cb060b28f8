package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/forest-guardian/greenwatch/internal/cache"
	"github.com/forest-guardian/greenwatch/internal/properties"
)

type hourlyData struct {
	Time             []string  `json:"time"`
	RelativeHumidity []float64 `json:"relative_humidity_2m"`
}

type dailyData struct {
	Time          []string  `json:"time"`
	Temperature   []float64 `json:"temperature_2m_mean"`
	Precipitation []float64 `json:"precipitation_sum"`
}

type archiveResponse struct {
	Hourly hourlyData `json:"hourly"`
	Daily  dailyData  `json:"daily"`
}

type Day struct {
	Date          string  `json:"date"`
	Precipitation float64 `json:"precipitation"`
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
}

// Summary describes the weather over the days preceding an analysis.
type Summary struct {
	Start              string  `json:"start"`
	End                string  `json:"end"`
	TotalPrecipitation float64 `json:"total_precipitation_mm"`
	MeanTemperature    float64 `json:"mean_temperature_c"`
	MeanHumidity       float64 `json:"mean_humidity_pct"`
	DryDays            int     `json:"dry_days"`
	Days               []Day   `json:"-"`
}

// Service reads daily history from the Open-Meteo archive API.
type Service struct {
	URL     string
	Days    int
	Retries int
	Backoff time.Duration
	Client  *http.Client

	cache cache.CacheService[[]Day]
}

func NewService(apiURL string, days int) *Service {
	return &Service{
		URL:     apiURL,
		Days:    days,
		Retries: 3,
		Backoff: 10 * time.Second,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// WithCache stores fetched days so repeated analyses of a site skip the API.
func (s *Service) WithCache(c cache.CacheService[[]Day]) *Service {
	s.cache = c
	return s
}

// NewServiceFromEnv returns nil when the weather lookback is disabled.
func NewServiceFromEnv() *Service {
	days := properties.WeatherLookbackDays()
	if days <= 0 {
		return nil
	}
	return NewService(properties.WeatherAPIURL(), days).WithCache(cache.NewFileCache[[]Day]("weather"))
}

// Describe summarizes the s.Days days ending the day before end.
func (s *Service) Describe(ctx context.Context, latitude, longitude float64, end time.Time) (*Summary, error) {
	n := s.Days
	if n < 1 {
		n = 1
	}
	last := end.AddDate(0, 0, -1)
	first := last.AddDate(0, 0, -(n - 1))

	days, err := s.fetch(ctx, latitude, longitude, first, last)
	if err != nil {
		return nil, err
	}
	return summarize(days, first, last), nil
}

func (s *Service) fetch(ctx context.Context, latitude, longitude float64, first, last time.Time) ([]Day, error) {
	var key string
	if s.cache != nil {
		key = s.cache.GenerateKey(latitude, longitude, first.Format("2006-01-02"), last.Format("2006-01-02"))
		if days, ok := s.cache.Get(key); ok {
			return days, nil
		}
	}

	query := url.Values{}
	query.Set("latitude", fmt.Sprintf("%f", latitude))
	query.Set("longitude", fmt.Sprintf("%f", longitude))
	query.Set("start_date", first.Format("2006-01-02"))
	query.Set("end_date", last.Format("2006-01-02"))
	query.Set("daily", "temperature_2m_mean,precipitation_sum")
	query.Set("hourly", "relative_humidity_2m")
	endpoint := s.URL + "?" + query.Encode()

	retries := s.Retries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			fmt.Printf("Failed to retrieve weather: %v. Retrying... (%d/%d)\n", lastErr, attempt, retries)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.Backoff):
			}
		}

		days, retry, err := s.get(ctx, endpoint)
		if err == nil {
			if s.cache != nil {
				if err := s.cache.Set(key, days); err != nil {
					fmt.Printf("\033[33mFailed to cache weather: %v\033[0m\n", err)
				}
			}
			return days, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("failed to retrieve weather after %d attempts: %w", retries, lastErr)
}

func (s *Service) get(ctx context.Context, endpoint string) ([]Day, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("weather API returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("weather API returned status %d", resp.StatusCode)
	}

	var data archiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, false, fmt.Errorf("failed to parse weather response: %w", err)
	}
	return toDays(data)
}

func toDays(data archiveResponse) ([]Day, bool, error) {
	if len(data.Daily.Temperature) != len(data.Daily.Time) || len(data.Daily.Precipitation) != len(data.Daily.Time) {
		return nil, false, fmt.Errorf("weather response has mismatched daily series")
	}

	humidity := meanHumidity(data.Hourly)
	days := make([]Day, 0, len(data.Daily.Time))
	for i, date := range data.Daily.Time {
		days = append(days, Day{
			Date:          date,
			Temperature:   data.Daily.Temperature[i],
			Precipitation: data.Daily.Precipitation[i],
			Humidity:      humidity[date],
		})
	}
	return days, false, nil
}

func meanHumidity(hourly hourlyData) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i, t := range hourly.Time {
		if i >= len(hourly.RelativeHumidity) || len(t) < 10 {
			break
		}
		date := t[:10]
		sums[date] += hourly.RelativeHumidity[i]
		counts[date]++
	}

	means := make(map[string]float64, len(sums))
	for date, sum := range sums {
		means[date] = sum / float64(counts[date])
	}
	return means
}

// dryDayPrecipitation is the daily total in mm below which a day counts as dry.
const dryDayPrecipitation = 1.0

func summarize(days []Day, first, last time.Time) *Summary {
	summary := &Summary{
		Start: first.Format("2006-01-02"),
		End:   last.Format("2006-01-02"),
		Days:  days,
	}
	if len(days) == 0 {
		return summary
	}

	var temperature, humidity float64
	for _, day := range days {
		summary.TotalPrecipitation += day.Precipitation
		temperature += day.Temperature
		humidity += day.Humidity
		if day.Precipitation < dryDayPrecipitation {
			summary.DryDays++
		}
	}
	summary.MeanTemperature = temperature / float64(len(days))
	summary.MeanHumidity = humidity / float64(len(days))
	return summary
}
