package properties

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables
const (
	ROOT_PATH                        = "ROOT_PATH"
	PORT                             = "PORT"
	GRPC_PORT                        = "GRPC_PORT"
	REGION_BUFFER_METERS             = "REGION_BUFFER_METERS"
	NUM_PREV_IMAGES                  = "NUM_PREV_IMAGES"
	MAX_LOOKBACK_YEARS               = "MAX_LOOKBACK_YEARS"
	S2_CLOUD_PCT                     = "S2_CLOUD_PCT"
	SEARCH_PREFETCH_YEARS            = "SEARCH_PREFETCH_YEARS"
	ESTIMATOR_WORKERS                = "ESTIMATOR_WORKERS"
	VARI_VEG_THRESHOLD               = "VARI_VEG_THRESHOLD"
	NDVI_VEG_THRESHOLD               = "NDVI_VEG_THRESHOLD"
	DEFOREST_PCT_DROP_THRESHOLD      = "DEFOREST_PCT_DROP_THRESHOLD"
	POISONING_DROP_DELTA             = "POISONING_DROP_DELTA"
	MIN_PIXEL_AREA                   = "MIN_PIXEL_AREA"
	MAX_PHOTO_DIMENSION              = "MAX_PHOTO_DIMENSION"
	COPERNICUS_CLIENT_ID             = "COPERNICUS_CLIENT_ID"
	COPERNICUS_CLIENT_SECRET         = "COPERNICUS_CLIENT_SECRET"
	COPERNICUS_TOKEN_URL             = "COPERNICUS_TOKEN_URL"
	COPERNICUS_API_URL               = "COPERNICUS_API_URL"
	COPERNICUS_RETRIES               = "COPERNICUS_RETRIES"
	OVERPASS_URL                     = "OVERPASS_URL"
	DISCORD_ERROR_NOTIFICATION_URL   = "DISCORD_ERROR_NOTIFICATION_URL"
	DISCORD_SUCCESS_NOTIFICATION_URL = "DISCORD_SUCCESS_NOTIFICATION_URL"
	DISCORD_ALERT_NOTIFICATION_URL   = "DISCORD_ALERT_NOTIFICATION_URL"
	PUBLIC_URL                       = "PUBLIC_URL"
	WEATHER_API_URL                  = "WEATHER_API_URL"
	WEATHER_LOOKBACK_DAYS            = "WEATHER_LOOKBACK_DAYS"
)

const (
	defaultCopernicusAPIURL = "https://sh.dataspace.copernicus.eu"
	defaultWeatherAPIURL    = "https://archive-api.open-meteo.com/v1/archive"
)

// GrpcPort is set from the command line and takes precedence over GRPC_PORT.
var GrpcPort int

func RootPath() string {
	return os.Getenv(ROOT_PATH)
}

func HTTPPort() int {
	return intEnv(PORT, 8000)
}

func GRPCPort() int {
	if GrpcPort != 0 {
		return GrpcPort
	}
	return intEnv(GRPC_PORT, 50051)
}

// RegionBufferMeters is the radius around the request point sampled from the archive.
func RegionBufferMeters() float64 {
	return floatEnv(REGION_BUFFER_METERS, 250)
}

// PreviousImages is the number of historical samples requested per analysis.
func PreviousImages() int {
	return intEnv(NUM_PREV_IMAGES, 5)
}

func MaxLookbackYears() int {
	return intEnv(MAX_LOOKBACK_YEARS, 8)
}

// MaxCloudCover returns the maximum scene cloud cover percentage. Zero disables the filter.
func MaxCloudCover() float64 {
	return floatEnv(S2_CLOUD_PCT, 0)
}

func SearchPrefetchYears() int {
	return intEnv(SEARCH_PREFETCH_YEARS, 1)
}

func EstimatorWorkers() int {
	return intEnv(ESTIMATOR_WORKERS, 4)
}

func VisualVegetationThreshold() float64 {
	return floatEnv(VARI_VEG_THRESHOLD, 0.1)
}

func ReflectanceVegetationThreshold() float64 {
	return floatEnv(NDVI_VEG_THRESHOLD, 0.5)
}

func DeforestationPercentDropThreshold() float64 {
	return floatEnv(DEFOREST_PCT_DROP_THRESHOLD, 10.0)
}

func PoisoningDropDelta() float64 {
	return floatEnv(POISONING_DROP_DELTA, 0.10)
}

func MinPixelArea() int {
	return intEnv(MIN_PIXEL_AREA, 500)
}

// MaxPhotoDimension bounds the longest side of decoded photos. Zero keeps the original size.
func MaxPhotoDimension() int {
	return intEnv(MAX_PHOTO_DIMENSION, 0)
}

// CopernicusCredentials returns the configured client id/secret pairs. Both variables accept
// comma separated lists so several accounts can be rotated.
func CopernicusCredentials() ([][2]string, error) {
	clientIDs := os.Getenv(COPERNICUS_CLIENT_ID)
	clientSecrets := os.Getenv(COPERNICUS_CLIENT_SECRET)
	if clientIDs == "" || clientSecrets == "" || CopernicusTokenURL() == "" {
		return nil, fmt.Errorf("missing required environment variables: %s, %s, or %s", COPERNICUS_CLIENT_ID, COPERNICUS_CLIENT_SECRET, COPERNICUS_TOKEN_URL)
	}

	clientIDList := strings.Split(clientIDs, ",")
	clientSecretList := strings.Split(clientSecrets, ",")
	if len(clientIDList) != len(clientSecretList) {
		return nil, fmt.Errorf("mismatched number of client IDs and secrets")
	}

	credentials := make([][2]string, 0, len(clientIDList))
	for i, clientID := range clientIDList {
		credentials = append(credentials, [2]string{strings.TrimSpace(clientID), strings.TrimSpace(clientSecretList[i])})
	}
	return credentials, nil
}

func CopernicusTokenURL() string {
	return os.Getenv(COPERNICUS_TOKEN_URL)
}

func CopernicusAPIURL() string {
	if url, ok := os.LookupEnv(COPERNICUS_API_URL); ok && url != "" {
		return strings.TrimSuffix(url, "/")
	}
	return defaultCopernicusAPIURL
}

func CopernicusRetries() int {
	return intEnv(COPERNICUS_RETRIES, 3)
}

// OverpassURL returns the Overpass endpoint used for land cover context. Empty disables it.
func OverpassURL() string {
	return os.Getenv(OVERPASS_URL)
}

func DiscordErrorNotificationUrl() string {
	return os.Getenv(DISCORD_ERROR_NOTIFICATION_URL)
}

func DiscordSuccessNotificationUrl() string {
	return os.Getenv(DISCORD_SUCCESS_NOTIFICATION_URL)
}

func DiscordAlertNotificationUrl() string {
	return os.Getenv(DISCORD_ALERT_NOTIFICATION_URL)
}

// PublicURL is echoed in analysis responses when the service is exposed through a tunnel.
func PublicURL() string {
	return os.Getenv(PUBLIC_URL)
}

type Color struct {
	R, G, B uint8
}

// ColorMap holds the colors used when rendering vegetation masks.
var ColorMap = map[string]Color{
	"vegetation": {34, 139, 34},
	"bare":       {160, 82, 45},
	"unknown":    {255, 0, 0},
}

func intEnv(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		fmt.Printf("Invalid integer for %s: %q, using default %d\n", key, value, fallback)
		return fallback
	}
	return parsed
}

func floatEnv(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		fmt.Printf("Invalid number for %s: %q, using default %g\n", key, value, fallback)
		return fallback
	}
	return parsed
}

func WeatherAPIURL() string {
	if value := os.Getenv(WEATHER_API_URL); value != "" {
		return value
	}
	return defaultWeatherAPIURL
}

// WeatherLookbackDays is the number of days of weather attached to a report. Zero disables it.
func WeatherLookbackDays() int {
	return intEnv(WEATHER_LOOKBACK_DAYS, 30)
}
