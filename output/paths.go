package output

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forest-guardian/greenwatch/internal/properties"
	"github.com/forest-guardian/greenwatch/internal/sentinel"
)

// ResultDir is where exports go when no directory is given.
func ResultDir() string {
	return filepath.Join(properties.RootPath()+"/data", "result")
}

// BaseName names the exports of one analysis.
func BaseName(point sentinel.Point, date time.Time) string {
	return fmt.Sprintf("%.5f_%.5f_%s", point.Latitude, point.Longitude, date.Format("2006_01_02"))
}

func prepare(dir, name, ext string) (string, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create result folder: %w", err)
	}
	return filepath.Join(dir, name+ext), nil
}
