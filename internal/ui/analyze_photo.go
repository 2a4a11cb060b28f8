package ui

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/forest-guardian/greenwatch/internal/sentinel"
)

// AnalyzePhoto handles the UI for comparing a field photo with the satellite baseline
func AnalyzePhoto(ctx context.Context, runner *Runner) {
	PrintWarning("- The photo should be a JPEG, PNG, TIFF, BMP, GIF or WebP file.\n- Copernicus credentials must be configured in the .env file.")

	path := ReadString("Enter the photo path: ")
	if path == "" {
		PrintError("photo path cannot be empty")
		return
	}

	lat, err := ReadFloat("Enter the latitude: ", -90, 90)
	if err != nil {
		PrintError(err.Error())
		return
	}
	lon, err := ReadFloat("Enter the longitude: ", -180, 180)
	if err != nil {
		PrintError(err.Error())
		return
	}

	date, err := ReadDate("Enter the date the photo was taken (YYYY-MM-DD | today): ")
	if err != nil {
		PrintError(err.Error())
		return
	}

	result, err := runner.Run(ctx, AnalysisParams{
		PhotoPath: path,
		Point:     sentinel.Point{Latitude: lat, Longitude: lon},
		Date:      date,
	})
	if err != nil {
		PrintError(fmt.Sprintf("Error analyzing photo: %s", err.Error()))
		return
	}

	PrintResponse(result.Response)
	PrintSuccess(fmt.Sprintf("Successful analysis!\nResult files:\n- %s", strings.Join(result.Files, "\n- ")))
}

// ShowSettings prints the analysis settings read from the environment
func ShowSettings() {
	opts := sentinel.OptionsFromEnv()
	PrintInfo(fmt.Sprintf("Region buffer: %.0f m\n", opts.BufferMeters))
	PrintInfo(fmt.Sprintf("Samples per analysis: %d\n", opts.Count))
	PrintInfo(fmt.Sprintf("Lookback: %d years\n", opts.LookbackYears))
	PrintInfo(fmt.Sprintf("Max cloud cover: %g%%\n", opts.MaxCloudCover))
	if _, err := os.Stat(".env"); err != nil {
		PrintWarning("No .env file found in the working directory.")
	}
}
