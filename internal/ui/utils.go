package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	warning = color.New(color.FgYellow)
	failure = color.New(color.FgRed)
	success = color.New(color.FgGreen)
	info    = color.New(color.FgBlue)
)

var input = bufio.NewReader(os.Stdin)

// PrintWarning displays a warning message with consistent formatting
func PrintWarning(message string) {
	warning.Println("\nWarning:")
	warning.Println(message)
}

// PrintError displays an error message with consistent formatting
func PrintError(message string) {
	failure.Printf("\nError: %s\n", message)
}

// PrintSuccess displays a success message with consistent formatting
func PrintSuccess(message string) {
	success.Printf("\n%s\n", message)
}

// PrintInfo displays an info message with consistent formatting
func PrintInfo(message string) {
	info.Print(message)
}

// ReadString reads a string from stdin with trimming
func ReadString(prompt string) string {
	PrintInfo(prompt)
	return readLine(input)
}

func readLine(r *bufio.Reader) string {
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return ""
	}
	return strings.TrimSpace(line)
}

// ReadFloat reads a number within [min, max]
func ReadFloat(prompt string, min, max float64) (float64, error) {
	return parseFloat(ReadString(prompt), min, max)
}

func parseFloat(value string, min, max float64) (float64, error) {
	number, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", value)
	}
	if number < min || number > max {
		return 0, fmt.Errorf("value must be between %g and %g", min, max)
	}
	return number, nil
}

// ReadDate reads a date from stdin with validation
func ReadDate(prompt string) (time.Time, error) {
	return ParseDate(ReadString(prompt))
}

// ParseDate accepts YYYY-MM-DD or "today".
func ParseDate(value string) (time.Time, error) {
	if value == "" || value == "today" {
		return time.Now().UTC(), nil
	}
	date, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format: %s. Please use YYYY-MM-DD", value)
	}
	return date, nil
}
