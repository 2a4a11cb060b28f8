package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

type menuOption struct {
	title   string
	handler func() bool
}

// ShowMenu displays the main menu and handles user input until the user exits.
func ShowMenu(ctx context.Context, serve func(context.Context) error) {
	runner := &Runner{Progress: os.Stderr, Notify: true}

	menuOptions := []menuOption{
		{"Analyze a field photo against the satellite baseline", func() bool { AnalyzePhoto(ctx, runner); return false }},
		{"Start the HTTP and gRPC servers", func() bool {
			if err := serve(ctx); err != nil {
				PrintError(err.Error())
			}
			return false
		}},
		{"Show the analysis settings", func() bool { ShowSettings(); return false }},
		{"Exit the application", func() bool { fmt.Println("Exiting..."); return true }},
	}

	for ctx.Err() == nil {
		info.Println("===================")
		for i, opt := range menuOptions {
			info.Printf("%d. %s\n", i+1, opt.title)
		}
		info.Println("Please enter your choice:")

		line, err := input.ReadString('\n')
		if err == io.EOF && strings.TrimSpace(line) == "" {
			return
		}
		choice, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			failure.Println("\nInvalid input. Please enter a number.")
			continue
		}

		if choice < 1 || choice > len(menuOptions) {
			failure.Println("Invalid choice. Please try again.")
			continue
		}

		if menuOptions[choice-1].handler() {
			return
		}
	}
}
