package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/forest-guardian/greenwatch/internal/delivery"
	"github.com/forest-guardian/greenwatch/internal/notification"
	"github.com/forest-guardian/greenwatch/internal/observability"
	"github.com/forest-guardian/greenwatch/internal/properties"
	"github.com/forest-guardian/greenwatch/internal/rpc"
	"github.com/forest-guardian/greenwatch/internal/sentinel"
	"github.com/forest-guardian/greenwatch/internal/server"
	"github.com/forest-guardian/greenwatch/internal/ui"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func printBanner() {
	bannercolor.Cyan(figure.NewFigure("Greenwatch", "isometric1", true).String())
	fmt.Println()
}

func loadEnv() {
	for _, path := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
	fmt.Printf("\033[33mNo .env file found. Using the process environment.\033[0m\n")
}

func recoverPanic() {
	if r := recover(); r != nil {
		pc, file, line, ok := runtime.Caller(3)
		location := "Unknown location"
		if ok {
			location = fmt.Sprintf("%s:%d in %s", file, line, runtime.FuncForPC(pc).Name())
		}

		fmt.Printf("\n\033[31mPANIC: %v\033[0m\n", r)
		fmt.Printf("\033[31mLocation: %s\033[0m\n", location)
		fmt.Printf("\033[31mExiting...\033[0m\n")

		errMessage := fmt.Sprintf("Greenwatch panic:\n\n%v\n\nLocation: %s\n\nStack trace:\n%s", r, location, debug.Stack())
		if err := notification.SendDiscordErrorNotification(errMessage); err != nil {
			fmt.Printf("\033[31mFailed to send notification: %s\033[0m\n", err.Error())
		}
		os.Exit(2)
	}
}

// serve runs the HTTP and gRPC transports over one request service until ctx is cancelled.
func serve(ctx context.Context, httpPort, grpcPort int) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	service, err := delivery.NewServiceFromEnv(metrics)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(ctx, httpPort, server.NewRouter(service, metrics))
	})
	g.Go(func() error {
		return rpc.Serve(ctx, grpcPort, rpc.NewServer(service))
	})

	if url := properties.PublicURL(); url != "" {
		fmt.Printf("\033[32mPublic URL: %s\033[0m\n", url)
	}
	return g.Wait()
}

func newRootCmd(ctx context.Context) *cobra.Command {
	root := &cobra.Command{
		Use:           "greenwatch",
		Short:         "Detect vegetation loss by comparing field photos with Sentinel-2 history",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadEnv()
		},
		Run: func(cmd *cobra.Command, args []string) {
			printBanner()
			ui.ShowMenu(ctx, func(ctx context.Context) error {
				return serve(ctx, properties.HTTPPort(), properties.GRPCPort())
			})
		},
	}
	root.AddCommand(newAnalyzeCmd(ctx), newServeCmd(ctx))
	return root
}

func newAnalyzeCmd(ctx context.Context) *cobra.Command {
	var (
		params   ui.AnalysisParams
		lat, lon float64
		date     string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a field photo taken at a location",
		RunE: func(cmd *cobra.Command, args []string) error {
			endDate, err := ui.ParseDate(date)
			if err != nil {
				return err
			}
			params.Point = sentinel.Point{Latitude: lat, Longitude: lon}
			params.Date = endDate
			if params.User.ID == "" {
				params.User.ID = os.Getenv("GREENWATCH_USER_ID")
			}
			if params.User.APIKey == "" {
				params.User.APIKey = os.Getenv("GREENWATCH_API_KEY")
			}

			runner := &ui.Runner{Progress: os.Stderr, Notify: true}
			result, err := runner.Run(ctx, params)
			if err != nil {
				return err
			}

			ui.PrintResponse(result.Response)
			ui.PrintSuccess(fmt.Sprintf("Result files:\n- %s", strings.Join(result.Files, "\n- ")))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&params.PhotoPath, "photo", "", "path of the field photo")
	flags.Float64Var(&lat, "lat", 0, "latitude of the photo")
	flags.Float64Var(&lon, "lon", 0, "longitude of the photo")
	flags.StringVar(&date, "date", "today", "date the photo was taken (YYYY-MM-DD)")
	flags.StringVar(&params.OutputDir, "output", "", "directory for the result files")
	flags.StringVar(&params.Remote, "remote", "", "address of a greenwatch gRPC server")
	flags.StringVar(&params.User.ID, "user", "", "user id sent to the remote server")
	flags.StringVar(&params.User.APIKey, "api-key", "", "api key sent to the remote server")
	cmd.MarkFlagRequired("photo")
	cmd.MarkFlagRequired("lat")
	cmd.MarkFlagRequired("lon")
	return cmd
}

func newServeCmd(ctx context.Context) *cobra.Command {
	var httpPort, grpcPort int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve analyses over HTTP and gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			if httpPort == 0 {
				httpPort = properties.HTTPPort()
			}
			if grpcPort != 0 {
				properties.GrpcPort = grpcPort
			}
			fmt.Printf("\033[32mUsing HTTP port %d and gRPC port %d\033[0m\n", httpPort, properties.GRPCPort())
			return serve(ctx, httpPort, properties.GRPCPort())
		},
	}

	cmd.Flags().IntVar(&httpPort, "port", 0, "HTTP port (defaults to PORT or 8000)")
	cmd.Flags().IntVar(&grpcPort, "grpc-port", 0, "gRPC port (defaults to GRPC_PORT or 50051)")
	return cmd
}

func main() {
	defer recoverPanic()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(ctx).Execute(); err != nil {
		fmt.Printf("\033[31mError: %s\033[0m\n", err.Error())
		stop()
		os.Exit(1)
	}
}
