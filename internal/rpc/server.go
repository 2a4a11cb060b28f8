package rpc

import (
	"context"
	"fmt"
	"log"
	"net"

	"github.com/forest-guardian/greenwatch/internal/delivery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer registers the change detection and health services.
func NewServer(handler delivery.Handler, opts ...grpc.ServerOption) *grpc.Server {
	server := grpc.NewServer(opts...)
	server.RegisterService(&ServiceDesc, NewService(handler))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	return server
}

// Serve listens on port until ctx is cancelled.
func Serve(ctx context.Context, port int, server *grpc.Server) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", port, err)
	}

	go func() {
		<-ctx.Done()
		server.GracefulStop()
	}()

	log.Printf("gRPC server listening on :%d", port)
	if err := server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}
