package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forest-guardian/greenwatch/internal/delivery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName   = "greenwatch.v1.ChangeDetection"
	AnalyzeMethod = "/greenwatch.v1.ChangeDetection/Analyze"
)

var codeByOutcome = map[delivery.Outcome]codes.Code{
	delivery.OutcomeOK:           codes.OK,
	delivery.OutcomeInvalid:      codes.InvalidArgument,
	delivery.OutcomeUnauthorized: codes.Unauthenticated,
	delivery.OutcomeNotFound:     codes.NotFound,
	delivery.OutcomeUnavailable:  codes.Unavailable,
	delivery.OutcomeError:        codes.Internal,
}

// ChangeDetectionServer carries the analysis schema as google.protobuf.Struct messages.
type ChangeDetectionServer interface {
	Analyze(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChangeDetectionServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Analyze",
			Handler:    analyzeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "greenwatch/v1/change_detection.proto",
}

func analyzeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChangeDetectionServer).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: AnalyzeMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ChangeDetectionServer).Analyze(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type Service struct {
	handler delivery.Handler
}

func NewService(handler delivery.Handler) *Service {
	return &Service{handler: handler}
}

func (s *Service) Analyze(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req delivery.Request
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}

	response, err := s.handler.Handle(ctx, "grpc", req)
	if err != nil {
		return nil, status.Error(codeByOutcome[delivery.Classify(err)], err.Error())
	}

	out, err := toStruct(response)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("failed to convert to struct: %w", err)
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, v interface{}) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
