package main

import (
	"context"
	"crypto/tls"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/HatiCode/weatherdash/pkg/predictor"
	"github.com/HatiCode/weatherdash/pkg/weather"
)

const (
	predictorServiceName = "weatherdash.v1.Predictor"
	predictMethod        = "/" + predictorServiceName + "/Predict"
)

// PredictorServer is the server API of weatherdash.v1.Predictor.
//
// Requests carry {lat, lon, date}. Responses carry the PredictedDay fields, or
// {error} when the request is unusable or there is not enough history.
type PredictorServer interface {
	Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var predictorServiceDesc = grpc.ServiceDesc{
	ServiceName: predictorServiceName,
	HandlerType: (*PredictorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Predict", Handler: predictHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "weatherdash/v1/predictor.proto",
}

func predictHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PredictorServer).Predict(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: predictMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PredictorServer).Predict(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// grpcPredictor adapts predictor.Predictor to PredictorServer.
type grpcPredictor struct {
	predictor *predictor.Predictor
	timeout   time.Duration
	logger    *slog.Logger
}

func (s *grpcPredictor) Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	date := fields["date"].GetStringValue()
	if date == "" {
		return errorStruct(predictor.ErrNoDate.Message)
	}

	lat, ok := numberField(fields, "lat")
	if !ok {
		return errorStruct("lat parameter required")
	}
	lon, ok := numberField(fields, "lon")
	if !ok {
		return errorStruct("lon parameter required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	day, err := s.predictor.Predict(ctx, lat, lon, date)
	if err != nil {
		switch predictor.KindOf(err) {
		case predictor.KindInput, predictor.KindInsufficientData:
			return errorStruct(predictor.MessageOf(err))
		case predictor.KindUpstream:
			if predictor.IsTimeout(err) {
				return nil, status.Error(codes.DeadlineExceeded, predictor.MessageOf(err))
			}
			return nil, status.Error(codes.Unavailable, predictor.MessageOf(err))
		default:
			s.logger.Error("grpc prediction failed", "error", err)
			return nil, status.Error(codes.Internal, "internal error")
		}
	}

	return predictedDayStruct(day)
}

func numberField(fields map[string]*structpb.Value, name string) (float64, bool) {
	v, ok := fields[name]
	if !ok {
		return 0, false
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	return n.NumberValue, true
}

func errorStruct(msg string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"error": msg})
}

func predictedDayStruct(day weather.PredictedDay) (*structpb.Struct, error) {
	m := map[string]any{"date": day.Date}
	for _, v := range weather.Variables {
		if val, ok := day.Value(v); ok {
			m[string(v)] = val
		}
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode prediction: %v", err)
	}
	return s, nil
}

// newGRPCServer builds the gRPC server with the Predictor and health services.
// tlsConfig may be nil.
func newGRPCServer(p *predictor.Predictor, timeout time.Duration, tlsConfig *tls.Config, logger *slog.Logger) (*grpc.Server, *health.Server) {
	var opts []grpc.ServerOption
	if tlsConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}

	srv := grpc.NewServer(opts...)
	srv.RegisterService(&predictorServiceDesc, &grpcPredictor{
		predictor: p,
		timeout:   timeout,
		logger:    logger,
	})

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(predictorServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return srv, healthServer
}
