package classifier

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/arrhythmix/internal/inference"
)

// ServiceName and ClassifyMethod identify the classifier gRPC service.
// Messages are google.protobuf.Struct values:
//
//	request:  {samples: [number], sample_rate_hz: number}
//	response: {label: string}
const (
	ServiceName    = "arrhythmix.v1.Classifier"
	ClassifyMethod = "/" + ServiceName + "/Classify"
)

// Remote is a gRPC classifier client.
type Remote struct {
	conn         *grpc.ClientConn
	InputLength  int
	SampleRateHz float64
}

// DialRemote creates a client for target. Without options the connection
// is plaintext.
func DialRemote(target string, opts ...grpc.DialOption) (*Remote, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial classifier %s: %w", target, err)
	}
	return NewRemote(conn), nil
}

// NewRemote wraps an existing connection.
func NewRemote(conn *grpc.ClientConn) *Remote {
	return &Remote{conn: conn}
}

func (r *Remote) Classify(ctx context.Context, samples []float64) (string, error) {
	in, rate := prepare(samples, r.InputLength, r.SampleRateHz)
	req := samplesStruct(in, rate)
	resp := &structpb.Struct{}
	if err := r.conn.Invoke(ctx, ClassifyMethod, req, resp); err != nil {
		return "", err
	}
	label := resp.GetFields()["label"].GetStringValue()
	if label == "" {
		return "", fmt.Errorf("%w: missing label", ErrBadResponse)
	}
	return label, nil
}

// Close releases the connection.
func (r *Remote) Close() error {
	return r.conn.Close()
}

func samplesStruct(samples []float64, rate float64) *structpb.Struct {
	values := make([]*structpb.Value, len(samples))
	for i, v := range samples {
		values[i] = structpb.NewNumberValue(v)
	}
	fields := map[string]*structpb.Value{
		"samples": structpb.NewListValue(&structpb.ListValue{Values: values}),
	}
	if rate > 0 {
		fields["sample_rate_hz"] = structpb.NewNumberValue(rate)
	}
	return &structpb.Struct{Fields: fields}
}

// ClassifierServer is the server side of the classifier service.
type ClassifierServer interface {
	Classify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// Server exposes an inference.Classifier over gRPC.
type Server struct {
	Classifier inference.Classifier
}

func (s *Server) Classify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	list := req.GetFields()["samples"].GetListValue()
	if list == nil || len(list.GetValues()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "samples not specified")
	}
	samples := make([]float64, len(list.GetValues()))
	for i, v := range list.GetValues() {
		if _, ok := v.GetKind().(*structpb.Value_NumberValue); !ok {
			return nil, status.Errorf(codes.InvalidArgument, "sample %d is not a number", i)
		}
		samples[i] = v.GetNumberValue()
	}

	label, err := s.Classifier.Classify(ctx, samples)
	switch {
	case errors.Is(err, ErrInsufficientSignal):
		return nil, status.Errorf(codes.FailedPrecondition, "classify: %v", err)
	case err != nil:
		return nil, status.Errorf(codes.Internal, "classify: %v", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"label": structpb.NewStringValue(label),
	}}, nil
}

func classifyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClassifierServer).Classify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ClassifyMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ClassifierServer).Classify(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ClassifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Classify", Handler: classifyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "arrhythmix/v1/classifier.proto",
}

// RegisterServer registers c as the classifier service on s.
func RegisterServer(s *grpc.Server, c inference.Classifier) {
	s.RegisterService(&serviceDesc, &Server{Classifier: c})
}
