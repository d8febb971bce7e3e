package classify

import (
	"Go2NetIDS/internal/model"
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the gRPC service exposing a classifier.
const ServiceName = "go2netids.classifier.v1.Classifier"

const (
	predictMethod  = "/" + ServiceName + "/Predict"
	describeMethod = "/" + ServiceName + "/Describe"
)

// classifierServer is the handler type of the classifier service. Requests
// and responses are structpb.Struct documents:
//
//	Predict:  {"features": [..]} -> {"label": "..", "probabilities": {"normal": .., "anomaly": ..}}
//	Describe: {} -> {"features": ["duration", ..]}
type classifierServer interface {
	Predict(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Describe(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*classifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Predict", Handler: unaryHandler(predictMethod, classifierServer.Predict)},
		{MethodName: "Describe", Handler: unaryHandler(describeMethod, classifierServer.Describe)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "classifier.proto",
}

func unaryHandler(fullMethod string, call func(classifierServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(classifierServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(classifierServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type server struct {
	classifier model.Classifier
}

func (s *server) Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	list := req.GetFields()["features"].GetListValue()
	if list == nil {
		return nil, status.Error(codes.InvalidArgument, "missing features list")
	}
	x := make([]float64, len(list.GetValues()))
	for i, v := range list.GetValues() {
		x[i] = v.GetNumberValue()
	}
	pred, err := s.classifier.Predict(ctx, x)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	probs := make(map[string]any, len(pred.Probabilities))
	for label, p := range pred.Probabilities {
		probs[string(label)] = p
	}
	resp, err := structpb.NewStruct(map[string]any{
		"label":         string(pred.Label),
		"probabilities": probs,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

func (s *server) Describe(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	names := s.classifier.FeatureNames()
	values := make([]any, len(names))
	for i, n := range names {
		values[i] = n
	}
	resp, err := structpb.NewStruct(map[string]any{"features": values})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

// Register exposes c on gs.
func Register(gs *grpc.Server, c model.Classifier) {
	gs.RegisterService(&serviceDesc, &server{classifier: c})
}

// NewServer returns a gRPC server serving c together with the standard
// health service and reflection.
func NewServer(c model.Classifier, opts ...grpc.ServerOption) *grpc.Server {
	gs := grpc.NewServer(opts...)
	Register(gs, c)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)
	return gs
}

// RemoteClassifier calls a classifier served by NewServer.
type RemoteClassifier struct {
	conn     grpc.ClientConnInterface
	closer   func() error
	features []string
}

// DialRemote connects to addr and fetches the model's feature names.
func DialRemote(ctx context.Context, addr string, opts ...grpc.DialOption) (*RemoteClassifier, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier client: %w", err)
	}
	rc, err := NewRemoteClassifier(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	rc.closer = conn.Close
	return rc, nil
}

// NewRemoteClassifier wraps an existing connection.
func NewRemoteClassifier(ctx context.Context, conn grpc.ClientConnInterface) (*RemoteClassifier, error) {
	resp := new(structpb.Struct)
	if err := conn.Invoke(ctx, describeMethod, &structpb.Struct{}, resp); err != nil {
		return nil, fmt.Errorf("failed to describe remote classifier: %w", err)
	}
	list := resp.GetFields()["features"].GetListValue()
	if list == nil || len(list.GetValues()) == 0 {
		return nil, fmt.Errorf("remote classifier reported no features")
	}
	names := make([]string, len(list.GetValues()))
	for i, v := range list.GetValues() {
		names[i] = v.GetStringValue()
	}
	log.WithField("features", len(names)).Info("Connected to remote classifier")
	return &RemoteClassifier{conn: conn, features: names}, nil
}

// FeatureNames implements model.Classifier.
func (r *RemoteClassifier) FeatureNames() []string {
	return append([]string(nil), r.features...)
}

// Predict implements model.Classifier.
func (r *RemoteClassifier) Predict(ctx context.Context, x []float64) (model.Prediction, error) {
	values := make([]any, len(x))
	for i, v := range x {
		values[i] = v
	}
	req, err := structpb.NewStruct(map[string]any{"features": values})
	if err != nil {
		return model.Prediction{}, fmt.Errorf("failed to encode features: %w", err)
	}
	resp := new(structpb.Struct)
	if err := r.conn.Invoke(ctx, predictMethod, req, resp); err != nil {
		return model.Prediction{}, fmt.Errorf("remote predict failed: %w", err)
	}

	fields := resp.GetFields()
	pred := model.Prediction{
		Label:         model.Label(fields["label"].GetStringValue()),
		Probabilities: make(map[model.Label]float64),
	}
	for label, p := range fields["probabilities"].GetStructValue().GetFields() {
		pred.Probabilities[model.Label(label)] = p.GetNumberValue()
	}
	return pred, nil
}

// Close releases the connection opened by DialRemote.
func (r *RemoteClassifier) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
