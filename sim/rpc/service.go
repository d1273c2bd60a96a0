package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/slicesim/slicesim/sim"
)

const serviceName = "slicesim.v1.SliceService"

const (
	methodProcessBatch = "/" + serviceName + "/ProcessBatch"
	methodStatistics   = "/" + serviceName + "/Statistics"
	methodReset        = "/" + serviceName + "/Reset"
)

type ProcessBatchRequest struct {
	Packets []sim.Packet `json:"packets"`
}

type StatisticsRequest struct{}

type ResetRequest struct{}

type ResetResponse struct {
	Slice sim.SliceType `json:"slice"`
}

// SliceServer is the server API of the slice service.
type SliceServer interface {
	ProcessBatch(ctx context.Context, req *ProcessBatchRequest) (*sim.BatchResult, error)
	Statistics(ctx context.Context, req *StatisticsRequest) (*sim.EngineStatistics, error)
	Reset(ctx context.Context, req *ResetRequest) (*ResetResponse, error)
}

// RegisterSliceServer registers srv on s.
func RegisterSliceServer(s grpc.ServiceRegistrar, srv SliceServer) {
	s.RegisterService(&sliceServiceDesc, srv)
}

var sliceServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SliceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ProcessBatch", Handler: processBatchHandler},
		{MethodName: "Statistics", Handler: statisticsHandler},
		{MethodName: "Reset", Handler: resetHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "slicesim/v1/slice.proto",
}

func processBatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ProcessBatchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SliceServer).ProcessBatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodProcessBatch}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(SliceServer).ProcessBatch(ctx, req.(*ProcessBatchRequest))
	})
}

func statisticsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatisticsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SliceServer).Statistics(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStatistics}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(SliceServer).Statistics(ctx, req.(*StatisticsRequest))
	})
}

func resetHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ResetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SliceServer).Reset(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodReset}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(SliceServer).Reset(ctx, req.(*ResetRequest))
	})
}
