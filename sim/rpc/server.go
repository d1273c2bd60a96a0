package rpc

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/slicesim/slicesim/sim"
)

// EngineServer exposes one slice engine as a SliceServer.
type EngineServer struct {
	engine *sim.Engine
}

// NewEngineServer wraps engine.
func NewEngineServer(engine *sim.Engine) *EngineServer {
	if engine == nil {
		panic("NewEngineServer: nil engine")
	}
	return &EngineServer{engine: engine}
}

// ProcessBatch rejects packets addressed to another slice.
func (s *EngineServer) ProcessBatch(ctx context.Context, req *ProcessBatchRequest) (*sim.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, status.FromContextError(err).Err()
	}
	slice := s.engine.Slice()
	for _, p := range req.Packets {
		if p.Slice != slice {
			return nil, status.Errorf(codes.InvalidArgument, "packet %s is for %s, this engine serves %s", p.ID, p.Slice, slice)
		}
	}
	return s.engine.ProcessBatch(req.Packets), nil
}

func (s *EngineServer) Statistics(context.Context, *StatisticsRequest) (*sim.EngineStatistics, error) {
	st := s.engine.Statistics()
	return &st, nil
}

func (s *EngineServer) Reset(context.Context, *ResetRequest) (*ResetResponse, error) {
	s.engine.Reset()
	return &ResetResponse{Slice: s.engine.Slice()}, nil
}
