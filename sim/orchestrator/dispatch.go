package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/slicesim/slicesim/sim"
)

// Dispatcher delivers one tick's packets to a slice engine, in-process or remote.
type Dispatcher interface {
	ProcessBatch(ctx context.Context, packets []sim.Packet) (*sim.BatchResult, error)
}

// DispatcherFactory builds one Dispatcher per configured slice for a new run.
// rng is resolved sequentially, before any dispatcher runs.
type DispatcherFactory func(cfg *sim.Config, runID string, rng *sim.PartitionedRNG) (map[sim.SliceType]Dispatcher, error)

// LocalDispatcher runs a slice engine in-process.
type LocalDispatcher struct {
	engine *sim.Engine
}

// NewLocalDispatcher wraps engine.
func NewLocalDispatcher(engine *sim.Engine) *LocalDispatcher {
	if engine == nil {
		panic("NewLocalDispatcher: nil engine")
	}
	return &LocalDispatcher{engine: engine}
}

// ProcessBatch runs the batch unless ctx is already done. The engine itself
// is not interruptible; callers bound the wait, not the work.
func (d *LocalDispatcher) ProcessBatch(ctx context.Context, packets []sim.Packet) (*sim.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.engine.ProcessBatch(packets), nil
}

// Engine exposes the wrapped engine for statistics.
func (d *LocalDispatcher) Engine() *sim.Engine {
	return d.engine
}

// LocalDispatchers builds an in-process engine for every configured slice,
// each drawing from its own RNG subsystem.
func LocalDispatchers(cfg *sim.Config, _ string, rng *sim.PartitionedRNG) (map[sim.SliceType]Dispatcher, error) {
	out := make(map[sim.SliceType]Dispatcher, len(cfg.Slices))
	for _, sc := range cfg.Slices {
		engine, err := sim.NewEngine(sc, rng.ForSubsystem(sim.SubsystemEngine(sc.Slice)))
		if err != nil {
			return nil, fmt.Errorf("creating %s engine: %w", sc.Slice, err)
		}
		out[sc.Slice] = NewLocalDispatcher(engine)
	}
	return out, nil
}

// faultError marks a dispatcher panic. Unlike an ordinary dispatch error it
// fails the whole run.
type faultError struct {
	slice sim.SliceType
	value any
	stack []byte
}

func (e *faultError) Error() string {
	return fmt.Sprintf("%s dispatcher panicked: %v", e.slice, e.value)
}

type dispatchReply struct {
	res *sim.BatchResult
	err error
}

// dispatchWithTimeout calls d and waits at most timeout for the reply. A call
// that outlives the timeout keeps running in the background; its result is
// discarded.
func dispatchWithTimeout(ctx context.Context, slice sim.SliceType, d Dispatcher, packets []sim.Packet, timeout time.Duration) (*sim.BatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	replies := make(chan dispatchReply, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				replies <- dispatchReply{err: &faultError{slice: slice, value: p, stack: debug.Stack()}}
			}
		}()
		res, err := d.ProcessBatch(ctx, packets)
		if err == nil && res == nil {
			err = fmt.Errorf("%s dispatcher returned no result", slice)
		}
		replies <- dispatchReply{res: res, err: err}
	}()

	select {
	case r := <-replies:
		return r.res, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%s dispatch: %w", slice, ctx.Err())
	}
}
