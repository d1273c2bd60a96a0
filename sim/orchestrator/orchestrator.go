// Package orchestrator drives simulation runs: it owns each run's state
// machine, synthesizes traffic every tick, dispatches it to the three slice
// engines concurrently and publishes the merged snapshot.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/slicesim/slicesim/sim"
	"github.com/slicesim/slicesim/sim/workload"
)

const tracerName = "github.com/slicesim/slicesim/sim/orchestrator"

// storeTimeout bounds one RunStore call.
const storeTimeout = 5 * time.Second

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPublisher sets where per-tick snapshots go.
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithRunStore sets where run views are persisted on every transition.
func WithRunStore(s RunStore) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithDispatcherFactory replaces the in-process engines.
func WithDispatcherFactory(f DispatcherFactory) Option {
	return func(o *Orchestrator) { o.newDispatchers = f }
}

// WithTracer sets the tracer for tick and dispatch spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// Orchestrator owns every SimulationRun created through it.
//
// Thread-safety: safe for concurrent use.
type Orchestrator struct {
	cfg            sim.Config
	publisher      Publisher
	store          RunStore
	newDispatchers DispatcherFactory
	tracer         trace.Tracer
	now            func() time.Time

	base     context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup

	mu   sync.RWMutex
	runs map[string]*run
}

// New creates an Orchestrator for cfg, which must be valid.
func New(cfg sim.Config, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	base, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:            cfg,
		publisher:      nopPublisher{},
		store:          NewMemoryRunStore(),
		newDispatchers: LocalDispatchers,
		tracer:         otel.Tracer(tracerName),
		now:            time.Now,
		base:           base,
		shutdown:       cancel,
		runs:           make(map[string]*run),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Config returns the configuration runs are created with.
func (o *Orchestrator) Config() sim.Config {
	return o.cfg
}

// newRunID returns "sim_" followed by 12 hex digits.
func newRunID() string {
	return "sim_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// CreateRun validates req and registers a new INITIALIZED run with its own
// synthesizer and engines.
func (o *Orchestrator) CreateRun(req RunRequest) (string, error) {
	if err := req.Validate(&o.cfg); err != nil {
		return "", err
	}
	if req.Pattern == "" {
		req.Pattern = workload.PatternConstant
	}
	id := newRunID()

	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(o.cfg.Seed))
	synth, err := workload.NewSynthesizer(&o.cfg, rng.ForSubsystem(sim.SubsystemSynthesizer),
		workload.WithIDPrefix(id+"_"), workload.WithClock(o.now))
	if err != nil {
		return "", err
	}
	dispatchers, err := o.newDispatchers(&o.cfg, id, rng)
	if err != nil {
		return "", fmt.Errorf("creating dispatchers: %w", err)
	}
	for _, slice := range sim.SliceOrder {
		if dispatchers[slice] == nil {
			return "", fmt.Errorf("creating dispatchers: no dispatcher for %s", slice)
		}
	}

	r := &run{
		id:          id,
		req:         req,
		synth:       synth,
		dispatchers: dispatchers,
		done:        make(chan struct{}),
		status:      StatusInitialized,
		createdAt:   o.now(),
	}
	if n := o.cfg.Loop.SnapshotHistory; n > 0 {
		r.snapshots = sim.NewRing[Snapshot](n)
	}

	o.mu.Lock()
	o.runs[id] = r
	o.mu.Unlock()

	r.mu.Lock()
	v := r.view()
	r.mu.Unlock()
	o.persist(v)
	logrus.Infof("run %s created: volume=%d duration=%d pattern=%s", id, req.TrafficVolume, req.Duration, req.Pattern)
	return id, nil
}

func (o *Orchestrator) lookup(id string) (*run, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r, ok := o.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, nil
}

// StartRun moves an INITIALIZED run to RUNNING and launches its tick loop.
// The loop is detached from ctx; use StopRun or Shutdown to end it early.
func (o *Orchestrator) StartRun(ctx context.Context, id string) error {
	r, err := o.lookup(id)
	if err != nil {
		return err
	}
	if err := o.base.Err(); err != nil {
		return fmt.Errorf("orchestrator shut down: %w", err)
	}

	r.mu.Lock()
	if err := r.transition(StatusRunning, o.now()); err != nil {
		r.mu.Unlock()
		return err
	}
	loopCtx, cancel := context.WithCancel(o.base)
	loopCtx = trace.ContextWithSpanContext(loopCtx, trace.SpanContextFromContext(ctx))
	r.cancel = cancel
	v := r.view()
	r.mu.Unlock()

	o.persist(v)
	logrus.Infof("run %s started", id)
	o.wg.Add(1)
	go o.loop(loopCtx, r)
	return nil
}

// StopRun moves a RUNNING run to STOPPED. The loop exits after the tick in
// progress, if any.
func (o *Orchestrator) StopRun(id string) error {
	r, err := o.lookup(id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	if err := r.transition(StatusStopped, o.now()); err != nil {
		r.mu.Unlock()
		return err
	}
	r.cancel()
	v := r.view()
	r.mu.Unlock()

	o.persist(v)
	logrus.Infof("run %s stopped", id)
	return nil
}

// Run returns the current view of a run, falling back to the RunStore for
// runs this process does not hold.
func (o *Orchestrator) Run(id string) (RunView, error) {
	if r, err := o.lookup(id); err == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.view(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	v, err := o.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			return RunView{}, err
		}
		return RunView{}, fmt.Errorf("loading run %s: %w", id, err)
	}
	return v, nil
}

// Runs lists runs matching f, oldest first, and the number of matches
// before pagination.
func (o *Orchestrator) Runs(f RunFilter) ([]RunView, int) {
	views := make(map[string]RunView)
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if stored, err := o.store.List(ctx); err != nil {
		logrus.Warnf("listing stored runs: %v", err)
	} else {
		for _, v := range stored {
			views[v.ID] = v
		}
	}
	o.mu.RLock()
	for id, r := range o.runs {
		r.mu.Lock()
		views[id] = r.view()
		r.mu.Unlock()
	}
	o.mu.RUnlock()

	matched := make([]RunView, 0, len(views))
	for _, v := range views {
		if f.Status == "" || v.Status == f.Status {
			matched = append(matched, v)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	if f.Offset > 0 {
		if f.Offset >= total {
			return []RunView{}, total
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, total
}

// Snapshots returns up to limit of a run's newest snapshots, oldest first.
// limit <= 0 returns all retained snapshots.
func (o *Orchestrator) Snapshots(id string, limit int) ([]Snapshot, error) {
	r, err := o.lookup(id)
	if err != nil {
		if _, serr := o.Run(id); serr == nil {
			return []Snapshot{}, nil
		}
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshots == nil {
		return []Snapshot{}, nil
	}
	return r.snapshots.Last(limit), nil
}

// Wait blocks until a started run reaches a terminal state or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context, id string) (RunView, error) {
	r, err := o.lookup(id)
	if err != nil {
		return RunView{}, err
	}
	r.mu.Lock()
	started := r.status != StatusInitialized
	r.mu.Unlock()
	if !started {
		return RunView{}, fmt.Errorf("%w: run %s has not been started", ErrInvalidTransition, id)
	}
	select {
	case <-r.done:
	case <-ctx.Done():
		return RunView{}, ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view(), nil
}

// Shutdown stops every running run and waits for their loops to exit.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.shutdown()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for runs to stop: %w", ctx.Err())
	}
}

func (o *Orchestrator) persist(v RunView) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := o.store.Save(ctx, v); err != nil {
		logrus.Warnf("persisting run %s: %v", v.ID, err)
	}
}

// finish moves a still-RUNNING run to status. A run already stopped
// externally keeps its status.
func (o *Orchestrator) finish(r *run, status RunStatus, msg string) {
	r.mu.Lock()
	if r.status != StatusRunning {
		v := r.view()
		r.mu.Unlock()
		o.persist(v)
		return
	}
	_ = r.transition(status, o.now())
	r.errMsg = msg
	r.cancel()
	v := r.view()
	r.mu.Unlock()

	o.persist(v)
	switch status {
	case StatusError:
		logrus.Errorf("run %s failed: %s", r.id, msg)
	default:
		logrus.Infof("run %s %s after %d ticks: processed=%d dropped=%d",
			r.id, strings.ToLower(string(status)), v.Totals.Ticks, v.Totals.PacketsProcessed, v.Totals.PacketsDropped)
	}
}

// loop runs ticks until the duration elapses or the run is stopped. Each
// tick is followed by a full TickInterval sleep, so ticks drift under load.
func (o *Orchestrator) loop(ctx context.Context, r *run) {
	defer o.wg.Done()
	defer close(r.done)
	defer func() {
		if p := recover(); p != nil {
			o.finish(r, StatusError, fmt.Sprintf("panic: %v", p))
		}
	}()

	interval := o.cfg.Loop.TickInterval
	perTick := r.req.TrafficVolume / r.req.Duration
	r.mu.Lock()
	started := r.startedAt
	r.mu.Unlock()

	for tick := int64(0); ; tick++ {
		if ctx.Err() != nil {
			o.finish(r, StatusStopped, "")
			return
		}
		elapsed := float64(o.now().Sub(started)) / float64(interval)
		if elapsed >= float64(r.req.Duration) {
			o.finish(r, StatusCompleted, "")
			return
		}
		if err := o.tick(ctx, r, tick, elapsed, perTick); err != nil {
			o.finish(r, StatusError, err.Error())
			return
		}
		select {
		case <-ctx.Done():
		case <-time.After(interval):
		}
	}
}

// tick synthesizes one interval of traffic, dispatches every slice
// concurrently and merges the results in sim.SliceOrder. Only a dispatcher
// fault is returned; ordinary slice failures contribute an empty result.
func (o *Orchestrator) tick(ctx context.Context, r *run, tick int64, elapsed float64, perTick int) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.tick", trace.WithAttributes(
		attribute.String("run.id", r.id),
		attribute.Int64("tick", tick),
	))
	defer span.End()

	packets := r.synth.GenerateEven(perTick, r.req.Pattern, elapsed)
	generated := 0
	for _, p := range packets {
		generated += len(p)
	}

	// An in-flight tick completes even if the run is stopped meanwhile, but
	// its results are discarded once the run is terminal.
	dctx := context.WithoutCancel(ctx)
	results := make([]*sim.BatchResult, len(sim.SliceOrder))
	errs := make([]error, len(sim.SliceOrder))
	var g errgroup.Group
	for i, slice := range sim.SliceOrder {
		g.Go(func() error {
			results[i], errs[i] = o.dispatch(dctx, r, slice, packets[slice])
			return nil
		})
	}
	_ = g.Wait()

	now := o.now()
	snap := Snapshot{
		RunID:     r.id,
		Tick:      tick,
		Timestamp: now,
		Elapsed:   elapsed,
		Generated: generated,
		Slices:    make(map[sim.SliceType]*sim.BatchResult, len(sim.SliceOrder)),
	}
	var fault error
	r.mu.Lock()
	if r.status != StatusRunning {
		status := r.status
		r.mu.Unlock()
		logrus.Debugf("run %s tick %d: discarded, run is %s", r.id, tick, status)
		return nil
	}
	if r.latest == nil {
		r.latest = make(map[sim.SliceType]*sim.BatchResult, len(sim.SliceOrder))
	}
	r.totals.Ticks++
	r.totals.TrafficGenerated += int64(generated)
	for i, slice := range sim.SliceOrder {
		res := results[i]
		if err := errs[i]; err != nil {
			var fe *faultError
			if errors.As(err, &fe) && fault == nil {
				fault = err
				logrus.Debugf("%s", fe.stack)
			}
			logrus.Warnf("run %s tick %d: %s dispatch failed: %v", r.id, tick, slice, err)
			if snap.Failures == nil {
				snap.Failures = make(map[sim.SliceType]string)
			}
			snap.Failures[slice] = err.Error()
			r.totals.SliceFailures++
			res = sim.EmptyResult(slice, now)
		}
		r.totals.merge(res)
		r.latest[slice] = res
		snap.Slices[slice] = res
	}
	snap.Status = r.status
	snap.Totals = r.totals
	if r.snapshots != nil {
		r.snapshots.Append(snap)
	}
	r.mu.Unlock()

	if fault != nil {
		span.RecordError(fault)
		span.SetStatus(codes.Error, fault.Error())
		return fault
	}
	o.publisher.Publish(r.id, snap)
	return nil
}

func (o *Orchestrator) dispatch(ctx context.Context, r *run, slice sim.SliceType, packets []sim.Packet) (*sim.BatchResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.dispatch", trace.WithAttributes(
		attribute.String("slice", string(slice)),
		attribute.Int("packets", len(packets)),
	))
	defer span.End()
	res, err := dispatchWithTimeout(ctx, slice, r.dispatchers[slice], packets, o.cfg.Loop.SliceTimeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("packets.processed", res.PacketsProcessed),
		attribute.Int("packets.dropped", res.PacketsDropped),
	)
	return res, nil
}
