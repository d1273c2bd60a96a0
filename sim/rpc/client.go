package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/slicesim/slicesim/sim"
	"github.com/slicesim/slicesim/sim/orchestrator"
)

// Client calls a remote slice engine. It implements orchestrator.Dispatcher.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for target. The connection is established lazily.
// Without extra options the connection is insecure.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}
	conn, err := grpc.NewClient(target, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dialing slice service %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// ProcessBatch sends packets to the remote engine and returns its result.
func (c *Client) ProcessBatch(ctx context.Context, packets []sim.Packet) (*sim.BatchResult, error) {
	out := new(sim.BatchResult)
	if err := c.conn.Invoke(ctx, methodProcessBatch, &ProcessBatchRequest{Packets: packets}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Statistics fetches the remote engine's cumulative statistics.
func (c *Client) Statistics(ctx context.Context) (*sim.EngineStatistics, error) {
	out := new(sim.EngineStatistics)
	if err := c.conn.Invoke(ctx, methodStatistics, &StatisticsRequest{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Reset clears the remote engine's queue, history and totals.
func (c *Client) Reset(ctx context.Context) error {
	return c.conn.Invoke(ctx, methodReset, &ResetRequest{}, new(ResetResponse))
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// RemotePool hands out one shared Client per endpoint. A remote engine is
// shared by every run that uses it.
type RemotePool struct {
	opts []grpc.DialOption

	mu      sync.Mutex
	clients map[string]*Client
}

// NewRemotePool creates a pool dialing with opts.
func NewRemotePool(opts ...grpc.DialOption) *RemotePool {
	return &RemotePool{opts: opts, clients: make(map[string]*Client)}
}

func (p *RemotePool) client(target string) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[target]; ok {
		return c, nil
	}
	c, err := Dial(target, p.opts...)
	if err != nil {
		return nil, err
	}
	p.clients[target] = c
	return c, nil
}

// Dispatchers is an orchestrator.DispatcherFactory: slices with an Endpoint
// are served remotely, the rest by in-process engines.
func (p *RemotePool) Dispatchers(cfg *sim.Config, runID string, rng *sim.PartitionedRNG) (map[sim.SliceType]orchestrator.Dispatcher, error) {
	out, err := orchestrator.LocalDispatchers(cfg, runID, rng)
	if err != nil {
		return nil, err
	}
	for _, sc := range cfg.Slices {
		if sc.Endpoint == "" {
			continue
		}
		c, err := p.client(sc.Endpoint)
		if err != nil {
			return nil, err
		}
		logrus.Debugf("run %s: %s served by %s", runID, sc.Slice, sc.Endpoint)
		out[sc.Slice] = c
	}
	return out, nil
}

// Close closes every pooled connection.
func (p *RemotePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for target, c := range p.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", target, err))
		}
	}
	clear(p.clients)
	return errors.Join(errs...)
}
