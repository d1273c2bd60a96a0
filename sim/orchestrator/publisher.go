package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Publisher receives a Snapshot after every tick. Publish must not block the
// tick loop.
type Publisher interface {
	Publish(runID string, snap Snapshot)
}

// Subscriber consumes snapshots from a Hub on its own goroutine.
type Subscriber interface {
	Name() string
	Deliver(ctx context.Context, snap Snapshot) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc struct {
	ID string
	Fn func(ctx context.Context, snap Snapshot) error
}

func (f SubscriberFunc) Name() string { return f.ID }

func (f SubscriberFunc) Deliver(ctx context.Context, snap Snapshot) error { return f.Fn(ctx, snap) }

// DefaultMailboxSize is the per-subscriber snapshot buffer of a Hub.
const DefaultMailboxSize = 64

// deliveryTimeout bounds one Deliver call.
const deliveryTimeout = 5 * time.Second

type mailbox struct {
	sub     Subscriber
	ch      chan Snapshot
	mu      sync.Mutex
	dropped int64
}

// Hub fans snapshots out to subscribers. Each subscriber owns a bounded
// mailbox; when it is full the snapshot is dropped for that subscriber only.
type Hub struct {
	size int

	mu     sync.RWMutex
	boxes  []*mailbox
	closed bool
	wg     sync.WaitGroup
}

// NewHub creates a Hub whose mailboxes hold size snapshots.
func NewHub(size int) *Hub {
	if size < 1 {
		size = DefaultMailboxSize
	}
	return &Hub{size: size}
}

// Subscribe starts delivering to sub. Subscribing to a closed Hub is a no-op.
func (h *Hub) Subscribe(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	box := &mailbox{sub: sub, ch: make(chan Snapshot, h.size)}
	h.boxes = append(h.boxes, box)
	h.wg.Add(1)
	go h.drain(box)
}

func (h *Hub) drain(box *mailbox) {
	defer h.wg.Done()
	for snap := range box.ch {
		if err := deliver(box.sub, snap); err != nil {
			logrus.Warnf("subscriber %s: delivering run %s tick %d: %v", box.sub.Name(), snap.RunID, snap.Tick, err)
		}
	}
}

// deliver hands snap to sub, turning a panic into an error so one subscriber
// cannot take the process down.
func deliver(sub Subscriber, snap Snapshot) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return sub.Deliver(ctx, snap)
}

// Publish enqueues snap for every subscriber without blocking.
func (h *Hub) Publish(runID string, snap Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, box := range h.boxes {
		select {
		case box.ch <- snap:
		default:
			box.mu.Lock()
			box.dropped++
			box.mu.Unlock()
			logrus.Debugf("subscriber %s mailbox full, dropping run %s tick %d", box.sub.Name(), runID, snap.Tick)
		}
	}
}

// Dropped returns how many snapshots each subscriber has missed.
func (h *Hub) Dropped() map[string]int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int64, len(h.boxes))
	for _, box := range h.boxes {
		box.mu.Lock()
		out[box.sub.Name()] += box.dropped
		box.mu.Unlock()
	}
	return out
}

// Close stops accepting snapshots and waits until every mailbox is drained.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for _, box := range h.boxes {
		close(box.ch)
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// nopPublisher discards snapshots.
type nopPublisher struct{}

func (nopPublisher) Publish(string, Snapshot) {}
