package relay

import (
	"context"
	"errors"
	"sync"
)

const memoryBuffer = 1024

var ErrRelayClosed = errors.New("relay closed")

// Hub connects memory relays as if they shared one broker.
type Hub struct {
	mu    sync.RWMutex
	nodes map[*memoryRelay]struct{}
}

func NewHub() *Hub {
	return &Hub{nodes: make(map[*memoryRelay]struct{})}
}

func (h *Hub) Relay() Relay {
	return &memoryRelay{
		hub:  h,
		in:   make(chan Envelope, memoryBuffer),
		done: make(chan struct{}),
	}
}

func (h *Hub) publish(ctx context.Context, env Envelope) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for node := range h.nodes {
		select {
		case node.in <- env:
		case <-node.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

type memoryRelay struct {
	hub       *Hub
	in        chan Envelope
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (r *memoryRelay) Publish(ctx context.Context, env Envelope) error {
	select {
	case <-r.done:
		return ErrRelayClosed
	default:
	}
	return r.hub.publish(ctx, env)
}

func (r *memoryRelay) Subscribe(ctx context.Context, h Handler) error {
	select {
	case <-r.done:
		return ErrRelayClosed
	default:
	}

	r.hub.mu.Lock()
	r.hub.nodes[r] = struct{}{}
	r.hub.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case env := <-r.in:
				h(env)
			case <-r.done:
				return
			case <-ctx.Done():
				r.detach()
				return
			}
		}
	}()
	return nil
}

// detach closes done before taking the hub lock so a publisher blocked on
// this relay's buffer is released.
func (r *memoryRelay) detach() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.hub.mu.Lock()
		delete(r.hub.nodes, r)
		r.hub.mu.Unlock()
	})
}

func (r *memoryRelay) Close() error {
	r.detach()
	r.wg.Wait()
	return nil
}
