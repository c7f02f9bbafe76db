package bridge

import (
	"context"
	"errors"
	"sync"
)

// Transport moves messages between the two sides of the bridge.
type Transport interface {
	Send(ctx context.Context, m Message) error
	// Receive returns the incoming messages. The channel is closed when
	// ctx is done or the transport is closed.
	Receive(ctx context.Context) (<-chan Message, error)
	Close() error
}

var ErrClosed = errors.New("transport closed")

// MemoryTransport is one end of an in-process pipe.
type MemoryTransport struct {
	in   chan Message
	done chan struct{}
	once sync.Once
	peer *MemoryTransport
}

// NewPipe returns two connected ends; what one sends the other receives.
func NewPipe(buffer int) (ui, host *MemoryTransport) {
	ui = &MemoryTransport{in: make(chan Message, buffer), done: make(chan struct{})}
	host = &MemoryTransport{in: make(chan Message, buffer), done: make(chan struct{})}
	ui.peer, host.peer = host, ui
	return ui, host
}

func (t *MemoryTransport) Send(ctx context.Context, m Message) error {
	p := t.peer
	select {
	case <-t.done:
		return ErrClosed
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.in <- m:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *MemoryTransport) Receive(ctx context.Context) (<-chan Message, error) {
	select {
	case <-t.done:
		return nil, ErrClosed
	default:
	}
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.done:
				return
			case m := <-t.in:
				select {
				case out <- m:
				case <-ctx.Done():
					return
				case <-t.done:
					return
				}
			}
		}
	}()
	return out, nil
}

func (t *MemoryTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}
