package link

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/muurk/banddump/internal/protocol"
)

// Pipe is an in-memory Transport. The other end is a Peer, which plays the
// tracker.
type Pipe struct {
	toPeer    chan protocol.Frame
	toHost    chan protocol.Frame
	done      chan struct{}
	closeOnce sync.Once
	connected atomic.Bool
}

// Peer is the tracker side of a Pipe
type Peer struct {
	pipe *Pipe
}

// NewPipe creates a connected Pipe/Peer pair. buffer is the channel
// capacity in each direction; the emulator uses a full block so it can
// stream without waiting for the host.
func NewPipe(buffer int) (*Pipe, *Peer) {
	p := &Pipe{
		toPeer: make(chan protocol.Frame, buffer),
		toHost: make(chan protocol.Frame, buffer),
		done:   make(chan struct{}),
	}
	return p, &Peer{pipe: p}
}

// Connect implements Transport
func (p *Pipe) Connect(ctx context.Context) error {
	select {
	case <-p.done:
		return fmt.Errorf("pipe connect: %w", ErrClosed)
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	p.connected.Store(true)
	return nil
}

// Send implements Transport
func (p *Pipe) Send(ctx context.Context, f protocol.Frame) error {
	if !p.connected.Load() {
		return ErrNotConnected
	}
	return p.push(ctx, p.toPeer, f)
}

// Recv implements Transport
func (p *Pipe) Recv(ctx context.Context) (protocol.Frame, error) {
	if !p.connected.Load() {
		return protocol.Frame{}, ErrNotConnected
	}
	return p.pull(ctx, p.toHost)
}

// Close implements Transport
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

// Type implements Transport
func (*Pipe) Type() Type {
	return TypePipe
}

func (p *Pipe) push(ctx context.Context, ch chan protocol.Frame, f protocol.Frame) error {
	// Closed wins over a free buffer slot
	select {
	case <-p.done:
		return fmt.Errorf("pipe send: %w", ErrClosed)
	default:
	}

	select {
	case ch <- f:
		return nil
	case <-p.done:
		return fmt.Errorf("pipe send: %w", ErrClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipe) pull(ctx context.Context, ch chan protocol.Frame) (protocol.Frame, error) {
	// Drain frames already queued before reporting closure
	select {
	case f := <-ch:
		return f, nil
	default:
	}

	select {
	case f := <-ch:
		return f, nil
	case <-p.done:
		return protocol.Frame{}, fmt.Errorf("pipe recv: %w", ErrClosed)
	case <-ctx.Done():
		return protocol.Frame{}, ctx.Err()
	}
}

// Send delivers a frame to the host
func (p *Peer) Send(ctx context.Context, f protocol.Frame) error {
	return p.pipe.push(ctx, p.pipe.toHost, f)
}

// Recv returns the next frame written by the host
func (p *Peer) Recv(ctx context.Context) (protocol.Frame, error) {
	return p.pipe.pull(ctx, p.pipe.toPeer)
}

// Close drops the link from the tracker side
func (p *Peer) Close() error {
	return p.pipe.Close()
}
