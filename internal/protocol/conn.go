package protocol

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Send and Recv once either end has been closed.
var ErrClosed = errors.New("protocol: connection closed")

// Conn is one end of a bidirectional message channel. Messages are delivered
// in the order they were sent.
type Conn interface {
	Send(ctx context.Context, msg Message) error
	Recv(ctx context.Context) (Message, error)
	Close() error
}

// Handler processes inbound messages.
type Handler interface {
	Handle(ctx context.Context, msg Message)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message)

func (f HandlerFunc) Handle(ctx context.Context, msg Message) { f(ctx, msg) }

// Serve receives messages from conn and hands them to h one at a time until
// ctx is done or the connection closes. Handlers that block hold up every
// later message, so long-running work must be started on its own goroutine.
func Serve(ctx context.Context, conn Conn, h Handler) error {
	for {
		msg, err := conn.Recv(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		h.Handle(ctx, msg)
	}
}

const pipeBuffer = 256

type pipeShared struct {
	once sync.Once
	done chan struct{}
}

func (s *pipeShared) close() {
	s.once.Do(func() { close(s.done) })
}

type pipeEnd struct {
	in     <-chan Message
	out    chan<- Message
	shared *pipeShared
}

// Pipe returns two connected in-memory ends. Closing either end closes both.
func Pipe() (Conn, Conn) {
	ab := make(chan Message, pipeBuffer)
	ba := make(chan Message, pipeBuffer)
	shared := &pipeShared{done: make(chan struct{})}
	return &pipeEnd{in: ba, out: ab, shared: shared},
		&pipeEnd{in: ab, out: ba, shared: shared}
}

func (p *pipeEnd) Send(ctx context.Context, msg Message) error {
	select {
	case <-p.shared.done:
		return ErrClosed
	default:
	}
	select {
	case p.out <- msg:
		return nil
	case <-p.shared.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Recv(ctx context.Context) (Message, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.shared.done:
		// drain what was sent before the close
		select {
		case msg := <-p.in:
			return msg, nil
		default:
			return Message{}, ErrClosed
		}
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.shared.close()
	return nil
}
