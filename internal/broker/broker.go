// Package broker is the sandbox side of the file access handshake. The
// sandbox cannot read the host filesystem, so each read is a request that the
// host answers with the bytes or a denial.
package broker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/iksnae/cellbook/internal"
	"github.com/iksnae/cellbook/internal/protocol"
)

// Sender is the outbound half of a protocol.Conn
type Sender interface {
	Send(ctx context.Context, msg protocol.Message) error
}

// Broker correlates access requests with the host's responses by request
// id, so concurrent requests for the same path never collide.
type Broker struct {
	conn Sender
	next atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan protocol.Message
}

// New creates a broker sending requests on conn
func New(conn Sender) *Broker {
	return &Broker{conn: conn, pending: make(map[uint64]chan protocol.Message)}
}

// RequestAccess asks the host for the contents of path and waits for the
// answer. A denial is returned as *internal.AccessError.
func (b *Broker) RequestAccess(ctx context.Context, path string) ([]byte, error) {
	id := b.next.Add(1)
	reply := make(chan protocol.Message, 1)

	b.mu.Lock()
	b.pending[id] = reply
	b.mu.Unlock()
	defer b.forget(id)

	internal.LogDebug("broker: request %d for %s", id, path)
	if err := b.conn.Send(ctx, protocol.RequestFileAccess(id, path)); err != nil {
		return nil, err
	}

	select {
	case msg := <-reply:
		if msg.Type == protocol.KindFileAccessDenied {
			return nil, &internal.AccessError{Path: path, Reason: msg.Error}
		}
		return msg.Data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Deliver routes a grant or denial to its waiting request. It reports
// whether a request was waiting; stale answers are dropped.
func (b *Broker) Deliver(msg protocol.Message) bool {
	if msg.Type != protocol.KindFileAccessGranted && msg.Type != protocol.KindFileAccessDenied {
		return false
	}

	b.mu.Lock()
	reply, ok := b.pending[msg.RequestID]
	delete(b.pending, msg.RequestID)
	b.mu.Unlock()

	if !ok {
		internal.LogWarn("broker: no pending request %d for %s", msg.RequestID, msg.FilePath)
		return false
	}
	reply <- msg
	return true
}

// Pending returns the number of unanswered requests
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Broker) forget(id uint64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}
