// Package transfer sends large exports to the host as an ordered sequence of
// start, chunk and end messages.
package transfer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/iksnae/cellbook/internal"
	"github.com/iksnae/cellbook/internal/metrics"
	"github.com/iksnae/cellbook/internal/protocol"
)

// DefaultChunkSize is the largest payload carried by one saveFileChunk
const DefaultChunkSize = 1 << 20

// Conn is the outbound half of a protocol.Conn
type Conn interface {
	Send(ctx context.Context, msg protocol.Message) error
}

// Options configures a Sender. Zero values select the defaults.
type Options struct {
	ChunkSize int
	// Interval is the minimum gap between chunks. It only paces the
	// stream; the host does not acknowledge chunks.
	Interval time.Duration
	Metrics  *metrics.Metrics
}

// Sender splits exports into chunks
type Sender struct {
	conn      Conn
	chunkSize int
	limiter   *rate.Limiter
	metrics   *metrics.Metrics
}

// NewSender creates a sender writing to conn
func NewSender(conn Conn, opts Options) *Sender {
	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}
	return &Sender{
		conn:      conn,
		chunkSize: size,
		limiter:   rate.NewLimiter(limit, 1),
		metrics:   opts.Metrics,
	}
}

// Send transmits data under name. Every chunk is sent before Send returns;
// nothing is known about whether the host managed to write it.
func (s *Sender) Send(ctx context.Context, name string, data []byte) error {
	if err := s.conn.Send(ctx, protocol.SaveFileStart(name)); err != nil {
		return &internal.TransferError{Name: name, Op: "start", Err: err}
	}

	chunks := Chunks(data, s.chunkSize)
	for i, chunk := range chunks {
		if err := s.limiter.Wait(ctx); err != nil {
			return &internal.TransferError{Name: name, Op: "chunk", Err: err}
		}
		if err := s.conn.Send(ctx, protocol.SaveFileChunk(name, chunk)); err != nil {
			return &internal.TransferError{Name: name, Op: "chunk", Err: fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)}
		}
		if s.metrics != nil {
			s.metrics.ChunksSent.Inc()
		}
	}

	if err := s.conn.Send(ctx, protocol.SaveFileEnd(name)); err != nil {
		return &internal.TransferError{Name: name, Op: "end", Err: err}
	}
	internal.LogDebug("transfer: sent %s in %d chunk(s), %d bytes", name, len(chunks), len(data))
	return nil
}

// Chunks splits data into consecutive slices of at most size bytes. Empty
// data yields no chunks.
func Chunks(data []byte, size int) [][]byte {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks [][]byte
	for start := 0; start < len(data); start += size {
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[start:end])
	}
	return chunks
}
