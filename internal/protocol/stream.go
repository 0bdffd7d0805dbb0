package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

type streamConn struct {
	w       io.Writer
	writeMu sync.Mutex

	closer    io.Closer
	incoming  chan Message
	errs      chan error
	done      chan struct{}
	closeOnce sync.Once
}

// NewStreamConn carries messages as JSON lines over r and w, so that the host
// and the sandbox can run as separate processes joined by pipes or a socket.
// If w also implements io.Closer it is closed by Close.
func NewStreamConn(r io.Reader, w io.Writer) Conn {
	c := &streamConn{
		w:        w,
		incoming: make(chan Message, pipeBuffer),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
	}
	if cl, ok := w.(io.Closer); ok {
		c.closer = cl
	}
	go c.readLoop(r)
	return c
}

// readLoop decodes a stream of JSON values; messages are newline separated
// but a single one may be arbitrarily large. On a read error the reader is
// closed so a peer blocked writing into it fails instead of hanging.
func (c *streamConn) readLoop(r io.Reader) {
	dec := json.NewDecoder(r)
	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			c.fail(r, err)
			return
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *streamConn) fail(r io.Reader, err error) {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe):
		err = ErrClosed
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		err = fmt.Errorf("decode message: %w", err)
	default:
		err = fmt.Errorf("read messages: %w", err)
	}
	c.errs <- err
	if rc, ok := r.(io.Closer); ok {
		_ = rc.Close()
	}
	if c.closer != nil {
		_ = c.closer.Close()
	}
}

func (c *streamConn) Send(ctx context.Context, msg Message) error {
	select {
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(data); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			return ErrClosed
		}
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	return nil
}

func (c *streamConn) Recv(ctx context.Context) (Message, error) {
	select {
	case msg := <-c.incoming:
		return msg, nil
	case <-c.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case err := <-c.errs:
		// keep the terminal error for later callers
		c.errs <- err
		select {
		case msg := <-c.incoming:
			return msg, nil
		default:
			return Message{}, err
		}
	}
}

func (c *streamConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.closer != nil {
			err = c.closer.Close()
		}
	})
	return err
}
