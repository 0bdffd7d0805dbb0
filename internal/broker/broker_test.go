package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iksnae/cellbook/internal"
	"github.com/iksnae/cellbook/internal/protocol"
)

// echoHost answers every request from a fixed table of file contents
func echoHost(t *testing.T, conn protocol.Conn, files map[string]string) {
	t.Helper()
	go func() {
		_ = protocol.Serve(context.Background(), conn, protocol.HandlerFunc(func(ctx context.Context, msg protocol.Message) {
			if data, ok := files[msg.FilePath]; ok {
				_ = conn.Send(ctx, protocol.FileAccessGranted(msg.RequestID, msg.FilePath, []byte(data)))
				return
			}
			_ = conn.Send(ctx, protocol.FileAccessDenied(msg.RequestID, msg.FilePath, "user denied access"))
		}))
	}()
}

func newBroker(t *testing.T, files map[string]string) *Broker {
	t.Helper()
	sandbox, host := protocol.Pipe()
	t.Cleanup(func() { _ = sandbox.Close() })
	echoHost(t, host, files)

	b := New(sandbox)
	go func() {
		_ = protocol.Serve(context.Background(), sandbox, protocol.HandlerFunc(func(ctx context.Context, msg protocol.Message) {
			b.Deliver(msg)
		}))
	}()
	return b
}

func TestRequestAccess_Granted(t *testing.T) {
	b := newBroker(t, map[string]string{"/data/a.csv": "x\n1\n"})

	data, err := b.RequestAccess(context.Background(), "/data/a.csv")
	if err != nil {
		t.Fatalf("RequestAccess() error = %v", err)
	}
	if string(data) != "x\n1\n" {
		t.Errorf("RequestAccess() = %q", data)
	}
	if n := b.Pending(); n != 0 {
		t.Errorf("Pending() = %d after answer, want 0", n)
	}
}

func TestRequestAccess_Denied(t *testing.T) {
	b := newBroker(t, nil)

	_, err := b.RequestAccess(context.Background(), "/data/secret.csv")
	var accessErr *internal.AccessError
	if !errors.As(err, &accessErr) {
		t.Fatalf("RequestAccess() error = %v, want *AccessError", err)
	}
	if accessErr.Path != "/data/secret.csv" || accessErr.Reason != "user denied access" {
		t.Errorf("AccessError = %+v", accessErr)
	}
}

func TestRequestAccess_ConcurrentSamePath(t *testing.T) {
	b := newBroker(t, map[string]string{"/data/a.csv": "same"})

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := b.RequestAccess(context.Background(), "/data/a.csv")
			if err == nil && string(data) != "same" {
				err = errors.New("wrong data: " + string(data))
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("RequestAccess() error = %v", err)
		}
	}
}

func TestRequestAccess_ContextCancelled(t *testing.T) {
	sandbox, host := protocol.Pipe()
	defer sandbox.Close()
	_ = host // never answers

	b := New(sandbox)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := b.RequestAccess(ctx, "/data/a.csv"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("RequestAccess() error = %v, want deadline exceeded", err)
	}
	if n := b.Pending(); n != 0 {
		t.Errorf("Pending() = %d after cancel, want 0", n)
	}
}

func TestDeliver_Unknown(t *testing.T) {
	sandbox, _ := protocol.Pipe()
	defer sandbox.Close()
	b := New(sandbox)

	if b.Deliver(protocol.FileAccessGranted(99, "/x", nil)) {
		t.Error("Deliver() of unknown id = true")
	}
	if b.Deliver(protocol.Ready()) {
		t.Error("Deliver() of unrelated kind = true")
	}
}
