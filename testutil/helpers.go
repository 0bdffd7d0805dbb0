package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iksnae/cellbook/internal/protocol"
)

// DefaultTimeout bounds every wait in tests
const DefaultTimeout = 5 * time.Second

// CreateTempDir creates a temporary directory for testing
func CreateTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "cellbook-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

// WriteFile writes data under dir and returns the absolute path
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		t.Fatalf("Failed to resolve %s: %v", path, err)
	}
	return abs
}

// Context returns a context cancelled at test end or after DefaultTimeout
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	t.Cleanup(cancel)
	return ctx
}

// Eventually polls cond until it holds or DefaultTimeout elapses
func Eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// RecvKind reads from conn until a message of kind arrives, skipping others
func RecvKind(t *testing.T, conn protocol.Conn, kind protocol.Kind) protocol.Message {
	t.Helper()
	ctx := Context(t)
	for {
		msg, err := conn.Recv(ctx)
		if err != nil {
			t.Fatalf("waiting for %s: %v", kind, err)
		}
		if msg.Type == kind {
			return msg
		}
	}
}
