package testutil

import (
	"context"
	"sync"

	"github.com/iksnae/cellbook/internal/engine"
)

// CountingFactory wraps the SQLite factory and counts instantiations.
// Hook, when set, runs with the context of every statement before it is
// executed; returning an error fails the statement.
type CountingFactory struct {
	Hook func(ctx context.Context, sql string) error

	mu      sync.Mutex
	created []*HookedEngine
}

// Factory returns an engine.Factory bound to f
func (f *CountingFactory) Factory() engine.Factory {
	return func(ctx context.Context) (engine.Engine, error) {
		e, err := engine.OpenSQLite(ctx)
		if err != nil {
			return nil, err
		}
		h := &HookedEngine{SQLite: e, factory: f}
		f.mu.Lock()
		f.created = append(f.created, h)
		f.mu.Unlock()
		return h, nil
	}
}

// Created returns how many engines the factory has produced
func (f *CountingFactory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// Latest returns the most recently created engine, or nil
func (f *CountingFactory) Latest() *HookedEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

// HookedEngine is a SQLite engine that records statements and registrations
type HookedEngine struct {
	*engine.SQLite
	factory *CountingFactory

	mu         sync.Mutex
	queries    []string
	registered []string
}

func (h *HookedEngine) Query(ctx context.Context, sql string) (*engine.Result, error) {
	h.mu.Lock()
	h.queries = append(h.queries, sql)
	h.mu.Unlock()
	if hook := h.factory.Hook; hook != nil {
		if err := hook(ctx, sql); err != nil {
			return nil, err
		}
	}
	return h.SQLite.Query(ctx, sql)
}

func (h *HookedEngine) RegisterFile(name string, data []byte) error {
	h.mu.Lock()
	h.registered = append(h.registered, name)
	h.mu.Unlock()
	return h.SQLite.RegisterFile(name, data)
}

// Queries returns the statements executed so far
func (h *HookedEngine) Queries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.queries...)
}

// Registered returns the file names registered so far
func (h *HookedEngine) Registered() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.registered...)
}
