package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/iksnae/cellbook/internal"
	"github.com/iksnae/cellbook/internal/config"
	"github.com/iksnae/cellbook/internal/destination"
	"github.com/iksnae/cellbook/internal/engine"
	"github.com/iksnae/cellbook/internal/host"
	"github.com/iksnae/cellbook/internal/metrics"
	"github.com/iksnae/cellbook/internal/notebook"
	"github.com/iksnae/cellbook/internal/protocol"
	"github.com/iksnae/cellbook/internal/settings"
	"github.com/iksnae/cellbook/internal/writequeue"
)

// app runs a host and a notebook in one process, joined by the configured
// transport.
type app struct {
	nb      *notebook.Notebook
	store   *settings.Store
	metrics *metrics.Metrics
	diag    *metrics.Diagnostics

	sandbox protocol.Conn
	detach  func()
	queue   *writequeue.Queue
	cancel  context.CancelFunc
	loops   sync.WaitGroup // host and notebook message loops
	wg      sync.WaitGroup
}

const shutdownTimeout = 30 * time.Second

func newResolver(c *config.Config) (*destination.Resolver, error) {
	resolver := destination.NewResolver(c.OutputDir)
	if c.Minio.Enabled() {
		store, err := destination.NewMinioStore(c.Minio.Store())
		if err != nil {
			return nil, fmt.Errorf("failed to configure object store: %w", err)
		}
		resolver.Register("s3", store)
	}
	return resolver, nil
}

// newTransport connects a host end and a sandbox end. detach unblocks host
// writes once the sandbox has gone away.
func newTransport(kind string) (hostEnd, sandboxEnd protocol.Conn, detach func()) {
	if kind != config.TransportStream {
		hostEnd, sandboxEnd = protocol.Pipe()
		return hostEnd, sandboxEnd, func() {}
	}
	hostR, sandboxW := io.Pipe()
	sandboxR, hostW := io.Pipe()
	internal.LogDebug("joining host and notebook with JSON-lines streams")
	return protocol.NewStreamConn(hostR, hostW), protocol.NewStreamConn(sandboxR, sandboxW), func() {
		_ = sandboxR.Close()
	}
}

// startApp loads source and waits for the canonical cells to finish
func startApp(ctx context.Context, c *config.Config, source string, prompter host.Prompter) (*app, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", source, err)
	}

	resolver, err := newResolver(c)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	a := &app{
		store:   settings.NewStore(c.SettingsPath),
		metrics: metrics.New(),
		diag:    metrics.NewDiagnostics(),
		queue:   writequeue.New(context.Background()),
		cancel:  cancel,
	}

	hostEnd, sandboxEnd, detach := newTransport(c.Transport)
	a.sandbox, a.detach = sandboxEnd, detach
	srv := host.New(hostEnd, host.Config{
		SourcePath:  abs,
		Settings:    a.store,
		Prompter:    prompter,
		Resolver:    resolver,
		Queue:       a.queue,
		Metrics:     a.metrics,
		Diagnostics: a.diag,
		Actions:     host.SystemActions{},
	})
	a.nb = notebook.New(notebook.Config{
		Conn:          sandboxEnd,
		Factory:       engine.NewSQLiteFactory(),
		Preferences:   a.preferences,
		GraceDelay:    c.GraceDelay,
		ChunkSize:     c.ChunkSize,
		ChunkInterval: c.ChunkInterval,
		Metrics:       a.metrics,
		Diagnostics:   a.diag,
	})
	loading, stopLoading := a.nb.Subscribe(32)
	defer stopLoading()

	a.loops.Add(2)
	go func() {
		defer a.loops.Done()
		if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
			internal.LogError("host: %v", err)
		}
	}()
	go func() {
		defer a.loops.Done()
		if err := a.nb.Serve(ctx); err != nil && ctx.Err() == nil {
			internal.LogError("notebook: %v", err)
		}
	}()
	if c.MetricsAddr != "" {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			internal.LogInfo("Serving metrics on %s/metrics", c.MetricsAddr)
			if err := a.metrics.Serve(ctx, c.MetricsAddr); err != nil {
				internal.LogWarn("metrics server: %v", err)
			}
		}()
	}

	if err := a.waitLoaded(ctx, loading, filepath.Base(abs)); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// waitLoaded shows which setup cell is running until the session is ready
// or has failed.
func (a *app) waitLoaded(ctx context.Context, events <-chan notebook.Event, name string) error {
	p := internal.NewProgress(fmt.Sprintf("Loading %s", name))
	ready := make(chan error, 1)
	go func() { ready <- a.nb.WaitReady(ctx) }()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Type == notebook.CellChanged && ev.Cell.Status == notebook.Running {
				p.Update(fmt.Sprintf("Loading %s: %s", name, firstLine(ev.Cell.Query)))
			}
		case err := <-ready:
			p.Finish(err)
			return err
		}
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (a *app) preferences() settings.Settings {
	s, err := a.store.Load()
	if err != nil {
		internal.LogWarn("Failed to read settings, using defaults: %v", err)
		return settings.Defaults()
	}
	return s
}

// Close stops the notebook, lets the host finish queued writes and returns
// the export failures that were not attached to any cell.
func (a *app) Close() []metrics.Event {
	_ = a.nb.Close()
	_ = a.sandbox.Close()
	a.detach()

	// the host drains the connection and flushes its write queue
	done := make(chan struct{})
	go func() {
		a.loops.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		internal.LogWarn("Timed out waiting for pending writes")
	}

	a.cancel()
	a.wg.Wait()
	a.queue.Close()
	return a.diag.Recent()
}

// waitNotice blocks until the host sends a notification or ctx ends
func waitNotice(ctx context.Context, events <-chan notebook.Event) (notebook.Event, error) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return notebook.Event{}, fmt.Errorf("notebook closed")
			}
			if ev.Type == notebook.Notified {
				return ev, nil
			}
		case <-ctx.Done():
			return notebook.Event{}, ctx.Err()
		}
	}
}

func reportDiagnostics(events []metrics.Event) {
	for _, ev := range events {
		internal.PrintWarning(fmt.Sprintf("export of %s failed during %s: %v", ev.Name, ev.Op, ev.Err))
	}
}
