// Package host is the privileged side of the notebook: it owns the source
// file, the user prompts and every filesystem mutation requested by the
// sandbox.
package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/iksnae/cellbook/internal"
	"github.com/iksnae/cellbook/internal/destination"
	"github.com/iksnae/cellbook/internal/metrics"
	"github.com/iksnae/cellbook/internal/protocol"
	"github.com/iksnae/cellbook/internal/settings"
	"github.com/iksnae/cellbook/internal/writequeue"
)

// DeniedByUser is the denial reason sent when the user picks Deny.
const DeniedByUser = "user denied access"

// Config wires a Host to its collaborators. Metrics, Diagnostics and Actions
// are optional.
type Config struct {
	// SourcePath is the tabular file pushed to the sandbox on ready.
	SourcePath  string
	Settings    *settings.Store
	Prompter    Prompter
	Resolver    *destination.Resolver
	Queue       *writequeue.Queue
	Metrics     *metrics.Metrics
	Diagnostics *metrics.Diagnostics
	Actions     Actions
	// ReadFile reads files granted to the sandbox; defaults to os.ReadFile.
	ReadFile func(path string) ([]byte, error)
}

// Host answers sandbox messages on one connection
type Host struct {
	cfg  Config
	conn protocol.Conn

	// one user prompt at a time
	promptMu sync.Mutex
	wg       sync.WaitGroup

	// owned by the write queue worker
	transfers map[string]destination.Destination
}

// New creates a host serving conn
func New(conn protocol.Conn, cfg Config) *Host {
	if cfg.ReadFile == nil {
		cfg.ReadFile = os.ReadFile
	}
	return &Host{
		cfg:       cfg,
		conn:      conn,
		transfers: make(map[string]destination.Destination),
	}
}

// Serve handles messages until ctx is done or the connection closes, then
// waits for in-flight prompts and flushes the write queue.
func (h *Host) Serve(ctx context.Context) error {
	err := protocol.Serve(ctx, h.conn, h)
	h.wg.Wait()
	if flushErr := h.cfg.Queue.Flush(context.Background()); flushErr != nil {
		internal.LogWarn("host: flush write queue: %v", flushErr)
	}
	return err
}

// Handle implements protocol.Handler. Save-file messages are enqueued before
// Handle returns so that their relative order is the arrival order; anything
// that prompts the user runs on its own goroutine.
func (h *Host) Handle(ctx context.Context, msg protocol.Message) {
	if err := msg.Validate(); err != nil {
		internal.LogWarn("host: dropping invalid message: %v", err)
		return
	}

	switch msg.Type {
	case protocol.KindReady, protocol.KindRequestRefresh:
		h.sendLoadData(ctx)
	case protocol.KindRequestFileAccess:
		h.goHandle(ctx, msg, h.handleFileAccess)
	case protocol.KindExportData:
		h.goHandle(ctx, msg, h.handleExport)
	case protocol.KindSaveFileStart:
		h.enqueueTransfer("start", msg.Name, func(ctx context.Context) error { return h.startTransfer(ctx, msg.Name) })
	case protocol.KindSaveFileChunk:
		h.enqueueTransfer("chunk", msg.Name, func(ctx context.Context) error { return h.appendChunk(ctx, msg.Name, msg.Data) })
	case protocol.KindSaveFileEnd:
		h.enqueueTransfer("end", msg.Name, func(ctx context.Context) error { return h.endTransfer(ctx, msg.Name) })
	case protocol.KindCopyToClipboard:
		h.copyToClipboard(msg)
	case protocol.KindOpenURL:
		h.openURL(msg)
	case protocol.KindUpdateConfiguration:
		if err := h.cfg.Settings.Set(msg.Key, msg.Value); err != nil {
			internal.LogWarn("host: update configuration %s: %v", msg.Key, err)
			h.notify(ctx, "error", fmt.Sprintf("Could not update %s: %v", msg.Key, err))
		}
	default:
		internal.LogWarn("host: unexpected message %s", msg.Type)
	}
}

func (h *Host) goHandle(ctx context.Context, msg protocol.Message, fn func(context.Context, protocol.Message)) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn(ctx, msg)
	}()
}

func (h *Host) send(ctx context.Context, msg protocol.Message) {
	err := h.conn.Send(ctx, msg)
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrClosed):
		// the sandbox left before the reply; writes still complete
		internal.LogDebug("host: send %s after close", msg.Type)
	default:
		internal.LogWarn("host: send %s: %v", msg.Type, err)
	}
}

func (h *Host) notify(ctx context.Context, level, text string) {
	h.send(ctx, protocol.Notify(level, text))
}

func (h *Host) sendLoadData(ctx context.Context) {
	data, err := os.ReadFile(h.cfg.SourcePath)
	if err != nil {
		internal.LogError("host: read source %s: %v", h.cfg.SourcePath, err)
		h.notify(ctx, "error", fmt.Sprintf("Could not read %s: %v", h.cfg.SourcePath, err))
		return
	}
	name := filepath.Base(h.cfg.SourcePath)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	internal.LogDebug("host: pushing %s (%d bytes)", name, len(data))
	h.send(ctx, protocol.LoadData(name, ext, data))
}

func (h *Host) countDecision(decision string) {
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.AccessDecisions.WithLabelValues(decision).Inc()
	}
}

func (h *Host) handleFileAccess(ctx context.Context, msg protocol.Message) {
	id, path := msg.RequestID, msg.FilePath
	deny := func(reason string) {
		h.send(ctx, protocol.FileAccessDenied(id, path, reason))
	}

	if !filepath.IsAbs(path) {
		h.countDecision("invalid")
		deny("path must be absolute")
		return
	}

	decision, err := h.decide(ctx, path)
	if err != nil {
		h.countDecision("error")
		deny(err.Error())
		return
	}
	h.countDecision(decision.String())
	if decision == Deny {
		deny(DeniedByUser)
		return
	}

	data, err := h.cfg.ReadFile(path)
	if err != nil {
		internal.LogWarn("host: read %s: %v", path, err)
		deny(err.Error())
		return
	}
	internal.LogInfo("host: granted %s (%d bytes)", path, len(data))
	h.send(ctx, protocol.FileAccessGranted(id, path, data))
}

// decide consults the persisted permission and prompts only when it is not
// set. The setting is checked again under the prompt lock so that requests
// queued behind an "allow and remember" answer are not asked again.
func (h *Host) decide(ctx context.Context, path string) (Decision, error) {
	if h.allowed() {
		return Allow, nil
	}

	h.promptMu.Lock()
	defer h.promptMu.Unlock()

	if h.allowed() {
		return Allow, nil
	}
	decision, err := h.cfg.Prompter.AskFileAccess(ctx, path)
	if err != nil {
		return Deny, fmt.Errorf("prompt failed: %w", err)
	}
	if decision == AllowAndRemember {
		if err := h.cfg.Settings.RememberExternalFileReads(); err != nil {
			internal.LogWarn("host: persist file access permission: %v", err)
		}
	}
	return decision, nil
}

func (h *Host) allowed() bool {
	ok, err := h.cfg.Settings.AllowExternalFileReads()
	if err != nil {
		internal.LogWarn("host: read permission setting: %v", err)
		return false
	}
	return ok
}

func (h *Host) handleExport(ctx context.Context, msg protocol.Message) {
	h.promptMu.Lock()
	path, err := h.cfg.Prompter.SaveLocation(ctx, msg.DefaultName, msg.Format)
	h.promptMu.Unlock()
	if err != nil {
		internal.LogWarn("host: save prompt: %v", err)
		h.notify(ctx, "error", fmt.Sprintf("Export of %s failed: %v", msg.DefaultName, err))
		return
	}
	if path == "" {
		internal.LogInfo("host: export of %s cancelled", msg.DefaultName)
		h.notify(ctx, "warning", fmt.Sprintf("Export of %s cancelled", msg.DefaultName))
		return
	}

	dest, err := h.cfg.Resolver.ResolveChosen(path)
	if err != nil {
		h.reportFailure(ctx, msg.DefaultName, "export", err)
		return
	}

	data := msg.Data
	result := h.cfg.Queue.Enqueue("export "+dest.String(), func(ctx context.Context) error {
		return destination.WriteAll(ctx, dest, data)
	})
	if err := <-result; err != nil {
		h.reportFailure(ctx, dest.String(), "export", err)
		return
	}
	h.countBytes(len(data))
	h.notify(ctx, "info", fmt.Sprintf("Exported %d bytes to %s", len(data), dest))
}

func (h *Host) enqueueTransfer(op, name string, fn writequeue.Op) {
	result := h.cfg.Queue.Enqueue(op+" "+name, fn)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := <-result; err != nil {
			// never surfaced to the sender
			h.reportFailure(context.Background(), name, op, err)
		}
	}()
}

func (h *Host) startTransfer(ctx context.Context, name string) error {
	dest, err := h.cfg.Resolver.Resolve(name)
	if err != nil {
		return err
	}
	h.transfers[name] = dest
	internal.LogDebug("host: start %s -> %s (local=%v)", name, dest, dest.Local())
	return dest.Truncate(ctx)
}

func (h *Host) appendChunk(ctx context.Context, name string, data []byte) error {
	dest, ok := h.transfers[name]
	if !ok {
		internal.LogWarn("host: chunk for %s without start", name)
		var err error
		if dest, err = h.cfg.Resolver.Resolve(name); err != nil {
			return err
		}
		h.transfers[name] = dest
	}
	if err := dest.Append(ctx, data); err != nil {
		return err
	}
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.ChunksWritten.Inc()
	}
	h.countBytes(len(data))
	return nil
}

func (h *Host) endTransfer(ctx context.Context, name string) error {
	dest, ok := h.transfers[name]
	if !ok {
		return fmt.Errorf("no transfer in progress")
	}
	delete(h.transfers, name)
	if err := dest.Finalize(ctx); err != nil {
		return err
	}
	internal.LogInfo("host: saved %s", dest)
	h.notify(ctx, "info", fmt.Sprintf("Saved %s", dest))
	return nil
}

func (h *Host) countBytes(n int) {
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.BytesWritten.Add(float64(n))
	}
}

func (h *Host) reportFailure(ctx context.Context, name, op string, err error) {
	terr := &internal.TransferError{Name: name, Op: op, Err: err}
	internal.LogError("host: %v", terr)
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.TransferFailures.WithLabelValues(op).Inc()
	}
	h.cfg.Diagnostics.Report(metrics.Event{Source: "host", Name: name, Op: op, Err: err})
	if op == "export" || op == "start" {
		h.notify(ctx, "error", terr.Error())
	}
}

func (h *Host) copyToClipboard(msg protocol.Message) {
	if h.cfg.Actions == nil {
		return
	}
	value, ok := msg.Value.(string)
	if !ok {
		value = fmt.Sprint(msg.Value)
	}
	if err := h.cfg.Actions.CopyToClipboard(value); err != nil {
		internal.LogWarn("host: copy to clipboard: %v", err)
	}
}

func (h *Host) openURL(msg protocol.Message) {
	if h.cfg.Actions == nil {
		return
	}
	if err := h.cfg.Actions.OpenURL(msg.URL); err != nil {
		internal.LogWarn("host: open url: %v", err)
	}
}
