package notebook

import (
	"context"
	"fmt"

	"github.com/iksnae/cellbook/internal"
	"github.com/iksnae/cellbook/internal/export"
	"github.com/iksnae/cellbook/internal/protocol"
)

// Serve announces the sandbox to the host and handles host messages until
// ctx is done or the connection closes.
func (n *Notebook) Serve(ctx context.Context) error {
	if err := n.conn.Send(ctx, protocol.Ready()); err != nil {
		return fmt.Errorf("send ready: %w", err)
	}
	return protocol.Serve(ctx, n.conn, protocol.HandlerFunc(n.handle))
}

func (n *Notebook) handle(ctx context.Context, msg protocol.Message) {
	if err := msg.Validate(); err != nil {
		internal.LogWarn("notebook: dropping invalid message: %v", err)
		return
	}

	switch msg.Type {
	case protocol.KindLoadData:
		p := Payload{Name: msg.Name, Extension: msg.Extension, Data: msg.Data}
		// bootstrap runs queries; grants must keep flowing meanwhile
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.Bootstrap(ctx, p); err != nil {
				internal.LogError("notebook: bootstrap %s: %v", p.Name, err)
			}
		}()
	case protocol.KindFileAccessGranted, protocol.KindFileAccessDenied:
		n.broker.Deliver(msg)
	case protocol.KindNotify:
		internal.LogInfo("notebook: host says (%s) %s", msg.Level, msg.Text)
		n.publish(Event{Type: Notified, Level: msg.Level, Text: msg.Text})
	default:
		internal.LogWarn("notebook: unexpected message %s", msg.Type)
	}
}

// Refresh asks the host to push the source file again. The session is
// rebuilt when it arrives.
func (n *Notebook) Refresh(ctx context.Context) error {
	return n.conn.Send(ctx, protocol.RequestRefresh())
}

// UpdateSetting asks the host to change a persisted setting
func (n *Notebook) UpdateSetting(ctx context.Context, key string, value interface{}) error {
	return n.conn.Send(ctx, protocol.UpdateConfiguration(key, value))
}

// Export serializes a successful cell's result and hands it to the host,
// which asks the user where to save it.
func (n *Notebook) Export(ctx context.Context, cellID, format string) error {
	exporter, err := export.NewExporter(format)
	if err != nil {
		return err
	}

	n.mu.Lock()
	e := n.lookup(cellID)
	if e == nil {
		n.mu.Unlock()
		return ErrCellNotFound
	}
	if e.cell.Status != Success {
		n.mu.Unlock()
		return ErrNoResult
	}
	cell := e.cell.clone()
	source := ""
	if n.payload != nil {
		source = n.payload.Name
	}
	n.mu.Unlock()

	data, err := export.Bytes(cell.Table(TableName), format)
	if err != nil {
		return err
	}
	name := defaultExportName(source, cellID, exporter.Extension())
	internal.LogDebug("notebook: exporting %s as %s (%d bytes)", cellID, name, len(data))
	return n.conn.Send(ctx, protocol.ExportData(data, format, name))
}
