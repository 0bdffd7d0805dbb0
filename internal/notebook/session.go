package notebook

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/iksnae/cellbook/internal"
	"github.com/iksnae/cellbook/internal/engine"
	"github.com/iksnae/cellbook/internal/settings"
)

// State is the readiness of the session's engine
type State int

const (
	NotReady State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "not ready"
	}
}

// Payload is the tabular file pushed by the host
type Payload struct {
	Name      string
	Extension string
	Data      []byte
}

// TableName is the table the setup cell creates
const TableName = "data"

const (
	roleSetup    = "setup"
	roleDescribe = "describe"
	rolePreview  = "preview"
)

type canonicalCell struct {
	role  string
	query string
}

func readFunction(ext string) (string, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "csv":
		return "read_csv", nil
	case "tsv":
		return "read_tsv", nil
	default:
		return "", fmt.Errorf("unsupported file type %q", ext)
	}
}

func canonicalCells(p Payload, prefs settings.Settings) ([]canonicalCell, error) {
	fn, err := readFunction(p.Extension)
	if err != nil {
		return nil, err
	}
	literal := "'" + strings.ReplaceAll(p.Name, "'", "''") + "'"

	cells := []canonicalCell{{
		role:  roleSetup,
		query: fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s(%s);", TableName, fn, literal),
	}}
	if prefs.AutoDescribe {
		cells = append(cells, canonicalCell{role: roleDescribe, query: fmt.Sprintf("DESCRIBE %s;", TableName)})
	}
	limit := prefs.PreviewRowLimit
	if limit <= 0 {
		limit = settings.Defaults().PreviewRowLimit
	}
	cells = append(cells, canonicalCell{
		role:  rolePreview,
		query: fmt.Sprintf("SELECT * FROM %s LIMIT %d;", TableName, limit),
	})
	return cells, nil
}

// CanonicalQueries returns the bootstrap statements for a payload. The same
// payload and settings always give the same text.
func CanonicalQueries(p Payload, prefs settings.Settings) ([]string, error) {
	cells, err := canonicalCells(p, prefs)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.query
	}
	return out, nil
}

// State returns the session state
func (n *Notebook) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// WaitReady blocks until the session is Ready or Failed. A failed session
// returns its *internal.SessionError.
func (n *Notebook) WaitReady(ctx context.Context) error {
	for {
		n.mu.Lock()
		state, err, ch := n.state, n.stateErr, n.stateCh
		n.mu.Unlock()

		switch state {
		case Ready:
			return nil
		case Failed:
			return err
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (n *Notebook) setStateLocked(s State, err error) {
	n.state = s
	n.stateErr = err
	close(n.stateCh)
	n.stateCh = make(chan struct{})
	n.publish(Event{Type: StateChanged, State: s, Err: err})
}

// teardownLocked detaches the current engine, cancels whatever is running
// and starts a new generation. The caller closes the returned engine.
func (n *Notebook) teardownLocked() engine.Engine {
	var old engine.Engine
	if n.sess != nil {
		old = n.sess.eng
		n.sess = nil
	}
	n.gen++

	for _, e := range n.cells {
		if e.cell.Status != Running {
			continue
		}
		e.token++
		e.cell.Status = Idle
		e.cell.Error = CancelledMessage
		e.cell.clearResult()
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		n.publishCell(e)
	}

	if n.state != NotReady {
		n.setStateLocked(NotReady, nil)
	}
	return old
}

func closeEngine(e engine.Engine) {
	if e == nil {
		return
	}
	if err := e.Close(); err != nil {
		internal.LogWarn("notebook: close engine: %v", err)
	}
}

// Bootstrap builds a new session from p, replacing any existing one, and
// runs the canonical cells. The first bootstrap creates those cells; later
// ones re-run them in place and leave every other cell alone.
func (n *Notebook) Bootstrap(ctx context.Context, p Payload) error {
	n.bootMu.Lock()
	defer n.bootMu.Unlock()

	n.mu.Lock()
	old := n.teardownLocked()
	n.payload = &p
	gen := n.gen
	n.mu.Unlock()

	closeEngine(old)
	return n.bootstrap(ctx, p, gen)
}

// replay rebuilds generation gen unless a newer teardown or bootstrap has
// happened since.
func (n *Notebook) replay(gen uint64, p Payload) {
	n.bootMu.Lock()
	defer n.bootMu.Unlock()

	n.mu.Lock()
	stale := n.gen != gen
	n.mu.Unlock()
	if stale {
		return
	}
	if err := n.bootstrap(n.ctx, p, gen); err != nil {
		internal.LogError("notebook: replay: %v", err)
	}
}

func (n *Notebook) bootstrap(ctx context.Context, p Payload, gen uint64) error {
	internal.LogInfo("notebook: bootstrapping %s (%d bytes)", p.Name, len(p.Data))

	cells, err := canonicalCells(p, n.cfg.Preferences())
	if err != nil {
		return n.fail(gen, &internal.SessionError{Source: p.Name, Stage: "setup", Err: err})
	}

	eng, err := n.cfg.Factory(ctx)
	if err != nil {
		return n.fail(gen, &internal.SessionError{Source: p.Name, Stage: "engine", Err: err})
	}
	if err := eng.RegisterFile(p.Name, p.Data); err != nil {
		closeEngine(eng)
		return n.fail(gen, &internal.SessionError{Source: p.Name, Stage: "register", Err: err})
	}

	sess := &session{eng: eng, gen: gen, lock: semaphore.NewWeighted(1)}
	n.mu.Lock()
	if n.gen != gen {
		n.mu.Unlock()
		closeEngine(eng)
		return nil
	}
	n.sess = sess
	ids := n.placeCanonicalLocked(cells)
	n.mu.Unlock()

	// fresh lock, cannot fail
	sess.lock.TryAcquire(1)
	for i, id := range ids {
		n.execute(ctx, sess, id)
		if n.generation() != gen {
			sess.lock.Release(1)
			return nil
		}
		// the table every other cell reads could not be loaded
		if i == 0 {
			if msg, failed := n.cellFailed(id); failed {
				sess.lock.Release(1)
				return n.fail(gen, &internal.SessionError{Source: p.Name, Stage: "load", Err: errors.New(msg)})
			}
		}
	}
	sess.lock.Release(1)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.gen == gen {
		n.setStateLocked(Ready, nil)
		internal.LogInfo("notebook: session ready")
	}
	return nil
}

func (n *Notebook) cellFailed(id string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	e := n.lookup(id)
	if e == nil || e.cell.Status != Error {
		return "", false
	}
	return e.cell.Error, true
}

func (n *Notebook) generation() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gen
}

func (n *Notebook) fail(gen uint64, err error) error {
	internal.LogError("notebook: %v", err)
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.gen == gen {
		n.setStateLocked(Failed, err)
	}
	return err
}

// placeCanonicalLocked makes sure each canonical cell exists with its
// canonical text and returns their ids in execution order. Missing cells are
// inserted after the previous canonical cell.
func (n *Notebook) placeCanonicalLocked(cells []canonicalCell) []string {
	ids := make([]string, 0, len(cells))
	at := 0
	for _, c := range cells {
		if id, ok := n.canonical[c.role]; ok {
			if i := n.index(id); i >= 0 {
				n.cells[i].cell.Query = c.query
				n.publishCell(n.cells[i])
				ids = append(ids, id)
				at = i + 1
				continue
			}
		}
		e := newEntry(c.query)
		n.insertLocked(at, e)
		n.canonical[c.role] = e.cell.ID
		n.publishCell(e)
		ids = append(ids, e.cell.ID)
		at++
	}
	if n.focus == "" && len(ids) > 0 {
		n.focus = ids[len(ids)-1]
	}
	return ids
}

func defaultExportName(source, cellID, ext string) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	if base == "" || base == "." {
		base = "result"
	}
	short := cellID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s-%s.%s", base, short, ext)
}
