// Package notebook is the sandbox side of cellbook: an ordered list of SQL
// cells, the scheduler that runs them against the session's engine, and the
// session lifecycle that builds and rebuilds that engine.
package notebook

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/iksnae/cellbook/internal/broker"
	"github.com/iksnae/cellbook/internal/engine"
	"github.com/iksnae/cellbook/internal/metrics"
	"github.com/iksnae/cellbook/internal/protocol"
	"github.com/iksnae/cellbook/internal/settings"
	"github.com/iksnae/cellbook/internal/transfer"
)

// DefaultGraceDelay is the pause between tearing down a stopped session and
// rebuilding it.
const DefaultGraceDelay = 500 * time.Millisecond

// CancelledMessage is the error text of a cell stopped by the user
const CancelledMessage = "Execution cancelled"

var (
	ErrNotReady     = errors.New("session is not ready")
	ErrCellNotFound = errors.New("cell not found")
	ErrNotRunning   = errors.New("cell is not running")
	ErrBusy         = errors.New("another cell is running")
	ErrNoResult     = errors.New("cell has no result to export")
)

// Config wires a Notebook to its host connection
type Config struct {
	// Conn carries messages to and from the host. Required.
	Conn protocol.Conn
	// Factory creates engines; defaults to in-memory SQLite.
	Factory engine.Factory
	// Preferences supplies the settings that shape the canonical cells.
	Preferences func() settings.Settings
	GraceDelay  time.Duration

	ChunkSize     int
	ChunkInterval time.Duration

	Metrics     *metrics.Metrics
	Diagnostics *metrics.Diagnostics
}

// session is one engine generation. The run lock belongs to the generation
// so a run abandoned by Stop cannot block the rebuilt session.
type session struct {
	eng  engine.Engine
	gen  uint64
	lock *semaphore.Weighted
}

// Notebook owns the cells and the session they run against
type Notebook struct {
	cfg    Config
	conn   protocol.Conn
	broker *broker.Broker
	sender *transfer.Sender

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// serializes bootstraps
	bootMu sync.Mutex

	mu        sync.Mutex
	cells     []*entry
	focus     string
	canonical map[string]string // role -> cell id
	payload   *Payload
	sess      *session
	gen       uint64
	state     State
	stateErr  error
	stateCh   chan struct{}

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// New creates a notebook. Nothing is sent until Serve is called.
func New(cfg Config) *Notebook {
	if cfg.Factory == nil {
		cfg.Factory = engine.NewSQLiteFactory()
	}
	if cfg.Preferences == nil {
		cfg.Preferences = settings.Defaults
	}
	if cfg.GraceDelay <= 0 {
		cfg.GraceDelay = DefaultGraceDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Notebook{
		cfg:    cfg,
		conn:   cfg.Conn,
		broker: broker.New(cfg.Conn),
		sender: transfer.NewSender(cfg.Conn, transfer.Options{
			ChunkSize: cfg.ChunkSize,
			Interval:  cfg.ChunkInterval,
			Metrics:   cfg.Metrics,
		}),
		ctx:       ctx,
		cancel:    cancel,
		canonical: make(map[string]string),
		state:     NotReady,
		stateCh:   make(chan struct{}),
		subs:      make(map[int]chan Event),
	}
}

// Close tears down the engine and waits for background rebuilds. The
// connection is left open.
func (n *Notebook) Close() error {
	n.cancel()
	n.mu.Lock()
	old := n.teardownLocked()
	n.mu.Unlock()
	closeEngine(old)
	n.wg.Wait()
	return nil
}

func (n *Notebook) lookup(id string) *entry {
	for _, e := range n.cells {
		if e.cell.ID == id {
			return e
		}
	}
	return nil
}

func (n *Notebook) index(id string) int {
	for i, e := range n.cells {
		if e.cell.ID == id {
			return i
		}
	}
	return -1
}

// AddCell appends a cell and returns its id
func (n *Notebook) AddCell(query string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	e := newEntry(query)
	n.cells = append(n.cells, e)
	n.publishCell(e)
	return e.cell.ID
}

// InsertCellAfter inserts a cell directly after id
func (n *Notebook) InsertCellAfter(id, query string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	i := n.index(id)
	if i < 0 {
		return "", ErrCellNotFound
	}
	e := newEntry(query)
	n.insertLocked(i+1, e)
	n.publishCell(e)
	return e.cell.ID, nil
}

func (n *Notebook) insertLocked(i int, e *entry) {
	n.cells = append(n.cells, nil)
	copy(n.cells[i+1:], n.cells[i:])
	n.cells[i] = e
}

// UpdateQuery replaces a cell's query text. The new text is used by the
// next run.
func (n *Notebook) UpdateQuery(id, query string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	e := n.lookup(id)
	if e == nil {
		return ErrCellNotFound
	}
	e.cell.Query = query
	n.publishCell(e)
	return nil
}

// DeleteCell removes a cell. A run in progress is cancelled and its result
// dropped.
func (n *Notebook) DeleteCell(id string) error {
	n.mu.Lock()
	i := n.index(id)
	if i < 0 {
		n.mu.Unlock()
		return ErrCellNotFound
	}
	e := n.cells[i]
	n.cells = append(n.cells[:i], n.cells[i+1:]...)
	if n.focus == id {
		n.focus = ""
	}
	cancel := e.cancel
	e.cancel = nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	n.publish(Event{Type: CellDeleted, Cell: Cell{ID: id}})
	return nil
}

// Cells returns copies of all cells in order
func (n *Notebook) Cells() []Cell {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Cell, len(n.cells))
	for i, e := range n.cells {
		out[i] = e.cell.clone()
	}
	return out
}

// Cell returns a copy of one cell
func (n *Notebook) Cell(id string) (Cell, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	e := n.lookup(id)
	if e == nil {
		return Cell{}, ErrCellNotFound
	}
	return e.cell.clone(), nil
}

// Focus returns the id of the cell being edited, or ""
func (n *Notebook) Focus() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.focus
}
