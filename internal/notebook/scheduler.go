package notebook

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/iksnae/cellbook/internal"
	"github.com/iksnae/cellbook/internal/engine"
	"github.com/iksnae/cellbook/internal/metrics"
)

var (
	// engine messages that name a file the sandbox has not been given
	missingFilePatterns = []*regexp.Regexp{
		regexp.MustCompile(`No files found that match the pattern "([^"]+)"`),
		regexp.MustCompile(`File not found: "([^"]+)"`),
		regexp.MustCompile(`Cannot open file "([^"]+)"`),
	}
	copyToPattern = regexp.MustCompile(`(?is)^\s*COPY\s+.+?\s+TO\s+'((?:[^']|'')+)'`)
)

// missingFile extracts the absolute path from a missing-file engine error
func missingFile(msg string) (string, bool) {
	for _, re := range missingFilePatterns {
		if m := re.FindStringSubmatch(msg); m != nil && filepath.IsAbs(m[1]) {
			return m[1], true
		}
	}
	return "", false
}

// copyTarget returns the destination of a COPY ... TO 'name' statement
func copyTarget(query string) (string, bool) {
	m := copyToPattern.FindStringSubmatch(query)
	if m == nil {
		return "", false
	}
	return strings.ReplaceAll(m[1], "''", "'"), true
}

// Run executes one cell. It returns an error only when the cell could not be
// started; the query outcome is recorded on the cell.
func (n *Notebook) Run(ctx context.Context, cellID string) error {
	n.mu.Lock()
	if n.state != Ready {
		n.mu.Unlock()
		return ErrNotReady
	}
	e := n.lookup(cellID)
	if e == nil {
		n.mu.Unlock()
		return ErrCellNotFound
	}
	if strings.TrimSpace(e.cell.Query) == "" {
		e.cell.Status = Idle
		e.cell.Error = ""
		n.publishCell(e)
		n.mu.Unlock()
		return nil
	}
	sess := n.sess
	n.mu.Unlock()

	if !sess.lock.TryAcquire(1) {
		return ErrBusy
	}
	defer sess.lock.Release(1)

	n.execute(ctx, sess, cellID)
	return nil
}

// RunAndAdvance runs the cell, then focuses the next one, appending an empty
// cell when the run cell was last. It returns the newly focused id.
func (n *Notebook) RunAndAdvance(ctx context.Context, cellID string) (string, error) {
	if err := n.Run(ctx, cellID); err != nil {
		return "", err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	i := n.index(cellID)
	if i < 0 {
		return "", ErrCellNotFound
	}
	if i+1 < len(n.cells) {
		n.focus = n.cells[i+1].cell.ID
		return n.focus, nil
	}
	e := newEntry("")
	n.cells = append(n.cells, e)
	n.focus = e.cell.ID
	n.publishCell(e)
	return n.focus, nil
}

// Stop abandons a running cell. The cell turns Idle at once; the engine is
// torn down and rebuilt from the original payload after the grace delay.
// Other cells keep their last results while the session is rebuilt.
func (n *Notebook) Stop(cellID string) error {
	n.mu.Lock()
	e := n.lookup(cellID)
	if e == nil {
		n.mu.Unlock()
		return ErrCellNotFound
	}
	if e.cell.Status != Running {
		n.mu.Unlock()
		return ErrNotRunning
	}
	old := n.teardownLocked()
	gen, payload := n.gen, n.payload
	n.mu.Unlock()

	internal.LogInfo("notebook: stopped cell %s, rebuilding session", cellID)
	closeEngine(old)
	if n.cfg.Metrics != nil {
		n.cfg.Metrics.SessionRebuilds.Inc()
	}
	if payload == nil {
		return nil
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		timer := time.NewTimer(n.cfg.GraceDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-n.ctx.Done():
			return
		}
		n.replay(gen, *payload)
	}()
	return nil
}

// execute runs one cell against sess. Callers hold sess.lock.
func (n *Notebook) execute(ctx context.Context, sess *session, cellID string) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	n.mu.Lock()
	e := n.lookup(cellID)
	if e == nil {
		n.mu.Unlock()
		return
	}
	e.token++
	token := e.token
	e.cancel = cancel
	e.cell.Status = Running
	e.cell.Error = ""
	query := e.cell.Query
	n.publishCell(e)
	n.mu.Unlock()

	start := time.Now()
	res, err := n.query(runCtx, sess.eng, query)
	elapsed := time.Since(start)

	if !n.finish(cellID, token, res, err, elapsed) || err != nil {
		return
	}
	if target, ok := copyTarget(query); ok {
		n.forward(runCtx, sess.eng, target)
	}
}

// query runs the statement, asking the host for an external file once when
// the engine reports it missing.
func (n *Notebook) query(ctx context.Context, eng engine.Engine, query string) (*engine.Result, error) {
	res, err := eng.Query(ctx, query)
	if err == nil {
		return res, nil
	}
	path, ok := missingFile(err.Error())
	if !ok {
		return nil, &internal.EngineError{Query: query, Err: err}
	}

	internal.LogInfo("notebook: requesting access to %s", path)
	data, err := n.broker.RequestAccess(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := eng.RegisterFile(path, data); err != nil {
		return nil, &internal.EngineError{Query: query, Err: err}
	}

	// exactly one retry
	res, err = eng.Query(ctx, query)
	if err != nil {
		return nil, &internal.EngineError{Query: query, Err: err}
	}
	return res, nil
}

// finish records a run outcome unless the run has been superseded. It
// reports whether the outcome was applied.
func (n *Notebook) finish(cellID string, token uint64, res *engine.Result, err error, elapsed time.Duration) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	e := n.lookup(cellID)
	if e == nil || e.token != token {
		internal.LogDebug("notebook: discarding late result for %s", cellID)
		return false
	}
	e.cancel = nil
	e.cell.ExecutionTimeMs = elapsed.Milliseconds()
	if err != nil {
		e.cell.Status = Error
		e.cell.Error = err.Error()
		e.cell.clearResult()
	} else {
		e.cell.Status = Success
		e.cell.Error = ""
		e.cell.setResult(res)
	}

	if m := n.cfg.Metrics; m != nil {
		m.CellRuns.WithLabelValues(string(e.cell.Status)).Inc()
		m.CellDuration.Observe(elapsed.Seconds())
	}
	n.publishCell(e)
	return true
}

// forward streams a COPY artifact to the host. Failures never change the
// outcome of the cell that produced it.
func (n *Notebook) forward(ctx context.Context, eng engine.Engine, name string) {
	data, err := eng.ReadFile(name)
	if err != nil {
		n.reportTransfer(name, "read", err)
		return
	}
	if err := n.sender.Send(ctx, name, data); err != nil {
		op := "send"
		var terr *internal.TransferError
		if errors.As(err, &terr) {
			op = terr.Op
		}
		n.reportTransfer(name, op, err)
	}
}

func (n *Notebook) reportTransfer(name, op string, err error) {
	internal.LogWarn("notebook: export of %s failed (%s): %v", name, op, err)
	if n.cfg.Metrics != nil {
		n.cfg.Metrics.TransferFailures.WithLabelValues(op).Inc()
	}
	n.cfg.Diagnostics.Report(metrics.Event{Source: "sandbox", Name: name, Op: op, Err: err})
}
