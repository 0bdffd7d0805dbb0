package internal

import "fmt"

// EngineError wraps a failure reported by the query engine
type EngineError struct {
	Query string
	Err   error
}

func (e *EngineError) Error() string {
	return e.Err.Error()
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// SessionError represents a fatal failure while bootstrapping a session
type SessionError struct {
	Source string
	Stage  string // "setup", "engine", "register", "load"
	Err    error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session error [%s] %s: %v", e.Source, e.Stage, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// AccessError is returned when a file outside the loaded dataset could not be
// obtained, either because the user denied it or because the host failed to
// read it.
type AccessError struct {
	Path   string
	Reason string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("access to %s denied: %s", e.Path, e.Reason)
}

// TransferError represents a failed file mutation on the host
type TransferError struct {
	Name string
	Op   string // "start", "chunk", "end", "export"
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer error [%s] %s: %v", e.Op, e.Name, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
