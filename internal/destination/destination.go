// Package destination resolves export names to writable targets. Local
// files are appended in place; object stores have no append, so every chunk
// rewrites the whole object (quadratic in the final size).
package destination

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a sandbox-supplied name would escape the
// output directory.
var ErrOutsideRoot = errors.New("destination outside output directory")

// Destination is one export target
type Destination interface {
	// Truncate creates the target or empties an existing one.
	Truncate(ctx context.Context) error
	// Append adds data after the current contents.
	Append(ctx context.Context, data []byte) error
	// Finalize is called after the last chunk.
	Finalize(ctx context.Context) error
	// Local reports whether Append is performed in place.
	Local() bool
	String() string
}

// WriteAll replaces the contents of d with data.
func WriteAll(ctx context.Context, d Destination, data []byte) error {
	if err := d.Truncate(ctx); err != nil {
		return err
	}
	if len(data) > 0 {
		if err := d.Append(ctx, data); err != nil {
			return err
		}
	}
	return d.Finalize(ctx)
}

// Resolver maps names to destinations. Names of the form scheme://bucket/key
// select a registered object store; everything else is a local path.
type Resolver struct {
	// BaseDir anchors relative names and confines sandbox-supplied ones.
	BaseDir string
	stores  map[string]ObjectStore
}

// NewResolver creates a resolver rooted at baseDir.
func NewResolver(baseDir string) *Resolver {
	return &Resolver{BaseDir: baseDir, stores: make(map[string]ObjectStore)}
}

// Register makes an object store reachable under scheme (e.g. "s3").
func (r *Resolver) Register(scheme string, store ObjectStore) {
	r.stores[strings.ToLower(scheme)] = store
}

// Resolve handles names chosen by the sandbox. Local names must stay inside
// BaseDir.
func (r *Resolver) Resolve(name string) (Destination, error) {
	if d, ok, err := r.remote(name); ok || err != nil {
		return d, err
	}

	base, err := filepath.Abs(r.BaseDir)
	if err != nil {
		return nil, err
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideRoot, name)
	}
	return &Local{Path: path}, nil
}

// ResolveChosen handles paths picked by the user on the host side; they are
// not confined to BaseDir.
func (r *Resolver) ResolveChosen(path string) (Destination, error) {
	if d, ok, err := r.remote(path); ok || err != nil {
		return d, err
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.BaseDir, path)
	}
	return &Local{Path: filepath.Clean(path)}, nil
}

func (r *Resolver) remote(name string) (Destination, bool, error) {
	if !strings.Contains(name, "://") {
		return nil, false, nil
	}
	u, err := url.Parse(name)
	if err != nil {
		return nil, true, fmt.Errorf("invalid destination %q: %w", name, err)
	}
	store, ok := r.stores[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, true, fmt.Errorf("no object store configured for %s://", u.Scheme)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return nil, true, fmt.Errorf("invalid destination %q: want %s://bucket/key", name, u.Scheme)
	}
	return &Remote{Store: store, Bucket: u.Host, Key: key}, true, nil
}

// Local is a file on a directly addressable filesystem
type Local struct {
	Path string
}

func (l *Local) Truncate(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0755); err != nil {
		return err
	}
	f, err := os.Create(l.Path)
	if err != nil {
		return err
	}
	return f.Close()
}

func (l *Local) Append(ctx context.Context, data []byte) error {
	f, err := os.OpenFile(l.Path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (l *Local) Finalize(ctx context.Context) error {
	f, err := os.OpenFile(l.Path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (l *Local) Local() bool { return true }

func (l *Local) String() string { return l.Path }

// Remote is an object in a store without append support
type Remote struct {
	Store  ObjectStore
	Bucket string
	Key    string
}

func (r *Remote) Truncate(ctx context.Context) error {
	return r.Store.Put(ctx, r.Bucket, r.Key, nil)
}

// Append reads the partial object, concatenates data and rewrites it.
func (r *Remote) Append(ctx context.Context, data []byte) error {
	existing, err := r.Store.Get(ctx, r.Bucket, r.Key)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read partial object: %w", err)
	}
	combined := make([]byte, 0, len(existing)+len(data))
	combined = append(combined, existing...)
	combined = append(combined, data...)
	return r.Store.Put(ctx, r.Bucket, r.Key, combined)
}

func (r *Remote) Finalize(ctx context.Context) error {
	_, err := r.Store.Get(ctx, r.Bucket, r.Key)
	return err
}

func (r *Remote) Local() bool { return false }

func (r *Remote) String() string { return r.Bucket + "/" + r.Key }
