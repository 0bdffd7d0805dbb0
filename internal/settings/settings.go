// Package settings persists the host-owned user preferences. Only
// AllowExternalFileReads affects the coordination core; the rest are
// presentation preferences handed to the notebook at bootstrap.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	KeyAllowExternalFileReads = "allowExternalFileReads"
	KeyPreviewRowLimit        = "previewRowLimit"
	KeyAutoDescribe           = "autoDescribe"
	KeyParseJSON              = "parseJson"
)

// ErrUnknownKey is returned for configuration keys this store does not own.
var ErrUnknownKey = errors.New("unknown setting")

// Settings is the persisted document
type Settings struct {
	AllowExternalFileReads bool `yaml:"allowExternalFileReads" json:"allowExternalFileReads"`
	PreviewRowLimit        int  `yaml:"previewRowLimit" json:"previewRowLimit"`
	AutoDescribe           bool `yaml:"autoDescribe" json:"autoDescribe"`
	ParseJSON              bool `yaml:"parseJson" json:"parseJson"`
}

// Defaults returns the settings used when nothing has been persisted yet.
func Defaults() Settings {
	return Settings{
		AllowExternalFileReads: false,
		PreviewRowLimit:        100,
		AutoDescribe:           true,
		ParseJSON:              true,
	}
}

// Store reads and writes Settings as a YAML file. It is safe for concurrent use.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store backed by the YAML file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path
func (s *Store) Path() string {
	return s.path
}

// Load reads the settings file. A missing file yields Defaults.
func (s *Store) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (Settings, error) {
	cur := Defaults()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return cur, nil
	}
	if err != nil {
		return cur, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &cur); err != nil {
		return Defaults(), fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if cur.PreviewRowLimit <= 0 {
		cur.PreviewRowLimit = Defaults().PreviewRowLimit
	}
	return cur, nil
}

// Save replaces the settings file atomically.
func (s *Store) Save(cur Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(cur)
}

func (s *Store) save(cur Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cur)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.yaml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// AllowExternalFileReads reports the persisted permission. It reads the file
// on every call so changes made by another process are honoured.
func (s *Store) AllowExternalFileReads() (bool, error) {
	cur, err := s.Load()
	return cur.AllowExternalFileReads, err
}

// RememberExternalFileReads persists the "allow and remember" decision.
func (s *Store) RememberExternalFileReads() error {
	return s.Set(KeyAllowExternalFileReads, true)
}

// Keys lists the keys accepted by Get and Set.
func Keys() []string {
	keys := []string{KeyAllowExternalFileReads, KeyPreviewRowLimit, KeyAutoDescribe, KeyParseJSON}
	sort.Strings(keys)
	return keys
}

// Get returns the current value for key.
func (s *Store) Get(key string) (interface{}, error) {
	cur, err := s.Load()
	if err != nil {
		return nil, err
	}
	switch key {
	case KeyAllowExternalFileReads:
		return cur.AllowExternalFileReads, nil
	case KeyPreviewRowLimit:
		return cur.PreviewRowLimit, nil
	case KeyAutoDescribe:
		return cur.AutoDescribe, nil
	case KeyParseJSON:
		return cur.ParseJSON, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
}

// Set updates a single key and persists the result. Values arriving over the
// wire may be JSON numbers or strings and are coerced to the field type.
func (s *Store) Set(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.load()
	if err != nil {
		return err
	}

	switch key {
	case KeyAllowExternalFileReads:
		cur.AllowExternalFileReads, err = toBool(value)
	case KeyAutoDescribe:
		cur.AutoDescribe, err = toBool(value)
	case KeyParseJSON:
		cur.ParseJSON, err = toBool(value)
	case KeyPreviewRowLimit:
		var n int
		n, err = toInt(value)
		if err == nil && n <= 0 {
			err = fmt.Errorf("must be positive, got %d", n)
		}
		cur.PreviewRowLimit = n
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	return s.save(cur)
}

func toBool(v interface{}) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(x)
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

func toInt(v interface{}) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x != float64(int(x)) {
			return 0, fmt.Errorf("expected integer, got %v", x)
		}
		return int(x), nil
	case string:
		return strconv.Atoi(x)
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}
