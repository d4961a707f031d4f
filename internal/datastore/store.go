// Package datastore implements a folder-backed resource store for plugin
// data files. Logical names resolve through a mapping file in the store
// directory; when the mapping or a name is missing, a caller-supplied
// upgrade handler gets exactly one chance to reshape the folder before
// resolution is retried. Reads hand back lazily materialized tables.
package datastore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MappingFile is the resource mapping file expected in the store directory.
const MappingFile = "resources.json"

// Config is the opaque plugin configuration handed through by the host.
type Config map[string]any

// UpgradeHandler reshapes the store directory when the expected resource
// mapping cannot be resolved, typically by renaming files laid out by an
// older plugin version. It runs at most once per store.
type UpgradeHandler func(store *Store) error

// ErrResourceNotMapped reports a logical name absent from the resource
// mapping after any upgrade handling.
var ErrResourceNotMapped = errors.New("resource not mapped")

type resourceEntry struct {
	File   string `json:"file"`
	Format string `json:"format,omitempty"`
}

// Store resolves logical resource names to data files under one directory.
type Store struct {
	config  Config
	path    string
	handler UpgradeHandler
	readers map[string]Reader

	mu          sync.Mutex
	mapping     map[string]resourceEntry
	handlerOnce sync.Once
	handlerErr  error
	tables      map[string]*Table
}

// Option customizes store construction.
type Option func(*Store)

// WithReader installs a reader for a data format, replacing the built-in
// one if the format collides. Built-ins cover "json" and "csv".
func WithReader(format string, reader Reader) Option {
	return func(s *Store) {
		s.readers[strings.ToLower(format)] = reader
	}
}

// FromPluginConfig opens the store rooted at path. When the mapping file is
// missing and an upgrade handler is supplied, the handler runs once and
// resolution is retried; without a handler the missing mapping is a
// construction error.
func FromPluginConfig(cfg Config, path string, handler UpgradeHandler, opts ...Option) (*Store, error) {
	store := &Store{
		config:  cfg,
		path:    path,
		handler: handler,
		readers: map[string]Reader{
			"json": jsonReader{},
			"csv":  csvReader{},
		},
		tables: make(map[string]*Table),
	}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.loadMapping(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if upgradeErr := store.runHandlerOnce(); upgradeErr != nil {
			return nil, upgradeErr
		}
		if err := store.loadMapping(); err != nil {
			return nil, fmt.Errorf("resource mapping still unresolved after upgrade: %w", err)
		}
	}
	return store, nil
}

// Path returns the store directory.
func (s *Store) Path() string { return s.path }

// Config returns the opaque plugin configuration.
func (s *Store) Config() Config { return s.config }

func (s *Store) loadMapping() error {
	raw, err := os.ReadFile(filepath.Join(s.path, MappingFile))
	if err != nil {
		return fmt.Errorf("read resource mapping: %w", err)
	}
	var mapping map[string]resourceEntry
	if err := json.Unmarshal(raw, &mapping); err != nil {
		return fmt.Errorf("parse resource mapping: %w", err)
	}
	s.mu.Lock()
	s.mapping = mapping
	s.mu.Unlock()
	return nil
}

// runHandlerOnce invokes the upgrade handler at most once for the store's
// lifetime, regardless of how many missing-mapping conditions occur.
func (s *Store) runHandlerOnce() error {
	if s.handler == nil {
		return fmt.Errorf("resource mapping missing under %s and no upgrade handler supplied", s.path)
	}
	ran := false
	s.handlerOnce.Do(func() {
		ran = true
		s.handlerErr = s.handler(s)
	})
	if s.handlerErr != nil {
		return fmt.Errorf("upgrade handler: %w", s.handlerErr)
	}
	if !ran {
		return fmt.Errorf("resource mapping missing under %s after upgrade handling", s.path)
	}
	return nil
}

func (s *Store) lookup(name string) (resourceEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.mapping[name]
	return entry, ok
}

// ReadData resolves the logical name and returns a lazy table handle. The
// underlying file is opened and parsed on first access to the handle, not
// here. A name missing from the mapping triggers the upgrade handler (if it
// has not run yet) and one retry before failing.
func (s *Store) ReadData(name string) (*Table, error) {
	entry, ok := s.lookup(name)
	if !ok {
		if err := s.runHandlerOnce(); err == nil {
			if err := s.loadMapping(); err != nil {
				return nil, err
			}
			entry, ok = s.lookup(name)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrResourceNotMapped, name)
		}
	}

	format := strings.ToLower(entry.Format)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(entry.File)), ".")
	}
	reader, ok := s.readers[format]
	if !ok {
		return nil, fmt.Errorf("resource %q: no reader for format %q", name, format)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if table, ok := s.tables[name]; ok {
		return table, nil
	}
	table := newTable(name, filepath.Join(s.path, entry.File), reader)
	s.tables[name] = table
	return table, nil
}

// Resources lists the mapped logical names in no particular order.
func (s *Store) Resources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.mapping))
	for name := range s.mapping {
		out = append(out, name)
	}
	return out
}
