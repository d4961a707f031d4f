// Package memory implements an in-memory archive store used by tests and
// ephemeral environments.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"gridcore/internal/blob/core"
)

type object struct {
	data        []byte
	contentType string
	metadata    map[string]string
	storedAt    time.Time
}

func (o object) info(key string) core.Info {
	var meta map[string]string
	if o.metadata != nil {
		meta = make(map[string]string, len(o.metadata))
		for k, v := range o.metadata {
			meta[k] = v
		}
	}
	return core.Info{
		Key:          key,
		Size:         int64(len(o.data)),
		ContentType:  o.contentType,
		Metadata:     meta,
		LastModified: o.storedAt,
	}
}

// Store keeps archive objects in a process-local map. It honors the same
// create-only Put contract as the durable drivers so tests exercise the real
// collision behavior.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
}

// New returns an empty in-memory archive store.
func New() *Store { return &Store{objects: make(map[string]object)} }

// Driver implements core.Store.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put stores a new object; writing to an existing key fails.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	var meta map[string]string
	if opts.Metadata != nil {
		meta = make(map[string]string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			meta[k] = v
		}
	}
	obj := object{data: data, contentType: opts.ContentType, metadata: meta, storedAt: time.Now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.objects[key]; taken {
		return core.Info{}, fmt.Errorf("archive object %s already exists", key)
	}
	s.objects[key] = obj
	return obj.info(key), nil
}

// Get returns object metadata plus a reader over a copy of its payload.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, nil, fmt.Errorf("archive object %s not found", key)
	}
	payload := make([]byte, len(obj.data))
	copy(payload, obj.data)
	return obj.info(key), io.NopCloser(bytes.NewReader(payload)), nil
}

// Head returns object metadata only.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, fmt.Errorf("archive object %s not found", key)
	}
	return obj.info(key), nil
}

// Delete removes the object, reporting whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return false, nil
	}
	delete(s.objects, key)
	return true, nil
}

// List returns metadata for keys matching prefix, sorted by key.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Info, 0, len(s.objects))
	for key, obj := range s.objects {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, obj.info(key))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL is not supported by the memory driver.
func (s *Store) PresignURL(context.Context, string, core.SignedURLOptions) (string, error) {
	return "", core.ErrUnsupported
}
