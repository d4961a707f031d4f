// Package fs implements the archive store on the local filesystem. Each
// object key maps to a file under the root plus a JSON sidecar carrying
// content type, user metadata, and the content digest.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gridcore/internal/blob/core"
)

const (
	defaultRoot   = "./archivedata"
	sidecarSuffix = ".meta"
)

// Store keeps archive objects as plain files. Writes are create-only and go
// through a temp file so a crashed export never leaves a partial object
// behind. Concurrent writers to distinct keys are safe; the same key loses
// the race with "already exists".
type Store struct {
	root string
}

// New returns a filesystem archive store rooted at path, creating the
// directory when absent.
func New(root string) (*Store, error) {
	if root == "" {
		root = defaultRoot
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create archive root: %w", err)
	}
	return &Store{root: root}, nil
}

// Driver implements core.Store.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// sidecar is the JSON document stored next to every object file.
type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Digest      string            `json:"digest"`
	Size        int64             `json:"size_bytes"`
	WrittenAt   time.Time         `json:"written_at"`
}

func (m sidecar) info(key, localURL string) core.Info {
	return core.Info{
		Key:          key,
		Size:         m.Size,
		ContentType:  m.ContentType,
		ETag:         m.Digest,
		Metadata:     copyMeta(m.Metadata),
		LastModified: m.WrittenAt,
		URL:          localURL,
	}
}

// resolve maps key onto the object and sidecar paths, rejecting anything
// that could escape the root.
func (s *Store) resolve(key string) (objectPath, sidecarPath string, err error) {
	if strings.TrimSpace(key) == "" {
		return "", "", errors.New("archive key required")
	}
	if strings.HasPrefix(key, "/") {
		return "", "", fmt.Errorf("archive key %q must be relative", key)
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(key, "..") {
		return "", "", fmt.Errorf("archive key %q escapes the root", key)
	}
	objectPath = filepath.Join(s.root, filepath.FromSlash(clean))
	return objectPath, objectPath + sidecarSuffix, nil
}

// Put streams r into a new object. The digest doubles as the ETag.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	objectPath, sidecarPath, err := s.resolve(key)
	if err != nil {
		return core.Info{}, err
	}
	if err := os.MkdirAll(filepath.Dir(objectPath), 0o755); err != nil {
		return core.Info{}, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(objectPath), ".pending-*")
	if err != nil {
		return core.Info{}, err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return core.Info{}, err
	}

	if err := linkIntoPlace(tmpName, objectPath, key); err != nil {
		return core.Info{}, err
	}

	meta := sidecar{
		ContentType: opts.ContentType,
		Metadata:    copyMeta(opts.Metadata),
		Digest:      hex.EncodeToString(hash.Sum(nil)),
		Size:        size,
		WrittenAt:   time.Now().UTC(),
	}
	if err := writeSidecar(sidecarPath, meta); err != nil {
		_ = os.Remove(objectPath)
		return core.Info{}, err
	}
	return meta.info(key, s.localURL(key)), nil
}

// linkIntoPlace publishes the temp file under objectPath, enforcing the
// create-only contract: a concurrent writer to the same key loses.
func linkIntoPlace(tmpName, objectPath, key string) error {
	if err := os.Link(tmpName, objectPath); err != nil {
		if errors.Is(err, iofs.ErrExist) {
			return fmt.Errorf("archive object %s already exists", key)
		}
		return err
	}
	return nil
}

// Get opens the object for reading along with its metadata.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	objectPath, sidecarPath, err := s.resolve(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	meta, err := readSidecar(sidecarPath)
	if err != nil {
		return core.Info{}, nil, err
	}
	file, err := os.Open(objectPath)
	if err != nil {
		return core.Info{}, nil, err
	}
	return meta.info(key, s.localURL(key)), file, nil
}

// Head returns object metadata without opening the payload.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	_, sidecarPath, err := s.resolve(key)
	if err != nil {
		return core.Info{}, err
	}
	meta, err := readSidecar(sidecarPath)
	if err != nil {
		return core.Info{}, err
	}
	return meta.info(key, s.localURL(key)), nil
}

// Delete removes the object and its sidecar. Deleting a missing key reports
// (false, nil).
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	objectPath, sidecarPath, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(objectPath); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	_ = os.Remove(sidecarPath)
	return true, nil
}

// List returns metadata for every object whose key starts with prefix,
// sorted by key.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	walk := func(path string, entry iofs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !strings.HasSuffix(path, sidecarSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(path, sidecarSuffix))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		meta, err := readSidecar(path)
		if err != nil {
			return err
		}
		infos = append(infos, meta.info(key, s.localURL(key)))
		return nil
	}
	if err := filepath.WalkDir(s.root, walk); err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL returns the local pseudo URL for GET; other methods are
// unsupported on this driver.
func (s *Store) PresignURL(_ context.Context, key string, opts core.SignedURLOptions) (string, error) {
	if opts.Method != "" && !strings.EqualFold(opts.Method, "GET") {
		return "", core.ErrUnsupported
	}
	if _, _, err := s.resolve(key); err != nil {
		return "", err
	}
	return s.localURL(key), nil
}

// localURL builds a stable opaque URL for development tooling; there is no
// server behind it.
func (s *Store) localURL(key string) string {
	u := url.URL{Scheme: "http", Host: "local.archive", Path: "/" + key}
	return u.String()
}

func copyMeta(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func writeSidecar(path string, meta sidecar) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readSidecar(path string) (sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sidecar{}, err
	}
	var meta sidecar
	if err := json.Unmarshal(data, &meta); err != nil {
		return sidecar{}, fmt.Errorf("decode sidecar %s: %w", path, err)
	}
	return meta, nil
}
