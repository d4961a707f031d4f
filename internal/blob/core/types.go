// Package core defines the abstractions shared by the archive blob backends.
// Snapshot exports and translated model payloads are written through these
// interfaces by higher layers.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete archive storage backend.
type Driver string

const (
	// DriverFilesystem stores objects under a local directory (default, dev).
	DriverFilesystem Driver = "fs"
	// DriverS3 targets an S3 or MinIO compatible endpoint.
	DriverS3 Driver = "s3"
	// DriverMemory keeps objects in process memory (tests).
	DriverMemory Driver = "memory"
)

// PutOptions carries the optional attributes of an archive write.
type PutOptions struct {
	// ContentType is the MIME type recorded with the object.
	ContentType string
	// Metadata is small, flat user metadata stored alongside the payload.
	Metadata map[string]string
}

// SignedURLOptions configures pre-signed URL generation.
type SignedURLOptions struct {
	// Method is the HTTP verb the URL authorizes; only GET is used internally.
	Method string
	// Expiry bounds the URL lifetime; drivers default it to 15 minutes.
	Expiry time.Duration
	// Headers are extra signed request headers, driver permitting.
	Headers map[string]string
}

// Info describes a stored archive object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	URL          string            `json:"url,omitempty"`
}

// Store is a thin S3-like surface over an archive backend. Put is
// create-only: writing to an existing key fails so archived exports are
// never silently overwritten.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	Driver() Driver
}

// ErrUnsupported is returned when a driver lacks an optional capability.
var ErrUnsupported = errors.New("blobstore: unsupported operation")
