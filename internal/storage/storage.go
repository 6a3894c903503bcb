// Package storage holds evidence file content. Blobs are opaque to this
// package; integrity metadata (the SHA-256 fingerprint) is computed at
// write time and returned so the file record can pin it forever.
package storage

import (
	"context"
	"io"
)

// Blob describes stored content. Ref is the storage-internal handle kept
// on the file record; SHA256 is the hex fingerprint of the exact bytes
// written.
type Blob struct {
	Ref    string
	SHA256 string
	Size   int64
}

// BlobStore is interface-driven to keep the domain logic testable and to
// allow swapping in-memory, filesystem, or external persistence without
// rewiring business code.
type BlobStore interface {
	// Store writes the full reader contents and returns the blob handle.
	Store(ctx context.Context, r io.Reader) (Blob, error)
	// Open returns the content for a ref. sentinel.ErrNotFound when absent.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// Remove deletes the content. Removing an absent ref is not an error;
	// the caller's file record is the existence authority.
	Remove(ctx context.Context, ref string) error
}
