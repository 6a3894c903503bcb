package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"frametruth/pkg/platform/sentinel"
)

// FilesystemStore keeps blobs under a root directory:
//
//	<root>/
//	  content/
//	    <ref[:2]>/<ref>    (content files, ref is a random UUID)
//
// Content is written to a temp file first and renamed into place, so a
// crash mid-write never leaves a partial blob under a valid ref.
type FilesystemStore struct {
	root       string
	contentDir string
}

func NewFilesystem(root string) (*FilesystemStore, error) {
	contentDir := filepath.Join(root, "content")
	if err := os.MkdirAll(contentDir, 0o700); err != nil {
		return nil, fmt.Errorf("create content directory: %w", err)
	}
	return &FilesystemStore{root: root, contentDir: contentDir}, nil
}

func (s *FilesystemStore) path(ref string) string {
	return filepath.Join(s.contentDir, ref[:2], ref)
}

func (s *FilesystemStore) Store(ctx context.Context, r io.Reader) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return Blob{}, err
	}
	ref := uuid.NewString()
	dest := s.path(ref)
	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return Blob{}, fmt.Errorf("create blob shard directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.contentDir, ".upload-*")
	if err != nil {
		return Blob{}, fmt.Errorf("create temp blob: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	hasher := sha256.New()
	size, err := io.Copy(tmp, io.TeeReader(r, hasher))
	if err != nil {
		return Blob{}, fmt.Errorf("write blob content: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return Blob{}, fmt.Errorf("sync blob content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Blob{}, fmt.Errorf("close temp blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return Blob{}, fmt.Errorf("finalize blob: %w", err)
	}

	return Blob{
		Ref:    ref,
		SHA256: hex.EncodeToString(hasher.Sum(nil)),
		Size:   size,
	}, nil
}

func (s *FilesystemStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ref) < 2 {
		return nil, sentinel.ErrNotFound
	}
	f, err := os.Open(s.path(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

func (s *FilesystemStore) Remove(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ref) < 2 {
		return nil
	}
	if err := os.Remove(s.path(ref)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}
