package proofs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nexanet/configbot/internal/apperr"
)

// LocalStore keeps proofs as files in a directory.
type LocalStore struct {
	dir string
	now func() time.Time
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("proofs: create dir: %v: %w", err, apperr.ErrIO)
	}
	return &LocalStore{dir: dir, now: time.Now}, nil
}

func (s *LocalStore) Backend() string { return BackendLocal }

func (s *LocalStore) Put(ctx context.Context, userID int64, body io.Reader, contentType string) (Object, error) {
	data, err := readLimited(body)
	if err != nil {
		return Object{}, err
	}
	key := NewKey(userID, contentType, s.now())
	tmp, errTmp := os.CreateTemp(s.dir, ".proof-*")
	if errTmp != nil {
		return Object{}, fmt.Errorf("proofs: create temp: %v: %w", errTmp, apperr.ErrIO)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if _, errCopy := io.Copy(tmp, bytes.NewReader(data)); errCopy != nil {
		_ = tmp.Close()
		return Object{}, fmt.Errorf("proofs: write: %v: %w", errCopy, apperr.ErrIO)
	}
	if errClose := tmp.Close(); errClose != nil {
		return Object{}, fmt.Errorf("proofs: close: %v: %w", errClose, apperr.ErrIO)
	}
	if errRename := os.Rename(tmpName, filepath.Join(s.dir, key)); errRename != nil {
		return Object{}, fmt.Errorf("proofs: rename: %v: %w", errRename, apperr.ErrIO)
	}
	return Object{Ref: key, ContentType: contentType, Size: int64(len(data))}, nil
}

func (s *LocalStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := validRef(ref); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("proofs: %s: %w", ref, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("proofs: open %s: %v: %w", ref, err, apperr.ErrIO)
	}
	return f, nil
}

func (s *LocalStore) Exists(ctx context.Context, ref string) (bool, error) {
	if err := validRef(ref); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(s.dir, ref))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("proofs: stat %s: %v: %w", ref, err, apperr.ErrIO)
	}
}
