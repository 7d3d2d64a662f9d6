// Package proofs stores payment proof blobs submitted by users.
package proofs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nexanet/configbot/internal/apperr"
)

const (
	BackendLocal = "local"
	BackendS3    = "s3"

	// MaxProofSize caps an uploaded proof.
	MaxProofSize = 20 << 20
)

// Object describes a stored proof.
type Object struct {
	Ref         string
	ContentType string
	Size        int64
}

// Store persists and retrieves proof blobs by opaque reference.
type Store interface {
	Put(ctx context.Context, userID int64, body io.Reader, contentType string) (Object, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Exists(ctx context.Context, ref string) (bool, error)
	Backend() string
}

// NewKey builds a unique object key for a user's proof.
func NewKey(userID int64, contentType string, now time.Time) string {
	return fmt.Sprintf("payment_%d_%s_%s%s",
		userID, now.UTC().Format("20060102_150405"), uuid.NewString()[:8], extensionFor(contentType))
}

func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	default:
		return ".jpg"
	}
}

// validRef rejects references that could escape the store's namespace.
func validRef(ref string) error {
	if ref == "" || ref != path.Base(ref) || strings.ContainsAny(ref, `/\`) || ref == "." || ref == ".." {
		return fmt.Errorf("proofs: invalid reference %q: %w", ref, apperr.ErrInvalidInput)
	}
	return nil
}

// readLimited buffers body, rejecting anything over MaxProofSize.
func readLimited(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxProofSize+1))
	if err != nil {
		return nil, fmt.Errorf("proofs: read body: %v: %w", err, apperr.ErrIO)
	}
	if len(data) > MaxProofSize {
		return nil, fmt.Errorf("proofs: proof exceeds %d bytes: %w", MaxProofSize, apperr.ErrInvalidInput)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("proofs: empty proof: %w", apperr.ErrInvalidInput)
	}
	return data, nil
}
