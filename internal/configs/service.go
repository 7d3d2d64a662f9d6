// Package configs manages the lifecycle of encrypted config files: upload,
// catalog listing, gated download and deletion.
package configs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nexanet/configbot/internal/apperr"
	"github.com/nexanet/configbot/internal/cipher"
	"github.com/nexanet/configbot/internal/models"
	"github.com/nexanet/configbot/internal/notify"
	"github.com/nexanet/configbot/internal/store"
	"github.com/nexanet/configbot/internal/subscription"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const DefaultValidityDays = 30

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "configbot_uploads_total",
		Help: "Config uploads by outcome.",
	}, []string{"status"})

	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "configbot_downloads_total",
		Help: "Config download requests by outcome.",
	}, []string{"status"})
)

// Options configures a Service.
type Options struct {
	ConfigDir    string
	TempDir      string
	ValidityDays int
	Now          func() time.Time
}

// Service owns encrypted blobs under ConfigDir and their rows in the store.
type Service struct {
	store        *store.Store
	codec        *cipher.Codec
	gate         notify.MembershipGate
	configDir    string
	tempDir      string
	validityDays int
	now          func() time.Time
}

// NewService creates the blob and staging directories if needed.
func NewService(st *store.Store, codec *cipher.Codec, gate notify.MembershipGate, opts Options) (*Service, error) {
	if st == nil || codec == nil || gate == nil {
		return nil, fmt.Errorf("configs: missing dependency: %w", apperr.ErrInvalidInput)
	}
	if opts.ValidityDays <= 0 {
		opts.ValidityDays = DefaultValidityDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	for _, dir := range []string{opts.ConfigDir, opts.TempDir} {
		if strings.TrimSpace(dir) == "" {
			return nil, fmt.Errorf("configs: missing directory: %w", apperr.ErrInvalidInput)
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("configs: create %s: %v: %w", dir, err, apperr.ErrIO)
		}
	}
	return &Service{
		store:        st,
		codec:        codec,
		gate:         gate,
		configDir:    opts.ConfigDir,
		tempDir:      opts.TempDir,
		validityDays: opts.ValidityDays,
		now:          opts.Now,
	}, nil
}

// TempDir is the staging area purged by the maintenance sweep.
func (s *Service) TempDir() string { return s.tempDir }

// BlobPath is where the ciphertext for f lives.
func (s *Service) BlobPath(f *models.StoredFile) string {
	return filepath.Join(s.configDir, filepath.Base(f.Filename))
}

// UploadRequest is an operator upload.
type UploadRequest struct {
	Category     string
	OriginalName string
	UploaderID   int64
	Body         io.Reader
}

// Upload stages the body, encrypts it into the blob directory and registers the row.
// The row is only written after the ciphertext is in place; a failed insert removes
// the blob again.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*models.StoredFile, error) {
	f, err := s.upload(ctx, req)
	if err != nil {
		uploadsTotal.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}
	uploadsTotal.WithLabelValues("ok").Inc()
	log.WithFields(log.Fields{
		"config_id": f.ConfigID,
		"category":  f.Category,
		"stored_as": f.Filename,
	}).Info("config uploaded")
	return f, nil
}

func (s *Service) upload(ctx context.Context, req UploadRequest) (*models.StoredFile, error) {
	original := filepath.Base(strings.TrimSpace(req.OriginalName))
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return nil, fmt.Errorf("configs: missing category: %w", apperr.ErrInvalidInput)
	}
	if err := ValidateExtension(original); err != nil {
		return nil, err
	}
	if req.Body == nil {
		return nil, fmt.Errorf("configs: missing body: %w", apperr.ErrInvalidInput)
	}

	staged, size, errStage := s.stage(req.Body, original)
	if errStage != nil {
		return nil, errStage
	}
	defer func() { _ = os.Remove(staged) }()

	now := s.now().UTC()
	name := StorageName(original, req.UploaderID, now)
	blob := filepath.Join(s.configDir, name)
	if err := s.codec.EncryptFile(staged, blob); err != nil {
		return nil, err
	}

	row := &models.StoredFile{
		Filename:         name,
		Category:         category,
		OriginalFilename: original,
		FileSize:         size,
		UploadDate:       now,
		ExpiryDate:       now.AddDate(0, 0, s.validityDays),
		IsActive:         true,
	}
	if err := s.store.CreateFile(ctx, row); err != nil {
		if errRemove := os.Remove(blob); errRemove != nil && !errors.Is(errRemove, os.ErrNotExist) {
			log.WithError(errRemove).WithField("blob", blob).Warn("configs: remove orphan blob")
		}
		return nil, err
	}
	return row, nil
}

func (s *Service) stage(body io.Reader, original string) (string, int64, error) {
	path := filepath.Join(s.tempDir, uuid.NewString()+"_"+original)
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("configs: stage: %v: %w", err, apperr.ErrIO)
	}
	size, errCopy := io.Copy(out, body)
	errClose := out.Close()
	if errCopy != nil || errClose != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("configs: stage: %v: %w", errors.Join(errCopy, errClose), apperr.ErrIO)
	}
	return path, size, nil
}

// ListByCategory returns the downloadable files of a category, newest first.
func (s *Service) ListByCategory(ctx context.Context, category string) ([]models.StoredFile, error) {
	return s.store.ListActiveByCategory(ctx, strings.TrimSpace(category), s.now())
}

// ListAll returns downloadable files of every category, newest first, capped at limit.
func (s *Service) ListAll(ctx context.Context, limit int) ([]models.StoredFile, error) {
	return s.store.ListActive(ctx, s.now(), limit)
}

// DeliverFunc hands the decrypted file at plainPath to the requester. The file is
// removed once it returns.
type DeliverFunc func(ctx context.Context, f *models.StoredFile, plainPath string) error

// FetchForDownload checks subscription eligibility, channel membership and file
// availability in that order, then decrypts to a transient path, delivers it and
// records the download. The plaintext copy is removed whether or not delivery works.
func (s *Service) FetchForDownload(ctx context.Context, fileID uint64, userID int64, deliver DeliverFunc) (*models.StoredFile, error) {
	f, err := s.fetch(ctx, fileID, userID, deliver)
	if err != nil {
		downloadsTotal.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}
	downloadsTotal.WithLabelValues("ok").Inc()
	return f, nil
}

// CheckAccess applies the subscription and membership checks used before browsing
// and downloading. A failing membership lookup counts as not a member.
func (s *Service) CheckAccess(ctx context.Context, userID int64) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if errEligible := subscription.CheckEligible(user, s.now()); errEligible != nil {
		return errEligible
	}
	member, errGate := s.gate.IsMember(ctx, userID)
	if errGate != nil {
		log.WithError(errGate).WithField("user_id", userID).Warn("configs: membership check failed")
	}
	if !member {
		return fmt.Errorf("configs: user %d: %w", userID, apperr.ErrMembershipRequired)
	}
	return nil
}

func (s *Service) fetch(ctx context.Context, fileID uint64, userID int64, deliver DeliverFunc) (*models.StoredFile, error) {
	now := s.now()
	if err := s.CheckAccess(ctx, userID); err != nil {
		return nil, err
	}

	f, errFile := s.store.GetFile(ctx, fileID)
	if errFile != nil {
		if errors.Is(errFile, apperr.ErrNotFound) {
			return nil, fmt.Errorf("configs: file %d: %w", fileID, apperr.ErrFileUnavailable)
		}
		return nil, errFile
	}
	if !f.Available(now) {
		return nil, fmt.Errorf("configs: file %d: %w", fileID, apperr.ErrFileUnavailable)
	}

	plain := filepath.Join(s.tempDir, "dl_"+uuid.NewString()+"_"+filepath.Base(f.OriginalFilename))
	defer func() {
		if errRemove := os.Remove(plain); errRemove != nil && !errors.Is(errRemove, os.ErrNotExist) {
			log.WithError(errRemove).WithField("path", plain).Warn("configs: remove decrypted copy")
		}
	}()
	if errDecrypt := s.codec.DecryptFile(s.BlobPath(f), plain); errDecrypt != nil {
		return nil, errDecrypt
	}
	if deliver != nil {
		if errDeliver := deliver(ctx, f, plain); errDeliver != nil {
			return nil, fmt.Errorf("configs: deliver %d: %w", fileID, errDeliver)
		}
	}
	if errRecord := s.store.RecordDownload(ctx, userID, fileID, now); errRecord != nil {
		return nil, errRecord
	}
	f.TotalDownloads++
	return f, nil
}

// Delete removes the blob, then the row. A blob that is already gone counts as
// removed; any other blob failure is logged and the row is removed anyway.
func (s *Service) Delete(ctx context.Context, fileID uint64) (*models.StoredFile, error) {
	f, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if errRemove := os.Remove(s.BlobPath(f)); errRemove != nil && !errors.Is(errRemove, os.ErrNotExist) {
		log.WithError(errRemove).WithField("config_id", fileID).Warn("configs: blob removal failed, deleting row anyway")
	}
	removed, errDelete := s.store.DeleteFile(ctx, fileID)
	if errDelete != nil {
		return nil, errDelete
	}
	log.WithFields(log.Fields{"config_id": fileID, "stored_as": removed.Filename}).Info("config deleted")
	return removed, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput),
		errors.Is(err, apperr.ErrPaymentRequired),
		errors.Is(err, apperr.ErrSubscriptionExpired),
		errors.Is(err, apperr.ErrMembershipRequired),
		errors.Is(err, apperr.ErrFileUnavailable),
		errors.Is(err, apperr.ErrNotFound):
		return "rejected"
	default:
		return "error"
	}
}
