package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nexanet/configbot/internal/apperr"
	"github.com/nexanet/configbot/internal/models"
)

// CreateFile inserts a file row; ConfigID is filled in on success.
func (s *Store) CreateFile(ctx context.Context, f *models.StoredFile) error {
	if err := s.ready(); err != nil {
		return err
	}
	if f == nil || f.Filename == "" {
		return fmt.Errorf("store: create file: missing storage name: %w", apperr.ErrInvalidInput)
	}
	f.UploadDate = f.UploadDate.UTC()
	f.ExpiryDate = f.ExpiryDate.UTC()
	if err := s.db.WithContext(ctx).Create(f).Error; err != nil {
		return wrap("create file", err)
	}
	return nil
}

// GetFile loads a file row regardless of its active flag.
func (s *Store) GetFile(ctx context.Context, fileID uint64) (*models.StoredFile, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var f models.StoredFile
	if err := s.db.WithContext(ctx).Where("config_id = ?", fileID).First(&f).Error; err != nil {
		return nil, wrap(fmt.Sprintf("get file %d", fileID), err)
	}
	return &f, nil
}

// ListActiveByCategory returns active, unexpired files of a category, newest first.
func (s *Store) ListActiveByCategory(ctx context.Context, category string, now time.Time) ([]models.StoredFile, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var rows []models.StoredFile
	if err := s.db.WithContext(ctx).
		Where("category = ? AND is_active = ? AND expiry_date > ?", category, true, now.UTC()).
		Order("upload_date DESC").Order("config_id DESC").
		Find(&rows).Error; err != nil {
		return nil, wrap("list files by category", err)
	}
	return rows, nil
}

// ListActive returns active, unexpired files of every category, newest first.
// A non-positive limit returns all rows.
func (s *Store) ListActive(ctx context.Context, now time.Time, limit int) ([]models.StoredFile, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).
		Where("is_active = ? AND expiry_date > ?", true, now.UTC()).
		Order("upload_date DESC").Order("config_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.StoredFile
	if err := q.Find(&rows).Error; err != nil {
		return nil, wrap("list files", err)
	}
	return rows, nil
}

// DeleteFile removes a file row and its download records, returning the removed row.
func (s *Store) DeleteFile(ctx context.Context, fileID uint64) (*models.StoredFile, error) {
	var removed *models.StoredFile
	errTx := s.Transaction(ctx, func(tx *Store) error {
		f, err := tx.GetFile(ctx, fileID)
		if err != nil {
			return err
		}
		if errDl := tx.db.WithContext(ctx).Where("config_id = ?", fileID).Delete(&models.DownloadRecord{}).Error; errDl != nil {
			return wrap("delete file downloads", errDl)
		}
		if errDel := tx.db.WithContext(ctx).Where("config_id = ?", fileID).Delete(&models.StoredFile{}).Error; errDel != nil {
			return wrap("delete file", errDel)
		}
		removed = f
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return removed, nil
}

// DeactivateExpiredFiles clears the active flag on files past expiry. Rows and blobs
// are kept.
func (s *Store) DeactivateExpiredFiles(ctx context.Context, now time.Time) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	res := s.db.WithContext(ctx).Model(&models.StoredFile{}).
		Where("is_active = ? AND expiry_date < ?", true, now.UTC()).
		Update("is_active", false)
	if res.Error != nil {
		return 0, wrap("deactivate expired files", res.Error)
	}
	return res.RowsAffected, nil
}
