package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nexanet/configbot/internal/apperr"
	"github.com/nexanet/configbot/internal/models"
	"gorm.io/gorm"
)

// RecordDownload appends the audit row and bumps the file and user counters as one unit.
func (s *Store) RecordDownload(ctx context.Context, userID int64, fileID uint64, now time.Time) error {
	return s.Transaction(ctx, func(tx *Store) error {
		res := tx.db.WithContext(ctx).Model(&models.StoredFile{}).
			Where("config_id = ?", fileID).
			Update("total_downloads", gorm.Expr("total_downloads + ?", 1))
		if res.Error != nil {
			return wrap("increment file downloads", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("store: file %d: %w", fileID, apperr.ErrNotFound)
		}
		res = tx.db.WithContext(ctx).Model(&models.User{}).
			Where("user_id = ?", userID).
			Update("total_downloads", gorm.Expr("total_downloads + ?", 1))
		if res.Error != nil {
			return wrap("increment user downloads", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("store: user %d: %w", userID, apperr.ErrNotFound)
		}
		record := models.DownloadRecord{UserID: userID, ConfigID: fileID, DownloadDate: now.UTC()}
		if err := tx.db.WithContext(ctx).Create(&record).Error; err != nil {
			return wrap("insert download", err)
		}
		return nil
	})
}

// DownloadsByUser returns a user's audit trail, newest first.
func (s *Store) DownloadsByUser(ctx context.Context, userID int64, limit int) ([]models.DownloadRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("download_date DESC").Order("download_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.DownloadRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, wrap("list downloads", err)
	}
	return rows, nil
}
