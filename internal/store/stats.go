package store

import (
	"context"
	"time"

	"github.com/nexanet/configbot/internal/models"
)

// Stats is the operator dashboard snapshot.
type Stats struct {
	TotalUsers      int64 `json:"total_users"`
	ActiveUsers     int64 `json:"active_users"` // Approved and not past expiry; a nil expiry counts.
	TotalConfigs    int64 `json:"total_configs"`
	TotalDownloads  int64 `json:"total_downloads"`
	TodayDownloads  int64 `json:"today_downloads"`
	PendingPayments int64 `json:"pending_payments"`
}

// Stats computes the dashboard counters at now. "Today" is the UTC calendar day.
func (s *Store) Stats(ctx context.Context, now time.Time) (Stats, error) {
	var out Stats
	if err := s.ready(); err != nil {
		return out, err
	}
	now = now.UTC()
	conn := s.db.WithContext(ctx)

	if err := conn.Model(&models.User{}).Count(&out.TotalUsers).Error; err != nil {
		return out, wrap("count users", err)
	}
	if err := conn.Model(&models.User{}).
		Where("payment_status = ? AND (expiry_date IS NULL OR expiry_date > ?)", models.PaymentStatusApproved, now).
		Count(&out.ActiveUsers).Error; err != nil {
		return out, wrap("count active users", err)
	}
	if err := conn.Model(&models.StoredFile{}).Where("is_active = ?", true).Count(&out.TotalConfigs).Error; err != nil {
		return out, wrap("count configs", err)
	}
	if err := conn.Model(&models.DownloadRecord{}).Count(&out.TotalDownloads).Error; err != nil {
		return out, wrap("count downloads", err)
	}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if err := conn.Model(&models.DownloadRecord{}).
		Where("download_date >= ? AND download_date < ?", dayStart, dayStart.Add(24*time.Hour)).
		Count(&out.TodayDownloads).Error; err != nil {
		return out, wrap("count today downloads", err)
	}
	if err := conn.Model(&models.Payment{}).Where("status = ?", models.PaymentStatusPending).Count(&out.PendingPayments).Error; err != nil {
		return out, wrap("count pending payments", err)
	}
	return out, nil
}
