package models

import (
	"strconv"
	"time"
)

// DownloadRecord is an append-only audit row for a file delivery.
type DownloadRecord struct {
	DownloadID uint64 `gorm:"column:download_id;primaryKey;autoIncrement"` // Primary key.

	UserID   int64  `gorm:"column:user_id;not null;index"`   // Downloading user.
	ConfigID uint64 `gorm:"column:config_id;not null;index"` // Downloaded file.

	DownloadDate time.Time `gorm:"column:download_date;not null;index"` // Delivery timestamp.
}

// TableName pins the table name.
func (DownloadRecord) TableName() string { return "downloads" }

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }
