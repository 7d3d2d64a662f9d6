package models

import "time"

// StoredFile is an encrypted, categorized and time-limited config file.
type StoredFile struct {
	ConfigID uint64 `gorm:"column:config_id;primaryKey;autoIncrement"` // Primary key.

	Filename         string `gorm:"column:filename;type:text;not null;uniqueIndex"` // Server-generated storage name.
	Category         string `gorm:"column:category;type:text;not null"`              // Free-text grouping.
	OriginalFilename string `gorm:"column:original_filename;type:text;not null"`     // User-facing name.
	FileSize         int64  `gorm:"column:file_size;not null;default:0"`             // Plaintext size in bytes.

	UploadDate time.Time `gorm:"column:upload_date;not null"` // Upload timestamp.
	ExpiryDate time.Time `gorm:"column:expiry_date;not null"` // Upload plus validity window.

	TotalDownloads int64 `gorm:"column:total_downloads;not null;default:0"` // Cumulative downloads.
	IsActive       bool  `gorm:"column:is_active;not null;default:true"`    // Cleared by the sweep on expiry.

	Downloads []DownloadRecord `gorm:"foreignKey:ConfigID;constraint:OnDelete:CASCADE"` // Download audit rows.
}

// TableName pins the table name.
func (StoredFile) TableName() string { return "configs" }

// Available reports whether the file may be listed or downloaded at now.
func (f *StoredFile) Available(now time.Time) bool {
	return f != nil && f.IsActive && f.ExpiryDate.After(now)
}
