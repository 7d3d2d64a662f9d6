package models

import "time"

// PaymentStatus is the subscription payment state stored on a user.
type PaymentStatus string

// PaymentStatus values shared by users and payments.
const (
	// PaymentStatusNone marks a user who never submitted a payment.
	PaymentStatusNone PaymentStatus = "none"
	// PaymentStatusPending marks a payment awaiting operator review.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusApproved marks an accepted payment.
	PaymentStatusApproved PaymentStatus = "approved"
	// PaymentStatusRejected marks a refused payment.
	PaymentStatusRejected PaymentStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusNone, PaymentStatusPending, PaymentStatusApproved, PaymentStatusRejected:
		return true
	}
	return false
}

// User represents a chat user known to the bot.
type User struct {
	UserID int64 `gorm:"column:user_id;primaryKey;autoIncrement:false"` // Platform-assigned identity.

	Username string `gorm:"column:username;type:text"` // Display handle.

	JoinDate   time.Time  `gorm:"column:join_date;not null"` // First interaction time.
	ExpiryDate *time.Time `gorm:"column:expiry_date;index"`  // Subscription expiry, nil when never granted.

	PaymentStatus  PaymentStatus `gorm:"column:payment_status;type:varchar(16);not null;default:'none';index"` // Current payment state.
	TotalDownloads int64         `gorm:"column:total_downloads;not null;default:0"`                           // Cumulative downloads.
	IsAdmin        bool          `gorm:"column:is_admin;not null;default:false"`                              // Operator flag.

	Downloads []DownloadRecord `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // Download audit rows.
}

// TableName pins the table name.
func (User) TableName() string { return "users" }

// DisplayName returns the handle or a synthetic one when the user has none.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	return "User_" + formatInt(u.UserID)
}
