// Package subscription holds the pure access rules over a user's payment state.
package subscription

import (
	"fmt"
	"time"

	"github.com/nexanet/configbot/internal/models"
)

// Expired is returned by TimeRemaining when no time is left.
const Expired = "Expired"

// DefaultGrantDays is the subscription length granted per approved payment.
const DefaultGrantDays = 30

// IsEligible reports whether u may download files at now.
//
// An approved user without an expiry stays eligible until explicitly expired.
func IsEligible(u *models.User, now time.Time) bool {
	if u == nil || u.PaymentStatus != models.PaymentStatusApproved {
		return false
	}
	return u.ExpiryDate == nil || u.ExpiryDate.After(now)
}

// CheckEligible is IsEligible with the rejection reason attached.
func CheckEligible(u *models.User, now time.Time) error {
	if u == nil || u.PaymentStatus != models.PaymentStatusApproved {
		return ErrPaymentRequired
	}
	if u.ExpiryDate != nil && !u.ExpiryDate.After(now) {
		return ErrExpired
	}
	return nil
}

// TimeRemaining renders the time until expiry in its largest whole unit.
func TimeRemaining(u *models.User, now time.Time) string {
	if u == nil || u.ExpiryDate == nil || !u.ExpiryDate.After(now) {
		return Expired
	}
	return FormatDuration(u.ExpiryDate.Sub(now))
}

// FormatDuration renders d as whole days, hours or minutes.
func FormatDuration(d time.Duration) string {
	switch {
	case d >= 24*time.Hour:
		return plural(int64(d/(24*time.Hour)), "day")
	case d >= time.Hour:
		return plural(int64(d/time.Hour), "hour")
	default:
		return plural(int64(d/time.Minute), "minute")
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// ExtendOnApproval adds days to the later of now and the current expiry, forces the
// approved status and returns the new expiry.
func ExtendOnApproval(u *models.User, days int, now time.Time) time.Time {
	base := now
	if u.ExpiryDate != nil && u.ExpiryDate.After(now) {
		base = *u.ExpiryDate
	}
	expiry := base.Add(time.Duration(days) * 24 * time.Hour)
	u.ExpiryDate = &expiry
	u.PaymentStatus = models.PaymentStatusApproved
	return expiry
}

// MarkExpiredImmediately moves the expiry one day into the past. The payment status
// is left alone, so the record keeps reading approved while IsEligible turns false.
func MarkExpiredImmediately(u *models.User, now time.Time) time.Time {
	expiry := now.Add(-24 * time.Hour)
	u.ExpiryDate = &expiry
	return expiry
}
