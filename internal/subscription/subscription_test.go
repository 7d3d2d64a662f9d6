package subscription

import (
	"errors"
	"testing"
	"time"

	"github.com/nexanet/configbot/internal/apperr"
	"github.com/nexanet/configbot/internal/models"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	v := t0.Add(d)
	return &v
}

func TestIsEligible(t *testing.T) {
	day := 24 * time.Hour
	cases := []struct {
		name   string
		status models.PaymentStatus
		expiry *time.Time
		want   bool
	}{
		{"approved future", models.PaymentStatusApproved, at(day), true},
		{"approved no expiry", models.PaymentStatusApproved, nil, true},
		{"approved past", models.PaymentStatusApproved, at(-day), false},
		{"approved exactly now", models.PaymentStatusApproved, at(0), false},
		{"pending", models.PaymentStatusPending, at(day), false},
		{"rejected", models.PaymentStatusRejected, at(day), false},
		{"none", models.PaymentStatusNone, nil, false},
	}
	for _, tc := range cases {
		u := &models.User{PaymentStatus: tc.status, ExpiryDate: tc.expiry}
		if got := IsEligible(u, t0); got != tc.want {
			t.Fatalf("%s: expected eligible=%v, got %v", tc.name, tc.want, got)
		}
	}
	if IsEligible(nil, t0) {
		t.Fatalf("expected nil user to be ineligible")
	}
}

func TestCheckEligible_Reasons(t *testing.T) {
	pending := &models.User{PaymentStatus: models.PaymentStatusPending}
	if err := CheckEligible(pending, t0); !errors.Is(err, apperr.ErrPaymentRequired) {
		t.Fatalf("expected ErrPaymentRequired, got %v", err)
	}
	expired := &models.User{PaymentStatus: models.PaymentStatusApproved, ExpiryDate: at(-time.Hour)}
	if err := CheckEligible(expired, t0); !errors.Is(err, apperr.ErrSubscriptionExpired) {
		t.Fatalf("expected ErrSubscriptionExpired, got %v", err)
	}
}

func TestTimeRemaining(t *testing.T) {
	cases := []struct {
		expiry *time.Time
		want   string
	}{
		{nil, Expired},
		{at(-time.Minute), Expired},
		{at(10*24*time.Hour + 5*time.Hour), "10 days"},
		{at(24*time.Hour + time.Minute), "1 day"},
		{at(3*time.Hour + 59*time.Minute), "3 hours"},
		{at(time.Hour), "1 hour"},
		{at(59 * time.Minute), "59 minutes"},
		{at(90 * time.Second), "1 minute"},
		{at(30 * time.Second), "0 minutes"},
	}
	for _, tc := range cases {
		u := &models.User{PaymentStatus: models.PaymentStatusApproved, ExpiryDate: tc.expiry}
		if got := TimeRemaining(u, t0); got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
}

func TestExtendOnApproval_AdditiveFromFutureExpiry(t *testing.T) {
	u := &models.User{PaymentStatus: models.PaymentStatusPending, ExpiryDate: at(10 * 24 * time.Hour)}
	got := ExtendOnApproval(u, 30, t0)
	want := t0.Add(40 * 24 * time.Hour)
	if !got.Equal(want) || !u.ExpiryDate.Equal(want) {
		t.Fatalf("expected expiry=%s, got %s", want, got)
	}
	if u.PaymentStatus != models.PaymentStatusApproved {
		t.Fatalf("expected status=approved, got %q", u.PaymentStatus)
	}
}

func TestExtendOnApproval_ResetsFromNow(t *testing.T) {
	for _, expiry := range []*time.Time{nil, at(-5 * 24 * time.Hour)} {
		u := &models.User{PaymentStatus: models.PaymentStatusRejected, ExpiryDate: expiry}
		got := ExtendOnApproval(u, 30, t0)
		want := t0.Add(30 * 24 * time.Hour)
		if !got.Equal(want) {
			t.Fatalf("expected expiry=%s, got %s", want, got)
		}
	}
}

func TestMarkExpiredImmediately(t *testing.T) {
	u := &models.User{PaymentStatus: models.PaymentStatusApproved, ExpiryDate: at(20 * 24 * time.Hour)}
	MarkExpiredImmediately(u, t0)
	if u.PaymentStatus != models.PaymentStatusApproved {
		t.Fatalf("expected status unchanged, got %q", u.PaymentStatus)
	}
	if IsEligible(u, t0) {
		t.Fatalf("expected user to be ineligible after forced expiry")
	}
	if !u.ExpiryDate.Equal(t0.Add(-24 * time.Hour)) {
		t.Fatalf("expected expiry one day in the past, got %s", u.ExpiryDate)
	}
}
