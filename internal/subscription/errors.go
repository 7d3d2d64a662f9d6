package subscription

import (
	"fmt"

	"github.com/nexanet/configbot/internal/apperr"
)

var (
	// ErrPaymentRequired is returned for users without an approved payment.
	ErrPaymentRequired = fmt.Errorf("subscription: %w", apperr.ErrPaymentRequired)
	// ErrExpired is returned for approved users past their expiry.
	ErrExpired = fmt.Errorf("subscription: %w", apperr.ErrSubscriptionExpired)
)
