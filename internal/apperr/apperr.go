package apperr

import (
	"errors"
	"net/http"
)

// Error taxonomy shared by every service. Callers wrap these with fmt.Errorf("...: %w")
// and test with errors.Is.
var (
	// ErrUnauthorized marks a non-admin invoking an admin-only operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound marks a missing user, file or payment.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput marks bad extensions, non-numeric identities or malformed amounts.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAlreadyProcessed marks a payment that already left the pending state.
	ErrAlreadyProcessed = errors.New("already processed")
	// ErrDecryptionFailed marks malformed or undecryptable ciphertext.
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrEncryptionFailed marks a failure while producing ciphertext.
	ErrEncryptionFailed = errors.New("encryption failed")
	// ErrIO marks filesystem failures.
	ErrIO = errors.New("io error")
	// ErrStore marks persistence layer failures.
	ErrStore = errors.New("store error")

	// ErrMembershipRequired rejects users outside the membership channel.
	ErrMembershipRequired = errors.New("membership required")
	// ErrPaymentRequired rejects users without an approved payment.
	ErrPaymentRequired = errors.New("payment required")
	// ErrSubscriptionExpired rejects approved users past their expiry.
	ErrSubscriptionExpired = errors.New("subscription expired")
	// ErrFileUnavailable rejects inactive or expired files.
	ErrFileUnavailable = errors.New("file unavailable")
)

// UserMessage converts an error into the short message shown to a chat user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "❌ Unauthorized."
	case errors.Is(err, ErrMembershipRequired):
		return "❌ You must join our official channel first. Join and try again."
	case errors.Is(err, ErrPaymentRequired):
		return "❌ Payment required. Please complete payment approval first."
	case errors.Is(err, ErrSubscriptionExpired):
		return "❌ Subscription expired. Please renew your payment."
	case errors.Is(err, ErrFileUnavailable):
		return "❌ Config not found or expired."
	case errors.Is(err, ErrAlreadyProcessed):
		return "⚠️ This payment has already been processed."
	case errors.Is(err, ErrNotFound):
		return "❌ Not found."
	case errors.Is(err, ErrInvalidInput):
		return "❌ Invalid input."
	case errors.Is(err, ErrDecryptionFailed):
		return "❌ Error decrypting config."
	case errors.Is(err, ErrEncryptionFailed):
		return "❌ Failed to encrypt config file."
	default:
		return "❌ An error occurred. Please try again."
	}
}

// HTTPStatus maps an error to the admin API response status.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrAlreadyProcessed):
		return http.StatusConflict
	case errors.Is(err, ErrMembershipRequired), errors.Is(err, ErrPaymentRequired), errors.Is(err, ErrSubscriptionExpired):
		return http.StatusForbidden
	case errors.Is(err, ErrFileUnavailable):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
