// Package store is the single persistence surface for users, files, payments and
// download records. Every multi-statement mutation runs in one transaction.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/nexanet/configbot/internal/apperr"
	"gorm.io/gorm"
)

// Store wraps a gorm handle. A Store bound to a transaction is handed to callbacks
// passed to Transaction and TransitionPayment.
type Store struct {
	db *gorm.DB
}

// New constructs a Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transaction runs fn against a Store bound to a single database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return wrap("ping", err)
	}
	return wrap("ping", sqlDB.PingContext(ctx))
}

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store: not initialized: %w", apperr.ErrStore)
	}
	return nil
}

// wrap maps gorm errors onto the shared taxonomy, leaving taxonomy errors untouched.
func wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("store: %s: %w", op, apperr.ErrNotFound)
	case isTaxonomy(err):
		return fmt.Errorf("store: %s: %w", op, err)
	default:
		return fmt.Errorf("store: %s: %v: %w", op, err, apperr.ErrStore)
	}
}

func isTaxonomy(err error) bool {
	for _, target := range []error{
		apperr.ErrUnauthorized, apperr.ErrNotFound, apperr.ErrInvalidInput,
		apperr.ErrAlreadyProcessed, apperr.ErrDecryptionFailed, apperr.ErrEncryptionFailed,
		apperr.ErrIO, apperr.ErrStore, apperr.ErrMembershipRequired, apperr.ErrPaymentRequired,
		apperr.ErrSubscriptionExpired, apperr.ErrFileUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
