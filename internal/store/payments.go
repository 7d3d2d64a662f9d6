package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nexanet/configbot/internal/apperr"
	"github.com/nexanet/configbot/internal/models"
)

// CreatePayment inserts a pending payment and marks its owner pending.
func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p == nil {
		return fmt.Errorf("store: create payment: nil payment: %w", apperr.ErrInvalidInput)
	}
	return s.Transaction(ctx, func(tx *Store) error {
		if _, err := tx.GetUser(ctx, p.UserID); err != nil {
			return err
		}
		p.Status = models.PaymentStatusPending
		p.PaymentDate = p.PaymentDate.UTC()
		p.ProcessedDate = nil
		if err := tx.db.WithContext(ctx).Create(p).Error; err != nil {
			return wrap("create payment", err)
		}
		return tx.SetPaymentStatus(ctx, p.UserID, models.PaymentStatusPending)
	})
}

// GetPayment loads a payment by id.
func (s *Store) GetPayment(ctx context.Context, paymentID uint64) (*models.Payment, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var p models.Payment
	if err := s.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&p).Error; err != nil {
		return nil, wrap(fmt.Sprintf("get payment %d", paymentID), err)
	}
	return &p, nil
}

// PendingPayment is a queued payment with its owner's handle.
type PendingPayment struct {
	models.Payment
	Username string
}

// PendingPayments returns the review queue, oldest submission first.
func (s *Store) PendingPayments(ctx context.Context) ([]PendingPayment, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var rows []models.Payment
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.PaymentStatusPending).
		Order("payment_date ASC").Order("payment_id ASC").
		Find(&rows).Error; err != nil {
		return nil, wrap("list pending payments", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.UserID)
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Where("user_id IN ?", ids).Find(&users).Error; err != nil {
		return nil, wrap("load payment owners", err)
	}
	names := make(map[int64]string, len(users))
	for i := range users {
		names[users[i].UserID] = users[i].DisplayName()
	}

	out := make([]PendingPayment, 0, len(rows))
	for _, row := range rows {
		name, ok := names[row.UserID]
		if !ok {
			name = (&models.User{UserID: row.UserID}).DisplayName()
		}
		out = append(out, PendingPayment{Payment: row, Username: name})
	}
	return out, nil
}

// TransitionPayment moves a pending payment to a terminal status and runs apply in the
// same transaction. The status check and write are one conditional UPDATE, so of two
// concurrent transitions only one succeeds; the other gets ErrAlreadyProcessed.
func (s *Store) TransitionPayment(
	ctx context.Context,
	paymentID uint64,
	to models.PaymentStatus,
	note string,
	now time.Time,
	apply func(tx *Store, p *models.Payment) error,
) (*models.Payment, error) {
	if to != models.PaymentStatusApproved && to != models.PaymentStatusRejected {
		return nil, fmt.Errorf("store: transition to %q: %w", to, apperr.ErrInvalidInput)
	}
	var out *models.Payment
	errTx := s.Transaction(ctx, func(tx *Store) error {
		processed := now.UTC()
		res := tx.db.WithContext(ctx).Model(&models.Payment{}).
			Where("payment_id = ? AND status = ?", paymentID, models.PaymentStatusPending).
			Updates(map[string]any{
				"status":         to,
				"admin_note":     note,
				"processed_date": processed,
			})
		if res.Error != nil {
			return wrap("transition payment", res.Error)
		}
		if res.RowsAffected == 0 {
			if _, errGet := tx.GetPayment(ctx, paymentID); errGet != nil {
				return errGet
			}
			return fmt.Errorf("store: payment %d: %w", paymentID, apperr.ErrAlreadyProcessed)
		}
		p, errGet := tx.GetPayment(ctx, paymentID)
		if errGet != nil {
			return errGet
		}
		if apply != nil {
			if errApply := apply(tx, p); errApply != nil {
				return errApply
			}
		}
		out = p
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return out, nil
}
