package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nexanet/configbot/internal/apperr"
	"github.com/nexanet/configbot/internal/db"
	"github.com/nexanet/configbot/internal/models"
	"gorm.io/gorm/clause"
)

// EnsureUser creates the user on first contact and refreshes the handle afterwards.
func (s *Store) EnsureUser(ctx context.Context, userID int64, username string, now time.Time) (*models.User, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if userID == 0 {
		return nil, fmt.Errorf("store: ensure user: missing id: %w", apperr.ErrInvalidInput)
	}
	record := models.User{
		UserID:        userID,
		Username:      strings.TrimSpace(username),
		JoinDate:      now.UTC(),
		PaymentStatus: models.PaymentStatusNone,
	}
	onConflict := clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}
	if record.Username != "" {
		onConflict = clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username"}),
		}
	}
	if err := s.db.WithContext(ctx).Clauses(onConflict).Create(&record).Error; err != nil {
		return nil, wrap("ensure user", err)
	}
	return s.GetUser(ctx, userID)
}

// GetUser loads a user by identity.
func (s *Store) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var user models.User
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error; err != nil {
		return nil, wrap(fmt.Sprintf("get user %d", userID), err)
	}
	return &user, nil
}

// ListUsersOptions filters and pages ListUsers.
type ListUsersOptions struct {
	Query  string // matched against the handle, case-insensitive
	Status models.PaymentStatus
	Offset int
	Limit  int
}

// ListUsers returns users newest first along with the unpaged total.
func (s *Store) ListUsers(ctx context.Context, opts ListUsersOptions) ([]models.User, int64, error) {
	if err := s.ready(); err != nil {
		return nil, 0, err
	}
	q := s.db.WithContext(ctx).Model(&models.User{})
	if term := strings.TrimSpace(opts.Query); term != "" {
		q = q.Where(db.CaseInsensitiveLikeExpr(s.db, "username"), db.ContainsPattern(s.db, term))
	}
	if opts.Status != "" {
		q = q.Where("payment_status = ?", opts.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, wrap("count users", err)
	}

	var rows []models.User
	q = q.Order("join_date DESC").Order("user_id ASC")
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, wrap("list users", err)
	}
	return rows, total, nil
}

// UserIDs returns every known identity, used as broadcast recipients.
func (s *Store) UserIDs(ctx context.Context) ([]int64, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var ids []int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Order("user_id ASC").Pluck("user_id", &ids).Error; err != nil {
		return nil, wrap("list user ids", err)
	}
	return ids, nil
}

// SetPaymentStatus overwrites a user's payment status.
func (s *Store) SetPaymentStatus(ctx context.Context, userID int64, status models.PaymentStatus) error {
	if err := s.ready(); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("store: payment status %q: %w", status, apperr.ErrInvalidInput)
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("user_id = ?", userID).Update("payment_status", status)
	if res.Error != nil {
		return wrap("set payment status", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("store: set payment status: user %d: %w", userID, apperr.ErrNotFound)
	}
	return nil
}

// SaveSubscription persists the expiry and payment status of u.
func (s *Store) SaveSubscription(ctx context.Context, u *models.User) error {
	if err := s.ready(); err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("store: save subscription: nil user: %w", apperr.ErrInvalidInput)
	}
	var expiry any
	if u.ExpiryDate != nil {
		expiry = u.ExpiryDate.UTC()
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("user_id = ?", u.UserID).Updates(map[string]any{
		"expiry_date":    expiry,
		"payment_status": u.PaymentStatus,
	})
	if res.Error != nil {
		return wrap("save subscription", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("store: save subscription: user %d: %w", u.UserID, apperr.ErrNotFound)
	}
	return nil
}

// UpdateUser loads a user inside a transaction, applies fn and saves the subscription
// fields fn may have changed.
func (s *Store) UpdateUser(ctx context.Context, userID int64, fn func(u *models.User) error) (*models.User, error) {
	var out *models.User
	errTx := s.Transaction(ctx, func(tx *Store) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if errFn := fn(u); errFn != nil {
			return errFn
		}
		if errSave := tx.SaveSubscription(ctx, u); errSave != nil {
			return errSave
		}
		out = u
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return out, nil
}

// DeleteExpiredUsers removes approved users whose expiry passed, sparing the operator.
// Their download records go with them. Payment rows are kept as detached history.
func (s *Store) DeleteExpiredUsers(ctx context.Context, now time.Time, operatorID int64) (int64, error) {
	var deleted int64
	errTx := s.Transaction(ctx, func(tx *Store) error {
		var ids []int64
		if err := tx.db.WithContext(ctx).Model(&models.User{}).
			Where("payment_status = ? AND expiry_date IS NOT NULL AND expiry_date < ? AND user_id <> ?",
				models.PaymentStatusApproved, now.UTC(), operatorID).
			Pluck("user_id", &ids).Error; err != nil {
			return wrap("find expired users", err)
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.db.WithContext(ctx).Where("user_id IN ?", ids).Delete(&models.DownloadRecord{}).Error; err != nil {
			return wrap("delete expired user downloads", err)
		}
		res := tx.db.WithContext(ctx).Where("user_id IN ?", ids).Delete(&models.User{})
		if res.Error != nil {
			return wrap("delete expired users", res.Error)
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, errTx
}
