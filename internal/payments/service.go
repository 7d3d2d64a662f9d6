// Package payments runs the manual payment review workflow: users submit proof,
// the operator approves or rejects it exactly once.
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nexanet/configbot/internal/apperr"
	"github.com/nexanet/configbot/internal/format"
	"github.com/nexanet/configbot/internal/models"
	"github.com/nexanet/configbot/internal/notify"
	"github.com/nexanet/configbot/internal/proofs"
	"github.com/nexanet/configbot/internal/store"
	"github.com/nexanet/configbot/internal/subscription"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	DefaultAmount   = 200.0
	DefaultMethod   = "M-Pesa Pochi la Biashara"
	defaultApproved = "Approved by admin"
	defaultRejected = "Rejected by admin"
)

var paymentEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "configbot_payment_events_total",
	Help: "Payment workflow events.",
}, []string{"event"})

// Options configures a Service.
type Options struct {
	OperatorID int64
	Amount     float64
	GrantDays  int
	Method     string
	Number     string
	Name       string // account holder shown with the number
	Now        func() time.Time
}

// Service coordinates the store, proof storage and notifications.
type Service struct {
	store    *store.Store
	proofs   proofs.Store
	notifier notify.Notifier
	opts     Options
}

// NewService applies defaults to opts.
func NewService(st *store.Store, proofStore proofs.Store, notifier notify.Notifier, opts Options) (*Service, error) {
	if st == nil || proofStore == nil || notifier == nil {
		return nil, fmt.Errorf("payments: missing dependency: %w", apperr.ErrInvalidInput)
	}
	if opts.Amount <= 0 {
		opts.Amount = DefaultAmount
	}
	if opts.GrantDays <= 0 {
		opts.GrantDays = subscription.DefaultGrantDays
	}
	if strings.TrimSpace(opts.Method) == "" {
		opts.Method = DefaultMethod
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: st, proofs: proofStore, notifier: notifier, opts: opts}, nil
}

// SubmitRequest carries a user's proof of payment.
type SubmitRequest struct {
	UserID      int64
	Proof       io.Reader
	ContentType string
}

// Submit stores the proof, records a pending payment, marks the user pending and
// alerts the operator. Alert failures are logged only.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.Payment, error) {
	if req.Proof == nil {
		return nil, fmt.Errorf("payments: missing proof: %w", apperr.ErrInvalidInput)
	}
	user, err := s.store.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	obj, errPut := s.proofs.Put(ctx, req.UserID, req.Proof, req.ContentType)
	if errPut != nil {
		return nil, errPut
	}
	meta, _ := json.Marshal(models.ProofMeta{ContentType: obj.ContentType, Size: obj.Size, Backend: s.proofs.Backend()})

	p := &models.Payment{
		UserID:       req.UserID,
		Amount:       s.opts.Amount,
		PaymentDate:  s.opts.Now().UTC(),
		PaymentProof: obj.Ref,
		ProofMeta:    datatypes.JSON(meta),
	}
	if errCreate := s.store.CreatePayment(ctx, p); errCreate != nil {
		return nil, errCreate
	}
	paymentEvents.WithLabelValues("submitted").Inc()
	log.WithFields(log.Fields{"payment_id": p.PaymentID, "user_id": p.UserID}).Info("payment submitted")

	s.alertOperator(ctx, p, user.DisplayName())
	return p, nil
}

// Decision is the result of a review action.
type Decision struct {
	Payment *models.Payment
	User    *models.User
}

// Approve transitions a pending payment to approved and extends the owner's
// subscription in the same transaction, then notifies the owner.
func (s *Service) Approve(ctx context.Context, paymentID uint64, note string) (*Decision, error) {
	if strings.TrimSpace(note) == "" {
		note = defaultApproved
	}
	now := s.opts.Now()
	var owner *models.User
	p, err := s.store.TransitionPayment(ctx, paymentID, models.PaymentStatusApproved, note, now,
		func(tx *store.Store, p *models.Payment) error {
			u, errGet := tx.GetUser(ctx, p.UserID)
			if errGet != nil {
				return errGet
			}
			subscription.ExtendOnApproval(u, s.opts.GrantDays, now)
			if errSave := tx.SaveSubscription(ctx, u); errSave != nil {
				return errSave
			}
			owner = u
			return nil
		})
	if err != nil {
		return nil, err
	}
	paymentEvents.WithLabelValues("approved").Inc()
	log.WithFields(log.Fields{"payment_id": p.PaymentID, "user_id": p.UserID, "expiry": owner.ExpiryDate}).Info("payment approved")

	text := fmt.Sprintf("🎉 PAYMENT APPROVED!\n\n"+
		"Your payment has been approved.\n"+
		"You now have access to all configs!\n\n"+
		"✅ Subscription Details:\n"+
		"• Status: Active\n"+
		"• Expiry: %s\n"+
		"• Downloads: %d\n\n"+
		"Click 'Get Configs' to start downloading. 🚀",
		format.Date(owner.ExpiryDate), owner.TotalDownloads)
	if errSend := s.notifier.SendText(ctx, p.UserID, text, menuButton()); errSend != nil {
		log.WithError(errSend).WithField("user_id", p.UserID).Warn("payments: approval notice failed")
	}
	return &Decision{Payment: p, User: owner}, nil
}

// Reject transitions a pending payment to rejected, marks the owner rejected and
// notifies them.
func (s *Service) Reject(ctx context.Context, paymentID uint64, note string) (*Decision, error) {
	if strings.TrimSpace(note) == "" {
		note = defaultRejected
	}
	var owner *models.User
	p, err := s.store.TransitionPayment(ctx, paymentID, models.PaymentStatusRejected, note, s.opts.Now(),
		func(tx *store.Store, p *models.Payment) error {
			if errSet := tx.SetPaymentStatus(ctx, p.UserID, models.PaymentStatusRejected); errSet != nil {
				return errSet
			}
			u, errGet := tx.GetUser(ctx, p.UserID)
			owner = u
			return errGet
		})
	if err != nil {
		return nil, err
	}
	paymentEvents.WithLabelValues("rejected").Inc()
	log.WithFields(log.Fields{"payment_id": p.PaymentID, "user_id": p.UserID}).Info("payment rejected")

	text := "❌ PAYMENT REJECTED\n\n" +
		"Your payment proof was rejected.\n" +
		"Possible reasons:\n" +
		"• Unclear screenshot\n" +
		"• Incorrect amount\n" +
		"• Invalid transaction\n\n" +
		"Please submit a new payment with clear proof."
	if errSend := s.notifier.SendText(ctx, p.UserID, text, menuButton()); errSend != nil {
		log.WithError(errSend).WithField("user_id", p.UserID).Warn("payments: rejection notice failed")
	}
	return &Decision{Payment: p, User: owner}, nil
}

// Pending returns the review queue, oldest first.
func (s *Service) Pending(ctx context.Context) ([]store.PendingPayment, error) {
	return s.store.PendingPayments(ctx)
}

// Review is one payment with what the operator needs to decide on it.
type Review struct {
	Payment        *models.Payment
	Username       string
	ProofAvailable bool
}

// Review loads a payment, its owner's handle and whether the proof blob still exists.
func (s *Service) Review(ctx context.Context, paymentID uint64) (*Review, error) {
	p, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	name := (&models.User{UserID: p.UserID}).DisplayName()
	if u, errUser := s.store.GetUser(ctx, p.UserID); errUser == nil {
		name = u.DisplayName()
	}
	return &Review{Payment: p, Username: name, ProofAvailable: s.proofExists(ctx, p.PaymentProof)}, nil
}

// Caption renders the review card.
func (r *Review) Caption() string {
	return fmt.Sprintf("📋 PAYMENT REVIEW\n\n"+
		"Payment ID: %d\n"+
		"User: @%s\n"+
		"User ID: %d\n"+
		"Amount: KES %.0f\n"+
		"Date: %s\n"+
		"Status: %s",
		r.Payment.PaymentID, r.Username, r.Payment.UserID, r.Payment.Amount,
		format.Date(&r.Payment.PaymentDate), strings.ToUpper(string(r.Payment.Status)))
}

// ProofAttachment reads a payment's stored proof into memory for delivery. The
// content type comes from the metadata recorded at submission.
func (s *Service) ProofAttachment(ctx context.Context, p *models.Payment) (notify.Attachment, error) {
	ref := p.PaymentProof
	rc, err := s.proofs.Open(ctx, ref)
	if err != nil {
		return notify.Attachment{}, err
	}
	defer func() { _ = rc.Close() }()
	data, errRead := io.ReadAll(io.LimitReader(rc, proofs.MaxProofSize+1))
	if errRead != nil {
		return notify.Attachment{}, fmt.Errorf("payments: read proof: %v: %w", errRead, apperr.ErrIO)
	}
	var meta models.ProofMeta
	if len(p.ProofMeta) > 0 {
		if errMeta := json.Unmarshal(p.ProofMeta, &meta); errMeta != nil {
			log.WithError(errMeta).WithField("payment_id", p.PaymentID).Warn("payments: unreadable proof metadata")
		}
	}
	return notify.Attachment{Name: ref, ContentType: meta.ContentType, Data: data}, nil
}

// DecisionButtons are the approve/reject actions for a payment.
func DecisionButtons(paymentID uint64) []notify.Button {
	return []notify.Button{
		{Text: "✅ Approve", Action: fmt.Sprintf("approve_%d", paymentID)},
		{Text: "❌ Reject", Action: fmt.Sprintf("reject_%d", paymentID)},
	}
}

func (s *Service) alertOperator(ctx context.Context, p *models.Payment, username string) {
	if s.opts.OperatorID == 0 {
		return
	}
	caption := fmt.Sprintf("🆕 NEW PAYMENT FOR APPROVAL\n\n"+
		"User: @%s\n"+
		"User ID: %d\n"+
		"Amount: KES %.0f\n"+
		"Date: %s\n"+
		"Payment ID: %d",
		username, p.UserID, p.Amount, format.Date(&p.PaymentDate), p.PaymentID)

	var errSend error
	if photo, errProof := s.ProofAttachment(ctx, p); errProof == nil {
		errSend = s.notifier.SendPhoto(ctx, s.opts.OperatorID, photo, caption, DecisionButtons(p.PaymentID))
	} else {
		errSend = s.notifier.SendText(ctx, s.opts.OperatorID, caption+"\n\n⚠️ Proof file not found", DecisionButtons(p.PaymentID))
	}
	if errSend != nil {
		log.WithError(errSend).WithField("payment_id", p.PaymentID).Warn("payments: operator alert failed")
	}
}

func (s *Service) proofExists(ctx context.Context, ref string) bool {
	if ref == "" {
		return false
	}
	ok, err := s.proofs.Exists(ctx, ref)
	if err != nil {
		log.WithError(err).WithField("proof", ref).Warn("payments: proof lookup failed")
		return false
	}
	return ok
}

func menuButton() []notify.Button {
	return []notify.Button{{Text: "🏠 Main Menu", Action: "menu"}}
}
