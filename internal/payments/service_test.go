package payments

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nexanet/configbot/internal/apperr"
	"github.com/nexanet/configbot/internal/db"
	"github.com/nexanet/configbot/internal/models"
	"github.com/nexanet/configbot/internal/notify"
	"github.com/nexanet/configbot/internal/proofs"
	"github.com/nexanet/configbot/internal/store"
)

type sent struct {
	to    int64
	kind  string
	text  string
	photo bool
}

type captureNotifier struct {
	mu   sync.Mutex
	msgs []sent
}

func (c *captureNotifier) add(m sent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *captureNotifier) SendText(_ context.Context, to int64, text string, _ ...[]notify.Button) error {
	return c.add(sent{to: to, kind: "text", text: text})
}

func (c *captureNotifier) SendPhoto(_ context.Context, to int64, _ notify.Attachment, caption string, _ ...[]notify.Button) error {
	return c.add(sent{to: to, kind: "photo", text: caption, photo: true})
}

func (c *captureNotifier) SendDocument(_ context.Context, to int64, _ notify.Attachment, caption string) error {
	return c.add(sent{to: to, kind: "document", text: caption})
}

const operatorID = 7108127485

type fixture struct {
	svc      *Service
	store    *store.Store
	notifier *captureNotifier
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open("file:" + filepath.Join(dir, "payments-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn, &db.Operator{UserID: operatorID, Username: "admin"}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	proofStore, err := proofs.NewLocalStore(filepath.Join(dir, "proofs"))
	if err != nil {
		t.Fatalf("proof store: %v", err)
	}
	fx := &fixture{
		store:    store.New(conn),
		notifier: &captureNotifier{},
		now:      time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	svc, err := NewService(fx.store, proofStore, fx.notifier, Options{
		OperatorID: operatorID,
		Number:     "0113004884",
		Now:        func() time.Time { return fx.now },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	fx.svc = svc
	return fx
}

func (fx *fixture) submit(t *testing.T, userID int64) *models.Payment {
	t.Helper()
	if _, err := fx.store.EnsureUser(context.Background(), userID, "payer", fx.now); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	p, err := fx.svc.Submit(context.Background(), SubmitRequest{
		UserID: userID, Proof: strings.NewReader("jpeg-bytes"), ContentType: "image/jpeg",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return p
}

func TestSubmit_CreatesPendingAndAlertsOperator(t *testing.T) {
	fx := newFixture(t)
	p := fx.submit(t, 100)

	if p.Status != models.PaymentStatusPending || p.Amount != DefaultAmount {
		t.Fatalf("unexpected payment %+v", p)
	}
	u, _ := fx.store.GetUser(context.Background(), 100)
	if u.PaymentStatus != models.PaymentStatusPending {
		t.Fatalf("expected user pending, got %q", u.PaymentStatus)
	}
	if len(fx.notifier.msgs) != 1 {
		t.Fatalf("expected 1 operator alert, got %d", len(fx.notifier.msgs))
	}
	alert := fx.notifier.msgs[0]
	if alert.to != operatorID || !alert.photo {
		t.Fatalf("expected photo alert to operator, got %+v", alert)
	}
	if !strings.Contains(alert.text, "@payer") {
		t.Fatalf("expected handle in alert, got %q", alert.text)
	}
}

func TestSubmit_UnknownUser(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Submit(context.Background(), SubmitRequest{UserID: 5, Proof: strings.NewReader("x")})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApprove_SubmitApproveSweepScenario(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	p := fx.submit(t, 100)

	fx.now = fx.now.Add(2 * time.Hour)
	d, err := fx.svc.Approve(ctx, p.PaymentID, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	want := fx.now.AddDate(0, 0, 30)
	if d.User.PaymentStatus != models.PaymentStatusApproved || !d.User.ExpiryDate.Equal(want) {
		t.Fatalf("expected approved until %v, got %+v", want, d.User)
	}
	if d.Payment.AdminNote != defaultApproved {
		t.Fatalf("expected default note, got %q", d.Payment.AdminNote)
	}
	stored, _ := fx.store.GetUser(ctx, 100)
	if !stored.ExpiryDate.Equal(want) {
		t.Fatalf("expected persisted expiry=%v, got %v", want, stored.ExpiryDate)
	}

	last := fx.notifier.msgs[len(fx.notifier.msgs)-1]
	if last.to != 100 || !strings.Contains(last.text, "APPROVED") {
		t.Fatalf("expected approval notice to user, got %+v", last)
	}

	n, err := fx.store.DeleteExpiredUsers(ctx, want.Add(24*time.Hour), operatorID)
	if err != nil || n != 1 {
		t.Fatalf("expected sweep to remove user, got n=%d err=%v", n, err)
	}
	kept, err := fx.store.GetPayment(ctx, p.PaymentID)
	if err != nil {
		t.Fatalf("expected payment history kept after sweep, got %v", err)
	}
	if kept.Status != models.PaymentStatusApproved {
		t.Fatalf("expected approved payment kept, got %q", kept.Status)
	}
}

func TestApprove_AdditiveRenewal(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	first := fx.submit(t, 100)
	if _, err := fx.svc.Approve(ctx, first.PaymentID, ""); err != nil {
		t.Fatalf("approve first: %v", err)
	}
	start := fx.now

	fx.now = start.AddDate(0, 0, 20)
	second := fx.submit(t, 100)
	d, err := fx.svc.Approve(ctx, second.PaymentID, "")
	if err != nil {
		t.Fatalf("approve second: %v", err)
	}
	if want := start.AddDate(0, 0, 60); !d.User.ExpiryDate.Equal(want) {
		t.Fatalf("expected expiry=%v, got %v", want, d.User.ExpiryDate)
	}
}

func TestApprove_TerminalIdempotence(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	p := fx.submit(t, 100)
	d, err := fx.svc.Approve(ctx, p.PaymentID, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	expiry := *d.User.ExpiryDate

	fx.now = fx.now.Add(time.Hour)
	if _, err := fx.svc.Approve(ctx, p.PaymentID, ""); !errors.Is(err, apperr.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
	if _, err := fx.svc.Reject(ctx, p.PaymentID, ""); !errors.Is(err, apperr.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed on reject, got %v", err)
	}
	u, _ := fx.store.GetUser(ctx, 100)
	if !u.ExpiryDate.Equal(expiry) || u.PaymentStatus != models.PaymentStatusApproved {
		t.Fatalf("expected subscription untouched, got %+v", u)
	}
	if _, err := fx.svc.Approve(ctx, 4242, ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApprove_ConcurrentDecisionsGrantOnce(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	p := fx.submit(t, 100)

	const workers = 8
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = fx.svc.Approve(ctx, p.PaymentID, "")
		}(i)
	}
	close(start)
	wg.Wait()

	successes := 0
	for i, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, apperr.ErrAlreadyProcessed):
		default:
			t.Fatalf("worker %d: expected nil or ErrAlreadyProcessed, got %v", i, err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one approval, got %d", successes)
	}
	u, err := fx.store.GetUser(ctx, 100)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if want := fx.now.AddDate(0, 0, 30); u.ExpiryDate == nil || !u.ExpiryDate.Equal(want) {
		t.Fatalf("expected a single grant until %v, got %v", want, u.ExpiryDate)
	}
}

func TestReject_MarksUserRejected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	p := fx.submit(t, 100)

	d, err := fx.svc.Reject(ctx, p.PaymentID, "blurry")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if d.Payment.Status != models.PaymentStatusRejected || d.Payment.AdminNote != "blurry" || d.Payment.ProcessedDate == nil {
		t.Fatalf("unexpected payment %+v", d.Payment)
	}
	if d.User.PaymentStatus != models.PaymentStatusRejected {
		t.Fatalf("expected user rejected, got %q", d.User.PaymentStatus)
	}
	if _, err := fx.svc.Approve(ctx, p.PaymentID, ""); !errors.Is(err, apperr.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestPendingAndReview(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a := fx.submit(t, 100)
	fx.now = fx.now.Add(time.Minute)
	b := fx.submit(t, 101)

	pending, err := fx.svc.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 || pending[0].PaymentID != a.PaymentID || pending[1].PaymentID != b.PaymentID {
		t.Fatalf("expected FIFO queue, got %+v", pending)
	}

	r, err := fx.svc.Review(ctx, a.PaymentID)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if !r.ProofAvailable || r.Username != "payer" {
		t.Fatalf("unexpected review %+v", r)
	}
	if !strings.Contains(r.Caption(), "Status: PENDING") {
		t.Fatalf("expected status in caption, got %q", r.Caption())
	}

	att, err := fx.svc.ProofAttachment(ctx, r.Payment)
	if err != nil {
		t.Fatalf("proof attachment: %v", err)
	}
	if att.ContentType != "image/jpeg" || string(att.Data) != "jpeg-bytes" {
		t.Fatalf("expected stored jpeg proof, got %q %q", att.ContentType, att.Data)
	}
}

func TestInstructions(t *testing.T) {
	fx := newFixture(t)
	in := fx.svc.Instructions()
	if in.Amount != "KES 200" || in.Duration != "30 days" || in.Method != DefaultMethod {
		t.Fatalf("unexpected instructions %+v", in)
	}
	if !strings.Contains(in.Text(), "0113004884") {
		t.Fatalf("expected number in text")
	}
}
