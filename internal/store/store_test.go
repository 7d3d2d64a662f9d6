package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nexanet/configbot/internal/apperr"
	"github.com/nexanet/configbot/internal/db"
	"github.com/nexanet/configbot/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "store-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn, nil); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return New(conn)
}

var baseTime = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func addFile(t *testing.T, s *Store, name, category string, upload time.Time, active bool) *models.StoredFile {
	t.Helper()
	f := &models.StoredFile{
		Filename:         name,
		Category:         category,
		OriginalFilename: name + ".hc",
		FileSize:         42,
		UploadDate:       upload,
		ExpiryDate:       upload.Add(30 * 24 * time.Hour),
		IsActive:         true,
	}
	if err := s.CreateFile(context.Background(), f); err != nil {
		t.Fatalf("create file %s: %v", name, err)
	}
	if !active {
		if err := s.db.Model(&models.StoredFile{}).Where("config_id = ?", f.ConfigID).Update("is_active", false).Error; err != nil {
			t.Fatalf("deactivate %s: %v", name, err)
		}
	}
	return f
}

func TestEnsureUser_CreatesOnceAndRefreshesHandle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.EnsureUser(ctx, 1001, "alice", baseTime)
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	if u.PaymentStatus != models.PaymentStatusNone {
		t.Fatalf("expected status=none, got %q", u.PaymentStatus)
	}
	if !u.JoinDate.Equal(baseTime) {
		t.Fatalf("expected join date %v, got %v", baseTime, u.JoinDate)
	}

	u, err = s.EnsureUser(ctx, 1001, "alice2", baseTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("ensure user again: %v", err)
	}
	if u.Username != "alice2" {
		t.Fatalf("expected refreshed handle, got %q", u.Username)
	}
	if !u.JoinDate.Equal(baseTime) {
		t.Fatalf("expected join date unchanged, got %v", u.JoinDate)
	}

	u, err = s.EnsureUser(ctx, 1001, "", baseTime.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ensure user without handle: %v", err)
	}
	if u.Username != "alice2" {
		t.Fatalf("expected handle kept, got %q", u.Username)
	}

	if _, errGet := s.GetUser(ctx, 9999); !errors.Is(errGet, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errGet)
	}
}

func TestListUsers_FiltersAndPages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i, name := range []string{"alpha", "bravo", "Alpine", "charlie"} {
		if _, err := s.EnsureUser(ctx, int64(100+i), name, baseTime.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("ensure user: %v", err)
		}
	}

	rows, total, err := s.ListUsers(ctx, ListUsersOptions{Limit: 2})
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if total != 4 || len(rows) != 2 {
		t.Fatalf("expected total=4 rows=2, got total=%d rows=%d", total, len(rows))
	}
	if rows[0].Username != "charlie" {
		t.Fatalf("expected newest first, got %q", rows[0].Username)
	}

	rows, total, err = s.ListUsers(ctx, ListUsersOptions{Query: "alp"})
	if err != nil {
		t.Fatalf("search users: %v", err)
	}
	if total != 2 || len(rows) != 2 {
		t.Fatalf("expected 2 matches, got total=%d rows=%d", total, len(rows))
	}
}

func TestListActiveByCategory_OrderingAndFiltering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := addFile(t, s, "older", "Safaricom", baseTime, true)
	newer := addFile(t, s, "newer", "Safaricom", baseTime.Add(time.Hour), true)
	addFile(t, s, "off", "Safaricom", baseTime.Add(2*time.Hour), false)
	addFile(t, s, "other", "Airtel", baseTime, true)

	rows, err := s.ListActiveByCategory(ctx, "Safaricom", baseTime.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ConfigID != newer.ConfigID || rows[1].ConfigID != older.ConfigID {
		t.Fatalf("expected newest first, got %d then %d", rows[0].ConfigID, rows[1].ConfigID)
	}

	// Past expiry but not yet swept.
	rows, err = s.ListActiveByCategory(ctx, "Safaricom", baseTime.Add(30*24*time.Hour+30*time.Minute))
	if err != nil {
		t.Fatalf("list after expiry: %v", err)
	}
	if len(rows) != 1 || rows[0].ConfigID != newer.ConfigID {
		t.Fatalf("expected only the unexpired file, got %+v", rows)
	}

	all, err := s.ListActive(ctx, baseTime.Add(24*time.Hour), 2)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected limit=2, got %d", len(all))
	}
}

func TestDeactivateExpiredFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := addFile(t, s, "cfg", "Telkom", baseTime, true)

	n, err := s.DeactivateExpiredFiles(ctx, baseTime.Add(24*time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("expected nothing deactivated, got n=%d err=%v", n, err)
	}
	n, err = s.DeactivateExpiredFiles(ctx, baseTime.Add(31*24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expected 1 deactivated, got n=%d err=%v", n, err)
	}
	got, err := s.GetFile(ctx, f.ConfigID)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if got.IsActive {
		t.Fatalf("expected file inactive")
	}
}

func TestRecordDownload_UpdatesCountersAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.EnsureUser(ctx, 5, "bob", baseTime); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	f := addFile(t, s, "cfg", "Airtel", baseTime, true)

	if err := s.RecordDownload(ctx, 5, f.ConfigID, baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("record download: %v", err)
	}
	if err := s.RecordDownload(ctx, 5, f.ConfigID+100, baseTime); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing file, got %v", err)
	}

	u, _ := s.GetUser(ctx, 5)
	got, _ := s.GetFile(ctx, f.ConfigID)
	if u.TotalDownloads != 1 || got.TotalDownloads != 1 {
		t.Fatalf("expected counters=1, got user=%d file=%d", u.TotalDownloads, got.TotalDownloads)
	}
	records, err := s.DownloadsByUser(ctx, 5, 0)
	if err != nil {
		t.Fatalf("downloads by user: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(records))
	}
}

func TestDeleteFile_RemovesDownloads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.EnsureUser(ctx, 5, "bob", baseTime); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	f := addFile(t, s, "cfg", "Other", baseTime, true)
	if err := s.RecordDownload(ctx, 5, f.ConfigID, baseTime); err != nil {
		t.Fatalf("record download: %v", err)
	}

	removed, err := s.DeleteFile(ctx, f.ConfigID)
	if err != nil {
		t.Fatalf("delete file: %v", err)
	}
	if removed.Filename != "cfg" {
		t.Fatalf("expected removed row returned, got %q", removed.Filename)
	}
	if _, errGet := s.GetFile(ctx, f.ConfigID); !errors.Is(errGet, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", errGet)
	}
	if _, errDel := s.DeleteFile(ctx, f.ConfigID); !errors.Is(errDel, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", errDel)
	}
}

func TestTransitionPayment_OnlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.EnsureUser(ctx, 42, "carol", baseTime); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	p := &models.Payment{UserID: 42, Amount: 200, PaymentDate: baseTime, PaymentProof: "proof-1"}
	if err := s.CreatePayment(ctx, p); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	u, _ := s.GetUser(ctx, 42)
	if u.PaymentStatus != models.PaymentStatusPending {
		t.Fatalf("expected user pending, got %q", u.PaymentStatus)
	}

	applied := 0
	out, err := s.TransitionPayment(ctx, p.PaymentID, models.PaymentStatusApproved, "ok", baseTime.Add(time.Hour),
		func(tx *Store, got *models.Payment) error {
			applied++
			return tx.SetPaymentStatus(ctx, got.UserID, models.PaymentStatusApproved)
		})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if out.Status != models.PaymentStatusApproved || out.ProcessedDate == nil {
		t.Fatalf("expected approved with processed date, got %+v", out)
	}

	_, err = s.TransitionPayment(ctx, p.PaymentID, models.PaymentStatusRejected, "", baseTime.Add(2*time.Hour),
		func(*Store, *models.Payment) error {
			applied++
			return nil
		})
	if !errors.Is(err, apperr.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
	if applied != 1 {
		t.Fatalf("expected apply to run once, got %d", applied)
	}

	if _, errMissing := s.TransitionPayment(ctx, 9999, models.PaymentStatusApproved, "", baseTime, nil); !errors.Is(errMissing, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errMissing)
	}
}

func TestTransitionPayment_ApplyFailureRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.EnsureUser(ctx, 42, "carol", baseTime); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	p := &models.Payment{UserID: 42, Amount: 200, PaymentDate: baseTime}
	if err := s.CreatePayment(ctx, p); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	boom := errors.New("boom")
	if _, err := s.TransitionPayment(ctx, p.PaymentID, models.PaymentStatusApproved, "", baseTime,
		func(*Store, *models.Payment) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected apply error, got %v", err)
	}
	got, err := s.GetPayment(ctx, p.PaymentID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if got.Status != models.PaymentStatusPending {
		t.Fatalf("expected payment still pending, got %q", got.Status)
	}
}

func TestPendingPayments_OldestFirstWithNames(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []int64{1, 2} {
		name := ""
		if id == 1 {
			name = "dave"
		}
		if _, err := s.EnsureUser(ctx, id, name, baseTime); err != nil {
			t.Fatalf("ensure user: %v", err)
		}
	}
	late := &models.Payment{UserID: 1, Amount: 200, PaymentDate: baseTime.Add(time.Hour)}
	early := &models.Payment{UserID: 2, Amount: 200, PaymentDate: baseTime}
	for _, p := range []*models.Payment{late, early} {
		if err := s.CreatePayment(ctx, p); err != nil {
			t.Fatalf("create payment: %v", err)
		}
	}

	rows, err := s.PendingPayments(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(rows))
	}
	if rows[0].PaymentID != early.PaymentID {
		t.Fatalf("expected oldest first")
	}
	if rows[0].Username != "User_2" || rows[1].Username != "dave" {
		t.Fatalf("unexpected names %q %q", rows[0].Username, rows[1].Username)
	}

	if err := s.CreatePayment(ctx, &models.Payment{UserID: 77, PaymentDate: baseTime}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestDeleteExpiredUsers_SparesOperatorAndPerpetual(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	past := baseTime.Add(-time.Hour)
	future := baseTime.Add(time.Hour)

	seed := []struct {
		id     int64
		status models.PaymentStatus
		expiry *time.Time
	}{
		{1, models.PaymentStatusApproved, &past},
		{2, models.PaymentStatusApproved, &future},
		{3, models.PaymentStatusApproved, nil},
		{4, models.PaymentStatusNone, &past},
		{99, models.PaymentStatusApproved, &past},
	}
	for _, row := range seed {
		if _, err := s.EnsureUser(ctx, row.id, "", baseTime.Add(-48*time.Hour)); err != nil {
			t.Fatalf("ensure user: %v", err)
		}
		if err := s.SaveSubscription(ctx, &models.User{UserID: row.id, PaymentStatus: row.status, ExpiryDate: row.expiry}); err != nil {
			t.Fatalf("save subscription: %v", err)
		}
	}
	kept := &models.Payment{UserID: 1, Amount: 200, PaymentDate: past, PaymentProof: "proof-1"}
	if err := s.CreatePayment(ctx, kept); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	// CreatePayment flips the user to pending; restore approved.
	if err := s.SetPaymentStatus(ctx, 1, models.PaymentStatusApproved); err != nil {
		t.Fatalf("set status: %v", err)
	}

	n, err := s.DeleteExpiredUsers(ctx, baseTime, 99)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}
	if _, errGet := s.GetUser(ctx, 1); !errors.Is(errGet, apperr.ErrNotFound) {
		t.Fatalf("expected user 1 deleted, got %v", errGet)
	}
	for _, id := range []int64{2, 3, 4, 99} {
		if _, errGet := s.GetUser(ctx, id); errGet != nil {
			t.Fatalf("expected user %d kept, got %v", id, errGet)
		}
	}
	got, err := s.GetPayment(ctx, kept.PaymentID)
	if err != nil {
		t.Fatalf("expected payment kept after user removal, got %v", err)
	}
	if got.UserID != 1 || got.PaymentProof != "proof-1" {
		t.Fatalf("unexpected payment after sweep %+v", got)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	future := baseTime.Add(time.Hour)
	if _, err := s.EnsureUser(ctx, 1, "a", baseTime); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	if _, err := s.EnsureUser(ctx, 2, "b", baseTime); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	if _, err := s.EnsureUser(ctx, 3, "c", baseTime); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	if err := s.SaveSubscription(ctx, &models.User{UserID: 1, PaymentStatus: models.PaymentStatusApproved, ExpiryDate: &future}); err != nil {
		t.Fatalf("save subscription: %v", err)
	}
	if err := s.SaveSubscription(ctx, &models.User{UserID: 3, PaymentStatus: models.PaymentStatusApproved}); err != nil {
		t.Fatalf("save subscription: %v", err)
	}
	if err := s.CreatePayment(ctx, &models.Payment{UserID: 2, PaymentDate: baseTime}); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	f := addFile(t, s, "cfg", "Other", baseTime, true)
	addFile(t, s, "off", "Other", baseTime, false)
	if err := s.RecordDownload(ctx, 1, f.ConfigID, baseTime.Add(-24*time.Hour)); err != nil {
		t.Fatalf("record download: %v", err)
	}
	if err := s.RecordDownload(ctx, 1, f.ConfigID, baseTime); err != nil {
		t.Fatalf("record download: %v", err)
	}

	st, err := s.Stats(ctx, baseTime)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := Stats{TotalUsers: 3, ActiveUsers: 2, TotalConfigs: 1, TotalDownloads: 2, TodayDownloads: 1, PendingPayments: 1}
	if st != want {
		t.Fatalf("expected %+v, got %+v", want, st)
	}
}
