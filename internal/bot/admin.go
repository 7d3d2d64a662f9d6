package bot

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nexanet/configbot/internal/apperr"
	"github.com/nexanet/configbot/internal/configs"
	"github.com/nexanet/configbot/internal/format"
	"github.com/nexanet/configbot/internal/models"
	"github.com/nexanet/configbot/internal/notify"
	"github.com/nexanet/configbot/internal/payments"
	"github.com/nexanet/configbot/internal/session"
	"github.com/nexanet/configbot/internal/store"
	"github.com/nexanet/configbot/internal/subscription"
	log "github.com/sirupsen/logrus"
)

func (d *Dispatcher) adminPanel() []Reply {
	return []Reply{text("🛠️ ADMIN PANEL\n\nSelect an option:", adminMenu()...)}
}

func (d *Dispatcher) adminAction(ctx context.Context, u *models.User, action string) ([]Reply, error) {
	switch action {
	case actionAdmin:
		d.sessions.Begin(ctx, u.UserID, session.Idle, "")
		return d.adminPanel(), nil
	case actionAdminStats:
		return d.stats(ctx)
	case actionAdminUsers:
		return d.users(ctx, 0)
	case actionAdminPayments:
		return d.pendingPayments(ctx, 0)
	case actionAdminUpload:
		return []Reply{text("📁 UPLOAD CONFIG\n\nSelect a category for the new config:",
			categoryMenu(prefixUploadCategory, false, backTo("Cancel", actionAdmin))...)}, nil
	case actionAdminDelete:
		return d.deleteList(ctx)
	case actionAdminBroadcast:
		d.sessions.Begin(ctx, u.UserID, session.AwaitingBroadcast, "")
		return []Reply{text("📢 BROADCAST MESSAGE\n\n"+
			"Send the message to broadcast to all users.\n"+
			"You can send text, a photo or a document.\n\n"+
			"Type /cancel to cancel.", backTo("❌ Cancel", actionAdmin))}, nil
	case actionAdminExpire:
		d.sessions.Begin(ctx, u.UserID, session.AwaitingExpireTarget, "")
		return []Reply{text("⏰ EXPIRE USER\n\n"+
			"Please send the User ID to expire immediately.\n"+
			"You can get User ID from View Users.\n\n"+
			"Type /cancel to cancel.", backTo("❌ Cancel", actionAdmin))}, nil
	}

	prefix, arg := splitAction(action)
	switch prefix {
	case prefixUsersPage, prefixPaymentsPage:
		index, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("bot: page %q: %w", action, apperr.ErrInvalidInput)
		}
		if prefix == prefixUsersPage {
			return d.users(ctx, index)
		}
		return d.pendingPayments(ctx, index)
	case prefixUploadCategory:
		if strings.TrimSpace(arg) == "" {
			return nil, fmt.Errorf("bot: empty upload category: %w", apperr.ErrInvalidInput)
		}
		d.sessions.Begin(ctx, u.UserID, session.AwaitingUpload, arg)
		return []Reply{text(fmt.Sprintf("📤 UPLOAD TO %s\n\n"+
			"Send the config file now.\n"+
			"Supported: %s\n\n"+
			"Type /cancel to cancel.", strings.ToUpper(arg), supportedExtensions()),
			backTo("❌ Cancel", actionAdmin))}, nil
	}

	id, err := parseID(arg)
	if err != nil {
		return nil, err
	}
	switch prefix {
	case prefixReview:
		return d.review(ctx, id)
	case prefixApprove:
		return d.approve(ctx, id)
	case prefixReject:
		return d.reject(ctx, id)
	case prefixDeleteConfig:
		return d.deleteConfig(ctx, id)
	}
	return []Reply{text("❓ Unknown action.", backToAdmin())}, nil
}

// splitAction separates a prefixed action from its argument.
func splitAction(action string) (string, string) {
	for _, p := range []string{
		prefixUsersPage, prefixPaymentsPage, prefixReview, prefixApprove, prefixReject,
		prefixUploadCategory, prefixDeleteConfig,
	} {
		if rest, ok := strings.CutPrefix(action, p); ok {
			return p, rest
		}
	}
	return action, ""
}

func (d *Dispatcher) stats(ctx context.Context) ([]Reply, error) {
	now := d.opts.Now()
	st, err := d.store.Stats(ctx, now)
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("📊 SYSTEM STATISTICS\n\n"+
		"👥 Users:\n• Total: %d\n• Active: %d\n\n"+
		"📁 Configs:\n• Total: %d\n\n"+
		"📥 Downloads:\n• Total: %d\n• Today: %d\n\n"+
		"💳 Payments:\n• Pending: %d\n\n"+
		"🕐 Last updated: %s",
		st.TotalUsers, st.ActiveUsers, st.TotalConfigs, st.TotalDownloads, st.TodayDownloads,
		st.PendingPayments, now.Format("15:04:05"))
	return []Reply{text(msg, []notify.Button{button("🔄 Refresh", actionAdminStats), button("⬅️ Back", actionAdmin)})}, nil
}

func (d *Dispatcher) users(ctx context.Context, index int) ([]Reply, error) {
	_, total, err := d.store.ListUsers(ctx, store.ListUsersOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	page := format.Paginate(int(total), usersPerPage, index)
	rows, _, err := d.store.ListUsers(ctx, store.ListUsersOptions{Offset: page.Start, Limit: usersPerPage})
	if err != nil {
		return nil, err
	}

	now := d.opts.Now()
	var b strings.Builder
	fmt.Fprintf(&b, "👥 ALL USERS\n\nTotal users: %d\nPage: %d/%d\n\n", total, page.Index+1, page.Total)
	for i := range rows {
		usr := &rows[i]
		icon := "🔴"
		switch usr.PaymentStatus {
		case models.PaymentStatusApproved:
			icon = "🟢"
		case models.PaymentStatusPending:
			icon = "🟡"
		}
		expires := format.Never
		if usr.ExpiryDate != nil {
			expires = subscription.TimeRemaining(usr, now)
			if expires == subscription.Expired {
				icon = "🔴"
			}
		}
		badge := ""
		if d.isAdmin(usr) {
			badge = " 👑"
		}
		fmt.Fprintf(&b, "%d. %s @%s%s\n   ID: %d | 📥: %d\n   Status: %s | Expires: %s\n\n",
			page.Start+i+1, icon, usr.DisplayName(), badge, usr.UserID, usr.TotalDownloads, usr.PaymentStatus, expires)
	}

	var kb [][]notify.Button
	if nav := pager(prefixUsersPage, page); len(nav) > 0 {
		kb = append(kb, nav)
	}
	kb = append(kb, []notify.Button{button("🔄 Refresh", actionAdminUsers), button("⬅️ Back", actionAdmin)})
	return []Reply{text(strings.TrimRight(b.String(), "\n"), kb...)}, nil
}

func (d *Dispatcher) pendingPayments(ctx context.Context, index int) ([]Reply, error) {
	pending, err := d.payments.Pending(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return []Reply{text("✅ No pending payments.", backToAdmin())}, nil
	}
	page := format.Paginate(len(pending), paymentsPerPage, index)
	var b strings.Builder
	fmt.Fprintf(&b, "💳 PENDING PAYMENTS\n\nTotal pending: %d\nPage: %d/%d\n\n", len(pending), page.Index+1, page.Total)
	var kb [][]notify.Button
	for _, p := range pending[page.Start:page.End] {
		fmt.Fprintf(&b, "#%d @%s (ID: %d)\n   KES %.0f | %s\n\n",
			p.PaymentID, p.Username, p.UserID, p.Amount, format.Date(&p.PaymentDate))
		kb = append(kb, []notify.Button{button(fmt.Sprintf("Review #%d", p.PaymentID), fmt.Sprintf("%s%d", prefixReview, p.PaymentID))})
	}
	if nav := pager(prefixPaymentsPage, page); len(nav) > 0 {
		kb = append(kb, nav)
	}
	kb = append(kb, backToAdmin())
	return []Reply{text(strings.TrimRight(b.String(), "\n"), kb...)}, nil
}

func (d *Dispatcher) review(ctx context.Context, paymentID uint64) ([]Reply, error) {
	r, err := d.payments.Review(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	var kb [][]notify.Button
	if r.Payment.Status == models.PaymentStatusPending {
		kb = append(kb, payments.DecisionButtons(paymentID))
	}
	kb = append(kb, backTo("⬅️ Back to Payments", actionAdminPayments))

	reply := Reply{Text: r.Caption(), Buttons: kb}
	if !r.ProofAvailable {
		reply.Text += "\n\n⚠️ Proof file not found"
		return []Reply{reply}, nil
	}
	photo, errProof := d.payments.ProofAttachment(ctx, r.Payment)
	if errProof != nil {
		log.WithError(errProof).WithField("payment_id", paymentID).Warn("bot: load proof")
		reply.Text += "\n\n⚠️ Proof file not found"
		return []Reply{reply}, nil
	}
	reply.Photo = &photo
	return []Reply{reply}, nil
}

func (d *Dispatcher) approve(ctx context.Context, paymentID uint64) ([]Reply, error) {
	dec, err := d.payments.Approve(ctx, paymentID, "")
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("✅ Payment #%d approved.\n\nUser @%s now has access until %s.",
		paymentID, dec.User.DisplayName(), format.Date(dec.User.ExpiryDate))
	return []Reply{text(msg, backTo("⬅️ Back to Payments", actionAdminPayments))}, nil
}

func (d *Dispatcher) reject(ctx context.Context, paymentID uint64) ([]Reply, error) {
	dec, err := d.payments.Reject(ctx, paymentID, "")
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("❌ Payment #%d rejected.\n\nUser @%s has been notified.", paymentID, dec.User.DisplayName())
	return []Reply{text(msg, backTo("⬅️ Back to Payments", actionAdminPayments))}, nil
}

func (d *Dispatcher) deleteList(ctx context.Context) ([]Reply, error) {
	files, err := d.configs.ListAll(ctx, deleteListLimit)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return []Reply{text("📭 No configs to delete.", backToAdmin())}, nil
	}
	var kb [][]notify.Button
	for _, f := range files {
		label := fmt.Sprintf("🗑️ %s (%s)", format.Truncate(f.OriginalFilename, buttonNameMax), f.Category)
		kb = append(kb, []notify.Button{button(label, fmt.Sprintf("%s%d", prefixDeleteConfig, f.ConfigID))})
	}
	kb = append(kb, backToAdmin())
	return []Reply{text("🗑️ DELETE CONFIG\n\nSelect a config to delete:", kb...)}, nil
}

func (d *Dispatcher) deleteConfig(ctx context.Context, fileID uint64) ([]Reply, error) {
	f, err := d.configs.Delete(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return []Reply{text(fmt.Sprintf("✅ Config deleted: %s", f.OriginalFilename), backToAdmin())}, nil
}

func (d *Dispatcher) receiveUpload(ctx context.Context, u *models.User, category string, up Update) ([]Reply, error) {
	if up.Document == nil || len(up.Document.Data) == 0 {
		return []Reply{text("📄 Please send the config as a document, or /cancel.")}, nil
	}
	f, err := d.configs.Upload(ctx, configs.UploadRequest{
		Category:     category,
		OriginalName: up.Document.Name,
		UploaderID:   u.UserID,
		Body:         bytes.NewReader(up.Document.Data),
	})
	if err != nil {
		return nil, err
	}
	d.sessions.Begin(ctx, u.UserID, session.Idle, "")
	msg := fmt.Sprintf("✅ CONFIG UPLOADED\n\n"+
		"📁 File: %s\n"+
		"🏷️ Category: %s\n"+
		"📊 Size: %s\n"+
		"⏰ Expires: %s",
		f.OriginalFilename, f.Category, format.Bytes(f.FileSize), format.Date(&f.ExpiryDate))
	return []Reply{text(msg, backToAdmin())}, nil
}

func (d *Dispatcher) receiveBroadcast(ctx context.Context, u *models.User, up Update) ([]Reply, error) {
	msg := notify.BroadcastMessage{Text: strings.TrimSpace(up.Text), Photo: up.Photo, Document: up.Document}
	if msg.Text == "" && msg.Photo == nil && msg.Document == nil {
		return []Reply{text("📢 Please send the message to broadcast, or /cancel.")}, nil
	}
	recipients, err := d.store.UserIDs(ctx)
	if err != nil {
		return nil, err
	}
	d.sessions.Begin(ctx, u.UserID, session.Idle, "")
	res := notify.Broadcast(ctx, d.notifier, recipients, msg)
	log.WithFields(log.Fields{"successful": res.Successful, "failed": res.Failed, "total": res.Total}).Info("broadcast complete")
	return []Reply{text(fmt.Sprintf("📢 BROADCAST COMPLETE\n\n✅ Successful: %d\n❌ Failed: %d\n📊 Total: %d",
		res.Successful, res.Failed, res.Total), backToAdmin())}, nil
}

// receiveExpireTarget keeps the flow open on bad input so the admin can retry.
func (d *Dispatcher) receiveExpireTarget(ctx context.Context, u *models.User, raw string) ([]Reply, error) {
	target, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bot: expire target %q: %w", raw, apperr.ErrInvalidInput)
	}
	now := d.opts.Now()
	expired, err := d.store.UpdateUser(ctx, target, func(usr *models.User) error {
		subscription.MarkExpiredImmediately(usr, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.sessions.Begin(ctx, u.UserID, session.Idle, "")
	log.WithFields(log.Fields{"user_id": target, "by": u.UserID}).Info("user expired manually")
	return []Reply{text(fmt.Sprintf("✅ User @%s has been expired.\nThey will lose access immediately.",
		expired.DisplayName()), backToAdmin())}, nil
}
