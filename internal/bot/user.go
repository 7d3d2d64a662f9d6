package bot

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/nexanet/configbot/internal/apperr"
	"github.com/nexanet/configbot/internal/configs"
	"github.com/nexanet/configbot/internal/format"
	"github.com/nexanet/configbot/internal/models"
	"github.com/nexanet/configbot/internal/notify"
	"github.com/nexanet/configbot/internal/payments"
	"github.com/nexanet/configbot/internal/session"
	"github.com/nexanet/configbot/internal/subscription"
	log "github.com/sirupsen/logrus"
)

func (d *Dispatcher) welcome() []Reply {
	ins := d.payments.Instructions()
	msg := "🚀 Welcome to NEXA NET VPN\n\n" +
		"🔐 Premium VPN Configurations\n" +
		"📱 Supported: " + supportedExtensions() + "\n\n" +
		"📋 Requirements:\n" +
		"1. Join " + d.opts.Channel + "\n" +
		"2. Make payment (" + ins.Amount + " for " + ins.Duration + ")\n" +
		"3. Download unlimited configs\n\n" +
		"💳 Payment Method:\n" +
		ins.Method + "\n" +
		"Number: " + ins.Number + "\n\n" +
		"Select an option below:"
	return []Reply{text(msg, mainMenu()...)}
}

func (d *Dispatcher) help() []Reply {
	ins := d.payments.Instructions()
	msg := "❓ HELP & SUPPORT\n\n" +
		"How to use this bot:\n" +
		"1. Join " + d.opts.Channel + " (mandatory)\n" +
		"2. Make payment via 'Make Payment'\n" +
		"3. Wait for admin approval\n" +
		"4. Download configs from 'Get Configs'\n\n" +
		"Payment Issues:\n" +
		"• Ensure screenshot shows transaction details\n" +
		"• Include your username in payment reference\n" +
		"• Wait up to 24 hours for approval\n\n" +
		"Config Issues:\n" +
		"• Supported: " + supportedExtensions() + "\n" +
		"• Configs auto-expire after " + ins.Duration + "\n" +
		"• Unlimited downloads for active users"
	return []Reply{text(msg, backTo("⬅️ Back", actionMenu))}
}

func supportedExtensions() string {
	exts := make([]string, len(configs.AllowedExtensions))
	for i, e := range configs.AllowedExtensions {
		exts[i] = "." + e
	}
	return strings.Join(exts, ", ")
}

func (d *Dispatcher) isMember(ctx context.Context, userID int64) bool {
	ok, err := d.gate.IsMember(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("bot: membership check failed")
		return false
	}
	return ok
}

func (d *Dispatcher) status(ctx context.Context, u *models.User) ([]Reply, error) {
	now := d.opts.Now()
	member := d.isMember(ctx, u.UserID)
	channel := "❌ Not Joined"
	if member {
		channel = "✅ Joined"
	}

	remaining := subscription.TimeRemaining(u, now)
	var sub string
	switch u.PaymentStatus {
	case models.PaymentStatusApproved:
		switch {
		case u.ExpiryDate == nil:
			sub = "🟢 Active"
		case remaining == subscription.Expired:
			sub = "🔴 Expired"
		default:
			sub = "🟢 Active (" + remaining + " remaining)"
		}
	case models.PaymentStatusPending:
		sub = "🟡 Payment Pending"
	default:
		sub = "🔴 No Subscription"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 YOUR STATUS\n\n"+
		"👤 User: @%s\n"+
		"🆔 ID: %d\n"+
		"📅 Joined: %s\n\n"+
		"📢 Channel: %s\n"+
		"💳 Subscription: %s\n"+
		"📅 Expires: %s\n"+
		"📥 Downloads: %d\n\n",
		u.DisplayName(), u.UserID, format.Date(&u.JoinDate), channel, sub, format.Date(u.ExpiryDate), u.TotalDownloads)

	switch {
	case !member:
		b.WriteString("⚠️ Action Required:\nJoin " + d.opts.Channel + " to access configs")
	case u.PaymentStatus != models.PaymentStatusApproved:
		b.WriteString("⚠️ Action Required:\nMake payment to download configs")
	case !subscription.IsEligible(u, now):
		b.WriteString("⚠️ Action Required:\nRenew your subscription")
	default:
		b.WriteString("✅ Ready to download configs!")
	}
	return []Reply{text(b.String(), backTo("⬅️ Back", actionMenu))}, nil
}

func (d *Dispatcher) categories(ctx context.Context, u *models.User) ([]Reply, error) {
	if err := d.configs.CheckAccess(ctx, u.UserID); err != nil {
		return nil, err
	}
	return []Reply{text("📂 SELECT CATEGORY\n\nChoose your network:",
		categoryMenu(prefixCategory, true, backTo("⬅️ Back", actionMenu))...)}, nil
}

func (d *Dispatcher) configsPage(ctx context.Context, u *models.User, category string, index int) ([]Reply, error) {
	if err := d.configs.CheckAccess(ctx, u.UserID); err != nil {
		return nil, err
	}
	files, err := d.configs.ListByCategory(ctx, category)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return []Reply{text(fmt.Sprintf("📭 No configs available in %s.\n\nCheck back later!", category),
			backTo("⬅️ Back to Categories", actionCategorySelect))}, nil
	}
	page := format.Paginate(len(files), configsPerPage, index)
	msg := fmt.Sprintf("📁 %s CONFIGS\n\nAvailable: %d\nPage: %d/%d\n\nSelect a config to download:",
		strings.ToUpper(category), len(files), page.Index+1, page.Total)
	return []Reply{text(msg, configsKeyboard(category, files, page)...)}, nil
}

func (d *Dispatcher) download(ctx context.Context, u *models.User, fileID uint64) ([]Reply, error) {
	var doc *notify.Attachment
	f, err := d.configs.FetchForDownload(ctx, fileID, u.UserID,
		func(_ context.Context, f *models.StoredFile, plainPath string) error {
			data, errRead := os.ReadFile(plainPath)
			if errRead != nil {
				return fmt.Errorf("read decrypted config: %v: %w", errRead, apperr.ErrIO)
			}
			doc = &notify.Attachment{Name: f.OriginalFilename, Data: data}
			return nil
		})
	if err != nil {
		return nil, err
	}
	caption := fmt.Sprintf("📥 %s\n\n"+
		"📁 Category: %s\n"+
		"📊 Size: %s\n"+
		"⏰ Expires: %s\n"+
		"📥 Downloads: %d",
		f.OriginalFilename, f.Category, format.Bytes(f.FileSize), format.Date(&f.ExpiryDate), f.TotalDownloads)
	return []Reply{{Text: caption, Document: doc, Buttons: [][]notify.Button{backToMenu()}}}, nil
}

func (d *Dispatcher) paymentInstructions(ctx context.Context, u *models.User) []Reply {
	d.sessions.Begin(ctx, u.UserID, session.AwaitingPayment, "")
	return []Reply{text(d.payments.Instructions().Text(), backTo("⬅️ Back to Menu", actionMenu))}
}

func (d *Dispatcher) receiveProof(ctx context.Context, u *models.User, up Update) ([]Reply, error) {
	proof := up.Photo
	if proof == nil {
		proof = up.Document
	}
	if proof == nil || len(proof.Data) == 0 {
		return []Reply{text("📸 Please send a screenshot of your payment confirmation, or /cancel.")}, nil
	}
	p, err := d.payments.Submit(ctx, payments.SubmitRequest{
		UserID:      u.UserID,
		Proof:       bytes.NewReader(proof.Data),
		ContentType: proof.ContentType,
	})
	if err != nil {
		return nil, err
	}
	d.sessions.Begin(ctx, u.UserID, session.Idle, "")
	msg := fmt.Sprintf("✅ PAYMENT SUBMITTED\n\n"+
		"Payment ID: %d\n"+
		"Amount: KES %.0f\n\n"+
		"Your payment is now pending admin approval.\n"+
		"You will be notified once it is reviewed.", p.PaymentID, p.Amount)
	return []Reply{text(msg, backToMenu())}, nil
}
