// Package bot turns chat updates into replies. It owns the menu structure, the
// per-user flow state and the admin gate; the chat platform transport lives elsewhere.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nexanet/configbot/internal/apperr"
	"github.com/nexanet/configbot/internal/configs"
	"github.com/nexanet/configbot/internal/models"
	"github.com/nexanet/configbot/internal/notify"
	"github.com/nexanet/configbot/internal/payments"
	"github.com/nexanet/configbot/internal/session"
	"github.com/nexanet/configbot/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const (
	commandStart  = "start"
	commandStatus = "status"
	commandCancel = "cancel"
	commandAdmin  = "admin"
	commandHelp   = "help"

	actionMenu           = "menu"
	actionHelp           = "help"
	actionMyStatus       = "my_status"
	actionCategorySelect = "category_select"
	actionMakePayment    = "make_payment"
	actionAdmin          = "admin"
	actionAdminStats     = "admin_stats"
	actionAdminUsers     = "admin_users"
	actionAdminPayments  = "admin_payments"
	actionAdminUpload    = "admin_upload"
	actionAdminDelete    = "admin_delete_config"
	actionAdminBroadcast = "admin_broadcast"
	actionAdminExpire    = "admin_expire_user"

	prefixCategory       = "category_"
	prefixConfigsPage    = "configs_page_"
	prefixDownload       = "download_"
	prefixUsersPage      = "users_page_"
	prefixPaymentsPage   = "payments_page_"
	prefixReview         = "review_"
	prefixApprove        = "approve_"
	prefixReject         = "reject_"
	prefixUploadCategory = "upload_category_"
	prefixDeleteConfig   = "delete_config_"
)

var updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "configbot_bot_updates_total",
	Help: "Chat updates handled by kind and outcome.",
}, []string{"kind", "outcome"})

// Options configures a Dispatcher.
type Options struct {
	OperatorID int64
	Channel    string // membership channel handle shown to users
	Now        func() time.Time
}

// Dispatcher routes updates to the services.
type Dispatcher struct {
	store    *store.Store
	configs  *configs.Service
	payments *payments.Service
	sessions *session.Manager
	notifier notify.Notifier
	gate     notify.MembershipGate
	opts     Options
}

// New wires a Dispatcher.
func New(
	st *store.Store,
	configSvc *configs.Service,
	paymentSvc *payments.Service,
	sessions *session.Manager,
	notifier notify.Notifier,
	gate notify.MembershipGate,
	opts Options,
) (*Dispatcher, error) {
	if st == nil || configSvc == nil || paymentSvc == nil || sessions == nil || notifier == nil || gate == nil {
		return nil, fmt.Errorf("bot: missing dependency: %w", apperr.ErrInvalidInput)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Channel == "" {
		opts.Channel = "our official channel"
	}
	return &Dispatcher{
		store:    st,
		configs:  configSvc,
		payments: paymentSvc,
		sessions: sessions,
		notifier: notifier,
		gate:     gate,
		opts:     opts,
	}, nil
}

// Handle processes one update. Every update registers or refreshes the sender first.
// Errors never escape; they become a short user-facing reply.
func (d *Dispatcher) Handle(ctx context.Context, u Update) []Reply {
	kind := updateKind(u)
	if u.UserID == 0 {
		updatesTotal.WithLabelValues(kind, "rejected").Inc()
		return []Reply{text(apperr.UserMessage(apperr.ErrInvalidInput))}
	}
	user, err := d.store.EnsureUser(ctx, u.UserID, u.Username, d.opts.Now())
	if err != nil {
		return d.fail(kind, u, err)
	}

	var replies []Reply
	switch kind {
	case "command":
		replies, err = d.command(ctx, user, strings.ToLower(strings.TrimPrefix(u.Command, "/")))
	case "action":
		replies, err = d.action(ctx, user, u.Action)
	default:
		replies, err = d.message(ctx, user, u)
	}
	if err != nil {
		return d.fail(kind, u, err)
	}
	updatesTotal.WithLabelValues(kind, "ok").Inc()
	return replies
}

func updateKind(u Update) string {
	switch {
	case u.Command != "":
		return "command"
	case u.Action != "":
		return "action"
	default:
		return "message"
	}
}

func (d *Dispatcher) fail(kind string, u Update, err error) []Reply {
	outcome := "rejected"
	if !isExpected(err) {
		outcome = "error"
		log.WithError(err).WithFields(log.Fields{"user_id": u.UserID, "kind": kind}).Error("bot: update failed")
	}
	updatesTotal.WithLabelValues(kind, outcome).Inc()
	return []Reply{text(apperr.UserMessage(err), backToMenu())}
}

func isExpected(err error) bool {
	for _, target := range []error{
		apperr.ErrUnauthorized, apperr.ErrNotFound, apperr.ErrInvalidInput, apperr.ErrAlreadyProcessed,
		apperr.ErrMembershipRequired, apperr.ErrPaymentRequired, apperr.ErrSubscriptionExpired,
		apperr.ErrFileUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) isAdmin(u *models.User) bool {
	return u != nil && (u.IsAdmin || (d.opts.OperatorID != 0 && u.UserID == d.opts.OperatorID))
}

func (d *Dispatcher) requireAdmin(u *models.User) error {
	if !d.isAdmin(u) {
		return fmt.Errorf("bot: user %d: %w", u.UserID, apperr.ErrUnauthorized)
	}
	return nil
}

func (d *Dispatcher) command(ctx context.Context, u *models.User, cmd string) ([]Reply, error) {
	switch cmd {
	case commandStart:
		return d.welcome(), nil
	case commandHelp:
		return d.help(), nil
	case commandStatus:
		return d.status(ctx, u)
	case commandCancel:
		return d.cancel(ctx, u), nil
	case commandAdmin:
		if err := d.requireAdmin(u); err != nil {
			return nil, err
		}
		return d.adminPanel(), nil
	default:
		return []Reply{text("❓ Unknown command. Use /start to see the menu.")}, nil
	}
}

func (d *Dispatcher) action(ctx context.Context, u *models.User, action string) ([]Reply, error) {
	switch action {
	case actionMenu:
		return []Reply{text("🏠 Main Menu\n\nSelect an option:", mainMenu()...)}, nil
	case actionHelp:
		return d.help(), nil
	case actionMyStatus:
		return d.status(ctx, u)
	case actionCategorySelect:
		return d.categories(ctx, u)
	case actionMakePayment:
		return d.paymentInstructions(ctx, u), nil
	}

	if strings.HasPrefix(action, prefixCategory) {
		return d.configsPage(ctx, u, strings.TrimPrefix(action, prefixCategory), 0)
	}
	if rest, ok := strings.CutPrefix(action, prefixConfigsPage); ok {
		idx, category, found := strings.Cut(rest, "_")
		index, err := strconv.Atoi(idx)
		if !found || err != nil {
			return nil, fmt.Errorf("bot: configs page %q: %w", action, apperr.ErrInvalidInput)
		}
		return d.configsPage(ctx, u, category, index)
	}
	if rest, ok := strings.CutPrefix(action, prefixDownload); ok {
		id, err := parseID(rest)
		if err != nil {
			return nil, err
		}
		return d.download(ctx, u, id)
	}

	if !strings.HasPrefix(action, actionAdmin) && !isAdminPrefix(action) {
		return []Reply{text("❓ Unknown action.", backToMenu())}, nil
	}
	if err := d.requireAdmin(u); err != nil {
		return nil, err
	}
	return d.adminAction(ctx, u, action)
}

func isAdminPrefix(action string) bool {
	for _, p := range []string{
		prefixUsersPage, prefixPaymentsPage, prefixReview, prefixApprove, prefixReject,
		prefixUploadCategory, prefixDeleteConfig,
	} {
		if strings.HasPrefix(action, p) {
			return true
		}
	}
	return false
}

// message routes free input by the sender's session state.
func (d *Dispatcher) message(ctx context.Context, u *models.User, up Update) ([]Reply, error) {
	s := d.sessions.Current(ctx, u.UserID)
	switch s.State {
	case session.AwaitingPayment:
		return d.receiveProof(ctx, u, up)
	case session.AwaitingUpload:
		if err := d.requireAdmin(u); err != nil {
			return nil, err
		}
		return d.receiveUpload(ctx, u, s.Category, up)
	case session.AwaitingBroadcast:
		if err := d.requireAdmin(u); err != nil {
			return nil, err
		}
		return d.receiveBroadcast(ctx, u, up)
	case session.AwaitingExpireTarget:
		if err := d.requireAdmin(u); err != nil {
			return nil, err
		}
		return d.receiveExpireTarget(ctx, u, up.Text)
	}
	if up.Photo != nil {
		return []Reply{text("📸 To submit a payment proof, tap 'Make Payment' first.", mainMenu()...)}, nil
	}
	return []Reply{text("Use the menu below:", mainMenu()...)}, nil
}

func (d *Dispatcher) cancel(ctx context.Context, u *models.User) []Reply {
	if prev := d.sessions.Cancel(ctx, u.UserID); prev == session.Idle {
		return []Reply{text("ℹ️ Nothing to cancel.", backToMenu())}
	}
	return []Reply{text("❌ Operation cancelled.", backToMenu())}
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("bot: id %q: %w", raw, apperr.ErrInvalidInput)
	}
	return id, nil
}
