package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexanet/configbot/internal/bot"
	"github.com/nexanet/configbot/internal/cipher"
	"github.com/nexanet/configbot/internal/config"
	"github.com/nexanet/configbot/internal/configs"
	"github.com/nexanet/configbot/internal/db"
	"github.com/nexanet/configbot/internal/http/api/admin"
	"github.com/nexanet/configbot/internal/http/api/front"
	"github.com/nexanet/configbot/internal/notify"
	"github.com/nexanet/configbot/internal/payments"
	"github.com/nexanet/configbot/internal/proofs"
	"github.com/nexanet/configbot/internal/security"
	"github.com/nexanet/configbot/internal/session"
	"github.com/nexanet/configbot/internal/store"
	"github.com/nexanet/configbot/internal/sweep"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// Services holds every wired component of a running instance.
type Services struct {
	Conn       *gorm.DB
	Store      *store.Store
	Notifier   notify.Notifier
	Sessions   *session.Manager
	Configs    *configs.Service
	Payments   *payments.Service
	Sweeper    *sweep.Sweeper
	Dispatcher *bot.Dispatcher
}

// Migrate opens the database and runs migrations. Only the DSN is required.
func Migrate(ctx context.Context, configPath string) error {
	dsn, err := config.LoadDatabaseDSN(config.ResolveConfigPath(configPath))
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	defer closeDB(conn)
	if errMigrate := db.Migrate(conn.WithContext(ctx), nil); errMigrate != nil {
		return errMigrate
	}
	log.WithField("database", describeDSN(dsn)).Info("migrations applied")
	return nil
}

// Build opens and migrates the database, seeds the operator and wires the services.
func Build(cfg config.Config) (*Services, error) {
	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if errMigrate := db.Migrate(conn, &db.Operator{UserID: cfg.Bot.OperatorID, Username: cfg.Bot.OperatorUsername}); errMigrate != nil {
		closeDB(conn)
		return nil, errMigrate
	}
	svc, errWire := wire(conn, cfg)
	if errWire != nil {
		closeDB(conn)
		return nil, errWire
	}
	log.WithField("database", describeDSN(cfg.Database.DSN)).Info("database ready")
	return svc, nil
}

func wire(conn *gorm.DB, cfg config.Config) (*Services, error) {
	st := store.New(conn)

	codec, err := newCodec(cfg.Encryption)
	if err != nil {
		return nil, err
	}
	log.WithField("legacy_format", codec.Legacy()).Debug("encryption codec ready")
	proofStore, err := newProofStore(cfg.Storage)
	if err != nil {
		return nil, err
	}
	notifier := newNotifier(cfg.Bot)
	gate := newGate(cfg.Bot)

	sessionOpts := session.Options{
		RedisPassword: cfg.Session.RedisPassword,
		RedisDB:       cfg.Session.RedisDB,
		RedisPrefix:   cfg.Session.RedisPrefix,
		TTL:           cfg.Session.TTL,
	}
	if cfg.Session.Backend == "redis" {
		sessionOpts.RedisAddr = cfg.Session.RedisAddr
	}
	sessions := session.NewManager(sessionOpts, nil, nil)

	configSvc, err := configs.NewService(st, codec, gate, configs.Options{
		ConfigDir:    cfg.Storage.ConfigDir,
		TempDir:      cfg.Storage.TempDir,
		ValidityDays: cfg.Files.ValidityDays,
	})
	if err != nil {
		return nil, err
	}
	paymentSvc, err := payments.NewService(st, proofStore, notifier, payments.Options{
		OperatorID: cfg.Bot.OperatorID,
		Amount:     cfg.Payment.Amount,
		GrantDays:  cfg.Payment.GrantDays,
		Method:     cfg.Payment.Method,
		Number:     cfg.Payment.Number,
		Name:       cfg.Payment.Name,
	})
	if err != nil {
		return nil, err
	}
	sweeper := sweep.New(st, sweep.Options{
		OperatorID: cfg.Bot.OperatorID,
		TempDir:    configSvc.TempDir(),
		TempMaxAge: cfg.Sweep.TempMaxAge,
		Interval:   cfg.Sweep.Interval,
	})
	dispatcher, err := bot.New(st, configSvc, paymentSvc, sessions, notifier, gate, bot.Options{
		OperatorID: cfg.Bot.OperatorID,
		Channel:    cfg.Bot.MembershipChannel,
	})
	if err != nil {
		return nil, err
	}

	return &Services{
		Conn:       conn,
		Store:      st,
		Notifier:   notifier,
		Sessions:   sessions,
		Configs:    configSvc,
		Payments:   paymentSvc,
		Sweeper:    sweeper,
		Dispatcher: dispatcher,
	}, nil
}

// Close releases the session backend and the database pool.
func (s *Services) Close() {
	if s == nil {
		return
	}
	if s.Sessions != nil {
		if errClose := s.Sessions.Close(); errClose != nil {
			log.WithError(errClose).Warn("close session store")
		}
	}
	closeDB(s.Conn)
}

func newCodec(cfg config.EncryptionConfig) (*cipher.Codec, error) {
	if cfg.Legacy {
		log.Warn("encryption: legacy fixed-salt format enabled")
		return cipher.NewLegacy(cfg.Passphrase)
	}
	return cipher.New(cfg.Passphrase)
}

func newProofStore(cfg config.StorageConfig) (proofs.Store, error) {
	if cfg.Proofs.Backend == proofs.BackendS3 {
		return proofs.NewS3Store(proofs.S3Config{
			Bucket:          cfg.Proofs.Bucket,
			Region:          cfg.Proofs.Region,
			Endpoint:        cfg.Proofs.Endpoint,
			AccessKeyID:     cfg.Proofs.AccessKeyID,
			SecretAccessKey: cfg.Proofs.SecretAccessKey,
		})
	}
	return proofs.NewLocalStore(cfg.ProofDir)
}

func newNotifier(cfg config.BotConfig) notify.Notifier {
	if url := strings.TrimSpace(cfg.NotifyURL); url != "" {
		return notify.NewWebhookNotifier(url, cfg.Token, nil)
	}
	log.Warn("bot.notify-url not set, outbound messages are only logged")
	return notify.LogNotifier{}
}

func newGate(cfg config.BotConfig) notify.MembershipGate {
	if cfg.MembershipDisabled {
		log.Warn("bot.membership-disabled set, membership checks always pass")
		return notify.StaticGate{AllowAll: true}
	}
	if url := strings.TrimSpace(cfg.MembershipURL); url != "" {
		return notify.NewWebhookGate(url, cfg.MembershipChannel, cfg.Token, nil)
	}
	log.Error("bot.membership-url not set, every membership check fails")
	return notify.StaticGate{}
}

// NewRouter builds the HTTP engine serving the admin API and the bot update endpoint.
func NewRouter(svc *Services, cfg config.Config) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	admin.RegisterAdminRoutes(engine, admin.Deps{
		Store:      svc.Store,
		Configs:    svc.Configs,
		Payments:   svc.Payments,
		Sweeper:    svc.Sweeper,
		Notifier:   svc.Notifier,
		OperatorID: cfg.Bot.OperatorID,
		JWT:        cfg.HTTP.JWT,
	})
	front.RegisterFrontRoutes(engine, svc.Dispatcher, cfg.Bot.Token)
	return engine
}

// RunServer starts the sweeper and serves HTTP until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.Config) error {
	svc, err := Build(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	svc.Sweeper.Start(ctx)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           NewRouter(svc, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("configbot listening on %s", server.Addr)
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
		close(errCh)
	}()

	select {
	case errServe := <-errCh:
		return errServe
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("shutdown: %w", errShutdown)
	}
	log.Info("configbot stopped")
	return nil
}

// RunSweep performs a single maintenance sweep and returns its result.
func RunSweep(ctx context.Context, cfg config.Config) (sweep.Result, error) {
	svc, err := Build(cfg)
	if err != nil {
		return sweep.Result{}, err
	}
	defer svc.Close()
	return svc.Sweeper.RunOnce(ctx), nil
}

// IssueOperatorToken mints an admin API token for the configured operator.
func IssueOperatorToken(cfg config.Config, now time.Time) (string, error) {
	return security.IssueAdminToken(cfg.HTTP.JWT.Secret, cfg.Bot.OperatorID, cfg.HTTP.JWT.Expiry, now)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("request failed")
			return
		}
		entry.Debug("request")
	}
}

func closeDB(conn *gorm.DB) {
	if conn == nil {
		return
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return
	}
	_ = sqlDB.Close()
}
