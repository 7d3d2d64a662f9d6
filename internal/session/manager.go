package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const redisBreakerDuration = 30 * time.Second

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// Options configures a Manager. An empty RedisAddr keeps sessions in memory.
type Options struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	TTL           time.Duration
}

// Manager reads and writes sessions through Redis when configured, falling back to
// memory while Redis is unreachable.
type Manager struct {
	opts           Options
	nowFn          func() time.Time
	memory         *MemoryStore
	newRedisClient RedisClientFactory

	mu           sync.Mutex
	redisStore   *RedisStore
	redisClient  *redis.Client
	breakerUntil time.Time
}

// NewManager constructs a Manager with default dependencies when nil.
func NewManager(opts Options, nowFn func() time.Time, newRedisClient RedisClientFactory) *Manager {
	if nowFn == nil {
		nowFn = time.Now
	}
	if newRedisClient == nil {
		newRedisClient = redis.NewClient
	}
	opts.RedisAddr = strings.TrimSpace(opts.RedisAddr)
	if opts.RedisDB < 0 {
		opts.RedisDB = 0
	}
	return &Manager{
		opts:           opts,
		nowFn:          nowFn,
		memory:         NewMemoryStore(),
		newRedisClient: newRedisClient,
	}
}

// Current returns the user's session, Idle when none is stored.
func (m *Manager) Current(ctx context.Context, userID int64) Session {
	now := m.nowFn()
	if store, ok := m.redis(ctx, now); ok {
		s, found, err := store.Get(ctx, userID, now)
		if err == nil {
			if !found {
				return Session{State: Idle}
			}
			return s
		}
		m.tripBreaker(err, now)
	}
	s, found, _ := m.memory.Get(ctx, userID, now)
	if !found {
		return Session{State: Idle}
	}
	return s
}

// Begin moves the user into state, replacing any flow in progress.
func (m *Manager) Begin(ctx context.Context, userID int64, state State, category string) Session {
	now := m.nowFn()
	s := Session{State: state, UpdatedAt: now}
	if state == AwaitingUpload {
		s.Category = category
	}
	if state == Idle {
		m.clear(ctx, userID, now)
		return s
	}
	if store, ok := m.redis(ctx, now); ok {
		errPut := store.Put(ctx, userID, s, m.opts.TTL)
		if errPut == nil {
			return s
		}
		m.tripBreaker(errPut, now)
	}
	_ = m.memory.Put(ctx, userID, s, m.opts.TTL)
	return s
}

// Cancel returns the user to Idle and reports the state that was abandoned.
func (m *Manager) Cancel(ctx context.Context, userID int64) State {
	prev := m.Current(ctx, userID)
	m.clear(ctx, userID, m.nowFn())
	if prev.IsIdle() {
		return Idle
	}
	return prev.State
}

func (m *Manager) clear(ctx context.Context, userID int64, now time.Time) {
	if store, ok := m.redis(ctx, now); ok {
		if err := store.Delete(ctx, userID); err != nil {
			m.tripBreaker(err, now)
		}
	}
	_ = m.memory.Delete(ctx, userID)
}

// Close releases the Redis client, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redisClient == nil {
		return nil
	}
	err := m.redisClient.Close()
	m.redisClient = nil
	m.redisStore = nil
	return err
}

func (m *Manager) redis(ctx context.Context, now time.Time) (*RedisStore, bool) {
	if m.opts.RedisAddr == "" || m.isBreakerActive(now) {
		return nil, false
	}
	store, err := m.ensureRedis(ctx)
	if err != nil {
		m.tripBreaker(err, now)
		return nil, false
	}
	return store, true
}

func (m *Manager) isBreakerActive(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUntil.IsZero() {
		return false
	}
	if now.Before(m.breakerUntil) {
		return true
	}
	m.breakerUntil = time.Time{}
	return false
}

func (m *Manager) tripBreaker(err error, now time.Time) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("session: redis unavailable, falling back to memory")
}

func (m *Manager) ensureRedis(ctx context.Context) (*RedisStore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redisStore != nil {
		return m.redisStore, nil
	}
	if m.opts.RedisAddr == "" {
		return nil, errors.New("session redis: missing address")
	}
	client := m.newRedisClient(&redis.Options{
		Addr:     m.opts.RedisAddr,
		Password: m.opts.RedisPassword,
		DB:       m.opts.RedisDB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.redisClient = client
	m.redisStore = NewRedisStore(client, m.opts.RedisPrefix)
	return m.redisStore, nil
}
