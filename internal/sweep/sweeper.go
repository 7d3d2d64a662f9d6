// Package sweep runs the periodic maintenance job: expiring users and files and
// purging stale staging artifacts.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nexanet/configbot/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const (
	defaultInterval   = 24 * time.Hour
	defaultTempMaxAge = 24 * time.Hour

	StepExpireUsers = "expire_users"
	StepExpireFiles = "expire_files"
	StepPurgeTemp   = "purge_temp"
)

var (
	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "configbot_sweep_runs_total",
		Help: "Maintenance sweep runs by outcome.",
	}, []string{"status"})

	sweepItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "configbot_sweep_items_total",
		Help: "Rows or files affected by each sweep step.",
	}, []string{"step"})

	sweepStepErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "configbot_sweep_step_errors_total",
		Help: "Sweep step failures.",
	}, []string{"step"})
)

// Options configures a Sweeper.
type Options struct {
	OperatorID int64
	TempDir    string
	TempMaxAge time.Duration
	Interval   time.Duration
	Now        func() time.Time
}

// Sweeper owns the maintenance schedule. Runs never overlap.
type Sweeper struct {
	store *store.Store
	opts  Options
	mu    sync.Mutex
}

// Result reports one run. Step errors are recorded, not returned.
type Result struct {
	Skipped          bool              `json:"skipped,omitempty"`
	ExpiredUsers     int64             `json:"expired_users"`
	DeactivatedFiles int64             `json:"deactivated_files"`
	PurgedTemp       int               `json:"purged_temp"`
	Errors           map[string]string `json:"errors,omitempty"`
}

// New constructs a Sweeper with defaults applied.
func New(st *store.Store, opts Options) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.TempMaxAge <= 0 {
		opts.TempMaxAge = defaultTempMaxAge
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sweeper{store: st, opts: opts}
}

// Start runs once immediately, then on every interval until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	go s.run(ctx)
	log.Infof("maintenance sweep started (interval=%s)", s.opts.Interval)
}

func (s *Sweeper) run(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes the three steps independently. A run that finds another in
// progress is skipped.
func (s *Sweeper) RunOnce(ctx context.Context) Result {
	if !s.mu.TryLock() {
		log.Info("maintenance sweep: previous run still in progress, skipping")
		sweepRuns.WithLabelValues("skipped").Inc()
		return Result{Skipped: true}
	}
	defer s.mu.Unlock()

	now := s.opts.Now()
	var res Result
	record := func(step string, n int64, err error) {
		entry := log.WithField("step", step)
		if err != nil {
			if res.Errors == nil {
				res.Errors = make(map[string]string)
			}
			res.Errors[step] = err.Error()
			sweepStepErrors.WithLabelValues(step).Inc()
			entry.WithError(err).Error("maintenance sweep: step failed")
			return
		}
		sweepItems.WithLabelValues(step).Add(float64(n))
		entry.WithField("count", n).Info("maintenance sweep: step done")
	}

	users, errUsers := s.expireUsers(ctx, now)
	res.ExpiredUsers = users
	record(StepExpireUsers, users, errUsers)

	files, errFiles := s.expireFiles(ctx, now)
	res.DeactivatedFiles = files
	record(StepExpireFiles, files, errFiles)

	purged, errPurge := PurgeStale(s.opts.TempDir, now.Add(-s.opts.TempMaxAge))
	res.PurgedTemp = purged
	record(StepPurgeTemp, int64(purged), errPurge)

	if len(res.Errors) > 0 {
		sweepRuns.WithLabelValues("partial").Inc()
	} else {
		sweepRuns.WithLabelValues("ok").Inc()
	}
	return res
}

func (s *Sweeper) expireUsers(ctx context.Context, now time.Time) (n int64, err error) {
	defer recoverStep(&err)
	return s.store.DeleteExpiredUsers(ctx, now, s.opts.OperatorID)
}

func (s *Sweeper) expireFiles(ctx context.Context, now time.Time) (n int64, err error) {
	defer recoverStep(&err)
	return s.store.DeactivateExpiredFiles(ctx, now)
}

func recoverStep(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic: %v", r)
	}
}

// PurgeStale removes regular files in dir last modified before cutoff. A missing
// directory is empty. Individual removal failures are joined into the error while
// the rest of the directory is still processed.
func PurgeStale(dir string, cutoff time.Time) (int, error) {
	if dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}
	var (
		removed int
		errs    []error
	)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, errInfo := entry.Info()
		if errInfo != nil {
			if !errors.Is(errInfo, os.ErrNotExist) {
				errs = append(errs, errInfo)
			}
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if errRemove := os.Remove(filepath.Join(dir, entry.Name())); errRemove != nil {
			if !errors.Is(errRemove, os.ErrNotExist) {
				errs = append(errs, errRemove)
			}
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
