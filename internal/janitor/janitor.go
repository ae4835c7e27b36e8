// Package janitor prunes stale checkpoints on a cron schedule.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"cairn/internal/checkpoint"
	"cairn/pkg/logger"
)

// ErrDisabled is returned by New when retention is not positive.
var ErrDisabled = errors.New("janitor: retention is not set")

// Config configures a Janitor.
type Config struct {
	// Schedule is a cron expression with 5 or 6 fields or a descriptor
	// such as "@daily".
	Schedule string
	// Retention is the age after which a checkpoint is pruned.
	Retention time.Duration
	// IncludePending also prunes threads waiting on an interrupt.
	IncludePending bool
	// Location for schedule evaluation. Defaults to time.Local.
	Location *time.Location
}

// Janitor runs periodic pruning against a store.
type Janitor struct {
	cron    *cron.Cron
	pruner  checkpoint.Pruner
	cfg     Config
	log     zerolog.Logger
	now     func() time.Time
	entry   cron.EntryID
	running atomic.Bool
	mu      sync.Mutex
	started bool
}

// New creates a janitor for pruner.
func New(pruner checkpoint.Pruner, cfg Config) (*Janitor, error) {
	if cfg.Retention <= 0 {
		return nil, ErrDisabled
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	log := logger.Component("janitor")
	j := &Janitor{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cron.PrintfLogger(&log)),
		),
		pruner: pruner,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
	id, err := j.cron.AddFunc(normalizeSchedule(cfg.Schedule), j.tick)
	if err != nil {
		return nil, fmt.Errorf("janitor: invalid schedule %q: %w", cfg.Schedule, err)
	}
	j.entry = id
	return j, nil
}

// normalizeSchedule adds a seconds field to standard 5-field expressions.
func normalizeSchedule(s string) string {
	if len(strings.Fields(s)) == 5 {
		return "0 " + s
	}
	return s
}

// Start starts the schedule.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return
	}
	j.cron.Start()
	j.started = true
	j.log.Info().Time("next_run", j.NextRun()).Dur("retention", j.cfg.Retention).Msg("janitor started")
}

// Stop stops the schedule and waits for a running prune.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.started {
		j.mu.Unlock()
		return
	}
	j.started = false
	j.mu.Unlock()
	<-j.cron.Stop().Done()
}

// NextRun returns the next scheduled prune.
func (j *Janitor) NextRun() time.Time {
	return j.cron.Entry(j.entry).Next
}

// Run prunes once, immediately.
func (j *Janitor) Run(ctx context.Context) (int, error) {
	if !j.running.CompareAndSwap(false, true) {
		return 0, errors.New("janitor: prune already running")
	}
	defer j.running.Store(false)

	cutoff := j.now().Add(-j.cfg.Retention)
	n, err := j.pruner.Prune(ctx, cutoff, j.cfg.IncludePending)
	if err != nil {
		return n, fmt.Errorf("janitor: prune: %w", err)
	}
	return n, nil
}

func (j *Janitor) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	n, err := j.Run(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("scheduled prune failed")
		return
	}
	j.log.Info().Int("pruned", n).Dur("took", time.Since(start)).Msg("scheduled prune finished")
}
