// Package core provides the scheduler implementation
package core

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// SchedulerConfig sets the periods of the three background activities.
type SchedulerConfig struct {
	// SyncEvery is the disk-sync tick period.
	SyncEvery time.Duration
	// AuditEvery is the health-audit tick period.
	AuditEvery time.Duration
	// KeepWarmEvery is the self-ping period; zero disables the ping.
	KeepWarmEvery time.Duration
	// KeepWarmURL is the liveness probe target, normally our own /health.
	KeepWarmURL string
}

// Scheduler runs the periodic background activities: flushing dirty pool
// state to disk, auditing every pool for a deficit, and keeping the host
// process warm. All ticks are non-blocking with respect to request handling.
type Scheduler struct {
	cron  *cron.Cron
	reg   *Registry
	store *FileStore
	repl  *Replenisher
	cfg   SchedulerConfig

	client  *http.Client
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler; Start registers and runs the ticks.
func NewScheduler(reg *Registry, store *FileStore, repl *Replenisher, cfg SchedulerConfig) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		reg:    reg,
		store:  store,
		repl:   repl,
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Start registers the periodic ticks and starts the cron runner.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(every(s.cfg.SyncEvery), s.syncTick); err != nil {
		return fmt.Errorf("schedule disk sync: %w", err)
	}
	if _, err := s.cron.AddFunc(every(s.cfg.AuditEvery), s.auditTick); err != nil {
		return fmt.Errorf("schedule health audit: %w", err)
	}
	if s.cfg.KeepWarmEvery > 0 && s.cfg.KeepWarmURL != "" {
		if _, err := s.cron.AddFunc(every(s.cfg.KeepWarmEvery), s.keepWarmTick); err != nil {
			return fmt.Errorf("schedule keep-warm: %w", err)
		}
	}

	s.cron.Start()
	log.Info().
		Dur("sync_every", s.cfg.SyncEvery).
		Dur("audit_every", s.cfg.AuditEvery).
		Dur("keep_warm_every", s.cfg.KeepWarmEvery).
		Msg("Scheduler started")
	return nil
}

// Stop halts the cron runner and waits for running ticks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	log.Info().Msg("Scheduler stopped")
}

// syncTick flushes dirty pool state. Persistence failures never crash the
// process; dirty state stays set so the next tick retries.
func (s *Scheduler) syncTick() {
	if err := FlushRegistry(s.reg, s.store); err != nil {
		log.Error().Err(err).Msg("Periodic snapshot flush failed")
	}
}

// auditTick is the self-healing backstop: any pool under target and not
// already replenishing gets an asynchronous run, so pools converge to target
// even when an instant trigger was dropped or failed.
func (s *Scheduler) auditTick() {
	for _, tier := range s.reg.Tiers() {
		if s.reg.Deficit(tier) == 0 || s.reg.Replenishing(tier) {
			continue
		}
		tier := tier
		go func() {
			if _, err := s.repl.Run(context.Background(), tier); err != nil {
				log.Error().Err(err).Str("tier", tier).Msg("Audit replenishment failed")
			}
		}()
	}
}

// keepWarmTick probes our own health endpoint so an idle host does not
// suspend the process. Failures are logged and ignored, never fatal.
func (s *Scheduler) keepWarmTick() {
	resp, err := s.client.Get(s.cfg.KeepWarmURL)
	if err != nil {
		log.Warn().Err(err).Str("url", s.cfg.KeepWarmURL).Msg("Keep-warm ping failed")
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	log.Debug().Int("status", resp.StatusCode).Msg("Keep-warm ping")
}

func every(d time.Duration) string {
	return "@every " + d.String()
}
