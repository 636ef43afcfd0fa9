// Package refresh periodically re-runs an advisory check while registrations
// are armed, e.g. re-reading the timeline to warn when an armed event filled
// up before its window even opened. The job is display/log only; it never
// touches the retry loops.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "siriusbot/pkg/logx"
)

type Config struct {
	Enabled bool
	Every   time.Duration
}

// Job is the advisory check. It must honor ctx and return quickly on cancel.
type Job func(ctx context.Context) error

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	job Job

	c       *cron.Cron
	runCtx  context.Context
	running bool
}

func New(cfg Config, log logx.Logger) *Service {
	if cfg.Every <= 0 {
		cfg.Every = 10 * time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// SetJob installs the check to run. Must be called before Start.
func (s *Service) SetJob(job Job) {
	s.mu.Lock()
	s.job = job
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || !s.cfg.Enabled || s.job == nil {
		return
	}
	s.runCtx = ctx
	s.c = cron.New()
	if err := s.scheduleLocked(); err != nil {
		s.log.Warn("refresh schedule failed", logx.Err(err))
		s.c = nil
		return
	}
	s.c.Start()
	s.running = true
	s.log.Info("refresh started", logx.Duration("every", s.cfg.Every))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	stopped := s.c.Stop()
	s.c = nil
	s.running = false
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		s.log.Warn("refresh stop timed out", logx.Err(ctx.Err()))
	}
	s.log.Info("refresh stopped")
}

// Apply reconfigures the interval at runtime. A running service is
// rescheduled; enabling/disabling is handled by the caller via Start/Stop.
func (s *Service) Apply(cfg Config) {
	if cfg.Every <= 0 {
		cfg.Every = 10 * time.Minute
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := cfg.Every != s.cfg.Every
	s.cfg = cfg
	if !s.running || !changed {
		return
	}
	<-s.c.Stop().Done()
	s.c = cron.New()
	if err := s.scheduleLocked(); err != nil {
		s.log.Warn("refresh reschedule failed", logx.Err(err))
		s.c = nil
		s.running = false
		return
	}
	s.c.Start()
	s.log.Info("refresh rescheduled", logx.Duration("every", s.cfg.Every))
}

func (s *Service) scheduleLocked() error {
	spec := fmt.Sprintf("@every %s", s.cfg.Every.String())
	ctx := s.runCtx
	job := s.job
	_, err := s.c.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		if err := job(ctx); err != nil {
			s.log.Warn("refresh check failed", logx.Err(err))
		}
	})
	return err
}
