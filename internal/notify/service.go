// Package notify pushes enrollment outcomes to the operator's Telegram chat.
//
// Registration windows tend to open at unsociable hours; the REPL may be
// unattended when a loop finally succeeds. The pipeline is deliberately
// best-effort: a queue, one worker, a rate limiter, drop on overflow. It
// never blocks a retry loop.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	logx "siriusbot/pkg/logx"
)

var ErrDisabled = errors.New("notify: disabled")

type Config struct {
	Enabled    bool
	Token      string
	ChatID     int64
	RatePerSec int
	QueueSize  int
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter

	queue     chan string
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}

func New(cfg Config, log logx.Logger) *Service {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled && strings.TrimSpace(s.cfg.Token) != "" && s.cfg.ChatID != 0
}

// Start connects to Telegram and launches the sender worker.
// A failed connect downgrades the service to disabled instead of failing the
// whole app; enrollment must not depend on Telegram reachability.
func (s *Service) Start(ctx context.Context) {
	if !s.Enabled() {
		return
	}

	s.mu.Lock()
	if s.queue != nil {
		s.mu.Unlock()
		return
	}

	bot, err := tele.NewBot(tele.Settings{Token: strings.TrimSpace(s.cfg.Token)})
	if err != nil {
		s.cfg.Enabled = false
		s.mu.Unlock()
		s.log.Warn("telegram connect failed; notifications disabled", logx.Err(err))
		return
	}
	s.bot = bot
	s.queue = make(chan string, s.cfg.QueueSize)
	rctx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	queue := s.queue
	s.mu.Unlock()

	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		s.worker(rctx, queue)
	}()
	s.log.Info("notifier started")
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.runCancel
	s.runCancel = nil
	s.queue = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("notifier stop timed out", logx.Err(ctx.Err()))
	}
}

// Push enqueues a message. Never blocks: on a full queue the message is
// dropped and counted against nothing but a warning.
func (s *Service) Push(text string) error {
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()

	if queue == nil {
		return ErrDisabled
	}
	select {
	case queue <- text:
		return nil
	default:
		s.log.Warn("notification dropped (queue full)")
		return nil
	}
}

func (s *Service) worker(ctx context.Context, queue chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-queue:
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			s.mu.Lock()
			bot := s.bot
			chatID := s.cfg.ChatID
			s.mu.Unlock()
			if bot == nil {
				continue
			}
			if _, err := bot.Send(tele.ChatID(chatID), text, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
				s.log.Warn("telegram send failed", logx.Err(err))
			}
		}
	}
}

// Success renders the standard acceptance message.
func Success(event, login string, attempts int, at time.Time) string {
	return fmt.Sprintf("OK: %s enrolled (%s, attempt %d, %s)", event, login, attempts, at.Format("15:04:05"))
}

// Abandoned renders the gave-up / shutdown message.
func Abandoned(event, login string, attempts int) string {
	return fmt.Sprintf("WARN: %s abandoned after %d attempts (%s)", event, attempts, login)
}
