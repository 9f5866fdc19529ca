/*
scheduler.go - Periodic expiration sweep

PURPOSE:
  Runs the engine's expiration sweep on a fixed interval so overdue
  rewards leave the ACTIVE pool without manual intervention. The sweep
  itself is idempotent, so overlapping triggers (scheduler + the admin
  endpoint) are harmless.

USAGE:
  scheduler := NewSweepScheduler(engine, time.Hour, log)
  scheduler.Start()
  defer scheduler.Stop()
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/cashback-engine/cashback"
)

// SweepScheduler triggers the expiration sweep on an interval.
type SweepScheduler struct {
	Engine   *cashback.Engine
	Interval time.Duration

	log    *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewSweepScheduler(engine *cashback.Engine, interval time.Duration, log *zap.Logger) *SweepScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SweepScheduler{
		Engine:   engine,
		Interval: interval,
		log:      log,
	}
}

// Start begins the scheduler. The first sweep runs immediately. Starting
// an already-running scheduler is a no-op; a stopped scheduler can be
// started again.
func (s *SweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.log.Info("sweep scheduler started", zap.Duration("interval", s.Interval))
}

// Stop halts the scheduler and waits for an in-flight sweep to finish.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
		close(s.stop)
		s.wg.Wait()
		s.log.Info("sweep scheduler stopped")
	}
}

func (s *SweepScheduler) run(ticker *time.Ticker, stop chan struct{}) {
	defer s.wg.Done()

	s.sweep()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-stop:
			return
		}
	}
}

func (s *SweepScheduler) sweep() {
	expired, err := s.Engine.ExpireOldRewards(context.Background(), time.Now())
	if err != nil {
		s.log.Error("expiration sweep failed", zap.Error(err))
		return
	}
	if expired > 0 {
		s.log.Info("expiration sweep", zap.Int("expired", expired))
	}
}
