/*
overdue.go - Automated overdue sweep scheduler

PURPOSE:
  Periodically moves past-due, unsettled invoices to overdue. The state
  machine only validates that the transition is legal; deciding WHEN an
  invoice becomes overdue lives here.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Each tick calls InvoiceService.SweepOverdue with the current time
  - A manual trigger exists at POST /api/admin/overdue-sweep

USAGE:
  sweeper := NewOverdueSweeper(handler.Invoices, logger)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - billing/invoice_service.go: SweepOverdue
  - handlers.go: RunOverdueSweep (manual trigger)
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cadenza/academy-billing/billing"
)

// OverdueSweeper runs the time-based overdue transition on a schedule.
type OverdueSweeper struct {
	Invoices      *billing.InvoiceService
	Logger        *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewOverdueSweeper creates a sweeper with a 1 hour default interval.
func NewOverdueSweeper(invoices *billing.InvoiceService, logger *zap.Logger) *OverdueSweeper {
	return &OverdueSweeper{
		Invoices:      invoices,
		Logger:        logger,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the sweeper.
func (s *OverdueSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("overdue sweeper disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)
	go s.run()

	s.Logger.Info("overdue sweeper started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the sweeper and waits for an in-flight sweep to finish.
func (s *OverdueSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.Logger.Info("overdue sweeper stopped")
	}
}

func (s *OverdueSweeper) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.sweep()

	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *OverdueSweeper) sweep() {
	ctx := context.Background()
	moved, err := s.Invoices.SweepOverdue(ctx, time.Now().UTC())
	if err != nil {
		s.Logger.Error("overdue sweep failed", zap.Error(err))
		return
	}
	if moved > 0 {
		s.Logger.Info("overdue sweep completed", zap.Int("marked_overdue", moved))
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (s *OverdueSweeper) RunNow() {
	s.sweep()
}
