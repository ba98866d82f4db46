/*
scheduler.go - Automated night audit scheduler

PURPOSE:
  Periodically checks whether yesterday's business date has been audited
  and, if not, runs the night audit for it.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Audits only the pending date (yesterday); earlier gaps are closed
    manually via POST /api/audits
  - Skips dates that already have a completed run

CONFIGURATION:
  - CheckInterval: How often to check (AUDIT_INTERVAL, default: 1 hour)
  - Enabled: Whether scheduler is active (AUDIT_ENABLED, default: true)

USAGE:
  scheduler := NewAuditScheduler(handler.Audit, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - folio/audit.go: NightAudit
  - audits.go: manual trigger and run history endpoints
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/folio-engine/folio"
)

// AuditScheduler closes business dates on a timer.
type AuditScheduler struct {
	Audit         *folio.NightAudit
	Logger        *slog.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewAuditScheduler(audit *folio.NightAudit, logger *slog.Logger) *AuditScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditScheduler{
		Audit:         audit,
		Logger:        logger,
		CheckInterval: time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (s *AuditScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("audit scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run()

	s.Logger.Info("audit scheduler started", slog.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight audit.
func (s *AuditScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Logger.Info("audit scheduler stopped")
}

func (s *AuditScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.checkAndProcess()

	for {
		select {
		case <-s.ticker.C:
			s.checkAndProcess()
		case <-s.stop:
			return
		}
	}
}

// checkAndProcess audits the pending business date, if any. It reports
// whether an audit ran.
func (s *AuditScheduler) checkAndProcess() bool {
	day, pending := s.Audit.Pending()
	if !pending {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// failures are logged and recorded by the audit; the next tick retries
	_, _ = s.Audit.Run(ctx, day)
	return true
}
