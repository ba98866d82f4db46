/*
audit.go - Night audit: closing one business date

PURPOSE:
  A night audit freezes the figures of one business date: the day's
  postings (DailySummary) and the guests still in house past their planned
  departure. Runs are derived from the ledger and kept in process; the
  ledger stays the only source of truth, so a lost run can be re-audited.

RULES:
  - The business date must be set and not after today.
  - Re-auditing a date replaces the earlier run for that date.
  - Overdue at the close of date D means in house with ToDate <= D.

SEE ALSO:
  - report.go: DailySummary
  - api/scheduler.go: runs the audit for yesterday on a timer
*/
package folio

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type AuditStatus string

const (
	AuditCompleted AuditStatus = "completed"
	AuditFailed    AuditStatus = "failed"
)

type AuditRun struct {
	ID           string
	BusinessDate Date
	Status       AuditStatus
	Daily        DailySummary
	InHouse      int
	Overdue      []Stay
	Error        string
	StartedAt    time.Time
	CompletedAt  time.Time
}

type NightAudit struct {
	Store     Store
	Projector *Projector
	Clock     Clock
	Logger    *slog.Logger

	mu   sync.Mutex
	runs map[string]AuditRun // by business date
}

func NewNightAudit(store Store, projector *Projector, clock Clock, logger *slog.Logger) *NightAudit {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NightAudit{
		Store:     store,
		Projector: projector,
		Clock:     clock,
		Logger:    logger,
		runs:      make(map[string]AuditRun),
	}
}

// Run audits day and records the outcome. A failed run is recorded too and
// its error returned.
func (a *NightAudit) Run(ctx context.Context, day Date) (AuditRun, error) {
	if day.IsZero() {
		return AuditRun{}, invalid("business_date", "business date is required")
	}
	if today := Today(a.Clock); day.After(today) {
		return AuditRun{}, &ValidationError{
			Field:    "business_date",
			Message:  "cannot audit a future date",
			Expected: "<= " + today.String(),
			Actual:   day.String(),
		}
	}

	run := AuditRun{
		ID:           uuid.NewString(),
		BusinessDate: day,
		StartedAt:    a.Clock.Now().UTC(),
	}
	err := a.close(ctx, &run)
	run.CompletedAt = a.Clock.Now().UTC()
	if err != nil {
		run.Status = AuditFailed
		run.Error = err.Error()
		a.Logger.Error("night audit failed", slog.String("business_date", day.String()), slog.Any("error", err))
	} else {
		run.Status = AuditCompleted
		a.Logger.Info("night audit completed",
			slog.String("business_date", day.String()),
			slog.String("net_revenue", run.Daily.NetRevenue.String()),
			slog.Int("in_house", run.InHouse),
			slog.Int("overdue", len(run.Overdue)),
		)
	}

	a.mu.Lock()
	a.runs[day.String()] = run
	a.mu.Unlock()
	return run, err
}

func (a *NightAudit) close(ctx context.Context, run *AuditRun) error {
	var (
		daily   DailySummary
		inHouse []Stay
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		daily, err = a.Projector.DailySummary(gctx, run.BusinessDate)
		return err
	})
	g.Go(func() error {
		var err error
		inHouse, err = a.Store.ListStays(gctx, StayFilter{Status: StatusCheckedIn})
		if err != nil {
			return storeErr("list stays", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	run.Daily = daily

	// Stays checked in after the audited date were not in house that night.
	morning := run.BusinessDate.AddDays(1)
	for _, st := range inHouse {
		if st.CheckInDate.After(run.BusinessDate) {
			continue
		}
		run.InHouse++
		if st.IsOverdue(morning) {
			run.Overdue = append(run.Overdue, st)
		}
	}
	return nil
}

// Done reports whether day has a completed run.
func (a *NightAudit) Done(day Date) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	run, ok := a.runs[day.String()]
	return ok && run.Status == AuditCompleted
}

// Runs returns every recorded run, latest business date first.
func (a *NightAudit) Runs() []AuditRun {
	a.mu.Lock()
	out := make([]AuditRun, 0, len(a.runs))
	for _, run := range a.runs {
		out = append(out, run)
	}
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].BusinessDate.After(out[j].BusinessDate)
	})
	return out
}

// Pending returns the business date the next audit should close:
// yesterday, unless it is already done.
func (a *NightAudit) Pending() (Date, bool) {
	yesterday := Today(a.Clock).AddDays(-1)
	return yesterday, !a.Done(yesterday)
}
