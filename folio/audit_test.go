package folio_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/folio-engine/folio"
	"github.com/warp/folio-engine/folio/store"
)

func newAudit(f *fixture) *folio.NightAudit {
	return folio.NewNightAudit(f.store, folio.NewProjector(f.store, quietLogger()), f.clock, quietLogger())
}

func TestNightAudit_ClosesBusinessDate(t *testing.T) {
	// GIVEN: Two in-house folios with postings on March 12
	// WHEN: March 12 is audited
	// THEN: The day's totals are frozen and both guests count as in house

	f := newFixture(t)
	seedDay(t, f)
	audit := newAudit(f)

	run, err := audit.Run(f.ctx, march(12))
	require.NoError(t, err)
	assert.Equal(t, folio.AuditCompleted, run.Status)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 3, run.Daily.AdvanceCount)
	assertAmount(t, "555", run.Daily.NetRevenue)
	assert.Equal(t, 2, run.InHouse)
	assert.Empty(t, run.Overdue)
	assert.True(t, audit.Done(march(12)))
}

func TestNightAudit_OverdueAtClose(t *testing.T) {
	// GIVEN: Guests planned to leave March 14 and are still in house
	// WHEN: March 13 and March 14 are audited
	// THEN: They are overdue only at the close of March 14

	f := newFixture(t)
	f.checkIn(t, "F100", "R100")
	audit := newAudit(f)

	run, err := audit.Run(f.ctx, march(13))
	require.NoError(t, err)
	assert.Empty(t, run.Overdue)

	run, err = audit.Run(f.ctx, march(14))
	require.NoError(t, err)
	require.Len(t, run.Overdue, 1)
	assert.Equal(t, "F100", run.Overdue[0].FolioNo)
}

func TestNightAudit_IgnoresLaterArrivals(t *testing.T) {
	f := newFixture(t)
	f.checkIn(t, "F100", "R100")

	run, err := newAudit(f).Run(f.ctx, march(9))
	require.NoError(t, err)
	assert.Zero(t, run.InHouse)
}

func TestNightAudit_RejectsBadDates(t *testing.T) {
	f := newFixture(t)
	audit := newAudit(f)

	_, err := audit.Run(f.ctx, today.AddDays(1))
	assert.True(t, folio.IsClientError(err))

	_, err = audit.Run(f.ctx, folio.Date{})
	assert.True(t, folio.IsClientError(err))

	assert.Empty(t, audit.Runs())
}

func TestNightAudit_PendingAndHistory(t *testing.T) {
	f := newFixture(t)
	audit := newAudit(f)

	day, pending := audit.Pending()
	assert.True(t, pending)
	assert.Equal(t, march(14), day)

	_, err := audit.Run(f.ctx, march(13))
	require.NoError(t, err)
	_, err = audit.Run(f.ctx, march(14))
	require.NoError(t, err)
	// Re-auditing replaces the earlier run.
	_, err = audit.Run(f.ctx, march(14))
	require.NoError(t, err)

	_, pending = audit.Pending()
	assert.False(t, pending)

	runs := audit.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, march(14), runs[0].BusinessDate)
	assert.Equal(t, march(13), runs[1].BusinessDate)
}

// brokenStayScan fails every stay listing.
type brokenStayScan struct {
	*store.Memory
}

func (brokenStayScan) ListStays(context.Context, folio.StayFilter) ([]folio.Stay, error) {
	return nil, errors.New("stays table unreadable")
}

func TestNightAudit_FailedStayScanFailsRun(t *testing.T) {
	// GIVEN: A ledger whose day projection reads fine but whose stay scan fails
	// WHEN: March 12 is audited
	// THEN: The run is recorded as failed with a store error and the date stays open

	f := newFixture(t)
	seedDay(t, f)
	broken := brokenStayScan{f.store}
	audit := folio.NewNightAudit(broken, folio.NewProjector(broken, quietLogger()), f.clock, quietLogger())

	run, err := audit.Run(f.ctx, march(12))
	require.Error(t, err)
	assert.True(t, errors.Is(err, folio.ErrStore))
	assert.Equal(t, folio.AuditFailed, run.Status)
	assert.Contains(t, run.Error, "stays table unreadable")
	assert.False(t, audit.Done(march(12)))
}
