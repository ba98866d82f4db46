package folio_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/folio-engine/folio"
	"github.com/warp/folio-engine/folio/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// today is the fixed business date every test runs on.
var today = folio.NewDate(2025, time.March, 15)

func march(day int) folio.Date { return folio.NewDate(2025, time.March, day) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	ctx    context.Context
	store  *store.Memory
	clock  folio.FixedClock
	ledger *folio.Ledger
	engine *folio.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMemory()
	clock := folio.FixedClock{At: today.Time.Add(10 * time.Hour)}
	return &fixture{
		ctx:    context.Background(),
		store:  s,
		clock:  clock,
		ledger: folio.NewLedger(s, clock, quietLogger()),
		engine: folio.NewEngine(s),
	}
}

// checkIn registers an in-house stay: reservation R<n> opened as folio F<n>
// on March 10, planned departure March 14.
func (f *fixture) checkIn(t *testing.T, folioNo, reservationNo string) folio.Stay {
	t.Helper()
	stay, err := f.store.SaveStay(f.ctx, folio.Stay{
		FolioNo:       folioNo,
		ReservationNo: reservationNo,
		GuestName:     "Asha Rao",
		RoomNo:        "204",
		FromDate:      march(10),
		ToDate:        march(14),
		CheckInDate:   march(10),
	})
	require.NoError(t, err)
	return stay
}

// book registers a reservation without a folio.
func (f *fixture) book(t *testing.T, reservationNo string, from folio.Date) folio.Stay {
	t.Helper()
	stay, err := f.store.SaveStay(f.ctx, folio.Stay{
		ReservationNo: reservationNo,
		GuestName:     "Kofi Mensah",
		RoomNo:        "310",
		FromDate:      from,
		ToDate:        from.AddDays(3),
	})
	require.NoError(t, err)
	return stay
}

func (f *fixture) advance(t *testing.T, folioNo, amount string, day folio.Date) folio.Advance {
	t.Helper()
	a, err := f.ledger.CreateAdvance(f.ctx, advance(folioNo, amount, day))
	require.NoError(t, err)
	return a
}

func (f *fixture) charge(t *testing.T, folioNo, amount string, day folio.Date) folio.AdditionalCharge {
	t.Helper()
	c, err := f.ledger.CreateCharge(f.ctx, folio.AdditionalCharge{
		EntryHeader: folio.EntryHeader{FolioNo: folioNo, Amount: dec(amount), OccurredDate: day},
		ChargeType:  "Laundry",
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) bill(t *testing.T, folioNo, subtotal string, day folio.Date) folio.Bill {
	t.Helper()
	b, err := f.ledger.CreateBill(f.ctx, folio.BillRequest{FolioNo: folioNo, Subtotal: dec(subtotal), BillDate: day})
	require.NoError(t, err)
	return b
}

func advance(folioNo, amount string, day folio.Date) folio.Advance {
	return folio.Advance{
		EntryHeader: folio.EntryHeader{FolioNo: folioNo, Amount: dec(amount), OccurredDate: day},
		PaymentMode: "cash",
	}
}

// assertAmount compares decimals by value, so "500" equals "500.00".
func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}
