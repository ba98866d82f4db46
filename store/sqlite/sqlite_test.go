package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/folio-engine/folio"
	"github.com/warp/folio-engine/store/sqlite"
	"github.com/warp/folio-engine/store/storetest"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) folio.Store {
		return newTestStore(t)
	})
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	// GIVEN: A stay and an advance written to a file database
	// WHEN: The database is closed and opened again
	// THEN: Both are still there and migration is a no-op

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "folio.db")

	s, err := sqlite.New(path)
	require.NoError(t, err)
	_, err = s.SaveStay(ctx, folio.Stay{FolioNo: "F1", ReservationNo: "R1", CheckInDate: folio.NewDate(2025, time.March, 10)})
	require.NoError(t, err)
	require.NoError(t, s.SaveEntry(ctx, &folio.Advance{
		EntryHeader: folio.EntryHeader{ID: "a1", FolioNo: "F1", Amount: decimal.RequireFromString("99.95"), OccurredDate: folio.NewDate(2025, time.March, 11)},
		PaymentMode: folio.ModeCash,
	}))
	require.NoError(t, s.Close())

	s, err = sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	stay, err := s.StayByFolio(ctx, "F1")
	require.NoError(t, err)
	assert.Equal(t, folio.StatusCheckedIn, stay.Status)

	e, err := s.GetEntry(ctx, folio.KindAdvance, "a1")
	require.NoError(t, err)
	assert.Equal(t, "99.95", e.Header().Amount.String())
}

func TestSQLite_Reset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.SaveStay(ctx, folio.Stay{FolioNo: "F1"})
	require.NoError(t, err)
	require.NoError(t, s.SaveBill(ctx, folio.Bill{ID: "b1", FolioNo: "F1", TotalAmount: decimal.NewFromInt(10)}))

	require.NoError(t, s.Reset(ctx))

	stays, err := s.ListStays(ctx, folio.StayFilter{})
	require.NoError(t, err)
	assert.Empty(t, stays)
	bills, err := s.ListBills(ctx, folio.BillFilter{})
	require.NoError(t, err)
	assert.Empty(t, bills)
	assert.NoError(t, s.Ping(ctx))
}

func TestSQLite_OutstandingThroughLedger(t *testing.T) {
	// GIVEN: Folio F100 with bill 1000, charge 200, advances 300 and 400,
	//        all posted through the ledger onto SQLite
	// WHEN: Checked out
	// THEN: The recorded outstanding is 500, exactly

	ctx := context.Background()
	s := newTestStore(t)
	clock := folio.FixedClock{At: time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)}
	ledger := folio.NewLedger(s, clock, nil)
	checkout := folio.NewCheckoutService(s, ledger, nil, clock, nil)
	day := func(d int) folio.Date { return folio.NewDate(2025, time.March, d) }
	amt := decimal.RequireFromString

	_, err := s.SaveStay(ctx, folio.Stay{FolioNo: "F100", ReservationNo: "R100", FromDate: day(10), ToDate: day(14), CheckInDate: day(10)})
	require.NoError(t, err)

	_, err = ledger.CreateBill(ctx, folio.BillRequest{FolioNo: "F100", Subtotal: amt("1000"), BillDate: day(14)})
	require.NoError(t, err)
	_, err = ledger.CreateCharge(ctx, folio.AdditionalCharge{
		EntryHeader: folio.EntryHeader{FolioNo: "F100", Amount: amt("200"), OccurredDate: day(12)},
		ChargeType:  "Laundry",
	})
	require.NoError(t, err)
	for _, a := range []string{"300", "400"} {
		_, err = ledger.CreateAdvance(ctx, folio.Advance{
			EntryHeader: folio.EntryHeader{FolioNo: "F100", Amount: amt(a), OccurredDate: day(13)},
			PaymentMode: "cash",
		})
		require.NoError(t, err)
	}

	outstanding, err := folio.NewEngine(s).Outstanding(ctx, "F100")
	require.NoError(t, err)
	assert.True(t, outstanding.Equal(amt("500")), outstanding.String())

	res, err := checkout.Checkout(ctx, folio.CheckoutRequest{FolioNo: "F100"})
	require.NoError(t, err)
	assert.True(t, res.Outstanding.Equal(amt("500")))

	stay, err := s.StayByFolio(ctx, "F100")
	require.NoError(t, err)
	assert.Equal(t, folio.StatusCheckedOut, stay.Status)
	assert.True(t, stay.CheckOutDate.Equal(day(15)))
}

func TestSQLite_EntriesOrderByCreationWithinADay(t *testing.T) {
	// GIVEN: Two advances on one date, the later one created half a second
	//        after a whole second and with the smaller id
	// WHEN: The folio's advances are listed
	// THEN: They come back in creation order

	ctx := context.Background()
	s := newTestStore(t)
	day := folio.NewDate(2025, time.March, 11)
	base := time.Date(2025, time.March, 11, 9, 0, 0, 0, time.UTC)

	for _, a := range []struct {
		id string
		at time.Time
	}{
		{"a", base.Add(500 * time.Millisecond)},
		{"b", base},
	} {
		require.NoError(t, s.SaveEntry(ctx, &folio.Advance{
			EntryHeader: folio.EntryHeader{ID: a.id, FolioNo: "F1", Amount: decimal.NewFromInt(10), OccurredDate: day, CreatedAt: a.at},
			PaymentMode: folio.ModeCash,
		}))
	}

	entries, err := s.ListEntries(ctx, folio.EntryFilter{Kind: folio.KindAdvance, FolioNo: "F1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Header().ID)
	assert.Equal(t, "a", entries[1].Header().ID)
	assert.True(t, base.Add(500*time.Millisecond).Equal(entries[1].Header().CreatedAt))
}
