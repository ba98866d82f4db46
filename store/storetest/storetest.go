/*
Package storetest is the conformance suite every folio.Store must pass.

PURPOSE:
  The memory, SQLite and PostgreSQL stores promise the same semantics:
  unique folio and reservation numbers, frozen folio/reservation links,
  optimistic stay versions, unique advance idempotency keys, non-cascading
  deletes and one listing order. Each store's test file calls Run with a
  constructor for a fresh, empty store.

SEE ALSO:
  - folio/store.go: the port these tests exercise
*/
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/folio-engine/folio"
)

// Run executes the suite. open must return an empty store and register its
// own cleanup.
func Run(t *testing.T, open func(t *testing.T) folio.Store) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s folio.Store)
	}{
		{"BookingThenCheckIn", testBookingThenCheckIn},
		{"FolioNumbersAreUnique", testFolioNumbersAreUnique},
		{"FolioLinkIsFrozen", testFolioLinkIsFrozen},
		{"UpdateStayChecksVersion", testUpdateStayChecksVersion},
		{"ListStaysFiltersAndOrders", testListStaysFiltersAndOrders},
		{"EntryKindsRoundTrip", testEntryKindsRoundTrip},
		{"ListEntriesFilters", testListEntriesFilters},
		{"IdempotencyKeyIsUnique", testIdempotencyKeyIsUnique},
		{"DeleteEntry", testDeleteEntry},
		{"Bills", testBills},
		{"Snapshot", testSnapshot},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, open(t))
		})
	}
}

// =============================================================================
// FIXTURES
// =============================================================================

var (
	ctx     = context.Background()
	created = time.Date(2025, time.March, 12, 9, 30, 0, 0, time.UTC)
)

func day(d int) folio.Date { return folio.NewDate(2025, time.March, d) }

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func header(id, folioNo string, amt string, d int) folio.EntryHeader {
	return folio.EntryHeader{
		ID:           id,
		FolioNo:      folioNo,
		Amount:       amount(amt),
		OccurredDate: day(d),
		CreatedAt:    created.Add(time.Duration(d) * time.Minute),
		UpdatedAt:    created.Add(time.Duration(d) * time.Minute),
	}
}

func saveStay(t *testing.T, s folio.Store, stay folio.Stay) folio.Stay {
	t.Helper()
	saved, err := s.SaveStay(ctx, stay)
	require.NoError(t, err)
	return saved
}

func inHouse(folioNo, resNo string) folio.Stay {
	return folio.Stay{
		FolioNo:       folioNo,
		ReservationNo: resNo,
		GuestName:     "Asha Rao",
		RoomNo:        "204",
		FromDate:      day(10),
		ToDate:        day(14),
		CheckInDate:   day(10),
	}
}

// =============================================================================
// STAYS
// =============================================================================

func testBookingThenCheckIn(t *testing.T, s folio.Store) {
	// GIVEN: A booking with no folio
	// WHEN: The same stay is saved again with a folio number
	// THEN: Status moves to CHECKED_IN, version bumps, both lookups resolve

	booked := saveStay(t, s, folio.Stay{ReservationNo: "R1", GuestName: "Kofi Mensah", FromDate: day(11), ToDate: day(14)})
	assert.NotEmpty(t, booked.ID)
	assert.Equal(t, folio.StatusBooked, booked.Status)
	assert.Equal(t, int64(1), booked.Version)

	_, err := s.StayByFolio(ctx, "F1")
	assert.ErrorIs(t, err, folio.ErrStayNotFound)

	booked.FolioNo = "F1"
	booked.CheckInDate = day(12)
	booked.Status = ""
	checkedIn := saveStay(t, s, booked)
	assert.Equal(t, folio.StatusCheckedIn, checkedIn.Status)
	assert.Equal(t, int64(2), checkedIn.Version)

	byFolio, err := s.StayByFolio(ctx, "F1")
	require.NoError(t, err)
	assert.Equal(t, booked.ID, byFolio.ID)
	assert.True(t, byFolio.CheckInDate.Equal(day(12)))
	assert.True(t, byFolio.ToDate.Equal(day(14)))

	byRes, err := s.StayByReservation(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, "F1", byRes.FolioNo)
}

func testFolioNumbersAreUnique(t *testing.T, s folio.Store) {
	saveStay(t, s, inHouse("F1", "R1"))

	_, err := s.SaveStay(ctx, inHouse("F1", "R2"))
	assert.True(t, folio.IsConflict(err))

	_, err = s.SaveStay(ctx, inHouse("F2", "R1"))
	assert.True(t, folio.IsConflict(err))

	walkIn := saveStay(t, s, inHouse("F3", ""))
	assert.Empty(t, walkIn.ReservationNo)
}

func testFolioLinkIsFrozen(t *testing.T, s folio.Store) {
	// GIVEN: F1 linked to R1
	// WHEN: It is renumbered or relinked
	// THEN: Both writes are conflicts and the stored stay is unchanged

	stay := saveStay(t, s, inHouse("F1", "R1"))

	renumbered := stay
	renumbered.FolioNo = "F9"
	_, err := s.SaveStay(ctx, renumbered)
	assert.True(t, folio.IsConflict(err))

	relinked := stay
	relinked.ReservationNo = "R9"
	_, err = s.UpdateStay(ctx, relinked, stay.Version)
	assert.True(t, folio.IsConflict(err))

	got, err := s.StayByFolio(ctx, "F1")
	require.NoError(t, err)
	assert.Equal(t, "R1", got.ReservationNo)
	assert.Equal(t, stay.Version, got.Version)
}

func testUpdateStayChecksVersion(t *testing.T, s folio.Store) {
	stay := saveStay(t, s, inHouse("F1", "R1"))

	out := stay
	out.CheckOutDate = day(14)
	out.Status = folio.StatusCheckedOut
	updated, err := s.UpdateStay(ctx, out, stay.Version)
	require.NoError(t, err)
	assert.Equal(t, stay.Version+1, updated.Version)

	_, err = s.UpdateStay(ctx, out, stay.Version)
	assert.ErrorIs(t, err, folio.ErrConcurrentModification)

	// Lookup by folio when the ID is omitted.
	out.ID = ""
	out.Remarks = "late"
	updated, err = s.UpdateStay(ctx, out, updated.Version)
	require.NoError(t, err)
	assert.Equal(t, stay.ID, updated.ID)

	got, err := s.StayByFolio(ctx, "F1")
	require.NoError(t, err)
	assert.Equal(t, "late", got.Remarks)
	assert.Equal(t, folio.StatusCheckedOut, got.Status)
	assert.True(t, got.CheckOutDate.Equal(day(14)))

	_, err = s.UpdateStay(ctx, folio.Stay{FolioNo: "F404"}, 1)
	assert.ErrorIs(t, err, folio.ErrStayNotFound)
}

func testListStaysFiltersAndOrders(t *testing.T, s folio.Store) {
	saveStay(t, s, inHouse("F2", "R2"))
	saveStay(t, s, inHouse("F1", "R1"))
	out := inHouse("F3", "R3")
	out.CheckOutDate = day(13)
	saveStay(t, s, out)
	saveStay(t, s, folio.Stay{ReservationNo: "R4", FromDate: day(20)})

	all, err := s.ListStays(ctx, folio.StayFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "", all[0].FolioNo)
	assert.Equal(t, "F1", all[1].FolioNo)
	assert.Equal(t, "F3", all[3].FolioNo)

	inHouseOnly, err := s.ListStays(ctx, folio.StayFilter{Status: folio.StatusCheckedIn})
	require.NoError(t, err)
	assert.Len(t, inHouseOnly, 2)

	departed, err := s.ListStays(ctx, folio.StayFilter{CheckOut: folio.DateRange{From: day(13), To: day(13)}})
	require.NoError(t, err)
	require.Len(t, departed, 1)
	assert.Equal(t, folio.StatusCheckedOut, departed[0].Status)

	none, err := s.ListStays(ctx, folio.StayFilter{CheckOut: folio.DateRange{From: day(14)}})
	require.NoError(t, err)
	assert.Empty(t, none)
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

func testEntryKindsRoundTrip(t *testing.T, s folio.Store) {
	// GIVEN: One entry of each kind with every kind-specific field set
	// WHEN: Saved and read back
	// THEN: Kind, money, dates and fields survive unchanged

	adv := &folio.Advance{
		EntryHeader:       header("a1", "F1", "1234.56", 12),
		ReferenceNo:       "REF-9",
		PaymentMode:       folio.ModeCreditCard,
		CreditCardCompany: "VISA",
		CreditCardNo:      "4111111111111111",
		BillNo:            "B-1",
		IdempotencyKey:    "key-1",
	}
	adv.GuestName = "Asha Rao"
	adv.RoomNo = "204"
	adv.UserID = "u1"
	adv.Remarks = "deposit"
	chg := &folio.AdditionalCharge{EntryHeader: header("c1", "F1", "40.5", 12), ChargeType: "Laundry"}
	tx := &folio.PostedTransaction{
		EntryHeader: header("t1", "F1", "75", 13),
		AccHead:     "Restaurant",
		VoucherNo:   "V-7",
		Narration:   "dinner",
		BillNo:      "B-1",
		Status:      folio.TxCompleted,
	}
	st := &folio.BillSettlement{EntryHeader: header("s1", "", "200", 13), BillID: "bill-1", PaymentMode: folio.ModeUPI}

	for _, e := range []folio.Entry{adv, chg, tx, st} {
		require.NoError(t, s.SaveEntry(ctx, e), e.Kind())
	}

	got, err := s.GetEntry(ctx, folio.KindAdvance, "a1")
	require.NoError(t, err)
	a, ok := got.(*folio.Advance)
	require.True(t, ok)
	assert.True(t, a.Amount.Equal(amount("1234.56")))
	assert.True(t, a.OccurredDate.Equal(day(12)))
	assert.True(t, a.CreatedAt.Equal(adv.CreatedAt))
	assert.Equal(t, "REF-9", a.ReferenceNo)
	assert.Equal(t, folio.ModeCreditCard, a.PaymentMode)
	assert.Equal(t, "4111111111111111", a.CreditCardNo)
	assert.Equal(t, "key-1", a.IdempotencyKey)
	assert.Equal(t, "Asha Rao", a.GuestName)
	assert.Equal(t, "deposit", a.Remarks)

	got, err = s.GetEntry(ctx, folio.KindCharge, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Laundry", got.(*folio.AdditionalCharge).ChargeType)
	assert.True(t, got.Header().Amount.Equal(amount("40.50")))

	got, err = s.GetEntry(ctx, folio.KindTransaction, "t1")
	require.NoError(t, err)
	ptx := got.(*folio.PostedTransaction)
	assert.Equal(t, "Restaurant", ptx.AccHead)
	assert.Equal(t, folio.TxCompleted, ptx.Status)
	assert.Equal(t, "V-7", ptx.VoucherNo)

	got, err = s.GetEntry(ctx, folio.KindSettlement, "s1")
	require.NoError(t, err)
	assert.Equal(t, "bill-1", got.(*folio.BillSettlement).BillID)

	// IDs are scoped by kind.
	_, err = s.GetEntry(ctx, folio.KindCharge, "a1")
	assert.ErrorIs(t, err, folio.ErrEntryNotFound)

	exists, err := s.EntryExists(ctx, folio.KindAdvance, "a1")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = s.EntryExists(ctx, folio.KindAdvance, "zz")
	require.NoError(t, err)
	assert.False(t, exists)
}

func testListEntriesFilters(t *testing.T, s folio.Store) {
	entries := []folio.Entry{
		&folio.Advance{EntryHeader: header("a2", "F1", "20", 13), PaymentMode: folio.ModeCash},
		&folio.Advance{EntryHeader: header("a1", "F1", "10", 12), PaymentMode: folio.ModeCash},
		&folio.Advance{EntryHeader: header("a3", "F2", "30", 12), PaymentMode: folio.ModeUPI},
		&folio.AdditionalCharge{EntryHeader: header("c1", "F1", "5", 12), ChargeType: "Minibar"},
		&folio.BillSettlement{EntryHeader: header("s1", "", "50", 14), BillID: "b1"},
		&folio.BillSettlement{EntryHeader: header("s2", "", "60", 14), BillID: "b2"},
	}
	resOnly := &folio.Advance{EntryHeader: header("r1", "", "100", 11), PaymentMode: folio.ModeCash}
	resOnly.ReservationNo = "R7"
	entries = append(entries, resOnly)
	for _, e := range entries {
		require.NoError(t, s.SaveEntry(ctx, e))
	}

	ids := func(f folio.EntryFilter) []string {
		t.Helper()
		got, err := s.ListEntries(ctx, f)
		require.NoError(t, err)
		out := make([]string, len(got))
		for i, e := range got {
			out[i] = e.Header().ID
		}
		return out
	}

	assert.Equal(t, []string{"a1", "a2"}, ids(folio.EntryFilter{Kind: folio.KindAdvance, FolioNo: "F1"}))
	assert.Equal(t, []string{"a1", "c1", "a2"}, ids(folio.EntryFilter{FolioNo: "F1"}))
	assert.Equal(t, []string{"a1", "a3", "c1"}, ids(folio.EntryFilter{Range: folio.DateRange{From: day(12), To: day(12)}}))
	assert.Equal(t, []string{"r1"}, ids(folio.EntryFilter{ReservationNo: "R7", ReservationOnly: true}))
	assert.Equal(t, []string{"s1"}, ids(folio.EntryFilter{Kind: folio.KindSettlement, BillID: "b1"}))
	assert.Equal(t, []string{"s1", "s2"}, ids(folio.EntryFilter{Kind: folio.KindSettlement, BillIDs: []string{"b1", "b2"}}))
	assert.Empty(t, ids(folio.EntryFilter{Kind: folio.KindSettlement, BillIDs: []string{}}))
	assert.Len(t, ids(folio.EntryFilter{}), 7)
}

func testIdempotencyKeyIsUnique(t *testing.T, s folio.Store) {
	// GIVEN: An advance stored with key k
	// WHEN: A different advance reuses k
	// THEN: It is rejected until the first advance is deleted

	first := &folio.Advance{EntryHeader: header("a1", "F1", "100", 12), PaymentMode: folio.ModeCash, IdempotencyKey: "k"}
	require.NoError(t, s.SaveEntry(ctx, first))

	second := &folio.Advance{EntryHeader: header("a2", "F1", "100", 12), PaymentMode: folio.ModeCash, IdempotencyKey: "k"}
	assert.ErrorIs(t, s.SaveEntry(ctx, second), folio.ErrDuplicateIdempotencyKey)

	// Rewriting the owner keeps the key.
	first.Remarks = "edited"
	require.NoError(t, s.SaveEntry(ctx, first))

	found, err := s.ListEntries(ctx, folio.EntryFilter{Kind: folio.KindAdvance, IdempotencyKey: "k"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "edited", found[0].Header().Remarks)

	// Advances without a key never collide.
	for _, id := range []string{"n1", "n2"} {
		require.NoError(t, s.SaveEntry(ctx, &folio.Advance{EntryHeader: header(id, "F1", "1", 12), PaymentMode: folio.ModeCash}))
	}

	require.NoError(t, s.DeleteEntry(ctx, folio.KindAdvance, "a1"))
	assert.NoError(t, s.SaveEntry(ctx, second))
}

func testDeleteEntry(t *testing.T, s folio.Store) {
	require.NoError(t, s.SaveEntry(ctx, &folio.AdditionalCharge{EntryHeader: header("c1", "F1", "5", 12), ChargeType: "Minibar"}))

	assert.ErrorIs(t, s.DeleteEntry(ctx, folio.KindAdvance, "c1"), folio.ErrEntryNotFound)
	require.NoError(t, s.DeleteEntry(ctx, folio.KindCharge, "c1"))
	assert.ErrorIs(t, s.DeleteEntry(ctx, folio.KindCharge, "c1"), folio.ErrEntryNotFound)
}

// =============================================================================
// BILLS
// =============================================================================

func testBills(t *testing.T, s folio.Store) {
	// GIVEN: Two bills on F1 and one on F2, plus a settlement on the first
	// WHEN: The first bill is deleted
	// THEN: Listing drops it and the settlement stays behind

	bills := []folio.Bill{
		{ID: "b2", FolioNo: "F1", TotalAmount: amount("300"), BillDate: day(14), CreatedAt: created},
		{ID: "b1", FolioNo: "F1", TotalAmount: amount("1120.00"), BillDate: day(13), UserID: "u1", CreatedAt: created},
		{ID: "b3", FolioNo: "F2", TotalAmount: amount("80"), BillDate: day(13), CreatedAt: created},
	}
	for _, b := range bills {
		require.NoError(t, s.SaveBill(ctx, b))
	}
	require.NoError(t, s.SaveEntry(ctx, &folio.BillSettlement{EntryHeader: header("s1", "", "100", 14), BillID: "b1"}))

	got, err := s.GetBill(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.Equal(amount("1120")))
	assert.True(t, got.BillDate.Equal(day(13)))
	assert.Equal(t, "u1", got.UserID)

	f1, err := s.ListBills(ctx, folio.BillFilter{FolioNo: "F1"})
	require.NoError(t, err)
	require.Len(t, f1, 2)
	assert.Equal(t, "b1", f1[0].ID)

	onDay, err := s.ListBills(ctx, folio.BillFilter{Range: folio.DateRange{From: day(13), To: day(13)}})
	require.NoError(t, err)
	assert.Len(t, onDay, 2)

	require.NoError(t, s.DeleteBill(ctx, "b1"))
	_, err = s.GetBill(ctx, "b1")
	assert.ErrorIs(t, err, folio.ErrBillNotFound)
	assert.ErrorIs(t, s.DeleteBill(ctx, "b1"), folio.ErrBillNotFound)

	orphan, err := s.GetEntry(ctx, folio.KindSettlement, "s1")
	require.NoError(t, err)
	assert.Equal(t, "b1", orphan.(*folio.BillSettlement).BillID)
}

// =============================================================================
// SNAPSHOT
// =============================================================================

func testSnapshot(t *testing.T, s folio.Store) {
	saveStay(t, s, inHouse("F1", "R1"))
	require.NoError(t, s.SaveBill(ctx, folio.Bill{ID: "b1", FolioNo: "F1", TotalAmount: amount("500"), BillDate: day(13), CreatedAt: created}))
	require.NoError(t, s.SaveEntry(ctx, &folio.Advance{EntryHeader: header("a1", "F1", "200", 12), PaymentMode: folio.ModeCash}))

	var (
		stay    folio.Stay
		bills   []folio.Bill
		entries []folio.Entry
	)
	err := s.Snapshot(ctx, func(r folio.Reader) error {
		var err error
		if stay, err = r.StayByFolio(ctx, "F1"); err != nil {
			return err
		}
		if bills, err = r.ListBills(ctx, folio.BillFilter{FolioNo: "F1"}); err != nil {
			return err
		}
		entries, err = r.ListEntries(ctx, folio.EntryFilter{FolioNo: "F1"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "R1", stay.ReservationNo)
	assert.Len(t, bills, 1)
	assert.Len(t, entries, 1)

	// Errors from the callback come back unchanged.
	err = s.Snapshot(ctx, func(r folio.Reader) error {
		_, err := r.StayByFolio(ctx, "F404")
		return err
	})
	assert.ErrorIs(t, err, folio.ErrStayNotFound)
}
