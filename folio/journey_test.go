package folio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/folio-engine/folio"
)

// seedJourney books R1 for Kofi Mensah, takes a deposit, checks the guest in
// as F1 and posts one of each folio entry on distinct days. Asha Rao's F100
// is there to be left out.
func seedJourney(t *testing.T, f *fixture) {
	t.Helper()
	stay := f.book(t, "R1", march(11))
	_, err := f.ledger.CreateAdvance(f.ctx, folio.Advance{
		EntryHeader: folio.EntryHeader{ReservationNo: "R1", Amount: dec("100"), OccurredDate: march(11)},
		PaymentMode: "cash",
	})
	require.NoError(t, err)

	stay.FolioNo = "F1"
	stay.CheckInDate = march(12)
	stay.Status = folio.StatusCheckedIn
	_, err = f.store.SaveStay(f.ctx, stay)
	require.NoError(t, err)

	f.charge(t, "F1", "40", march(12))
	upi := advance("F1", "200", march(13))
	upi.PaymentMode = "upi"
	_, err = f.ledger.CreateAdvance(f.ctx, upi)
	require.NoError(t, err)
	b := f.bill(t, "F1", "500", march(14))
	_, err = f.ledger.CreateSettlement(f.ctx, folio.BillSettlement{
		EntryHeader: folio.EntryHeader{Amount: dec("300"), OccurredDate: march(15)},
		BillID:      b.ID,
		PaymentMode: "card",
	})
	require.NoError(t, err)

	f.checkIn(t, "F100", "R100")
	f.advance(t, "F100", "999", march(12))
}

func TestProjector_JourneyTimeline(t *testing.T) {
	// GIVEN: A deposit on R1, then folio F1 with a charge, an advance, a bill and a settlement
	// WHEN: The journey is read by folio, by reservation and by guest name
	// THEN: All three see the same dated timeline and net = charges - advances

	f := newFixture(t)
	seedJourney(t, f)
	p := folio.NewProjector(f.store, quietLogger())

	for _, tc := range []struct {
		name       string
		identifier string
		typ        folio.IdentifierType
	}{
		{"folio", "F1", folio.ByFolio},
		{"reservation", "R1", folio.ByReservation},
		{"guest", "  kofi MENSAH ", folio.ByGuest},
	} {
		t.Run(tc.name, func(t *testing.T) {
			j, err := p.Journey(f.ctx, tc.identifier, tc.typ)
			require.NoError(t, err)

			require.Len(t, j.Stays, 1)
			assert.Equal(t, "F1", j.Stays[0].FolioNo)

			kinds := make([]string, len(j.Events))
			for i, e := range j.Events {
				kinds[i] = e.Kind
			}
			assert.Equal(t, []string{"advance", "charge", "advance", folio.EventBill, "settlement"}, kinds)
			assert.Equal(t, march(11), j.Events[0].Date)
			assert.Equal(t, "Laundry", j.Events[1].Detail)

			assertAmount(t, "300", j.TotalAdvances)
			assertAmount(t, "40", j.TotalCharges)
			assertAmount(t, "500", j.TotalBills)
			assertAmount(t, "300", j.TotalSettlements)
			assertAmount(t, "-260", j.Net)
			assert.Equal(t, 2, j.AdvanceCount)
			assert.Equal(t, 1, j.ChargeCount)
		})
	}
}

func TestProjector_JourneyOfBookedStay(t *testing.T) {
	f := newFixture(t)
	f.book(t, "R2", march(11))
	_, err := f.ledger.CreateAdvance(f.ctx, folio.Advance{
		EntryHeader: folio.EntryHeader{ReservationNo: "R2", Amount: dec("50"), OccurredDate: march(12)},
		PaymentMode: "cash",
	})
	require.NoError(t, err)

	j, err := folio.NewProjector(f.store, quietLogger()).Journey(f.ctx, "R2", folio.ByReservation)
	require.NoError(t, err)
	require.Len(t, j.Events, 1)
	assert.Equal(t, "R2", j.Events[0].ReservationNo)
	assertAmount(t, "-50", j.Net)
}

func TestProjector_JourneyLookupErrors(t *testing.T) {
	f := newFixture(t)
	f.checkIn(t, "F100", "R100")
	p := folio.NewProjector(f.store, quietLogger())

	_, err := p.Journey(f.ctx, "F404", folio.ByFolio)
	assert.True(t, folio.IsNotFound(err))

	_, err = p.Journey(f.ctx, "R100", folio.ByFolio)
	assert.True(t, folio.IsNotFound(err), "a reservation number is not a folio number")

	_, err = p.Journey(f.ctx, "Nobody Here", folio.ByGuest)
	assert.True(t, folio.IsNotFound(err))

	_, err = p.PaymentsFor(f.ctx, " ", folio.ByFolio)
	var verr *folio.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "identifier", verr.Field)
}

func TestParseIdentifierType(t *testing.T) {
	for in, want := range map[string]folio.IdentifierType{
		"":            folio.ByFolio,
		"Folio":       folio.ByFolio,
		"reservation": folio.ByReservation,
		" GUEST ":     folio.ByGuest,
	} {
		got, err := folio.ParseIdentifierType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := folio.ParseIdentifierType("room")
	var verr *folio.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "type", verr.Field)
}

func TestProjector_PaymentsFor(t *testing.T) {
	// GIVEN: A 100 cash deposit on R1 and a 200 UPI advance on its folio F1
	// WHEN: Payments are read by reservation
	// THEN: Both advances are listed by date with a per-mode breakdown

	f := newFixture(t)
	seedJourney(t, f)

	got, err := folio.NewProjector(f.store, quietLogger()).PaymentsFor(f.ctx, "R1", folio.ByReservation)
	require.NoError(t, err)

	require.Len(t, got.Advances, 2)
	assert.Equal(t, march(11), got.Advances[0].OccurredDate)
	assert.Equal(t, march(13), got.Advances[1].OccurredDate)
	assertAmount(t, "300", got.Total)
	assertAmount(t, "100", got.ByMode[folio.ModeCash])
	assertAmount(t, "200", got.ByMode[folio.ModeUPI])
}
