package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/folio-engine/folio"
)

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/healthz", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestSaveStay_BookThenCheckIn(t *testing.T) {
	// GIVEN: A reservation registered without a folio
	// WHEN: The same reservation is saved again with a folio number
	// THEN: The stay is updated in place and the guest is checked in today

	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/stays", map[string]any{
		"reservation_no": "R1",
		"guest_name":     "Kofi Mensah",
		"from_date":      "2025-03-15",
		"to_date":        "2025-03-18",
	})
	requireStatus(t, rec, http.StatusCreated)
	booked := decode[StayDTO](t, rec)
	assert.Equal(t, folio.StatusBooked, booked.Status)

	rec = s.do(http.MethodPost, "/api/stays", map[string]any{"reservation_no": "R1", "folio_no": "F1"})
	requireStatus(t, rec, http.StatusOK)
	stay := decode[StayDTO](t, rec)
	assert.Equal(t, booked.ID, stay.ID)
	assert.Equal(t, folio.StatusCheckedIn, stay.Status)
	assert.Equal(t, "Kofi Mensah", stay.GuestName)
	assert.True(t, stay.CheckInDate.Equal(testToday))

	rec = s.do(http.MethodGet, "/api/reservations/R1", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, "F1", decode[StayDTO](t, rec).FolioNo)
}

func TestSaveStay_CancelledReservationCannotCheckIn(t *testing.T) {
	// GIVEN: A cancelled reservation
	// WHEN: A folio is attached to it
	// THEN: The check-in conflicts and the stay stays cancelled without a folio

	s := newTestServer(t)
	_, err := s.handler.Store.SaveStay(context.Background(), folio.Stay{
		ReservationNo: "R9",
		GuestName:     "Lena Fischer",
		FromDate:      testToday,
		ToDate:        testToday.AddDays(2),
		Status:        folio.StatusCancelled,
	})
	require.NoError(t, err)

	rec := s.do(http.MethodPost, "/api/stays", map[string]any{"reservation_no": "R9", "folio_no": "F9"})
	requireStatus(t, rec, http.StatusConflict)

	rec = s.do(http.MethodGet, "/api/reservations/R9", nil)
	requireStatus(t, rec, http.StatusOK)
	stay := decode[StayDTO](t, rec)
	assert.Equal(t, folio.StatusCancelled, stay.Status)
	assert.Empty(t, stay.FolioNo)

	requireStatus(t, s.do(http.MethodGet, "/api/stays/F9", nil), http.StatusNotFound)
}

func TestSaveStay_StampedWithServerClock(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/stays", map[string]any{
		"reservation_no": "R1",
		"from_date":      "2025-03-15",
		"to_date":        "2025-03-18",
	})
	requireStatus(t, rec, http.StatusCreated)
	stay := decode[StayDTO](t, rec)
	assert.Equal(t, "2025-03-15T10:00:00Z", stay.CreatedAt)
	assert.Equal(t, "2025-03-15T10:00:00Z", stay.UpdatedAt)
}

func TestSaveStay_RequiresIdentifier(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/stays", map[string]any{"guest_name": "Nobody"})
	requireStatus(t, rec, http.StatusBadRequest)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "folio_no", decode[ProblemDetail](t, rec).Field)
}

func TestGetStay_NotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/stays/F404", nil)
	requireStatus(t, rec, http.StatusNotFound)
}

func TestCreateAdvance(t *testing.T) {
	s := newTestServer(t)
	s.checkIn("F100", "R100")

	rec := s.do(http.MethodPost, "/api/advances", map[string]any{
		"folio_no":     "F100",
		"amount":       "250.50",
		"date":         "2025-03-12",
		"payment_mode": "cash",
	})
	requireStatus(t, rec, http.StatusCreated)
	adv := decode[EntryDTO](t, rec)
	assert.NotEmpty(t, adv.ID)
	assert.Equal(t, folio.KindAdvance, adv.Kind)
	assert.Equal(t, "Asha Rao", adv.GuestName, "guest name is projected from the stay")
	requireAmount(t, "250.50", adv.Amount)

	rec = s.do(http.MethodGet, "/api/advances/"+adv.ID, nil)
	requireStatus(t, rec, http.StatusOK)
}

func TestCreateAdvance_Rejections(t *testing.T) {
	s := newTestServer(t)
	s.checkIn("F100", "R100")

	tests := []struct {
		name   string
		body   map[string]any
		status int
		field  string
	}{
		{
			name:   "zero amount",
			body:   map[string]any{"folio_no": "F100", "amount": "0", "date": "2025-03-12", "payment_mode": "cash"},
			status: http.StatusBadRequest,
			field:  "amount",
		},
		{
			name:   "future date",
			body:   map[string]any{"folio_no": "F100", "amount": "10", "date": "2025-03-16", "payment_mode": "cash"},
			status: http.StatusBadRequest,
			field:  "occurred_date",
		},
		{
			name:   "before check-in",
			body:   map[string]any{"folio_no": "F100", "amount": "10", "date": "2025-03-09", "payment_mode": "cash"},
			status: http.StatusBadRequest,
			field:  "occurred_date",
		},
		{
			name:   "unknown folio",
			body:   map[string]any{"folio_no": "F404", "amount": "10", "date": "2025-03-12", "payment_mode": "cash"},
			status: http.StatusNotFound,
		},
		{
			name:   "folio linked to another reservation",
			body:   map[string]any{"folio_no": "F100", "reservation_no": "R999", "amount": "10", "date": "2025-03-12", "payment_mode": "cash"},
			status: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/advances", tt.body)
			requireStatus(t, rec, tt.status)
			if tt.field != "" {
				assert.Equal(t, tt.field, decode[ProblemDetail](t, rec).Field)
			}
		})
	}
}

func TestCreateAdvance_DuplicateIdempotencyKey(t *testing.T) {
	// GIVEN: An advance posted with an Idempotency-Key header
	// WHEN: The same request is retried
	// THEN: The retry is rejected and only one advance exists

	s := newTestServer(t)
	s.checkIn("F100", "R100")
	body := map[string]any{"folio_no": "F100", "amount": "100", "date": "2025-03-12", "payment_mode": "cash"}

	rec := s.do(http.MethodPost, "/api/advances", body, "Idempotency-Key", "front-desk-42")
	requireStatus(t, rec, http.StatusCreated)

	rec = s.do(http.MethodPost, "/api/advances", body, "Idempotency-Key", "front-desk-42")
	requireStatus(t, rec, http.StatusConflict)

	rec = s.do(http.MethodGet, "/api/advances?folio_no=F100", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Len(t, decode[[]EntryDTO](t, rec), 1)
}

func TestOutstandingAndCheckout(t *testing.T) {
	// GIVEN: Folio F100 with bill 1000, charge 200, advances 300 and 400
	// WHEN: The balance is read and the guest checks out twice
	// THEN: Outstanding is 500, the first checkout succeeds, the second conflicts

	s := newTestServer(t)
	s.checkIn("F100", "R100")

	s.post("/api/bills", map[string]any{"folio_no": "F100", "subtotal": "1000", "bill_date": "2025-03-14"})
	s.post("/api/charges", map[string]any{"folio_no": "F100", "amount": "200", "date": "2025-03-12", "charge_type": "Laundry"})
	s.post("/api/advances", map[string]any{"folio_no": "F100", "amount": "300", "date": "2025-03-13", "payment_mode": "cash"})
	s.post("/api/advances", map[string]any{"folio_no": "F100", "amount": "400", "date": "2025-03-13", "payment_mode": "upi"})

	rec := s.do(http.MethodGet, "/api/folios/F100/outstanding", nil)
	requireStatus(t, rec, http.StatusOK)
	out := decode[OutstandingDTO](t, rec)
	assert.Equal(t, "F100", out.FolioNo)
	requireAmount(t, "500", out.Outstanding)

	rec = s.do(http.MethodGet, "/api/folios/F100/eligibility", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.True(t, decode[EligibilityDTO](t, rec).Eligible)

	rec = s.do(http.MethodPost, "/api/folios/F100/checkout", nil)
	requireStatus(t, rec, http.StatusOK)
	co := decode[CheckoutDTO](t, rec)
	assert.Equal(t, folio.StatusCheckedOut, co.Stay.Status)
	assert.True(t, co.Stay.CheckOutDate.Equal(testToday))
	requireAmount(t, "500", co.Outstanding)

	rec = s.do(http.MethodPost, "/api/folios/F100/checkout", nil)
	requireStatus(t, rec, http.StatusConflict)

	rec = s.do(http.MethodGet, "/api/folios/F100/eligibility", nil)
	requireStatus(t, rec, http.StatusOK)
	e := decode[EligibilityDTO](t, rec)
	assert.False(t, e.Eligible)
	assert.Equal(t, "already checked out", e.Message)
}

func TestOutstanding_ReadsAfterEachPosting(t *testing.T) {
	// GIVEN: Folio F100 with a 1000 bill
	// WHEN: The balance is read, a payment is posted, and the balance is read again
	// THEN: The second read reflects the payment

	s := newTestServer(t)
	s.checkIn("F100", "R100")
	s.post("/api/bills", map[string]any{"folio_no": "F100", "subtotal": "1000", "bill_date": "2025-03-14"})

	rec := s.do(http.MethodGet, "/api/folios/F100/outstanding", nil)
	requireStatus(t, rec, http.StatusOK)
	requireAmount(t, "1000", decode[OutstandingDTO](t, rec).Outstanding)

	s.post("/api/advances", map[string]any{"folio_no": "F100", "amount": "500", "date": "2025-03-14", "payment_mode": "card"})

	rec = s.do(http.MethodGet, "/api/folios/F100/outstanding", nil)
	requireStatus(t, rec, http.StatusOK)
	requireAmount(t, "500", decode[OutstandingDTO](t, rec).Outstanding)
}

func TestOutstanding_CancelledCallerDoesNotFailOthers(t *testing.T) {
	// GIVEN: Concurrent balance reads of one folio, half of them already cancelled
	// WHEN: All reads run at once
	// THEN: Every live read succeeds with the current balance

	s := newTestServer(t)
	s.checkIn("F100", "R100")
	s.post("/api/bills", map[string]any{"folio_no": "F100", "subtotal": "1000", "bill_date": "2025-03-14"})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	const readers = 20
	codes := make([]int, readers)
	bodies := make([]string, readers)
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := context.Background()
			if i%2 == 0 {
				ctx = cancelled
			}
			req := httptest.NewRequest(http.MethodGet, "/api/folios/F100/outstanding", nil).WithContext(ctx)
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)
			codes[i], bodies[i] = rec.Code, rec.Body.String()
		}(i)
	}
	wg.Wait()

	for i := 1; i < readers; i += 2 {
		assert.Equalf(t, http.StatusOK, codes[i], "reader %d: %s", i, bodies[i])
	}
}

func TestCheckout_UnknownFolio(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/folios/F404/checkout", nil)
	requireStatus(t, rec, http.StatusNotFound)
}

func TestCancelCheckout(t *testing.T) {
	s := newTestServer(t)
	s.checkIn("F100", "R100")

	requireStatus(t, s.do(http.MethodPost, "/api/folios/F100/checkout", nil), http.StatusOK)

	rec := s.do(http.MethodPost, "/api/folios/F100/checkout/cancel", map[string]any{"user_id": "night-manager"})
	requireStatus(t, rec, http.StatusOK)
	stay := decode[StayDTO](t, rec)
	assert.Equal(t, folio.StatusCheckedIn, stay.Status)
	assert.True(t, stay.CheckoutReversed)
	assert.True(t, stay.CheckOutDate.IsZero())

	// A stay's checkout can be reversed once.
	requireStatus(t, s.do(http.MethodPost, "/api/folios/F100/checkout", nil), http.StatusOK)
	rec = s.do(http.MethodPost, "/api/folios/F100/checkout/cancel", nil)
	requireStatus(t, rec, http.StatusConflict)
}

func TestBillSettlements(t *testing.T) {
	s := newTestServer(t)
	s.checkIn("F100", "R100")

	rec := s.do(http.MethodPost, "/api/bills", map[string]any{"folio_no": "F100", "subtotal": "800", "bill_date": "2025-03-14"})
	requireStatus(t, rec, http.StatusCreated)
	bill := decode[BillDTO](t, rec)

	s.post("/api/settlements", map[string]any{"bill_id": bill.ID, "amount": "300", "date": "2025-03-14", "payment_mode": "cash"})

	// settlements may not predate their bill
	rec = s.do(http.MethodPost, "/api/settlements", map[string]any{"bill_id": bill.ID, "amount": "100", "date": "2025-03-13", "payment_mode": "cash"})
	requireStatus(t, rec, http.StatusBadRequest)

	rec = s.do(http.MethodGet, "/api/bills/"+bill.ID+"/settlements", nil)
	requireStatus(t, rec, http.StatusOK)
	settlements := decode[[]EntryDTO](t, rec)
	require.Len(t, settlements, 1)
	requireAmount(t, "300", settlements[0].Amount)

	rec = s.do(http.MethodGet, "/api/folios/F100/outstanding", nil)
	requireStatus(t, rec, http.StatusOK)
	requireAmount(t, "500", decode[OutstandingDTO](t, rec).Outstanding)
}

func TestDailyReport(t *testing.T) {
	s := newTestServer(t)
	s.checkIn("F100", "R100")
	s.post("/api/advances", map[string]any{"folio_no": "F100", "amount": "100", "date": "2025-03-12", "payment_mode": "cash"})
	s.post("/api/charges", map[string]any{"folio_no": "F100", "amount": "40", "date": "2025-03-12", "charge_type": "Minibar"})

	rec := s.do(http.MethodGet, "/api/reports/daily?date=2025-03-12", nil)
	requireStatus(t, rec, http.StatusOK)
	d := decode[DailyDTO](t, rec)
	assert.Equal(t, 1, d.AdvanceCount)
	assert.Equal(t, 1, d.ChargeCount)
	requireAmount(t, "100", d.Advances)

	rec = s.do(http.MethodGet, "/api/reports/daily?date=not-a-date", nil)
	requireStatus(t, rec, http.StatusBadRequest)
}

func TestAudits(t *testing.T) {
	// GIVEN: One in-house guest due out March 14
	// WHEN: The night audit runs with no date, then the history is read
	// THEN: Yesterday is closed and the guest is reported overdue

	s := newTestServer(t)
	s.checkIn("F100", "R100")

	rec := s.do(http.MethodPost, "/api/audits", nil)
	requireStatus(t, rec, http.StatusCreated)
	run := decode[AuditRunDTO](t, rec)
	assert.True(t, run.BusinessDate.Equal(testToday.AddDays(-1)))
	assert.Equal(t, folio.AuditCompleted, run.Status)
	assert.Equal(t, 1, run.InHouse)
	require.Len(t, run.Overdue, 1)
	assert.Equal(t, "F100", run.Overdue[0].FolioNo)

	rec = s.do(http.MethodPost, "/api/audits", map[string]any{"business_date": "2025-03-20"})
	requireStatus(t, rec, http.StatusBadRequest)
	assert.Equal(t, "business_date", decode[ProblemDetail](t, rec).Field)

	rec = s.do(http.MethodGet, "/api/audits", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Len(t, decode[[]AuditRunDTO](t, rec), 1)
}

func TestUpdateBill(t *testing.T) {
	// GIVEN: An 800 bill on F100 with a 300 settlement on March 14
	// WHEN: The bill is rewritten in place, then moved past its settlement
	// THEN: The first rewrite updates the balance and the second is rejected

	s := newTestServer(t)
	s.checkIn("F100", "R100")

	rec := s.do(http.MethodPost, "/api/bills", map[string]any{"folio_no": "F100", "subtotal": "800", "bill_date": "2025-03-13"})
	requireStatus(t, rec, http.StatusCreated)
	bill := decode[BillDTO](t, rec)
	s.post("/api/settlements", map[string]any{"bill_id": bill.ID, "amount": "300", "date": "2025-03-14", "payment_mode": "cash"})

	rec = s.do(http.MethodPut, "/api/bills/"+bill.ID, map[string]any{"folio_no": "F100", "subtotal": "900", "bill_date": "2025-03-14"})
	requireStatus(t, rec, http.StatusOK)
	updated := decode[BillDTO](t, rec)
	assert.Equal(t, bill.ID, updated.ID)
	requireAmount(t, "900", updated.TotalAmount)

	rec = s.do(http.MethodGet, "/api/folios/F100/outstanding", nil)
	requireStatus(t, rec, http.StatusOK)
	requireAmount(t, "600", decode[OutstandingDTO](t, rec).Outstanding)

	rec = s.do(http.MethodPut, "/api/bills/"+bill.ID, map[string]any{"folio_no": "F100", "subtotal": "900", "bill_date": "2025-03-15"})
	requireStatus(t, rec, http.StatusBadRequest)
	assert.Equal(t, "bill_date", decode[ProblemDetail](t, rec).Field)

	rec = s.do(http.MethodPut, "/api/bills/no-such-bill", map[string]any{"folio_no": "F100", "subtotal": "1"})
	requireStatus(t, rec, http.StatusNotFound)
}

func TestGuestJourney(t *testing.T) {
	// GIVEN: F100 with a 300 advance on March 11 and a 200 charge on March 12
	// WHEN: The journey is read by reservation
	// THEN: Both events are listed in date order and net is charges - advances

	s := newTestServer(t)
	s.checkIn("F100", "R100")
	s.post("/api/advances", map[string]any{"folio_no": "F100", "amount": "300", "date": "2025-03-11", "payment_mode": "cash"})
	s.post("/api/charges", map[string]any{"folio_no": "F100", "amount": "200", "date": "2025-03-12", "charge_type": "Laundry"})

	rec := s.do(http.MethodGet, "/api/reports/journey/R100?type=reservation", nil)
	requireStatus(t, rec, http.StatusOK)
	j := decode[JourneyDTO](t, rec)
	assert.Equal(t, "reservation", j.Type)
	require.Len(t, j.Stays, 1)
	require.Len(t, j.Events, 2)
	assert.Equal(t, "advance", j.Events[0].Kind)
	assert.Equal(t, "charge", j.Events[1].Kind)
	requireAmount(t, "-100", j.NetAmount)

	requireStatus(t, s.do(http.MethodGet, "/api/reports/journey/R100", nil), http.StatusNotFound)
	requireStatus(t, s.do(http.MethodGet, "/api/reports/journey/R100?type=room", nil), http.StatusBadRequest)
}

func TestGuestPayments(t *testing.T) {
	s := newTestServer(t)
	s.checkIn("F100", "R100")
	s.post("/api/advances", map[string]any{"folio_no": "F100", "amount": "300", "date": "2025-03-11", "payment_mode": "cash"})
	s.post("/api/advances", map[string]any{"folio_no": "F100", "amount": "150", "date": "2025-03-12", "payment_mode": "upi"})

	rec := s.do(http.MethodGet, "/api/reports/guest-payments/Asha%20Rao?type=guest", nil)
	requireStatus(t, rec, http.StatusOK)
	g := decode[GuestPaymentsDTO](t, rec)
	assert.Len(t, g.Advances, 2)
	requireAmount(t, "450", g.Total)
	requireAmount(t, "300", g.ModeBreakdown[folio.ModeCash])
	requireAmount(t, "150", g.ModeBreakdown[folio.ModeUPI])
}
