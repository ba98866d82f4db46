/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	front-desk data. Each scenario registers stays and posts advances,
	charges, transactions, bills and settlements through the ledger, so
	every record passes the same validation as a real request.

AVAILABLE SCENARIOS:

	walk-in:             Walk-in guest with an advance, incidentals and a bill
	pre-arrival-advance: Advances taken on reservations before check-in
	ready-to-checkout:   Folio settled to zero, eligible for checkout
	overdue:             Guest in house past the planned departure
	front-desk-day:      All of the above

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Register stays, dated relative to today
 3. Post ledger entries and bills through folio.Ledger

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "walk-in"}

NOTE:

	Scenarios reset the store. The routes are not mounted in production.

SEE ALSO:
  - server.go: route registration
  - folio/ledger.go: every posting goes through the ledger
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/folio-engine/folio"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "walk-in",
		Name:        "Walk-in Guest",
		Description: "Folio without reservation: cash advance, laundry, restaurant posting, taxed bill",
	},
	{
		ID:          "pre-arrival-advance",
		Name:        "Pre-arrival Advance",
		Description: "Advances on reservations, one still booked and one checked in",
	},
	{
		ID:          "ready-to-checkout",
		Name:        "Ready to Checkout",
		Description: "Bill fully covered by an advance and a card settlement",
	},
	{
		ID:          "overdue",
		Name:        "Overdue Guest",
		Description: "In house two days past planned departure with an open minibar charge",
	},
	{
		ID:          "front-desk-day",
		Name:        "Front Desk Day",
		Description: "Every scenario above loaded together",
	},
}

var scenarioLoaders = map[string][]func(*seeder){
	"walk-in":             {seedWalkIn},
	"pre-arrival-advance": {seedPreArrival},
	"ready-to-checkout":   {seedReadyToCheckout},
	"overdue":             {seedOverdue},
	"front-desk-day":      {seedWalkIn, seedPreArrival, seedReadyToCheckout, seedOverdue},
}

// resetter is implemented by stores that can be emptied.
type resetter interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.bind(w, r, &req) {
		return
	}
	loaders, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		h.respondError(w, r, &folio.NotFoundError{Resource: "scenario", Key: req.ScenarioID})
		return
	}
	store, ok := h.Store.(resetter)
	if !ok {
		writeProblem(w, r, ProblemDetail{Title: "Not Implemented", Status: http.StatusNotImplemented, Detail: "store cannot be reset"})
		return
	}

	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := store.Reset(ctx); err != nil {
		h.respondError(w, r, &folio.StoreError{Op: "reset store", Err: err})
		return
	}

	s := &seeder{ctx: ctx, h: h, today: folio.Today(h.Clock)}
	for _, load := range loaders {
		load(s)
	}
	if s.err != nil {
		h.respondError(w, r, fmt.Errorf("load scenario %s: %w", req.ScenarioID, s.err))
		return
	}

	h.currentScenario = req.ScenarioID
	h.Logger.Info("scenario loaded", slog.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SEEDER - stops at the first error; later calls are no-ops
// =============================================================================

type seeder struct {
	ctx   context.Context
	h     *Handler
	today folio.Date
	err   error
}

func (s *seeder) day(offset int) folio.Date { return s.today.AddDays(offset) }

func (s *seeder) stay(st folio.Stay) {
	if s.err != nil {
		return
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = s.h.Clock.Now().UTC()
	}
	_, s.err = s.h.Store.SaveStay(s.ctx, st)
}

func (s *seeder) advance(folioNo, reservationNo, amount, mode string, day int) {
	if s.err != nil {
		return
	}
	_, s.err = s.h.Ledger.CreateAdvance(s.ctx, folio.Advance{
		EntryHeader: folio.EntryHeader{
			FolioNo:       folioNo,
			ReservationNo: reservationNo,
			Amount:        decimal.RequireFromString(amount),
			OccurredDate:  s.day(day),
			UserID:        "demo",
		},
		PaymentMode: mode,
	})
}

func (s *seeder) charge(folioNo, chargeType, amount string, day int) {
	if s.err != nil {
		return
	}
	_, s.err = s.h.Ledger.CreateCharge(s.ctx, folio.AdditionalCharge{
		EntryHeader: folio.EntryHeader{FolioNo: folioNo, Amount: decimal.RequireFromString(amount), OccurredDate: s.day(day), UserID: "demo"},
		ChargeType:  chargeType,
	})
}

func (s *seeder) transaction(folioNo, accHead, amount string, day int) {
	if s.err != nil {
		return
	}
	_, s.err = s.h.Ledger.CreateTransaction(s.ctx, folio.PostedTransaction{
		EntryHeader: folio.EntryHeader{FolioNo: folioNo, Amount: decimal.RequireFromString(amount), OccurredDate: s.day(day), UserID: "demo"},
		AccHead:     accHead,
		Status:      folio.TxCompleted,
	})
}

func (s *seeder) bill(folioNo, subtotal string, tax bool, day int) folio.Bill {
	if s.err != nil {
		return folio.Bill{}
	}
	var b folio.Bill
	b, s.err = s.h.Ledger.CreateBill(s.ctx, folio.BillRequest{
		FolioNo:  folioNo,
		Subtotal: decimal.RequireFromString(subtotal),
		ApplyTax: tax,
		BillDate: s.day(day),
		UserID:   "demo",
	})
	return b
}

func (s *seeder) settle(b folio.Bill, amount, mode string, day int) {
	if s.err != nil {
		return
	}
	_, s.err = s.h.Ledger.CreateSettlement(s.ctx, folio.BillSettlement{
		EntryHeader: folio.EntryHeader{Amount: decimal.RequireFromString(amount), OccurredDate: s.day(day), UserID: "demo"},
		BillID:      b.ID,
		PaymentMode: mode,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func seedWalkIn(s *seeder) {
	s.stay(folio.Stay{
		FolioNo:     "F1001",
		GuestName:   "Asha Rao",
		RoomNo:      "204",
		FromDate:    s.day(-2),
		ToDate:      s.day(1),
		CheckInDate: s.day(-2),
	})
	s.advance("F1001", "", "2000", "cash", -2)
	s.charge("F1001", "Laundry", "350", -1)
	s.transaction("F1001", "Restaurant", "820", -1)
	s.bill("F1001", "4500", true, 0)
}

func seedPreArrival(s *seeder) {
	s.stay(folio.Stay{
		ReservationNo: "R2001",
		GuestName:     "Kofi Mensah",
		RoomNo:        "310",
		FromDate:      s.day(0),
		ToDate:        s.day(3),
	})
	s.advance("", "R2001", "1500", "upi", 0)

	// Deposit taken on the reservation, then the guest arrived.
	s.stay(folio.Stay{
		ReservationNo: "R2002",
		GuestName:     "Lena Vogel",
		RoomNo:        "412",
		FromDate:      s.day(-1),
		ToDate:        s.day(2),
	})
	s.advance("", "R2002", "3000", "bank transfer", -1)
	if s.err != nil {
		return
	}
	booked, err := s.h.Store.StayByReservation(s.ctx, "R2002")
	if err != nil {
		s.err = err
		return
	}
	booked.FolioNo = "F2002"
	booked.CheckInDate = s.day(0)
	booked.Status = folio.StatusCheckedIn
	s.stay(booked)
}

func seedReadyToCheckout(s *seeder) {
	s.stay(folio.Stay{
		FolioNo:       "F3001",
		ReservationNo: "R3001",
		GuestName:     "Mateo Silva",
		RoomNo:        "118",
		FromDate:      s.day(-3),
		ToDate:        s.day(0),
		CheckInDate:   s.day(-3),
	})
	s.advance("F3001", "", "2000", "cash", -3)
	b := s.bill("F3001", "3000", false, 0)
	s.settle(b, "1000", "credit card", 0)
}

func seedOverdue(s *seeder) {
	s.stay(folio.Stay{
		FolioNo:       "F4001",
		ReservationNo: "R4001",
		GuestName:     "Noor Haddad",
		RoomNo:        "507",
		FromDate:      s.day(-5),
		ToDate:        s.day(-2),
		CheckInDate:   s.day(-5),
	})
	s.charge("F4001", "Minibar", "600", -3)
}
