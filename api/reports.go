package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/folio-engine/folio"
)

// =============================================================================
// REPORT HANDLERS - read-only projections
// =============================================================================

func (h *Handler) PaymentReport(w http.ResponseWriter, r *http.Request) {
	rng, err := rangeParams(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	q := r.URL.Query()
	rows, err := h.Reports.PaymentSummary(r.Context(), folio.PaymentFilter{
		Range:         rng,
		PaymentMode:   q.Get("payment_mode"),
		FolioNo:       q.Get("folio_no"),
		ReservationNo: q.Get("reservation_no"),
		GuestName:     q.Get("guest_name"),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]PaymentRowDTO, len(rows))
	for i, row := range rows {
		out[i] = PaymentRowDTO{Date: row.Date, PaymentMode: row.PaymentMode, Count: row.Count, Total: row.Total}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ModeReport(w http.ResponseWriter, r *http.Request) {
	rng, err := rangeParams(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	totals, err := h.Reports.ModeTotals(r.Context(), rng)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (h *Handler) ChargeReport(w http.ResponseWriter, r *http.Request) {
	rng, err := rangeParams(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	rows, err := h.Reports.ChargeSummary(r.Context(), rng, r.URL.Query().Get("charge_type"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]ChargeRowDTO, len(rows))
	for i, row := range rows {
		out[i] = ChargeRowDTO{
			ChargeType: row.ChargeType,
			Count:      row.Count,
			Total:      row.Total,
			Charges:    toEntryDTOs(chargeEntries(row.Charges)),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) DailyReport(w http.ResponseWriter, r *http.Request) {
	day, err := dateParam(r, "date")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if day.IsZero() {
		day = folio.Today(h.Clock)
	}
	s, err := h.Reports.DailySummary(r.Context(), day)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDailyDTO(s))
}

// GuestJourney lists everything posted against the stays an identifier
// names. ?type= is folio (default), reservation or guest.
func (h *Handler) GuestJourney(w http.ResponseWriter, r *http.Request) {
	typ, err := folio.ParseIdentifierType(r.URL.Query().Get("type"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	j, err := h.Reports.Journey(r.Context(), chi.URLParam(r, "identifier"), typ)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJourneyDTO(j))
}

func (h *Handler) GuestPayments(w http.ResponseWriter, r *http.Request) {
	typ, err := folio.ParseIdentifierType(r.URL.Query().Get("type"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	g, err := h.Reports.PaymentsFor(r.Context(), chi.URLParam(r, "identifier"), typ)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGuestPaymentsDTO(g))
}

// FinancialReport defaults to the current month when no range is given.
func (h *Handler) FinancialReport(w http.ResponseWriter, r *http.Request) {
	rng, err := rangeParams(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if rng.IsOpen() {
		today := folio.Today(h.Clock)
		rng = folio.DateRange{From: folio.StartOfMonth(today), To: today}
	}
	s, err := h.Reports.FinancialSummary(r.Context(), rng)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FinancialDTO{
		From:          s.Range.From,
		To:            s.Range.To,
		Advances:      s.Advances,
		Bills:         s.Bills,
		Settlements:   s.Settlements,
		Charges:       s.Charges,
		Transactions:  s.Transactions,
		Revenue:       s.Revenue,
		Collections:   s.Collections,
		Outstanding:   s.Outstanding,
		ModeBreakdown: s.ModeBreakdown,
	})
}
