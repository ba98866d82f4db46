package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/folio-engine/folio"
)

// =============================================================================
// FOLIO BALANCE
// =============================================================================

func (h *Handler) Outstanding(w http.ResponseWriter, r *http.Request) {
	folioNo := chi.URLParam(r, "folioNo")
	s, err := h.summary(r, folioNo)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OutstandingDTO{FolioNo: folioNo, Outstanding: s.Totals.BalanceDue})
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.summary(r, chi.URLParam(r, "folioNo"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(s))
}

func (h *Handler) summary(r *http.Request, folioNo string) (folio.Summary, error) {
	return h.Checkout.CheckoutDetails(r.Context(), folioNo)
}

func (h *Handler) FolioAdvances(w http.ResponseWriter, r *http.Request) {
	advances, err := h.Ledger.AdvancesByFolio(r.Context(), chi.URLParam(r, "folioNo"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(advanceEntries(advances)))
}

func (h *Handler) FolioCharges(w http.ResponseWriter, r *http.Request) {
	charges, err := h.Ledger.ChargesByFolio(r.Context(), chi.URLParam(r, "folioNo"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(chargeEntries(charges)))
}

func (h *Handler) FolioTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Ledger.TransactionsByFolio(r.Context(), chi.URLParam(r, "folioNo"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(transactionEntries(txs)))
}

func (h *Handler) FolioBills(w http.ResponseWriter, r *http.Request) {
	bills, err := h.Ledger.BillsByFolio(r.Context(), chi.URLParam(r, "folioNo"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTOs(bills))
}

// =============================================================================
// CHECKOUT
// =============================================================================

func (h *Handler) CheckoutFolio(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !h.bindOptional(w, r, &req) {
		return
	}
	res, err := h.Checkout.Checkout(r.Context(), folio.CheckoutRequest{
		FolioNo:       chi.URLParam(r, "folioNo"),
		DepartureDate: req.DepartureDate,
		Remarks:       req.Remarks,
		UserID:        req.UserID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckoutDTO{Stay: toStayDTO(res.Stay), Outstanding: res.Outstanding})
}

func (h *Handler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	var req CancelCheckoutRequest
	if !h.bindOptional(w, r, &req) {
		return
	}
	stay, err := h.Checkout.CancelCheckout(r.Context(), chi.URLParam(r, "folioNo"), req.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStayDTO(stay))
}

func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !h.bind(w, r, &req) {
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get("Idempotency-Key")
	}
	adv, err := h.Checkout.ProcessPayment(r.Context(), folio.PaymentRequest{
		FolioNo:           chi.URLParam(r, "folioNo"),
		Amount:            req.Amount,
		PaymentMode:       req.PaymentMode,
		ReferenceNo:       req.ReferenceNo,
		Remarks:           req.Remarks,
		UserID:            req.UserID,
		CreditCardCompany: req.CreditCardCompany,
		CreditCardNo:      req.CreditCardNo,
		IdempotencyKey:    key,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(&adv))
}

func (h *Handler) Eligibility(w http.ResponseWriter, r *http.Request) {
	folioNo := chi.URLParam(r, "folioNo")
	e, err := h.Checkout.Eligibility(r.Context(), folioNo)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EligibilityDTO{
		FolioNo:     folioNo,
		Eligible:    e.Eligible,
		Message:     e.Message,
		Outstanding: e.Outstanding,
	})
}

func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	rc, err := h.Checkout.Receipt(r.Context(), chi.URLParam(r, "folioNo"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReceiptDTO{
		ReceiptNo:   rc.ReceiptNo,
		GeneratedAt: rc.GeneratedAt.UTC().Format(time.RFC3339),
		Outstanding: rc.Outstanding,
		Details:     toSummaryDTO(rc.Details),
	})
}

func (h *Handler) CheckoutHistory(w http.ResponseWriter, r *http.Request) {
	rng, err := rangeParams(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	stays, err := h.Checkout.History(r.Context(), rng)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStayDTOs(stays))
}

func (h *Handler) CheckoutSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.Checkout.Summary(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckoutSummaryDTO{
		Date:    s.Date,
		Today:   s.Today,
		Month:   s.Month,
		InHouse: s.InHouse,
		Overdue: s.Overdue,
	})
}
