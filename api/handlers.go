/*
handlers.go - HTTP API handlers for the folio ledger

PURPOSE:
  Exposes the folio core via REST API. Handles HTTP request/response and
  JSON serialization, and delegates every rule to the folio package.

ENDPOINTS:
  Stays:
    POST   /api/stays                        Register reservation / check-in
    GET    /api/stays                        List stays (?status=)
    GET    /api/stays/{folioNo}              Stay by folio
    GET    /api/reservations/{no}            Stay by reservation
    GET    /api/reservations/{no}/advances   Advances taken before check-in

  Ledger entries (same five routes for advances, charges, transactions,
  settlements):
    POST   /api/advances                     Create
    GET    /api/advances                     List (?folio_no, reservation_no, bill_id, from, to)
    GET    /api/advances/{id}                Get
    PUT    /api/advances/{id}                Administrative update
    DELETE /api/advances/{id}                Delete

  Bills:
    POST   /api/bills                        Raise bill (optional tax)
    GET    /api/bills                        List (?folio_no)
    GET    /api/bills/{id}                   Get
    DELETE /api/bills/{id}                   Delete
    GET    /api/bills/{id}/settlements       Settlements of one bill

  Folio / checkout:    see folios.go
  Reports:             see reports.go
  Night audit:         see audits.go
  Demo scenarios:      see scenarios.go (non-production only)

ARCHITECTURE:
  Handler struct holds the folio services. Handlers never compute money;
  they map DTOs to domain calls and domain errors to problem responses.

REQUEST FLOW:
  1. Decode JSON body (bind)
  2. Shape validation via go-playground/validator tags
  3. Call folio service
  4. Serialize response
  5. Map errors (respond.go)

ERROR HANDLING:
  Errors are returned as RFC7807 problem documents:
  - 400: Validation errors, invalid input
  - 404: Folio, reservation, bill or entry not found
  - 409: Conflict (double checkout, duplicate idempotency key, relink)
  - 500: Store failures

SECURITY NOTE:
  No authentication. UserID fields are recorded as given.

SEE ALSO:
  - dto.go: Request/response data structures
  - folios.go: Folio balance and checkout endpoints
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warp/folio-engine/folio"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Deps are the collaborators a Handler is built from.
type Deps struct {
	Store  folio.Store
	Locker folio.Locker
	Clock  folio.Clock
	Taxes  folio.TaxLookup
	Logger *slog.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    folio.Store
	Ledger   *folio.Ledger
	Checkout *folio.CheckoutService
	Reports  *folio.Projector
	Audit    *folio.NightAudit
	Clock    folio.Clock
	Logger   *slog.Logger

	validate *validator.Validate

	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler wires the folio services around d.Store.
func NewHandler(d Deps) *Handler {
	if d.Clock == nil {
		d.Clock = folio.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	ledger := folio.NewLedger(d.Store, d.Clock, d.Logger)
	ledger.Taxes = d.Taxes
	reports := folio.NewProjector(d.Store, d.Logger)

	return &Handler{
		Store:    d.Store,
		Ledger:   ledger,
		Checkout: folio.NewCheckoutService(d.Store, ledger, d.Locker, d.Clock, d.Logger),
		Reports:  reports,
		Audit:    folio.NewNightAudit(d.Store, reports, d.Clock, d.Logger),
		Clock:    d.Clock,
		Logger:   d.Logger,
		validate: newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON names rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bind decodes the body into dst and runs tag validation. It writes the
// error response itself and reports whether the handler should continue.
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		badRequest(w, r, "invalid request body", err)
		return false
	}
	return h.check(w, r, dst)
}

// bindOptional is bind for endpoints whose body may be empty.
func (h *Handler) bindOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, r, "invalid request body", err)
		return false
	}
	return h.check(w, r, dst)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := h.validate.Struct(dst); err != nil {
		h.respondError(w, r, err)
		return false
	}
	return true
}

// =============================================================================
// HEALTH
// =============================================================================

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports whether the store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.Logger.Warn("health check failed", slog.Any("error", err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// STAY HANDLERS
// =============================================================================

// SaveStay registers a booking or a check-in. A request naming an existing
// folio or reservation updates that stay; a folio on a booked stay checks
// the guest in.
func (h *Handler) SaveStay(w http.ResponseWriter, r *http.Request) {
	var req StayRequest
	if !h.bind(w, r, &req) {
		return
	}
	ctx := r.Context()

	existing, found, err := h.findStay(ctx, req.FolioNo, req.ReservationNo)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	stay := folio.Stay{
		FolioNo:       req.FolioNo,
		ReservationNo: req.ReservationNo,
		GuestName:     req.GuestName,
		RoomNo:        req.RoomNo,
		FromDate:      req.FromDate,
		ToDate:        req.ToDate,
		CheckInDate:   req.CheckInDate,
		Remarks:       req.Remarks,
		UserID:        req.UserID,
		UpdatedAt:     h.Clock.Now().UTC(),
	}
	if stay.FolioNo != "" && stay.CheckInDate.IsZero() {
		stay.CheckInDate = folio.Today(h.Clock)
	}
	if found {
		if stay, err = mergeStay(existing, stay); err != nil {
			h.respondError(w, r, err)
			return
		}
	}

	saved, err := h.Store.SaveStay(ctx, stay)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.Logger.Info("stay saved",
		slog.String("folio_no", saved.FolioNo),
		slog.String("reservation_no", saved.ReservationNo),
		slog.String("status", string(saved.Status)),
	)

	status := http.StatusCreated
	if found {
		status = http.StatusOK
	}
	writeJSON(w, status, toStayDTO(saved))
}

func (h *Handler) findStay(ctx context.Context, folioNo, reservationNo string) (folio.Stay, bool, error) {
	lookups := []struct {
		key  string
		find func(context.Context, string) (folio.Stay, error)
	}{
		{folioNo, h.Store.StayByFolio},
		{reservationNo, h.Store.StayByReservation},
	}
	for _, l := range lookups {
		if l.key == "" {
			continue
		}
		s, err := l.find(ctx, l.key)
		if err == nil {
			return s, true, nil
		}
		if !errors.Is(err, folio.ErrStayNotFound) {
			return folio.Stay{}, false, &folio.StoreError{Op: "lookup stay", Err: err}
		}
	}
	return folio.Stay{}, false, nil
}

// mergeStay applies the descriptive fields of next onto current. Lifecycle
// fields (status, checkout) are owned by the checkout service; only a
// booked stay can be checked in by attaching a folio.
func mergeStay(current, next folio.Stay) (folio.Stay, error) {
	out := current
	if next.FolioNo != "" {
		if !current.HasFolio() {
			if current.Status != folio.StatusBooked {
				return folio.Stay{}, &folio.ConflictError{
					Reason: "reservation " + current.ReservationNo + " is " + strings.ToLower(string(current.Status)) + " and cannot be checked in",
				}
			}
			out.Status = folio.StatusCheckedIn
			out.CheckInDate = next.CheckInDate
		}
		out.FolioNo = next.FolioNo
	}
	if next.ReservationNo != "" {
		out.ReservationNo = next.ReservationNo
	}
	if next.GuestName != "" {
		out.GuestName = next.GuestName
	}
	if next.RoomNo != "" {
		out.RoomNo = next.RoomNo
	}
	if !next.FromDate.IsZero() {
		out.FromDate = next.FromDate
	}
	if !next.ToDate.IsZero() {
		out.ToDate = next.ToDate
	}
	if next.Remarks != "" {
		out.Remarks = next.Remarks
	}
	if next.UserID != "" {
		out.UserID = next.UserID
	}
	out.UpdatedAt = next.UpdatedAt
	return out, nil
}

func (h *Handler) GetStay(w http.ResponseWriter, r *http.Request) {
	folioNo := chi.URLParam(r, "folioNo")
	stay, err := h.Store.StayByFolio(r.Context(), folioNo)
	if err != nil {
		h.respondError(w, r, stayErr("folio", folioNo, err))
		return
	}
	writeJSON(w, http.StatusOK, toStayDTO(stay))
}

func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	no := chi.URLParam(r, "reservationNo")
	stay, err := h.Store.StayByReservation(r.Context(), no)
	if err != nil {
		h.respondError(w, r, stayErr("reservation", no, err))
		return
	}
	writeJSON(w, http.StatusOK, toStayDTO(stay))
}

func (h *Handler) ListStays(w http.ResponseWriter, r *http.Request) {
	f := folio.StayFilter{Status: folio.StayStatus(strings.ToUpper(r.URL.Query().Get("status")))}
	stays, err := h.Store.ListStays(r.Context(), f)
	if err != nil {
		h.respondError(w, r, &folio.StoreError{Op: "list stays", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, toStayDTOs(stays))
}

func (h *Handler) ReservationAdvances(w http.ResponseWriter, r *http.Request) {
	advances, err := h.Ledger.AdvancesByReservation(r.Context(), chi.URLParam(r, "reservationNo"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(advanceEntries(advances)))
}

func stayErr(resource, key string, err error) error {
	if errors.Is(err, folio.ErrStayNotFound) {
		return &folio.NotFoundError{Resource: resource, Key: key}
	}
	return &folio.StoreError{Op: "lookup " + resource, Err: err}
}

// =============================================================================
// LEDGER ENTRY HANDLERS
// =============================================================================

// entryRoutes mounts the CRUD routes for one entry kind.
func (h *Handler) entryRoutes(kind folio.EntryKind) func(chi.Router) {
	return func(r chi.Router) {
		r.Post("/", h.createEntry(kind))
		r.Get("/", h.listEntries(kind))
		r.Get("/{id}", h.getEntry(kind))
		r.Put("/{id}", h.updateEntry(kind))
		r.Delete("/{id}", h.deleteEntry(kind))
	}
}

func (h *Handler) decodeEntry(w http.ResponseWriter, r *http.Request, kind folio.EntryKind) (folio.Entry, bool) {
	var req EntryRequest
	if !h.bind(w, r, &req) {
		return nil, false
	}
	if kind == folio.KindAdvance && req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	return req.toEntry(kind), true
}

func (h *Handler) createEntry(kind folio.EntryKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := h.decodeEntry(w, r, kind)
		if !ok {
			return
		}
		saved, err := h.Ledger.Create(r.Context(), e)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toEntryDTO(saved))
	}
}

func (h *Handler) listEntries(kind folio.EntryKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rng, err := rangeParams(r)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		q := r.URL.Query()
		entries, err := h.Ledger.List(r.Context(), folio.EntryFilter{
			Kind:          kind,
			FolioNo:       q.Get("folio_no"),
			ReservationNo: q.Get("reservation_no"),
			BillID:        q.Get("bill_id"),
			Range:         rng,
		})
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toEntryDTOs(entries))
	}
}

func (h *Handler) getEntry(kind folio.EntryKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := h.Ledger.Get(r.Context(), kind, chi.URLParam(r, "id"))
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toEntryDTO(e))
	}
}

func (h *Handler) updateEntry(kind folio.EntryKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := h.decodeEntry(w, r, kind)
		if !ok {
			return
		}
		saved, err := h.Ledger.Update(r.Context(), kind, chi.URLParam(r, "id"), e)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toEntryDTO(saved))
	}
}

func (h *Handler) deleteEntry(kind folio.EntryKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.Ledger.Delete(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
			h.respondError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// =============================================================================
// BILL HANDLERS
// =============================================================================

func (h *Handler) CreateBill(w http.ResponseWriter, r *http.Request) {
	var req BillRequest
	if !h.bind(w, r, &req) {
		return
	}
	bill, err := h.Ledger.CreateBill(r.Context(), folio.BillRequest{
		FolioNo:  req.FolioNo,
		Subtotal: req.Subtotal,
		ApplyTax: req.ApplyTax,
		BillDate: req.BillDate,
		UserID:   req.UserID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBillDTO(bill))
}

// UpdateBill replaces the folio, amount, date and user of a bill.
func (h *Handler) UpdateBill(w http.ResponseWriter, r *http.Request) {
	var req BillRequest
	if !h.bind(w, r, &req) {
		return
	}
	bill, err := h.Ledger.UpdateBill(r.Context(), chi.URLParam(r, "id"), folio.BillRequest{
		FolioNo:  req.FolioNo,
		Subtotal: req.Subtotal,
		ApplyTax: req.ApplyTax,
		BillDate: req.BillDate,
		UserID:   req.UserID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTO(bill))
}

func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	rng, err := rangeParams(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	bills, err := h.Reports.Bills(r.Context(), rng, r.URL.Query().Get("folio_no"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTOs(bills))
}

func (h *Handler) GetBill(w http.ResponseWriter, r *http.Request) {
	bill, err := h.Ledger.GetBill(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTO(bill))
}

func (h *Handler) DeleteBill(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeleteBill(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) BillSettlements(w http.ResponseWriter, r *http.Request) {
	settlements, err := h.Ledger.SettlementsByBill(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(settlementEntries(settlements)))
}

// =============================================================================
// QUERY PARAMETERS
// =============================================================================

func dateParam(r *http.Request, name string) (folio.Date, error) {
	raw := r.URL.Query().Get(name)
	d, err := folio.ParseDate(raw)
	if err != nil {
		return folio.Date{}, &folio.ValidationError{Field: name, Message: "invalid date", Expected: folio.DateLayout, Actual: raw}
	}
	return d, nil
}

// rangeParams reads the inclusive ?from= and ?to= bounds.
func rangeParams(r *http.Request) (folio.DateRange, error) {
	from, err := dateParam(r, "from")
	if err != nil {
		return folio.DateRange{}, err
	}
	to, err := dateParam(r, "to")
	if err != nil {
		return folio.DateRange{}, err
	}
	return folio.DateRange{From: from, To: to}, nil
}
