/*
ledger.go - Guest-facing and administrative entry operations

PURPOSE:
  The single write path for ledger entries and bills. Every create and
  update goes through the Validator first, so the store only ever holds
  entries that satisfied the invariants at admission time.

LIFECYCLE:
  - Create*: validate, assign ID and timestamps, persist
  - Update:  administrative path; same invariants re-validated, CreatedAt kept
  - Delete:  administrative removal; no cascade, nothing recomputed

IDEMPOTENCY:
  Advances may carry a client-generated IdempotencyKey. A second advance
  with the same key is rejected with ErrDuplicateIdempotencyKey (checked
  here and enforced again by a unique index in the SQL stores). Entries
  without a key are not deduplicated.

RESERVATION ADVANCES:
  An advance taken against a reservation before check-in keeps its
  reservation-only reference forever. Check-in does not migrate it onto
  the new folio: doing so would date a folio entry before its check-in.
  The bill summary lists such advances separately for the front desk.
*/
package folio

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Ledger struct {
	Store     Store
	Validator *Validator
	Clock     Clock
	Taxes     TaxLookup
	Logger    *slog.Logger

	// NewID generates entry and bill IDs.
	NewID func() string
}

func NewLedger(store Store, clock Clock, logger *slog.Logger) *Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		Store:     store,
		Validator: NewValidator(store, store, clock),
		Clock:     clock,
		Logger:    logger,
		NewID:     uuid.NewString,
	}
}

// =============================================================================
// CREATE
// =============================================================================

// Create validates e and appends it.
func (l *Ledger) Create(ctx context.Context, e Entry) (Entry, error) {
	normalized, err := l.Validator.Validate(ctx, e)
	if err != nil {
		return nil, err
	}
	h := normalized.Header()

	if h.ID == "" {
		h.ID = l.NewID()
	} else {
		exists, err := l.Store.EntryExists(ctx, normalized.Kind(), h.ID)
		if err != nil {
			return nil, storeErr("check entry", err)
		}
		if exists {
			return nil, &ConflictError{Reason: string(normalized.Kind()) + " " + h.ID + " already exists"}
		}
	}

	if err := l.checkIdempotency(ctx, normalized); err != nil {
		return nil, err
	}

	now := l.Clock.Now().UTC()
	h.CreatedAt = now
	h.UpdatedAt = now

	if err := l.Store.SaveEntry(ctx, normalized); err != nil {
		return nil, l.saveErr(err)
	}

	l.Logger.Info("ledger entry created",
		slog.String("kind", string(normalized.Kind())),
		slog.String("id", h.ID),
		slog.String("folio_no", h.FolioNo),
		slog.String("reservation_no", h.ReservationNo),
		slog.String("amount", h.Amount.String()),
	)
	return normalized, nil
}

func (l *Ledger) CreateAdvance(ctx context.Context, a Advance) (Advance, error) {
	e, err := l.Create(ctx, &a)
	if err != nil {
		return Advance{}, err
	}
	return *e.(*Advance), nil
}

func (l *Ledger) CreateCharge(ctx context.Context, c AdditionalCharge) (AdditionalCharge, error) {
	e, err := l.Create(ctx, &c)
	if err != nil {
		return AdditionalCharge{}, err
	}
	return *e.(*AdditionalCharge), nil
}

func (l *Ledger) CreateTransaction(ctx context.Context, t PostedTransaction) (PostedTransaction, error) {
	e, err := l.Create(ctx, &t)
	if err != nil {
		return PostedTransaction{}, err
	}
	return *e.(*PostedTransaction), nil
}

func (l *Ledger) CreateSettlement(ctx context.Context, s BillSettlement) (BillSettlement, error) {
	e, err := l.Create(ctx, &s)
	if err != nil {
		return BillSettlement{}, err
	}
	return *e.(*BillSettlement), nil
}

func (l *Ledger) checkIdempotency(ctx context.Context, e Entry) error {
	a, ok := e.(*Advance)
	if !ok || a.IdempotencyKey == "" {
		return nil
	}
	existing, err := l.Store.ListEntries(ctx, EntryFilter{Kind: KindAdvance, IdempotencyKey: a.IdempotencyKey})
	if err != nil {
		return storeErr("check idempotency key", err)
	}
	for _, x := range existing {
		if x.Header().ID != a.ID {
			return &ConflictError{Reason: "advance with idempotency key " + a.IdempotencyKey + " already recorded", Err: ErrDuplicateIdempotencyKey}
		}
	}
	return nil
}

func (l *Ledger) saveErr(err error) error {
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		return &ConflictError{Err: ErrDuplicateIdempotencyKey}
	}
	l.Logger.Error("save ledger entry", slog.Any("error", err))
	return storeErr("save entry", err)
}

// =============================================================================
// UPDATE / DELETE (administrative)
// =============================================================================

// Update replaces entry id of kind with e after re-validating it.
func (l *Ledger) Update(ctx context.Context, kind EntryKind, id string, e Entry) (Entry, error) {
	if e == nil || e.Kind() != kind {
		return nil, invalid("kind", "entry kind does not match "+string(kind))
	}
	current, err := l.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	normalized, err := l.Validator.Validate(ctx, e)
	if err != nil {
		return nil, err
	}
	h := normalized.Header()
	h.ID = id
	h.CreatedAt = current.Header().CreatedAt
	h.UpdatedAt = l.Clock.Now().UTC()

	if a, ok := normalized.(*Advance); ok && a.IdempotencyKey == "" {
		a.IdempotencyKey = current.(*Advance).IdempotencyKey
	}
	if err := l.checkIdempotency(ctx, normalized); err != nil {
		return nil, err
	}

	if err := l.Store.SaveEntry(ctx, normalized); err != nil {
		return nil, l.saveErr(err)
	}
	l.Logger.Info("ledger entry updated", slog.String("kind", string(kind)), slog.String("id", id))
	return normalized, nil
}

// Delete removes entry id. Nothing else is touched.
func (l *Ledger) Delete(ctx context.Context, kind EntryKind, id string) error {
	exists, err := l.Store.EntryExists(ctx, kind, id)
	if err != nil {
		return storeErr("check entry", err)
	}
	if !exists {
		return notFound(string(kind), id)
	}
	if err := l.Store.DeleteEntry(ctx, kind, id); err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return notFound(string(kind), id)
		}
		return storeErr("delete entry", err)
	}
	l.Logger.Info("ledger entry deleted", slog.String("kind", string(kind)), slog.String("id", id))
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (l *Ledger) Get(ctx context.Context, kind EntryKind, id string) (Entry, error) {
	if !kind.Valid() {
		return nil, invalid("kind", "unknown entry kind "+string(kind))
	}
	e, err := l.Store.GetEntry(ctx, kind, id)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, notFound(string(kind), id)
		}
		return nil, storeErr("get entry", err)
	}
	return e, nil
}

func (l *Ledger) List(ctx context.Context, f EntryFilter) ([]Entry, error) {
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, invalid("kind", "unknown entry kind "+string(f.Kind))
	}
	if !f.Range.Valid() {
		return nil, invalid("to", "end date before start date")
	}
	entries, err := l.Store.ListEntries(ctx, f)
	if err != nil {
		return nil, storeErr("list entries", err)
	}
	return entries, nil
}

func (l *Ledger) AdvancesByFolio(ctx context.Context, folioNo string) ([]Advance, error) {
	entries, err := l.List(ctx, EntryFilter{Kind: KindAdvance, FolioNo: folioNo})
	return Advances(entries), err
}

func (l *Ledger) AdvancesByReservation(ctx context.Context, reservationNo string) ([]Advance, error) {
	entries, err := l.List(ctx, EntryFilter{Kind: KindAdvance, ReservationNo: reservationNo})
	return Advances(entries), err
}

func (l *Ledger) ChargesByFolio(ctx context.Context, folioNo string) ([]AdditionalCharge, error) {
	entries, err := l.List(ctx, EntryFilter{Kind: KindCharge, FolioNo: folioNo})
	return Charges(entries), err
}

func (l *Ledger) TransactionsByFolio(ctx context.Context, folioNo string) ([]PostedTransaction, error) {
	entries, err := l.List(ctx, EntryFilter{Kind: KindTransaction, FolioNo: folioNo})
	return Transactions(entries), err
}

func (l *Ledger) SettlementsByBill(ctx context.Context, billID string) ([]BillSettlement, error) {
	if _, err := l.GetBill(ctx, billID); err != nil {
		return nil, err
	}
	entries, err := l.List(ctx, EntryFilter{Kind: KindSettlement, BillID: billID})
	return Settlements(entries), err
}

// =============================================================================
// BILLS
// =============================================================================

// BillRequest raises a bill. When ApplyTax is set the flat tax rates are
// added to Subtotal.
type BillRequest struct {
	FolioNo  string
	Subtotal decimal.Decimal
	ApplyTax bool
	BillDate Date
	UserID   string
}

func (l *Ledger) CreateBill(ctx context.Context, req BillRequest) (Bill, error) {
	if req.BillDate.IsZero() {
		req.BillDate = Today(l.Clock)
	}
	total, err := l.checkBill(ctx, req)
	if err != nil {
		return Bill{}, err
	}

	bill := Bill{
		ID:          l.NewID(),
		FolioNo:     req.FolioNo,
		TotalAmount: total,
		BillDate:    req.BillDate,
		UserID:      req.UserID,
		CreatedAt:   l.Clock.Now().UTC(),
	}
	if err := l.Store.SaveBill(ctx, bill); err != nil {
		l.Logger.Error("save bill", slog.Any("error", err))
		return Bill{}, storeErr("save bill", err)
	}
	l.Logger.Info("bill raised", slog.String("bill_id", bill.ID), slog.String("folio_no", bill.FolioNo), slog.String("total", total.String()))
	return bill, nil
}

// UpdateBill rewrites the folio, amount, date and user of bill id under the
// rules of CreateBill. A blank folio or zero date keeps the current value.
// Once a bill has settlements its folio is fixed and its date cannot move
// past the earliest of them.
func (l *Ledger) UpdateBill(ctx context.Context, id string, req BillRequest) (Bill, error) {
	current, err := l.GetBill(ctx, id)
	if err != nil {
		return Bill{}, err
	}
	if blank(req.FolioNo) {
		req.FolioNo = current.FolioNo
	}
	if req.BillDate.IsZero() {
		req.BillDate = current.BillDate
	}
	total, err := l.checkBill(ctx, req)
	if err != nil {
		return Bill{}, err
	}

	entries, err := l.List(ctx, EntryFilter{Kind: KindSettlement, BillID: id})
	if err != nil {
		return Bill{}, err
	}
	for _, st := range Settlements(entries) {
		if req.FolioNo != current.FolioNo {
			return Bill{}, &ConflictError{Reason: "bill " + id + " has settlements and cannot move to folio " + req.FolioNo}
		}
		if st.OccurredDate.Before(req.BillDate) {
			return Bill{}, &ValidationError{Field: "bill_date", Message: "date cannot be after a settlement of this bill", Expected: "<= " + st.OccurredDate.String(), Actual: req.BillDate.String()}
		}
	}

	bill := current
	bill.FolioNo = req.FolioNo
	bill.TotalAmount = total
	bill.BillDate = req.BillDate
	if !blank(req.UserID) {
		bill.UserID = req.UserID
	}
	if err := l.Store.SaveBill(ctx, bill); err != nil {
		l.Logger.Error("update bill", slog.Any("error", err))
		return Bill{}, storeErr("update bill", err)
	}
	l.Logger.Info("bill updated", slog.String("bill_id", bill.ID), slog.String("folio_no", bill.FolioNo), slog.String("total", total.String()))
	return bill, nil
}

// checkBill validates req against its folio and returns the bill total.
func (l *Ledger) checkBill(ctx context.Context, req BillRequest) (decimal.Decimal, error) {
	if err := checkMoney("subtotal", req.Subtotal); err != nil {
		return decimal.Zero, err
	}
	if req.BillDate.After(Today(l.Clock)) {
		return decimal.Zero, invalid("bill_date", "date cannot be in the future")
	}
	stay, err := l.Store.StayByFolio(ctx, req.FolioNo)
	if err != nil {
		if errors.Is(err, ErrStayNotFound) {
			return decimal.Zero, notFound("folio", req.FolioNo)
		}
		return decimal.Zero, storeErr("lookup folio", err)
	}
	if !stay.CheckInDate.IsZero() && req.BillDate.Before(stay.CheckInDate) {
		return decimal.Zero, &ValidationError{Field: "bill_date", Message: "date cannot be before check-in date", Expected: ">= " + stay.CheckInDate.String(), Actual: req.BillDate.String()}
	}

	total := req.Subtotal
	if req.ApplyTax {
		tax, err := TaxOn(ctx, l.Taxes, req.Subtotal)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(tax)
	}
	return total, nil
}

func (l *Ledger) GetBill(ctx context.Context, id string) (Bill, error) {
	b, err := l.Store.GetBill(ctx, id)
	if err != nil {
		if errors.Is(err, ErrBillNotFound) {
			return Bill{}, notFound("bill", id)
		}
		return Bill{}, storeErr("get bill", err)
	}
	return b, nil
}

func (l *Ledger) BillsByFolio(ctx context.Context, folioNo string) ([]Bill, error) {
	bills, err := l.Store.ListBills(ctx, BillFilter{FolioNo: folioNo})
	if err != nil {
		return nil, storeErr("list bills", err)
	}
	return bills, nil
}

// DeleteBill removes a bill. Its settlements stay in the store but no longer
// reach any folio.
func (l *Ledger) DeleteBill(ctx context.Context, id string) error {
	if _, err := l.GetBill(ctx, id); err != nil {
		return err
	}
	if err := l.Store.DeleteBill(ctx, id); err != nil {
		return storeErr("delete bill", err)
	}
	l.Logger.Info("bill deleted", slog.String("bill_id", id))
	return nil
}
