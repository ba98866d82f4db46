/*
checkout.go - Terminal stay transition and front-desk queries

PURPOSE:
  Moves a checked-in stay to CHECKED_OUT and reports the outstanding balance
  at that moment. Checkout never blocks on an unpaid balance; the amount is
  informational and carried forward by the front desk.

STATE MACHINE:
  BOOKED -> CHECKED_IN -> CHECKED_OUT
                 ^             |
                 +-------------+  CancelCheckout (once per stay)

  - Checkout on a CHECKED_OUT stay is a conflict, never a silent no-op
  - Checkout on a CANCELLED stay or a stay without check-in is a conflict
  - CancelCheckout only from CHECKED_OUT, and only if no earlier reversal

SERIALIZATION:
  Checkout and CancelCheckout on the same folio are serialized twice:
  1. a per-folio Locker (in-process or Redis) held for the whole operation
  2. an optimistic Version check on the stay row when writing
  Either failing yields a ConflictError.

SEE ALSO:
  - reconcile.go: outstanding computation
  - ledger.go: ProcessPayment records an advance through the ledger
  - lock/: Locker implementations
*/
package folio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

type CheckoutService struct {
	Store  Store
	Engine *Engine
	Ledger *Ledger
	Locker Locker
	Clock  Clock
	Logger *slog.Logger
}

func NewCheckoutService(store Store, ledger *Ledger, locker Locker, clock Clock, logger *slog.Logger) *CheckoutService {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutService{
		Store:  store,
		Engine: NewEngine(store),
		Ledger: ledger,
		Locker: locker,
		Clock:  clock,
		Logger: logger,
	}
}

// =============================================================================
// CHECKOUT / CANCEL
// =============================================================================

type CheckoutRequest struct {
	FolioNo       string
	DepartureDate Date // zero means today
	Remarks       string
	UserID        string
}

type CheckoutResult struct {
	Stay        Stay
	Outstanding decimal.Decimal
}

func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	if blank(req.FolioNo) {
		return CheckoutResult{}, invalid("folio_no", "folio number is required")
	}
	if req.DepartureDate.IsZero() {
		req.DepartureDate = Today(s.Clock)
	}

	unlock, err := s.lock(ctx, req.FolioNo)
	if err != nil {
		return CheckoutResult{}, err
	}
	defer unlock()

	stay, err := s.stay(ctx, req.FolioNo)
	if err != nil {
		return CheckoutResult{}, err
	}

	switch {
	case stay.Status == StatusCancelled:
		return CheckoutResult{}, &ConflictError{Reason: "stay for folio " + req.FolioNo + " is cancelled"}
	case stay.IsCheckedOut() || stay.Status == StatusCheckedOut:
		return CheckoutResult{}, &ConflictError{Reason: "guest already checked out"}
	case stay.CheckInDate.IsZero():
		return CheckoutResult{}, &ConflictError{Reason: "folio " + req.FolioNo + " has not been checked in"}
	}

	if req.DepartureDate.Before(stay.CheckInDate) {
		return CheckoutResult{}, &ValidationError{
			Field:    "departure_date",
			Message:  "departure date cannot be before check-in date",
			Expected: ">= " + stay.CheckInDate.String(),
			Actual:   req.DepartureDate.String(),
		}
	}

	outstanding, err := s.Engine.Outstanding(ctx, req.FolioNo)
	if err != nil {
		return CheckoutResult{}, err
	}

	next := stay
	next.CheckOutDate = req.DepartureDate
	next.Status = StatusCheckedOut
	next.Remarks = req.Remarks
	next.UserID = req.UserID
	next.UpdatedAt = s.Clock.Now().UTC()

	saved, err := s.update(ctx, next, stay.Version)
	if err != nil {
		return CheckoutResult{}, err
	}

	s.Logger.Info("checkout completed",
		slog.String("folio_no", req.FolioNo),
		slog.String("departure_date", req.DepartureDate.String()),
		slog.String("outstanding", outstanding.String()),
	)
	return CheckoutResult{Stay: saved, Outstanding: outstanding}, nil
}

// CancelCheckout clears the checkout date and returns the stay to CHECKED_IN.
func (s *CheckoutService) CancelCheckout(ctx context.Context, folioNo, userID string) (Stay, error) {
	if blank(folioNo) {
		return Stay{}, invalid("folio_no", "folio number is required")
	}

	unlock, err := s.lock(ctx, folioNo)
	if err != nil {
		return Stay{}, err
	}
	defer unlock()

	stay, err := s.stay(ctx, folioNo)
	if err != nil {
		return Stay{}, err
	}
	if !stay.IsCheckedOut() {
		return Stay{}, &ConflictError{Reason: "guest not checked out yet"}
	}
	if stay.CheckoutReversed {
		return Stay{}, &ConflictError{Reason: "checkout for folio " + folioNo + " was already cancelled once"}
	}

	next := stay
	next.CheckOutDate = Date{}
	next.Status = StatusCheckedIn
	next.CheckoutReversed = true
	if userID != "" {
		next.UserID = userID
	}
	next.UpdatedAt = s.Clock.Now().UTC()

	saved, err := s.update(ctx, next, stay.Version)
	if err != nil {
		return Stay{}, err
	}
	s.Logger.Info("checkout cancelled", slog.String("folio_no", folioNo))
	return saved, nil
}

func (s *CheckoutService) lock(ctx context.Context, folioNo string) (func(), error) {
	if s.Locker == nil {
		return func() {}, nil
	}
	unlock, err := s.Locker.Lock(ctx, FolioLockKey(folioNo))
	if err != nil {
		if errors.Is(err, ErrFolioBusy) {
			return nil, &ConflictError{Reason: "folio " + folioNo + " is being checked out by another request", Err: ErrFolioBusy}
		}
		return nil, storeErr("acquire folio lock", err)
	}
	return unlock, nil
}

func (s *CheckoutService) stay(ctx context.Context, folioNo string) (Stay, error) {
	stay, err := s.Store.StayByFolio(ctx, folioNo)
	if err != nil {
		if errors.Is(err, ErrStayNotFound) {
			return Stay{}, notFound("folio", folioNo)
		}
		return Stay{}, storeErr("lookup folio", err)
	}
	return stay, nil
}

func (s *CheckoutService) update(ctx context.Context, stay Stay, version int64) (Stay, error) {
	saved, err := s.Store.UpdateStay(ctx, stay, version)
	if err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			return Stay{}, &ConflictError{Reason: "stay for folio " + stay.FolioNo + " was modified concurrently", Err: ErrConcurrentModification}
		}
		s.Logger.Error("update stay", slog.String("folio_no", stay.FolioNo), slog.Any("error", err))
		return Stay{}, storeErr("update stay", err)
	}
	return saved, nil
}

// =============================================================================
// PAYMENT
// =============================================================================

// PaymentRequest is a front-desk payment against a folio, dated today.
type PaymentRequest struct {
	FolioNo           string
	Amount            decimal.Decimal
	PaymentMode       string
	ReferenceNo       string
	Remarks           string
	UserID            string
	CreditCardCompany string
	CreditCardNo      string
	IdempotencyKey    string
}

// ProcessPayment records req as an advance through the ledger, so it passes
// the same validation as any other advance.
func (s *CheckoutService) ProcessPayment(ctx context.Context, req PaymentRequest) (Advance, error) {
	if blank(req.FolioNo) {
		return Advance{}, invalid("folio_no", "folio number is required")
	}
	adv, err := s.Ledger.CreateAdvance(ctx, Advance{
		EntryHeader: EntryHeader{
			FolioNo:      req.FolioNo,
			Amount:       req.Amount,
			OccurredDate: Today(s.Clock),
			UserID:       req.UserID,
			Remarks:      req.Remarks,
		},
		ReferenceNo:       req.ReferenceNo,
		PaymentMode:       req.PaymentMode,
		CreditCardCompany: req.CreditCardCompany,
		CreditCardNo:      req.CreditCardNo,
		IdempotencyKey:    req.IdempotencyKey,
	})
	if err != nil {
		return Advance{}, err
	}
	s.Logger.Info("payment processed",
		slog.String("folio_no", req.FolioNo),
		slog.String("amount", adv.Amount.String()),
		slog.String("payment_mode", adv.PaymentMode),
	)
	return adv, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// CheckoutDetails returns the stay with every collection and the balance.
func (s *CheckoutService) CheckoutDetails(ctx context.Context, folioNo string) (Summary, error) {
	return s.Engine.BillSummary(ctx, folioNo)
}

type Eligibility struct {
	Eligible    bool
	Message     string
	Outstanding decimal.Decimal
}

// Eligibility answers whether folioNo can be checked out now. Business
// reasons come back as Eligible=false; only infrastructure failures are
// returned as errors.
func (s *CheckoutService) Eligibility(ctx context.Context, folioNo string) (Eligibility, error) {
	stay, err := s.Store.StayByFolio(ctx, folioNo)
	if err != nil {
		if errors.Is(err, ErrStayNotFound) {
			return Eligibility{Message: "check-in not found"}, nil
		}
		return Eligibility{}, storeErr("lookup folio", err)
	}
	switch {
	case stay.Status == StatusCancelled:
		return Eligibility{Message: "stay is cancelled"}, nil
	case stay.IsCheckedOut():
		return Eligibility{Message: "already checked out"}, nil
	case stay.CheckInDate.IsZero():
		return Eligibility{Message: "not checked in"}, nil
	}
	outstanding, err := s.Engine.Outstanding(ctx, folioNo)
	if err != nil {
		return Eligibility{}, err
	}
	return Eligibility{Eligible: true, Message: "eligible for check-out", Outstanding: outstanding}, nil
}

// History lists stays checked out within r.
func (s *CheckoutService) History(ctx context.Context, r DateRange) ([]Stay, error) {
	if !r.Valid() {
		return nil, invalid("to", "end date before start date")
	}
	stays, err := s.Store.ListStays(ctx, StayFilter{Status: StatusCheckedOut, CheckOut: r})
	if err != nil {
		return nil, storeErr("list stays", err)
	}
	return stays, nil
}

type Receipt struct {
	ReceiptNo   string
	GeneratedAt time.Time
	Details     Summary
	Outstanding decimal.Decimal
}

func (s *CheckoutService) Receipt(ctx context.Context, folioNo string) (Receipt, error) {
	details, err := s.CheckoutDetails(ctx, folioNo)
	if err != nil {
		return Receipt{}, err
	}
	now := s.Clock.Now().UTC()
	return Receipt{
		ReceiptNo:   fmt.Sprintf("RCP%d", now.UnixMilli()),
		GeneratedAt: now,
		Details:     details,
		Outstanding: details.Totals.BalanceDue,
	}, nil
}

// CheckoutSummary counts front-desk workload for the current day.
type CheckoutSummary struct {
	Date    Date
	Today   int // checked out today
	Month   int // checked out since the first of the month
	InHouse int
	Overdue int // in house past the planned departure date
}

func (s *CheckoutService) Summary(ctx context.Context) (CheckoutSummary, error) {
	today := Today(s.Clock)
	out := CheckoutSummary{Date: today}

	month, err := s.Store.ListStays(ctx, StayFilter{Status: StatusCheckedOut, CheckOut: DateRange{From: StartOfMonth(today), To: today}})
	if err != nil {
		return CheckoutSummary{}, storeErr("list stays", err)
	}
	out.Month = len(month)
	for _, st := range month {
		if st.CheckOutDate.Equal(today) {
			out.Today++
		}
	}

	inHouse, err := s.Store.ListStays(ctx, StayFilter{Status: StatusCheckedIn})
	if err != nil {
		return CheckoutSummary{}, storeErr("list stays", err)
	}
	out.InHouse = len(inHouse)
	for _, st := range inHouse {
		if st.IsOverdue(today) {
			out.Overdue++
		}
	}
	return out, nil
}
