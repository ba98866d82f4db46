/*
validator.go - Admission rules for ledger entries

PURPOSE:
  Enforces the cross-entity invariants before any entry reaches the store:
  positive amounts, no future dates, payment-mode normalization, folio and
  reservation existence, folio/reservation linkage, and date ordering
  against the stay.

ORDER (fail-fast, stable):
  1. amount > 0, at most two decimal places
  2. occurred date present and not after today
  3. kind-specific fields (payment mode, charge type, account head, status)
  4. at least one of folio / reservation
  5. folio path: folio exists, date >= check-in, reservation matches
  6. reservation path: reservation exists, date >= from-date
  7. auto-fill guest name / room from the stay (never overwrite)
  8. credit card company and number for "Credit Card"

  Settlements skip 4-8: their bill must exist, the date must not precede
  the bill, and folio / reservation are taken from the bill's stay (a
  conflicting value is rejected).

  The first violation wins. The validator only reads; it returns a
  normalized copy and leaves the caller's entry untouched.

SEE ALSO:
  - ledger.go: calls Validate before every SaveEntry
  - paymode.go: payment-mode vocabulary
*/
package folio

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// BillLookup is the read the validator needs for settlements.
type BillLookup interface {
	GetBill(ctx context.Context, id string) (Bill, error)
}

// Validator checks entries against the stay registry.
type Validator struct {
	Stays StayRegistry
	Bills BillLookup
	Clock Clock
}

func NewValidator(stays StayRegistry, bills BillLookup, clock Clock) *Validator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Validator{Stays: stays, Bills: bills, Clock: clock}
}

// Validate returns a normalized copy of e or the first violation.
func (v *Validator) Validate(ctx context.Context, e Entry) (Entry, error) {
	if e == nil {
		return nil, invalid("kind", "entry is required")
	}
	out := CloneEntry(e)
	h := out.Header()

	// 1. amount
	if err := checkMoney("amount", h.Amount); err != nil {
		return nil, err
	}

	// 2. date
	if h.OccurredDate.IsZero() {
		return nil, invalid("occurred_date", "date is required")
	}
	today := Today(v.Clock)
	if h.OccurredDate.After(today) {
		return nil, &ValidationError{Field: "occurred_date", Message: "date cannot be in the future", Expected: "<= " + today.String(), Actual: h.OccurredDate.String()}
	}

	// 3. kind-specific fields
	if err := v.checkKindFields(out); err != nil {
		return nil, err
	}

	if s, ok := out.(*BillSettlement); ok {
		if err := v.checkSettlement(ctx, s); err != nil {
			return nil, err
		}
		return out, nil
	}

	// 4. identifiers
	hasFolio := !blank(h.FolioNo)
	hasReservation := !blank(h.ReservationNo)
	if !hasFolio && !hasReservation {
		return nil, invalid("folio_no", "either folio number or reservation number is required")
	}

	var stay Stay
	switch {
	case hasFolio:
		// 5. folio path
		found, err := v.Stays.StayByFolio(ctx, h.FolioNo)
		if err != nil {
			if errors.Is(err, ErrStayNotFound) {
				return nil, notFound("folio", h.FolioNo)
			}
			return nil, storeErr("lookup folio", err)
		}
		stay = found
		if !stay.CheckInDate.IsZero() && h.OccurredDate.Before(stay.CheckInDate) {
			return nil, &ValidationError{Field: "occurred_date", Message: "date cannot be before check-in date", Expected: ">= " + stay.CheckInDate.String(), Actual: h.OccurredDate.String()}
		}
		if hasReservation && stay.ReservationNo != h.ReservationNo {
			return nil, &ConflictError{Reason: "folio " + h.FolioNo + " not linked to reservation " + h.ReservationNo}
		}
	default:
		// 6. reservation path
		found, err := v.Stays.StayByReservation(ctx, h.ReservationNo)
		if err != nil {
			if errors.Is(err, ErrStayNotFound) {
				return nil, notFound("reservation", h.ReservationNo)
			}
			return nil, storeErr("lookup reservation", err)
		}
		stay = found
		if !stay.FromDate.IsZero() && h.OccurredDate.Before(stay.FromDate) {
			return nil, &ValidationError{Field: "occurred_date", Message: "date cannot be before reservation from date", Expected: ">= " + stay.FromDate.String(), Actual: h.OccurredDate.String()}
		}
	}

	// 7. convenience projection
	if blank(h.GuestName) {
		h.GuestName = stay.GuestName
	}
	if blank(h.RoomNo) {
		h.RoomNo = stay.RoomNo
	}

	// 8. credit card details
	if a, ok := out.(*Advance); ok && a.PaymentMode == ModeCreditCard {
		if blank(a.CreditCardCompany) {
			return nil, invalid("credit_card_company", "credit card company is required for credit card payments")
		}
		if blank(a.CreditCardNo) {
			return nil, invalid("credit_card_no", "credit card number is required for credit card payments")
		}
	}

	return out, nil
}

func (v *Validator) checkKindFields(e Entry) error {
	switch x := e.(type) {
	case *Advance:
		if blank(x.PaymentMode) {
			return invalid("payment_mode", "payment mode is required")
		}
		mode, ok := NormalizePaymentMode(x.PaymentMode)
		if !ok {
			return &ValidationError{Field: "payment_mode", Message: "invalid payment mode", Expected: "one of " + joinModes(), Actual: x.PaymentMode}
		}
		x.PaymentMode = mode
	case *AdditionalCharge:
		if blank(x.ChargeType) {
			return invalid("charge_type", "charge type is required")
		}
	case *PostedTransaction:
		if blank(x.AccHead) {
			return invalid("acc_head", "account head is required")
		}
		status, ok := ParseTransactionStatus(string(x.Status))
		if !ok {
			return &ValidationError{Field: "status", Message: "invalid transaction status", Expected: "Pending, Completed or Failed", Actual: string(x.Status)}
		}
		x.Status = status
	case *BillSettlement:
		if !blank(x.PaymentMode) {
			mode, ok := NormalizePaymentMode(x.PaymentMode)
			if !ok {
				return &ValidationError{Field: "payment_mode", Message: "invalid payment mode", Expected: "one of " + joinModes(), Actual: x.PaymentMode}
			}
			x.PaymentMode = mode
		}
	}
	return nil
}

// checkSettlement resolves the bill a settlement applies to.
func (v *Validator) checkSettlement(ctx context.Context, s *BillSettlement) error {
	if blank(s.BillID) {
		return invalid("bill_id", "bill id is required")
	}
	if v.Bills == nil {
		return &StoreError{Op: "lookup bill", Err: errors.New("no bill lookup configured")}
	}
	bill, err := v.Bills.GetBill(ctx, s.BillID)
	if err != nil {
		if errors.Is(err, ErrBillNotFound) {
			return notFound("bill", s.BillID)
		}
		return storeErr("lookup bill", err)
	}
	if !bill.BillDate.IsZero() && s.OccurredDate.Before(bill.BillDate) {
		return &ValidationError{Field: "occurred_date", Message: "settlement cannot be before bill date", Expected: ">= " + bill.BillDate.String(), Actual: s.OccurredDate.String()}
	}

	// A settlement belongs to its bill's folio.
	if !blank(s.FolioNo) && s.FolioNo != bill.FolioNo {
		return &ConflictError{Reason: "bill " + bill.ID + " belongs to folio " + bill.FolioNo + ", not " + s.FolioNo}
	}
	stay, err := v.Stays.StayByFolio(ctx, bill.FolioNo)
	if err != nil {
		if errors.Is(err, ErrStayNotFound) {
			return notFound("folio", bill.FolioNo)
		}
		return storeErr("lookup folio", err)
	}
	if !blank(s.ReservationNo) && s.ReservationNo != stay.ReservationNo {
		return &ConflictError{Reason: "folio " + bill.FolioNo + " not linked to reservation " + s.ReservationNo}
	}
	s.FolioNo = bill.FolioNo
	s.ReservationNo = stay.ReservationNo
	if blank(s.GuestName) {
		s.GuestName = stay.GuestName
	}
	if blank(s.RoomNo) {
		s.RoomNo = stay.RoomNo
	}
	return nil
}

// checkMoney rejects non-positive amounts and amounts finer than a cent.
func checkMoney(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: field, Message: "amount must be positive", Expected: "> 0", Actual: amount.String()}
	}
	if !amount.Equal(amount.Round(MoneyPlaces)) {
		return &ValidationError{Field: field, Message: "amount has too many decimal places", Expected: "at most 2 decimal places", Actual: amount.String()}
	}
	return nil
}

func joinModes() string { return strings.Join(PaymentModes, ", ") }

// CloneEntry returns a shallow copy of e with the same concrete type.
func CloneEntry(e Entry) Entry {
	switch x := e.(type) {
	case *Advance:
		c := *x
		return &c
	case *AdditionalCharge:
		c := *x
		return &c
	case *PostedTransaction:
		c := *x
		return &c
	case *BillSettlement:
		c := *x
		return &c
	}
	return e
}
