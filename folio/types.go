/*
Package folio provides the folio ledger and reconciliation core.

PURPOSE:
  Ties a guest's stay (reservation -> check-in -> folio) to its financial
  movements and produces a single trustworthy outstanding balance at any
  point before or after checkout. Everything else a hotel back office does
  (rooms, housekeeping, master data) lives outside this package and is
  reached through the store ports in store.go.

KEY CONCEPTS IN THIS FILE (types.go):
  - Stay: reservation and check-in record, addressed by reservation or folio
  - Entry: one ledger movement (Advance, AdditionalCharge, PostedTransaction,
    BillSettlement) sharing a common EntryHeader
  - Bill: a snapshot invoice raised against a folio

DESIGN PRINCIPLES:
  1. Derived balances: outstanding is computed from entries, never stored
  2. Precision: all money is decimal.Decimal, never float64
  3. Arena style: entities reference each other by key, no object graph
  4. Immutable links: a folio keeps the reservation it was opened with

USAGE:
  adv := folio.Advance{
      EntryHeader: folio.EntryHeader{
          FolioNo:      "F100",
          Amount:       folio.MustParseDecimal("300"),
          OccurredDate: folio.NewDate(2025, time.March, 10),
      },
      PaymentMode: "cash",
  }
  saved, err := ledger.CreateAdvance(ctx, adv)

SEE ALSO:
  - validator.go: admission rules for entries
  - reconcile.go: outstanding balance and bill summary
  - checkout.go: terminal stay transition
*/
package folio

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// MoneyPlaces is the number of decimal places money is rounded to when a
// derived amount (tax) is applied.
const MoneyPlaces = 2

// MustParseDecimal parses s and returns decimal.Zero on malformed input.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Sum adds a list of amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// =============================================================================
// STAY - reservation + check-in view
// =============================================================================

type StayStatus string

const (
	StatusBooked     StayStatus = "BOOKED"
	StatusCheckedIn  StayStatus = "CHECKED_IN"
	StatusCheckedOut StayStatus = "CHECKED_OUT"
	StatusCancelled  StayStatus = "CANCELLED"
)

// Stay is one guest stay. It is created at booking (ReservationNo set) or at
// walk-in check-in (FolioNo set, ReservationNo empty). Once FolioNo is
// assigned, the FolioNo/ReservationNo pair never changes.
type Stay struct {
	ID            string
	FolioNo       string
	ReservationNo string
	GuestName     string
	RoomNo        string

	// Planned dates from the reservation.
	FromDate Date
	ToDate   Date

	// Actual dates. CheckOutDate is zero while the guest is in house.
	CheckInDate  Date
	CheckOutDate Date

	Status  StayStatus
	Remarks string
	UserID  string

	// CheckoutReversed is set once a checkout has been cancelled. A stay's
	// checkout can be reversed only once.
	CheckoutReversed bool

	// Version is bumped on every update and used for optimistic checks.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasFolio reports whether the stay has been checked in at least once.
func (s Stay) HasFolio() bool { return s.FolioNo != "" }

// IsCheckedOut reports whether a checkout date is recorded.
func (s Stay) IsCheckedOut() bool { return !s.CheckOutDate.IsZero() }

// IsOverdue reports whether the guest is still in house past the planned
// departure date.
func (s Stay) IsOverdue(today Date) bool {
	return s.Status == StatusCheckedIn && !s.IsCheckedOut() &&
		!s.ToDate.IsZero() && s.ToDate.Before(today)
}

// ArrivalDate is the earliest date a ledger entry for this stay may carry:
// the check-in date once a folio exists, the reservation from-date before.
func (s Stay) ArrivalDate() Date {
	if s.HasFolio() && !s.CheckInDate.IsZero() {
		return s.CheckInDate
	}
	return s.FromDate
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

// EntryKind identifies one of the four movement kinds.
type EntryKind string

const (
	KindAdvance     EntryKind = "advance"
	KindCharge      EntryKind = "charge"
	KindTransaction EntryKind = "transaction"
	KindSettlement  EntryKind = "settlement"
)

// Kinds lists every entry kind in a stable order.
var Kinds = []EntryKind{KindAdvance, KindCharge, KindTransaction, KindSettlement}

// IsCredit reports whether entries of this kind reduce what the guest owes.
func (k EntryKind) IsCredit() bool { return k == KindAdvance || k == KindSettlement }

func (k EntryKind) Valid() bool {
	switch k {
	case KindAdvance, KindCharge, KindTransaction, KindSettlement:
		return true
	}
	return false
}

// EntryHeader is the shape shared by every ledger entry.
type EntryHeader struct {
	ID            string
	FolioNo       string
	ReservationNo string
	Amount        decimal.Decimal
	OccurredDate  Date
	GuestName     string
	RoomNo        string
	UserID        string
	Remarks       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Entry is implemented by the four concrete entry kinds.
type Entry interface {
	Kind() EntryKind
	Header() *EntryHeader
}

// Advance is a payment received against a folio or, before check-in,
// against a reservation.
type Advance struct {
	EntryHeader
	ReferenceNo       string
	PaymentMode       string
	CreditCardCompany string
	CreditCardNo      string
	BillNo            string

	// IdempotencyKey is optional. When set, a second advance with the same
	// key is rejected.
	IdempotencyKey string
}

func (a *Advance) Kind() EntryKind       { return KindAdvance }
func (a *Advance) Header() *EntryHeader { return &a.EntryHeader }

// AdditionalCharge is an incidental debit (laundry, minibar, ...).
type AdditionalCharge struct {
	EntryHeader
	ChargeType string
}

func (c *AdditionalCharge) Kind() EntryKind       { return KindCharge }
func (c *AdditionalCharge) Header() *EntryHeader { return &c.EntryHeader }

type TransactionStatus string

const (
	TxPending   TransactionStatus = "Pending"
	TxCompleted TransactionStatus = "Completed"
	TxFailed    TransactionStatus = "Failed"
)

// ParseTransactionStatus maps s to a status, case-insensitively. Empty input
// yields TxPending.
func ParseTransactionStatus(s string) (TransactionStatus, bool) {
	switch normalizeKey(s) {
	case "":
		return TxPending, true
	case "pending":
		return TxPending, true
	case "completed":
		return TxCompleted, true
	case "failed":
		return TxFailed, true
	}
	return "", false
}

// PostedTransaction is an account-head tagged posting.
type PostedTransaction struct {
	EntryHeader
	AccHead   string
	VoucherNo string
	Narration string
	BillNo    string
	Status    TransactionStatus
}

func (t *PostedTransaction) Kind() EntryKind       { return KindTransaction }
func (t *PostedTransaction) Header() *EntryHeader { return &t.EntryHeader }

// BillSettlement is a payment applied against a specific bill. It reaches
// its folio only through the bill.
type BillSettlement struct {
	EntryHeader
	BillID      string
	PaymentMode string
}

func (s *BillSettlement) Kind() EntryKind       { return KindSettlement }
func (s *BillSettlement) Header() *EntryHeader { return &s.EntryHeader }

// NewEntry returns an empty entry of the given kind.
func NewEntry(kind EntryKind) Entry {
	switch kind {
	case KindAdvance:
		return &Advance{}
	case KindCharge:
		return &AdditionalCharge{}
	case KindTransaction:
		return &PostedTransaction{}
	case KindSettlement:
		return &BillSettlement{}
	}
	return nil
}

// =============================================================================
// BILL
// =============================================================================

// Bill is a snapshot invoice. Many settlements may apply against one bill.
type Bill struct {
	ID          string
	FolioNo     string
	TotalAmount decimal.Decimal
	BillDate    Date
	UserID      string
	CreatedAt   time.Time
}

// =============================================================================
// TYPED VIEWS
// =============================================================================

func Advances(entries []Entry) []Advance {
	out := make([]Advance, 0, len(entries))
	for _, e := range entries {
		if a, ok := e.(*Advance); ok {
			out = append(out, *a)
		}
	}
	return out
}

func Charges(entries []Entry) []AdditionalCharge {
	out := make([]AdditionalCharge, 0, len(entries))
	for _, e := range entries {
		if c, ok := e.(*AdditionalCharge); ok {
			out = append(out, *c)
		}
	}
	return out
}

func Transactions(entries []Entry) []PostedTransaction {
	out := make([]PostedTransaction, 0, len(entries))
	for _, e := range entries {
		if t, ok := e.(*PostedTransaction); ok {
			out = append(out, *t)
		}
	}
	return out
}

func Settlements(entries []Entry) []BillSettlement {
	out := make([]BillSettlement, 0, len(entries))
	for _, e := range entries {
		if s, ok := e.(*BillSettlement); ok {
			out = append(out, *s)
		}
	}
	return out
}

// TotalOf sums the amount of every entry.
func TotalOf(entries []Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Header().Amount)
	}
	return total
}
