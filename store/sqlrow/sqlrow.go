/*
Package sqlrow maps folio entities to flat SQL rows and back.

PURPOSE:
  The SQLite and PostgreSQL stores share one table layout. This package
  owns the column lists, the row structs and the WHERE-clause builders so
  both dialects decode entries identically. Each store keeps its own
  scanning (SQLite scans timestamps as text, pgx scans timestamptz).

LAYOUT:
  stays:          one row per stay, folio_no and reservation_no unique when set
  ledger_entries: all four entry kinds in one table, discriminated by kind;
                  columns not used by a kind are stored as ''
  bills:          one row per bill

  Money is written as decimal text and dates as YYYY-MM-DD text so no
  driver ever sees a float.
*/
package sqlrow

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/folio-engine/folio"
)

// Placeholder renders the n-th (1-based) bind parameter. sqlType is the
// column type the parameter is compared against ("date", "" for text).
type Placeholder func(n int, sqlType string) string

// Question renders SQLite-style placeholders.
func Question(int, string) string { return "?" }

// Dollar renders PostgreSQL placeholders. Typed parameters are sent as text
// and cast server-side.
func Dollar(n int, sqlType string) string {
	if sqlType == "" {
		return fmt.Sprintf("$%d", n)
	}
	return fmt.Sprintf("$%d::text::%s", n, sqlType)
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

// EntryColumns lists ledger_entries columns in EntryRow.Args order.
var EntryColumns = []string{
	"id", "kind", "folio_no", "reservation_no", "amount", "occurred_date",
	"guest_name", "room_no", "user_id", "remarks",
	"payment_mode", "reference_no", "credit_card_company", "credit_card_no", "bill_no",
	"idempotency_key", "charge_type", "acc_head", "voucher_no", "narration", "tx_status",
	"bill_id", "created_at", "updated_at",
}

type EntryRow struct {
	ID             string
	Kind           string
	FolioNo        string
	ReservationNo  string
	Amount         string
	OccurredDate   string
	GuestName      string
	RoomNo         string
	UserID         string
	Remarks        string
	PaymentMode    string
	ReferenceNo    string
	CardCompany    string
	CardNo         string
	BillNo         string
	IdempotencyKey string
	ChargeType     string
	AccHead        string
	VoucherNo      string
	Narration      string
	TxStatus       string
	BillID         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FromEntry flattens e.
func FromEntry(e folio.Entry) EntryRow {
	h := e.Header()
	r := EntryRow{
		ID:            h.ID,
		Kind:          string(e.Kind()),
		FolioNo:       h.FolioNo,
		ReservationNo: h.ReservationNo,
		Amount:        h.Amount.String(),
		OccurredDate:  h.OccurredDate.String(),
		GuestName:     h.GuestName,
		RoomNo:        h.RoomNo,
		UserID:        h.UserID,
		Remarks:       h.Remarks,
		CreatedAt:     h.CreatedAt,
		UpdatedAt:     h.UpdatedAt,
	}
	switch x := e.(type) {
	case *folio.Advance:
		r.PaymentMode = x.PaymentMode
		r.ReferenceNo = x.ReferenceNo
		r.CardCompany = x.CreditCardCompany
		r.CardNo = x.CreditCardNo
		r.BillNo = x.BillNo
		r.IdempotencyKey = x.IdempotencyKey
	case *folio.AdditionalCharge:
		r.ChargeType = x.ChargeType
	case *folio.PostedTransaction:
		r.AccHead = x.AccHead
		r.VoucherNo = x.VoucherNo
		r.Narration = x.Narration
		r.BillNo = x.BillNo
		r.TxStatus = string(x.Status)
	case *folio.BillSettlement:
		r.BillID = x.BillID
		r.PaymentMode = x.PaymentMode
	}
	return r
}

// Args returns bind values in EntryColumns order, with the two timestamps
// rendered by ts. The idempotency key is NULL when empty so the unique
// index ignores it.
func (r EntryRow) Args(ts func(time.Time) any) []any {
	return []any{
		r.ID, r.Kind, r.FolioNo, r.ReservationNo, r.Amount, r.OccurredDate,
		r.GuestName, r.RoomNo, r.UserID, r.Remarks,
		r.PaymentMode, r.ReferenceNo, r.CardCompany, r.CardNo, r.BillNo,
		NullString(r.IdempotencyKey), r.ChargeType, r.AccHead, r.VoucherNo, r.Narration, r.TxStatus,
		r.BillID, ts(r.CreatedAt), ts(r.UpdatedAt),
	}
}

// Entry rebuilds the typed entry.
func (r EntryRow) Entry() (folio.Entry, error) {
	kind := folio.EntryKind(r.Kind)
	e := folio.NewEntry(kind)
	if e == nil {
		return nil, fmt.Errorf("unknown entry kind %q", r.Kind)
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("entry %s: invalid amount %q: %w", r.ID, r.Amount, err)
	}
	date, err := folio.ParseDate(r.OccurredDate)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", r.ID, err)
	}

	*e.Header() = folio.EntryHeader{
		ID:            r.ID,
		FolioNo:       r.FolioNo,
		ReservationNo: r.ReservationNo,
		Amount:        amount,
		OccurredDate:  date,
		GuestName:     r.GuestName,
		RoomNo:        r.RoomNo,
		UserID:        r.UserID,
		Remarks:       r.Remarks,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	switch x := e.(type) {
	case *folio.Advance:
		x.PaymentMode = r.PaymentMode
		x.ReferenceNo = r.ReferenceNo
		x.CreditCardCompany = r.CardCompany
		x.CreditCardNo = r.CardNo
		x.BillNo = r.BillNo
		x.IdempotencyKey = r.IdempotencyKey
	case *folio.AdditionalCharge:
		x.ChargeType = r.ChargeType
	case *folio.PostedTransaction:
		x.AccHead = r.AccHead
		x.VoucherNo = r.VoucherNo
		x.Narration = r.Narration
		x.BillNo = r.BillNo
		x.Status = folio.TransactionStatus(r.TxStatus)
	case *folio.BillSettlement:
		x.BillID = r.BillID
		x.PaymentMode = r.PaymentMode
	}
	return e, nil
}

// EntryWhere renders f as a WHERE clause (without the keyword) and its args.
// An empty filter yields "1=1".
func EntryWhere(f folio.EntryFilter, ph Placeholder) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond, sqlType string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, ph(len(args), sqlType)))
	}

	if f.Kind != "" {
		add("kind = %s", "", string(f.Kind))
	}
	if f.FolioNo != "" {
		add("folio_no = %s", "", f.FolioNo)
	}
	if f.ReservationNo != "" {
		add("reservation_no = %s", "", f.ReservationNo)
	}
	if f.ReservationOnly {
		conds = append(conds, "folio_no = ''")
	}
	if f.IdempotencyKey != "" {
		add("idempotency_key = %s", "", f.IdempotencyKey)
	}
	if f.BillID != "" {
		add("bill_id = %s", "", f.BillID)
	}
	if f.BillIDs != nil {
		if len(f.BillIDs) == 0 {
			conds = append(conds, "1=0")
		} else {
			marks := make([]string, len(f.BillIDs))
			for i, id := range f.BillIDs {
				args = append(args, id)
				marks[i] = ph(len(args), "")
			}
			conds = append(conds, "bill_id IN ("+strings.Join(marks, ", ")+")")
		}
	}
	if !f.Range.From.IsZero() {
		add("occurred_date >= %s", "date", f.Range.From.String())
	}
	if !f.Range.To.IsZero() {
		add("occurred_date <= %s", "date", f.Range.To.String())
	}

	if len(conds) == 0 {
		return "1=1", nil
	}
	return strings.Join(conds, " AND "), args
}

// EntryOrder is the stable listing order shared by every store.
const EntryOrder = "occurred_date ASC, created_at ASC, id ASC"

// =============================================================================
// STAYS
// =============================================================================

var StayColumns = []string{
	"id", "folio_no", "reservation_no", "guest_name", "room_no",
	"from_date", "to_date", "check_in_date", "check_out_date",
	"status", "remarks", "user_id", "checkout_reversed", "version",
	"created_at", "updated_at",
}

type StayRow struct {
	ID               string
	FolioNo          string
	ReservationNo    string
	GuestName        string
	RoomNo           string
	FromDate         string
	ToDate           string
	CheckInDate      string
	CheckOutDate     string
	Status           string
	Remarks          string
	UserID           string
	CheckoutReversed bool
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func FromStay(s folio.Stay) StayRow {
	return StayRow{
		ID:               s.ID,
		FolioNo:          s.FolioNo,
		ReservationNo:    s.ReservationNo,
		GuestName:        s.GuestName,
		RoomNo:           s.RoomNo,
		FromDate:         s.FromDate.String(),
		ToDate:           s.ToDate.String(),
		CheckInDate:      s.CheckInDate.String(),
		CheckOutDate:     s.CheckOutDate.String(),
		Status:           string(s.Status),
		Remarks:          s.Remarks,
		UserID:           s.UserID,
		CheckoutReversed: s.CheckoutReversed,
		Version:          s.Version,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

// Args returns bind values in StayColumns order. Empty identifiers and
// dates are NULL.
func (r StayRow) Args(ts func(time.Time) any) []any {
	return []any{
		r.ID, NullString(r.FolioNo), NullString(r.ReservationNo), r.GuestName, r.RoomNo,
		NullString(r.FromDate), NullString(r.ToDate), NullString(r.CheckInDate), NullString(r.CheckOutDate),
		r.Status, r.Remarks, r.UserID, r.CheckoutReversed, r.Version,
		ts(r.CreatedAt), ts(r.UpdatedAt),
	}
}

func (r StayRow) Stay() (folio.Stay, error) {
	s := folio.Stay{
		ID:               r.ID,
		FolioNo:          r.FolioNo,
		ReservationNo:    r.ReservationNo,
		GuestName:        r.GuestName,
		RoomNo:           r.RoomNo,
		Status:           folio.StayStatus(r.Status),
		Remarks:          r.Remarks,
		UserID:           r.UserID,
		CheckoutReversed: r.CheckoutReversed,
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	var err error
	for _, d := range []struct {
		dst *folio.Date
		src string
	}{
		{&s.FromDate, r.FromDate},
		{&s.ToDate, r.ToDate},
		{&s.CheckInDate, r.CheckInDate},
		{&s.CheckOutDate, r.CheckOutDate},
	} {
		if *d.dst, err = folio.ParseDate(d.src); err != nil {
			return folio.Stay{}, fmt.Errorf("stay %s: %w", r.ID, err)
		}
	}
	return s, nil
}

// StayWhere renders f like EntryWhere.
func StayWhere(f folio.StayFilter, ph Placeholder) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, "status = "+ph(len(args), ""))
	}
	if !f.CheckOut.IsOpen() {
		conds = append(conds, "check_out_date IS NOT NULL")
	}
	if !f.CheckOut.From.IsZero() {
		args = append(args, f.CheckOut.From.String())
		conds = append(conds, "check_out_date >= "+ph(len(args), "date"))
	}
	if !f.CheckOut.To.IsZero() {
		args = append(args, f.CheckOut.To.String())
		conds = append(conds, "check_out_date <= "+ph(len(args), "date"))
	}
	if len(conds) == 0 {
		return "1=1", nil
	}
	return strings.Join(conds, " AND "), args
}

// =============================================================================
// BILLS
// =============================================================================

var BillColumns = []string{"id", "folio_no", "total_amount", "bill_date", "user_id", "created_at"}

type BillRow struct {
	ID          string
	FolioNo     string
	TotalAmount string
	BillDate    string
	UserID      string
	CreatedAt   time.Time
}

func FromBill(b folio.Bill) BillRow {
	return BillRow{
		ID:          b.ID,
		FolioNo:     b.FolioNo,
		TotalAmount: b.TotalAmount.String(),
		BillDate:    b.BillDate.String(),
		UserID:      b.UserID,
		CreatedAt:   b.CreatedAt,
	}
}

func (r BillRow) Args(ts func(time.Time) any) []any {
	return []any{r.ID, r.FolioNo, r.TotalAmount, r.BillDate, r.UserID, ts(r.CreatedAt)}
}

func (r BillRow) Bill() (folio.Bill, error) {
	total, err := decimal.NewFromString(r.TotalAmount)
	if err != nil {
		return folio.Bill{}, fmt.Errorf("bill %s: invalid total %q: %w", r.ID, r.TotalAmount, err)
	}
	date, err := folio.ParseDate(r.BillDate)
	if err != nil {
		return folio.Bill{}, fmt.Errorf("bill %s: %w", r.ID, err)
	}
	return folio.Bill{
		ID:          r.ID,
		FolioNo:     r.FolioNo,
		TotalAmount: total,
		BillDate:    date,
		UserID:      r.UserID,
		CreatedAt:   r.CreatedAt,
	}, nil
}

func BillWhere(f folio.BillFilter, ph Placeholder) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.FolioNo != "" {
		args = append(args, f.FolioNo)
		conds = append(conds, "folio_no = "+ph(len(args), ""))
	}
	if !f.Range.From.IsZero() {
		args = append(args, f.Range.From.String())
		conds = append(conds, "bill_date >= "+ph(len(args), "date"))
	}
	if !f.Range.To.IsZero() {
		args = append(args, f.Range.To.String())
		conds = append(conds, "bill_date <= "+ph(len(args), "date"))
	}
	if len(conds) == 0 {
		return "1=1", nil
	}
	return strings.Join(conds, " AND "), args
}

// =============================================================================
// HELPERS
// =============================================================================

// NullString returns nil for "" so the column stores NULL.
func NullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List joins column names for a SELECT or INSERT list.
func List(cols []string) string { return strings.Join(cols, ", ") }

// Marks renders len(cols) placeholders starting at 1. types maps a column
// name to its SQL type for typed placeholders.
func Marks(cols []string, ph Placeholder, types map[string]string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = ph(i+1, types[c])
	}
	return strings.Join(out, ", ")
}
