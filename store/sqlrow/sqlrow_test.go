package sqlrow_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/folio-engine/folio"
	"github.com/warp/folio-engine/store/sqlrow"
)

func day(d int) folio.Date { return folio.NewDate(2025, time.March, d) }

func identity(t time.Time) any { return t }

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", sqlrow.Question(3, "date"))
	assert.Equal(t, "$2", sqlrow.Dollar(2, ""))
	assert.Equal(t, "$4::text::date", sqlrow.Dollar(4, "date"))

	marks := sqlrow.Marks([]string{"id", "bill_date", "user_id"}, sqlrow.Dollar, map[string]string{"bill_date": "date"})
	assert.Equal(t, "$1, $2::text::date, $3", marks)
}

func TestEntryWhere(t *testing.T) {
	where, args := sqlrow.EntryWhere(folio.EntryFilter{}, sqlrow.Question)
	assert.Equal(t, "1=1", where)
	assert.Empty(t, args)

	// GIVEN: A folio filter bounded by dates
	// WHEN: Rendered for PostgreSQL
	// THEN: Placeholders are numbered in argument order and dates are cast

	where, args = sqlrow.EntryWhere(folio.EntryFilter{
		Kind:    folio.KindAdvance,
		FolioNo: "F1",
		Range:   folio.DateRange{From: day(1), To: day(31)},
	}, sqlrow.Dollar)
	assert.Equal(t, "kind = $1 AND folio_no = $2 AND occurred_date >= $3::text::date AND occurred_date <= $4::text::date", where)
	assert.Equal(t, []any{"advance", "F1", "2025-03-01", "2025-03-31"}, args)

	where, args = sqlrow.EntryWhere(folio.EntryFilter{ReservationNo: "R1", ReservationOnly: true}, sqlrow.Question)
	assert.Equal(t, "reservation_no = ? AND folio_no = ''", where)
	assert.Equal(t, []any{"R1"}, args)
}

func TestEntryWhere_BillIDs(t *testing.T) {
	where, args := sqlrow.EntryWhere(folio.EntryFilter{BillIDs: []string{}}, sqlrow.Question)
	assert.Equal(t, "1=0", where)
	assert.Empty(t, args)

	where, args = sqlrow.EntryWhere(folio.EntryFilter{Kind: folio.KindSettlement, BillIDs: []string{"b1", "b2"}}, sqlrow.Dollar)
	assert.Equal(t, "kind = $1 AND bill_id IN ($2, $3)", where)
	assert.Equal(t, []any{"settlement", "b1", "b2"}, args)
}

func TestStayWhere(t *testing.T) {
	where, _ := sqlrow.StayWhere(folio.StayFilter{}, sqlrow.Question)
	assert.Equal(t, "1=1", where)

	where, args := sqlrow.StayWhere(folio.StayFilter{
		Status:   folio.StatusCheckedOut,
		CheckOut: folio.DateRange{From: day(1)},
	}, sqlrow.Dollar)
	assert.Equal(t, "status = $1 AND check_out_date IS NOT NULL AND check_out_date >= $2::text::date", where)
	assert.Equal(t, []any{"CHECKED_OUT", "2025-03-01"}, args)
}

func TestBillWhere(t *testing.T) {
	where, args := sqlrow.BillWhere(folio.BillFilter{FolioNo: "F1", Range: folio.DateRange{To: day(15)}}, sqlrow.Question)
	assert.Equal(t, "folio_no = ? AND bill_date <= ?", where)
	assert.Equal(t, []any{"F1", "2025-03-15"}, args)
}

func TestEntryRow_RoundTrip(t *testing.T) {
	// GIVEN: A posted transaction
	// WHEN: Flattened to a row and rebuilt
	// THEN: The kind-specific columns come back, unused ones stay empty

	in := &folio.PostedTransaction{
		EntryHeader: folio.EntryHeader{
			ID:           "t1",
			FolioNo:      "F1",
			Amount:       decimal.RequireFromString("75.25"),
			OccurredDate: day(12),
		},
		AccHead: "Restaurant",
		Status:  folio.TxFailed,
	}

	row := sqlrow.FromEntry(in)
	assert.Equal(t, "75.25", row.Amount)
	assert.Equal(t, "2025-03-12", row.OccurredDate)
	assert.Empty(t, row.PaymentMode)

	args := row.Args(identity)
	require.Len(t, args, len(sqlrow.EntryColumns))
	assert.Nil(t, args[15], "empty idempotency key is stored as NULL")

	out, err := row.Entry()
	require.NoError(t, err)
	tx, ok := out.(*folio.PostedTransaction)
	require.True(t, ok)
	assert.Equal(t, folio.TxFailed, tx.Status)
	assert.True(t, tx.Amount.Equal(in.Amount))
	assert.True(t, tx.OccurredDate.Equal(day(12)))
}

func TestEntryRow_RejectsBadRows(t *testing.T) {
	_, err := sqlrow.EntryRow{ID: "x", Kind: "refund", Amount: "1", OccurredDate: "2025-03-01"}.Entry()
	assert.Error(t, err)

	_, err = sqlrow.EntryRow{ID: "x", Kind: "charge", Amount: "1.2.3", OccurredDate: "2025-03-01"}.Entry()
	assert.Error(t, err)
}

func TestStayRow_NullableColumns(t *testing.T) {
	walkIn := folio.Stay{ID: "s1", FolioNo: "F1", CheckInDate: day(10), Status: folio.StatusCheckedIn}

	args := sqlrow.FromStay(walkIn).Args(identity)
	require.Len(t, args, len(sqlrow.StayColumns))
	assert.Equal(t, "F1", args[1])
	assert.Nil(t, args[2], "reservation_no")
	assert.Nil(t, args[8], "check_out_date")

	back, err := sqlrow.FromStay(walkIn).Stay()
	require.NoError(t, err)
	assert.True(t, back.CheckOutDate.IsZero())
	assert.True(t, back.CheckInDate.Equal(day(10)))
}
