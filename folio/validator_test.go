package folio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/folio-engine/folio"
)

// =============================================================================
// AMOUNT / DATE
// =============================================================================

func TestValidator_RejectsNonPositiveAmount(t *testing.T) {
	// GIVEN: A checked-in folio
	// WHEN: Advances of 0 and -5 are validated
	// THEN: Both fail on the amount field

	f := newFixture(t)
	f.checkIn(t, "F100", "R100")
	v := f.ledger.Validator

	for _, amount := range []string{"0", "-5"} {
		a := advance("F100", amount, march(12))
		_, err := v.Validate(f.ctx, &a)

		var verr *folio.ValidationError
		require.ErrorAs(t, err, &verr, amount)
		assert.Equal(t, "amount", verr.Field)
		assert.True(t, folio.IsClientError(err))
	}
}

func TestValidator_RejectsFutureDate(t *testing.T) {
	f := newFixture(t)
	f.checkIn(t, "F100", "R100")

	a := advance("F100", "100", today.AddDays(1))
	_, err := f.ledger.Validator.Validate(f.ctx, &a)

	var verr *folio.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "occurred_date", verr.Field)
	assert.Contains(t, verr.Message, "future")
}

func TestValidator_TodayIsAccepted(t *testing.T) {
	f := newFixture(t)
	f.checkIn(t, "F100", "R100")

	a := advance("F100", "100", today)
	_, err := f.ledger.Validator.Validate(f.ctx, &a)
	assert.NoError(t, err)
}

func TestValidator_RejectsDateBeforeCheckIn(t *testing.T) {
	// GIVEN: Folio F100 checked in on March 10
	// WHEN: A charge dated March 9 is validated
	// THEN: It fails and names the check-in date

	f := newFixture(t)
	f.checkIn(t, "F100", "R100")

	c := folio.AdditionalCharge{
		EntryHeader: folio.EntryHeader{FolioNo: "F100", Amount: dec("40"), OccurredDate: march(9)},
		ChargeType:  "Minibar",
	}
	_, err := f.ledger.Validator.Validate(f.ctx, &c)

	var verr *folio.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "occurred_date", verr.Field)
	assert.Equal(t, ">= 2025-03-10", verr.Expected)
}

// =============================================================================
// PAYMENT MODE
// =============================================================================

func TestValidator_NormalizesPaymentMode(t *testing.T) {
	f := newFixture(t)
	f.checkIn(t, "F100", "R100")

	cases := map[string]string{
		"cash":            folio.ModeCash,
		"  CASH ":         folio.ModeCash,
		"upi":             folio.ModeUPI,
		"bank   transfer": folio.ModeBankTransfer,
		"Cheque":          folio.ModeCheque,
	}
	for in, want := range cases {
		a := advance("F100", "10", march(12))
		a.PaymentMode = in
		out, err := f.ledger.Validator.Validate(f.ctx, &a)
		require.NoError(t, err, in)
		assert.Equal(t, want, out.(*folio.Advance).PaymentMode, in)
	}
}

func TestValidator_UnknownPaymentModeListsVocabulary(t *testing.T) {
	f := newFixture(t)
	f.checkIn(t, "F100", "R100")

	a := advance("F100", "10", march(12))
	a.PaymentMode = "bitcoin"
	_, err := f.ledger.Validator.Validate(f.ctx, &a)

	var verr *folio.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "payment_mode", verr.Field)
	assert.Contains(t, verr.Expected, folio.ModeCreditCard)
	assert.Equal(t, "bitcoin", verr.Actual)
}

func TestValidator_CreditCardNeedsCompanyAndNumber(t *testing.T) {
	f := newFixture(t)
	f.checkIn(t, "F100", "R100")

	a := advance("F100", "10", march(12))
	a.PaymentMode = "credit card"
	_, err := f.ledger.Validator.Validate(f.ctx, &a)
	var verr *folio.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "credit_card_company", verr.Field)

	a.CreditCardCompany = "VISA"
	_, err = f.ledger.Validator.Validate(f.ctx, &a)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "credit_card_no", verr.Field)

	a.CreditCardNo = "4111111111111111"
	_, err = f.ledger.Validator.Validate(f.ctx, &a)
	assert.NoError(t, err)
}

// =============================================================================
// LINKAGE
// =============================================================================

func TestValidator_RequiresFolioOrReservation(t *testing.T) {
	f := newFixture(t)

	a := advance("", "10", march(12))
	_, err := f.ledger.Validator.Validate(f.ctx, &a)

	var verr *folio.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "folio_no", verr.Field)
}

func TestValidator_UnknownFolioIsNotFound(t *testing.T) {
	f := newFixture(t)

	a := advance("F404", "10", march(12))
	_, err := f.ledger.Validator.Validate(f.ctx, &a)

	var nf *folio.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "folio", nf.Resource)
	assert.True(t, folio.IsNotFound(err))
}

func TestValidator_FolioReservationMismatchIsConflict(t *testing.T) {
	// GIVEN: F100 is linked to R100, R200 is a different booking
	// WHEN: An advance names F100 with R200
	// THEN: It is rejected as a linkage conflict

	f := newFixture(t)
	f.checkIn(t, "F100", "R100")
	f.book(t, "R200", march(11))

	a := advance("F100", "10", march(12))
	a.ReservationNo = "R200"
	_, err := f.ledger.Validator.Validate(f.ctx, &a)

	assert.True(t, folio.IsConflict(err))
	assert.Contains(t, err.Error(), "not linked")
}

func TestValidator_ReservationPath(t *testing.T) {
	// GIVEN: Reservation R1 arriving March 12, no folio yet
	// WHEN: Advances dated March 11 and March 12 are validated
	// THEN: The early one fails, the on-arrival one passes

	f := newFixture(t)
	f.book(t, "R1", march(12))

	early := folio.Advance{
		EntryHeader: folio.EntryHeader{ReservationNo: "R1", Amount: dec("100"), OccurredDate: march(11)},
		PaymentMode: "cash",
	}
	_, err := f.ledger.Validator.Validate(f.ctx, &early)
	var verr *folio.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "reservation from date")

	onTime := early
	onTime.OccurredDate = march(12)
	_, err = f.ledger.Validator.Validate(f.ctx, &onTime)
	assert.NoError(t, err)
}

func TestValidator_UnknownReservationIsNotFound(t *testing.T) {
	f := newFixture(t)

	a := folio.Advance{
		EntryHeader: folio.EntryHeader{ReservationNo: "R404", Amount: dec("100"), OccurredDate: march(11)},
		PaymentMode: "cash",
	}
	_, err := f.ledger.Validator.Validate(f.ctx, &a)

	var nf *folio.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "reservation", nf.Resource)
}

func TestValidator_FillsGuestAndRoomWithoutOverwriting(t *testing.T) {
	f := newFixture(t)
	f.checkIn(t, "F100", "R100")

	blank := advance("F100", "10", march(12))
	out, err := f.ledger.Validator.Validate(f.ctx, &blank)
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", out.Header().GuestName)
	assert.Equal(t, "204", out.Header().RoomNo)

	named := advance("F100", "10", march(12))
	named.GuestName = "A. Rao"
	out, err = f.ledger.Validator.Validate(f.ctx, &named)
	require.NoError(t, err)
	assert.Equal(t, "A. Rao", out.Header().GuestName)
}

func TestValidator_DoesNotMutateInput(t *testing.T) {
	f := newFixture(t)
	f.checkIn(t, "F100", "R100")

	a := advance("F100", "10", march(12))
	_, err := f.ledger.Validator.Validate(f.ctx, &a)
	require.NoError(t, err)

	assert.Equal(t, "cash", a.PaymentMode)
	assert.Empty(t, a.GuestName)
}

// =============================================================================
// KIND-SPECIFIC FIELDS
// =============================================================================

func TestValidator_KindFields(t *testing.T) {
	f := newFixture(t)
	f.checkIn(t, "F100", "R100")
	h := folio.EntryHeader{FolioNo: "F100", Amount: dec("10"), OccurredDate: march(12)}

	_, err := f.ledger.Validator.Validate(f.ctx, &folio.AdditionalCharge{EntryHeader: h})
	var verr *folio.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "charge_type", verr.Field)

	_, err = f.ledger.Validator.Validate(f.ctx, &folio.PostedTransaction{EntryHeader: h})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "acc_head", verr.Field)

	_, err = f.ledger.Validator.Validate(f.ctx, &folio.PostedTransaction{EntryHeader: h, AccHead: "Restaurant", Status: "Unknown"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "status", verr.Field)

	out, err := f.ledger.Validator.Validate(f.ctx, &folio.PostedTransaction{EntryHeader: h, AccHead: "Restaurant"})
	require.NoError(t, err)
	assert.Equal(t, folio.TxPending, out.(*folio.PostedTransaction).Status)
}

func TestValidator_SettlementNeedsBillOnOrAfterBillDate(t *testing.T) {
	// GIVEN: A bill dated March 13
	// WHEN: Settlements dated March 12 and March 13 are validated
	// THEN: Only the second passes

	f := newFixture(t)
	f.checkIn(t, "F100", "R100")
	b := f.bill(t, "F100", "1000", march(13))

	missing := folio.BillSettlement{EntryHeader: folio.EntryHeader{Amount: dec("10"), OccurredDate: march(13)}}
	_, err := f.ledger.Validator.Validate(f.ctx, &missing)
	var verr *folio.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "bill_id", verr.Field)

	early := folio.BillSettlement{EntryHeader: folio.EntryHeader{Amount: dec("10"), OccurredDate: march(12)}, BillID: b.ID}
	_, err = f.ledger.Validator.Validate(f.ctx, &early)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "bill date")

	ok := early
	ok.OccurredDate = march(13)
	_, err = f.ledger.Validator.Validate(f.ctx, &ok)
	assert.NoError(t, err)

	unknown := ok
	unknown.BillID = "nope"
	_, err = f.ledger.Validator.Validate(f.ctx, &unknown)
	assert.True(t, folio.IsNotFound(err))
}

func TestValidator_SettlementTakesFolioFromBill(t *testing.T) {
	// GIVEN: Folios F100 and F200 and a bill on F100
	// WHEN: Settlements name no folio, a wrong folio, an unknown folio, or a foreign reservation
	// THEN: Only the first passes, and it is filed under F100 / R100

	f := newFixture(t)
	f.checkIn(t, "F100", "R100")
	f.checkIn(t, "F200", "R200")
	b := f.bill(t, "F100", "1000", march(13))

	base := folio.BillSettlement{EntryHeader: folio.EntryHeader{Amount: dec("10"), OccurredDate: march(13)}, BillID: b.ID}
	out, err := f.ledger.Validator.Validate(f.ctx, &base)
	require.NoError(t, err)
	assert.Equal(t, "F100", out.Header().FolioNo)
	assert.Equal(t, "R100", out.Header().ReservationNo)
	assert.Equal(t, "Asha Rao", out.Header().GuestName)

	for _, folioNo := range []string{"F200", "NO-SUCH-FOLIO"} {
		s := base
		s.FolioNo = folioNo
		_, err := f.ledger.Validator.Validate(f.ctx, &s)
		assert.True(t, folio.IsConflict(err), folioNo)
	}

	foreign := base
	foreign.ReservationNo = "R200"
	_, err = f.ledger.Validator.Validate(f.ctx, &foreign)
	assert.True(t, folio.IsConflict(err))

	matching := base
	matching.FolioNo = "F100"
	matching.ReservationNo = "R100"
	_, err = f.ledger.Validator.Validate(f.ctx, &matching)
	assert.NoError(t, err)
}

func TestLedger_SettlementListedUnderBillFolioOnly(t *testing.T) {
	f := newFixture(t)
	f.checkIn(t, "F100", "R100")
	f.checkIn(t, "F200", "R200")
	b := f.bill(t, "F100", "1000", march(13))

	_, err := f.ledger.CreateSettlement(f.ctx, folio.BillSettlement{
		EntryHeader: folio.EntryHeader{FolioNo: "F200", Amount: dec("10"), OccurredDate: march(13)},
		BillID:      b.ID,
	})
	require.True(t, folio.IsConflict(err))

	_, err = f.ledger.CreateSettlement(f.ctx, folio.BillSettlement{
		EntryHeader: folio.EntryHeader{Amount: dec("10"), OccurredDate: march(13)},
		BillID:      b.ID,
	})
	require.NoError(t, err)

	other, err := f.ledger.List(f.ctx, folio.EntryFilter{Kind: folio.KindSettlement, FolioNo: "F200"})
	require.NoError(t, err)
	assert.Empty(t, other)

	own, err := f.ledger.List(f.ctx, folio.EntryFilter{Kind: folio.KindSettlement, FolioNo: "F100"})
	require.NoError(t, err)
	assert.Len(t, own, 1)
}

func TestValidator_RejectsSubCentAmounts(t *testing.T) {
	// GIVEN: A checked-in folio
	// WHEN: Amounts finer than a cent are posted
	// THEN: They fail on the amount field; trailing zeros are fine

	f := newFixture(t)
	f.checkIn(t, "F100", "R100")

	for _, amount := range []string{"0.001", "10.005"} {
		a := advance("F100", amount, march(12))
		_, err := f.ledger.Validator.Validate(f.ctx, &a)

		var verr *folio.ValidationError
		require.ErrorAs(t, err, &verr, amount)
		assert.Equal(t, "amount", verr.Field)
	}

	a := advance("F100", "10.500", march(12))
	_, err := f.ledger.Validator.Validate(f.ctx, &a)
	assert.NoError(t, err)

	_, err = f.ledger.CreateBill(f.ctx, folio.BillRequest{FolioNo: "F100", Subtotal: dec("99.999"), BillDate: march(13)})
	var verr *folio.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "subtotal", verr.Field)
}
