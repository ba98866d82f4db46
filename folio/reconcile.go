/*
reconcile.go - Outstanding balance and bill summary

PURPOSE:
  Computes aggregate totals and the balance due for a folio on demand.
  Balance is always derived by summing entries - there is no stored balance
  field that can drift.

FORMULA:
  balanceDue = Σ bills.total + Σ charges - Σ settlements - Σ advances

  - advances and charges are scoped by entry.folioNo
  - settlements are scoped through the bill: settlement.billId -> bill.folioNo
  - with no bills yet (pre-checkout) the bill and settlement terms are zero,
    so balanceDue = Σ charges - Σ advances
  - reservation-only advances carry no folio number and are never part of
    balanceDue; the summary lists them separately (see ledger.go)
  - posted transactions are reported but not part of balanceDue

CONSISTENCY:
  The four collections are read inside one Store.Snapshot so a concurrent
  insert cannot be half-counted.

SEE ALSO:
  - checkout.go: reports the final outstanding at checkout
  - tax.go: derived percentage amounts
*/
package folio

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TOTALS - pure aggregation
// =============================================================================

// Totals is the aggregation result for one folio.
type Totals struct {
	Bills        decimal.Decimal
	Charges      decimal.Decimal
	Settlements  decimal.Decimal
	Advances     decimal.Decimal
	Transactions decimal.Decimal
	BalanceDue   decimal.Decimal
}

// Reconcile aggregates already-scoped collections. Settlements must already
// be restricted to bills of the folio. The result does not depend on the
// order of the inputs.
func Reconcile(bills []Bill, settlements []BillSettlement, charges []AdditionalCharge, advances []Advance, txs []PostedTransaction) Totals {
	var t Totals
	t.Bills = decimal.Zero
	for _, b := range bills {
		t.Bills = t.Bills.Add(b.TotalAmount)
	}
	t.Settlements = decimal.Zero
	for _, s := range settlements {
		t.Settlements = t.Settlements.Add(s.Amount)
	}
	t.Charges = decimal.Zero
	for _, c := range charges {
		t.Charges = t.Charges.Add(c.Amount)
	}
	t.Advances = decimal.Zero
	for _, a := range advances {
		t.Advances = t.Advances.Add(a.Amount)
	}
	t.Transactions = decimal.Zero
	for _, tx := range txs {
		t.Transactions = t.Transactions.Add(tx.Amount)
	}
	t.BalanceDue = t.Bills.Add(t.Charges).Sub(t.Settlements).Sub(t.Advances)
	return t
}

// =============================================================================
// ENGINE
// =============================================================================

// Summary is the full picture of one folio.
type Summary struct {
	Stay         Stay
	Bills        []Bill
	Settlements  []BillSettlement
	Charges      []AdditionalCharge
	Advances     []Advance
	Transactions []PostedTransaction
	Totals       Totals

	// ReservationAdvances were taken against the stay's reservation before
	// check-in. Informational only.
	ReservationAdvances []Advance
}

// Engine computes balances. It never mutates the store.
type Engine struct {
	Store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{Store: store}
}

// Outstanding returns the balance due for folioNo.
func (e *Engine) Outstanding(ctx context.Context, folioNo string) (decimal.Decimal, error) {
	s, err := e.BillSummary(ctx, folioNo)
	if err != nil {
		return decimal.Zero, err
	}
	return s.Totals.BalanceDue, nil
}

// BillSummary loads every collection for folioNo in one snapshot.
func (e *Engine) BillSummary(ctx context.Context, folioNo string) (Summary, error) {
	var summary Summary
	err := e.Store.Snapshot(ctx, func(r Reader) error {
		var err error
		summary, err = SummarizeFolio(ctx, r, folioNo)
		return err
	})
	if err != nil {
		return Summary{}, storeErr("bill summary", err)
	}
	return summary, nil
}

// SummarizeFolio aggregates folioNo using r. Callers that already hold a
// snapshot use it directly.
func SummarizeFolio(ctx context.Context, r Reader, folioNo string) (Summary, error) {
	if blank(folioNo) {
		return Summary{}, invalid("folio_no", "folio number is required")
	}
	stay, err := r.StayByFolio(ctx, folioNo)
	if err != nil {
		if errors.Is(err, ErrStayNotFound) {
			return Summary{}, notFound("folio", folioNo)
		}
		return Summary{}, err
	}

	bills, err := r.ListBills(ctx, BillFilter{FolioNo: folioNo})
	if err != nil {
		return Summary{}, err
	}

	var settlements []BillSettlement
	if len(bills) > 0 {
		ids := make([]string, len(bills))
		for i, b := range bills {
			ids[i] = b.ID
		}
		entries, err := r.ListEntries(ctx, EntryFilter{Kind: KindSettlement, BillIDs: ids})
		if err != nil {
			return Summary{}, err
		}
		settlements = Settlements(entries)
	}

	charges, err := r.ListEntries(ctx, EntryFilter{Kind: KindCharge, FolioNo: folioNo})
	if err != nil {
		return Summary{}, err
	}
	advances, err := r.ListEntries(ctx, EntryFilter{Kind: KindAdvance, FolioNo: folioNo})
	if err != nil {
		return Summary{}, err
	}
	txs, err := r.ListEntries(ctx, EntryFilter{Kind: KindTransaction, FolioNo: folioNo})
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		Stay:         stay,
		Bills:        bills,
		Settlements:  settlements,
		Charges:      Charges(charges),
		Advances:     Advances(advances),
		Transactions: Transactions(txs),
	}
	s.Totals = Reconcile(s.Bills, s.Settlements, s.Charges, s.Advances, s.Transactions)

	if stay.ReservationNo != "" {
		pre, err := r.ListEntries(ctx, EntryFilter{Kind: KindAdvance, ReservationNo: stay.ReservationNo, ReservationOnly: true})
		if err != nil {
			return Summary{}, err
		}
		s.ReservationAdvances = Advances(pre)
	}
	return s, nil
}
