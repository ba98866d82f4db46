/*
report.go - Read-only projections over the ledger

PURPOSE:
  Day and period reports for the back office: payments by day and mode,
  charges by type, daily totals and a period financial summary. Every
  report reads inside one Store.Snapshot and never writes.

FORMULAS:
  revenue     = Σ bills + Σ charges
  collections = Σ advances + Σ settlements
  outstanding = revenue - collections   (same terms as a folio balance)
*/
package folio

import (
	"context"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"
)

type Projector struct {
	Store  Store
	Logger *slog.Logger
}

func NewProjector(store Store, logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{Store: store, Logger: logger}
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentFilter narrows a payment report. Empty fields do not filter.
type PaymentFilter struct {
	Range         DateRange
	PaymentMode   string
	FolioNo       string
	ReservationNo string
	GuestName     string
}

// PaymentSummaryRow aggregates advances of one payment mode on one day.
type PaymentSummaryRow struct {
	Date        Date
	PaymentMode string
	Count       int
	Total       decimal.Decimal
}

// PaymentSummary groups advances by day and mode, ordered by day then mode.
func (p *Projector) PaymentSummary(ctx context.Context, f PaymentFilter) ([]PaymentSummaryRow, error) {
	if !f.Range.Valid() {
		return nil, invalid("to", "end date before start date")
	}
	if !blank(f.PaymentMode) {
		mode, ok := NormalizePaymentMode(f.PaymentMode)
		if !ok {
			return nil, &ValidationError{Field: "payment_mode", Message: "invalid payment mode", Expected: "one of " + joinModes(), Actual: f.PaymentMode}
		}
		f.PaymentMode = mode
	}

	var advances []Advance
	err := p.Store.Snapshot(ctx, func(r Reader) error {
		entries, err := r.ListEntries(ctx, EntryFilter{
			Kind:          KindAdvance,
			FolioNo:       f.FolioNo,
			ReservationNo: f.ReservationNo,
			Range:         f.Range,
		})
		advances = Advances(entries)
		return err
	})
	if err != nil {
		return nil, storeErr("payment summary", err)
	}

	type key struct {
		day  string
		mode string
	}
	rows := make(map[key]*PaymentSummaryRow)
	for _, a := range advances {
		if f.PaymentMode != "" && a.PaymentMode != f.PaymentMode {
			continue
		}
		if f.GuestName != "" && a.GuestName != f.GuestName {
			continue
		}
		k := key{a.OccurredDate.String(), a.PaymentMode}
		row, ok := rows[k]
		if !ok {
			row = &PaymentSummaryRow{Date: a.OccurredDate, PaymentMode: a.PaymentMode, Total: decimal.Zero}
			rows[k] = row
		}
		row.Count++
		row.Total = row.Total.Add(a.Amount)
	}

	out := make([]PaymentSummaryRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].PaymentMode < out[j].PaymentMode
	})
	return out, nil
}

// ModeTotals sums advances per payment mode over r.
func (p *Projector) ModeTotals(ctx context.Context, r DateRange) (map[string]decimal.Decimal, error) {
	rows, err := p.PaymentSummary(ctx, PaymentFilter{Range: r})
	if err != nil {
		return nil, err
	}
	return modeBreakdown(rows), nil
}

func modeBreakdown(rows []PaymentSummaryRow) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, row := range rows {
		out[row.PaymentMode] = out[row.PaymentMode].Add(row.Total)
	}
	return out
}

// =============================================================================
// CHARGES / BILLS
// =============================================================================

type ChargeSummaryRow struct {
	ChargeType string
	Count      int
	Total      decimal.Decimal
	Charges    []AdditionalCharge
}

// ChargeSummary groups charges in r by charge type. A non-empty chargeType
// restricts the report to that type.
func (p *Projector) ChargeSummary(ctx context.Context, r DateRange, chargeType string) ([]ChargeSummaryRow, error) {
	if !r.Valid() {
		return nil, invalid("to", "end date before start date")
	}
	var charges []AdditionalCharge
	err := p.Store.Snapshot(ctx, func(rd Reader) error {
		entries, err := rd.ListEntries(ctx, EntryFilter{Kind: KindCharge, Range: r})
		charges = Charges(entries)
		return err
	})
	if err != nil {
		return nil, storeErr("charge summary", err)
	}

	rows := make(map[string]*ChargeSummaryRow)
	for _, c := range charges {
		if chargeType != "" && c.ChargeType != chargeType {
			continue
		}
		row, ok := rows[c.ChargeType]
		if !ok {
			row = &ChargeSummaryRow{ChargeType: c.ChargeType, Total: decimal.Zero}
			rows[c.ChargeType] = row
		}
		row.Count++
		row.Total = row.Total.Add(c.Amount)
		row.Charges = append(row.Charges, c)
	}

	out := make([]ChargeSummaryRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChargeType < out[j].ChargeType })
	return out, nil
}

// Bills lists bills dated in r, optionally for one folio.
func (p *Projector) Bills(ctx context.Context, r DateRange, folioNo string) ([]Bill, error) {
	if !r.Valid() {
		return nil, invalid("to", "end date before start date")
	}
	bills, err := p.Store.ListBills(ctx, BillFilter{FolioNo: folioNo, Range: r})
	if err != nil {
		return nil, storeErr("list bills", err)
	}
	return bills, nil
}

// =============================================================================
// PERIOD TOTALS
// =============================================================================

type FinancialSummary struct {
	Range         DateRange
	Advances      decimal.Decimal
	Bills         decimal.Decimal
	Settlements   decimal.Decimal
	Charges       decimal.Decimal
	Transactions  decimal.Decimal
	Revenue       decimal.Decimal
	Collections   decimal.Decimal
	Outstanding   decimal.Decimal
	ModeBreakdown map[string]decimal.Decimal
}

// periodTotals is shared by the financial and daily reports.
type periodTotals struct {
	advances, charges, transactions, settlements []Entry
	bills                                         []Bill
}

func (p *Projector) load(ctx context.Context, r DateRange) (periodTotals, error) {
	var t periodTotals
	err := p.Store.Snapshot(ctx, func(rd Reader) error {
		var err error
		if t.advances, err = rd.ListEntries(ctx, EntryFilter{Kind: KindAdvance, Range: r}); err != nil {
			return err
		}
		if t.charges, err = rd.ListEntries(ctx, EntryFilter{Kind: KindCharge, Range: r}); err != nil {
			return err
		}
		if t.transactions, err = rd.ListEntries(ctx, EntryFilter{Kind: KindTransaction, Range: r}); err != nil {
			return err
		}
		if t.settlements, err = rd.ListEntries(ctx, EntryFilter{Kind: KindSettlement, Range: r}); err != nil {
			return err
		}
		t.bills, err = rd.ListBills(ctx, BillFilter{Range: r})
		return err
	})
	return t, err
}

func (p *Projector) FinancialSummary(ctx context.Context, r DateRange) (FinancialSummary, error) {
	if !r.Valid() {
		return FinancialSummary{}, invalid("to", "end date before start date")
	}
	t, err := p.load(ctx, r)
	if err != nil {
		return FinancialSummary{}, storeErr("financial summary", err)
	}

	s := FinancialSummary{
		Range:        r,
		Advances:     TotalOf(t.advances),
		Charges:      TotalOf(t.charges),
		Transactions: TotalOf(t.transactions),
		Settlements:  TotalOf(t.settlements),
		Bills:        Reconcile(t.bills, nil, nil, nil, nil).Bills,
	}
	s.Revenue = s.Bills.Add(s.Charges)
	s.Collections = s.Advances.Add(s.Settlements)
	s.Outstanding = s.Revenue.Sub(s.Collections)

	s.ModeBreakdown = make(map[string]decimal.Decimal)
	for _, a := range Advances(t.advances) {
		s.ModeBreakdown[a.PaymentMode] = s.ModeBreakdown[a.PaymentMode].Add(a.Amount)
	}

	p.Logger.Debug("financial summary", slog.String("range", r.String()), slog.String("outstanding", s.Outstanding.String()))
	return s, nil
}

type DailySummary struct {
	Date            Date
	Advances        decimal.Decimal
	Bills           decimal.Decimal
	Settlements     decimal.Decimal
	Charges         decimal.Decimal
	Transactions    decimal.Decimal
	NetRevenue      decimal.Decimal
	AdvanceCount    int
	BillCount       int
	SettlementCount int
	ChargeCount     int
}

func (p *Projector) DailySummary(ctx context.Context, day Date) (DailySummary, error) {
	if day.IsZero() {
		return DailySummary{}, invalid("date", "report date is required")
	}
	t, err := p.load(ctx, DateRange{From: day, To: day})
	if err != nil {
		return DailySummary{}, storeErr("daily summary", err)
	}
	s := DailySummary{
		Date:            day,
		Advances:        TotalOf(t.advances),
		Charges:         TotalOf(t.charges),
		Transactions:    TotalOf(t.transactions),
		Settlements:     TotalOf(t.settlements),
		Bills:           Reconcile(t.bills, nil, nil, nil, nil).Bills,
		AdvanceCount:    len(t.advances),
		BillCount:       len(t.bills),
		SettlementCount: len(t.settlements),
		ChargeCount:     len(t.charges),
	}
	s.NetRevenue = s.Bills.Add(s.Charges)
	return s, nil
}
