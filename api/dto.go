/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the folio domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Stays:        StayRequest, StayDTO
  Entries:      EntryRequest, EntryDTO (one shape for all four kinds)
  Bills:        BillRequest, BillDTO
  Folio:        SummaryDTO, TotalsDTO, OutstandingDTO
  Checkout:     CheckoutRequest, PaymentRequest, EligibilityDTO, ReceiptDTO
  Reports:      PaymentRowDTO, ChargeRowDTO, FinancialDTO, DailyDTO
  Guest:        JourneyDTO, JourneyEventDTO, GuestPaymentsDTO
  Night audit:  AuditRequest, AuditRunDTO
  Demo:         ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Shape checks (required, lengths, enums) live in `validate` tags and run
  in the handler via go-playground/validator. Business rules (dates,
  linkage, amounts) are enforced by the folio package.

MONEY:
  Amounts are decimal.Decimal and serialize as JSON strings ("1250.00").
  Requests accept either a string or a number.

SEE ALSO:
  - handlers.go: Uses these types
  - folio/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/folio-engine/folio"
)

// =============================================================================
// STAYS
// =============================================================================

// StayRequest registers a reservation or a check-in. Posting again with the
// same folio or reservation updates the descriptive fields.
type StayRequest struct {
	FolioNo       string     `json:"folio_no" validate:"required_without=ReservationNo,max=32"`
	ReservationNo string     `json:"reservation_no" validate:"max=32"`
	GuestName     string     `json:"guest_name" validate:"max=255"`
	RoomNo        string     `json:"room_no" validate:"max=16"`
	FromDate      folio.Date `json:"from_date"`
	ToDate        folio.Date `json:"to_date"`
	CheckInDate   folio.Date `json:"check_in_date"`
	Remarks       string     `json:"remarks" validate:"max=500"`
	UserID        string     `json:"user_id" validate:"max=64"`
}

type StayDTO struct {
	ID               string           `json:"id"`
	FolioNo          string           `json:"folio_no,omitempty"`
	ReservationNo    string           `json:"reservation_no,omitempty"`
	GuestName        string           `json:"guest_name,omitempty"`
	RoomNo           string           `json:"room_no,omitempty"`
	FromDate         folio.Date       `json:"from_date"`
	ToDate           folio.Date       `json:"to_date"`
	CheckInDate      folio.Date       `json:"check_in_date"`
	CheckOutDate     folio.Date       `json:"check_out_date"`
	Status           folio.StayStatus `json:"status"`
	Remarks          string           `json:"remarks,omitempty"`
	UserID           string           `json:"user_id,omitempty"`
	CheckoutReversed bool             `json:"checkout_reversed"`
	Version          int64            `json:"version"`
	CreatedAt        string           `json:"created_at,omitempty"`
	UpdatedAt        string           `json:"updated_at,omitempty"`
}

func toStayDTO(s folio.Stay) StayDTO {
	return StayDTO{
		ID:               s.ID,
		FolioNo:          s.FolioNo,
		ReservationNo:    s.ReservationNo,
		GuestName:        s.GuestName,
		RoomNo:           s.RoomNo,
		FromDate:         s.FromDate,
		ToDate:           s.ToDate,
		CheckInDate:      s.CheckInDate,
		CheckOutDate:     s.CheckOutDate,
		Status:           s.Status,
		Remarks:          s.Remarks,
		UserID:           s.UserID,
		CheckoutReversed: s.CheckoutReversed,
		Version:          s.Version,
		CreatedAt:        formatTimestamp(s.CreatedAt),
		UpdatedAt:        formatTimestamp(s.UpdatedAt),
	}
}

func toStayDTOs(stays []folio.Stay) []StayDTO {
	out := make([]StayDTO, len(stays))
	for i, s := range stays {
		out[i] = toStayDTO(s)
	}
	return out
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

// EntryRequest carries any of the four entry kinds. Fields that do not
// belong to the kind being posted are ignored.
type EntryRequest struct {
	FolioNo       string          `json:"folio_no" validate:"max=32"`
	ReservationNo string          `json:"reservation_no" validate:"max=32"`
	Amount        decimal.Decimal `json:"amount"`
	Date          folio.Date      `json:"date"`
	GuestName     string          `json:"guest_name" validate:"max=255"`
	RoomNo        string          `json:"room_no" validate:"max=16"`
	UserID        string          `json:"user_id" validate:"max=64"`
	Remarks       string          `json:"remarks" validate:"max=500"`

	// Advance
	PaymentMode       string `json:"payment_mode" validate:"max=32"`
	ReferenceNo       string `json:"reference_no" validate:"max=64"`
	CreditCardCompany string `json:"credit_card_company" validate:"max=64"`
	CreditCardNo      string `json:"credit_card_no" validate:"max=32"`
	BillNo            string `json:"bill_no" validate:"max=64"`
	IdempotencyKey    string `json:"idempotency_key" validate:"max=128"`

	// Charge
	ChargeType string `json:"charge_type" validate:"max=64"`

	// Transaction
	AccHead   string `json:"acc_head" validate:"max=64"`
	VoucherNo string `json:"voucher_no" validate:"max=64"`
	Narration string `json:"narration" validate:"max=500"`
	Status    string `json:"status" validate:"omitempty,oneof=Pending Completed Failed pending completed failed"`

	// Settlement
	BillID string `json:"bill_id" validate:"max=64"`
}

// toEntry builds the concrete entry for kind.
func (req EntryRequest) toEntry(kind folio.EntryKind) folio.Entry {
	h := folio.EntryHeader{
		FolioNo:       req.FolioNo,
		ReservationNo: req.ReservationNo,
		Amount:        req.Amount,
		OccurredDate:  req.Date,
		GuestName:     req.GuestName,
		RoomNo:        req.RoomNo,
		UserID:        req.UserID,
		Remarks:       req.Remarks,
	}
	switch kind {
	case folio.KindAdvance:
		return &folio.Advance{
			EntryHeader:       h,
			PaymentMode:       req.PaymentMode,
			ReferenceNo:       req.ReferenceNo,
			CreditCardCompany: req.CreditCardCompany,
			CreditCardNo:      req.CreditCardNo,
			BillNo:            req.BillNo,
			IdempotencyKey:    req.IdempotencyKey,
		}
	case folio.KindCharge:
		return &folio.AdditionalCharge{EntryHeader: h, ChargeType: req.ChargeType}
	case folio.KindTransaction:
		return &folio.PostedTransaction{
			EntryHeader: h,
			AccHead:     req.AccHead,
			VoucherNo:   req.VoucherNo,
			Narration:   req.Narration,
			BillNo:      req.BillNo,
			Status:      folio.TransactionStatus(req.Status),
		}
	case folio.KindSettlement:
		return &folio.BillSettlement{EntryHeader: h, BillID: req.BillID, PaymentMode: req.PaymentMode}
	}
	return nil
}

// EntryDTO is the response shape for every entry kind.
type EntryDTO struct {
	ID            string          `json:"id"`
	Kind          folio.EntryKind `json:"kind"`
	FolioNo       string          `json:"folio_no,omitempty"`
	ReservationNo string          `json:"reservation_no,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Date          folio.Date      `json:"date"`
	GuestName     string          `json:"guest_name,omitempty"`
	RoomNo        string          `json:"room_no,omitempty"`
	UserID        string          `json:"user_id,omitempty"`
	Remarks       string          `json:"remarks,omitempty"`

	PaymentMode       string `json:"payment_mode,omitempty"`
	ReferenceNo       string `json:"reference_no,omitempty"`
	CreditCardCompany string `json:"credit_card_company,omitempty"`
	CreditCardNo      string `json:"credit_card_no,omitempty"`
	BillNo            string `json:"bill_no,omitempty"`
	IdempotencyKey    string `json:"idempotency_key,omitempty"`
	ChargeType        string `json:"charge_type,omitempty"`
	AccHead           string `json:"acc_head,omitempty"`
	VoucherNo         string `json:"voucher_no,omitempty"`
	Narration         string `json:"narration,omitempty"`
	Status            string `json:"status,omitempty"`
	BillID            string `json:"bill_id,omitempty"`

	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func toEntryDTO(e folio.Entry) EntryDTO {
	h := e.Header()
	dto := EntryDTO{
		ID:            h.ID,
		Kind:          e.Kind(),
		FolioNo:       h.FolioNo,
		ReservationNo: h.ReservationNo,
		Amount:        h.Amount,
		Date:          h.OccurredDate,
		GuestName:     h.GuestName,
		RoomNo:        h.RoomNo,
		UserID:        h.UserID,
		Remarks:       h.Remarks,
		CreatedAt:     formatTimestamp(h.CreatedAt),
		UpdatedAt:     formatTimestamp(h.UpdatedAt),
	}
	switch x := e.(type) {
	case *folio.Advance:
		dto.PaymentMode = x.PaymentMode
		dto.ReferenceNo = x.ReferenceNo
		dto.CreditCardCompany = x.CreditCardCompany
		dto.CreditCardNo = maskCard(x.CreditCardNo)
		dto.BillNo = x.BillNo
		dto.IdempotencyKey = x.IdempotencyKey
	case *folio.AdditionalCharge:
		dto.ChargeType = x.ChargeType
	case *folio.PostedTransaction:
		dto.AccHead = x.AccHead
		dto.VoucherNo = x.VoucherNo
		dto.Narration = x.Narration
		dto.BillNo = x.BillNo
		dto.Status = string(x.Status)
	case *folio.BillSettlement:
		dto.BillID = x.BillID
		dto.PaymentMode = x.PaymentMode
	}
	return dto
}

func toEntryDTOs(entries []folio.Entry) []EntryDTO {
	out := make([]EntryDTO, len(entries))
	for i, e := range entries {
		out[i] = toEntryDTO(e)
	}
	return out
}

// advanceEntries and its siblings turn typed views back into entries for
// rendering.
func advanceEntries(list []folio.Advance) []folio.Entry {
	out := make([]folio.Entry, len(list))
	for i := range list {
		out[i] = &list[i]
	}
	return out
}

func chargeEntries(list []folio.AdditionalCharge) []folio.Entry {
	out := make([]folio.Entry, len(list))
	for i := range list {
		out[i] = &list[i]
	}
	return out
}

func transactionEntries(list []folio.PostedTransaction) []folio.Entry {
	out := make([]folio.Entry, len(list))
	for i := range list {
		out[i] = &list[i]
	}
	return out
}

func settlementEntries(list []folio.BillSettlement) []folio.Entry {
	out := make([]folio.Entry, len(list))
	for i := range list {
		out[i] = &list[i]
	}
	return out
}

// maskCard keeps the last four digits of a card number.
func maskCard(no string) string {
	if len(no) <= 4 {
		return no
	}
	masked := make([]byte, len(no))
	for i := range masked {
		masked[i] = '*'
	}
	copy(masked[len(no)-4:], no[len(no)-4:])
	return string(masked)
}

// =============================================================================
// BILLS
// =============================================================================

type BillRequest struct {
	FolioNo  string          `json:"folio_no" validate:"required,max=32"`
	Subtotal decimal.Decimal `json:"subtotal"`
	ApplyTax bool            `json:"apply_tax"`
	BillDate folio.Date      `json:"bill_date"`
	UserID   string          `json:"user_id" validate:"max=64"`
}

type BillDTO struct {
	ID          string          `json:"id"`
	FolioNo     string          `json:"folio_no"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	BillDate    folio.Date      `json:"bill_date"`
	UserID      string          `json:"user_id,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
}

func toBillDTO(b folio.Bill) BillDTO {
	return BillDTO{
		ID:          b.ID,
		FolioNo:     b.FolioNo,
		TotalAmount: b.TotalAmount,
		BillDate:    b.BillDate,
		UserID:      b.UserID,
		CreatedAt:   formatTimestamp(b.CreatedAt),
	}
}

func toBillDTOs(bills []folio.Bill) []BillDTO {
	out := make([]BillDTO, len(bills))
	for i, b := range bills {
		out[i] = toBillDTO(b)
	}
	return out
}

// =============================================================================
// FOLIO BALANCE
// =============================================================================

type TotalsDTO struct {
	Bills        decimal.Decimal `json:"bills"`
	Charges      decimal.Decimal `json:"charges"`
	Settlements  decimal.Decimal `json:"settlements"`
	Advances     decimal.Decimal `json:"advances"`
	Transactions decimal.Decimal `json:"transactions"`
	BalanceDue   decimal.Decimal `json:"balance_due"`
}

func toTotalsDTO(t folio.Totals) TotalsDTO {
	return TotalsDTO{
		Bills:        t.Bills,
		Charges:      t.Charges,
		Settlements:  t.Settlements,
		Advances:     t.Advances,
		Transactions: t.Transactions,
		BalanceDue:   t.BalanceDue,
	}
}

type OutstandingDTO struct {
	FolioNo     string          `json:"folio_no"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

type SummaryDTO struct {
	Stay                StayDTO    `json:"stay"`
	Bills               []BillDTO  `json:"bills"`
	Settlements         []EntryDTO `json:"settlements"`
	Charges             []EntryDTO `json:"charges"`
	Advances            []EntryDTO `json:"advances"`
	Transactions        []EntryDTO `json:"transactions"`
	ReservationAdvances []EntryDTO `json:"reservation_advances"`
	Totals              TotalsDTO  `json:"totals"`
}

func toSummaryDTO(s folio.Summary) SummaryDTO {
	return SummaryDTO{
		Stay:                toStayDTO(s.Stay),
		Bills:               toBillDTOs(s.Bills),
		Settlements:         toEntryDTOs(settlementEntries(s.Settlements)),
		Charges:             toEntryDTOs(chargeEntries(s.Charges)),
		Advances:            toEntryDTOs(advanceEntries(s.Advances)),
		Transactions:        toEntryDTOs(transactionEntries(s.Transactions)),
		ReservationAdvances: toEntryDTOs(advanceEntries(s.ReservationAdvances)),
		Totals:              toTotalsDTO(s.Totals),
	}
}

// =============================================================================
// CHECKOUT
// =============================================================================

type CheckoutRequest struct {
	DepartureDate folio.Date `json:"departure_date"`
	Remarks       string     `json:"remarks" validate:"max=500"`
	UserID        string     `json:"user_id" validate:"max=64"`
}

type CancelCheckoutRequest struct {
	UserID string `json:"user_id" validate:"max=64"`
}

type CheckoutDTO struct {
	Stay        StayDTO         `json:"stay"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

// PaymentRequest is a front-desk payment. Idempotency-Key may also be sent
// as a header.
type PaymentRequest struct {
	Amount            decimal.Decimal `json:"amount"`
	PaymentMode       string          `json:"payment_mode" validate:"required,max=32"`
	ReferenceNo       string          `json:"reference_no" validate:"max=64"`
	Remarks           string          `json:"remarks" validate:"max=500"`
	UserID            string          `json:"user_id" validate:"max=64"`
	CreditCardCompany string          `json:"credit_card_company" validate:"max=64"`
	CreditCardNo      string          `json:"credit_card_no" validate:"max=32"`
	IdempotencyKey    string          `json:"idempotency_key" validate:"max=128"`
}

type EligibilityDTO struct {
	FolioNo     string          `json:"folio_no"`
	Eligible    bool            `json:"eligible"`
	Message     string          `json:"message"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

type ReceiptDTO struct {
	ReceiptNo   string          `json:"receipt_no"`
	GeneratedAt string          `json:"generated_at"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Details     SummaryDTO      `json:"details"`
}

type CheckoutSummaryDTO struct {
	Date    folio.Date `json:"date"`
	Today   int        `json:"checked_out_today"`
	Month   int        `json:"checked_out_this_month"`
	InHouse int        `json:"in_house"`
	Overdue int        `json:"overdue"`
}

// =============================================================================
// REPORTS
// =============================================================================

type PaymentRowDTO struct {
	Date        folio.Date      `json:"date"`
	PaymentMode string          `json:"payment_mode"`
	Count       int             `json:"count"`
	Total       decimal.Decimal `json:"total"`
}

type ChargeRowDTO struct {
	ChargeType string          `json:"charge_type"`
	Count      int             `json:"count"`
	Total      decimal.Decimal `json:"total"`
	Charges    []EntryDTO      `json:"charges"`
}

type FinancialDTO struct {
	From          folio.Date                 `json:"from"`
	To            folio.Date                 `json:"to"`
	Advances      decimal.Decimal            `json:"advances"`
	Bills         decimal.Decimal            `json:"bills"`
	Settlements   decimal.Decimal            `json:"settlements"`
	Charges       decimal.Decimal            `json:"charges"`
	Transactions  decimal.Decimal            `json:"transactions"`
	Revenue       decimal.Decimal            `json:"revenue"`
	Collections   decimal.Decimal            `json:"collections"`
	Outstanding   decimal.Decimal            `json:"outstanding"`
	ModeBreakdown map[string]decimal.Decimal `json:"mode_breakdown"`
}

type DailyDTO struct {
	Date            folio.Date      `json:"date"`
	Advances        decimal.Decimal `json:"advances"`
	Bills           decimal.Decimal `json:"bills"`
	Settlements     decimal.Decimal `json:"settlements"`
	Charges         decimal.Decimal `json:"charges"`
	Transactions    decimal.Decimal `json:"transactions"`
	NetRevenue      decimal.Decimal `json:"net_revenue"`
	AdvanceCount    int             `json:"advance_count"`
	BillCount       int             `json:"bill_count"`
	SettlementCount int             `json:"settlement_count"`
	ChargeCount     int             `json:"charge_count"`
}

func toDailyDTO(s folio.DailySummary) DailyDTO {
	return DailyDTO{
		Date:            s.Date,
		Advances:        s.Advances,
		Bills:           s.Bills,
		Settlements:     s.Settlements,
		Charges:         s.Charges,
		Transactions:    s.Transactions,
		NetRevenue:      s.NetRevenue,
		AdvanceCount:    s.AdvanceCount,
		BillCount:       s.BillCount,
		SettlementCount: s.SettlementCount,
		ChargeCount:     s.ChargeCount,
	}
}

type JourneyEventDTO struct {
	Date          folio.Date      `json:"date"`
	Kind          string          `json:"kind"`
	ID            string          `json:"id"`
	FolioNo       string          `json:"folio_no,omitempty"`
	ReservationNo string          `json:"reservation_no,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Detail        string          `json:"detail,omitempty"`
}

type JourneyDTO struct {
	Identifier        string            `json:"identifier"`
	Type              string            `json:"type"`
	Stays             []StayDTO         `json:"stays"`
	Events            []JourneyEventDTO `json:"events"`
	TotalAdvances     decimal.Decimal   `json:"total_advances"`
	TotalCharges      decimal.Decimal   `json:"total_charges"`
	TotalBills        decimal.Decimal   `json:"total_bills"`
	TotalSettlements  decimal.Decimal   `json:"total_settlements"`
	TotalTransactions decimal.Decimal   `json:"total_transactions"`
	NetAmount         decimal.Decimal   `json:"net_amount"`
	AdvanceCount      int               `json:"advance_count"`
	ChargeCount       int               `json:"charge_count"`
}

func toJourneyDTO(j folio.Journey) JourneyDTO {
	stays := make([]StayDTO, len(j.Stays))
	for i, st := range j.Stays {
		stays[i] = toStayDTO(st)
	}
	events := make([]JourneyEventDTO, len(j.Events))
	for i, e := range j.Events {
		events[i] = JourneyEventDTO{
			Date:          e.Date,
			Kind:          e.Kind,
			ID:            e.ID,
			FolioNo:       e.FolioNo,
			ReservationNo: e.ReservationNo,
			Amount:        e.Amount,
			Detail:        e.Detail,
		}
	}
	return JourneyDTO{
		Identifier:        j.Identifier,
		Type:              string(j.Type),
		Stays:             stays,
		Events:            events,
		TotalAdvances:     j.TotalAdvances,
		TotalCharges:      j.TotalCharges,
		TotalBills:        j.TotalBills,
		TotalSettlements:  j.TotalSettlements,
		TotalTransactions: j.TotalTransactions,
		NetAmount:         j.Net,
		AdvanceCount:      j.AdvanceCount,
		ChargeCount:       j.ChargeCount,
	}
}

type GuestPaymentsDTO struct {
	Identifier    string                     `json:"identifier"`
	Type          string                     `json:"type"`
	Advances      []EntryDTO                 `json:"advances"`
	Total         decimal.Decimal            `json:"total"`
	ModeBreakdown map[string]decimal.Decimal `json:"mode_breakdown"`
}

func toGuestPaymentsDTO(g folio.GuestPayments) GuestPaymentsDTO {
	return GuestPaymentsDTO{
		Identifier:    g.Identifier,
		Type:          string(g.Type),
		Advances:      toEntryDTOs(advanceEntries(g.Advances)),
		Total:         g.Total,
		ModeBreakdown: g.ByMode,
	}
}

// =============================================================================
// NIGHT AUDIT
// =============================================================================

// AuditRequest closes one business date. An empty date means yesterday.
type AuditRequest struct {
	BusinessDate folio.Date `json:"business_date"`
}

type AuditRunDTO struct {
	ID           string            `json:"id"`
	BusinessDate folio.Date        `json:"business_date"`
	Status       folio.AuditStatus `json:"status"`
	Daily        DailyDTO          `json:"daily"`
	InHouse      int               `json:"in_house"`
	Overdue      []StayDTO         `json:"overdue"`
	Error        string            `json:"error,omitempty"`
	StartedAt    string            `json:"started_at"`
	CompletedAt  string            `json:"completed_at"`
}

func toAuditRunDTO(run folio.AuditRun) AuditRunDTO {
	return AuditRunDTO{
		ID:           run.ID,
		BusinessDate: run.BusinessDate,
		Status:       run.Status,
		Daily:        toDailyDTO(run.Daily),
		InHouse:      run.InHouse,
		Overdue:      toStayDTOs(run.Overdue),
		Error:        run.Error,
		StartedAt:    formatTimestamp(run.StartedAt),
		CompletedAt:  formatTimestamp(run.CompletedAt),
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
