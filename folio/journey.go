/*
journey.go - Guest journey timeline and payments by identifier

PURPOSE:
  Front-desk lookups that start from whatever the guest hands over: a folio
  number, a reservation number or a name. The identifier resolves to one or
  more stays, and everything posted against them is read in one snapshot.

RESOLUTION:
  folio        the stay holding that folio
  reservation  the stay holding that reservation
  guest        every stay whose guest name matches, ignoring case

  A stay with a folio contributes its folio entries, its bills and the
  advances taken against its reservation before check-in. A booked stay
  contributes its reservation advances only.

FORMULA:
  net = Σ charges - Σ advances   (bills, settlements and postings are
                                  listed but do not enter net)
*/
package folio

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// IdentifierType says how a lookup identifier is matched to stays.
type IdentifierType string

const (
	ByFolio       IdentifierType = "folio"
	ByReservation IdentifierType = "reservation"
	ByGuest       IdentifierType = "guest"
)

// ParseIdentifierType maps s to a type, case-insensitively. Empty input
// yields ByFolio.
func ParseIdentifierType(s string) (IdentifierType, error) {
	switch normalizeKey(s) {
	case "", "folio":
		return ByFolio, nil
	case "reservation":
		return ByReservation, nil
	case "guest":
		return ByGuest, nil
	}
	return "", &ValidationError{Field: "type", Message: "unknown identifier type", Expected: "folio, reservation or guest", Actual: s}
}

// EventBill marks a bill on a journey timeline.
const EventBill = "bill"

// JourneyEvent is one line of a guest's timeline.
type JourneyEvent struct {
	Date          Date
	Kind          string
	ID            string
	FolioNo       string
	ReservationNo string
	Amount        decimal.Decimal

	// Detail is the payment mode, charge type or account head.
	Detail    string
	CreatedAt time.Time
}

// Journey is everything posted against the stays an identifier resolves to.
type Journey struct {
	Identifier string
	Type       IdentifierType
	Stays      []Stay
	Events     []JourneyEvent

	TotalAdvances     decimal.Decimal
	TotalCharges      decimal.Decimal
	TotalBills        decimal.Decimal
	TotalSettlements  decimal.Decimal
	TotalTransactions decimal.Decimal
	Net               decimal.Decimal

	AdvanceCount int
	ChargeCount  int
}

// GuestPayments lists the advances reachable from an identifier.
type GuestPayments struct {
	Identifier string
	Type       IdentifierType
	Advances   []Advance
	Total      decimal.Decimal
	ByMode     map[string]decimal.Decimal
}

// Journey builds the timeline for identifier, oldest first. Events on the
// same date keep creation order.
func (p *Projector) Journey(ctx context.Context, identifier string, typ IdentifierType) (Journey, error) {
	stays, sums, pre, err := p.loadJourney(ctx, identifier, typ)
	if err != nil {
		return Journey{}, err
	}

	j := Journey{
		Identifier:        identifier,
		Type:              typ,
		Stays:             stays,
		TotalAdvances:     decimal.Zero,
		TotalCharges:      decimal.Zero,
		TotalBills:        decimal.Zero,
		TotalSettlements:  decimal.Zero,
		TotalTransactions: decimal.Zero,
	}
	add := func(e JourneyEvent) { j.Events = append(j.Events, e) }

	advances := pre
	for _, s := range sums {
		advances = append(advances, s.Advances...)
		for _, c := range s.Charges {
			add(entryEvent(string(KindCharge), c.EntryHeader, c.ChargeType))
			j.TotalCharges = j.TotalCharges.Add(c.Amount)
			j.ChargeCount++
		}
		for _, b := range s.Bills {
			add(JourneyEvent{Date: b.BillDate, Kind: EventBill, ID: b.ID, FolioNo: b.FolioNo, ReservationNo: s.Stay.ReservationNo, Amount: b.TotalAmount, CreatedAt: b.CreatedAt})
		}
		for _, st := range s.Settlements {
			add(entryEvent(string(KindSettlement), st.EntryHeader, st.PaymentMode))
		}
		for _, tx := range s.Transactions {
			add(entryEvent(string(KindTransaction), tx.EntryHeader, tx.AccHead))
		}
		j.TotalBills = j.TotalBills.Add(s.Totals.Bills)
		j.TotalSettlements = j.TotalSettlements.Add(s.Totals.Settlements)
		j.TotalTransactions = j.TotalTransactions.Add(s.Totals.Transactions)
	}
	for _, a := range advances {
		add(entryEvent(string(KindAdvance), a.EntryHeader, a.PaymentMode))
		j.TotalAdvances = j.TotalAdvances.Add(a.Amount)
		j.AdvanceCount++
	}
	j.Net = j.TotalCharges.Sub(j.TotalAdvances)

	sort.SliceStable(j.Events, func(a, b int) bool {
		ea, eb := j.Events[a], j.Events[b]
		if !ea.Date.Equal(eb.Date) {
			return ea.Date.Before(eb.Date)
		}
		if !ea.CreatedAt.Equal(eb.CreatedAt) {
			return ea.CreatedAt.Before(eb.CreatedAt)
		}
		return ea.ID < eb.ID
	})
	return j, nil
}

// PaymentsFor lists the advances reachable from identifier with their total
// and per-mode breakdown.
func (p *Projector) PaymentsFor(ctx context.Context, identifier string, typ IdentifierType) (GuestPayments, error) {
	_, sums, pre, err := p.loadJourney(ctx, identifier, typ)
	if err != nil {
		return GuestPayments{}, err
	}

	out := GuestPayments{Identifier: identifier, Type: typ, Total: decimal.Zero, ByMode: make(map[string]decimal.Decimal)}
	out.Advances = append(out.Advances, pre...)
	for _, s := range sums {
		out.Advances = append(out.Advances, s.Advances...)
	}
	sort.SliceStable(out.Advances, func(a, b int) bool {
		return out.Advances[a].OccurredDate.Before(out.Advances[b].OccurredDate)
	})
	for _, a := range out.Advances {
		out.Total = out.Total.Add(a.Amount)
		out.ByMode[a.PaymentMode] = out.ByMode[a.PaymentMode].Add(a.Amount)
	}
	return out, nil
}

// loadJourney resolves identifier and reads every stay it names in one
// snapshot. It returns the stays, a summary per checked-in stay and the
// reservation-only advances of all of them.
func (p *Projector) loadJourney(ctx context.Context, identifier string, typ IdentifierType) ([]Stay, []Summary, []Advance, error) {
	if blank(identifier) {
		return nil, nil, nil, invalid("identifier", "identifier is required")
	}
	var (
		stays []Stay
		sums  []Summary
		pre   []Advance
	)
	err := p.Store.Snapshot(ctx, func(r Reader) error {
		var err error
		stays, err = resolveStays(ctx, r, strings.TrimSpace(identifier), typ)
		if err != nil {
			return err
		}
		for _, st := range stays {
			if st.HasFolio() {
				s, err := SummarizeFolio(ctx, r, st.FolioNo)
				if err != nil {
					return err
				}
				sums = append(sums, s)
				pre = append(pre, s.ReservationAdvances...)
				continue
			}
			entries, err := r.ListEntries(ctx, EntryFilter{Kind: KindAdvance, ReservationNo: st.ReservationNo, ReservationOnly: true})
			if err != nil {
				return err
			}
			pre = append(pre, Advances(entries)...)
		}
		return nil
	})
	if err != nil {
		return nil, nil, nil, storeErr("guest journey", err)
	}
	return stays, sums, pre, nil
}

func resolveStays(ctx context.Context, r Reader, identifier string, typ IdentifierType) ([]Stay, error) {
	var (
		stay Stay
		err  error
	)
	if typ == "" {
		typ = ByFolio
	}
	switch typ {
	case ByFolio:
		stay, err = r.StayByFolio(ctx, identifier)
	case ByReservation:
		stay, err = r.StayByReservation(ctx, identifier)
	case ByGuest:
		all, err := r.ListStays(ctx, StayFilter{})
		if err != nil {
			return nil, err
		}
		var out []Stay
		for _, st := range all {
			if strings.EqualFold(strings.TrimSpace(st.GuestName), identifier) {
				out = append(out, st)
			}
		}
		if len(out) == 0 {
			return nil, notFound("guest", identifier)
		}
		return out, nil
	default:
		return nil, &ValidationError{Field: "type", Message: "unknown identifier type", Expected: "folio, reservation or guest", Actual: string(typ)}
	}
	if err != nil {
		if errors.Is(err, ErrStayNotFound) {
			return nil, notFound(string(typ), identifier)
		}
		return nil, err
	}
	return []Stay{stay}, nil
}

func entryEvent(kind string, h EntryHeader, detail string) JourneyEvent {
	return JourneyEvent{
		Date:          h.OccurredDate,
		Kind:          kind,
		ID:            h.ID,
		FolioNo:       h.FolioNo,
		ReservationNo: h.ReservationNo,
		Amount:        h.Amount,
		Detail:        detail,
		CreatedAt:     h.CreatedAt,
	}
}
