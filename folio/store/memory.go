// Package store provides an in-memory folio.Store.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/folio-engine/folio"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	stays         map[string]folio.Stay // by stay ID
	byFolio       map[string]string     // folio no -> stay ID
	byReservation map[string]string     // reservation no -> stay ID

	entries     map[folio.EntryKind]map[string]folio.Entry
	idempotency map[string]string // advance idempotency key -> advance ID
	bills       map[string]folio.Bill
}

var _ folio.Store = (*Memory)(nil)

func NewMemory() *Memory {
	m := &Memory{
		stays:         make(map[string]folio.Stay),
		byFolio:       make(map[string]string),
		byReservation: make(map[string]string),
		entries:       make(map[folio.EntryKind]map[string]folio.Entry),
		idempotency:   make(map[string]string),
		bills:         make(map[string]folio.Bill),
	}
	for _, k := range folio.Kinds {
		m.entries[k] = make(map[string]folio.Entry)
	}
	return m
}

// =============================================================================
// READS - each takes the read lock and delegates to a lock-free view
// =============================================================================

func (m *Memory) StayByFolio(ctx context.Context, folioNo string) (folio.Stay, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m}.StayByFolio(ctx, folioNo)
}

func (m *Memory) StayByReservation(ctx context.Context, reservationNo string) (folio.Stay, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m}.StayByReservation(ctx, reservationNo)
}

func (m *Memory) ListStays(ctx context.Context, f folio.StayFilter) ([]folio.Stay, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m}.ListStays(ctx, f)
}

func (m *Memory) GetEntry(ctx context.Context, kind folio.EntryKind, id string) (folio.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m}.GetEntry(ctx, kind, id)
}

func (m *Memory) ListEntries(ctx context.Context, f folio.EntryFilter) ([]folio.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m}.ListEntries(ctx, f)
}

func (m *Memory) EntryExists(ctx context.Context, kind folio.EntryKind, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m}.EntryExists(ctx, kind, id)
}

func (m *Memory) GetBill(ctx context.Context, id string) (folio.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m}.GetBill(ctx, id)
}

func (m *Memory) ListBills(ctx context.Context, f folio.BillFilter) ([]folio.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m}.ListBills(ctx, f)
}

// Snapshot holds the read lock for the whole callback, so writers wait
// until fn returns.
func (m *Memory) Snapshot(_ context.Context, fn func(folio.Reader) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(view{m})
}

// =============================================================================
// WRITES
// =============================================================================

func (m *Memory) SaveStay(_ context.Context, stay folio.Stay) (folio.Stay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stay = folio.PrepareStay(stay)
	if stay.UpdatedAt.IsZero() {
		stay.UpdatedAt = time.Now().UTC()
	}

	if stay.ID == "" {
		stay.ID = uuid.NewString()
	}
	if current, ok := m.stays[stay.ID]; ok {
		if err := folio.CheckStayLink(current, stay); err != nil {
			return folio.Stay{}, err
		}
		stay.CreatedAt = current.CreatedAt
		stay.Version = current.Version + 1
	} else {
		stay.CreatedAt = stay.UpdatedAt
		stay.Version = 1
	}
	if err := m.checkUniqueLocked(stay); err != nil {
		return folio.Stay{}, err
	}
	m.putStayLocked(stay)
	return stay, nil
}

func (m *Memory) UpdateStay(_ context.Context, stay folio.Stay, expectedVersion int64) (folio.Stay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := stay.ID
	if id == "" {
		id = m.byFolio[stay.FolioNo]
	}
	current, ok := m.stays[id]
	if !ok {
		return folio.Stay{}, folio.ErrStayNotFound
	}
	if current.Version != expectedVersion {
		return folio.Stay{}, folio.ErrConcurrentModification
	}
	stay.ID = id
	if err := folio.CheckStayLink(current, stay); err != nil {
		return folio.Stay{}, err
	}
	if err := m.checkUniqueLocked(stay); err != nil {
		return folio.Stay{}, err
	}
	stay.CreatedAt = current.CreatedAt
	stay.Version = expectedVersion + 1
	if stay.UpdatedAt.IsZero() {
		stay.UpdatedAt = time.Now().UTC()
	}
	m.putStayLocked(stay)
	return stay, nil
}

func (m *Memory) checkUniqueLocked(stay folio.Stay) error {
	if stay.FolioNo != "" {
		if id, ok := m.byFolio[stay.FolioNo]; ok && id != stay.ID {
			return &folio.ConflictError{Reason: "folio " + stay.FolioNo + " already belongs to another stay"}
		}
	}
	if stay.ReservationNo != "" {
		if id, ok := m.byReservation[stay.ReservationNo]; ok && id != stay.ID {
			return &folio.ConflictError{Reason: "reservation " + stay.ReservationNo + " already belongs to another stay"}
		}
	}
	return nil
}

func (m *Memory) putStayLocked(stay folio.Stay) {
	if prev, ok := m.stays[stay.ID]; ok && prev.ReservationNo != stay.ReservationNo {
		delete(m.byReservation, prev.ReservationNo)
	}
	m.stays[stay.ID] = stay
	if stay.FolioNo != "" {
		m.byFolio[stay.FolioNo] = stay.ID
	}
	if stay.ReservationNo != "" {
		m.byReservation[stay.ReservationNo] = stay.ID
	}
}

// SaveEntry upserts e. Duplicate advance idempotency keys are rejected.
func (m *Memory) SaveEntry(_ context.Context, e folio.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e = folio.CloneEntry(e)
	id := e.Header().ID
	kind := e.Kind()

	if a, ok := e.(*folio.Advance); ok && a.IdempotencyKey != "" {
		if owner, ok := m.idempotency[a.IdempotencyKey]; ok && owner != id {
			return folio.ErrDuplicateIdempotencyKey
		}
	}
	if prev, ok := m.entries[kind][id].(*folio.Advance); ok && prev.IdempotencyKey != "" {
		delete(m.idempotency, prev.IdempotencyKey)
	}
	if a, ok := e.(*folio.Advance); ok && a.IdempotencyKey != "" {
		m.idempotency[a.IdempotencyKey] = id
	}
	m.entries[kind][id] = e
	return nil
}

func (m *Memory) DeleteEntry(_ context.Context, kind folio.EntryKind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[kind][id]
	if !ok {
		return folio.ErrEntryNotFound
	}
	if a, ok := e.(*folio.Advance); ok && a.IdempotencyKey != "" {
		delete(m.idempotency, a.IdempotencyKey)
	}
	delete(m.entries[kind], id)
	return nil
}

func (m *Memory) SaveBill(_ context.Context, b folio.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bills[b.ID] = b
	return nil
}

func (m *Memory) DeleteBill(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bills[id]; !ok {
		return folio.ErrBillNotFound
	}
	delete(m.bills, id)
	return nil
}

// Reset clears all data (for testing/demo).
func (m *Memory) Reset(_ context.Context) error {
	fresh := NewMemory()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stays = fresh.stays
	m.byFolio = fresh.byFolio
	m.byReservation = fresh.byReservation
	m.entries = fresh.entries
	m.idempotency = fresh.idempotency
	m.bills = fresh.bills
	return nil
}

// =============================================================================
// VIEW - lock-free reads, caller holds m.mu
// =============================================================================

type view struct {
	m *Memory
}

func (v view) StayByFolio(_ context.Context, folioNo string) (folio.Stay, error) {
	id, ok := v.m.byFolio[folioNo]
	if !ok {
		return folio.Stay{}, folio.ErrStayNotFound
	}
	return v.m.stays[id], nil
}

func (v view) StayByReservation(_ context.Context, reservationNo string) (folio.Stay, error) {
	id, ok := v.m.byReservation[reservationNo]
	if !ok {
		return folio.Stay{}, folio.ErrStayNotFound
	}
	return v.m.stays[id], nil
}

func (v view) ListStays(_ context.Context, f folio.StayFilter) ([]folio.Stay, error) {
	var out []folio.Stay
	for _, s := range v.m.stays {
		if f.Matches(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FolioNo != out[j].FolioNo {
			return out[i].FolioNo < out[j].FolioNo
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v view) GetEntry(_ context.Context, kind folio.EntryKind, id string) (folio.Entry, error) {
	e, ok := v.m.entries[kind][id]
	if !ok {
		return nil, folio.ErrEntryNotFound
	}
	return folio.CloneEntry(e), nil
}

func (v view) ListEntries(_ context.Context, f folio.EntryFilter) ([]folio.Entry, error) {
	kinds := folio.Kinds
	if f.Kind != "" {
		kinds = []folio.EntryKind{f.Kind}
	}
	var out []folio.Entry
	for _, k := range kinds {
		for _, e := range v.m.entries[k] {
			if f.Matches(e) {
				out = append(out, folio.CloneEntry(e))
			}
		}
	}
	sortEntries(out)
	return out, nil
}

func (v view) EntryExists(_ context.Context, kind folio.EntryKind, id string) (bool, error) {
	_, ok := v.m.entries[kind][id]
	return ok, nil
}

func (v view) GetBill(_ context.Context, id string) (folio.Bill, error) {
	b, ok := v.m.bills[id]
	if !ok {
		return folio.Bill{}, folio.ErrBillNotFound
	}
	return b, nil
}

func (v view) ListBills(_ context.Context, f folio.BillFilter) ([]folio.Bill, error) {
	var out []folio.Bill
	for _, b := range v.m.bills {
		if f.Matches(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BillDate.Equal(out[j].BillDate) {
			return out[i].BillDate.Before(out[j].BillDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// sortEntries orders by occurred date, then creation time, then ID.
func sortEntries(entries []folio.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Header(), entries[j].Header()
		if !a.OccurredDate.Equal(b.OccurredDate) {
			return a.OccurredDate.Before(b.OccurredDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
