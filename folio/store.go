/*
store.go - Persistence ports for stays, ledger entries and bills

PURPOSE:
  Defines the narrow interface between the folio core and the database.
  Entities are addressed by key; there are no live object graphs and no
  lazy loading. Implementations:
  - folio/store/memory.go:   in-memory, for tests and dev
  - store/sqlite/sqlite.go:  SQLite (default runtime store)
  - store/postgres:          PostgreSQL via pgx

SNAPSHOT READS:
  The reconciliation engine aggregates four collections. It must observe
  them at one consistent point, so every multi-collection read runs inside
  Snapshot(). Postgres uses a REPEATABLE READ read-only transaction, SQLite
  a read transaction, memory a held read lock.

WRITES:
  Ledger entries are append-mostly. SaveEntry upserts by ID (the update path
  is administrative and re-validated by the caller). DeleteEntry never
  cascades. UpdateStay performs an optimistic version check.
*/
package folio

import "context"

// StayRegistry answers "does folio/reservation X exist and what are its
// dates, guest and room". The validator only needs this.
type StayRegistry interface {
	// StayByFolio returns ErrStayNotFound when no stay carries folioNo.
	StayByFolio(ctx context.Context, folioNo string) (Stay, error)

	// StayByReservation returns ErrStayNotFound when no stay carries reservationNo.
	StayByReservation(ctx context.Context, reservationNo string) (Stay, error)
}

// StayFilter selects stays. Empty fields do not filter.
type StayFilter struct {
	Status StayStatus

	// CheckOut restricts to stays whose checkout date lies in the range.
	// A non-empty range excludes stays that are not checked out.
	CheckOut DateRange
}

// EntryFilter selects ledger entries. Empty fields do not filter.
type EntryFilter struct {
	Kind           EntryKind
	FolioNo        string
	ReservationNo  string
	BillID         string
	BillIDs        []string
	IdempotencyKey string
	Range          DateRange

	// ReservationOnly restricts to entries with no folio number.
	ReservationOnly bool
}

// BillFilter selects bills. Empty fields do not filter.
type BillFilter struct {
	FolioNo string
	Range   DateRange
}

// Reader groups every read operation. Snapshot hands a Reader to its callback.
type Reader interface {
	StayRegistry

	// ListStays returns stays ordered by folio number.
	ListStays(ctx context.Context, f StayFilter) ([]Stay, error)

	// GetEntry returns ErrEntryNotFound when missing.
	GetEntry(ctx context.Context, kind EntryKind, id string) (Entry, error)
	ListEntries(ctx context.Context, f EntryFilter) ([]Entry, error)
	EntryExists(ctx context.Context, kind EntryKind, id string) (bool, error)

	// GetBill returns ErrBillNotFound when missing.
	GetBill(ctx context.Context, id string) (Bill, error)
	ListBills(ctx context.Context, f BillFilter) ([]Bill, error)
}

// Store is the full persistence port.
type Store interface {
	Reader

	// SaveStay inserts a stay or updates its descriptive fields. A stay whose
	// folio is already linked to a different reservation is rejected with
	// ConflictError.
	SaveStay(ctx context.Context, stay Stay) (Stay, error)

	// UpdateStay writes stay if the stored version equals expectedVersion,
	// else returns ErrConcurrentModification. The returned stay carries the
	// new version.
	UpdateStay(ctx context.Context, stay Stay, expectedVersion int64) (Stay, error)

	// SaveEntry upserts by ID. Duplicate advance idempotency keys return
	// ErrDuplicateIdempotencyKey.
	SaveEntry(ctx context.Context, e Entry) error
	DeleteEntry(ctx context.Context, kind EntryKind, id string) error

	SaveBill(ctx context.Context, b Bill) error
	DeleteBill(ctx context.Context, id string) error

	// Snapshot runs fn against a consistent read view.
	Snapshot(ctx context.Context, fn func(Reader) error) error
}

// Locker serializes operations on one folio. Lock blocks until the lock is
// held or the wait budget is spent (ErrFolioBusy).
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// FolioLockKey builds the lock key for a folio.
func FolioLockKey(folioNo string) string {
	return "folio:" + folioNo + ":checkout"
}

// =============================================================================
// FILTER MATCHING - shared by stores that filter in process
// =============================================================================

func (f StayFilter) Matches(s Stay) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if !f.CheckOut.IsOpen() && (!s.IsCheckedOut() || !f.CheckOut.Contains(s.CheckOutDate)) {
		return false
	}
	return true
}

func (f EntryFilter) Matches(e Entry) bool {
	if f.Kind != "" && e.Kind() != f.Kind {
		return false
	}
	h := e.Header()
	if f.FolioNo != "" && h.FolioNo != f.FolioNo {
		return false
	}
	if f.ReservationNo != "" && h.ReservationNo != f.ReservationNo {
		return false
	}
	if f.ReservationOnly && h.FolioNo != "" {
		return false
	}
	if !f.Range.Contains(h.OccurredDate) {
		return false
	}
	if f.IdempotencyKey != "" {
		a, ok := e.(*Advance)
		if !ok || a.IdempotencyKey != f.IdempotencyKey {
			return false
		}
	}
	if f.BillID != "" || f.BillIDs != nil {
		s, ok := e.(*BillSettlement)
		if !ok {
			return false
		}
		if f.BillID != "" && s.BillID != f.BillID {
			return false
		}
		if f.BillIDs != nil && !containsString(f.BillIDs, s.BillID) {
			return false
		}
	}
	return true
}

func (f BillFilter) Matches(b Bill) bool {
	if f.FolioNo != "" && b.FolioNo != f.FolioNo {
		return false
	}
	return f.Range.Contains(b.BillDate)
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// =============================================================================
// STAY RULES - shared by every Store implementation
// =============================================================================

// PrepareStay fills the derived status of a stay about to be written.
func PrepareStay(s Stay) Stay {
	if s.Status == "" {
		switch {
		case s.IsCheckedOut():
			s.Status = StatusCheckedOut
		case s.HasFolio():
			s.Status = StatusCheckedIn
		default:
			s.Status = StatusBooked
		}
	}
	return s
}

// CheckStayLink rejects a write that would renumber a folio or relink it to
// a different reservation.
func CheckStayLink(current, next Stay) error {
	if !current.HasFolio() {
		return nil
	}
	if next.FolioNo != current.FolioNo {
		return &ConflictError{Reason: "folio " + current.FolioNo + " cannot be renumbered"}
	}
	if next.ReservationNo != current.ReservationNo {
		return &ConflictError{Reason: "folio " + current.FolioNo + " is linked to reservation " + current.ReservationNo}
	}
	return nil
}
