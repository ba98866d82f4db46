/*
Package sqlite provides a SQLite-backed implementation of folio.Store.

PURPOSE:
  Default runtime store. Implements stays, ledger entries and bills on one
  SQLite file. The PostgreSQL store (store/postgres) uses the same table
  layout; only dialect details differ.

KEY TABLES:
  stays:          Reservation + check-in records, versioned for optimistic
                  checkout updates
  ledger_entries: Advances, charges, posted transactions and settlements,
                  discriminated by kind
  bills:          Bills raised against folios

INDEXES:
  - idx_stays_folio / idx_stays_reservation: unique identifiers when set
  - idx_entries_folio_kind: balance calculation (hot path)
  - idx_entries_idempotency: enforces one advance per idempotency key
  - idx_entries_bill: settlements by bill

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Snapshot() runs its reads inside one
  SQLite transaction so the reconciliation engine never sees a half-applied
  write.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/folio.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := folio.NewLedger(store, folio.SystemClock{}, logger)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - folio/store.go: Interface definitions
  - store/sqlrow: Row mapping shared with PostgreSQL
  - folio/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/folio-engine/folio"
	"github.com/warp/folio-engine/store/sqlrow"
)

// Store implements folio.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ folio.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stays (
		id TEXT PRIMARY KEY,
		folio_no TEXT,
		reservation_no TEXT,
		guest_name TEXT NOT NULL DEFAULT '',
		room_no TEXT NOT NULL DEFAULT '',
		from_date TEXT,
		to_date TEXT,
		check_in_date TEXT,
		check_out_date TEXT,
		status TEXT NOT NULL,
		remarks TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		checkout_reversed BOOLEAN NOT NULL DEFAULT FALSE,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_stays_folio
		ON stays(folio_no) WHERE folio_no IS NOT NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_stays_reservation
		ON stays(reservation_no) WHERE reservation_no IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_stays_checkout
		ON stays(status, check_out_date);

	-- Ledger entries (all four kinds)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT NOT NULL,
		kind TEXT NOT NULL,
		folio_no TEXT NOT NULL DEFAULT '',
		reservation_no TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		occurred_date TEXT NOT NULL,
		guest_name TEXT NOT NULL DEFAULT '',
		room_no TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		remarks TEXT NOT NULL DEFAULT '',
		payment_mode TEXT NOT NULL DEFAULT '',
		reference_no TEXT NOT NULL DEFAULT '',
		credit_card_company TEXT NOT NULL DEFAULT '',
		credit_card_no TEXT NOT NULL DEFAULT '',
		bill_no TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT,
		charge_type TEXT NOT NULL DEFAULT '',
		acc_head TEXT NOT NULL DEFAULT '',
		voucher_no TEXT NOT NULL DEFAULT '',
		narration TEXT NOT NULL DEFAULT '',
		tx_status TEXT NOT NULL DEFAULT '',
		bill_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (kind, id)
	);

	CREATE INDEX IF NOT EXISTS idx_entries_folio_kind
		ON ledger_entries(folio_no, kind, occurred_date);
	CREATE INDEX IF NOT EXISTS idx_entries_reservation
		ON ledger_entries(reservation_no, kind);
	CREATE INDEX IF NOT EXISTS idx_entries_date
		ON ledger_entries(kind, occurred_date);
	CREATE INDEX IF NOT EXISTS idx_entries_bill
		ON ledger_entries(bill_id) WHERE bill_id <> '';
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_idempotency
		ON ledger_entries(idempotency_key) WHERE idempotency_key IS NOT NULL;

	-- Bills
	CREATE TABLE IF NOT EXISTS bills (
		id TEXT PRIMARY KEY,
		folio_no TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		bill_date TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bills_folio
		ON bills(folio_no, bill_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// READS (folio.Reader)
// =============================================================================

func (s *Store) StayByFolio(ctx context.Context, folioNo string) (folio.Stay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.db}.StayByFolio(ctx, folioNo)
}

func (s *Store) StayByReservation(ctx context.Context, reservationNo string) (folio.Stay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.db}.StayByReservation(ctx, reservationNo)
}

func (s *Store) ListStays(ctx context.Context, f folio.StayFilter) ([]folio.Stay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.db}.ListStays(ctx, f)
}

func (s *Store) GetEntry(ctx context.Context, kind folio.EntryKind, id string) (folio.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.db}.GetEntry(ctx, kind, id)
}

func (s *Store) ListEntries(ctx context.Context, f folio.EntryFilter) ([]folio.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.db}.ListEntries(ctx, f)
}

func (s *Store) EntryExists(ctx context.Context, kind folio.EntryKind, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.db}.EntryExists(ctx, kind, id)
}

func (s *Store) GetBill(ctx context.Context, id string) (folio.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.db}.GetBill(ctx, id)
}

func (s *Store) ListBills(ctx context.Context, f folio.BillFilter) ([]folio.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.db}.ListBills(ctx, f)
}

// Snapshot runs fn inside one read transaction.
func (s *Store) Snapshot(ctx context.Context, fn func(folio.Reader) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(reader{sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// WRITES
// =============================================================================

func (s *Store) SaveStay(ctx context.Context, stay folio.Stay) (folio.Stay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stay = folio.PrepareStay(stay)
	if stay.ID == "" {
		stay.ID = uuid.NewString()
	}
	// The caller's clock stamps the write when it supplies one.
	if stay.UpdatedAt.IsZero() {
		stay.UpdatedAt = time.Now().UTC()
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return folio.Stay{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	current, err := reader{sqlTx}.stayWhere(ctx, "id = ?", stay.ID)
	switch {
	case errors.Is(err, folio.ErrStayNotFound):
		stay.CreatedAt = stay.UpdatedAt
		stay.Version = 1
		err = insertStay(ctx, sqlTx, stay)
	case err != nil:
		return folio.Stay{}, err
	default:
		if err := folio.CheckStayLink(current, stay); err != nil {
			return folio.Stay{}, err
		}
		stay.CreatedAt = current.CreatedAt
		stay.Version = current.Version + 1
		_, err = updateStay(ctx, sqlTx, stay, current.Version)
	}
	if err != nil {
		return folio.Stay{}, stayWriteErr(stay, err)
	}
	return stay, sqlTx.Commit()
}

func (s *Store) UpdateStay(ctx context.Context, stay folio.Stay, expectedVersion int64) (folio.Stay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return folio.Stay{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	var current folio.Stay
	if stay.ID != "" {
		current, err = reader{sqlTx}.stayWhere(ctx, "id = ?", stay.ID)
	} else {
		current, err = reader{sqlTx}.StayByFolio(ctx, stay.FolioNo)
	}
	if err != nil {
		return folio.Stay{}, err
	}
	if current.Version != expectedVersion {
		return folio.Stay{}, folio.ErrConcurrentModification
	}
	stay.ID = current.ID
	if err := folio.CheckStayLink(current, stay); err != nil {
		return folio.Stay{}, err
	}
	stay.CreatedAt = current.CreatedAt
	stay.Version = expectedVersion + 1
	if stay.UpdatedAt.IsZero() {
		stay.UpdatedAt = time.Now().UTC()
	}

	n, err := updateStay(ctx, sqlTx, stay, expectedVersion)
	if err != nil {
		return folio.Stay{}, stayWriteErr(stay, err)
	}
	if n == 0 {
		return folio.Stay{}, folio.ErrConcurrentModification
	}
	return stay, sqlTx.Commit()
}

func insertStay(ctx context.Context, q querier, stay folio.Stay) error {
	query := "INSERT INTO stays (" + sqlrow.List(sqlrow.StayColumns) + ") VALUES (" +
		sqlrow.Marks(sqlrow.StayColumns, sqlrow.Question, nil) + ")"
	_, err := q.ExecContext(ctx, query, sqlrow.FromStay(stay).Args(formatTime)...)
	return err
}

// updateStay writes stay if the row still carries version.
func updateStay(ctx context.Context, q querier, stay folio.Stay, version int64) (int64, error) {
	args := sqlrow.FromStay(stay).Args(formatTime)
	sets := make([]string, 0, len(sqlrow.StayColumns)-1)
	for _, c := range sqlrow.StayColumns[1:] {
		sets = append(sets, c+" = ?")
	}
	query := "UPDATE stays SET " + strings.Join(sets, ", ") + " WHERE id = ? AND version = ?"
	res, err := q.ExecContext(ctx, query, append(args[1:], stay.ID, version)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func stayWriteErr(stay folio.Stay, err error) error {
	if isUniqueConstraintError(err) {
		return &folio.ConflictError{Reason: fmt.Sprintf("folio %q or reservation %q already belongs to another stay", stay.FolioNo, stay.ReservationNo)}
	}
	return fmt.Errorf("failed to save stay: %w", err)
}

// SaveEntry upserts e by (kind, id).
func (s *Store) SaveEntry(ctx context.Context, e folio.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cols := sqlrow.EntryColumns
	sets := make([]string, 0, len(cols))
	for _, c := range cols[2:] {
		sets = append(sets, c+" = excluded."+c)
	}
	query := "INSERT INTO ledger_entries (" + sqlrow.List(cols) + ") VALUES (" +
		sqlrow.Marks(cols, sqlrow.Question, nil) + ") ON CONFLICT (kind, id) DO UPDATE SET " +
		strings.Join(sets, ", ")

	_, err := s.db.ExecContext(ctx, query, sqlrow.FromEntry(e).Args(formatTime)...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return folio.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to save entry: %w", err)
	}
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, kind folio.EntryKind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM ledger_entries WHERE kind = ? AND id = ?", string(kind), id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return folio.ErrEntryNotFound
	}
	return nil
}

func (s *Store) SaveBill(ctx context.Context, b folio.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cols := sqlrow.BillColumns
	query := "INSERT OR REPLACE INTO bills (" + sqlrow.List(cols) + ") VALUES (" +
		sqlrow.Marks(cols, sqlrow.Question, nil) + ")"
	if _, err := s.db.ExecContext(ctx, query, sqlrow.FromBill(b).Args(formatTime)...); err != nil {
		return fmt.Errorf("failed to save bill: %w", err)
	}
	return nil
}

func (s *Store) DeleteBill(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM bills WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete bill: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return folio.ErrBillNotFound
	}
	return nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"ledger_entries", "bills", "stays"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// READER - shared by the store and snapshot transactions
// =============================================================================

type reader struct {
	q querier
}

func (r reader) StayByFolio(ctx context.Context, folioNo string) (folio.Stay, error) {
	return r.stayWhere(ctx, "folio_no = ?", folioNo)
}

func (r reader) StayByReservation(ctx context.Context, reservationNo string) (folio.Stay, error) {
	return r.stayWhere(ctx, "reservation_no = ?", reservationNo)
}

func (r reader) stayWhere(ctx context.Context, cond string, args ...any) (folio.Stay, error) {
	stays, err := r.queryStays(ctx, cond, args...)
	if err != nil {
		return folio.Stay{}, err
	}
	if len(stays) == 0 {
		return folio.Stay{}, folio.ErrStayNotFound
	}
	return stays[0], nil
}

func (r reader) ListStays(ctx context.Context, f folio.StayFilter) ([]folio.Stay, error) {
	where, args := sqlrow.StayWhere(f, sqlrow.Question)
	return r.queryStays(ctx, where+" ORDER BY folio_no, id", args...)
}

func (r reader) queryStays(ctx context.Context, where string, args ...any) ([]folio.Stay, error) {
	query := `
		SELECT id, COALESCE(folio_no, ''), COALESCE(reservation_no, ''), guest_name, room_no,
		       COALESCE(from_date, ''), COALESCE(to_date, ''), COALESCE(check_in_date, ''), COALESCE(check_out_date, ''),
		       status, remarks, user_id, checkout_reversed, version, created_at, updated_at
		FROM stays
		WHERE ` + where

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stays: %w", err)
	}
	defer rows.Close()

	var stays []folio.Stay
	for rows.Next() {
		var (
			row                  sqlrow.StayRow
			createdAt, updatedAt string
		)
		err := rows.Scan(
			&row.ID, &row.FolioNo, &row.ReservationNo, &row.GuestName, &row.RoomNo,
			&row.FromDate, &row.ToDate, &row.CheckInDate, &row.CheckOutDate,
			&row.Status, &row.Remarks, &row.UserID, &row.CheckoutReversed, &row.Version,
			&createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stay: %w", err)
		}
		row.CreatedAt = parseTime(createdAt)
		row.UpdatedAt = parseTime(updatedAt)
		stay, err := row.Stay()
		if err != nil {
			return nil, err
		}
		stays = append(stays, stay)
	}
	return stays, rows.Err()
}

func (r reader) GetEntry(ctx context.Context, kind folio.EntryKind, id string) (folio.Entry, error) {
	entries, err := r.queryEntries(ctx, "kind = ? AND id = ?", string(kind), id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, folio.ErrEntryNotFound
	}
	return entries[0], nil
}

func (r reader) ListEntries(ctx context.Context, f folio.EntryFilter) ([]folio.Entry, error) {
	where, args := sqlrow.EntryWhere(f, sqlrow.Question)
	return r.queryEntries(ctx, where+" ORDER BY "+sqlrow.EntryOrder, args...)
}

func (r reader) EntryExists(ctx context.Context, kind folio.EntryKind, id string) (bool, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_entries WHERE kind = ? AND id = ?",
		string(kind), id,
	).Scan(&count)
	return count > 0, err
}

func (r reader) queryEntries(ctx context.Context, where string, args ...any) ([]folio.Entry, error) {
	query := `
		SELECT id, kind, folio_no, reservation_no, amount, occurred_date,
		       guest_name, room_no, user_id, remarks,
		       payment_mode, reference_no, credit_card_company, credit_card_no, bill_no,
		       COALESCE(idempotency_key, ''), charge_type, acc_head, voucher_no, narration, tx_status,
		       bill_id, created_at, updated_at
		FROM ledger_entries
		WHERE ` + where

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []folio.Entry
	for rows.Next() {
		var (
			row                  sqlrow.EntryRow
			createdAt, updatedAt string
		)
		err := rows.Scan(
			&row.ID, &row.Kind, &row.FolioNo, &row.ReservationNo, &row.Amount, &row.OccurredDate,
			&row.GuestName, &row.RoomNo, &row.UserID, &row.Remarks,
			&row.PaymentMode, &row.ReferenceNo, &row.CardCompany, &row.CardNo, &row.BillNo,
			&row.IdempotencyKey, &row.ChargeType, &row.AccHead, &row.VoucherNo, &row.Narration, &row.TxStatus,
			&row.BillID, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		row.CreatedAt = parseTime(createdAt)
		row.UpdatedAt = parseTime(updatedAt)
		e, err := row.Entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r reader) GetBill(ctx context.Context, id string) (folio.Bill, error) {
	bills, err := r.queryBills(ctx, "id = ?", id)
	if err != nil {
		return folio.Bill{}, err
	}
	if len(bills) == 0 {
		return folio.Bill{}, folio.ErrBillNotFound
	}
	return bills[0], nil
}

func (r reader) ListBills(ctx context.Context, f folio.BillFilter) ([]folio.Bill, error) {
	where, args := sqlrow.BillWhere(f, sqlrow.Question)
	return r.queryBills(ctx, where+" ORDER BY bill_date, id", args...)
}

func (r reader) queryBills(ctx context.Context, where string, args ...any) ([]folio.Bill, error) {
	query := "SELECT " + sqlrow.List(sqlrow.BillColumns) + " FROM bills WHERE " + where
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bills: %w", err)
	}
	defer rows.Close()

	var bills []folio.Bill
	for rows.Next() {
		var (
			row       sqlrow.BillRow
			createdAt string
		)
		if err := rows.Scan(&row.ID, &row.FolioNo, &row.TotalAmount, &row.BillDate, &row.UserID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		row.CreatedAt = parseTime(createdAt)
		b, err := row.Bill()
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

// Helper functions

// timeLayout keeps every stored timestamp the same width so TEXT ordering
// matches time ordering. RFC3339Nano trims trailing zeros and does not.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) any {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
