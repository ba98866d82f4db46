/*
Package postgres provides a PostgreSQL-backed implementation of folio.Store
using a pgx connection pool.

PURPOSE:
  Production store. Same table layout as store/sqlite (see store/sqlrow);
  money is NUMERIC(14,2), dates are DATE, timestamps TIMESTAMPTZ.

SNAPSHOTS:
  Snapshot() opens a REPEATABLE READ, READ ONLY transaction so the four
  collections the reconciliation engine sums are read at one point in time.

OPTIMISTIC CHECKOUT:
  UpdateStay locks the stay row (SELECT ... FOR UPDATE), compares versions
  and bumps the version in the same transaction.
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/folio-engine/folio"
	"github.com/warp/folio-engine/store/sqlrow"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ folio.Store = (*Store)(nil)

// Open creates a pool for dsn, pings it and migrates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store/postgres: ping: %w", err)
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool. The caller owns the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

const schema = `
CREATE TABLE IF NOT EXISTS stays (
	id TEXT PRIMARY KEY,
	folio_no TEXT UNIQUE,
	reservation_no TEXT UNIQUE,
	guest_name TEXT NOT NULL DEFAULT '',
	room_no TEXT NOT NULL DEFAULT '',
	from_date DATE,
	to_date DATE,
	check_in_date DATE,
	check_out_date DATE,
	status TEXT NOT NULL,
	remarks TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL DEFAULT '',
	checkout_reversed BOOLEAN NOT NULL DEFAULT FALSE,
	version BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stays_checkout ON stays(status, check_out_date);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id TEXT NOT NULL,
	kind TEXT NOT NULL,
	folio_no TEXT NOT NULL DEFAULT '',
	reservation_no TEXT NOT NULL DEFAULT '',
	amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
	occurred_date DATE NOT NULL,
	guest_name TEXT NOT NULL DEFAULT '',
	room_no TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL DEFAULT '',
	remarks TEXT NOT NULL DEFAULT '',
	payment_mode TEXT NOT NULL DEFAULT '',
	reference_no TEXT NOT NULL DEFAULT '',
	credit_card_company TEXT NOT NULL DEFAULT '',
	credit_card_no TEXT NOT NULL DEFAULT '',
	bill_no TEXT NOT NULL DEFAULT '',
	idempotency_key TEXT UNIQUE,
	charge_type TEXT NOT NULL DEFAULT '',
	acc_head TEXT NOT NULL DEFAULT '',
	voucher_no TEXT NOT NULL DEFAULT '',
	narration TEXT NOT NULL DEFAULT '',
	tx_status TEXT NOT NULL DEFAULT '',
	bill_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (kind, id)
);

CREATE INDEX IF NOT EXISTS idx_entries_folio_kind ON ledger_entries(folio_no, kind, occurred_date);
CREATE INDEX IF NOT EXISTS idx_entries_reservation ON ledger_entries(reservation_no, kind);
CREATE INDEX IF NOT EXISTS idx_entries_date ON ledger_entries(kind, occurred_date);
CREATE INDEX IF NOT EXISTS idx_entries_bill ON ledger_entries(bill_id) WHERE bill_id <> '';

CREATE TABLE IF NOT EXISTS bills (
	id TEXT PRIMARY KEY,
	folio_no TEXT NOT NULL,
	total_amount NUMERIC(14,2) NOT NULL,
	bill_date DATE NOT NULL,
	user_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bills_folio ON bills(folio_no, bill_date);
`

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store/postgres: migrate: %w", err)
	}
	return nil
}

// columnTypes maps columns to the SQL type their text parameter is cast to.
var columnTypes = map[string]string{
	"amount":         "numeric",
	"total_amount":   "numeric",
	"occurred_date":  "date",
	"bill_date":      "date",
	"from_date":      "date",
	"to_date":        "date",
	"check_in_date":  "date",
	"check_out_date": "date",
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// withTx runs fn in a transaction with the given options.
func (s *Store) withTx(ctx context.Context, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("store/postgres: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store/postgres: commit tx: %w", err)
	}
	return nil
}

// =============================================================================
// READS
// =============================================================================

func (s *Store) StayByFolio(ctx context.Context, folioNo string) (folio.Stay, error) {
	return reader{s.pool}.StayByFolio(ctx, folioNo)
}

func (s *Store) StayByReservation(ctx context.Context, reservationNo string) (folio.Stay, error) {
	return reader{s.pool}.StayByReservation(ctx, reservationNo)
}

func (s *Store) ListStays(ctx context.Context, f folio.StayFilter) ([]folio.Stay, error) {
	return reader{s.pool}.ListStays(ctx, f)
}

func (s *Store) GetEntry(ctx context.Context, kind folio.EntryKind, id string) (folio.Entry, error) {
	return reader{s.pool}.GetEntry(ctx, kind, id)
}

func (s *Store) ListEntries(ctx context.Context, f folio.EntryFilter) ([]folio.Entry, error) {
	return reader{s.pool}.ListEntries(ctx, f)
}

func (s *Store) EntryExists(ctx context.Context, kind folio.EntryKind, id string) (bool, error) {
	return reader{s.pool}.EntryExists(ctx, kind, id)
}

func (s *Store) GetBill(ctx context.Context, id string) (folio.Bill, error) {
	return reader{s.pool}.GetBill(ctx, id)
}

func (s *Store) ListBills(ctx context.Context, f folio.BillFilter) ([]folio.Bill, error) {
	return reader{s.pool}.ListBills(ctx, f)
}

func (s *Store) Snapshot(ctx context.Context, fn func(folio.Reader) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	return s.withTx(ctx, opts, func(tx pgx.Tx) error {
		return fn(reader{tx})
	})
}

// =============================================================================
// WRITES
// =============================================================================

func (s *Store) SaveStay(ctx context.Context, stay folio.Stay) (folio.Stay, error) {
	stay = folio.PrepareStay(stay)
	if stay.ID == "" {
		stay.ID = uuid.NewString()
	}
	// The caller's clock stamps the write when it supplies one.
	if stay.UpdatedAt.IsZero() {
		stay.UpdatedAt = time.Now().UTC()
	}

	err := s.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		current, err := reader{tx}.stayWhere(ctx, "id = $1 FOR UPDATE", stay.ID)
		switch {
		case errors.Is(err, folio.ErrStayNotFound):
			stay.CreatedAt = stay.UpdatedAt
			stay.Version = 1
			return insertStay(ctx, tx, stay)
		case err != nil:
			return err
		}
		if err := folio.CheckStayLink(current, stay); err != nil {
			return err
		}
		stay.CreatedAt = current.CreatedAt
		stay.Version = current.Version + 1
		_, err = updateStay(ctx, tx, stay, current.Version)
		return err
	})
	if err != nil {
		return folio.Stay{}, stayWriteErr(stay, err)
	}
	return stay, nil
}

func (s *Store) UpdateStay(ctx context.Context, stay folio.Stay, expectedVersion int64) (folio.Stay, error) {
	err := s.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var (
			current folio.Stay
			err     error
		)
		if stay.ID != "" {
			current, err = reader{tx}.stayWhere(ctx, "id = $1 FOR UPDATE", stay.ID)
		} else {
			current, err = reader{tx}.stayWhere(ctx, "folio_no = $1 FOR UPDATE", stay.FolioNo)
		}
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return folio.ErrConcurrentModification
		}
		stay.ID = current.ID
		if err := folio.CheckStayLink(current, stay); err != nil {
			return err
		}
		stay.CreatedAt = current.CreatedAt
		stay.Version = expectedVersion + 1
		if stay.UpdatedAt.IsZero() {
			stay.UpdatedAt = time.Now().UTC()
		}
		n, err := updateStay(ctx, tx, stay, expectedVersion)
		if err != nil {
			return err
		}
		if n == 0 {
			return folio.ErrConcurrentModification
		}
		return nil
	})
	if err != nil {
		return folio.Stay{}, stayWriteErr(stay, err)
	}
	return stay, nil
}

func insertStay(ctx context.Context, q querier, stay folio.Stay) error {
	query := "INSERT INTO stays (" + sqlrow.List(sqlrow.StayColumns) + ") VALUES (" +
		sqlrow.Marks(sqlrow.StayColumns, sqlrow.Dollar, columnTypes) + ")"
	_, err := q.Exec(ctx, query, sqlrow.FromStay(stay).Args(identity)...)
	return err
}

func updateStay(ctx context.Context, q querier, stay folio.Stay, version int64) (int64, error) {
	args := sqlrow.FromStay(stay).Args(identity)[1:]
	sets := make([]string, 0, len(args))
	for i, c := range sqlrow.StayColumns[1:] {
		sets = append(sets, c+" = "+sqlrow.Dollar(i+1, columnTypes[c]))
	}
	query := fmt.Sprintf("UPDATE stays SET %s WHERE id = $%d AND version = $%d",
		strings.Join(sets, ", "), len(args)+1, len(args)+2)
	tag, err := q.Exec(ctx, query, append(args, stay.ID, version)...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func stayWriteErr(stay folio.Stay, err error) error {
	if isUniqueViolation(err) {
		return &folio.ConflictError{Reason: fmt.Sprintf("folio %q or reservation %q already belongs to another stay", stay.FolioNo, stay.ReservationNo)}
	}
	if errors.Is(err, folio.ErrConflict) || errors.Is(err, folio.ErrStayNotFound) || errors.Is(err, folio.ErrConcurrentModification) {
		return err
	}
	return fmt.Errorf("store/postgres: save stay: %w", err)
}

func (s *Store) SaveEntry(ctx context.Context, e folio.Entry) error {
	cols := sqlrow.EntryColumns
	sets := make([]string, 0, len(cols))
	for _, c := range cols[2:] {
		sets = append(sets, c+" = EXCLUDED."+c)
	}
	query := "INSERT INTO ledger_entries (" + sqlrow.List(cols) + ") VALUES (" +
		sqlrow.Marks(cols, sqlrow.Dollar, columnTypes) + ") ON CONFLICT (kind, id) DO UPDATE SET " +
		strings.Join(sets, ", ")

	if _, err := s.pool.Exec(ctx, query, sqlrow.FromEntry(e).Args(identity)...); err != nil {
		if isUniqueViolation(err) {
			return folio.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("store/postgres: save entry: %w", err)
	}
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, kind folio.EntryKind, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM ledger_entries WHERE kind = $1 AND id = $2", string(kind), id)
	if err != nil {
		return fmt.Errorf("store/postgres: delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return folio.ErrEntryNotFound
	}
	return nil
}

func (s *Store) SaveBill(ctx context.Context, b folio.Bill) error {
	cols := sqlrow.BillColumns
	query := "INSERT INTO bills (" + sqlrow.List(cols) + ") VALUES (" +
		sqlrow.Marks(cols, sqlrow.Dollar, columnTypes) + `) ON CONFLICT (id) DO UPDATE SET
		folio_no = EXCLUDED.folio_no, total_amount = EXCLUDED.total_amount,
		bill_date = EXCLUDED.bill_date, user_id = EXCLUDED.user_id`
	if _, err := s.pool.Exec(ctx, query, sqlrow.FromBill(b).Args(identity)...); err != nil {
		return fmt.Errorf("store/postgres: save bill: %w", err)
	}
	return nil
}

func (s *Store) DeleteBill(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM bills WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("store/postgres: delete bill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return folio.ErrBillNotFound
	}
	return nil
}

// Reset truncates every table. Used by tests sharing one database.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "TRUNCATE ledger_entries, bills, stays")
	return err
}

// =============================================================================
// READER
// =============================================================================

type reader struct {
	q querier
}

const staySelect = `
	SELECT id, COALESCE(folio_no, ''), COALESCE(reservation_no, ''), guest_name, room_no,
	       COALESCE(from_date::text, ''), COALESCE(to_date::text, ''),
	       COALESCE(check_in_date::text, ''), COALESCE(check_out_date::text, ''),
	       status, remarks, user_id, checkout_reversed, version, created_at, updated_at
	FROM stays
	WHERE `

func (r reader) StayByFolio(ctx context.Context, folioNo string) (folio.Stay, error) {
	return r.stayWhere(ctx, "folio_no = $1", folioNo)
}

func (r reader) StayByReservation(ctx context.Context, reservationNo string) (folio.Stay, error) {
	return r.stayWhere(ctx, "reservation_no = $1", reservationNo)
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
	where, args := sqlrow.StayWhere(f, sqlrow.Dollar)
	return r.queryStays(ctx, where+" ORDER BY folio_no NULLS FIRST, id", args...)
}

func (r reader) queryStays(ctx context.Context, where string, args ...any) ([]folio.Stay, error) {
	rows, err := r.q.Query(ctx, staySelect+where, args...)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: query stays: %w", err)
	}
	defer rows.Close()

	var stays []folio.Stay
	for rows.Next() {
		var row sqlrow.StayRow
		err := rows.Scan(
			&row.ID, &row.FolioNo, &row.ReservationNo, &row.GuestName, &row.RoomNo,
			&row.FromDate, &row.ToDate, &row.CheckInDate, &row.CheckOutDate,
			&row.Status, &row.Remarks, &row.UserID, &row.CheckoutReversed, &row.Version,
			&row.CreatedAt, &row.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("store/postgres: scan stay: %w", err)
		}
		stay, err := row.Stay()
		if err != nil {
			return nil, err
		}
		stays = append(stays, stay)
	}
	return stays, rows.Err()
}

const entrySelect = `
	SELECT id, kind, folio_no, reservation_no, amount::text, occurred_date::text,
	       guest_name, room_no, user_id, remarks,
	       payment_mode, reference_no, credit_card_company, credit_card_no, bill_no,
	       COALESCE(idempotency_key, ''), charge_type, acc_head, voucher_no, narration, tx_status,
	       bill_id, created_at, updated_at
	FROM ledger_entries
	WHERE `

func (r reader) GetEntry(ctx context.Context, kind folio.EntryKind, id string) (folio.Entry, error) {
	entries, err := r.queryEntries(ctx, "kind = $1 AND id = $2", string(kind), id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, folio.ErrEntryNotFound
	}
	return entries[0], nil
}

func (r reader) ListEntries(ctx context.Context, f folio.EntryFilter) ([]folio.Entry, error) {
	where, args := sqlrow.EntryWhere(f, sqlrow.Dollar)
	return r.queryEntries(ctx, where+" ORDER BY "+sqlrow.EntryOrder, args...)
}

func (r reader) EntryExists(ctx context.Context, kind folio.EntryKind, id string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE kind = $1 AND id = $2)",
		string(kind), id,
	).Scan(&exists)
	return exists, err
}

func (r reader) queryEntries(ctx context.Context, where string, args ...any) ([]folio.Entry, error) {
	rows, err := r.q.Query(ctx, entrySelect+where, args...)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: query entries: %w", err)
	}
	defer rows.Close()

	var entries []folio.Entry
	for rows.Next() {
		var row sqlrow.EntryRow
		err := rows.Scan(
			&row.ID, &row.Kind, &row.FolioNo, &row.ReservationNo, &row.Amount, &row.OccurredDate,
			&row.GuestName, &row.RoomNo, &row.UserID, &row.Remarks,
			&row.PaymentMode, &row.ReferenceNo, &row.CardCompany, &row.CardNo, &row.BillNo,
			&row.IdempotencyKey, &row.ChargeType, &row.AccHead, &row.VoucherNo, &row.Narration, &row.TxStatus,
			&row.BillID, &row.CreatedAt, &row.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("store/postgres: scan entry: %w", err)
		}
		e, err := row.Entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const billSelect = `
	SELECT id, folio_no, total_amount::text, bill_date::text, user_id, created_at
	FROM bills
	WHERE `

func (r reader) GetBill(ctx context.Context, id string) (folio.Bill, error) {
	var row sqlrow.BillRow
	err := r.q.QueryRow(ctx, billSelect+"id = $1", id).
		Scan(&row.ID, &row.FolioNo, &row.TotalAmount, &row.BillDate, &row.UserID, &row.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return folio.Bill{}, folio.ErrBillNotFound
		}
		return folio.Bill{}, fmt.Errorf("store/postgres: get bill: %w", err)
	}
	return row.Bill()
}

func (r reader) ListBills(ctx context.Context, f folio.BillFilter) ([]folio.Bill, error) {
	where, args := sqlrow.BillWhere(f, sqlrow.Dollar)
	rows, err := r.q.Query(ctx, billSelect+where+" ORDER BY bill_date, id", args...)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: query bills: %w", err)
	}
	defer rows.Close()

	var bills []folio.Bill
	for rows.Next() {
		var row sqlrow.BillRow
		if err := rows.Scan(&row.ID, &row.FolioNo, &row.TotalAmount, &row.BillDate, &row.UserID, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("store/postgres: scan bill: %w", err)
		}
		b, err := row.Bill()
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

// Helper functions

func identity(t time.Time) any { return t }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
