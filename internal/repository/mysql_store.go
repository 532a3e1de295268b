package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/event-booking/internal/model"
)

// MySQL error numbers that mean the transaction lost a race and can be
// retried from scratch.
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
	mysqlErrDuplicateEntry  = 1062
)

// MySQLStore keeps availability, bookings and issues in MySQL.  Resource
// rows are locked with SELECT ... FOR UPDATE inside the caller's
// transaction so that check-and-hold is a single read-verify-write.
// Resources that were absent when locked are created with a plain INSERT,
// so a concurrent creator surfaces as a duplicate key and never as a
// silent overwrite.  All timestamps are stored in UTC.
type MySQLStore struct {
	db        *sql.DB
	isolation sql.IsolationLevel
}

// NewMySQLStore returns a MySQLStore bound to the provided database.
// Transactions run under REPEATABLE READ.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db, isolation: sql.LevelRepeatableRead}
}

// classify maps contention errors to ErrTxAborted and leaves the rest as is.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlErrDeadlock, mysqlErrLockWaitTimeout, mysqlErrDuplicateEntry:
			return fmt.Errorf("%w: %v", ErrTxAborted, err)
		}
	}
	return err
}

func (s *MySQLStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: s.isolation})
	if err != nil {
		return classify(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()
	if err := fn(ctx, &mysqlTx{tx: sqlTx, locked: make(map[string]bool)}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return classify(err)
	}
	committed = true
	return nil
}

type mysqlTx struct {
	tx *sql.Tx
	// locked records, per scope and resource, whether LockStates found a row.
	locked map[string]bool
}

func lockKey(scope, id string) string { return scope + "\x00" + id }

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

const stateColumns = `resource_id, status, holder_user_id, booking_id, customer_name, held_at, expires_at, booked_at`

func scanStates(rows *sql.Rows) (model.Availability, error) {
	defer rows.Close()
	out := make(model.Availability)
	for rows.Next() {
		var (
			id                          string
			st                          model.ResourceState
			name                        sql.NullString
			heldAt, expiresAt, bookedAt sql.NullTime
		)
		if err := rows.Scan(&id, &st.Status, &st.HolderUserID, &st.BookingID, &name, &heldAt, &expiresAt, &bookedAt); err != nil {
			return nil, err
		}
		st.CustomerName = name.String
		st.HeldAt = timePtr(heldAt)
		st.ExpiresAt = timePtr(expiresAt)
		st.BookedAt = timePtr(bookedAt)
		out[id] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *mysqlTx) LockStates(ctx context.Context, scope string, ids []string) (model.Availability, error) {
	if len(ids) == 0 {
		return model.Availability{}, nil
	}
	q := `SELECT ` + stateColumns + ` FROM resource_states
	      WHERE scope_key = ? AND resource_id IN (` + placeholders(len(ids)) + `) FOR UPDATE`
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, scope)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	out, err := scanStates(rows)
	if err != nil {
		return nil, classify(err)
	}
	for _, id := range ids {
		_, ok := out[id]
		t.locked[lockKey(scope, id)] = ok
	}
	return out, nil
}

// partitionStates splits the ids of states into rows to create, rows to
// update in place and rows of unknown presence, each sorted.
func partitionStates(locked map[string]bool, scope string, states model.Availability) (inserts, updates, upserts []string) {
	for id := range states {
		existed, seen := locked[lockKey(scope, id)]
		switch {
		case !seen:
			upserts = append(upserts, id)
		case existed:
			updates = append(updates, id)
		default:
			inserts = append(inserts, id)
		}
	}
	sort.Strings(inserts)
	sort.Strings(updates)
	sort.Strings(upserts)
	return inserts, updates, upserts
}

func (t *mysqlTx) PutStates(ctx context.Context, scope string, states model.Availability) error {
	if len(states) == 0 {
		return nil
	}
	inserts, updates, upserts := partitionStates(t.locked, scope, states)
	if err := t.insertStates(ctx, scope, states, inserts, false); err != nil {
		return err
	}
	for _, id := range inserts {
		t.locked[lockKey(scope, id)] = true
	}
	for _, id := range updates {
		st := states[id]
		q := `UPDATE resource_states SET status = ?, holder_user_id = ?, booking_id = ?, customer_name = ?,
		      held_at = ?, expires_at = ?, booked_at = ? WHERE scope_key = ? AND resource_id = ?`
		if _, err := t.tx.ExecContext(ctx, q, st.Status, st.HolderUserID, st.BookingID, nullString(st.CustomerName),
			nullTime(st.HeldAt), nullTime(st.ExpiresAt), nullTime(st.BookedAt), scope, id); err != nil {
			return classify(err)
		}
	}
	return t.insertStates(ctx, scope, states, upserts, true)
}

// insertStates inserts the rows ids of states.  With upsert, existing rows
// are overwritten; without it, an existing row fails with ErrTxAborted.
func (t *mysqlTx) insertStates(ctx context.Context, scope string, states model.Availability, ids []string, upsert bool) error {
	if len(ids) == 0 {
		return nil
	}
	query := `INSERT INTO resource_states (scope_key, ` + stateColumns + `) VALUES `
	args := make([]interface{}, 0, len(ids)*9)
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?, ?, ?)"
		st := states[id]
		args = append(args, scope, id, st.Status, st.HolderUserID, st.BookingID,
			nullString(st.CustomerName), nullTime(st.HeldAt), nullTime(st.ExpiresAt), nullTime(st.BookedAt))
	}
	if upsert {
		query += ` ON DUPLICATE KEY UPDATE status = VALUES(status), holder_user_id = VALUES(holder_user_id),
		           booking_id = VALUES(booking_id), customer_name = VALUES(customer_name), held_at = VALUES(held_at),
		           expires_at = VALUES(expires_at), booked_at = VALUES(booked_at)`
	}
	_, err := t.tx.ExecContext(ctx, query, args...)
	return classify(err)
}

func (t *mysqlTx) DeleteStates(ctx context.Context, scope string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	q := `DELETE FROM resource_states WHERE scope_key = ? AND resource_id IN (` + placeholders(len(ids)) + `)`
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, scope)
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := t.tx.ExecContext(ctx, q, args...); err != nil {
		return classify(err)
	}
	for _, id := range ids {
		if _, seen := t.locked[lockKey(scope, id)]; seen {
			t.locked[lockKey(scope, id)] = false
		}
	}
	return nil
}

const bookingColumns = `id, booking_type, scope_key, user_id, resource_ids, customer_details, total_amount, status,
	expiry_time, payment, cancel_reason, needs_reconciliation, created_at, confirmed_at, cancelled_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b                        model.Booking
		resourceIDs, customer    []byte
		payment                  []byte
		confirmedAt, cancelledAt sql.NullTime
	)
	err := row.Scan(&b.ID, &b.Type, &b.ScopeKey, &b.UserID, &resourceIDs, &customer, &b.TotalAmount, &b.Status,
		&b.ExpiryTime, &payment, &b.CancelReason, &b.NeedsReconciliation, &b.CreatedAt, &confirmedAt, &cancelledAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(resourceIDs, &b.ResourceIDs); err != nil {
		return nil, fmt.Errorf("decode resource_ids of %s: %w", b.ID, err)
	}
	if err := json.Unmarshal(customer, &b.Customer); err != nil {
		return nil, fmt.Errorf("decode customer_details of %s: %w", b.ID, err)
	}
	if len(payment) > 0 {
		b.Payment = &model.Payment{}
		if err := json.Unmarshal(payment, b.Payment); err != nil {
			return nil, fmt.Errorf("decode payment of %s: %w", b.ID, err)
		}
	}
	b.ConfirmedAt = timePtr(confirmedAt)
	b.CancelledAt = timePtr(cancelledAt)
	return &b, nil
}

// bookingArgs returns the column values of b in bookingColumns order,
// without the leading id.
func bookingArgs(b *model.Booking) ([]interface{}, error) {
	ids := b.ResourceIDs
	if ids == nil {
		ids = []string{}
	}
	resourceIDs, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	customer, err := json.Marshal(b.Customer)
	if err != nil {
		return nil, err
	}
	var payment interface{}
	if b.Payment != nil {
		p, err := json.Marshal(b.Payment)
		if err != nil {
			return nil, err
		}
		payment = string(p)
	}
	return []interface{}{
		b.Type, b.ScopeKey, b.UserID, string(resourceIDs), string(customer), b.TotalAmount, b.Status,
		b.ExpiryTime.UTC(), payment, b.CancelReason, b.NeedsReconciliation, b.CreatedAt.UTC(),
		nullTime(b.ConfirmedAt), nullTime(b.CancelledAt), b.UpdatedAt.UTC(),
	}, nil
}

func (t *mysqlTx) CreateBooking(ctx context.Context, b *model.Booking) error {
	args, err := bookingArgs(b)
	if err != nil {
		return err
	}
	q := `INSERT INTO bookings (` + bookingColumns + `) VALUES (` + placeholders(16) + `)`
	_, err = t.tx.ExecContext(ctx, q, append([]interface{}{b.ID}, args...)...)
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry {
		return ErrConflict
	}
	return classify(err)
}

func (t *mysqlTx) GetBookingForUpdate(ctx context.Context, id string) (*model.Booking, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ? FOR UPDATE`, id)
	b, err := scanBooking(row)
	return b, classify(err)
}

func (t *mysqlTx) UpdateBooking(ctx context.Context, b *model.Booking) error {
	args, err := bookingArgs(b)
	if err != nil {
		return err
	}
	const q = `UPDATE bookings SET booking_type = ?, scope_key = ?, user_id = ?, resource_ids = ?, customer_details = ?,
	           total_amount = ?, status = ?, expiry_time = ?, payment = ?, cancel_reason = ?, needs_reconciliation = ?,
	           created_at = ?, confirmed_at = ?, cancelled_at = ?, updated_at = ? WHERE id = ?`
	res, err := t.tx.ExecContext(ctx, q, append(args, b.ID)...)
	if err != nil {
		return classify(err)
	}
	// MySQL reports 0 affected rows when nothing changed, so only a missing
	// row is treated as not found.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists int
		if err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, b.ID).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
			return ErrBookingNotFound
		}
	}
	return nil
}

func (t *mysqlTx) CreateIssue(ctx context.Context, is *model.ReconciliationIssue) error {
	const q = `INSERT INTO reconciliation_issues (id, booking_id, scope_key, resource_id, kind, detail, created_at, resolved_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := t.tx.ExecContext(ctx, q, is.ID, is.BookingID, is.ScopeKey, is.ResourceID, is.Kind, is.Detail,
		is.CreatedAt.UTC(), nullTime(is.ResolvedAt))
	return classify(err)
}

func (s *MySQLStore) ReadScope(ctx context.Context, scope string) (model.Availability, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+stateColumns+` FROM resource_states WHERE scope_key = ?`, scope)
	if err != nil {
		return nil, err
	}
	return scanStates(rows)
}

func (s *MySQLStore) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	return scanBooking(s.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
}

func (s *MySQLStore) ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Type != "" {
		where = append(where, "booking_type = ?")
		args = append(args, f.Type)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	q := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *MySQLStore) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]string, error) {
	q := `SELECT id FROM bookings WHERE status = ? AND expiry_time <= ? ORDER BY expiry_time`
	args := []interface{}{model.StatusPendingPayment, now.UTC()}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const issueColumns = `id, booking_id, scope_key, resource_id, kind, detail, created_at, resolved_at`

func scanIssue(row rowScanner) (*model.ReconciliationIssue, error) {
	var (
		is       model.ReconciliationIssue
		resolved sql.NullTime
	)
	if err := row.Scan(&is.ID, &is.BookingID, &is.ScopeKey, &is.ResourceID, &is.Kind, &is.Detail, &is.CreatedAt, &resolved); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIssueNotFound
		}
		return nil, err
	}
	is.ResolvedAt = timePtr(resolved)
	return &is, nil
}

func (s *MySQLStore) ListIssues(ctx context.Context, unresolvedOnly bool) ([]model.ReconciliationIssue, error) {
	q := `SELECT ` + issueColumns + ` FROM reconciliation_issues`
	if unresolvedOnly {
		q += " WHERE resolved_at IS NULL"
	}
	q += " ORDER BY created_at"
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ReconciliationIssue
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *is)
	}
	return out, rows.Err()
}

func (s *MySQLStore) ResolveIssue(ctx context.Context, id string, at time.Time) (*model.ReconciliationIssue, error) {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE reconciliation_issues SET resolved_at = COALESCE(resolved_at, ?) WHERE id = ?`, at.UTC(), id); err != nil {
		return nil, err
	}
	return scanIssue(s.db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM reconciliation_issues WHERE id = ?`, id))
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
