/*
Package sqldb provides the SQL implementation of ledger.Store.

PURPOSE:
  Persists profiles, contracts, jobs and the transfer journal in SQLite or
  PostgreSQL through sqlx. Queries are written once with ? placeholders and
  rebound for the driver in use.

DRIVERS:
  sqlite3  github.com/mattn/go-sqlite3 (default, also used by tests)
  pgx      github.com/jackc/pgx/v5/stdlib

MONEY:
  Balances and prices are BIGINT cents. The conversion to decimal.Decimal
  happens at the edge of this package, so SUM() is exact on both engines.

CONCURRENCY:
  Balance and job writes are guarded by a version column:

    UPDATE profiles SET balance_cents = balance_cents + ?, version = version + 1
    WHERE id = ? AND version = ?

  Zero rows affected means another transaction got there first and the write
  returns ledger.ErrWriteConflict. The transfers table has UNIQUE(job_id), so a
  second journal row for a job is also a write conflict.

  SQLite is opened with a single pooled connection. Writers serialize, and an
  in-memory database is shared by every caller of the Store.

USAGE:
  store, err := sqldb.Open(ctx, sqldb.Options{Driver: "sqlite3", DSN: "./data/ledger.db"})
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := ledger.NewService(store, ids.New)

SEE ALSO:
  - ledger/store.go: the interface implemented here
  - schema.go: DDL applied on Open
  - seed.go: demo dataset
*/
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/contract-ledger/ledger"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Options configures Open.
type Options struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store implements ledger.Store.
type Store struct {
	db *sqlx.DB
}

var _ ledger.Store = (*Store)(nil)

// Open connects, applies the schema and returns a ready Store.
// Use DSN ":memory:" with the sqlite3 driver for an in-memory database.
func Open(ctx context.Context, opts Options) (*Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	dsn := opts.DSN
	if driver == DriverSQLite && !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := New(db)
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// New wraps an existing connection without touching the schema.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// =============================================================================
// ROWS
// =============================================================================

type profileRow struct {
	ID           int64  `db:"id"`
	FirstName    string `db:"first_name"`
	LastName     string `db:"last_name"`
	Profession   string `db:"profession"`
	BalanceCents int64  `db:"balance_cents"`
	Type         string `db:"type"`
	Version      int64  `db:"version"`
}

func (r profileRow) toProfile() ledger.Profile {
	return ledger.Profile{
		ID:         r.ID,
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		Profession: r.Profession,
		Balance:    ledger.FromCents(r.BalanceCents),
		Type:       ledger.ProfileType(r.Type),
		Version:    r.Version,
	}
}

type contractRow struct {
	ID           int64  `db:"id"`
	Terms        string `db:"terms"`
	Status       string `db:"status"`
	ClientID     int64  `db:"client_id"`
	ContractorID int64  `db:"contractor_id"`
}

func (r contractRow) toContract() ledger.Contract {
	return ledger.Contract{
		ID:           r.ID,
		Terms:        r.Terms,
		Status:       ledger.ContractStatus(r.Status),
		ClientID:     r.ClientID,
		ContractorID: r.ContractorID,
	}
}

type jobRow struct {
	ID          int64        `db:"id"`
	Description string       `db:"description"`
	PriceCents  int64        `db:"price_cents"`
	Paid        bool         `db:"paid"`
	PaymentDate sql.NullTime `db:"payment_date"`
	ContractID  int64        `db:"contract_id"`
	Version     int64        `db:"version"`
}

func (r jobRow) toJob() ledger.Job {
	job := ledger.Job{
		ID:          r.ID,
		Description: r.Description,
		Price:       ledger.FromCents(r.PriceCents),
		Paid:        r.Paid,
		ContractID:  r.ContractID,
		Version:     r.Version,
	}
	if r.PaymentDate.Valid {
		at := r.PaymentDate.Time.UTC()
		job.PaymentDate = &at
	}
	return job
}

// partiesRow is a job joined with its contract and both profiles.
type partiesRow struct {
	JobID         int64        `db:"job_id"`
	Description   string       `db:"description"`
	PriceCents    int64        `db:"price_cents"`
	Paid          bool         `db:"paid"`
	PaymentDate   sql.NullTime `db:"payment_date"`
	JobVersion    int64        `db:"job_version"`
	ContractID    int64        `db:"contract_id"`
	Terms         string       `db:"terms"`
	Status        string       `db:"status"`
	ClientID      int64        `db:"client_id"`
	ClientFirst   string       `db:"client_first_name"`
	ClientLast    string       `db:"client_last_name"`
	ClientProf    string       `db:"client_profession"`
	ClientBalance int64        `db:"client_balance_cents"`
	ClientType    string       `db:"client_type"`
	ClientVersion int64        `db:"client_version"`
	ContractorID  int64        `db:"contractor_id"`
	ContrFirst    string       `db:"contractor_first_name"`
	ContrLast     string       `db:"contractor_last_name"`
	ContrProf     string       `db:"contractor_profession"`
	ContrBalance  int64        `db:"contractor_balance_cents"`
	ContrType     string       `db:"contractor_type"`
	ContrVersion  int64        `db:"contractor_version"`
}

func (r partiesRow) toParties() *ledger.JobParties {
	job := jobRow{
		ID:          r.JobID,
		Description: r.Description,
		PriceCents:  r.PriceCents,
		Paid:        r.Paid,
		PaymentDate: r.PaymentDate,
		ContractID:  r.ContractID,
		Version:     r.JobVersion,
	}.toJob()
	contract := contractRow{
		ID:           r.ContractID,
		Terms:        r.Terms,
		Status:       r.Status,
		ClientID:     r.ClientID,
		ContractorID: r.ContractorID,
	}.toContract()
	client := profileRow{
		ID: r.ClientID, FirstName: r.ClientFirst, LastName: r.ClientLast, Profession: r.ClientProf,
		BalanceCents: r.ClientBalance, Type: r.ClientType, Version: r.ClientVersion,
	}.toProfile()
	contractor := profileRow{
		ID: r.ContractorID, FirstName: r.ContrFirst, LastName: r.ContrLast, Profession: r.ContrProf,
		BalanceCents: r.ContrBalance, Type: r.ContrType, Version: r.ContrVersion,
	}.toProfile()
	return &ledger.JobParties{Job: job, Contract: contract, Client: client, Contractor: contractor}
}

// =============================================================================
// READS
// =============================================================================

// GetProfile returns ledger.ErrRecordNotFound for an unknown id.
func (s *Store) GetProfile(ctx context.Context, id int64) (*ledger.Profile, error) {
	var row profileRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT id, first_name, last_name, profession, balance_cents, type, version
		FROM profiles WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get profile %d: %w", id, err)
	}
	p := row.toProfile()
	return &p, nil
}

// ListContracts returns contracts ordered by id.
func (s *Store) ListContracts(ctx context.Context, q ledger.ContractQuery) ([]ledger.Contract, error) {
	col, err := sideColumn(q.Side)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, terms, status, client_id, contractor_id FROM contracts c WHERE c.` + col + ` = ?`
	args := []any{q.ProfileID}
	if q.ContractID != 0 {
		query += ` AND c.id = ?`
		args = append(args, q.ContractID)
	}
	if q.ActiveOnly {
		query += ` AND c.status <> ?`
		args = append(args, string(ledger.ContractTerminated))
	}
	query += ` ORDER BY c.id`

	var rows []contractRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	contracts := make([]ledger.Contract, 0, len(rows))
	for _, r := range rows {
		contracts = append(contracts, r.toContract())
	}
	return contracts, nil
}

// ListJobs returns jobs reachable through the profile's contracts, ordered by id.
func (s *Store) ListJobs(ctx context.Context, q ledger.JobQuery) ([]ledger.Job, error) {
	where, args, err := jobFilter(q)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT j.id, j.description, j.price_cents, j.paid, j.payment_date, j.contract_id, j.version
		FROM jobs j JOIN contracts c ON c.id = j.contract_id
		WHERE ` + where + ` ORDER BY j.id`

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	jobs := make([]ledger.Job, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, r.toJob())
	}
	return jobs, nil
}

// SumJobPrices sums the price of the jobs ListJobs would return.
func (s *Store) SumJobPrices(ctx context.Context, q ledger.JobQuery) (decimal.Decimal, error) {
	where, args, err := jobFilter(q)
	if err != nil {
		return decimal.Zero, err
	}
	query := `
		SELECT CAST(COALESCE(SUM(j.price_cents), 0) AS BIGINT)
		FROM jobs j JOIN contracts c ON c.id = j.contract_id
		WHERE ` + where

	var cents int64
	if err := s.db.GetContext(ctx, &cents, s.db.Rebind(query), args...); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum job prices: %w", err)
	}
	return ledger.FromCents(cents), nil
}

// GetJobParties returns ledger.ErrRecordNotFound for an unknown job.
func (s *Store) GetJobParties(ctx context.Context, jobID int64) (*ledger.JobParties, error) {
	var row partiesRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT
			j.id AS job_id, j.description, j.price_cents, j.paid, j.payment_date,
			j.version AS job_version,
			c.id AS contract_id, c.terms, c.status,
			cl.id AS client_id, cl.first_name AS client_first_name,
			cl.last_name AS client_last_name, cl.profession AS client_profession,
			cl.balance_cents AS client_balance_cents, cl.type AS client_type,
			cl.version AS client_version,
			co.id AS contractor_id, co.first_name AS contractor_first_name,
			co.last_name AS contractor_last_name, co.profession AS contractor_profession,
			co.balance_cents AS contractor_balance_cents, co.type AS contractor_type,
			co.version AS contractor_version
		FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		JOIN profiles cl ON cl.id = c.client_id
		JOIN profiles co ON co.id = c.contractor_id
		WHERE j.id = ?`), jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get job %d: %w", jobID, err)
	}
	return row.toParties(), nil
}

// =============================================================================
// AGGREGATES
// =============================================================================

type professionTotalRow struct {
	Profession string `db:"profession"`
	TotalCents int64  `db:"total_cents"`
}

type clientTotalRow struct {
	ClientID   int64  `db:"client_id"`
	FirstName  string `db:"first_name"`
	LastName   string `db:"last_name"`
	TotalCents int64  `db:"total_cents"`
}

// EarningsByProfession sums paid job prices per contractor profession.
func (s *Store) EarningsByProfession(ctx context.Context, q ledger.PaidJobsQuery) ([]ledger.ProfessionTotal, error) {
	query := `
		SELECT p.profession AS profession, CAST(SUM(j.price_cents) AS BIGINT) AS total_cents
		FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		JOIN profiles p ON p.id = c.contractor_id
		WHERE j.paid = ? AND j.payment_date >= ? AND j.payment_date < ?
		GROUP BY p.profession
		ORDER BY total_cents DESC, profession ASC`
	args := []any{true, q.Range.From(), q.Range.Until()}
	query, args = withLimit(query, args, q.Limit)

	var rows []professionTotalRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to aggregate earnings: %w", err)
	}
	totals := make([]ledger.ProfessionTotal, 0, len(rows))
	for _, r := range rows {
		totals = append(totals, ledger.ProfessionTotal{
			Profession: r.Profession,
			Total:      ledger.FromCents(r.TotalCents),
		})
	}
	return totals, nil
}

// PaymentsByClient sums paid job prices per client.
func (s *Store) PaymentsByClient(ctx context.Context, q ledger.PaidJobsQuery) ([]ledger.ClientTotal, error) {
	query := `
		SELECT p.id AS client_id, p.first_name AS first_name, p.last_name AS last_name,
			CAST(SUM(j.price_cents) AS BIGINT) AS total_cents
		FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		JOIN profiles p ON p.id = c.client_id
		WHERE j.paid = ? AND j.payment_date >= ? AND j.payment_date < ?
		GROUP BY p.id, p.first_name, p.last_name
		ORDER BY total_cents DESC, client_id ASC`
	args := []any{true, q.Range.From(), q.Range.Until()}
	query, args = withLimit(query, args, q.Limit)

	var rows []clientTotalRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to aggregate client payments: %w", err)
	}
	totals := make([]ledger.ClientTotal, 0, len(rows))
	for _, r := range rows {
		totals = append(totals, ledger.ClientTotal{
			ClientID:  r.ClientID,
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Total:     ledger.FromCents(r.TotalCents),
		})
	}
	return totals, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn in a database transaction. It commits if fn returns nil and
// rolls back otherwise, including when fn panics.
func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("commit: %w", ledger.ErrWriteConflict)
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sqlx.Tx
}

func (t *txStore) AdjustBalance(ctx context.Context, profileID, expectedVersion int64, delta decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		UPDATE profiles
		SET balance_cents = balance_cents + ?, version = version + 1
		WHERE id = ? AND version = ?`),
		ledger.ToCents(delta), profileID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to adjust balance of profile %d: %w", profileID, err)
	}
	return expectOneRow(res, "profile", profileID)
}

func (t *txStore) MarkJobPaid(ctx context.Context, jobID, expectedVersion int64, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		UPDATE jobs
		SET paid = ?, payment_date = ?, version = version + 1
		WHERE id = ? AND version = ? AND paid = ?`),
		true, at.UTC(), jobID, expectedVersion, false)
	if err != nil {
		return fmt.Errorf("failed to mark job %d paid: %w", jobID, err)
	}
	return expectOneRow(res, "job", jobID)
}

func (t *txStore) RecordTransfer(ctx context.Context, tr ledger.Transfer) error {
	_, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		INSERT INTO transfers (id, job_id, client_id, contractor_id, amount_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		tr.ID, tr.JobID, tr.ClientID, tr.ContractorID, ledger.ToCents(tr.Amount), tr.CreatedAt.UTC())
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("transfer for job %d: %w", tr.JobID, ledger.ErrWriteConflict)
		}
		return fmt.Errorf("failed to record transfer: %w", err)
	}
	return nil
}

func (t *txStore) AddToBalance(ctx context.Context, profileID int64, amount decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		UPDATE profiles
		SET balance_cents = balance_cents + ?, version = version + 1
		WHERE id = ?`),
		ledger.ToCents(amount), profileID)
	if err != nil {
		return fmt.Errorf("failed to add to balance of profile %d: %w", profileID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ledger.ErrRecordNotFound
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func sideColumn(side ledger.Side) (string, error) {
	switch side {
	case ledger.SideClient:
		return "client_id", nil
	case ledger.SideContractor:
		return "contractor_id", nil
	default:
		return "", fmt.Errorf("unknown contract side %q", side)
	}
}

func jobFilter(q ledger.JobQuery) (string, []any, error) {
	col, err := sideColumn(q.Side)
	if err != nil {
		return "", nil, err
	}
	where := `c.` + col + ` = ?`
	args := []any{q.ProfileID}
	if q.UnpaidOnly {
		where += ` AND j.paid = ?`
		args = append(args, false)
	}
	if q.ActiveOnly {
		where += ` AND c.status <> ?`
		args = append(args, string(ledger.ContractTerminated))
	}
	return where, args, nil
}

func withLimit(query string, args []any, limit int) (string, []any) {
	if limit <= 0 {
		return query, args
	}
	return query + ` LIMIT ?`, append(args, limit)
}

func expectOneRow(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("%s %d changed since read: %w", entity, id, ledger.ErrWriteConflict)
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
