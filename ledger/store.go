/*
store.go - Persistence contract for the ledger engine

PURPOSE:
  Defines what the engine needs from storage: point reads, reads described by
  explicit query descriptors, grouped aggregates over paid jobs, and a scoped
  transaction for multi-row writes.

QUERY DESCRIPTORS:
  Instead of walking associations, callers state which side of the contract
  the profile is on and which filters apply:

    store.ListJobs(ctx, ledger.JobQuery{
        ProfileID:    caller.ID,
        Side:         ledger.SideOf(caller),
        UnpaidOnly:   true,
        ActiveOnly:   true,
    })

TRANSACTIONS:
  WithTx commits when fn returns nil and rolls back on every other exit path,
  panics included. Guarded writes (AdjustBalance, MarkJobPaid) compare the
  row version read earlier and return ErrWriteConflict when it moved.

IMPLEMENTATIONS:
  - store/sqldb: SQLite or PostgreSQL through sqlx

SEE ALSO:
  - transfer.go: the only caller of guarded writes
*/
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Store-level sentinels. Implementations return (or wrap) these; the engine
// translates them into *Error values.
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrWriteConflict  = errors.New("write conflict")
)

// Side says which side of a contract a profile is on.
type Side string

const (
	SideClient     Side = "client"
	SideContractor Side = "contractor"
)

// SideOf maps a profile to the contract side it can appear on.
func SideOf(p Profile) Side {
	if p.IsContractor() {
		return SideContractor
	}
	return SideClient
}

// ContractQuery selects contracts through one side of the relation.
type ContractQuery struct {
	ProfileID  int64
	Side       Side
	ContractID int64 // 0 matches any contract
	ActiveOnly bool  // excludes terminated contracts
}

// JobQuery selects jobs through contracts on one side of the relation.
type JobQuery struct {
	ProfileID  int64
	Side       Side
	UnpaidOnly bool
	ActiveOnly bool // excludes jobs on terminated contracts
}

// PaidJobsQuery selects paid jobs whose payment date falls in Range.
// Limit 0 means no limit.
type PaidJobsQuery struct {
	Range DateRange
	Limit int
}

// Store is the Ledger Store the engine depends on.
type Store interface {
	GetProfile(ctx context.Context, id int64) (*Profile, error)
	ListContracts(ctx context.Context, q ContractQuery) ([]Contract, error)
	ListJobs(ctx context.Context, q JobQuery) ([]Job, error)
	SumJobPrices(ctx context.Context, q JobQuery) (decimal.Decimal, error)

	// GetJobParties reads a job, its contract and both profiles in one query.
	GetJobParties(ctx context.Context, jobID int64) (*JobParties, error)

	// EarningsByProfession returns totals ordered by total desc, profession asc.
	EarningsByProfession(ctx context.Context, q PaidJobsQuery) ([]ProfessionTotal, error)

	// PaymentsByClient returns totals ordered by total desc, client id asc.
	PaymentsByClient(ctx context.Context, q PaidJobsQuery) ([]ClientTotal, error)

	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write side, only reachable inside Store.WithTx.
type Tx interface {
	// AdjustBalance adds delta to the balance if the profile is still at
	// expectedVersion, bumping the version.
	AdjustBalance(ctx context.Context, profileID, expectedVersion int64, delta decimal.Decimal) error

	// MarkJobPaid flips paid to true and stamps the payment date if the job is
	// unpaid and still at expectedVersion.
	MarkJobPaid(ctx context.Context, jobID, expectedVersion int64, at time.Time) error

	// RecordTransfer appends to the transfer journal. At most one per job.
	RecordTransfer(ctx context.Context, t Transfer) error

	// AddToBalance is an unguarded atomic add used by deposits.
	AddToBalance(ctx context.Context, profileID int64, amount decimal.Decimal) error
}
