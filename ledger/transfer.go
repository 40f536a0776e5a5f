/*
transfer.go - Balance transfer engine

PURPOSE:
  Pays a job: the client's balance goes down by the amount, the contractor's
  goes up by the same amount, and the job is marked paid. Money is never
  minted or destroyed.

INVARIANTS:
  1. Conservation: client delta + contractor delta == 0.
  2. Atomicity: both balance writes, the job flip and the journal entry
     commit together or not at all.
  3. At most once: a job transitions paid false -> true exactly once.
  4. No lost updates: every write is guarded by the version read in step 1,
     so a concurrent change to any touched row aborts the transaction.

FLOW:
  1. Read job + contract + client + contractor (one query)
  2. Re-assert preconditions (role, ownership, unpaid, funds)
  3. WithTx: debit client, credit contractor, mark paid, journal
  4. Guard miss -> Conflict; other store error -> StorageFailure

  The engine does not retry. Conflict is safe for the caller to retry.

SEE ALSO:
  - store.go: Tx guarded writes
  - store/sqldb/sqldb.go: version-guarded UPDATE statements
*/
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Payments is the balance transfer engine.
type Payments struct {
	Store Store
	Now   func() time.Time
	NewID func() string
}

// NewPayments creates a payment engine over store. newID generates transfer
// journal ids.
func NewPayments(store Store, newID func() string) *Payments {
	return &Payments{
		Store: store,
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: newID,
	}
}

// PayJob moves amount from caller to the contractor of the job and marks the
// job paid.
func (p *Payments) PayJob(ctx context.Context, caller Profile, jobID int64, amount decimal.Decimal) (*Transfer, error) {
	if err := CheckAmount(amount); err != nil {
		return nil, err
	}
	if err := RequireClient(caller, "Only clients are allowed to pay for jobs"); err != nil {
		return nil, err
	}

	parties, err := p.Store.GetJobParties(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, storageFailure(err)
	}

	// Jobs on someone else's contracts are invisible to the caller.
	if parties.Contract.ClientID != caller.ID {
		return nil, ErrJobNotFound
	}
	if parties.Job.Paid {
		return nil, ErrAlreadyPaid
	}
	if parties.Client.Balance.LessThan(amount) {
		return nil, ErrInsufficientBalance
	}

	now := p.Now().UTC().Truncate(time.Second)
	transfer := Transfer{
		ID:           p.NewID(),
		JobID:        parties.Job.ID,
		ClientID:     parties.Client.ID,
		ContractorID: parties.Contractor.ID,
		Amount:       amount,
		CreatedAt:    now,
	}

	err = p.Store.WithTx(ctx, func(tx Tx) error {
		if parties.Client.ID == parties.Contractor.ID {
			// Paying yourself nets to zero; one guarded write keeps the version check.
			if err := tx.AdjustBalance(ctx, parties.Client.ID, parties.Client.Version, decimal.Zero); err != nil {
				return err
			}
		} else {
			if err := tx.AdjustBalance(ctx, parties.Client.ID, parties.Client.Version, amount.Neg()); err != nil {
				return err
			}
			if err := tx.AdjustBalance(ctx, parties.Contractor.ID, parties.Contractor.Version, amount); err != nil {
				return err
			}
		}
		if err := tx.MarkJobPaid(ctx, parties.Job.ID, parties.Job.Version, now); err != nil {
			return err
		}
		return tx.RecordTransfer(ctx, transfer)
	})
	if err != nil {
		if errors.Is(err, ErrWriteConflict) {
			return nil, conflict(err)
		}
		return nil, storageFailure(err)
	}

	return &transfer, nil
}
