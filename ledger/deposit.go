/*
deposit.go - Deposit guard

PURPOSE:
  Clients may top up their own balance, but only by up to 25% of the price
  of their outstanding (unpaid) work. A client with nothing outstanding has a
  limit of zero and cannot deposit at all.

CHECK ORDER:
  1. target user id well formed         -> InvalidRequest
  2. target is the caller               -> Forbidden
  3. amount present, numeric, positive  -> InvalidRequest
  4. caller is a client                 -> Forbidden
  5. amount <= limit                    -> Forbidden (deposit_limit_exceeded)

  The limit read and the balance add are separate statements. A deposit
  racing with a payment may be checked against a limit that changes before
  the add commits; the add itself is a single atomic UPDATE.
*/
package ledger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
)

// Deposits guards and applies client deposits.
type Deposits struct {
	Store Store
}

func NewDeposits(store Store) *Deposits {
	return &Deposits{Store: store}
}

// DepositLimit returns 25% of the unpaid job prices on every contract where
// client is the client, whatever the contract status.
func (d *Deposits) DepositLimit(ctx context.Context, client Profile) (decimal.Decimal, error) {
	outstanding, err := d.Store.SumJobPrices(ctx, JobQuery{
		ProfileID:  client.ID,
		Side:       SideClient,
		UnpaidOnly: true,
	})
	if err != nil {
		return decimal.Zero, storageFailure(err)
	}
	return outstanding.Mul(depositRate).Truncate(2), nil
}

// ValidateDeposit authorizes a deposit of rawAmount into the account named by
// rawTargetID. It does not mutate anything.
func (d *Deposits) ValidateDeposit(ctx context.Context, caller Profile, rawTargetID string, rawAmount json.RawMessage) (decimal.Decimal, error) {
	targetID, err := ParseID(rawTargetID, "userId")
	if err != nil {
		return decimal.Zero, err
	}
	if targetID != caller.ID {
		return decimal.Zero, forbidden("You can only deposit funds to your own account")
	}

	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return decimal.Zero, err
	}
	if err := RequireClient(caller, "Only clients can deposit funds"); err != nil {
		return decimal.Zero, err
	}

	limit, err := d.DepositLimit(ctx, caller)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.GreaterThan(limit) {
		return decimal.Zero, newError(KindForbidden, CodeLimitExceeded,
			"Limit exceeded, You can only deposit up to $"+limit.String())
	}
	return amount, nil
}

// Deposit validates and applies a deposit, returning the updated profile.
func (d *Deposits) Deposit(ctx context.Context, caller Profile, rawTargetID string, rawAmount json.RawMessage) (*Profile, error) {
	amount, err := d.ValidateDeposit(ctx, caller, rawTargetID, rawAmount)
	if err != nil {
		return nil, err
	}

	err = d.Store.WithTx(ctx, func(tx Tx) error {
		return tx.AddToBalance(ctx, caller.ID, amount)
	})
	if err != nil {
		return nil, storageFailure(err)
	}

	updated, err := d.Store.GetProfile(ctx, caller.ID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageFailure(err)
	}
	return updated, nil
}
