package ledger

import (
	"context"
	"errors"
)

// Contracts serves the caller-scoped contract and job reads.
type Contracts struct {
	Store Store
}

func NewContracts(store Store) *Contracts {
	return &Contracts{Store: store}
}

// Get returns the contract if the caller is one of its parties. Contracts
// belonging to other profiles are reported as not found.
func (c *Contracts) Get(ctx context.Context, caller Profile, contractID int64) (*Contract, error) {
	contracts, err := c.Store.ListContracts(ctx, ContractQuery{
		ProfileID:  caller.ID,
		Side:       SideOf(caller),
		ContractID: contractID,
	})
	if err != nil {
		return nil, storageFailure(err)
	}
	if len(contracts) == 0 || !contracts[0].HasParty(caller.ID) {
		return nil, ErrNotFound
	}
	return &contracts[0], nil
}

// ListActive returns the caller's contracts that are not terminated.
func (c *Contracts) ListActive(ctx context.Context, caller Profile) ([]Contract, error) {
	contracts, err := c.Store.ListContracts(ctx, ContractQuery{
		ProfileID:  caller.ID,
		Side:       SideOf(caller),
		ActiveOnly: true,
	})
	if err != nil {
		return nil, storageFailure(err)
	}
	if len(contracts) == 0 {
		return nil, ErrNotFound
	}
	return contracts, nil
}

// UnpaidJobs returns the unpaid jobs on the caller's active contracts.
func (c *Contracts) UnpaidJobs(ctx context.Context, caller Profile) ([]Job, error) {
	jobs, err := c.Store.ListJobs(ctx, JobQuery{
		ProfileID:  caller.ID,
		Side:       SideOf(caller),
		UnpaidOnly: true,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, storageFailure(err)
	}
	if len(jobs) == 0 {
		return nil, ErrNotFound
	}
	return jobs, nil
}

// Authenticate resolves the caller profile from the trusted profile id
// supplied by the transport.
func Authenticate(ctx context.Context, store Store, rawProfileID string) (*Profile, error) {
	id, err := ParseID(rawProfileID, "profile_id")
	if err != nil {
		return nil, ErrUnauthenticated
	}
	p, err := store.GetProfile(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, storageFailure(err)
	}
	return p, nil
}
