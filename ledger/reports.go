package ledger

import "context"

// Reports is the earnings aggregator. Both reports only look at paid jobs
// whose payment date falls inside the requested range.
type Reports struct {
	Store Store
}

func NewReports(store Store) *Reports {
	return &Reports{Store: store}
}

// BestProfession returns the contractor profession that earned the most.
// Ties go to the lexicographically smallest profession.
func (r *Reports) BestProfession(ctx context.Context, rng DateRange) (ProfessionTotal, error) {
	if _, err := NewDateRange(rng.Start, rng.End); err != nil {
		return ProfessionTotal{}, err
	}
	totals, err := r.Store.EarningsByProfession(ctx, PaidJobsQuery{Range: rng, Limit: 1})
	if err != nil {
		return ProfessionTotal{}, storageFailure(err)
	}
	if len(totals) == 0 {
		return ProfessionTotal{}, ErrNoData
	}
	return totals[0], nil
}

// BestClients returns up to limit clients ordered by total paid, highest
// first, ties by ascending client id.
func (r *Reports) BestClients(ctx context.Context, rng DateRange, limit int) ([]ClientTotal, error) {
	if _, err := NewDateRange(rng.Start, rng.End); err != nil {
		return nil, err
	}
	if limit < 1 || limit > MaxClientsLimit {
		return nil, invalid("limit must be a positive integer")
	}
	totals, err := r.Store.PaymentsByClient(ctx, PaidJobsQuery{Range: rng, Limit: limit})
	if err != nil {
		return nil, storageFailure(err)
	}
	if len(totals) == 0 {
		return nil, ErrNoData
	}
	return totals, nil
}
