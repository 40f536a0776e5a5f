package ledger

import "context"

// Service bundles the engines over one store. It is what the HTTP layer
// holds on to.
type Service struct {
	Store     Store
	Payments  *Payments
	Deposits  *Deposits
	Reports   *Reports
	Contracts *Contracts
}

// NewService wires every engine to store. newID generates transfer ids.
func NewService(store Store, newID func() string) *Service {
	return &Service{
		Store:     store,
		Payments:  NewPayments(store, newID),
		Deposits:  NewDeposits(store),
		Reports:   NewReports(store),
		Contracts: NewContracts(store),
	}
}

// Authenticate resolves the caller profile.
func (s *Service) Authenticate(ctx context.Context, rawProfileID string) (*Profile, error) {
	return Authenticate(ctx, s.Store, rawProfileID)
}
