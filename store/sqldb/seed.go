package sqldb

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/contract-ledger/ledger"
)

// Dataset is a set of rows loaded by Seed. Versions are ignored.
type Dataset struct {
	Profiles  []ledger.Profile
	Contracts []ledger.Contract
	Jobs      []ledger.Job
}

// Seed inserts every row of ds in one transaction.
func (s *Store) Seed(ctx context.Context, ds Dataset) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range ds.Profiles {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO profiles (id, first_name, last_name, profession, balance_cents, type)
			VALUES (?, ?, ?, ?, ?, ?)`),
			p.ID, p.FirstName, p.LastName, p.Profession, ledger.ToCents(p.Balance), string(p.Type))
		if err != nil {
			return fmt.Errorf("failed to insert profile %d: %w", p.ID, err)
		}
	}

	for _, c := range ds.Contracts {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO contracts (id, terms, status, client_id, contractor_id)
			VALUES (?, ?, ?, ?, ?)`),
			c.ID, c.Terms, string(c.Status), c.ClientID, c.ContractorID)
		if err != nil {
			return fmt.Errorf("failed to insert contract %d: %w", c.ID, err)
		}
	}

	for _, j := range ds.Jobs {
		var paidAt any
		if j.PaymentDate != nil {
			paidAt = j.PaymentDate.UTC().Truncate(time.Second)
		}
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO jobs (id, description, price_cents, paid, payment_date, contract_id)
			VALUES (?, ?, ?, ?, ?, ?)`),
			j.ID, j.Description, ledger.ToCents(j.Price), j.Paid, paidAt, j.ContractID)
		if err != nil {
			return fmt.Errorf("failed to insert job %d: %w", j.ID, err)
		}
	}

	return tx.Commit()
}

// SeedIfEmpty loads ds only when no profile exists yet. It reports whether
// anything was inserted.
func (s *Store) SeedIfEmpty(ctx context.Context, ds Dataset) (bool, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM profiles`); err != nil {
		return false, fmt.Errorf("failed to count profiles: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	if err := s.Seed(ctx, ds); err != nil {
		return false, err
	}
	return true, nil
}

// DemoDataset returns a small dataset covering every contract status, paid
// and unpaid jobs, and several professions.
func DemoDataset() Dataset {
	paid := func(y int, m time.Month, d int) *time.Time {
		t := time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
		return &t
	}
	dollars := func(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

	return Dataset{
		Profiles: []ledger.Profile{
			{ID: 1, FirstName: "Tayo", LastName: "Babatunde", Profession: "Software Client", Balance: dollars(100), Type: ledger.ProfileClient},
			{ID: 2, FirstName: "Omotayo", LastName: "Obafemi", Profession: "Software Engineer", Balance: dollars(100), Type: ledger.ProfileContractor},
			{ID: 3, FirstName: "Ada", LastName: "Okafor", Profession: "Product Owner", Balance: dollars(1150), Type: ledger.ProfileClient},
			{ID: 4, FirstName: "Kemi", LastName: "Adeyemi", Profession: "Designer", Balance: dollars(64), Type: ledger.ProfileContractor},
			{ID: 5, FirstName: "Bola", LastName: "Ige", Profession: "Founder", Balance: dollars(451), Type: ledger.ProfileClient},
		},
		Contracts: []ledger.Contract{
			{ID: 1, Terms: "First Sample terms", Status: ledger.ContractInProgress, ClientID: 1, ContractorID: 2},
			{ID: 2, Terms: "Second Sample terms", Status: ledger.ContractInProgress, ClientID: 1, ContractorID: 2},
			{ID: 3, Terms: "Third Sample terms", Status: ledger.ContractTerminated, ClientID: 1, ContractorID: 2},
			{ID: 4, Terms: "Brand refresh", Status: ledger.ContractNew, ClientID: 3, ContractorID: 4},
			{ID: 5, Terms: "Backend rewrite", Status: ledger.ContractInProgress, ClientID: 5, ContractorID: 2},
		},
		Jobs: []ledger.Job{
			{ID: 1, Description: "Sample job description", Price: dollars(50), ContractID: 1},
			{ID: 2, Description: "Second Sample job description", Price: dollars(50), ContractID: 1},
			{ID: 3, Description: "Third Sample job description", Price: dollars(50), Paid: true, PaymentDate: paid(2024, time.March, 4), ContractID: 1},
			{ID: 4, Description: "Logo", Price: dollars(200), Paid: true, PaymentDate: paid(2024, time.March, 10), ContractID: 4},
			{ID: 5, Description: "Style guide", Price: dollars(121), ContractID: 4},
			{ID: 6, Description: "API layer", Price: dollars(300), Paid: true, PaymentDate: paid(2024, time.April, 2), ContractID: 5},
			{ID: 7, Description: "Data migration", Price: dollars(150), ContractID: 5},
		},
	}
}
