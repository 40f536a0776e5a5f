/*
Package ledger provides the payment, deposit and reporting engine for the
contract ledger.

PURPOSE:
  Profiles (clients and contractors) hold balances. Contracts bind exactly one
  client to one contractor, and jobs are billable units of work under a
  contract. This package owns the rules that move money between balances:

  - Payments: a client pays a job, debiting the client and crediting the
    contractor in a single store transaction.
  - Deposits: a client may top up their own balance, capped at 25% of the
    price of their unpaid jobs.
  - Reports: top earning profession and top paying clients over a date range.

KEY CONCEPTS IN THIS FILE (types.go):
  - Profile, Contract, Job: the stored entities
  - JobParties: a job joined with its contract and both profiles
  - Transfer: journal entry written for every successful payment
  - DateRange: inclusive day range used by reports

MONEY:
  Amounts are decimal.Decimal in memory and integer cents in storage, so no
  arithmetic ever goes through floating point. See money.go.

SEE ALSO:
  - errors.go: Error kinds and sentinel errors
  - store.go: Store contract and query descriptors
  - transfer.go, deposit.go, reports.go: the engines
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PROFILE
// =============================================================================

// ProfileType is fixed when the profile is created.
type ProfileType string

const (
	ProfileClient     ProfileType = "client"
	ProfileContractor ProfileType = "contractor"
)

// Profile is a client or contractor account.
type Profile struct {
	ID         int64
	FirstName  string
	LastName   string
	Profession string
	Balance    decimal.Decimal
	Type       ProfileType

	// Version is bumped on every balance write and guards concurrent transfers.
	Version int64
}

// FullName joins first and last name with a single space.
func (p Profile) FullName() string {
	return p.FirstName + " " + p.LastName
}

func (p Profile) IsClient() bool     { return p.Type == ProfileClient }
func (p Profile) IsContractor() bool { return p.Type == ProfileContractor }

// =============================================================================
// CONTRACT
// =============================================================================

type ContractStatus string

const (
	ContractNew        ContractStatus = "new"
	ContractInProgress ContractStatus = "in_progress"
	ContractTerminated ContractStatus = "terminated"
)

// Contract is an agreement between one client and one contractor.
type Contract struct {
	ID           int64
	Terms        string
	Status       ContractStatus
	ClientID     int64
	ContractorID int64
}

// HasParty reports whether the profile is the client or the contractor.
func (c Contract) HasParty(profileID int64) bool {
	return c.ClientID == profileID || c.ContractorID == profileID
}

// =============================================================================
// JOB
// =============================================================================

// Job is a unit of billable work. PaymentDate is set iff Paid is true.
type Job struct {
	ID          int64
	Description string
	Price       decimal.Decimal
	Paid        bool
	PaymentDate *time.Time
	ContractID  int64
	Version     int64
}

// JobParties is the consistent read the payment engine works from.
type JobParties struct {
	Job        Job
	Contract   Contract
	Client     Profile
	Contractor Profile
}

// Transfer records one successful job payment.
type Transfer struct {
	ID           string
	JobID        int64
	ClientID     int64
	ContractorID int64
	Amount       decimal.Decimal
	CreatedAt    time.Time
}

// =============================================================================
// REPORTING
// =============================================================================

// DateRange is an inclusive range of calendar days in UTC.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// From returns the first instant covered by the range.
func (r DateRange) From() time.Time { return dateOnly(r.Start) }

// Until returns the first instant after the range (exclusive upper bound).
func (r DateRange) Until() time.Time { return dateOnly(r.End).AddDate(0, 0, 1) }

// ProfessionTotal is the paid total earned by one contractor profession.
type ProfessionTotal struct {
	Profession string
	Total      decimal.Decimal
}

// ClientTotal is the paid total spent by one client.
type ClientTotal struct {
	ClientID  int64
	FirstName string
	LastName  string
	Total     decimal.Decimal
}

func (c ClientTotal) FullName() string {
	return c.FirstName + " " + c.LastName
}

// dateOnly keeps the calendar day as written, in the value's own offset.
func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
