/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts are written as JSON numbers with exactly two decimals (50.00),
  rendered from decimal.Decimal without going through float64. Request
  amounts are kept as raw JSON and parsed by ledger.ParseAmount.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/contract-ledger/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// AmountRequest is the body of the pay and deposit endpoints.
type AmountRequest struct {
	Amount json.RawMessage `json:"amount"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ContractDTO represents a contract in API responses.
type ContractDTO struct {
	ID           int64  `json:"id"`
	Terms        string `json:"terms"`
	Status       string `json:"status"`
	ClientID     int64  `json:"clientId"`
	ContractorID int64  `json:"contractorId"`
}

// JobDTO represents a job in API responses.
type JobDTO struct {
	ID          int64       `json:"id"`
	Description string      `json:"description"`
	Price       json.Number `json:"price"`
	Paid        bool        `json:"paid"`
	PaymentDate *string     `json:"paymentDate"`
	ContractID  int64       `json:"contractId"`
}

// ClientTotalDTO is one row of the best clients report.
type ClientTotalDTO struct {
	ID        int64       `json:"id"`
	FullName  string      `json:"fullName"`
	TotalPaid json.Number `json:"totalPaid"`
}

// ErrorResponse is returned for every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toMoney(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func toContractDTO(c ledger.Contract) ContractDTO {
	return ContractDTO{
		ID:           c.ID,
		Terms:        c.Terms,
		Status:       string(c.Status),
		ClientID:     c.ClientID,
		ContractorID: c.ContractorID,
	}
}

func toContractDTOs(contracts []ledger.Contract) []ContractDTO {
	dtos := make([]ContractDTO, 0, len(contracts))
	for _, c := range contracts {
		dtos = append(dtos, toContractDTO(c))
	}
	return dtos
}

func toJobDTOs(jobs []ledger.Job) []JobDTO {
	dtos := make([]JobDTO, 0, len(jobs))
	for _, j := range jobs {
		dto := JobDTO{
			ID:          j.ID,
			Description: j.Description,
			Price:       toMoney(j.Price),
			Paid:        j.Paid,
			ContractID:  j.ContractID,
		}
		if j.PaymentDate != nil {
			s := j.PaymentDate.UTC().Format(time.RFC3339)
			dto.PaymentDate = &s
		}
		dtos = append(dtos, dto)
	}
	return dtos
}

func toClientTotalDTOs(totals []ledger.ClientTotal) []ClientTotalDTO {
	dtos := make([]ClientTotalDTO, 0, len(totals))
	for _, c := range totals {
		dtos = append(dtos, ClientTotalDTO{
			ID:        c.ClientID,
			FullName:  c.FullName(),
			TotalPaid: toMoney(c.Total),
		})
	}
	return dtos
}
