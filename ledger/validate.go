package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultClientsLimit = 2
	MaxClientsLimit     = 100
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// ParseID parses a positive integer identifier. label names the field in
// error messages, e.g. "job Id".
func ParseID(raw, label string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, invalid(label + " is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid(label + " must be a number")
	}
	return id, nil
}

// ParseAmount parses a JSON amount given either as a number or a quoted
// number. Amounts must be positive and expressed in whole cents.
func ParseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte(`""`)) {
		return decimal.Zero, invalid("amount is required")
	}
	var amount decimal.Decimal
	if err := json.Unmarshal(raw, &amount); err != nil {
		return decimal.Zero, invalid("amount must be a number")
	}
	return amount, CheckAmount(amount)
}

// CheckAmount asserts amount is positive and has no sub-cent part.
func CheckAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !isWholeCents(amount) {
		return newError(KindInvalidRequest, CodeInvalidAmount, "amount must have at most 2 decimal places")
	}
	return nil
}

// RequireClient fails with Forbidden unless p is a client.
func RequireClient(p Profile, msg string) error {
	if !p.IsClient() {
		return forbidden(msg)
	}
	return nil
}

// ParseDateRange parses report bounds. Both are required and start must be
// strictly before end; equal days are rejected.
func ParseDateRange(start, end string) (DateRange, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" || end == "" {
		return DateRange{}, invalid("start and end dates are required")
	}
	from, err := parseDate(start)
	if err != nil {
		return DateRange{}, invalid("start must be a valid date")
	}
	to, err := parseDate(end)
	if err != nil {
		return DateRange{}, invalid("end must be a valid date")
	}
	return NewDateRange(from, to)
}

// NewDateRange validates an already parsed range.
func NewDateRange(start, end time.Time) (DateRange, error) {
	start, end = dateOnly(start), dateOnly(end)
	if start.IsZero() || end.IsZero() {
		return DateRange{}, invalid("start and end dates are required")
	}
	if start.Equal(end) {
		return DateRange{}, invalid("start and end dates cannot be equal")
	}
	if start.After(end) {
		return DateRange{}, invalid("start date param cannot be greater than end date")
	}
	return DateRange{Start: start, End: end}, nil
}

// ParseLimit parses the optional top-clients limit.
func ParseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultClientsLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid("limit must be a number")
	}
	if limit < 1 {
		return 0, invalid("limit must be a positive integer")
	}
	if limit > MaxClientsLimit {
		return 0, invalid(fmt.Sprintf("limit must not exceed %d", MaxClientsLimit))
	}
	return limit, nil
}

func parseDate(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			return parsed, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
