// Package ids generates transfer journal identifiers.
package ids

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// New returns a ULID string. IDs sort by creation time and are unique within
// the process even when generated in the same millisecond.
func New() string {
	return ulid.Make().String()
}

// timestamp extracts the creation time embedded in id.
func timestamp(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse id %q: %w", id, err)
	}
	return ulid.Time(parsed.Time()).UTC(), nil
}
