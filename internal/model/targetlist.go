package model

import (
	"time"

	"github.com/lib/pq"
)

// TargetList is an externally supplied batch of normalized phone numbers
// compared against group rosters. Immutable except through full replacement.
type TargetList struct {
	ID         int64          `db:"id" json:"id"`
	Name       string         `db:"name" json:"name"`
	Phones     pq.StringArray `db:"phones" json:"phones"`
	TotalCount int            `db:"total_count" json:"totalCount"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updatedAt"`
}
