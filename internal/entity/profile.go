package entity

import (
	"time"
)

// Profile is the one profile token of an address. Username uniqueness is
// enforced by the contract; this row is a cache, never the authority for
// availability checks.
type Profile struct {
	Address string `gorm:"primaryKey"`

	TokenID  int64
	Username string `gorm:"index"`
	Metadata Map    `gorm:"type:longtext"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
