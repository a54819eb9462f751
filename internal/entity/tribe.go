package entity

import (
	"time"
)

type JoinPolicy string

const (
	JoinPolicyOpen     JoinPolicy = "open"
	JoinPolicyApproval JoinPolicy = "approval"
	JoinPolicyClosed   JoinPolicy = "closed"
)

// GateRequirement is an NFT-gating rule: the joining address must hold at
// least MinBalance of the given token.
type GateRequirement struct {
	Contract   string `json:"contract"`
	TokenID    string `json:"token_id"`
	MinBalance int64  `json:"min_balance"`
}

type Tribe struct {
	ID int64 `gorm:"primaryKey;autoIncrement:false"`

	Name  string
	Owner string `gorm:"index"`

	// Owner is always included in Admins; the contract enforces it and the
	// converters preserve it.
	Admins Array[string] `gorm:"type:longtext"`

	Metadata    Map `gorm:"type:longtext"`
	MemberCount int
	JoinPolicy  JoinPolicy

	// EntryFee is in the smallest currency unit and can exceed int64 range,
	// so it is stored as a decimal string.
	EntryFee string

	Gates Array[GateRequirement] `gorm:"type:longtext"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
