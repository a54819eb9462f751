package gateway

import (
	"math/big"
)

// RawPost is a post tuple as returned by the posts contract, decoded into
// named fields. The metadata blob is kept verbatim; parsing it is the
// converter's job since malformed metadata must not fail the decode.
type RawPost struct {
	ID        *big.Int
	Author    string
	TribeID   *big.Int
	Timestamp *big.Int
	Content   string
	Metadata  string

	Likes    *big.Int
	Comments *big.Int
	Shares   *big.Int
	Views    *big.Int
	Saves    *big.Int

	Deleted bool
}

type RawTribe struct {
	ID       *big.Int
	Name     string
	Owner    string
	Admins   []string
	Metadata string

	MemberCount *big.Int
	JoinPolicy  uint8
	EntryFee    *big.Int

	Gates []RawGate
}

type RawGate struct {
	Contract   string
	TokenID    *big.Int
	MinBalance *big.Int
}

type RawProfile struct {
	TokenID  *big.Int
	Owner    string
	Username string
	Metadata string
}
