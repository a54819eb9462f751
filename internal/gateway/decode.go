package gateway

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// The contracts return positional tuples. Every positional assumption lives
// in this file; the rest of the package only sees named Raw* fields.

const postsABIJSON = `[
	{"name":"nextPostId","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"name":"getPost","type":"function","stateMutability":"view","inputs":[{"type":"uint256"}],"outputs":[
		{"type":"address"},{"type":"uint256"},{"type":"uint256"},{"type":"string"},{"type":"string"},
		{"type":"uint256"},{"type":"uint256"},{"type":"uint256"},{"type":"uint256"},{"type":"uint256"},{"type":"bool"}]},
	{"name":"getPostsByTribe","type":"function","stateMutability":"view","inputs":[{"type":"uint256"},{"type":"uint256"},{"type":"uint256"}],"outputs":[{"type":"uint256[]"}]},
	{"name":"getPostsByAuthor","type":"function","stateMutability":"view","inputs":[{"type":"address"},{"type":"uint256"},{"type":"uint256"}],"outputs":[{"type":"uint256[]"}]},
	{"name":"createPost","type":"function","stateMutability":"nonpayable","inputs":[{"type":"uint256"},{"type":"string"},{"type":"string"}],"outputs":[]},
	{"name":"updatePost","type":"function","stateMutability":"nonpayable","inputs":[{"type":"uint256"},{"type":"string"}],"outputs":[]},
	{"name":"deletePost","type":"function","stateMutability":"nonpayable","inputs":[{"type":"uint256"}],"outputs":[]},
	{"name":"likePost","type":"function","stateMutability":"nonpayable","inputs":[{"type":"uint256"}],"outputs":[]},
	{"name":"commentPost","type":"function","stateMutability":"nonpayable","inputs":[{"type":"uint256"},{"type":"string"}],"outputs":[]},
	{"name":"sharePost","type":"function","stateMutability":"nonpayable","inputs":[{"type":"uint256"}],"outputs":[]}
]`

const tribesABIJSON = `[
	{"name":"nextTribeId","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"name":"getTribe","type":"function","stateMutability":"view","inputs":[{"type":"uint256"}],"outputs":[
		{"type":"string"},{"type":"address"},{"type":"address[]"},{"type":"string"},
		{"type":"uint256"},{"type":"uint8"},{"type":"uint256"},
		{"type":"address[]"},{"type":"uint256[]"},{"type":"uint256[]"}]},
	{"name":"createTribe","type":"function","stateMutability":"nonpayable","inputs":[{"type":"string"},{"type":"string"},{"type":"uint8"},{"type":"uint256"}],"outputs":[]},
	{"name":"joinTribe","type":"function","stateMutability":"payable","inputs":[{"type":"uint256"}],"outputs":[]}
]`

const profileABIJSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"type":"address"}],"outputs":[{"type":"uint256"}]},
	{"name":"ownerOf","type":"function","stateMutability":"view","inputs":[{"type":"uint256"}],"outputs":[{"type":"address"}]},
	{"name":"getProfile","type":"function","stateMutability":"view","inputs":[{"type":"uint256"}],"outputs":[{"type":"string"},{"type":"string"}]},
	{"name":"usernameTaken","type":"function","stateMutability":"view","inputs":[{"type":"string"}],"outputs":[{"type":"bool"}]},
	{"name":"createProfile","type":"function","stateMutability":"nonpayable","inputs":[{"type":"string"},{"type":"string"}],"outputs":[]},
	{"name":"updateProfile","type":"function","stateMutability":"nonpayable","inputs":[{"type":"uint256"},{"type":"string"}],"outputs":[]}
]`

const erc721ABIJSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"type":"address"}],"outputs":[{"type":"uint256"}]}
]`

const erc1155ABIJSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"type":"address"},{"type":"uint256"}],"outputs":[{"type":"uint256"}]}
]`

func mustParseABI(js string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(js))
	if err != nil {
		panic(err)
	}

	return parsed
}

var (
	postsABI   = mustParseABI(postsABIJSON)
	tribesABI  = mustParseABI(tribesABIJSON)
	profileABI = mustParseABI(profileABIJSON)
	erc721ABI  = mustParseABI(erc721ABIJSON)
	erc1155ABI = mustParseABI(erc1155ABIJSON)
)

func outAddress(outputs []any, i int) (string, error) {
	addr, ok := outputs[i].(common.Address)
	if !ok {
		return "", fmt.Errorf("output %d is %T, not address", i, outputs[i])
	}

	return addr.Hex(), nil
}

func outBig(outputs []any, i int) (*big.Int, error) {
	v, ok := outputs[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("output %d is %T, not uint256", i, outputs[i])
	}

	return v, nil
}

func outString(outputs []any, i int) (string, error) {
	s, ok := outputs[i].(string)
	if !ok {
		return "", fmt.Errorf("output %d is %T, not string", i, outputs[i])
	}

	return s, nil
}

func outBool(outputs []any, i int) (bool, error) {
	b, ok := outputs[i].(bool)
	if !ok {
		return false, fmt.Errorf("output %d is %T, not bool", i, outputs[i])
	}

	return b, nil
}

func outUint8(outputs []any, i int) (uint8, error) {
	v, ok := outputs[i].(uint8)
	if !ok {
		return 0, fmt.Errorf("output %d is %T, not uint8", i, outputs[i])
	}

	return v, nil
}

func outAddressSlice(outputs []any, i int) ([]string, error) {
	addrs, ok := outputs[i].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("output %d is %T, not address[]", i, outputs[i])
	}

	out := []string{}
	for _, a := range addrs {
		out = append(out, a.Hex())
	}

	return out, nil
}

func outBigSlice(outputs []any, i int) ([]*big.Int, error) {
	v, ok := outputs[i].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("output %d is %T, not uint256[]", i, outputs[i])
	}

	return v, nil
}

// decodePost maps the getPost tuple
// (author, tribeId, timestamp, content, metadata, likes, comments, shares,
// views, saves, deleted) to named fields.
func decodePost(id *big.Int, outputs []any) (*RawPost, error) {
	if len(outputs) != 11 {
		return nil, fmt.Errorf("getPost returned %d outputs, want 11", len(outputs))
	}

	post := &RawPost{ID: id}

	var err error
	if post.Author, err = outAddress(outputs, 0); err != nil {
		return nil, err
	}
	if post.TribeID, err = outBig(outputs, 1); err != nil {
		return nil, err
	}
	if post.Timestamp, err = outBig(outputs, 2); err != nil {
		return nil, err
	}
	if post.Content, err = outString(outputs, 3); err != nil {
		return nil, err
	}
	if post.Metadata, err = outString(outputs, 4); err != nil {
		return nil, err
	}
	if post.Likes, err = outBig(outputs, 5); err != nil {
		return nil, err
	}
	if post.Comments, err = outBig(outputs, 6); err != nil {
		return nil, err
	}
	if post.Shares, err = outBig(outputs, 7); err != nil {
		return nil, err
	}
	if post.Views, err = outBig(outputs, 8); err != nil {
		return nil, err
	}
	if post.Saves, err = outBig(outputs, 9); err != nil {
		return nil, err
	}
	if post.Deleted, err = outBool(outputs, 10); err != nil {
		return nil, err
	}

	return post, nil
}

// decodeTribe maps the getTribe tuple
// (name, owner, admins, metadata, memberCount, joinPolicy, entryFee,
// gateContracts, gateTokenIds, gateMinBalances) to named fields. The three
// gate arrays are parallel.
func decodeTribe(id *big.Int, outputs []any) (*RawTribe, error) {
	if len(outputs) != 10 {
		return nil, fmt.Errorf("getTribe returned %d outputs, want 10", len(outputs))
	}

	tribe := &RawTribe{ID: id}

	var err error
	if tribe.Name, err = outString(outputs, 0); err != nil {
		return nil, err
	}
	if tribe.Owner, err = outAddress(outputs, 1); err != nil {
		return nil, err
	}
	if tribe.Admins, err = outAddressSlice(outputs, 2); err != nil {
		return nil, err
	}
	if tribe.Metadata, err = outString(outputs, 3); err != nil {
		return nil, err
	}
	if tribe.MemberCount, err = outBig(outputs, 4); err != nil {
		return nil, err
	}
	if tribe.JoinPolicy, err = outUint8(outputs, 5); err != nil {
		return nil, err
	}
	if tribe.EntryFee, err = outBig(outputs, 6); err != nil {
		return nil, err
	}

	contracts, err := outAddressSlice(outputs, 7)
	if err != nil {
		return nil, err
	}

	tokenIDs, err := outBigSlice(outputs, 8)
	if err != nil {
		return nil, err
	}

	minBalances, err := outBigSlice(outputs, 9)
	if err != nil {
		return nil, err
	}

	if len(tokenIDs) != len(contracts) || len(minBalances) != len(contracts) {
		return nil, fmt.Errorf("gate arrays are not parallel: %d/%d/%d",
			len(contracts), len(tokenIDs), len(minBalances))
	}

	for i := range contracts {
		tribe.Gates = append(tribe.Gates, RawGate{
			Contract:   contracts[i],
			TokenID:    tokenIDs[i],
			MinBalance: minBalances[i],
		})
	}

	return tribe, nil
}

// decodeProfile maps the getProfile tuple (username, metadata).
func decodeProfile(tokenID *big.Int, owner string, outputs []any) (*RawProfile, error) {
	if len(outputs) != 2 {
		return nil, fmt.Errorf("getProfile returned %d outputs, want 2", len(outputs))
	}

	profile := &RawProfile{TokenID: tokenID, Owner: owner}

	var err error
	if profile.Username, err = outString(outputs, 0); err != nil {
		return nil, err
	}
	if profile.Metadata, err = outString(outputs, 1); err != nil {
		return nil, err
	}

	return profile, nil
}
