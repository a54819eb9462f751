package gateway

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/tribes-lab/backend/config"
	"github.com/tribes-lab/backend/pkg/blockchain/eth"
	"github.com/tribes-lab/backend/pkg/xcontext"
)

// ErrNotFound is returned when the contract reverts because the requested
// id or token has never been minted.
var ErrNotFound = errors.New("not found on chain")

// ErrNoSigner is returned from write operations when no signer key was
// configured. Callers surface this to the user instead of retrying.
var ErrNoSigner = errors.New("no signer configured")

// Gateway is the typed read/write surface of the Tribes contracts. Reads
// never mutate; writes return a transaction hash and the caller decides
// whether to wait for the receipt.
type Gateway interface {
	// Posts
	NextPostID(ctx context.Context) (int64, error)
	GetPost(ctx context.Context, id int64) (*RawPost, error)
	GetPostIDsByTribe(ctx context.Context, tribeID int64, offset, limit int) ([]int64, error)
	GetPostIDsByAuthor(ctx context.Context, author string, offset, limit int) ([]int64, error)
	CreatePost(ctx context.Context, tribeID int64, content, metadata string) (string, error)
	UpdatePost(ctx context.Context, id int64, metadata string) (string, error)
	DeletePost(ctx context.Context, id int64) (string, error)
	LikePost(ctx context.Context, id int64) (string, error)
	CommentPost(ctx context.Context, id int64, comment string) (string, error)
	SharePost(ctx context.Context, id int64) (string, error)

	// Tribes
	NextTribeID(ctx context.Context) (int64, error)
	GetTribe(ctx context.Context, id int64) (*RawTribe, error)
	CreateTribe(ctx context.Context, name, metadata string, joinPolicy uint8, entryFee *big.Int) (string, error)
	JoinTribe(ctx context.Context, id int64, entryFee *big.Int) (string, error)

	// Profiles
	ProfileBalanceOf(ctx context.Context, owner string) (int64, error)
	OwnerOf(ctx context.Context, tokenID int64) (string, error)
	GetProfile(ctx context.Context, tokenID int64) (*RawProfile, error)
	IsUsernameTaken(ctx context.Context, username string) (bool, error)
	CreateProfile(ctx context.Context, username, metadata string) (string, error)
	UpdateProfile(ctx context.Context, tokenID int64, metadata string) (string, error)

	// NFT gating
	TokenBalance(ctx context.Context, contract, owner, tokenID string) (*big.Int, error)

	WaitForReceipt(ctx context.Context, txHash string) error

	HasSigner() bool
	SignerAddress() string
	ChainID() int64
	SwitchChain(ctx context.Context, chainID int64) error
	Close()
}

type ethGateway struct {
	client eth.EthClient

	privKey *ecdsa.PrivateKey
	signer  common.Address

	lock    sync.RWMutex
	chain   config.ChainConfig
	posts   common.Address
	tribes  common.Address
	profile common.Address
}

// NewEthGateway builds a gateway for the configured default chain. The hex
// private key is optional; without it the gateway is read-only.
func NewEthGateway(ctx context.Context, privKeyHex string) (*ethGateway, error) {
	cfg := xcontext.Configs(ctx).Chain

	g := &ethGateway{}
	if privKeyHex != "" {
		privKey, err := ethcrypto.HexToECDSA(privKeyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid signer key: %w", err)
		}

		g.privKey = privKey
		g.signer = ethcrypto.PubkeyToAddress(privKey.PublicKey)
	}

	if err := g.SwitchChain(ctx, cfg.DefaultChainID); err != nil {
		return nil, err
	}

	return g, nil
}

// SwitchChain re-reads the contract addresses for the given chain id and
// replaces the RPC client. Cached data derived from the previous chain is the
// indexer's problem; it invalidates its families when it calls this.
func (g *ethGateway) SwitchChain(ctx context.Context, chainID int64) error {
	chain, ok := xcontext.Configs(ctx).Chain.Get(chainID)
	if !ok {
		return fmt.Errorf("no contract set configured for chain %d", chainID)
	}

	client := eth.NewEthClient(chain)
	client.Start(ctx)

	g.lock.Lock()
	old := g.client
	g.client = client
	g.chain = chain
	g.posts = common.HexToAddress(chain.PostsAddress)
	g.tribes = common.HexToAddress(chain.TribesAddress)
	g.profile = common.HexToAddress(chain.ProfileAddress)
	g.lock.Unlock()

	if old != nil {
		old.Stop()
	}

	return nil
}

func (g *ethGateway) ChainID() int64 {
	g.lock.RLock()
	defer g.lock.RUnlock()

	return g.chain.ChainID
}

func (g *ethGateway) HasSigner() bool {
	return g.privKey != nil
}

func (g *ethGateway) SignerAddress() string {
	if g.privKey == nil {
		return ""
	}

	return g.signer.Hex()
}

func (g *ethGateway) Close() {
	g.lock.RLock()
	defer g.lock.RUnlock()

	if g.client != nil {
		g.client.Stop()
	}
}

func (g *ethGateway) contracts() (eth.EthClient, common.Address, common.Address, common.Address) {
	g.lock.RLock()
	defer g.lock.RUnlock()

	return g.client, g.posts, g.tribes, g.profile
}

// isRevert reports whether an RPC error is a contract revert, which the
// contracts use for "id was never minted".
func isRevert(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "invalid opcode")
}

func (g *ethGateway) call(
	ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...any,
) ([]any, error) {
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}

	client, _, _, _ := g.contracts()
	output, err := client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	if err != nil {
		if isRevert(err) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	return contractABI.Unpack(method, output)
}

func (g *ethGateway) NextPostID(ctx context.Context) (int64, error) {
	_, posts, _, _ := g.contracts()
	outputs, err := g.call(ctx, posts, postsABI, "nextPostId")
	if err != nil {
		return 0, err
	}

	next, err := outBig(outputs, 0)
	if err != nil {
		return 0, err
	}

	return next.Int64(), nil
}

func (g *ethGateway) GetPost(ctx context.Context, id int64) (*RawPost, error) {
	_, posts, _, _ := g.contracts()
	outputs, err := g.call(ctx, posts, postsABI, "getPost", big.NewInt(id))
	if err != nil {
		return nil, err
	}

	return decodePost(big.NewInt(id), outputs)
}

func (g *ethGateway) GetPostIDsByTribe(ctx context.Context, tribeID int64, offset, limit int) ([]int64, error) {
	_, posts, _, _ := g.contracts()
	outputs, err := g.call(ctx, posts, postsABI, "getPostsByTribe",
		big.NewInt(tribeID), big.NewInt(int64(offset)), big.NewInt(int64(limit)))
	if err != nil {
		return nil, err
	}

	return toIDs(outputs)
}

func (g *ethGateway) GetPostIDsByAuthor(ctx context.Context, author string, offset, limit int) ([]int64, error) {
	_, posts, _, _ := g.contracts()
	outputs, err := g.call(ctx, posts, postsABI, "getPostsByAuthor",
		common.HexToAddress(author), big.NewInt(int64(offset)), big.NewInt(int64(limit)))
	if err != nil {
		return nil, err
	}

	return toIDs(outputs)
}

func toIDs(outputs []any) ([]int64, error) {
	raw, err := outBigSlice(outputs, 0)
	if err != nil {
		return nil, err
	}

	ids := []int64{}
	for _, id := range raw {
		ids = append(ids, id.Int64())
	}

	return ids, nil
}

func (g *ethGateway) NextTribeID(ctx context.Context) (int64, error) {
	_, _, tribes, _ := g.contracts()
	outputs, err := g.call(ctx, tribes, tribesABI, "nextTribeId")
	if err != nil {
		return 0, err
	}

	next, err := outBig(outputs, 0)
	if err != nil {
		return 0, err
	}

	return next.Int64(), nil
}

func (g *ethGateway) GetTribe(ctx context.Context, id int64) (*RawTribe, error) {
	_, _, tribes, _ := g.contracts()
	outputs, err := g.call(ctx, tribes, tribesABI, "getTribe", big.NewInt(id))
	if err != nil {
		return nil, err
	}

	return decodeTribe(big.NewInt(id), outputs)
}

func (g *ethGateway) ProfileBalanceOf(ctx context.Context, owner string) (int64, error) {
	_, _, _, profile := g.contracts()
	outputs, err := g.call(ctx, profile, profileABI, "balanceOf", common.HexToAddress(owner))
	if err != nil {
		return 0, err
	}

	balance, err := outBig(outputs, 0)
	if err != nil {
		return 0, err
	}

	return balance.Int64(), nil
}

func (g *ethGateway) OwnerOf(ctx context.Context, tokenID int64) (string, error) {
	_, _, _, profile := g.contracts()
	outputs, err := g.call(ctx, profile, profileABI, "ownerOf", big.NewInt(tokenID))
	if err != nil {
		return "", err
	}

	return outAddress(outputs, 0)
}

func (g *ethGateway) GetProfile(ctx context.Context, tokenID int64) (*RawProfile, error) {
	owner, err := g.OwnerOf(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	_, _, _, profile := g.contracts()
	outputs, err := g.call(ctx, profile, profileABI, "getProfile", big.NewInt(tokenID))
	if err != nil {
		return nil, err
	}

	return decodeProfile(big.NewInt(tokenID), owner, outputs)
}

func (g *ethGateway) IsUsernameTaken(ctx context.Context, username string) (bool, error) {
	_, _, _, profile := g.contracts()
	outputs, err := g.call(ctx, profile, profileABI, "usernameTaken", username)
	if err != nil {
		return false, err
	}

	return outBool(outputs, 0)
}

// TokenBalance checks a gate token balance. A non-empty tokenID selects the
// ERC-1155 balanceOf(address,uint256) form, otherwise ERC-721
// balanceOf(address).
func (g *ethGateway) TokenBalance(ctx context.Context, contract, owner, tokenID string) (*big.Int, error) {
	addr := common.HexToAddress(contract)
	ownerAddr := common.HexToAddress(owner)

	var outputs []any
	var err error
	if tokenID == "" {
		outputs, err = g.call(ctx, addr, erc721ABI, "balanceOf", ownerAddr)
	} else {
		id, ok := new(big.Int).SetString(tokenID, 10)
		if !ok {
			return nil, fmt.Errorf("invalid gate token id %q", tokenID)
		}

		outputs, err = g.call(ctx, addr, erc1155ABI, "balanceOf", ownerAddr, id)
	}
	if err != nil {
		return nil, err
	}

	return outBig(outputs, 0)
}
