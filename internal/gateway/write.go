package gateway

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/tribes-lab/backend/pkg/xcontext"
)

var receiptPollInterval = 2 * time.Second

// transact signs and sends a state-changing call. It only returns the hash;
// nothing here retries a write, a failed transaction is the caller's news to
// deliver.
func (g *ethGateway) transact(
	ctx context.Context,
	contract common.Address,
	contractABI abi.ABI,
	method string,
	value *big.Int,
	args ...any,
) (string, error) {
	if g.privKey == nil {
		return "", ErrNoSigner
	}

	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return "", err
	}

	client, _, _, _ := g.contracts()

	nonce, err := client.PendingNonceAt(ctx, g.signer)
	if err != nil {
		return "", err
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", err
	}

	if value == nil {
		value = big.NewInt(0)
	}

	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From:  g.signer,
		To:    &contract,
		Value: value,
		Data:  input,
	})
	if err != nil {
		return "", err
	}

	tx := ethtypes.NewTransaction(nonce, contract, value, gasLimit, gasPrice, input)
	signedTx, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(big.NewInt(g.ChainID())), g.privKey)
	if err != nil {
		return "", err
	}

	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return "", err
	}

	hash := signedTx.Hash().Hex()
	xcontext.Logger(ctx).Infof("Sent %s transaction %s", method, hash)
	return hash, nil
}

// WaitForReceipt polls until the transaction is mined or the context ends.
// A reverted transaction is an error; the write did not happen.
func (g *ethGateway) WaitForReceipt(ctx context.Context, txHash string) error {
	client, _, _, _ := g.contracts()
	hash := common.HexToHash(txHash)

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				return fmt.Errorf("transaction %s reverted", txHash)
			}

			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *ethGateway) CreatePost(ctx context.Context, tribeID int64, content, metadata string) (string, error) {
	_, posts, _, _ := g.contracts()
	return g.transact(ctx, posts, postsABI, "createPost", nil, big.NewInt(tribeID), content, metadata)
}

func (g *ethGateway) UpdatePost(ctx context.Context, id int64, metadata string) (string, error) {
	_, posts, _, _ := g.contracts()
	return g.transact(ctx, posts, postsABI, "updatePost", nil, big.NewInt(id), metadata)
}

func (g *ethGateway) DeletePost(ctx context.Context, id int64) (string, error) {
	_, posts, _, _ := g.contracts()
	return g.transact(ctx, posts, postsABI, "deletePost", nil, big.NewInt(id))
}

func (g *ethGateway) LikePost(ctx context.Context, id int64) (string, error) {
	_, posts, _, _ := g.contracts()
	return g.transact(ctx, posts, postsABI, "likePost", nil, big.NewInt(id))
}

func (g *ethGateway) CommentPost(ctx context.Context, id int64, comment string) (string, error) {
	_, posts, _, _ := g.contracts()
	return g.transact(ctx, posts, postsABI, "commentPost", nil, big.NewInt(id), comment)
}

func (g *ethGateway) SharePost(ctx context.Context, id int64) (string, error) {
	_, posts, _, _ := g.contracts()
	return g.transact(ctx, posts, postsABI, "sharePost", nil, big.NewInt(id))
}

func (g *ethGateway) CreateTribe(
	ctx context.Context, name, metadata string, joinPolicy uint8, entryFee *big.Int,
) (string, error) {
	if entryFee == nil {
		entryFee = big.NewInt(0)
	}

	_, _, tribes, _ := g.contracts()
	return g.transact(ctx, tribes, tribesABI, "createTribe", nil, name, metadata, joinPolicy, entryFee)
}

func (g *ethGateway) JoinTribe(ctx context.Context, id int64, entryFee *big.Int) (string, error) {
	_, _, tribes, _ := g.contracts()
	return g.transact(ctx, tribes, tribesABI, "joinTribe", entryFee, big.NewInt(id))
}

func (g *ethGateway) CreateProfile(ctx context.Context, username, metadata string) (string, error) {
	_, _, _, profile := g.contracts()
	return g.transact(ctx, profile, profileABI, "createProfile", nil, username, metadata)
}

func (g *ethGateway) UpdateProfile(ctx context.Context, tokenID int64, metadata string) (string, error) {
	_, _, _, profile := g.contracts()
	return g.transact(ctx, profile, profileABI, "updateProfile", nil, big.NewInt(tokenID), metadata)
}
