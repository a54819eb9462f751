package testutil

import (
	"context"
	"math/big"

	"github.com/tribes-lab/backend/internal/gateway"
)

// MockGateway fakes the contract surface. Unset funcs behave like an empty
// chain: reads report not found, writes succeed with a zero hash.
type MockGateway struct {
	NextPostIDFunc         func(ctx context.Context) (int64, error)
	GetPostFunc            func(ctx context.Context, id int64) (*gateway.RawPost, error)
	GetPostIDsByTribeFunc  func(ctx context.Context, tribeID int64, offset, limit int) ([]int64, error)
	GetPostIDsByAuthorFunc func(ctx context.Context, author string, offset, limit int) ([]int64, error)
	CreatePostFunc         func(ctx context.Context, tribeID int64, content, metadata string) (string, error)
	UpdatePostFunc         func(ctx context.Context, id int64, metadata string) (string, error)
	DeletePostFunc         func(ctx context.Context, id int64) (string, error)
	LikePostFunc           func(ctx context.Context, id int64) (string, error)
	CommentPostFunc        func(ctx context.Context, id int64, comment string) (string, error)
	SharePostFunc          func(ctx context.Context, id int64) (string, error)

	NextTribeIDFunc func(ctx context.Context) (int64, error)
	GetTribeFunc    func(ctx context.Context, id int64) (*gateway.RawTribe, error)
	CreateTribeFunc func(ctx context.Context, name, metadata string, joinPolicy uint8, entryFee *big.Int) (string, error)
	JoinTribeFunc   func(ctx context.Context, id int64, entryFee *big.Int) (string, error)

	ProfileBalanceOfFunc func(ctx context.Context, owner string) (int64, error)
	OwnerOfFunc          func(ctx context.Context, tokenID int64) (string, error)
	GetProfileFunc       func(ctx context.Context, tokenID int64) (*gateway.RawProfile, error)
	IsUsernameTakenFunc  func(ctx context.Context, username string) (bool, error)
	CreateProfileFunc    func(ctx context.Context, username, metadata string) (string, error)
	UpdateProfileFunc    func(ctx context.Context, tokenID int64, metadata string) (string, error)

	TokenBalanceFunc   func(ctx context.Context, contract, owner, tokenID string) (*big.Int, error)
	WaitForReceiptFunc func(ctx context.Context, txHash string) error

	HasSignerFunc     func() bool
	SignerAddressFunc func() string
	ChainIDFunc       func() int64
	SwitchChainFunc   func(ctx context.Context, chainID int64) error
}

func (m *MockGateway) NextPostID(ctx context.Context) (int64, error) {
	if m.NextPostIDFunc != nil {
		return m.NextPostIDFunc(ctx)
	}

	return 0, nil
}

func (m *MockGateway) GetPost(ctx context.Context, id int64) (*gateway.RawPost, error) {
	if m.GetPostFunc != nil {
		return m.GetPostFunc(ctx, id)
	}

	return nil, gateway.ErrNotFound
}

func (m *MockGateway) GetPostIDsByTribe(ctx context.Context, tribeID int64, offset, limit int) ([]int64, error) {
	if m.GetPostIDsByTribeFunc != nil {
		return m.GetPostIDsByTribeFunc(ctx, tribeID, offset, limit)
	}

	return nil, nil
}

func (m *MockGateway) GetPostIDsByAuthor(ctx context.Context, author string, offset, limit int) ([]int64, error) {
	if m.GetPostIDsByAuthorFunc != nil {
		return m.GetPostIDsByAuthorFunc(ctx, author, offset, limit)
	}

	return nil, nil
}

func (m *MockGateway) CreatePost(ctx context.Context, tribeID int64, content, metadata string) (string, error) {
	if m.CreatePostFunc != nil {
		return m.CreatePostFunc(ctx, tribeID, content, metadata)
	}

	return "0x0", nil
}

func (m *MockGateway) UpdatePost(ctx context.Context, id int64, metadata string) (string, error) {
	if m.UpdatePostFunc != nil {
		return m.UpdatePostFunc(ctx, id, metadata)
	}

	return "0x0", nil
}

func (m *MockGateway) DeletePost(ctx context.Context, id int64) (string, error) {
	if m.DeletePostFunc != nil {
		return m.DeletePostFunc(ctx, id)
	}

	return "0x0", nil
}

func (m *MockGateway) LikePost(ctx context.Context, id int64) (string, error) {
	if m.LikePostFunc != nil {
		return m.LikePostFunc(ctx, id)
	}

	return "0x0", nil
}

func (m *MockGateway) CommentPost(ctx context.Context, id int64, comment string) (string, error) {
	if m.CommentPostFunc != nil {
		return m.CommentPostFunc(ctx, id, comment)
	}

	return "0x0", nil
}

func (m *MockGateway) SharePost(ctx context.Context, id int64) (string, error) {
	if m.SharePostFunc != nil {
		return m.SharePostFunc(ctx, id)
	}

	return "0x0", nil
}

func (m *MockGateway) NextTribeID(ctx context.Context) (int64, error) {
	if m.NextTribeIDFunc != nil {
		return m.NextTribeIDFunc(ctx)
	}

	return 1, nil
}

func (m *MockGateway) GetTribe(ctx context.Context, id int64) (*gateway.RawTribe, error) {
	if m.GetTribeFunc != nil {
		return m.GetTribeFunc(ctx, id)
	}

	return nil, gateway.ErrNotFound
}

func (m *MockGateway) CreateTribe(
	ctx context.Context, name, metadata string, joinPolicy uint8, entryFee *big.Int,
) (string, error) {
	if m.CreateTribeFunc != nil {
		return m.CreateTribeFunc(ctx, name, metadata, joinPolicy, entryFee)
	}

	return "0x0", nil
}

func (m *MockGateway) JoinTribe(ctx context.Context, id int64, entryFee *big.Int) (string, error) {
	if m.JoinTribeFunc != nil {
		return m.JoinTribeFunc(ctx, id, entryFee)
	}

	return "0x0", nil
}

func (m *MockGateway) ProfileBalanceOf(ctx context.Context, owner string) (int64, error) {
	if m.ProfileBalanceOfFunc != nil {
		return m.ProfileBalanceOfFunc(ctx, owner)
	}

	return 0, nil
}

func (m *MockGateway) OwnerOf(ctx context.Context, tokenID int64) (string, error) {
	if m.OwnerOfFunc != nil {
		return m.OwnerOfFunc(ctx, tokenID)
	}

	return "", gateway.ErrNotFound
}

func (m *MockGateway) GetProfile(ctx context.Context, tokenID int64) (*gateway.RawProfile, error) {
	if m.GetProfileFunc != nil {
		return m.GetProfileFunc(ctx, tokenID)
	}

	return nil, gateway.ErrNotFound
}

func (m *MockGateway) IsUsernameTaken(ctx context.Context, username string) (bool, error) {
	if m.IsUsernameTakenFunc != nil {
		return m.IsUsernameTakenFunc(ctx, username)
	}

	return false, nil
}

func (m *MockGateway) CreateProfile(ctx context.Context, username, metadata string) (string, error) {
	if m.CreateProfileFunc != nil {
		return m.CreateProfileFunc(ctx, username, metadata)
	}

	return "0x0", nil
}

func (m *MockGateway) UpdateProfile(ctx context.Context, tokenID int64, metadata string) (string, error) {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, tokenID, metadata)
	}

	return "0x0", nil
}

func (m *MockGateway) TokenBalance(ctx context.Context, contract, owner, tokenID string) (*big.Int, error) {
	if m.TokenBalanceFunc != nil {
		return m.TokenBalanceFunc(ctx, contract, owner, tokenID)
	}

	return big.NewInt(0), nil
}

func (m *MockGateway) WaitForReceipt(ctx context.Context, txHash string) error {
	if m.WaitForReceiptFunc != nil {
		return m.WaitForReceiptFunc(ctx, txHash)
	}

	return nil
}

func (m *MockGateway) HasSigner() bool {
	if m.HasSignerFunc != nil {
		return m.HasSignerFunc()
	}

	return true
}

func (m *MockGateway) SignerAddress() string {
	if m.SignerAddressFunc != nil {
		return m.SignerAddressFunc()
	}

	return "0x00000000000000000000000000000000000000aa"
}

func (m *MockGateway) ChainID() int64 {
	if m.ChainIDFunc != nil {
		return m.ChainIDFunc()
	}

	return 1
}

func (m *MockGateway) SwitchChain(ctx context.Context, chainID int64) error {
	if m.SwitchChainFunc != nil {
		return m.SwitchChainFunc(ctx, chainID)
	}

	return nil
}

func (m *MockGateway) Close() {}
