package domain

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/tribes-lab/backend/internal/gateway"
	"github.com/tribes-lab/backend/internal/model"
	"github.com/tribes-lab/backend/pkg/errorx"
	"github.com/tribes-lab/backend/pkg/xcontext"
)

type ProfileService interface {
	GetProfile(ctx context.Context, address string) *model.Profile
	CreateProfile(ctx context.Context, username string, metadata map[string]any) (*model.Profile, error)
	UpdateProfileMetadata(ctx context.Context, metadata map[string]any) (*model.Profile, error)
}

type profileService struct {
	gateway gateway.Gateway
	indexer IndexerService
}

func NewProfileService(gw gateway.Gateway, indexer IndexerService) *profileService {
	return &profileService{gateway: gw, indexer: indexer}
}

func (s *profileService) GetProfile(ctx context.Context, address string) *model.Profile {
	profiles := s.indexer.GetProfilesByAddresses(ctx, []string{address})
	if len(profiles) == 0 {
		return nil
	}

	return &profiles[0]
}

// CreateProfile mints the profile token. Username uniqueness is enforced on
// chain; the cached view is never trusted for the availability check.
func (s *profileService) CreateProfile(
	ctx context.Context, username string, metadata map[string]any,
) (*model.Profile, error) {
	if !s.gateway.HasSigner() {
		return nil, errorx.New(errorx.NoSigner, "No signer key is configured")
	}

	if username == "" {
		return nil, errorx.New(errorx.BadRequest, "Username must not be empty")
	}

	taken, err := s.gateway.IsUsernameTaken(ctx, username)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot check username %s: %v", username, err)
		return nil, errorx.Unknown
	}
	if taken {
		return nil, errorx.New(errorx.UsernameTaken, "Username %s is already taken", username)
	}

	blob, err := json.Marshal(metadata)
	if err != nil {
		return nil, errorx.New(errorx.BadRequest, "Invalid profile metadata")
	}

	txHash, err := s.gateway.CreateProfile(ctx, username, string(blob))
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot submit create profile: %v", err)
		return nil, errorx.Unknown
	}

	if err := s.gateway.WaitForReceipt(ctx, txHash); err != nil {
		xcontext.Logger(ctx).Errorf("Create profile %s failed: %v", txHash, err)
		return nil, errorx.New(errorx.TxReverted, "Transaction was not confirmed")
	}

	profile, err := s.indexer.RefreshProfile(ctx, s.gateway.SignerAddress())
	if err != nil {
		return nil, err
	}

	return profile, nil
}

func (s *profileService) UpdateProfileMetadata(
	ctx context.Context, metadata map[string]any,
) (*model.Profile, error) {
	if !s.gateway.HasSigner() {
		return nil, errorx.New(errorx.NoSigner, "No signer key is configured")
	}

	address := s.gateway.SignerAddress()
	profile, err := s.indexer.RefreshProfile(ctx, address)
	if err != nil {
		return nil, err
	}
	if profile == nil || profile.TokenID == "" {
		return nil, errorx.New(errorx.NotFound, "No profile exists for %s", address)
	}

	tokenID, err := strconv.ParseInt(profile.TokenID, 10, 64)
	if err != nil {
		return nil, errorx.New(errorx.Internal, "Cached token id %s is invalid", profile.TokenID)
	}

	blob, err := json.Marshal(metadata)
	if err != nil {
		return nil, errorx.New(errorx.BadRequest, "Invalid profile metadata")
	}

	txHash, err := s.gateway.UpdateProfile(ctx, tokenID, string(blob))
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot submit update profile: %v", err)
		return nil, errorx.Unknown
	}

	if err := s.gateway.WaitForReceipt(ctx, txHash); err != nil {
		xcontext.Logger(ctx).Errorf("Update profile %s failed: %v", txHash, err)
		return nil, errorx.New(errorx.TxReverted, "Transaction was not confirmed")
	}

	return s.indexer.RefreshProfile(ctx, address)
}
