package domain

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strconv"

	"github.com/tribes-lab/backend/internal/entity"
	"github.com/tribes-lab/backend/internal/gateway"
	"github.com/tribes-lab/backend/internal/model"
	"github.com/tribes-lab/backend/pkg/errorx"
	"github.com/tribes-lab/backend/pkg/xcontext"
)

type TribesService interface {
	GetTribe(ctx context.Context, id string) *model.Tribe
	CreateTribe(ctx context.Context, req *model.CreateTribeRequest) (*model.Tribe, error)
	JoinTribe(ctx context.Context, id string) error
}

type tribesService struct {
	gateway gateway.Gateway
	indexer IndexerService
}

func NewTribesService(gw gateway.Gateway, indexer IndexerService) *tribesService {
	return &tribesService{gateway: gw, indexer: indexer}
}

// GetTribe serves from the indexer's family cache, falling back to a point
// refresh for an id the last rebuild has not seen yet.
func (s *tribesService) GetTribe(ctx context.Context, id string) *model.Tribe {
	for _, tribe := range s.indexer.GetTribesSince(ctx, 0) {
		if tribe.ID == id {
			found := tribe
			return &found
		}
	}

	return s.indexer.RefreshTribe(ctx, id)
}

func joinPolicyValue(name string) uint8 {
	switch entity.JoinPolicy(name) {
	case entity.JoinPolicyApproval:
		return 1
	case entity.JoinPolicyClosed:
		return 2
	default:
		return 0
	}
}

func (s *tribesService) CreateTribe(ctx context.Context, req *model.CreateTribeRequest) (*model.Tribe, error) {
	if !s.gateway.HasSigner() {
		return nil, errorx.New(errorx.NoSigner, "No signer key is configured")
	}

	if req.Name == "" {
		return nil, errorx.New(errorx.BadRequest, "Tribe name must not be empty")
	}

	entryFee := big.NewInt(0)
	if req.EntryFee != "" {
		fee, ok := new(big.Int).SetString(req.EntryFee, 10)
		if !ok {
			return nil, errorx.New(errorx.BadRequest, "Invalid entry fee %s", req.EntryFee)
		}
		entryFee = fee
	}

	metadata, err := json.Marshal(req.Metadata)
	if err != nil {
		return nil, errorx.New(errorx.BadRequest, "Invalid tribe metadata")
	}

	txHash, err := s.gateway.CreateTribe(
		ctx, req.Name, string(metadata), joinPolicyValue(req.JoinPolicy), entryFee)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot submit create tribe: %v", err)
		return nil, errorx.Unknown
	}

	if err := s.gateway.WaitForReceipt(ctx, txHash); err != nil {
		xcontext.Logger(ctx).Errorf("Create tribe %s failed: %v", txHash, err)
		return nil, errorx.New(errorx.TxReverted, "Transaction was not confirmed")
	}

	next, err := s.gateway.NextTribeID(ctx)
	if err != nil {
		xcontext.Logger(ctx).Warnf("Cannot read back created tribe: %v", err)
		return nil, nil
	}

	return s.indexer.RefreshTribe(ctx, model.FormatID(next-1)), nil
}

// JoinTribe re-reads the tribe before joining so the policy, fee and gates
// reflect the chain rather than a stale cache copy.
func (s *tribesService) JoinTribe(ctx context.Context, id string) error {
	if !s.gateway.HasSigner() {
		return errorx.New(errorx.NoSigner, "No signer key is configured")
	}

	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return errorx.New(errorx.BadRequest, "Invalid tribe id %s", id)
	}

	tribe := s.indexer.RefreshTribe(ctx, id)
	if tribe == nil {
		return errorx.New(errorx.NotFound, "Tribe %s does not exist", id)
	}

	if entity.JoinPolicy(tribe.JoinPolicy) == entity.JoinPolicyClosed {
		return errorx.New(errorx.TribeClosed, "Tribe %s is closed", id)
	}

	raw, err := s.gateway.GetTribe(ctx, numericID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot read tribe %s gates: %v", id, err)
		return errorx.Unknown
	}

	signer := s.gateway.SignerAddress()
	if err := gateway.CheckGateRequirements(ctx, s.gateway, signer, raw.Gates); err != nil {
		if errors.Is(err, gateway.ErrGateNotSatisfied) {
			return errorx.New(errorx.GateNotSatisfied, "Missing a required gate token")
		}

		xcontext.Logger(ctx).Errorf("Cannot check gates of tribe %s: %v", id, err)
		return errorx.Unknown
	}

	entryFee := big.NewInt(0)
	if raw.EntryFee != nil {
		entryFee = raw.EntryFee
	}

	txHash, err := s.gateway.JoinTribe(ctx, numericID, entryFee)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot submit join tribe: %v", err)
		return errorx.Unknown
	}

	if err := s.gateway.WaitForReceipt(ctx, txHash); err != nil {
		xcontext.Logger(ctx).Errorf("Join tribe %s failed: %v", txHash, err)
		return errorx.New(errorx.TxReverted, "Transaction was not confirmed")
	}

	s.indexer.RefreshTribe(ctx, id)
	return nil
}
