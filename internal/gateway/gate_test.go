package gateway_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tribes-lab/backend/internal/gateway"
	"github.com/tribes-lab/backend/internal/testutil"
)

func Test_CheckGateRequirements_NoGates(t *testing.T) {
	ctx := testutil.MockContext()
	gw := &testutil.MockGateway{}

	require.NoError(t, gateway.CheckGateRequirements(ctx, gw, "0xowner", nil))
}

func Test_CheckGateRequirements_DefaultsMinBalanceToOne(t *testing.T) {
	ctx := testutil.MockContext()

	balances := map[string]*big.Int{"0xrich": big.NewInt(1), "0xpoor": big.NewInt(0)}
	gw := &testutil.MockGateway{
		TokenBalanceFunc: func(ctx context.Context, contract, owner, tokenID string) (*big.Int, error) {
			return balances[owner], nil
		},
	}

	gates := []gateway.RawGate{{Contract: "0xgate"}}

	require.NoError(t, gateway.CheckGateRequirements(ctx, gw, "0xrich", gates))

	err := gateway.CheckGateRequirements(ctx, gw, "0xpoor", gates)
	require.ErrorIs(t, err, gateway.ErrGateNotSatisfied)
}

func Test_CheckGateRequirements_TokenIDSelectsStandard(t *testing.T) {
	ctx := testutil.MockContext()

	var askedTokenIDs []string
	gw := &testutil.MockGateway{
		TokenBalanceFunc: func(ctx context.Context, contract, owner, tokenID string) (*big.Int, error) {
			askedTokenIDs = append(askedTokenIDs, tokenID)
			return big.NewInt(5), nil
		},
	}

	gates := []gateway.RawGate{
		{Contract: "0x721"},
		{Contract: "0x1155", TokenID: big.NewInt(7)},
	}

	require.NoError(t, gateway.CheckGateRequirements(ctx, gw, "0xowner", gates))
	require.Equal(t, []string{"", "7"}, askedTokenIDs)
}

func Test_CheckGateRequirements_AllGatesMustPass(t *testing.T) {
	ctx := testutil.MockContext()

	gw := &testutil.MockGateway{
		TokenBalanceFunc: func(ctx context.Context, contract, owner, tokenID string) (*big.Int, error) {
			if contract == "0xsecond" {
				return big.NewInt(2), nil
			}
			return big.NewInt(10), nil
		},
	}

	gates := []gateway.RawGate{
		{Contract: "0xfirst", MinBalance: big.NewInt(3)},
		{Contract: "0xsecond", MinBalance: big.NewInt(3)},
	}

	err := gateway.CheckGateRequirements(ctx, gw, "0xowner", gates)
	require.ErrorIs(t, err, gateway.ErrGateNotSatisfied)
}
