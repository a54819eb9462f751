package gateway

import (
	"context"
	"fmt"
	"math/big"
)

// ErrGateNotSatisfied is returned when the owner's balance of a gate token
// is below the tribe's minimum.
var ErrGateNotSatisfied = fmt.Errorf("gate requirement not satisfied")

// CheckGateRequirements verifies that owner holds the minimum balance of
// every gate token. A zero token id selects the ERC-721 balance form; the
// gating contracts reserve id zero for that purpose.
func CheckGateRequirements(ctx context.Context, g Gateway, owner string, gates []RawGate) error {
	for _, gate := range gates {
		tokenID := ""
		if gate.TokenID != nil && gate.TokenID.Sign() > 0 {
			tokenID = gate.TokenID.String()
		}

		balance, err := g.TokenBalance(ctx, gate.Contract, owner, tokenID)
		if err != nil {
			return err
		}

		minBalance := big.NewInt(1)
		if gate.MinBalance != nil && gate.MinBalance.Sign() > 0 {
			minBalance = gate.MinBalance
		}

		if balance.Cmp(minBalance) < 0 {
			return fmt.Errorf("%w: need %s of %s, have %s",
				ErrGateNotSatisfied, minBalance, gate.Contract, balance)
		}
	}

	return nil
}
