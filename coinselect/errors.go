package coinselect

import (
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
)

// InsufficientBalanceError is returned when the available utxos, or the
// free input slots, cannot cover a target.
type InsufficientBalanceError struct {
	Asset     solana.PublicKey
	Required  *big.Int
	Available *big.Int
	Shortfall *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf(
		"insufficient balance for asset %s: required %s, available %s, missing %s",
		e.Asset, e.Required, e.Available, e.Shortfall,
	)
}

// TooManyOutputsError is returned when an action needs more outputs than
// the verifier accepts.
type TooManyOutputsError struct {
	Outputs    int
	MaxOutputs int
}

func (e *TooManyOutputsError) Error() string {
	return fmt.Sprintf("too many outputs: got %d, max %d", e.Outputs, e.MaxOutputs)
}

// MixedAssetsError is returned when the inputs carry more than one SPL asset,
// a transaction can move only one.
type MixedAssetsError struct {
	Assets []solana.PublicKey
}

func (e *MixedAssetsError) Error() string {
	return fmt.Sprintf("inputs hold more than one spl asset: %v", e.Assets)
}
