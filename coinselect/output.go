package coinselect

import (
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/hasher"
	"github.com/shieldpool/go-sdk/types"
	"github.com/shieldpool/go-sdk/utxo"
)

// OutputArgs describes the value moved by an action. Inputs are the utxos
// spent, ChangeOwner receives whatever is left after the amounts and the
// relayer fee. A transfer with no recipient and no amount merges the inputs
// into the change.
type OutputArgs struct {
	Action types.Action
	Inputs []*utxo.Utxo
	// AmountSol and AmountSpl are what enters the pool for a shield, what
	// leaves it for an unshield and what the recipient gets for a transfer.
	AmountSol *big.Int
	AmountSpl *big.Int
	// SplAsset may be left empty when the inputs already carry the asset.
	SplAsset    solana.PublicKey
	Recipient   *utxo.Keypair
	ChangeOwner *utxo.Keypair
	RelayerFee  *big.Int
	MaxOutputs  int
	// VerifierAddress, when set, is recorded in every built output.
	VerifierAddress solana.PublicKey
}

// BuildOutputUtxos returns the outputs conserving the value of the inputs
// for the given action. Change is computed on plain integers, a negative
// change is reported before any output is created.
func BuildOutputUtxos(h hasher.Hasher, args OutputArgs) ([]*utxo.Utxo, error) {
	splAsset, err := resolveSplAsset(args.SplAsset, args.Inputs)
	if err != nil {
		return nil, err
	}
	amountSol := orZero(args.AmountSol)
	amountSpl := orZero(args.AmountSpl)
	fee := orZero(args.RelayerFee)
	if amountSol.Sign() < 0 || amountSpl.Sign() < 0 || fee.Sign() < 0 {
		return nil, fmt.Errorf("amounts and fee must not be negative")
	}
	if amountSpl.Sign() > 0 && splAsset.Equals(solana.SystemProgramID) {
		return nil, fmt.Errorf("missing spl asset for spl amount %s", amountSpl)
	}

	inSol := sumOf(solana.SystemProgramID, args.Inputs...)
	inSpl := sumOf(splAsset, args.Inputs...)

	type output struct {
		owner    *utxo.Keypair
		sol, spl *big.Int
	}
	outputs := make([]output, 0, 2)

	switch args.Action {
	case types.ActionShield:
		owner := args.Recipient
		if owner == nil {
			owner = args.ChangeOwner
		}
		if owner == nil {
			return nil, fmt.Errorf("missing output owner for shield")
		}
		outputs = append(outputs, output{
			owner: owner,
			sol:   new(big.Int).Add(inSol, amountSol),
			spl:   new(big.Int).Add(inSpl, amountSpl),
		})

	case types.ActionUnshield, types.ActionTransfer:
		if args.ChangeOwner == nil {
			return nil, fmt.Errorf("missing change owner")
		}
		merge := amountSol.Sign() == 0 && amountSpl.Sign() == 0
		if args.Action == types.ActionTransfer && args.Recipient == nil && !merge {
			return nil, fmt.Errorf("missing recipient for transfer")
		}

		requiredSol := new(big.Int).Add(amountSol, fee)
		changeSol := new(big.Int).Sub(inSol, requiredSol)
		if changeSol.Sign() < 0 {
			return nil, &InsufficientBalanceError{
				Asset:     solana.SystemProgramID,
				Required:  requiredSol,
				Available: inSol,
				Shortfall: new(big.Int).Neg(changeSol),
			}
		}
		changeSpl := new(big.Int).Sub(inSpl, amountSpl)
		if changeSpl.Sign() < 0 {
			return nil, &InsufficientBalanceError{
				Asset:     splAsset,
				Required:  new(big.Int).Set(amountSpl),
				Available: inSpl,
				Shortfall: new(big.Int).Neg(changeSpl),
			}
		}

		if args.Action == types.ActionTransfer && args.Recipient != nil {
			outputs = append(outputs, output{
				owner: args.Recipient, sol: amountSol, spl: amountSpl,
			})
		}
		if changeSol.Sign() > 0 || changeSpl.Sign() > 0 {
			outputs = append(outputs, output{
				owner: args.ChangeOwner, sol: changeSol, spl: changeSpl,
			})
		}

	default:
		return nil, fmt.Errorf("unsupported action %s", args.Action)
	}

	if args.MaxOutputs > 0 && len(outputs) > args.MaxOutputs {
		return nil, &TooManyOutputsError{Outputs: len(outputs), MaxOutputs: args.MaxOutputs}
	}

	result := make([]*utxo.Utxo, 0, len(outputs))
	for _, o := range outputs {
		u, err := newOutput(h, o.owner, o.sol, o.spl, splAsset, args.VerifierAddress)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, nil
}

func newOutput(
	h hasher.Hasher, owner *utxo.Keypair, sol, spl *big.Int,
	splAsset, verifierAddress solana.PublicKey,
) (*utxo.Utxo, error) {
	args := utxo.Args{
		Amounts:         []*big.Int{sol},
		Assets:          []solana.PublicKey{solana.SystemProgramID},
		Keypair:         owner,
		VerifierAddress: verifierAddress,
	}
	if spl.Sign() > 0 {
		args.Amounts = append(args.Amounts, spl)
		args.Assets = append(args.Assets, splAsset)
	}
	u, err := utxo.NewUtxo(h, args)
	if err != nil {
		return nil, fmt.Errorf("failed to build output utxo: %w", err)
	}
	return u, nil
}

func resolveSplAsset(requested solana.PublicKey, inputs []*utxo.Utxo) (solana.PublicKey, error) {
	assets := make([]solana.PublicKey, 0, 1)
	seen := make(map[solana.PublicKey]struct{})
	if !requested.IsZero() && !requested.Equals(solana.SystemProgramID) {
		assets = append(assets, requested)
		seen[requested] = struct{}{}
	}
	for _, in := range inputs {
		spl, ok := in.SplAsset()
		if !ok {
			continue
		}
		if _, ok := seen[spl]; !ok {
			seen[spl] = struct{}{}
			assets = append(assets, spl)
		}
	}
	if len(assets) > 1 {
		return solana.PublicKey{}, &MixedAssetsError{Assets: assets}
	}
	if len(assets) == 0 {
		return solana.SystemProgramID, nil
	}
	return assets[0], nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
