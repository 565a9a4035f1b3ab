package txparams

import (
	"math/big"

	"github.com/shieldpool/go-sdk/field"
	"github.com/shieldpool/go-sdk/types"
)

// validateAction enforces the per-action rules on relayer, public amounts
// and public accounts, and returns the relayer to use.
func validateAction(args Args, publicSol, publicSpl *big.Int) (types.Relayer, error) {
	switch args.Action {
	case types.ActionShield:
		return validateShield(args, publicSol, publicSpl)
	case types.ActionUnshield:
		return validateUnshield(args, publicSol, publicSpl)
	case types.ActionTransfer:
		return validateTransfer(args, publicSol, publicSpl)
	default:
		return types.Relayer{}, ErrNoActionProvided
	}
}

func validateShield(args Args, publicSol, publicSpl *big.Int) (types.Relayer, error) {
	if args.Relayer != nil {
		return types.Relayer{}, ErrRelayerDefined
	}
	if !field.FitsU64(publicSol) {
		return types.Relayer{}, ErrPublicAmountNotU64.with("sol %s", publicSol)
	}
	if !field.FitsU64(publicSpl) {
		return types.Relayer{}, ErrPublicAmountNotU64.with("spl %s", publicSpl)
	}
	if publicSol.Sign() != 0 {
		if args.SenderSol.IsZero() {
			return types.Relayer{}, ErrSenderUndefined.with("sol")
		}
		if !args.RecipientSol.IsZero() {
			return types.Relayer{}, ErrRecipientDefined.with("sol")
		}
	}
	if publicSpl.Sign() != 0 {
		if args.SenderSpl.IsZero() {
			return types.Relayer{}, ErrSenderUndefined.with("spl")
		}
		if !args.RecipientSpl.IsZero() {
			return types.Relayer{}, ErrRecipientDefined.with("spl")
		}
	}
	return types.Relayer{
		Pubkey:       args.Payer,
		RecipientSol: args.Payer,
		LookupTable:  args.LookupTable,
		Fee:          big.NewInt(0),
	}, nil
}

func validateUnshield(args Args, publicSol, publicSpl *big.Int) (types.Relayer, error) {
	if args.Relayer == nil {
		return types.Relayer{}, ErrRelayerUndefined
	}
	relayer := *args.Relayer
	fee := relayer.FeeOrZero()

	if publicSol.Sign() != 0 {
		if !field.IsNegativeEncoding(publicSol) {
			return types.Relayer{}, ErrPublicAmountNotNegative.with("sol %s", publicSol)
		}
		if !args.SenderSol.IsZero() {
			return types.Relayer{}, ErrSenderDefined.with("sol")
		}
		// Only the relayer fee leaves the pool when the sol amount is the
		// negated fee, no recipient is involved then.
		if publicSol.Cmp(field.Negate(fee)) != 0 && args.RecipientSol.IsZero() {
			return types.Relayer{}, ErrRecipientUndefined.with("sol")
		}
	}
	if publicSpl.Sign() != 0 {
		if !field.IsNegativeEncoding(publicSpl) {
			return types.Relayer{}, ErrPublicAmountNotNegative.with("spl %s", publicSpl)
		}
		if !args.SenderSpl.IsZero() {
			return types.Relayer{}, ErrSenderDefined.with("spl")
		}
		if args.RecipientSpl.IsZero() {
			return types.Relayer{}, ErrRecipientUndefined.with("spl")
		}
	}
	return relayer, nil
}

func validateTransfer(args Args, publicSol, publicSpl *big.Int) (types.Relayer, error) {
	if args.Relayer == nil {
		return types.Relayer{}, ErrRelayerUndefined
	}
	relayer := *args.Relayer

	if publicSpl.Sign() != 0 {
		return types.Relayer{}, ErrSplPublicAmountNotZero.with("got %s", publicSpl)
	}
	expected := field.Negate(relayer.FeeOrZero())
	if publicSol.Cmp(expected) != 0 {
		return types.Relayer{}, ErrSolPublicAmountFeeMismatch.with("got %s, expected %s", publicSol, expected)
	}
	if !args.RecipientSol.IsZero() || !args.RecipientSpl.IsZero() {
		return types.Relayer{}, ErrRecipientDefined
	}
	if !args.SenderSol.IsZero() || !args.SenderSpl.IsZero() {
		return types.Relayer{}, ErrSenderDefined
	}
	return relayer, nil
}
