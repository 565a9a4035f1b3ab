// Package txparams builds the validated, immutable parameters of a shielded
// transaction: padded inputs and outputs, public amounts, asset pubkeys,
// relayer and account bindings.
package txparams

import (
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/field"
	"github.com/shieldpool/go-sdk/hasher"
	"github.com/shieldpool/go-sdk/types"
	"github.com/shieldpool/go-sdk/utxo"
	"github.com/shieldpool/go-sdk/verifier"
)

type Args struct {
	Inputs   []*utxo.Utxo
	Outputs  []*utxo.Utxo
	Action   types.Action
	Verifier verifier.Verifier
	Hasher   hasher.Hasher
	// Relayer must be nil for a shield, the payer relays it.
	Relayer *types.Relayer
	// Payer and LookupTable build the self relayer of a shield.
	Payer       solana.PublicKey
	LookupTable solana.PublicKey

	SenderSpl    solana.PublicKey
	SenderSol    solana.PublicKey
	RecipientSpl solana.PublicKey
	RecipientSol solana.PublicKey

	Message []byte
	// EncryptedUtxos replaces the ciphertexts computed from the outputs.
	EncryptedUtxos []byte

	MerkleTreeProgramID   solana.PublicKey
	VerifierZeroProgramID solana.PublicKey
	Assets                *utxo.AssetLookupTable
	Verifiers             *utxo.VerifierLookupTable
}

// TransactionParameters is read by the compiler and the relayer and never
// modified after New returns.
type TransactionParameters struct {
	Inputs   []*utxo.Utxo
	Outputs  []*utxo.Utxo
	Action   types.Action
	Verifier verifier.Verifier
	Relayer  types.Relayer

	PublicAmountSol *big.Int
	PublicAmountSpl *big.Int

	AssetPubkeys        []solana.PublicKey
	AssetPubkeysCircuit []*big.Int

	Accounts       Accounts
	Message        []byte
	EncryptedUtxos []byte

	hasher    hasher.Hasher
	assets    *utxo.AssetLookupTable
	verifiers *utxo.VerifierLookupTable
}

func New(args Args) (*TransactionParameters, error) {
	if err := checkConfiguration(args); err != nil {
		return nil, err
	}

	inputs, err := pad(args.Hasher, args.Inputs, args.Verifier.NrInputs, ErrTooManyInputs)
	if err != nil {
		return nil, err
	}
	outputs, err := pad(args.Hasher, args.Outputs, args.Verifier.NrOutputs, ErrTooManyOutputs)
	if err != nil {
		return nil, err
	}

	assetPubkeys, assetPubkeysCircuit, err := AssetPubkeys(inputs, outputs, args.Verifier.NAssetPubkeys)
	if err != nil {
		return nil, err
	}

	p := &TransactionParameters{
		Inputs:              inputs,
		Outputs:             outputs,
		Action:              args.Action,
		Verifier:            args.Verifier,
		AssetPubkeys:        assetPubkeys,
		AssetPubkeysCircuit: assetPubkeysCircuit,
		Message:             append([]byte{}, args.Message...),
		hasher:              args.Hasher,
		assets:              args.Assets,
		verifiers:           args.Verifiers,
	}
	if len(args.EncryptedUtxos) > 0 {
		p.EncryptedUtxos = fitCiphertexts(args.EncryptedUtxos)
	}
	if p.assets == nil {
		p.assets = utxo.NewAssetLookupTable(assetPubkeys...)
	}
	if p.verifiers == nil {
		p.verifiers = utxo.NewVerifierLookupTable(args.Verifier.ProgramID)
	}
	p.PublicAmountSol = p.GetExternalAmount(0)
	p.PublicAmountSpl = p.GetExternalAmount(1)

	relayer, err := validateAction(args, p.PublicAmountSol, p.PublicAmountSpl)
	if err != nil {
		return nil, err
	}
	p.Relayer = relayer

	accounts, err := assignAccounts(args, p)
	if err != nil {
		return nil, err
	}
	p.Accounts = accounts
	return p, nil
}

func (p *TransactionParameters) Hasher() hasher.Hasher {
	return p.hasher
}

func (p *TransactionParameters) AssetLookupTable() *utxo.AssetLookupTable {
	return p.assets
}

func (p *TransactionParameters) VerifierLookupTable() *utxo.VerifierLookupTable {
	return p.verifiers
}

// GetExternalAmount is the amount of the asset at assetIndex entering
// (positive) or leaving (wrapped negative) the pool.
func (p *TransactionParameters) GetExternalAmount(assetIndex int) *big.Int {
	return ExternalAmount(assetIndex, p.Inputs, p.Outputs, p.AssetPubkeysCircuit)
}

// ExternalAmount returns Mod(sum(outputs) - sum(inputs)) over the utxos
// whose asset in slot assetIndex is assetPubkeysCircuit[assetIndex].
func ExternalAmount(assetIndex int, inputs, outputs []*utxo.Utxo, assetPubkeysCircuit []*big.Int) *big.Int {
	if assetIndex < 0 || assetIndex >= utxo.NAssets || assetIndex >= len(assetPubkeysCircuit) {
		return big.NewInt(0)
	}
	asset := assetPubkeysCircuit[assetIndex]
	sum := func(utxos []*utxo.Utxo) *big.Int {
		s := new(big.Int)
		for _, u := range utxos {
			if u.AssetsCircuit[assetIndex].Cmp(asset) == 0 {
				s.Add(s, u.Amounts[assetIndex])
			}
		}
		return s
	}
	return field.Mod(new(big.Int).Sub(sum(outputs), sum(inputs)))
}

func (p *TransactionParameters) RelayerFee() *big.Int {
	return p.Relayer.FeeOrZero()
}

func (p *TransactionParameters) String() string {
	return fmt.Sprintf(
		"%s via %s: %d input(s), %d output(s), public sol %s, public spl %s",
		p.Action, p.Verifier, len(p.Inputs), len(p.Outputs), p.PublicAmountSol, p.PublicAmountSpl,
	)
}

func checkConfiguration(args Args) error {
	if args.Hasher == nil {
		return ErrNoHasherProvided
	}
	if args.Verifier.IsZero() || args.Verifier.ProgramID.IsZero() {
		return ErrNoVerifierProvided
	}
	if args.Action == types.ActionUnspecified {
		return ErrNoActionProvided
	}
	if len(args.Inputs) == 0 && len(args.Outputs) == 0 {
		return ErrNoUtxosProvided
	}
	if len(args.Message) > 0 && !args.Verifier.MessageSupport {
		return ErrMessageNotSupported
	}
	if args.Action == types.ActionShield && args.Relayer == nil {
		if args.Payer.IsZero() {
			return ErrNoPayerProvided
		}
		if args.LookupTable.IsZero() {
			return ErrNoLookupTableProvided
		}
	}
	return nil
}

func pad(h hasher.Hasher, utxos []*utxo.Utxo, arity int, tooMany *Error) ([]*utxo.Utxo, error) {
	if len(utxos) > arity {
		return nil, tooMany.with("got %d, verifier accepts %d", len(utxos), arity)
	}
	out := make([]*utxo.Utxo, 0, arity)
	out = append(out, utxos...)
	for len(out) < arity {
		empty, err := utxo.NewEmptyUtxo(h, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create padding utxo: %w", err)
		}
		out = append(out, empty)
	}
	return out, nil
}
