// Package verifier describes the on-chain verifier programs a transaction can
// be proven against. The arity of a proof (inputs, outputs, distinct assets)
// is a property of the verifier, never of the caller.
package verifier

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/types"
)

// Verifier is the descriptor every component reads arity and program ids from.
type Verifier struct {
	Kind      string
	ProgramID solana.PublicKey
	NrInputs  int
	NrOutputs int
	// NAssetPubkeys bounds the distinct assets referenced by one transaction,
	// the native asset included.
	NAssetPubkeys int
	// MessageSupport is true for verifiers storing an arbitrary message next
	// to the event. Those verifiers never move public SPL amounts.
	MessageSupport bool
	// CircuitName is the name the prover knows the circuit by.
	CircuitName string
}

const defaultNAssetPubkeys = 3

// Zero is the 2-in/2-out verifier.
func Zero(programID solana.PublicKey) Verifier {
	return Verifier{
		Kind:          types.VerifierZero,
		ProgramID:     programID,
		NrInputs:      2,
		NrOutputs:     2,
		NAssetPubkeys: defaultNAssetPubkeys,
		CircuitName:   "transactionMasp2",
	}
}

// One is the 10-in/2-out verifier used to merge many small utxos.
func One(programID solana.PublicKey) Verifier {
	return Verifier{
		Kind:          types.VerifierOne,
		ProgramID:     programID,
		NrInputs:      10,
		NrOutputs:     2,
		NAssetPubkeys: defaultNAssetPubkeys,
		CircuitName:   "transactionMasp10",
	}
}

// Storage is the 2-in/2-out verifier that also stores a message.
func Storage(programID solana.PublicKey) Verifier {
	return Verifier{
		Kind:           types.VerifierStorage,
		ProgramID:      programID,
		NrInputs:       2,
		NrOutputs:      2,
		NAssetPubkeys:  defaultNAssetPubkeys,
		MessageSupport: true,
		CircuitName:    "transactionMasp2",
	}
}

// FromConfig returns the descriptor of the verifier selected in cfg.
func FromConfig(cfg types.Config) (Verifier, error) {
	return ByKind(cfg, cfg.VerifierKind)
}

// ByKind returns the descriptor of the given verifier kind with its program
// id taken from cfg.
func ByKind(cfg types.Config, kind string) (Verifier, error) {
	programID, ok := cfg.VerifierProgramIDs[kind]
	if !ok {
		return Verifier{}, fmt.Errorf("missing program id for verifier %q", kind)
	}
	switch kind {
	case types.VerifierZero:
		return Zero(programID), nil
	case types.VerifierOne:
		return One(programID), nil
	case types.VerifierStorage:
		return Storage(programID), nil
	default:
		return Verifier{}, fmt.Errorf("unknown verifier %q", kind)
	}
}

// ForInputs picks the smallest configured verifier able to spend n inputs.
func ForInputs(cfg types.Config, n int) (Verifier, error) {
	for _, kind := range []string{types.VerifierZero, types.VerifierOne} {
		v, err := ByKind(cfg, kind)
		if err != nil {
			continue
		}
		if n <= v.NrInputs {
			return v, nil
		}
	}
	return Verifier{}, fmt.Errorf("no verifier can spend %d inputs", n)
}

func (v Verifier) IsZero() bool {
	return v.NrInputs == 0 || v.NrOutputs == 0
}

func (v Verifier) String() string {
	return fmt.Sprintf("%s(%din/%dout)", v.Kind, v.NrInputs, v.NrOutputs)
}
