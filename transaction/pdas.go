package transaction

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/field"
	"github.com/shieldpool/go-sdk/pda"
)

// Pdas are the program derived accounts the second instruction touches.
type Pdas struct {
	Nullifiers         []solana.PublicKey
	Leaves             []solana.PublicKey
	VerifierState      solana.PublicKey
	SignerAuthority    solana.PublicKey
	RegisteredVerifier solana.PublicKey
	TokenAuthority     solana.PublicKey
}

// Pdas derives the accounts of the compiled transaction. Leaves are
// inserted in pairs, one leaves account per pair of outputs.
func (t *Transaction) Pdas(signer solana.PublicKey) (*Pdas, error) {
	if t.proofInput == nil {
		return nil, ErrNotCompiled
	}
	accounts := t.params.Accounts
	merkleTreeProgram := accounts.MerkleTreeProgram
	verifierProgram := accounts.VerifierProgram

	pdas := &Pdas{}
	for _, s := range t.proofInput.InputNullifier {
		nullifier, err := field.FromString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid nullifier %s: %w", s, err)
		}
		addr, err := pda.Nullifier(nullifier, merkleTreeProgram)
		if err != nil {
			return nil, err
		}
		pdas.Nullifiers = append(pdas.Nullifiers, addr)
	}
	for j := 0; j < len(t.outputs); j += 2 {
		addr, err := pda.Leaves(t.outputs[j].Commitment(), merkleTreeProgram)
		if err != nil {
			return nil, err
		}
		pdas.Leaves = append(pdas.Leaves, addr)
	}

	var err error
	if pdas.VerifierState, err = pda.VerifierState(signer, verifierProgram); err != nil {
		return nil, err
	}
	if pdas.SignerAuthority, err = pda.SignerAuthority(merkleTreeProgram, verifierProgram); err != nil {
		return nil, err
	}
	if pdas.RegisteredVerifier, err = pda.RegisteredVerifier(verifierProgram, merkleTreeProgram); err != nil {
		return nil, err
	}
	if pdas.TokenAuthority, err = pda.TokenAuthority(merkleTreeProgram); err != nil {
		return nil, err
	}
	return pdas, nil
}
