package txparams

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/pda"
	"github.com/shieldpool/go-sdk/types"
)

// Accounts are the public accounts a transaction moves value between. The
// pool is the sender of an unshield or transfer and the recipient of a
// shield, absent accounts are filled with the authority placeholder.
type Accounts struct {
	SenderSpl           solana.PublicKey
	SenderSol           solana.PublicKey
	RecipientSpl        solana.PublicKey
	RecipientSol        solana.PublicKey
	Signer              solana.PublicKey
	RelayerRecipientSol solana.PublicKey
	MerkleTreeProgram   solana.PublicKey
	VerifierProgram     solana.PublicKey
	TokenAuthority      solana.PublicKey
	LookupTable         solana.PublicKey
}

func assignAccounts(args Args, p *TransactionParameters) (Accounts, error) {
	merkleTreeProgram := args.MerkleTreeProgramID
	if merkleTreeProgram.IsZero() {
		merkleTreeProgram = types.DefaultMerkleTreeProgramID
	}
	verifierZero := args.VerifierZeroProgramID
	if verifierZero.IsZero() {
		verifierZero = types.DefaultVerifierProgramIDs[types.VerifierZero]
	}

	authority, err := pda.Authority(merkleTreeProgram, verifierZero)
	if err != nil {
		return Accounts{}, err
	}
	tokenAuthority, err := pda.TokenAuthority(merkleTreeProgram)
	if err != nil {
		return Accounts{}, err
	}
	var poolType [32]byte
	solPool, err := pda.SolPool(merkleTreeProgram, poolType)
	if err != nil {
		return Accounts{}, err
	}
	splPool, err := pda.SplPool(p.AssetPubkeys[1], merkleTreeProgram, poolType)
	if err != nil {
		return Accounts{}, err
	}

	accounts := Accounts{
		SenderSpl:           args.SenderSpl,
		SenderSol:           args.SenderSol,
		RecipientSpl:        args.RecipientSpl,
		RecipientSol:        args.RecipientSol,
		Signer:              p.Relayer.Pubkey,
		RelayerRecipientSol: p.Relayer.RecipientSol,
		MerkleTreeProgram:   merkleTreeProgram,
		VerifierProgram:     args.Verifier.ProgramID,
		TokenAuthority:      tokenAuthority,
		LookupTable:         p.Relayer.LookupTable,
	}

	switch p.Action {
	case types.ActionUnshield, types.ActionTransfer:
		accounts.SenderSpl = splPool
		accounts.SenderSol = solPool
		if accounts.RecipientSpl.IsZero() {
			accounts.RecipientSpl = authority
		}
		if accounts.RecipientSol.IsZero() {
			accounts.RecipientSol = authority
		}
	case types.ActionShield:
		escrow, err := pda.Escrow(args.Verifier.ProgramID)
		if err != nil {
			return Accounts{}, err
		}
		accounts.RecipientSpl = splPool
		accounts.RecipientSol = solPool
		if accounts.SenderSpl.IsZero() {
			accounts.SenderSpl = authority
		}
		accounts.SenderSol = escrow
	default:
		return Accounts{}, fmt.Errorf("unsupported action %s", p.Action)
	}
	return accounts, nil
}
