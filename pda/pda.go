// Package pda derives the program addresses used by the shielded pool. All
// derivations are pure, no account is ever fetched.
package pda

import (
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/field"
)

const (
	nullifierSeed     = "nf"
	leavesSeed        = "leaves"
	verifierStateSeed = "VERIFIER_STATE"
	tokenAuthSeed     = "spl"
	escrowSeed        = "escrow"
	poolSeed          = "pool"
	poolConfigSeed    = "pool-config"
)

func find(programID solana.PublicKey, seeds ...[]byte) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive pda: %w", err)
	}
	return addr, nil
}

// Nullifier is the account whose existence marks a nullifier as spent.
func Nullifier(nullifier *big.Int, merkleTreeProgram solana.PublicKey) (solana.PublicKey, error) {
	buf := field.ToBytesBE(nullifier)
	return find(merkleTreeProgram, buf[:], []byte(nullifierSeed))
}

// Leaves is the account holding a pair of inserted leaves, keyed by the
// first leaf of the pair.
func Leaves(leftLeaf *big.Int, merkleTreeProgram solana.PublicKey) (solana.PublicKey, error) {
	buf := field.ToBytesLE(leftLeaf)
	return find(merkleTreeProgram, buf[:], []byte(leavesSeed))
}

func VerifierState(signer, verifierProgram solana.PublicKey) (solana.PublicKey, error) {
	return find(verifierProgram, signer.Bytes(), []byte(verifierStateSeed))
}

// SignerAuthority is the verifier's signer towards the merkle tree program.
func SignerAuthority(merkleTreeProgram, verifierProgram solana.PublicKey) (solana.PublicKey, error) {
	return find(verifierProgram, merkleTreeProgram.Bytes())
}

func RegisteredVerifier(verifierProgram, merkleTreeProgram solana.PublicKey) (solana.PublicKey, error) {
	return find(merkleTreeProgram, verifierProgram.Bytes())
}

func TokenAuthority(merkleTreeProgram solana.PublicKey) (solana.PublicKey, error) {
	return find(merkleTreeProgram, []byte(tokenAuthSeed))
}

// Escrow receives the SOL of a shield before the verifier moves it to the
// pool.
func Escrow(verifierProgram solana.PublicKey) (solana.PublicKey, error) {
	return find(verifierProgram, []byte(escrowSeed))
}

// SolPool is the SOL pool account of the given pool type.
func SolPool(merkleTreeProgram solana.PublicKey, poolType [32]byte) (solana.PublicKey, error) {
	var native [32]byte
	return find(merkleTreeProgram, native[:], poolType[:], []byte(poolConfigSeed))
}

// SplPool is the token account of the pool holding mint.
func SplPool(mint, merkleTreeProgram solana.PublicKey, poolType [32]byte) (solana.PublicKey, error) {
	return find(merkleTreeProgram, mint.Bytes(), poolType[:], []byte(poolSeed))
}

// Authority is the placeholder used for absent sender and recipient
// accounts.
func Authority(merkleTreeProgram, verifierZeroProgram solana.PublicKey) (solana.PublicKey, error) {
	return SignerAuthority(merkleTreeProgram, verifierZeroProgram)
}
