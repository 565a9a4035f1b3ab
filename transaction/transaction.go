// Package transaction compiles validated transaction parameters into a
// prover witness, obtains a verified proof and derives the accounts and
// instructions to submit.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mitchellh/mapstructure"
	"github.com/shieldpool/go-sdk/field"
	"github.com/shieldpool/go-sdk/merkletree"
	"github.com/shieldpool/go-sdk/prover"
	"github.com/shieldpool/go-sdk/txparams"
	"github.com/shieldpool/go-sdk/types"
	"github.com/shieldpool/go-sdk/utxo"
	log "github.com/sirupsen/logrus"
)

// RootFetcher returns the root history of the on-chain merkle tree, each
// root as stored on chain (little-endian).
type RootFetcher interface {
	GetMerkleTreeRoots(ctx context.Context, merkleTree solana.PublicKey) ([][32]byte, error)
}

type Option func(*Transaction)

// WithShuffle toggles the shuffling of inputs and outputs, enabled by
// default.
func WithShuffle(shuffle bool) Option {
	return func(t *Transaction) {
		t.shuffle = shuffle
	}
}

// WithRand sets the source of the shuffle, for reproducible orderings.
func WithRand(rnd *rand.Rand) Option {
	return func(t *Transaction) {
		t.rnd = rnd
	}
}

// WithVerifier sets the verifier every proof is checked against.
func WithVerifier(v prover.Verifier) Option {
	return func(t *Transaction) {
		t.verifier = v
	}
}

// WithConfig provides the merkle tree account and the noop program the
// submitted instructions reference.
func WithConfig(cfg types.Config) Option {
	return func(t *Transaction) {
		t.merkleTreeAccount = cfg.MerkleTreeAccount
		t.noopProgram = cfg.NoopProgramID
	}
}

// WithLogger replaces the standard logger of the compilation and proving
// steps.
func WithLogger(logger log.FieldLogger) Option {
	return func(t *Transaction) {
		t.log = logger
	}
}

type Transaction struct {
	params   *txparams.TransactionParameters
	tree     merkletree.Tree
	prover   prover.Prover
	verifier prover.Verifier

	shuffle           bool
	rnd               *rand.Rand
	merkleTreeAccount solana.PublicKey
	noopProgram       solana.PublicKey
	log               log.FieldLogger

	inputs        []*utxo.Utxo
	outputs       []*utxo.Utxo
	encrypted     []byte
	integrityHash *big.Int
	proofInput    *ProofInput
	proof         *prover.Proof
	rootIndex     *uint64
}

func New(
	params *txparams.TransactionParameters, tree merkletree.Tree, p prover.Prover, opts ...Option,
) (*Transaction, error) {
	if params == nil {
		return nil, fmt.Errorf("missing transaction parameters")
	}
	if tree == nil {
		return nil, fmt.Errorf("missing merkle tree")
	}
	t := &Transaction{
		params:      params,
		tree:        tree,
		prover:      p,
		shuffle:     true,
		noopProgram: types.DefaultNoopProgramID,
		log:         log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.rnd == nil {
		// nolint
		t.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return t, nil
}

func (t *Transaction) Params() *txparams.TransactionParameters {
	return t.params
}

// Inputs returns the inputs in compiled order.
func (t *Transaction) Inputs() []*utxo.Utxo {
	return t.inputs
}

// Outputs returns the outputs in compiled order.
func (t *Transaction) Outputs() []*utxo.Utxo {
	return t.outputs
}

func (t *Transaction) EncryptedUtxos() []byte {
	return t.encrypted
}

func (t *Transaction) ProofInput() *ProofInput {
	return t.proofInput
}

func (t *Transaction) Proof() *prover.Proof {
	return t.proof
}

// Compile builds the prover witness. The parameters are never modified:
// shuffling, encryption and the integrity hash work on copies.
func (t *Transaction) Compile() (*ProofInput, error) {
	h := t.params.Hasher()

	inputs := append([]*utxo.Utxo{}, t.params.Inputs...)
	outputs := append([]*utxo.Utxo{}, t.params.Outputs...)
	if t.shuffle {
		t.rnd.Shuffle(len(inputs), func(i, j int) { inputs[i], inputs[j] = inputs[j], inputs[i] })
		t.rnd.Shuffle(len(outputs), func(i, j int) { outputs[i], outputs[j] = outputs[j], outputs[i] })
	}

	levels := t.tree.Levels()
	pathIndices := make([]string, 0, len(inputs))
	pathElements := make([][]string, 0, len(inputs))
	for i, in := range inputs {
		if in.IsEmpty() {
			zeros := make([]string, levels)
			for j := range zeros {
				zeros[j] = "0"
			}
			pathIndices = append(pathIndices, "0")
			pathElements = append(pathElements, zeros)
			continue
		}
		index, ok := t.tree.IndexOf(in.Commitment())
		if !ok {
			return nil, fmt.Errorf("%w: commitment %s", ErrInputNotInMerkleTree, in.Key())
		}
		path, err := t.tree.Path(index)
		if err != nil {
			return nil, fmt.Errorf("failed to get merkle path of input %d: %w", i, err)
		}
		inputs[i] = in.WithIndex(index)
		pathIndices = append(pathIndices, strconv.FormatUint(index, 10))
		pathElements = append(pathElements, field.Strings(path))
	}

	encrypted, err := t.params.EncryptOutputs(outputs)
	if err != nil {
		return nil, err
	}
	integrityHash, err := t.params.TxIntegrityHash(encrypted)
	if err != nil {
		return nil, err
	}

	input := &ProofInput{
		Root:               t.tree.Root().String(),
		PublicAmountSpl:    t.params.PublicAmountSpl.String(),
		PublicAmountSol:    t.params.PublicAmountSol.String(),
		PublicMintPubkey:   t.params.AssetPubkeysCircuit[1].String(),
		TxIntegrityHash:    integrityHash.String(),
		InPathIndices:      pathIndices,
		InPathElements:     pathElements,
		AssetPubkeys:       field.Strings(t.params.AssetPubkeysCircuit),
		InIndices:          getIndices(inputs, t.params.AssetPubkeysCircuit),
		OutIndices:         getIndices(outputs, t.params.AssetPubkeysCircuit),
		TransactionVersion: transactionVersion,
	}
	for i, in := range inputs {
		if !in.Keypair.HasPrivateKey() {
			return nil, fmt.Errorf("input %d: %w", i, utxo.ErrPrivateKeyUndefined)
		}
		nullifier, err := in.Nullifier(h)
		if err != nil {
			return nil, fmt.Errorf("failed to compute nullifier of input %d: %w", i, err)
		}
		input.InputNullifier = append(input.InputNullifier, nullifier.String())
		input.InPrivateKey = append(input.InPrivateKey, in.Keypair.PrivateKey.String())
		input.InAmount = append(input.InAmount, amountStrings(in))
		input.InBlinding = append(input.InBlinding, in.Blinding.String())
		input.InAppDataHash = append(input.InAppDataHash, in.AppDataHash.String())
		input.InPoolType = append(input.InPoolType, in.PoolType.String())
		input.InVerifierPubkey = append(input.InVerifierPubkey, in.VerifierAddressCircuit.String())
	}
	for _, out := range outputs {
		input.OutputCommitment = append(input.OutputCommitment, out.Key())
		input.OutPubkey = append(input.OutPubkey, out.Keypair.PublicKey.String())
		input.OutAmount = append(input.OutAmount, amountStrings(out))
		input.OutBlinding = append(input.OutBlinding, out.Blinding.String())
		input.OutAppDataHash = append(input.OutAppDataHash, out.AppDataHash.String())
		input.OutPoolType = append(input.OutPoolType, out.PoolType.String())
		input.OutVerifierPubkey = append(input.OutVerifierPubkey, out.VerifierAddressCircuit.String())
	}

	t.inputs = inputs
	t.outputs = outputs
	t.encrypted = encrypted
	t.integrityHash = integrityHash
	t.proofInput = input
	t.proof = nil
	t.log.WithFields(log.Fields{
		"action":   t.params.Action.String(),
		"verifier": t.params.Verifier.String(),
	}).Debug("transaction compiled")
	return input, nil
}

// TransactionHash is Poseidon(Poseidon(input commitments),
// Poseidon(output commitments), integrity hash).
func (t *Transaction) TransactionHash() (*big.Int, error) {
	if t.proofInput == nil {
		return nil, ErrNotCompiled
	}
	h := t.params.Hasher()
	commitments := func(utxos []*utxo.Utxo) []*big.Int {
		out := make([]*big.Int, 0, len(utxos))
		for _, u := range utxos {
			out = append(out, u.Commitment())
		}
		return out
	}
	inHash, err := h.Hash(commitments(t.inputs)...)
	if err != nil {
		return nil, err
	}
	outHash, err := h.Hash(commitments(t.outputs)...)
	if err != nil {
		return nil, err
	}
	return h.Hash(inHash, outHash, t.integrityHash)
}

// GetProof asks the prover for a proof of the compiled witness and verifies
// it locally. A proof is returned only once verified.
func (t *Transaction) GetProof(ctx context.Context) (*prover.Proof, error) {
	if t.proofInput == nil {
		return nil, ErrNotCompiled
	}
	if t.prover == nil {
		return nil, fmt.Errorf("%w: no prover configured", ErrProofGeneration)
	}
	if t.verifier == nil {
		return nil, ErrNoProofVerifier
	}

	inputs := make(map[string]any)
	if err := mapstructure.Decode(t.proofInput, &inputs); err != nil {
		return nil, fmt.Errorf("failed to encode proof inputs: %w", err)
	}

	circuit := t.params.Verifier.CircuitName
	proof, err := t.prover.Prove(ctx, circuit, inputs)
	if err != nil {
		if errors.Is(err, ErrInvalidProof) || errors.Is(err, ErrProofGeneration) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrProofGeneration, err)
	}
	if proof == nil {
		return nil, fmt.Errorf("%w: empty proof", ErrProofGeneration)
	}

	expected := t.proofInput.PublicInputs()
	if len(proof.PublicInputs) == 0 {
		for _, s := range expected {
			v, err := field.FromString(s)
			if err != nil {
				return nil, err
			}
			proof.PublicInputs = append(proof.PublicInputs, v)
		}
	} else if !equalStrings(field.Strings(proof.PublicInputs), expected) {
		return nil, fmt.Errorf("%w: public inputs do not match the witness", ErrInvalidProof)
	}

	if err := t.verifier.Verify(circuit, proof); err != nil {
		if errors.Is(err, ErrInvalidProof) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidProof, err)
	}
	t.proof = proof
	return proof, nil
}

// GetRootIndex finds the local root in the on-chain root history.
func (t *Transaction) GetRootIndex(
	ctx context.Context, fetcher RootFetcher, merkleTree solana.PublicKey,
) (uint64, error) {
	roots, err := fetcher.GetMerkleTreeRoots(ctx, merkleTree)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch merkle tree roots: %w", err)
	}
	local := field.ToBytesLE(t.tree.Root())
	for i, root := range roots {
		if root == local {
			index := uint64(i)
			t.rootIndex = &index
			return index, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrRootNotFound, t.tree.Root())
}

// SetRootIndex sets the root index when it is known from another source.
func (t *Transaction) SetRootIndex(index uint64) {
	t.rootIndex = &index
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
