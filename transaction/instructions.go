package transaction

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/pda"
)

const (
	shieldedTransferFirstName  = "shielded_transfer_first"
	shieldedTransferSecondName = "shielded_transfer_second"
	closeVerifierStateName     = "close_verifier_state"

	nPublicInputsPrefix = 5
)

// InstructionData is the closed set of instruction payloads understood by
// the verifier programs.
type InstructionData interface {
	bin.BinaryMarshaler
	instructionName() string
}

// ShieldedTransferFirst stores the public inputs in the verifier state.
type ShieldedTransferFirst struct {
	PublicAmountSpl  [32]byte
	InputNullifier   [][32]byte
	OutputCommitment [][32]byte
	PublicAmountSol  [32]byte
	RootIndex        uint64
	RelayerFee       uint64
	EncryptedUtxos   []byte
}

func (ShieldedTransferFirst) instructionName() string { return shieldedTransferFirstName }

func (d ShieldedTransferFirst) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteBytes(accountDiscriminator("InstructionDataShieldedTransferFirst"), false); err != nil {
		return err
	}
	return d.encodeFields(enc)
}

// nullifiers and commitments are fixed size arrays on chain, sized by the
// verifier arity, so no length prefix is written.
func (d ShieldedTransferFirst) encodeFields(enc *bin.Encoder) error {
	if err := enc.WriteBytes(d.PublicAmountSpl[:], false); err != nil {
		return err
	}
	for _, n := range d.InputNullifier {
		if err := enc.WriteBytes(n[:], false); err != nil {
			return err
		}
	}
	for _, c := range d.OutputCommitment {
		if err := enc.WriteBytes(c[:], false); err != nil {
			return err
		}
	}
	if err := enc.WriteBytes(d.PublicAmountSol[:], false); err != nil {
		return err
	}
	if err := enc.WriteUint64(d.RootIndex, binary.LittleEndian); err != nil {
		return err
	}
	if err := enc.WriteUint64(d.RelayerFee, binary.LittleEndian); err != nil {
		return err
	}
	return writeVec(enc, d.EncryptedUtxos)
}

// ShieldedTransferFirstWithMessage is the first step of verifiers that
// carry a message.
type ShieldedTransferFirstWithMessage struct {
	ShieldedTransferFirst
	Message []byte
}

func (d ShieldedTransferFirstWithMessage) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteBytes(accountDiscriminator("InstructionDataShieldedTransferFirst"), false); err != nil {
		return err
	}
	if err := writeVec(enc, d.Message); err != nil {
		return err
	}
	return d.encodeFields(enc)
}

// ShieldedTransferSecond carries the proof and executes the transfer.
type ShieldedTransferSecond struct {
	ProofA [64]byte
	ProofB [128]byte
	ProofC [64]byte
}

func (ShieldedTransferSecond) instructionName() string { return shieldedTransferSecondName }

func (d ShieldedTransferSecond) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteBytes(accountDiscriminator("InstructionDataShieldedTransferSecond"), false); err != nil {
		return err
	}
	if err := enc.WriteBytes(d.ProofA[:], false); err != nil {
		return err
	}
	if err := enc.WriteBytes(d.ProofB[:], false); err != nil {
		return err
	}
	return enc.WriteBytes(d.ProofC[:], false)
}

// CloseVerifierState reclaims a verifier state left by an interrupted
// transaction.
type CloseVerifierState struct{}

func (CloseVerifierState) instructionName() string { return closeVerifierStateName }

func (CloseVerifierState) MarshalWithEncoder(*bin.Encoder) error { return nil }

// EncodeInstructionData returns the anchor discriminator followed by the
// payload as a borsh byte vector. Argument-less instructions have no
// payload.
func EncodeInstructionData(d InstructionData) ([]byte, error) {
	payload := new(bytes.Buffer)
	if err := d.MarshalWithEncoder(bin.NewBorshEncoder(payload)); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", d.instructionName(), err)
	}
	data := instructionDiscriminator(d.instructionName())
	if payload.Len() == 0 {
		return data, nil
	}
	buf := new(bytes.Buffer)
	buf.Write(data)
	if err := writeVec(bin.NewBorshEncoder(buf), payload.Bytes()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// InstructionsData returns the typed payloads of both steps.
func (t *Transaction) InstructionsData() ([]InstructionData, error) {
	if t.proofInput == nil {
		return nil, ErrNotCompiled
	}
	if t.proof == nil {
		return nil, ErrProofMissing
	}
	if t.rootIndex == nil {
		return nil, ErrRootIndexMissing
	}
	publicInputs := t.proof.PublicInputBytes()
	nInputs := len(t.proofInput.InputNullifier)
	nOutputs := len(t.proofInput.OutputCommitment)
	if len(publicInputs) != nPublicInputsPrefix+nInputs+nOutputs {
		return nil, fmt.Errorf(
			"%w: got %d public inputs, expected %d",
			ErrInvalidProof, len(publicInputs), nPublicInputsPrefix+nInputs+nOutputs,
		)
	}

	first := ShieldedTransferFirst{
		PublicAmountSpl:  publicInputs[1],
		InputNullifier:   publicInputs[nPublicInputsPrefix : nPublicInputsPrefix+nInputs],
		OutputCommitment: publicInputs[nPublicInputsPrefix+nInputs:],
		PublicAmountSol:  publicInputs[3],
		RootIndex:        *t.rootIndex,
		RelayerFee:       t.params.RelayerFee().Uint64(),
		EncryptedUtxos:   t.encrypted,
	}
	var second ShieldedTransferSecond
	second.ProofA, second.ProofB, second.ProofC = t.proof.Bytes()

	if t.params.Verifier.MessageSupport {
		return []InstructionData{
			ShieldedTransferFirstWithMessage{ShieldedTransferFirst: first, Message: t.params.Message},
			second,
		}, nil
	}
	return []InstructionData{first, second}, nil
}

// Instructions builds the instructions to submit, in order. The relayer is
// expected to be the signer.
func (t *Transaction) Instructions(signer solana.PublicKey) ([]solana.Instruction, error) {
	data, err := t.InstructionsData()
	if err != nil {
		return nil, err
	}
	if t.merkleTreeAccount.IsZero() {
		return nil, fmt.Errorf("missing merkle tree account")
	}
	pdas, err := t.Pdas(signer)
	if err != nil {
		return nil, err
	}
	accounts := t.params.Accounts
	verifierProgram := accounts.VerifierProgram

	firstData, err := EncodeInstructionData(data[0])
	if err != nil {
		return nil, err
	}
	first := solana.NewInstruction(verifierProgram, solana.AccountMetaSlice{
		solana.Meta(signer).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(pdas.VerifierState).WRITE(),
	}, firstData)

	secondData, err := EncodeInstructionData(data[1])
	if err != nil {
		return nil, err
	}
	// the indexer reads the public accounts back at these positions
	metas := solana.AccountMetaSlice{
		solana.Meta(signer).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(accounts.MerkleTreeProgram),
		solana.Meta(t.merkleTreeAccount).WRITE(),
		solana.Meta(pdas.SignerAuthority).WRITE(),
		solana.Meta(accounts.RelayerRecipientSol).WRITE(),
		solana.Meta(accounts.SenderSol).WRITE(),
		solana.Meta(accounts.RecipientSol).WRITE(),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(pdas.TokenAuthority).WRITE(),
		solana.Meta(accounts.SenderSpl).WRITE(),
		solana.Meta(accounts.RecipientSpl).WRITE(),
		solana.Meta(pdas.RegisteredVerifier).WRITE(),
		solana.Meta(t.noopProgram),
		solana.Meta(pdas.VerifierState).WRITE(),
	}
	for _, addr := range pdas.Nullifiers {
		metas = append(metas, solana.Meta(addr).WRITE())
	}
	for _, addr := range pdas.Leaves {
		metas = append(metas, solana.Meta(addr).WRITE())
	}
	second := solana.NewInstruction(verifierProgram, metas, secondData)

	return []solana.Instruction{first, second}, nil
}

// CloseVerifierStateInstruction closes the verifier state of signer.
func (t *Transaction) CloseVerifierStateInstruction(signer solana.PublicKey) (solana.Instruction, error) {
	verifierProgram := t.params.Accounts.VerifierProgram
	verifierState, err := pda.VerifierState(signer, verifierProgram)
	if err != nil {
		return nil, err
	}
	data, err := EncodeInstructionData(CloseVerifierState{})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(verifierProgram, solana.AccountMetaSlice{
		solana.Meta(signer).WRITE().SIGNER(),
		solana.Meta(verifierState).WRITE(),
	}, data), nil
}

func writeVec(enc *bin.Encoder, b []byte) error {
	if err := enc.WriteUint32(uint32(len(b)), binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteBytes(b, false)
}

func instructionDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

func accountDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("account:" + name))
	return sum[:8]
}
