package txparams

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/shieldpool/go-sdk/field"
	"github.com/shieldpool/go-sdk/utxo"
	"golang.org/x/crypto/sha3"
)

// EncryptedUtxosLength is the size of the ciphertext field bound by the
// integrity hash.
const EncryptedUtxosLength = 512

// EncryptOutputs returns the concatenated ciphertexts of outputs, cut or
// zero padded to EncryptedUtxosLength. Caller supplied ciphertexts take
// precedence.
func (p *TransactionParameters) EncryptOutputs(outputs []*utxo.Utxo) ([]byte, error) {
	if len(p.EncryptedUtxos) > 0 {
		return fitCiphertexts(p.EncryptedUtxos), nil
	}
	out := make([]byte, 0, EncryptedUtxosLength)
	for i, u := range outputs {
		ciphertext, err := u.Encrypt(p.assets, p.verifiers)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt output %d: %w", i, err)
		}
		out = append(out, ciphertext...)
	}
	return fitCiphertexts(out), nil
}

// fitCiphertexts copies b into a buffer of exactly EncryptedUtxosLength
// bytes. The program only stores that many.
func fitCiphertexts(b []byte) []byte {
	out := make([]byte, EncryptedUtxosLength)
	copy(out, b)
	return out
}

// TxIntegrityHash binds the relayer controlled terms (message, recipients,
// relayer and fee, ciphertexts) to the proof.
func (p *TransactionParameters) TxIntegrityHash(encrypted []byte) (*big.Int, error) {
	fee := p.RelayerFee()
	if !field.FitsU64(fee) {
		return nil, fmt.Errorf("relayer fee %s does not fit in u64", fee)
	}

	var messageHash [32]byte
	if len(p.Message) > 0 {
		messageHash = sha256.Sum256(p.Message)
	}
	var recipientSpl [32]byte
	if !p.Verifier.MessageSupport {
		recipientSpl = [32]byte(p.Accounts.RecipientSpl)
	}
	var feeBytes [8]byte
	binary.LittleEndian.PutUint64(feeBytes[:], fee.Uint64())

	if len(encrypted) > EncryptedUtxosLength {
		encrypted = encrypted[:EncryptedUtxosLength]
	}

	hash := sha3.NewLegacyKeccak256()
	hash.Write(messageHash[:])
	hash.Write(recipientSpl[:])
	hash.Write(p.Accounts.RecipientSol.Bytes())
	hash.Write(p.Relayer.Pubkey.Bytes())
	hash.Write(feeBytes[:])
	hash.Write(encrypted)
	return field.Mod(new(big.Int).SetBytes(hash.Sum(nil))), nil
}
