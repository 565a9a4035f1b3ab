package indexer

import (
	"fmt"
	"math/big"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/shieldpool/go-sdk/field"
	"github.com/shieldpool/go-sdk/types"
)

// Event is the payload the merkle tree program logs through the noop
// program for every shielded transaction.
type Event struct {
	Leaves          [][32]byte
	PublicAmountSpl [32]byte
	PublicAmountSol [32]byte
	RpcFee          uint64
	EncryptedUtxos  []byte
	Nullifiers      [][32]byte
	FirstLeafIndex  uint64
	Message         []byte
}

func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := bin.UnmarshalBorsh(&ev, data); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if len(ev.Leaves)%2 != 0 {
		return nil, fmt.Errorf("odd number of leaves %d", len(ev.Leaves))
	}
	return &ev, nil
}

func EncodeEvent(ev Event) ([]byte, error) {
	return bin.MarshalBorsh(&ev)
}

// Classify derives the action and the absolute public amounts. Amounts that
// fit in u64 are deposits, anything else encodes a withdrawal by field
// wraparound. For withdrawals the relayer fee is not part of the SOL amount.
func (ev *Event) Classify() (types.Action, *big.Int, *big.Int) {
	spl := new(big.Int).SetBytes(ev.PublicAmountSpl[:])
	sol := new(big.Int).SetBytes(ev.PublicAmountSol[:])
	if field.FitsU64(spl) && field.FitsU64(sol) {
		return types.ActionShield, sol, spl
	}

	spl = withdrawn(spl)
	sol = withdrawn(sol)
	sol.Sub(sol, new(big.Int).SetUint64(ev.RpcFee))
	if spl.Sign() == 0 && sol.Sign() == 0 {
		return types.ActionTransfer, sol, spl
	}
	return types.ActionUnshield, sol, spl
}

func withdrawn(x *big.Int) *big.Int {
	if x.Sign() == 0 || field.FitsU64(x) {
		return new(big.Int).Set(x)
	}
	return field.Negate(x)
}

// verifier instruction account positions
const (
	signerAccount              = 0
	relayerRecipientSolAccount = 5
	senderSolAccount           = 6
	recipientSolAccount        = 7
	senderSplAccount           = 10
	recipientSplAccount        = 11
)

func newIndexedTransaction(tx *RawTransaction, ev *Event, ix *RawInstruction) types.IndexedTransaction {
	action, sol, spl := ev.Classify()
	account := func(i int) solana.PublicKey {
		if ix == nil || i >= len(ix.Accounts) {
			return solana.PublicKey{}
		}
		return ix.Accounts[i]
	}
	var blockTime time.Time
	if tx.BlockTime != nil {
		blockTime = time.Unix(*tx.BlockTime, 0)
	}
	return types.IndexedTransaction{
		Signature:           tx.Signature,
		BlockTime:           blockTime,
		Type:                action,
		Signer:              account(signerAccount),
		From:                account(senderSolAccount),
		To:                  account(recipientSolAccount),
		FromSpl:             account(senderSplAccount),
		ToSpl:               account(recipientSplAccount),
		RelayerRecipientSol: account(relayerRecipientSolAccount),
		PublicAmountSol:     sol,
		PublicAmountSpl:     spl,
		RelayerFee:          ev.RpcFee,
		Leaves:              ev.Leaves,
		Nullifiers:          ev.Nullifiers,
		EncryptedUtxos:      ev.EncryptedUtxos,
		FirstLeafIndex:      ev.FirstLeafIndex,
		Message:             ev.Message,
	}
}

func decodeInstructionData(data string) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty instruction data")
	}
	return base58.Decode(data)
}
