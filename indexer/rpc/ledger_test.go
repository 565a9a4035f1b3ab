package rpcledger

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestDecodeMerkleTreeRoots(t *testing.T) {
	data := make([]byte, 8+merkleTreeHeight*32)
	data = binary.LittleEndian.AppendUint64(data, 3)
	data = binary.LittleEndian.AppendUint64(data, 42)
	for i := 0; i < rootHistorySize; i++ {
		root := make([]byte, 32)
		root[0] = byte(i + 1)
		data = append(data, root...)
	}

	roots, err := DecodeMerkleTreeRoots(data)
	require.NoError(t, err)
	require.Len(t, roots, rootHistorySize)
	require.Equal(t, byte(1), roots[0][0])
	require.Equal(t, byte(rootHistorySize), roots[rootHistorySize-1][0])

	_, err = DecodeMerkleTreeRoots(data[:100])
	require.Error(t, err)
}

const transactionJSON = `{
  "slot": 1234,
  "blockTime": 1700000000,
  "meta": {
    "err": null,
    "innerInstructions": [
      {"index": 1, "instructions": [{"programIdIndex": 3, "accounts": [], "data": "3DdGGhkhJbjm"}]}
    ],
    "loadedAddresses": {"writable": ["4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"], "readonly": []}
  },
  "transaction": {
    "signatures": ["5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"],
    "message": {
      "accountKeys": [
        "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
        "11111111111111111111111111111111",
        "J1RRetZ4ujphU75LP8RadjXMf3sA12yC2R44CF7PmU7i",
        "noopb9bkMVfRPU8AsbpTUg8AQkHtKwMYZiFUjNRtMmV"
      ],
      "instructions": [
        {"programIdIndex": 2, "accounts": [0, 1, 4], "data": "3DdGGhkhJbjm"}
      ]
    }
  }
}`

func TestTransactionResultToRaw(t *testing.T) {
	var res transactionResult
	require.NoError(t, json.Unmarshal([]byte(transactionJSON), &res))

	tx, err := res.toRaw("ignored")
	require.NoError(t, err)
	require.Equal(t, "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW", tx.Signature)
	require.False(t, tx.Failed)
	require.Equal(t, int64(1700000000), *tx.BlockTime)
	require.Len(t, tx.AccountKeys, 5)

	require.Len(t, tx.Instructions, 1)
	ix := tx.Instructions[0]
	require.Equal(t, solana.MustPublicKeyFromBase58("J1RRetZ4ujphU75LP8RadjXMf3sA12yC2R44CF7PmU7i"), ix.ProgramID)
	require.Equal(t, solana.MustPublicKeyFromBase58("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"), ix.Accounts[2])

	require.Len(t, tx.InnerInstructions, 1)
	require.Equal(t, solana.MustPublicKeyFromBase58("noopb9bkMVfRPU8AsbpTUg8AQkHtKwMYZiFUjNRtMmV"), tx.InnerInstructions[0].ProgramID)
	require.Equal(t, "3DdGGhkhJbjm", tx.InnerInstructions[0].Data)

	res.Transaction.Message.Instructions[0].Accounts = []int{9}
	_, err = res.toRaw("ignored")
	require.Error(t, err)

	res.Meta = nil
	_, err = res.toRaw("ignored")
	require.Error(t, err)
}
