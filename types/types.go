package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
)

const (
	InMemoryStore = "inmemory"
	FileStore     = "file"
	KVStore       = "kv"
	SQLStore      = "sql"
)

const (
	VerifierZero    = "zero"
	VerifierOne     = "one"
	VerifierStorage = "storage"
)

// Config is built once and handed to every component; nothing reads
// program ids or lookup tables from globals.
type Config struct {
	Network             string
	RpcURL              string
	WsURL               string
	RelayerURL          string
	ProverURL           string
	VerifierKind        string
	VerifierProgramIDs  map[string]solana.PublicKey
	MerkleTreeProgramID solana.PublicKey
	MerkleTreeAccount   solana.PublicKey
	NoopProgramID       solana.PublicKey
	LookupTable         solana.PublicKey
	AssetMints          []solana.PublicKey
	MerkleTreeLevels    int
	DecryptionWorkers   int
	IndexerPollInterval time.Duration
	Datadir             string
	// StoreType is the store of indexed transactions and utxos, kv or sql.
	StoreType           string
}

var (
	DefaultMerkleTreeProgramID = solana.MustPublicKeyFromBase58("JA5cjkRJ1euVi9xLWsCJVzsRzEkT8vcC4rqw9sVAo5d6")
	DefaultNoopProgramID       = solana.MustPublicKeyFromBase58("noopb9bkMVfRPU8AsbpTUg8AQkHtKwMYZiFUjNRtMmV")
	DefaultVerifierProgramIDs  = map[string]solana.PublicKey{
		VerifierZero:    solana.MustPublicKeyFromBase58("J1RRetZ4ujphU75LP8RadjXMf3sA12yC2R44CF7PmU7i"),
		VerifierOne:     solana.MustPublicKeyFromBase58("J85SuNBBsba7FQS66BiBCQjiQrQTif7v249zL2ffmRZc"),
		VerifierStorage: solana.MustPublicKeyFromBase58("DJpbogMSrK94E1zvvJydtkqoE4sknuzmMRoutd6B7TKj"),
	}
)

func DefaultConfig() Config {
	verifiers := make(map[string]solana.PublicKey, len(DefaultVerifierProgramIDs))
	for k, v := range DefaultVerifierProgramIDs {
		verifiers[k] = v
	}
	return Config{
		Network:             "localnet",
		RpcURL:              "http://127.0.0.1:8899",
		WsURL:               "ws://127.0.0.1:8900",
		RelayerURL:          "http://127.0.0.1:3331",
		ProverURL:           "http://127.0.0.1:3001",
		VerifierKind:        VerifierZero,
		VerifierProgramIDs:  verifiers,
		MerkleTreeProgramID: DefaultMerkleTreeProgramID,
		NoopProgramID:       DefaultNoopProgramID,
		MerkleTreeLevels:    18,
		DecryptionWorkers:   4,
		IndexerPollInterval: 10 * time.Second,
		StoreType:           KVStore,
	}
}

func (c Config) VerifierProgramID() (solana.PublicKey, error) {
	id, ok := c.VerifierProgramIDs[c.VerifierKind]
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("unknown verifier %q", c.VerifierKind)
	}
	return id, nil
}

// VerifierPrograms lists the configured verifier programs in a stable order,
// the order of the verifier lookup table.
func (c Config) VerifierPrograms() []solana.PublicKey {
	out := make([]solana.PublicKey, 0, len(c.VerifierProgramIDs))
	for _, kind := range []string{VerifierZero, VerifierOne, VerifierStorage} {
		if id, ok := c.VerifierProgramIDs[kind]; ok {
			out = append(out, id)
		}
	}
	return out
}

// StoredConfig is what the config store persists: the client config plus
// the shielded keypair encrypted with the user password.
type StoredConfig struct {
	Config
	EncryptedKeypair string
}

type Action int

const (
	ActionUnspecified Action = iota
	ActionShield
	ActionUnshield
	ActionTransfer
)

func (a Action) String() string {
	return map[Action]string{
		ActionUnspecified: "UNSPECIFIED",
		ActionShield:      "SHIELD",
		ActionUnshield:    "UNSHIELD",
		ActionTransfer:    "TRANSFER",
	}[a]
}

// Relayer is the party paying for and submitting a transaction. For a
// shield the user relays for themself with a zero fee.
type Relayer struct {
	Pubkey       solana.PublicKey
	RecipientSol solana.PublicKey
	LookupTable  solana.PublicKey
	Fee          *big.Int
	// HighFee is charged when the relayer must create the recipient token
	// account.
	HighFee *big.Int
	URL     string
}

func (r Relayer) FeeOrZero() *big.Int {
	if r.Fee == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(r.Fee)
}

// FeeFor returns the fee charged for a transaction, the high fee when it
// creates an associated token account.
func (r Relayer) FeeFor(isAtaCreation bool) *big.Int {
	if isAtaCreation && r.HighFee != nil {
		return new(big.Int).Set(r.HighFee)
	}
	return r.FeeOrZero()
}

// IndexedTransaction is the decoded form of one protocol event.
type IndexedTransaction struct {
	Signature           string
	BlockTime           time.Time
	Type                Action
	Signer              solana.PublicKey
	From                solana.PublicKey
	To                  solana.PublicKey
	FromSpl             solana.PublicKey
	ToSpl               solana.PublicKey
	RelayerRecipientSol solana.PublicKey
	PublicAmountSol     *big.Int
	PublicAmountSpl     *big.Int
	RelayerFee          uint64
	Leaves              [][32]byte
	Nullifiers          [][32]byte
	EncryptedUtxos      []byte
	FirstLeafIndex      uint64
	Message             []byte
}

func (t IndexedTransaction) String() string {
	// nolint
	b, _ := json.MarshalIndent(t, "", "  ")
	return string(b)
}

type UtxoStatus int

const (
	UtxoCommitted UtxoStatus = iota
	UtxoSpendable
	UtxoSpent
	// UtxoInbox is spendable on chain but received from someone else and
	// not merged into the balance yet.
	UtxoInbox
)

func (s UtxoStatus) String() string {
	return map[UtxoStatus]string{
		UtxoCommitted: "COMMITTED",
		UtxoSpendable: "SPENDABLE",
		UtxoSpent:     "SPENT",
		UtxoInbox:     "INBOX",
	}[s]
}

// ShieldedUtxo is the persisted form of a utxo owned by the local keypair.
// The owner is implicit.
type ShieldedUtxo struct {
	Commitment      string
	Amounts         [2]uint64
	Assets          [2]string
	Blinding        string
	PoolType        string
	AppDataHash     string
	VerifierAddress string
	Index           uint64
	Status          UtxoStatus
	SpentBy         string
	CreatedAt       time.Time
}

func (u ShieldedUtxo) String() string {
	// nolint
	b, _ := json.MarshalIndent(u, "", "  ")
	return string(b)
}

type UtxoEventType int

const (
	UtxosAdded UtxoEventType = iota
	UtxosConfirmed
	UtxosSpent
)

func (e UtxoEventType) String() string {
	return map[UtxoEventType]string{
		UtxosAdded:     "UTXOS_ADDED",
		UtxosConfirmed: "UTXOS_CONFIRMED",
		UtxosSpent:     "UTXOS_SPENT",
	}[e]
}

type UtxoEvent struct {
	Type  UtxoEventType
	Utxos []ShieldedUtxo
}

type TxEventType int

const (
	TxsAdded TxEventType = iota
)

func (e TxEventType) String() string {
	return map[TxEventType]string{
		TxsAdded: "TXS_ADDED",
	}[e]
}

type TransactionEvent struct {
	Type TxEventType
	Txs  []IndexedTransaction
}

type SyncEvent struct {
	Synced bool
	Err    error
}
