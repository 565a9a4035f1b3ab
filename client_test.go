package shieldsdk_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	shieldsdk "github.com/shieldpool/go-sdk"
	"github.com/shieldpool/go-sdk/field"
	"github.com/shieldpool/go-sdk/hasher"
	"github.com/shieldpool/go-sdk/indexer"
	"github.com/shieldpool/go-sdk/merkletree"
	"github.com/shieldpool/go-sdk/prover"
	"github.com/shieldpool/go-sdk/store"
	"github.com/shieldpool/go-sdk/transaction"
	"github.com/shieldpool/go-sdk/types"
	"github.com/shieldpool/go-sdk/utxo"
	"github.com/stretchr/testify/require"
)

const password = "password"

var (
	h           = hasher.NewPoseidon()
	usdcMint    = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	relayerKey  = solana.MustPublicKeyFromBase58("5bKhm8WGcNZbRC7gqn6A6E3A1npYuxg8CdX9VA5N4pv4")
	lookupTable = solana.MustPublicKeyFromBase58("DyZnme4h32E66deCvsAV6pVceVw8s6ucRhNcwoofVCem")
	treeAccount = solana.MustPublicKeyFromBase58("5aSHTbEJa6EtKeRp5fvPpXo1bULSvUcwkovUqD1nVkDC")
	ownerSeed   = []byte("owner")
)

type fakeLedger struct {
	mu         sync.Mutex
	roots      [][32]byte
	spent      map[solana.PublicKey]bool
	sent       []*solana.Transaction
	syncCalls  int
	blockhash  solana.Hash
	signatures []indexer.SignatureInfo
	txs        map[string]*indexer.RawTransaction
	// missing makes a transaction body unavailable for the given number of
	// fetches.
	missing map[string]int
}

// add appends tx as the newest transaction of the merkle tree program.
func (l *fakeLedger) add(tx *indexer.RawTransaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.txs == nil {
		l.txs = make(map[string]*indexer.RawTransaction)
	}
	l.signatures = append([]indexer.SignatureInfo{{Signature: tx.Signature}}, l.signatures...)
	l.txs[tx.Signature] = tx
}

func (l *fakeLedger) GetSignaturesForAddress(
	_ context.Context, _ solana.PublicKey, opts indexer.SignaturesOptions,
) ([]indexer.SignatureInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.syncCalls++

	start := 0
	if opts.Before != "" {
		for i, s := range l.signatures {
			if s.Signature == opts.Before {
				start = i + 1
				break
			}
		}
	}
	out := make([]indexer.SignatureInfo, 0)
	for _, s := range l.signatures[start:] {
		if s.Signature == opts.Until || (opts.Limit > 0 && len(out) == opts.Limit) {
			break
		}
		out = append(out, s)
	}
	return out, nil
}

func (l *fakeLedger) GetTransactions(_ context.Context, signatures []string) ([]*indexer.RawTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*indexer.RawTransaction, 0, len(signatures))
	for _, sig := range signatures {
		if n := l.missing[sig]; n > 0 {
			l.missing[sig] = n - 1
			out = append(out, nil)
			continue
		}
		out = append(out, l.txs[sig])
	}
	return out, nil
}

func (l *fakeLedger) GetAccountInfo(context.Context, solana.PublicKey) ([]byte, error) {
	return nil, nil
}

func (l *fakeLedger) AccountsExist(_ context.Context, accounts []solana.PublicKey) ([]bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]bool, len(accounts))
	for i, a := range accounts {
		out[i] = l.spent[a]
	}
	return out, nil
}

func (l *fakeLedger) GetMerkleTreeRoots(context.Context, solana.PublicKey) ([][32]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.roots, nil
}

func (l *fakeLedger) GetLatestBlockhash(context.Context) (solana.Hash, error) {
	return l.blockhash, nil
}

func (l *fakeLedger) SendTransaction(_ context.Context, tx *solana.Transaction) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, tx)
	return tx.Signatures[0].String(), nil
}

type fakeRelayer struct {
	fee          int64
	instructions []solana.Instruction
}

func (r *fakeRelayer) Info(context.Context) (types.Relayer, error) {
	return types.Relayer{
		Pubkey:       relayerKey,
		RecipientSol: relayerKey,
		LookupTable:  lookupTable,
		Fee:          big.NewInt(r.fee),
		HighFee:      big.NewInt(r.fee * 10),
	}, nil
}

func (r *fakeRelayer) GetRelayerFee(ctx context.Context, isAtaCreation bool) (*big.Int, error) {
	info, err := r.Info(ctx)
	if err != nil {
		return nil, err
	}
	return info.FeeFor(isAtaCreation), nil
}

func (r *fakeRelayer) SendTransaction(_ context.Context, instructions []solana.Instruction) (string, error) {
	r.instructions = instructions
	return "relayed", nil
}

func (r *fakeRelayer) SendTransactions(
	context.Context, [][]solana.Instruction,
) ([]string, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeRelayer) GetIndexedTransactions(context.Context) ([]types.IndexedTransaction, error) {
	return nil, nil
}

func (r *fakeRelayer) Close() {}

// stubProver returns a well formed proof, the public inputs are taken from
// the witness.
type stubProver struct{}

func (stubProver) Prove(context.Context, string, map[string]any) (*prover.Proof, error) {
	_, _, g1, g2 := bn254.Generators()
	return &prover.Proof{A: g1, B: g2, C: g1}, nil
}

type stubVerifier struct{}

func (stubVerifier) Verify(string, *prover.Proof) error {
	return nil
}

func config() types.Config {
	cfg := types.DefaultConfig()
	cfg.AssetMints = []solana.PublicKey{usdcMint}
	cfg.MerkleTreeAccount = treeAccount
	cfg.LookupTable = lookupTable
	return cfg
}

type fixture struct {
	store   types.Store
	ledger  *fakeLedger
	relayer *fakeRelayer
	owner   *utxo.Keypair
	other   *utxo.Keypair
	txs     []types.IndexedTransaction
}

// newFixture stores two indexed transactions: 100 SOL and 50 SOL + 300 USDC
// for the owner, then 70 SOL for someone else and 20 SOL for the owner.
func newFixture(t *testing.T) *fixture {
	sdkStore, err := store.NewStore(store.Config{
		ConfigStoreType:  types.InMemoryStore,
		AppDataStoreType: types.KVStore,
	})
	require.NoError(t, err)

	owner, err := utxo.NewKeypairFromSeed(h, ownerSeed)
	require.NoError(t, err)
	other, err := utxo.NewKeypairFromSeed(h, []byte("other"))
	require.NoError(t, err)

	f := &fixture{
		store:   sdkStore,
		ledger:  &fakeLedger{spent: make(map[solana.PublicKey]bool), missing: make(map[string]int)},
		relayer: &fakeRelayer{fee: 10},
		owner:   owner,
		other:   other,
	}
	f.txs = []types.IndexedTransaction{
		shieldTx(t, "a", 0, newUtxo(t, owner, 100, 0), newUtxo(t, owner, 50, 300)),
		shieldTx(t, "b", 2, newUtxo(t, other, 70, 0), newUtxo(t, owner, 20, 0)),
	}

	cfg := config()
	tree, err := merkletree.BuildFromIndexed(h, cfg.MerkleTreeLevels, f.txs)
	require.NoError(t, err)
	f.ledger.roots = [][32]byte{field.ToBytesLE(tree.Root())}
	return f
}

func newUtxo(t *testing.T, kp *utxo.Keypair, sol, spl int64) *utxo.Utxo {
	args := utxo.Args{
		Amounts: []*big.Int{big.NewInt(sol)},
		Assets:  []solana.PublicKey{solana.SystemProgramID},
		Keypair: kp,
	}
	if spl > 0 {
		args.Amounts = append(args.Amounts, big.NewInt(spl))
		args.Assets = append(args.Assets, usdcMint)
	}
	u, err := utxo.NewUtxo(h, args)
	require.NoError(t, err)
	return u
}

// shieldTx is the indexed shield inserting utxos from leaf first on.
func shieldTx(t *testing.T, sig string, first uint64, utxos ...*utxo.Utxo) types.IndexedTransaction {
	cfg := config()
	assets := utxo.NewAssetLookupTable(cfg.AssetMints...)
	verifiers := utxo.NewVerifierLookupTable(cfg.VerifierPrograms()...)

	tx := types.IndexedTransaction{
		Signature:       sig,
		Type:            types.ActionShield,
		FirstLeafIndex:  first,
		PublicAmountSol: big.NewInt(0),
		PublicAmountSpl: big.NewInt(0),
	}
	for _, u := range utxos {
		ciphertext, err := u.Encrypt(assets, verifiers)
		require.NoError(t, err)
		tx.Leaves = append(tx.Leaves, field.ToBytesLE(u.Commitment()))
		tx.EncryptedUtxos = append(tx.EncryptedUtxos, ciphertext...)
		tx.PublicAmountSol.Add(tx.PublicAmountSol, u.Amounts[0])
	}
	return tx
}

// rawShield is tx as the ledger returns it, its event logged through the
// noop program.
func rawShield(t *testing.T, tx types.IndexedTransaction) *indexer.RawTransaction {
	cfg := config()
	data, err := indexer.EncodeEvent(indexer.Event{
		Leaves:          tx.Leaves,
		PublicAmountSol: field.ToBytesBE(tx.PublicAmountSol),
		EncryptedUtxos:  tx.EncryptedUtxos,
		FirstLeafIndex:  tx.FirstLeafIndex,
	})
	require.NoError(t, err)
	return &indexer.RawTransaction{
		Signature:   tx.Signature,
		AccountKeys: []solana.PublicKey{relayerKey, cfg.NoopProgramID},
		InnerInstructions: []indexer.RawInstruction{
			{ProgramID: cfg.NoopProgramID, Data: base58.Encode(data)},
		},
	}
}

func (f *fixture) opts(extra ...shieldsdk.ClientOption) []shieldsdk.ClientOption {
	return append([]shieldsdk.ClientOption{
		shieldsdk.WithLedger(f.ledger),
		shieldsdk.WithRelayer(f.relayer),
		shieldsdk.WithProver(stubProver{}),
		shieldsdk.WithProofVerifier(stubVerifier{}),
	}, extra...)
}

// newSyncedClient initializes and unlocks a client over the fixture store,
// then syncs it.
func newSyncedClient(t *testing.T, f *fixture, extra ...shieldsdk.ClientOption) shieldsdk.ShieldClient {
	ctx := context.Background()
	client, err := shieldsdk.NewShieldClient(f.store, f.opts(extra...)...)
	require.NoError(t, err)
	require.NoError(t, client.Init(ctx, shieldsdk.InitArgs{
		Config:   config(),
		Password: password,
		Seed:     ownerSeed,
	}))

	_, err = f.store.TransactionStore().AddTransactions(ctx, f.txs)
	require.NoError(t, err)

	require.NoError(t, client.Unlock(ctx, password))
	require.NoError(t, client.SyncHistory(ctx))
	return client
}

func TestInitAndLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := shieldsdk.LoadShieldClient(f.store, f.opts()...)
	require.ErrorIs(t, err, shieldsdk.ErrNotInitialized)

	client, err := shieldsdk.NewShieldClient(f.store, f.opts()...)
	require.NoError(t, err)
	_, err = client.GetConfigData(ctx)
	require.ErrorIs(t, err, shieldsdk.ErrNotInitialized)

	err = client.Init(ctx, shieldsdk.InitArgs{Config: config()})
	require.Error(t, err)

	require.NoError(t, client.Init(ctx, shieldsdk.InitArgs{
		Config:   config(),
		Password: password,
		Seed:     ownerSeed,
	}))
	require.ErrorIs(t, client.Init(ctx, shieldsdk.InitArgs{
		Config: config(), Password: password,
	}), shieldsdk.ErrAlreadyInitialized)

	cfg, err := client.GetConfigData(ctx)
	require.NoError(t, err)
	require.Equal(t, treeAccount, cfg.MerkleTreeAccount)

	_, err = shieldsdk.NewShieldClient(f.store, f.opts()...)
	require.ErrorIs(t, err, shieldsdk.ErrAlreadyInitialized)

	loaded, err := shieldsdk.LoadShieldClient(f.store, f.opts()...)
	require.NoError(t, err)
	require.True(t, loaded.IsLocked(ctx))

	require.ErrorIs(t, loaded.Unlock(ctx, "wrong"), shieldsdk.ErrInvalidPassword)
	require.NoError(t, loaded.Unlock(ctx, password))
	require.False(t, loaded.IsLocked(ctx))

	address, err := loaded.Address(ctx)
	require.NoError(t, err)
	require.Equal(t, f.owner.Address(), address)

	require.NoError(t, loaded.Lock(ctx))
	require.True(t, loaded.IsLocked(ctx))
	_, err = loaded.GetBalance(ctx)
	require.ErrorIs(t, err, shieldsdk.ErrLocked)
}

func TestSyncHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	client, err := shieldsdk.NewShieldClient(f.store, f.opts()...)
	require.NoError(t, err)
	require.NoError(t, client.Init(ctx, shieldsdk.InitArgs{
		Config:   config(),
		Password: password,
		Seed:     ownerSeed,
	}))
	_, err = f.store.TransactionStore().AddTransactions(ctx, f.txs)
	require.NoError(t, err)
	require.NoError(t, client.Unlock(ctx, password))

	synced := client.IsSynced(ctx)
	require.NoError(t, client.SyncHistory(ctx))
	event := <-synced
	require.True(t, event.Synced)
	require.NoError(t, event.Err)

	b, err := client.GetBalance(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(170), b.TotalSpendable(solana.SystemProgramID).Int64())
	require.Equal(t, int64(300), b.TotalSpendable(usdcMint).Int64())
	require.Len(t, b.SpendableUtxos(), 3)

	spendable, spent, err := f.store.UtxoStore().GetAllUtxos(ctx)
	require.NoError(t, err)
	require.Len(t, spendable, 3)
	require.Empty(t, spent)

	history, err := client.GetTransactionHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "b", history[0].Signature)

	// a restarted client gets its balance back from the store
	require.NoError(t, client.Lock(ctx))
	require.NoError(t, client.Unlock(ctx, password))
	b, err = client.GetBalance(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(170), b.TotalSpendable(solana.SystemProgramID).Int64())
}

func TestSyncRecoversDroppedBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// sig-6 is the newest, bodies are fetched five at a time: sig-6 to sig-2,
	// then sig-1 and sig-0
	for i := 0; i < 7; i++ {
		tx := shieldTx(
			t, fmt.Sprintf("sig-%d", i), uint64(2*i),
			newUtxo(t, f.owner, 10, 0), newUtxo(t, f.other, 5, 0),
		)
		f.ledger.add(rawShield(t, tx))
	}
	// two attempts per batch, sig-1 only shows up on the next sync
	f.ledger.missing["sig-1"] = 2

	client, err := shieldsdk.NewShieldClient(f.store, f.opts(shieldsdk.WithIndexerOptions(
		indexer.WithRetry(time.Millisecond, 1),
		indexer.WithRoundDelay(time.Millisecond),
	))...)
	require.NoError(t, err)
	require.NoError(t, client.Init(ctx, shieldsdk.InitArgs{
		Config:   config(),
		Password: password,
		Seed:     ownerSeed,
	}))
	require.NoError(t, client.Unlock(ctx, password))

	require.NoError(t, client.SyncHistory(ctx))
	stored, err := f.store.TransactionStore().GetAllTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 5)
	b, err := client.GetBalance(ctx)
	require.NoError(t, err)
	require.Zero(t, b.TotalSpendable(solana.SystemProgramID).Sign())

	require.NoError(t, client.SyncHistory(ctx))
	stored, err = f.store.TransactionStore().GetAllTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 7)
	b, err = client.GetBalance(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(70), b.TotalSpendable(solana.SystemProgramID).Int64())
	require.Len(t, b.SpendableUtxos(), 7)

	// nothing new, the walk stops at the newest stored transaction
	calls := f.ledger.syncCalls
	require.NoError(t, client.SyncHistory(ctx))
	require.Equal(t, calls+1, f.ledger.syncCalls)
	b, err = client.GetBalance(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(70), b.TotalSpendable(solana.SystemProgramID).Int64())
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := newSyncedClient(t, f)

	signature, err := client.Transfer(ctx, shieldsdk.TransferArgs{
		AmountSol: big.NewInt(60),
		Recipient: f.other.Address(),
	})
	require.NoError(t, err)
	require.Equal(t, "relayed", signature)
	require.Len(t, f.relayer.instructions, 2)
	require.True(t, f.relayer.instructions[0].Accounts()[0].IsSigner)
	require.Equal(t, relayerKey, f.relayer.instructions[0].Accounts()[0].PublicKey)

	// the 100 SOL input pays 60 plus a fee of 10, the change is pending
	b, err := client.GetBalance(ctx)
	require.NoError(t, err)
	committed := b.CommittedUtxos()
	require.Len(t, committed, 1)
	require.Equal(t, int64(30), committed[0].Amount(solana.SystemProgramID).Int64())

	spendable, _, err := f.store.UtxoStore().GetAllUtxos(ctx)
	require.NoError(t, err)
	require.Len(t, spendable, 4)

	_, err = client.Transfer(ctx, shieldsdk.TransferArgs{
		AmountSol: big.NewInt(1_000),
		Recipient: f.other.Address(),
	})
	require.Error(t, err)

	_, err = client.Transfer(ctx, shieldsdk.TransferArgs{
		AmountSol: big.NewInt(1),
		Recipient: "invalid",
	})
	require.Error(t, err)
}

func TestUnshield(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := newSyncedClient(t, f)
	recipient := solana.MustPublicKeyFromBase58("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T")

	signature, err := client.Unshield(ctx, shieldsdk.UnshieldArgs{
		AmountSol: big.NewInt(15),
		Recipient: recipient,
	})
	require.NoError(t, err)
	require.Equal(t, "relayed", signature)
	// recipient sol account is the 8th account of the second instruction
	require.Equal(t, recipient, f.relayer.instructions[1].Accounts()[7].PublicKey)

	_, err = client.Unshield(ctx, shieldsdk.UnshieldArgs{AmountSol: big.NewInt(15)})
	require.Error(t, err)
}

func TestMergeUtxos(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// a transfer from someone else: 40 and 30 SOL for the owner
	received := shieldTx(t, "c", 4, newUtxo(t, f.owner, 40, 0), newUtxo(t, f.owner, 30, 0))
	received.Type = types.ActionTransfer
	received.Nullifiers = [][32]byte{field.ToBytesBE(big.NewInt(7)), field.ToBytesBE(big.NewInt(8))}
	f.txs = append(f.txs, received)
	tree, err := merkletree.BuildFromIndexed(h, config().MerkleTreeLevels, f.txs)
	require.NoError(t, err)
	f.ledger.roots = [][32]byte{field.ToBytesLE(tree.Root())}

	client := newSyncedClient(t, f)
	b, err := client.GetBalance(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(170), b.TotalSpendable(solana.SystemProgramID).Int64())
	require.Equal(t, int64(70), b.TotalInbox(solana.SystemProgramID).Int64())
	require.Len(t, b.InboxUtxos(), 2)

	spendable, _, err := f.store.UtxoStore().GetAllUtxos(ctx)
	require.NoError(t, err)
	inbox := 0
	for _, u := range spendable {
		if u.Status == types.UtxoInbox {
			inbox++
		}
	}
	require.Equal(t, 2, inbox)

	_, err = client.MergeUtxos(ctx, usdcMint)
	require.ErrorIs(t, err, shieldsdk.ErrEmptyInbox)

	signature, err := client.MergeUtxos(ctx, solana.PublicKey{})
	require.NoError(t, err)
	require.Equal(t, "relayed", signature)
	require.Len(t, f.relayer.instructions, 2)
	require.Equal(t, config().VerifierProgramIDs[types.VerifierOne], f.relayer.instructions[0].ProgramID())

	// 40 + 30 from the inbox, 100 + 20 spendable, minus a fee of 10
	b, err = client.GetBalance(ctx)
	require.NoError(t, err)
	committed := b.CommittedUtxos()
	require.Len(t, committed, 1)
	require.Equal(t, int64(180), committed[0].Amount(solana.SystemProgramID).Int64())
	require.Equal(t, f.owner.PublicKey, committed[0].Keypair.PublicKey)
}

func TestStaleTree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := newSyncedClient(t, f)

	f.ledger.mu.Lock()
	f.ledger.roots = nil
	calls := f.ledger.syncCalls
	f.ledger.mu.Unlock()

	_, err := client.Transfer(ctx, shieldsdk.TransferArgs{
		AmountSol: big.NewInt(10),
		Recipient: f.other.Address(),
	})
	var staleErr shieldsdk.StaleTreeError
	require.ErrorAs(t, err, &staleErr)
	require.ErrorIs(t, err, transaction.ErrRootNotFound)
	require.True(t, transaction.IsStale(err))

	f.ledger.mu.Lock()
	defer f.ledger.mu.Unlock()
	require.Equal(t, calls+1, f.ledger.syncCalls)
	require.Nil(t, f.relayer.instructions)
}

func TestShield(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	client := newSyncedClient(t, f)
	_, err := client.Shield(ctx, shieldsdk.ShieldArgs{AmountSol: big.NewInt(1_000)})
	require.ErrorIs(t, err, shieldsdk.ErrMissingPayer)
	client.Stop()

	f = newFixture(t)
	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	client = newSyncedClient(t, f, shieldsdk.WithPayer(payer))

	signature, err := client.Shield(ctx, shieldsdk.ShieldArgs{AmountSol: big.NewInt(1_000)})
	require.NoError(t, err)
	require.NotEmpty(t, signature)

	f.ledger.mu.Lock()
	require.Len(t, f.ledger.sent, 2)
	for _, tx := range f.ledger.sent {
		require.Len(t, tx.Signatures, 1)
		require.Equal(t, payer.PublicKey(), tx.Message.AccountKeys[0])
	}
	f.ledger.mu.Unlock()

	b, err := client.GetBalance(ctx)
	require.NoError(t, err)
	committed := b.CommittedUtxos()
	require.Len(t, committed, 1)
	require.Equal(t, int64(1_000), committed[0].Amount(solana.SystemProgramID).Int64())
	// pending utxos do not count as spendable
	require.Equal(t, int64(170), b.TotalSpendable(solana.SystemProgramID).Int64())
}
