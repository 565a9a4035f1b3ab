package shieldsdk

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/balance"
	"github.com/shieldpool/go-sdk/hasher"
	"github.com/shieldpool/go-sdk/indexer"
	rpcledger "github.com/shieldpool/go-sdk/indexer/rpc"
	wslistener "github.com/shieldpool/go-sdk/indexer/ws"
	"github.com/shieldpool/go-sdk/internal/metrics"
	"github.com/shieldpool/go-sdk/internal/utils"
	"github.com/shieldpool/go-sdk/merkletree"
	"github.com/shieldpool/go-sdk/prover"
	"github.com/shieldpool/go-sdk/prover/remote"
	"github.com/shieldpool/go-sdk/relayer"
	"github.com/shieldpool/go-sdk/relayer/rest"
	"github.com/shieldpool/go-sdk/types"
	"github.com/shieldpool/go-sdk/utxo"
	log "github.com/sirupsen/logrus"
)

type shieldClient struct {
	*types.Config

	store         types.Store
	ledger        indexer.Ledger
	relayer       relayer.Client
	prover        prover.Prover
	proofVerifier prover.Verifier
	payer         solana.PrivateKey
	metrics       *metrics.Metrics
	hasher        hasher.Hasher

	proverTimeout       time.Duration
	withTransactionFeed bool
	indexerOpts         []indexer.Option
	optErr              error

	indexer  *indexer.Indexer
	engine   *balance.Engine
	listener *wslistener.Listener

	// mu guards the unlocked state below.
	mu      *sync.RWMutex
	keypair *utxo.Keypair
	balance *balance.Balance
	tree    *merkletree.MerkleTree
	// fullScan makes the next sync decrypt every stored transaction.
	fullScan bool

	syncMu        *sync.Mutex
	syncListeners *readyListeners
	stopFn        context.CancelFunc
}

func NewShieldClient(sdkStore types.Store, opts ...ClientOption) (ShieldClient, error) {
	if sdkStore == nil {
		return nil, fmt.Errorf("missing sdk repository")
	}

	cfgData, err := sdkStore.ConfigStore().GetData(context.Background())
	if err != nil {
		return nil, err
	}
	if cfgData != nil {
		return nil, ErrAlreadyInitialized
	}

	client := newShieldClient(sdkStore)
	for _, opt := range opts {
		opt(client)
	}
	if client.optErr != nil {
		return nil, client.optErr
	}
	return client, nil
}

func LoadShieldClient(sdkStore types.Store, opts ...ClientOption) (ShieldClient, error) {
	if sdkStore == nil {
		return nil, fmt.Errorf("missing sdk repository")
	}

	cfgData, err := sdkStore.ConfigStore().GetData(context.Background())
	if err != nil {
		return nil, err
	}
	if cfgData == nil {
		return nil, ErrNotInitialized
	}

	client := newShieldClient(sdkStore)
	for _, opt := range opts {
		opt(client)
	}
	if client.optErr != nil {
		return nil, client.optErr
	}
	if err := client.setup(cfgData.Config); err != nil {
		return nil, err
	}
	return client, nil
}

func newShieldClient(sdkStore types.Store) *shieldClient {
	return &shieldClient{
		store:         sdkStore,
		hasher:        hasher.NewPoseidon(),
		mu:            &sync.RWMutex{},
		syncMu:        &sync.Mutex{},
		syncListeners: newReadyListeners(),
	}
}

// setup builds every service the config points to, unless already given
// as option.
func (a *shieldClient) setup(cfg types.Config) error {
	if cfg.MerkleTreeLevels <= 0 {
		cfg.MerkleTreeLevels = merkletree.DefaultLevels
	}
	if cfg.IndexerPollInterval <= 0 {
		cfg.IndexerPollInterval = 10 * time.Second
	}

	if a.ledger == nil {
		ledger, err := rpcledger.NewLedger(cfg.RpcURL)
		if err != nil {
			return fmt.Errorf("failed to setup ledger: %s", err)
		}
		a.ledger = ledger
	}
	if a.relayer == nil && cfg.RelayerURL != "" {
		relayerSvc, err := rest.NewClient(cfg.RelayerURL)
		if err != nil {
			return fmt.Errorf("failed to setup relayer: %s", err)
		}
		a.relayer = relayerSvc
	}
	if a.prover == nil && cfg.ProverURL != "" {
		proverSvc, err := remote.NewProver(cfg.ProverURL, a.proverTimeout)
		if err != nil {
			return fmt.Errorf("failed to setup prover: %s", err)
		}
		a.prover = proverSvc
	}

	indexerOpts := append([]indexer.Option{indexer.WithMetrics(a.metrics)}, a.indexerOpts...)
	indexerSvc, err := indexer.New(a.ledger, cfg, indexerOpts...)
	if err != nil {
		return fmt.Errorf("failed to setup indexer: %s", err)
	}
	engine, err := balance.NewEngine(a.hasher, a.ledger, cfg, balance.WithMetrics(a.metrics))
	if err != nil {
		return fmt.Errorf("failed to setup balance engine: %s", err)
	}
	a.Config = &cfg
	a.indexer = indexerSvc
	a.engine = engine
	return nil
}

func (a *shieldClient) GetVersion() string {
	return Version
}

func (a *shieldClient) GetConfigData(_ context.Context) (*types.Config, error) {
	if a.Config == nil {
		return nil, ErrNotInitialized
	}
	cfg := *a.Config
	return &cfg, nil
}

func (a *shieldClient) Init(ctx context.Context, args InitArgs) error {
	if a.Config != nil {
		return ErrAlreadyInitialized
	}
	if len(args.Password) <= 0 {
		return fmt.Errorf("missing password")
	}

	var (
		keypair *utxo.Keypair
		err     error
	)
	switch {
	case args.PrivateKey != "":
		keypair, err = utxo.ImportKeypair(a.hasher, args.PrivateKey)
	case len(args.Seed) > 0:
		keypair, err = utxo.NewKeypairFromSeed(a.hasher, args.Seed)
	default:
		keypair, err = utxo.NewKeypair(a.hasher)
	}
	if err != nil {
		return fmt.Errorf("failed to create shielded keypair: %w", err)
	}
	exported, err := keypair.Export()
	if err != nil {
		return err
	}
	encrypted, err := utils.EncryptAES256([]byte(exported), []byte(args.Password))
	if err != nil {
		return fmt.Errorf("failed to encrypt keypair: %w", err)
	}

	if err := a.setup(args.Config); err != nil {
		return err
	}
	if err := a.store.ConfigStore().AddData(ctx, types.StoredConfig{
		Config:           *a.Config,
		EncryptedKeypair: hex.EncodeToString(encrypted),
	}); err != nil {
		a.Config = nil
		return err
	}
	return nil
}

func (a *shieldClient) IsLocked(_ context.Context) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.keypair == nil
}

// Unlock decrypts the keypair and restores the balance and the tree mirror
// from the store. The next sync rescans every stored transaction.
func (a *shieldClient) Unlock(ctx context.Context, password string) error {
	if a.Config == nil {
		return ErrNotInitialized
	}
	if !a.IsLocked(ctx) {
		return nil
	}

	cfgData, err := a.store.ConfigStore().GetData(ctx)
	if err != nil {
		return err
	}
	if cfgData == nil {
		return ErrNotInitialized
	}
	encrypted, err := hex.DecodeString(cfgData.EncryptedKeypair)
	if err != nil {
		return fmt.Errorf("invalid stored keypair: %w", err)
	}
	exported, err := utils.DecryptAES256(encrypted, []byte(password))
	if err != nil {
		return ErrInvalidPassword
	}
	keypair, err := utxo.ImportKeypair(a.hasher, string(exported))
	if err != nil {
		return err
	}

	spendable, spent, err := a.store.UtxoStore().GetAllUtxos(ctx)
	if err != nil {
		return err
	}
	bal := balance.New()
	if err := bal.Restore(a.hasher, keypair, append(spendable, spent...)); err != nil {
		return fmt.Errorf("failed to restore balance: %w", err)
	}

	txs, err := a.store.TransactionStore().GetAllTransactions(ctx)
	if err != nil {
		return err
	}
	prefix, _ := merkletree.ContiguousPrefix(txs)
	tree, err := merkletree.BuildFromIndexed(a.hasher, a.MerkleTreeLevels, prefix)
	if err != nil {
		log.WithError(err).Warn("failed to restore merkle tree mirror, starting from scratch")
		if tree, err = merkletree.New(a.hasher, a.MerkleTreeLevels); err != nil {
			return err
		}
	}

	a.mu.Lock()
	a.keypair = keypair
	a.balance = bal
	a.tree = tree
	a.fullScan = true
	a.mu.Unlock()

	if a.withTransactionFeed {
		if a.WsURL != "" {
			listener, err := wslistener.NewListener(a.WsURL, a.MerkleTreeProgramID)
			if err != nil {
				return fmt.Errorf("failed to setup ledger listener: %s", err)
			}
			a.listener = listener
		}
		bgCtx, cancel := context.WithCancel(context.Background())
		a.stopFn = cancel
		go a.listenForShieldedTxs(bgCtx, a.listener)
	}

	log.Debugf("client unlocked, restored %d utxo(s)", len(spendable)+len(spent))
	return nil
}

func (a *shieldClient) Lock(_ context.Context) error {
	if a.Config == nil {
		return ErrNotInitialized
	}
	a.stopBackground()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.keypair = nil
	a.balance = nil
	a.tree = nil
	a.syncListeners.reset()
	return nil
}

func (a *shieldClient) IsSynced(_ context.Context) <-chan types.SyncEvent {
	return a.syncListeners.add()
}

func (a *shieldClient) Address(_ context.Context) (string, error) {
	keypair, err := a.safeCheck()
	if err != nil {
		return "", err
	}
	return keypair.Address(), nil
}

// GetBalance returns a snapshot of the balance as of the last sync.
func (a *shieldClient) GetBalance(_ context.Context) (*balance.Balance, error) {
	if _, err := a.safeCheck(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.balance.Clone(), nil
}

// GetTransactionHistory returns the indexed transactions, newest first.
func (a *shieldClient) GetTransactionHistory(ctx context.Context) ([]types.IndexedTransaction, error) {
	if a.Config == nil {
		return nil, ErrNotInitialized
	}
	history, err := a.store.TransactionStore().GetAllTransactions(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].FirstLeafIndex > history[j].FirstLeafIndex
	})
	return history, nil
}

func (a *shieldClient) GetTransactionEventChannel(_ context.Context) <-chan types.TransactionEvent {
	return a.store.TransactionStore().GetEventChannel()
}

func (a *shieldClient) GetUtxoEventChannel(_ context.Context) <-chan types.UtxoEvent {
	return a.store.UtxoStore().GetEventChannel()
}

// Reset drops every stored data, config included. The client must be
// initialized again.
func (a *shieldClient) Reset(ctx context.Context) {
	a.stopBackground()

	a.mu.Lock()
	a.keypair = nil
	a.balance = nil
	a.tree = nil
	a.mu.Unlock()

	a.syncListeners.reset()
	a.store.Clean(ctx)
	a.Config = nil
}

func (a *shieldClient) Stop() {
	a.stopBackground()

	if a.relayer != nil {
		a.relayer.Close()
	}
	if closer, ok := a.prover.(interface{ Close() }); ok {
		closer.Close()
	}
	a.store.Close()
}

func (a *shieldClient) stopBackground() {
	if a.stopFn != nil {
		a.stopFn()
		a.stopFn = nil
	}
	if a.listener != nil {
		a.listener.Stop()
		a.listener = nil
	}
}

// safeCheck returns the unlocked keypair.
func (a *shieldClient) safeCheck() (*utxo.Keypair, error) {
	if a.Config == nil {
		return nil, ErrNotInitialized
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.keypair == nil {
		return nil, ErrLocked
	}
	return a.keypair, nil
}

type readyListeners struct {
	mu        *sync.Mutex
	listeners []chan types.SyncEvent
	last      *types.SyncEvent
}

func newReadyListeners() *readyListeners {
	return &readyListeners{mu: &sync.Mutex{}}
}

// add returns a channel receiving the outcome of the next sync, or of the
// last one if it succeeded.
func (l *readyListeners) add() <-chan types.SyncEvent {
	ch := make(chan types.SyncEvent, 1)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last != nil && l.last.Synced {
		ch <- *l.last
		close(ch)
		return ch
	}
	l.listeners = append(l.listeners, ch)
	return ch
}

func (l *readyListeners) broadcast(err error) {
	event := types.SyncEvent{Synced: err == nil, Err: err}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = &event
	for _, ch := range l.listeners {
		ch <- event
		close(ch)
	}
	l.listeners = nil
}

func (l *readyListeners) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = nil
}
