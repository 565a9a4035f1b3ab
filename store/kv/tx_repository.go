package kvstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/shieldpool/go-sdk/types"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

const (
	txStoreDir = "transactions"
)

type txStore struct {
	db      *badgerhold.Store
	lock    *sync.Mutex
	eventCh chan types.TransactionEvent
}

func NewTransactionStore(dir string, logger badger.Logger) (types.TransactionStore, error) {
	if dir != "" {
		dir = filepath.Join(dir, txStoreDir)
	}
	badgerDb, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open transaction store: %s", err)
	}
	return &txStore{
		db:      badgerDb,
		lock:    &sync.Mutex{},
		eventCh: make(chan types.TransactionEvent, 100),
	}, nil
}

func (s *txStore) AddTransactions(_ context.Context, txs []types.IndexedTransaction) (int, error) {
	addedTxs := make([]types.IndexedTransaction, 0, len(txs))
	for _, tx := range txs {
		if err := s.db.Insert(tx.Signature, &tx); err != nil {
			if errors.Is(err, badgerhold.ErrKeyExists) {
				continue
			}
			return -1, err
		}
		addedTxs = append(addedTxs, tx)
	}

	if len(addedTxs) > 0 {
		go s.sendEvent(types.TransactionEvent{Type: types.TxsAdded, Txs: addedTxs})
	}

	return len(addedTxs), nil
}

// GetAllTransactions returns every stored transaction sorted by first leaf
// index.
func (s *txStore) GetAllTransactions(_ context.Context) ([]types.IndexedTransaction, error) {
	var txs []types.IndexedTransaction
	if err := s.db.Find(&txs, nil); err != nil {
		return nil, err
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].FirstLeafIndex < txs[j].FirstLeafIndex
	})
	return txs, nil
}

func (s *txStore) GetTransactions(
	_ context.Context, signatures []string,
) ([]types.IndexedTransaction, error) {
	txs := make([]types.IndexedTransaction, 0, len(signatures))
	for _, signature := range signatures {
		var tx types.IndexedTransaction
		if err := s.db.Get(signature, &tx); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				continue
			}
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (s *txStore) GetLatestTransaction(_ context.Context) (*types.IndexedTransaction, error) {
	var txs []types.IndexedTransaction
	query := (&badgerhold.Query{}).SortBy("FirstLeafIndex").Reverse().Limit(1)
	if err := s.db.Find(&txs, query); err != nil {
		return nil, err
	}
	if len(txs) <= 0 {
		return nil, nil
	}
	return &txs[0], nil
}

func (s *txStore) GetEventChannel() <-chan types.TransactionEvent {
	return s.eventCh
}

func (s *txStore) Clean(_ context.Context) error {
	if err := s.db.Badger().DropAll(); err != nil {
		return fmt.Errorf("failed to clean the transaction db: %s", err)
	}
	return nil
}

func (s *txStore) Close() {
	if err := s.db.Close(); err != nil {
		log.Debugf("error on closing db: %s", err)
	}
}

func (s *txStore) sendEvent(event types.TransactionEvent) {
	s.lock.Lock()
	defer s.lock.Unlock()

	select {
	case s.eventCh <- event:
		return
	default:
		time.Sleep(100 * time.Millisecond)
	}
}
