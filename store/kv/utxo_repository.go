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
	utxoStoreDir = "utxos"
)

type utxoStore struct {
	db      *badgerhold.Store
	lock    *sync.Mutex
	eventCh chan types.UtxoEvent
}

func NewUtxoStore(dir string, logger badger.Logger) (types.UtxoStore, error) {
	if dir != "" {
		dir = filepath.Join(dir, utxoStoreDir)
	}
	badgerDb, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open utxo store: %s", err)
	}
	return &utxoStore{
		db:      badgerDb,
		lock:    &sync.Mutex{},
		eventCh: make(chan types.UtxoEvent, 100),
	}, nil
}

func (s *utxoStore) AddUtxos(_ context.Context, utxos []types.ShieldedUtxo) (int, error) {
	addedUtxos := make([]types.ShieldedUtxo, 0, len(utxos))
	for _, utxo := range utxos {
		if utxo.CreatedAt.IsZero() {
			utxo.CreatedAt = time.Now()
		}
		if err := s.db.Insert(utxo.Commitment, &utxo); err != nil {
			if errors.Is(err, badgerhold.ErrKeyExists) {
				continue
			}
			return -1, err
		}
		addedUtxos = append(addedUtxos, utxo)
	}

	if len(addedUtxos) > 0 {
		go s.sendEvent(types.UtxoEvent{Type: types.UtxosAdded, Utxos: addedUtxos})
	}

	return len(addedUtxos), nil
}

func (s *utxoStore) ConfirmUtxos(
	ctx context.Context, indexes map[string]uint64,
) (int, error) {
	commitments := make([]string, 0, len(indexes))
	for commitment := range indexes {
		commitments = append(commitments, commitment)
	}
	utxos, err := s.GetUtxos(ctx, commitments)
	if err != nil {
		return -1, err
	}

	confirmedUtxos := make([]types.ShieldedUtxo, 0, len(utxos))
	for _, utxo := range utxos {
		if utxo.Status != types.UtxoCommitted {
			continue
		}
		utxo.Status = types.UtxoSpendable
		utxo.Index = indexes[utxo.Commitment]

		if err := s.db.Update(utxo.Commitment, &utxo); err != nil {
			return -1, err
		}
		confirmedUtxos = append(confirmedUtxos, utxo)
	}

	if len(confirmedUtxos) > 0 {
		go s.sendEvent(types.UtxoEvent{Type: types.UtxosConfirmed, Utxos: confirmedUtxos})
	}

	return len(confirmedUtxos), nil
}

func (s *utxoStore) SpendUtxos(
	ctx context.Context, spentUtxoMap map[string]string,
) (int, error) {
	commitments := make([]string, 0, len(spentUtxoMap))
	for commitment := range spentUtxoMap {
		commitments = append(commitments, commitment)
	}
	utxos, err := s.GetUtxos(ctx, commitments)
	if err != nil {
		return -1, err
	}

	spentUtxos := make([]types.ShieldedUtxo, 0, len(utxos))
	for _, utxo := range utxos {
		if utxo.Status == types.UtxoSpent {
			continue
		}
		utxo.Status = types.UtxoSpent
		utxo.SpentBy = spentUtxoMap[utxo.Commitment]

		if err := s.db.Update(utxo.Commitment, &utxo); err != nil {
			return -1, err
		}
		spentUtxos = append(spentUtxos, utxo)
	}

	if len(spentUtxos) > 0 {
		go s.sendEvent(types.UtxoEvent{Type: types.UtxosSpent, Utxos: spentUtxos})
	}

	return len(spentUtxos), nil
}

// GetAllUtxos returns the unspent utxos, committed ones included, and the
// spent ones, each sorted by leaf index.
func (s *utxoStore) GetAllUtxos(
	_ context.Context,
) (spendable, spent []types.ShieldedUtxo, err error) {
	var allUtxos []types.ShieldedUtxo
	if err := s.db.Find(&allUtxos, nil); err != nil {
		return nil, nil, err
	}
	sort.SliceStable(allUtxos, func(i, j int) bool {
		return allUtxos[i].Index < allUtxos[j].Index
	})

	for _, utxo := range allUtxos {
		if utxo.Status == types.UtxoSpent {
			spent = append(spent, utxo)
		} else {
			spendable = append(spendable, utxo)
		}
	}
	return
}

func (s *utxoStore) GetUtxos(
	_ context.Context, commitments []string,
) ([]types.ShieldedUtxo, error) {
	var utxos []types.ShieldedUtxo
	for _, commitment := range commitments {
		var utxo types.ShieldedUtxo
		if err := s.db.Get(commitment, &utxo); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				continue
			}

			return nil, err
		}
		utxos = append(utxos, utxo)
	}

	return utxos, nil
}

func (s *utxoStore) GetEventChannel() <-chan types.UtxoEvent {
	return s.eventCh
}

func (s *utxoStore) Clean(_ context.Context) error {
	if err := s.db.Badger().DropAll(); err != nil {
		return fmt.Errorf("failed to clean the utxo db: %s", err)
	}
	return nil
}

func (s *utxoStore) Close() {
	if err := s.db.Close(); err != nil {
		log.Debugf("error on closing db: %s", err)
	}
}

func (s *utxoStore) sendEvent(event types.UtxoEvent) {
	s.lock.Lock()
	defer s.lock.Unlock()

	select {
	case s.eventCh <- event:
		return
	default:
		time.Sleep(100 * time.Millisecond)
	}
}
