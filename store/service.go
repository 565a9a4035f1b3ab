package store

import (
	"context"
	"fmt"

	filestore "github.com/shieldpool/go-sdk/store/file"
	kvstore "github.com/shieldpool/go-sdk/store/kv"
	sqlstore "github.com/shieldpool/go-sdk/store/sql"
	"github.com/shieldpool/go-sdk/types"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	ConfigStoreType  string
	AppDataStoreType string

	BaseDir string
}

type service struct {
	configStore types.ConfigStore
	txStore     types.TransactionStore
	utxoStore   types.UtxoStore
}

func NewStore(storeConfig Config) (types.Store, error) {
	var (
		configStore types.ConfigStore
		txStore     types.TransactionStore
		utxoStore   types.UtxoStore
		err         error

		dir = storeConfig.BaseDir
	)

	switch storeConfig.ConfigStoreType {
	case types.InMemoryStore:
		configStore, err = filestore.NewConfigStore("")
	case types.FileStore:
		configStore, err = filestore.NewConfigStore(dir)
	default:
		err = fmt.Errorf("unknown config store type")
	}
	if err != nil {
		return nil, err
	}

	if len(storeConfig.AppDataStoreType) > 0 {
		switch storeConfig.AppDataStoreType {
		case types.KVStore:
			logger := kvstore.NewLogger("kv")
			txStore, err = kvstore.NewTransactionStore(dir, logger)
			if err != nil {
				return nil, err
			}
			utxoStore, err = kvstore.NewUtxoStore(dir, logger)
		case types.SQLStore:
			db, dbErr := sqlstore.OpenDb(dir)
			if dbErr != nil {
				return nil, fmt.Errorf("failed to open db: %w", dbErr)
			}
			txStore = sqlstore.NewTransactionStore(db)
			utxoStore = sqlstore.NewUtxoStore(db)
		default:
			err = fmt.Errorf("unknown appdata store type")
		}
		if err != nil {
			return nil, err
		}
	}

	return &service{configStore, txStore, utxoStore}, nil
}

func (s *service) ConfigStore() types.ConfigStore {
	return s.configStore
}

func (s *service) TransactionStore() types.TransactionStore {
	return s.txStore
}

func (s *service) UtxoStore() types.UtxoStore {
	return s.utxoStore
}

func (s *service) Clean(ctx context.Context) {
	if err := s.configStore.CleanData(ctx); err != nil {
		log.WithError(err).Warn("failed to clean config store")
	}
	if s.txStore != nil {
		if err := s.txStore.Clean(ctx); err != nil {
			log.WithError(err).Warn("failed to clean transaction store")
		}
	}
	if s.utxoStore != nil {
		if err := s.utxoStore.Clean(ctx); err != nil {
			log.WithError(err).Warn("failed to clean utxo store")
		}
	}
}

func (s *service) Close() {
	s.configStore.Close()
	if s.txStore != nil {
		s.txStore.Close()
	}
	if s.utxoStore != nil {
		s.utxoStore.Close()
	}
}
