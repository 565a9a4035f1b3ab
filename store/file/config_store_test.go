package filestore_test

import (
	"context"
	"testing"

	filestore "github.com/shieldpool/go-sdk/store/file"
	"github.com/shieldpool/go-sdk/types"
	"github.com/stretchr/testify/require"
)

func TestConfigStore(t *testing.T) {
	dirs := map[string]string{
		"file":     t.TempDir(),
		"inmemory": "",
	}
	for name, dir := range dirs {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store, err := filestore.NewConfigStore(dir)
			require.NoError(t, err)
			defer store.Close()
			require.Equal(t, name, store.GetType())
			require.Equal(t, dir, store.GetDatadir())

			data, err := store.GetData(ctx)
			require.NoError(t, err)
			require.Nil(t, data)

			cfg := types.DefaultConfig()
			cfg.AssetMints = nil
			stored := types.StoredConfig{Config: cfg, EncryptedKeypair: "deadbeef"}
			require.NoError(t, store.AddData(ctx, stored))

			data, err = store.GetData(ctx)
			require.NoError(t, err)
			require.NotNil(t, data)
			require.Equal(t, "deadbeef", data.EncryptedKeypair)
			require.Equal(t, cfg.RpcURL, data.RpcURL)
			require.Equal(t, cfg.MerkleTreeProgramID, data.MerkleTreeProgramID)
			require.Equal(t, cfg.VerifierProgramIDs, data.VerifierProgramIDs)
			require.Equal(t, cfg.IndexerPollInterval, data.IndexerPollInterval)
			require.Equal(t, cfg.DecryptionWorkers, data.DecryptionWorkers)
			require.Empty(t, data.AssetMints)

			if dir != "" {
				reopened, err := filestore.NewConfigStore(dir)
				require.NoError(t, err)
				data, err = reopened.GetData(ctx)
				require.NoError(t, err)
				require.NotNil(t, data)
				require.Equal(t, "deadbeef", data.EncryptedKeypair)
			}

			require.NoError(t, store.CleanData(ctx))
			data, err = store.GetData(ctx)
			require.NoError(t, err)
			require.Nil(t, data)
		})
	}
}
