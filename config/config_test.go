package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shieldpool/go-sdk/config"
	"github.com/shieldpool/go-sdk/types"
	"github.com/stretchr/testify/require"
)

const yamlConfig = `
network: devnet
rpc_url: https://api.devnet.solana.com
verifier: one
merkle_tree_account: DyZnme4h32E66deCvsAV6pVceVw8s6ucRhNcwoofVCem
asset_mints:
  - EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v
decryption_workers: 8
indexer_poll_interval: 30s
store_type: sql
`

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := config.Load("")
		require.NoError(t, err)
		def := types.DefaultConfig()
		require.Equal(t, def.RpcURL, cfg.RpcURL)
		require.Equal(t, def.VerifierProgramIDs, cfg.VerifierProgramIDs)
		require.Equal(t, def.MerkleTreeProgramID, cfg.MerkleTreeProgramID)
		require.Equal(t, def.IndexerPollInterval, cfg.IndexerPollInterval)
		require.True(t, cfg.MerkleTreeAccount.IsZero())
	})

	t.Run("file and env", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(yamlConfig), 0o600))
		t.Setenv("SHIELD_RPC_URL", "http://localhost:9999")

		cfg, err := config.Load(path)
		require.NoError(t, err)
		require.Equal(t, "devnet", cfg.Network)
		require.Equal(t, "http://localhost:9999", cfg.RpcURL)
		require.Equal(t, types.VerifierOne, cfg.VerifierKind)
		require.Equal(t, "DyZnme4h32E66deCvsAV6pVceVw8s6ucRhNcwoofVCem", cfg.MerkleTreeAccount.String())
		require.Len(t, cfg.AssetMints, 1)
		require.Equal(t, 8, cfg.DecryptionWorkers)
		require.Equal(t, 30*time.Second, cfg.IndexerPollInterval)
		require.Equal(t, types.SQLStore, cfg.StoreType)
	})

	t.Run("invalid", func(t *testing.T) {
		tests := []struct {
			name string
			yaml string
		}{
			{"unknown verifier", "verifier: nope\n"},
			{"bad key", "noop_program_id: notakey\n"},
			{"bad levels", "merkle_tree_levels: 0\n"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				path := filepath.Join(t.TempDir(), "config.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))
				_, err := config.Load(path)
				require.Error(t, err)
			})
		}
	})
}
