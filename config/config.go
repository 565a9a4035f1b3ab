// Package config loads the client configuration from a yaml file and
// SHIELD_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/types"
	"github.com/spf13/viper"
)

const envPrefix = "SHIELD"

const (
	Network             = "network"
	RpcURL              = "rpc_url"
	WsURL               = "ws_url"
	RelayerURL          = "relayer_url"
	ProverURL           = "prover_url"
	Verifier            = "verifier"
	VerifierPrograms    = "verifier_programs"
	MerkleTreeProgramID = "merkle_tree_program_id"
	MerkleTreeAccount   = "merkle_tree_account"
	NoopProgramID       = "noop_program_id"
	LookupTable         = "lookup_table"
	AssetMints          = "asset_mints"
	MerkleTreeLevels    = "merkle_tree_levels"
	DecryptionWorkers   = "decryption_workers"
	IndexerPollInterval = "indexer_poll_interval"
	Datadir             = "datadir"
	StoreType           = "store_type"
)

// Load reads the config at path, if any, on top of the protocol defaults.
// Environment variables take precedence, eg. SHIELD_RPC_URL.
func Load(path string) (types.Config, error) {
	v := viper.New()
	setDefaults(v, types.DefaultConfig())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return types.Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper, cfg types.Config) {
	v.SetDefault(Network, cfg.Network)
	v.SetDefault(RpcURL, cfg.RpcURL)
	v.SetDefault(WsURL, cfg.WsURL)
	v.SetDefault(RelayerURL, cfg.RelayerURL)
	v.SetDefault(ProverURL, cfg.ProverURL)
	v.SetDefault(Verifier, cfg.VerifierKind)
	for kind, id := range cfg.VerifierProgramIDs {
		v.SetDefault(VerifierPrograms+"."+kind, id.String())
	}
	v.SetDefault(MerkleTreeProgramID, cfg.MerkleTreeProgramID.String())
	v.SetDefault(MerkleTreeAccount, "")
	v.SetDefault(NoopProgramID, cfg.NoopProgramID.String())
	v.SetDefault(LookupTable, "")
	v.SetDefault(AssetMints, []string{})
	v.SetDefault(MerkleTreeLevels, cfg.MerkleTreeLevels)
	v.SetDefault(DecryptionWorkers, cfg.DecryptionWorkers)
	v.SetDefault(IndexerPollInterval, cfg.IndexerPollInterval)
	v.SetDefault(Datadir, cfg.Datadir)
	v.SetDefault(StoreType, cfg.StoreType)
}

func fromViper(v *viper.Viper) (types.Config, error) {
	cfg := types.Config{
		Network:             v.GetString(Network),
		RpcURL:              v.GetString(RpcURL),
		WsURL:               v.GetString(WsURL),
		RelayerURL:          v.GetString(RelayerURL),
		ProverURL:           v.GetString(ProverURL),
		VerifierKind:        v.GetString(Verifier),
		VerifierProgramIDs:  make(map[string]solana.PublicKey),
		MerkleTreeLevels:    v.GetInt(MerkleTreeLevels),
		DecryptionWorkers:   v.GetInt(DecryptionWorkers),
		IndexerPollInterval: v.GetDuration(IndexerPollInterval),
		Datadir:             v.GetString(Datadir),
		StoreType:           v.GetString(StoreType),
	}

	for _, kind := range []string{types.VerifierZero, types.VerifierOne, types.VerifierStorage} {
		id := v.GetString(VerifierPrograms + "." + kind)
		if id == "" {
			continue
		}
		key, err := solana.PublicKeyFromBase58(id)
		if err != nil {
			return types.Config{}, fmt.Errorf("invalid %s verifier program: %w", kind, err)
		}
		cfg.VerifierProgramIDs[kind] = key
	}
	if _, err := cfg.VerifierProgramID(); err != nil {
		return types.Config{}, err
	}

	keys := []struct {
		name string
		dst  *solana.PublicKey
	}{
		{MerkleTreeProgramID, &cfg.MerkleTreeProgramID},
		{MerkleTreeAccount, &cfg.MerkleTreeAccount},
		{NoopProgramID, &cfg.NoopProgramID},
		{LookupTable, &cfg.LookupTable},
	}
	for _, k := range keys {
		value := v.GetString(k.name)
		if value == "" {
			continue
		}
		key, err := solana.PublicKeyFromBase58(value)
		if err != nil {
			return types.Config{}, fmt.Errorf("invalid %s: %w", k.name, err)
		}
		*k.dst = key
	}

	for _, mint := range v.GetStringSlice(AssetMints) {
		key, err := solana.PublicKeyFromBase58(mint)
		if err != nil {
			return types.Config{}, fmt.Errorf("invalid asset mint %s: %w", mint, err)
		}
		cfg.AssetMints = append(cfg.AssetMints, key)
	}

	if cfg.MerkleTreeLevels <= 0 {
		return types.Config{}, fmt.Errorf("invalid %s: %d", MerkleTreeLevels, cfg.MerkleTreeLevels)
	}
	return cfg, nil
}
