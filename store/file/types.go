package filestore

import (
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/types"
)

type storeData struct {
	Network             string            `json:"network"`
	RpcURL              string            `json:"rpc_url"`
	WsURL               string            `json:"ws_url"`
	RelayerURL          string            `json:"relayer_url"`
	ProverURL           string            `json:"prover_url"`
	VerifierKind        string            `json:"verifier_kind"`
	VerifierProgramIDs  map[string]string `json:"verifier_program_ids"`
	MerkleTreeProgramID string            `json:"merkle_tree_program_id"`
	MerkleTreeAccount   string            `json:"merkle_tree_account"`
	NoopProgramID       string            `json:"noop_program_id"`
	LookupTable         string            `json:"lookup_table"`
	AssetMints          string            `json:"asset_mints"`
	MerkleTreeLevels    string            `json:"merkle_tree_levels"`
	DecryptionWorkers   string            `json:"decryption_workers"`
	IndexerPollInterval string            `json:"indexer_poll_interval"`
	Datadir             string            `json:"datadir"`
	StoreType           string            `json:"store_type"`
	EncryptedKeypair    string            `json:"encrypted_keypair"`
}

func (d storeData) isEmpty() bool {
	if d.RpcURL == "" &&
		d.EncryptedKeypair == "" {
		return true
	}

	return false
}

func parseKey(s string) solana.PublicKey {
	// nolint
	key, _ := solana.PublicKeyFromBase58(s)
	return key
}

func formatKey(key solana.PublicKey) string {
	if key.IsZero() {
		return ""
	}
	return key.String()
}

func (d storeData) decode() types.StoredConfig {
	verifiers := make(map[string]solana.PublicKey, len(d.VerifierProgramIDs))
	for kind, id := range d.VerifierProgramIDs {
		verifiers[kind] = parseKey(id)
	}
	mints := make([]solana.PublicKey, 0)
	for _, m := range strings.Split(d.AssetMints, ",") {
		if m != "" {
			mints = append(mints, parseKey(m))
		}
	}
	levels, _ := strconv.Atoi(d.MerkleTreeLevels)
	workers, _ := strconv.Atoi(d.DecryptionWorkers)
	pollInterval, _ := strconv.Atoi(d.IndexerPollInterval)

	return types.StoredConfig{
		Config: types.Config{
			Network:             d.Network,
			RpcURL:              d.RpcURL,
			WsURL:               d.WsURL,
			RelayerURL:          d.RelayerURL,
			ProverURL:           d.ProverURL,
			VerifierKind:        d.VerifierKind,
			VerifierProgramIDs:  verifiers,
			MerkleTreeProgramID: parseKey(d.MerkleTreeProgramID),
			MerkleTreeAccount:   parseKey(d.MerkleTreeAccount),
			NoopProgramID:       parseKey(d.NoopProgramID),
			LookupTable:         parseKey(d.LookupTable),
			AssetMints:          mints,
			MerkleTreeLevels:    levels,
			DecryptionWorkers:   workers,
			IndexerPollInterval: time.Duration(pollInterval) * time.Second,
			Datadir:             d.Datadir,
			StoreType:           d.StoreType,
		},
		EncryptedKeypair: d.EncryptedKeypair,
	}
}

func encode(data types.StoredConfig) storeData {
	verifiers := make(map[string]string, len(data.VerifierProgramIDs))
	for kind, id := range data.VerifierProgramIDs {
		verifiers[kind] = id.String()
	}
	mints := make([]string, 0, len(data.AssetMints))
	for _, m := range data.AssetMints {
		mints = append(mints, m.String())
	}
	return storeData{
		Network:             data.Network,
		RpcURL:              data.RpcURL,
		WsURL:               data.WsURL,
		RelayerURL:          data.RelayerURL,
		ProverURL:           data.ProverURL,
		VerifierKind:        data.VerifierKind,
		VerifierProgramIDs:  verifiers,
		MerkleTreeProgramID: formatKey(data.MerkleTreeProgramID),
		MerkleTreeAccount:   formatKey(data.MerkleTreeAccount),
		NoopProgramID:       formatKey(data.NoopProgramID),
		LookupTable:         formatKey(data.LookupTable),
		AssetMints:          strings.Join(mints, ","),
		MerkleTreeLevels:    strconv.Itoa(data.MerkleTreeLevels),
		DecryptionWorkers:   strconv.Itoa(data.DecryptionWorkers),
		IndexerPollInterval: strconv.Itoa(int(data.IndexerPollInterval.Seconds())),
		Datadir:             data.Datadir,
		StoreType:           data.StoreType,
		EncryptedKeypair:    data.EncryptedKeypair,
	}
}
