package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/gagliardetto/solana-go"
	shieldsdk "github.com/shieldpool/go-sdk"
	"github.com/shieldpool/go-sdk/config"
	"github.com/shieldpool/go-sdk/store"
	"github.com/shieldpool/go-sdk/types"
	"github.com/shopspring/decimal"
)

const lamportsDecimals = 9

func main() {
	configPath := flag.String("config", "", "Path of the yaml config")
	password := flag.String("password", "", "Wallet password")
	seed := flag.String("seed", "", "Seed of the shielded keypair, used on first run only")
	splDecimals := flag.Int("spl-decimals", 6, "Decimals of the SPL assets held")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	configStoreType := types.FileStore
	if cfg.Datadir == "" {
		configStoreType = types.InMemoryStore
	}
	sdkStore, err := store.NewStore(store.Config{
		ConfigStoreType:  configStoreType,
		AppDataStoreType: cfg.StoreType,
		BaseDir:          cfg.Datadir,
	})
	if err != nil {
		log.Fatal(err)
	}

	client, err := shieldsdk.LoadShieldClient(sdkStore)
	if errors.Is(err, shieldsdk.ErrNotInitialized) {
		if client, err = shieldsdk.NewShieldClient(sdkStore); err == nil {
			err = client.Init(ctx, shieldsdk.InitArgs{
				Config:   cfg,
				Password: *password,
				Seed:     []byte(*seed),
			})
		}
	}
	if err != nil {
		log.Fatal(err)
	}
	defer client.Stop()

	if err := client.Unlock(ctx, *password); err != nil {
		log.Fatal(err)
	}
	address, err := client.Address(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("shielded address: %s\n", address)

	if err := client.SyncHistory(ctx); err != nil {
		log.Fatal(err)
	}
	bal, err := client.GetBalance(ctx)
	if err != nil {
		log.Fatal(err)
	}
	for _, asset := range bal.Assets() {
		decimals := int32(*splDecimals)
		if asset.Equals(solana.SystemProgramID) {
			decimals = lamportsDecimals
		}
		token := bal.Token(asset)
		fmt.Printf(
			"%s: %s spendable (%d utxos), %s in inbox (%d utxos), %d pending\n",
			asset, bal.Decimal(asset, decimals),
			len(token.Spendable),
			decimal.NewFromBigInt(bal.TotalInbox(asset), -decimals),
			len(token.Inbox), len(token.Committed),
		)
	}
}
