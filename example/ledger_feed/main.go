package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	wslistener "github.com/shieldpool/go-sdk/indexer/ws"
	"github.com/shieldpool/go-sdk/types"
)

func main() {
	wsURL := flag.String("url", "ws://127.0.0.1:8900", "Ledger websocket URL")
	program := flag.String("program", types.DefaultMerkleTreeProgramID.String(), "Program to watch")
	flag.Parse()

	programID, err := solana.PublicKeyFromBase58(*program)
	if err != nil {
		log.Fatal(err)
	}
	listener, err := wslistener.NewListener(*wsURL, programID)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("connecting to ledger...")
	if err := listener.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer listener.Stop()

	ch := listener.Subscribe(100)
	go func() {
		for ev := range ch {
			fmt.Printf("RECEIVED TX: %s slot=%d failed=%v\n", ev.Signature, ev.Slot, ev.Failed)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, os.Interrupt)
	<-sigChan
}
