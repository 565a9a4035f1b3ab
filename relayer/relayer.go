// Package relayer defines the client of the relayer service submitting
// shielded transactions on behalf of users.
package relayer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/types"
	"golang.org/x/sync/errgroup"
)

type Client interface {
	// Info fetches the relayer's keys and fees. The result is cached after
	// the first successful call.
	Info(ctx context.Context) (types.Relayer, error)
	GetRelayerFee(ctx context.Context, isAtaCreation bool) (*big.Int, error)
	// SendTransaction relays the instructions as one ledger transaction and
	// returns its signature.
	SendTransaction(ctx context.Context, instructions []solana.Instruction) (string, error)
	SendTransactions(ctx context.Context, batches [][]solana.Instruction) ([]string, error)
	GetIndexedTransactions(ctx context.Context) ([]types.IndexedTransaction, error)
	Close()
}

// SendAll submits every batch concurrently with send. All sends run to
// completion; the first error in batch order is returned along with the
// signatures of the batches that succeeded.
func SendAll(
	ctx context.Context, batches [][]solana.Instruction,
	send func(context.Context, []solana.Instruction) (string, error),
) ([]string, error) {
	signatures := make([]string, len(batches))
	errs := make([]error, len(batches))

	eg := &errgroup.Group{}
	for i, batch := range batches {
		eg.Go(func() error {
			sig, err := send(ctx, batch)
			if err != nil {
				errs[i] = fmt.Errorf("batch %d: %w", i, err)
				return errs[i]
			}
			signatures[i] = sig
			return nil
		})
	}
	// nolint
	eg.Wait()

	for _, err := range errs {
		if err != nil {
			return signatures, err
		}
	}
	return signatures, nil
}
