package rest

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/relayer"
	"github.com/shieldpool/go-sdk/types"
	log "github.com/sirupsen/logrus"
	"resty.dev/v3"
)

const defaultRequestTimeout = 30 * time.Second

type restClient struct {
	serverURL string
	client    *resty.Client

	lock *sync.Mutex
	info *types.Relayer
}

// NewClient creates a REST client for the relayer service.
func NewClient(serverURL string) (relayer.Client, error) {
	if len(serverURL) <= 0 {
		return nil, fmt.Errorf("missing relayer url")
	}
	client := resty.New().
		SetBaseURL(serverURL).
		SetTimeout(defaultRequestTimeout).
		SetHeader("Content-Type", "application/json")
	return &restClient{
		serverURL: serverURL,
		client:    client,
		lock:      &sync.Mutex{},
	}, nil
}

func (c *restClient) Info(ctx context.Context) (types.Relayer, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.info != nil {
		return *c.info, nil
	}

	var result relayerInfo
	var failure errorResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&result).
		SetError(&failure).
		Get("/getRelayerInfo")
	if err := checkResponse(resp, err, &failure); err != nil {
		return types.Relayer{}, fmt.Errorf("failed to get relayer info: %w", err)
	}

	info, err := result.toRelayer(c.serverURL)
	if err != nil {
		return types.Relayer{}, err
	}
	c.info = &info
	return info, nil
}

func (c *restClient) GetRelayerFee(ctx context.Context, isAtaCreation bool) (*big.Int, error) {
	info, err := c.Info(ctx)
	if err != nil {
		return nil, err
	}
	return info.FeeFor(isAtaCreation), nil
}

func (c *restClient) SendTransaction(
	ctx context.Context, instructions []solana.Instruction,
) (string, error) {
	if len(instructions) <= 0 {
		return "", fmt.Errorf("missing instructions")
	}
	req := relayRequest{Instructions: make([]instruction, 0, len(instructions))}
	for _, ix := range instructions {
		encoded, err := toInstruction(ix)
		if err != nil {
			return "", err
		}
		req.Instructions = append(req.Instructions, encoded)
	}

	var result relayResponse
	var failure errorResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&failure).
		Post("/relayTransaction")
	if err := checkResponse(resp, err, &failure); err != nil {
		return "", fmt.Errorf("failed to relay transaction: %w", err)
	}
	if result.Signature == "" {
		return "", fmt.Errorf("relayer returned no signature")
	}
	log.Debugf("relayed transaction %s", result.Signature)
	return result.Signature, nil
}

func (c *restClient) SendTransactions(
	ctx context.Context, batches [][]solana.Instruction,
) ([]string, error) {
	return relayer.SendAll(ctx, batches, c.SendTransaction)
}

// GetIndexedTransactions returns the transactions indexed by the relayer,
// sorted by first leaf index.
func (c *restClient) GetIndexedTransactions(ctx context.Context) ([]types.IndexedTransaction, error) {
	var result []indexedTransaction
	var failure errorResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&result).
		SetError(&failure).
		Get("/indexedTransactions")
	if err := checkResponse(resp, err, &failure); err != nil {
		return nil, fmt.Errorf("failed to get indexed transactions: %w", err)
	}

	txs := make([]types.IndexedTransaction, 0, len(result))
	for _, t := range result {
		tx, err := t.toIndexed()
		if err != nil {
			return nil, fmt.Errorf("invalid indexed transaction %s: %w", t.Signature, err)
		}
		txs = append(txs, tx)
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].FirstLeafIndex < txs[j].FirstLeafIndex
	})
	return txs, nil
}

func (c *restClient) Close() {
	// nolint
	c.client.Close()
}

func checkResponse(resp *resty.Response, err error, failure *errorResponse) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		msg := failure.Error
		if msg == "" {
			msg = resp.String()
		}
		return fmt.Errorf("relayer replied %d: %s", resp.StatusCode(), msg)
	}
	return nil
}
