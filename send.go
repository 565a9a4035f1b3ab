package shieldsdk

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/balance"
	"github.com/shieldpool/go-sdk/coinselect"
	"github.com/shieldpool/go-sdk/transaction"
	"github.com/shieldpool/go-sdk/txparams"
	"github.com/shieldpool/go-sdk/types"
	"github.com/shieldpool/go-sdk/utxo"
	"github.com/shieldpool/go-sdk/verifier"
	log "github.com/sirupsen/logrus"
)

type submitFunc func(ctx context.Context, tx *transaction.Transaction) (string, error)

func (a *shieldClient) Shield(ctx context.Context, args ShieldArgs) (string, error) {
	keypair, err := a.safeCheck()
	if err != nil {
		return "", err
	}
	if len(a.payer) == 0 {
		return "", ErrMissingPayer
	}
	amountSol, amountSpl := orZero(args.AmountSol), orZero(args.AmountSpl)
	if amountSol.Sign() <= 0 && amountSpl.Sign() <= 0 {
		return "", fmt.Errorf("missing amount to shield")
	}

	recipient := keypair
	if args.Recipient != "" {
		if recipient, err = utxo.ParseAddress(args.Recipient); err != nil {
			return "", fmt.Errorf("invalid recipient: %w", err)
		}
	}
	v, err := verifier.FromConfig(*a.Config)
	if err != nil {
		return "", err
	}

	payer := a.payer.PublicKey()
	var senderSpl solana.PublicKey
	if amountSpl.Sign() > 0 {
		if senderSpl, _, err = solana.FindAssociatedTokenAddress(payer, args.Token); err != nil {
			return "", fmt.Errorf("failed to derive token account: %w", err)
		}
	}

	outputs, err := coinselect.BuildOutputUtxos(a.hasher, coinselect.OutputArgs{
		Action:      types.ActionShield,
		AmountSol:   amountSol,
		AmountSpl:   amountSpl,
		SplAsset:    args.Token,
		Recipient:   recipient,
		ChangeOwner: keypair,
		MaxOutputs:  v.NrOutputs,
	})
	if err != nil {
		return "", err
	}

	return a.send(ctx, keypair, a.submitSigned, func() (*txparams.TransactionParameters, error) {
		return txparams.New(a.paramsArgs(txparams.Args{
			Outputs:     outputs,
			Action:      types.ActionShield,
			Verifier:    v,
			Payer:       payer,
			LookupTable: a.LookupTable,
			SenderSol:   payer,
			SenderSpl:   senderSpl,
		}))
	})
}

func (a *shieldClient) Unshield(ctx context.Context, args UnshieldArgs) (string, error) {
	keypair, err := a.safeCheck()
	if err != nil {
		return "", err
	}
	if a.relayer == nil {
		return "", fmt.Errorf("missing relayer")
	}
	amountSol, amountSpl := orZero(args.AmountSol), orZero(args.AmountSpl)
	if amountSol.Sign() <= 0 && amountSpl.Sign() <= 0 {
		return "", fmt.Errorf("missing amount to unshield")
	}
	if args.Recipient.IsZero() {
		return "", fmt.Errorf("missing recipient")
	}

	var (
		recipientSol  solana.PublicKey
		recipientSpl  solana.PublicKey
		isAtaCreation bool
	)
	if amountSol.Sign() > 0 {
		recipientSol = args.Recipient
	}
	if amountSpl.Sign() > 0 {
		if recipientSpl, _, err = solana.FindAssociatedTokenAddress(args.Recipient, args.Token); err != nil {
			return "", fmt.Errorf("failed to derive token account: %w", err)
		}
		exist, err := a.ledger.AccountsExist(ctx, []solana.PublicKey{recipientSpl})
		if err != nil {
			return "", fmt.Errorf("failed to check recipient token account: %w", err)
		}
		isAtaCreation = len(exist) == 1 && !exist[0]
	}

	relayerInfo, err := a.relayerFor(ctx, isAtaCreation)
	if err != nil {
		return "", err
	}
	inputs, v, err := a.selectInputs(amountSol, args.Token, amountSpl, relayerInfo.Fee)
	if err != nil {
		return "", err
	}
	outputs, err := coinselect.BuildOutputUtxos(a.hasher, coinselect.OutputArgs{
		Action:      types.ActionUnshield,
		Inputs:      inputs,
		AmountSol:   amountSol,
		AmountSpl:   amountSpl,
		SplAsset:    args.Token,
		ChangeOwner: keypair,
		RelayerFee:  relayerInfo.Fee,
		MaxOutputs:  v.NrOutputs,
	})
	if err != nil {
		return "", err
	}

	return a.send(ctx, keypair, a.submitRelayed, func() (*txparams.TransactionParameters, error) {
		return txparams.New(a.paramsArgs(txparams.Args{
			Inputs:       inputs,
			Outputs:      outputs,
			Action:       types.ActionUnshield,
			Verifier:     v,
			Relayer:      relayerInfo,
			RecipientSol: recipientSol,
			RecipientSpl: recipientSpl,
		}))
	})
}

func (a *shieldClient) Transfer(ctx context.Context, args TransferArgs) (string, error) {
	keypair, err := a.safeCheck()
	if err != nil {
		return "", err
	}
	if a.relayer == nil {
		return "", fmt.Errorf("missing relayer")
	}
	recipient, err := utxo.ParseAddress(args.Recipient)
	if err != nil {
		return "", fmt.Errorf("invalid recipient: %w", err)
	}
	amountSol, amountSpl := orZero(args.AmountSol), orZero(args.AmountSpl)
	if amountSol.Sign() <= 0 && amountSpl.Sign() <= 0 {
		return "", fmt.Errorf("missing amount to transfer")
	}

	relayerInfo, err := a.relayerFor(ctx, false)
	if err != nil {
		return "", err
	}
	inputs, v, err := a.selectInputs(amountSol, args.Token, amountSpl, relayerInfo.Fee)
	if err != nil {
		return "", err
	}
	outputs, err := coinselect.BuildOutputUtxos(a.hasher, coinselect.OutputArgs{
		Action:      types.ActionTransfer,
		Inputs:      inputs,
		AmountSol:   amountSol,
		AmountSpl:   amountSpl,
		SplAsset:    args.Token,
		Recipient:   recipient,
		ChangeOwner: keypair,
		RelayerFee:  relayerInfo.Fee,
		MaxOutputs:  v.NrOutputs,
	})
	if err != nil {
		return "", err
	}

	return a.send(ctx, keypair, a.submitRelayed, func() (*txparams.TransactionParameters, error) {
		return txparams.New(a.paramsArgs(txparams.Args{
			Inputs:   inputs,
			Outputs:  outputs,
			Action:   types.ActionTransfer,
			Verifier: v,
			Relayer:  relayerInfo,
		}))
	})
}

// MergeUtxos spends the inbox utxos of asset, largest first, then the
// spendable utxos of the same bucket, into one utxo of the local keypair
// through the verifier taking the most inputs. SPL merges fill the slots
// left with native utxos to pay the relayer.
func (a *shieldClient) MergeUtxos(ctx context.Context, asset solana.PublicKey) (string, error) {
	keypair, err := a.safeCheck()
	if err != nil {
		return "", err
	}
	if a.relayer == nil {
		return "", fmt.Errorf("missing relayer")
	}
	if asset.IsZero() {
		asset = solana.SystemProgramID
	}
	v, err := verifier.ByKind(*a.Config, types.VerifierOne)
	if err != nil {
		return "", err
	}

	inputs, err := a.mergeInputs(asset, v.NrInputs)
	if err != nil {
		return "", err
	}
	relayerInfo, err := a.relayerFor(ctx, false)
	if err != nil {
		return "", err
	}
	var splAsset solana.PublicKey
	if !asset.Equals(solana.SystemProgramID) {
		splAsset = asset
	}
	outputs, err := coinselect.BuildOutputUtxos(a.hasher, coinselect.OutputArgs{
		Action:      types.ActionTransfer,
		Inputs:      inputs,
		SplAsset:    splAsset,
		ChangeOwner: keypair,
		RelayerFee:  relayerInfo.Fee,
		MaxOutputs:  v.NrOutputs,
	})
	if err != nil {
		return "", err
	}

	return a.send(ctx, keypair, a.submitRelayed, func() (*txparams.TransactionParameters, error) {
		return txparams.New(a.paramsArgs(txparams.Args{
			Inputs:   inputs,
			Outputs:  outputs,
			Action:   types.ActionTransfer,
			Verifier: v,
			Relayer:  relayerInfo,
		}))
	})
}

func (a *shieldClient) mergeInputs(asset solana.PublicKey, maxInputs int) ([]*utxo.Utxo, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.balance == nil {
		return nil, ErrLocked
	}
	tb := a.balance.Token(asset)
	if tb == nil || len(tb.Inbox) == 0 {
		return nil, ErrEmptyInbox
	}

	inputs := sortedUtxos(tb.Inbox, func(x, y *utxo.Utxo) bool {
		return x.Amount(asset).Cmp(y.Amount(asset)) > 0
	})
	inputs = append(inputs, sortedUtxos(tb.Spendable, byIndex)...)
	if !asset.Equals(solana.SystemProgramID) {
		if native := a.balance.Token(solana.SystemProgramID); native != nil {
			inputs = append(inputs, sortedUtxos(native.Spendable, byIndex)...)
		}
	}
	if len(inputs) > maxInputs {
		inputs = inputs[:maxInputs]
	}
	return inputs, nil
}

func sortedUtxos(set map[string]*utxo.Utxo, less func(x, y *utxo.Utxo) bool) []*utxo.Utxo {
	out := make([]*utxo.Utxo, 0, len(set))
	for _, u := range set {
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if less(out[i], out[j]) {
			return true
		}
		if less(out[j], out[i]) {
			return false
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

func byIndex(x, y *utxo.Utxo) bool {
	if x.Index == nil || y.Index == nil {
		return x.Index != nil && y.Index == nil
	}
	return *x.Index < *y.Index
}

// send proves and submits the parameters built by build. When the tree
// mirror turns out stale the mirror is rebuilt and the proof retried once.
func (a *shieldClient) send(
	ctx context.Context, keypair *utxo.Keypair, submit submitFunc,
	build func() (*txparams.TransactionParameters, error),
) (string, error) {
	params, err := build()
	if err != nil {
		return "", err
	}
	action := params.Action.String()

	tx, err := a.prove(ctx, params)
	if err != nil && transaction.IsStale(err) {
		log.WithError(err).Warnf("%s: merkle tree mirror is stale, refreshing it", action)
		if err := a.syncHistory(ctx, true); err != nil {
			return "", fmt.Errorf("failed to refresh merkle tree mirror: %w", err)
		}
		tx, err = a.prove(ctx, params)
		if err != nil && transaction.IsStale(err) {
			return "", StaleTreeError{Action: action, Err: err}
		}
	}
	if err != nil {
		return "", err
	}

	signature, err := submit(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("failed to submit %s: %w", strings.ToLower(action), err)
	}
	if err := a.addPending(ctx, keypair, tx.Outputs()); err != nil {
		log.WithError(err).Warn("failed to record pending utxos")
	}
	log.Infof("%s submitted: %s", strings.ToLower(action), signature)
	return signature, nil
}

func (a *shieldClient) prove(
	ctx context.Context, params *txparams.TransactionParameters,
) (*transaction.Transaction, error) {
	// the tree mirror must not move between compilation and root lookup
	a.mu.RLock()
	if a.tree == nil {
		a.mu.RUnlock()
		return nil, ErrLocked
	}
	tx, err := transaction.New(
		params, a.tree, a.prover,
		transaction.WithVerifier(a.proofVerifier),
		transaction.WithConfig(*a.Config),
		transaction.WithLogger(log.WithField("action", params.Action.String())),
	)
	if err == nil {
		_, err = tx.Compile()
	}
	if err == nil {
		_, err = tx.GetRootIndex(ctx, a.ledger, a.MerkleTreeAccount)
	}
	a.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if _, err := tx.GetProof(ctx); err != nil {
		return nil, err
	}
	a.metrics.ObserveProof(start)
	return tx, nil
}

// submitSigned sends the instructions one per ledger transaction, signed
// and paid by the payer.
func (a *shieldClient) submitSigned(ctx context.Context, tx *transaction.Transaction) (string, error) {
	signer := a.payer.PublicKey()
	instructions, err := tx.Instructions(signer)
	if err != nil {
		return "", err
	}

	var signature string
	for i, ix := range instructions {
		blockhash, err := a.ledger.GetLatestBlockhash(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to get blockhash: %w", err)
		}
		ledgerTx, err := solana.NewTransaction(
			[]solana.Instruction{ix}, blockhash, solana.TransactionPayer(signer),
		)
		if err != nil {
			return "", err
		}
		if _, err := ledgerTx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
			if key.Equals(signer) {
				return &a.payer
			}
			return nil
		}); err != nil {
			return "", fmt.Errorf("failed to sign transaction: %w", err)
		}
		if signature, err = a.ledger.SendTransaction(ctx, ledgerTx); err != nil {
			return "", fmt.Errorf("instruction %d: %w", i, err)
		}
	}
	return signature, nil
}

func (a *shieldClient) submitRelayed(ctx context.Context, tx *transaction.Transaction) (string, error) {
	instructions, err := tx.Instructions(tx.Params().Relayer.Pubkey)
	if err != nil {
		return "", err
	}
	return a.relayer.SendTransaction(ctx, instructions)
}

// addPending records the outputs owned by keypair as committed until the
// next sync sees them in the tree.
func (a *shieldClient) addPending(ctx context.Context, keypair *utxo.Keypair, outputs []*utxo.Utxo) error {
	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	owned := make([]*utxo.Utxo, 0, len(outputs))
	for _, out := range outputs {
		if out.IsEmpty() || out.Keypair.PublicKey.Cmp(keypair.PublicKey) != 0 {
			continue
		}
		owned = append(owned, out)
	}
	if len(owned) == 0 {
		return nil
	}

	a.mu.Lock()
	if a.balance != nil && a.keypair == keypair {
		a.balance.AddCommitted(owned...)
	}
	a.mu.Unlock()

	pending := make([]types.ShieldedUtxo, 0, len(owned))
	for _, u := range owned {
		pending = append(pending, balance.ToShieldedUtxo(u, types.UtxoCommitted))
	}
	_, err := a.store.UtxoStore().AddUtxos(ctx, pending)
	return err
}

func (a *shieldClient) relayerFor(ctx context.Context, isAtaCreation bool) (*types.Relayer, error) {
	info, err := a.relayer.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get relayer info: %w", err)
	}
	fee, err := a.relayer.GetRelayerFee(ctx, isAtaCreation)
	if err != nil {
		return nil, fmt.Errorf("failed to get relayer fee: %w", err)
	}
	info.Fee = fee
	return &info, nil
}

// selectInputs picks the spendable utxos covering the amounts plus the fee,
// and the smallest verifier able to spend them.
func (a *shieldClient) selectInputs(
	amountSol *big.Int, token solana.PublicKey, amountSpl, fee *big.Int,
) ([]*utxo.Utxo, verifier.Verifier, error) {
	a.mu.RLock()
	if a.balance == nil {
		a.mu.RUnlock()
		return nil, verifier.Verifier{}, ErrLocked
	}
	available := a.balance.SpendableUtxos()
	a.mu.RUnlock()

	targets := []coinselect.Target{{
		Asset:  solana.SystemProgramID,
		Amount: new(big.Int).Add(amountSol, orZero(fee)),
	}}
	if amountSpl.Sign() > 0 {
		targets = append(targets, coinselect.Target{Asset: token, Amount: amountSpl})
	}

	maxInputs := 0
	for _, kind := range []string{types.VerifierZero, types.VerifierOne} {
		if v, err := verifier.ByKind(*a.Config, kind); err == nil && v.NrInputs > maxInputs {
			maxInputs = v.NrInputs
		}
	}
	inputs, err := coinselect.SelectInUtxos(available, targets, maxInputs)
	if err != nil {
		return nil, verifier.Verifier{}, err
	}
	v, err := verifier.ForInputs(*a.Config, len(inputs))
	if err != nil {
		return nil, verifier.Verifier{}, err
	}
	return inputs, v, nil
}

// paramsArgs fills the fields every action shares.
func (a *shieldClient) paramsArgs(args txparams.Args) txparams.Args {
	args.Hasher = a.hasher
	args.MerkleTreeProgramID = a.MerkleTreeProgramID
	args.VerifierZeroProgramID = a.VerifierProgramIDs[types.VerifierZero]
	args.Assets = a.engine.Assets()
	args.Verifiers = a.engine.Verifiers()
	return args
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
