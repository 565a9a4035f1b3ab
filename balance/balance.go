// Package balance decrypts the leaves of indexed transactions for a keypair
// and tracks the resulting utxos as committed, spendable, received or spent.
package balance

import (
	"maps"
	"math/big"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/utxo"
	"github.com/shopspring/decimal"
)

// TokenBalance holds the utxos of one asset. A commitment is in at most one
// of the four sets. Inbox holds the utxos other users sent, they are left
// out of the spendable total until merged.
type TokenBalance struct {
	Asset     solana.PublicKey
	Spendable map[string]*utxo.Utxo
	Committed map[string]*utxo.Utxo
	Inbox     map[string]*utxo.Utxo
	Spent     map[string]*utxo.Utxo
}

func newTokenBalance(asset solana.PublicKey) *TokenBalance {
	return &TokenBalance{
		Asset:     asset,
		Spendable: make(map[string]*utxo.Utxo),
		Committed: make(map[string]*utxo.Utxo),
		Inbox:     make(map[string]*utxo.Utxo),
		Spent:     make(map[string]*utxo.Utxo),
	}
}

// TotalSpendable sums the spendable amount of the bucket asset.
func (b *TokenBalance) TotalSpendable() *big.Int {
	total := new(big.Int)
	for _, u := range b.Spendable {
		total.Add(total, u.Amount(b.Asset))
	}
	return total
}

func (b *TokenBalance) TotalInbox() *big.Int {
	total := new(big.Int)
	for _, u := range b.Inbox {
		total.Add(total, u.Amount(b.Asset))
	}
	return total
}

// TotalSpendableSol sums the native amount carried by the bucket's
// spendable utxos.
func (b *TokenBalance) TotalSpendableSol() *big.Int {
	total := new(big.Int)
	for _, u := range b.Spendable {
		total.Add(total, u.Amounts[0])
	}
	return total
}

// Balance is owned by a single user context and is not safe for concurrent
// use.
type Balance struct {
	tokens map[solana.PublicKey]*TokenBalance
}

func New() *Balance {
	return &Balance{tokens: make(map[solana.PublicKey]*TokenBalance)}
}

// Clone returns a copy of the balance sharing the immutable utxos.
func (b *Balance) Clone() *Balance {
	out := New()
	for asset, tb := range b.tokens {
		cp := newTokenBalance(asset)
		maps.Copy(cp.Committed, tb.Committed)
		maps.Copy(cp.Spendable, tb.Spendable)
		maps.Copy(cp.Inbox, tb.Inbox)
		maps.Copy(cp.Spent, tb.Spent)
		out.tokens[asset] = cp
	}
	return out
}

// bucketAsset is the SPL asset of a utxo, the native asset if it holds none.
func bucketAsset(u *utxo.Utxo) solana.PublicKey {
	if spl, ok := u.SplAsset(); ok {
		return spl
	}
	return solana.SystemProgramID
}

func (b *Balance) bucket(asset solana.PublicKey) *TokenBalance {
	tb, ok := b.tokens[asset]
	if !ok {
		tb = newTokenBalance(asset)
		b.tokens[asset] = tb
	}
	return tb
}

// Token returns the bucket of asset, nil if the balance never held it.
func (b *Balance) Token(asset solana.PublicKey) *TokenBalance {
	return b.tokens[asset]
}

// Assets lists the held assets, native first.
func (b *Balance) Assets() []solana.PublicKey {
	assets := make([]solana.PublicKey, 0, len(b.tokens))
	for asset := range b.tokens {
		assets = append(assets, asset)
	}
	sort.Slice(assets, func(i, j int) bool {
		if assets[i].Equals(solana.SystemProgramID) {
			return true
		}
		if assets[j].Equals(solana.SystemProgramID) {
			return false
		}
		return assets[i].String() < assets[j].String()
	})
	return assets
}

// AddCommitted records utxos created locally and not yet observed in the
// tree. Already known commitments are ignored.
func (b *Balance) AddCommitted(utxos ...*utxo.Utxo) {
	for _, u := range utxos {
		if u.IsEmpty() {
			continue
		}
		key := u.Key()
		tb := b.bucket(bucketAsset(u))
		if _, ok := tb.Spendable[key]; ok {
			continue
		}
		if _, ok := tb.Inbox[key]; ok {
			continue
		}
		if _, ok := tb.Spent[key]; ok {
			continue
		}
		tb.Committed[key] = u
	}
}

// markSpendable moves a utxo observed in the tree to the spendable set
// unless it is already spent or waiting in the inbox.
func (b *Balance) markSpendable(u *utxo.Utxo) bool {
	key := u.Key()
	tb := b.bucket(bucketAsset(u))
	if _, ok := tb.Spent[key]; ok {
		return false
	}
	if _, ok := tb.Inbox[key]; ok {
		return false
	}
	delete(tb.Committed, key)
	_, known := tb.Spendable[key]
	tb.Spendable[key] = u
	return !known
}

func (b *Balance) markInbox(u *utxo.Utxo) bool {
	key := u.Key()
	tb := b.bucket(bucketAsset(u))
	if _, ok := tb.Spent[key]; ok {
		return false
	}
	if _, ok := tb.Spendable[key]; ok {
		return false
	}
	delete(tb.Committed, key)
	_, known := tb.Inbox[key]
	tb.Inbox[key] = u
	return !known
}

func (b *Balance) markSpent(u *utxo.Utxo) bool {
	key := u.Key()
	tb := b.bucket(bucketAsset(u))
	delete(tb.Committed, key)
	delete(tb.Spendable, key)
	delete(tb.Inbox, key)
	_, known := tb.Spent[key]
	tb.Spent[key] = u
	return !known
}

// Knows reports whether the commitment is already spendable, in the inbox
// or spent.
func (b *Balance) Knows(commitment string) bool {
	for _, tb := range b.tokens {
		if _, ok := tb.Spendable[commitment]; ok {
			return true
		}
		if _, ok := tb.Inbox[commitment]; ok {
			return true
		}
		if _, ok := tb.Spent[commitment]; ok {
			return true
		}
	}
	return false
}

func (b *Balance) has(commitment string) bool {
	if b.Knows(commitment) {
		return true
	}
	for _, tb := range b.tokens {
		if _, ok := tb.Committed[commitment]; ok {
			return true
		}
	}
	return false
}

// TotalSpendable returns the spendable amount of asset. For the native
// asset this includes the lamports carried by SPL utxos.
func (b *Balance) TotalSpendable(asset solana.PublicKey) *big.Int {
	if !asset.Equals(solana.SystemProgramID) {
		tb, ok := b.tokens[asset]
		if !ok {
			return new(big.Int)
		}
		return tb.TotalSpendable()
	}
	total := new(big.Int)
	for _, tb := range b.tokens {
		total.Add(total, tb.TotalSpendableSol())
	}
	return total
}

// Decimal returns the spendable amount of asset in display units.
func (b *Balance) Decimal(asset solana.PublicKey, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(b.TotalSpendable(asset), -decimals)
}

// TotalInbox returns the amount of asset received from other users and not
// merged yet. For the native asset this includes the lamports carried by
// SPL utxos.
func (b *Balance) TotalInbox(asset solana.PublicKey) *big.Int {
	if !asset.Equals(solana.SystemProgramID) {
		tb, ok := b.tokens[asset]
		if !ok {
			return new(big.Int)
		}
		return tb.TotalInbox()
	}
	total := new(big.Int)
	for _, tb := range b.tokens {
		for _, u := range tb.Inbox {
			total.Add(total, u.Amounts[0])
		}
	}
	return total
}

// SpendableUtxos lists every spendable utxo, sorted by leaf index.
func (b *Balance) SpendableUtxos() []*utxo.Utxo {
	return b.collect(func(tb *TokenBalance) map[string]*utxo.Utxo { return tb.Spendable })
}

func (b *Balance) CommittedUtxos() []*utxo.Utxo {
	return b.collect(func(tb *TokenBalance) map[string]*utxo.Utxo { return tb.Committed })
}

// InboxUtxos lists the utxos received from other users, sorted by leaf
// index.
func (b *Balance) InboxUtxos() []*utxo.Utxo {
	return b.collect(func(tb *TokenBalance) map[string]*utxo.Utxo { return tb.Inbox })
}

func (b *Balance) SpentUtxos() []*utxo.Utxo {
	return b.collect(func(tb *TokenBalance) map[string]*utxo.Utxo { return tb.Spent })
}

func (b *Balance) allUtxos() []*utxo.Utxo {
	return b.collect(func(tb *TokenBalance) map[string]*utxo.Utxo {
		all := make(map[string]*utxo.Utxo, len(tb.Spendable)+len(tb.Inbox)+len(tb.Spent))
		maps.Copy(all, tb.Spendable)
		maps.Copy(all, tb.Inbox)
		maps.Copy(all, tb.Spent)
		return all
	})
}

func (b *Balance) collect(set func(*TokenBalance) map[string]*utxo.Utxo) []*utxo.Utxo {
	out := make([]*utxo.Utxo, 0)
	for _, tb := range b.tokens {
		for _, u := range set(tb) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Index == nil || out[j].Index == nil {
			return out[j].Index == nil && out[i].Index != nil
		}
		return *out[i].Index < *out[j].Index
	})
	return out
}
