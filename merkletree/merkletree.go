// Package merkletree keeps a local mirror of the on-chain commitment tree.
//
// The mirror is owned by a single client and is not safe for concurrent
// writers. It can always be rebuilt from indexed transactions.
package merkletree

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/shieldpool/go-sdk/hasher"
	"github.com/shieldpool/go-sdk/types"
	log "github.com/sirupsen/logrus"
)

const DefaultLevels = 18

// ZeroValue is the empty leaf of the on-chain tree.
var ZeroValue, _ = new(big.Int).SetString(
	"14522046728041339886521211779101644712859239303505368468566383402165481390632", 10,
)

var (
	ErrTreeFull      = errors.New("merkle tree is full")
	ErrIndexOutRange = errors.New("leaf index out of range")
	ErrLeavesGap     = errors.New("indexed leaves are not contiguous")
)

// Tree is what the transaction compiler needs from a tree mirror.
type Tree interface {
	Levels() int
	Root() *big.Int
	IndexOf(commitment *big.Int) (uint64, bool)
	Path(index uint64) ([]*big.Int, error)
}

type MerkleTree struct {
	hasher hasher.Hasher
	levels int
	zeros  []*big.Int
	// layers[0] are the leaves, layers[levels] holds the root once any leaf
	// is inserted.
	layers  [][]*big.Int
	indices map[string]uint64
}

func New(h hasher.Hasher, levels int) (*MerkleTree, error) {
	if levels <= 0 || levels > 32 {
		return nil, fmt.Errorf("invalid tree depth %d", levels)
	}
	zeros := make([]*big.Int, levels+1)
	zeros[0] = new(big.Int).Set(ZeroValue)
	for i := 1; i <= levels; i++ {
		z, err := h.Hash(zeros[i-1], zeros[i-1])
		if err != nil {
			return nil, fmt.Errorf("failed to compute zero ladder: %w", err)
		}
		zeros[i] = z
	}
	layers := make([][]*big.Int, levels+1)
	for i := range layers {
		layers[i] = make([]*big.Int, 0)
	}
	return &MerkleTree{
		hasher:  h,
		levels:  levels,
		zeros:   zeros,
		layers:  layers,
		indices: make(map[string]uint64),
	}, nil
}

// BuildFromIndexed rebuilds the mirror replaying the leaves of txs in
// insertion order. Leaves already covered by an earlier transaction are
// skipped, a hole in the sequence is an error.
func BuildFromIndexed(
	h hasher.Hasher, levels int, txs []types.IndexedTransaction,
) (*MerkleTree, error) {
	tree, err := New(h, levels)
	if err != nil {
		return nil, err
	}
	if err := tree.AddIndexed(txs); err != nil {
		return nil, err
	}
	return tree, nil
}

// ContiguousPrefix sorts txs by first leaf index and returns the longest
// run covering the leaves from 0 without a hole, along with the number of
// leaves it covers. Transactions past the first hole are left out.
func ContiguousPrefix(txs []types.IndexedTransaction) ([]types.IndexedTransaction, uint64) {
	sorted := make([]types.IndexedTransaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FirstLeafIndex < sorted[j].FirstLeafIndex
	})

	next := uint64(0)
	for i, tx := range sorted {
		if tx.FirstLeafIndex > next {
			return sorted[:i], next
		}
		if end := tx.FirstLeafIndex + uint64(len(tx.Leaves)); end > next {
			next = end
		}
	}
	return sorted, next
}

// AddIndexed appends the leaves of txs not yet in the tree.
func (t *MerkleTree) AddIndexed(txs []types.IndexedTransaction) error {
	sorted := make([]types.IndexedTransaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FirstLeafIndex < sorted[j].FirstLeafIndex
	})

	leaves := make([]*big.Int, 0)
	next := uint64(t.Len())
	for _, tx := range sorted {
		for i := range tx.Leaves {
			index := tx.LeafIndex(i)
			if index < next {
				continue
			}
			if index > next {
				return fmt.Errorf(
					"%w: expected leaf %d, got %d (tx %s)", ErrLeavesGap, next, index, tx.Signature,
				)
			}
			leaves = append(leaves, tx.LeafCommitment(i))
			next++
		}
	}
	if len(leaves) == 0 {
		return nil
	}
	log.Debugf("merkle tree: adding %d leaf(s) from %d indexed tx(s)", len(leaves), len(txs))
	return t.Bulk(leaves)
}

func (t *MerkleTree) Levels() int {
	return t.levels
}

func (t *MerkleTree) Len() int {
	return len(t.layers[0])
}

func (t *MerkleTree) Capacity() uint64 {
	return uint64(1) << uint(t.levels)
}

func (t *MerkleTree) Root() *big.Int {
	if len(t.layers[t.levels]) == 0 {
		return new(big.Int).Set(t.zeros[t.levels])
	}
	return new(big.Int).Set(t.layers[t.levels][0])
}

func (t *MerkleTree) Insert(leaf *big.Int) error {
	return t.Bulk([]*big.Int{leaf})
}

// Bulk appends leaves and recomputes only the affected part of each layer.
func (t *MerkleTree) Bulk(leaves []*big.Int) error {
	if len(leaves) == 0 {
		return nil
	}
	if uint64(t.Len()+len(leaves)) > t.Capacity() {
		return ErrTreeFull
	}
	from := t.Len()
	for _, leaf := range leaves {
		if leaf == nil {
			return fmt.Errorf("nil leaf")
		}
		t.indices[leaf.String()] = uint64(len(t.layers[0]))
		t.layers[0] = append(t.layers[0], new(big.Int).Set(leaf))
	}
	return t.rebuild(from)
}

func (t *MerkleTree) IndexOf(commitment *big.Int) (uint64, bool) {
	if commitment == nil {
		return 0, false
	}
	index, ok := t.indices[commitment.String()]
	return index, ok
}

// Path returns the sibling of each level, bottom up. Missing siblings are
// the zero value of their level.
func (t *MerkleTree) Path(index uint64) ([]*big.Int, error) {
	if index >= uint64(t.Len()) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutRange, index)
	}
	path := make([]*big.Int, 0, t.levels)
	pos := index
	for level := 0; level < t.levels; level++ {
		sibling := pos ^ 1
		if sibling < uint64(len(t.layers[level])) {
			path = append(path, new(big.Int).Set(t.layers[level][sibling]))
		} else {
			path = append(path, new(big.Int).Set(t.zeros[level]))
		}
		pos >>= 1
	}
	return path, nil
}

// Zeros returns the zero value of each level, leaf level first.
func (t *MerkleTree) Zeros() []*big.Int {
	out := make([]*big.Int, 0, len(t.zeros))
	for _, z := range t.zeros {
		out = append(out, new(big.Int).Set(z))
	}
	return out
}

func (t *MerkleTree) rebuild(from int) error {
	for level := 1; level <= t.levels; level++ {
		below := t.layers[level-1]
		size := (len(below) + 1) / 2
		start := from >> uint(level)
		layer := t.layers[level]
		if len(layer) > start {
			layer = layer[:start]
		}
		for i := start; i < size; i++ {
			left := below[2*i]
			right := t.zeros[level-1]
			if 2*i+1 < len(below) {
				right = below[2*i+1]
			}
			node, err := t.hasher.Hash(left, right)
			if err != nil {
				return fmt.Errorf("failed to hash level %d: %w", level, err)
			}
			layer = append(layer, node)
		}
		t.layers[level] = layer
	}
	return nil
}
