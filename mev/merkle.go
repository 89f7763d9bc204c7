// Package mev binds an evaluated route into an authenticated merkle
// commitment so the signer can verify it was handed exactly the route
// that passed the gate, not a substituted one.
package mev

import (
	"bytes"
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
)

// ErrEmptyTree is returned when building a tree with no leaves.
var ErrEmptyTree = errors.New("mev: merkle tree needs at least one leaf")

// hashLeaf is keccak256 over the raw leaf bytes.
func hashLeaf(leaf []byte) []byte {
	return crypto.Keccak256(leaf)
}

// hashPair combines two nodes in sorted order, so a proof verifies
// without knowing which side each sibling was on.
func hashPair(a, b []byte) []byte {
	if bytes.Compare(a, b) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256(a, b)
}

// Tree is a keccak256 merkle tree over a fixed leaf set. An odd node at
// the end of a layer is paired with itself.
type Tree struct {
	leaves [][]byte // hashed
	root   []byte
}

// NewTree hashes leaves and folds them to a root.
func NewTree(leaves [][]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	hashed := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		hashed[i] = hashLeaf(leaf)
	}

	layer := hashed
	for len(layer) > 1 {
		next := make([][]byte, 0, (len(layer)+1)/2)
		for i := 0; i < len(layer); i += 2 {
			right := layer[i]
			if i+1 < len(layer) {
				right = layer[i+1]
			}
			next = append(next, hashPair(layer[i], right))
		}
		layer = next
	}
	return &Tree{leaves: hashed, root: layer[0]}, nil
}

// Root returns the tree root.
func (t *Tree) Root() []byte {
	out := make([]byte, len(t.root))
	copy(out, t.root)
	return out
}

// Proof returns the sibling path for the leaf at index.
func (t *Tree) Proof(index int) ([][]byte, error) {
	if index < 0 || index >= len(t.leaves) {
		return nil, errors.New("mev: leaf index out of range")
	}

	var proof [][]byte
	layer := t.leaves
	for len(layer) > 1 {
		sibling := index ^ 1
		if sibling >= len(layer) {
			sibling = index // odd tail pairs with itself
		}
		proof = append(proof, layer[sibling])

		next := make([][]byte, 0, (len(layer)+1)/2)
		for i := 0; i < len(layer); i += 2 {
			right := layer[i]
			if i+1 < len(layer) {
				right = layer[i+1]
			}
			next = append(next, hashPair(layer[i], right))
		}
		layer = next
		index /= 2
	}
	return proof, nil
}

// VerifyProof recomputes the root from a raw leaf and its sibling path.
func VerifyProof(leaf []byte, proof [][]byte, root []byte) bool {
	node := hashLeaf(leaf)
	for _, sibling := range proof {
		node = hashPair(node, sibling)
	}
	return bytes.Equal(node, root)
}
