package mev

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/omniarb/arbengine/types"
)

// Commitment is the authenticated binding of one evaluated route at one
// amount. The signer recomputes the leaf from the route it was handed
// and verifies it against Root via Proof; a substituted route fails.
type Commitment struct {
	Fingerprint types.Fingerprint
	Leaf        []byte
	Proof       [][]byte
	Root        []byte
	HeaderKey   string
	Timestamp   time.Time
}

// Committer turns approved-candidate routes into merkle commitments.
// Candidates are the tick's evaluated fingerprint set; the tree is
// rebuilt when the set changes.
type Committer struct {
	secret []byte
}

// NewCommitter creates a committer authenticated by secret.
func NewCommitter(secret []byte) *Committer {
	return &Committer{secret: secret}
}

// RouteLeaf is the canonical leaf encoding: ordered pool addresses,
// then the loan amount string, then the fingerprint.
func RouteLeaf(route *types.Route, amount decimal.Decimal) []byte {
	var leaf []byte
	for _, addr := range route.PoolAddresses() {
		leaf = append(leaf, addr.Bytes()...)
	}
	leaf = append(leaf, []byte(amount.String())...)
	var fp [8]byte
	binary.BigEndian.PutUint64(fp[:], uint64(types.FingerprintRoute(route, amount)))
	return append(leaf, fp[:]...)
}

// Commit builds a single-candidate tree for the route and returns its
// commitment. The gate calls this once per MEV_PACKAGE stage; batching
// several candidates into one tree uses CommitBatch.
func (c *Committer) Commit(route *types.Route, amount decimal.Decimal, now time.Time) (*Commitment, error) {
	return c.commitAt(route, amount, now, [][]byte{RouteLeaf(route, amount)}, 0)
}

// CommitBatch commits the route at index within a candidate leaf set.
func (c *Committer) CommitBatch(route *types.Route, amount decimal.Decimal, now time.Time, leaves [][]byte, index int) (*Commitment, error) {
	return c.commitAt(route, amount, now, leaves, index)
}

func (c *Committer) commitAt(route *types.Route, amount decimal.Decimal, now time.Time, leaves [][]byte, index int) (*Commitment, error) {
	tree, err := NewTree(leaves)
	if err != nil {
		return nil, err
	}
	proof, err := tree.Proof(index)
	if err != nil {
		return nil, err
	}
	leaf := leaves[index]
	root := tree.Root()
	if !VerifyProof(leaf, proof, root) {
		return nil, fmt.Errorf("mev: self-verification failed for fingerprint %d",
			types.FingerprintRoute(route, amount))
	}
	return &Commitment{
		Fingerprint: types.FingerprintRoute(route, amount),
		Leaf:        leaf,
		Proof:       proof,
		Root:        root,
		HeaderKey:   c.headerKey(leaf, now),
		Timestamp:   now,
	}, nil
}

// headerKey is an HMAC-SHA256 tag over (timestamp, leaf) so relays can
// attribute the bundle to this bot without learning the secret.
func (c *Committer) headerKey(leaf []byte, now time.Time) string {
	mac := hmac.New(sha256.New, c.secret)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(now.Unix()))
	mac.Write(ts[:])
	mac.Write(leaf)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a commitment against the route and amount the signer
// was actually handed.
func (c *Committer) Verify(cm *Commitment, route *types.Route, amount decimal.Decimal) bool {
	leaf := RouteLeaf(route, amount)
	if !hmac.Equal(leaf, cm.Leaf) {
		return false
	}
	if c.headerKey(leaf, cm.Timestamp) != cm.HeaderKey {
		return false
	}
	return VerifyProof(leaf, cm.Proof, cm.Root)
}
