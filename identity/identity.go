// Package identity assigns report ids: random per-entity ids for suites, contexts and
// fixture wrappers, and content-derived history ids for test cases.
package identity

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"math/big"
	"sort"
	"sync"

	"github.com/google/uuid"
)

const DefaultDigest = "md5"

// ErrUnsupportedDigest is returned when the configured history digest is not available.
var ErrUnsupportedDigest = errors.New("unsupported history digest")

var digests = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
}

// Assigner hands out report ids. It is safe for concurrent use.
type Assigner struct {
	ids     sync.Map // entity -> string
	newHash func() hash.Hash
	digest  string
}

// New creates an Assigner using the named history digest ("" selects md5).
func New(digest string) (*Assigner, error) {
	if digest == "" {
		digest = DefaultDigest
	}
	newHash, ok := digests[digest]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDigest, digest)
	}
	return &Assigner{newHash: newHash, digest: digest}, nil
}

// Digest returns the name of the history digest in use.
func (a *Assigner) Digest() string {
	return a.digest
}

// UniqueID returns the id cached for entity, assigning a fresh one on first use.
// Concurrent first calls for the same entity all observe the single winning id.
// entity must be comparable; engine entities are pointers.
func (a *Assigner) UniqueID(entity any) string {
	if id, ok := a.ids.Load(entity); ok {
		return id.(string)
	}
	id, _ := a.ids.LoadOrStore(entity, NewID())
	return id.(string)
}

// Forget drops the id cached for entity.
func (a *Assigner) Forget(entity any) {
	a.ids.Delete(entity)
}

// HistoryID derives a stable id from a qualified test name and its parameters.
// Parameter order does not matter.
func (a *Assigner) HistoryID(name string, params map[string]string) string {
	type entry struct{ key, value string }
	entries := make([]entry, 0, len(params))
	for k, v := range params {
		entries = append(entries, entry{k, v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].key != entries[j].key {
			return entries[i].key < entries[j].key
		}
		return entries[i].value < entries[j].value
	})

	h := a.newHash()
	h.Write([]byte(name))
	for _, e := range entries {
		h.Write([]byte(e.key))
		h.Write([]byte(e.value))
	}
	return new(big.Int).SetBytes(h.Sum(nil)).Text(16)
}

// NewID returns a fresh random id.
func NewID() string {
	return uuid.NewString()
}
