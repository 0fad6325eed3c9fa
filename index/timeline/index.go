// Package timeline implements a storage agnostic, in-memory key index for a time-series store.
//
// - keeps the entire keyset in memory, spread over a fixed number of shards by key hash
// - each key maps to its entries ordered by (timestamp, slot), so equal timestamps never collide
// - entry slices are copy-on-write: an in-order insert appends past the length of every published
// slice and an out-of-order insert allocates a new slice, so readers use a snapshot without holding a lock
//
// Operations:
// - insert
// - last -> greatest entry of a key
// - range -> entries of a key with start <= timestamp < end
// - lasts -> greatest entry of every key
package timeline

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/ryansann/waypoint/index"
)

// KeyHashFunc is a hash func that maps a key to a shard.
type KeyHashFunc func(key string) uint32

// DefaultHash is a KeyHashFunc that uses the 32 bit FNV-1a hashing algorithm.
func DefaultHash(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}

type options struct {
	hash   KeyHashFunc
	shards int
}

// IndexOption is func that modifies the index configuration options.
type IndexOption func(*options)

// SetHashFunc overrides the Index default hashing func.
func SetHashFunc(hash KeyHashFunc) IndexOption {
	return func(opts *options) {
		opts.hash = hash
	}
}

// Shards overrides the default number of shards.
func Shards(n int) IndexOption {
	return func(opts *options) {
		opts.shards = n
	}
}

type shard struct {
	// mtx guards keys
	mtx sync.RWMutex
	// keys maps keys to their entries, ascending
	keys map[string][]index.Entry
}

// Index is a sharded, copy-on-write key index. It implements the index.Indexer interface.
type Index struct {
	shards []*shard
	hash   KeyHashFunc
}

// NewIndex accepts a variadic number of option funcs for configuration.
// It returns an empty Index ready to start running operations.
func NewIndex(opts ...IndexOption) *Index {
	// default config
	cfg := &options{
		hash:   DefaultHash,
		shards: 32,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.shards < 1 {
		cfg.shards = 1
	}

	i := &Index{
		shards: make([]*shard, cfg.shards),
		hash:   cfg.hash,
	}

	for n := range i.shards {
		i.shards[n] = &shard{keys: make(map[string][]index.Entry)}
	}

	return i
}

// Insert adds e to the entries of key.
func (i *Index) Insert(key string, e index.Entry) {
	s := i.shard(key)

	s.mtx.Lock()
	defer s.mtx.Unlock()

	entries := s.keys[key]

	// fast path, samples almost always arrive in time order
	if len(entries) == 0 || entries[len(entries)-1].Less(e) {
		s.keys[key] = append(entries, e)
		return
	}

	pos := sort.Search(len(entries), func(n int) bool {
		return e.Less(entries[n])
	})

	fresh := make([]index.Entry, len(entries)+1)
	copy(fresh, entries[:pos])
	fresh[pos] = e
	copy(fresh[pos+1:], entries[pos:])

	s.keys[key] = fresh
}

// Last returns the greatest entry of key, or false if key has no entries.
func (i *Index) Last(key string) (index.Entry, bool) {
	entries := i.snapshot(key)
	if len(entries) == 0 {
		return index.Entry{}, false
	}
	return entries[len(entries)-1], true
}

// Range returns a copy of the entries of key with start <= timestamp < end, ascending.
func (i *Index) Range(key string, start, end int64) []index.Entry {
	if start >= end {
		return []index.Entry{}
	}

	entries := i.snapshot(key)

	lo := sort.Search(len(entries), func(n int) bool {
		return entries[n].Timestamp >= start
	})
	hi := sort.Search(len(entries), func(n int) bool {
		return entries[n].Timestamp >= end
	})

	if lo >= hi {
		return []index.Entry{}
	}

	res := make([]index.Entry, hi-lo)
	copy(res, entries[lo:hi])

	return res
}

// Lasts returns the greatest entry of every key.
func (i *Index) Lasts() []index.KeyEntry {
	var res []index.KeyEntry

	for _, s := range i.shards {
		s.mtx.RLock()
		for key, entries := range s.keys {
			res = append(res, index.KeyEntry{Key: key, Entry: entries[len(entries)-1]})
		}
		s.mtx.RUnlock()
	}

	return res
}

// Len returns the number of keys in the index.
func (i *Index) Len() int {
	var n int

	for _, s := range i.shards {
		s.mtx.RLock()
		n += len(s.keys)
		s.mtx.RUnlock()
	}

	return n
}

// snapshot returns the current entries of key. The returned slice is never modified afterwards.
func (i *Index) snapshot(key string) []index.Entry {
	s := i.shard(key)

	s.mtx.RLock()
	entries := s.keys[key]
	s.mtx.RUnlock()

	return entries
}

func (i *Index) shard(key string) *shard {
	return i.shards[i.hash(key)%uint32(len(i.shards))]
}
