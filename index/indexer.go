// Package index defines the in-memory key index: a map from an entity id to the
// ordered (timestamp, slot) pairs of its samples. An index is derived state, it is rebuilt
// from storage at startup and only ever grows afterwards.
package index

// Entry locates one sample of a key: the sample's timestamp and the slot it is stored in.
type Entry struct {
	Timestamp int64
	Slot      int64
}

// Less orders entries by timestamp, then slot. Two samples of a key with equal timestamps
// are distinct entries since they are always stored in distinct slots.
func (e Entry) Less(o Entry) bool {
	if e.Timestamp != o.Timestamp {
		return e.Timestamp < o.Timestamp
	}
	return e.Slot < o.Slot
}

// KeyEntry is an entry together with its key.
type KeyEntry struct {
	Key string
	Entry
}

// Indexer is the interface that key indexes implement. Implementations must allow any number of
// concurrent readers alongside a writer, and readers must never observe a partially applied Insert.
type Indexer interface {
	// Insert adds e to the entries of key.
	Insert(key string, e Entry)
	// Last returns the greatest entry of key, or false if key has no entries.
	Last(key string) (Entry, bool)
	// Range returns the entries of key with start <= timestamp < end in ascending order.
	// It returns an empty slice for an unknown key or an empty interval.
	Range(key string, start, end int64) []Entry
	// Lasts returns the greatest entry of every key, in no particular order.
	Lasts() []KeyEntry
	// Len returns the number of keys.
	Len() int
}
