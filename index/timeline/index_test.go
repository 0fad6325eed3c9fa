package timeline

import (
	"reflect"
	"sync"
	"testing"

	"github.com/ryansann/waypoint/index"
)

type insert struct {
	key   string
	entry index.Entry
}

var (
	inserts = []insert{
		insert{key: "a", entry: index.Entry{Timestamp: 10, Slot: 0}},
		insert{key: "b", entry: index.Entry{Timestamp: 11, Slot: 1}},
		insert{key: "a", entry: index.Entry{Timestamp: 20, Slot: 2}},
		insert{key: "a", entry: index.Entry{Timestamp: 15, Slot: 3}},
		insert{key: "c", entry: index.Entry{Timestamp: 5, Slot: 4}},
		insert{key: "a", entry: index.Entry{Timestamp: 20, Slot: 5}},
		insert{key: "b", entry: index.Entry{Timestamp: 30, Slot: 6}},
	}
)

func TestIndexLast(t *testing.T) {
	t.Run("defaulthash", func(t *testing.T) {
		runIndexLastTest(t, NewIndex())
	})
	t.Run("singleshard", func(t *testing.T) {
		runIndexLastTest(t, NewIndex(Shards(1)))
	})
	t.Run("constanthash", func(t *testing.T) {
		runIndexLastTest(t, NewIndex(SetHashFunc(func(string) uint32 { return 7 })))
	})
}

func runIndexLastTest(t *testing.T, i *Index) {
	for _, test := range inserts {
		i.Insert(test.key, test.entry)
	}

	expected := map[string]index.Entry{
		"a": index.Entry{Timestamp: 20, Slot: 5},
		"b": index.Entry{Timestamp: 30, Slot: 6},
		"c": index.Entry{Timestamp: 5, Slot: 4},
	}

	for key, exp := range expected {
		got, ok := i.Last(key)
		if !ok {
			t.Errorf("expected key: %s to have a last entry", key)
			continue
		}

		if got != exp {
			t.Errorf("failure - key: %s expected: %+v, but got: %+v", key, exp, got)
		}
	}

	if _, ok := i.Last("missing"); ok {
		t.Error("expected no last entry for an unknown key")
	}

	if i.Len() != 3 {
		t.Errorf("expected 3 keys, got: %d", i.Len())
	}
}

func TestIndexEqualTimestamps(t *testing.T) {
	i := NewIndex()

	i.Insert("k", index.Entry{Timestamp: 100, Slot: 1})
	i.Insert("k", index.Entry{Timestamp: 100, Slot: 2})
	i.Insert("k", index.Entry{Timestamp: 100, Slot: 0})

	got := i.Range("k", 100, 101)
	exp := []index.Entry{
		index.Entry{Timestamp: 100, Slot: 0},
		index.Entry{Timestamp: 100, Slot: 1},
		index.Entry{Timestamp: 100, Slot: 2},
	}

	if !reflect.DeepEqual(exp, got) {
		t.Errorf("failure - expected: %+v, but got: %+v", exp, got)
	}

	last, _ := i.Last("k")
	if last.Slot != 2 {
		t.Errorf("expected the highest slot to be last, got: %+v", last)
	}
}

func TestIndexRange(t *testing.T) {
	i := NewIndex()
	for _, test := range inserts {
		i.Insert(test.key, test.entry)
	}

	tests := []struct {
		name       string
		key        string
		start, end int64
		exp        []index.Entry
	}{
		{"all", "a", -1 << 62, 1 << 62, []index.Entry{{Timestamp: 10, Slot: 0}, {Timestamp: 15, Slot: 3}, {Timestamp: 20, Slot: 2}, {Timestamp: 20, Slot: 5}}},
		{"inclusive start", "a", 15, 20, []index.Entry{{Timestamp: 15, Slot: 3}}},
		{"exclusive end", "a", 10, 15, []index.Entry{{Timestamp: 10, Slot: 0}}},
		{"equal bounds", "a", 15, 15, []index.Entry{}},
		{"inverted", "a", 20, 10, []index.Entry{}},
		{"unknown key", "zzz", 0, 100, []index.Entry{}},
		{"outside", "b", 31, 100, []index.Entry{}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := i.Range(test.key, test.start, test.end)
			if got == nil {
				t.Fatal("expected an empty slice, not nil")
			}

			if !reflect.DeepEqual(test.exp, got) {
				t.Errorf("failure - expected: %+v, but got: %+v", test.exp, got)
			}
		})
	}
}

func TestIndexRangeIsCopy(t *testing.T) {
	i := NewIndex()
	i.Insert("k", index.Entry{Timestamp: 1, Slot: 0})
	i.Insert("k", index.Entry{Timestamp: 2, Slot: 1})

	got := i.Range("k", 0, 10)
	got[0].Slot = 99

	again := i.Range("k", 0, 10)
	if again[0].Slot != 0 {
		t.Error("modifying a range result changed the index")
	}
}

func TestIndexLasts(t *testing.T) {
	i := NewIndex()
	for _, test := range inserts {
		i.Insert(test.key, test.entry)
	}

	got := make(map[string]index.Entry)
	for _, ke := range i.Lasts() {
		if _, ok := got[ke.Key]; ok {
			t.Errorf("key: %s returned more than once", ke.Key)
		}
		got[ke.Key] = ke.Entry
	}

	exp := map[string]index.Entry{
		"a": {Timestamp: 20, Slot: 5},
		"b": {Timestamp: 30, Slot: 6},
		"c": {Timestamp: 5, Slot: 4},
	}

	if !reflect.DeepEqual(exp, got) {
		t.Errorf("failure - expected: %+v, but got: %+v", exp, got)
	}
}

// Readers iterate snapshots while a writer inserts, run with -race.
func TestIndexConcurrent(t *testing.T) {
	i := NewIndex(Shards(4))
	keys := []string{"a", "b", "c", "d", "e"}

	const n = 2000

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}

				for _, key := range keys {
					entries := i.Range(key, 0, n)
					for x := 1; x < len(entries); x++ {
						if !entries[x-1].Less(entries[x]) {
							t.Errorf("range for key: %s not ascending at %d", key, x)
							return
						}
					}
					i.Last(key)
				}
				i.Lasts()
			}
		}()
	}

	for slot := int64(0); slot < n; slot++ {
		// every third insert arrives out of order
		ts := slot
		if slot%3 == 0 {
			ts = slot / 2
		}
		i.Insert(keys[slot%int64(len(keys))], index.Entry{Timestamp: ts, Slot: slot})
	}

	close(stop)
	wg.Wait()

	var total int
	for _, key := range keys {
		total += len(i.Range(key, 0, n))
	}

	if total != n {
		t.Errorf("expected %d entries, got: %d", n, total)
	}
}

func BenchmarkIndexInsert(b *testing.B) {
	b.Run("inorder", func(b *testing.B) {
		i := NewIndex()
		for n := 0; n < b.N; n++ {
			i.Insert("key", index.Entry{Timestamp: int64(n), Slot: int64(n)})
		}
	})
	b.Run("manykeys", func(b *testing.B) {
		i := NewIndex()
		keys := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
		for n := 0; n < b.N; n++ {
			i.Insert(keys[n%len(keys)], index.Entry{Timestamp: int64(n), Slot: int64(n)})
		}
	})
}
