// Package engine implements the location storage engine on top of a slot store and a key index.
//
// - every sample is encoded into its own slot, slots are appended at the write frontier and never rewritten
// - the key index maps an id to the (timestamp, slot) pairs of its samples, it is rebuilt by scanning the
// store from slot 0 when the engine is created
// - appends are serialized by a single writer lock spanning the slot write, the frontier increment and the index insert
// - reads take no engine lock, they resolve slots through the index and read them from the store
//
// Operations:
// - append -> stamp, encode, write slot at frontier, advance frontier, insert into index
// - last value -> last index entry of an id, read its slot
// - history -> index range of an id, read each slot
// - all last values -> last index entry of every id, slots are read by a pool of goroutines
package engine

import (
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ryansann/waypoint/index"
	"github.com/ryansann/waypoint/index/timeline"
	"github.com/ryansann/waypoint/pb"
	"github.com/ryansann/waypoint/storage"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// ErrNotFound is returned by LastValue for an id without samples.
var ErrNotFound = errors.New("id not found")

type options struct {
	clock       func() int64
	parallelism int
	index       index.Indexer
	reg         prometheus.Registerer
}

// EngineOption is func that modifies the engine's configuration options.
type EngineOption func(*options)

// Clock overrides the source of sample timestamps, milliseconds since the unix epoch by default.
func Clock(clock func() int64) EngineOption {
	return func(opts *options) {
		opts.clock = clock
	}
}

// Parallelism sets how many goroutines read slots for AllLastValues, runtime.NumCPU() by default.
func Parallelism(n int) EngineOption {
	return func(opts *options) {
		opts.parallelism = n
	}
}

// WithIndex overrides the default timeline index. The index must be empty.
func WithIndex(i index.Indexer) EngineOption {
	return func(opts *options) {
		opts.index = i
	}
}

// Registerer registers the engine's metrics with reg.
func Registerer(reg prometheus.Registerer) EngineOption {
	return func(opts *options) {
		opts.reg = reg
	}
}

// Engine is the location storage engine.
type Engine struct {
	log *logrus.Logger

	// store is the underlying slot storage
	store storage.Storer
	// index maps ids to their samples' slots
	index index.Indexer

	// wmtx serializes appends
	wmtx sync.Mutex
	// frontier is the next free slot
	frontier *atomic.Int64

	clock       func() int64
	parallelism int
	metrics     *metrics
}

// New accepts a store and a variadic number of option funcs for configuration.
// It restores the index from the store before returning, so the returned Engine is ready to start running operations.
// A slot that fails to decode during the restore is a storage.Fault.
func New(log *logrus.Logger, store storage.Storer, opts ...EngineOption) (*Engine, error) {
	// default config
	cfg := &options{
		clock:       nowMillis,
		parallelism: runtime.NumCPU(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.index == nil {
		cfg.index = timeline.NewIndex()
	}

	if cfg.parallelism < 1 {
		cfg.parallelism = 1
	}

	m, err := newMetrics(cfg.reg)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		log:         log,
		store:       store,
		index:       cfg.index,
		frontier:    atomic.NewInt64(0),
		clock:       cfg.clock,
		parallelism: cfg.parallelism,
		metrics:     m,
	}

	err = e.restore()
	if err != nil {
		return nil, errors.Wrap(err, "could not restore index")
	}

	return e, nil
}

// restore scans the store from slot 0 until the end of data, inserting every sample into the index.
// The first slot past the data becomes the write frontier.
func (e *Engine) restore() error {
	start := time.Now()

	// get an iterator pointing to the first slot
	it := e.store.Begin()

	var next int64

	for {
		n, data, err := it.Next()
		if err != nil {
			if err == io.EOF {
				break
			}

			return err
		}

		s, err := pb.Decode(data)
		if err != nil {
			// nothing after a malformed slot can be trusted
			return storage.Fatal("restore", n, err)
		}

		e.log.Debugf("restoring slot: %v, sample: %v", n, s)

		e.index.Insert(s.GetId(), index.Entry{Timestamp: s.GetTimestamp(), Slot: n})

		next = n + 1
	}

	e.frontier.Store(next)
	e.metrics.frontier.Set(float64(next))
	e.metrics.keys.Set(float64(e.index.Len()))

	e.log.WithFields(logrus.Fields{
		"frontier": next,
		"keys":     e.index.Len(),
		"took":     time.Since(start),
	}).Info("index restored")

	return nil
}

// Append stores a new sample for id, stamped with the current time, and returns it.
// A sample that can't be encoded into one slot returns pb.ErrEncodingTooLarge and nothing is written.
func (e *Engine) Append(id string, lat, lon float64) (*pb.Sample, error) {
	start := time.Now()

	s := &pb.Sample{
		Id:        id,
		Latitude:  lat,
		Longitude: lon,
	}

	err := pb.Validate(s)
	if err != nil {
		e.metrics.appends.WithLabelValues("invalid").Inc()
		return nil, err
	}

	e.wmtx.Lock()
	defer e.wmtx.Unlock()

	s.Timestamp = e.clock()

	data, err := pb.Encode(s, e.store.SlotSize())
	if err != nil {
		e.metrics.appends.WithLabelValues("invalid").Inc()
		return nil, err
	}

	slot := e.frontier.Load()

	e.log.Debugf("appending sample: %v at slot: %v", s, slot)

	err = e.store.WriteSlot(slot, data)
	if err != nil {
		e.metrics.appends.WithLabelValues("error").Inc()
		return nil, errors.Wrapf(err, "could not append sample for id: %s", id)
	}

	// the slot is durable, publish it
	e.frontier.Store(slot + 1)
	e.index.Insert(id, index.Entry{Timestamp: s.Timestamp, Slot: slot})

	e.metrics.appends.WithLabelValues("ok").Inc()
	e.metrics.appendLatency.Observe(time.Since(start).Seconds())
	e.metrics.frontier.Set(float64(slot + 1))
	e.metrics.keys.Set(float64(e.index.Len()))

	return s, nil
}

// LastValue returns the most recent sample of id, or ErrNotFound.
func (e *Engine) LastValue(id string) (*pb.Sample, error) {
	e.metrics.reads.WithLabelValues("last").Inc()

	entry, ok := e.index.Last(id)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "id: %s", id)
	}

	return e.read(entry.Slot)
}

// History returns the samples of id with start <= timestamp < end in ascending order.
// It returns an empty slice for an unknown id or an empty interval.
func (e *Engine) History(id string, start, end int64) ([]*pb.Sample, error) {
	e.metrics.reads.WithLabelValues("history").Inc()

	entries := e.index.Range(id, start, end)

	res := make([]*pb.Sample, 0, len(entries))
	for _, entry := range entries {
		s, err := e.read(entry.Slot)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}

	return res, nil
}

// AllLastValues returns the most recent sample of every id, in no particular order.
func (e *Engine) AllLastValues() ([]*pb.Sample, error) {
	e.metrics.reads.WithLabelValues("all").Inc()

	lasts := e.index.Lasts()
	res := make([]*pb.Sample, len(lasts))

	workers := e.parallelism
	if workers > len(lasts) {
		workers = len(lasts)
	}

	jobs := make(chan int)

	var wg sync.WaitGroup
	var once sync.Once
	var rerr error

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				s, err := e.read(lasts[n].Slot)
				if err != nil {
					once.Do(func() { rerr = err })
					continue
				}
				res[n] = s
			}
		}()
	}

	for n := range lasts {
		jobs <- n
	}
	close(jobs)

	wg.Wait()

	if rerr != nil {
		return nil, rerr
	}

	return res, nil
}

// Scan calls fn for every stored sample in slot order, up to the write frontier at the time of the call.
// Scanning stops at the first error returned by fn.
func (e *Engine) Scan(fn func(slot int64, s *pb.Sample) error) error {
	frontier := e.frontier.Load()

	for n := int64(0); n < frontier; n++ {
		s, err := e.read(n)
		if err != nil {
			return err
		}

		err = fn(n, s)
		if err != nil {
			return err
		}
	}

	return nil
}

// Frontier returns the next free slot number.
func (e *Engine) Frontier() int64 {
	return e.frontier.Load()
}

// Keys returns the number of distinct ids.
func (e *Engine) Keys() int {
	return e.index.Len()
}

// read reads and decodes the sample in slot. Slots passed to read are always written,
// so the end of data or a decode failure means the store is damaged.
func (e *Engine) read(slot int64) (*pb.Sample, error) {
	data, err := e.store.ReadSlot(slot)
	if err != nil {
		if err == io.EOF {
			return nil, storage.Fatal("read", slot, errors.New("slot is not written"))
		}
		return nil, err
	}

	s, err := pb.Decode(data)
	if err != nil {
		return nil, storage.Fatal("read", slot, err)
	}

	return s, nil
}

func nowMillis() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}
