// Package slotfile implements slot storage backed by a single file.
// The file is a flat sequence of fixed size slots with no header or footer, slot n starts at n*slotSize.
// A trailing region shorter than a slot (e.g. a write interrupted by a crash) reads as the end of data
// and is overwritten by the next write to that slot.
package slotfile

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/ryansann/waypoint/storage"
	"github.com/sirupsen/logrus"
)

// DefaultSlotSize is the default size in bytes of a slot.
const DefaultSlotSize = 200

type options struct {
	sync     time.Duration
	slotSize int
}

// StoreOption is func that modifies the store's configuration options.
type StoreOption func(*options)

// SyncInterval sets how often the file is flushed to stable storage by a background loop.
// The default, 0, flushes after every slot write.
func SyncInterval(dur time.Duration) StoreOption {
	return func(opts *options) {
		opts.sync = dur
	}
}

// SlotSize overrides the default slot size. Changing it for an existing file makes its contents unreadable.
func SlotSize(n int) StoreOption {
	return func(opts *options) {
		opts.slotSize = n
	}
}

// Store provides positioned slot reads and writes on a single file.
// It implements the storage.Storer interface. Reads are safe for concurrent use with each other and with writes,
// callers are responsible for never writing the same slot concurrently.
type Store struct {
	log *logrus.Logger

	file     *os.File
	slotSize int
	sync     time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewStore opens (creating if needed) the slot file at path and returns a Store or an error.
// An error opening the file is a storage.Fault.
func NewStore(log *logrus.Logger, path string, opts ...StoreOption) (*Store, error) {
	cfg := &options{
		sync:     0,
		slotSize: DefaultSlotSize,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.slotSize <= 0 {
		return nil, errors.Errorf("invalid slot size: %d", cfg.slotSize)
	}

	filename, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not get absolute path for file: %s", path)
	}

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, storage.Fatal("open", -1, errors.Wrapf(err, "could not create/open slot file: %s", filename))
	}

	s := &Store{
		log:      log,
		file:     f,
		slotSize: cfg.slotSize,
		sync:     cfg.sync,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if s.sync > 0 {
		go s.syncloop()
	} else {
		close(s.done)
	}

	log.Debugf("opened slot file: %s, slot size: %d", filename, s.slotSize)

	return s, nil
}

// SlotSize returns the fixed size in bytes of a slot.
func (s *Store) SlotSize() int {
	return s.slotSize
}

// ReadSlot reads slot n. It returns io.EOF if the file holds fewer than SlotSize() bytes at the slot.
// Any other read error is a storage.Fault.
func (s *Store) ReadSlot(n int64) ([]byte, error) {
	buf := make([]byte, s.slotSize)

	// ReadAt returns a non nil error whenever it reads fewer than len(buf) bytes
	_, err := s.file.ReadAt(buf, s.offset(n))
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, storage.Fatal("read", n, err)
	}

	return buf, nil
}

// WriteSlot writes data to slot n and, unless a sync interval is set, flushes it to stable storage.
// Any write or sync error is a storage.Fault.
func (s *Store) WriteSlot(n int64, data []byte) error {
	if len(data) != s.slotSize {
		return errors.Errorf("slot data is %d bytes, slot size is %d", len(data), s.slotSize)
	}

	_, err := s.file.WriteAt(data, s.offset(n))
	if err != nil {
		return storage.Fatal("write", n, err)
	}

	if s.sync == 0 {
		err = s.file.Sync()
		if err != nil {
			return storage.Fatal("sync", n, err)
		}
	}

	return nil
}

// Begin returns a forward iterator to the beginning of the slot file.
func (s *Store) Begin() storage.ForwardIterator {
	return &iterator{
		s: s,
	}
}

// Size returns the size in bytes of the slot file.
func (s *Store) Size() (int64, error) {
	fi, err := s.file.Stat()
	if err != nil {
		return 0, storage.Fatal("stat", -1, err)
	}
	return fi.Size(), nil
}

// Close stops the sync loop, flushes and closes the file. It blocks until this completes.
func (s *Store) Close() error {
	// signal sync loop to stop, done is already closed if there is no loop
	close(s.stop)

	// wait for sync loop to exit
	<-s.done

	err := s.file.Sync()
	if err != nil {
		return err
	}

	return s.file.Close()
}

func (s *Store) offset(n int64) int64 {
	return n * int64(s.slotSize)
}

// syncloop is intended to be run as a background go routine that flushes data to disk every interval
func (s *Store) syncloop() {
	defer close(s.done)
	for {
		select {
		case <-time.After(s.sync):
			err := s.file.Sync()
			if err != nil {
				s.log.Errorf("could not sync slot file: %v", err)
			}
		case <-s.stop:
			return
		}
	}
}

// cleanup is a utility for testing that closes and removes the slot file
func (s *Store) cleanup() error {
	err := s.Close()
	if err != nil {
		return err
	}

	return os.Remove(s.file.Name())
}
