// Package storage defines the slot storage layer.
// Storage is a sequence of fixed size slots addressed by slot number, each holding one encoded sample.
// Slots are write once, the storage layer never frees or reorganizes them.
package storage

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Storer is an interface that a slot storage engine implements.
// A Storer implementation can be as simple as a single file, but there is nothing stipulating that it needs to be a file.
// Slot n always starts at byte n*SlotSize(), no other addressing scheme is supported.
type Storer interface {
	// ReadSlot reads the SlotSize() bytes of slot n. It returns io.EOF if fewer than SlotSize() bytes
	// are available at the slot, which marks the end of written data rather than corruption.
	ReadSlot(n int64) ([]byte, error)
	// WriteSlot writes data, which must be exactly SlotSize() bytes, to slot n.
	WriteSlot(n int64, data []byte) error
	// Begin returns a forward iterator positioned at slot 0.
	Begin() ForwardIterator
	// SlotSize returns the fixed size in bytes of a slot.
	SlotSize() int
	// Close should clean up any system resources associated with the backing storer, typcially called before exit/shutdown.
	io.Closer
}

// ForwardIterator defines behavior for iterating forward over a store's slots. ForwardIterators are not safe for concurrent use.
// A ForwardIterator is used to restore an index.
type ForwardIterator interface {
	// Next returns the next slot number and its bytes or an error.
	// io.EOF error is returned once the end of written data is reached.
	Next() (int64, []byte, error)
}

// Fault is a storage fault that the durability guarantee can't survive, e.g. the backing file
// can't be opened or a positioned read/write fails at the OS level. Faults are returned as errors
// so the process supervisor decides whether to terminate.
type Fault struct {
	Op   string
	Slot int64
	Err  error
}

func (f *Fault) Error() string {
	if f.Slot < 0 {
		return fmt.Sprintf("storage fault: %s: %v", f.Op, f.Err)
	}
	return fmt.Sprintf("storage fault: %s slot %d: %v", f.Op, f.Slot, f.Err)
}

// Fatal returns err as a Fault for op at slot. Use slot -1 when the fault isn't tied to a slot.
func Fatal(op string, slot int64, err error) error {
	return &Fault{Op: op, Slot: slot, Err: err}
}

// IsFatal reports whether err, or the error it wraps, is a Fault.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	_, ok := errors.Cause(err).(*Fault)
	return ok
}
