package slotfile

// iterator provides functionality for iterating over the slots in the store.
type iterator struct {
	s    *Store
	slot int64
}

// Next returns the next slot number and its bytes, or io.EOF at the end of written data.
func (i *iterator) Next() (int64, []byte, error) {
	data, err := i.s.ReadSlot(i.slot)
	if err != nil {
		return 0, nil, err
	}

	n := i.slot

	i.slot++

	return n, data, nil
}
