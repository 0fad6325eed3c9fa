package pb

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
)

// ErrDecodeCorrupt is returned when a slot's bytes are not a well formed sample encoding.
var ErrDecodeCorrupt = errors.New("corrupt slot")

// Decode reads a sample from slot. It first gets the little endian encoded length and checksum
// of the sample data, verifies the checksum, and then unmarshals the sample bytes. Trailing padding is ignored.
func Decode(slot []byte) (*Sample, error) {
	if len(slot) < HeaderSize {
		return nil, errors.Wrapf(ErrDecodeCorrupt, "slot of %d bytes has no header", len(slot))
	}

	sz := binary.LittleEndian.Uint32(slot[0:4])
	sum := binary.LittleEndian.Uint32(slot[4:8])

	// a zero size can only come from an unwritten (zero filled) region
	if sz == 0 || int(sz) > len(slot)-HeaderSize {
		return nil, errors.Wrapf(ErrDecodeCorrupt, "invalid size %d", sz)
	}

	data := slot[HeaderSize : HeaderSize+int(sz)]
	if crc32.ChecksumIEEE(data) != sum {
		return nil, errors.Wrap(ErrDecodeCorrupt, "checksum mismatch")
	}

	var s Sample
	err := proto.Unmarshal(data, &s)
	if err != nil {
		return nil, errors.Wrapf(ErrDecodeCorrupt, "could not unmarshal bytes: %v", err)
	}

	if s.GetId() == "" {
		return nil, errors.Wrap(ErrDecodeCorrupt, "sample has empty id")
	}

	return &s, nil
}
