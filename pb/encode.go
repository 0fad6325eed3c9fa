package pb

import (
	"encoding/binary"
	"hash/crc32"
	"math"
	"unicode/utf8"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
)

// HeaderSize is the number of bytes preceding the marshaled sample in a slot: <size:uint32><crc:uint32>.
const HeaderSize = 8

var (
	// ErrEncodingTooLarge is returned when an encoded sample does not fit in a slot.
	ErrEncodingTooLarge = errors.New("encoded sample exceeds slot size")
	// ErrInvalidSample is returned for samples that can not be stored, e.g. with an empty id.
	ErrInvalidSample = errors.New("invalid sample")
)

// Validate checks that s can be stored. An empty id is rejected since an all zero slot would decode to it.
// Ids must be valid UTF-8 and coordinates must be numbers.
func Validate(s *Sample) error {
	if s == nil {
		return errors.Wrap(ErrInvalidSample, "nil sample")
	}

	if s.GetId() == "" {
		return errors.Wrap(ErrInvalidSample, "empty id")
	}

	if !utf8.ValidString(s.GetId()) {
		return errors.Wrapf(ErrInvalidSample, "id %+q is not valid utf-8", s.GetId())
	}

	if math.IsNaN(s.GetLatitude()) || math.IsNaN(s.GetLongitude()) {
		return errors.Wrap(ErrInvalidSample, "coordinates are not numbers")
	}

	return nil
}

// Encode accepts a Sample and encodes it into a slot of exactly slotSize bytes.
// It returns: <size><crc><sample-bytes><padding> where size and crc are uint32s encoded in little endian form,
// crc is the IEEE checksum of <sample-bytes>, and <sample-bytes> is the marshaled sample.
// The remainder of the slot is zero filled. If the encoding can't fit into slotSize, ErrEncodingTooLarge is returned.
func Encode(s *Sample, slotSize int) ([]byte, error) {
	err := Validate(s)
	if err != nil {
		return nil, err
	}

	// marshal the data into protobuf format
	data, err := proto.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal sample")
	}

	if HeaderSize+len(data) > slotSize {
		return nil, errors.Wrapf(ErrEncodingTooLarge, "%d bytes for slot of %d bytes", HeaderSize+len(data), slotSize)
	}

	slot := make([]byte, slotSize)
	binary.LittleEndian.PutUint32(slot[0:4], uint32(len(data)))
	binary.LittleEndian.PutUint32(slot[4:8], crc32.ChecksumIEEE(data))
	copy(slot[HeaderSize:], data)

	return slot, nil
}
