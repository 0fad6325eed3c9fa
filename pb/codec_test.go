package pb

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

const slotSize = 200

var samples = []*Sample{
	&Sample{Id: "a", Timestamp: 1, Latitude: 0, Longitude: 0},
	&Sample{Id: "truck-42", Timestamp: 1571234567890, Latitude: 37.5665, Longitude: 126.978},
	&Sample{Id: "b", Timestamp: -5, Latitude: -89.999, Longitude: -179.5},
	&Sample{Id: strings.Repeat("x", 150), Timestamp: 1 << 50, Latitude: 12.5, Longitude: 99.25},
}

func TestEncodeDecode(t *testing.T) {
	for _, s := range samples {
		slot, err := Encode(s, slotSize)
		if err != nil {
			t.Fatalf("could not encode %v: %v", s, err)
		}

		if len(slot) != slotSize {
			t.Errorf("expected slot of %d bytes, got: %d", slotSize, len(slot))
		}

		got, err := Decode(slot)
		if err != nil {
			t.Fatalf("could not decode %v: %v", s, err)
		}

		if got.GetId() != s.GetId() || got.GetTimestamp() != s.GetTimestamp() ||
			got.GetLatitude() != s.GetLatitude() || got.GetLongitude() != s.GetLongitude() {
			t.Errorf("failure - expected: %v, but got: %v", s, got)
		}
	}
}

func TestEncodeTooLarge(t *testing.T) {
	s := &Sample{Id: strings.Repeat("x", slotSize), Timestamp: 1}

	slot, err := Encode(s, slotSize)
	if errors.Cause(err) != ErrEncodingTooLarge {
		t.Errorf("expected ErrEncodingTooLarge, got: %v", err)
	}

	if slot != nil {
		t.Error("expected no slot bytes on failure")
	}
}

func TestEncodeInvalid(t *testing.T) {
	_, err := Encode(&Sample{Timestamp: 1}, slotSize)
	if errors.Cause(err) != ErrInvalidSample {
		t.Errorf("expected ErrInvalidSample, got: %v", err)
	}

	_, err = Encode(nil, slotSize)
	if errors.Cause(err) != ErrInvalidSample {
		t.Errorf("expected ErrInvalidSample for nil sample, got: %v", err)
	}

	invalid := map[string]*Sample{
		"utf8":      &Sample{Id: "bad\xff\xfeid", Timestamp: 1},
		"latitude":  &Sample{Id: "a", Latitude: math.NaN()},
		"longitude": &Sample{Id: "a", Longitude: math.NaN()},
	}

	for name, s := range invalid {
		err := Validate(s)
		if errors.Cause(err) != ErrInvalidSample {
			t.Errorf("%s: expected ErrInvalidSample, got: %v", name, err)
		}

		_, err = Encode(s, slotSize)
		if errors.Cause(err) != ErrInvalidSample {
			t.Errorf("%s: expected ErrInvalidSample from Encode, got: %v", name, err)
		}
	}
}

func TestDecodeCorrupt(t *testing.T) {
	valid, err := Encode(samples[1], slotSize)
	if err != nil {
		t.Fatal(err)
	}

	flipped := append([]byte(nil), valid...)
	flipped[HeaderSize+2] ^= 0xff

	oversized := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(oversized[0:4], slotSize)

	tests := map[string][]byte{
		"zeroes":    make([]byte, slotSize),
		"short":     valid[:4],
		"checksum":  flipped,
		"oversized": oversized,
	}

	for name, slot := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(slot)
			if errors.Cause(err) != ErrDecodeCorrupt {
				t.Errorf("expected ErrDecodeCorrupt, got: %v", err)
			}
		})
	}
}
