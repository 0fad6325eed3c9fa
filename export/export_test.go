package export

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/dsnet/compress/bzip2"
	"github.com/golang/protobuf/jsonpb"
	"github.com/pkg/errors"
	"github.com/ryansann/waypoint/pb"
)

type sliceScanner []*pb.Sample

func (s sliceScanner) Scan(fn func(slot int64, s *pb.Sample) error) error {
	for n, sample := range s {
		err := fn(int64(n), sample)
		if err != nil {
			return err
		}
	}
	return nil
}

func TestExport(t *testing.T) {
	samples := sliceScanner{
		&pb.Sample{Id: "a", Timestamp: 1, Latitude: 0, Longitude: 0},
		&pb.Sample{Id: "b", Timestamp: 2, Latitude: 0, Longitude: 1},
		&pb.Sample{Id: "a", Timestamp: 3, Latitude: 37.5665, Longitude: 126.978},
	}

	var buf bytes.Buffer
	n, err := Export(samples, &buf, bzip2.BestCompression)
	if err != nil {
		t.Fatal(err)
	}

	if n != len(samples) {
		t.Errorf("expected %d samples exported, got: %d", len(samples), n)
	}

	zr, err := bzip2.NewReader(&buf, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()

	var count int
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		var got pb.Sample
		err := jsonpb.Unmarshal(strings.NewReader(sc.Text()), &got)
		if err != nil {
			t.Fatalf("could not unmarshal line %q: %v", sc.Text(), err)
		}

		exp := samples[count]
		if got.GetId() != exp.GetId() || got.GetTimestamp() != exp.GetTimestamp() ||
			got.GetLatitude() != exp.GetLatitude() || got.GetLongitude() != exp.GetLongitude() {
			t.Errorf("failure - expected: %v, but got: %v", exp, &got)
		}

		count++
	}

	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}

	if count != len(samples) {
		t.Errorf("expected %d lines, got: %d", len(samples), count)
	}
}

func TestExportScanError(t *testing.T) {
	failing := scanFunc(func(fn func(int64, *pb.Sample) error) error {
		return errors.New("disk on fire")
	})

	var buf bytes.Buffer
	_, err := Export(failing, &buf, bzip2.DefaultCompression)
	if err == nil {
		t.Error("expected scan error to be returned")
	}
}

type scanFunc func(fn func(int64, *pb.Sample) error) error

func (f scanFunc) Scan(fn func(slot int64, s *pb.Sample) error) error {
	return f(fn)
}
