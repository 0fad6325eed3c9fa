// Package export dumps every stored sample as bzip2 compressed JSON lines.
package export

import (
	"bufio"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/golang/protobuf/jsonpb"
	"github.com/pkg/errors"
	"github.com/ryansann/waypoint/pb"
)

// Scanner walks stored samples in slot order, *engine.Engine implements it.
type Scanner interface {
	Scan(fn func(slot int64, s *pb.Sample) error) error
}

// Export writes one JSON object per sample from s to w, compressed with bzip2 at level
// (bzip2.BestSpeed to bzip2.BestCompression, or bzip2.DefaultCompression). It returns the number of samples written.
func Export(s Scanner, w io.Writer, level int) (int, error) {
	zw, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: level})
	if err != nil {
		return 0, errors.Wrap(err, "could not create bzip2 writer")
	}

	bw := bufio.NewWriter(zw)
	m := &jsonpb.Marshaler{OrigName: true}

	var count int

	err = s.Scan(func(slot int64, sample *pb.Sample) error {
		err := m.Marshal(bw, sample)
		if err != nil {
			return errors.Wrapf(err, "could not marshal sample at slot %d", slot)
		}

		err = bw.WriteByte('\n')
		if err != nil {
			return err
		}

		count++

		return nil
	})
	if err != nil {
		zw.Close()
		return count, err
	}

	err = bw.Flush()
	if err != nil {
		return count, errors.Wrap(err, "could not flush export")
	}

	err = zw.Close()
	if err != nil {
		return count, errors.Wrap(err, "could not close bzip2 writer")
	}

	return count, nil
}
