package format

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Index addresses one deduplicated span of the content stream: the half
// open byte range [Start, End) and the 128-bit digest of those bytes.
// Layout records reference content through the digest, never through
// positions.
type Index struct {
	Start  uint64
	End    uint64
	Digest [16]byte
}

const indexRecordSize = 8 + 8 + 16

// DecodeIndex reads one index record.
func DecodeIndex(r io.Reader) (Index, error) {
	var fixed [indexRecordSize]byte
	if err := readFixed(r, fixed[:]); err != nil {
		return Index{}, err
	}

	record := Index{
		Start: binary.BigEndian.Uint64(fixed[0:8]),
		End:   binary.BigEndian.Uint64(fixed[8:16]),
	}
	copy(record.Digest[:], fixed[16:32])

	return record, nil
}

// Encode writes the record in wire form.
func (i Index) Encode(w io.Writer) error {
	var fixed [indexRecordSize]byte

	binary.BigEndian.PutUint64(fixed[0:8], i.Start)
	binary.BigEndian.PutUint64(fixed[8:16], i.End)
	copy(fixed[16:32], i.Digest[:])

	if _, err := w.Write(fixed[:]); err != nil {
		return errors.Wrap(err, "failed to write index record")
	}
	return nil
}

// Size returns the number of content bytes the record spans.
func (i Index) Size() uint64 {
	return i.End - i.Start
}
