package format

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Attribute is an opaque key/value pair. The format assigns no meaning
// to either side; producers and consumers agree on conventions out of
// band.
type Attribute struct {
	Key   []byte
	Value []byte
}

// DecodeAttribute reads one attribute record: u64 key and value lengths
// followed by the key and value bytes.
func DecodeAttribute(r io.Reader) (Attribute, error) {
	var fixed [16]byte
	if err := readFixed(r, fixed[:]); err != nil {
		return Attribute{}, err
	}

	keyLen := binary.BigEndian.Uint64(fixed[0:8])
	valueLen := binary.BigEndian.Uint64(fixed[8:16])

	key, err := readExact(r, keyLen)
	if err != nil {
		return Attribute{}, err
	}
	value, err := readExact(r, valueLen)
	if err != nil {
		return Attribute{}, err
	}

	return Attribute{Key: key, Value: value}, nil
}

// Encode writes the record in wire form.
func (a Attribute) Encode(w io.Writer) error {
	var fixed [16]byte
	binary.BigEndian.PutUint64(fixed[0:8], uint64(len(a.Key)))
	binary.BigEndian.PutUint64(fixed[8:16], uint64(len(a.Value)))

	if _, err := w.Write(fixed[:]); err != nil {
		return errors.Wrap(err, "failed to write attribute record")
	}
	if _, err := w.Write(a.Key); err != nil {
		return errors.Wrap(err, "failed to write attribute record")
	}
	if _, err := w.Write(a.Value); err != nil {
		return errors.Wrap(err, "failed to write attribute record")
	}
	return nil
}
