package format

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// PayloadHeaderSize is the encoded size of a payload header.
const PayloadHeaderSize = 8 + 8 + 8 + 8 + 2 + 1 + 1

// PayloadHeader frames one payload. StoredSize counts the bytes as laid
// out in the archive (after compression), PlainSize the decompressed
// bytes, and Checksum is the XXH64 digest of exactly PlainSize plain
// bytes. The checksum algorithm is part of the wire contract.
type PayloadHeader struct {
	StoredSize  uint64
	PlainSize   uint64
	Checksum    [8]byte
	NumRecords  uint64
	Version     uint16
	Kind        Kind
	Compression Compression
}

// DecodePayloadHeader consumes exactly PayloadHeaderSize bytes from r.
// Unrecognized kind and compression values are preserved as-is; tolerating
// them is what lets a reader skip payloads from a future format revision.
func DecodePayloadHeader(r io.Reader) (PayloadHeader, error) {
	var raw [PayloadHeaderSize]byte

	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return PayloadHeader{}, err
	}

	header := PayloadHeader{
		StoredSize:  binary.BigEndian.Uint64(raw[0:8]),
		PlainSize:   binary.BigEndian.Uint64(raw[8:16]),
		NumRecords:  binary.BigEndian.Uint64(raw[24:32]),
		Version:     binary.BigEndian.Uint16(raw[32:34]),
		Kind:        Kind(raw[34]),
		Compression: Compression(raw[35]),
	}
	copy(header.Checksum[:], raw[16:24])

	return header, nil
}

// Encode writes the fixed payload header.
func (h PayloadHeader) Encode(w io.Writer) error {
	var raw [PayloadHeaderSize]byte

	binary.BigEndian.PutUint64(raw[0:8], h.StoredSize)
	binary.BigEndian.PutUint64(raw[8:16], h.PlainSize)
	copy(raw[16:24], h.Checksum[:])
	binary.BigEndian.PutUint64(raw[24:32], h.NumRecords)
	binary.BigEndian.PutUint16(raw[32:34], h.Version)
	raw[34] = uint8(h.Kind)
	raw[35] = uint8(h.Compression)

	if _, err := w.Write(raw[:]); err != nil {
		return errors.Wrap(err, "failed to write payload header")
	}
	return nil
}

// readExact pulls n bytes out of a record stream. Lengths come straight
// off the wire, so the copy is bounded by what the payload actually
// holds rather than trusted up front.
func readExact(r io.Reader, n uint64) ([]byte, error) {
	buf := new(bytes.Buffer)

	copied, err := io.CopyN(buf, r, int64(n))
	if err != nil || uint64(copied) < n {
		return nil, errors.Wrapf(ErrMalformedRecord, "field claims %d bytes, payload holds %d", n, copied)
	}
	return buf.Bytes(), nil
}

func readFixed(r io.Reader, raw []byte) error {
	if _, err := io.ReadFull(r, raw); err != nil {
		return errors.Wrap(ErrMalformedRecord, "record truncated")
	}
	return nil
}
