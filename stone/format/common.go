package format

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

/*

Every stone archive opens with a fixed 32-byte header: a big-endian u32
format version followed by a version-specific body. The body size is fixed
so that future versions can be dispatched without look-ahead.

All wire integers in this package are big-endian.

*/

const (
	// HeaderSize is the total size of the archive header, for every
	// format version.
	HeaderSize = 32

	// headerBodySize is what remains of the header after the version.
	headerBodySize = HeaderSize - 4
)

type HeaderVersion uint32

const (
	HeaderVersionV1 HeaderVersion = 1
)

// FileType describes what a v1 stone archive carries.
type FileType uint8

const (
	FileTypeBinary        FileType = 1
	FileTypeDelta         FileType = 2
	FileTypeRepository    FileType = 3 // legacy
	FileTypeBuildManifest FileType = 4 // legacy
	FileTypeUnknown       FileType = 255
)

// Kind discriminates the typed payloads within an archive.
type Kind uint8

const (
	KindMeta       Kind = 1
	KindContent    Kind = 2
	KindLayout     Kind = 3
	KindIndex      Kind = 4
	KindAttributes Kind = 5
	KindUnknown    Kind = 255
)

// Compression selects how a payload body is stored.
type Compression uint8

const (
	CompressionNone    Compression = 1
	CompressionZstd    Compression = 2
	CompressionUnknown Compression = 255
)

var (
	ErrMalformedHeader    = errors.New("malformed archive header")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrMalformedRecord    = errors.New("malformed record")
)

// integritySequence fills 21 bytes of the v1 header body, between
// num_payloads and file_type. It doubles as the format's magic: the
// version field alone cannot distinguish a stone archive from arbitrary
// bytes, so a mismatch here is the canonical "this is not a stone
// archive" signal.
var integritySequence = [21]byte{
	7, 14, 21, 28, 35, 42, 49, 56, 63, 70, 77,
	84, 91, 98, 105, 112, 119, 126, 133, 140, 147,
}

// HeaderV1 is the version 1 header body.
type HeaderV1 struct {
	// Number of payloads that follow the header.
	NumPayloads uint16
	// Well-known archive type.
	FileType FileType
}

// Header is the decoded archive header: the format version plus the
// version-specific body. Only V1 is defined; V1 is meaningful only when
// Version == HeaderVersionV1.
type Header struct {
	Version HeaderVersion
	V1      HeaderV1
}

// DecodeHeader consumes exactly HeaderSize bytes from r. An unrecognized
// version yields ErrUnsupportedVersion with Header.Version still set, so
// callers can report what they ran into.
func DecodeHeader(r io.Reader) (Header, error) {
	var raw [HeaderSize]byte

	if _, err := io.ReadFull(r, raw[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Header{}, errors.Wrap(ErrMalformedHeader, "short header")
		}
		return Header{}, errors.Wrap(err, "failed to read archive header")
	}

	header := Header{
		Version: HeaderVersion(binary.BigEndian.Uint32(raw[0:4])),
	}

	if header.Version != HeaderVersionV1 {
		return header, ErrUnsupportedVersion
	}

	body := raw[4:]

	if !bytes.Equal(body[2:23], integritySequence[:]) {
		return header, errors.Wrap(ErrMalformedHeader, "integrity sequence mismatch")
	}

	header.V1 = HeaderV1{
		NumPayloads: binary.BigEndian.Uint16(body[0:2]),
		FileType:    FileType(body[23]),
	}
	// body[24:28] is reserved and deliberately ignored.

	return header, nil
}

// Encode writes the fixed 32-byte header.
func (h Header) Encode(w io.Writer) error {
	var raw [HeaderSize]byte

	binary.BigEndian.PutUint32(raw[0:4], uint32(h.Version))

	body := raw[4:]
	binary.BigEndian.PutUint16(body[0:2], h.V1.NumPayloads)
	copy(body[2:23], integritySequence[:])
	body[23] = uint8(h.V1.FileType)

	if _, err := w.Write(raw[:]); err != nil {
		return errors.Wrap(err, "failed to write archive header")
	}
	return nil
}
