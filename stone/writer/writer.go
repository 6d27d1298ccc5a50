package writer

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/halcyonos/stone/stone/format"
	"github.com/halcyonos/stone/stone/ioutil"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrClosed = errors.New("archive already closed")
)

// payloadVersion is stamped into every payload header we emit.
const payloadVersion = 1

// ContentDigestSize is the size of the content-addressing digest
// (128-bit BLAKE2b). Part of the wire contract: layout records and
// index records must agree on it across implementations.
const ContentDigestSize = 16

// ArchiveWriter builds a v1 stone archive. Payloads are buffered in
// memory and emitted behind the header on Close, since the header must
// declare how many follow. Record payloads appear in the order they
// were added; the content payload, if any, is emitted last.
type ArchiveWriter struct {
	dst      io.Writer
	fileType format.FileType

	// Compression applied to payload bodies. Defaults to zstd.
	Compression format.Compression

	payloads []encodedPayload

	content     bytes.Buffer
	contentSeen map[[ContentDigestSize]byte]struct{}
	index       []format.Index
	closed      bool
}

type encodedPayload struct {
	header format.PayloadHeader
	stored []byte
}

func New(dst io.Writer, fileType format.FileType) *ArchiveWriter {
	return &ArchiveWriter{
		dst:         dst,
		fileType:    fileType,
		Compression: format.CompressionZstd,
		contentSeen: map[[ContentDigestSize]byte]struct{}{},
	}
}

// AddMeta appends a meta payload holding the given records.
func (archive *ArchiveWriter) AddMeta(records []format.Meta) error {
	return appendRecords(archive, format.KindMeta, records)
}

// AddLayout appends a layout payload holding the given records.
func (archive *ArchiveWriter) AddLayout(records []format.Layout) error {
	return appendRecords(archive, format.KindLayout, records)
}

// AddIndex appends an index payload holding the given records. Content
// added through AddContent builds its own index payload on Close;
// this is for hand-assembled archives.
func (archive *ArchiveWriter) AddIndex(records []format.Index) error {
	return appendRecords(archive, format.KindIndex, records)
}

// AddAttributes appends an attribute payload holding the given records.
func (archive *ArchiveWriter) AddAttributes(records []format.Attribute) error {
	return appendRecords(archive, format.KindAttributes, records)
}

type encoder interface {
	Encode(io.Writer) error
}

func appendRecords[R encoder](archive *ArchiveWriter, kind format.Kind, records []R) error {
	if archive.closed {
		return ErrClosed
	}

	plain := new(bytes.Buffer)
	for _, record := range records {
		if err := record.Encode(plain); err != nil {
			return err
		}
	}

	return archive.appendPayload(kind, uint64(len(records)), plain.Bytes())
}

// AddContent copies one file's bytes into the archive's content stream
// and returns its content digest. Identical content is stored once:
// the second and later additions are dropped on the floor and the
// digest of the existing span returned.
func (archive *ArchiveWriter) AddContent(src io.Reader) ([ContentDigestSize]byte, error) {
	var digest [ContentDigestSize]byte
	if archive.closed {
		return digest, ErrClosed
	}

	hasher, err := blake2b.New(ContentDigestSize, nil)
	if err != nil {
		return digest, errors.Wrap(err, "failed to initialize BLAKE2b hash")
	}

	staging := new(bytes.Buffer)
	if _, err := io.Copy(ioutil.NewHashWriter(staging, hasher), src); err != nil {
		return digest, errors.Wrap(err, "failed to read content")
	}
	copy(digest[:], hasher.Sum(nil))

	if _, dup := archive.contentSeen[digest]; dup {
		return digest, nil
	}
	archive.contentSeen[digest] = struct{}{}

	start := uint64(archive.content.Len())
	archive.content.Write(staging.Bytes())
	archive.index = append(archive.index, format.Index{
		Start:  start,
		End:    uint64(archive.content.Len()),
		Digest: digest,
	})

	return digest, nil
}

// appendPayload checksums and compresses one plain body and queues it.
func (archive *ArchiveWriter) appendPayload(kind format.Kind, numRecords uint64, plain []byte) error {
	header := format.PayloadHeader{
		PlainSize:   uint64(len(plain)),
		NumRecords:  numRecords,
		Version:     payloadVersion,
		Kind:        kind,
		Compression: archive.Compression,
	}
	binary.BigEndian.PutUint64(header.Checksum[:], xxhash.Sum64(plain))

	stored, err := archive.compress(plain)
	if err != nil {
		return err
	}
	header.StoredSize = uint64(len(stored))

	archive.payloads = append(archive.payloads, encodedPayload{
		header: header,
		stored: stored,
	})
	return nil
}

func (archive *ArchiveWriter) compress(plain []byte) ([]byte, error) {
	switch archive.Compression {
	case format.CompressionNone:
		return plain, nil
	case format.CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, errors.Wrap(err, "failed to initialize zstd encoder")
		}
		defer enc.Close()
		return enc.EncodeAll(plain, nil), nil
	default:
		return nil, errors.Errorf("cannot compress with %s", archive.Compression)
	}
}

// Close seals the content stream, writes the archive header and then
// every queued payload. The writer is unusable afterwards.
func (archive *ArchiveWriter) Close() error {
	if archive.closed {
		return ErrClosed
	}

	if len(archive.index) > 0 {
		if err := appendRecords(archive, format.KindIndex, archive.index); err != nil {
			return err
		}
		if err := archive.appendPayload(format.KindContent, 0, archive.content.Bytes()); err != nil {
			return err
		}
	}
	archive.closed = true

	header := format.Header{
		Version: format.HeaderVersionV1,
		V1: format.HeaderV1{
			NumPayloads: uint16(len(archive.payloads)),
			FileType:    archive.fileType,
		},
	}
	if err := header.Encode(archive.dst); err != nil {
		return err
	}

	for _, payload := range archive.payloads {
		if err := payload.header.Encode(archive.dst); err != nil {
			return err
		}
		if _, err := archive.dst.Write(payload.stored); err != nil {
			return errors.Wrap(err, "failed to write payload body")
		}
	}
	return nil
}
