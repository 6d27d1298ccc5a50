package reader

import (
	"io"

	"github.com/halcyonos/stone/stone/format"
	"github.com/halcyonos/stone/stone/ioutil"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

var (
	ErrTruncatedPayload   = errors.New("payload truncated")
	ErrCorruptPayload     = errors.New("payload corrupt")
	ErrKindMismatch       = errors.New("record kind does not match payload kind")
	ErrStalePayload       = errors.New("payload invalidated by advancing the reader")
	ErrUnknownCompression = errors.New("unknown compression")
)

// Reader decodes a stone archive from any seekable byte source. It is
// strictly forward-only: payloads come out one at a time via
// NextPayload, and advancing invalidates the previous payload along
// with everything borrowed from it. A Reader is not safe for
// concurrent use; independent Readers over independent sources are.
type Reader struct {
	src      io.ReadSeeker
	header   format.Header
	produced uint16
	current  *Payload
}

// NewReader decodes the archive header from src and returns a reader
// positioned at the first payload. src must be positioned at the start
// of the archive.
func NewReader(src io.ReadSeeker) (*Reader, error) {
	header, err := format.DecodeHeader(src)
	if err != nil {
		return nil, err
	}

	return &Reader{
		src:    src,
		header: header,
	}, nil
}

// Header returns the decoded archive header.
func (r *Reader) Header() format.Header {
	return r.header
}

// NextPayload frames the next payload, first discarding whatever
// remains of the current one. Partially consumed payloads are legal:
// the source is seeked forward over the undecoded stored bytes, so
// framing of the following payloads is unaffected. Returns io.EOF once
// the header's declared payload count has been produced.
func (r *Reader) NextPayload() (*Payload, error) {
	if previous := r.current; previous != nil {
		r.current = nil
		if err := r.release(previous); err != nil {
			return nil, err
		}
	}

	if r.produced >= r.header.V1.NumPayloads {
		return nil, io.EOF
	}

	header, err := format.DecodePayloadHeader(r.src)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrap(ErrTruncatedPayload, "short payload header")
		}
		return nil, errors.Wrap(err, "failed to read payload header")
	}
	r.produced++

	payload := &Payload{
		header: header,
		stored: ioutil.NewCountReader(io.LimitReader(r.src, int64(header.StoredSize))),
	}

	// Unknown compression is not fatal here: the payload can still be
	// skipped via its stored size. Decoding its bytes is what fails.
	payload.rawPlain, payload.zdec, payload.plainErr = decompressor(payload.stored, header.Compression)
	if payload.plainErr == nil {
		payload.plain = io.LimitReader(payload.rawPlain, int64(header.PlainSize))
	}

	r.current = payload
	return payload, nil
}

// release invalidates p and walks the source past its unread stored
// bytes.
func (r *Reader) release(p *Payload) error {
	p.stale = true
	if p.zdec != nil {
		p.zdec.Close()
		p.zdec = nil
	}

	remaining := int64(p.header.StoredSize) - p.stored.Count()
	if remaining > 0 {
		if _, err := r.src.Seek(remaining, io.SeekCurrent); err != nil {
			return errors.Wrap(err, "failed to seek past payload")
		}
	}
	return nil
}

// Close releases the decompression state of the active payload. The
// source position is undefined afterwards; the caller owns the source
// and closes it separately.
func (r *Reader) Close() error {
	if r.current != nil {
		r.current.stale = true
		if r.current.zdec != nil {
			r.current.zdec.Close()
			r.current.zdec = nil
		}
		r.current = nil
	}
	return nil
}

// UnpackContent drains a content payload into w, verifying the payload
// checksum over everything delivered.
func (r *Reader) UnpackContent(p *Payload, w io.Writer) error {
	content, err := p.Content()
	if err != nil {
		return err
	}

	buf := make([]byte, content.BufHint())
	if _, err := io.CopyBuffer(w, content, buf); err != nil {
		return err
	}
	if !content.IsChecksumValid() {
		return errors.Wrap(ErrCorruptPayload, "content checksum mismatch")
	}
	return nil
}

// Payload is the live handle for one framed payload. It borrows its
// validity from the Reader that produced it and goes stale the moment
// the reader advances. Decoded records own their data and survive the
// payload.
type Payload struct {
	header format.PayloadHeader

	stored   *ioutil.CountReader // stored (possibly compressed) region
	rawPlain io.Reader           // decompressed stream
	plain    io.Reader           // decompressed stream, capped at PlainSize
	zdec     *zstd.Decoder
	plainErr error

	decoded uint64
	stale   bool
}

// Header returns the payload's framing header.
func (p *Payload) Header() format.PayloadHeader {
	return p.header
}

func (p *Payload) recordStream(kind format.Kind) error {
	if p.stale {
		return ErrStalePayload
	}
	if p.header.Kind != kind {
		return errors.Wrapf(ErrKindMismatch, "payload holds %s records", p.header.Kind)
	}
	return p.plainErr
}

// NextMeta decodes the next meta record, returning io.EOF after the
// payload's declared record count.
func (p *Payload) NextMeta() (format.Meta, error) {
	if err := p.recordStream(format.KindMeta); err != nil {
		return format.Meta{}, err
	}
	if p.decoded >= p.header.NumRecords {
		return format.Meta{}, io.EOF
	}

	record, err := format.DecodeMeta(p.plain)
	if err != nil {
		return format.Meta{}, err
	}
	p.decoded++
	return record, nil
}

// NextLayout decodes the next layout record, returning io.EOF after the
// payload's declared record count.
func (p *Payload) NextLayout() (format.Layout, error) {
	if err := p.recordStream(format.KindLayout); err != nil {
		return format.Layout{}, err
	}
	if p.decoded >= p.header.NumRecords {
		return format.Layout{}, io.EOF
	}

	record, err := format.DecodeLayout(p.plain)
	if err != nil {
		return format.Layout{}, err
	}
	p.decoded++
	return record, nil
}

// NextIndex decodes the next index record, returning io.EOF after the
// payload's declared record count.
func (p *Payload) NextIndex() (format.Index, error) {
	if err := p.recordStream(format.KindIndex); err != nil {
		return format.Index{}, err
	}
	if p.decoded >= p.header.NumRecords {
		return format.Index{}, io.EOF
	}

	record, err := format.DecodeIndex(p.plain)
	if err != nil {
		return format.Index{}, err
	}
	p.decoded++
	return record, nil
}

// NextAttribute decodes the next attribute record, returning io.EOF
// after the payload's declared record count.
func (p *Payload) NextAttribute() (format.Attribute, error) {
	if err := p.recordStream(format.KindAttributes); err != nil {
		return format.Attribute{}, err
	}
	if p.decoded >= p.header.NumRecords {
		return format.Attribute{}, io.EOF
	}

	record, err := format.DecodeAttribute(p.plain)
	if err != nil {
		return format.Attribute{}, err
	}
	p.decoded++
	return record, nil
}
