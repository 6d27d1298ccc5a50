package reader

import (
	"bytes"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/halcyonos/stone/stone/format"
	"github.com/halcyonos/stone/stone/ioutil"
	"github.com/pkg/errors"
)

// Suggested read sizes. Purely advisory: any buffer size is correct,
// these just line up nicely with the decompressor's output chunks.
const (
	zstdBufHint  = 128 * 1024
	plainBufHint = 32 * 1024
)

// ContentReader streams the decompressed bytes of a content payload,
// accumulating the payload checksum as it goes. Like its payload, it
// goes stale when the owning Reader advances.
type ContentReader struct {
	payload   *Payload
	src       *ioutil.HashReader
	delivered uint64
	drained   bool
	err       error
}

// Content returns a streaming reader over the payload's plain bytes.
// Only valid for content payloads.
func (p *Payload) Content() (*ContentReader, error) {
	if p.stale {
		return nil, ErrStalePayload
	}
	if p.header.Kind != format.KindContent {
		return nil, errors.Wrapf(ErrKindMismatch, "payload holds %s, not content", p.header.Kind)
	}
	if p.plainErr != nil {
		return nil, p.plainErr
	}

	return &ContentReader{
		payload: p,
		src:     ioutil.NewHashReader(p.rawPlain, xxhash.New()),
	}, nil
}

// Read fills b with plain content bytes, returning 0, io.EOF only once
// exactly PlainSize bytes have been delivered. A stream that runs dry
// early is truncated; one that decompresses past PlainSize is corrupt.
// The first failure sticks: every later call reports the same error.
func (c *ContentReader) Read(b []byte) (int, error) {
	if c.payload.stale {
		return 0, ErrStalePayload
	}
	if c.err != nil {
		return 0, c.err
	}

	remaining := c.payload.header.PlainSize - c.delivered
	if remaining == 0 {
		if err := c.finish(); err != nil {
			return 0, err
		}
		return 0, io.EOF
	}

	if uint64(len(b)) > remaining {
		b = b[:remaining]
	}

	n, err := c.src.Read(b)
	c.delivered += uint64(n)

	switch {
	case err == io.EOF:
		if c.delivered < c.payload.header.PlainSize {
			c.err = errors.Wrapf(ErrTruncatedPayload,
				"content ended after %d of %d plain bytes", c.delivered, c.payload.header.PlainSize)
			return n, c.err
		}
	case err != nil:
		c.err = errors.Wrapf(ErrCorruptPayload, "decompress: %v", err)
		return n, c.err
	}

	if c.delivered == c.payload.header.PlainSize {
		if err := c.finish(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// finish probes one byte past the declared plain size. A conformant
// stream is exhausted here; anything more means the header lied. The
// probe reads the raw plain stream directly so the checksum only ever
// covers delivered bytes.
func (c *ContentReader) finish() error {
	if c.drained {
		return nil
	}

	var probe [1]byte
	n, err := c.payload.rawPlain.Read(probe[:])
	if n > 0 {
		c.err = errors.Wrapf(ErrCorruptPayload,
			"content exceeds declared plain size %d", c.payload.header.PlainSize)
		return c.err
	}
	if err != nil && err != io.EOF {
		c.err = errors.Wrapf(ErrCorruptPayload, "decompress: %v", err)
		return c.err
	}

	c.drained = true
	return nil
}

// BufHint suggests a read size matched to the payload's compression.
// It is a performance hint, never a correctness requirement.
func (c *ContentReader) BufHint() int {
	if c.payload.header.Compression == format.CompressionZstd {
		return zstdBufHint
	}
	return plainBufHint
}

// IsChecksumValid reports whether the bytes delivered so far match the
// payload checksum. The answer is only meaningful after the stream has
// been fully drained; before that it is a definite false.
func (c *ContentReader) IsChecksumValid() bool {
	if !c.drained || c.err != nil {
		return false
	}
	return bytes.Equal(c.src.Sum(), c.payload.header.Checksum[:])
}
