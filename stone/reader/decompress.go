package reader

import (
	"io"

	"github.com/halcyonos/stone/stone/format"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// decompressor wraps a payload's stored byte region in whatever its
// header demands. The second return value is non-nil only for zstd, so
// the decoder can be closed when the payload is released.
func decompressor(stored io.Reader, compression format.Compression) (io.Reader, *zstd.Decoder, error) {
	switch compression {
	case format.CompressionNone:
		return stored, nil, nil // no compression = passthru
	case format.CompressionZstd:
		dec, err := zstd.NewReader(stored)
		if err != nil {
			return nil, nil, errors.Wrapf(ErrCorruptPayload, "zstd: %v", err)
		}
		return dec, dec, nil
	default:
		return nil, nil, ErrUnknownCompression
	}
}
