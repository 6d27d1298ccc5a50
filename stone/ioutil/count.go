package ioutil

import "io"

// CountReader tracks how many bytes have been pulled from a stream.
// The archive reader wraps each payload's stored region in one so it
// knows how far the source has actually moved, even when a
// decompressor with internal read-ahead sits on top.
type CountReader struct {
	reader io.Reader
	count  int64
}

func NewCountReader(src io.Reader) *CountReader {
	return &CountReader{reader: src}
}

func (r *CountReader) Read(b []byte) (int, error) {
	n, err := r.reader.Read(b)
	r.count += int64(n)
	return n, err
}

// Count reports the bytes consumed so far.
func (r *CountReader) Count() int64 {
	return r.count
}
