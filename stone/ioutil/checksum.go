package ioutil

import (
	"hash"
	"io"
)

// HashWriter tees every written byte into a hash.
type HashWriter struct {
	writer io.Writer
	hasher hash.Hash
}

func NewHashWriter(dest io.Writer, hasher hash.Hash) *HashWriter {
	return &HashWriter{
		writer: dest,
		hasher: hasher,
	}
}

func (w *HashWriter) Write(b []byte) (int, error) {
	n, err := w.writer.Write(b)
	w.hasher.Write(b[:n])
	return n, err
}

func (w *HashWriter) Sum() []byte {
	return w.hasher.Sum(nil)
}

// HashReader feeds every byte it returns into a hash, so a stream can
// be digested while it is consumed.
type HashReader struct {
	reader io.Reader
	hasher hash.Hash
}

func NewHashReader(src io.Reader, hasher hash.Hash) *HashReader {
	return &HashReader{
		reader: src,
		hasher: hasher,
	}
}

func (r *HashReader) Read(b []byte) (int, error) {
	n, err := r.reader.Read(b)
	if n > 0 {
		r.hasher.Write(b[:n])
	}
	return n, err
}

func (r *HashReader) Sum() []byte {
	return r.hasher.Sum(nil)
}
