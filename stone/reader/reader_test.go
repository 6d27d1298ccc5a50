package reader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/halcyonos/stone/stone/format"
	"github.com/halcyonos/stone/stone/writer"
)

func buildArchive(t *testing.T, compression format.Compression, build func(*writer.ArchiveWriter)) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	archive := writer.New(buf, format.FileTypeBinary)
	archive.Compression = compression
	build(archive)
	if err := archive.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// A minimal archive: version 1, one uncompressed meta payload holding
// a single NAME="example" string record.
func TestMetaArchive(t *testing.T) {
	raw := buildArchive(t, format.CompressionNone, func(archive *writer.ArchiveWriter) {
		err := archive.AddMeta([]format.Meta{
			{Tag: format.MetaTagName, Type: format.PrimitiveString, Text: "example"},
		})
		if err != nil {
			t.Fatal(err)
		}
	})

	archiveReader, err := NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	defer archiveReader.Close()

	header := archiveReader.Header()
	if header.Version != format.HeaderVersionV1 {
		t.Fatalf("version %d", header.Version)
	}
	if header.V1.NumPayloads != 1 || header.V1.FileType != format.FileTypeBinary {
		t.Fatalf("v1 header %+v", header.V1)
	}

	payload, err := archiveReader.NextPayload()
	if err != nil {
		t.Fatal(err)
	}
	if payload.Header().Kind != format.KindMeta || payload.Header().NumRecords != 1 {
		t.Fatalf("payload header %+v", payload.Header())
	}

	record, err := payload.NextMeta()
	if err != nil {
		t.Fatal(err)
	}
	if record.Tag != format.MetaTagName || record.Text != "example" {
		t.Errorf("record %+v", record)
	}

	if _, err := payload.NextMeta(); err != io.EOF {
		t.Errorf("after last record: %v, want io.EOF", err)
	}
	if _, err := archiveReader.NextPayload(); err != io.EOF {
		t.Errorf("after last payload: %v, want io.EOF", err)
	}
}

// A regular layout entry whose digest resolves through the index to a
// 5-byte span of the content stream.
func TestContentAddressing(t *testing.T) {
	var digest [16]byte
	raw := buildArchive(t, format.CompressionZstd, func(archive *writer.ArchiveWriter) {
		var err error
		digest, err = archive.AddContent(strings.NewReader("hello"))
		if err != nil {
			t.Fatal(err)
		}
		err = archive.AddLayout([]format.Layout{{
			Mode:     0o644,
			FileType: format.LayoutRegular,
			Digest:   digest,
			Target:   "usr/share/hello",
		}})
		if err != nil {
			t.Fatal(err)
		}
	})

	archiveReader, err := NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	defer archiveReader.Close()

	var (
		layouts []format.Layout
		indexes []format.Index
		content bytes.Buffer
	)
	for {
		payload, err := archiveReader.NextPayload()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}

		switch payload.Header().Kind {
		case format.KindLayout:
			for {
				record, err := payload.NextLayout()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					t.Fatal(err)
				}
				layouts = append(layouts, record)
			}
		case format.KindIndex:
			for {
				record, err := payload.NextIndex()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					t.Fatal(err)
				}
				indexes = append(indexes, record)
			}
		case format.KindContent:
			if err := archiveReader.UnpackContent(payload, &content); err != nil {
				t.Fatal(err)
			}
		}
	}

	if len(layouts) != 1 || len(indexes) != 1 {
		t.Fatalf("%d layouts, %d index records", len(layouts), len(indexes))
	}
	if indexes[0].Digest != digest || layouts[0].Digest != digest {
		t.Error("digest does not link layout to index")
	}
	if indexes[0].Start != 0 || indexes[0].End != 5 {
		t.Errorf("index range [%d, %d), want [0, 5)", indexes[0].Start, indexes[0].End)
	}
	if got := content.String()[indexes[0].Start:indexes[0].End]; got != "hello" {
		t.Errorf("content span %q, want %q", got, "hello")
	}
}

// Abandoning a payload mid-decode must not disturb the framing of the
// payloads after it, including when zstd has read ahead internally.
func TestAdvancePastPartiallyConsumedPayload(t *testing.T) {
	for _, compression := range []format.Compression{format.CompressionNone, format.CompressionZstd} {
		raw := buildArchive(t, compression, func(archive *writer.ArchiveWriter) {
			err := archive.AddMeta([]format.Meta{
				{Tag: format.MetaTagName, Type: format.PrimitiveString, Text: "example"},
				{Tag: format.MetaTagVersion, Type: format.PrimitiveString, Text: "1.2.3"},
				{Tag: format.MetaTagRelease, Type: format.PrimitiveUint64, Uint64: 4},
			})
			if err != nil {
				t.Fatal(err)
			}
			err = archive.AddLayout([]format.Layout{{
				FileType: format.LayoutDirectory,
				Target:   "usr",
			}})
			if err != nil {
				t.Fatal(err)
			}
		})

		archiveReader, err := NewReader(bytes.NewReader(raw))
		if err != nil {
			t.Fatal(err)
		}

		meta, err := archiveReader.NextPayload()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := meta.NextMeta(); err != nil {
			t.Fatal(err)
		}
		// two records left undecoded

		layout, err := archiveReader.NextPayload()
		if err != nil {
			t.Fatalf("%s: advancing past partial payload: %v", compression, err)
		}
		record, err := layout.NextLayout()
		if err != nil {
			t.Fatalf("%s: %v", compression, err)
		}
		if record.Target != "usr" {
			t.Errorf("%s: layout record %+v", compression, record)
		}

		if _, err := meta.NextMeta(); !errors.Is(err, ErrStalePayload) {
			t.Errorf("%s: stale payload gave %v", compression, err)
		}
		archiveReader.Close()
	}
}

// Iterating payloads without touching their bodies must consume exactly
// header + sum(payload header + stored size) bytes from the source.
func TestFramingConsumption(t *testing.T) {
	raw := buildArchive(t, format.CompressionZstd, func(archive *writer.ArchiveWriter) {
		if _, err := archive.AddContent(strings.NewReader("some file content")); err != nil {
			t.Fatal(err)
		}
		err := archive.AddMeta([]format.Meta{
			{Tag: format.MetaTagName, Type: format.PrimitiveString, Text: "pkg"},
		})
		if err != nil {
			t.Fatal(err)
		}
	})

	src := bytes.NewReader(raw)
	archiveReader, err := NewReader(src)
	if err != nil {
		t.Fatal(err)
	}
	for {
		if _, err := archiveReader.NextPayload(); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			t.Fatal(err)
		}
	}

	offset, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		t.Fatal(err)
	}
	if offset != int64(len(raw)) {
		t.Errorf("source at offset %d after skipping all payloads, want %d", offset, len(raw))
	}
}

func TestUnknownPayloadKindIsSkippable(t *testing.T) {
	buf := new(bytes.Buffer)
	header := format.Header{
		Version: format.HeaderVersionV1,
		V1:      format.HeaderV1{NumPayloads: 2, FileType: format.FileTypeBinary},
	}
	if err := header.Encode(buf); err != nil {
		t.Fatal(err)
	}

	// A payload kind from the future.
	future := []byte{0xde, 0xad, 0xbe, 0xef}
	futureHeader := format.PayloadHeader{
		StoredSize:  uint64(len(future)),
		PlainSize:   uint64(len(future)),
		Version:     1,
		Kind:        format.Kind(200),
		Compression: format.CompressionNone,
	}
	if err := futureHeader.Encode(buf); err != nil {
		t.Fatal(err)
	}
	buf.Write(future)

	plain := new(bytes.Buffer)
	record := format.Meta{Tag: format.MetaTagName, Type: format.PrimitiveString, Text: "pkg"}
	if err := record.Encode(plain); err != nil {
		t.Fatal(err)
	}
	metaHeader := format.PayloadHeader{
		StoredSize:  uint64(plain.Len()),
		PlainSize:   uint64(plain.Len()),
		NumRecords:  1,
		Version:     1,
		Kind:        format.KindMeta,
		Compression: format.CompressionNone,
	}
	if err := metaHeader.Encode(buf); err != nil {
		t.Fatal(err)
	}
	buf.Write(plain.Bytes())

	archiveReader, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer archiveReader.Close()

	payload, err := archiveReader.NextPayload()
	if err != nil {
		t.Fatal(err)
	}
	if payload.Header().Kind != format.Kind(200) {
		t.Fatalf("kind %d, want raw 200", payload.Header().Kind)
	}
	if _, err := payload.NextMeta(); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("meta record from unknown payload: %v", err)
	}

	payload, err = archiveReader.NextPayload()
	if err != nil {
		t.Fatalf("decoding after unknown payload: %v", err)
	}
	got, err := payload.NextMeta()
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "pkg" {
		t.Errorf("record %+v", got)
	}
}

func TestZeroPayloads(t *testing.T) {
	raw := buildArchive(t, format.CompressionZstd, func(*writer.ArchiveWriter) {})

	archiveReader, err := NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if archiveReader.Header().V1.NumPayloads != 0 {
		t.Fatalf("header %+v", archiveReader.Header())
	}
	if _, err := archiveReader.NextPayload(); err != io.EOF {
		t.Errorf("got %v, want io.EOF", err)
	}
}

func TestEmptyContentPayload(t *testing.T) {
	buf := new(bytes.Buffer)
	header := format.Header{
		Version: format.HeaderVersionV1,
		V1:      format.HeaderV1{NumPayloads: 1, FileType: format.FileTypeBinary},
	}
	if err := header.Encode(buf); err != nil {
		t.Fatal(err)
	}
	payloadHeader := format.PayloadHeader{
		Version:     1,
		Kind:        format.KindContent,
		Compression: format.CompressionNone,
	}
	binary.BigEndian.PutUint64(payloadHeader.Checksum[:], xxhash.Sum64(nil))
	if err := payloadHeader.Encode(buf); err != nil {
		t.Fatal(err)
	}

	archiveReader, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	payload, err := archiveReader.NextPayload()
	if err != nil {
		t.Fatal(err)
	}
	content, err := payload.Content()
	if err != nil {
		t.Fatal(err)
	}

	n, err := content.Read(make([]byte, 16))
	if n != 0 || err != io.EOF {
		t.Errorf("first read gave (%d, %v), want (0, io.EOF)", n, err)
	}
	if !content.IsChecksumValid() {
		t.Error("empty content stream should have a trivially valid checksum")
	}
}

func TestChecksumDetectsCorruption(t *testing.T) {
	raw := buildArchive(t, format.CompressionNone, func(archive *writer.ArchiveWriter) {
		if _, err := archive.AddContent(strings.NewReader("hello world, this is file content")); err != nil {
			t.Fatal(err)
		}
	})

	// Content is the last payload; flipping its final byte leaves the
	// framing intact but breaks the checksum.
	raw[len(raw)-1] ^= 0xff

	archiveReader, err := NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	for {
		payload, err := archiveReader.NextPayload()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if payload.Header().Kind != format.KindContent {
			continue
		}
		err = archiveReader.UnpackContent(payload, io.Discard)
		if !errors.Is(err, ErrCorruptPayload) {
			t.Errorf("got %v, want ErrCorruptPayload", err)
		}
	}
}

func TestChecksumInvalidBeforeDrain(t *testing.T) {
	raw := buildArchive(t, format.CompressionNone, func(archive *writer.ArchiveWriter) {
		if _, err := archive.AddContent(strings.NewReader("hello world")); err != nil {
			t.Fatal(err)
		}
	})

	archiveReader, err := NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	for {
		payload, err := archiveReader.NextPayload()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if payload.Header().Kind != format.KindContent {
			continue
		}

		content, err := payload.Content()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := content.Read(make([]byte, 3)); err != nil {
			t.Fatal(err)
		}
		if content.IsChecksumValid() {
			t.Error("checksum reported valid before the stream was drained")
		}
	}
}

func TestContentLengthMismatch(t *testing.T) {
	build := func(storedSize, plainSize uint64, body []byte) []byte {
		buf := new(bytes.Buffer)
		header := format.Header{
			Version: format.HeaderVersionV1,
			V1:      format.HeaderV1{NumPayloads: 1, FileType: format.FileTypeBinary},
		}
		if err := header.Encode(buf); err != nil {
			t.Fatal(err)
		}
		payloadHeader := format.PayloadHeader{
			StoredSize:  storedSize,
			PlainSize:   plainSize,
			Version:     1,
			Kind:        format.KindContent,
			Compression: format.CompressionNone,
		}
		if err := payloadHeader.Encode(buf); err != nil {
			t.Fatal(err)
		}
		buf.Write(body)
		return buf.Bytes()
	}

	readContent := func(raw []byte) error {
		archiveReader, err := NewReader(bytes.NewReader(raw))
		if err != nil {
			t.Fatal(err)
		}
		payload, err := archiveReader.NextPayload()
		if err != nil {
			t.Fatal(err)
		}
		content, err := payload.Content()
		if err != nil {
			t.Fatal(err)
		}
		_, err = io.Copy(io.Discard, content)
		return err
	}

	// Declared plain size larger than the bytes actually present.
	err := readContent(build(5, 10, []byte("12345")))
	if !errors.Is(err, ErrTruncatedPayload) {
		t.Errorf("short stream gave %v, want ErrTruncatedPayload", err)
	}

	// More bytes present than the declared plain size.
	err = readContent(build(10, 5, []byte("1234567890")))
	if !errors.Is(err, ErrCorruptPayload) {
		t.Errorf("long stream gave %v, want ErrCorruptPayload", err)
	}
}

// A failed content stream must keep reporting its original error kind:
// a truncated payload stays truncated on every later read.
func TestContentErrorIsSticky(t *testing.T) {
	buf := new(bytes.Buffer)
	header := format.Header{
		Version: format.HeaderVersionV1,
		V1:      format.HeaderV1{NumPayloads: 1, FileType: format.FileTypeBinary},
	}
	if err := header.Encode(buf); err != nil {
		t.Fatal(err)
	}
	payloadHeader := format.PayloadHeader{
		StoredSize:  5,
		PlainSize:   10,
		Version:     1,
		Kind:        format.KindContent,
		Compression: format.CompressionNone,
	}
	if err := payloadHeader.Encode(buf); err != nil {
		t.Fatal(err)
	}
	buf.WriteString("12345")

	archiveReader, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	payload, err := archiveReader.NextPayload()
	if err != nil {
		t.Fatal(err)
	}
	content, err := payload.Content()
	if err != nil {
		t.Fatal(err)
	}

	_, err = io.Copy(io.Discard, content)
	if !errors.Is(err, ErrTruncatedPayload) {
		t.Fatalf("got %v, want ErrTruncatedPayload", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := content.Read(make([]byte, 8)); !errors.Is(err, ErrTruncatedPayload) {
			t.Errorf("read %d after failure gave %v, want ErrTruncatedPayload", i, err)
		}
	}
	if content.IsChecksumValid() {
		t.Error("failed stream reported a valid checksum")
	}
}

func TestRecordKindMismatch(t *testing.T) {
	raw := buildArchive(t, format.CompressionNone, func(archive *writer.ArchiveWriter) {
		err := archive.AddMeta([]format.Meta{
			{Tag: format.MetaTagName, Type: format.PrimitiveString, Text: "pkg"},
		})
		if err != nil {
			t.Fatal(err)
		}
	})

	archiveReader, err := NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	payload, err := archiveReader.NextPayload()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := payload.NextLayout(); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("layout from meta payload: %v", err)
	}
	if _, err := payload.Content(); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("content from meta payload: %v", err)
	}
}
