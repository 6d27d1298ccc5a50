package format

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	in := Header{
		Version: HeaderVersionV1,
		V1: HeaderV1{
			NumPayloads: 4,
			FileType:    FileTypeBinary,
		},
	}

	buf := new(bytes.Buffer)
	if err := in.Encode(buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != HeaderSize {
		t.Fatalf("encoded header is %d bytes, want %d", buf.Len(), HeaderSize)
	}

	out, err := DecodeHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("decoded %+v, want %+v", out, in)
	}
}

func TestHeaderWireLayout(t *testing.T) {
	header := Header{
		Version: HeaderVersionV1,
		V1: HeaderV1{
			NumPayloads: 0x0102,
			FileType:    FileTypeDelta,
		},
	}

	buf := new(bytes.Buffer)
	if err := header.Encode(buf); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()

	if v := binary.BigEndian.Uint32(raw[0:4]); v != 1 {
		t.Errorf("version at offset 0 is %d, want 1", v)
	}
	if n := binary.BigEndian.Uint16(raw[4:6]); n != 0x0102 {
		t.Errorf("num_payloads is %#x, want 0x0102", n)
	}
	if raw[27] != uint8(FileTypeDelta) {
		t.Errorf("file_type byte is %d, want %d", raw[27], FileTypeDelta)
	}
}

func TestHeaderIntegrityMismatch(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := (Header{Version: HeaderVersionV1}).Encode(buf); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	raw[10] ^= 0xff

	_, err := DecodeHeader(bytes.NewReader(raw))
	if !errors.Is(err, ErrMalformedHeader) {
		t.Errorf("got %v, want ErrMalformedHeader", err)
	}
}

func TestHeaderUnsupportedVersion(t *testing.T) {
	raw := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(raw[0:4], 9)

	header, err := DecodeHeader(bytes.NewReader(raw))
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("got %v, want ErrUnsupportedVersion", err)
	}
	if header.Version != 9 {
		t.Errorf("reported version %d, want 9", header.Version)
	}
}

func TestHeaderShort(t *testing.T) {
	_, err := DecodeHeader(bytes.NewReader([]byte{0, 0, 0, 1, 2}))
	if !errors.Is(err, ErrMalformedHeader) {
		t.Errorf("got %v, want ErrMalformedHeader", err)
	}
}
