package format

import (
	"bytes"
	"errors"
	"testing"
)

func TestLayoutRegularRoundTrip(t *testing.T) {
	in := Layout{
		UID:      1000,
		GID:      100,
		Mode:     0o100644,
		Tag:      7,
		FileType: LayoutRegular,
		Digest:   [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		Target:   "usr/bin/example",
	}

	buf := new(bytes.Buffer)
	if err := in.Encode(buf); err != nil {
		t.Fatal(err)
	}

	out, err := DecodeLayout(buf)
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("decoded %+v, want %+v", out, in)
	}
	if buf.Len() != 0 {
		t.Errorf("%d bytes left over", buf.Len())
	}
}

func TestLayoutSymlinkRoundTrip(t *testing.T) {
	in := Layout{
		Mode:     0o120777,
		FileType: LayoutSymlink,
		Source:   "../lib/libexample.so.1.2.3",
		Target:   "usr/lib/libexample.so.1",
	}

	buf := new(bytes.Buffer)
	if err := in.Encode(buf); err != nil {
		t.Fatal(err)
	}

	out, err := DecodeLayout(buf)
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("decoded %+v, want %+v", out, in)
	}
}

func TestLayoutDirectoryNoSource(t *testing.T) {
	in := Layout{
		Mode:     0o40755,
		FileType: LayoutDirectory,
		Target:   "usr/share/doc",
	}

	buf := new(bytes.Buffer)
	if err := in.Encode(buf); err != nil {
		t.Fatal(err)
	}
	// u32 x4 + u16 x2 + type + 11 padding + target only
	if want := 32 + len(in.Target); buf.Len() != want {
		t.Errorf("encoded %d bytes, want %d", buf.Len(), want)
	}

	out, err := DecodeLayout(buf)
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("decoded %+v, want %+v", out, in)
	}
}

func TestLayoutTrimsTrailingNuls(t *testing.T) {
	in := Layout{
		FileType: LayoutDirectory,
		Target:   "etc/profile.d\x00\x00",
	}

	buf := new(bytes.Buffer)
	if err := in.Encode(buf); err != nil {
		t.Fatal(err)
	}

	out, err := DecodeLayout(buf)
	if err != nil {
		t.Fatal(err)
	}
	if out.Target != "etc/profile.d" {
		t.Errorf("target %q, want trailing NULs trimmed", out.Target)
	}
}

func TestLayoutUnknownFileType(t *testing.T) {
	in := Layout{
		FileType: LayoutFileType(42),
		Source:   "whatever",
		Target:   "some/path",
	}

	buf := new(bytes.Buffer)
	if err := in.Encode(buf); err != nil {
		t.Fatal(err)
	}

	out, err := DecodeLayout(buf)
	if err != nil {
		t.Fatal(err)
	}
	if out.FileType != LayoutFileType(42) {
		t.Errorf("file type %d, want raw 42", out.FileType)
	}
	if out.Source != "whatever" || out.Target != "some/path" {
		t.Errorf("decoded %+v", out)
	}
}

func TestLayoutRegularBadDigest(t *testing.T) {
	// A regular entry whose source is not 16 bytes is corrupt.
	buf := new(bytes.Buffer)
	in := Layout{
		FileType: LayoutSymlink,
		Source:   "short",
		Target:   "usr/bin/x",
	}
	if err := in.Encode(buf); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	raw[20] = uint8(LayoutRegular)

	_, err := DecodeLayout(bytes.NewReader(raw))
	if !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("got %v, want ErrMalformedRecord", err)
	}
}
