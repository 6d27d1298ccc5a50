package format

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// LayoutFileType records what kind of filesystem entry a layout record
// rebuilds on the target installation.
type LayoutFileType uint8

const (
	LayoutRegular         LayoutFileType = 1
	LayoutSymlink         LayoutFileType = 2
	LayoutDirectory       LayoutFileType = 3
	LayoutCharacterDevice LayoutFileType = 4
	LayoutBlockDevice     LayoutFileType = 5
	LayoutFifo            LayoutFileType = 6
	LayoutSocket          LayoutFileType = 7
	LayoutUnknown         LayoutFileType = 255
)

// Layout is one filesystem entry. FileType selects the entry shape:
// regular entries carry the 128-bit digest of their content plus a
// target path, symlinks carry source and target, every other kind only
// a target. Unrecognized file types keep both raw fields so the record
// still frames.
type Layout struct {
	UID  uint32
	GID  uint32
	Mode uint32
	Tag  uint32

	FileType LayoutFileType

	// Digest links a regular entry to the index record describing its
	// bytes in the content stream.
	Digest [16]byte
	// Source is what a symlink points at, or raw source bytes for an
	// unrecognized file type.
	Source string
	// Target is the entry's path within the package.
	Target string
}

const layoutDigestSize = 16

// DecodeLayout reads one layout record: four u32 fields, u16 source and
// target lengths, the file type byte, 11 reserved bytes, then the
// variable source and target.
func DecodeLayout(r io.Reader) (Layout, error) {
	var fixed [32]byte
	if err := readFixed(r, fixed[:]); err != nil {
		return Layout{}, err
	}

	record := Layout{
		UID:      binary.BigEndian.Uint32(fixed[0:4]),
		GID:      binary.BigEndian.Uint32(fixed[4:8]),
		Mode:     binary.BigEndian.Uint32(fixed[8:12]),
		Tag:      binary.BigEndian.Uint32(fixed[12:16]),
		FileType: LayoutFileType(fixed[20]),
	}

	sourceLen := binary.BigEndian.Uint16(fixed[16:18])
	targetLen := binary.BigEndian.Uint16(fixed[18:20])
	// fixed[21:32] is reserved padding.

	source, err := readExact(r, uint64(sourceLen))
	if err != nil {
		return Layout{}, err
	}
	target, err := readExact(r, uint64(targetLen))
	if err != nil {
		return Layout{}, err
	}

	switch record.FileType {
	case LayoutRegular:
		if len(source) != layoutDigestSize {
			return Layout{}, errors.Wrapf(ErrMalformedRecord,
				"regular entry digest is %d bytes, want %d", len(source), layoutDigestSize)
		}
		copy(record.Digest[:], source)
	default:
		// Symlinks carry a source path. Directories, devices, fifos
		// and sockets encode a zero-length source, so this is a no-op
		// for them. Unrecognized file types keep their raw source.
		record.Source = sanitizePath(source)
	}
	record.Target = sanitizePath(target)

	return record, nil
}

// Encode writes the record in wire form.
func (l Layout) Encode(w io.Writer) error {
	source := l.sourceBytes()

	var fixed [32]byte
	binary.BigEndian.PutUint32(fixed[0:4], l.UID)
	binary.BigEndian.PutUint32(fixed[4:8], l.GID)
	binary.BigEndian.PutUint32(fixed[8:12], l.Mode)
	binary.BigEndian.PutUint32(fixed[12:16], l.Tag)
	binary.BigEndian.PutUint16(fixed[16:18], uint16(len(source)))
	binary.BigEndian.PutUint16(fixed[18:20], uint16(len(l.Target)))
	fixed[20] = uint8(l.FileType)

	buf := new(bytes.Buffer)
	buf.Write(fixed[:])
	buf.Write(source)
	buf.WriteString(l.Target)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write layout record")
	}
	return nil
}

func (l Layout) sourceBytes() []byte {
	switch l.FileType {
	case LayoutRegular:
		digest := l.Digest
		return digest[:]
	case LayoutDirectory, LayoutCharacterDevice, LayoutBlockDevice, LayoutFifo, LayoutSocket:
		return nil
	default:
		return []byte(l.Source)
	}
}

// Entries written by older tooling carry trailing NULs.
func sanitizePath(raw []byte) string {
	return strings.TrimRight(string(raw), "\x00")
}
