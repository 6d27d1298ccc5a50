package format

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// MetaTag names what a meta record describes.
type MetaTag uint16

const (
	MetaTagName         MetaTag = 1
	MetaTagArchitecture MetaTag = 2
	MetaTagVersion      MetaTag = 3
	MetaTagSummary      MetaTag = 4
	MetaTagDescription  MetaTag = 5
	MetaTagHomepage     MetaTag = 6
	MetaTagSourceID     MetaTag = 7
	MetaTagDepends      MetaTag = 8
	MetaTagProvides     MetaTag = 9
	MetaTagConflicts    MetaTag = 10
	MetaTagRelease      MetaTag = 11
	MetaTagLicense      MetaTag = 12
	MetaTagBuildRelease MetaTag = 13
	MetaTagPackageURI   MetaTag = 14
	MetaTagPackageHash  MetaTag = 15
	MetaTagPackageSize  MetaTag = 16
	MetaTagBuildDepends MetaTag = 17
	MetaTagSourceURI    MetaTag = 18
	MetaTagSourcePath   MetaTag = 19
	MetaTagSourceRef    MetaTag = 20
	MetaTagUnknown      MetaTag = 0xffff
)

// PrimitiveType selects the active member of a meta record's value.
type PrimitiveType uint8

const (
	PrimitiveInt8       PrimitiveType = 1
	PrimitiveUint8      PrimitiveType = 2
	PrimitiveInt16      PrimitiveType = 3
	PrimitiveUint16     PrimitiveType = 4
	PrimitiveInt32      PrimitiveType = 5
	PrimitiveUint32     PrimitiveType = 6
	PrimitiveInt64      PrimitiveType = 7
	PrimitiveUint64     PrimitiveType = 8
	PrimitiveString     PrimitiveType = 9
	PrimitiveDependency PrimitiveType = 10
	PrimitiveProvider   PrimitiveType = 11
	PrimitiveUnknown    PrimitiveType = 255
)

// DependencyKind classifies how a dependency or provider is named.
type DependencyKind uint8

const (
	DependencyPackageName   DependencyKind = 0
	DependencySharedLibrary DependencyKind = 1
	DependencyPkgConfig     DependencyKind = 2
	DependencyInterpreter   DependencyKind = 3
	DependencyCMake         DependencyKind = 4
	DependencyPython        DependencyKind = 5
	DependencyBinary        DependencyKind = 6
	DependencySystemBinary  DependencyKind = 7
	DependencyPkgConfig32   DependencyKind = 8
	DependencyUnknown       DependencyKind = 255
)

// Dependency is a named requirement or capability. The same shape serves
// both DEPENDENCY and PROVIDER primitives.
type Dependency struct {
	Kind DependencyKind
	Name string
}

// Meta is one decoded metadata record. Type selects which of the value
// fields is populated; the others are zero. An unrecognized Type decodes
// into Raw so a newer archive still frames cleanly.
type Meta struct {
	Tag  MetaTag
	Type PrimitiveType

	Int64      int64      // INT8, INT16, INT32, INT64
	Uint64     uint64     // UINT8, UINT16, UINT32, UINT64
	Text       string     // STRING
	Dependency Dependency // DEPENDENCY, PROVIDER
	Raw        []byte     // unrecognized primitive types
}

// primitiveWidths gives the exact encoded length of each fixed-width
// primitive. A record whose declared length disagrees is corrupt.
var primitiveWidths = map[PrimitiveType]uint32{
	PrimitiveInt8:   1,
	PrimitiveUint8:  1,
	PrimitiveInt16:  2,
	PrimitiveUint16: 2,
	PrimitiveInt32:  4,
	PrimitiveUint32: 4,
	PrimitiveInt64:  8,
	PrimitiveUint64: 8,
}

// DecodeMeta reads one meta record: a u32 value length, u16 tag, u8
// primitive type and one padding byte, then the value bytes.
func DecodeMeta(r io.Reader) (Meta, error) {
	var fixed [8]byte
	if err := readFixed(r, fixed[:]); err != nil {
		return Meta{}, err
	}

	length := binary.BigEndian.Uint32(fixed[0:4])
	record := Meta{
		Tag:  MetaTag(binary.BigEndian.Uint16(fixed[4:6])),
		Type: PrimitiveType(fixed[6]),
	}

	if width, fixedWidth := primitiveWidths[record.Type]; fixedWidth {
		if length != width {
			return Meta{}, errors.Wrapf(ErrMalformedRecord,
				"primitive type %d encodes %d bytes, record declares %d", record.Type, width, length)
		}
	}

	value, err := readExact(r, uint64(length))
	if err != nil {
		return Meta{}, err
	}

	switch record.Type {
	case PrimitiveInt8:
		record.Int64 = int64(int8(value[0]))
	case PrimitiveUint8:
		record.Uint64 = uint64(value[0])
	case PrimitiveInt16:
		record.Int64 = int64(int16(binary.BigEndian.Uint16(value)))
	case PrimitiveUint16:
		record.Uint64 = uint64(binary.BigEndian.Uint16(value))
	case PrimitiveInt32:
		record.Int64 = int64(int32(binary.BigEndian.Uint32(value)))
	case PrimitiveUint32:
		record.Uint64 = uint64(binary.BigEndian.Uint32(value))
	case PrimitiveInt64:
		record.Int64 = int64(binary.BigEndian.Uint64(value))
	case PrimitiveUint64:
		record.Uint64 = binary.BigEndian.Uint64(value)
	case PrimitiveString:
		record.Text = string(value)
	case PrimitiveDependency, PrimitiveProvider:
		if length < 1 {
			return Meta{}, errors.Wrap(ErrMalformedRecord, "dependency value missing kind byte")
		}
		record.Dependency = Dependency{
			Kind: DependencyKind(value[0]),
			Name: string(value[1:]),
		}
	default:
		record.Raw = value
	}

	return record, nil
}

// Encode writes the record in wire form.
func (m Meta) Encode(w io.Writer) error {
	value := m.encodeValue()

	var fixed [8]byte
	binary.BigEndian.PutUint32(fixed[0:4], uint32(len(value)))
	binary.BigEndian.PutUint16(fixed[4:6], uint16(m.Tag))
	fixed[6] = uint8(m.Type)

	if _, err := w.Write(fixed[:]); err != nil {
		return errors.Wrap(err, "failed to write meta record")
	}
	if _, err := w.Write(value); err != nil {
		return errors.Wrap(err, "failed to write meta record")
	}
	return nil
}

func (m Meta) encodeValue() []byte {
	buf := new(bytes.Buffer)

	switch m.Type {
	case PrimitiveInt8:
		buf.WriteByte(byte(int8(m.Int64)))
	case PrimitiveUint8:
		buf.WriteByte(byte(m.Uint64))
	case PrimitiveInt16:
		binary.Write(buf, binary.BigEndian, int16(m.Int64))
	case PrimitiveUint16:
		binary.Write(buf, binary.BigEndian, uint16(m.Uint64))
	case PrimitiveInt32:
		binary.Write(buf, binary.BigEndian, int32(m.Int64))
	case PrimitiveUint32:
		binary.Write(buf, binary.BigEndian, uint32(m.Uint64))
	case PrimitiveInt64:
		binary.Write(buf, binary.BigEndian, m.Int64)
	case PrimitiveUint64:
		binary.Write(buf, binary.BigEndian, m.Uint64)
	case PrimitiveString:
		buf.WriteString(m.Text)
	case PrimitiveDependency, PrimitiveProvider:
		buf.WriteByte(byte(m.Dependency.Kind))
		buf.WriteString(m.Dependency.Name)
	default:
		buf.Write(m.Raw)
	}

	return buf.Bytes()
}
