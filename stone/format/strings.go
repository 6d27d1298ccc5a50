package format

import "fmt"

func (t FileType) String() string {
	switch t {
	case FileTypeBinary:
		return "binary"
	case FileTypeDelta:
		return "delta"
	case FileTypeRepository:
		return "repository"
	case FileTypeBuildManifest:
		return "build-manifest"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

func (k Kind) String() string {
	switch k {
	case KindMeta:
		return "meta"
	case KindContent:
		return "content"
	case KindLayout:
		return "layout"
	case KindIndex:
		return "index"
	case KindAttributes:
		return "attributes"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

func (t LayoutFileType) String() string {
	switch t {
	case LayoutRegular:
		return "regular"
	case LayoutSymlink:
		return "symlink"
	case LayoutDirectory:
		return "directory"
	case LayoutCharacterDevice:
		return "character-device"
	case LayoutBlockDevice:
		return "block-device"
	case LayoutFifo:
		return "fifo"
	case LayoutSocket:
		return "socket"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

func (t MetaTag) String() string {
	switch t {
	case MetaTagName:
		return "name"
	case MetaTagArchitecture:
		return "architecture"
	case MetaTagVersion:
		return "version"
	case MetaTagSummary:
		return "summary"
	case MetaTagDescription:
		return "description"
	case MetaTagHomepage:
		return "homepage"
	case MetaTagSourceID:
		return "source-id"
	case MetaTagDepends:
		return "depends"
	case MetaTagProvides:
		return "provides"
	case MetaTagConflicts:
		return "conflicts"
	case MetaTagRelease:
		return "release"
	case MetaTagLicense:
		return "license"
	case MetaTagBuildRelease:
		return "build-release"
	case MetaTagPackageURI:
		return "package-uri"
	case MetaTagPackageHash:
		return "package-hash"
	case MetaTagPackageSize:
		return "package-size"
	case MetaTagBuildDepends:
		return "build-depends"
	case MetaTagSourceURI:
		return "source-uri"
	case MetaTagSourcePath:
		return "source-path"
	case MetaTagSourceRef:
		return "source-ref"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(t))
	}
}

func (t PrimitiveType) String() string {
	switch t {
	case PrimitiveInt8:
		return "int8"
	case PrimitiveUint8:
		return "uint8"
	case PrimitiveInt16:
		return "int16"
	case PrimitiveUint16:
		return "uint16"
	case PrimitiveInt32:
		return "int32"
	case PrimitiveUint32:
		return "uint32"
	case PrimitiveInt64:
		return "int64"
	case PrimitiveUint64:
		return "uint64"
	case PrimitiveString:
		return "string"
	case PrimitiveDependency:
		return "dependency"
	case PrimitiveProvider:
		return "provider"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

func (k DependencyKind) String() string {
	switch k {
	case DependencyPackageName:
		return "name"
	case DependencySharedLibrary:
		return "soname"
	case DependencyPkgConfig:
		return "pkgconfig"
	case DependencyInterpreter:
		return "interpreter"
	case DependencyCMake:
		return "cmake"
	case DependencyPython:
		return "python"
	case DependencyBinary:
		return "binary"
	case DependencySystemBinary:
		return "sysbinary"
	case DependencyPkgConfig32:
		return "pkgconfig32"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}
