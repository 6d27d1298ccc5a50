package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/halcyonos/stone/stone/format"
	"github.com/halcyonos/stone/stone/writer"
	"github.com/pkg/xattr"
	"github.com/spf13/cobra"
)

// createCmd represents the create command
var createCmd = &cobra.Command{
	Use:   "create <directory>",
	Short: "Build a stone archive from a directory tree",
	Long: `Walk a directory tree and pack it into a binary stone archive:
file content is deduplicated into the content payload, the tree shape
goes into the layout payload, and extended attributes are preserved in
the attribute payload.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		name, _ := cmd.Flags().GetString("name")
		version, _ := cmd.Flags().GetString("version")
		release, _ := cmd.Flags().GetUint64("release")
		summary, _ := cmd.Flags().GetString("summary")
		compression, _ := cmd.Flags().GetString("compression")
		return createArchive(args[0], output, name, version, release, summary, compression)
	},
}

func createArchive(root, output, name, version string, release uint64, summary, compression string) error {
	dest, err := os.Create(output)
	if err != nil {
		return err
	}
	defer dest.Close()

	archive := writer.New(dest, format.FileTypeBinary)
	switch compression {
	case "zstd":
		archive.Compression = format.CompressionZstd
	case "none":
		archive.Compression = format.CompressionNone
	default:
		return fmt.Errorf("unknown compression %q", compression)
	}

	metas := []format.Meta{
		{Tag: format.MetaTagName, Type: format.PrimitiveString, Text: name},
		{Tag: format.MetaTagVersion, Type: format.PrimitiveString, Text: version},
		{Tag: format.MetaTagRelease, Type: format.PrimitiveUint64, Uint64: release},
		{Tag: format.MetaTagArchitecture, Type: format.PrimitiveString, Text: runtime.GOARCH},
	}
	if summary != "" {
		metas = append(metas, format.Meta{Tag: format.MetaTagSummary, Type: format.PrimitiveString, Text: summary})
	}

	var (
		layouts []format.Layout
		attrs   []format.Attribute
	)

	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := entry.Info()
		if err != nil {
			return err
		}

		layout := format.Layout{
			Mode:   uint32(info.Mode().Perm()),
			Target: rel,
		}
		if stat, ok := info.Sys().(*syscall.Stat_t); ok {
			layout.UID = stat.Uid
			layout.GID = stat.Gid
			layout.Mode = uint32(stat.Mode)
		}

		switch {
		case entry.Type()&fs.ModeSymlink != 0:
			source, err := os.Readlink(path)
			if err != nil {
				return err
			}
			layout.FileType = format.LayoutSymlink
			layout.Source = source

		case entry.IsDir():
			layout.FileType = format.LayoutDirectory

		case entry.Type().IsRegular():
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			digest, err := archive.AddContent(file)
			file.Close()
			if err != nil {
				return err
			}
			layout.FileType = format.LayoutRegular
			layout.Digest = digest
			attrs = append(attrs, collectXattrs(path, rel)...)

		default:
			fmt.Fprintf(os.Stderr, "skipping %q: not a regular file, directory or symlink\n", rel)
			return nil
		}

		layouts = append(layouts, layout)
		return nil
	})
	if err != nil {
		return err
	}

	if err := archive.AddMeta(metas); err != nil {
		return err
	}
	if err := archive.AddLayout(layouts); err != nil {
		return err
	}
	if len(attrs) > 0 {
		if err := archive.AddAttributes(attrs); err != nil {
			return err
		}
	}

	if err := archive.Close(); err != nil {
		return err
	}
	return dest.Close()
}

// collectXattrs is best effort: filesystems without xattr support just
// contribute nothing.
func collectXattrs(path, rel string) []format.Attribute {
	names, err := xattr.LList(path)
	if err != nil {
		return nil
	}

	var attrs []format.Attribute
	for _, name := range names {
		value, err := xattr.LGet(path, name)
		if err != nil {
			continue
		}
		attrs = append(attrs, format.Attribute{
			Key:   xattrKey(rel, name),
			Value: value,
		})
	}
	return attrs
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().StringP("output", "o", "package.stone", "Archive file to write")
	createCmd.Flags().String("name", "unnamed", "Package name")
	createCmd.Flags().String("version", "0.0.0", "Package version")
	createCmd.Flags().Uint64("release", 1, "Package release number")
	createCmd.Flags().String("summary", "", "One-line package summary")
	createCmd.Flags().String("compression", "zstd", "Payload compression (zstd or none)")
}
