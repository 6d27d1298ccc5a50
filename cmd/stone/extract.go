package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/halcyonos/stone/stone/format"
	"github.com/halcyonos/stone/stone/reader"
	"github.com/pkg/xattr"
	"github.com/spf13/cobra"
)

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract <archive>",
	Short: "Unpack a stone archive",
	Long:  `Rebuild the filesystem tree described by a stone archive under the given output directory.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outDir, _ := cmd.Flags().GetString("out")
		return extractArchive(args[0], outDir)
	},
}

func extractArchive(filename, outDir string) error {
	fileh, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer fileh.Close()

	archiveReader, err := reader.NewReader(fileh)
	if err != nil {
		return err
	}
	defer archiveReader.Close()

	var (
		layouts []format.Layout
		attrs   []format.Attribute
		index   = map[[16]byte]format.Index{}
		content *os.File
	)
	defer func() {
		if content != nil {
			content.Close()
			os.Remove(content.Name())
		}
	}()

	// First pass: gather every record and spool the content stream to a
	// temporary file. Payload order within the archive is conventional,
	// not guaranteed, so nothing is materialized until all of it is in.
	for {
		payload, err := archiveReader.NextPayload()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		switch payload.Header().Kind {
		case format.KindLayout:
			layouts, err = drain(payload.NextLayout, layouts)
		case format.KindIndex:
			var records []format.Index
			if records, err = drain(payload.NextIndex, nil); err == nil {
				for _, record := range records {
					index[record.Digest] = record
				}
			}
		case format.KindAttributes:
			attrs, err = drain(payload.NextAttribute, attrs)
		case format.KindContent:
			if content, err = os.CreateTemp("", "stone-content-*"); err != nil {
				return err
			}
			err = archiveReader.UnpackContent(payload, content)
		default:
			// Meta is not needed to rebuild the tree; unknown payload
			// kinds are skipped by advancing.
		}
		if err != nil {
			return err
		}
	}

	// Directories first so files have somewhere to land.
	for _, layout := range layouts {
		if layout.FileType != format.LayoutDirectory {
			continue
		}
		path, err := safePath(outDir, layout.Target)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(path, fs.FileMode(layout.Mode&0o7777)); err != nil {
			return err
		}
	}

	for _, layout := range layouts {
		path, err := safePath(outDir, layout.Target)
		if err != nil {
			return err
		}

		switch layout.FileType {
		case format.LayoutDirectory:
			// done above
		case format.LayoutRegular:
			record, ok := index[layout.Digest]
			if !ok {
				return fmt.Errorf("no index record for content of %q", layout.Target)
			}
			if err := writeRegular(path, layout, record, content); err != nil {
				return err
			}
		case format.LayoutSymlink:
			if err := checkLinkTarget(outDir, path, layout.Source); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(layout.Source, path); err != nil {
				return err
			}
		default:
			fmt.Fprintf(os.Stderr, "skipping %q: %s entries are not extracted\n", layout.Target, layout.FileType)
		}
	}

	return applyXattrs(outDir, attrs)
}

func writeRegular(path string, layout format.Layout, record format.Index, content *os.File) error {
	if content == nil {
		return fmt.Errorf("archive has no content payload for %q", layout.Target)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	dest, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fs.FileMode(layout.Mode&0o7777))
	if err != nil {
		return err
	}
	defer dest.Close()

	span := io.NewSectionReader(content, int64(record.Start), int64(record.Size()))
	if _, err := io.Copy(dest, span); err != nil {
		return err
	}
	return dest.Close()
}

func applyXattrs(outDir string, attrs []format.Attribute) error {
	for _, attr := range attrs {
		rel, name, ok := parseXattrKey(attr.Key)
		if !ok {
			continue
		}
		path, err := safePath(outDir, rel)
		if err != nil {
			return err
		}
		if err := xattr.LSet(path, name, attr.Value); err != nil {
			fmt.Fprintf(os.Stderr, "failed to set %s on %q: %v\n", name, rel, err)
		}
	}
	return nil
}

// safePath anchors an archive path under the output directory,
// rejecting anything that would escape it.
func safePath(outDir, target string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(target))
	if clean == "/" {
		return "", fmt.Errorf("empty entry path")
	}
	return filepath.Join(outDir, clean), nil
}

// checkLinkTarget rejects symlink targets that would point outside the
// output directory once resolved relative to the link's location. A
// crafted archive could otherwise plant a link for later entries to
// traverse.
func checkLinkTarget(outDir, linkPath, target string) error {
	if filepath.IsAbs(target) {
		return fmt.Errorf("symlink %q has absolute target %q", linkPath, target)
	}
	resolved := filepath.Join(filepath.Dir(linkPath), filepath.FromSlash(target))
	rel, err := filepath.Rel(outDir, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("symlink target %q escapes the output directory", target)
	}
	return nil
}

// drain exhausts one payload's record sequence into a slice.
func drain[R any](next func() (R, error), records []R) ([]R, error) {
	for {
		record, err := next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}
}

// Attribute keys written by `stone create` for extended attributes:
// "xattr\x00<path>\x00<name>".
const xattrKeyPrefix = "xattr\x00"

func xattrKey(rel, name string) []byte {
	return []byte(xattrKeyPrefix + rel + "\x00" + name)
}

func parseXattrKey(key []byte) (rel, name string, ok bool) {
	s := string(key)
	if !strings.HasPrefix(s, xattrKeyPrefix) {
		return "", "", false
	}
	rest := s[len(xattrKeyPrefix):]
	sep := strings.LastIndexByte(rest, 0)
	if sep < 0 {
		return "", "", false
	}
	return rest[:sep], rest[sep+1:], true
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().String("out", ".", "Directory to extract into")
}
