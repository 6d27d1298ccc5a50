package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/fxamacker/cbor/v2"
	"github.com/halcyonos/stone/stone/format"
	"github.com/halcyonos/stone/stone/reader"
	"github.com/spf13/cobra"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <archive>...",
	Short: "Investigate the contents of a stone archive",
	Long: `Investigate and show the structure of a stone archive: the header,
every payload's framing, and the decoded records within each payload.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asCBOR, _ := cmd.Flags().GetBool("cbor")

		for _, filename := range args {
			if err := inspectArchive(filename, asCBOR); err != nil {
				return err
			}
		}
		return nil
	},
}

// archiveDump is the machine-readable shape emitted by --cbor.
type archiveDump struct {
	Version     uint32        `cbor:"version"`
	NumPayloads uint16        `cbor:"numPayloads"`
	FileType    string        `cbor:"fileType"`
	Payloads    []payloadDump `cbor:"payloads"`
}

type payloadDump struct {
	Kind        string `cbor:"kind"`
	Compression string `cbor:"compression"`
	StoredSize  uint64 `cbor:"storedSize"`
	PlainSize   uint64 `cbor:"plainSize"`
	NumRecords  uint64 `cbor:"numRecords"`

	Meta       []format.Meta      `cbor:"meta,omitempty"`
	Layout     []format.Layout    `cbor:"layout,omitempty"`
	Index      []format.Index     `cbor:"index,omitempty"`
	Attributes []format.Attribute `cbor:"attributes,omitempty"`
}

func inspectArchive(filename string, asCBOR bool) error {
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

	header := archiveReader.Header()
	dump := archiveDump{
		Version:     uint32(header.Version),
		NumPayloads: header.V1.NumPayloads,
		FileType:    header.V1.FileType.String(),
	}

	for {
		payload, err := archiveReader.NextPayload()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		dump.Payloads = append(dump.Payloads, dumpPayload(payload))
	}

	if asCBOR {
		raw, err := cbor.Marshal(dump)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(raw)
		return err
	}

	fmt.Printf("%s: stone v%d, %s, %d payloads\n", filename, dump.Version, dump.FileType, dump.NumPayloads)
	for _, payload := range dump.Payloads {
		fmt.Printf("====== Payload ======\n")
		fmt.Printf("Kind: %s\n", payload.Kind)
		fmt.Printf("Compression: %s\n", payload.Compression)
		fmt.Printf("Stored size: %d, plain size: %d\n", payload.StoredSize, payload.PlainSize)
		fmt.Printf("Records: %d\n", payload.NumRecords)

		switch {
		case payload.Meta != nil:
			spew.Dump(payload.Meta)
		case payload.Layout != nil:
			spew.Dump(payload.Layout)
		case payload.Index != nil:
			spew.Dump(payload.Index)
		case payload.Attributes != nil:
			spew.Dump(payload.Attributes)
		}
	}
	return nil
}

func dumpPayload(payload *reader.Payload) payloadDump {
	header := payload.Header()
	dump := payloadDump{
		Kind:        header.Kind.String(),
		Compression: header.Compression.String(),
		StoredSize:  header.StoredSize,
		PlainSize:   header.PlainSize,
		NumRecords:  header.NumRecords,
	}

	// Record decode failures are reported inline rather than aborting:
	// framing can always continue at the next payload.
	var err error
	switch header.Kind {
	case format.KindMeta:
		for {
			var record format.Meta
			record, err = payload.NextMeta()
			if err != nil {
				break
			}
			dump.Meta = append(dump.Meta, record)
		}
	case format.KindLayout:
		for {
			var record format.Layout
			record, err = payload.NextLayout()
			if err != nil {
				break
			}
			dump.Layout = append(dump.Layout, record)
		}
	case format.KindIndex:
		for {
			var record format.Index
			record, err = payload.NextIndex()
			if err != nil {
				break
			}
			dump.Index = append(dump.Index, record)
		}
	case format.KindAttributes:
		for {
			var record format.Attribute
			record, err = payload.NextAttribute()
			if err != nil {
				break
			}
			dump.Attributes = append(dump.Attributes, record)
		}
	}

	if err != nil && !errors.Is(err, io.EOF) {
		fmt.Fprintf(os.Stderr, "warning: %s payload: %v\n", header.Kind, err)
	}
	return dump
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().Bool("cbor", false, "Emit the decoded structure as CBOR on stdout")
}
