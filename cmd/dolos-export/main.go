// dolos-export is the one-shot dump tool, modeled on the teacher's
// indexers/pcx/cmd/export/main.go: open the Archive store directly,
// pull a slot range out of the Archive, and write it out as zstd-
// compressed JSONL — the same shape export/main.go uses for its golden
// block fixtures, generalized from "fetch over the wire then compress"
// to "read from Archive then compress" since this core's Archive already
// holds the block bodies export/main.go had to fetch from a live
// ingestion service.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/config"
	"github.com/containerman17/dolos-ledger/storage/archive"
)

// exportedBlock is the JSONL record shape: era tag plus raw era-CBOR
// bytes, base64-encoded by encoding/json for a text-safe format (mirroring export_golden's
// json.Marshal(b.Data) line-per-block framing).
type exportedBlock struct {
	Slot uint64 `json:"slot"`
	Era  uint8  `json:"era"`
	Raw  []byte `json:"raw"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("dolos-export", flag.ExitOnError)
	startSlot := fs.Uint64("from", 0, "start slot (inclusive)")
	endSlot := fs.Uint64("to", 0, "end slot (inclusive); 0 means archive tip")
	out := fs.String("out", "export.jsonl.zst", "output path")

	cfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		return err
	}
	_, _, _, _, archivePath := cfg.StorePaths()

	arc, err := archive.Open(archivePath, cfg.ChainCacheMiB)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer arc.Close()

	end := chain.Slot(*endSlot)
	if end == 0 {
		tip, ok, err := arc.GetTip()
		if err != nil {
			return fmt.Errorf("read archive tip: %w", err)
		}
		if !ok {
			fmt.Println("archive is empty, nothing to export")
			return nil
		}
		end = tip.Point.Slot
	}

	blocks, err := arc.GetRange(chain.Slot(*startSlot), end+1)
	if err != nil {
		return fmt.Errorf("read range: %w", err)
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create %s: %w", *out, err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	defer enc.Close()

	bw := bufio.NewWriter(enc)
	for _, b := range blocks {
		rec := exportedBlock{Slot: uint64(b.Point.Slot), Era: uint8(b.Era), Raw: b.Raw}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal block at slot %d: %w", b.Point.Slot, err)
		}
		bw.Write(data)
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	fmt.Printf("exported %d blocks (slot %d..%d) to %s\n", len(blocks), *startSlot, end, *out)
	return nil
}
