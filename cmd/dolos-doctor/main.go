// dolos-doctor is the offline maintenance binary, modeled on
// original_source/src/bin/dolos/doctor/trim_wal.rs: a small subcommand
// set that opens the data stores directly (no decoder, no running
// executor) and performs one maintenance operation before exiting,
// re-expressed as Go's flag.NewFlagSet-per-subcommand idiom the way the
// teacher's cmd/* binaries each own a single flag set rather than
// reaching for a CLI framework.
package main

import (
	"fmt"
	"os"

	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/config"
	"github.com/containerman17/dolos-ledger/storage/archive"
	"github.com/containerman17/dolos-ledger/storage/walstore"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: dolos-doctor <trim-wal|prune-archive|status> [flags]")
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case "trim-wal":
		err = trimWAL(os.Args[2:])
	case "prune-archive":
		err = pruneArchive(os.Args[2:])
	case "status":
		err = status(os.Args[2:])
	default:
		err = fmt.Errorf("unknown subcommand %q", os.Args[1])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// trimWAL removes every WAL entry after a chain point (the entry at the
// point itself stays), the direct counterpart to trim_wal.rs's
// remove_range(from, to) — this core's WAL only ever needs removal from
// the tail (RemoveEntries), since
// arbitrary mid-range holes would break the cursor invariant every
// commit.Coordinator.Reconcile call depends on.
func trimWAL(args []string) error {
	fs := newFlagSet("dolos-doctor trim-wal")
	after := fs.Uint64("after-slot", 0, "remove every WAL entry after this slot (exclusive)")
	afterHash := fs.String("after-hash", "", "block hash at after-slot, hex-encoded (32 bytes)")
	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}
	walPath, _, _, _, _ := cfg.StorePaths()

	wal, err := walstore.Open(walPath, cfg.WALCacheMiB)
	if err != nil {
		return fmt.Errorf("open wal: %w", err)
	}
	defer wal.Close()

	hash, err := decodeBlockHash(*afterHash)
	if err != nil {
		return err
	}
	point := chain.NewChainPoint(chain.Slot(*after), hash)
	if err := wal.RemoveEntries(point); err != nil {
		return fmt.Errorf("trim wal: %w", err)
	}
	fmt.Printf("wal trimmed to %s\n", point)
	return nil
}

// pruneArchive drops archived block bodies older than a retention
// window, the Archive-side analogue of trim_wal.rs's operation. The
// window comes from -max-slots; cmd/dolos-node runs no pruning of its
// own and does not read storage.max_chain_history, so this subcommand,
// run on demand and offline, is the only place pruning happens.
func pruneArchive(args []string) error {
	fs := newFlagSet("dolos-doctor prune-archive")
	maxHistory := fs.Uint64("max-slots", 0, "retention window in slots")
	maxPrune := fs.Int("max-entries", 10000, "maximum entries to remove per call")
	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}
	_, _, _, _, archivePath := cfg.StorePaths()

	arc, err := archive.Open(archivePath, cfg.ChainCacheMiB)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer arc.Close()

	tip, ok, err := arc.GetTip()
	if err != nil {
		return fmt.Errorf("read tip: %w", err)
	}
	if !ok {
		fmt.Println("archive is empty, nothing to prune")
		return nil
	}

	total := 0
	for {
		done, err := arc.PruneHistory(tip.Point.Slot, *maxHistory, *maxPrune)
		if err != nil {
			return fmt.Errorf("prune archive: %w", err)
		}
		total += *maxPrune
		if done {
			break
		}
	}
	fmt.Printf("pruned archive entries older than %d slots behind tip %d\n", *maxHistory, tip.Point.Slot)
	return nil
}

// status prints the WAL and Archive cursors side by side, the read-only
// diagnostic a doctor binary needs before deciding whether trim/prune is
// even safe to run.
func status(args []string) error {
	fs := newFlagSet("dolos-doctor status")
	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}
	walPath, _, _, _, archivePath := cfg.StorePaths()

	wal, err := walstore.Open(walPath, cfg.WALCacheMiB)
	if err != nil {
		return fmt.Errorf("open wal: %w", err)
	}
	defer wal.Close()
	arc, err := archive.Open(archivePath, cfg.ChainCacheMiB)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer arc.Close()

	walCursor, err := wal.Cursor()
	if err != nil {
		return fmt.Errorf("read wal cursor: %w", err)
	}
	tip, ok, err := arc.GetTip()
	if err != nil {
		return fmt.Errorf("read archive tip: %w", err)
	}
	fmt.Printf("wal cursor:    %s\n", walCursor)
	if ok {
		fmt.Printf("archive tip:   slot %d (%s)\n", tip.Point.Slot, tip.Point)
	} else {
		fmt.Println("archive tip:   (empty)")
	}
	return nil
}
