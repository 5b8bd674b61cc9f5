// Package pebbleutil holds the pebble setup shared by every store:
// logger, options, and the big-endian watermark (cursor) helpers. Adapted
// from the teacher's indexers/pcx/db/pebble.go, generalized from a single
// "latest processed height" watermark to the five-way cursor spec.md
// §4.10 requires.
package pebbleutil

import (
	"log"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/sstable/block"
)

type quietLogger struct{ tag string }

func (l quietLogger) Infof(format string, args ...interface{}) {}
func (l quietLogger) Errorf(format string, args ...interface{}) {
	log.Printf("[%s] "+format, append([]any{l.tag}, args...)...)
}
func (l quietLogger) Fatalf(format string, args ...interface{}) {
	log.Fatalf("[%s] "+format, append([]any{l.tag}, args...)...)
}

// QuietLogger returns a pebble logger that only surfaces errors/fatals,
// tagged with the store's name for "[wal] ...", "[statestore] ..." style
// log lines.
func QuietLogger(tag string) pebble.Logger {
	return quietLogger{tag: tag}
}

// Options returns the teacher's tuned pebble.Options (cmd/server/main.go's
// pebbleOpts()), parameterized by cache size in MiB per spec.md §6.3's
// storage.*_cache settings.
func Options(tag string, cacheMiB int) *pebble.Options {
	opts := &pebble.Options{
		Logger: QuietLogger(tag),
	}
	opts.ApplyCompressionSettings(func() pebble.DBCompressionSettings {
		return pebble.UniformDBCompressionSettings(block.BalancedCompression)
	})
	opts.L0CompactionThreshold = 8
	opts.L0StopWritesThreshold = 24
	opts.LBaseMaxBytes = 512 << 20
	if cacheMiB > 0 {
		opts.MemTableSize = uint64(cacheMiB) << 20
	} else {
		opts.MemTableSize = 64 << 20
	}
	opts.CompactionConcurrencyRange = func() (int, int) { return 4, 8 }
	return opts
}

// CursorKey is the single reserved key every store persists its cursor
// under (spec.md §6.2).
var CursorKey = []byte("\x00cursor")

// SchemaFingerprintKey is the reserved key holding the hashed ordered
// table-name list checked at open (spec.md §6.2 InvalidStoreVersion).
var SchemaFingerprintKey = []byte("\x00schema")
