// Package config resolves the external-configuration surface spec.md
// §6.3 names (storage.*, chain.*, upstream.*) as environment variables
// with flag overrides, the same godotenv+flag+os.Getenv layering every
// cmd/*/main.go in the teacher uses (indexers/pcx/cmd/server/main.go's
// getRPCURL pattern, generalized from one key to the full §6.3 set).
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/containerman17/dolos-ledger/oracle"
)

// Config is every value spec.md §6.3 lists, already parsed into its
// native type.
type Config struct {
	// storage.*
	StoragePath         string // "" is handed to every store's Open unchanged; there is no in-memory mode
	WALCacheMiB          int
	LedgerCacheMiB       int
	ChainCacheMiB        int
	MaxWALHistory        uint64 // slots
	MaxLedgerHistory     uint64 // slots
	MaxChainHistory      uint64 // slots

	// chain.*
	NetworkMagic    oracle.NetworkMagic
	StopEpoch       *uint64
	IncludeGenesis  bool
	// StabilityWindow is the cache.Cache invariant workunit.GenesisConfig
	// seeds once at genesis and every ESTART carries forward unchanged
	// (spec.md §4.1/§4.11); a resuming process needs the same value to
	// rebuild the cache before it can classify boundaries again.
	StabilityWindow uint64

	// upstream.*
	UpstreamPeerAddress string
	UpstreamNetworkMagic oracle.NetworkMagic
	UpstreamIsTestnet    bool

	// ambient (not named by spec.md §6.3, but every cmd/* binary needs
	// somewhere to bind its admin/metrics listeners)
	APIAddr     string
	MetricsAddr string
}

// getenv mirrors the teacher's getRPCURL: an os.Getenv lookup with a
// default, read before flag.Parse so a flag can still override it.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvUint64(key string, def uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Load reads .env (if present, via godotenv.Load — silently ignored
// when absent, same as every teacher cmd/*/main.go), then layers flag
// overrides on top of the environment. fs lets cmd/dolos-node,
// cmd/dolos-doctor, and cmd/dolos-export each register the flag set
// under their own program name without fighting over the global
// flag.CommandLine.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	godotenv.Load()

	storagePath := fs.String("storage.path", getenv("STORAGE_PATH", ""), "data directory root (an empty value is handed to every store unchanged; there is no in-memory mode)")
	walCache := fs.Int("storage.wal-cache", getenvInt("STORAGE_WAL_CACHE_MIB", 64), "WAL pebble block cache, MiB")
	ledgerCache := fs.Int("storage.ledger-cache", getenvInt("STORAGE_LEDGER_CACHE_MIB", 64), "StateStore+UtxoSet pebble block cache, MiB")
	chainCache := fs.Int("storage.chain-cache", getenvInt("STORAGE_CHAIN_CACHE_MIB", 32), "IndexStore+Archive pebble block cache, MiB")
	maxWALHistory := fs.Uint64("storage.max-wal-history", getenvUint64("STORAGE_MAX_WAL_HISTORY", 0), "WAL pruning threshold in slots; parsed but not applied by any binary in this module")
	maxLedgerHistory := fs.Uint64("storage.max-ledger-history", getenvUint64("STORAGE_MAX_LEDGER_HISTORY", 0), "reserved for a future StateStore pruning policy; 0 disables")
	maxChainHistory := fs.Uint64("storage.max-chain-history", getenvUint64("STORAGE_MAX_CHAIN_HISTORY", 0), "Archive pruning threshold in slots; parsed but not applied by any binary in this module (dolos-doctor prune-archive takes its own -max-slots)")

	networkMagic := fs.Uint("chain.network-magic", uint(getenvUint64("CHAIN_NETWORK_MAGIC", uint64(oracle.Mainnet))), "historical-outcome oracle branch selector")
	stopEpoch := fs.Uint64("chain.stop-epoch", getenvUint64("CHAIN_STOP_EPOCH", 0), "upper epoch bound; 0 means unset (no forced stop)")
	includeGenesis := fs.Bool("chain.include-genesis", getenvBool("CHAIN_INCLUDE_GENESIS", false), "on an empty WAL, run genesis from the JSON genesis config at dolos-node's -genesis path; unset, dolos-node only serves admin/metrics")
	stabilityWindow := fs.Uint64("chain.stability-window", getenvUint64("CHAIN_STABILITY_WINDOW", 129600), "RUPD lookahead window in slots (3k/f under Shelley's Praos parameters)")

	peerAddr := fs.String("upstream.peer-address", getenv("UPSTREAM_PEER_ADDRESS", ""), "network-source collaborator's peer address")
	upstreamMagic := fs.Uint("upstream.network-magic", uint(getenvUint64("UPSTREAM_NETWORK_MAGIC", uint64(oracle.Mainnet))), "network-source collaborator's advertised magic")
	isTestnet := fs.Bool("upstream.is-testnet", getenvBool("UPSTREAM_IS_TESTNET", false), "network-source collaborator's testnet flag")

	apiAddr := fs.String("api", getenv("API_ADDR", ":8080"), "read-only query/admin HTTP address")
	metricsAddr := fs.String("metrics", getenv("METRICS_ADDR", ":9090"), "prometheus /metrics address")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{
		StoragePath:          *storagePath,
		WALCacheMiB:          *walCache,
		LedgerCacheMiB:       *ledgerCache,
		ChainCacheMiB:        *chainCache,
		MaxWALHistory:        *maxWALHistory,
		MaxLedgerHistory:     *maxLedgerHistory,
		MaxChainHistory:      *maxChainHistory,
		NetworkMagic:         oracle.NetworkMagic(*networkMagic),
		IncludeGenesis:       *includeGenesis,
		StabilityWindow:      *stabilityWindow,
		UpstreamPeerAddress:  *peerAddr,
		UpstreamNetworkMagic: oracle.NetworkMagic(*upstreamMagic),
		UpstreamIsTestnet:    *isTestnet,
		APIAddr:              *apiAddr,
		MetricsAddr:          *metricsAddr,
	}
	if *stopEpoch != 0 {
		e := *stopEpoch
		cfg.StopEpoch = &e
	}
	if cfg.NetworkMagic == 0 {
		return nil, fmt.Errorf("config: chain.network-magic is required")
	}
	return cfg, nil
}

// StorePaths returns the per-store subdirectory under StoragePath, or
// "" for every store when StoragePath is itself empty. Each storage.Open
// hands "" to pebble.Open unchanged; no store switches to an in-memory
// filesystem for it.
func (c *Config) StorePaths() (wal, state, utxo, index, archive string) {
	if c.StoragePath == "" {
		return "", "", "", "", ""
	}
	base := c.StoragePath
	return base + "/wal", base + "/state", base + "/utxo", base + "/index", base + "/archive"
}
