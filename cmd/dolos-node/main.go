// dolos-node is the long-running replay node, modeled on the teacher's
// indexers/pcx/cmd/server/main.go composition root: load config, open
// every pebble-backed store, wire the processing pipeline, start the
// admin/metrics HTTP listeners in goroutines tracked by one
// sync.WaitGroup, and block on ctx.Done() for graceful shutdown.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/containerman17/dolos-ledger/cache"
	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/collab"
	"github.com/containerman17/dolos-ledger/commit"
	"github.com/containerman17/dolos-ledger/config"
	"github.com/containerman17/dolos-ledger/domainerr"
	"github.com/containerman17/dolos-ledger/entity"
	"github.com/containerman17/dolos-ledger/metrics"
	"github.com/containerman17/dolos-ledger/networksource"
	"github.com/containerman17/dolos-ledger/query"
	"github.com/containerman17/dolos-ledger/storage/archive"
	"github.com/containerman17/dolos-ledger/storage/indexstore"
	"github.com/containerman17/dolos-ledger/storage/statestore"
	"github.com/containerman17/dolos-ledger/storage/utxoset"
	"github.com/containerman17/dolos-ledger/storage/walstore"
	"github.com/containerman17/dolos-ledger/workbuffer"
	"github.com/containerman17/dolos-ledger/workunit"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("[dolos-node] %v", err)
	}
}

func run() error {
	fs := flag.NewFlagSet("dolos-node", flag.ExitOnError)
	genesisPath := fs.String("genesis", "", "path to a JSON-encoded workunit.GenesisConfig; required on first start when chain.include-genesis is set")
	cfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		return err
	}

	walPath, statePath, utxoPath, indexPath, archivePath := cfg.StorePaths()
	wal, err := walstore.Open(walPath, cfg.WALCacheMiB)
	if err != nil {
		return fmt.Errorf("open wal: %w", err)
	}
	defer wal.Close()
	state, err := statestore.Open(statePath, cfg.LedgerCacheMiB)
	if err != nil {
		return fmt.Errorf("open statestore: %w", err)
	}
	defer state.Close()
	utxo, err := utxoset.Open(utxoPath, cfg.LedgerCacheMiB)
	if err != nil {
		return fmt.Errorf("open utxoset: %w", err)
	}
	defer utxo.Close()
	index, err := indexstore.Open(indexPath, cfg.ChainCacheMiB)
	if err != nil {
		return fmt.Errorf("open indexstore: %w", err)
	}
	defer index.Close()
	arc, err := archive.Open(archivePath, cfg.ChainCacheMiB)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer arc.Close()

	coord := &commit.Coordinator{WAL: wal, State: state, Utxo: utxo, Index: index, Archive: arc}

	// Startup reconciliation (spec.md §4.10). Replaying a WAL-only
	// segment back into StateStore/UtxoSet/IndexStore needs the same
	// decode+roll+boundary recomputation the live pipeline runs — not
	// yet exposed as a standalone entry point off workunit.Executor — so
	// this callback only covers the always-safe, always-exercised case
	// (every store already agrees, the common case after a clean
	// shutdown) and returns a clear error otherwise rather than silently
	// skipping real divergence.
	if err := coord.Reconcile(func(e walstore.Entry) (commit.StateBundle, error) {
		return commit.StateBundle{}, fmt.Errorf("dolos-node: startup reconciliation needed (wal ahead of state at %s) but no replay path is wired; restore from the last clean shutdown or an archive snapshot", e.Point)
	}); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	walCursor, err := wal.Cursor()
	if err != nil {
		return fmt.Errorf("read wal cursor: %w", err)
	}

	c := cache.New()
	decoder := nopDecoder{}
	ex := workunit.NewExecutor(coord, c, decoder, cfg.NetworkMagic, 6) // 6-epoch governance action validity period, Conway's default

	var buf *workbuffer.Buffer
	if walCursor.IsOrigin() {
		if !cfg.IncludeGenesis {
			log.Printf("[dolos-node] no genesis committed yet and chain.include-genesis is unset; node will idle serving admin/metrics only")
			return serveOnly(cfg, coord)
		}
		gcfg, err := loadGenesisConfig(*genesisPath)
		if err != nil {
			return fmt.Errorf("load genesis config: %w", err)
		}
		buf = workbuffer.NewEmpty(c, cfg.StopEpoch)
		raw, err := workunit.EncodeGenesisConfig(gcfg)
		if err != nil {
			return fmt.Errorf("encode genesis config: %w", err)
		}
		if err := buf.ReceiveBlock(workbuffer.Block{
			Point: chain.NewChainPoint(gcfg.StartSlot, chain.BlockHash{}),
			Era:   0,
			Raw:   raw,
		}); err != nil {
			return fmt.Errorf("seed genesis: %w", err)
		}
	} else {
		eras, err := state.IterEntities(chain.NamespaceEraSummary, nil, nil)
		if err != nil {
			return fmt.Errorf("read era summaries: %w", err)
		}
		summaries := make([]entity.EraSummary, 0, len(eras))
		for _, b := range eras {
			var e entity.EraSummary
			if err := entity.Decode(b, &e); err != nil {
				return fmt.Errorf("decode era summary: %w", err)
			}
			summaries = append(summaries, e)
		}
		c.Refresh(summaries, cfg.StabilityWindow)
		summary, _ := c.Snapshot()
		if latestEra, ok := summary.Latest(); ok {
			ex.RestoreActiveProtocol(latestEra.Protocol)
		}
		buf = workbuffer.NewRestart(walCursor, c, cfg.StopEpoch)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	metrics.StartServer(cfg.MetricsAddr)
	wg.Add(1)
	go func() {
		defer wg.Done()
		runAdmin(ctx, cfg, query.New(state, utxo, index, arc))
	}()

	if cfg.UpstreamPeerAddress == "" {
		log.Printf("[dolos-node] upstream.peer-address not set; ingestion idle, admin/metrics still serving")
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runIngestion(ctx, cfg, ex, buf, walCursor)
		}()
	}

	<-ctx.Done()
	log.Println("[dolos-node] shutting down")
	wg.Wait()
	log.Println("[dolos-node] shutdown complete")
	return nil
}

// runIngestion drives the FSM: feed every RawBlock the network source
// delivers into the buffer, then drain every work unit PopWork yields
// through the Executor before accepting the next block, the same
// single-writer discipline spec.md §5 requires.
func runIngestion(ctx context.Context, cfg *config.Config, ex *workunit.Executor, buf *workbuffer.Buffer, resumeFrom chain.ChainPoint) {
	src := networksource.New(cfg.UpstreamPeerAddress)
	blocks, errs := src.Subscribe(ctx, resumeFrom)

	for w, ok := buf.PopWork(); ok; w, ok = buf.PopWork() {
		if err := ex.Execute(w); err != nil {
			log.Printf("[dolos-node] execute %v failed: %v", w.Kind, err)
			return
		}
		metrics.WorkUnitsTotal.WithLabelValues(fmt.Sprint(w.Kind)).Inc()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if ok && err != nil {
				log.Printf("[dolos-node] network source: %v", err)
			}
		case blk, ok := <-blocks:
			if !ok {
				return
			}
			if !buf.CanReceiveBlock() {
				log.Printf("[dolos-node] dropping block at %s: buffer not ready to receive", blk.Point)
				continue
			}
			if err := buf.ReceiveBlock(workbuffer.Block{Point: blk.Point, Era: blk.Era, Raw: blk.Raw}); err != nil {
				log.Printf("[dolos-node] receive block at %s: %v", blk.Point, err)
				continue
			}
			for w, ok := buf.PopWork(); ok; w, ok = buf.PopWork() {
				if err := ex.Execute(w); err != nil {
					log.Printf("[dolos-node] execute %v failed: %v", w.Kind, err)
					return
				}
				metrics.WorkUnitsTotal.WithLabelValues(fmt.Sprint(w.Kind)).Inc()
			}
		}
	}
}

// serveOnly runs just the admin/metrics surface, for the case where no
// genesis has been committed and none was requested — a useful mode for
// inspecting an empty or externally-seeded data directory.
func serveOnly(cfg *config.Config, coord *commit.Coordinator) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	metrics.StartServer(cfg.MetricsAddr)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runAdmin(ctx, cfg, query.New(coord.State, coord.Utxo, coord.Index, coord.Archive))
	}()
	<-ctx.Done()
	wg.Wait()
	return nil
}

var upgrader = websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}

// runAdmin serves the thin read-only HTTP surface SPEC_FULL.md §2
// commits to: /health, a /tip lookup backed by query.Store.Tip, and a
// /ws/tip websocket broadcasting the committed cursor on every poll —
// the node-side counterpart to networksource.Client's upstream
// subscription, using the same gorilla/websocket dependency for both.
func runAdmin(ctx context.Context, cfg *config.Config, q *query.Store) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /tip", func(w http.ResponseWriter, _ *http.Request) {
		tip, err := q.Tip()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"slot": tip.Slot, "origin": tip.IsOrigin()})
	})
	mux.HandleFunc("GET /ws/tip", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				tip, err := q.Tip()
				if err != nil {
					return
				}
				if err := conn.WriteJSON(map[string]any{"slot": tip.Slot}); err != nil {
					return
				}
			}
		}
	})

	server := &http.Server{Addr: cfg.APIAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
	log.Printf("[admin] listening on %s", cfg.APIAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("[admin] error: %v", err)
	}
}

// nopDecoder is the placeholder BlockDecoder wired by default: a real
// multi-era CBOR parser is an external dependency no example repo in
// this pack ships (spec.md §6.1 treats it as a collaborator this core
// depends on but never implements), so this satisfies the interface
// with an explicit, loud failure rather than silently misparsing.
// Production deployments wire workunit.NewExecutor with a concrete
// decoder in place of this one.
type nopDecoder struct{}

func (nopDecoder) Decode(raw chain.EraCbor) (collab.DecodedBlock, error) {
	return collab.DecodedBlock{}, &domainerr.DecodingError{Context: "no BlockDecoder configured", Err: fmt.Errorf("block decoding is an external collaborator (spec.md §6.1); wire a concrete decoder")}
}

func (nopDecoder) DecodeOutput(raw chain.EraCbor) (collab.DecodedOutput, error) {
	return collab.DecodedOutput{}, &domainerr.DecodingError{Context: "no BlockDecoder configured", Err: fmt.Errorf("block decoding is an external collaborator (spec.md §6.1); wire a concrete decoder")}
}

func loadGenesisConfig(path string) (workunit.GenesisConfig, error) {
	if path == "" {
		return workunit.GenesisConfig{}, fmt.Errorf("chain.include-genesis is set but -genesis was not given")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return workunit.GenesisConfig{}, err
	}
	var cfg workunit.GenesisConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return workunit.GenesisConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}
