// Command tosnode wires C1 through C9 into a single process: a versioned
// store, the reachability and GHOSTDAG consensus indices, the block
// processor pipeline, and the rewind/prune maintenance path, fronted by a
// small HTTP surface for submitting blocks and reading chain status.
//
// Wire transport (P2P), RPC and mempool are deliberately out of scope
// (spec §1 Non-goals) — MempoolSink and executor.ContractExecutor are the
// injection points a full node would wire real implementations into.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ordishs/gocore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tos-network/tos-core/blockprocessor"
	"github.com/tos-network/tos-core/config"
	"github.com/tos-network/tos-core/consensus/ghostdag"
	"github.com/tos-network/tos-core/consensus/reachability"
	"github.com/tos-network/tos-core/executor"
	"github.com/tos-network/tos-core/metrics"
	"github.com/tos-network/tos-core/model"
	"github.com/tos-network/tos-core/rewind"
	"github.com/tos-network/tos-core/stores/versioned/memory"
	"github.com/tos-network/tos-core/ulogger"
)

const progname = "tosnode"

var version, commit string

func init() {
	gocore.SetInfo(progname, version, commit)
	gocore.Log(progname)
}

func main() {
	logger := ulogger.New(progname)

	settings := config.Load()
	logger.Infof("starting %s (%s, commit %s) on %s", progname, version, commit, networkName(settings.Network))

	store := memory.New()
	reach := reachability.New(store)
	defer reach.Close()

	engine := ghostdag.New(store, reach, uint8(settings.KClusterSize))
	defer engine.Close()

	proc, err := blockprocessor.New(store, reach, engine, settings, executor.NoOpExecutor{}, logger.New("blockproc"))
	if err != nil {
		logger.Fatalf("failed to construct block processor: %v", err)
	}

	if proc.TopTopoheight() == 0 {
		genesis := genesisHeader(settings)
		if err := proc.InitGenesis(genesis); err != nil {
			logger.Fatalf("failed to initialise genesis: %v", err)
		}
		logger.Infof("initialised genesis block %s", genesis.Hash().String())
	}

	rewinder := rewind.New(store, reach, engine, settings, logger.New("rewind"))

	metrics.Register(prometheus.DefaultRegisterer)

	srv := &node{
		logger:   logger,
		settings: settings,
		proc:     proc,
		rewind:   rewinder,
		mempool:  noopMempool{},
	}

	mux := http.NewServeMux()
	srv.registerRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	port, _ := gocore.Config().GetInt("tosnode_http_port", 8090)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Infof("http listening on :%d", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("error during http shutdown: %v", err)
	}
}

// genesisHeader builds the network's fixed genesis header. Its timestamp
// and bits are network parameters, not live state, so it is deterministic
// across every node on the same network.
func genesisHeader(settings *config.Settings) *model.BlockHeader {
	var ts uint64
	switch settings.Network {
	case config.NetworkMainnet:
		ts = 1_700_000_000_000
	case config.NetworkTestnet:
		ts = 1_700_000_000_000
	default:
		ts = 1_700_000_000_000
	}
	return &model.BlockHeader{
		Version:   model.VersionV1,
		Bits:      0x207fffff,
		Timestamp: ts,
	}
}

func networkName(n config.Network) string {
	switch n {
	case config.NetworkMainnet:
		return "mainnet"
	case config.NetworkTestnet:
		return "testnet"
	case config.NetworkDevnet:
		return "devnet"
	default:
		return "unknown"
	}
}

func waitForShutdown(logger ulogger.Logger) {
	sig := make(chan os.Signal, 1)
	notifySignals(sig)
	<-sig
	logger.Infof("shutdown signal received")
}
