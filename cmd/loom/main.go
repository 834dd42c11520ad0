// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command loom is the composition root: it loads the process config
// described by spec.md §6, wires the backrun/searcher/merger/estimator
// pipeline's broadcasters together, and runs every actor under one
// errgroup until SIGINT/SIGTERM, grounded on
// _examples/luxfi-evm/cmd/evm-node/main.go's cli.App/app.Before idiom.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/database"
	"github.com/luxfi/database/factory"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/geth/rpc"

	"github.com/luxfi/loom/backrun"
	"github.com/luxfi/loom/blockhistory"
	"github.com/luxfi/loom/bundle"
	"github.com/luxfi/loom/config"
	"github.com/luxfi/loom/encoder"
	"github.com/luxfi/loom/estimator"
	"github.com/luxfi/loom/events"
	"github.com/luxfi/loom/ingest"
	"github.com/luxfi/loom/log"
	"github.com/luxfi/loom/market"
	"github.com/luxfi/loom/mempool"
	"github.com/luxfi/loom/merger"
	"github.com/luxfi/loom/searcher"
	"github.com/luxfi/loom/statedb"
)

const clientIdentifier = "loom"

var app = &cli.App{
	Name:    clientIdentifier,
	Usage:   "EVM backrunning engine",
	Version: "0.1.0",
}

func init() {
	app.Action = run
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "path to a loom config file (yaml/toml/json)"},
		&cli.StringFlag{Name: "node", Usage: "HTTP JSON-RPC endpoint of the backing node", Value: "http://127.0.0.1:8545"},
		&cli.StringFlag{Name: "ws", Usage: "WebSocket JSON-RPC endpoint for newHeads/newPendingTransactions"},
		&cli.StringFlag{Name: "metrics-addr", Usage: "listen address for the /metrics endpoint, empty disables it"},
	}
	app.Before = func(ctx *cli.Context) error {
		log.SetDefault(log.NewLogger(log.NewTerminalHandler(os.Stderr, true)))
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// components bundles the wired pipeline so run stays a flat list of
// construction steps instead of one giant function body.
type components struct {
	cfg *config.Config

	cache  *statedb.Cache
	market *market.Market

	metrics *healthMetrics

	headerEvents  *events.Broadcaster[events.MessageBlockHeader]
	blockEvents   *events.Broadcaster[events.MessageBlock]
	logEvents     *events.Broadcaster[events.MessageBlockLogs]
	diffEvents    *events.Broadcaster[events.MessageBlockStateUpdate]
	mempoolEvents *events.Broadcaster[events.MempoolTx]
	marketEvents  *events.Broadcaster[events.MarketEvent]
	stateUpdates  *events.Broadcaster[events.StateUpdateEvent]
	composeEvents *events.Broadcaster[events.SwapComposeData]
	healthEvents  *events.Broadcaster[events.HealthEvent]

	ingest    *ingest.Client
	history   *blockhistory.Actor
	processor *backrun.Processor
	search    *searcher.Searcher
	merge     *merger.SamePathMerger
	estimate  *estimator.Estimator
}

func run(cliCtx *cli.Context) error {
	cfg, err := config.Load(cliCtx.String("config"))
	if err != nil {
		return fmt.Errorf("cmd/loom: %w", err)
	}

	httpClient, err := rpc.DialContext(cliCtx.Context, cliCtx.String("node"))
	if err != nil {
		return fmt.Errorf("cmd/loom: dial node: %w", err)
	}

	if addr := cliCtx.String("metrics-addr"); addr != "" {
		cfg.MetricsAddr = addr
	}

	c := buildComponents(cfg, httpClient, cliCtx.String("ws"))

	ctx, stop := signal.NotifyContext(cliCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return c.run(ctx)
}

func buildComponents(cfg *config.Config, rpcClient *rpc.Client, wsEndpoint string) *components {
	cache := statedb.NewCache(1<<20, 1<<26)
	cache.EnableMetrics("loom_statedb_cache")

	mkt := market.New()
	mkt.SetPathCache(market.NewPathCache(openPathCacheDB(cfg.DBAccess.Path)))

	c := &components{
		cfg:     cfg,
		cache:   cache,
		market:  mkt,
		metrics: newHealthMetrics(),

		headerEvents:  events.NewBroadcaster[events.MessageBlockHeader](1024, onOverflow("header")),
		blockEvents:   events.NewBroadcaster[events.MessageBlock](256, onOverflow("block")),
		logEvents:     events.NewBroadcaster[events.MessageBlockLogs](256, onOverflow("logs")),
		diffEvents:    events.NewBroadcaster[events.MessageBlockStateUpdate](256, onOverflow("statediff")),
		mempoolEvents: events.NewBroadcaster[events.MempoolTx](4096, onOverflow("mempool")),
		marketEvents:  events.NewBroadcaster[events.MarketEvent](1024, onOverflow("marketevent")),
		stateUpdates:  events.NewBroadcaster[events.StateUpdateEvent](1024, onOverflow("stateupdate")),
		composeEvents: events.NewBroadcaster[events.SwapComposeData](1024, onOverflow("compose")),
		healthEvents:  events.NewBroadcaster[events.HealthEvent](256, onOverflow("health")),
	}

	if wsEndpoint != "" {
		c.ingest = ingest.New(wsEndpoint, 50, c.headerEvents, c.mempoolEvents)
	}

	rootDB := func() *statedb.StateDB { return statedb.New(common.Hash{}, c.cache, nil) }

	c.history = &blockhistory.Actor{
		ChainParameters: cfg.Backrun.ChainParameters.Resolve(),
		History:         blockhistory.NewBlockHistory(blockhistory.DefaultMaxDepth),
		LatestBlock:     blockhistory.NewLatestBlock(),
		HeaderUpdates:   c.headerEvents,
		BlockUpdates:    c.blockEvents,
		LogUpdates:      c.logEvents,
		StateUpdates:    c.diffEvents,
		MarketEvents:    c.marketEvents,
		GetStateDB:      rootDB,
		SetStateDB:      func(*statedb.StateDB) {},
	}

	oracle := &NodeTraceOracle{Client: rpcClient}

	var filter *mempool.Filter
	var registry *backrun.CodeRegistry
	var discover backrun.PoolDiscoverer

	c.processor = &backrun.Processor{
		Oracle:       oracle,
		Market:       c.market,
		Mempool:      mempool.New(),
		GetDB:        rootDB,
		Registry:     registry,
		Discover:     discover,
		Filter:       filter,
		MarketEvents: c.marketEvents,
		MempoolTxs:   c.mempoolEvents,
		StateUpdates: c.stateUpdates,
	}

	c.search = &searcher.Searcher{
		Market:        c.market,
		ComposeEvents: c.composeEvents,
		HealthEvents:  c.healthEvents,
	}

	signer := types.LatestSignerForChainID(nil)
	c.merge = merger.New(oracle.Prestate(signer), c.composeEvents)

	var multicaller common.Address
	if cfg.MulticallerAddress != "" {
		multicaller = common.HexToAddress(cfg.MulticallerAddress)
	}
	enc := encoder.New(multicaller, common.Address{})
	e := estimator.New(&NodeCaller{Client: rpcClient}, enc)
	e.GasFloor = cfg.Backrun.GasEstimate.GasFloor
	e.GasInflationNum = cfg.Backrun.GasEstimate.GasInflationNum
	e.GasInflationDen = cfg.Backrun.GasEstimate.GasInflationDen
	e.ComposeEvents = c.composeEvents
	e.HealthEvents = c.healthEvents
	c.estimate = e

	return c
}

func onOverflow(stream string) func() {
	return func() { log.Warn("cmd/loom: broadcaster overflow, dropping oldest", "stream", stream) }
}

// openPathCacheDB opens the on-disk database backing market.PathCache at
// path (db_access.path in config), per SPEC_FULL.md §6.2's assignment of
// luxfi/database to market's optional path-enumeration cache. An empty path
// falls back to an in-memory store, so the cache still works (just without
// surviving a restart) when no db_access.path is configured.
func openPathCacheDB(path string) database.Database {
	if path == "" {
		return memdb.New()
	}
	db, err := factory.New("pebbledb", path, false, []byte{}, prometheus.NewRegistry(), log.Root(), "loom", "")
	if err != nil {
		log.Warn("cmd/loom: failed to open path cache db, falling back to memory", "path", path, "err", err)
		return memdb.New()
	}
	return db
}

// run starts every wired actor under one errgroup bound to ctx. Handler-style
// stages (searcher/merger/estimator) have no owning Run loop of their own, so
// they're driven here via events.Pump.
func (c *components) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if c.ingest != nil {
		g.Go(func() error { return c.ingest.Run(ctx) })
	}
	g.Go(func() error { return c.history.Run(ctx) })
	g.Go(func() error { return c.processor.Run(ctx) })

	g.Go(func() error {
		return events.Pump(ctx, c.stateUpdates.Subscribe(), c.search.HandleStateUpdate, func(err error) {
			log.Error("cmd/loom: searcher handler error", "err", err)
		})
	})
	g.Go(func() error {
		return events.Pump(ctx, c.composeEvents.Subscribe(), c.merge.HandleSwapCompose, func(err error) {
			log.Error("cmd/loom: merger handler error", "err", err)
		})
	})
	g.Go(func() error {
		return events.Pump(ctx, c.composeEvents.Subscribe(), c.estimate.HandleSwapCompose, func(err error) {
			log.Error("cmd/loom: estimator handler error", "err", err)
		})
	})
	g.Go(func() error {
		return events.Pump(ctx, c.composeEvents.Subscribe(), c.logReady, nil)
	})
	g.Go(func() error {
		return events.Pump(ctx, c.healthEvents.Subscribe(), c.metrics.handle, func(err error) {
			log.Error("cmd/loom: metrics handler error", "err", err)
		})
	})
	g.Go(func() error { return c.metrics.serve(ctx, c.cfg.MetricsAddr) })

	return g.Wait()
}

// logReady is the terminal stage: once a swap reaches StageReady with a
// single stuffing tx request it has nothing left to merge or estimate
// against, so this assembles and logs the resulting bundle identity.
// Submission to a relay is the external collaborator spec.md §1 leaves out
// of scope; this only demonstrates that TxBundle.Assemble/Hash round-trip.
func (c *components) logReady(_ context.Context, data events.SwapComposeData) error {
	if data.Stage != events.StageReady {
		return nil
	}
	b, err := bundle.Assemble(data.Tx.StuffingTxs, common.Hash{})
	if err != nil {
		return nil
	}
	log.Info("cmd/loom: bundle ready", "hash", b.Hash(), "stuffing_txs", len(b.StuffingTxRLPs))
	return nil
}
