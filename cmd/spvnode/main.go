package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodnatureofminers/spvchain/internal/clock"
	"github.com/goodnatureofminers/spvchain/internal/metrics"
	"github.com/goodnatureofminers/spvchain/internal/pkg/btcd/rpcclient"
	"github.com/goodnatureofminers/spvchain/internal/spv/chain"
	"github.com/goodnatureofminers/spvchain/internal/spv/filter"
	"github.com/goodnatureofminers/spvchain/internal/spv/headerserver"
	"github.com/goodnatureofminers/spvchain/internal/spv/index"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"github.com/goodnatureofminers/spvchain/internal/spv/peer"
	"github.com/goodnatureofminers/spvchain/internal/spv/repository/clickhouse"
	"github.com/goodnatureofminers/spvchain/internal/spv/rpcsource"
	"github.com/goodnatureofminers/spvchain/internal/spv/store/badger"
	"github.com/goodnatureofminers/spvchain/internal/spv/store/cached"
	"github.com/goodnatureofminers/spvchain/internal/transport"
	grpcZap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type config struct {
	Network    string `long:"network" env:"SPVNODE_NETWORK" description:"mainnet, testnet3, regtest or signet" default:"mainnet"`
	Checkpoint bool   `long:"checkpoint" env:"SPVNODE_CHECKPOINT" description:"validate from the network checkpoint instead of genesis"`
	DataDir    string `long:"data-dir" env:"SPVNODE_DATA_DIR" description:"block store directory, empty keeps blocks in memory"`
	CacheSize  int    `long:"cache-size" env:"SPVNODE_CACHE_SIZE" description:"blocks kept in the read cache" default:"10000"`

	Peers          []string      `long:"peer" env:"SPVNODE_PEERS" env-delim:"," description:"peer address host:port, repeatable"`
	UserAgent      string        `long:"user-agent" env:"SPVNODE_USER_AGENT" description:"user agent announced to peers" default:"spvnode"`
	HeadersTimeout time.Duration `long:"headers-timeout" env:"SPVNODE_HEADERS_TIMEOUT" description:"wait for a headers response before switching peers" default:"30s"`
	ServeHeaders   bool          `long:"serve-headers" env:"SPVNODE_SERVE_HEADERS" description:"answer getheaders from peers"`

	RPCURL      string `long:"rpc-url" env:"SPVNODE_RPC_URL" description:"trusted node RPC URL; replaces peers as the header source"`
	RPCUser     string `long:"rpc-user" env:"SPVNODE_RPC_USER" description:"RPC username"`
	RPCPassword string `long:"rpc-password" env:"SPVNODE_RPC_PASSWORD" description:"RPC password"`
	ZMQAddr     string `long:"zmq-addr" env:"SPVNODE_ZMQ_ADDR" description:"node zmq endpoint publishing hashblock; wakes the sync loop early"`

	SyncTo       uint64        `long:"sync-to" env:"SPVNODE_SYNC_TO" description:"stop syncing at this height, 0 follows the source"`
	SyncInterval time.Duration `long:"sync-interval" env:"SPVNODE_SYNC_INTERVAL" description:"pause between syncs" default:"30s"`

	Watch             []string      `long:"watch" env:"SPVNODE_WATCH" env-delim:"," description:"address to watch, repeatable; enables filtered downloads"`
	DownloadFrom      string        `long:"download-from" env:"SPVNODE_DOWNLOAD_FROM" description:"block hash, height or unix time to start downloading blocks from"`
	FetchTransactions bool          `long:"fetch-transactions" env:"SPVNODE_FETCH_TRANSACTIONS" description:"request matched transactions of filtered blocks"`
	DownloadTimeout   time.Duration `long:"download-timeout" env:"SPVNODE_DOWNLOAD_TIMEOUT" description:"fail the download when a block stays unanswered" default:"2m"`

	ClickhouseDSN string `long:"clickhouse-dsn" env:"SPVNODE_CLICKHOUSE_DSN" description:"ClickHouse DSN for the header index"`

	Addr     string `long:"addr" env:"SPVNODE_ADDR" description:"gRPC address" default:":8000"`
	RestAddr string `long:"rest-addr" env:"SPVNODE_REST_ADDR" description:"REST and metrics address" default:":8001"`
}

func main() {
	cfg := config{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()
	grpcZap.ReplaceGrpcLoggerV2(logger)

	if _, err := flags.ParseArgs(&cfg, os.Args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		logger.Fatal("failed to parse flags", zap.Error(err))
	}

	if err := run(ctx, cfg, logger.With(zap.String("network", cfg.Network))); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("spvnode failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	if cfg.RPCURL == "" && len(cfg.Peers) == 0 {
		return errors.New("either --peer or --rpc-url is required")
	}
	if cfg.DownloadFrom != "" && len(cfg.Peers) == 0 {
		return errors.New("--download-from requires --peer")
	}

	params, err := model.ParamsByName(cfg.Network)
	if err != nil {
		return err
	}
	if cfg.Checkpoint {
		if params, err = params.WithCheckpoint(); err != nil {
			return err
		}
	}

	disk, err := badger.New(badger.Config{DataDir: cfg.DataDir}, logger)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	blocks, err := cached.New(disk, cfg.CacheSize)
	if err != nil {
		_ = disk.Close()
		return fmt.Errorf("init cache: %w", err)
	}
	defer func() {
		if err := blocks.Close(); err != nil {
			logger.Error("failed to close store", zap.Error(err))
		}
	}()

	c, err := chain.New(ctx, params, blocks, metrics.NewChain(cfg.Network), logger.Named("chain"))
	if err != nil {
		return fmt.Errorf("init chain: %w", err)
	}
	defer c.Close()

	var ix *index.Index
	if cfg.ClickhouseDSN != "" {
		repo, err := clickhouse.NewRepository(cfg.ClickhouseDSN, metrics.NewClickhouseRepository())
		if err != nil {
			return fmt.Errorf("init repository: %w", err)
		}
		defer func() {
			_ = repo.Close()
		}()
		ix = index.New(c, repo, cfg.Network, index.Options{}, metrics.NewIndexer(cfg.Network), logger.Named("index"))
	}

	blockSignal, err := startBlockSignal(ctx, cfg.ZMQAddr, logger.Named("zmq"))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	var (
		source chain.HeaderSource
		group  *peer.Group
	)
	if cfg.RPCURL != "" {
		client, err := rpcclient.New(cfg.RPCURL, cfg.RPCUser, cfg.RPCPassword)
		if err != nil {
			return fmt.Errorf("init rpc client: %w", err)
		}
		defer func() {
			client.Shutdown()
			client.WaitForShutdown()
		}()
		observed := rpcclient.NewObservedClient(client, metrics.NewRPCClient(cfg.Network))
		source = rpcsource.New(observed, rpcsource.Options{}, logger)
	}
	if len(cfg.Peers) > 0 {
		group = peer.NewGroup(metrics.NewPeers(cfg.Network), logger.Named("peers"))
		defer group.Close()
		if source == nil {
			source = peer.NewHeaderSource(group, cfg.HeadersTimeout, logger)
		}
		if len(cfg.Watch) > 0 {
			f, err := filter.New(params.Chain, filter.Config{Addresses: cfg.Watch})
			if err != nil {
				return fmt.Errorf("init filter: %w", err)
			}
			if err := group.SetFilter(f.Load()); err != nil {
				return fmt.Errorf("load filter: %w", err)
			}
		}
		for _, addr := range cfg.Peers {
			g.Go(func() error {
				return maintainPeer(ctx, addr, group, peerConfig(cfg, c), logger.Named("peer"))
			})
		}
		if cfg.ServeHeaders {
			g.Go(func() error {
				return headerserver.New(c, logger.Named("headerserver")).Run(ctx, group)
			})
		}
	}

	synced := make(chan struct{})
	g.Go(func() error {
		return syncLoop(ctx, c, source, cfg, blockSignal, synced, logger)
	})

	if cfg.DownloadFrom != "" {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-synced:
			}
			return runDownload(ctx, c, group, cfg, logger.Named("download"))
		})
	}

	if ix != nil {
		g.Go(func() error {
			return ix.Run(ctx)
		})
	}

	var counter transport.PeerCounter
	if group != nil {
		counter = group
	}
	g.Go(func() error {
		return serveGateway(ctx, cfg.Addr, cfg.RestAddr, transport.NewStatusHandler(c, counter), logger)
	})

	return g.Wait()
}

// syncLoop keeps the chain following source. Rounds start every SyncInterval
// or on a block signal; failed rounds are logged.
func syncLoop(ctx context.Context, c *chain.Chain, source chain.HeaderSource, cfg config, blockSignal <-chan struct{}, synced chan<- struct{}, logger *zap.Logger) error {
	opts := chain.SyncOptions{
		To:    cfg.SyncTo,
		Retry: clock.Backoff{Initial: time.Second, Max: time.Minute},
	}
	first := true
	for {
		tip, err := c.Sync(ctx, source, opts)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			logger.Error("sync failed", zap.Error(err))
		case first:
			logger.Info("initial sync finished", zap.Uint64("height", tip.Height))
			close(synced)
			first = false
		}
		if cfg.SyncTo != 0 && err == nil && tip.Height >= cfg.SyncTo {
			return nil
		}
		if err := clock.Sleep(ctx, cfg.SyncInterval, blockSignal); err != nil {
			return err
		}
	}
}
