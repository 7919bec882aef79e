package main

import (
	"context"
	"fmt"

	"github.com/goodnatureofminers/spvchain/internal/metrics"
	"github.com/goodnatureofminers/spvchain/internal/spv/chain"
	"github.com/goodnatureofminers/spvchain/internal/spv/download"
	"github.com/goodnatureofminers/spvchain/internal/spv/filter"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"github.com/goodnatureofminers/spvchain/internal/spv/peer"
	"go.uber.org/zap"
)

// runDownload streams blocks from cfg.DownloadFrom up to the current tip and
// logs transactions paying to or spending from watched addresses.
func runDownload(ctx context.Context, c *chain.Chain, group *peer.Group, cfg config, logger *zap.Logger) error {
	ref, err := model.ParseBlockRef(cfg.DownloadFrom)
	if err != nil {
		return err
	}
	from, err := c.GetBlock(ctx, ref)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", ref, err)
	}

	var f *filter.Filter
	if len(cfg.Watch) > 0 {
		if f, err = filter.New(c.Params().Chain, filter.Config{Addresses: cfg.Watch}); err != nil {
			return err
		}
	}

	s, err := download.Open(ctx, c, group, download.Options{
		From:              from.Hash,
		Filtered:          f != nil,
		FetchTransactions: f == nil || cfg.FetchTransactions,
		Timeout:           cfg.DownloadTimeout,
		Metrics:           metrics.NewDownloader(cfg.Network),
	}, logger)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer func() {
		_ = s.Close()
	}()

	logger.Info("download started", zap.Uint64("from", from.Height), zap.Stringer("hash", from.Hash))
	var blocks, matched int
	for res, err := range s.All(ctx) {
		if err != nil {
			return fmt.Errorf("download: %w", err)
		}
		blocks++
		for _, tx := range res.Transactions {
			if f == nil || !f.MatchTx(tx) {
				continue
			}
			matched++
			logger.Info("matched transaction",
				zap.Uint64("height", res.Height),
				zap.Stringer("block", res.Hash),
				zap.Stringer("tx", tx.TxHash()))
		}
		if res.MerkleBlock != nil && len(res.Matched) > 0 && !cfg.FetchTransactions {
			logger.Info("matched block", zap.Uint64("height", res.Height), zap.Int("transactions", len(res.Matched)))
		}
	}
	logger.Info("download finished", zap.Int("blocks", blocks), zap.Int("matched", matched))
	return nil
}
