package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/spvchain/internal/spv/model"
)

const insertHeadersQuery = `
INSERT INTO spv_headers (
	network,
	height,
	hash,
	prev_hash,
	merkleroot,
	version,
	timestamp,
	bits,
	nonce
) VALUES`

// InsertHeaders stores header rows. A row replaces an earlier row at the same
// network and height.
func (r *Repository) InsertHeaders(ctx context.Context, headers []model.IndexedHeader) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("insert_headers", firstNetwork(headers), err, start)
	}()

	if len(headers) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, insertHeadersQuery)
	if err != nil {
		return fmt.Errorf("prepare headers batch: %w", err)
	}

	for _, h := range headers {
		if err = batch.Append(
			h.Network,
			h.Height,
			h.Hash,
			h.PrevHash,
			h.MerkleRoot,
			h.Version,
			h.Timestamp,
			h.Bits,
			h.Nonce,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append header: %w", err)
		}
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("insert headers: %w", err)
	}
	return nil
}

func firstNetwork(headers []model.IndexedHeader) string {
	if len(headers) == 0 {
		return ""
	}
	return headers[0].Network
}
