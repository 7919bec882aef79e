package clickhouse

import (
	"context"
	"fmt"
	"time"
)

const headerHashQuery = `
SELECT hash
FROM spv_headers FINAL
WHERE network = ? AND height = ?
LIMIT 1`

// HeaderHash returns the indexed hash at height.
func (r *Repository) HeaderHash(ctx context.Context, network string, height uint64) (hash string, err error) {
	start := time.Now()
	defer func() {
		r.metrics.Observe("header_hash", network, err, start)
	}()

	rows, err := r.conn.Query(ctx, headerHashQuery, network, height)
	if err != nil {
		return "", fmt.Errorf("query header hash: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return "", fmt.Errorf("iterate header hash: %w", err)
		}
		return "", fmt.Errorf("height %d: %w", height, ErrNotFound)
	}
	if err = rows.Scan(&hash); err != nil {
		return "", fmt.Errorf("scan header hash: %w", err)
	}
	return hash, nil
}
