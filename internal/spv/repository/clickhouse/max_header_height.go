package clickhouse

import (
	"context"
	"fmt"
	"time"
)

const maxHeaderHeightQuery = `
SELECT coalesce(max(height), toUInt64(0)) AS max_height
FROM spv_headers
WHERE network = ?`

// MaxHeaderHeight returns the highest indexed height for network, or zero
// when nothing is indexed.
func (r *Repository) MaxHeaderHeight(ctx context.Context, network string) (height uint64, err error) {
	start := time.Now()
	defer func() {
		r.metrics.Observe("max_header_height", network, err, start)
	}()

	rows, err := r.conn.Query(ctx, maxHeaderHeightQuery, network)
	if err != nil {
		return 0, fmt.Errorf("query max header height: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	if !rows.Next() {
		return 0, fmt.Errorf("max header height not found")
	}

	if err = rows.Scan(&height); err != nil {
		return 0, fmt.Errorf("scan max header height: %w", err)
	}
	if err = rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate max header height: %w", err)
	}

	return height, nil
}
