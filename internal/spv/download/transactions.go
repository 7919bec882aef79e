package download

import (
	"context"
	"iter"

	"github.com/btcsuite/btcd/wire"
)

// Transactions yields the transactions of every result of s in block order.
// Filtered streams only carry transactions with FetchTransactions set.
func Transactions(ctx context.Context, s *Stream) iter.Seq2[*wire.MsgTx, error] {
	return func(yield func(*wire.MsgTx, error) bool) {
		for res, err := range s.All(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			for _, tx := range res.Transactions {
				if !yield(tx, nil) {
					return
				}
			}
		}
	}
}
