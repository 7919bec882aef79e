package download

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"github.com/goodnatureofminers/spvchain/internal/spv/peer"
)

type (
	// ChainReader walks the stored chain along next pointers.
	ChainReader interface {
		Get(ctx context.Context, hash chainhash.Hash) (*model.ChainBlock, error)
	}

	// Peers selects peers for requests and delivers their responses.
	Peers interface {
		WaitForPeer(ctx context.Context) (peer.Peer, error)
		Subscribe(buffer int) (<-chan peer.Event, func())
	}

	Metrics interface {
		ObserveResponse(kind string, err error, requested time.Time)
		ObserveUnmatched(kind string)
		ObserveInFlight(n int)
	}
)

type nopMetrics struct{}

func (nopMetrics) ObserveResponse(string, error, time.Time) {}
func (nopMetrics) ObserveUnmatched(string)                  {}
func (nopMetrics) ObserveInFlight(int)                      {}
