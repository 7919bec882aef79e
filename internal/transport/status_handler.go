// Package transport exposes gRPC/HTTP handlers.
package transport

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

import (
	"context"
	"fmt"

	blockinsight7000v1 "github.com/goodnatureofminers/blockinsight7000-proto/pkg/blockinsight7000/v1"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type (
	ChainState interface {
		Tip() *model.ChainBlock
		Syncing() bool
	}

	PeerCounter interface {
		Len() int
	}
)

// StatusHandler implements ExplorerServiceServer on top of the header chain.
type StatusHandler struct {
	blockinsight7000v1.UnimplementedExplorerServiceServer

	chain ChainState
	peers PeerCounter
}

// NewStatusHandler returns a StatusHandler. peers may be nil when headers
// come from a trusted node.
func NewStatusHandler(chain ChainState, peers PeerCounter) *StatusHandler {
	return &StatusHandler{chain: chain, peers: peers}
}

// Health reports the chain tip. It fails with Unavailable while no peer is
// connected.
func (h *StatusHandler) Health(_ context.Context, _ *blockinsight7000v1.HealthRequest) (*blockinsight7000v1.HealthResponse, error) {
	peers := -1
	if h.peers != nil {
		peers = h.peers.Len()
		if peers == 0 {
			return nil, status.Error(codes.Unavailable, "no connected peers")
		}
	}

	tip := h.chain.Tip()
	state := "synced"
	if h.chain.Syncing() {
		state = "syncing"
	}
	description := fmt.Sprintf("%s tip=%d hash=%s", state, tip.Height, tip.Hash)
	if peers >= 0 {
		description += fmt.Sprintf(" peers=%d", peers)
	}
	return &blockinsight7000v1.HealthResponse{
		Status:      blockinsight7000v1.HealthStatus_HEALTH_STATUS_HEALTHY,
		Description: description,
	}, nil
}
