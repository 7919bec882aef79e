package chain

import (
	"context"

	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"go.uber.org/zap"
)

type EventKind int

const (
	// EventBlock is published for every block that becomes the tip.
	EventBlock EventKind = iota
	// EventReorg is published when the new tip does not descend from the
	// previous one.
	EventReorg
	// EventSyncing is published when Sync starts.
	EventSyncing
	// EventSync is published after each batch processed by Sync.
	EventSync
	// EventSynced is published when Sync reaches its target.
	EventSynced
)

func (k EventKind) String() string {
	switch k {
	case EventBlock:
		return "block"
	case EventReorg:
		return "reorg"
	case EventSyncing:
		return "syncing"
	case EventSync:
		return "sync"
	case EventSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// Event describes a change of chain state.
type Event struct {
	Kind EventKind
	// Block is the new tip for EventBlock.
	Block *model.ChainBlock
	// Path is set for EventReorg.
	Path *model.ChainPath
	Tip  *model.ChainBlock
	// Syncing reports whether the change happened during Sync.
	Syncing bool
}

// Subscribe returns chain events. Publishing blocks until every subscriber
// has room, so subscribers must keep reading or unsubscribe.
func (c *Chain) Subscribe(buffer int) (<-chan Event, func()) {
	return c.events.Subscribe(buffer)
}

func (c *Chain) publish(ctx context.Context, ev Event) {
	ev.Syncing = c.syncing.Load()
	if ev.Tip == nil {
		ev.Tip = c.Tip()
	}
	if err := c.events.Publish(ctx, ev); err != nil {
		c.logger.Debug("event not delivered", zap.Stringer("kind", ev.Kind), zap.Error(err))
	}
}
