package cluster

import (
	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"
)

// stateBroadcast carries one encoded state delta. Deltas never supersede
// each other: every queued message is retransmitted until its budget is spent.
type stateBroadcast struct {
	key     string
	payload []byte
}

func (b stateBroadcast) Message() []byte                       { return b.payload }
func (b stateBroadcast) Invalidates(memberlist.Broadcast) bool { return false }
func (b stateBroadcast) Finished()                             {}

type channel struct {
	key    string
	queue  *memberlist.TransmitLimitedQueue
	logger *zap.Logger
}

// Broadcast queues b for best-effort delivery to every member.
func (c *channel) Broadcast(b []byte) {
	payload, err := encode(part{Key: c.key, Data: b})
	if err != nil {
		c.logger.Error("failed to encode state delta", zap.String("state_key", c.key), zap.Error(err))
		return
	}
	c.queue.QueueBroadcast(stateBroadcast{key: c.key, payload: payload})
}
