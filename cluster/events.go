package cluster

import (
	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"
)

// NotifyJoin is called if a peer joins the cluster.
func (b *layer) NotifyJoin(n *memberlist.Node) {
	meta, err := decodeMeta(n.Meta)
	if err != nil {
		b.logger.Warn("failed to decode joining node meta", zap.String("remote_node_id", n.Name), zap.Error(err))
		return
	}
	b.mtx.RLock()
	f := b.onNodeJoin
	b.mtx.RUnlock()
	if f != nil {
		f(n.Name, meta)
	}
}

// NotifyLeave is called if a peer leaves the cluster.
func (b *layer) NotifyLeave(n *memberlist.Node) {
	meta, err := decodeMeta(n.Meta)
	if err != nil {
		b.logger.Warn("failed to decode leaving node meta", zap.String("remote_node_id", n.Name), zap.Error(err))
		return
	}
	b.mtx.RLock()
	f := b.onNodeLeave
	b.mtx.RUnlock()
	if f != nil {
		f(n.Name, meta)
	}
}

// NotifyUpdate is called if a cluster peer gets updated.
func (b *layer) NotifyUpdate(n *memberlist.Node) {
}
