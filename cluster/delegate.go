package cluster

import (
	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"
)

var _ memberlist.Delegate = &layer{}
var _ memberlist.EventDelegate = &layer{}

func (m *layer) NodeMeta(limit int) []byte {
	if len(m.meta) > limit {
		m.logger.Error("node meta exceeds memberlist limit", zap.Int("meta_size", len(m.meta)), zap.Int("meta_limit", limit))
		return nil
	}
	return m.meta
}

func (m *layer) GetBroadcasts(overhead, limit int) [][]byte {
	return m.queue.GetBroadcasts(overhead, limit)
}

// NotifyMsg merges a state delta broadcast by another member.
func (m *layer) NotifyMsg(b []byte) {
	var p part
	if err := decode(b, &p); err != nil {
		m.logger.Error("failed to decode state delta", zap.Error(err))
		return
	}
	m.merge([]part{p}, false)
}

// LocalState dumps every registered state for a push/pull exchange.
func (m *layer) LocalState(join bool) []byte {
	m.mtx.RLock()
	dump := fullState{Parts: make([]part, 0, len(m.states))}
	for key, state := range m.states {
		dump.Parts = append(dump.Parts, part{Key: key, Data: state.MarshalBinary()})
	}
	m.mtx.RUnlock()
	payload, err := encode(dump)
	if err != nil {
		m.logger.Error("failed to encode local state", zap.Error(err))
		return nil
	}
	return payload
}

// MergeRemoteState merges the full dump of another member.
func (m *layer) MergeRemoteState(buf []byte, join bool) {
	var dump fullState
	if err := decode(buf, &dump); err != nil {
		m.logger.Error("failed to decode remote state", zap.Error(err))
		return
	}
	m.merge(dump.Parts, true)
}

// merge hands each part to its state. Parts for unknown keys are dropped.
func (m *layer) merge(parts []part, full bool) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	for _, p := range parts {
		state, ok := m.states[p.Key]
		if !ok {
			continue
		}
		if err := state.Merge(p.Data, full); err != nil {
			m.logger.Error("failed to merge remote state", zap.String("state_key", p.Key), zap.Bool("full_sync", full), zap.Error(err))
		}
	}
}
