package backbone

import (
	"net/netip"

	"github.com/vx-labs/backbone-router/bbr"
	"github.com/vx-labs/backbone-router/cluster"
	"github.com/vx-labs/backbone-router/events"
	"go.uber.org/zap"
)

type membershipChange struct {
	id     string
	meta   cluster.NodeMeta
	joined bool
}

// handleNodeJoin and handleNodeLeave run on memberlist goroutines holding
// memberlist locks: they only queue the change and never block.
func (s *Service) handleNodeJoin(id string, meta cluster.NodeMeta) {
	s.queueMembershipChange(membershipChange{id: id, meta: meta, joined: true})
}

func (s *Service) handleNodeLeave(id string, meta cluster.NodeMeta) {
	s.queueMembershipChange(membershipChange{id: id, meta: meta})
}

func (s *Service) queueMembershipChange(change membershipChange) {
	s.membershipMtx.Lock()
	s.pendingMembership = append(s.pendingMembership, change)
	s.membershipMtx.Unlock()
	select {
	case s.membership <- struct{}{}:
	default:
	}
}

// applyMembershipChanges processes the queued changes in arrival order.
func (s *Service) applyMembershipChanges() {
	s.membershipMtx.Lock()
	changes := s.pendingMembership
	s.pendingMembership = nil
	s.membershipMtx.Unlock()
	if len(changes) == 0 {
		return
	}
	for _, change := range changes {
		if change.joined {
			s.logger.Info("node joined mesh", zap.String("remote_node_id", change.id), zap.Uint16("remote_rloc16", change.meta.Rloc16))
			continue
		}
		s.logger.Info("node left mesh", zap.String("remote_node_id", change.id), zap.Uint16("remote_rloc16", change.meta.Rloc16))
		if change.id != s.layer.ID() {
			if err := s.store.DeleteNode(change.meta.Rloc16); err != nil {
				s.logger.Warn("failed to expire network data of departed node", zap.String("remote_node_id", change.id), zap.Error(err))
			}
		}
	}
	s.mesh.Refresh()
}

func (s *Service) handleAttachmentChange(attached bool) {
	s.tracked.dirty = true
}

func (s *Service) handleMeshLocalPrefixChange(netip.Prefix) {
	s.local.ApplyMeshLocalPrefix()
}

func (s *Service) handleDomainPrefixUpdate(event bbr.DomainPrefixEvent, prefix *netip.Prefix) {
	if event == bbr.DomainPrefixAdded || event == bbr.DomainPrefixRefreshed {
		s.refeedDomainPrefix = false
	}
	s.local.HandleDomainPrefixUpdate(event, prefix)
}

func (s *Service) emitDomainPrefixChange(change bbr.DomainPrefixChange, prefix *netip.Prefix) {
	s.bus.Emit(events.Event{
		Key:   EventDomainPrefixChanged,
		Entry: DomainPrefixChange{Change: change, Prefix: prefix},
	})
}

func (s *Service) handleStateChanged(events.Event) {
	state := s.local.State()
	s.metrics.observeState(state)
	if s.lastState == bbr.StateDisabled && state != bbr.StateDisabled {
		s.refeedDomainPrefix = true
	}
	s.lastState = state
}

func (s *Service) handleLocalChanged(events.Event) {
	config := s.local.Config()
	s.metrics.sequenceNumber.Set(float64(config.SequenceNumber))
	if s.persistence == nil {
		return
	}
	if err := s.persistence.SaveConfig(config); err != nil {
		s.logger.Warn("failed to persist backbone router config", zap.Error(err))
	}
}

// restore applies the persisted settings, falling back to the configured
// defaults for the enabled flag and the domain prefix.
func (s *Service) restore(config Config) {
	domainPrefix := config.DomainPrefix
	if s.persistence != nil {
		if saved, err := s.persistence.LoadConfig(); err == nil {
			if err := s.local.SetConfig(saved); err != nil {
				s.logger.Warn("ignoring invalid persisted backbone router config", zap.Error(err))
			}
		}
		if enabled, err := s.persistence.LoadEnabled(); err == nil {
			s.enabled = enabled
		}
		if saved, err := s.persistence.LoadDomainPrefix(); err == nil {
			domainPrefix = &saved
		}
	}
	if domainPrefix != nil {
		if err := s.local.SetDomainPrefix(*domainPrefix); err != nil {
			s.logger.Warn("ignoring invalid domain prefix", zap.Stringer("domain_prefix", domainPrefix.Prefix), zap.Error(err))
		}
	}
}
