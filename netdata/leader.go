package netdata

import (
	"net/netip"

	"github.com/vx-labs/backbone-router/bbr"
	"go.uber.org/zap"
)

// Source exposes the live network data entries.
type Source interface {
	Services() []*ServiceEntry
	Prefixes() []*PrefixEntry
}

type PrimaryHandler func(state bbr.PrimaryState, config bbr.LeaderConfig)
type DomainPrefixHandler func(event bbr.DomainPrefixEvent, prefix *netip.Prefix)

// Leader derives the Primary Backbone Router and the domain prefix from the
// network data, and reports how they changed between two evaluations.
type Leader struct {
	logger         *zap.Logger
	source         Source
	primary        bbr.LeaderConfig
	domainPrefix   netip.Prefix
	onPrimary      []PrimaryHandler
	onDomainPrefix []DomainPrefixHandler
}

var _ bbr.PrimaryObserver = &Leader{}

func NewLeader(logger *zap.Logger, source Source) *Leader {
	return &Leader{
		logger:  logger,
		source:  source,
		primary: bbr.LeaderConfig{Server16: bbr.ShortAddrInvalid},
	}
}

func (l *Leader) OnPrimaryUpdate(f PrimaryHandler) {
	l.onPrimary = append(l.onPrimary, f)
}
func (l *Leader) OnDomainPrefixUpdate(f DomainPrefixHandler) {
	l.onDomainPrefix = append(l.onDomainPrefix, f)
}

// Primary returns the last observed Primary service.
func (l *Leader) Primary() bbr.LeaderConfig {
	return l.primary
}

// DomainPrefix returns the last observed domain prefix.
func (l *Leader) DomainPrefix() (netip.Prefix, bool) {
	return l.domainPrefix, l.domainPrefix.IsValid()
}

// Update re-evaluates the network data and notifies observers.
func (l *Leader) Update() {
	l.updatePrimary()
	l.updateDomainPrefix()
}

func (l *Leader) updatePrimary() {
	previous := l.primary
	current := electPrimary(l.source.Services())
	state := primaryState(previous, current)
	l.primary = current
	if state != bbr.PrimaryUnchanged && state != bbr.PrimaryNone {
		l.logger.Info("primary backbone router updated",
			zap.Stringer("primary_state", state),
			zap.Uint16("server16", current.Server16),
			zap.Uint8("sequence_number", current.SequenceNumber),
			zap.Uint16("reregistration_delay", current.ReregistrationDelay),
			zap.Uint32("mlr_timeout", current.MlrTimeout))
	}
	for _, f := range l.onPrimary {
		f(state, current)
	}
}

func (l *Leader) updateDomainPrefix() {
	previous := l.domainPrefix
	current := electDomainPrefix(l.source.Prefixes())
	event := domainPrefixEvent(previous, current)
	l.domainPrefix = current
	if event == bbr.DomainPrefixNone || event == bbr.DomainPrefixUnchanged {
		return
	}
	l.logger.Info("domain prefix updated",
		zap.Stringer("domain_prefix_event", event),
		zap.Stringer("domain_prefix", current))
	var prefix *netip.Prefix
	if current.IsValid() {
		p := current
		prefix = &p
	}
	for _, f := range l.onDomainPrefix {
		f(event, prefix)
	}
}

// electPrimary picks the live service registered first, lowest RLOC16 first
// on ties.
func electPrimary(services []*ServiceEntry) bbr.LeaderConfig {
	var elected *ServiceEntry
	for _, entry := range services {
		if elected == nil ||
			entry.Since < elected.Since ||
			(entry.Since == elected.Since && entry.Rloc16 < elected.Rloc16) {
			elected = entry
		}
	}
	if elected == nil {
		return bbr.LeaderConfig{Server16: bbr.ShortAddrInvalid}
	}
	return bbr.LeaderConfig{Server16: elected.Rloc16, Config: elected.Config()}
}

func primaryState(previous, current bbr.LeaderConfig) bbr.PrimaryState {
	hadPrimary := previous.Server16 != bbr.ShortAddrInvalid
	hasPrimary := current.Server16 != bbr.ShortAddrInvalid
	switch {
	case !hadPrimary && !hasPrimary:
		return bbr.PrimaryNone
	case !hadPrimary:
		return bbr.PrimaryAdded
	case !hasPrimary:
		return bbr.PrimaryRemoved
	case previous.Server16 != current.Server16 || previous.SequenceNumber != current.SequenceNumber:
		return bbr.PrimaryToTriggerRereg
	case previous.ReregistrationDelay != current.ReregistrationDelay || previous.MlrTimeout != current.MlrTimeout:
		return bbr.PrimaryRefreshed
	default:
		return bbr.PrimaryUnchanged
	}
}

// electDomainPrefix picks the lowest on-mesh prefix flagged as domain prefix.
func electDomainPrefix(prefixes []*PrefixEntry) netip.Prefix {
	var elected netip.Prefix
	for _, entry := range prefixes {
		if !entry.Config.Dp || !entry.Config.HasPrefix() {
			continue
		}
		p := entry.Config.Prefix
		if !elected.IsValid() || lessPrefix(p, elected) {
			elected = p
		}
	}
	return elected
}

func lessPrefix(a, b netip.Prefix) bool {
	if c := a.Addr().Compare(b.Addr()); c != 0 {
		return c < 0
	}
	return a.Bits() < b.Bits()
}

func domainPrefixEvent(previous, current netip.Prefix) bbr.DomainPrefixEvent {
	switch {
	case !previous.IsValid() && !current.IsValid():
		return bbr.DomainPrefixNone
	case !previous.IsValid():
		return bbr.DomainPrefixAdded
	case !current.IsValid():
		return bbr.DomainPrefixRemoved
	case previous != current:
		return bbr.DomainPrefixRefreshed
	default:
		return bbr.DomainPrefixUnchanged
	}
}
