package bbr

import (
	"net/netip"

	"go.uber.org/zap"
)

const (
	// allBackboneRoutersGroupID is the group ID of both the All Network and
	// All Domain Backbone Routers multicast addresses.
	allBackboneRoutersGroupID = 3
	// aloc16BackboneRouterPrimary is the locator of the Primary Backbone Router ALOC.
	aloc16BackboneRouterPrimary = 0xfc38
)

// MulticastNetworkPrefixAddress builds a unicast-prefix-based multicast
// address (flags 3, realm-local scope) embedding up to 64 bits of prefix.
func MulticastNetworkPrefixAddress(prefix netip.Prefix, groupID uint8) netip.Addr {
	var b [16]byte
	b[0] = 0xff
	b[1] = 0x32
	if prefix.IsValid() {
		bits := prefix.Bits()
		if bits > 64 {
			bits = 64
		}
		raw := netip.PrefixFrom(prefix.Addr(), bits).Masked().Addr().As16()
		b[3] = uint8(bits)
		copy(b[4:12], raw[:8])
	}
	b[15] = groupID
	return netip.AddrFrom16(b)
}

// PrimaryAlocAddress returns the Primary Backbone Router anycast locator
// within the given mesh-local prefix.
func PrimaryAlocAddress(meshLocal netip.Prefix) netip.Addr {
	var b [16]byte
	if meshLocal.IsValid() {
		raw := meshLocal.Masked().Addr().As16()
		copy(b[:8], raw[:8])
	}
	b[11] = 0xff
	b[12] = 0xfe
	b[14] = aloc16BackboneRouterPrimary >> 8
	b[15] = aloc16BackboneRouterPrimary & 0xff
	return netip.AddrFrom16(b)
}

type multicastGroup struct {
	name       string
	address    netip.Addr
	subscribed bool
}

func newMulticastGroup(name string) multicastGroup {
	return multicastGroup{
		name:    name,
		address: MulticastNetworkPrefixAddress(netip.Prefix{}, allBackboneRoutersGroupID),
	}
}

// subscribe moves g onto the group derived from prefix, leaving the
// current group first.
func (l *Local) subscribe(g *multicastGroup, prefix netip.Prefix) {
	l.unsubscribe(g)
	g.address = MulticastNetworkPrefixAddress(prefix, allBackboneRoutersGroupID)
	if err := l.multicast.Subscribe(g.address); err != nil {
		l.logger.Warn("failed to subscribe multicast group",
			zap.String("group", g.name), zap.Stringer("address", g.address), zap.Error(err))
		return
	}
	g.subscribed = true
	l.logger.Debug("subscribed multicast group", zap.String("group", g.name), zap.Stringer("address", g.address))
}

func (l *Local) unsubscribe(g *multicastGroup) {
	if !g.subscribed {
		return
	}
	g.subscribed = false
	if err := l.multicast.Unsubscribe(g.address); err != nil {
		l.logger.Warn("failed to unsubscribe multicast group",
			zap.String("group", g.name), zap.Stringer("address", g.address), zap.Error(err))
		return
	}
	l.logger.Debug("unsubscribed multicast group", zap.String("group", g.name), zap.Stringer("address", g.address))
}

// ApplyMeshLocalPrefix moves the All Network Backbone Routers membership and
// the Primary ALOC onto the current mesh-local prefix.
func (l *Local) ApplyMeshLocalPrefix() {
	if !l.IsEnabled() {
		return
	}
	prefix := l.topology.MeshLocalPrefix()
	l.unsubscribe(&l.allNetworkBackboneRouters)
	l.subscribe(&l.allNetworkBackboneRouters, prefix)

	if l.IsPrimary() {
		l.removePrimaryAloc()
		l.addPrimaryAloc()
	}
}

// HandleDomainPrefixUpdate keeps the All Domain Backbone Routers membership
// in sync with the network domain prefix and notifies the domain prefix callback.
func (l *Local) HandleDomainPrefixUpdate(event DomainPrefixEvent, prefix *netip.Prefix) {
	if !l.IsEnabled() {
		return
	}
	if event == DomainPrefixRemoved || event == DomainPrefixRefreshed {
		l.unsubscribe(&l.allDomainBackboneRouters)
	}
	if (event == DomainPrefixAdded || event == DomainPrefixRefreshed) && prefix != nil {
		l.subscribe(&l.allDomainBackboneRouters, *prefix)
	}
	if l.domainPrefixCallback == nil {
		return
	}
	switch event {
	case DomainPrefixAdded:
		l.domainPrefixCallback(DomainPrefixChangeAdded, prefix)
	case DomainPrefixRemoved:
		l.domainPrefixCallback(DomainPrefixChangeRemoved, prefix)
	case DomainPrefixRefreshed:
		l.domainPrefixCallback(DomainPrefixChangeChanged, prefix)
	}
}

// AllNetworkBackboneRouters returns the current All Network Backbone Routers address.
func (l *Local) AllNetworkBackboneRouters() netip.Addr {
	return l.allNetworkBackboneRouters.address
}

// AllDomainBackboneRouters returns the current All Domain Backbone Routers address.
func (l *Local) AllDomainBackboneRouters() netip.Addr {
	return l.allDomainBackboneRouters.address
}
