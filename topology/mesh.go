// Package topology tracks the attachment of the local node to the mesh.
package topology

import (
	"errors"
	"net/netip"

	"github.com/vx-labs/backbone-router/bbr"
	"github.com/vx-labs/backbone-router/cluster"
	"go.uber.org/zap"
)

var (
	ErrInvalidMeshLocalPrefix = errors.New("invalid mesh-local prefix")
)

// Members lists the nodes currently part of the mesh.
type Members interface {
	ID() string
	Members() []cluster.NodeMeta
}

type Options struct {
	Rloc16          uint16
	MeshLocalPrefix netip.Prefix
	// Standalone considers the node attached even without peers.
	Standalone bool
	// RouterSelectionJitter bounds the random delay armed on attachment.
	RouterSelectionJitter uint8
}

var _ bbr.Topology = &Mesh{}

// Mesh implements bbr.Topology on top of the gossip membership.
type Mesh struct {
	logger                *zap.Logger
	members               Members
	random                bbr.Random
	rloc16                uint16
	meshLocalPrefix       netip.Prefix
	standalone            bool
	routerSelectionJitter uint8
	jitterTimeout         uint8
	attached              bool
	leader                bool
	onMeshLocalPrefix     []func(netip.Prefix)
	onAttachmentChange    []func(attached bool)
}

func NewMesh(logger *zap.Logger, members Members, random bbr.Random, opts Options) (*Mesh, error) {
	if !isValidMeshLocalPrefix(opts.MeshLocalPrefix) {
		return nil, ErrInvalidMeshLocalPrefix
	}
	return &Mesh{
		logger:                logger,
		members:               members,
		random:                random,
		rloc16:                opts.Rloc16,
		meshLocalPrefix:       opts.MeshLocalPrefix,
		standalone:            opts.Standalone,
		routerSelectionJitter: opts.RouterSelectionJitter,
	}, nil
}

func isValidMeshLocalPrefix(p netip.Prefix) bool {
	return p.IsValid() && p.Addr().Is6() && !p.Addr().Is4In6() && p.Bits() == 64
}

func (m *Mesh) MeshLocalPrefix() netip.Prefix {
	return m.meshLocalPrefix
}

// SetMeshLocalPrefix replaces the mesh-local prefix and notifies observers
// when it changed.
func (m *Mesh) SetMeshLocalPrefix(p netip.Prefix) error {
	if !isValidMeshLocalPrefix(p) {
		return ErrInvalidMeshLocalPrefix
	}
	p = p.Masked()
	if p == m.meshLocalPrefix {
		return nil
	}
	m.meshLocalPrefix = p
	m.logger.Info("mesh-local prefix changed", zap.Stringer("mesh_local_prefix", p))
	for _, f := range m.onMeshLocalPrefix {
		f(p)
	}
	return nil
}

func (m *Mesh) OnMeshLocalPrefixChange(f func(netip.Prefix)) {
	m.onMeshLocalPrefix = append(m.onMeshLocalPrefix, f)
}
func (m *Mesh) OnAttachmentChange(f func(attached bool)) {
	m.onAttachmentChange = append(m.onAttachmentChange, f)
}

func (m *Mesh) Rloc16() uint16 {
	return m.rloc16
}
func (m *Mesh) IsAttached() bool {
	return m.attached
}
func (m *Mesh) IsLeader() bool {
	return m.attached && m.leader
}
func (m *Mesh) RouterSelectionJitterTimeout() uint8 {
	return m.jitterTimeout
}

// IsValidDomainPrefix accepts global or unique-local IPv6 prefixes up to /64
// that do not overlap the mesh-local prefix.
func (m *Mesh) IsValidDomainPrefix(config bbr.OnMeshPrefixConfig) bool {
	p := config.Prefix
	if !config.HasPrefix() || p.Bits() > 64 {
		return false
	}
	addr := p.Addr()
	if !addr.Is6() || addr.Is4In6() {
		return false
	}
	if addr.IsMulticast() || addr.IsLinkLocalUnicast() || addr.IsLoopback() || addr.IsUnspecified() {
		return false
	}
	return !p.Overlaps(m.meshLocalPrefix)
}

// Refresh recomputes the attachment and leader flags from the current
// membership, arming the router selection jitter when the node attaches.
func (m *Mesh) Refresh() {
	members := m.members.Members()
	attached := m.standalone || len(members) > 1
	leader := false
	if len(members) > 0 {
		lowest := members[0].ID
		for _, member := range members[1:] {
			if member.ID < lowest {
				lowest = member.ID
			}
		}
		leader = lowest == m.members.ID()
	}
	m.leader = leader
	if attached == m.attached {
		return
	}
	m.attached = attached
	if attached {
		m.jitterTimeout = 0
		if m.routerSelectionJitter > 0 {
			m.jitterTimeout = uint8(m.random.Uint16InRange(1, uint16(m.routerSelectionJitter)+1))
		}
		m.logger.Info("attached to mesh",
			zap.Int("member_count", len(members)),
			zap.Bool("leader", leader),
			zap.Uint8("router_selection_jitter_timeout", m.jitterTimeout))
	} else {
		m.jitterTimeout = 0
		m.logger.Warn("detached from mesh")
	}
	for _, f := range m.onAttachmentChange {
		f(attached)
	}
}

// HandleTimeTick decrements the router selection jitter.
func (m *Mesh) HandleTimeTick() {
	if m.jitterTimeout > 0 {
		m.jitterTimeout--
	}
}
