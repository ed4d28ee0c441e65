package bbr

import (
	"math/rand"
	"net/netip"
	"time"
)

// NetworkData is the local view of the distributed network data store.
type NetworkData interface {
	AddService(Config) error
	RemoveService() error
	AddOnMeshPrefix(OnMeshPrefixConfig) error
	RemoveOnMeshPrefix(netip.Prefix) error
	// HandleServerDataUpdated synchronizes local changes with the network.
	HandleServerDataUpdated()
}

// Topology exposes the attachment state of this node in the mesh.
type Topology interface {
	MeshLocalPrefix() netip.Prefix
	IsAttached() bool
	IsLeader() bool
	Rloc16() uint16
	// RouterSelectionJitterTimeout is non-zero while the node may soon change its role.
	RouterSelectionJitterTimeout() uint8
	IsValidDomainPrefix(OnMeshPrefixConfig) bool
}

// PrimaryObserver reports the Primary Backbone Router currently present in the network data.
type PrimaryObserver interface {
	Primary() LeaderConfig
}

// Receiver is invoked on every tick while registered.
type Receiver interface {
	HandleTimeTick()
}

// Ticker delivers periodic ticks to registered receivers.
type Ticker interface {
	RegisterReceiver(Receiver)
	UnregisterReceiver(Receiver)
}

// MulticastTransport manages multicast group memberships on the backbone link.
type MulticastTransport interface {
	Subscribe(group netip.Addr) error
	Unsubscribe(group netip.Addr) error
}

// Netif manages unicast addresses on the mesh interface.
type Netif interface {
	AddUnicastAddress(netip.Addr) error
	RemoveUnicastAddress(netip.Addr) error
}

// Notifier signals local events. Delivery is fire-and-forget.
type Notifier interface {
	Signal(EventKind)
}

// Random is the source used for the initial sequence number and registration jitter.
type Random interface {
	Uint8() uint8
	// Uint16InRange returns a value in [min, max).
	Uint16InRange(min, max uint16) uint16
}

// Dependencies gathers the collaborators of Local.
type Dependencies struct {
	NetworkData NetworkData
	Topology    Topology
	Primary     PrimaryObserver
	Ticker      Ticker
	Multicast   MulticastTransport
	Netif       Netif
	Notifier    Notifier
	Random      Random
}

type mathRandom struct {
	rng *rand.Rand
}

// NewRandom returns a non-cryptographic Random seeded from the current time.
func NewRandom() Random {
	return &mathRandom{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (r *mathRandom) Uint8() uint8 {
	return uint8(r.rng.Intn(256))
}
func (r *mathRandom) Uint16InRange(min, max uint16) uint16 {
	if max <= min {
		return min
	}
	return min + uint16(r.rng.Intn(int(max-min)))
}
