// Package netif assigns unicast addresses on the mesh interface.
package netif

import (
	"errors"
	"net"
	"net/netip"
	"sort"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/vishvananda/netlink"
	"github.com/vx-labs/backbone-router/bbr"
	"go.uber.org/zap"
)

var (
	ErrAddressExists   = errors.New("address already assigned")
	ErrAddressNotFound = errors.New("address not assigned")
)

// handle is the subset of the netlink API used to manage addresses.
type handle interface {
	AddrAdd(link netlink.Link, addr *netlink.Addr) error
	AddrDel(link netlink.Link, addr *netlink.Addr) error
}

var _ bbr.Netif = &Netlink{}
var _ bbr.Netif = &Memory{}

// Netlink assigns /128 addresses on a Linux interface.
type Netlink struct {
	logger *zap.Logger
	link   netlink.Link
	handle handle
	memory *Memory
}

func NewNetlink(logger *zap.Logger, ifname string) (*Netlink, error) {
	link, err := netlink.LinkByName(ifname)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to find mesh interface %q", ifname)
	}
	h, err := netlink.NewHandle()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to open netlink handle")
	}
	return newNetlink(logger, link, h), nil
}

func newNetlink(logger *zap.Logger, link netlink.Link, h handle) *Netlink {
	return &Netlink{
		logger: logger.With(zap.String("mesh_interface", link.Attrs().Name)),
		link:   link,
		handle: h,
		memory: NewMemory(),
	}
}

func toNetlinkAddr(addr netip.Addr) *netlink.Addr {
	return &netlink.Addr{
		IPNet: &net.IPNet{
			IP:   net.IP(addr.AsSlice()),
			Mask: net.CIDRMask(128, 128),
		},
	}
}

func (n *Netlink) AddUnicastAddress(addr netip.Addr) error {
	if n.memory.Has(addr) {
		return ErrAddressExists
	}
	if err := n.handle.AddrAdd(n.link, toNetlinkAddr(addr)); err != nil {
		return pkgerrors.Wrapf(err, "failed to add address %s", addr)
	}
	n.logger.Info("added unicast address", zap.Stringer("address", addr))
	return n.memory.AddUnicastAddress(addr)
}

func (n *Netlink) RemoveUnicastAddress(addr netip.Addr) error {
	if !n.memory.Has(addr) {
		return ErrAddressNotFound
	}
	if err := n.handle.AddrDel(n.link, toNetlinkAddr(addr)); err != nil {
		return pkgerrors.Wrapf(err, "failed to remove address %s", addr)
	}
	n.logger.Info("removed unicast address", zap.Stringer("address", addr))
	return n.memory.RemoveUnicastAddress(addr)
}

// Addresses returns the addresses assigned through n.
func (n *Netlink) Addresses() []netip.Addr {
	return n.memory.Addresses()
}

// Memory tracks addresses when no mesh interface is managed.
type Memory struct {
	mtx       sync.Mutex
	addresses map[netip.Addr]struct{}
}

func NewMemory() *Memory {
	return &Memory{addresses: map[netip.Addr]struct{}{}}
}

func (m *Memory) AddUnicastAddress(addr netip.Addr) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if _, ok := m.addresses[addr]; ok {
		return ErrAddressExists
	}
	m.addresses[addr] = struct{}{}
	return nil
}

func (m *Memory) RemoveUnicastAddress(addr netip.Addr) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if _, ok := m.addresses[addr]; !ok {
		return ErrAddressNotFound
	}
	delete(m.addresses, addr)
	return nil
}

func (m *Memory) Has(addr netip.Addr) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	_, ok := m.addresses[addr]
	return ok
}

func (m *Memory) Addresses() []netip.Addr {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	out := make([]netip.Addr, 0, len(m.addresses))
	for addr := range m.addresses {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
