// Package multicast manages the Backbone Router multicast group memberships
// on the backbone interface.
package multicast

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/vx-labs/backbone-router/bbr"
	"go.uber.org/zap"
	"golang.org/x/net/ipv6"
)

// DefaultPort is the Thread Management Framework UDP port on the backbone link.
const DefaultPort = 61631

var (
	ErrAlreadySubscribed = errors.New("multicast group already subscribed")
	ErrNotSubscribed     = errors.New("multicast group not subscribed")
	ErrNotMulticast      = errors.New("address is not an IPv6 multicast address")
)

type groupConn interface {
	JoinGroup(ifi *net.Interface, group net.Addr) error
	LeaveGroup(ifi *net.Interface, group net.Addr) error
	Close() error
}

var _ bbr.MulticastTransport = &Agent{}

type Agent struct {
	logger *zap.Logger
	ifi    *net.Interface
	conn   groupConn
	mtx    sync.Mutex
	groups map[netip.Addr]struct{}
}

// Listen opens the backbone UDP socket on port and binds group memberships
// to the interface named ifname.
func Listen(logger *zap.Logger, ifname string, port int) (*Agent, error) {
	ifi, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to find backbone interface %q", ifname)
	}
	c, err := net.ListenPacket("udp6", fmt.Sprintf("[::]:%d", port))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to listen on backbone link")
	}
	logger.Info("listening on backbone link", zap.String("backbone_interface", ifname), zap.Int("backbone_port", port))
	return newAgent(logger, ifi, ipv6.NewPacketConn(c)), nil
}

// NewMemory returns an Agent tracking memberships without any socket.
func NewMemory(logger *zap.Logger) *Agent {
	return newAgent(logger, nil, nopConn{})
}

func newAgent(logger *zap.Logger, ifi *net.Interface, conn groupConn) *Agent {
	return &Agent{
		logger: logger,
		ifi:    ifi,
		conn:   conn,
		groups: map[netip.Addr]struct{}{},
	}
}

func (a *Agent) Subscribe(group netip.Addr) error {
	if !group.Is6() || !group.IsMulticast() {
		return ErrNotMulticast
	}
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if _, ok := a.groups[group]; ok {
		return ErrAlreadySubscribed
	}
	err := a.conn.JoinGroup(a.ifi, udpAddr(group))
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to join group %s", group)
	}
	a.groups[group] = struct{}{}
	a.logger.Debug("joined multicast group", zap.Stringer("multicast_group", group))
	return nil
}

func (a *Agent) Unsubscribe(group netip.Addr) error {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if _, ok := a.groups[group]; !ok {
		return ErrNotSubscribed
	}
	err := a.conn.LeaveGroup(a.ifi, udpAddr(group))
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to leave group %s", group)
	}
	delete(a.groups, group)
	a.logger.Debug("left multicast group", zap.Stringer("multicast_group", group))
	return nil
}

// Groups returns the subscribed groups in ascending order.
func (a *Agent) Groups() []netip.Addr {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	out := make([]netip.Addr, 0, len(a.groups))
	for group := range a.groups {
		out = append(out, group)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Close leaves every group and releases the socket.
func (a *Agent) Close() error {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	for group := range a.groups {
		if err := a.conn.LeaveGroup(a.ifi, udpAddr(group)); err != nil {
			a.logger.Warn("failed to leave multicast group", zap.Stringer("multicast_group", group), zap.Error(err))
		}
		delete(a.groups, group)
	}
	return a.conn.Close()
}

func udpAddr(group netip.Addr) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IP(group.AsSlice())}
}

type nopConn struct{}

func (nopConn) JoinGroup(*net.Interface, net.Addr) error  { return nil }
func (nopConn) LeaveGroup(*net.Interface, net.Addr) error { return nil }
func (nopConn) Close() error                              { return nil }
