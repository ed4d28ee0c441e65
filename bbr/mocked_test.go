package bbr

import (
	"errors"
	"fmt"
	"net/netip"

	"go.uber.org/zap"
)

var zapNop = zap.NewNop()

var errMockedStore = errors.New("mocked store failure")

// mockedNetworkData records every call made at the store boundary.
type mockedNetworkData struct {
	calls         []string
	service       *Config
	prefixes      map[netip.Prefix]OnMeshPrefixConfig
	addServiceErr error
	syncCount     int
}

func newMockedNetworkData() *mockedNetworkData {
	return &mockedNetworkData{prefixes: map[netip.Prefix]OnMeshPrefixConfig{}}
}

func (m *mockedNetworkData) AddService(c Config) error {
	m.calls = append(m.calls, fmt.Sprintf("add-service %d", c.SequenceNumber))
	if m.addServiceErr != nil {
		return m.addServiceErr
	}
	m.service = &c
	return nil
}
func (m *mockedNetworkData) RemoveService() error {
	m.calls = append(m.calls, "remove-service")
	if m.service == nil {
		return ErrNotFound
	}
	m.service = nil
	return nil
}
func (m *mockedNetworkData) AddOnMeshPrefix(c OnMeshPrefixConfig) error {
	m.calls = append(m.calls, "add-prefix "+c.Prefix.String())
	m.prefixes[c.Prefix] = c
	return nil
}
func (m *mockedNetworkData) RemoveOnMeshPrefix(p netip.Prefix) error {
	m.calls = append(m.calls, "remove-prefix "+p.String())
	if _, ok := m.prefixes[p]; !ok {
		return ErrNotFound
	}
	delete(m.prefixes, p)
	return nil
}
func (m *mockedNetworkData) HandleServerDataUpdated() {
	m.syncCount++
}
func (m *mockedNetworkData) count(call string) int {
	n := 0
	for _, c := range m.calls {
		if c == call {
			n++
		}
	}
	return n
}

type mockedTopology struct {
	meshLocal netip.Prefix
	attached  bool
	leader    bool
	rloc16    uint16
	jitter    uint8
}

func newMockedTopology() *mockedTopology {
	return &mockedTopology{
		meshLocal: netip.MustParsePrefix("fdde:ad00:beef:0::/64"),
		attached:  true,
		rloc16:    0x0400,
	}
}

func (m *mockedTopology) MeshLocalPrefix() netip.Prefix       { return m.meshLocal }
func (m *mockedTopology) IsAttached() bool                    { return m.attached }
func (m *mockedTopology) IsLeader() bool                      { return m.leader }
func (m *mockedTopology) Rloc16() uint16                      { return m.rloc16 }
func (m *mockedTopology) RouterSelectionJitterTimeout() uint8 { return m.jitter }
func (m *mockedTopology) IsValidDomainPrefix(c OnMeshPrefixConfig) bool {
	return c.HasPrefix() && c.Prefix.Bits() <= 64
}

type mockedPrimary struct {
	config LeaderConfig
}

func (m *mockedPrimary) Primary() LeaderConfig { return m.config }

type mockedTicker struct {
	receivers     map[Receiver]struct{}
	registrations int
}

func newMockedTicker() *mockedTicker {
	return &mockedTicker{receivers: map[Receiver]struct{}{}}
}
func (m *mockedTicker) RegisterReceiver(r Receiver) {
	m.registrations++
	m.receivers[r] = struct{}{}
}
func (m *mockedTicker) UnregisterReceiver(r Receiver) {
	delete(m.receivers, r)
}
func (m *mockedTicker) isRegistered(r Receiver) bool {
	_, ok := m.receivers[r]
	return ok
}
func (m *mockedTicker) tick() {
	for r := range m.receivers {
		r.HandleTimeTick()
	}
}

type mockedMulticast struct {
	groups map[netip.Addr]struct{}
	calls  []string
}

func newMockedMulticast() *mockedMulticast {
	return &mockedMulticast{groups: map[netip.Addr]struct{}{}}
}
func (m *mockedMulticast) Subscribe(a netip.Addr) error {
	m.calls = append(m.calls, "subscribe "+a.String())
	if _, ok := m.groups[a]; ok {
		return errors.New("already subscribed")
	}
	m.groups[a] = struct{}{}
	return nil
}
func (m *mockedMulticast) Unsubscribe(a netip.Addr) error {
	m.calls = append(m.calls, "unsubscribe "+a.String())
	if _, ok := m.groups[a]; !ok {
		return errors.New("not subscribed")
	}
	delete(m.groups, a)
	return nil
}

type mockedNetif struct {
	addresses map[netip.Addr]struct{}
}

func (m *mockedNetif) AddUnicastAddress(a netip.Addr) error {
	m.addresses[a] = struct{}{}
	return nil
}
func (m *mockedNetif) RemoveUnicastAddress(a netip.Addr) error {
	delete(m.addresses, a)
	return nil
}

type mockedNotifier struct {
	events []EventKind
}

func (m *mockedNotifier) Signal(e EventKind) { m.events = append(m.events, e) }
func (m *mockedNotifier) count(e EventKind) int {
	n := 0
	for _, ev := range m.events {
		if ev == e {
			n++
		}
	}
	return n
}

// mockedRandom returns fixed values.
type mockedRandom struct {
	u8     uint8
	offset uint16
}

func (m *mockedRandom) Uint8() uint8 { return m.u8 }
func (m *mockedRandom) Uint16InRange(min, max uint16) uint16 {
	v := min + m.offset
	if v >= max {
		return max - 1
	}
	return v
}

type fixture struct {
	local     *Local
	netData   *mockedNetworkData
	topology  *mockedTopology
	primary   *mockedPrimary
	ticker    *mockedTicker
	multicast *mockedMulticast
	netif     *mockedNetif
	notifier  *mockedNotifier
	random    *mockedRandom
}

func newFixture() *fixture {
	f := &fixture{
		netData:   newMockedNetworkData(),
		topology:  newMockedTopology(),
		primary:   &mockedPrimary{config: LeaderConfig{Server16: ShortAddrInvalid}},
		ticker:    newMockedTicker(),
		multicast: newMockedMulticast(),
		netif:     &mockedNetif{addresses: map[netip.Addr]struct{}{}},
		notifier:  &mockedNotifier{},
		random:    &mockedRandom{u8: 200, offset: 2},
	}
	f.local = New(zapNop, Dependencies{
		NetworkData: f.netData,
		Topology:    f.topology,
		Primary:     f.primary,
		Ticker:      f.ticker,
		Multicast:   f.multicast,
		Netif:       f.netif,
		Notifier:    f.notifier,
		Random:      f.random,
	}, DefaultOptions())
	return f
}

// promote drives the fixture to the Primary role through the network data observation path.
func (f *fixture) promote() {
	f.local.SetEnabled(true)
	f.primary.config = LeaderConfig{Server16: f.topology.rloc16, Config: f.local.Config()}
	f.local.HandlePrimaryUpdate(PrimaryAdded, f.primary.config)
}
