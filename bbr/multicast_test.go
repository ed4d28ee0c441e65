package bbr

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMulticastNetworkPrefixAddress(t *testing.T) {
	require.Equal(t,
		netip.MustParseAddr("ff32:40:fdde:ad00:beef:0:0:3"),
		MulticastNetworkPrefixAddress(netip.MustParsePrefix("fdde:ad00:beef::/64"), 3))
	require.Equal(t,
		netip.MustParseAddr("ff32:30:2001:db8:12ff:0:0:3"),
		MulticastNetworkPrefixAddress(netip.MustParsePrefix("2001:db8:12ff:ffff::/48"), 3))
	require.Equal(t,
		netip.MustParseAddr("ff32:40:2001:db8:1:2:0:3"),
		MulticastNetworkPrefixAddress(netip.MustParsePrefix("2001:db8:1:2:3::/80"), 3))
	require.Equal(t,
		netip.MustParseAddr("ff32::3"),
		MulticastNetworkPrefixAddress(netip.Prefix{}, 3))
}

func TestPrimaryAlocAddress(t *testing.T) {
	require.Equal(t,
		netip.MustParseAddr("fdde:ad00:beef:0:0:ff:fe00:fc38"),
		PrimaryAlocAddress(netip.MustParsePrefix("fdde:ad00:beef::/64")))
}

func TestApplyMeshLocalPrefix(t *testing.T) {
	newPrefix := netip.MustParsePrefix("fd11:2222:3333:4444::/64")
	t.Run("ignored while disabled", func(t *testing.T) {
		f := newFixture()
		f.topology.meshLocal = newPrefix
		f.local.ApplyMeshLocalPrefix()
		require.Empty(t, f.multicast.calls)
	})
	t.Run("moves the network group", func(t *testing.T) {
		f := newFixture()
		f.local.SetEnabled(true)
		f.topology.meshLocal = newPrefix
		f.local.ApplyMeshLocalPrefix()
		expected := netip.MustParseAddr("ff32:40:fd11:2222:3333:4444:0:3")
		require.Equal(t, expected, f.local.AllNetworkBackboneRouters())
		require.Len(t, f.multicast.groups, 1)
		require.Contains(t, f.multicast.groups, expected)
		require.Equal(t, []string{
			"subscribe " + allNetworkBBRs.String(),
			"unsubscribe " + allNetworkBBRs.String(),
			"subscribe " + expected.String(),
		}, f.multicast.calls)
	})
	t.Run("moves the primary aloc", func(t *testing.T) {
		f := newFixture()
		f.promote()
		f.topology.meshLocal = newPrefix
		f.local.ApplyMeshLocalPrefix()
		expected := netip.MustParseAddr("fd11:2222:3333:4444:0:ff:fe00:fc38")
		addr, ok := f.local.PrimaryAloc()
		require.True(t, ok)
		require.Equal(t, expected, addr)
		require.Len(t, f.netif.addresses, 1)
		require.Contains(t, f.netif.addresses, expected)
	})
}

func TestHandleDomainPrefixUpdate(t *testing.T) {
	allDomainBBRs1 := netip.MustParseAddr("ff32:40:fd00:7d03:7d03:7d03:0:3")
	allDomainBBRs2 := netip.MustParseAddr("ff32:40:fd00:1234:5678:9abc:0:3")
	type notification struct {
		change DomainPrefixChange
		prefix *netip.Prefix
	}

	t.Run("ignored while disabled", func(t *testing.T) {
		f := newFixture()
		called := false
		f.local.SetDomainPrefixCallback(func(DomainPrefixChange, *netip.Prefix) { called = true })
		f.local.HandleDomainPrefixUpdate(DomainPrefixAdded, &domainPrefix1)
		require.Empty(t, f.multicast.groups)
		require.False(t, called)
	})
	t.Run("tracks the domain prefix", func(t *testing.T) {
		f := newFixture()
		var notifications []notification
		f.local.SetDomainPrefixCallback(func(change DomainPrefixChange, prefix *netip.Prefix) {
			notifications = append(notifications, notification{change, prefix})
		})
		f.local.SetEnabled(true)

		f.local.HandleDomainPrefixUpdate(DomainPrefixAdded, &domainPrefix1)
		require.Contains(t, f.multicast.groups, allDomainBBRs1)
		require.Equal(t, allDomainBBRs1, f.local.AllDomainBackboneRouters())

		f.local.HandleDomainPrefixUpdate(DomainPrefixRefreshed, &domainPrefix2)
		require.NotContains(t, f.multicast.groups, allDomainBBRs1)
		require.Contains(t, f.multicast.groups, allDomainBBRs2)

		f.local.HandleDomainPrefixUpdate(DomainPrefixRemoved, nil)
		require.Len(t, f.multicast.groups, 1)
		require.Contains(t, f.multicast.groups, allNetworkBBRs)

		f.local.HandleDomainPrefixUpdate(DomainPrefixRemoved, nil)
		require.Equal(t, 1, countCalls(f.multicast.calls, "unsubscribe "+allDomainBBRs2.String()))

		require.Equal(t, []notification{
			{DomainPrefixChangeAdded, &domainPrefix1},
			{DomainPrefixChangeChanged, &domainPrefix2},
			{DomainPrefixChangeRemoved, nil},
			{DomainPrefixChangeRemoved, nil},
		}, notifications)
	})
	t.Run("repeated added leaves the previous group", func(t *testing.T) {
		f := newFixture()
		f.local.SetEnabled(true)
		f.local.HandleDomainPrefixUpdate(DomainPrefixAdded, &domainPrefix1)
		f.local.HandleDomainPrefixUpdate(DomainPrefixAdded, &domainPrefix2)
		require.Len(t, f.multicast.groups, 2)
		require.Contains(t, f.multicast.groups, allNetworkBBRs)
		require.Contains(t, f.multicast.groups, allDomainBBRs2)
		require.Equal(t, 1, countCalls(f.multicast.calls, "unsubscribe "+allDomainBBRs1.String()))
	})
}

func countCalls(calls []string, call string) int {
	n := 0
	for _, c := range calls {
		if c == call {
			n++
		}
	}
	return n
}
