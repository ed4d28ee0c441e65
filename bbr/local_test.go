package bbr

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	allNetworkBBRs = netip.MustParseAddr("ff32:40:fdde:ad00:beef:0:0:3")
	primaryAloc    = netip.MustParseAddr("fdde:ad00:beef:0:0:ff:fe00:fc38")
	domainPrefix1  = netip.MustParsePrefix("fd00:7d03:7d03:7d03::/64")
	domainPrefix2  = netip.MustParsePrefix("fd00:1234:5678:9abc::/64")
)

func TestNew(t *testing.T) {
	f := newFixture()
	require.Equal(t, StateDisabled, f.local.State())
	require.False(t, f.local.IsEnabled())
	config := f.local.Config()
	assert.Equal(t, uint8(200%127), config.SequenceNumber)
	assert.Equal(t, DefaultReregistrationDelay, config.ReregistrationDelay)
	assert.Equal(t, DefaultMlrTimeout, config.MlrTimeout)
	_, err := f.local.GetDomainPrefix()
	require.Equal(t, ErrNotFound, err)
}

func TestSetEnabled(t *testing.T) {
	t.Run("enable", func(t *testing.T) {
		f := newFixture()
		f.local.SetEnabled(true)
		require.True(t, f.local.IsEnabled())
		require.Equal(t, StateSecondary, f.local.State())
		require.True(t, f.local.IsServiceAdded())
		require.Equal(t, 1, f.netData.count("add-service 73"))
		require.Equal(t, 1, f.netData.syncCount)
		require.Contains(t, f.multicast.groups, allNetworkBBRs)
		require.Equal(t, 1, f.notifier.count(EventStateChanged))
		_, hasAloc := f.local.PrimaryAloc()
		require.False(t, hasAloc)
	})
	t.Run("enable twice", func(t *testing.T) {
		f := newFixture()
		f.local.SetEnabled(true)
		calls := len(f.netData.calls)
		f.local.SetEnabled(true)
		require.Equal(t, calls, len(f.netData.calls))
		require.Equal(t, 1, f.notifier.count(EventStateChanged))
	})
	t.Run("enable while another node is primary", func(t *testing.T) {
		f := newFixture()
		f.primary.config = LeaderConfig{Server16: 0x0800}
		f.local.SetEnabled(true)
		require.Equal(t, StateSecondary, f.local.State())
		require.False(t, f.local.IsServiceAdded())
		require.Equal(t, 0, f.netData.count("add-service 73"))
	})
	t.Run("disable withdraws everything", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.local.SetDomainPrefix(OnMeshPrefixConfig{Prefix: domainPrefix1}))
		f.promote()
		require.Equal(t, StatePrimary, f.local.State())
		f.local.HandleDomainPrefixUpdate(DomainPrefixAdded, &domainPrefix1)
		f.local.HandlePrimaryUpdate(PrimaryNone, LeaderConfig{Server16: ShortAddrInvalid})

		f.local.SetEnabled(false)
		require.False(t, f.local.IsEnabled())
		require.Equal(t, StateDisabled, f.local.State())
		require.False(t, f.local.IsServiceAdded())
		require.Nil(t, f.netData.service)
		require.Empty(t, f.netData.prefixes)
		require.Empty(t, f.netif.addresses)
		require.Empty(t, f.multicast.groups)
		require.Equal(t, uint16(0), f.local.RegistrationTimeout())
		require.False(t, f.ticker.isRegistered(f.local))
		_, hasAloc := f.local.PrimaryAloc()
		require.False(t, hasAloc)

		config, err := f.local.GetDomainPrefix()
		require.NoError(t, err)
		require.Equal(t, domainPrefix1, config.Prefix)
	})
	t.Run("disable twice", func(t *testing.T) {
		f := newFixture()
		f.local.SetEnabled(true)
		f.local.SetEnabled(false)
		calls := append([]string{}, f.netData.calls...)
		events := len(f.notifier.events)
		f.local.SetEnabled(false)
		require.Equal(t, calls, f.netData.calls)
		require.Equal(t, events, len(f.notifier.events))
		require.Equal(t, 1, f.netData.count("remove-service"))
	})
	t.Run("re-enable advertises the stored domain prefix", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.local.SetDomainPrefix(OnMeshPrefixConfig{Prefix: domainPrefix1}))
		require.Empty(t, f.netData.prefixes)
		f.local.SetEnabled(true)
		f.local.SetEnabled(false)
		f.local.SetEnabled(true)
		require.Equal(t, 2, f.netData.count("add-prefix "+domainPrefix1.String()))
		require.Contains(t, f.netData.prefixes, domainPrefix1)
	})
}

func TestReset(t *testing.T) {
	t.Run("is a no-op while disabled", func(t *testing.T) {
		f := newFixture()
		f.local.Reset()
		require.Empty(t, f.netData.calls)
		require.Empty(t, f.notifier.events)
	})
	t.Run("is a no-op while secondary without a published service", func(t *testing.T) {
		f := newFixture()
		f.topology.attached = false
		f.local.SetEnabled(true)
		calls := len(f.netData.calls)
		events := len(f.notifier.events)
		seq := f.local.Config().SequenceNumber

		f.local.Reset()
		require.Equal(t, StateSecondary, f.local.State())
		require.Equal(t, seq, f.local.Config().SequenceNumber)
		require.Equal(t, calls, len(f.netData.calls))
		require.Equal(t, events, len(f.notifier.events))
	})
	t.Run("demotes a primary", func(t *testing.T) {
		f := newFixture()
		f.promote()
		require.Equal(t, StatePrimary, f.local.State())
		require.Contains(t, f.netif.addresses, primaryAloc)
		seq := f.local.Config().SequenceNumber
		localChanged := f.notifier.count(EventLocalChanged)

		f.local.Reset()
		require.Equal(t, StateSecondary, f.local.State())
		require.Equal(t, IncreaseSequenceNumber(seq), f.local.Config().SequenceNumber)
		require.Equal(t, localChanged+1, f.notifier.count(EventLocalChanged))
		require.False(t, f.local.IsServiceAdded())
		require.Nil(t, f.netData.service)
		require.Empty(t, f.netif.addresses)
	})
}

func TestSetConfig(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		f := newFixture()
		config := Config{SequenceNumber: 12, ReregistrationDelay: 10, MlrTimeout: 600}
		require.NoError(t, f.local.SetConfig(config))
		require.Equal(t, config, f.local.Config())
		require.Equal(t, 1, f.notifier.count(EventLocalChanged))
	})
	t.Run("rejects invalid values without mutation", func(t *testing.T) {
		f := newFixture()
		before := f.local.Config()
		require.Equal(t, ErrInvalidArgs, f.local.SetConfig(Config{ReregistrationDelay: 200, MlrTimeout: 400}))
		require.Equal(t, ErrInvalidArgs, f.local.SetConfig(Config{ReregistrationDelay: 0, MlrTimeout: 400}))
		require.Equal(t, ErrInvalidArgs, f.local.SetConfig(Config{ReregistrationDelay: 4, MlrTimeout: 10}))
		require.Equal(t, before, f.local.Config())
		require.Empty(t, f.notifier.events)
	})
	t.Run("does not signal unchanged values", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.local.SetConfig(f.local.Config()))
		require.Empty(t, f.notifier.events)
	})
	t.Run("republishes while enabled", func(t *testing.T) {
		f := newFixture()
		f.local.SetEnabled(true)
		require.NoError(t, f.local.SetConfig(Config{SequenceNumber: 20, ReregistrationDelay: 10, MlrTimeout: 600}))
		require.Equal(t, 1, f.netData.count("add-service 20"))
		require.Equal(t, uint8(20), f.netData.service.SequenceNumber)
	})
	t.Run("keeps the local copy when publication fails", func(t *testing.T) {
		f := newFixture()
		f.local.SetEnabled(true)
		f.netData.addServiceErr = errMockedStore
		config := Config{SequenceNumber: 20, ReregistrationDelay: 10, MlrTimeout: 600}
		require.NoError(t, f.local.SetConfig(config))
		require.Equal(t, config, f.local.Config())
	})
}

func TestAddService(t *testing.T) {
	t.Run("requires an enabled role", func(t *testing.T) {
		f := newFixture()
		require.Equal(t, ErrInvalidState, f.local.addService(ForceRegistration))
		require.Empty(t, f.netData.calls)
	})
	t.Run("requires attachment", func(t *testing.T) {
		f := newFixture()
		f.topology.attached = false
		f.local.SetEnabled(true)
		require.Equal(t, ErrInvalidState, f.local.addService(ForceRegistration))
		require.False(t, f.local.IsServiceAdded())
	})
	t.Run("defers to another primary", func(t *testing.T) {
		f := newFixture()
		f.topology.attached = false
		f.local.SetEnabled(true)
		f.topology.attached = true
		f.primary.config = LeaderConfig{Server16: 0x0800}
		require.Equal(t, ErrInvalidState, f.local.addService(DecideBasedOnState))
		require.NoError(t, f.local.addService(ForceRegistration))
	})
	t.Run("accepts its own primary record", func(t *testing.T) {
		f := newFixture()
		f.topology.attached = false
		f.local.SetEnabled(true)
		f.topology.attached = true
		f.primary.config = LeaderConfig{Server16: f.topology.rloc16}
		require.NoError(t, f.local.addService(DecideBasedOnState))
		require.True(t, f.local.IsServiceAdded())
	})
	t.Run("propagates store errors", func(t *testing.T) {
		f := newFixture()
		f.topology.attached = false
		f.local.SetEnabled(true)
		f.topology.attached = true
		f.netData.addServiceErr = errMockedStore
		require.Equal(t, errMockedStore, f.local.addService(ForceRegistration))
		require.False(t, f.local.IsServiceAdded())
		require.Equal(t, 0, f.netData.syncCount)
	})
	t.Run("withdrawal clears bookkeeping even if the store fails", func(t *testing.T) {
		f := newFixture()
		f.topology.attached = false
		f.local.SetEnabled(true)
		f.local.isServiceAdded = true
		f.local.removeService()
		require.False(t, f.local.IsServiceAdded())
	})
}

func TestHandlePrimaryUpdate(t *testing.T) {
	t.Run("ignored while disabled", func(t *testing.T) {
		f := newFixture()
		f.local.HandlePrimaryUpdate(PrimaryNone, LeaderConfig{Server16: ShortAddrInvalid})
		require.Equal(t, uint16(0), f.local.RegistrationTimeout())
		require.Equal(t, 0, f.ticker.registrations)
	})
	t.Run("ignored while detached", func(t *testing.T) {
		f := newFixture()
		f.local.SetEnabled(true)
		f.topology.attached = false
		f.local.HandlePrimaryUpdate(PrimaryNone, LeaderConfig{Server16: ShortAddrInvalid})
		require.Equal(t, uint16(0), f.local.RegistrationTimeout())
	})
	t.Run("arms a jittered registration", func(t *testing.T) {
		f := newFixture()
		f.local.SetEnabled(true)
		f.local.HandlePrimaryUpdate(PrimaryNone, LeaderConfig{Server16: ShortAddrInvalid})
		require.Equal(t, uint16(1+2), f.local.RegistrationTimeout())
		require.True(t, f.ticker.isRegistered(f.local))
	})
	t.Run("leader registers without jitter", func(t *testing.T) {
		f := newFixture()
		f.topology.leader = true
		f.local.SetEnabled(true)
		f.local.HandlePrimaryUpdate(PrimaryRemoved, LeaderConfig{Server16: ShortAddrInvalid})
		require.Equal(t, uint16(1), f.local.RegistrationTimeout())
	})
	t.Run("another primary resets a candidate", func(t *testing.T) {
		f := newFixture()
		f.local.SetEnabled(true)
		require.True(t, f.local.IsServiceAdded())
		f.primary.config = LeaderConfig{Server16: 0x0800}
		f.local.HandlePrimaryUpdate(PrimaryAdded, f.primary.config)
		require.Equal(t, StateSecondary, f.local.State())
		require.False(t, f.local.IsServiceAdded())
		require.Equal(t, 1, f.netData.count("remove-service"))
	})
	t.Run("another primary demotes a primary", func(t *testing.T) {
		f := newFixture()
		f.promote()
		seq := f.local.Config().SequenceNumber
		f.local.HandlePrimaryUpdate(PrimaryToTriggerRereg, LeaderConfig{Server16: 0x0800})
		require.Equal(t, StateSecondary, f.local.State())
		require.Equal(t, IncreaseSequenceNumber(seq), f.local.Config().SequenceNumber)
	})
	t.Run("own record becomes primary", func(t *testing.T) {
		f := newFixture()
		f.promote()
		require.Equal(t, StatePrimary, f.local.State())
		addr, ok := f.local.PrimaryAloc()
		require.True(t, ok)
		require.Equal(t, primaryAloc, addr)
		require.Contains(t, f.netif.addresses, primaryAloc)
		require.Equal(t, 2, f.notifier.count(EventStateChanged))

		f.local.HandlePrimaryUpdate(PrimaryUnchanged, f.primary.config)
		require.Equal(t, 2, f.notifier.count(EventStateChanged))
	})
	t.Run("restores its own record", func(t *testing.T) {
		f := newFixture()
		f.topology.attached = false
		f.local.SetEnabled(true)
		f.topology.attached = true
		require.False(t, f.local.IsServiceAdded())

		restored := LeaderConfig{
			Server16: f.topology.rloc16,
			Config:   Config{SequenceNumber: 127, ReregistrationDelay: 30, MlrTimeout: 900},
		}
		f.primary.config = restored
		f.local.HandlePrimaryUpdate(PrimaryAdded, restored)

		require.Equal(t, Config{SequenceNumber: 0, ReregistrationDelay: 30, MlrTimeout: 900}, f.local.Config())
		require.Equal(t, 1, f.notifier.count(EventLocalChanged))
		require.True(t, f.local.IsServiceAdded())
		require.Equal(t, 1, f.netData.count("add-service 0"))
		require.Equal(t, StateSecondary, f.local.State())

		f.local.HandlePrimaryUpdate(PrimaryToTriggerRereg, LeaderConfig{Server16: f.topology.rloc16, Config: f.local.Config()})
		require.Equal(t, StatePrimary, f.local.State())
	})
}

func TestRegistrationScheduler(t *testing.T) {
	t.Run("publishes once when the countdown elapses", func(t *testing.T) {
		f := newFixture()
		f.local.SetEnabled(true)
		f.local.Reset()
		require.False(t, f.local.IsServiceAdded())
		f.local.HandlePrimaryUpdate(PrimaryNone, LeaderConfig{Server16: ShortAddrInvalid})
		attempts := f.netData.count("add-service 73")

		f.ticker.tick()
		f.ticker.tick()
		require.Equal(t, attempts, f.netData.count("add-service 73"))
		f.ticker.tick()
		require.Equal(t, attempts+1, f.netData.count("add-service 73"))
		require.True(t, f.local.IsServiceAdded())
		require.False(t, f.ticker.isRegistered(f.local))

		for i := 0; i < 10; i++ {
			f.ticker.tick()
			f.local.HandleTimeTick()
		}
		require.Equal(t, attempts+1, f.netData.count("add-service 73"))
	})
	t.Run("defers while a router selection jitter is pending", func(t *testing.T) {
		f := newFixture()
		f.topology.leader = true
		f.local.SetEnabled(true)
		f.local.HandlePrimaryUpdate(PrimaryNone, LeaderConfig{Server16: ShortAddrInvalid})
		attempts := len(f.netData.calls)
		f.topology.jitter = 2
		f.local.HandleTimeTick()
		f.local.HandleTimeTick()
		require.Equal(t, uint16(1), f.local.RegistrationTimeout())
		require.True(t, f.ticker.isRegistered(f.local))
		require.Equal(t, attempts, len(f.netData.calls))

		f.topology.jitter = 0
		f.local.HandleTimeTick()
		require.Equal(t, attempts+1, len(f.netData.calls))
		require.False(t, f.ticker.isRegistered(f.local))
	})
	t.Run("is cancelled by disable", func(t *testing.T) {
		f := newFixture()
		f.local.SetEnabled(true)
		f.local.HandlePrimaryUpdate(PrimaryNone, LeaderConfig{Server16: ShortAddrInvalid})
		f.local.SetEnabled(false)
		require.False(t, f.ticker.isRegistered(f.local))
		require.Equal(t, uint16(0), f.local.RegistrationTimeout())
	})
}

func TestDomainPrefix(t *testing.T) {
	t.Run("replacing a prefix withdraws the previous one first", func(t *testing.T) {
		f := newFixture()
		f.local.SetEnabled(true)
		f.netData.calls = nil
		require.NoError(t, f.local.SetDomainPrefix(OnMeshPrefixConfig{Prefix: domainPrefix1}))
		require.NoError(t, f.local.SetDomainPrefix(OnMeshPrefixConfig{Prefix: domainPrefix2}))
		require.Equal(t, []string{
			"add-prefix " + domainPrefix1.String(),
			"remove-prefix " + domainPrefix1.String(),
			"add-prefix " + domainPrefix2.String(),
		}, f.netData.calls)
		require.Len(t, f.netData.prefixes, 1)
		require.True(t, f.netData.prefixes[domainPrefix2].Dp)
	})
	t.Run("syncs network data on every change", func(t *testing.T) {
		f := newFixture()
		f.local.SetEnabled(true)
		synced := f.netData.syncCount
		require.NoError(t, f.local.SetDomainPrefix(OnMeshPrefixConfig{Prefix: domainPrefix1}))
		require.Equal(t, synced+1, f.netData.syncCount)
		require.NoError(t, f.local.RemoveDomainPrefix(domainPrefix1))
		require.Equal(t, synced+2, f.netData.syncCount)
	})
	t.Run("rejects invalid prefixes", func(t *testing.T) {
		f := newFixture()
		require.Equal(t, ErrInvalidArgs, f.local.SetDomainPrefix(OnMeshPrefixConfig{}))
		_, err := f.local.GetDomainPrefix()
		require.Equal(t, ErrNotFound, err)
	})
	t.Run("is not advertised while disabled", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.local.SetDomainPrefix(OnMeshPrefixConfig{Prefix: domainPrefix1}))
		require.Empty(t, f.netData.calls)
		config, err := f.local.GetDomainPrefix()
		require.NoError(t, err)
		require.Equal(t, domainPrefix1, config.Prefix)
	})
	t.Run("remove", func(t *testing.T) {
		f := newFixture()
		require.Equal(t, ErrNotFound, f.local.RemoveDomainPrefix(domainPrefix1))
		require.Equal(t, ErrInvalidArgs, f.local.RemoveDomainPrefix(netip.Prefix{}))

		require.NoError(t, f.local.SetDomainPrefix(OnMeshPrefixConfig{Prefix: domainPrefix1}))
		f.local.SetEnabled(true)
		require.Equal(t, ErrNotFound, f.local.RemoveDomainPrefix(domainPrefix2))
		config, err := f.local.GetDomainPrefix()
		require.NoError(t, err)
		require.Equal(t, domainPrefix1, config.Prefix)
		require.Contains(t, f.netData.prefixes, domainPrefix1)

		require.NoError(t, f.local.RemoveDomainPrefix(domainPrefix1))
		require.Empty(t, f.netData.prefixes)
		_, err = f.local.GetDomainPrefix()
		require.Equal(t, ErrNotFound, err)
	})
}
