// Package bbr implements the local Backbone Router: it arbitrates between the
// Secondary and Primary roles, publishes the Backbone Router service and the
// domain prefix into the network data, and keeps the Backbone Router
// multicast memberships and the Primary ALOC in sync with the role.
//
// Local is not safe for concurrent use: every method must be called from
// the single event loop owning it.
package bbr

import (
	"net/netip"

	"go.uber.org/zap"
)

// Options tunes Local.
type Options struct {
	// MlrTimeoutBounds restricts accepted MLR timeouts. Nil accepts any value.
	MlrTimeoutBounds    *TimeoutBounds
	RegistrationJitter  uint8
	ReregistrationDelay uint16
	MlrTimeout          uint32
}

// DefaultOptions returns the options used outside reference devices.
func DefaultOptions() Options {
	return Options{
		MlrTimeoutBounds:    DefaultTimeoutBounds(),
		RegistrationJitter:  DefaultRegistrationJitter,
		ReregistrationDelay: DefaultReregistrationDelay,
		MlrTimeout:          DefaultMlrTimeout,
	}
}

// Local is the local Backbone Router.
type Local struct {
	logger    *zap.Logger
	netData   NetworkData
	topology  Topology
	primary   PrimaryObserver
	ticker    Ticker
	multicast MulticastTransport
	netif     Netif
	notifier  Notifier
	random    Random

	state               State
	config              Config
	bounds              *TimeoutBounds
	registrationTimeout uint16
	registrationJitter  uint8
	isServiceAdded      bool

	domainPrefixConfig   OnMeshPrefixConfig
	domainPrefixCallback DomainPrefixCallback

	allNetworkBackboneRouters multicastGroup
	allDomainBackboneRouters  multicastGroup
	primaryAloc               netip.Addr
	hasPrimaryAloc            bool
}

// New returns a disabled Local Backbone Router.
func New(logger *zap.Logger, deps Dependencies, opts Options) *Local {
	random := deps.Random
	if random == nil {
		random = NewRandom()
	}
	return &Local{
		logger:    logger,
		netData:   deps.NetworkData,
		topology:  deps.Topology,
		primary:   deps.Primary,
		ticker:    deps.Ticker,
		multicast: deps.Multicast,
		netif:     deps.Netif,
		notifier:  deps.Notifier,
		random:    random,
		state:     StateDisabled,
		config: Config{
			SequenceNumber:      random.Uint8() % 127,
			ReregistrationDelay: opts.ReregistrationDelay,
			MlrTimeout:          opts.MlrTimeout,
		},
		bounds:                    opts.MlrTimeoutBounds,
		registrationJitter:        opts.RegistrationJitter,
		allNetworkBackboneRouters: newMulticastGroup("all_network_backbone_routers"),
		allDomainBackboneRouters:  newMulticastGroup("all_domain_backbone_routers"),
	}
}

// SetEnabled enables or disables the Backbone Router function.
func (l *Local) SetEnabled(enable bool) {
	if enable == l.IsEnabled() {
		return
	}
	if enable {
		l.setState(StateSecondary)
		l.addDomainPrefixToNetworkData()
		_ = l.addService(DecideBasedOnState)
		return
	}
	l.removeDomainPrefixFromNetworkData()
	l.removeService()
	l.cancelRegistration()
	l.setState(StateDisabled)
}

// IsEnabled reports whether the Backbone Router function is enabled.
func (l *Local) IsEnabled() bool {
	return l.state != StateDisabled
}

// IsPrimary reports whether this node is the Primary Backbone Router.
func (l *Local) IsPrimary() bool {
	return l.state == StatePrimary
}

// State returns the current role.
func (l *Local) State() State {
	return l.state
}

// Reset withdraws the local service. A Primary increases its sequence number
// and steps down to Secondary.
func (l *Local) Reset() {
	if l.state == StateDisabled {
		return
	}
	l.cancelRegistration()
	if l.state == StatePrimary {
		l.removeService()
		l.config.SequenceNumber = IncreaseSequenceNumber(l.config.SequenceNumber)
		l.notifier.Signal(EventLocalChanged)
		l.setState(StateSecondary)
		return
	}
	if l.isServiceAdded {
		l.removeService()
	}
}

// Config returns a copy of the local configuration.
func (l *Local) Config() Config {
	return l.config
}

// SetConfig validates and stores the configuration. When a field changed,
// LocalChanged is signaled and the service is republished if eligible. A
// failed publication does not revert the stored configuration.
func (l *Local) SetConfig(config Config) error {
	err := config.Validate(l.bounds)
	if err == nil && l.updateConfig(config) {
		l.notifier.Signal(EventLocalChanged)
		_ = l.addService(DecideBasedOnState)
	}
	l.logService("set", err)
	return err
}

func (l *Local) updateConfig(config Config) bool {
	if config == l.config {
		return false
	}
	l.config = config
	return true
}

// SetRegistrationJitter sets the upper bound, in ticks, of the random delay
// added before registering.
func (l *Local) SetRegistrationJitter(jitter uint8) {
	l.registrationJitter = jitter
}

// RegistrationJitter returns the registration jitter.
func (l *Local) RegistrationJitter() uint8 {
	return l.registrationJitter
}

// PrimaryAloc returns the Primary ALOC and whether it is currently assigned.
func (l *Local) PrimaryAloc() (netip.Addr, bool) {
	return l.primaryAloc, l.hasPrimaryAloc
}

// HandlePrimaryUpdate reacts to the Primary Backbone Router observed in the
// network data.
func (l *Local) HandlePrimaryUpdate(state PrimaryState, config LeaderConfig) {
	if !l.IsEnabled() || !l.topology.IsAttached() {
		return
	}
	switch {
	case config.Server16 == ShortAddrInvalid:
		l.scheduleRegistration()
	case config.Server16 != l.topology.Rloc16():
		l.Reset()
	case !l.isServiceAdded:
		// The network data still holds a record this node published before
		// losing its state. Adopt it and publish a fresher one.
		l.config = config.Config
		l.config.SequenceNumber = IncreaseSequenceNumber(l.config.SequenceNumber)
		l.notifier.Signal(EventLocalChanged)
		_ = l.addService(ForceRegistration)
	default:
		l.setState(StatePrimary)
	}
	l.logger.Debug("handled primary backbone router update",
		zap.Stringer("primary_state", state),
		zap.Uint16("server16", config.Server16),
		zap.Stringer("state", l.state),
	)
}
