// Package backbone runs the local Backbone Router: it owns the single event
// loop serializing management calls, ticks, gossip merges and membership
// changes, and wires the role arbitration to the network data, the mesh
// topology and the backbone link.
package backbone

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vx-labs/backbone-router/bbr"
	"github.com/vx-labs/backbone-router/cluster"
	"github.com/vx-labs/backbone-router/crdt"
	"github.com/vx-labs/backbone-router/events"
	"github.com/vx-labs/backbone-router/netdata"
	"github.com/vx-labs/backbone-router/ticker"
	"github.com/vx-labs/backbone-router/topology"
	"go.uber.org/zap"
)

const (
	netdataStateKey = "netdata"
	maxSettleRounds = 8
)

var (
	ErrStopped = errors.New("backbone router service stopped")
)

// Persistence stores the local settings across restarts.
type Persistence interface {
	SaveConfig(bbr.Config) error
	LoadConfig() (bbr.Config, error)
	SaveEnabled(bool) error
	LoadEnabled() (bool, error)
	SaveDomainPrefix(bbr.OnMeshPrefixConfig) error
	LoadDomainPrefix() (bbr.OnMeshPrefixConfig, error)
	DeleteDomainPrefix() error
}

type Config struct {
	Layer       cluster.Layer
	NetworkData *netdata.Store
	Topology    *topology.Mesh
	Multicast   bbr.MulticastTransport
	Netif       bbr.Netif
	// Persistence is optional.
	Persistence Persistence
	Random      bbr.Random
	Registerer  prometheus.Registerer

	Local bbr.Options
	// Enabled and DomainPrefix apply when nothing was persisted.
	Enabled      bool
	DomainPrefix *bbr.OnMeshPrefixConfig

	TickInterval       time.Duration
	TombstoneRetention time.Duration
}

type Service struct {
	logger      *zap.Logger
	layer       cluster.Layer
	local       *bbr.Local
	store       *netdata.Store
	tracked     *trackedNetworkData
	leader      *netdata.Leader
	mesh        *topology.Mesh
	ticker      *ticker.TimeTicker
	bus         *events.Bus
	persistence Persistence
	metrics     *metrics

	tickInterval time.Duration
	retention    time.Duration
	enabled      bool

	jobs     chan func()
	evaluate chan struct{}

	membership        chan struct{}
	membershipMtx     sync.Mutex
	pendingMembership []membershipChange
	quit     chan struct{}
	done     chan struct{}
	stop     sync.Once

	lastState          bbr.State
	refeedDomainPrefix bool
}

func New(logger *zap.Logger, config Config) (*Service, error) {
	if config.Registerer == nil {
		config.Registerer = prometheus.NewRegistry()
	}
	if config.TickInterval == 0 {
		config.TickInterval = time.Second
	}
	if config.TombstoneRetention == 0 {
		config.TombstoneRetention = 5 * time.Minute
	}
	m, err := newMetrics(config.Registerer)
	if err != nil {
		return nil, err
	}
	s := &Service{
		logger:       logger,
		layer:        config.Layer,
		store:        config.NetworkData,
		tracked:      &trackedNetworkData{store: config.NetworkData, metrics: m},
		leader:       netdata.NewLeader(logger, config.NetworkData),
		mesh:         config.Topology,
		ticker:       ticker.New(),
		bus:          events.NewEventBus(),
		persistence:  config.Persistence,
		metrics:      m,
		tickInterval: config.TickInterval,
		retention:    config.TombstoneRetention,
		enabled:      config.Enabled,
		jobs:         make(chan func(), 64),
		evaluate:     make(chan struct{}, 1),
		membership:   make(chan struct{}, 1),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		lastState:    bbr.StateDisabled,
	}
	s.local = bbr.New(logger, bbr.Dependencies{
		NetworkData: s.tracked,
		Topology:    s.mesh,
		Primary:     s.leader,
		Ticker:      s.ticker,
		Multicast:   config.Multicast,
		Netif:       config.Netif,
		Notifier:    busNotifier{bus: s.bus},
		Random:      config.Random,
	}, config.Local)
	s.metrics.sequenceNumber.Set(float64(s.local.Config().SequenceNumber))

	ch, err := s.layer.AddState(netdataStateKey, s.store)
	if err != nil {
		return nil, err
	}
	s.store.AttachChannel(ch)
	s.store.OnChange(s.requestEvaluation)
	s.layer.OnNodeJoin(s.handleNodeJoin)
	s.layer.OnNodeLeave(s.handleNodeLeave)

	s.ticker.RegisterReceiver(s.mesh)
	s.leader.OnPrimaryUpdate(s.local.HandlePrimaryUpdate)
	s.leader.OnDomainPrefixUpdate(s.handleDomainPrefixUpdate)
	s.mesh.OnMeshLocalPrefixChange(s.handleMeshLocalPrefixChange)
	s.mesh.OnAttachmentChange(s.handleAttachmentChange)
	s.local.SetDomainPrefixCallback(s.emitDomainPrefixChange)
	s.bus.Subscribe(bbr.EventStateChanged.String(), s.handleStateChanged)
	s.bus.Subscribe(bbr.EventLocalChanged.String(), s.handleLocalChanged)

	s.restore(config)
	return s, nil
}

// Start runs the event loop and applies the initial membership and role.
func (s *Service) Start() {
	go s.run()
	s.Do(s.bootstrap)
}

func (s *Service) bootstrap() {
	s.mesh.Refresh()
	if s.enabled {
		s.local.SetEnabled(true)
	}
	s.tracked.dirty = true
}

// Shutdown withdraws the local service and stops the event loop. The enabled
// setting is not persisted so that the role is restored on the next start.
func (s *Service) Shutdown() {
	err := s.Call(func() error {
		s.local.SetEnabled(false)
		return nil
	})
	if err != nil && err != ErrStopped {
		s.logger.Warn("failed to withdraw backbone router", zap.Error(err))
	}
	s.stop.Do(func() { close(s.quit) })
	<-s.done
	s.logger.Info("backbone router stopped")
}

// Do runs f on the event loop.
func (s *Service) Do(f func()) {
	select {
	case s.jobs <- f:
	case <-s.quit:
	}
}

// Call runs f on the event loop and waits for its result.
func (s *Service) Call(f func() error) error {
	errc := make(chan error, 1)
	s.Do(func() { errc <- f() })
	select {
	case err := <-errc:
		return err
	case <-s.done:
		return ErrStopped
	}
}

// Events returns the bus carrying the local Backbone Router notifications.
func (s *Service) Events() *events.Bus {
	return s.bus
}

func (s *Service) run() {
	defer close(s.done)
	tick := time.NewTicker(s.tickInterval)
	defer tick.Stop()
	gc := time.NewTicker(s.retention)
	defer gc.Stop()
	for {
		select {
		case <-s.quit:
			return
		case job := <-s.jobs:
			s.handle(job)
		case <-s.evaluate:
			s.handle(func() { s.tracked.dirty = true })
		case <-s.membership:
			s.handle(s.applyMembershipChanges)
		case <-tick.C:
			s.handle(s.ticker.HandleTick)
		case <-gc.C:
			s.handle(s.collectGarbage)
		}
	}
}

func (s *Service) handle(job func()) {
	job()
	s.settle()
}

// settle re-evaluates the network data until the local role stops writing to it.
func (s *Service) settle() {
	for i := 0; i < maxSettleRounds && s.tracked.dirty; i++ {
		s.tracked.dirty = false
		s.metrics.evaluations.Inc()
		s.leader.Update()
		s.metrics.primaryServer16.Set(float64(s.leader.Primary().Server16))
	}
	if s.refeedDomainPrefix {
		s.refeedDomainPrefix = false
		if prefix, ok := s.leader.DomainPrefix(); ok {
			s.local.HandleDomainPrefixUpdate(bbr.DomainPrefixAdded, &prefix)
		}
	}
}

// requestEvaluation is called by the network data store after a merge, from
// the gossip goroutines.
func (s *Service) requestEvaluation() {
	select {
	case s.evaluate <- struct{}{}:
	default:
	}
}

func (s *Service) collectGarbage() {
	if err := s.store.GC(crdt.ExpireBefore(time.Now(), s.retention)); err != nil {
		s.logger.Warn("failed to collect network data tombstones", zap.Error(err))
	}
}
