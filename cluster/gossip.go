package cluster

import (
	"io/ioutil"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

const leaveTimeout = 5 * time.Second

type layer struct {
	id          string
	name        string
	mlist       *memberlist.Memberlist
	logger      *zap.Logger
	mtx         sync.RWMutex
	states      map[string]GossipState
	queue       *memberlist.TransmitLimitedQueue
	meta        []byte
	onNodeJoin  func(id string, meta NodeMeta)
	onNodeLeave func(id string, meta NodeMeta)
}

func newLayer(name string, logger *zap.Logger, config Config) (*layer, error) {
	meta, err := encodeMeta(NodeMeta{ID: config.ID, Rloc16: config.Rloc16})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to encode node meta")
	}
	l := &layer{
		id:          config.ID,
		name:        name,
		logger:      logger,
		states:      map[string]GossipState{},
		meta:        meta,
		onNodeJoin:  config.OnNodeJoin,
		onNodeLeave: config.OnNodeLeave,
	}
	l.queue = &memberlist.TransmitLimitedQueue{
		NumNodes:       l.NumMembers,
		RetransmitMult: 3,
	}
	return l, nil
}

// NewGossipLayer starts a memberlist node advertising the local node ID and
// RLOC16 in its meta.
func NewGossipLayer(name string, logger *zap.Logger, config Config) (Layer, error) {
	l, err := newLayer(name, logger, config)
	if err != nil {
		return nil, err
	}
	mconfig := memberlist.DefaultLANConfig()
	if config.BindAddr != "" {
		mconfig.BindAddr = config.BindAddr
	}
	mconfig.BindPort = config.BindPort
	mconfig.AdvertiseAddr = config.AdvertiseAddr
	mconfig.AdvertisePort = config.AdvertisePort
	mconfig.Name = config.ID
	mconfig.Delegate = l
	mconfig.Events = l
	if os.Getenv("ENABLE_MEMBERLIST_LOG") == "true" {
		mconfig.Logger = zap.NewStdLog(logger.With(zap.String("layer_name", name)))
	} else {
		mconfig.LogOutput = ioutil.Discard
	}
	list, err := memberlist.Create(mconfig)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create memberlist")
	}
	l.mlist = list
	logger.Debug("created gossip layer", zap.String("layer_name", name))
	return l, nil
}

func (m *layer) ID() string {
	return m.id
}

func (m *layer) OnNodeJoin(f func(id string, meta NodeMeta)) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.onNodeJoin = f
}
func (m *layer) OnNodeLeave(f func(id string, meta NodeMeta)) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.onNodeLeave = f
}

// AddState registers state under key. Registering a key twice merges the
// previous state into the new one.
func (m *layer) AddState(key string, state GossipState) (Channel, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if old, ok := m.states[key]; ok {
		if err := state.Merge(old.MarshalBinary(), true); err != nil {
			return nil, err
		}
	}
	m.states[key] = state
	return &channel{key: key, queue: m.queue, logger: m.logger}, nil
}

// Members returns the metadata of every live node, the local one included,
// sorted by node ID.
func (m *layer) Members() []NodeMeta {
	out := []NodeMeta{}
	if m.mlist == nil {
		return out
	}
	for _, node := range m.mlist.Members() {
		meta, err := decodeMeta(node.Meta)
		if err != nil {
			m.logger.Warn("failed to decode node meta", zap.String("remote_node_id", node.Name), zap.Error(err))
			continue
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *layer) NumMembers() int {
	if m.mlist == nil {
		return 1
	}
	return m.mlist.NumMembers()
}

func (m *layer) Health() string {
	if m.NumMembers() == 1 {
		return "warning"
	}
	return "ok"
}

// Join contacts the hosts that are not members yet. It fails only when no
// host could be reached and the node is still alone.
func (m *layer) Join(hosts []string) error {
	known := map[string]struct{}{}
	for _, node := range m.mlist.Members() {
		known[node.Address()] = struct{}{}
	}
	pending := []string{}
	for _, host := range hosts {
		if _, ok := known[host]; !ok {
			pending = append(pending, host)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	joined, err := m.mlist.Join(pending)
	switch {
	case err == nil:
		m.logger.Debug("joined cluster", zap.Strings("nodes", pending), zap.Int("joined_count", joined))
	case joined == 0 && m.mlist.NumMembers() == 1:
		return pkgerrors.Wrap(err, "failed to join cluster")
	default:
		m.logger.Warn("failed to join some cluster members", zap.Error(err))
	}
	return nil
}

func (m *layer) Leave() {
	if err := m.mlist.Leave(leaveTimeout); err != nil {
		m.logger.Warn("failed to leave cluster gracefully", zap.Error(err))
	}
	m.mlist.Shutdown()
}
