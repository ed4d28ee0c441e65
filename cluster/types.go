// Package cluster distributes CRDT states between Backbone Router nodes
// over a memberlist gossip layer.
package cluster

import (
	"errors"
)

var (
	ErrStateKeyAlreadySet = errors.New("specified key is already taken")
	ErrNodeNotFound       = errors.New("specified node not found in mesh")
)

// GossipState represents a CRDT state store, that will be distributed over the mesh network.
type GossipState interface {
	Merge(inc []byte, full bool) error
	MarshalBinary() []byte
}

// Channel allows clients to send messages for a specific state type that will be
// broadcasted in a best-effort manner.
type Channel interface {
	Broadcast(b []byte)
}

// NodeMeta is advertised by each node along with its memberlist entry.
type NodeMeta struct {
	ID     string
	Rloc16 uint16
}

type Config struct {
	ID            string
	Rloc16        uint16
	BindAddr      string
	BindPort      int
	AdvertiseAddr string
	AdvertisePort int
	OnNodeJoin    func(id string, meta NodeMeta)
	OnNodeLeave   func(id string, meta NodeMeta)
}

type Layer interface {
	ID() string
	AddState(key string, state GossipState) (Channel, error)
	Join(hosts []string) error
	Leave()
	Members() []NodeMeta
	NumMembers() int
	Health() string
	OnNodeJoin(f func(id string, meta NodeMeta))
	OnNodeLeave(f func(id string, meta NodeMeta))
}
