package netdata

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/vx-labs/backbone-router/bbr"
)

// ServiceEntry is a Backbone Router service published by the node owning Rloc16.
type ServiceEntry struct {
	ID                  string
	Owner               string
	Rloc16              uint16
	SequenceNumber      uint8
	ReregistrationDelay uint16
	MlrTimeout          uint32
	// Since is the time the service was first added since its last removal.
	Since       int64
	LastAdded   int64
	LastDeleted int64
}

func (e *ServiceEntry) GetID() string         { return e.ID }
func (e *ServiceEntry) GetLastAdded() int64   { return e.LastAdded }
func (e *ServiceEntry) GetLastDeleted() int64 { return e.LastDeleted }

// Config returns the service parameters.
func (e *ServiceEntry) Config() bbr.Config {
	return bbr.Config{
		SequenceNumber:      e.SequenceNumber,
		ReregistrationDelay: e.ReregistrationDelay,
		MlrTimeout:          e.MlrTimeout,
	}
}

// PrefixEntry is an on-mesh prefix published by the node owning Rloc16.
type PrefixEntry struct {
	ID          string
	Owner       string
	Rloc16      uint16
	Config      bbr.OnMeshPrefixConfig
	LastAdded   int64
	LastDeleted int64
}

func (e *PrefixEntry) GetID() string         { return e.ID }
func (e *PrefixEntry) GetLastAdded() int64   { return e.LastAdded }
func (e *PrefixEntry) GetLastDeleted() int64 { return e.LastDeleted }

func ownerID(rloc16 uint16) string {
	return fmt.Sprintf("%04x", rloc16)
}
func serviceID(rloc16 uint16) string {
	return "bbr@" + ownerID(rloc16)
}
func prefixID(config bbr.OnMeshPrefixConfig, rloc16 uint16) string {
	return config.Prefix.Masked().String() + "@" + ownerID(rloc16)
}

// snapshot is the gossip payload exchanged between nodes.
type snapshot struct {
	Services []*ServiceEntry
	Prefixes []*PrefixEntry
}

func (s snapshot) encode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(s)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(payload []byte) (snapshot, error) {
	var s snapshot
	err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&s)
	return s, err
}
