// Package netdata holds the replicated network data: the Backbone Router
// services and on-mesh prefixes published by every node of the mesh.
package netdata

import (
	"errors"
	"net/netip"
	"sort"
	"time"

	memdb "github.com/hashicorp/go-memdb"
	"github.com/vx-labs/backbone-router/bbr"
	"github.com/vx-labs/backbone-router/crdt"
	"go.uber.org/zap"
)

const (
	servicesTable = "services"
	prefixesTable = "prefixes"
)

var (
	ErrNotFound      = errors.New("entry not found")
	ErrInvalidPrefix = errors.New("invalid on-mesh prefix")
)

var now = func() int64 {
	return time.Now().UnixNano()
}

// Channel broadcasts a payload to the other nodes of the mesh.
type Channel interface {
	Broadcast([]byte)
}

// Self returns the RLOC16 of the local node.
type Self interface {
	Rloc16() uint16
}

var _ bbr.NetworkData = &Store{}

type Store struct {
	db       *memdb.MemDB
	logger   *zap.Logger
	self     Self
	channel  Channel
	onChange func()
}

func NewStore(logger *zap.Logger, self Self) (*Store, error) {
	db, err := memdb.NewMemDB(&memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			servicesTable: tableSchema(servicesTable),
			prefixesTable: tableSchema(prefixesTable),
		},
	})
	if err != nil {
		return nil, err
	}
	return &Store{
		db:     db,
		logger: logger,
		self:   self,
	}, nil
}

func tableSchema(name string) *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: name,
		Indexes: map[string]*memdb.IndexSchema{
			"id": {
				Name: "id",
				Indexer: &memdb.StringFieldIndex{
					Field: "ID",
				},
				Unique:       true,
				AllowMissing: false,
			},
			"owner": {
				Name:         "owner",
				AllowMissing: false,
				Unique:       false,
				Indexer:      &memdb.StringFieldIndex{Field: "Owner"},
			},
		},
	}
}

// AttachChannel sets the channel used by HandleServerDataUpdated.
func (s *Store) AttachChannel(c Channel) {
	s.channel = c
}

// OnChange registers a hook called after a merge modified the store.
func (s *Store) OnChange(f func()) {
	s.onChange = f
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

func (s *Store) AddService(config bbr.Config) error {
	rloc16 := s.self.Rloc16()
	ts := now()
	entry := &ServiceEntry{
		ID:                  serviceID(rloc16),
		Owner:               ownerID(rloc16),
		Rloc16:              rloc16,
		SequenceNumber:      config.SequenceNumber,
		ReregistrationDelay: config.ReregistrationDelay,
		MlrTimeout:          config.MlrTimeout,
		Since:               ts,
		LastAdded:           ts,
	}
	return s.write(func(tx *memdb.Txn) error {
		old, err := s.firstService(tx, entry.ID)
		if err == nil && crdt.IsEntryAdded(old) {
			entry.Since = old.Since
		}
		return tx.Insert(servicesTable, entry)
	})
}

func (s *Store) RemoveService() error {
	return s.write(func(tx *memdb.Txn) error {
		old, err := s.firstService(tx, serviceID(s.self.Rloc16()))
		if err != nil || !crdt.IsEntryAdded(old) {
			return ErrNotFound
		}
		tombstone := *old
		tombstone.LastDeleted = now()
		return tx.Insert(servicesTable, &tombstone)
	})
}

func (s *Store) AddOnMeshPrefix(config bbr.OnMeshPrefixConfig) error {
	if !config.HasPrefix() || !config.Prefix.Addr().Is6() {
		return ErrInvalidPrefix
	}
	config.Prefix = config.Prefix.Masked()
	rloc16 := s.self.Rloc16()
	return s.write(func(tx *memdb.Txn) error {
		return tx.Insert(prefixesTable, &PrefixEntry{
			ID:        prefixID(config, rloc16),
			Owner:     ownerID(rloc16),
			Rloc16:    rloc16,
			Config:    config,
			LastAdded: now(),
		})
	})
}

func (s *Store) RemoveOnMeshPrefix(prefix netip.Prefix) error {
	id := prefixID(bbr.OnMeshPrefixConfig{Prefix: prefix}, s.self.Rloc16())
	return s.write(func(tx *memdb.Txn) error {
		old, err := s.firstPrefix(tx, id)
		if err != nil || !crdt.IsEntryAdded(old) {
			return ErrNotFound
		}
		tombstone := *old
		tombstone.LastDeleted = now()
		return tx.Insert(prefixesTable, &tombstone)
	})
}

// HandleServerDataUpdated broadcasts the entries owned by the local node.
func (s *Store) HandleServerDataUpdated() {
	if s.channel == nil {
		return
	}
	owner := ownerID(s.self.Rloc16())
	set := snapshot{}
	s.read(func(tx *memdb.Txn) error {
		set.Services = s.services(tx, "owner", owner)
		set.Prefixes = s.prefixes(tx, "owner", owner)
		return nil
	})
	payload, err := set.encode()
	if err != nil {
		s.logger.Error("failed to encode server data", zap.Error(err))
		return
	}
	s.channel.Broadcast(payload)
}

// Services returns the live service entries, sorted by RLOC16.
func (s *Store) Services() []*ServiceEntry {
	out := []*ServiceEntry{}
	s.read(func(tx *memdb.Txn) error {
		for _, entry := range s.services(tx, "id") {
			if crdt.IsEntryAdded(entry) {
				out = append(out, entry)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Rloc16 < out[j].Rloc16 })
	return out
}

// Prefixes returns the live on-mesh prefix entries.
func (s *Store) Prefixes() []*PrefixEntry {
	out := []*PrefixEntry{}
	s.read(func(tx *memdb.Txn) error {
		for _, entry := range s.prefixes(tx, "id") {
			if crdt.IsEntryAdded(entry) {
				out = append(out, entry)
			}
		}
		return nil
	})
	return out
}

// MarshalBinary dumps every entry, tombstones included.
func (s *Store) MarshalBinary() []byte {
	set := snapshot{}
	s.read(func(tx *memdb.Txn) error {
		set.Services = s.services(tx, "id")
		set.Prefixes = s.prefixes(tx, "id")
		return nil
	})
	payload, err := set.encode()
	if err != nil {
		s.logger.Error("failed to encode network data", zap.Error(err))
		return nil
	}
	return payload
}

// Merge applies a remote payload, keeping the most recent version of each entry.
func (s *Store) Merge(payload []byte, full bool) error {
	set, err := decodeSnapshot(payload)
	if err != nil {
		return err
	}
	changes := 0
	err = s.write(func(tx *memdb.Txn) error {
		for _, remote := range set.Services {
			local, err := s.firstService(tx, remote.ID)
			if err == nil && !crdt.IsEntryOutdated(local, remote) {
				continue
			}
			if err := tx.Insert(servicesTable, remote); err != nil {
				return err
			}
			changes++
		}
		for _, remote := range set.Prefixes {
			local, err := s.firstPrefix(tx, remote.ID)
			if err == nil && !crdt.IsEntryOutdated(local, remote) {
				continue
			}
			if err := tx.Insert(prefixesTable, remote); err != nil {
				return err
			}
			changes++
		}
		return nil
	})
	if err != nil {
		return err
	}
	if changes > 0 {
		s.logger.Debug("merged network data", zap.Int("changes", changes), zap.Bool("full_sync", full))
		s.changed()
	}
	return nil
}

// DeleteNode expires every live entry owned by rloc16.
func (s *Store) DeleteNode(rloc16 uint16) error {
	owner := ownerID(rloc16)
	deleted := 0
	err := s.write(func(tx *memdb.Txn) error {
		ts := now()
		for _, entry := range s.services(tx, "owner", owner) {
			if crdt.IsEntryAdded(entry) {
				tombstone := *entry
				tombstone.LastDeleted = ts
				if err := tx.Insert(servicesTable, &tombstone); err != nil {
					return err
				}
				deleted++
			}
		}
		for _, entry := range s.prefixes(tx, "owner", owner) {
			if crdt.IsEntryAdded(entry) {
				tombstone := *entry
				tombstone.LastDeleted = ts
				if err := tx.Insert(prefixesTable, &tombstone); err != nil {
					return err
				}
				deleted++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if deleted > 0 {
		s.logger.Info("expired network data of departed node", zap.Uint16("rloc16", rloc16), zap.Int("entries", deleted))
		s.changed()
	}
	return nil
}

// GC drops tombstones deleted before limit.
func (s *Store) GC(limit int64) error {
	return s.write(func(tx *memdb.Txn) error {
		entries := []crdt.Entry{}
		tables := map[string]string{}
		for _, entry := range s.services(tx, "id") {
			entries = append(entries, entry)
			tables[entry.ID] = servicesTable
		}
		for _, entry := range s.prefixes(tx, "id") {
			entries = append(entries, entry)
			tables[entry.ID] = prefixesTable
		}
		for _, entry := range crdt.Collectable(limit, entries) {
			if err := tx.Delete(tables[entry.GetID()], entry); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) services(tx *memdb.Txn, idx string, args ...interface{}) []*ServiceEntry {
	out := []*ServiceEntry{}
	iterator, err := tx.Get(servicesTable, idx, args...)
	if err != nil || iterator == nil {
		return out
	}
	for {
		payload := iterator.Next()
		if payload == nil {
			return out
		}
		out = append(out, payload.(*ServiceEntry))
	}
}
func (s *Store) prefixes(tx *memdb.Txn, idx string, args ...interface{}) []*PrefixEntry {
	out := []*PrefixEntry{}
	iterator, err := tx.Get(prefixesTable, idx, args...)
	if err != nil || iterator == nil {
		return out
	}
	for {
		payload := iterator.Next()
		if payload == nil {
			return out
		}
		out = append(out, payload.(*PrefixEntry))
	}
}

func (s *Store) firstService(tx *memdb.Txn, id string) (*ServiceEntry, error) {
	data, err := tx.First(servicesTable, "id", id)
	if err != nil || data == nil {
		return nil, ErrNotFound
	}
	return data.(*ServiceEntry), nil
}
func (s *Store) firstPrefix(tx *memdb.Txn, id string) (*PrefixEntry, error) {
	data, err := tx.First(prefixesTable, "id", id)
	if err != nil || data == nil {
		return nil, ErrNotFound
	}
	return data.(*PrefixEntry), nil
}

func (s *Store) read(statement func(tx *memdb.Txn) error) error {
	tx := s.db.Txn(false)
	return s.run(tx, statement)
}
func (s *Store) write(statement func(tx *memdb.Txn) error) error {
	tx := s.db.Txn(true)
	return s.run(tx, statement)
}
func (s *Store) run(tx *memdb.Txn, statement func(tx *memdb.Txn) error) error {
	defer tx.Abort()
	err := statement(tx)
	if err != nil {
		return err
	}
	tx.Commit()
	return nil
}
