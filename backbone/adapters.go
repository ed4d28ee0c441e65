package backbone

import (
	"net/netip"

	"github.com/vx-labs/backbone-router/bbr"
	"github.com/vx-labs/backbone-router/events"
)

// EventDomainPrefixChanged is emitted on the bus with a DomainPrefixChange entry.
const EventDomainPrefixChanged = "bbr_domain_prefix_changed"

// DomainPrefixChange is the entry of EventDomainPrefixChanged events.
type DomainPrefixChange struct {
	Change bbr.DomainPrefixChange
	Prefix *netip.Prefix
}

type busNotifier struct {
	bus *events.Bus
}

func (n busNotifier) Signal(kind bbr.EventKind) {
	n.bus.Emit(events.Event{Key: kind.String(), Entry: kind})
}

// trackedNetworkData records successful writes so that the network data is
// re-evaluated once the current job completes.
type trackedNetworkData struct {
	store   bbr.NetworkData
	metrics *metrics
	dirty   bool
}

func (t *trackedNetworkData) AddService(config bbr.Config) error {
	err := t.store.AddService(config)
	t.metrics.observeRegistration(operationAdd, err)
	t.dirty = t.dirty || err == nil
	return err
}
func (t *trackedNetworkData) RemoveService() error {
	err := t.store.RemoveService()
	t.metrics.observeRegistration(operationRemove, err)
	t.dirty = t.dirty || err == nil
	return err
}
func (t *trackedNetworkData) AddOnMeshPrefix(config bbr.OnMeshPrefixConfig) error {
	err := t.store.AddOnMeshPrefix(config)
	t.dirty = t.dirty || err == nil
	return err
}
func (t *trackedNetworkData) RemoveOnMeshPrefix(prefix netip.Prefix) error {
	err := t.store.RemoveOnMeshPrefix(prefix)
	t.dirty = t.dirty || err == nil
	return err
}
func (t *trackedNetworkData) HandleServerDataUpdated() {
	t.store.HandleServerDataUpdated()
}
