// Package ticker fans out periodic ticks to registered receivers.
package ticker

import (
	"github.com/vx-labs/backbone-router/bbr"
)

var _ bbr.Ticker = &TimeTicker{}

// TimeTicker delivers ticks in registration order. It is driven by its owner
// and is not safe for concurrent use.
type TimeTicker struct {
	receivers []bbr.Receiver
}

func New() *TimeTicker {
	return &TimeTicker{}
}

func (t *TimeTicker) RegisterReceiver(r bbr.Receiver) {
	if t.IsRegistered(r) {
		return
	}
	t.receivers = append(t.receivers, r)
}

func (t *TimeTicker) UnregisterReceiver(r bbr.Receiver) {
	for idx, registered := range t.receivers {
		if registered == r {
			t.receivers = append(t.receivers[:idx:idx], t.receivers[idx+1:]...)
			return
		}
	}
}

func (t *TimeTicker) IsRegistered(r bbr.Receiver) bool {
	for _, registered := range t.receivers {
		if registered == r {
			return true
		}
	}
	return false
}

// HandleTick calls every receiver registered when the tick started.
// Receivers may unregister themselves while handling it.
func (t *TimeTicker) HandleTick() {
	receivers := make([]bbr.Receiver, len(t.receivers))
	copy(receivers, t.receivers)
	for _, r := range receivers {
		r.HandleTimeTick()
	}
}

func (t *TimeTicker) Len() int {
	return len(t.receivers)
}
