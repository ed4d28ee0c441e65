// Package events is a synchronous publish/subscribe bus keyed by event name.
package events

import (
	"sync/atomic"

	"github.com/google/uuid"
	iradix "github.com/hashicorp/go-immutable-radix"
)

type Event struct {
	Key   string
	Entry interface{}
}

type CancelFunc func()

type subscription struct {
	handler func(Event)
}

type Bus struct {
	state atomic.Pointer[iradix.Tree]
}

func NewEventBus() *Bus {
	bus := &Bus{}
	bus.state.Store(iradix.New())
	return bus
}

// Emit calls every handler subscribed to ev.Key, in the caller goroutine.
func (e *Bus) Emit(ev Event) {
	e.state.Load().Root().WalkPrefix([]byte(ev.Key+"/"), func(k []byte, v interface{}) bool {
		v.(*subscription).handler(ev)
		return false
	})
}

// Subscribe registers handler for key until the returned CancelFunc is called.
func (e *Bus) Subscribe(key string, handler func(Event)) CancelFunc {
	sub := &subscription{handler: handler}
	id := []byte(key + "/" + uuid.New().String())
	for {
		old := e.state.Load()
		new, _, _ := old.Insert(id, sub)
		if e.state.CompareAndSwap(old, new) {
			break
		}
	}
	return func() {
		for {
			old := e.state.Load()
			new, _, _ := old.Delete(id)
			if e.state.CompareAndSwap(old, new) {
				return
			}
		}
	}
}

// Len returns the number of active subscriptions.
func (e *Bus) Len() int {
	return e.state.Load().Len()
}
