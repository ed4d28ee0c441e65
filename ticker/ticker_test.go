package ticker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReceiver struct {
	name   string
	ticker *TimeTicker
	ticks  int
	order  *[]string
	stopAt int
}

func (r *countingReceiver) HandleTimeTick() {
	r.ticks++
	*r.order = append(*r.order, r.name)
	if r.stopAt > 0 && r.ticks == r.stopAt {
		r.ticker.UnregisterReceiver(r)
	}
}

func TestTimeTicker(t *testing.T) {
	ticker := New()
	order := []string{}
	a := &countingReceiver{name: "a", ticker: ticker, order: &order, stopAt: 1}
	b := &countingReceiver{name: "b", ticker: ticker, order: &order}

	ticker.RegisterReceiver(a)
	ticker.RegisterReceiver(b)
	ticker.RegisterReceiver(a)
	require.Equal(t, 2, ticker.Len())
	assert.True(t, ticker.IsRegistered(a))

	ticker.HandleTick()
	assert.Equal(t, []string{"a", "b"}, order)
	assert.False(t, ticker.IsRegistered(a))

	ticker.HandleTick()
	assert.Equal(t, []string{"a", "b", "b"}, order)
	assert.Equal(t, 1, a.ticks)
	assert.Equal(t, 2, b.ticks)

	ticker.UnregisterReceiver(b)
	ticker.UnregisterReceiver(b)
	assert.Equal(t, 0, ticker.Len())
}
