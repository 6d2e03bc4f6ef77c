package aio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDispatcherFiresTimersInDeadlineOrder(t *testing.T) {
	d := New(nil)
	var order []int
	now := time.Now()
	d.AddTimer(now.Add(30*time.Millisecond), func() { order = append(order, 3) })
	d.AddTimer(now.Add(10*time.Millisecond), func() { order = append(order, 1) })
	d.AddTimer(now.Add(20*time.Millisecond), func() { order = append(order, 2) })

	deadline := time.Now().Add(time.Second)
	for len(order) < 3 && time.Now().Before(deadline) {
		d.Poll()
	}
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestDispatcherAddTimerCancel(t *testing.T) {
	d := New(nil)
	fired := false
	handle := d.AddTimer(time.Now().Add(10*time.Millisecond), func() { fired = true })
	handle.Cancel()

	time.Sleep(20 * time.Millisecond)
	d.Poll()
	require.False(t, fired)
}

func TestDispatcherEqualDeadlinesBreakTiesByInsertionOrder(t *testing.T) {
	d := New(nil)
	var order []int
	same := time.Now().Add(5 * time.Millisecond)
	d.AddTimer(same, func() { order = append(order, 1) })
	d.AddTimer(same, func() { order = append(order, 2) })

	deadline := time.Now().Add(time.Second)
	for len(order) < 2 && time.Now().Before(deadline) {
		d.Poll()
	}
	require.Equal(t, []int{1, 2}, order)
}
