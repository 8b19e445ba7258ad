package search

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDebouncer_SingleCall(t *testing.T) {
	var called atomic.Int32
	d := NewDebouncer(20 * time.Millisecond)

	d.Debounce(func() { called.Add(1) })
	assert.True(t, d.Pending())

	assert.Eventually(t, func() bool { return called.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, d.Pending())
}

func TestDebouncer_RapidCallsRunLastOnly(t *testing.T) {
	var called, last atomic.Int32
	d := NewDebouncer(40 * time.Millisecond)

	for i := int32(1); i <= 5; i++ {
		v := i
		d.Debounce(func() {
			last.Store(v)
			called.Add(1)
		})
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return called.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), called.Load())
	assert.Equal(t, int32(5), last.Load())
}

func TestDebouncer_Cancel(t *testing.T) {
	var called atomic.Int32
	d := NewDebouncer(20 * time.Millisecond)

	d.Debounce(func() { called.Add(1) })
	d.Cancel()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, called.Load())
	assert.False(t, d.Pending())
}

func TestDebouncer_Immediate(t *testing.T) {
	var pending, now atomic.Int32
	d := NewDebouncer(20 * time.Millisecond)

	d.Debounce(func() { pending.Add(1) })
	d.Immediate(func() { now.Add(1) })

	assert.Equal(t, int32(1), now.Load())
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, pending.Load())
}
