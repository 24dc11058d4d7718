package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestIntervalFires(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	ch := make(chan *Event, 1)
	interval := NewInterval(10*time.Millisecond, ch)

	interval.Start()
	t.Cleanup(interval.Stop)

	select {
	case ev := <-ch:
		assert.Equal(t, KindScheduled, ev.Kind)
		assert.False(t, ev.Time.IsZero())

	case <-time.After(time.Second):
		t.Fatal("no trigger event received")
	}
}

func TestIntervalDropsWhenReceiverIsBusy(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	ch := make(chan *Event, 1)
	interval := NewInterval(5*time.Millisecond, ch)

	interval.Start()
	// nothing reads from ch, further ticks must be dropped instead of
	// blocking the ticker loop
	time.Sleep(50 * time.Millisecond)
	interval.Stop()

	require.NotEmpty(t, ch)
	assert.LessOrEqual(t, len(ch), 1)
}

func TestIntervalStopTwice(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	interval := NewInterval(time.Hour, make(chan *Event))
	interval.Start()

	interval.Stop()
	assert.NotPanics(t, interval.Stop)
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
