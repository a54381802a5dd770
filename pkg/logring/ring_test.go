package logring

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_AppendAndLines(t *testing.T) {
	r := New(10)
	r.SetNow(func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) })

	r.Append("first")
	r.Appendf("second %d", 2)

	lines := r.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "first", lines[0].Message)
	assert.Equal(t, "second 2", lines[1].Message)
	assert.Equal(t, "2025-06-01T12:00:00Z", lines[0].TS)
}

func TestRing_CapacityDropsOldest(t *testing.T) {
	r := New(3)
	for i := 0; i < 5; i++ {
		r.Append(fmt.Sprintf("line %d", i))
	}

	lines := r.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "line 2", lines[0].Message)
	assert.Equal(t, "line 4", lines[2].Message)
	assert.Equal(t, 3, r.Len())
}

func TestRing_SubscribeReceivesLiveLines(t *testing.T) {
	r := New(10)
	_, ch, cancel := r.Subscribe()
	defer cancel()

	r.Append("hello")
	got := <-ch
	assert.Equal(t, "hello", got.Message)
}

func TestRing_SubscribeDeliversEachLineOnce(t *testing.T) {
	r := New(10)
	r.Append("before")

	replay, ch, cancel := r.Subscribe()
	defer cancel()
	r.Append("after")

	// The pre-existing line is in the replay only; the new one arrives on
	// the channel only.
	require.Len(t, replay, 1)
	assert.Equal(t, "before", replay[0].Message)

	got := <-ch
	assert.Equal(t, "after", got.Message)
	select {
	case line := <-ch:
		t.Fatalf("unexpected duplicate line %+v", line)
	default:
	}
}

func TestRing_CancelDetachesSubscriber(t *testing.T) {
	r := New(10)
	_, ch, cancel := r.Subscribe()
	cancel()

	r.Append("after cancel")
	select {
	case line := <-ch:
		t.Fatalf("detached subscriber received %+v", line)
	default:
	}
}

func TestRing_SlowSubscriberDoesNotBlockAppend(t *testing.T) {
	r := New(10)
	_, _, cancel := r.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		// Far more lines than the subscriber buffer holds.
		for i := 0; i < 200; i++ {
			r.Append("x")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("append blocked on a slow subscriber")
	}
}
