package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopOrder(t *testing.T) {
	q := New(4)
	q.PushTail(FrameItem(&Frame{PTS: 1}))
	q.PushTail(FrameItem(&Frame{PTS: 2}))

	ctx := context.Background()
	it, ok := q.PopHead(ctx)
	require.True(t, ok)
	assert.Equal(t, time.Duration(1), it.Frame.PTS)

	it, ok = q.PopHead(ctx)
	require.True(t, ok)
	assert.Equal(t, time.Duration(2), it.Frame.PTS)
}

func TestOverrunDropsOldestFrameOnly(t *testing.T) {
	q := New(2)
	q.PushTail(FrameItem(&Frame{PTS: 1}))
	q.PushTail(FrameItem(&Frame{PTS: 2}))
	q.PushTail(FrameItem(&Frame{PTS: 3})) // overrun: PTS 1 dropped

	assert.Equal(t, 2, q.FrameCount())
	assert.Equal(t, 1, q.DrainDropped())

	it, ok := q.PopHead(context.Background())
	require.True(t, ok)
	assert.Equal(t, time.Duration(2), it.Frame.PTS)
}

func TestMetadataItemsNeverCountedAgainstCapacity(t *testing.T) {
	q := New(1)
	q.PushTail(FrameItem(&Frame{PTS: 1}))
	q.PushTail(SignalChangeItem(SignalChange{Present: false}))
	q.PushTail(FramesDroppedItem(FramesDropped{Count: 3, DriverSide: true}))

	assert.Equal(t, 1, q.FrameCount())
	assert.Equal(t, 3, q.Length())
}

func TestPopHeadBlocksUntilPush(t *testing.T) {
	q := New(4)
	done := make(chan Item, 1)
	go func() {
		it, ok := q.PopHead(context.Background())
		if ok {
			done <- it
		}
	}()

	time.Sleep(10 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("PopHead returned before any item was pushed")
	default:
	}

	q.PushTail(FrameItem(&Frame{PTS: 42}))

	select {
	case it := <-done:
		assert.Equal(t, time.Duration(42), it.Frame.PTS)
	case <-time.After(time.Second):
		t.Fatal("PopHead never unblocked after PushTail")
	}
}

func TestPopHeadRespectsContextCancellation(t *testing.T) {
	q := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.PopHead(ctx)
	assert.False(t, ok)
}

func TestPeekNthAndDropStructAt(t *testing.T) {
	q := New(4)
	q.PushTail(FrameItem(&Frame{PTS: 1}))
	q.PushTail(FrameItem(&Frame{PTS: 2}))
	q.PushTail(FrameItem(&Frame{PTS: 3}))

	it, ok := q.PeekNth(1)
	require.True(t, ok)
	assert.Equal(t, time.Duration(2), it.Frame.PTS)

	q.DropStructAt(1)
	assert.Equal(t, 2, q.Length())

	it, _ = q.PeekNth(1)
	assert.Equal(t, time.Duration(3), it.Frame.PTS)
}

func TestCloseDrainsThenReportsNotOK(t *testing.T) {
	q := New(4)
	q.PushTail(FrameItem(&Frame{PTS: 1}))
	q.Close()

	it, ok := q.PopHead(context.Background())
	require.True(t, ok)
	assert.Equal(t, time.Duration(1), it.Frame.PTS)

	_, ok = q.PopHead(context.Background())
	assert.False(t, ok)
}

func TestPushTailAfterCloseDropsItem(t *testing.T) {
	q := New(4)
	q.Close()
	q.PushTail(FrameItem(&Frame{PTS: 1}))
	assert.Equal(t, 0, q.Length())
}
