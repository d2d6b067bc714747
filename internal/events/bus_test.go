package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func captured(i int) Event {
	return Event{Kind: MotionCaptured, Frames: i}
}

func drain(s *Subscription) []Event {
	var out []Event
	for {
		ev, ok := s.TryReceive()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

// Feature: motionwatch, Property 7: late subscribers get no backlog, then everything in order
func TestLateSubscriberProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		before := rapid.IntRange(0, 20).Draw(t, "before")
		after := rapid.IntRange(0, 20).Draw(t, "after")

		b := New()
		for i := 0; i < before; i++ {
			b.Publish(captured(i))
		}
		s, err := b.Subscribe()
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		for i := 0; i < after; i++ {
			b.Publish(captured(before + i))
		}

		got := drain(s)
		if len(got) != after {
			t.Fatalf("got %d events, want %d", len(got), after)
		}
		for i, ev := range got {
			if ev.Frames != before+i {
				t.Fatalf("event %d: got seq %d, want %d", i, ev.Frames, before+i)
			}
		}
	})
}

// Feature: motionwatch, Property 8: two subscribers see the same events in publish order
func TestTwoSubscribersSameOrder(t *testing.T) {
	b := New()
	s1, err := b.Subscribe()
	require.NoError(t, err)
	s2, err := b.Subscribe()
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		assert.Equal(t, 2, b.Publish(captured(i)))
	}

	e1, e2 := drain(s1), drain(s2)
	require.Len(t, e1, 50)
	assert.Equal(t, e1, e2)
	for i, ev := range e1 {
		assert.Equal(t, i, ev.Frames)
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	b := New()
	assert.Equal(t, 0, b.Publish(captured(1)))
	assert.Equal(t, uint64(1), b.Published())
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	b := New()
	slow, err := b.Subscribe()
	require.NoError(t, err)
	fast, err := b.Subscribe()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			b.Publish(captured(i))
		}
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 10000; i++ {
		ev, err := fast.Receive(ctx)
		require.NoError(t, err)
		require.Equal(t, i, ev.Frames)
	}
	<-done
	assert.Equal(t, 10000, slow.Stats().Pending)
}

func TestReceiveBlocksUntilPublish(t *testing.T) {
	b := New()
	s, err := b.Subscribe()
	require.NoError(t, err)

	got := make(chan Event, 1)
	go func() {
		ev, err := s.Receive(context.Background())
		if err == nil {
			got <- ev
		}
	}()

	time.Sleep(20 * time.Millisecond)
	b.Publish(Control(StopCamera, time.Unix(5, 0)))

	select {
	case ev := <-got:
		assert.Equal(t, StopCamera, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after Publish")
	}
}

func TestReceiveHonoursContext(t *testing.T) {
	b := New()
	s, err := b.Subscribe()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseSubscription(t *testing.T) {
	b := New()
	s, err := b.Subscribe()
	require.NoError(t, err)
	other, err := b.Subscribe()
	require.NoError(t, err)

	b.Publish(captured(1))
	s.Close()
	assert.Equal(t, 1, b.Publish(captured(2)), "closed subscription must be skipped")
	assert.Equal(t, 1, b.Subscribers())

	// Pending events survive Close.
	ev, err := s.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ev.Frames)
	_, err = s.Receive(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionClosed)

	assert.Len(t, drain(other), 2)
}

func TestCloseBus(t *testing.T) {
	b := New()
	s, err := b.Subscribe()
	require.NoError(t, err)
	b.Publish(captured(1))
	b.Close()
	b.Close()

	assert.Equal(t, 0, b.Publish(captured(2)))
	_, err = b.Subscribe()
	assert.ErrorIs(t, err, ErrBusClosed)

	ev, err := s.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ev.Frames)
	_, err = s.Receive(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}

func TestQueueLimitDropsOldest(t *testing.T) {
	b := New(WithQueueLimit(3))
	s, err := b.Subscribe()
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		b.Publish(captured(i))
	}

	st := s.Stats()
	assert.Equal(t, uint64(5), st.Delivered)
	assert.Equal(t, uint64(2), st.Dropped)
	assert.Equal(t, 3, st.Pending)

	got := drain(s)
	require.Len(t, got, 3)
	assert.Equal(t, []int{2, 3, 4}, []int{got[0].Frames, got[1].Frames, got[2].Frames})
}

func TestDroppedEventsReleaseTheirSlot(t *testing.T) {
	b := New(WithQueueLimit(2))
	s, err := b.Subscribe()
	require.NoError(t, err)
	s.queue = make([]Event, 0, 4)
	backing := s.queue[:cap(s.queue)]

	b.Publish(Event{Kind: MotionCaptured, Path: "a.avi"})
	b.Publish(Event{Kind: MotionCaptured, Path: "b.avi"})
	b.Publish(Event{Kind: MotionCaptured, Path: "c.avi"})

	assert.Equal(t, Event{}, backing[0], "the dropped event is cleared")
	got := drain(s)
	require.Len(t, got, 2)
	assert.Equal(t, "b.avi", got[0].Path)
	assert.Equal(t, "c.avi", got[1].Path)
}

func TestConcurrentSubscribeNeverDuplicates(t *testing.T) {
	b := New()
	const publishes = 500

	var wg sync.WaitGroup
	subs := make(chan *Subscription, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := b.Subscribe()
			if err == nil {
				subs <- s
			}
		}()
	}
	for i := 0; i < publishes; i++ {
		b.Publish(captured(i))
	}
	wg.Wait()
	close(subs)

	for s := range subs {
		got := drain(s)
		// Whatever a subscriber saw must be a contiguous, gap-free tail.
		for i := 1; i < len(got); i++ {
			require.Equal(t, got[i-1].Frames+1, got[i].Frames)
		}
		if len(got) > 0 {
			require.Equal(t, publishes-1, got[len(got)-1].Frames)
		}
	}
}

func TestKindJSON(t *testing.T) {
	ev := Captured("output/a.avi", "sess", 12, time.Unix(10, 0).UTC())
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"motion_captured"`)

	var back Event
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ev, back)

	var k Kind
	assert.Error(t, k.UnmarshalText([]byte("explode")))
	assert.True(t, StartCamera.Control())
	assert.False(t, MotionCaptured.Control())
	assert.Equal(t, "stop_camera", StopCamera.String())
}
