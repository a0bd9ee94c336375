package coinsig

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func Test_eventQueueFIFO(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var q = NewEventQueue()
		var n = rapid.IntRange(0, 50).Draw(t, "n")
		var want []string
		for i := 0; i < n; i++ {
			var ev = newEvent(EventCoin, "SIP/q", epoch.Add(time.Duration(i)*time.Millisecond))
			want = append(want, ev.ID)
			q.Publish(ev)
		}

		var got []string
		for {
			var ev, ok = q.Remove()
			if !ok {
				break
			}
			got = append(got, ev.ID)
		}
		assert.Equal(t, want, got)

		var published, removed = q.Stats()
		assert.Equal(t, n, published)
		assert.Equal(t, n, removed)
		assert.Zero(t, q.Len())
	})
}

func Test_eventQueueDrain(t *testing.T) {
	var q = NewEventQueue()
	assert.Empty(t, q.Drain())

	q.Publish(newEvent(EventCoin, "a", epoch))
	q.Publish(newEvent(EventThreshold, "a", epoch))
	var _, _ = q.Remove()
	q.Publish(newEvent(EventDisposition, "a", epoch))

	var got = q.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, EventThreshold, got[0].Type)
	assert.Equal(t, EventDisposition, got[1].Type)
	assert.Zero(t, q.Len())

	var published, removed = q.Stats()
	assert.Equal(t, 3, published)
	assert.Equal(t, 3, removed)
}

func Test_eventQueueWaitWhileEmpty(t *testing.T) {
	var q = NewEventQueue()

	var ctx, cancel = context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, q.WaitWhileEmpty(ctx), "nothing published")

	var wg sync.WaitGroup
	var woke bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		woke = q.WaitWhileEmpty(t.Context())
	}()

	time.Sleep(10 * time.Millisecond)
	q.Publish(newEvent(EventCoin, "a", epoch))
	wg.Wait()
	assert.True(t, woke)

	// Stale wake-up with nothing left to read.
	q.Publish(newEvent(EventCoin, "a", epoch))
	q.Drain()
	var short, cancelShort = context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancelShort()
	assert.False(t, q.WaitWhileEmpty(short))
}

func Test_eventQueueConcurrentPublish(t *testing.T) {
	var q = NewEventQueue()
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Publish(newEvent(EventCoin, "a", epoch))
			}
		}()
	}

	var seen = 0
	var done = make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for seen < 800 {
		if !q.WaitWhileEmpty(t.Context()) {
			break
		}
		seen += len(q.Drain())
	}
	<-done
	assert.Equal(t, 800, seen)
}

func Test_newEventHasUUID(t *testing.T) {
	var a = newEvent(EventCoin, "SIP/x", epoch)
	var b = newEvent(EventCoin, "SIP/x", epoch)

	var parsed, err = uuid.Parse(a.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
	assert.NotEqual(t, a.ID, b.ID)
}

func Test_eventCanonicalJSON(t *testing.T) {
	var ev = newEvent(EventDisposition, "SIP/payphone-0001", epoch)
	ev.ID = "b0e0d3a2-5a57-4a43-9b3c-7e3e8f0f6a11"
	ev.Direction = "TX"
	ev.Disposition = CoinCollect.String()
	ev.Identity = &CallIdentity{
		Channel:     "SIP/payphone-0001",
		UniqueID:    "1709294400.12",
		CallerIDNum: "5551234",
		Location:    Location{Context: "payphone", Exten: "s", Priority: 3},
	}

	var a, err = ev.CanonicalJSON()
	require.NoError(t, err)
	var b, err2 = ev.CanonicalJSON()
	require.NoError(t, err2)
	assert.Equal(t, a, b)

	// Keys sorted, no whitespace, zero fields left out.
	assert.True(t, bytes.HasPrefix(a, []byte(`{"at":"2024-03-01T12:00:00Z","channel":"SIP/payphone-0001","direction":"TX","disposition":"CoinCollect","id":`)), string(a))
	assert.NotContains(t, string(a), "cents")
	assert.NotContains(t, string(a), " ")

	var back Event
	require.NoError(t, json.Unmarshal(a, &back))
	assert.Equal(t, ev.Identity.Location, back.Identity.Location)
	assert.True(t, ev.At.Equal(back.At))
}
