package coinsig

/*------------------------------------------------------------------
 *
 * Purpose:	Queue of notifications produced on the audio path and
 *		consumed elsewhere.
 *
 * Description:	Producers run inline with audio and must never block,
 *		so Publish only appends under a mutex and pokes the
 *		consumer.  One consumer waits with WaitWhileEmpty and
 *		drains with Remove.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

// EventType names a notification.
type EventType string

const (
	EventDisposition EventType = "CoinDisposition"
	EventCoin        EventType = "CoinDeposit"
	EventThreshold   EventType = "CoinThreshold"
)

// Event is one notification.  Fields not relevant to the type are zero.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	At        time.Time `json:"at"`
	Channel   string    `json:"channel"`
	Direction string    `json:"direction,omitempty"`

	// EventDisposition
	Disposition string        `json:"disposition,omitempty"`
	Identity    *CallIdentity `json:"identity,omitempty"`

	// EventCoin
	RawHits   int `json:"raw_hits,omitempty"`
	Effective int `json:"effective,omitempty"`

	// EventCoin, EventThreshold
	Cents int `json:"cents,omitempty"`

	// EventThreshold
	Redirect string `json:"redirect,omitempty"`
}

func newEvent(t EventType, channel string, at time.Time) Event {
	return Event{ID: uuid.NewString(), Type: t, At: at, Channel: channel}
}

// CanonicalJSON encodes the event as RFC 8785 canonical JSON, so the
// same event always produces the same bytes.
func (e Event) CanonicalJSON() ([]byte, error) {
	var raw, err = json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

// EventSink receives events.  Publish must not block.
type EventSink interface {
	Publish(Event)
}

// EventQueue is an unbounded FIFO EventSink.
type EventQueue struct {
	mu      sync.Mutex
	items   []Event
	wake_up chan struct{}

	new_count    int
	remove_count int
}

func NewEventQueue() *EventQueue {
	return &EventQueue{wake_up: make(chan struct{}, 1)}
}

/*-------------------------------------------------------------------
 *
 * Name:        Publish
 *
 * Purpose:     Add an event to the end of the queue and wake up
 *		the consumer if it is waiting.
 *
 *--------------------------------------------------------------------*/

func (q *EventQueue) Publish(ev Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.new_count++
	q.mu.Unlock()

	select {
	case q.wake_up <- struct{}{}:
	default:
		// Already signalled.
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        WaitWhileEmpty
 *
 * Purpose:     Sleep while the queue is empty.
 *
 * Returns:	False if ctx ended before any event arrived.
 *
 *--------------------------------------------------------------------*/

func (q *EventQueue) WaitWhileEmpty(ctx context.Context) bool {
	for {
		if q.Len() > 0 {
			return true
		}
		select {
		case <-q.wake_up:
		case <-ctx.Done():
			return q.Len() > 0
		}
	}
}

// Remove takes the event at the head of the queue.
func (q *EventQueue) Remove() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Event{}, false
	}
	var ev = q.items[0]
	q.items[0] = Event{}
	q.items = q.items[1:]
	q.remove_count++
	return ev, true
}

func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns everything queued.
func (q *EventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out = q.items
	q.remove_count += len(out)
	q.items = nil
	return out
}

// Stats returns how many events were ever published and removed.
func (q *EventQueue) Stats() (published, removed int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.new_count, q.remove_count
}
