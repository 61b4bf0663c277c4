// Package eventbus is the in-process pub/sub fabric for CodeFRAME. The
// notifications that Store mutations emit (not every mutation emits one;
// see store.ChangeNotifier) arrive here via that hook and are fanned out
// to per-project subscriber queues — there is no external
// broker and no durable replay: a subscriber that falls behind sees a gap
// marker, not a backlog.
//
// Subscriber bookkeeping uses a per-channel registry of bounded queues and
// a snapshot-then-send broadcast so a slow subscriber never makes the
// publisher hold a lock while it drains.
package eventbus

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/frankbria/codeframe/pkg/models"
)

// maxConsecutiveOverflows is how many back-to-back full-queue drops a
// subscriber tolerates before the bus gives up on it and closes its queue:
// a persistently slow subscriber is dropped rather than held onto forever.
const maxConsecutiveOverflows = 3

// DefaultQueueSize is used when Bus is constructed with queueSize <= 0.
// Overridden in practice by config.Config.SubscriberQueueSize.
const DefaultQueueSize = 256

// Subscription is a live handle to a channel's event stream. Callers must
// range over Events until it closes, then call Unsubscribe exactly once (or
// rely on the bus closing it after overflow).
type Subscription struct {
	id      string
	channel string
	Events  <-chan models.Event

	bus *Bus
}

// Unsubscribe removes the subscription and closes its channel. Idempotent.
func (sub *Subscription) Unsubscribe() {
	sub.bus.unsubscribe(sub.channel, sub.id)
}

type subscriber struct {
	id                  string
	queue               chan models.Event
	consecutiveOverflow int
	closed              bool
}

// Bus is the in-process broadcaster. One Bus instance serves the whole
// process; project_id is rendered into a channel key so subscribers only
// see events for the projects they asked about.
type Bus struct {
	mu        sync.Mutex
	channels  map[string]map[string]*subscriber
	queueSize int
}

// New creates a Bus whose subscriber queues hold queueSize events each.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		channels:  make(map[string]map[string]*subscriber),
		queueSize: queueSize,
	}
}

// ProjectChannel renders a project_id into the channel key events.* use.
func ProjectChannel(projectID int64) string {
	return channelKey(projectID)
}

func channelKey(projectID int64) string {
	return "project:" + itoa(projectID)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Subscribe registers a new subscriber on channel and returns a
// Subscription whose Events channel delivers events in FIFO order relative
// to that subscriber.
func (b *Bus) Subscribe(channel string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	sub := &subscriber{id: id, queue: make(chan models.Event, b.queueSize)}

	if b.channels[channel] == nil {
		b.channels[channel] = make(map[string]*subscriber)
	}
	b.channels[channel][id] = sub

	return &Subscription{id: id, channel: channel, Events: sub.queue, bus: b}
}

func (b *Bus) unsubscribe(channel, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(channel, id)
}

func (b *Bus) removeLocked(channel, id string) {
	subs, ok := b.channels[channel]
	if !ok {
		return
	}
	sub, ok := subs[id]
	if !ok {
		return
	}
	if !sub.closed {
		sub.closed = true
		close(sub.queue)
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(b.channels, channel)
	}
}

// Notify implements store.ChangeNotifier: it fans evt out to every
// subscriber of evt's project channel. This is called synchronously from
// the Store's write path, so it must never block — full queues get the
// drop-oldest treatment rather than stalling the writer.
func (b *Bus) Notify(evt models.Event) {
	channel := channelKey(evt.ProjectID)
	b.mu.Lock()
	subs, ok := b.channels[channel]
	if !ok || len(subs) == 0 {
		b.mu.Unlock()
		return
	}
	targets := make([]*subscriber, 0, len(subs))
	for _, s := range subs {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		b.deliver(channel, s, evt)
	}
}

// deliver pushes evt to one subscriber's queue, applying the drop-oldest +
// gap-marker policy on overflow. Three consecutive overflows drop the
// subscriber entirely.
func (b *Bus) deliver(channel string, s *subscriber, evt models.Event) {
	select {
	case s.queue <- evt:
		if s.consecutiveOverflow > 0 {
			s.consecutiveOverflow = 0
		}
		return
	default:
	}

	// Queue is full. Drop the oldest queued events to make room for a gap
	// marker plus the new event (or just the gap marker, if the queue is
	// too small to ever hold two), so the subscriber learns it missed
	// something instead of silently skipping it.
	needed := 2
	if cap(s.queue) < 2 {
		needed = 1
	}
	for len(s.queue) > cap(s.queue)-needed {
		select {
		case <-s.queue:
		default:
		}
	}
	gap := models.Event{ProjectID: evt.ProjectID, Kind: models.EventGap}
	select {
	case s.queue <- gap:
	default:
	}
	if needed == 2 {
		select {
		case s.queue <- evt:
		default:
		}
	}

	s.consecutiveOverflow++
	if s.consecutiveOverflow >= maxConsecutiveOverflows {
		slog.Warn("dropping slow eventbus subscriber", "channel", channel, "subscriber", s.id)
		b.mu.Lock()
		b.removeLocked(channel, s.id)
		b.mu.Unlock()
	}
}

// SubscriberCount reports the live subscriber count for a channel. The
// /health and /ws/health handlers do not consult it.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels[channel])
}
