// sim/events.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"golang.org/x/exp/maps"

	"github.com/openvobc/vobc/log"
)

// EventStream is a basic pub/sub interface: any part of the system can
// post an event and any other part can subscribe and drain them at its
// own pace. It carries train lifecycle and safety events from the
// simulation out to consoles and tests.
type EventStream struct {
	mu            sync.Mutex
	events        []Event
	subscriptions map[*EventsSubscription]interface{}
	lastPost      time.Time
	warnedLong    bool
	done          chan struct{}
	lg            *log.Logger
}

type EventsSubscription struct {
	stream *EventStream
	// offset into the stream's event array up to which this subscriber
	// has consumed events.
	offset      int
	source      string
	lastGet     time.Time
	warnedNoGet bool
}

func (e *EventsSubscription) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("offset", e.offset),
		slog.String("source", e.source),
		slog.Time("last_get", e.lastGet))
}

func (e *EventsSubscription) PostEvent(event Event) {
	e.stream.Post(event)
}

func NewEventStream(lg *log.Logger) *EventStream {
	es := &EventStream{
		subscriptions: make(map[*EventsSubscription]interface{}),
		lastPost:      time.Now(),
		done:          make(chan struct{}),
		lg:            lg,
	}
	go es.monitor()
	return es
}

// Subscribe registers a new subscriber; events posted before this call
// are never reported to it.
func (e *EventStream) Subscribe() *EventsSubscription {
	// Record the subscriber's callsite so stuck subscribers can be
	// identified from the logs.
	_, fn, line, _ := runtime.Caller(1)
	source := fmt.Sprintf("%s:%d", fn, line)

	sub := &EventsSubscription{
		stream:  e,
		offset:  len(e.events),
		source:  source,
		lastGet: time.Now(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.subscriptions[sub] = nil
	return sub
}

func (e *EventStream) monitor() {
	tick := time.Tick(5 * time.Second)

	for {
		<-tick

		select {
		case <-e.done:
			return
		default:
		}

		e.mu.Lock()

		e.compact()

		if len(e.events) > 1000 && !e.warnedLong {
			// A stream this long means one of the subscribers has most
			// likely stopped consuming.
			e.lg.Warn("Long EventStream", slog.Int("length", len(e.events)),
				log.AnyPointerSlice("subscriptions", maps.Keys(e.subscriptions)))
			e.warnedLong = true
		}

		// Only complain about idle subscribers while events are actually
		// flowing; a paused simulation posts nothing.
		if time.Since(e.lastPost) < 5*time.Second {
			for sub := range e.subscriptions {
				if d := time.Since(sub.lastGet); d > 10*time.Second && !sub.warnedNoGet {
					e.lg.Warn("Subscriber has not called Get() recently",
						slog.Duration("duration", d), slog.Any("subscriber", sub))
					sub.warnedNoGet = true
				}
			}
		}

		e.mu.Unlock()
	}
}

func (e *EventsSubscription) Unsubscribe() {
	e.stream.mu.Lock()
	defer e.stream.mu.Unlock()

	if _, ok := e.stream.subscriptions[e]; !ok {
		e.stream.lg.Errorf("Attempted to unsubscribe invalid subscription: %+v", e)
	}
	delete(e.stream.subscriptions, e)
	e.stream = nil
}

// Post adds an event to the stream.
func (e *EventStream) Post(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lg.Debug("posted event", slog.Any("event", event))

	// Ignore the event if no one's paying attention.
	if len(e.subscriptions) > 0 {
		e.lastPost = time.Now()
		e.events = append(e.events, event)
	}
}

// Get returns the events posted since the subscriber's previous Get.
func (e *EventsSubscription) Get() []Event {
	e.stream.mu.Lock()
	defer e.stream.mu.Unlock()

	if _, ok := e.stream.subscriptions[e]; !ok {
		e.stream.lg.Errorf("Attempted to get with unregistered subscription: %+v", e)
		return nil
	}

	events := slices.Clone(e.stream.events[e.offset:])
	e.offset = len(e.stream.events)
	e.lastGet = time.Now()
	e.warnedNoGet = false

	return events
}

func (e *EventStream) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()

	select {
	case e.done <- struct{}{}:
	default:
	}

	close(e.done)
	clear(e.subscriptions)
}

// compact reclaims storage for events every subscriber has seen so the
// stream does not grow without bound.
func (e *EventStream) compact() {
	minOffset := len(e.events)
	for sub := range e.subscriptions {
		if sub.offset < minOffset {
			minOffset = sub.offset
		}
	}

	if minOffset > cap(e.events)/2 {
		n := len(e.events) - minOffset

		copy(e.events, e.events[minOffset:])
		e.events = e.events[:n]

		for sub := range e.subscriptions {
			sub.offset -= minOffset
		}

		e.warnedLong = false // reset this after a successful compact.
	}
}

// implements slog.LogValuer
func (e *EventStream) LogValue() slog.Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	items := []slog.Attr{slog.Int("len", len(e.events)), slog.Int("cap", cap(e.events))}
	if len(e.events) > 0 {
		items = append(items, slog.Any("last_element", e.events[len(e.events)-1]))
	}
	items = append(items, log.AnyPointerSlice("subscriptions", maps.Keys(e.subscriptions)))
	return slog.GroupValue(items...)
}

///////////////////////////////////////////////////////////////////////////

type EventType int

const (
	StatusMessageEvent EventType = iota
	TrainAddedEvent
	TrainCompletedEvent
	BlockTransitionEvent
	LookaheadExhaustedEvent
	StationArrivalEvent
	StationDepartureEvent
	EmergencyBrakeEvent
	FaultInjectedEvent
	FaultClearedEvent
	NumEventTypes
)

func (t EventType) String() string {
	return []string{"StatusMessage", "TrainAdded", "TrainCompleted", "BlockTransition",
		"LookaheadExhausted", "StationArrival", "StationDeparture", "EmergencyBrake",
		"FaultInjected", "FaultCleared"}[t]
}

type Event struct {
	Type    EventType
	TrainID string
	Block   int    // block number, where relevant
	Station string // station name for arrivals and departures
	Fault   string // fault kind for injections and clears
	SimTime time.Time
	Text    string
}

func (e *Event) String() string {
	return fmt.Sprintf("%s: train %q block %d station %q fault %q text %q",
		e.Type, e.TrainID, e.Block, e.Station, e.Fault, e.Text)
}

func (e Event) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("type", e.Type.String())}
	if e.TrainID != "" {
		attrs = append(attrs, slog.String("train_id", e.TrainID))
	}
	if e.Block != 0 {
		attrs = append(attrs, slog.Int("block", e.Block))
	}
	if e.Station != "" {
		attrs = append(attrs, slog.String("station", e.Station))
	}
	if e.Fault != "" {
		attrs = append(attrs, slog.String("fault", e.Fault))
	}
	if e.Text != "" {
		attrs = append(attrs, slog.String("text", e.Text))
	}
	return slog.GroupValue(attrs...)
}
