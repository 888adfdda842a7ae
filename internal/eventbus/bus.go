package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/sshdesk/schema"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventTranscript carries one echoed command and its output.
	EventTranscript EventType = "transcript"
	// EventClear asks the presentation layer to wipe the transcript.
	EventClear EventType = "clear"
	// EventSystemOutput carries console status lines.
	EventSystemOutput EventType = "system"
	// EventTask carries a task completion.
	EventTask EventType = "task"
	// EventSession carries session lifecycle updates.
	EventSession EventType = "session"
)

// Event represents a presentation-facing event emitted by the core service.
type Event struct {
	Type       EventType
	Transcript schema.TranscriptEvent
	System     schema.SystemOutputEvent
	Task       schema.TaskEvent
	Session    schema.SessionEvent
}

// Bus fanouts events to subscribers.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber and returns a channel + cancel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.Debug("eventbus subscribe", "subs", count)
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
			if b.log != nil {
				b.log.Debug("eventbus unsubscribe")
			}
		})
	}
}

// OnTranscript publishes a transcript or clear event.
func (b *Bus) OnTranscript(event schema.TranscriptEvent) {
	kind := EventTranscript
	if event.Line.Clear {
		kind = EventClear
	}
	b.publish(Event{Type: kind, Transcript: event})
}

// OnSystemOutput publishes a system output event.
func (b *Bus) OnSystemOutput(event schema.SystemOutputEvent) {
	b.publish(Event{Type: EventSystemOutput, System: event})
}

// OnTask publishes a task completion event.
func (b *Bus) OnTask(event schema.TaskEvent) {
	b.publish(Event{Type: EventTask, Task: event})
}

// OnSession publishes a session lifecycle event.
func (b *Bus) OnSession(event schema.SessionEvent) {
	b.publish(Event{Type: EventSession, Session: event})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.subs) == 0 {
		return
	}
	dropped := 0
	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 && b.log != nil {
		b.log.Trace("eventbus dropped", "count", dropped, "type", event.Type)
	}
}
