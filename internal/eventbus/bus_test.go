package eventbus

import (
	"testing"
	"time"

	"pkt.systems/sshdesk/schema"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe()
	defer cancel()

	event := schema.TranscriptEvent{Host: "h", Line: schema.TranscriptLine{Prompt: "$ ", Command: "ls"}}
	bus.OnTranscript(event)

	select {
	case got := <-ch:
		if got.Type != EventTranscript {
			t.Fatalf("expected transcript event, got %v", got.Type)
		}
		if got.Transcript.Host != "h" || got.Transcript.Line.Command != "ls" {
			t.Fatalf("unexpected payload: %+v", got.Transcript)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
}

func TestClearLineBecomesClearEvent(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe()
	defer cancel()
	bus.OnTranscript(schema.TranscriptEvent{Line: schema.TranscriptLine{Command: "clear", Clear: true}})
	if got := <-ch; got.Type != EventClear {
		t.Fatalf("expected clear event, got %v", got.Type)
	}
}

func TestTaskAndSessionEvents(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe()
	defer cancel()
	bus.OnTask(schema.TaskEvent{Result: schema.TaskResult{ID: "t1", Kind: schema.TaskUpload, OK: true}})
	bus.OnSession(schema.SessionEvent{Type: schema.SessionConnected, Host: "h"})
	bus.OnSystemOutput(schema.SystemOutputEvent{Lines: []string{"status: ok"}})

	if got := <-ch; got.Type != EventTask || got.Task.Result.ID != "t1" {
		t.Fatalf("unexpected task event %+v", got)
	}
	if got := <-ch; got.Type != EventSession || got.Session.Type != schema.SessionConnected {
		t.Fatalf("unexpected session event %+v", got)
	}
	if got := <-ch; got.Type != EventSystemOutput || got.System.Lines[0] != "status: ok" {
		t.Fatalf("unexpected system event %+v", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe()
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
	bus.OnTask(schema.TaskEvent{})
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := New(nil)
	bus.depth = 1
	_, cancel := bus.Subscribe()
	defer cancel()

	var sendCh chan Event
	bus.mu.Lock()
	for ch := range bus.subs {
		sendCh = ch
		break
	}
	bus.mu.Unlock()
	if sendCh == nil {
		t.Fatalf("expected subscriber channel")
	}
	sendCh <- Event{Type: EventTask}
	done := make(chan struct{})
	go func() {
		bus.OnTask(schema.TaskEvent{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("publish blocked on full channel")
	}
}
