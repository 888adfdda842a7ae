package sshdesk

import (
	"pkt.systems/sshdesk/core"
	"pkt.systems/sshdesk/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnTranscript(event schema.TranscriptEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnTranscript(event)
	}
}

func (f eventFanout) OnSystemOutput(event schema.SystemOutputEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnSystemOutput(event)
	}
}

func (f eventFanout) OnTask(event schema.TaskEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnTask(event)
	}
}

func (f eventFanout) OnSession(event schema.SessionEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnSession(event)
	}
}
