package core

import "pkt.systems/sshdesk/schema"

// EventSink receives events from the core service.
type EventSink interface {
	OnTranscript(event schema.TranscriptEvent)
	OnSystemOutput(event schema.SystemOutputEvent)
	OnTask(event schema.TaskEvent)
	OnSession(event schema.SessionEvent)
}
