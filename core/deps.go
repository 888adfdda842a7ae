package core

import (
	"pkt.systems/pslog"
	"pkt.systems/sshdesk/internal/transport"
)

// ServiceDeps captures optional dependencies for the core service.
type ServiceDeps struct {
	Dialer    transport.Dialer
	EventSink EventSink
	Logger    pslog.Logger
}
