package core

import (
	"strings"

	"github.com/google/uuid"
	"pkt.systems/sshdesk/schema"
)

func newTaskID() schema.TaskID {
	return schema.TaskID(uuid.NewString())
}

// tempName returns a collision-free file name for a local temp artifact.
func tempName() string {
	return "sshdesk-" + strings.ReplaceAll(uuid.NewString(), "-", "") + ".tmp"
}
