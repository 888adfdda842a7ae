package core

import (
	"strings"

	"pkt.systems/sshdesk/schema"
)

// Classify sorts a console line into change_directory, clear or generic.
// The test is a case-sensitive prefix test on the untrimmed line: `cd` must be
// the whole line or be followed by a space or tab, and clear must match exactly.
func Classify(line string) schema.CommandRequest {
	switch {
	case line == "clear":
		return schema.CommandRequest{Kind: schema.CommandClear, Raw: line}
	case line == "cd":
		return schema.CommandRequest{Kind: schema.CommandChangeDirectory, Raw: line}
	case strings.HasPrefix(line, "cd") && (line[2] == ' ' || line[2] == '\t'):
		return schema.CommandRequest{
			Kind:     schema.CommandChangeDirectory,
			Raw:      line,
			Argument: strings.TrimSpace(line[2:]),
		}
	default:
		return schema.CommandRequest{Kind: schema.CommandGeneric, Raw: line}
	}
}
