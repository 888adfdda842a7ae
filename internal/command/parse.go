package command

import (
	"fmt"
	"strings"
)

// Command is a console line claimed by a registered slash command.
type Command struct {
	Name string
	Args []string
	// Remainder is everything after the command name, trimmed.
	Remainder string
}

type commandInfo struct {
	names   []string
	usage   string
	summary string
}

// commands lists every slash command in help order. A line whose first word
// is not one of these names belongs to the remote shell, so absolute paths
// such as /bin/ls keep working.
var commands = []commandInfo{
	{names: []string{"put"}, usage: "<local-file> [remote-dir]", summary: "upload a file (default: current directory)"},
	{names: []string{"get"}, usage: "<remote-file> [local-path]", summary: "download a file"},
	{names: []string{"ls"}, usage: "[remote-dir]", summary: "list a directory"},
	{names: []string{"cat"}, usage: "<remote-file>", summary: "show a remote file"},
	{names: []string{"edit"}, usage: "<remote-file>", summary: "edit a remote file with the local editor"},
	{names: []string{"pwd"}, summary: "show the tracked directory"},
	{names: []string{"status"}, summary: "show session status"},
	{names: []string{"save"}, summary: "save the current connection"},
	{names: []string{"disconnect"}, summary: "close the session"},
	{names: []string{"help"}, summary: "show this help"},
	{names: []string{"version"}, summary: "show version information"},
	{names: []string{"quit", "exit"}, summary: "leave the console"},
}

var commandNames = func() map[string]struct{} {
	names := make(map[string]struct{})
	for _, info := range commands {
		for _, name := range info.names {
			names[name] = struct{}{}
		}
	}
	return names
}()

// Parse returns the slash command in input. It reports false for anything
// that is not a registered command.
func Parse(input string) (Command, bool) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "/") {
		return Command{}, false
	}
	fields := strings.Fields(trimmed[1:])
	if len(fields) == 0 || strings.HasPrefix(trimmed, "/ ") {
		return Command{}, false
	}
	name := strings.ToLower(fields[0])
	if _, ok := commandNames[name]; !ok {
		return Command{}, false
	}
	return Command{
		Name:      name,
		Args:      fields[1:],
		Remainder: strings.TrimSpace(trimmed[1+len(fields[0]):]),
	}, true
}

func helpLines() []string {
	lines := make([]string, 0, len(commands)+1)
	for _, info := range commands {
		label := "/" + strings.Join(info.names, ", /")
		if info.usage != "" {
			label += " " + info.usage
		}
		lines = append(lines, fmt.Sprintf("%-32s%s", label, info.summary))
	}
	return append(lines, fmt.Sprintf("%-32s%s", "clear", "clear the transcript"))
}
