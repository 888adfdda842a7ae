package core

import (
	"context"
	"fmt"

	"pkt.systems/pslog"
	"pkt.systems/sshdesk/schema"
)

// DispatcherOptions tunes how dispatch results are rendered.
type DispatcherOptions struct {
	// SurfaceCdFailures appends a rejection line to a failed cd.
	SurfaceCdFailures bool
	Logger            pslog.Logger
}

// Dispatcher turns console lines into remote commands and transcript lines.
type Dispatcher struct {
	tracker *Tracker
	opts    DispatcherOptions
}

// NewDispatcher returns a dispatcher bound to tracker.
func NewDispatcher(tracker *Tracker, opts DispatcherOptions) *Dispatcher {
	return &Dispatcher{tracker: tracker, opts: opts}
}

// Dispatch classifies line, runs it through the tracker and returns the
// transcript line plus the classified request. It never fails: remote errors
// show up as empty output or an unchanged directory.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) (schema.TranscriptLine, schema.CommandRequest) {
	req := Classify(line)
	switch req.Kind {
	case schema.CommandClear:
		return schema.TranscriptLine{Command: line, Clear: true}, req
	case schema.CommandChangeDirectory:
		d.tracker.EnsureDirectoryKnown(ctx)
		prompt := d.tracker.ComputePrompt(ctx)
		target, ok := d.tracker.ResolveChangeDirectory(ctx, req.Argument)
		req.Remote = ChangeDirectoryCommand(target)
		out := schema.TranscriptLine{Prompt: prompt, Command: line}
		if !ok {
			out.Rejected = true
			if d.opts.SurfaceCdFailures {
				out.Output = fmt.Sprintf("cd: %s: directory change rejected", target)
			}
		}
		return out, req
	default:
		d.tracker.EnsureDirectoryKnown(ctx)
		prompt := d.tracker.ComputePrompt(ctx)
		if dir, ok := d.tracker.Directory(); ok {
			req.Remote = InDirectoryCommand(dir, line)
		}
		output, ok := d.tracker.RunInDirectory(ctx, line)
		if !ok && d.opts.Logger != nil {
			d.opts.Logger.Warn("dispatch command failed", "command_len", len(line))
		}
		return schema.TranscriptLine{Prompt: prompt, Command: line, Output: output, Failed: !ok}, req
	}
}
