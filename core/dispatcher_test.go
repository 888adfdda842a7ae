package core

import (
	"context"
	"testing"

	"pkt.systems/sshdesk/schema"
)

func TestDispatchClearNeverTouchesTransport(t *testing.T) {
	ft := hostFake("u", "host", "/home/u")
	d := NewDispatcher(NewTracker(ft, 0), DispatcherOptions{})
	line, req := d.Dispatch(context.Background(), "clear")
	if !line.Clear || req.Kind != schema.CommandClear {
		t.Fatalf("expected clear signal, got %+v %+v", line, req)
	}
	if req.Remote != "" {
		t.Fatalf("expected no remote command, got %q", req.Remote)
	}
	if len(ft.Commands()) != 0 {
		t.Fatalf("expected no transport calls, got %v", ft.Commands())
	}
}

func TestDispatchGenericProbesDirectoryOnce(t *testing.T) {
	ft := hostFake("u", "host", "/home/u")
	d := NewDispatcher(NewTracker(ft, 0), DispatcherOptions{})

	line, req := d.Dispatch(context.Background(), "ls")
	cmds := ft.Commands()
	if len(cmds) < 2 || cmds[0] != "pwd" || cmds[len(cmds)-1] != "cd /home/u && ls" {
		t.Fatalf("expected pwd probe before command, got %v", cmds)
	}
	if req.Remote != "cd /home/u && ls" {
		t.Fatalf("unexpected remote command %q", req.Remote)
	}
	if line.Prompt != "[u@host /home/u]$ " || line.Command != "ls" {
		t.Fatalf("unexpected transcript line %+v", line)
	}
	if got := line.Lines(); len(got) != 2 || got[0] != "[u@host /home/u]$ ls" || got[1] != "ran: cd /home/u && ls" {
		t.Fatalf("unexpected rendered lines %q", got)
	}

	d.Dispatch(context.Background(), "uptime")
	d.Dispatch(context.Background(), "df -h")
	if got := ft.Count("pwd"); got != 1 {
		t.Fatalf("expected exactly one pwd probe, got %d", got)
	}
}

func TestDispatchRejectedCdKeepsDirectoryAndEchoesOldPrompt(t *testing.T) {
	ft := hostFake("u", "host", "/home/u")
	tracker := NewTracker(ft, 0)
	d := NewDispatcher(tracker, DispatcherOptions{})

	line, req := d.Dispatch(context.Background(), "cd ../root")
	if ft.Count("cd /home/root && pwd") != 1 {
		t.Fatalf("expected one cd confirmation, got %v", ft.Commands())
	}
	if dir, _ := tracker.Directory(); dir != "/home/u" {
		t.Fatalf("expected directory unchanged, got %q", dir)
	}
	if !line.Rejected || line.Output != "" {
		t.Fatalf("expected silent rejection, got %+v", line)
	}
	if got := line.Lines(); len(got) != 1 || got[0] != "[u@host /home/u]$ cd ../root" {
		t.Fatalf("unexpected transcript %q", got)
	}
	if req.Kind != schema.CommandChangeDirectory || req.Argument != "../root" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestDispatchRejectedCdWhenHostStaysPut(t *testing.T) {
	ft := &fakeTransport{execFn: func(cmd string) (string, error) {
		switch cmd {
		case "pwd", "cd /root && pwd":
			return "/home/u\n", nil
		case "whoami":
			return "u\n", nil
		case "hostname":
			return "host\n", nil
		}
		return "", nil
	}}
	tracker := NewTracker(ft, 0)
	d := NewDispatcher(tracker, DispatcherOptions{})
	line, _ := d.Dispatch(context.Background(), "cd /root")
	if dir, _ := tracker.Directory(); dir != "/home/u" {
		t.Fatalf("expected directory unchanged, got %q", dir)
	}
	if got := line.Lines(); len(got) != 1 || got[0] != "[u@host /home/u]$ cd /root" {
		t.Fatalf("unexpected transcript %q", got)
	}
}

func TestDispatchSurfacesCdFailuresWhenEnabled(t *testing.T) {
	ft := hostFake("u", "host", "/home/u")
	d := NewDispatcher(NewTracker(ft, 0), DispatcherOptions{SurfaceCdFailures: true})
	line, _ := d.Dispatch(context.Background(), "cd nope")
	got := line.Lines()
	if len(got) != 2 || got[1] != "cd: /home/u/nope: directory change rejected" {
		t.Fatalf("unexpected transcript %q", got)
	}
}

func TestDispatchCdMovesPromptForNextCommand(t *testing.T) {
	ft := hostFake("root", "box", "/root", "/etc")
	d := NewDispatcher(NewTracker(ft, 0), DispatcherOptions{})
	line, _ := d.Dispatch(context.Background(), "cd /etc")
	if line.Rejected || line.Prompt != "[root@box /root]# " {
		t.Fatalf("unexpected cd line %+v", line)
	}
	next, _ := d.Dispatch(context.Background(), "ls")
	if next.Prompt != "[root@box /etc]# " {
		t.Fatalf("expected prompt in new directory, got %q", next.Prompt)
	}
	if ft.Count("cd /etc && ls") != 1 {
		t.Fatalf("expected command in new directory, got %v", ft.Commands())
	}
}

func TestDispatchFailedGenericShowsEmptyBody(t *testing.T) {
	ft := hostFake("u", "host", "/home/u")
	tracker := NewTracker(ft, 0)
	tracker.EnsureDirectoryKnown(context.Background())
	base := ft.execFn
	ft.execFn = func(cmd string) (string, error) {
		if cmd == "cd /home/u && false" {
			return "", errTest
		}
		return base(cmd)
	}
	d := NewDispatcher(tracker, DispatcherOptions{})
	line, _ := d.Dispatch(context.Background(), "false")
	if got := line.Lines(); len(got) != 1 || got[0] != "[u@host /home/u]$ false" {
		t.Fatalf("unexpected transcript %q", got)
	}
	if !line.Failed || line.Rejected {
		t.Fatalf("expected failed generic line, got %+v", line)
	}
	ok, _ := d.Dispatch(context.Background(), "true")
	if ok.Failed {
		t.Fatalf("expected successful generic line, got %+v", ok)
	}
}
