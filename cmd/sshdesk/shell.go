package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pkt.systems/pslog"
	"pkt.systems/sshdesk"
	"pkt.systems/sshdesk/core"
	"pkt.systems/sshdesk/internal/appconfig"
	"pkt.systems/sshdesk/internal/command"
	"pkt.systems/sshdesk/internal/eventbus"
	"pkt.systems/sshdesk/schema"
)

const clearScreen = "\033[H\033[2J"

type target struct {
	Entry schema.HostEntry
	Port  int
}

func newShellCmd() *cobra.Command {
	var cfgPath string
	var user string
	var port int
	var identity string
	var secretFromStdin bool
	var saved string
	var save bool
	cmd := &cobra.Command{
		Use:   "shell [user@]host[:port]",
		Short: "Open an interactive console on a remote host",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := pslog.Ctx(ctx)
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			desk, err := sshdesk.New(sshdesk.ConfigFromApp(cfg), sshdesk.Deps{
				ServiceDeps: core.ServiceDeps{Logger: logger},
			})
			if err != nil {
				return err
			}
			defer func() { _ = desk.Close() }()
			in := bufio.NewReader(cmd.InOrStdin())

			var tgt target
			switch {
			case saved != "":
				entry, err := savedEntry(desk.Hosts(), saved)
				if err != nil {
					return err
				}
				tgt = target{Entry: entry, Port: port}
			case len(args) == 1:
				tgt, err = parseTarget(args[0], user)
				if err != nil {
					return err
				}
				if port > 0 {
					tgt.Port = port
				}
				secret, err := resolveSecret(cmd, in, identity, secretFromStdin, tgt.Entry)
				if err != nil {
					return err
				}
				tgt.Entry.Secret = secret
			default:
				return errors.New("a target or --saved is required")
			}

			events, cancel := desk.Bus().Subscribe()
			defer cancel()
			svc := desk.Service()
			c := &console{
				service:   svc,
				events:    events,
				in:        in,
				out:       cmd.OutOrStdout(),
				echoInput: !term.IsTerminal(int(os.Stdin.Fd())),
			}
			if err := desk.Connect(ctx, tgt.Entry, tgt.Port); err != nil {
				c.drain()
				return err
			}
			if save {
				status := "status: connection saved"
				switch err := desk.SaveCurrent(tgt.Entry); {
				case errors.Is(err, schema.ErrDuplicateEntry):
					status = "status: connection already saved"
				case err != nil:
					return err
				}
				_ = svc.AppendSystemOutput(ctx, schema.AppendSystemOutputRequest{Lines: []string{status}})
			}
			if c.handler, err = desk.Handler(); err != nil {
				return err
			}
			return c.run(ctx)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&user, "user", "u", "", "login user (default: user@ prefix or $USER)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "ssh port (default from config)")
	cmd.Flags().StringVarP(&identity, "identity", "i", "", "private key file used instead of a password")
	cmd.Flags().BoolVar(&secretFromStdin, "secret-from-stdin", false, "read the password from the first line of stdin")
	cmd.Flags().StringVar(&saved, "saved", "", "connect using a saved connection number from `hosts list`")
	cmd.Flags().BoolVar(&save, "save", false, "save the connection after a successful connect")
	return cmd
}

// console reads lines, routes slash commands to the handler and everything
// else to the remote shell, printing bus events between prompts. The prompt
// and command are already on screen when a transcript event arrives, so only
// its output is printed.
type console struct {
	service core.Service
	handler *command.Handler
	events  <-chan eventbus.Event
	in      *bufio.Reader
	out     io.Writer
	// echoInput repeats each line after the prompt when the terminal does not.
	echoInput bool
}

type inputLine struct {
	text string
	err  error
}

func (c *console) run(ctx context.Context) error {
	lines := make(chan inputLine)
	go func() {
		defer close(lines)
		for {
			text, err := c.in.ReadString('\n')
			if text == "" && err != nil {
				select {
				case lines <- inputLine{err: err}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case lines <- inputLine{text: strings.TrimRight(text, "\r\n")}:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		c.drain()
		_, _ = fmt.Fprint(c.out, c.service.Prompt(ctx))
		var line inputLine
		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintln(c.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = l
		}
		if line.err != nil {
			_, _ = fmt.Fprintln(c.out)
			if errors.Is(line.err, io.EOF) {
				return nil
			}
			return line.err
		}
		if c.echoInput {
			_, _ = fmt.Fprintln(c.out, line.text)
		}
		if err := c.submit(ctx, line.text); err != nil {
			if errors.Is(err, command.ErrQuit) {
				c.drain()
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
		}
	}
}

func (c *console) submit(ctx context.Context, line string) error {
	handled, err := c.handler.Handle(ctx, line)
	if handled {
		return err
	}
	future, err := c.service.Shell(ctx, schema.ShellRequest{Line: line})
	if err != nil {
		_ = c.service.AppendSystemOutput(ctx, schema.AppendSystemOutputRequest{Lines: []string{"error: " + err.Error()}})
		return err
	}
	res, err := future.Wait(ctx)
	if err != nil {
		return err
	}
	if res.Err != nil {
		_ = c.service.AppendSystemOutput(ctx, schema.AppendSystemOutputRequest{Lines: []string{"error: " + res.Err.Error()}})
		return res.Err
	}
	return nil
}

// drain prints every queued event without blocking.
func (c *console) drain() {
	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			c.print(ev)
		default:
			return
		}
	}
}

func (c *console) print(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.EventTranscript:
		lines := ev.Transcript.Line.Lines()
		if len(lines) > 0 {
			lines = lines[1:]
		}
		for _, line := range lines {
			_, _ = fmt.Fprintln(c.out, line)
		}
	case eventbus.EventClear:
		_, _ = fmt.Fprint(c.out, clearScreen)
	case eventbus.EventSystemOutput:
		for _, line := range ev.System.Lines {
			_, _ = fmt.Fprintln(c.out, line)
		}
	case eventbus.EventSession:
		switch ev.Session.Type {
		case schema.SessionConnected:
			_, _ = fmt.Fprintf(c.out, "status: connected to %s@%s\n", ev.Session.User, ev.Session.Host)
		case schema.SessionConnectFailed:
			_, _ = fmt.Fprintf(c.out, "status: connect to %s@%s failed: %s\n", ev.Session.User, ev.Session.Host, ev.Session.Reason)
		}
	}
}

// parseTarget splits [user@]host[:port]. A non-empty user overrides the prefix.
func parseTarget(arg, user string) (target, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return target{}, errors.New("target host is required")
	}
	hostPart := arg
	if idx := strings.LastIndex(arg, "@"); idx >= 0 {
		if user == "" {
			user = arg[:idx]
		}
		hostPart = arg[idx+1:]
	}
	var port int
	if host, portText, err := net.SplitHostPort(hostPart); err == nil {
		p, err := strconv.Atoi(portText)
		if err != nil || p < 1 || p > 65535 {
			return target{}, fmt.Errorf("invalid port %q", portText)
		}
		hostPart = host
		port = p
	}
	hostPart = strings.Trim(hostPart, "[]")
	if hostPart == "" {
		return target{}, errors.New("target host is required")
	}
	if user == "" {
		user = os.Getenv("USER")
	}
	if user == "" {
		return target{}, errors.New("login user is required")
	}
	return target{Entry: schema.HostEntry{Host: hostPart, Username: user}, Port: port}, nil
}

func resolveSecret(cmd *cobra.Command, in *bufio.Reader, identity string, fromStdin bool, entry schema.HostEntry) (string, error) {
	if identity != "" {
		data, err := os.ReadFile(identity)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return readSecretFrom(cmd, in, fromStdin, fmt.Sprintf("%s@%s's password: ", entry.Username, entry.Host))
}

func readSecretFrom(cmd *cobra.Command, in *bufio.Reader, fromStdin bool, prompt string) (string, error) {
	if fromStdin {
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read secret from stdin: %w", err)
		}
		secret := strings.TrimRight(line, "\r\n")
		if secret == "" {
			return "", errors.New("secret from stdin is empty")
		}
		return secret, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal; use --secret-from-stdin or --identity")
	}
	_, _ = fmt.Fprint(cmd.ErrOrStderr(), prompt)
	secret, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", err
	}
	return string(secret), nil
}
