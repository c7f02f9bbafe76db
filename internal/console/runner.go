// Package console runs allow-listed network diagnostic commands and streams
// their output line by line.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ispledger/internal/log"
)

// DefaultTimeout bounds how long a command may run.
const DefaultTimeout = 2 * time.Minute

type EventKind string

const (
	EventStarted EventKind = "cmd_started"
	EventOutput  EventKind = "cmd_output"
	EventDone    EventKind = "cmd_done"
	EventKilled  EventKind = "cmd_killed"
	EventError   EventKind = "cmd_error"
)

// Event is one notification about a running command.
type Event struct {
	Kind     EventKind `json:"type"`
	ID       string    `json:"id"`
	PID      int       `json:"pid,omitempty"`
	Line     string    `json:"line,omitempty"`
	IsError  bool      `json:"isError,omitempty"`
	ExitCode *int      `json:"exitCode,omitempty"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"timestamp"`
}

// Sink receives events. It is called from several goroutines.
type Sink func(Event)

// Command maps a user-facing command name to an executable.
type Command struct {
	Path string
	// Args rewrites the user arguments before execution.
	Args func(args []string) []string
}

var (
	ErrNotAllowed   = errors.New("command not allowed")
	ErrInvalidArg   = errors.New("invalid argument")
	ErrUnknownID    = errors.New("no such command")
	ErrDuplicateID  = errors.New("command id already running")
	safeArg         = regexp.MustCompile(`^[A-Za-z0-9._:/-]+$`)
	errKilled       = errors.New("killed")
	defaultPingHost = "8.8.8.8"
)

// DefaultCommands returns the diagnostic commands for the current OS.
func DefaultCommands() map[string]Command {
	return commandsFor(runtime.GOOS)
}

func commandsFor(goos string) map[string]Command {
	if goos == "windows" {
		return map[string]Command{
			"ping":     {Path: "ping", Args: pingArgs},
			"tracert":  {Path: "tracert"},
			"nslookup": {Path: "nslookup"},
			"ipconfig": {Path: "ipconfig"},
		}
	}
	return map[string]Command{
		"ping":       {Path: "ping", Args: unixPingArgs},
		"traceroute": {Path: "traceroute"},
		"tracert":    {Path: "traceroute"},
		"nslookup":   {Path: "nslookup"},
		"ipconfig":   {Path: "ip", Args: func([]string) []string { return []string{"addr"} }},
		"ip":         {Path: "ip"},
	}
}

func pingArgs(args []string) []string {
	if len(args) == 0 {
		return []string{defaultPingHost}
	}
	return args
}

// unixPingArgs translates the Windows style "-t" (ping until stopped) and
// otherwise limits the run to four echo requests.
func unixPingArgs(args []string) []string {
	infinite := false
	var out []string
	for _, a := range args {
		if a == "-t" {
			infinite = true
			continue
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		out = []string{defaultPingHost}
	}
	if !infinite {
		out = append([]string{"-c", "4"}, out...)
	}
	return out
}

type process struct {
	cancel context.CancelCauseFunc
}

// Runner starts commands by caller-chosen id.
type Runner struct {
	mu       sync.Mutex
	running  map[string]*process
	commands map[string]Command
	timeout  time.Duration
	logger   *log.Logger
	now      func() time.Time
}

type Option func(*Runner)

// WithCommands replaces the allow-list.
func WithCommands(cmds map[string]Command) Option {
	return func(r *Runner) { r.commands = cmds }
}

func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		running:  make(map[string]*process),
		commands: DefaultCommands(),
		timeout:  DefaultTimeout,
		logger:   log.FromSlog(nil, log.ComponentConsole),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Parse splits a command line and resolves it against the allow-list.
func (r *Runner) Parse(line string) (Command, []string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, nil, fmt.Errorf("%w: empty command", ErrNotAllowed)
	}
	name := strings.ToLower(fields[0])
	cmd, ok := r.commands[name]
	if !ok {
		return Command{}, nil, fmt.Errorf("%w: %s", ErrNotAllowed, name)
	}
	args := fields[1:]
	for _, a := range args {
		if !safeArg.MatchString(a) {
			return Command{}, nil, fmt.Errorf("%w: %q", ErrInvalidArg, a)
		}
	}
	if cmd.Args != nil {
		args = cmd.Args(args)
	}
	return cmd, args, nil
}

// Start launches line under id and returns once the process has started.
// Output and the final status are delivered to sink.
func (r *Runner) Start(ctx context.Context, id, line string, sink Sink) error {
	cmd, args, err := r.Parse(line)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if _, busy := r.running[id]; busy {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	runCtx, cancelTimeout := context.WithTimeout(runCtx, r.timeout)
	r.running[id] = &process{cancel: cancel}
	r.mu.Unlock()

	c := exec.CommandContext(runCtx, cmd.Path, args...)
	c.WaitDelay = time.Second
	fail := func(err error) error {
		cancelTimeout()
		r.forget(id)
		return fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	stdout, err := c.StdoutPipe()
	if err != nil {
		return fail(err)
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return fail(err)
	}
	if err := c.Start(); err != nil {
		return fail(err)
	}

	r.logger.InfoContext(ctx, "Command started", log.FieldAction, cmd.Path, "id", id, "pid", c.Process.Pid)
	sink(Event{Kind: EventStarted, ID: id, PID: c.Process.Pid, Time: r.now()})
	go r.wait(runCtx, cancelTimeout, id, c, stdout, stderr, sink)
	return nil
}

func (r *Runner) wait(ctx context.Context, done context.CancelFunc, id string, c *exec.Cmd, stdout, stderr io.Reader, sink Sink) {
	defer done()
	defer r.forget(id)

	var g errgroup.Group
	g.Go(func() error { return r.stream(id, stdout, false, sink) })
	g.Go(func() error { return r.stream(id, stderr, true, sink) })
	_ = g.Wait()
	err := c.Wait()

	code := c.ProcessState.ExitCode()
	ev := Event{ID: id, ExitCode: &code, Time: r.now()}
	switch {
	case errors.Is(context.Cause(ctx), errKilled):
		ev.Kind = EventKilled
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		ev.Kind = EventKilled
		ev.Message = "timed out"
	case err != nil && code < 0:
		ev.Kind = EventError
		ev.Message = err.Error()
	default:
		ev.Kind = EventDone
	}
	r.logger.Info("Command finished", "id", id, "exit_code", code, "result", ev.Kind)
	sink(ev)
}

func (r *Runner) stream(id string, rd io.Reader, isErr bool, sink Sink) error {
	sc := bufio.NewScanner(rd)
	for sc.Scan() {
		sink(Event{Kind: EventOutput, ID: id, Line: sc.Text(), IsError: isErr, Time: r.now()})
	}
	return sc.Err()
}

func (r *Runner) forget(id string) {
	r.mu.Lock()
	if p, ok := r.running[id]; ok {
		p.cancel(nil)
		delete(r.running, id)
	}
	r.mu.Unlock()
}

// Kill stops a running command. The sink receives cmd_killed.
func (r *Runner) Kill(id string) error {
	r.mu.Lock()
	p, ok := r.running[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownID, id)
	}
	p.cancel(errKilled)
	return nil
}

// Running returns the ids of commands still running.
func (r *Runner) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.running))
	for id := range r.running {
		out = append(out, id)
	}
	return out
}

// KillAll stops every running command, used on shutdown.
func (r *Runner) KillAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.running {
		p.cancel(errKilled)
	}
}
