package passthrough

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/crestkit/crestctl/internal/ports"
)

// Console reply literals. These exact strings are the wire contract with
// Crestron firmware; they are matched case-insensitively but must not be
// reworded.
const (
	ReplyProgramStopped = "Program Stopped"
	ReplyProgramStarted = "Program(s) Started..."
	ReplyInvalidProgram = "ERROR:Invalid Program Identifier specified."
)

// ReplyProgramRegistered returns the registration confirmation for a
// program slot, e.g. "Program 1 is registered".
func ReplyProgramRegistered(slot int) string {
	return fmt.Sprintf("Program %d is registered", slot)
}

// CommandEnv is what a local sub-command gets to work with: the live
// session transport, a matcher bound to the session clock, and the
// terminal. Sub-commands run synchronously inside the session loop; they
// are the only other writers the transport ever sees.
type CommandEnv struct {
	Transport ports.Transport
	Matcher   *Matcher
	Out       io.Writer
	Timeout   time.Duration
	Status    func() Status
}

// CommandFunc executes one local sub-command. A non-nil error is reported
// inline to the terminal; the session continues either way.
type CommandFunc func(ctx context.Context, env *CommandEnv, args []string) error

// CommandSet maps sub-command names (the text after the escape marker) to
// their implementations.
type CommandSet struct {
	cmds map[string]CommandFunc
}

// NewCommandSet creates an empty command set.
func NewCommandSet() *CommandSet {
	return &CommandSet{cmds: make(map[string]CommandFunc)}
}

// Register adds or replaces a sub-command.
func (cs *CommandSet) Register(name string, fn CommandFunc) {
	cs.cmds[strings.ToLower(name)] = fn
}

// Names returns the registered command names, sorted.
func (cs *CommandSet) Names() []string {
	names := make([]string, 0, len(cs.cmds))
	for name := range cs.cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch parses a stripped escape line ("kill 1") and runs the matching
// sub-command. Unknown commands are an error for inline reporting, never
// fatal to the session.
func (cs *CommandSet) Dispatch(ctx context.Context, env *CommandEnv, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return fmt.Errorf("empty command")
	}

	name := strings.ToLower(fields[0])
	fn, ok := cs.cmds[name]
	if !ok {
		return fmt.Errorf("unknown command %q (have: %s)", name, strings.Join(cs.Names(), ", "))
	}

	return fn(ctx, env, fields[1:])
}

// DefaultCommands returns the stock sub-command set: program lifecycle
// operations scripted over the live console, plus session status.
func DefaultCommands() *CommandSet {
	cs := NewCommandSet()
	cs.Register("kill", killCommand)
	cs.Register("start", startCommand)
	cs.Register("register", registerCommand)
	cs.Register("status", statusCommand)
	return cs
}

func parseSlot(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected a program slot number")
	}
	slot, err := strconv.Atoi(args[0])
	if err != nil || slot < 1 {
		return 0, fmt.Errorf("invalid program slot %q", args[0])
	}
	return slot, nil
}

// killCommand stops the program in a slot and waits for the device to
// confirm.
func killCommand(ctx context.Context, env *CommandEnv, args []string) error {
	slot, err := parseSlot(args)
	if err != nil {
		return err
	}

	if err := env.Transport.WriteLine(fmt.Sprintf("stopprog -p:%d", slot)); err != nil {
		return fmt.Errorf("send stopprog: %w", err)
	}

	ok, err := env.Matcher.Await(ctx, env.Transport, CompletionSpec{
		Success: []string{ReplyProgramStopped},
		Failure: []string{ReplyInvalidProgram},
		Timeout: env.Timeout,
		Echo:    true,
		EchoTo:  env.Out,
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("program %d did not stop", slot)
	}
	return nil
}

// startCommand restarts the program in a slot.
func startCommand(ctx context.Context, env *CommandEnv, args []string) error {
	slot, err := parseSlot(args)
	if err != nil {
		return err
	}

	if err := env.Transport.WriteLine(fmt.Sprintf("progreset -p:%d", slot)); err != nil {
		return fmt.Errorf("send progreset: %w", err)
	}

	ok, err := env.Matcher.Await(ctx, env.Transport, CompletionSpec{
		Success: []string{ReplyProgramStarted},
		Failure: []string{ReplyInvalidProgram},
		Timeout: env.Timeout,
		Echo:    true,
		EchoTo:  env.Out,
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("program %d did not start", slot)
	}
	return nil
}

// registerCommand registers the program in a slot with the control system.
func registerCommand(ctx context.Context, env *CommandEnv, args []string) error {
	slot, err := parseSlot(args)
	if err != nil {
		return err
	}

	if err := env.Transport.WriteLine(fmt.Sprintf("progregister -p:%d", slot)); err != nil {
		return fmt.Errorf("send progregister: %w", err)
	}

	ok, err := env.Matcher.Await(ctx, env.Transport, CompletionSpec{
		Success: []string{ReplyProgramRegistered(slot)},
		Failure: []string{ReplyInvalidProgram},
		Timeout: env.Timeout,
		Echo:    true,
		EchoTo:  env.Out,
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("program %d was not registered", slot)
	}
	return nil
}

// statusCommand prints the session state locally; it never touches the
// transport.
func statusCommand(ctx context.Context, env *CommandEnv, args []string) error {
	status := StatusConnected
	if env.Status != nil {
		status = env.Status()
	}
	fmt.Fprintf(env.Out, "session %s\r\n", status)
	return nil
}
