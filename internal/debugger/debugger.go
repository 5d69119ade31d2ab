// Package debugger implements the interactive REPL: single-stepping,
// breakpoints, and inspection/mutation of machine components.
package debugger

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"rvm/internal/vm"
)

// State holds everything the REPL needs across commands, independent
// of the machine itself.
type State struct {
	Breakpoints    map[int32]bool
	RemainingSteps uint32
	ContinueRunning bool
	Exit           bool
	LastLine       string
}

func NewState() *State {
	return &State{Breakpoints: make(map[int32]bool)}
}

// continueMode tells the REPL loop whether to keep prompting the user
// or to go execute instructions.
type continueMode int

const (
	PromptUser continueMode = iota
	ContinueExecution
)

// Command is one named debugger command, optionally reachable under
// aliases, matching the command table's shape in the original
// implementation.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Run         func(m *vm.VM, s *State, out io.Writer, args []string) continueMode
}

// Commands is the full set of REPL commands, in help-listing order.
var Commands = []Command{
	{"info", nil, "Shows information about the machine state.", cmdInfo},
	{"step", []string{"s"}, "Execute the next instruction.", cmdStep},
	{"run", []string{"r", "continue", "c"}, "Execute instructions until a breakpoint is hit or the program terminates.", cmdRun},
	{"breakpoint", []string{"break", "b"}, "Create a breakpoint at the given instruction.", cmdBreakpointCreate},
	{"clear", nil, "Clears a breakpoint at the given instruction.", cmdBreakpointClear},
	{"list", nil, "List all created breakpoints.", cmdBreakpointList},
	{"inspect", []string{"i"}, "Inspect the value of a machine component.", cmdInspect},
	{"set", nil, "Set the value of a machine component.", cmdSet},
	{"invert", nil, "Inverts the execution direction of the machine.", cmdInvert},
	{"quit", []string{"q"}, "Exits the debugger, terminating the program.", cmdQuit},
}

var commandByToken map[string]*Command

func init() {
	// help lists Commands, so it is appended here rather than in the
	// literal above to avoid an initialization cycle.
	Commands = append(Commands, Command{"help", nil, "Display an overview of available commands.", cmdHelp})

	commandByToken = make(map[string]*Command, len(Commands)*2)
	for i := range Commands {
		c := &Commands[i]
		commandByToken[c.Name] = c
		for _, alias := range c.Aliases {
			commandByToken[alias] = c
		}
	}
}

func invertDirection(m *vm.VM) {
	m.Dir = m.Dir.Invert()
	m.StepPC()
}

func cmdInfo(m *vm.VM, _ *State, out io.Writer, _ []string) continueMode {
	PrintMachineState(out, m)
	return PromptUser
}

func cmdStep(m *vm.VM, s *State, out io.Writer, args []string) continueMode {
	steps := int32(1)
	if len(args) >= 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(out, "`%s' is not a valid number: %v\n", args[1], err)
		} else {
			steps = int32(n)
		}
	}

	if steps < 0 {
		invertDirection(m)
		s.RemainingSteps = uint32(-steps)
	} else {
		s.RemainingSteps = uint32(steps)
	}
	return ContinueExecution
}

func cmdRun(_ *vm.VM, s *State, _ io.Writer, _ []string) continueMode {
	s.ContinueRunning = true
	return ContinueExecution
}

func cmdBreakpointCreate(_ *vm.VM, s *State, out io.Writer, args []string) continueMode {
	for _, arg := range args[1:] {
		n, err := strconv.Atoi(arg)
		if err != nil {
			fmt.Fprintf(out, "Failed to create breakpoint: %v\n", err)
			continue
		}
		if !s.Breakpoints[int32(n)] {
			s.Breakpoints[int32(n)] = true
			fmt.Fprintf(out, "Created breakpoint at %d.\n", n)
		}
	}
	return PromptUser
}

func cmdBreakpointClear(_ *vm.VM, s *State, out io.Writer, args []string) continueMode {
	for _, arg := range args[1:] {
		n, err := strconv.Atoi(arg)
		if err != nil {
			fmt.Fprintf(out, "Failed to remove breakpoint: %v\n", err)
			continue
		}
		if s.Breakpoints[int32(n)] {
			delete(s.Breakpoints, int32(n))
			fmt.Fprintf(out, "Removed breakpoint at %d.\n", n)
		}
	}
	return PromptUser
}

func cmdBreakpointList(_ *vm.VM, s *State, out io.Writer, _ []string) continueMode {
	if len(s.Breakpoints) == 0 {
		fmt.Fprintln(out, "No breakpoints set.")
		return PromptUser
	}
	fmt.Fprintf(out, "There are %d active breakpoints: \n", len(s.Breakpoints))
	addrs := make([]int32, 0, len(s.Breakpoints))
	for addr := range s.Breakpoints {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	for _, addr := range addrs {
		fmt.Fprintf(out, " at line %d\n", addr)
	}
	return PromptUser
}

// componentFromString resolves a component specifier to a pointer at
// that machine word. S addresses the stack, M addresses memory, and P
// addresses the read-only program — the corrected mapping; the
// original implementation this machine is modeled on has S and M
// swapped.
func componentFromString(m *vm.VM, spec string, isWrite bool) (*int32, error) {
	switch spec {
	case "sp":
		return &m.SP, nil
	case "fp":
		return &m.FP, nil
	case "br":
		return &m.BR, nil
	case "pc":
		return &m.PC, nil
	}

	if len(spec) > 2 && (strings.HasPrefix(spec, "S[") || strings.HasPrefix(spec, "M[") || strings.HasPrefix(spec, "P[")) {
		inner := strings.TrimSuffix(spec[2:], "]")
		addr, err := strconv.Atoi(inner)
		if err != nil {
			return nil, fmt.Errorf("`%s' does not describe a machine component.", spec)
		}
		switch spec[0] {
		case 'S':
			if addr < 0 || addr >= len(m.Stack) {
				return nil, fmt.Errorf("stack index %d out of range", addr)
			}
			return &m.Stack[addr], nil
		case 'M':
			if addr < 0 || addr >= len(m.Memory) {
				return nil, fmt.Errorf("memory index %d out of range", addr)
			}
			return &m.Memory[addr], nil
		case 'P':
			if isWrite {
				return nil, fmt.Errorf("Writing to program memory is not allowed!")
			}
			if addr < 0 || addr >= len(m.Program) {
				return nil, fmt.Errorf("program index %d out of range", addr)
			}
			return &m.Program[addr], nil
		}
	}

	return nil, fmt.Errorf("Specifier `%s' does not describe a machine component.", spec)
}

func cmdInspect(m *vm.VM, _ *State, out io.Writer, args []string) continueMode {
	if len(args) <= 1 {
		fmt.Fprintln(out, "Please specify the machine component you want to inspect.")
		return PromptUser
	}
	for _, arg := range args[1:] {
		value, err := componentFromString(m, arg, false)
		if err != nil {
			fmt.Fprintf(out, "Failed inspect value: %v\n", err)
			continue
		}
		fmt.Fprintf(out, " %s = %d\n", arg, *value)
	}
	return PromptUser
}

func cmdSet(m *vm.VM, _ *State, out io.Writer, args []string) continueMode {
	for i := 1; i+1 < len(args); i += 2 {
		component, err := componentFromString(m, args[i], true)
		if err != nil {
			fmt.Fprintf(out, "Failed to set value: %v\n", err)
			continue
		}
		n, err := strconv.Atoi(args[i+1])
		if err != nil {
			fmt.Fprintf(out, "Failed to set value: %v\n", err)
			continue
		}
		*component = int32(n)
		fmt.Fprintf(out, " %s = %d\n", args[i], *component)
	}
	return PromptUser
}

func cmdInvert(m *vm.VM, _ *State, out io.Writer, _ []string) continueMode {
	invertDirection(m)
	fmt.Fprintf(out, "Direction is now %s.\n", m.Dir)
	return PromptUser
}

func cmdQuit(_ *vm.VM, s *State, _ io.Writer, _ []string) continueMode {
	s.Exit = true
	return ContinueExecution
}

func cmdHelp(_ *vm.VM, _ *State, out io.Writer, _ []string) continueMode {
	for _, c := range Commands {
		fmt.Fprintf(out, "%-10s - %s\n", c.Name, c.Description)
	}
	return PromptUser
}

// PrintMachineState writes a snapshot of the machine's registers,
// followed by either the current stack frame (when one is active) or
// the last 10 stack entries.
func PrintMachineState(out io.Writer, m *vm.VM) {
	fmt.Fprintf(out, "pc=%d br=%d sp=%d fp=%d dir=%s running=%t counter=%d\n",
		m.PC, m.BR, m.SP, m.FP, m.Dir, m.Running, m.Counter)

	if m.FrameDepth > 0 {
		fmt.Fprintf(out, "frame [%d:%d]:\n", m.FP, m.SP)
		for i := m.SP - 1; i >= m.FP; i-- {
			fmt.Fprintf(out, " %d: %d\n", i, m.Stack[i])
		}
		return
	}

	start := m.SP - 10
	if start < 0 {
		start = 0
	}
	fmt.Fprintln(out, "stack:")
	for i := m.SP - 1; i >= start; i-- {
		fmt.Fprintf(out, " %d: %d\n", i, m.Stack[i])
	}
}

func requiresUserInteraction(m *vm.VM, s *State) bool {
	if s.Breakpoints[m.PC] && !s.ContinueRunning {
		return true
	}
	if s.ContinueRunning {
		return s.Breakpoints[m.PC]
	}
	return s.RemainingSteps == 0
}

func stepDebuggerState(s *State) {
	if s.RemainingSteps > 0 {
		s.RemainingSteps--
	}
}

func interactWithUser(m *vm.VM, s *State, in *bufio.Scanner, out io.Writer) {
	for {
		fmt.Fprint(out, "(debug) ")
		if !in.Scan() {
			s.Exit = true
			return
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			if s.LastLine == "" {
				continue
			}
			line = s.LastLine
		} else {
			s.LastLine = line
		}
		args := strings.Fields(line)
		cmd, ok := commandByToken[args[0]]
		if !ok {
			fmt.Fprintf(out, "Unknown command `%s'. Try 'help'.\n", args[0])
			continue
		}
		if cmd.Run(m, s, out, args) == ContinueExecution {
			return
		}
	}
}

// Run drives the interactive debugger loop over m until the user
// quits or the program stops running. Input is read line by line from
// in; output (prompts, inspection results) is written to out.
func Run(m *vm.VM, in io.Reader, out io.Writer) error {
	s := NewState()
	scanner := bufio.NewScanner(in)

	for {
		if requiresUserInteraction(m, s) {
			interactWithUser(m, s, scanner, out)
			if s.Exit {
				return nil
			}
		}
		if err := m.Step(); err != nil {
			return err
		}
		stepDebuggerState(s)
		if s.Breakpoints[m.PC] {
			s.ContinueRunning = false
		}
		if !m.Running {
			return nil
		}
	}
}
