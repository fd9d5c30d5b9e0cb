package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/minigc/vm"
	"github.com/chazu/minigc/vm/image"
)

// errUnknownCommand is returned for lines that name no command.
var errUnknownCommand = errors.New("unknown command")

// Runner feeds stack commands to a VM and prints results.
type Runner struct {
	vm  *vm.VM
	out io.Writer
	log commonlog.Logger
}

// NewRunner creates a Runner driving v, printing to out.
func NewRunner(v *vm.VM, out io.Writer) *Runner {
	return &Runner{
		vm:  v,
		out: out,
		log: commonlog.GetLogger("minigc.gcsim"),
	}
}

// Run executes every line of in and stops at the first failing command.
// Errors carry the source name and line number.
func (r *Runner) Run(name string, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := r.Exec(scanner.Text()); err != nil {
			return fmt.Errorf("%s:%d: %w", name, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Exec runs a single command line. Blank lines and # comments are no-ops.
func (r *Runner) Exec(line string) error {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	cmd, args := fields[0], fields[1:]
	r.log.Debugf("exec %s %v", cmd, args)

	switch cmd {
	case "int", "push":
		if len(args) != 1 {
			return fmt.Errorf("%s: want 1 argument, got %d", cmd, len(args))
		}
		n, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
		return vm.Guard(func() { r.vm.PushInt(n) })

	case "pair":
		return vm.Guard(func() { r.vm.PushPair() })

	case "pop":
		var id vm.ObjectID
		if err := vm.Guard(func() { id = r.vm.Pop() }); err != nil {
			return err
		}
		fmt.Fprintln(r.out, vm.FormatObject(r.vm, id))
		return nil

	case "gc", "collect":
		s := r.vm.Collect()
		fmt.Fprintf(r.out, "gc #%d: marked %d, swept %d, live %d, next at %d (%s)\n",
			s.Cycle, s.Marked, s.Swept, s.Survivors, s.ThresholdAfter, s.Duration)
		return nil

	case "stats":
		r.printStats()
		return nil

	case "stack":
		for i, id := range r.vm.Stack() {
			fmt.Fprintf(r.out, "[%d] #%d %s\n", i, id, vm.FormatObject(r.vm, id))
		}
		return nil

	case "inspect":
		depth := vm.DefaultMaxDepth
		if len(args) > 0 {
			d, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("inspect: %w", err)
			}
			depth = d
		}
		top := r.vm.Peek(0)
		if top == vm.NoObject {
			return fmt.Errorf("inspect: %w", vm.ErrStackUnderflow)
		}
		fmt.Fprint(r.out, vm.NewInspector(r.vm).InspectDepth(top, depth).PrettyPrint())
		return nil

	case "heap":
		r.vm.EachObject(func(id vm.ObjectID, v vm.Value) bool {
			fmt.Fprintf(r.out, "#%d %s %s\n", id, v.Kind(), v)
			return true
		})
		return nil

	case "save":
		if len(args) != 1 {
			return fmt.Errorf("save: want a path")
		}
		if err := image.WriteFile(args[0], r.vm.Snapshot()); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "saved %d objects to %s\n", r.vm.HeapObjects(), args[0])
		return nil

	case "help":
		printCommands(r.out)
		return nil
	}
	return fmt.Errorf("%w: %s", errUnknownCommand, cmd)
}

func (r *Runner) printStats() {
	fmt.Fprintf(r.out, "stack:   %d/%d\n", r.vm.StackSize(), r.vm.StackCapacity())
	fmt.Fprintf(r.out, "objects: %d (next gc at %d)\n", r.vm.NumObjects(), r.vm.MaxObjects())
	fmt.Fprintf(r.out, "cycles:  %d\n", r.vm.CycleCount())
}

func printCommands(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  int N, push N     Push a new integer")
	fmt.Fprintln(w, "  pair              Pop two values and push a pair of them")
	fmt.Fprintln(w, "  pop               Pop and print the top value")
	fmt.Fprintln(w, "  gc, collect       Run a collection cycle")
	fmt.Fprintln(w, "  stats             Show stack and heap counters")
	fmt.Fprintln(w, "  stack             Print every stack slot")
	fmt.Fprintln(w, "  inspect [depth]   Inspect the top of the stack")
	fmt.Fprintln(w, "  heap              List the object list, newest first")
	fmt.Fprintln(w, "  save PATH         Write a heap image")
	fmt.Fprintln(w, "  exit, quit        Leave the prompt")
}

// runREPL reads commands interactively until EOF or exit.
func runREPL(r *Runner, in io.Reader) {
	fmt.Fprintln(r.out, "gcsim (type 'exit' to quit, 'help' for commands)")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, ">> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "exit" || line == "quit" {
			break
		}
		if err := r.Exec(line); err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
	}
	fmt.Fprintln(r.out)
}
