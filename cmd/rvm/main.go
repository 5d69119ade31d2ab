// Command rvm assembles and executes reversible stack-machine programs.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"rvm/internal/asmx"
	"rvm/internal/debugger"
	"rvm/internal/entropy"
	"rvm/internal/sizeunit"
	"rvm/internal/source"
	"rvm/internal/vm"
)

const (
	defaultStackSize  = 1024
	defaultMemorySize = 102400
)

func main() {
	app := cli.NewApp()
	app.Name = "rvm"
	app.Usage = "Assemble and execute reversible stack-machine programs"
	app.Version = "1.0.0"
	app.ArgsUsage = "FILE"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "information, i",
			Usage: "print entry address and section sizes after assembling, then exit",
		},
		cli.BoolFlag{
			Name:  "quiet, q",
			Usage: "suppress the final stack dump",
		},
		cli.BoolFlag{
			Name:  "debug, d",
			Usage: "run under the interactive debugger",
		},
		cli.StringFlag{
			Name:  "stacksize, s",
			Value: "1024",
			Usage: "stack capacity, e.g. 1024, 64k, 1m, 2g",
		},
		cli.StringFlag{
			Name:  "memsize, m",
			Value: "102400",
			Usage: "memory capacity, e.g. 102400, 64k, 1m, 2g",
		},
		cli.BoolFlag{
			Name:  "e",
			Usage: "report entropy as a hamming-weight bit count after execution",
		},
		cli.BoolFlag{
			Name:  "E",
			Usage: "report entropy as a word-difference count after execution",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, "[ERROR]", exitErr.Error())
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, "[ERROR]", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.NewExitError("no input file given", 2)
	}
	file := c.Args().First()

	f, err := os.Open(file)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("cannot open %s: %v", file, err), 1)
	}
	defer f.Close()

	program, err := source.Parse(f)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	memoryLayout, code, entry, err := asmx.Assemble(program)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	if c.Bool("information") {
		fmt.Printf("entry=%d code_words=%d data_words=%d\n", entry, len(code), len(memoryLayout))
		return nil
	}

	stackSize, err := sizeunit.Parse(c.String("stacksize"))
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	if stackSize == 0 {
		stackSize = defaultStackSize
	}

	memorySize, err := sizeunit.Parse(c.String("memsize"))
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	if memorySize == 0 {
		memorySize = defaultMemorySize
	}

	machine, err := vm.New(code, memoryLayout, memorySize, stackSize, entry)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	if c.Bool("debug") {
		err = debugger.Run(machine, os.Stdin, os.Stdout)
	} else {
		err = machine.Run()
	}
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	if !c.Bool("quiet") {
		printStack(machine)
	}

	reportEntropyIfRequested(c, memoryLayout, machine)

	return nil
}

func printStack(m *vm.VM) {
	if m.SP == 0 {
		fmt.Println("Stack is empty.")
		return
	}
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for i := m.SP - 1; i >= 0; i-- {
		fmt.Fprintln(w, m.Stack[i])
	}
}

func reportEntropyIfRequested(c *cli.Context, memoryLayout map[int32]int32, m *vm.VM) {
	measure := entropy.None
	switch {
	case c.Bool("e"):
		measure = entropy.HammingWeight
	case c.Bool("E"):
		measure = entropy.WordDifference
	}
	entropy.Report(os.Stderr, measure, memoryLayout, m)
}
