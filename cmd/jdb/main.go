package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/joaoLouceiro/jdb/tracee"
)

type command struct {
	name string
	run  func(*tracee.Tracee, []string) error
}

var commands = []command{
	{
		name: "continue",
		run:  continueCmd,
	},
	{
		name: "register",
		run:  registerCmd,
	},
	{
		name: "help",
		run:  helpCmd,
	},
}

func continueCmd(t *tracee.Tracee, args []string) error {
	err := t.Resume()
	if err != nil {
		return err
	}

	reason, err := t.WaitOnSignal()
	if err != nil {
		return err
	}

	fmt.Println(reason)
	return nil
}

func helpCmd(t *tracee.Tracee, args []string) error {
	fmt.Println("available commands:")
	fmt.Println("  continue")
	fmt.Println("  register read [all|<name>]")
	fmt.Println("  register write <name> <value>")
	fmt.Println("  help")
	return nil
}

func main() {
	// Launch re-execs this very binary as a single-threaded trampoline to
	// request tracing and exec the real target; intercept that re-exec
	// before anything else in main runs.
	if tracee.IsTrampoline() {
		tracee.RunTrampoline()
		return
	}

	pid := 0
	flag.IntVar(&pid, "p", 0, "attach to existing process pid")
	flag.Parse()
	args := flag.Args()

	var t *tracee.Tracee
	var err error
	if pid != 0 {
		if len(args) != 0 {
			fmt.Fprintln(os.Stderr, "unexpected arguments")
			os.Exit(-1)
		}
		t, err = tracee.Attach(pid)
	} else if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "no arguments given")
		os.Exit(-1)
	} else {
		t, err = tracee.Launch(args[0], args[1:], tracee.LaunchOptions{Debug: true})
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
	defer t.Close()

	fmt.Println("attached to process", t.Pid())

	rl, err := readline.New("jdb > ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
	defer rl.Close()

	lastLine := ""
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				break
			}
			fmt.Fprintln(os.Stderr, err)
			os.Exit(-1)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			line = lastLine
		}
		lastLine = line

		if line == "" {
			continue
		}

		words := strings.Split(line, " ")
		if words[0] == "" {
			fmt.Println("invalid command: (empty string)")
			continue
		}

		found := false
		for _, cmd := range commands {
			if strings.HasPrefix(cmd.name, words[0]) {
				found = true
				err := cmd.run(t, words[1:])
				if err != nil {
					fmt.Println(err)
				}
			}
		}

		if !found {
			fmt.Println("invalid command:", words[0])
		}
	}
}
