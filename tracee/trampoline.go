package tracee

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

// pipeFD is the file descriptor the trampoline's pipe write end lands on:
// exec.Cmd.ExtraFiles always starts immediately after stdin/stdout/stderr.
const pipeFD = 3

func trampolinePath() string {
	return "/proc/self/exe"
}

func trampolineArgv(path string, args []string, debug bool) []string {
	argv := []string{"jdb-trampoline", strconv.FormatBool(debug), path}
	return append(argv, args...)
}

// IsTrampoline reports whether this process was re-exec'd by Launch to
// perform the launch child's side of the close-on-exec pipe protocol. A
// program embedding this package must call RunTrampoline as early as
// possible (before flag parsing, before spawning any goroutine) when this
// returns true.
func IsTrampoline() bool {
	for _, e := range os.Environ() {
		if e == traceeEnv {
			return true
		}
	}
	return false
}

// RunTrampoline performs the launch child's side of the protocol described
// in the Launch doc comment: request tracing if asked, then exec the real
// target. It never returns: on success the process image is replaced by
// the target's; on failure it writes a message to the pipe and exits with
// status -1.
//
// It must run on a freshly exec'd process (one Launch started with
// traceeEnv set, as IsTrampoline checks) so that calling PTRACE_TRACEME and
// syscall.Exec directly, without LockOSThread gymnastics, is safe: a
// process that has just exec'd has exactly one OS thread, and no other
// goroutine can race it into forking or spawning threads before the
// second exec replaces it.
func RunTrampoline() {
	pipeFile := os.NewFile(uintptr(pipeFD), "jdb-launch-pipe")

	fail := func(format string, a ...any) {
		msg := fmt.Sprintf(format, a...)
		_, _ = pipeFile.Write([]byte(msg))
		os.Exit(255)
	}

	if len(os.Args) < 4 {
		fail("trampoline invoked with too few arguments")
	}

	debug, err := strconv.ParseBool(os.Args[2])
	if err != nil {
		fail("trampoline invoked with invalid debug flag: %v", err)
	}

	targetPath, err := exec.LookPath(os.Args[3])
	if err != nil {
		fail("exec failed: %v", err)
	}
	targetArgv := append([]string{os.Args[3]}, os.Args[4:]...)

	if debug {
		err := syscall.PtraceTraceme()
		if err != nil {
			fail("tracing failed: %v", err)
		}
	}

	// A successful exec closes the pipe's write end (it is close-on-exec)
	// with nothing written, which is how the parent distinguishes success
	// from failure. The fd arrived with close-on-exec cleared (ExtraFiles
	// does that for the trampoline's own exec), so it must be re-armed
	// before this second exec.
	syscall.CloseOnExec(pipeFD)

	err = syscall.Exec(targetPath, targetArgv, os.Environ())
	fail("exec failed: %v", err)
}
