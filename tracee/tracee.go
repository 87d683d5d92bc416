// Package tracee owns the lifecycle of one traced (or attached-to)
// process: launching it under ptrace with the close-on-exec pipe error
// protocol, attaching to an already-running pid, driving its
// stopped/running/exited/terminated state machine, and tearing it down in
// the order the kernel requires.
package tracee

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/joaoLouceiro/jdb/pipe"
	"github.com/joaoLouceiro/jdb/ptrace"
	"github.com/joaoLouceiro/jdb/registers"
	"github.com/joaoLouceiro/jdb/stopreason"
)

// Tracee is a single-owner handle on one traced process. It is not safe
// to share across goroutines.
type Tracee struct {
	tracer *ptrace.Tracer
	regs   *registers.File

	pid int

	state stopreason.StopReason

	isAttached     bool
	terminateOnEnd bool
}

// Pid returns the tracee's process id.
func (t *Tracee) Pid() int {
	return t.pid
}

// State returns the last observed StopReason.
func (t *Tracee) State() stopreason.StopReason {
	return t.state
}

// Registers returns the register file mirroring this tracee's kernel user
// area. Reads are served from the mirror snapshot taken at the last stop.
func (t *Tracee) Registers() *registers.File {
	return t.regs
}

// WriteGprs commits an entire general-purpose register block to the
// kernel in one PTRACE_SETREGS call.
func (t *Tracee) WriteGprs(block *ptrace.UserRegs) error {
	return t.tracer.SetGeneralRegisters(block)
}

// WriteFprs commits an entire floating-point register block to the
// kernel in one PTRACE_SETFPREGS call.
func (t *Tracee) WriteFprs(block *ptrace.UserFPRegs) error {
	return t.tracer.SetFloatingPointRegisters(block)
}

// WriteUserArea pokes a single word of the kernel user area at the given
// byte offset, the interface the register file's debug-register writes
// are built on and the one a caller can reach for directly to poke a
// user-area word the register catalog doesn't name.
func (t *Tracee) WriteUserArea(offset uintptr, data uint64) error {
	return t.tracer.PokeUserArea(offset, uintptr(data))
}

func newTracee(
	tracer *ptrace.Tracer,
	isAttached bool,
	terminateOnEnd bool,
) (*Tracee, error) {
	t := &Tracee{
		tracer:         tracer,
		regs:           registers.NewFile(tracer, registers.NewCatalog()),
		pid:            tracer.Pid,
		isAttached:     isAttached,
		terminateOnEnd: terminateOnEnd,
		// Conceptually stopped until the first WaitOnSignal says otherwise:
		// true immediately for an attached tracee (WaitOnSignal runs below
		// before this value is ever observed), and for a non-attached handle
		// (Debug=false) there is no tracer-side notion of "running" to
		// report, so it stays stopped for the handle's whole lifetime.
		state: stopreason.StopReason{Reason: stopreason.Stopped},
	}

	if isAttached {
		_, err := t.WaitOnSignal()
		if err != nil {
			_ = tracer.Detach()
			return nil, err
		}

		// If this process dies before detaching, don't leave the tracee
		// parked under a dead tracer.
		err = tracer.SetOptions(ptrace.O_EXITKILL)
		if err != nil {
			_ = tracer.Detach()
			return nil, err
		}
	}

	return t, nil
}

// traceeEnv is the sentinel environment variable that a re-exec of this
// binary checks for to decide whether it is running as the launch
// trampoline rather than as the user's own program.
const traceeEnv = "JDB_TRACEE_TRAMPOLINE=1"

// LaunchOptions configures Launch.
type LaunchOptions struct {
	// Debug requests that the child trace itself via PTRACE_TRACEME before
	// exec, so the parent becomes its tracer across the exec.
	Debug bool

	// Stdout, when non-nil, replaces the child's stdout (fd 1).
	Stdout *os.File
}

// Launch starts path as a child process per the launch protocol: a
// close-on-exec pipe relays any pre-exec failure of the tracing request or
// of the exec itself back to the parent, which distinguishes success from
// failure by reading the pipe to EOF. Stdout replacement (opts.Stdout) is
// done by exec.Cmd's own fd wiring, not by the child side of the protocol:
// a failure there is returned as the error from starting the trampoline,
// and no "stdout replacement failed" message is written to the pipe.
//
// The child side of the protocol runs inside a re-exec trampoline: this
// process is re-invoked as a fresh, single-threaded exec (not a fork) of
// itself, marked by the traceeEnv environment variable and carrying
// "jdb-trampoline" as its first argument, which is the only
// context in which it is safe for ordinary Go code to call
// PTRACE_TRACEME followed directly by execve — a raw fork in a
// multithreaded Go process cannot safely run arbitrary Go code between
// the fork and the exec, but a child produced by exec starts with exactly
// one OS thread.
func Launch(path string, args []string, opts LaunchOptions) (*Tracee, error) {
	p, err := pipe.New()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(trampolinePath(), trampolineArgv(path, args, opts.Debug)...)
	cmd.Env = append(os.Environ(), traceeEnv)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if opts.Stdout != nil {
		cmd.Stdout = opts.Stdout
	}
	cmd.ExtraFiles = []*os.File{p.WriteFile()}

	tracer, err := ptrace.StartProcess(cmd)
	if err != nil {
		_ = p.CloseRead()
		_ = p.CloseWrite()
		return nil, err
	}

	err = p.CloseWrite()
	if err != nil {
		return nil, err
	}

	message, err := p.Read()
	_ = p.CloseRead()
	if err != nil {
		return nil, err
	}

	if len(message) > 0 {
		_, _ = syscall.Wait4(tracer.Pid, nil, 0, nil)
		return nil, fmt.Errorf("%s", string(message))
	}

	return newTracee(tracer, opts.Debug, true)
}

// Attach issues PTRACE_ATTACH against an already-running pid per the
// attach protocol.
func Attach(pid int) (*Tracee, error) {
	if pid == 0 {
		return nil, fmt.Errorf("invalid PID")
	}

	tracer, err := ptrace.AttachToProcess(pid)
	if err != nil {
		return nil, err
	}

	return newTracee(tracer, true, false)
}

// Resume issues ptrace-continue and transitions the state to running. It
// does not block.
func (t *Tracee) Resume() error {
	err := t.tracer.Resume(0)
	if err != nil {
		return fmt.Errorf("failed to resume process %d: %w", t.pid, err)
	}

	t.state = stopreason.StopReason{Reason: stopreason.Running}
	return nil
}

// WaitOnSignal blocks in waitpid with no flags, decodes the resulting
// wait status into a StopReason, and, if the tracee is now stopped and
// this Tracee is attached, refreshes the register file mirror.
func (t *Tracee) WaitOnSignal() (stopreason.StopReason, error) {
	var status syscall.WaitStatus
	_, err := syscall.Wait4(t.pid, &status, 0, nil)
	if err != nil {
		return stopreason.StopReason{}, fmt.Errorf(
			"failed to wait for process %d: %w", t.pid, err)
	}

	t.state = stopreason.Decode(status)

	if t.state.Reason == stopreason.Stopped && t.isAttached {
		err = t.regs.Refresh()
		if err != nil {
			return stopreason.StopReason{}, fmt.Errorf(
				"failed to refresh registers for process %d: %w", t.pid, err)
		}
	}

	return t.state, nil
}

func (t *Tracee) signal(sig syscall.Signal) error {
	err := syscall.Kill(t.pid, sig)
	if err != nil {
		return fmt.Errorf("failed to signal process %d (%v): %w", t.pid, sig, err)
	}
	return nil
}

// Close tears the tracee down per the shutdown protocol: stop a running
// tracee and detach while it is stopped, continue it so it is not left
// parked on SIGSTOP, then kill it if this Tracee owns its lifetime.
// Failures during shutdown are swallowed (best-effort cleanup), matching
// the rest of the core's propagate-abruptly policy: by the time Close
// runs, the caller has already decided it no longer needs this process.
func (t *Tracee) Close() {
	if t.pid == 0 {
		return
	}

	if t.isAttached {
		if t.state.Reason == stopreason.Running {
			if t.signal(syscall.SIGSTOP) == nil {
				_, _ = t.WaitOnSignal()
			}
		}

		_ = t.tracer.Detach()
		_ = t.signal(syscall.SIGCONT)
	}

	if t.terminateOnEnd {
		if t.signal(syscall.SIGKILL) == nil {
			_, _ = t.WaitOnSignal()
		}
	}
}
