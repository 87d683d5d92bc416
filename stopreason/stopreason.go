// Package stopreason names the four process states a debugger needs to
// distinguish: running, stopped (by a signal, with ptrace control),
// signaled (terminated, but not by its own choice), and exited (terminated
// through normal process exit). A wait status decodes into one of the last
// three; running is never decoded from a wait status.
package stopreason

import (
	"fmt"
	"syscall"
)

// Reason is the coarse state a tracee is in after a wait.
type Reason int

const (
	Running Reason = iota
	Stopped
	Exited
	Terminated
)

func (r Reason) String() string {
	switch r {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Exited:
		return "exited"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("stopreason.Reason(%d)", int(r))
	}
}

// StopReason is the decoded result of waiting on a tracee: Reason plus the
// one piece of data that accompanies it (the stopping signal, the exit
// status, or the terminating signal). Info is meaningless when Reason is
// Running.
type StopReason struct {
	Reason Reason
	Info   uint8
}

// Decode classifies a syscall.WaitStatus returned by wait4/waitpid for a
// traced process. Exactly one of WIFEXITED/WIFSIGNALED/WIFSTOPPED is true
// for any status a ptraced tracee can report; Decode does not attempt to
// recover from a status where none are true — such a status indicates a
// wait4 bug or a non-ptrace status passed in error, not a state this
// package can give meaning to, so it panics rather than silently guessing
// a reason.
func Decode(status syscall.WaitStatus) StopReason {
	switch {
	case status.Exited():
		return StopReason{
			Reason: Exited,
			Info:   uint8(status.ExitStatus()),
		}
	case status.Signaled():
		return StopReason{
			Reason: Terminated,
			Info:   uint8(status.Signal()),
		}
	case status.Stopped():
		return StopReason{
			Reason: Stopped,
			Info:   uint8(status.StopSignal()),
		}
	default:
		panic(fmt.Sprintf(
			"wait status %#x matches none of exited/signaled/stopped",
			status))
	}
}

func (r StopReason) String() string {
	switch r.Reason {
	case Running:
		return "running"
	case Stopped:
		return fmt.Sprintf("stopped with signal %v", syscall.Signal(r.Info))
	case Exited:
		return fmt.Sprintf("exited with status %d", r.Info)
	case Terminated:
		return fmt.Sprintf("terminated by signal %v", syscall.Signal(r.Info))
	default:
		panic(fmt.Sprintf("stopreason: unreachable reason %v", r.Reason))
	}
}
