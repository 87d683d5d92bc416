package ptrace

import (
	"fmt"
	"os/exec"
	"syscall"
)

// Tracer is a single tracee's private ptrace connection: one traceServer
// goroutine, locked to one OS thread, running every ptrace call this Tracer
// issues for its Pid. It is single-owner: not safe to share across
// goroutines, and never has more than one call in flight.
type Tracer struct {
	Pid int

	server *traceServer
}

// call runs f on the server's locked OS thread and waits for it to finish.
func (tracer *Tracer) call(f func() error) error {
	select {
	case <-tracer.server.ctx.Done():
		return fmt.Errorf(
			"invalid operation. tracer has detached from process %d",
			tracer.Pid)
	case tracer.server.fc <- f:
		return <-tracer.server.ec
	}
}

// shutdown stops the server goroutine. Only valid once no further call on
// this Tracer will be issued: on setup failure, or once Detach has run.
func (tracer *Tracer) shutdown() {
	close(tracer.server.fc)
}

// StartProcess starts cmd on the server's locked OS thread and adopts its
// pid. It does not request PTRACE_TRACEME on the caller's behalf: the
// child must arrange its own tracing (see tracee's launch trampoline) so
// that the parent controls exactly when, if at all, tracing begins.
func StartProcess(cmd *exec.Cmd) (*Tracer, error) {
	server := newTraceServer()
	tracer := &Tracer{server: server}

	err := tracer.call(func() error {
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("failed to start process: %w", err)
		}
		return nil
	})
	if err != nil {
		tracer.shutdown()
		return nil, err
	}

	tracer.Pid = cmd.Process.Pid
	return tracer, nil
}

// AttachToProcess issues PTRACE_ATTACH against an already-running pid.
func AttachToProcess(pid int) (*Tracer, error) {
	server := newTraceServer()
	tracer := &Tracer{Pid: pid, server: server}

	err := tracer.call(func() error {
		if err := syscall.PtraceAttach(pid); err != nil {
			return fmt.Errorf("failed to attach to process %d: %w", pid, err)
		}
		return nil
	})
	if err != nil {
		tracer.shutdown()
		return nil, err
	}

	return tracer, nil
}

func (tracer *Tracer) Detach() error {
	err := tracer.call(func() error {
		if err := syscall.PtraceDetach(tracer.Pid); err != nil {
			return fmt.Errorf("failed to detach from process %d: %w", tracer.Pid, err)
		}
		return nil
	})
	tracer.shutdown()
	return err
}

func (tracer *Tracer) Resume(signal int) error {
	return tracer.call(func() error {
		if err := syscall.PtraceCont(tracer.Pid, signal); err != nil {
			return fmt.Errorf("failed to resume process %d: %w", tracer.Pid, err)
		}
		return nil
	})
}

func (tracer *Tracer) SetOptions(options Options) error {
	return tracer.call(func() error {
		if err := syscall.PtraceSetOptions(tracer.Pid, int(options)); err != nil {
			return fmt.Errorf("failed to set options for process %d: %w", tracer.Pid, err)
		}
		return nil
	})
}

func (tracer *Tracer) GetGeneralRegisters() (*UserRegs, error) {
	out := &UserRegs{}
	err := tracer.call(func() error {
		if err := syscall.PtraceGetRegs(tracer.Pid, out); err != nil {
			return fmt.Errorf(
				"failed to get general register values from process %d: %w",
				tracer.Pid, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (tracer *Tracer) SetGeneralRegisters(in *UserRegs) error {
	return tracer.call(func() error {
		if err := syscall.PtraceSetRegs(tracer.Pid, in); err != nil {
			return fmt.Errorf(
				"failed to set general register values for process %d: %w",
				tracer.Pid, err)
		}
		return nil
	})
}

func (tracer *Tracer) GetFloatingPointRegisters() (*UserFPRegs, error) {
	out := &UserFPRegs{}
	err := tracer.call(func() error {
		if err := getFPRegs(tracer.Pid, out); err != nil {
			return fmt.Errorf(
				"failed to get floating point register values from process %d: %w",
				tracer.Pid, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (tracer *Tracer) SetFloatingPointRegisters(in *UserFPRegs) error {
	return tracer.call(func() error {
		if err := setFPRegs(tracer.Pid, in); err != nil {
			return fmt.Errorf(
				"failed to set floating point register values for process %d: %w",
				tracer.Pid, err)
		}
		return nil
	})
}

func (tracer *Tracer) PeekUserArea(offset uintptr) (uintptr, error) {
	var data uintptr
	err := tracer.call(func() error {
		var peekErr error
		data, peekErr = peekUserArea(tracer.Pid, offset)
		if peekErr != nil {
			return fmt.Errorf(
				"failed to peek user area (%d) for process %d: %w",
				offset, tracer.Pid, peekErr)
		}
		return nil
	})
	return data, err
}

func (tracer *Tracer) PokeUserArea(offset uintptr, data uintptr) error {
	return tracer.call(func() error {
		if err := pokeUserArea(tracer.Pid, offset, data); err != nil {
			return fmt.Errorf(
				"failed to poke user area (%d ; %d) for process %d: %w",
				offset, data, tracer.Pid, err)
		}
		return nil
	})
}
