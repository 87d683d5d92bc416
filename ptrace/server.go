package ptrace

import (
	"context"
	"runtime"
)

// traceServer pins itself to a single OS thread and runs every ptrace call
// issued against its tracee as a closure on that thread. All ptrace calls
// targeting a given tracee (every GETREGS/SETREGS/CONT/DETACH after the
// PTRACE_TRACEME its launch trampoline issues) must originate from the
// same OS thread the kernel recorded as the tracer when the tracee was
// created; a goroutine that migrates threads between calls breaks that
// association. Waiting on the tracee does not go through this thread:
// Tracee.WaitOnSignal calls wait4 from its caller's goroutine, which the
// kernel accepts from any thread of the tracer's process.
//
// https://github.com/golang/go/issues/7699
// https://github.com/golang/go/issues/43685
type traceServer struct {
	cancel func()
	ctx    context.Context

	// fc carries one pending call at a time and ec carries its result.
	// Tracer is single-owner (see its doc comment), so there is never more
	// than one call in flight and a single shared pair suffices.
	fc chan func() error
	ec chan error
}

func newTraceServer() *traceServer {
	ctx, cancel := context.WithCancel(context.Background())

	server := &traceServer{
		cancel: cancel,
		ctx:    ctx,
		fc:     make(chan func() error),
		ec:     make(chan error),
	}

	go server.run()
	return server
}

func (server *traceServer) run() {
	runtime.LockOSThread()
	defer func() {
		server.cancel()
		runtime.UnlockOSThread()
	}()

	for f := range server.fc {
		server.ec <- f()
	}
}
