// Package pipe implements the close-on-exec byte channel used to ferry a
// launch child's pre-exec failures back to its parent (process.hpp's
// "exit_with_perror" protocol). The write end is handed to a child across
// exec via os/exec's ExtraFiles; the read end never leaves the parent.
package pipe

import (
	"fmt"
	"io"
	"os"
)

// Pipe is a single-owner, one-shot parent<->child byte channel. Either end
// may be closed independently; closing an already-closed end is a no-op
// that returns nil.
type Pipe struct {
	read  *os.File
	write *os.File
}

// New creates a kernel pipe with both ends marked close-on-exec. A process
// that execs without ever touching the write end inherits it closed; only
// an end explicitly handed to a child across exec (by clearing
// close-on-exec on the duplicated descriptor, which os/exec's ExtraFiles
// does for us) survives into that child.
func New() (*Pipe, error) {
	read, write, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}

	return &Pipe{read: read, write: write}, nil
}

// WriteFile returns the write end, for handing to a child process via
// os/exec.Cmd.ExtraFiles. The caller must not use the returned file after
// calling CloseWrite.
func (p *Pipe) WriteFile() *os.File {
	return p.write
}

func (p *Pipe) CloseRead() error {
	if p.read == nil {
		return nil
	}
	err := p.read.Close()
	p.read = nil
	if err != nil {
		return fmt.Errorf("failed to close pipe read end: %w", err)
	}
	return nil
}

func (p *Pipe) CloseWrite() error {
	if p.write == nil {
		return nil
	}
	err := p.write.Close()
	p.write = nil
	if err != nil {
		return fmt.Errorf("failed to close pipe write end: %w", err)
	}
	return nil
}

// Write writes bytes to the pipe. Used only by a launch child to relay a
// pre-exec failure message.
func (p *Pipe) Write(data []byte) (int, error) {
	n, err := p.write.Write(data)
	if err != nil {
		return n, fmt.Errorf("failed to write to pipe: %w", err)
	}
	return n, nil
}

// Read drains everything currently readable from the pipe, blocking until
// the other end closes (EOF). A successful exec by the child closes the
// write end with nothing written, so the parent observes a zero-length
// read; any bytes read indicate a pre-exec failure message.
func (p *Pipe) Read() ([]byte, error) {
	data, err := io.ReadAll(p.read)
	if err != nil {
		return nil, fmt.Errorf("failed to read from pipe: %w", err)
	}
	return data, nil
}
