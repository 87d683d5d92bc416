// Package procfs reads the /proc entries that let a caller cross-check a
// tracee's kernel state independently of ptrace: its scheduling state
// (/proc/<pid>/stat), its mapped address ranges (/proc/<pid>/maps), and
// the symlink to the binary it is running (/proc/<pid>/exe).
package procfs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type ProcessState string

const (
	Running        = ProcessState("running")
	Sleeping       = ProcessState("sleeping")
	WaitingForDisk = ProcessState("waiting for disk")
	Zombie         = ProcessState("zombie")
	TracingStop    = ProcessState("tracing stop")
	Dead           = ProcessState("dead")
	Idle           = ProcessState("idle")
)

var processStateCodes = map[byte]ProcessState{
	'R': Running,
	'S': Sleeping,
	'D': WaitingForDisk,
	'Z': Zombie,
	't': TracingStop,
	'X': Dead,
	'I': Idle,
}

type ProcessStatus struct {
	Pid   int
	Comm  string
	State ProcessState
	Ppid  int
	Pgrp  int
}

// GetProcessStatus parses /proc/<pid>/stat. Only the fields this package's
// callers need (pid, comm, state, ppid, pgrp) are extracted; the kernel
// documents over 50 fields total in proc(5).
func GetProcessStatus(pid int) (ProcessStatus, error) {
	path := fmt.Sprintf("/proc/%d/stat", pid)
	content, err := os.ReadFile(path)
	if err != nil {
		return ProcessStatus{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	// comm (field 2) is parenthesized and may itself contain spaces or
	// parens, so it has to be located by its own delimiters rather than by
	// splitting on spaces like every field after it.
	line := string(content)
	commStart := strings.IndexByte(line, '(')
	commEnd := strings.LastIndexByte(line, ')')
	if commStart < 0 || commEnd < commStart {
		return ProcessStatus{}, fmt.Errorf("malformed %s: no comm field", path)
	}

	reportedPid, err := parseStatField(line[:commStart], "pid", strconv.Atoi)
	if err != nil {
		return ProcessStatus{}, err
	}

	fields := strings.Fields(line[commEnd+1:])
	if len(fields) < 3 {
		return ProcessStatus{}, fmt.Errorf("malformed %s: too few fields", path)
	}

	ppid, err := parseStatField(fields[1], "ppid", strconv.Atoi)
	if err != nil {
		return ProcessStatus{}, err
	}

	pgrp, err := parseStatField(fields[2], "pgrp", strconv.Atoi)
	if err != nil {
		return ProcessStatus{}, err
	}

	state, ok := processStateCodes[fields[0][0]]
	if !ok {
		return ProcessStatus{}, fmt.Errorf(
			"malformed %s: unrecognized state code %q", path, fields[0])
	}

	return ProcessStatus{
		Pid:   reportedPid,
		Comm:  line[commStart+1 : commEnd],
		State: state,
		Ppid:  ppid,
		Pgrp:  pgrp,
	}, nil
}

func parseStatField[T any](text, field string, parse func(string) (T, error)) (T, error) {
	v, err := parse(strings.TrimSpace(text))
	if err != nil {
		return v, fmt.Errorf("failed to parse %s field %q: %w", field, text, err)
	}
	return v, nil
}

// MappedMemoryRegion is one line of /proc/<pid>/maps: a contiguous virtual
// address range and the permissions/backing file the kernel reports for it.
type MappedMemoryRegion struct {
	LowAddress  uint64
	HighAddress uint64

	Read    bool
	Write   bool
	Execute bool
	Private bool // copy-on-write, as opposed to a shared mapping

	Offset uint64

	DeviceMajor uint
	DeviceMinor uint
	Inode       uint

	Pathname string
}

func parsePermissions(perm string) (read, write, execute, private bool) {
	return strings.Contains(perm, "r"),
		strings.Contains(perm, "w"),
		strings.Contains(perm, "x"),
		strings.Contains(perm, "p")
}

func GetMappedMemoryRegions(pid int) ([]MappedMemoryRegion, error) {
	path := fmt.Sprintf("/proc/%d/maps", pid)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var result []MappedMemoryRegion
	for _, line := range strings.Split(strings.TrimRight(string(content), "\n"), "\n") {
		if line == "" {
			continue
		}

		region, err := parseMapsLine(line)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s line %q: %w", path, line, err)
		}
		result = append(result, region)
	}

	return result, nil
}

func parseMapsLine(line string) (MappedMemoryRegion, error) {
	chunks := strings.SplitN(line, " ", 6)
	if len(chunks) < 5 {
		return MappedMemoryRegion{}, fmt.Errorf("expected at least 5 fields, got %d", len(chunks))
	}

	addresses := strings.SplitN(chunks[0], "-", 2)
	if len(addresses) != 2 {
		return MappedMemoryRegion{}, fmt.Errorf("malformed address range %q", chunks[0])
	}

	lowAddr, err := strconv.ParseUint(addresses[0], 16, 64)
	if err != nil {
		return MappedMemoryRegion{}, fmt.Errorf("failed to parse low address: %w", err)
	}

	highAddr, err := strconv.ParseUint(addresses[1], 16, 64)
	if err != nil {
		return MappedMemoryRegion{}, fmt.Errorf("failed to parse high address: %w", err)
	}

	read, write, execute, private := parsePermissions(chunks[1])

	offset, err := strconv.ParseUint(chunks[2], 16, 64)
	if err != nil {
		return MappedMemoryRegion{}, fmt.Errorf("failed to parse offset: %w", err)
	}

	device := strings.SplitN(chunks[3], ":", 2)
	if len(device) != 2 {
		return MappedMemoryRegion{}, fmt.Errorf("malformed device field %q", chunks[3])
	}

	major, err := strconv.ParseUint(device[0], 16, 32)
	if err != nil {
		return MappedMemoryRegion{}, fmt.Errorf("failed to parse device major: %w", err)
	}

	minor, err := strconv.ParseUint(device[1], 16, 32)
	if err != nil {
		return MappedMemoryRegion{}, fmt.Errorf("failed to parse device minor: %w", err)
	}

	inode, err := strconv.ParseUint(chunks[4], 10, 32)
	if err != nil {
		return MappedMemoryRegion{}, fmt.Errorf("failed to parse inode: %w", err)
	}

	region := MappedMemoryRegion{
		LowAddress:  lowAddr,
		HighAddress: highAddr,
		Read:        read,
		Write:       write,
		Execute:     execute,
		Private:     private,
		Offset:      offset,
		DeviceMajor: uint(major),
		DeviceMinor: uint(minor),
		Inode:       uint(inode),
	}
	if len(chunks) == 6 {
		region.Pathname = strings.TrimSpace(chunks[5])
	}

	return region, nil
}

// GetExecutableSymlinkPath returns the path of the /proc/<pid>/exe symlink,
// which os.Readlink resolves to the tracee's running executable.
func GetExecutableSymlinkPath(pid int) string {
	return fmt.Sprintf("/proc/%d/exe", pid)
}
