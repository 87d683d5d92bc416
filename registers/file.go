package registers

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/joaoLouceiro/jdb/ptrace"
)

// File is the in-memory mirror of a tracee's kernel user area: a typed
// read/write surface that dispatches writes to the correct kernel
// interface per register class. Reads are served from the mirror with no
// syscall; writes update the mirror then commit to the kernel before
// returning.
type File struct {
	tracer  *ptrace.Tracer
	catalog *Catalog

	user ptrace.User
}

func NewFile(tracer *ptrace.Tracer, catalog *Catalog) *File {
	return &File{
		tracer:  tracer,
		catalog: catalog,
	}
}

func (f *File) Catalog() *Catalog {
	return f.catalog
}

// GprsBlock returns a copy of the mirrored general-purpose register block,
// suitable for mutating a field and committing the whole block back via
// Tracee.WriteGprs.
func (f *File) GprsBlock() ptrace.UserRegs {
	return f.user.Regs
}

func (f *File) mirrorBytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&f.user)), unsafe.Sizeof(f.user))
}

// Refresh reloads the mirror from the kernel: the GPR block, the FPR
// block, and each of dr0..dr7 via the peek-user interface at the
// register's user-area offset. Called on every transition to stopped.
func (f *File) Refresh() error {
	gpr, err := f.tracer.GetGeneralRegisters()
	if err != nil {
		return err
	}
	f.user.Regs = *gpr

	fpr, err := f.tracer.GetFloatingPointRegisters()
	if err != nil {
		return err
	}
	f.user.I387 = *fpr

	for _, info := range f.catalog.OrderedInfos() {
		if info.Class != DebugRegister {
			continue
		}

		value, err := f.tracer.PeekUserArea(info.Offset)
		if err != nil {
			return err
		}
		f.user.UDebugReg[info.Index] = uint64(value)
	}

	return nil
}

// Read returns the typed value at info, selected by info.Format and
// info.Size, by reinterpreting the bytes at info.Offset of the local
// mirror. No syscall is issued.
func (f *File) Read(info Info) (Value, error) {
	b := f.mirrorBytes()[info.Offset : info.Offset+info.Size]

	switch info.Format {
	case FormatUint:
		switch info.Size {
		case 1:
			return Uint8Value(b[0]), nil
		case 2:
			return Uint16Value(binary.LittleEndian.Uint16(b)), nil
		case 4:
			return Uint32Value(binary.LittleEndian.Uint32(b)), nil
		case 8:
			return Uint64Value(binary.LittleEndian.Uint64(b)), nil
		}

	case FormatDoubleFloat:
		if info.Size == 8 {
			return Float64Value(
				math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
		}

	case FormatLongDouble:
		if info.Size == 16 {
			return LongDouble{
				Mantissa: binary.LittleEndian.Uint64(b[0:8]),
				SignExp:  binary.LittleEndian.Uint16(b[8:10]),
			}, nil
		}

	case FormatVector:
		switch info.Size {
		case 8:
			return Uint64Value(binary.LittleEndian.Uint64(b)), nil
		case 16:
			return Uint128Value(
				binary.LittleEndian.Uint64(b[8:16]),
				binary.LittleEndian.Uint64(b[0:8])), nil
		}
	}

	// The source's equivalent read() falls through to "read as double" for
	// any register whose format/size combination isn't one of the cases
	// above. That fallback silently returns the wrong type. We fail
	// instead.
	return nil, fmt.Errorf(
		"unexpected register size/format mismatch: register (%s) has "+
			"format %q size %d",
		info.Name,
		info.Format,
		info.Size)
}

// Write updates the mirror at info.Offset and commits to the kernel
// according to info.Class: gpr/sub_gpr commits the entire GPR block, fpr
// commits the entire FPR block, dr commits the single 8-byte slot via the
// poke-user interface (word-aligned even though the conceptual value may
// be smaller).
func (f *File) Write(info Info, value Value) error {
	err := info.CanAccept(value)
	if err != nil {
		return err
	}

	b := f.mirrorBytes()[info.Offset : info.Offset+info.Size]

	if info.Size == 16 {
		u := value.ToUint128()
		if info.Format == FormatLongDouble {
			// A bare decimal (from ParseValue's "d:"/"f:" prefixes, or any
			// other Float32/Float64 caller) needs encoding into the 80-bit
			// extended layout rather than zero-extending its double bit
			// pattern; a LongDouble or raw Uint128 is already in wire form.
			if decimal, ok := asFloat64(value); ok {
				u = longDoubleFromFloat64(decimal).ToUint128()
			}
		}
		binary.LittleEndian.PutUint64(b[0:8], u.Low)
		binary.LittleEndian.PutUint64(b[8:16], u.High)
	} else {
		switch info.Size {
		case 1:
			b[0] = byte(value.ToUint64())
		case 2:
			binary.LittleEndian.PutUint16(b, uint16(value.ToUint64()))
		case 4:
			binary.LittleEndian.PutUint32(b, uint32(value.ToUint64()))
		case 8:
			binary.LittleEndian.PutUint64(b, value.ToUint64())
		}
	}

	switch info.Class {
	case GeneralRegister:
		return f.tracer.SetGeneralRegisters(&f.user.Regs)
	case FloatingPointRegister:
		return f.tracer.SetFloatingPointRegisters(&f.user.I387)
	case DebugRegister:
		return f.tracer.PokeUserArea(info.Offset, uintptr(f.user.UDebugReg[info.Index]))
	default:
		return fmt.Errorf("invalid register class: %v", info.Class)
	}
}

// ReadByIdAs reads the register with the given universal register_id and
// asserts its value has the requested concrete type, failing if the
// discriminant does not match.
func ReadByIdAs[T Value](f *File, id int) (T, error) {
	var zero T

	info, ok := f.catalog.ById(id)
	if !ok {
		return zero, fmt.Errorf("no register with id %d", id)
	}

	value, err := f.Read(info)
	if err != nil {
		return zero, err
	}

	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf(
			"register (%s) value has unexpected type %T", info.Name, value)
	}

	return typed, nil
}

// WriteByID is equivalent to Write(ById(id), value).
func (f *File) WriteByID(id int, value Value) error {
	info, ok := f.catalog.ById(id)
	if !ok {
		return fmt.Errorf("no register with id %d", id)
	}

	return f.Write(info, value)
}
