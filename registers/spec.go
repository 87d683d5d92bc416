// Package registers implements the architectural register catalog and the
// typed register file over a tracee's ptrace user area: the static table
// of every general-purpose, x87, MMX, SSE, and debug register (name, id,
// byte offset, size, semantic format, class), and the per-tracee mirror
// that reads and writes those registers with the write-back semantics the
// kernel requires per class.
package registers

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/joaoLouceiro/jdb/ptrace"
)

// Class determines which kernel interface a register's writes must be
// committed through.
type Class string

const (
	GeneralRegister       = Class("general")
	FloatingPointRegister = Class("floating point")
	DebugRegister         = Class("debug")

	stSpace   = "StSpace"
	xmmSpace  = "XmmSpace"
	uDebugReg = "UDebugReg"
)

// Format selects how the raw bytes at an Info's Offset are interpreted.
type Format string

const (
	FormatUint        = Format("uint")
	FormatDoubleFloat = Format("double_float")
	FormatLongDouble  = Format("long_double")
	FormatVector      = Format("vector")
)

// Info is one immutable entry of the register catalog.
type Info struct {
	Name string

	// Id is this register's position in the universal register_id space: a
	// dense index assigned in declaration order covering every catalog
	// entry, including sub-GPRs and the x87 control words that have no
	// DWARF number. read_by_id_as/write_by_id address a register by this
	// value, not by DwarfId.
	Id int

	DwarfId int // -1 when none

	Size   uintptr // register size in bytes
	Offset uintptr // byte offset into the kernel user area

	Class  Class
	Format Format

	// Field names the struct field inside ptrace.UserRegs/ptrace.UserFPRegs
	// (or, for debug registers, the index into UDebugReg) that Offset was
	// computed from. Only meaningful to this package's own accessors.
	Field string

	// Only applicable to 8-bit general sub-registers (ah/bh/ch/dh).
	IsHighRegister bool

	// Only applicable to st/mm/xmm/debug registers: their index within the
	// register's class (st3 -> 3, dr5 -> 5, ...).
	Index int
}

// CanAccept reports whether value is a legal write for this register:
// matching size (with the 128-bit float/vector special case), matching
// float-ness, and not one of the two debug-register slots the kernel
// exposes but does not implement.
func (info Info) CanAccept(value Value) error {
	// dr4 and dr5 are not real registers.
	// https://en.wikipedia.org/wiki/X86_debug_register
	if info.Class == DebugRegister && (info.Index == 4 || info.Index == 5) {
		return fmt.Errorf("cannot set %s. register is read-only", info.Name)
	}

	if info.Size == 16 {
		if value.IsFloat() {
			return nil
		}

		_, ok := value.(Uint128)
		if ok {
			return nil
		}

		return fmt.Errorf(
			"register (%s) expects a Uint128/Float32/Float64 value. found %#v",
			info.Name,
			value)
	}

	if info.Size != value.Size() {
		return fmt.Errorf(
			"unexpected register size/format mismatch: register (%s) size "+
				"(%d) does not match value size (%d)",
			info.Name,
			info.Size,
			value.Size())
	}

	if value.IsFloat() {
		return fmt.Errorf(
			"cannot use a floating point value in register (%s)",
			info.Name)
	}

	return nil
}

// Catalog is the full, ordered, static register table. Iteration order
// (OrderedInfos) is declaration order, matching §4.3's requirement.
type Catalog struct {
	byName  map[string]Info
	byId    map[int]Info // universal register_id -> info; every entry indexed
	byDwarf map[int]Info // dwarf id -> info; -1 ids are not indexed
	ordered []Info

	nextId int
}

func (c *Catalog) add(info Info) {
	_, ok := c.byName[info.Name]
	if ok {
		panic("duplicate register info: " + info.Name)
	}

	info.Id = c.nextId
	c.nextId++

	c.byName[info.Name] = info
	c.byId[info.Id] = info
	c.ordered = append(c.ordered, info)

	if info.DwarfId >= 0 {
		c.byDwarf[info.DwarfId] = info
	}
}

// ByName looks up a register by name. O(1).
func (c *Catalog) ByName(name string) (Info, bool) {
	info, ok := c.byName[name]
	return info, ok
}

// ById looks up a register by its universal register_id. O(1). Every
// catalog entry has one, unlike DwarfId.
func (c *Catalog) ById(id int) (Info, bool) {
	info, ok := c.byId[id]
	return info, ok
}

// ByDwarf looks up a register by DWARF register number. O(1). Entries with
// no DWARF number (sub-GPRs, ftw, fop, mxcsrmask, ...) are not indexed.
func (c *Catalog) ByDwarf(dwarfId int) (Info, bool) {
	info, ok := c.byDwarf[dwarfId]
	return info, ok
}

// OrderedInfos returns every catalog entry in declaration order.
func (c *Catalog) OrderedInfos() []Info {
	return c.ordered
}

func (c *Catalog) addRegister(
	name string,
	dwarfId int,
	size uintptr,
	class Class,
	format Format,
	field string,
	isHigh bool,
	index int,
) {
	c.add(Info{
		Name:           name,
		DwarfId:        dwarfId,
		Size:           size,
		Offset:         fieldOffset(class, field, index, isHigh),
		Class:          class,
		Format:         format,
		Field:          field,
		IsHighRegister: isHigh,
		Index:          index,
	})
}

func (c *Catalog) addGpr64(name string, dwarfId int, field string) {
	c.addRegister(name, dwarfId, 8, GeneralRegister, FormatUint, field, false, 0)
}

func (c *Catalog) addSubGpr32(name string, field string) {
	c.addRegister(name, -1, 4, GeneralRegister, FormatUint, field, false, 0)
}

func (c *Catalog) addSubGpr16(name string, field string) {
	c.addRegister(name, -1, 2, GeneralRegister, FormatUint, field, false, 0)
}

func (c *Catalog) addSubGpr8(name string, field string, isHigh bool) {
	c.addRegister(name, -1, 1, GeneralRegister, FormatUint, field, isHigh, 0)
}

func (c *Catalog) addFpr16(name string, dwarfId int, field string) {
	c.addRegister(name, dwarfId, 2, FloatingPointRegister, FormatUint, field, false, 0)
}

func (c *Catalog) addFpr32(name string, dwarfId int, field string) {
	c.addRegister(name, dwarfId, 4, FloatingPointRegister, FormatUint, field, false, 0)
}

func (c *Catalog) addFpr64(name string, field string) {
	c.addRegister(name, -1, 8, FloatingPointRegister, FormatUint, field, false, 0)
}

// addFpr128 adds one of the 16-byte FPR slots: st (long_double), mm
// (vector, 8-byte view aliasing the low half of the same st-space slot),
// or xmm (vector, full 16 bytes).
func (c *Catalog) addFpr128(
	prefix string,
	dwarfIdStart int,
	format Format,
	size uintptr,
	field string,
	idx int,
) {
	c.addRegister(
		fmt.Sprintf("%s%d", prefix, idx),
		dwarfIdStart+idx,
		size,
		FloatingPointRegister,
		format,
		field,
		false,
		idx)
}

func (c *Catalog) addDr64(idx int) {
	c.addRegister(
		fmt.Sprintf("dr%d", idx),
		-1,
		8,
		DebugRegister,
		FormatUint,
		uDebugReg,
		false,
		idx)
}

var (
	userDebugRegistersOffset uintptr
	userRegsOffset           uintptr
	userFPRegsOffset         uintptr
)

// fieldOffset computes a catalog entry's byte offset into the kernel user
// area from the struct field its value lives in. The offsets are computed
// once, via reflection over ptrace.User's layout, mirroring how the
// kernel's <sys/user.h> packs user_regs_struct/user_fpregs_struct/
// u_debugreg back to back.
func fieldOffset(class Class, field string, index int, isHigh bool) uintptr {
	switch class {
	case GeneralRegister:
		f, ok := reflect.TypeOf(ptrace.UserRegs{}).FieldByName(field)
		if !ok {
			panic("unknown general register field: " + field)
		}
		offset := userRegsOffset + f.Offset
		if isHigh {
			// ah/bh/ch/dh address the second-least-significant byte of the
			// 64-bit field (x86-64 Linux is little endian).
			offset += 1
		}
		return offset
	case FloatingPointRegister:
		t := reflect.TypeOf(ptrace.UserFPRegs{})
		f, ok := t.FieldByName(field)
		if !ok {
			panic("unknown floating point register field: " + field)
		}
		offset := userFPRegsOffset + f.Offset
		if field == stSpace || field == xmmSpace {
			// Each st/mm/xmm slot is two consecutive uint64 words.
			offset += uintptr(index) * 16
		}
		return offset
	case DebugRegister:
		return userDebugRegistersOffset + uintptr(index)*8
	default:
		panic(fmt.Sprintf("invalid register class: %v", class))
	}
}

func init() {
	userType := reflect.TypeOf(ptrace.User{})

	regsField, ok := userType.FieldByName("Regs")
	if !ok {
		panic("should never happen: ptrace.User has no Regs field")
	}
	userRegsOffset = regsField.Offset

	fpRegsField, ok := userType.FieldByName("I387")
	if !ok {
		panic("should never happen: ptrace.User has no I387 field")
	}
	userFPRegsOffset = fpRegsField.Offset

	debugRegField, ok := userType.FieldByName("UDebugReg")
	if !ok {
		panic("should never happen: ptrace.User has no UDebugReg field")
	}
	userDebugRegistersOffset = debugRegField.Offset
}

// NewCatalog builds the full x86-64 Linux register catalog: all 64-bit
// GPRs and their 32/16/8-bit sub-registers, all x87 stack registers
// st0..st7, all MMX aliases mm0..mm7, all XMM registers xmm0..xmm15, the
// x87 control/status/tag words, the segment registers, the flag register,
// the instruction pointer, and debug registers dr0..dr7.
func NewCatalog() *Catalog {
	c := &Catalog{
		byName:  map[string]Info{},
		byId:    map[int]Info{},
		byDwarf: map[int]Info{},
	}

	dwarfIds := map[string]int{
		"rip":    16,
		"eflags": 49,
		"cs":     51,
		"fs":     54,
		"gs":     55,
		"ss":     52,
		"ds":     53,
		"es":     50,
	}

	names := strings.Split(
		"rax rdx rcx rbx rsi rdi rbp rsp "+
			"r8 r9 r10 r11 r12 r13 r14 r15 "+
			"rip eflags cs fs gs ss ds es",
		" ")
	for idx, name := range names {
		dwarfId, ok := dwarfIds[name]
		if !ok {
			dwarfId = idx
		}

		field := strings.ToUpper(name[0:1]) + name[1:]

		c.addGpr64(name, dwarfId, field)

		if ok { // segment/flag/instruction-pointer registers have no sub-registers
			continue
		} else if strings.ContainsAny(name, "189") { // r8-r15
			c.addSubGpr32(name+"d", field)
			c.addSubGpr16(name+"w", field)
			c.addSubGpr8(name+"b", field, false)
		} else { // legacy x86 extended registers
			c.addSubGpr32("e"+name[1:], field)
			c.addSubGpr16(name[1:], field)

			if name[2] == 'x' {
				prefix := name[1:2]
				c.addSubGpr8(prefix+"h", field, true)
				c.addSubGpr8(prefix+"l", field, false)
			} else {
				c.addSubGpr8(name[1:]+"l", field, false)
			}
		}
	}

	c.addFpr16("fcw", 65, "Cwd")
	c.addFpr16("fsw", 66, "Swd")
	c.addFpr16("ftw", -1, "Ftw")
	c.addFpr16("fop", -1, "Fop")
	c.addFpr64("frip", "Rip")
	c.addFpr64("frdp", "Rdp")
	c.addFpr32("mxcsr", 64, "Mxcsr")
	c.addFpr32("mxcsrmask", -1, "MxcrMask")

	for i := 0; i < 8; i++ {
		// st0..st7: 80-bit extended floats, stored zero-padded to 16 bytes.
		c.addFpr128("st", 33, FormatLongDouble, 16, stSpace, i)
		// mm0..mm7: 8-byte MMX view overlapping st's mantissa slot.
		c.addFpr128("mm", 41, FormatVector, 8, stSpace, i)
	}

	for i := 0; i < 16; i++ {
		c.addFpr128("xmm", 17, FormatVector, 16, xmmSpace, i)
	}

	for i := 0; i < 8; i++ {
		c.addDr64(i)
	}

	return c
}
