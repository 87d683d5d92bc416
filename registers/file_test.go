package registers

import (
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

type FileSuite struct{}

func TestFile(t *testing.T) {
	suite.RunTests(t, &FileSuite{})
}

func newTestFile() *File {
	return NewFile(nil, NewCatalog())
}

func (FileSuite) TestReadRax(t *testing.T) {
	f := newTestFile()
	f.user.Regs.Rax = 0x0102030405060708

	rax, ok := f.catalog.ByName("rax")
	expect.True(t, ok)

	v, err := f.Read(rax)
	expect.Nil(t, err)
	u64, ok := v.(Uint64)
	expect.True(t, ok)
	expect.Equal(t, uint64(0x0102030405060708), u64.Value)

	eax, ok := f.catalog.ByName("eax")
	expect.True(t, ok)
	v, err = f.Read(eax)
	expect.Nil(t, err)
	u32, ok := v.(Uint32)
	expect.True(t, ok)
	expect.Equal(t, uint32(0x05060708), u32.Value)

	ax, ok := f.catalog.ByName("ax")
	expect.True(t, ok)
	v, err = f.Read(ax)
	expect.Nil(t, err)
	u16, ok := v.(Uint16)
	expect.True(t, ok)
	expect.Equal(t, uint16(0x0708), u16.Value)

	al, ok := f.catalog.ByName("al")
	expect.True(t, ok)
	v, err = f.Read(al)
	expect.Nil(t, err)
	u8, ok := v.(Uint8)
	expect.True(t, ok)
	expect.Equal(t, uint8(0x08), u8.Value)

	ah, ok := f.catalog.ByName("ah")
	expect.True(t, ok)
	v, err = f.Read(ah)
	expect.Nil(t, err)
	u8, ok = v.(Uint8)
	expect.True(t, ok)
	expect.Equal(t, uint8(0x07), u8.Value)
}

func (FileSuite) TestReadMxcsrMask(t *testing.T) {
	f := newTestFile()
	f.user.I387.MxcrMask = 0xffff0000

	mask, ok := f.catalog.ByName("mxcsrmask")
	expect.True(t, ok)

	v, err := f.Read(mask)
	expect.Nil(t, err)
	u32, ok := v.(Uint32)
	expect.True(t, ok)
	expect.Equal(t, uint32(0xffff0000), u32.Value)
}

func (FileSuite) TestReadMm0OverlapsLowHalfOfSt0(t *testing.T) {
	f := newTestFile()

	f.user.I387.StSpace[0] = 0xba5eba11

	mm0, ok := f.catalog.ByName("mm0")
	expect.True(t, ok)

	v, err := f.Read(mm0)
	expect.Nil(t, err)
	u64, ok := v.(Uint64)
	expect.True(t, ok)
	expect.Equal(t, uint64(0xba5eba11), u64.Value)
}

func (FileSuite) TestReadSt0As80BitExtendedFloat(t *testing.T) {
	f := newTestFile()

	// 42.24 encoded as an 80-bit extended float (sign=0, exponent biased
	// 0x4004, mantissa 0xa8f5c28f5c28f5c3), zero-padded to 16 bytes as the
	// kernel stores it.
	f.user.I387.StSpace[0] = 0xa8f5c28f5c28f5c3
	f.user.I387.StSpace[1] = 0x0000000000004004

	st0, ok := f.catalog.ByName("st0")
	expect.True(t, ok)

	v, err := f.Read(st0)
	expect.Nil(t, err)
	ld, ok := v.(LongDouble)
	expect.True(t, ok)
	expect.Equal(t, uint64(0xa8f5c28f5c28f5c3), ld.Mantissa)
	expect.Equal(t, uint16(0x4004), ld.SignExp)
	expect.Equal(t, "42.24", ld.String())
}

func (FileSuite) TestLongDoubleValueEncodesTheSameSignExponentWordFstpWrites(t *testing.T) {
	// The bit pattern an x87 fstpt actually writes for the literal 42.24L.
	want := Uint128Value(0x0000000000004004, 0xa8f5c28f5c28f5c3)

	// A double has 11 fewer mantissa bits than extended precision, so
	// upconverting loses the low bits of the literal's exact value; the
	// decimal still round-trips to the same %g text.
	got := LongDoubleValue(42.24).(LongDouble).ToUint128()
	expect.Equal(t, want.High, got.High)
	expect.Equal(t, "42.24", LongDoubleValue(42.24).String())
}

func (FileSuite) TestReadXmm0AsDoubleBitPattern(t *testing.T) {
	f := newTestFile()

	f.user.I387.XmmSpace[0] = 0x4045571eb851eb85

	xmm0, ok := f.catalog.ByName("xmm0")
	expect.True(t, ok)

	v, err := f.Read(xmm0)
	expect.Nil(t, err)
	u128, ok := v.(Uint128)
	expect.True(t, ok)
	expect.Equal(t, uint64(0x4045571eb851eb85), u128.Low)
	expect.Equal(t, uint64(0), u128.High)
}

func (FileSuite) TestReadDr(t *testing.T) {
	f := newTestFile()
	f.user.UDebugReg[3] = 0xdeadbeef

	dr3, ok := f.catalog.ByName("dr3")
	expect.True(t, ok)

	v, err := f.Read(dr3)
	expect.Nil(t, err)
	u64, ok := v.(Uint64)
	expect.True(t, ok)
	expect.Equal(t, uint64(0xdeadbeef), u64.Value)
}

func (FileSuite) TestReadOnUnmatchedFormatSizeFails(t *testing.T) {
	f := newTestFile()

	info := Info{
		Name:   "bogus",
		Size:   3,
		Offset: 0,
		Format: FormatUint,
	}

	_, err := f.Read(info)
	expect.Error(t, err, "unexpected register size/format mismatch")
}

func (FileSuite) TestReadByIdAsWrongTypeFails(t *testing.T) {
	f := newTestFile()

	rax, ok := f.catalog.ByName("rax")
	expect.True(t, ok)

	_, err := ReadByIdAs[Float64](f, rax.Id)
	expect.Error(t, err, "unexpected type")
}

func (FileSuite) TestReadByIdAsAddressesARegisterWithNoDwarfNumber(t *testing.T) {
	f := newTestFile()
	f.user.I387.Ftw = 0b0011111111111111

	ftw, ok := f.catalog.ByName("ftw")
	expect.True(t, ok)
	expect.Equal(t, -1, ftw.DwarfId)

	v, err := ReadByIdAs[Uint16](f, ftw.Id)
	expect.Nil(t, err)
	expect.Equal(t, uint16(0b0011111111111111), v.Value)
}
