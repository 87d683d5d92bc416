package registers

import (
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

type CatalogSuite struct{}

func TestCatalog(t *testing.T) {
	suite.RunTests(t, &CatalogSuite{})
}

func (CatalogSuite) TestGprSubRegistersShareNoOffsetAcrossLowRegisters(
	t *testing.T,
) {
	c := NewCatalog()

	rax, ok := c.ByName("rax")
	expect.True(t, ok)

	eax, ok := c.ByName("eax")
	expect.True(t, ok)

	ax, ok := c.ByName("ax")
	expect.True(t, ok)

	al, ok := c.ByName("al")
	expect.True(t, ok)

	expect.Equal(t, rax.Offset, eax.Offset)
	expect.Equal(t, rax.Offset, ax.Offset)
	expect.Equal(t, rax.Offset, al.Offset)
}

func (CatalogSuite) TestHighByteSubRegistersAreOffsetByOneByte(
	t *testing.T,
) {
	c := NewCatalog()

	for _, pair := range [][2]string{{"ax", "ah"}, {"bx", "bh"}, {"cx", "ch"}, {"dx", "dh"}} {
		low, ok := c.ByName(pair[0])
		expect.True(t, ok)

		high, ok := c.ByName(pair[1])
		expect.True(t, ok)

		expect.True(t, high.IsHighRegister)
		expect.Equal(t, low.Offset+1, high.Offset)
		expect.Equal(t, uintptr(1), high.Size)
	}
}

func (CatalogSuite) TestR8ThroughR15SubRegistersUseSuffixNaming(
	t *testing.T,
) {
	c := NewCatalog()

	for _, name := range []string{"r8d", "r8w", "r8b", "r15d", "r15w", "r15b"} {
		_, ok := c.ByName(name)
		expect.True(t, ok)
	}
}

func (CatalogSuite) TestStAndMmAliasTheSameStSpaceSlotButDifferSize(
	t *testing.T,
) {
	c := NewCatalog()

	for i := 0; i < 8; i++ {
		st, ok := c.ByName(fmtName("st", i))
		expect.True(t, ok)

		mm, ok := c.ByName(fmtName("mm", i))
		expect.True(t, ok)

		expect.Equal(t, st.Offset, mm.Offset)
		expect.Equal(t, uintptr(16), st.Size)
		expect.Equal(t, uintptr(8), mm.Size)
		expect.Equal(t, FormatLongDouble, st.Format)
		expect.Equal(t, FormatVector, mm.Format)
	}
}

func (CatalogSuite) TestXmmRegistersAreSixteenBytesEach(t *testing.T) {
	c := NewCatalog()

	xmm0, ok := c.ByName("xmm0")
	expect.True(t, ok)
	expect.Equal(t, uintptr(16), xmm0.Size)
	expect.Equal(t, FormatVector, xmm0.Format)

	xmm1, ok := c.ByName("xmm1")
	expect.True(t, ok)
	expect.Equal(t, xmm0.Offset+16, xmm1.Offset)
}

func (CatalogSuite) TestDebugRegistersAreEightBytesApart(t *testing.T) {
	c := NewCatalog()

	dr0, ok := c.ByName("dr0")
	expect.True(t, ok)

	dr1, ok := c.ByName("dr1")
	expect.True(t, ok)

	expect.Equal(t, dr0.Offset+8, dr1.Offset)
}

func (CatalogSuite) TestByDwarfFindsDwarfRegisters(t *testing.T) {
	c := NewCatalog()

	rip, ok := c.ByName("rip")
	expect.True(t, ok)

	byDwarf, ok := c.ByDwarf(rip.DwarfId)
	expect.True(t, ok)
	expect.Equal(t, rip.Name, byDwarf.Name)
}

func (CatalogSuite) TestByIdFindsEveryRegisterIncludingThoseWithoutADwarfId(
	t *testing.T,
) {
	c := NewCatalog()

	// ftw (the x87 tag word) has no DWARF register number, unlike fcw/fsw.
	ftw, ok := c.ByName("ftw")
	expect.True(t, ok)
	expect.Equal(t, -1, ftw.DwarfId)

	byId, ok := c.ById(ftw.Id)
	expect.True(t, ok)
	expect.Equal(t, "ftw", byId.Name)

	// al is a sub-GPR and likewise carries no DWARF number of its own.
	al, ok := c.ByName("al")
	expect.True(t, ok)
	expect.Equal(t, -1, al.DwarfId)

	byId, ok = c.ById(al.Id)
	expect.True(t, ok)
	expect.Equal(t, "al", byId.Name)
}

func (CatalogSuite) TestCanAcceptRejectsDr4AndDr5(t *testing.T) {
	c := NewCatalog()

	dr4, ok := c.ByName("dr4")
	expect.True(t, ok)

	err := dr4.CanAccept(Uint64Value(1))
	expect.Error(t, err, "cannot set dr4. register is read-only")

	dr5, ok := c.ByName("dr5")
	expect.True(t, ok)

	err = dr5.CanAccept(Uint64Value(1))
	expect.Error(t, err, "cannot set dr5. register is read-only")
}

func (CatalogSuite) TestCanAcceptRejectsSizeMismatch(t *testing.T) {
	c := NewCatalog()

	rsi, ok := c.ByName("rsi")
	expect.True(t, ok)

	err := rsi.CanAccept(Uint32Value(1))
	expect.Error(
		t,
		err,
		"unexpected register size/format mismatch: register (rsi) size "+
			"(8) does not match value size (4)")
}

func (CatalogSuite) TestCanAcceptAllowsFloatOrUint128For16ByteRegisters(
	t *testing.T,
) {
	c := NewCatalog()

	xmm0, ok := c.ByName("xmm0")
	expect.True(t, ok)

	expect.Nil(t, xmm0.CanAccept(Float64Value(42.42)))
	expect.Nil(t, xmm0.CanAccept(Uint128Value(0, 1)))

	err := xmm0.CanAccept(Uint64Value(1))
	expect.Error(
		t,
		err,
		"register (xmm0) expects a Uint128/Float32/Float64 value")
}

func fmtName(prefix string, idx int) string {
	return prefix + string(rune('0'+idx))
}
