package registers

import (
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

type ValueSuite struct{}

func TestValue(t *testing.T) {
	suite.RunTests(t, &ValueSuite{})
}

func (ValueSuite) TestUintRoundTrip(t *testing.T) {
	u := Uint64Value(0xcafecafe)
	expect.Equal(t, uintptr(8), u.Size())
	expect.False(t, u.IsFloat())
	expect.Equal(t, uint64(0xcafecafe), u.ToUint64())
	expect.Equal(t, "0x00000000cafecafe", u.String())
}

func (ValueSuite) TestIntSignExtends(t *testing.T) {
	i := Int8Value(-1)
	expect.Equal(t, uint64(0xffffffffffffffff), i.ToUint64())
	expect.Equal(
		t,
		Uint128{Low: 0xffffffffffffffff, High: 0xffffffffffffffff},
		i.ToUint128())
}

func (ValueSuite) TestUint128String(t *testing.T) {
	u := Uint128Value(0x00000000000040_04, 0xa8f5c28f5c28f5c3)
	expect.True(t, len(u.String()) > 0)
}

func (ValueSuite) TestFloat64String(t *testing.T) {
	f := Float64Value(42.42)
	expect.Equal(t, uintptr(8), f.Size())
	expect.True(t, f.IsFloat())
	expect.Equal(t, "42.42", f.String())
}

func (ValueSuite) TestParseValueBareHex(t *testing.T) {
	v, err := ParseValue("0xcafecafe")
	expect.Nil(t, err)
	u, ok := v.(Uint64)
	expect.True(t, ok)
	expect.Equal(t, uint64(0xcafecafe), u.Value)
}

func (ValueSuite) TestParseValueFloatPrefix(t *testing.T) {
	v, err := ParseValue("f:3.5")
	expect.Nil(t, err)
	f, ok := v.(Float32)
	expect.True(t, ok)
	expect.Equal(t, float32(3.5), float32(f))
}

func (ValueSuite) TestParseValueDoublePrefix(t *testing.T) {
	v, err := ParseValue("d:42.42")
	expect.Nil(t, err)
	f, ok := v.(Float64)
	expect.True(t, ok)
	expect.Equal(t, "42.42", f.String())
}

func (ValueSuite) TestParseValueVectorPair(t *testing.T) {
	v, err := ParseValue("0x4004000000000000:0xa8f5c28f5c28f5c3")
	expect.Nil(t, err)
	_, ok := v.(Uint128)
	expect.True(t, ok)
}

func (ValueSuite) TestParseValueRejectsGarbage(t *testing.T) {
	_, err := ParseValue("not-a-number")
	expect.Error(t, err, "failed to parse register value")
}
