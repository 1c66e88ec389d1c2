package value

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarRoundTrip(t *testing.T) {
	v := NewUInt32(42)
	u, err := v.UInt32()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), u)
}

func TestWideningAccessors(t *testing.T) {
	v := NewUInt8(7)
	u32, err := v.UInt32()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), u32)

	u64, err := v.UInt64()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), u64)
}

func TestNarrowingAccessorFails(t *testing.T) {
	v := NewUInt32(1 << 20)
	_, err := v.UInt8()
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestSignedUnsignedBoundary(t *testing.T) {
	v := NewUInt32(5)
	_, err := v.Int32()
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestFloatIntBoundary(t *testing.T) {
	v := NewFloat64(1.5)
	_, err := v.Int64()
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestFloatWidening(t *testing.T) {
	v := NewFloat32(1.5)
	f64, err := v.Float64()
	require.NoError(t, err)
	assert.Equal(t, 1.5, f64)

	_, err = NewFloat64(1.5).Float32()
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestWrongTypeDoesNotMutate(t *testing.T) {
	v := NewString("hi")
	before := v
	_, err := v.Bool()
	assert.ErrorIs(t, err, ErrWrongType)
	assert.True(t, v.Equal(before))
}

func TestDictionaryRoundTrip(t *testing.T) {
	orig := NewDictionary(Dictionary{
		"n": NewInt32(3),
		"s": NewString("hi"),
	})
	d, err := orig.ToDictionary()
	require.NoError(t, err)
	back, err := FromDictionary(d)
	require.NoError(t, err)
	assert.True(t, orig.Equal(back))
}

func TestBlobBase64RoundTrip(t *testing.T) {
	orig := NewBlob([]byte("hello world"))
	d, err := orig.ToDictionary()
	require.NoError(t, err)
	assert.Equal(t, "blob", d["type"])
	back, err := FromDictionary(d)
	require.NoError(t, err)
	assert.True(t, orig.Equal(back))
}

func TestArrayOfDictionariesRoundTrip(t *testing.T) {
	orig := NewArrayOfDictionaries([]Dictionary{
		{"a": NewBool(true)},
		{"b": NewString("x")},
	})
	d, err := orig.ToDictionary()
	require.NoError(t, err)
	back, err := FromDictionary(d)
	require.NoError(t, err)
	assert.True(t, orig.Equal(back))
}

func TestTimeTruncatesToSeconds(t *testing.T) {
	t1 := time.Date(2026, 1, 2, 3, 4, 5, 999999999, time.UTC)
	v := NewTime(t1)
	got, err := v.Time()
	require.NoError(t, err)
	assert.Equal(t, int64(0), int64(got.Nanosecond()))
	assert.Equal(t, t1.Unix(), got.Unix())
}

func TestJSONRoundTrip(t *testing.T) {
	orig := NewUInt64(9999999999)
	data, err := orig.MarshalJSON()
	require.NoError(t, err)

	var back Value
	require.NoError(t, back.UnmarshalJSON(data))
	assert.True(t, orig.Equal(back))
}
