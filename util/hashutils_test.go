package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashCodeStable(t *testing.T) {
	a := HashCode([]byte("vesper"))
	b := HashCode([]byte("vesper"))
	assert.Equal(t, a, b)

	c := HashCode([]byte("vespera"))
	assert.NotEqual(t, a, c)
}

func TestByteConversionRoundTrip(t *testing.T) {
	u32 := uint32(0xDEADBEEF)
	assert.Equal(t, u32, ReadUB4Byte2UInt32(ConvertUInt4Bytes(u32)))

	u64 := uint64(0x0123456789ABCDEF)
	assert.Equal(t, u64, ReadUB8Byte2UInt64(ConvertUInt8Bytes(u64)))
}
