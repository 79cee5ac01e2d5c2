package util

import "github.com/OneOfOne/xxhash"

// checksumSeed 写入与校验两侧必须使用同一个种子
const checksumSeed = 0x9E3779B97F4A7C15

// HashCode returns the seeded 64-bit xxhash digest of buf. Page images are
// checksummed with it before they reach disk and re-checked on the way back.
func HashCode(buf []byte) uint64 {
	return xxhash.Checksum64S(buf, checksumSeed)
}
