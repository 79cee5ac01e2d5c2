package basic

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// KeySize 索引键的固定长度
const KeySize = 8

// Key is a fixed-size comparable index key. The byte content is opaque to
// the tree; ordering comes entirely from the Comparator it was built with.
type Key [KeySize]byte

// Comparator imposes a total order on keys. It returns a value <0, 0 or >0
// when a sorts before, equal to or after b.
type Comparator func(a, b Key) int

// Int64Key encodes v into a Key understood by CompareInt64.
func Int64Key(v int64) Key {
	var k Key
	binary.BigEndian.PutUint64(k[:], uint64(v))
	return k
}

// Int64 decodes the key written by Int64Key.
func (k Key) Int64() int64 {
	return int64(binary.BigEndian.Uint64(k[:]))
}

func (k Key) String() string {
	return fmt.Sprintf("%d", k.Int64())
}

// CompareInt64 orders keys as signed 64-bit integers.
func CompareInt64(a, b Key) int {
	av, bv := a.Int64(), b.Int64()
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

// CompareBytes orders keys lexicographically on their raw bytes.
func CompareBytes(a, b Key) int {
	return bytes.Compare(a[:], b[:])
}
