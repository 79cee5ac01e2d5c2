package index

import (
	"encoding/binary"

	"github.com/vesperdb/vesper/basic"
	"github.com/vesperdb/vesper/common"
	"github.com/vesperdb/vesper/storage/page"
)

// LeafPage is the view over a leaf node: a sorted run of (key, rid) entries
// plus the next-leaf link that chains the leaf level for range scans.
type LeafPage struct {
	BPlusTreePage
}

// leafView 将一个帧解释为叶子节点
func leafView(f *page.Frame) *LeafPage {
	return &LeafPage{BPlusTreePage{frame: f}}
}

// Init formats the frame as an empty leaf.
func (l *LeafPage) Init(pageID, parentID common.PageID, maxSize int) {
	l.setPageType(pageTypeLeaf)
	l.SetPageID(pageID)
	l.SetParentPageID(parentID)
	l.SetSize(0)
	l.SetMaxSize(maxSize)
	l.SetNextPageID(common.InvalidPageID)
}

// GetNextPageID 右兄弟叶子
func (l *LeafPage) GetNextPageID() common.PageID {
	return common.PageID(binary.LittleEndian.Uint32(l.data()[offsetNext:]))
}

// SetNextPageID 设置右兄弟叶子
func (l *LeafPage) SetNextPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(l.data()[offsetNext:], uint32(id))
}

func (l *LeafPage) entryOffset(i int) int {
	return leafHeaderSize + i*leafEntrySize
}

// KeyAt 下标处的键
func (l *LeafPage) KeyAt(i int) basic.Key {
	var k basic.Key
	copy(k[:], l.data()[l.entryOffset(i):])
	return k
}

// ValueAt 下标处的记录定位符
func (l *LeafPage) ValueAt(i int) basic.RID {
	off := l.entryOffset(i) + basic.KeySize
	return basic.RID{
		PageID:  common.PageID(binary.LittleEndian.Uint32(l.data()[off:])),
		SlotNum: binary.LittleEndian.Uint32(l.data()[off+4:]),
	}
}

// Item 下标处的键值对
func (l *LeafPage) Item(i int) (basic.Key, basic.RID) {
	return l.KeyAt(i), l.ValueAt(i)
}

func (l *LeafPage) setItem(i int, key basic.Key, value basic.RID) {
	off := l.entryOffset(i)
	copy(l.data()[off:], key[:])
	binary.LittleEndian.PutUint32(l.data()[off+basic.KeySize:], uint32(value.PageID))
	binary.LittleEndian.PutUint32(l.data()[off+basic.KeySize+4:], value.SlotNum)
}

// entriesRegion 返回[from, to)条目的原始字节
func (l *LeafPage) entriesRegion(from, to int) []byte {
	return l.data()[l.entryOffset(from):l.entryOffset(to)]
}

// KeyIndex returns the smallest index whose key is >= the probe, size when
// every key is smaller. Binary search, lower bound.
func (l *LeafPage) KeyIndex(key basic.Key, cmp basic.Comparator) int {
	left, right := 0, l.GetSize()-1
	for left <= right {
		mid := left + (right-left)/2
		if cmp(l.KeyAt(mid), key) >= 0 {
			right = mid - 1
		} else {
			left = mid + 1
		}
	}
	return right + 1
}

// Lookup returns the value stored under key.
func (l *LeafPage) Lookup(key basic.Key, cmp basic.Comparator) (basic.RID, bool) {
	idx := l.KeyIndex(key, cmp)
	if idx == l.GetSize() || cmp(l.KeyAt(idx), key) != 0 {
		return basic.RID{}, false
	}
	return l.ValueAt(idx), true
}

// Insert places (key, value) at its sorted position. Duplicate keys leave
// the node untouched; the returned size is unchanged in that case.
func (l *LeafPage) Insert(key basic.Key, value basic.RID, cmp basic.Comparator) int {
	idx := l.KeyIndex(key, cmp)
	size := l.GetSize()
	if idx < size && cmp(l.KeyAt(idx), key) == 0 {
		return size
	}
	// [idx, size) 整体右移一个条目
	copy(l.entriesRegion(idx+1, size+1), l.entriesRegion(idx, size))
	l.setItem(idx, key, value)
	l.IncreaseSize(1)
	return l.GetSize()
}

// RemoveAndDeleteRecord removes key if present and returns the new size.
func (l *LeafPage) RemoveAndDeleteRecord(key basic.Key, cmp basic.Comparator) int {
	idx := l.KeyIndex(key, cmp)
	size := l.GetSize()
	if idx == size || cmp(l.KeyAt(idx), key) != 0 {
		return size
	}
	// [idx+1, size) 整体左移一个条目
	copy(l.entriesRegion(idx, size-1), l.entriesRegion(idx+1, size))
	l.IncreaseSize(-1)
	return l.GetSize()
}

// MoveHalfTo transfers the upper half of this leaf to the end of an empty
// recipient. Used during split.
func (l *LeafPage) MoveHalfTo(recipient *LeafPage) {
	size := l.GetSize()
	start := size / 2
	moveNum := size - start
	recipient.copyNFrom(l.entriesRegion(start, size), moveNum)
	l.IncreaseSize(-moveNum)
}

// copyNFrom appends n raw entries to the end of this leaf.
func (l *LeafPage) copyNFrom(raw []byte, n int) {
	size := l.GetSize()
	copy(l.entriesRegion(size, size+n), raw)
	l.IncreaseSize(n)
}

// MoveAllTo appends every entry to the recipient (this node's left sibling)
// and hands over the next-leaf link. Used during merge.
func (l *LeafPage) MoveAllTo(recipient *LeafPage) {
	size := l.GetSize()
	recipient.copyNFrom(l.entriesRegion(0, size), size)
	recipient.SetNextPageID(l.GetNextPageID())
	l.SetSize(0)
}

// MoveFirstToEndOf shifts this leaf's first entry onto the recipient's tail.
// Used when redistributing with a right sibling.
func (l *LeafPage) MoveFirstToEndOf(recipient *LeafPage) {
	key, value := l.Item(0)
	size := l.GetSize()
	copy(l.entriesRegion(0, size-1), l.entriesRegion(1, size))
	l.IncreaseSize(-1)

	recipient.setItem(recipient.GetSize(), key, value)
	recipient.IncreaseSize(1)
}

// MoveLastToFrontOf shifts this leaf's last entry onto the recipient's head.
// Used when redistributing with a left sibling.
func (l *LeafPage) MoveLastToFrontOf(recipient *LeafPage) {
	size := l.GetSize()
	key, value := l.Item(size - 1)
	l.IncreaseSize(-1)

	rsize := recipient.GetSize()
	copy(recipient.entriesRegion(1, rsize+1), recipient.entriesRegion(0, rsize))
	recipient.setItem(0, key, value)
	recipient.IncreaseSize(1)
}
