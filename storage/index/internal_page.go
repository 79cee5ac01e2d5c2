package index

import (
	"encoding/binary"

	"github.com/vesperdb/vesper/basic"
	"github.com/vesperdb/vesper/common"
	"github.com/vesperdb/vesper/storage/buffer_pool"
	"github.com/vesperdb/vesper/storage/page"
)

// InternalPage is the view over an internal node: n child pointers and n-1
// separator keys. The key in slot 0 is a sentinel and is never compared;
// separator i bounds the subtrees of children i-1 and i.
type InternalPage struct {
	BPlusTreePage
}

// internalView 将一个帧解释为内部节点
func internalView(f *page.Frame) *InternalPage {
	return &InternalPage{BPlusTreePage{frame: f}}
}

// Init formats the frame as an empty internal node.
func (n *InternalPage) Init(pageID, parentID common.PageID, maxSize int) {
	n.setPageType(pageTypeInternal)
	n.SetPageID(pageID)
	n.SetParentPageID(parentID)
	n.SetSize(0)
	n.SetMaxSize(maxSize)
}

func (n *InternalPage) entryOffset(i int) int {
	return internalHeaderSize + i*internalEntrySize
}

// KeyAt 下标处的分隔键。下标0为占位键，查找时忽略。
func (n *InternalPage) KeyAt(i int) basic.Key {
	var k basic.Key
	copy(k[:], n.data()[n.entryOffset(i):])
	return k
}

// SetKeyAt 设置分隔键
func (n *InternalPage) SetKeyAt(i int, key basic.Key) {
	copy(n.data()[n.entryOffset(i):], key[:])
}

// ValueAt 下标处的孩子页面
func (n *InternalPage) ValueAt(i int) common.PageID {
	off := n.entryOffset(i) + basic.KeySize
	return common.PageID(binary.LittleEndian.Uint32(n.data()[off:]))
}

// SetValueAt 设置孩子页面
func (n *InternalPage) SetValueAt(i int, id common.PageID) {
	off := n.entryOffset(i) + basic.KeySize
	binary.LittleEndian.PutUint32(n.data()[off:], uint32(id))
}

func (n *InternalPage) setEntry(i int, key basic.Key, child common.PageID) {
	n.SetKeyAt(i, key)
	n.SetValueAt(i, child)
}

// entriesRegion 返回[from, to)条目的原始字节
func (n *InternalPage) entriesRegion(from, to int) []byte {
	return n.data()[n.entryOffset(from):n.entryOffset(to)]
}

// ValueIndex returns the slot holding child, -1 when absent. Children are
// not ordered by id, so this is a linear scan.
func (n *InternalPage) ValueIndex(child common.PageID) int {
	for i := 0; i < n.GetSize(); i++ {
		if n.ValueAt(i) == child {
			return i
		}
	}
	return -1
}

// Lookup returns the child whose subtree covers key: upper bound over the
// separator keys (slots 1..size-1), then one step left.
func (n *InternalPage) Lookup(key basic.Key, cmp basic.Comparator) common.PageID {
	left, right := 1, n.GetSize()-1
	for left <= right {
		mid := left + (right-left)/2
		if cmp(n.KeyAt(mid), key) > 0 {
			right = mid - 1
		} else {
			left = mid + 1
		}
	}
	return n.ValueAt(left - 1)
}

// PopulateNewRoot initializes a fresh root holding exactly two children
// separated by key.
func (n *InternalPage) PopulateNewRoot(left common.PageID, key basic.Key, right common.PageID) {
	n.SetValueAt(0, left)
	n.setEntry(1, key, right)
	n.SetSize(2)
}

// InsertNodeAfter inserts (key, newChild) immediately after the slot whose
// child equals oldChild and returns the new size.
func (n *InternalPage) InsertNodeAfter(oldChild common.PageID, key basic.Key, newChild common.PageID) int {
	idx := n.ValueIndex(oldChild) + 1
	size := n.GetSize()
	// [idx, size) 整体右移一个条目
	copy(n.entriesRegion(idx+1, size+1), n.entriesRegion(idx, size))
	n.setEntry(idx, key, newChild)
	n.IncreaseSize(1)
	return n.GetSize()
}

// Remove deletes the entry at index, shifting the suffix left.
func (n *InternalPage) Remove(index int) {
	size := n.GetSize()
	copy(n.entriesRegion(index, size-1), n.entriesRegion(index+1, size))
	n.IncreaseSize(-1)
}

// RemoveAndReturnOnlyChild empties the node and returns its sole child.
// Only meaningful during root collapse.
func (n *InternalPage) RemoveAndReturnOnlyChild() common.PageID {
	child := n.ValueAt(0)
	n.SetSize(0)
	return child
}

// MoveHalfTo transfers the upper half of this node to an empty recipient and
// re-parents every moved child. Used during split.
func (n *InternalPage) MoveHalfTo(recipient *InternalPage, pool *buffer_pool.BufferPoolManager) error {
	size := n.GetSize()
	start := size / 2
	moveNum := size - start
	if err := recipient.copyNFrom(n.entriesRegion(start, size), moveNum, pool); err != nil {
		return err
	}
	n.IncreaseSize(-moveNum)
	return nil
}

// copyNFrom appends n raw entries and adopts the children they point to.
func (n *InternalPage) copyNFrom(raw []byte, count int, pool *buffer_pool.BufferPoolManager) error {
	size := n.GetSize()
	copy(n.entriesRegion(size, size+count), raw)
	n.IncreaseSize(count)
	for i := size; i < size+count; i++ {
		if err := n.adoptChild(n.ValueAt(i), pool); err != nil {
			return err
		}
	}
	return nil
}

// adoptChild rewrites a moved child's parent pointer to this node.
func (n *InternalPage) adoptChild(childID common.PageID, pool *buffer_pool.BufferPoolManager) error {
	frame, err := pool.FetchPage(childID)
	if err != nil {
		return err
	}
	treePageView(frame).SetParentPageID(n.GetPageID())
	pool.UnpinPage(childID, true)
	return nil
}

// MoveAllTo appends every entry to the recipient (this node's left sibling).
// The middle key is the parent separator between the two siblings; it fills
// this node's sentinel slot so the separator travels down with the merge.
func (n *InternalPage) MoveAllTo(recipient *InternalPage, middleKey basic.Key, pool *buffer_pool.BufferPoolManager) error {
	n.SetKeyAt(0, middleKey)
	size := n.GetSize()
	if err := recipient.copyNFrom(n.entriesRegion(0, size), size, pool); err != nil {
		return err
	}
	n.SetSize(0)
	return nil
}

// MoveFirstToEndOf shifts this node's first entry onto the recipient's tail.
// Used when redistributing with a right sibling.
func (n *InternalPage) MoveFirstToEndOf(recipient *InternalPage, middleKey basic.Key, pool *buffer_pool.BufferPoolManager) error {
	n.SetKeyAt(0, middleKey)
	key, child := n.KeyAt(0), n.ValueAt(0)
	n.Remove(0)

	rsize := recipient.GetSize()
	recipient.setEntry(rsize, key, child)
	recipient.IncreaseSize(1)
	return recipient.adoptChild(child, pool)
}

// MoveLastToFrontOf shifts this node's last entry onto the recipient's head.
// The old parent separator lands in the recipient's slot 1.
func (n *InternalPage) MoveLastToFrontOf(recipient *InternalPage, middleKey basic.Key, pool *buffer_pool.BufferPoolManager) error {
	recipient.SetKeyAt(0, middleKey)
	size := n.GetSize()
	key, child := n.KeyAt(size-1), n.ValueAt(size-1)
	n.IncreaseSize(-1)

	rsize := recipient.GetSize()
	copy(recipient.entriesRegion(1, rsize+1), recipient.entriesRegion(0, rsize))
	recipient.setEntry(0, key, child)
	recipient.IncreaseSize(1)
	return recipient.adoptChild(child, pool)
}
