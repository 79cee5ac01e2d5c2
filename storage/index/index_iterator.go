package index

import (
	"github.com/juju/errors"

	"github.com/vesperdb/vesper/basic"
	"github.com/vesperdb/vesper/storage/buffer_pool"
	"github.com/vesperdb/vesper/storage/latch"
	"github.com/vesperdb/vesper/storage/page"
)

// IndexIterator is a forward cursor over the leaf level. It holds exactly
// one leaf read-latched and pinned; advancing across a leaf boundary
// acquires the next leaf before releasing the previous one, so the chain
// stays intact under concurrent right-side splits.
type IndexIterator struct {
	pool  *buffer_pool.BufferPoolManager
	frame *page.Frame
	leaf  *LeafPage
	index int
}

func newIndexIterator(pool *buffer_pool.BufferPoolManager, frame *page.Frame, index int) (*IndexIterator, error) {
	it := &IndexIterator{pool: pool}
	if frame == nil {
		return it, nil
	}
	it.frame = frame
	it.leaf = leafView(frame)
	it.index = index
	// 起始下标落在叶子末尾时推进到下一个叶子
	for it.frame != nil && it.index == it.leaf.GetSize() && it.leaf.GetNextPageID().IsValid() {
		if err := it.stepLeaf(); err != nil {
			it.Close()
			return nil, errors.Trace(err)
		}
	}
	return it, nil
}

// Iterator positions a cursor on the first entry of the tree.
func (t *BPlusTree) Iterator() (*IndexIterator, error) {
	frame, _, err := t.findLeaf(basic.Key{}, OpFind, nil, true, false)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return newIndexIterator(t.pool, frame, 0)
}

// IteratorFrom positions a cursor on the first entry whose key is >= key.
func (t *BPlusTree) IteratorFrom(key basic.Key) (*IndexIterator, error) {
	frame, _, err := t.findLeaf(key, OpFind, nil, false, false)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if frame == nil {
		return newIndexIterator(t.pool, nil, 0)
	}
	return newIndexIterator(t.pool, frame, leafView(frame).KeyIndex(key, t.cmp))
}

// IsEnd reports whether the cursor has run off the last entry.
func (it *IndexIterator) IsEnd() bool {
	if it.frame == nil {
		return true
	}
	return !it.leaf.GetNextPageID().IsValid() && it.index == it.leaf.GetSize()
}

// Entry returns the current key and record id.
func (it *IndexIterator) Entry() (basic.Key, basic.RID) {
	return it.leaf.Item(it.index)
}

// Key returns the current key.
func (it *IndexIterator) Key() basic.Key {
	return it.leaf.KeyAt(it.index)
}

// stepLeaf hands the cursor over to the next leaf: latch the next frame
// first, then release the current one.
func (it *IndexIterator) stepLeaf() error {
	nextID := it.leaf.GetNextPageID()
	nextFrame, err := it.pool.FetchPage(nextID)
	if err != nil {
		return errors.Annotatef(err, "fetch next leaf %d", nextID)
	}
	nextFrame.Latch(latch.ModeRead)
	it.frame.Unlatch(latch.ModeRead)
	it.pool.UnpinPage(it.frame.PageID(), false)

	it.frame = nextFrame
	it.leaf = leafView(nextFrame)
	it.index = 0
	return nil
}

// Next advances the cursor by one entry.
func (it *IndexIterator) Next() error {
	it.index++
	if it.index == it.leaf.GetSize() && it.leaf.GetNextPageID().IsValid() {
		return it.stepLeaf()
	}
	return nil
}

// Close releases the held leaf. Safe to call more than once.
func (it *IndexIterator) Close() {
	if it.frame == nil {
		return
	}
	it.frame.Unlatch(latch.ModeRead)
	it.pool.UnpinPage(it.frame.PageID(), false)
	it.frame = nil
	it.leaf = nil
}
