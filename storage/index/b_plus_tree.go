package index

import (
	"sync"

	"github.com/juju/errors"

	"github.com/vesperdb/vesper/basic"
	"github.com/vesperdb/vesper/common"
	"github.com/vesperdb/vesper/logger"
	"github.com/vesperdb/vesper/storage/buffer_pool"
	"github.com/vesperdb/vesper/storage/latch"
	"github.com/vesperdb/vesper/storage/page"
)

// Operation classifies a tree descent. The latch mode and the safety
// predicate both depend on it.
type Operation int

const (
	OpFind Operation = iota
	OpInsert
	OpDelete
)

// latchMode 下降操作对应的帧锁类别
func (op Operation) latchMode() latch.Mode {
	if op == OpFind {
		return latch.ModeRead
	}
	return latch.ModeWrite
}

// BPlusTree is a concurrent B+tree index over the buffer pool. Keys are
// unique. Every latch taken on a node is a latch on its frame; descents
// follow the latch-crabbing protocol: a child's latch is always acquired
// before the parent's is released, and write descents keep the whole latched
// path until the child is proven safe.
type BPlusTree struct {
	name string
	pool *buffer_pool.BufferPoolManager
	cmp  basic.Comparator

	leafMaxSize     int
	internalMaxSize int

	// rootLatch 保护root page id；每次下降在拿到根页面锁前持有
	rootLatch  sync.Mutex
	rootPageID common.PageID
}

// NewBPlusTree opens the index named name, loading its root from the header
// page when it was created before. Zero max sizes select the page-size
// derived defaults.
func NewBPlusTree(name string, pool *buffer_pool.BufferPoolManager, cmp basic.Comparator, leafMaxSize, internalMaxSize int) (*BPlusTree, error) {
	if leafMaxSize <= 0 {
		leafMaxSize = DefaultLeafMaxSize
	}
	if internalMaxSize <= 0 {
		internalMaxSize = DefaultInternalMaxSize
	}
	t := &BPlusTree{
		name:            name,
		pool:            pool,
		cmp:             cmp,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootPageID:      common.InvalidPageID,
	}

	frame, err := pool.FetchPage(common.HeaderPageID)
	if err != nil {
		return nil, errors.Annotate(err, "fetch header page")
	}
	frame.Latch(latch.ModeRead)
	if rootID, ok := page.HeaderPageView(frame).GetRootID(name); ok {
		t.rootPageID = rootID
	}
	frame.Unlatch(latch.ModeRead)
	pool.UnpinPage(common.HeaderPageID, false)

	return t, nil
}

// IsEmpty reports whether the tree has no entries.
func (t *BPlusTree) IsEmpty() bool {
	t.rootLatch.Lock()
	defer t.rootLatch.Unlock()
	return !t.rootPageID.IsValid()
}

// updateRootPageID persists the root page id under the index name in the
// header page.
func (t *BPlusTree) updateRootPageID(insertRecord bool) error {
	frame, err := t.pool.FetchPage(common.HeaderPageID)
	if err != nil {
		return errors.Annotate(err, "fetch header page")
	}
	frame.Latch(latch.ModeWrite)
	header := page.HeaderPageView(frame)
	if insertRecord {
		if !header.InsertRecord(t.name, t.rootPageID) {
			header.UpdateRecord(t.name, t.rootPageID)
		}
	} else {
		if !header.UpdateRecord(t.name, t.rootPageID) {
			header.InsertRecord(t.name, t.rootPageID)
		}
	}
	frame.Unlatch(latch.ModeWrite)
	t.pool.UnpinPage(common.HeaderPageID, true)
	return nil
}

// isSafe reports whether a local mutation of node cannot propagate a
// structural change to its parent.
func (t *BPlusTree) isSafe(node *BPlusTreePage, op Operation) bool {
	switch op {
	case OpInsert:
		if node.IsLeafPage() || node.IsRootPage() {
			return node.GetSize() < node.GetMaxSize()-1
		}
		return node.GetSize() < node.GetMaxSize()
	case OpDelete:
		// 根节点只在专门的收缩路径中处理
		if node.IsRootPage() {
			return node.GetSize() > 2
		}
		return node.GetSize() > node.GetMinSize()
	default:
		return true
	}
}

// releaseWLatches unlatches and unpins every ancestor collected during a
// write descent, in acquisition order.
func (t *BPlusTree) releaseWLatches(txn *Transaction) {
	if txn == nil {
		return
	}
	for _, frame := range txn.PageSet() {
		frame.Unlatch(latch.ModeWrite)
		t.pool.UnpinPage(frame.PageID(), false)
	}
	txn.ClearPageSet()
}

// findLeaf descends from the root to the leaf responsible for key, holding
// latches per the crabbing protocol. The returned frame is latched (read
// latch for OpFind, write latch otherwise) and pinned. The second result
// says whether rootLatch is still held; the caller must release it.
//
// A nil frame with nil error means the tree is empty.
func (t *BPlusTree) findLeaf(key basic.Key, op Operation, txn *Transaction, leftMost, rightMost bool) (*page.Frame, bool, error) {
	t.rootLatch.Lock()
	rootLocked := true

	if !t.rootPageID.IsValid() {
		t.rootLatch.Unlock()
		return nil, false, nil
	}

	frame, err := t.pool.FetchPage(t.rootPageID)
	if err != nil {
		t.rootLatch.Unlock()
		return nil, false, errors.Annotate(err, "fetch root page")
	}

	mode := op.latchMode()
	frame.Latch(mode)
	if op == OpFind || t.isSafe(treePageView(frame), op) {
		t.rootLatch.Unlock()
		rootLocked = false
	}

	for !treePageView(frame).IsLeafPage() {
		inner := internalView(frame)
		var childID common.PageID
		switch {
		case leftMost:
			childID = inner.ValueAt(0)
		case rightMost:
			childID = inner.ValueAt(inner.GetSize() - 1)
		default:
			childID = inner.Lookup(key, t.cmp)
		}

		childFrame, err := t.pool.FetchPage(childID)
		if err != nil {
			if rootLocked {
				t.rootLatch.Unlock()
				rootLocked = false
			}
			t.releaseWLatches(txn)
			frame.Unlatch(mode)
			t.pool.UnpinPage(frame.PageID(), false)
			return nil, false, errors.Annotatef(err, "fetch child page %d", childID)
		}

		childFrame.Latch(mode)
		if op == OpFind {
			// 读下降：拿到孩子读锁后立刻释放父节点
			frame.Unlatch(mode)
			t.pool.UnpinPage(frame.PageID(), false)
		} else {
			txn.AddIntoPageSet(frame)
			if t.isSafe(treePageView(childFrame), op) {
				if rootLocked {
					t.rootLatch.Unlock()
					rootLocked = false
				}
				t.releaseWLatches(txn)
			}
		}
		frame = childFrame
	}

	return frame, rootLocked, nil
}

// unwindWrite releases everything a write operation still holds: the root
// latch, the latched ancestors and the leaf frame itself.
func (t *BPlusTree) unwindWrite(txn *Transaction, frame *page.Frame, rootLocked bool, dirty bool) {
	if rootLocked {
		t.rootLatch.Unlock()
	}
	t.releaseWLatches(txn)
	if frame != nil {
		frame.Unlatch(latch.ModeWrite)
		t.pool.UnpinPage(frame.PageID(), dirty)
	}
}

// GetValue looks up key and returns its record id.
func (t *BPlusTree) GetValue(key basic.Key) (basic.RID, bool, error) {
	frame, _, err := t.findLeaf(key, OpFind, nil, false, false)
	if err != nil {
		return basic.RID{}, false, errors.Trace(err)
	}
	if frame == nil {
		return basic.RID{}, false, nil
	}
	leaf := leafView(frame)
	value, ok := leaf.Lookup(key, t.cmp)
	frame.Unlatch(latch.ModeRead)
	t.pool.UnpinPage(frame.PageID(), false)
	return value, ok, nil
}

// Insert adds (key, value). It returns false when the key already exists.
func (t *BPlusTree) Insert(key basic.Key, value basic.RID) (bool, error) {
	txn := NewTransaction()

	t.rootLatch.Lock()
	if !t.rootPageID.IsValid() {
		err := t.startNewTree(key, value)
		t.rootLatch.Unlock()
		return err == nil, err
	}
	t.rootLatch.Unlock()

	return t.insertIntoLeaf(key, value, txn)
}

// startNewTree allocates the first leaf and installs it as root. Caller
// holds rootLatch.
func (t *BPlusTree) startNewTree(key basic.Key, value basic.RID) error {
	frame, pageID, err := t.pool.NewPage()
	if err != nil {
		if buffer_pool.IsBufferPoolFull(err) {
			return ErrOutOfMemory
		}
		return errors.Annotate(err, "allocate root leaf")
	}

	leaf := leafView(frame)
	leaf.Init(pageID, common.InvalidPageID, t.leafMaxSize)
	leaf.Insert(key, value, t.cmp)

	t.rootPageID = pageID
	if err := t.updateRootPageID(true); err != nil {
		t.pool.UnpinPage(pageID, true)
		return errors.Trace(err)
	}
	t.pool.UnpinPage(pageID, true)

	logger.Debugf("b+tree %s: started new tree, root leaf %d", t.name, pageID)
	return nil
}

// insertIntoLeaf inserts into the write-latched leaf found by descent,
// splitting upward when the leaf overflows.
func (t *BPlusTree) insertIntoLeaf(key basic.Key, value basic.RID, txn *Transaction) (bool, error) {
	frame, rootLocked, err := t.findLeaf(key, OpInsert, txn, false, false)
	if err != nil {
		return false, errors.Trace(err)
	}
	if frame == nil {
		// 树在检查后被并发清空，重新从头插入
		return t.Insert(key, value)
	}

	leaf := leafView(frame)
	if _, exists := leaf.Lookup(key, t.cmp); exists {
		t.unwindWrite(txn, frame, rootLocked, false)
		return false, nil
	}

	newSize := leaf.Insert(key, value, t.cmp)
	if newSize < leaf.GetMaxSize() {
		t.unwindWrite(txn, frame, rootLocked, true)
		return true, nil
	}

	// 叶子溢出，分裂并向上传播分隔键
	newLeaf, err := t.splitLeaf(leaf)
	if err != nil {
		t.unwindWrite(txn, frame, rootLocked, true)
		return false, errors.Trace(err)
	}

	err = t.insertIntoParent(&leaf.BPlusTreePage, newLeaf.KeyAt(0), &newLeaf.BPlusTreePage, txn, &rootLocked)
	t.pool.UnpinPage(newLeaf.GetPageID(), true)
	frame.Unlatch(latch.ModeWrite)
	t.pool.UnpinPage(frame.PageID(), true)
	if err != nil {
		return false, errors.Trace(err)
	}
	return true, nil
}

// splitLeaf allocates a sibling, moves the upper half over and links it into
// the leaf chain.
func (t *BPlusTree) splitLeaf(leaf *LeafPage) (*LeafPage, error) {
	frame, pageID, err := t.pool.NewPage()
	if err != nil {
		if buffer_pool.IsBufferPoolFull(err) {
			return nil, ErrOutOfMemory
		}
		return nil, errors.Annotate(err, "allocate leaf during split")
	}

	newLeaf := leafView(frame)
	newLeaf.Init(pageID, leaf.GetParentPageID(), t.leafMaxSize)
	leaf.MoveHalfTo(newLeaf)
	newLeaf.SetNextPageID(leaf.GetNextPageID())
	leaf.SetNextPageID(pageID)

	logger.Debugf("b+tree %s: split leaf %d -> %d", t.name, leaf.GetPageID(), pageID)
	return newLeaf, nil
}

// splitInternal allocates a sibling and moves the upper half over,
// re-parenting the moved children.
func (t *BPlusTree) splitInternal(node *InternalPage) (*InternalPage, error) {
	frame, pageID, err := t.pool.NewPage()
	if err != nil {
		if buffer_pool.IsBufferPoolFull(err) {
			return nil, ErrOutOfMemory
		}
		return nil, errors.Annotate(err, "allocate internal node during split")
	}

	newNode := internalView(frame)
	newNode.Init(pageID, node.GetParentPageID(), t.internalMaxSize)
	if err := node.MoveHalfTo(newNode, t.pool); err != nil {
		t.pool.UnpinPage(pageID, true)
		return nil, errors.Trace(err)
	}

	logger.Debugf("b+tree %s: split internal %d -> %d", t.name, node.GetPageID(), pageID)
	return newNode, nil
}

// insertIntoParent propagates the separator of a split pair upward,
// recursing while parents overflow. It releases the root latch and the
// latched ancestors as soon as the cascade stops.
func (t *BPlusTree) insertIntoParent(old *BPlusTreePage, key basic.Key, newNode *BPlusTreePage, txn *Transaction, rootLocked *bool) error {
	if old.IsRootPage() {
		frame, pageID, err := t.pool.NewPage()
		if err != nil {
			if *rootLocked {
				t.rootLatch.Unlock()
				*rootLocked = false
			}
			t.releaseWLatches(txn)
			if buffer_pool.IsBufferPoolFull(err) {
				return ErrOutOfMemory
			}
			return errors.Annotate(err, "allocate new root")
		}

		root := internalView(frame)
		root.Init(pageID, common.InvalidPageID, t.internalMaxSize)
		root.PopulateNewRoot(old.GetPageID(), key, newNode.GetPageID())
		old.SetParentPageID(pageID)
		newNode.SetParentPageID(pageID)

		t.rootPageID = pageID
		err = t.updateRootPageID(false)
		if *rootLocked {
			t.rootLatch.Unlock()
			*rootLocked = false
		}
		t.releaseWLatches(txn)
		t.pool.UnpinPage(pageID, true)

		logger.Debugf("b+tree %s: new root %d", t.name, pageID)
		return errors.Trace(err)
	}

	// 父节点仍被本次下降持有写锁，fetch只增加引用
	parentFrame, err := t.pool.FetchPage(old.GetParentPageID())
	if err != nil {
		if *rootLocked {
			t.rootLatch.Unlock()
			*rootLocked = false
		}
		t.releaseWLatches(txn)
		return errors.Annotate(err, "fetch parent during split")
	}
	parent := internalView(parentFrame)

	newSize := parent.InsertNodeAfter(old.GetPageID(), key, newNode.GetPageID())
	if newSize <= parent.GetMaxSize() {
		if *rootLocked {
			t.rootLatch.Unlock()
			*rootLocked = false
		}
		t.releaseWLatches(txn)
		t.pool.UnpinPage(parentFrame.PageID(), true)
		return nil
	}

	newParent, err := t.splitInternal(parent)
	if err != nil {
		if *rootLocked {
			t.rootLatch.Unlock()
			*rootLocked = false
		}
		t.releaseWLatches(txn)
		t.pool.UnpinPage(parentFrame.PageID(), true)
		return errors.Trace(err)
	}

	err = t.insertIntoParent(&parent.BPlusTreePage, newParent.KeyAt(0), &newParent.BPlusTreePage, txn, rootLocked)
	t.pool.UnpinPage(newParent.GetPageID(), true)
	t.pool.UnpinPage(parentFrame.PageID(), true)
	return errors.Trace(err)
}

// Remove deletes key from the tree. Removing an absent key is a no-op.
func (t *BPlusTree) Remove(key basic.Key) error {
	txn := NewTransaction()

	frame, rootLocked, err := t.findLeaf(key, OpDelete, txn, false, false)
	if err != nil {
		return errors.Trace(err)
	}
	if frame == nil {
		return nil
	}

	leaf := leafView(frame)
	oldSize := leaf.GetSize()
	if leaf.RemoveAndDeleteRecord(key, t.cmp) == oldSize {
		t.unwindWrite(txn, frame, rootLocked, false)
		return nil
	}

	if err := t.coalesceOrRedistribute(&leaf.BPlusTreePage, txn); err != nil {
		t.unwindWrite(txn, frame, rootLocked, true)
		return errors.Trace(err)
	}

	t.unwindWrite(txn, frame, rootLocked, true)

	// 结构变更产生的废弃页面在所有锁释放后统一删除
	for pageID := range txn.DeletedPageSet() {
		if err := t.pool.DeletePage(pageID); err != nil {
			logger.Warnf("b+tree %s: delete page %d: %v", t.name, pageID, err)
		}
	}
	txn.ClearDeletedPageSet()
	return nil
}

// coalesceOrRedistribute restores the minimum-size invariant of node after a
// delete, merging with or borrowing from a sibling. Pages emptied by a merge
// are queued on the transaction.
func (t *BPlusTree) coalesceOrRedistribute(node *BPlusTreePage, txn *Transaction) error {
	if node.IsRootPage() {
		return t.adjustRoot(node, txn)
	}
	if node.GetSize() >= node.GetMinSize() {
		return nil
	}

	parentFrame, err := t.pool.FetchPage(node.GetParentPageID())
	if err != nil {
		return errors.Annotate(err, "fetch parent during rebalance")
	}
	parent := internalView(parentFrame)

	idx := parent.ValueIndex(node.GetPageID())
	siblingIdx := idx - 1
	if idx == 0 {
		siblingIdx = 1
	}
	siblingID := parent.ValueAt(siblingIdx)

	siblingFrame, err := t.pool.FetchPage(siblingID)
	if err != nil {
		t.pool.UnpinPage(parentFrame.PageID(), false)
		return errors.Annotatef(err, "fetch sibling page %d", siblingID)
	}
	siblingFrame.Latch(latch.ModeWrite)

	if node.GetSize()+treePageView(siblingFrame).GetSize() > node.mergeCapacity() {
		err = t.redistribute(siblingFrame, node, parent, idx)
		siblingFrame.Unlatch(latch.ModeWrite)
		t.pool.UnpinPage(siblingID, true)
		t.pool.UnpinPage(parentFrame.PageID(), true)
		return errors.Trace(err)
	}

	err = t.coalesce(siblingFrame, node, parent, idx, txn)
	siblingFrame.Unlatch(latch.ModeWrite)
	t.pool.UnpinPage(siblingID, true)
	t.pool.UnpinPage(parentFrame.PageID(), true)
	return errors.Trace(err)
}

// coalesce merges node into its left sibling (roles swap when node is the
// leftmost child), removes the separator from the parent and recurses when
// the parent underflows.
func (t *BPlusTree) coalesce(siblingFrame *page.Frame, node *BPlusTreePage, parent *InternalPage, idx int, txn *Transaction) error {
	neighbor := treePageView(siblingFrame)
	keyIdx := idx
	if idx == 0 {
		// neighbor在右侧，交换角色使接收方恒为左节点
		node, neighbor = neighbor, node
		keyIdx = 1
	}
	middleKey := parent.KeyAt(keyIdx)

	if node.IsLeafPage() {
		leafView(node.Frame()).MoveAllTo(leafView(neighbor.Frame()))
	} else {
		if err := internalView(node.Frame()).MoveAllTo(internalView(neighbor.Frame()), middleKey, t.pool); err != nil {
			return errors.Trace(err)
		}
	}
	txn.AddIntoDeletedPageSet(node.GetPageID())
	parent.Remove(keyIdx)

	logger.Debugf("b+tree %s: merged page %d into %d", t.name, node.GetPageID(), neighbor.GetPageID())
	return t.coalesceOrRedistribute(&parent.BPlusTreePage, txn)
}

// redistribute moves one entry between node and its sibling and repairs the
// separator key in the parent.
func (t *BPlusTree) redistribute(siblingFrame *page.Frame, node *BPlusTreePage, parent *InternalPage, idx int) error {
	if node.IsLeafPage() {
		nodeLeaf := leafView(node.Frame())
		sibLeaf := leafView(siblingFrame)
		if idx == 0 {
			// 右兄弟首条目移入node尾部
			sibLeaf.MoveFirstToEndOf(nodeLeaf)
			parent.SetKeyAt(1, sibLeaf.KeyAt(0))
		} else {
			// 左兄弟末条目移入node头部
			sibLeaf.MoveLastToFrontOf(nodeLeaf)
			parent.SetKeyAt(idx, nodeLeaf.KeyAt(0))
		}
		return nil
	}

	nodeInt := internalView(node.Frame())
	sibInt := internalView(siblingFrame)
	if idx == 0 {
		if err := sibInt.MoveFirstToEndOf(nodeInt, parent.KeyAt(1), t.pool); err != nil {
			return errors.Trace(err)
		}
		parent.SetKeyAt(1, sibInt.KeyAt(0))
	} else {
		if err := sibInt.MoveLastToFrontOf(nodeInt, parent.KeyAt(idx), t.pool); err != nil {
			return errors.Trace(err)
		}
		parent.SetKeyAt(idx, nodeInt.KeyAt(0))
	}
	return nil
}

// adjustRoot handles the two root collapse cases: an internal root left with
// a single child is replaced by that child; an empty leaf root empties the
// whole tree.
func (t *BPlusTree) adjustRoot(oldRoot *BPlusTreePage, txn *Transaction) error {
	if !oldRoot.IsLeafPage() && oldRoot.GetSize() == 1 {
		child := internalView(oldRoot.Frame()).RemoveAndReturnOnlyChild()
		t.rootPageID = child
		if err := t.updateRootPageID(false); err != nil {
			return errors.Trace(err)
		}

		childFrame, err := t.pool.FetchPage(child)
		if err != nil {
			return errors.Annotate(err, "fetch promoted root")
		}
		treePageView(childFrame).SetParentPageID(common.InvalidPageID)
		t.pool.UnpinPage(child, true)

		txn.AddIntoDeletedPageSet(oldRoot.GetPageID())
		logger.Debugf("b+tree %s: root collapsed, new root %d", t.name, child)
		return nil
	}

	if oldRoot.IsLeafPage() && oldRoot.GetSize() == 0 {
		t.rootPageID = common.InvalidPageID
		if err := t.updateRootPageID(false); err != nil {
			return errors.Trace(err)
		}
		txn.AddIntoDeletedPageSet(oldRoot.GetPageID())
		logger.Debugf("b+tree %s: tree emptied", t.name)
		return nil
	}

	return nil
}
