package index

import (
	"github.com/juju/errors"

	"github.com/vesperdb/vesper/basic"
	"github.com/vesperdb/vesper/common"
)

// Verify walks the whole tree and checks its structural invariants: size
// bounds on every non-root node, separator ordering, parent pointers, and
// an ascending duplicate-free leaf chain. Intended for tests on a quiesced
// tree; it takes no latches.
func (t *BPlusTree) Verify() error {
	t.rootLatch.Lock()
	rootID := t.rootPageID
	t.rootLatch.Unlock()

	if !rootID.IsValid() {
		return nil
	}

	if _, _, err := t.verifyNode(rootID, nil, nil, true); err != nil {
		return errors.Trace(err)
	}
	return t.verifyLeafChain(rootID)
}

// verifyNode checks the subtree rooted at pageID. lower/upper bound the keys
// allowed inside (lower inclusive, upper exclusive). Returns the min and max
// keys actually present.
func (t *BPlusTree) verifyNode(pageID common.PageID, lower, upper *basic.Key, isRoot bool) (basic.Key, basic.Key, error) {
	frame, err := t.pool.FetchPage(pageID)
	if err != nil {
		return basic.Key{}, basic.Key{}, errors.Annotatef(err, "fetch page %d", pageID)
	}
	defer t.pool.UnpinPage(pageID, false)

	node := treePageView(frame)
	size := node.GetSize()

	if !isRoot {
		if size < node.GetMinSize() {
			return basic.Key{}, basic.Key{}, errors.Errorf("page %d: size %d below minimum %d", pageID, size, node.GetMinSize())
		}
		if size > node.GetMaxSize() {
			return basic.Key{}, basic.Key{}, errors.Errorf("page %d: size %d above maximum %d", pageID, size, node.GetMaxSize())
		}
	}

	if node.IsLeafPage() {
		leaf := leafView(frame)
		if size == 0 {
			return basic.Key{}, basic.Key{}, errors.Errorf("leaf %d is empty", pageID)
		}
		for i := 0; i < size; i++ {
			k := leaf.KeyAt(i)
			if i > 0 && t.cmp(leaf.KeyAt(i-1), k) >= 0 {
				return basic.Key{}, basic.Key{}, errors.Errorf("leaf %d: keys out of order at %d", pageID, i)
			}
			if lower != nil && t.cmp(k, *lower) < 0 {
				return basic.Key{}, basic.Key{}, errors.Errorf("leaf %d: key %v below subtree lower bound", pageID, k)
			}
			if upper != nil && t.cmp(k, *upper) >= 0 {
				return basic.Key{}, basic.Key{}, errors.Errorf("leaf %d: key %v above subtree upper bound", pageID, k)
			}
		}
		return leaf.KeyAt(0), leaf.KeyAt(size - 1), nil
	}

	inner := internalView(frame)
	if size < 2 {
		return basic.Key{}, basic.Key{}, errors.Errorf("internal %d: size %d below 2", pageID, size)
	}
	for i := 2; i < size; i++ {
		if t.cmp(inner.KeyAt(i-1), inner.KeyAt(i)) >= 0 {
			return basic.Key{}, basic.Key{}, errors.Errorf("internal %d: separators out of order at %d", pageID, i)
		}
	}

	var minKey, maxKey basic.Key
	for i := 0; i < size; i++ {
		childLower := lower
		childUpper := upper
		if i > 0 {
			k := inner.KeyAt(i)
			childLower = &k
		}
		if i < size-1 {
			k := inner.KeyAt(i + 1)
			childUpper = &k
		}
		childID := inner.ValueAt(i)

		childFrame, err := t.pool.FetchPage(childID)
		if err != nil {
			return basic.Key{}, basic.Key{}, errors.Annotatef(err, "fetch child %d", childID)
		}
		parentID := treePageView(childFrame).GetParentPageID()
		t.pool.UnpinPage(childID, false)
		if parentID != pageID {
			return basic.Key{}, basic.Key{}, errors.Errorf("child %d: parent pointer %d, want %d", childID, parentID, pageID)
		}

		cmin, cmax, err := t.verifyNode(childID, childLower, childUpper, false)
		if err != nil {
			return basic.Key{}, basic.Key{}, errors.Trace(err)
		}
		if i == 0 {
			minKey = cmin
		}
		maxKey = cmax
	}
	return minKey, maxKey, nil
}

// verifyLeafChain follows next pointers from the leftmost leaf and checks
// every key appears in strictly ascending order.
func (t *BPlusTree) verifyLeafChain(rootID common.PageID) error {
	pageID := rootID
	for {
		frame, err := t.pool.FetchPage(pageID)
		if err != nil {
			return errors.Annotatef(err, "fetch page %d", pageID)
		}
		node := treePageView(frame)
		if node.IsLeafPage() {
			t.pool.UnpinPage(pageID, false)
			break
		}
		next := internalView(frame).ValueAt(0)
		t.pool.UnpinPage(pageID, false)
		pageID = next
	}

	var prev *basic.Key
	for pageID.IsValid() {
		frame, err := t.pool.FetchPage(pageID)
		if err != nil {
			return errors.Annotatef(err, "fetch leaf %d", pageID)
		}
		leaf := leafView(frame)
		for i := 0; i < leaf.GetSize(); i++ {
			k := leaf.KeyAt(i)
			if prev != nil && t.cmp(*prev, k) >= 0 {
				t.pool.UnpinPage(pageID, false)
				return errors.Errorf("leaf chain out of order at page %d index %d", pageID, i)
			}
			key := k
			prev = &key
		}
		next := leaf.GetNextPageID()
		t.pool.UnpinPage(pageID, false)
		pageID = next
	}
	return nil
}
