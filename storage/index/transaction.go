package index

import (
	"github.com/vesperdb/vesper/common"
	"github.com/vesperdb/vesper/storage/page"
)

// Transaction is the per-operation scratchpad of a tree descent: the
// write-latched ancestor frames in root-to-leaf order, plus the page ids
// queued for deletion once the operation finishes and all latches are gone.
type Transaction struct {
	pageSet        []*page.Frame
	deletedPageSet map[common.PageID]struct{}
}

// NewTransaction 创建一个空的描述符
func NewTransaction() *Transaction {
	return &Transaction{
		deletedPageSet: make(map[common.PageID]struct{}),
	}
}

// AddIntoPageSet appends a latched ancestor frame.
func (t *Transaction) AddIntoPageSet(f *page.Frame) {
	t.pageSet = append(t.pageSet, f)
}

// PageSet returns the latched ancestors in acquisition order.
func (t *Transaction) PageSet() []*page.Frame {
	return t.pageSet
}

// ClearPageSet 清空祖先列表
func (t *Transaction) ClearPageSet() {
	t.pageSet = t.pageSet[:0]
}

// AddIntoDeletedPageSet queues a page for deletion after latch release.
func (t *Transaction) AddIntoDeletedPageSet(id common.PageID) {
	t.deletedPageSet[id] = struct{}{}
}

// DeletedPageSet returns the queued page ids.
func (t *Transaction) DeletedPageSet() map[common.PageID]struct{} {
	return t.deletedPageSet
}

// ClearDeletedPageSet 清空删除队列
func (t *Transaction) ClearDeletedPageSet() {
	t.deletedPageSet = make(map[common.PageID]struct{})
}
