package index

import (
	"encoding/binary"

	"github.com/vesperdb/vesper/basic"
	"github.com/vesperdb/vesper/common"
	"github.com/vesperdb/vesper/storage/page"
)

// 节点页面布局。叶子与内部节点共享头部:
//
//	0..2    page type (uint16)
//	2..4    reserved
//	4..8    current size (int32)
//	8..12   max size (int32)
//	12..16  parent page id (int32)
//	16..20  self page id (int32)
//	20..24  next page id (int32, 仅叶子)
//
// 叶子条目自24起，每条 key(8) + rid(8)；内部条目自20起，每条 key(8) + child(4)。
const (
	offsetPageType = 0
	offsetSize     = 4
	offsetMaxSize  = 8
	offsetParent   = 12
	offsetSelf     = 16
	offsetNext     = 20

	leafHeaderSize     = 24
	internalHeaderSize = 20

	leafEntrySize     = basic.KeySize + basic.RIDSize
	internalEntrySize = basic.KeySize + 4
)

// Page type tags stored in the node header.
const (
	pageTypeInvalid uint16 = iota
	pageTypeLeaf
	pageTypeInternal
)

// Default fan-outs derived from the page size. The leaf capacity is the
// overflow threshold itself; the internal layout keeps one spare entry slot
// because an internal node holds maxSize+1 entries for the instant before
// it splits.
var (
	DefaultLeafMaxSize     = (common.PageSize - leafHeaderSize) / leafEntrySize
	DefaultInternalMaxSize = (common.PageSize-internalHeaderSize)/internalEntrySize - 1
)

// BPlusTreePage is the header view shared by both node kinds. Node views
// never own pages; they interpret the bytes of a pinned frame.
type BPlusTreePage struct {
	frame *page.Frame
}

// treePageView 将一个帧解释为树节点头部
func treePageView(f *page.Frame) *BPlusTreePage {
	return &BPlusTreePage{frame: f}
}

func (p *BPlusTreePage) data() []byte {
	return p.frame.Data()
}

// Frame returns the underlying pinned frame.
func (p *BPlusTreePage) Frame() *page.Frame {
	return p.frame
}

func (p *BPlusTreePage) pageType() uint16 {
	return binary.LittleEndian.Uint16(p.data()[offsetPageType:])
}

func (p *BPlusTreePage) setPageType(t uint16) {
	binary.LittleEndian.PutUint16(p.data()[offsetPageType:], t)
}

// IsLeafPage reports whether the node is a leaf.
func (p *BPlusTreePage) IsLeafPage() bool {
	return p.pageType() == pageTypeLeaf
}

// IsRootPage reports whether the node has no parent.
func (p *BPlusTreePage) IsRootPage() bool {
	return p.GetParentPageID() == common.InvalidPageID
}

// GetSize 当前条目数
func (p *BPlusTreePage) GetSize() int {
	return int(int32(binary.LittleEndian.Uint32(p.data()[offsetSize:])))
}

// SetSize 设置条目数
func (p *BPlusTreePage) SetSize(n int) {
	binary.LittleEndian.PutUint32(p.data()[offsetSize:], uint32(n))
}

// IncreaseSize 调整条目数
func (p *BPlusTreePage) IncreaseSize(delta int) {
	p.SetSize(p.GetSize() + delta)
}

// GetMaxSize 节点容量上限
func (p *BPlusTreePage) GetMaxSize() int {
	return int(int32(binary.LittleEndian.Uint32(p.data()[offsetMaxSize:])))
}

// SetMaxSize 设置容量上限
func (p *BPlusTreePage) SetMaxSize(n int) {
	binary.LittleEndian.PutUint32(p.data()[offsetMaxSize:], uint32(n))
}

// GetMinSize is the underflow threshold for non-root nodes. A leaf overflows
// when it reaches maxSize entries, so its steady occupancy is maxSize-1 and
// the minimum is maxSize/2. An internal node overflows past maxSize children
// and keeps at least ceil(maxSize/2) of them.
func (p *BPlusTreePage) GetMinSize() int {
	if p.IsLeafPage() {
		return p.GetMaxSize() / 2
	}
	return (p.GetMaxSize() + 1) / 2
}

// mergeCapacity is the largest combined size two siblings may have and
// still fit into one node.
func (p *BPlusTreePage) mergeCapacity() int {
	if p.IsLeafPage() {
		return p.GetMaxSize() - 1
	}
	return p.GetMaxSize()
}

// GetParentPageID 父节点页面
func (p *BPlusTreePage) GetParentPageID() common.PageID {
	return common.PageID(binary.LittleEndian.Uint32(p.data()[offsetParent:]))
}

// SetParentPageID 设置父节点页面
func (p *BPlusTreePage) SetParentPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(p.data()[offsetParent:], uint32(id))
}

// GetPageID 自身页面
func (p *BPlusTreePage) GetPageID() common.PageID {
	return common.PageID(binary.LittleEndian.Uint32(p.data()[offsetSelf:]))
}

// SetPageID 设置自身页面
func (p *BPlusTreePage) SetPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(p.data()[offsetSelf:], uint32(id))
}
