package page

import (
	"github.com/vesperdb/vesper/common"
	"github.com/vesperdb/vesper/storage/latch"
)

// Frame is one slot of the buffer pool: a page-sized byte buffer plus its
// control metadata. The metadata fields (page id, pin count, dirty flag) are
// owned by the buffer pool and only mutated under the pool latch; the byte
// content is protected by the frame's own reader/writer latch.
type Frame struct {
	data [common.PageSize]byte

	pageID   common.PageID
	pinCount int32
	dirty    bool

	// 帧内容读写锁，与缓冲池元数据锁相互独立
	lock latch.Latch
}

// NewFrame 创建一个空闲帧
func NewFrame() *Frame {
	return &Frame{pageID: common.InvalidPageID}
}

// Data returns the page image. Readers and writers must hold the frame latch.
func (f *Frame) Data() []byte {
	return f.data[:]
}

// PageID 当前占用该帧的逻辑页面
func (f *Frame) PageID() common.PageID {
	return f.pageID
}

// PinCount 活跃持有者数量
func (f *Frame) PinCount() int32 {
	return f.pinCount
}

// IsDirty reports whether the frame content diverges from disk.
func (f *Frame) IsDirty() bool {
	return f.dirty
}

// SetPageID is called by the buffer pool when installing a page.
func (f *Frame) SetPageID(id common.PageID) {
	f.pageID = id
}

// SetDirty is called by the buffer pool under the pool latch.
func (f *Frame) SetDirty(dirty bool) {
	f.dirty = dirty
}

// SetPinCount 重置引用计数
func (f *Frame) SetPinCount(n int32) {
	f.pinCount = n
}

// IncPinCount 增加引用计数
func (f *Frame) IncPinCount() {
	f.pinCount++
}

// DecPinCount 减少引用计数
func (f *Frame) DecPinCount() {
	f.pinCount--
}

// Reset zeroes the byte buffer and clears all metadata.
func (f *Frame) Reset() {
	for i := range f.data {
		f.data[i] = 0
	}
	f.pageID = common.InvalidPageID
	f.pinCount = 0
	f.dirty = false
}

// Latch acquires the content latch in mode m.
func (f *Frame) Latch(m latch.Mode) {
	f.lock.Acquire(m)
}

// Unlatch releases a content latch hold taken in mode m.
func (f *Frame) Unlatch(m latch.Mode) {
	f.lock.Release(m)
}
