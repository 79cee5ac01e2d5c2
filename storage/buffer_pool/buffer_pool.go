package buffer_pool

import (
	"container/list"
	"sync"

	"github.com/vesperdb/vesper/common"
	"github.com/vesperdb/vesper/logger"
	"github.com/vesperdb/vesper/storage/disk"
	"github.com/vesperdb/vesper/storage/page"
)

// BufferPoolManager owns a fixed array of frames and maps logical pages onto
// them. Callers obtain a frame by page id, read or write its bytes under the
// frame latch, then unpin. The pool is agnostic to page contents.
//
// 一把互斥锁保护页表、空闲链表与replacer的成员关系；帧内容由帧自身的读写锁保护。
type BufferPoolManager struct {
	mu sync.Mutex

	poolSize  int
	frames    []*page.Frame
	pageTable map[common.PageID]common.FrameID
	freeList  *list.List
	replacer  *LRUReplacer
	diskMgr   *disk.Manager

	stats
}

// NewBufferPoolManager creates a pool of poolSize frames over diskMgr.
// Initially every frame is on the free list.
func NewBufferPoolManager(poolSize int, diskMgr *disk.Manager) *BufferPoolManager {
	bp := &BufferPoolManager{
		poolSize:  poolSize,
		frames:    make([]*page.Frame, poolSize),
		pageTable: make(map[common.PageID]common.FrameID, poolSize),
		freeList:  list.New(),
		replacer:  NewLRUReplacer(poolSize),
		diskMgr:   diskMgr,
	}
	for i := 0; i < poolSize; i++ {
		bp.frames[i] = page.NewFrame()
		bp.freeList.PushBack(common.FrameID(i))
	}
	return bp
}

// PoolSize 帧数量
func (bp *BufferPoolManager) PoolSize() int {
	return bp.poolSize
}

// findVictimFrame pops the free list first; only when it is empty does the
// replacer supply a victim.
func (bp *BufferPoolManager) findVictimFrame() (common.FrameID, bool) {
	if front := bp.freeList.Front(); front != nil {
		bp.freeList.Remove(front)
		return front.Value.(common.FrameID), true
	}
	return bp.replacer.Victim()
}

// evictFrame writes back the frame's current occupant if dirty and clears
// the frame for reuse.
func (bp *BufferPoolManager) evictFrame(frame *page.Frame) error {
	if frame.PageID().IsValid() {
		if frame.IsDirty() {
			logger.Debugf("evicting dirty page %d, writing back", frame.PageID())
			if err := bp.diskMgr.WritePage(frame.PageID(), frame.Data()); err != nil {
				return err
			}
		}
		delete(bp.pageTable, frame.PageID())
	}
	frame.Reset()
	return nil
}

// FetchPage pins and returns the frame holding pageID, reading it from disk
// on a miss. Returns ErrBufferPoolFull when every frame is pinned.
func (bp *BufferPoolManager) FetchPage(pageID common.PageID) (*page.Frame, error) {
	if !pageID.IsValid() {
		return nil, ErrInvalidPageID
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	if frameID, ok := bp.pageTable[pageID]; ok {
		frame := bp.frames[frameID]
		bp.replacer.Pin(frameID)
		frame.IncPinCount()
		bp.IncrHitCount()
		return frame, nil
	}
	bp.IncrMissCount()

	frameID, ok := bp.findVictimFrame()
	if !ok {
		return nil, ErrBufferPoolFull
	}
	frame := bp.frames[frameID]
	if err := bp.evictFrame(frame); err != nil {
		bp.freeList.PushBack(frameID)
		return nil, err
	}

	frame.SetPageID(pageID)
	bp.pageTable[pageID] = frameID
	if err := bp.diskMgr.ReadPage(pageID, frame.Data()); err != nil {
		delete(bp.pageTable, pageID)
		frame.Reset()
		bp.freeList.PushBack(frameID)
		return nil, err
	}

	bp.replacer.Pin(frameID)
	frame.SetPinCount(1)
	return frame, nil
}

// NewPage allocates a fresh page id from the disk layer and installs it into
// a victim frame with zeroed content, pinned once.
func (bp *BufferPoolManager) NewPage() (*page.Frame, common.PageID, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.findVictimFrame()
	if !ok {
		return nil, common.InvalidPageID, ErrBufferPoolFull
	}
	frame := bp.frames[frameID]
	if err := bp.evictFrame(frame); err != nil {
		bp.freeList.PushBack(frameID)
		return nil, common.InvalidPageID, err
	}

	pageID := bp.diskMgr.AllocatePage()
	frame.SetPageID(pageID)
	bp.pageTable[pageID] = frameID
	bp.replacer.Pin(frameID)
	frame.SetPinCount(1)
	return frame, pageID, nil
}

// UnpinPage releases one holder's share of the frame. The dirty argument is
// OR-merged into the frame's dirty flag, never cleared here. Returns false
// when the page is unknown or its pin count is already zero.
func (bp *BufferPoolManager) UnpinPage(pageID common.PageID, isDirty bool) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTable[pageID]
	if !ok {
		return false
	}
	frame := bp.frames[frameID]
	if frame.PinCount() <= 0 {
		return false
	}

	frame.DecPinCount()
	if frame.PinCount() == 0 {
		bp.replacer.Unpin(frameID)
	}
	if isDirty {
		frame.SetDirty(true)
	}
	return true
}

// FlushPage writes the frame's bytes to disk and clears the dirty flag. Pin
// count and replacer membership are untouched.
func (bp *BufferPoolManager) FlushPage(pageID common.PageID) error {
	if !pageID.IsValid() {
		return ErrInvalidPageID
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTable[pageID]
	if !ok {
		return ErrPageNotFound
	}
	frame := bp.frames[frameID]
	if err := bp.diskMgr.WritePage(pageID, frame.Data()); err != nil {
		return err
	}
	frame.SetDirty(false)
	return nil
}

// FlushAllPages flushes every resident page.
func (bp *BufferPoolManager) FlushAllPages() error {
	bp.mu.Lock()
	pageIDs := make([]common.PageID, 0, len(bp.pageTable))
	for pageID := range bp.pageTable {
		pageIDs = append(pageIDs, pageID)
	}
	bp.mu.Unlock()

	for _, pageID := range pageIDs {
		if err := bp.FlushPage(pageID); err != nil && !IsNotFound(err) {
			return err
		}
	}
	return nil
}

// DeletePage removes a page from the pool and deallocates it at the disk
// layer. An absent page counts as already deleted. A pinned page cannot be
// deleted.
func (bp *BufferPoolManager) DeletePage(pageID common.PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTable[pageID]
	if !ok {
		return nil
	}
	frame := bp.frames[frameID]
	if frame.PinCount() > 0 {
		return ErrPagePinned
	}

	bp.diskMgr.DeallocatePage(pageID)
	bp.replacer.Pin(frameID)
	delete(bp.pageTable, pageID)
	frame.Reset()
	bp.freeList.PushBack(frameID)
	return nil
}
