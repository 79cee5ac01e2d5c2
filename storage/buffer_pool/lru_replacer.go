package buffer_pool

import (
	"container/list"
	"sync"

	"github.com/vesperdb/vesper/common"
)

// LRUReplacer tracks the frames eligible for eviction, ordered by how
// recently they became unpinned. The front of the list is the most recently
// unpinned frame, the back is the victim candidate.
//
// 调用方保证放入replacer的帧引用计数为0。
type LRUReplacer struct {
	mu       sync.Mutex
	capacity int

	lruList *list.List
	items   map[common.FrameID]*list.Element
}

// NewLRUReplacer creates a replacer bounded to numPages entries.
func NewLRUReplacer(numPages int) *LRUReplacer {
	return &LRUReplacer{
		capacity: numPages,
		lruList:  list.New(),
		items:    make(map[common.FrameID]*list.Element, numPages),
	}
}

// Victim removes and returns the least recently unpinned frame. The second
// return value is false when no frame is evictable.
func (r *LRUReplacer) Victim() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	back := r.lruList.Back()
	if back == nil {
		return 0, false
	}
	frameID := back.Value.(common.FrameID)
	r.lruList.Remove(back)
	delete(r.items, frameID)
	return frameID, true
}

// Pin removes a frame from the replacer so it cannot be victimized. No-op if
// the frame is not tracked.
func (r *LRUReplacer) Pin(frameID common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elem, ok := r.items[frameID]
	if !ok {
		return
	}
	r.lruList.Remove(elem)
	delete(r.items, frameID)
}

// Unpin makes a frame evictable. Re-unpinning a tracked frame is a no-op and
// does not refresh its position.
func (r *LRUReplacer) Unpin(frameID common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[frameID]; ok {
		return
	}
	if r.lruList.Len() >= r.capacity {
		return
	}
	r.items[frameID] = r.lruList.PushFront(frameID)
}

// Size 当前可驱逐帧数量
func (r *LRUReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lruList.Len()
}
