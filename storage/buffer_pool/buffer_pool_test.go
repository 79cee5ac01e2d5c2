package buffer_pool

import (
	"bytes"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesperdb/vesper/common"
	"github.com/vesperdb/vesper/storage/disk"
	"github.com/vesperdb/vesper/storage/latch"
)

func newTestPool(t *testing.T, poolSize int) *BufferPoolManager {
	t.Helper()
	dm, err := disk.NewManager(filepath.Join(t.TempDir(), "test.ibd"))
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	return NewBufferPoolManager(poolSize, dm)
}

// TestBufferPoolBinaryData writes random bytes through the pool, forces the
// page out and reads it back.
func TestBufferPoolBinaryData(t *testing.T) {
	const poolSize = 10
	bp := newTestPool(t, poolSize)

	frame, pageID, err := bp.NewPage()
	require.NoError(t, err)
	assert.Equal(t, common.PageID(0), pageID)

	data := make([]byte, common.PageSize)
	rand.New(rand.NewSource(15445)).Read(data)

	frame.Latch(latch.ModeWrite)
	copy(frame.Data(), data)
	frame.Unlatch(latch.ModeWrite)
	assert.True(t, bp.UnpinPage(pageID, true))

	// 池子装满并驱逐第0页
	for i := 0; i < poolSize; i++ {
		f, id, err := bp.NewPage()
		require.NoError(t, err)
		require.NotNil(t, f)
		bp.UnpinPage(id, false)
	}

	frame, err = bp.FetchPage(pageID)
	require.NoError(t, err)
	frame.Latch(latch.ModeRead)
	assert.True(t, bytes.Equal(data, frame.Data()))
	frame.Unlatch(latch.ModeRead)
	assert.True(t, bp.UnpinPage(pageID, false))
}

// TestBufferPoolStress is the fill/unpin/evict scenario: a full pool rejects
// new pages, evicts least-recently-unpinned frames in order and writes dirty
// occupants back before reuse.
func TestBufferPoolStress(t *testing.T) {
	const poolSize = 10
	bp := newTestPool(t, poolSize)

	contents := make(map[common.PageID][]byte)
	for i := 0; i < poolSize; i++ {
		frame, pageID, err := bp.NewPage()
		require.NoError(t, err)
		assert.Equal(t, common.PageID(i), pageID)

		payload := []byte(fmt.Sprintf("page payload %d", pageID))
		frame.Latch(latch.ModeWrite)
		copy(frame.Data(), payload)
		frame.Unlatch(latch.ModeWrite)
		contents[pageID] = payload
	}

	// 全部被引用，申请新页面必须失败
	for i := 0; i < 3; i++ {
		_, _, err := bp.NewPage()
		assert.True(t, IsBufferPoolFull(err))
	}

	for i := 0; i < 5; i++ {
		assert.True(t, bp.UnpinPage(common.PageID(i), true))
	}

	// 5个新页面依次驱逐0..4
	for i := 0; i < 5; i++ {
		_, pageID, err := bp.NewPage()
		require.NoError(t, err)
		assert.Equal(t, common.PageID(poolSize+i), pageID)
		assert.True(t, bp.UnpinPage(pageID, false))
	}

	// 脏页在驱逐前已落盘
	frame, err := bp.FetchPage(0)
	require.NoError(t, err)
	frame.Latch(latch.ModeRead)
	assert.True(t, bytes.HasPrefix(frame.Data(), contents[0]))
	frame.Unlatch(latch.ModeRead)
	assert.True(t, bp.UnpinPage(0, false))
}

// TestBufferPoolFreeListFirst checks the observable victim policy: a fresh
// pool hands out frames from the free list in index order before consulting
// the replacer.
func TestBufferPoolFreeListFirst(t *testing.T) {
	bp := newTestPool(t, 4)

	first, id0, err := bp.NewPage()
	require.NoError(t, err)
	bp.UnpinPage(id0, false)

	// 即使第0帧可被驱逐，后续分配仍优先使用空闲链表
	for i := 1; i < 4; i++ {
		f, id, err := bp.NewPage()
		require.NoError(t, err)
		assert.NotSame(t, first, f)
		bp.UnpinPage(id, false)
	}

	// 空闲链表耗尽后才轮到replacer，受害者正是最早unpin的第0帧
	f, _, err := bp.NewPage()
	require.NoError(t, err)
	assert.Same(t, first, f)
}

func TestBufferPoolUnpinMisuse(t *testing.T) {
	bp := newTestPool(t, 4)

	_, pageID, err := bp.NewPage()
	require.NoError(t, err)

	assert.False(t, bp.UnpinPage(999, false), "unknown page")
	assert.True(t, bp.UnpinPage(pageID, false))
	assert.False(t, bp.UnpinPage(pageID, false), "pin count already zero")
}

func TestBufferPoolDirtyMergeOR(t *testing.T) {
	bp := newTestPool(t, 4)

	frame, pageID, err := bp.NewPage()
	require.NoError(t, err)

	frame.Latch(latch.ModeWrite)
	copy(frame.Data(), []byte("dirty bytes"))
	frame.Unlatch(latch.ModeWrite)
	assert.True(t, bp.UnpinPage(pageID, true))

	// 再次引用后以clean unpin，脏标记不能被清除
	_, err = bp.FetchPage(pageID)
	require.NoError(t, err)
	assert.True(t, bp.UnpinPage(pageID, false))
	assert.True(t, frame.IsDirty())
}

func TestBufferPoolFlushRoundTrip(t *testing.T) {
	dm, err := disk.NewManager(filepath.Join(t.TempDir(), "flush.ibd"))
	require.NoError(t, err)
	defer dm.Close()
	bp := NewBufferPoolManager(2, dm)

	frame, pageID, err := bp.NewPage()
	require.NoError(t, err)

	payload := []byte("flushed payload")
	frame.Latch(latch.ModeWrite)
	copy(frame.Data(), payload)
	frame.Unlatch(latch.ModeWrite)

	assert.True(t, bp.UnpinPage(pageID, true))
	require.NoError(t, bp.FlushPage(pageID))
	assert.False(t, frame.IsDirty(), "flush clears the dirty flag")

	// 直接从磁盘读出的字节与写入一致
	buf := make([]byte, common.PageSize)
	require.NoError(t, dm.ReadPage(pageID, buf))
	assert.True(t, bytes.HasPrefix(buf, payload))
}

func TestBufferPoolDeletePage(t *testing.T) {
	bp := newTestPool(t, 4)

	_, pageID, err := bp.NewPage()
	require.NoError(t, err)

	// 被引用的页面不可删除
	err = bp.DeletePage(pageID)
	assert.True(t, IsPinned(err))

	assert.True(t, bp.UnpinPage(pageID, false))
	assert.NoError(t, bp.DeletePage(pageID))

	// 不在池中的页面视为已删除
	assert.NoError(t, bp.DeletePage(pageID))
	assert.NoError(t, bp.DeletePage(12345))
}

func TestBufferPoolFetchAllPinned(t *testing.T) {
	bp := newTestPool(t, 2)

	_, id0, err := bp.NewPage()
	require.NoError(t, err)
	_, _, err = bp.NewPage()
	require.NoError(t, err)

	_, err = bp.FetchPage(100)
	assert.True(t, IsBufferPoolFull(err))

	// 释放一个引用后fetch可以继续
	assert.True(t, bp.UnpinPage(id0, false))
	_, err = bp.FetchPage(100)
	assert.NoError(t, err)
}
