package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vesperdb/vesper/basic"
	"github.com/vesperdb/vesper/common"
	"github.com/vesperdb/vesper/storage/buffer_pool"
	"github.com/vesperdb/vesper/storage/disk"
	"github.com/vesperdb/vesper/storage/latch"
	"github.com/vesperdb/vesper/storage/page"
)

// newTestTree builds a tree over a fresh page file with the header page
// materialized as page 0, the way the engine does at startup.
func newTestTree(t *testing.T, poolSize, leafMax, internalMax int) *BPlusTree {
	t.Helper()

	dm, err := disk.NewManager(filepath.Join(t.TempDir(), "index.ibd"))
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })

	pool := buffer_pool.NewBufferPoolManager(poolSize, dm)
	frame, pageID, err := pool.NewPage()
	require.NoError(t, err)
	require.Equal(t, common.HeaderPageID, pageID)
	frame.Latch(latch.ModeWrite)
	page.HeaderPageView(frame).Init()
	frame.Unlatch(latch.ModeWrite)
	pool.UnpinPage(pageID, true)

	tree, err := NewBPlusTree("test_index", pool, basic.CompareInt64, leafMax, internalMax)
	require.NoError(t, err)
	return tree
}

// collectKeys scans the whole tree front to back.
func collectKeys(t *testing.T, tree *BPlusTree) []int64 {
	t.Helper()

	it, err := tree.Iterator()
	require.NoError(t, err)
	defer it.Close()

	var keys []int64
	for !it.IsEnd() {
		key, _ := it.Entry()
		keys = append(keys, key.Int64())
		require.NoError(t, it.Next())
	}
	return keys
}

func mustInsert(t *testing.T, tree *BPlusTree, key int64) {
	t.Helper()
	ok, err := tree.Insert(basic.Int64Key(key), basic.NewRID(common.PageID(key), uint32(key)))
	require.NoError(t, err)
	require.True(t, ok, "insert %d", key)
}
