package index

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesperdb/vesper/basic"
	"github.com/vesperdb/vesper/common"
)

func TestBPlusTreeEmpty(t *testing.T) {
	tree := newTestTree(t, 16, 5, 5)

	assert.True(t, tree.IsEmpty())
	_, ok, err := tree.GetValue(basic.Int64Key(1))
	require.NoError(t, err)
	assert.False(t, ok)

	it, err := tree.Iterator()
	require.NoError(t, err)
	assert.True(t, it.IsEnd())
	it.Close()
}

func TestBPlusTreeInsertAndGet(t *testing.T) {
	tree := newTestTree(t, 16, 5, 5)

	for i := int64(1); i <= 10; i++ {
		mustInsert(t, tree, i)
	}
	assert.False(t, tree.IsEmpty())

	for i := int64(1); i <= 10; i++ {
		value, ok, err := tree.GetValue(basic.Int64Key(i))
		require.NoError(t, err)
		require.True(t, ok, "key %d", i)
		assert.Equal(t, common.PageID(i), value.PageID)
		assert.Equal(t, uint32(i), value.SlotNum)
	}

	_, ok, err := tree.GetValue(basic.Int64Key(11))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tree.Verify())
}

func TestBPlusTreeDuplicateInsert(t *testing.T) {
	tree := newTestTree(t, 16, 5, 5)

	mustInsert(t, tree, 42)
	ok, err := tree.Insert(basic.Int64Key(42), basic.NewRID(1, 1))
	require.NoError(t, err)
	assert.False(t, ok)

	// 原值保持不变
	value, found, err := tree.GetValue(basic.Int64Key(42))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, common.PageID(42), value.PageID)
}

func TestBPlusTreeSplitCascade(t *testing.T) {
	// 小扇出强制多级分裂
	tree := newTestTree(t, 32, 3, 3)

	const n = 200
	for i := int64(1); i <= n; i++ {
		mustInsert(t, tree, i)
		require.NoError(t, tree.Verify(), "after insert %d", i)
	}

	keys := collectKeys(t, tree)
	require.Len(t, keys, n)
	for i, k := range keys {
		assert.Equal(t, int64(i+1), k)
	}
}

func TestBPlusTreeRandomPermutationScansAscending(t *testing.T) {
	tree := newTestTree(t, 64, 5, 5)

	const n = 500
	perm := rand.New(rand.NewSource(445)).Perm(n)
	for _, v := range perm {
		mustInsert(t, tree, int64(v+1))
	}
	require.NoError(t, tree.Verify())

	keys := collectKeys(t, tree)
	require.Len(t, keys, n)
	for i, k := range keys {
		assert.Equal(t, int64(i+1), k)
	}
}

func TestBPlusTreeInsertReleasesAllPins(t *testing.T) {
	// 池子只有16帧，引用计数泄漏会在持续插入中耗尽缓冲池
	tree := newTestTree(t, 16, 3, 3)

	for i := int64(1); i <= 300; i++ {
		mustInsert(t, tree, i)
	}
	for i := int64(1); i <= 300; i++ {
		_, ok, err := tree.GetValue(basic.Int64Key(i))
		require.NoError(t, err)
		require.True(t, ok, "key %d", i)
	}
}
