package index

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesperdb/vesper/basic"
)

func TestBPlusTreeRemoveBasic(t *testing.T) {
	tree := newTestTree(t, 16, 5, 5)

	for i := int64(1); i <= 10; i++ {
		mustInsert(t, tree, i)
	}

	require.NoError(t, tree.Remove(basic.Int64Key(5)))
	_, ok, err := tree.GetValue(basic.Int64Key(5))
	require.NoError(t, err)
	assert.False(t, ok)

	// 其余键不受影响
	for _, k := range []int64{1, 2, 3, 4, 6, 7, 8, 9, 10} {
		_, ok, err := tree.GetValue(basic.Int64Key(k))
		require.NoError(t, err)
		assert.True(t, ok, "key %d", k)
	}
	require.NoError(t, tree.Verify())
}

func TestBPlusTreeRemoveAbsentIsNoop(t *testing.T) {
	tree := newTestTree(t, 16, 5, 5)

	require.NoError(t, tree.Remove(basic.Int64Key(1)), "empty tree")

	mustInsert(t, tree, 1)
	require.NoError(t, tree.Remove(basic.Int64Key(99)))
	_, ok, err := tree.GetValue(basic.Int64Key(1))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBPlusTreeRemoveAllCollapsesRoot(t *testing.T) {
	tree := newTestTree(t, 32, 3, 3)

	const n = 100
	for i := int64(1); i <= n; i++ {
		mustInsert(t, tree, i)
	}

	for i := int64(1); i <= n; i++ {
		require.NoError(t, tree.Remove(basic.Int64Key(i)))
		require.NoError(t, tree.Verify(), "after remove %d", i)
	}
	assert.True(t, tree.IsEmpty())

	// 清空后重新插入从头建树
	mustInsert(t, tree, 7)
	keys := collectKeys(t, tree)
	assert.Equal(t, []int64{7}, keys)
}

func TestBPlusTreeRemoveReverseOrder(t *testing.T) {
	tree := newTestTree(t, 32, 3, 3)

	const n = 100
	for i := int64(1); i <= n; i++ {
		mustInsert(t, tree, i)
	}
	for i := int64(n); i >= 1; i-- {
		require.NoError(t, tree.Remove(basic.Int64Key(i)))
		require.NoError(t, tree.Verify(), "after remove %d", i)
	}
	assert.True(t, tree.IsEmpty())
}

func TestBPlusTreeRemoveRandomMix(t *testing.T) {
	tree := newTestTree(t, 64, 5, 5)

	const n = 400
	rng := rand.New(rand.NewSource(645))
	perm := rng.Perm(n)
	for _, v := range perm {
		mustInsert(t, tree, int64(v+1))
	}

	// 删除一半，剩余一半必须完整且有序
	removed := make(map[int64]bool)
	for _, v := range rng.Perm(n)[:n/2] {
		key := int64(v + 1)
		require.NoError(t, tree.Remove(basic.Int64Key(key)))
		removed[key] = true
	}
	require.NoError(t, tree.Verify())

	keys := collectKeys(t, tree)
	assert.Len(t, keys, n/2)
	prev := int64(0)
	for _, k := range keys {
		assert.False(t, removed[k], "removed key %d still visible", k)
		assert.Greater(t, k, prev)
		prev = k
	}
}

func TestBPlusTreeInsertRemoveGetRoundTrip(t *testing.T) {
	tree := newTestTree(t, 16, 5, 5)

	mustInsert(t, tree, 3)
	require.NoError(t, tree.Remove(basic.Int64Key(3)))
	_, ok, err := tree.GetValue(basic.Int64Key(3))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBPlusTreeRemoveReleasesAllPins(t *testing.T) {
	// 引用计数泄漏会在小缓冲池上暴露
	tree := newTestTree(t, 16, 3, 3)

	for round := 0; round < 5; round++ {
		for i := int64(1); i <= 120; i++ {
			mustInsert(t, tree, i)
		}
		for i := int64(1); i <= 120; i++ {
			require.NoError(t, tree.Remove(basic.Int64Key(i)))
		}
		assert.True(t, tree.IsEmpty())
	}
}
