package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesperdb/vesper/basic"
	"github.com/vesperdb/vesper/common"
	"github.com/vesperdb/vesper/conf"
)

func testConfig(t *testing.T) *conf.Cfg {
	t.Helper()
	cfg := conf.NewCfg()
	cfg.DataDir = t.TempDir()
	cfg.BufferPoolPages = 64
	cfg.LeafMaxSize = 5
	cfg.InternalMaxSize = 5
	return cfg
}

func TestEngineOpenAndIndex(t *testing.T) {
	cfg := testConfig(t)

	eng, err := Open(cfg)
	require.NoError(t, err)
	defer eng.Close()

	tree, err := eng.OpenIndex("orders_pk")
	require.NoError(t, err)

	for k := int64(1); k <= 50; k++ {
		ok, err := tree.Insert(basic.Int64Key(k), basic.NewRID(common.PageID(k), uint32(k)))
		require.NoError(t, err)
		require.True(t, ok)
	}

	// 同名索引返回同一棵树
	again, err := eng.OpenIndex("orders_pk")
	require.NoError(t, err)
	assert.Same(t, tree, again)

	value, ok, err := tree.GetValue(basic.Int64Key(25))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(25), value.SlotNum)
}

func TestEngineReopenFindsRoot(t *testing.T) {
	cfg := testConfig(t)

	eng, err := Open(cfg)
	require.NoError(t, err)
	tree, err := eng.OpenIndex("users_pk")
	require.NoError(t, err)
	for k := int64(1); k <= 100; k++ {
		ok, err := tree.Insert(basic.Int64Key(k), basic.NewRID(common.PageID(k), uint32(k)))
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, eng.Close())

	// 重新打开：根页面从目录页恢复，数据可见
	eng, err = Open(cfg)
	require.NoError(t, err)
	defer eng.Close()

	tree, err = eng.OpenIndex("users_pk")
	require.NoError(t, err)
	for k := int64(1); k <= 100; k++ {
		value, ok, err := tree.GetValue(basic.Int64Key(k))
		require.NoError(t, err)
		require.True(t, ok, "key %d after reopen", k)
		assert.Equal(t, uint32(k), value.SlotNum)
	}
	require.NoError(t, tree.Verify())
}

func TestEngineCompressedPageFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Compression = "lz4"

	eng, err := Open(cfg)
	require.NoError(t, err)
	tree, err := eng.OpenIndex("compressed_pk")
	require.NoError(t, err)
	for k := int64(1); k <= 200; k++ {
		ok, err := tree.Insert(basic.Int64Key(k), basic.NewRID(common.PageID(k), uint32(k)))
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, eng.Close())

	eng, err = Open(cfg)
	require.NoError(t, err)
	defer eng.Close()
	tree, err = eng.OpenIndex("compressed_pk")
	require.NoError(t, err)
	for k := int64(1); k <= 200; k++ {
		_, ok, err := tree.GetValue(basic.Int64Key(k))
		require.NoError(t, err)
		require.True(t, ok, "key %d from compressed file", k)
	}
}
