package engine

import (
	"sync"

	"github.com/juju/errors"

	"github.com/vesperdb/vesper/basic"
	"github.com/vesperdb/vesper/common"
	"github.com/vesperdb/vesper/conf"
	"github.com/vesperdb/vesper/logger"
	"github.com/vesperdb/vesper/storage/buffer_pool"
	"github.com/vesperdb/vesper/storage/disk"
	"github.com/vesperdb/vesper/storage/index"
	"github.com/vesperdb/vesper/storage/latch"
	"github.com/vesperdb/vesper/storage/page"
)

// Engine wires the storage stack together: configuration -> disk manager ->
// buffer pool -> named B+tree indexes registered in the header page.
type Engine struct {
	cfg     *conf.Cfg
	diskMgr *disk.Manager
	pool    *buffer_pool.BufferPoolManager

	mu      sync.Mutex
	indexes map[string]*index.BPlusTree
}

// Open builds the engine described by cfg. A fresh page file gets its header
// page materialized as page 0.
func Open(cfg *conf.Cfg) (*Engine, error) {
	diskMgr, err := disk.NewManager(cfg.PageFilePath(),
		disk.WithCodec(disk.ParseCodec(cfg.Compression)),
		disk.WithChecksum(cfg.ChecksumEnabled))
	if err != nil {
		return nil, errors.Annotate(err, "open disk manager")
	}

	pool := buffer_pool.NewBufferPoolManager(cfg.BufferPoolPages, diskMgr)

	e := &Engine{
		cfg:     cfg,
		diskMgr: diskMgr,
		pool:    pool,
		indexes: make(map[string]*index.BPlusTree),
	}

	if diskMgr.PageCount() == 0 {
		frame, pageID, err := pool.NewPage()
		if err != nil {
			diskMgr.Close()
			return nil, errors.Annotate(err, "materialize header page")
		}
		if pageID != common.HeaderPageID {
			diskMgr.Close()
			return nil, errors.Errorf("first allocated page is %d, want header page %d", pageID, common.HeaderPageID)
		}
		frame.Latch(latch.ModeWrite)
		page.HeaderPageView(frame).Init()
		frame.Unlatch(latch.ModeWrite)
		pool.UnpinPage(pageID, true)
		if err := pool.FlushPage(pageID); err != nil {
			diskMgr.Close()
			return nil, errors.Annotate(err, "flush header page")
		}
		logger.Infof("engine: initialized new page file %s", cfg.PageFilePath())
	} else {
		logger.Infof("engine: opened page file %s, %d pages", cfg.PageFilePath(), diskMgr.PageCount())
	}

	return e, nil
}

// OpenIndex returns the B+tree registered under name, creating the
// registration on first use. Keys are ordered as signed integers.
func (e *Engine) OpenIndex(name string) (*index.BPlusTree, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if tree, ok := e.indexes[name]; ok {
		return tree, nil
	}
	tree, err := index.NewBPlusTree(name, e.pool, basic.CompareInt64, e.cfg.LeafMaxSize, e.cfg.InternalMaxSize)
	if err != nil {
		return nil, errors.Annotatef(err, "open index %s", name)
	}
	e.indexes[name] = tree
	return tree, nil
}

// Pool exposes the buffer pool, mainly for stats reporting.
func (e *Engine) Pool() *buffer_pool.BufferPoolManager {
	return e.pool
}

// Disk exposes the disk manager, mainly for stats reporting.
func (e *Engine) Disk() *disk.Manager {
	return e.diskMgr
}

// Close flushes every resident page and closes the page file.
func (e *Engine) Close() error {
	if err := e.pool.FlushAllPages(); err != nil {
		return errors.Annotate(err, "flush pages on close")
	}
	return e.diskMgr.Close()
}
