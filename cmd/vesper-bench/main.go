package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vesperdb/vesper/basic"
	"github.com/vesperdb/vesper/common"
	"github.com/vesperdb/vesper/conf"
	"github.com/vesperdb/vesper/logger"
	"github.com/vesperdb/vesper/storage/engine"
)

// vesper-bench drives the storage engine end to end: insert a key range,
// point-read it back, scan it in order, then delete half of it.
func main() {
	var configPath string
	var keys int
	flag.StringVar(&configPath, "configPath", "", "ini配置文件路径")
	flag.IntVar(&keys, "keys", 100000, "写入键数量")
	flag.Parse()

	cfg := conf.NewCfg().Load(&conf.CommandLineArgs{ConfigPath: configPath})

	if err := logger.InitLogger(logger.LogConfig{
		ErrorLogPath: cfg.LogError,
		InfoLogPath:  cfg.LogInfos,
		LogLevel:     cfg.LogLevel,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.Open(cfg)
	if err != nil {
		logger.Fatalf("open engine: %v", err)
	}
	defer eng.Close()

	tree, err := eng.OpenIndex("bench")
	if err != nil {
		logger.Fatalf("open index: %v", err)
	}

	logger.Infof("inserting %d keys", keys)
	for i := 1; i <= keys; i++ {
		ok, err := tree.Insert(basic.Int64Key(int64(i)), basic.NewRID(common.PageID(i), uint32(i)))
		if err != nil {
			logger.Fatalf("insert %d: %v", i, err)
		}
		if !ok {
			logger.Warnf("key %d already present", i)
		}
	}

	logger.Infof("point reads")
	for i := 1; i <= keys; i++ {
		if _, ok, err := tree.GetValue(basic.Int64Key(int64(i))); err != nil || !ok {
			logger.Fatalf("lookup %d failed: ok=%v err=%v", i, ok, err)
		}
	}

	logger.Infof("forward scan")
	it, err := tree.Iterator()
	if err != nil {
		logger.Fatalf("iterator: %v", err)
	}
	count := 0
	for !it.IsEnd() {
		count++
		if err := it.Next(); err != nil {
			logger.Fatalf("scan: %v", err)
		}
	}
	it.Close()
	if count != keys {
		logger.Fatalf("scan saw %d keys, want %d", count, keys)
	}

	logger.Infof("deleting odd keys")
	for i := 1; i <= keys; i += 2 {
		if err := tree.Remove(basic.Int64Key(int64(i))); err != nil {
			logger.Fatalf("remove %d: %v", i, err)
		}
	}

	pool := eng.Pool()
	logger.Infof("buffer pool: hit rate %.2f%% (%d lookups), disk reads %d writes %d, pages %d",
		pool.HitRate()*100, pool.LookupCount(),
		eng.Disk().NumReads(), eng.Disk().NumWrites(), eng.Disk().PageCount())
}
