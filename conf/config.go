package conf

import (
	"os"
	"path/filepath"

	"github.com/vesperdb/vesper/logger"

	"gopkg.in/ini.v1"
)

// CommandLineArgs 命令行参数
type CommandLineArgs struct {
	ConfigPath string
}

/*
vesper.ini 配置文件样例:

[vesper]
data_dir         = data
page_file        = vesper.ibd
buffer_pool_pages = 1024
leaf_max_size    = 0
internal_max_size = 0
compression      = none
checksum         = true

[logs]
log_error = logs/error.log
log_infos = logs/vesper.log
log_level = info
*/
type Cfg struct {
	Raw     *ini.File
	AppName string

	// storage
	DataDir         string `default:"data" json:"data_dir,omitempty"`
	PageFile        string `default:"vesper.ibd" json:"page_file,omitempty"`
	BufferPoolPages int    `default:"1024" json:"buffer_pool_pages,omitempty"`
	LeafMaxSize     int    `default:"0" json:"leaf_max_size,omitempty"`
	InternalMaxSize int    `default:"0" json:"internal_max_size,omitempty"`

	// 页面压缩编码: none | lz4 | snappy
	Compression     string `default:"none" json:"compression,omitempty"`
	ChecksumEnabled bool   `default:"true" json:"checksum,omitempty"`

	// logs
	LogError string `default:"logs/error.log" json:"log_error,omitempty"`
	LogInfos string `default:"logs/vesper.log" json:"log_infos,omitempty"`
	LogLevel string `default:"info" json:"log_level,omitempty"`
}

// NewCfg 返回带默认值的配置
func NewCfg() *Cfg {
	return &Cfg{
		AppName:         "vesper",
		DataDir:         "data",
		PageFile:        "vesper.ibd",
		BufferPoolPages: 1024,
		LeafMaxSize:     0,
		InternalMaxSize: 0,
		Compression:     "none",
		ChecksumEnabled: true,
		LogError:        "logs/error.log",
		LogInfos:        "logs/vesper.log",
		LogLevel:        "info",
	}
}

// Load 读取ini配置文件并覆盖默认值。找不到文件时保留默认值。
func (cfg *Cfg) Load(args *CommandLineArgs) *Cfg {
	if args == nil || args.ConfigPath == "" {
		return cfg
	}

	if _, err := os.Stat(args.ConfigPath); err != nil {
		logger.Warnf("config file %s not found, using defaults: %v", args.ConfigPath, err)
		return cfg
	}

	f, err := ini.Load(args.ConfigPath)
	if err != nil {
		logger.Errorf("failed to parse config file %s: %v", args.ConfigPath, err)
		return cfg
	}
	cfg.Raw = f

	sec := f.Section("vesper")
	cfg.DataDir = sec.Key("data_dir").MustString(cfg.DataDir)
	cfg.PageFile = sec.Key("page_file").MustString(cfg.PageFile)
	cfg.BufferPoolPages = sec.Key("buffer_pool_pages").MustInt(cfg.BufferPoolPages)
	cfg.LeafMaxSize = sec.Key("leaf_max_size").MustInt(cfg.LeafMaxSize)
	cfg.InternalMaxSize = sec.Key("internal_max_size").MustInt(cfg.InternalMaxSize)
	cfg.Compression = sec.Key("compression").MustString(cfg.Compression)
	cfg.ChecksumEnabled = sec.Key("checksum").MustBool(cfg.ChecksumEnabled)

	logs := f.Section("logs")
	cfg.LogError = logs.Key("log_error").MustString(cfg.LogError)
	cfg.LogInfos = logs.Key("log_infos").MustString(cfg.LogInfos)
	cfg.LogLevel = logs.Key("log_level").MustString(cfg.LogLevel)

	return cfg
}

// PageFilePath 页面文件的完整路径
func (cfg *Cfg) PageFilePath() string {
	return filepath.Join(cfg.DataDir, cfg.PageFile)
}
