package index

import "errors"

var (
	// ErrOutOfMemory 分裂过程中缓冲池无法提供新页面
	ErrOutOfMemory = errors.New("buffer pool cannot supply a new page")

	// ErrIndexNotFound 目录页中无此索引
	ErrIndexNotFound = errors.New("index not found in header page")

	// ErrHeaderFull 目录页记录已满
	ErrHeaderFull = errors.New("header page record table is full")
)
