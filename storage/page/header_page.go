package page

import (
	"bytes"
	"encoding/binary"

	"github.com/vesperdb/vesper/common"
)

// HeaderPage is a view over the directory page (page id 0). It stores a flat
// record table mapping an index name to its root page id:
//
//	0..4        record count (uint32)
//	4..         records, each: name[32] + root page id (int32)
const (
	headerRecordNameSize = 32
	headerRecordSize     = headerRecordNameSize + 4
	headerCountOffset    = 0
	headerRecordsOffset  = 4

	// HeaderMaxRecords 目录页能容纳的索引记录数
	HeaderMaxRecords = (common.PageSize - headerRecordsOffset) / headerRecordSize
)

type HeaderPage struct {
	frame *Frame
}

// HeaderPageView 将一个帧解释为目录页
func HeaderPageView(f *Frame) *HeaderPage {
	return &HeaderPage{frame: f}
}

// Init 清空记录表
func (h *HeaderPage) Init() {
	binary.LittleEndian.PutUint32(h.frame.Data()[headerCountOffset:], 0)
}

// RecordCount 当前记录数
func (h *HeaderPage) RecordCount() int {
	return int(binary.LittleEndian.Uint32(h.frame.Data()[headerCountOffset:]))
}

func (h *HeaderPage) setRecordCount(n int) {
	binary.LittleEndian.PutUint32(h.frame.Data()[headerCountOffset:], uint32(n))
}

func (h *HeaderPage) recordOffset(i int) int {
	return headerRecordsOffset + i*headerRecordSize
}

func (h *HeaderPage) recordName(i int) string {
	off := h.recordOffset(i)
	raw := h.frame.Data()[off : off+headerRecordNameSize]
	if idx := bytes.IndexByte(raw, 0); idx >= 0 {
		raw = raw[:idx]
	}
	return string(raw)
}

func (h *HeaderPage) findRecord(name string) int {
	for i := 0; i < h.RecordCount(); i++ {
		if h.recordName(i) == name {
			return i
		}
	}
	return -1
}

func (h *HeaderPage) writeRecord(i int, name string, rootID common.PageID) {
	off := h.recordOffset(i)
	data := h.frame.Data()
	for j := 0; j < headerRecordNameSize; j++ {
		data[off+j] = 0
	}
	copy(data[off:off+headerRecordNameSize], name)
	binary.LittleEndian.PutUint32(data[off+headerRecordNameSize:], uint32(rootID))
}

// InsertRecord 登记一个新索引。重名或目录已满时返回false。
func (h *HeaderPage) InsertRecord(name string, rootID common.PageID) bool {
	if len(name) > headerRecordNameSize {
		return false
	}
	if h.findRecord(name) >= 0 {
		return false
	}
	n := h.RecordCount()
	if n >= HeaderMaxRecords {
		return false
	}
	h.writeRecord(n, name, rootID)
	h.setRecordCount(n + 1)
	return true
}

// UpdateRecord 更新已登记索引的根页面。不存在时返回false。
func (h *HeaderPage) UpdateRecord(name string, rootID common.PageID) bool {
	i := h.findRecord(name)
	if i < 0 {
		return false
	}
	off := h.recordOffset(i)
	binary.LittleEndian.PutUint32(h.frame.Data()[off+headerRecordNameSize:], uint32(rootID))
	return true
}

// GetRootID 查询索引的根页面
func (h *HeaderPage) GetRootID(name string) (common.PageID, bool) {
	i := h.findRecord(name)
	if i < 0 {
		return common.InvalidPageID, false
	}
	off := h.recordOffset(i)
	return common.PageID(binary.LittleEndian.Uint32(h.frame.Data()[off+headerRecordNameSize:])), true
}

// DeleteRecord 移除索引记录
func (h *HeaderPage) DeleteRecord(name string) bool {
	i := h.findRecord(name)
	if i < 0 {
		return false
	}
	n := h.RecordCount()
	data := h.frame.Data()
	// 后续记录整体前移一个槽位
	copy(data[h.recordOffset(i):h.recordOffset(n-1)],
		data[h.recordOffset(i+1):h.recordOffset(n-1)+headerRecordSize])
	h.setRecordCount(n - 1)
	return true
}
