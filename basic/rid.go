package basic

import (
	"fmt"

	"github.com/vesperdb/vesper/common"
)

// RIDSize RID 在页面中的序列化长度
const RIDSize = 8

// RID locates a record: the heap page that holds it plus its slot number.
// It is the value type stored in leaf nodes.
type RID struct {
	PageID  common.PageID
	SlotNum uint32
}

// NewRID 构造一个记录定位符
func NewRID(pageID common.PageID, slot uint32) RID {
	return RID{PageID: pageID, SlotNum: slot}
}

func (r RID) String() string {
	return fmt.Sprintf("(%d,%d)", r.PageID, r.SlotNum)
}
