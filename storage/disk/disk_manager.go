package disk

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"

	"github.com/vesperdb/vesper/common"
	"github.com/vesperdb/vesper/logger"
	"github.com/vesperdb/vesper/util"
)

// Codec 页面落盘时的透明压缩编码
type Codec uint8

const (
	CodecNone Codec = iota
	CodecLZ4
	CodecSnappy
)

// ParseCodec 解析配置中的压缩编码名
func ParseCodec(name string) Codec {
	switch name {
	case "lz4":
		return CodecLZ4
	case "snappy":
		return CodecSnappy
	default:
		return CodecNone
	}
}

const (
	// slotMetaSize 每个页面槽位前的元数据长度:
	// checksum(8) + flags(1) + compressed length(4) + pad(3)
	slotMetaSize = 16
	slotSize     = slotMetaSize + common.PageSize

	// flagWritten 槽位至少被写过一次
	flagWritten = 0x80
	codecMask   = 0x0f
)

var (
	ErrChecksumMismatch = errors.New("page checksum mismatch")
	ErrBadCompressedLen = errors.New("invalid compressed payload length")
)

// Manager materializes page images to a single backing file. Each logical
// page occupies one fixed slot: a small metadata trailer followed by the
// payload area. The payload may be stored raw or compressed; ReadPage always
// reconstructs the exact PageSize image that WritePage was given.
type Manager struct {
	mu   sync.Mutex
	file *os.File
	path string

	codec    Codec
	checksum bool

	nextPageID int32 // atomic

	// statistics
	numReads     uint64 // atomic
	numWrites    uint64 // atomic
	numAllocs    uint64 // atomic
	numDeallocs  uint64 // atomic
	lz4Comp      lz4.Compressor
	lz4CompGuard sync.Mutex
}

// Option 调整磁盘管理器行为
type Option func(*Manager)

// WithCodec sets the page compression codec.
func WithCodec(c Codec) Option {
	return func(m *Manager) { m.codec = c }
}

// WithChecksum toggles checksum verification on read.
func WithChecksum(enabled bool) Option {
	return func(m *Manager) { m.checksum = enabled }
}

// NewManager opens (or creates) the page file at path.
func NewManager(path string, opts ...Option) (*Manager, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create data directory %s", dir)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open page file %s", path)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed to stat page file %s", path)
	}

	m := &Manager{
		file:     f,
		path:     path,
		codec:    CodecNone,
		checksum: true,
		// 已有文件时从文件长度恢复分配游标
		nextPageID: int32((st.Size() + slotSize - 1) / slotSize),
	}
	for _, opt := range opts {
		opt(m)
	}

	logger.Debugf("disk manager opened %s, %d pages allocated", path, m.nextPageID)
	return m, nil
}

// AllocatePage reserves and returns a fresh page id.
func (m *Manager) AllocatePage() common.PageID {
	atomic.AddUint64(&m.numAllocs, 1)
	return common.PageID(atomic.AddInt32(&m.nextPageID, 1) - 1)
}

// DeallocatePage releases a page id. The slot is not reclaimed; the id is
// simply never handed out again in this incarnation.
func (m *Manager) DeallocatePage(pageID common.PageID) {
	atomic.AddUint64(&m.numDeallocs, 1)
	logger.Debugf("deallocate page %d", pageID)
}

// WritePage persists data (exactly PageSize bytes) as the content of pageID.
func (m *Manager) WritePage(pageID common.PageID, data []byte) error {
	if len(data) != common.PageSize {
		return errors.Errorf("write page %d: payload is %d bytes, want %d", pageID, len(data), common.PageSize)
	}

	payload, codec := m.compress(data)

	meta := make([]byte, 0, slotMetaSize)
	var sum uint64
	if m.checksum {
		sum = util.HashCode(data)
	}
	meta = append(meta, util.ConvertUInt8Bytes(sum)...)
	meta = append(meta, byte(flagWritten)|(byte(codec)&codecMask))
	meta = append(meta, util.ConvertUInt4Bytes(uint32(len(payload)))...)
	meta = append(meta, 0, 0, 0)

	m.mu.Lock()
	defer m.mu.Unlock()

	offset := int64(pageID) * slotSize
	if _, err := m.file.WriteAt(meta, offset); err != nil {
		return errors.Wrapf(err, "failed to write page %d metadata", pageID)
	}
	if _, err := m.file.WriteAt(payload, offset+slotMetaSize); err != nil {
		return errors.Wrapf(err, "failed to write page %d payload", pageID)
	}

	atomic.AddUint64(&m.numWrites, 1)
	return nil
}

// ReadPage copies the on-disk contents of pageID into buf (PageSize bytes).
// A page that was allocated but never written reads back as all zeroes.
func (m *Manager) ReadPage(pageID common.PageID, buf []byte) error {
	if len(buf) != common.PageSize {
		return errors.Errorf("read page %d: buffer is %d bytes, want %d", pageID, len(buf), common.PageSize)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	offset := int64(pageID) * slotSize
	meta := make([]byte, slotMetaSize)
	if _, err := m.file.ReadAt(meta, offset); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			zero(buf)
			return nil
		}
		return errors.Wrapf(err, "failed to read page %d metadata", pageID)
	}

	flags := meta[8]
	if flags&flagWritten == 0 {
		zero(buf)
		return nil
	}

	sum := util.ReadUB8Byte2UInt64(meta[0:8])
	codec := Codec(flags & codecMask)
	compLen := util.ReadUB4Byte2UInt32(meta[9:13])
	if compLen == 0 || compLen > common.PageSize {
		return errors.Wrapf(ErrBadCompressedLen, "page %d length %d", pageID, compLen)
	}

	payload := make([]byte, compLen)
	if _, err := m.file.ReadAt(payload, offset+slotMetaSize); err != nil {
		return errors.Wrapf(err, "failed to read page %d payload", pageID)
	}

	if err := m.decompress(codec, payload, buf); err != nil {
		return errors.Wrapf(err, "failed to decode page %d", pageID)
	}

	if m.checksum && sum != 0 {
		if got := util.HashCode(buf); got != sum {
			return errors.Wrapf(ErrChecksumMismatch, "page %d: stored %x, computed %x", pageID, sum, got)
		}
	}

	atomic.AddUint64(&m.numReads, 1)
	return nil
}

// compress returns the stored payload and the codec actually used.
// Incompressible pages fall back to raw storage.
func (m *Manager) compress(data []byte) ([]byte, Codec) {
	switch m.codec {
	case CodecLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		m.lz4CompGuard.Lock()
		n, err := m.lz4Comp.CompressBlock(data, dst)
		m.lz4CompGuard.Unlock()
		if err != nil || n == 0 || n >= common.PageSize {
			return data, CodecNone
		}
		return dst[:n], CodecLZ4
	case CodecSnappy:
		dst := snappy.Encode(nil, data)
		if len(dst) >= common.PageSize {
			return data, CodecNone
		}
		return dst, CodecSnappy
	default:
		return data, CodecNone
	}
}

func (m *Manager) decompress(codec Codec, payload, buf []byte) error {
	switch codec {
	case CodecLZ4:
		n, err := lz4.UncompressBlock(payload, buf)
		if err != nil {
			return err
		}
		if n != common.PageSize {
			return errors.Errorf("lz4 payload expands to %d bytes, want %d", n, common.PageSize)
		}
		return nil
	case CodecSnappy:
		out, err := snappy.Decode(nil, payload)
		if err != nil {
			return err
		}
		if len(out) != common.PageSize {
			return errors.Errorf("snappy payload expands to %d bytes, want %d", len(out), common.PageSize)
		}
		copy(buf, out)
		return nil
	default:
		if len(payload) != common.PageSize {
			return errors.Errorf("raw payload is %d bytes, want %d", len(payload), common.PageSize)
		}
		copy(buf, payload)
		return nil
	}
}

// NumWrites 落盘页面写次数
func (m *Manager) NumWrites() uint64 {
	return atomic.LoadUint64(&m.numWrites)
}

// NumReads 落盘页面读次数
func (m *Manager) NumReads() uint64 {
	return atomic.LoadUint64(&m.numReads)
}

// PageCount 已分配的页面数
func (m *Manager) PageCount() int32 {
	return atomic.LoadInt32(&m.nextPageID)
}

// Close syncs and closes the backing file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Sync(); err != nil {
		return errors.Wrapf(err, "failed to sync page file %s", m.path)
	}
	return m.file.Close()
}

func zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
