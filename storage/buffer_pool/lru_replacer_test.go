package buffer_pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vesperdb/vesper/common"
)

func TestLRUReplacerSample(t *testing.T) {
	replacer := NewLRUReplacer(7)

	// Scenario: unpin six elements, i.e. add them to the replacer.
	replacer.Unpin(1)
	replacer.Unpin(2)
	replacer.Unpin(3)
	replacer.Unpin(4)
	replacer.Unpin(5)
	replacer.Unpin(6)
	// 重复unpin不刷新位置
	replacer.Unpin(1)
	assert.Equal(t, 6, replacer.Size())

	// Scenario: get three victims from the lru.
	victim, ok := replacer.Victim()
	assert.True(t, ok)
	assert.Equal(t, common.FrameID(1), victim)
	victim, ok = replacer.Victim()
	assert.True(t, ok)
	assert.Equal(t, common.FrameID(2), victim)
	victim, ok = replacer.Victim()
	assert.True(t, ok)
	assert.Equal(t, common.FrameID(3), victim)

	// Scenario: pin elements in the replacer.
	replacer.Pin(3)
	replacer.Pin(4)
	assert.Equal(t, 2, replacer.Size())

	// Scenario: unpin 4. It re-enters the replacer as the most recently unpinned frame.
	replacer.Unpin(4)

	// Scenario: continue looking for victims. We expect these victims.
	victim, ok = replacer.Victim()
	assert.True(t, ok)
	assert.Equal(t, common.FrameID(5), victim)
	victim, ok = replacer.Victim()
	assert.True(t, ok)
	assert.Equal(t, common.FrameID(6), victim)
	victim, ok = replacer.Victim()
	assert.True(t, ok)
	assert.Equal(t, common.FrameID(4), victim)

	_, ok = replacer.Victim()
	assert.False(t, ok)
	assert.Equal(t, 0, replacer.Size())
}

func TestLRUReplacerCapacity(t *testing.T) {
	replacer := NewLRUReplacer(3)

	replacer.Unpin(0)
	replacer.Unpin(1)
	replacer.Unpin(2)
	// 超出容量的unpin被忽略
	replacer.Unpin(3)
	assert.Equal(t, 3, replacer.Size())

	victim, ok := replacer.Victim()
	assert.True(t, ok)
	assert.Equal(t, common.FrameID(0), victim)
}

func TestLRUReplacerPinAbsent(t *testing.T) {
	replacer := NewLRUReplacer(4)
	replacer.Pin(9)
	assert.Equal(t, 0, replacer.Size())
	_, ok := replacer.Victim()
	assert.False(t, ok)
}

func TestLRUReplacerConcurrent(t *testing.T) {
	const frames = 64
	replacer := NewLRUReplacer(frames)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < frames; i++ {
				if i%8 == g {
					replacer.Unpin(common.FrameID(i))
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, frames, replacer.Size())

	seen := make(map[common.FrameID]bool)
	for {
		victim, ok := replacer.Victim()
		if !ok {
			break
		}
		assert.False(t, seen[victim], "victim %d produced twice", victim)
		seen[victim] = true
	}
	assert.Len(t, seen, frames)
}
