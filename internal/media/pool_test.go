package media

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramePoolGetRelease(t *testing.T) {
	pool := NewFramePool(2)

	f := pool.Get(4, 2, 40*time.Millisecond)
	assert.Equal(t, 4, f.DisplayWidth())
	assert.Equal(t, 2, f.DisplayHeight())
	assert.Equal(t, 16, f.Stride())
	assert.Len(t, f.Pix(), 32)
	assert.Equal(t, 40*time.Millisecond, f.Timestamp)
	assert.Equal(t, int64(1), pool.Outstanding())

	require.NoError(t, f.Release())
	assert.True(t, f.Released())
	assert.Nil(t, f.Pix())
	assert.Equal(t, int64(0), pool.Outstanding())
}

func TestFrameDoubleRelease(t *testing.T) {
	pool := NewFramePool(2)
	f := pool.Get(2, 2, 0)

	require.NoError(t, f.Release())
	assert.ErrorIs(t, f.Release(), ErrFrameReleased)
	assert.ErrorIs(t, f.Release(), ErrFrameReleased)

	stats := pool.Stats()
	assert.Equal(t, int64(0), stats.Outstanding)
	assert.Equal(t, int64(1), stats.Released)
	assert.Equal(t, int64(2), stats.DoubleReleases)
}

func TestFramePoolReuse(t *testing.T) {
	pool := NewFramePool(1)

	a := pool.Get(8, 8, 0)
	b := pool.Get(8, 8, 0)
	require.NoError(t, a.Release())
	require.NoError(t, b.Release())

	// only one buffer of this size is retained
	assert.Equal(t, 1, pool.Stats().FreeBuffers)

	c := pool.Get(8, 8, 0)
	assert.Equal(t, int64(1), pool.Stats().Reused)
	assert.Equal(t, 0, pool.Stats().FreeBuffers)

	// a different size is a fresh allocation
	d := pool.Get(4, 4, 0)
	assert.Equal(t, int64(1), pool.Stats().Reused)

	require.NoError(t, c.Release())
	require.NoError(t, d.Release())
	assert.Equal(t, int64(0), pool.Outstanding())
}

func TestFramePoolZeroRetention(t *testing.T) {
	pool := NewFramePool(0)
	f := pool.Get(2, 2, 0)
	require.NoError(t, f.Release())
	assert.Equal(t, 0, pool.Stats().FreeBuffers)
}

func TestFrameImage(t *testing.T) {
	pool := NewFramePool(1)
	f := pool.Get(3, 2, 0)
	defer f.Release()

	f.Pix()[0] = 0xff
	img := f.Image()
	assert.Equal(t, 3, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())
	assert.Equal(t, uint8(0xff), img.RGBAAt(0, 0).R)
}

func TestFrameConcurrentRelease(t *testing.T) {
	pool := NewFramePool(4)
	f := pool.Get(16, 16, 0)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		released int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.Release() == nil {
				mu.Lock()
				released++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, released)
	assert.Equal(t, int64(0), pool.Outstanding())
	assert.Equal(t, int64(15), pool.Stats().DoubleReleases)
}

func TestFramePoolConcurrentUse(t *testing.T) {
	pool := NewFramePool(4)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				f := pool.Get(8+g*2, 8, time.Duration(i))
				f.Pix()[0] = byte(i)
				_ = f.Release()
			}
		}(g)
	}
	wg.Wait()

	stats := pool.Stats()
	assert.Equal(t, int64(0), stats.Outstanding)
	assert.Equal(t, int64(800), stats.Allocated)
	assert.Equal(t, int64(800), stats.Released)
}
