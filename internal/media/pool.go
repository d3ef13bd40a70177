package media

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/reel/internal/metrics"
)

// FramePool hands out frames backed by reusable pixel buffers. Free buffers
// are kept per buffer size, at most maxFree of each.
type FramePool struct {
	maxFree int

	mu   sync.Mutex
	free map[int][][]byte

	outstanding    atomic.Int64
	allocated      atomic.Int64
	released       atomic.Int64
	reused         atomic.Int64
	doubleReleases atomic.Int64
}

// PoolStats contains frame pool statistics
type PoolStats struct {
	Outstanding    int64 `json:"outstanding"`
	Allocated      int64 `json:"allocated"`
	Released       int64 `json:"released"`
	Reused         int64 `json:"reused"`
	DoubleReleases int64 `json:"double_releases"`
	FreeBuffers    int   `json:"free_buffers"`
}

// NewFramePool creates a pool that retains up to maxFree idle buffers per size.
func NewFramePool(maxFree int) *FramePool {
	if maxFree < 0 {
		maxFree = 0
	}
	return &FramePool{
		maxFree: maxFree,
		free:    make(map[int][][]byte),
	}
}

// Get leases a frame of the given dimensions. The pixel contents are
// undefined; callers overwrite them.
func (p *FramePool) Get(width, height int, ts time.Duration) *Frame {
	size := width * height * 4

	var pix []byte
	p.mu.Lock()
	if list := p.free[size]; len(list) > 0 {
		pix = list[len(list)-1]
		p.free[size] = list[:len(list)-1]
	}
	p.mu.Unlock()

	if pix == nil {
		pix = make([]byte, size)
	} else {
		p.reused.Add(1)
	}

	p.outstanding.Add(1)
	p.allocated.Add(1)
	metrics.FrameAllocated()

	return &Frame{
		Timestamp: ts,
		width:     width,
		height:    height,
		pix:       pix,
		pool:      p,
	}
}

func (p *FramePool) put(pix []byte) {
	p.outstanding.Add(-1)
	p.released.Add(1)
	metrics.FrameReleased()

	if pix == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	size := len(pix)
	if len(p.free[size]) < p.maxFree {
		p.free[size] = append(p.free[size], pix)
	}
}

func (p *FramePool) doubleRelease() {
	p.doubleReleases.Add(1)
	metrics.FrameDoubleReleased()
}

// Outstanding returns the number of frames leased and not yet released.
func (p *FramePool) Outstanding() int64 {
	return p.outstanding.Load()
}

// Stats returns pool statistics
func (p *FramePool) Stats() PoolStats {
	p.mu.Lock()
	free := 0
	for _, list := range p.free {
		free += len(list)
	}
	p.mu.Unlock()

	return PoolStats{
		Outstanding:    p.outstanding.Load(),
		Allocated:      p.allocated.Load(),
		Released:       p.released.Load(),
		Reused:         p.reused.Load(),
		DoubleReleases: p.doubleReleases.Load(),
		FreeBuffers:    free,
	}
}
