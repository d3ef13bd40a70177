package pipeline

import (
	"sync/atomic"
)

// Progress observes a running pipeline. Methods are called from stage
// goroutines and must not block.
type Progress interface {
	FrameDecoded()
	ChunkEncoded()
	PreviewPresented()
	PreviewDropped()
	SegmentUploaded(name string, size int)
}

// Counters is a Progress that counts events.
type Counters struct {
	frames    atomic.Int64
	chunks    atomic.Int64
	presented atomic.Int64
	dropped   atomic.Int64
	segments  atomic.Int64
	bytes     atomic.Int64
}

func (c *Counters) FrameDecoded()     { c.frames.Add(1) }
func (c *Counters) ChunkEncoded()     { c.chunks.Add(1) }
func (c *Counters) PreviewPresented() { c.presented.Add(1) }
func (c *Counters) PreviewDropped()   { c.dropped.Add(1) }

func (c *Counters) SegmentUploaded(name string, size int) {
	c.segments.Add(1)
	c.bytes.Add(int64(size))
}

// Stats is a point-in-time copy of Counters.
type Stats struct {
	FramesDecoded    int64 `json:"frames_decoded"`
	ChunksEncoded    int64 `json:"chunks_encoded"`
	PreviewsShown    int64 `json:"previews_presented"`
	PreviewsDropped  int64 `json:"previews_dropped"`
	SegmentsUploaded int64 `json:"segments_uploaded"`
	BytesUploaded    int64 `json:"bytes_uploaded"`
}

func (c *Counters) Snapshot() Stats {
	return Stats{
		FramesDecoded:    c.frames.Load(),
		ChunksEncoded:    c.chunks.Load(),
		PreviewsShown:    c.presented.Load(),
		PreviewsDropped:  c.dropped.Load(),
		SegmentsUploaded: c.segments.Load(),
		BytesUploaded:    c.bytes.Load(),
	}
}

type multiProgress []Progress

func (m multiProgress) FrameDecoded() {
	for _, p := range m {
		p.FrameDecoded()
	}
}

func (m multiProgress) ChunkEncoded() {
	for _, p := range m {
		p.ChunkEncoded()
	}
}

func (m multiProgress) PreviewPresented() {
	for _, p := range m {
		p.PreviewPresented()
	}
}

func (m multiProgress) PreviewDropped() {
	for _, p := range m {
		p.PreviewDropped()
	}
}

func (m multiProgress) SegmentUploaded(name string, size int) {
	for _, p := range m {
		p.SegmentUploaded(name, size)
	}
}
