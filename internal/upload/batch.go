package upload

import "fmt"

// DefaultThreshold is the batch size, in bytes, that must be exceeded
// before a batch is flushed.
const DefaultThreshold = 10_000_000

// Naming builds segment file names of the form
// {BaseName}-{Label}.{index}.{Extension}.
type Naming struct {
	BaseName    string
	Label       string
	Extension   string
	ContentType string
}

func (n Naming) FileName(index int) string {
	return fmt.Sprintf("%s-%s.%d.%s", n.BaseName, n.Label, index, n.Extension)
}

// Batch accumulates container segments until their total size strictly
// exceeds the threshold. Segment indexes start at 1 and advance on every
// flush.
type Batch struct {
	naming    Naming
	threshold int

	buffers [][]byte
	size    int
	index   int
}

// NewBatch creates a batch. A threshold of zero or less uses
// DefaultThreshold.
func NewBatch(naming Naming, threshold int) *Batch {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if naming.ContentType == "" {
		naming.ContentType = ContentTypeFor(naming.Extension)
	}
	return &Batch{naming: naming, threshold: threshold, index: 1}
}

// Add appends a segment. When the batch is now over the threshold, the
// combined file is returned and the batch starts over.
func (b *Batch) Add(segment []byte) (File, bool) {
	b.buffers = append(b.buffers, segment)
	b.size += len(segment)
	if b.size > b.threshold {
		return b.take(), true
	}
	return File{}, false
}

// Flush returns whatever is buffered, if anything.
func (b *Batch) Flush() (File, bool) {
	if len(b.buffers) == 0 {
		return File{}, false
	}
	return b.take(), true
}

func (b *Batch) take() File {
	payload := make([]byte, 0, b.size)
	for _, buf := range b.buffers {
		payload = append(payload, buf...)
	}
	f := File{
		Name:        b.naming.FileName(b.index),
		Payload:     payload,
		ContentType: b.naming.ContentType,
	}
	b.index++
	b.buffers = nil
	b.size = 0
	return f
}

// Size is the number of buffered bytes.
func (b *Batch) Size() int { return b.size }

// Len is the number of buffered segments.
func (b *Batch) Len() int { return len(b.buffers) }

// NextIndex is the index the next flushed file will carry.
func (b *Batch) NextIndex() int { return b.index }
