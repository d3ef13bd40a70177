package upload

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNaming = Naming{BaseName: "holiday", Label: "144p", Extension: "webm"}

func TestNamingFileName(t *testing.T) {
	assert.Equal(t, "holiday-144p.1.webm", testNaming.FileName(1))
	assert.Equal(t, "holiday-144p.12.webm", testNaming.FileName(12))
}

func TestBatchBelowThresholdFlushesAtEnd(t *testing.T) {
	b := NewBatch(testNaming, 0)

	// 3,000,000 bytes in 30 segments
	var want []byte
	for i := 0; i < 30; i++ {
		seg := bytes.Repeat([]byte{byte(i)}, 100_000)
		want = append(want, seg...)
		_, flushed := b.Add(seg)
		require.False(t, flushed)
	}
	assert.Equal(t, 3_000_000, b.Size())
	assert.Equal(t, 30, b.Len())

	f, ok := b.Flush()
	require.True(t, ok)
	assert.Equal(t, "holiday-144p.1.webm", f.Name)
	assert.Equal(t, "video/webm", f.ContentType)
	assert.Equal(t, want, f.Payload)

	_, ok = b.Flush()
	assert.False(t, ok)
}

func TestBatchThresholdIsStrict(t *testing.T) {
	b := NewBatch(testNaming, DefaultThreshold)

	_, flushed := b.Add(make([]byte, DefaultThreshold))
	assert.False(t, flushed, "exactly the threshold must not flush")

	f, flushed := b.Add([]byte{1})
	require.True(t, flushed)
	assert.Equal(t, "holiday-144p.1.webm", f.Name)
	assert.Len(t, f.Payload, DefaultThreshold+1)
	assert.Equal(t, 0, b.Size())
}

func TestBatchOversizedSegmentFlushesImmediately(t *testing.T) {
	b := NewBatch(testNaming, 0)

	f, flushed := b.Add(make([]byte, 10_000_001))
	require.True(t, flushed)
	assert.Equal(t, "holiday-144p.1.webm", f.Name)
	assert.Equal(t, 2, b.NextIndex())

	_, flushed = b.Add([]byte("tail"))
	assert.False(t, flushed)
	f, ok := b.Flush()
	require.True(t, ok)
	assert.Equal(t, "holiday-144p.2.webm", f.Name)
	assert.Equal(t, []byte("tail"), f.Payload)
}

func TestBatchCoversEveryByte(t *testing.T) {
	b := NewBatch(testNaming, 1000)

	var (
		input  []byte
		output []byte
		names  []string
	)
	for i := 0; i < 50; i++ {
		seg := bytes.Repeat([]byte{byte(i)}, 37*(i%7+1))
		input = append(input, seg...)
		if f, ok := b.Add(seg); ok {
			output = append(output, f.Payload...)
			names = append(names, f.Name)
		}
	}
	if f, ok := b.Flush(); ok {
		output = append(output, f.Payload...)
		names = append(names, f.Name)
	}

	assert.Equal(t, input, output)
	for i, name := range names {
		assert.Equal(t, testNaming.FileName(i+1), name)
	}
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "video/webm", ContentTypeFor("webm"))
	assert.Equal(t, "video/webm", ContentTypeFor(".WEBM"))
	assert.Equal(t, "video/mp4", ContentTypeFor("mp4"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("bin"))
}
