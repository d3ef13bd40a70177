package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/reel/internal/codec"
	"github.com/zsiec/reel/internal/codec/codectest"
	"github.com/zsiec/reel/internal/container/containertest"
	"github.com/zsiec/reel/internal/demux"
	"github.com/zsiec/reel/internal/demux/demuxtest"
	apperrors "github.com/zsiec/reel/internal/errors"
	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/render"
	"github.com/zsiec/reel/internal/upload"
)

var encoderConfig = codec.EncoderConfig{Codec: "vp9", Height: 144, Bitrate: 10_000_000, Framerate: 25}

type harness struct {
	pool       *media.FramePool
	codecs     *codectest.Factory
	containers *containertest.Factory
	uploads    *upload.MemoryService
	demuxer    demux.Demuxer
	threshold  int
}

func newHarness(frames int) *harness {
	pool := media.NewFramePool(4)
	return &harness{
		pool:       pool,
		codecs:     codectest.NewFactory(pool),
		containers: &containertest.Factory{},
		uploads:    upload.NewMemoryService(),
		demuxer:    demuxtest.Frames(frames),
	}
}

func (h *harness) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(Options{
		Demuxer:          h.demuxer,
		Codecs:           h.codecs,
		Containers:       h.containers,
		Uploader:         h.uploads,
		SegmentThreshold: h.threshold,
		Logger:           logger.Discard(),
	})
	require.NoError(t, err)
	return p
}

// run starts the pipeline and returns its error plus the completion
// status, if the callback fired.
func (h *harness) run(ctx context.Context, t *testing.T, sink render.Sink) (*Status, error) {
	t.Helper()
	var (
		mu     sync.Mutex
		status *Status
	)
	err := h.pipeline(t).Start(ctx, Input{Name: "clips/clip.mp4", Body: bytes.NewReader(nil)}, encoderConfig, sink,
		func(s Status) {
			mu.Lock()
			defer mu.Unlock()
			require.Nil(t, status, "completion reported twice")
			status = &s
		})
	mu.Lock()
	defer mu.Unlock()
	return status, err
}

func (h *harness) assertFramesReleased(t *testing.T) {
	t.Helper()
	stats := h.pool.Stats()
	assert.Zero(t, stats.Outstanding, "frames still leased")
	assert.Zero(t, stats.DoubleReleases, "frames released twice")
}

func TestPipelineEndToEnd(t *testing.T) {
	h := newHarness(20)

	var presented atomic.Int64
	sink := render.SinkFunc(func(f *media.Frame) error {
		assert.False(t, f.Released())
		assert.Equal(t, 192, f.DisplayWidth())
		assert.Equal(t, 144, f.DisplayHeight())
		presented.Add(1)
		return nil
	})

	status, err := h.run(context.Background(), t, sink)
	require.NoError(t, err)
	require.NotNil(t, status)

	assert.Equal(t, StatusDone, status.State)
	assert.Equal(t, "clip", status.Name)
	assert.Equal(t, int64(20), status.Stats.FramesDecoded)
	assert.Equal(t, int64(20), status.Stats.ChunksEncoded)
	assert.Equal(t, int64(1), status.Stats.SegmentsUploaded)
	assert.Equal(t, presented.Load(), status.Stats.PreviewsShown)
	assert.Equal(t, []string{"clip-144p.1.webm"}, status.Uploaded)

	files := h.uploads.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "clip-144p.1.webm", files[0].Name)
	assert.Equal(t, "video/webm", files[0].ContentType)
	assert.Len(t, files[0].Payload, len(containertest.Header)+20*100)
	assert.True(t, bytes.HasPrefix(files[0].Payload, containertest.Header))

	h.assertFramesReleased(t)
}

func TestPipelineConfigPrecedesData(t *testing.T) {
	h := newHarness(8)

	_, err := h.run(context.Background(), t, nil)
	require.NoError(t, err)

	writers := h.containers.Writers()
	require.Len(t, writers, 1)
	chunks := writers[0].Chunks()
	require.Len(t, chunks, 9)
	require.Equal(t, media.ChunkConfig, chunks[0].Kind)
	assert.Equal(t, 192, chunks[0].Config.Width)
	assert.Equal(t, 144, chunks[0].Config.Height)
	assert.Equal(t, codec.CodecString("vp9"), chunks[0].Config.Codec)

	var last time.Duration = -1
	for _, c := range chunks[1:] {
		assert.Equal(t, media.ChunkData, c.Kind)
		assert.Greater(t, c.Timestamp, last)
		last = c.Timestamp
	}

	decoders := h.codecs.Decoders()
	require.Len(t, decoders, 2)
	assert.Equal(t, 640, decoders[0].Configs()[0].Width)
	previewCfg := decoders[1].Configs()
	require.Len(t, previewCfg, 1)
	assert.Equal(t, 144, previewCfg[0].Height)
	assert.Len(t, decoders[1].Chunks(), 8)
	assert.True(t, decoders[0].Closed())
	assert.True(t, decoders[1].Closed())
}

func TestPipelineUploadBatching(t *testing.T) {
	t.Run("under threshold uploads once at end", func(t *testing.T) {
		h := newHarness(10)
		h.codecs.SetupEncoder = func(e *codectest.Encoder) {
			e.PayloadSize = func(int) int { return 300_000 }
		}

		_, err := h.run(context.Background(), t, nil)
		require.NoError(t, err)

		files := h.uploads.Files()
		require.Len(t, files, 1)
		assert.Equal(t, "clip-144p.1.webm", files[0].Name)
		assert.Len(t, files[0].Payload, len(containertest.Header)+3_000_000)
		h.assertFramesReleased(t)
	})

	t.Run("exceeding threshold flushes immediately", func(t *testing.T) {
		h := newHarness(3)
		h.codecs.SetupEncoder = func(e *codectest.Encoder) {
			e.PayloadSize = func(i int) int {
				if i == 0 {
					return upload.DefaultThreshold + 1 - len(containertest.Header)
				}
				return 100
			}
		}

		_, err := h.run(context.Background(), t, nil)
		require.NoError(t, err)

		files := h.uploads.Files()
		require.Len(t, files, 2)
		assert.Equal(t, "clip-144p.1.webm", files[0].Name)
		assert.Len(t, files[0].Payload, upload.DefaultThreshold+1)
		assert.Equal(t, "clip-144p.2.webm", files[1].Name)
		assert.Len(t, files[1].Payload, 200)
	})

	t.Run("custom threshold keeps segment order", func(t *testing.T) {
		h := newHarness(30)
		h.threshold = 1000

		status, err := h.run(context.Background(), t, nil)
		require.NoError(t, err)
		require.NotNil(t, status)

		var want []byte
		want = append(want, containertest.Header...)
		for i := 0; i < 30; i++ {
			want = append(want, bytes.Repeat([]byte{byte(i)}, 100)...)
		}
		assert.Equal(t, want, h.uploads.Concat())

		files := h.uploads.Files()
		assert.Len(t, files, 3)
		for i, f := range files[:len(files)-1] {
			assert.Greater(t, len(f.Payload), 1000, "file %d", i)
		}
		assert.Equal(t, int64(len(files)), status.Stats.SegmentsUploaded)
		assert.Equal(t, int64(len(want)), status.Stats.BytesUploaded)
	})
}

func TestPipelineFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness)
		errType apperrors.ErrorType
	}{
		{
			name: "demux failure",
			setup: func(h *harness) {
				s := demuxtest.Frames(20)
				s.Err = errors.New("truncated atom")
				s.FailAfter = 7
				h.demuxer = s
			},
			errType: apperrors.ErrorTypeDemuxFailure,
		},
		{
			name: "decode failure mid-stream",
			setup: func(h *harness) {
				h.codecs.SetupDecoder = func(i int, d *codectest.Decoder) {
					if i == 0 {
						d.FailAt = 10
					}
				}
			},
			errType: apperrors.ErrorTypeDecodeFailure,
		},
		{
			name: "preview decode failure",
			setup: func(h *harness) {
				h.codecs.SetupDecoder = func(i int, d *codectest.Decoder) {
					if i == 1 {
						d.FailAt = 4
					}
				}
			},
			errType: apperrors.ErrorTypeDecodeFailure,
		},
		{
			name: "encode failure",
			setup: func(h *harness) {
				h.codecs.SetupEncoder = func(e *codectest.Encoder) { e.FailAt = 6 }
			},
			errType: apperrors.ErrorTypeEncodeFailure,
		},
		{
			name: "mux failure",
			setup: func(h *harness) {
				h.containers.Setup = func(w *containertest.Writer) { w.FailAt = 5 }
			},
			errType: apperrors.ErrorTypeMuxFailure,
		},
		{
			name: "upload failure",
			setup: func(h *harness) {
				h.uploads.FailOn = func(upload.File) error { return errors.New("bucket unavailable") }
			},
			errType: apperrors.ErrorTypeUploadFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(20)
			tt.setup(h)

			status, err := h.run(context.Background(), t, nil)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, tt.errType), "got %v", err)
			assert.Nil(t, status, "completion must not fire on failure")
			assert.Empty(t, h.uploads.Files())
			h.assertFramesReleased(t)
		})
	}
}

func TestPipelineDecodeFailureStopsDownstream(t *testing.T) {
	h := newHarness(50)
	h.codecs.SetupDecoder = func(i int, d *codectest.Decoder) {
		if i == 0 {
			d.FailAt = 10
		}
	}

	_, err := h.run(context.Background(), t, nil)
	require.Error(t, err)

	encoders := h.codecs.Encoders()
	require.Len(t, encoders, 1)
	assert.Less(t, encoders[0].Encoded(), 10)
	assert.True(t, h.containers.Writers()[0].Aborted())
}

func TestPipelineCancelled(t *testing.T) {
	h := newHarness(20)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	status, err := h.run(ctx, t, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, status)
	assert.Empty(t, h.uploads.Files())
	h.assertFramesReleased(t)
}

func TestPipelineSlowSinkDropsPreviews(t *testing.T) {
	h := newHarness(40)
	sink := render.SinkFunc(func(*media.Frame) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})

	status, err := h.run(context.Background(), t, sink)
	require.NoError(t, err)
	require.NotNil(t, status)

	assert.Equal(t, int64(40), status.Stats.ChunksEncoded)
	assert.LessOrEqual(t, status.Stats.PreviewsShown+status.Stats.PreviewsDropped, int64(40))
	h.assertFramesReleased(t)
}

func TestPipelinePresentsFinalPreviewFrame(t *testing.T) {
	h := newHarness(40)

	var (
		mu     sync.Mutex
		lastTS time.Duration
	)
	sink := render.SinkFunc(func(f *media.Frame) error {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		lastTS = f.Timestamp
		mu.Unlock()
		return nil
	})

	status, err := h.run(context.Background(), t, sink)
	require.NoError(t, err)
	require.NotNil(t, status)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 39*demuxtest.FrameDuration, lastTS)
	assert.Equal(t, int64(40), status.Stats.PreviewsShown+status.Stats.PreviewsDropped)
	h.assertFramesReleased(t)
}

func TestPipelineMP4Input(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, demuxtest.WriteMP4(path, 12))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	h := newHarness(0)
	h.demuxer = demux.NewMP4Demuxer(logger.Discard())

	p := h.pipeline(t)
	var status *Status
	err = p.Start(context.Background(), Input{Name: path, Body: f}, encoderConfig, nil, func(s Status) { status = &s })
	require.NoError(t, err)
	require.NotNil(t, status)

	assert.Equal(t, "clip", status.Name)
	assert.Equal(t, int64(12), status.Stats.FramesDecoded)

	chunks := h.containers.Writers()[0].Chunks()
	require.NotEmpty(t, chunks)
	require.Equal(t, media.ChunkConfig, chunks[0].Kind)
	assert.Equal(t, 144, chunks[0].Config.Height)
	assert.Equal(t, 192, chunks[0].Config.Width)
	h.assertFramesReleased(t)
}

func TestPipelineProgress(t *testing.T) {
	h := newHarness(6)
	progress := &Counters{}

	p, err := New(Options{
		Demuxer:    h.demuxer,
		Codecs:     h.codecs,
		Containers: h.containers,
		Uploader:   h.uploads,
		Progress:   progress,
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background(), Input{Name: "a.mp4", Body: bytes.NewReader(nil)}, encoderConfig, nil, nil))

	stats := progress.Snapshot()
	assert.Equal(t, int64(6), stats.FramesDecoded)
	assert.Equal(t, int64(6), stats.ChunksEncoded)
	assert.Equal(t, int64(1), stats.SegmentsUploaded)
}

func TestNewValidation(t *testing.T) {
	h := newHarness(1)
	_, err := New(Options{Codecs: h.codecs, Containers: h.containers, Uploader: h.uploads})
	assert.Error(t, err)
	_, err = New(Options{Demuxer: h.demuxer, Containers: h.containers, Uploader: h.uploads})
	assert.Error(t, err)
	_, err = New(Options{Demuxer: h.demuxer, Codecs: h.codecs, Uploader: h.uploads})
	assert.Error(t, err)
	_, err = New(Options{Demuxer: h.demuxer, Codecs: h.codecs, Containers: h.containers})
	assert.Error(t, err)
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"movie.mp4", "movie"},
		{"/videos/holiday.mp4", "holiday"},
		{"dir/clip.MP4", "clip.MP4"},
		{"archive.mp4.mp4", "archive.mp4"},
		{"a.mp4x.mp4", "ax.mp4"},
		{"talk.mp4.bak", "talk.bak"},
		{"noext", "noext"},
		{`C:\media\talk.mp4`, "talk"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BaseName(tt.in), tt.in)
	}
}
