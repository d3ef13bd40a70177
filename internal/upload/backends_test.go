package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/reel/internal/config"
	"github.com/zsiec/reel/internal/logger"
)

var testFile = File{Name: "clip-144p.1.webm", Payload: []byte("webm bytes"), ContentType: "video/webm"}

func TestFileService(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	svc, err := NewFileService(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, svc.Dir())

	require.NoError(t, svc.UploadFile(context.Background(), testFile))

	data, err := os.ReadFile(filepath.Join(dir, testFile.Name))
	require.NoError(t, err)
	assert.Equal(t, testFile.Payload, data)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.Error(t, svc.UploadFile(context.Background(), File{Name: "../escape.webm"}))
	assert.Error(t, svc.UploadFile(context.Background(), File{}))
}

func TestHTTPService(t *testing.T) {
	var (
		mu   sync.Mutex
		got  []byte
		path string
		hdr  http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got, path, hdr = body, r.URL.Path, r.Header.Clone()
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	svc, err := NewHTTPService(config.HTTPUploadConfig{
		URL:     srv.URL + "/segments/",
		Headers: map[string]string{"Authorization": "Bearer token"},
	})
	require.NoError(t, err)
	defer svc.Close()

	require.NoError(t, svc.UploadFile(context.Background(), testFile))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, testFile.Payload, got)
	assert.Equal(t, "/segments/clip-144p.1.webm", path)
	assert.Equal(t, "video/webm", hdr.Get("Content-Type"))
	assert.Equal(t, "Bearer token", hdr.Get("Authorization"))
	assert.Contains(t, hdr.Get("User-Agent"), "reel")
}

func TestHTTPServiceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bucket full", http.StatusInsufficientStorage)
	}))
	defer srv.Close()

	svc, err := NewHTTPService(config.HTTPUploadConfig{URL: srv.URL})
	require.NoError(t, err)

	err = svc.UploadFile(context.Background(), testFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "507")
	assert.Contains(t, err.Error(), "bucket full")
}

func TestNewHTTPServiceValidation(t *testing.T) {
	_, err := NewHTTPService(config.HTTPUploadConfig{URL: "not a url"})
	assert.Error(t, err)

	_, err = NewHTTPService(config.HTTPUploadConfig{URL: "http://example.com", HTTP3: true})
	assert.Error(t, err)

	svc, err := NewHTTPService(config.HTTPUploadConfig{URL: "https://example.com", HTTP3: true})
	require.NoError(t, err)
	assert.NoError(t, svc.Close())
}

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Service(t *testing.T) {
	client := &fakeS3{}
	svc := NewS3ServiceWithClient(client, "media", "renditions/144p")

	require.NoError(t, svc.UploadFile(context.Background(), testFile))
	require.Len(t, client.inputs, 1)

	in := client.inputs[0]
	assert.Equal(t, "media", *in.Bucket)
	assert.Equal(t, "renditions/144p/clip-144p.1.webm", *in.Key)
	assert.Equal(t, "video/webm", *in.ContentType)
	assert.Equal(t, int64(len(testFile.Payload)), *in.ContentLength)
	assert.Equal(t, testFile.Payload, client.bodies[0])

	client.err = errors.New("access denied")
	err := svc.UploadFile(context.Background(), testFile)
	assert.ErrorContains(t, err, "s3://media/renditions/144p/clip-144p.1.webm")
}

func TestS3ServiceNoPrefix(t *testing.T) {
	client := &fakeS3{}
	svc := NewS3ServiceWithClient(client, "media", "")
	require.NoError(t, svc.UploadFile(context.Background(), File{Name: "a.webm"}))
	assert.Equal(t, "a.webm", *client.inputs[0].Key)
	assert.Equal(t, "application/octet-stream", *client.inputs[0].ContentType)
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisService(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()

	svc := NewRedisService(client, "test:uploads:", time.Hour)
	require.NoError(t, svc.UploadFile(ctx, testFile))
	require.NoError(t, svc.UploadFile(ctx, File{Name: "clip-144p.2.webm", Payload: []byte("more")}))

	names, err := svc.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"clip-144p.1.webm", "clip-144p.2.webm"}, names)

	data, err := svc.Get(ctx, testFile.Name)
	require.NoError(t, err)
	assert.Equal(t, testFile.Payload, data)

	_, err = svc.Get(ctx, "missing.webm")
	assert.Error(t, err)

	assert.Equal(t, time.Hour, mr.TTL("test:uploads:"+testFile.Name))

	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists("test:uploads:"+testFile.Name))
}

func TestRedisServiceConnectionError(t *testing.T) {
	mr, client := setupRedis(t)
	mr.Close()

	svc := NewRedisService(client, "", 0)
	assert.Error(t, svc.UploadFile(context.Background(), testFile))
}

func TestRateLimited(t *testing.T) {
	mem := NewMemoryService()
	// 64KiB burst, 64KiB/s
	svc := NewRateLimited(mem, 64<<10)

	start := time.Now()
	require.NoError(t, svc.UploadFile(context.Background(), File{Name: "a", Payload: make([]byte, 64<<10)}))
	require.NoError(t, svc.UploadFile(context.Background(), File{Name: "b", Payload: make([]byte, 16<<10)}))
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.Len(t, mem.Files(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, svc.UploadFile(ctx, File{Name: "c", Payload: make([]byte, 1<<20)}))
	assert.Len(t, mem.Files(), 2)
}

func TestMemoryService(t *testing.T) {
	mem := NewMemoryService()
	payload := []byte("abc")
	require.NoError(t, mem.UploadFile(context.Background(), File{Name: "x", Payload: payload}))
	payload[0] = 'z'

	assert.Equal(t, []byte("abc"), mem.Files()[0].Payload)
	assert.Equal(t, []byte("abc"), mem.Concat())

	mem.FailOn = func(f File) error { return errors.New("rejected " + f.Name) }
	assert.EqualError(t, mem.UploadFile(context.Background(), File{Name: "y"}), "rejected y")
	assert.Len(t, mem.Files(), 1)
}

func TestInstrumentedPassesErrors(t *testing.T) {
	mem := NewMemoryService()
	svc := NewInstrumented(mem, "memory", logger.Discard())

	require.NoError(t, svc.UploadFile(context.Background(), testFile))
	mem.FailOn = func(File) error { return errors.New("nope") }
	assert.EqualError(t, svc.UploadFile(context.Background(), testFile), "nope")
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	svc, err := New(ctx, config.UploadConfig{
		Backend:   "file",
		RateLimit: 1 << 20,
		File:      config.FileUploadConfig{Dir: t.TempDir()},
	}, nil, logger.Discard())
	require.NoError(t, err)
	inst, ok := svc.(*Instrumented)
	require.True(t, ok)
	_, ok = inst.next.(*RateLimited)
	assert.True(t, ok)

	_, client := setupRedis(t)
	svc, err = New(ctx, config.UploadConfig{Backend: "redis"}, client, logger.Discard())
	require.NoError(t, err)
	_, ok = svc.(*Instrumented).next.(*RedisService)
	assert.True(t, ok)

	_, err = New(ctx, config.UploadConfig{Backend: "redis"}, nil, logger.Discard())
	assert.Error(t, err)

	_, err = New(ctx, config.UploadConfig{Backend: "ftp"}, nil, logger.Discard())
	assert.Error(t, err)
}
