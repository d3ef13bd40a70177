package upload

import (
	"context"
	"sync"
)

// MemoryService keeps uploads in memory. FailOn, when set, can reject a
// file before it is stored.
type MemoryService struct {
	FailOn func(File) error

	mu    sync.Mutex
	files []File
}

func NewMemoryService() *MemoryService {
	return &MemoryService{}
}

func (m *MemoryService) UploadFile(ctx context.Context, file File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.FailOn != nil {
		if err := m.FailOn(file); err != nil {
			return err
		}
	}
	payload := make([]byte, len(file.Payload))
	copy(payload, file.Payload)
	file.Payload = payload

	m.mu.Lock()
	m.files = append(m.files, file)
	m.mu.Unlock()
	return nil
}

// Files returns the stored files in upload order.
func (m *MemoryService) Files() []File {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]File(nil), m.files...)
}

// Concat joins every stored payload.
func (m *MemoryService) Concat() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []byte
	for _, f := range m.files {
		out = append(out, f.Payload...)
	}
	return out
}
