package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileService writes uploads into a local directory.
type FileService struct {
	dir string
}

func NewFileService(dir string) (*FileService, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FileService{dir: dir}, nil
}

func (s *FileService) UploadFile(ctx context.Context, file File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if file.Name == "" || filepath.Base(file.Name) != file.Name {
		return fmt.Errorf("invalid upload name %q", file.Name)
	}

	path := filepath.Join(s.dir, file.Name)
	tmp := filepath.Join(s.dir, "."+file.Name+".partial")
	if err := os.WriteFile(tmp, file.Payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", file.Name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit %s: %w", file.Name, err)
	}
	return nil
}

// Dir returns the target directory.
func (s *FileService) Dir() string { return s.dir }
