package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	apperrors "github.com/zsiec/reel/internal/errors"
	"github.com/zsiec/reel/internal/jobs"
	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/render"
	"github.com/zsiec/reel/pkg/version"
)

// multipartMemory is how much of an upload is buffered in memory before
// the multipart reader spills to disk.
const multipartMemory = 32 << 20

// jobList is the body of GET /api/v1/jobs.
type jobList struct {
	Jobs  []*jobs.Job `json:"jobs"`
	Count int         `json:"count"`
}

// handleVersion handles the /version endpoint
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if err := s.writeJSON(w, http.StatusOK, version.GetInfo()); err != nil {
		s.logger.WithError(err).Error("Failed to encode version response")
	}
}

// handleCreateJob stages the multipart "file" field in a temporary file
// and submits it. The job runs in the background.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if limit := s.config.MaxUploadSize; limit > 0 {
		if r.ContentLength > limit {
			s.writeError(w, r, tooLarge(limit))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, r, tooLarge(maxErr.Limit))
			return
		}
		s.writeError(w, r, apperrors.NewValidationError("expected a multipart/form-data body"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, apperrors.NewValidationError(`missing "file" field`))
		return
	}
	defer file.Close()

	staged, err := stageUpload(s.config.TempDir, file)
	if err != nil {
		s.writeError(w, r, apperrors.WrapInternalError(err, "failed to store upload"))
		return
	}

	job, err := s.jobs.Submit(r.Context(), header.Filename, staged)
	if err != nil {
		if errors.Is(err, jobs.ErrShuttingDown) {
			s.writeError(w, r, apperrors.NewServiceDownError("job"))
			return
		}
		s.writeError(w, r, apperrors.WrapInternalError(err, "failed to submit job"))
		return
	}

	logger.FromContext(r.Context()).WithFields(map[string]interface{}{
		"job_id": job.ID,
		"input":  header.Filename,
		"bytes":  header.Size,
	}).Info("Job accepted")

	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	if err := s.writeJSON(w, http.StatusAccepted, job); err != nil {
		s.logger.WithError(err).Error("Failed to encode job")
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := s.jobs.List(r.Context())
	if err != nil {
		s.writeError(w, r, apperrors.WrapInternalError(err, "failed to list jobs"))
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}
	if err := s.writeJSON(w, http.StatusOK, jobList{Jobs: list, Count: len(list)}); err != nil {
		s.logger.WithError(err).Error("Failed to encode job list")
	}
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := s.writeJSON(w, http.StatusOK, job); err != nil {
		s.logger.WithError(err).Error("Failed to encode job")
	}
}

// handleDeleteJob cancels a job that is still in progress, or removes a
// finished one.
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookup(w, r)
	if !ok {
		return
	}

	if !job.Status.Terminal() {
		if err := s.jobs.Cancel(job.ID); err == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
	}

	if err := s.jobs.Delete(r.Context(), job.ID); err != nil {
		switch {
		case jobs.IsNotFound(err):
			s.writeError(w, r, apperrors.NewNotFoundError("job"))
		case errors.Is(err, jobs.ErrJobRunning):
			s.writeError(w, r, apperrors.NewConflictError("job is still running"))
		default:
			s.writeError(w, r, apperrors.WrapInternalError(err, "failed to delete job"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePreview answers with the job's latest preview frame as a JPEG.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	preview, ok := s.jobs.Preview(id)
	if !ok {
		s.writeError(w, r, apperrors.NewNotFoundError("job"))
		return
	}

	var buf bytes.Buffer
	if err := preview.WriteJPEG(&buf); err != nil {
		if errors.Is(err, render.ErrNoFrame) {
			s.writeError(w, r, apperrors.NewNotFoundError("preview frame"))
			return
		}
		s.writeError(w, r, apperrors.WrapInternalError(err, "failed to encode preview"))
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func tooLarge(limit int64) error {
	return apperrors.New(apperrors.ErrorTypeValidation,
		fmt.Sprintf("upload exceeds %d bytes", limit), http.StatusRequestEntityTooLarge)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*jobs.Job, bool) {
	job, err := s.jobs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if jobs.IsNotFound(err) {
			s.writeError(w, r, apperrors.NewNotFoundError("job"))
		} else {
			s.writeError(w, r, apperrors.WrapInternalError(err, "failed to load job"))
		}
		return nil, false
	}
	return job, true
}

// stagedFile is an uploaded input on disk. Close removes it.
type stagedFile struct {
	*os.File
}

func (f stagedFile) Close() error {
	closeErr := f.File.Close()
	if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return closeErr
}

func stageUpload(dir string, src io.Reader) (io.ReadSeekCloser, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
	}
	f, err := os.CreateTemp(dir, "reel-upload-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	staged := stagedFile{f}
	if _, err := io.Copy(f, src); err != nil {
		_ = staged.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = staged.Close()
		return nil, fmt.Errorf("rewind temp file: %w", err)
	}
	return staged, nil
}

// writeJSON is a helper to write JSON responses
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// writeError is a helper to write error responses
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.errorHandler.HandleError(w, r, err)
}
