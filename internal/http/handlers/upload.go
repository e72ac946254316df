package handlers

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"vidconv/internal/domain"
	"vidconv/internal/jobs"
)

// Upload accepts a multipart form with a "video" file field and an
// optional "format" field, spools the file into the upload directory and
// submits a conversion job. The response echoes the job id the caller
// polls with.
func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart form")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("video")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "no file uploaded")
		return
	}
	defer file.Close()

	// Spool under a fresh name; client filenames are untrusted.
	inputPath := filepath.Join(a.UploadDir, uuid.NewString()+filepath.Ext(header.Filename))
	dst, err := os.Create(inputPath)
	if err != nil {
		a.Logger.Error().Err(err).Msg("api: spool upload failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store upload")
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(inputPath)
		a.Logger.Error().Err(err).Msg("api: spool upload failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store upload")
		return
	}
	if err := dst.Close(); err != nil {
		os.Remove(inputPath)
		a.Logger.Error().Err(err).Msg("api: spool upload failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store upload")
		return
	}

	result, err := a.Service.Submit(r.Context(), jobs.SubmitRequest{
		InputPath:        inputPath,
		OriginalFilename: header.Filename,
		OutputFormat:     r.FormValue("format"),
	})
	if err != nil {
		os.Remove(inputPath)
		switch {
		case errors.Is(err, domain.ErrOverloaded):
			a.error(w, http.StatusServiceUnavailable, "overloaded", "conversion queue is full, try again later")
		case errors.Is(err, domain.ErrDuplicateJob):
			a.error(w, http.StatusConflict, "duplicate_job", "a job with this id already exists")
		default:
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		}
		return
	}

	a.json(w, http.StatusAccepted, map[string]string{
		"message":       "upload successful, processing started",
		"job_id":        result.JobID,
		"original_name": result.OriginalFilename,
	})
}
