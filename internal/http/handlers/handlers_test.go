package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"vidconv/internal/domain"
	"vidconv/internal/jobs"
)

type fakeService struct {
	submitRes jobs.SubmitResult
	submitErr error
	submitted []jobs.SubmitRequest
	queryRes  jobs.Status
	queryErr  error
	queried   []string
}

func (s *fakeService) Submit(ctx context.Context, req jobs.SubmitRequest) (jobs.SubmitResult, error) {
	s.submitted = append(s.submitted, req)
	if s.submitErr != nil {
		return jobs.SubmitResult{}, s.submitErr
	}
	return s.submitRes, nil
}

func (s *fakeService) Query(ctx context.Context, id string) (jobs.Status, error) {
	s.queried = append(s.queried, id)
	if s.queryErr != nil {
		return jobs.Status{}, s.queryErr
	}
	return s.queryRes, nil
}

func testApp(t *testing.T, svc ConvertService) *App {
	t.Helper()
	return NewApp(svc, t.TempDir(), 1<<20, zerolog.Nop())
}

func multipartUpload(t *testing.T, fieldName, filename, format, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(fieldName, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(fw, content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if format != "" {
		if err := mw.WriteField("format", format); err != nil {
			t.Fatalf("write format field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return m
}

func TestUploadAccepted(t *testing.T) {
	svc := &fakeService{submitRes: jobs.SubmitResult{JobID: "job-1", OriginalFilename: "holiday.mov"}}
	app := testApp(t, svc)

	body, contentType := multipartUpload(t, "video", "holiday.mov", "mkv", "fake video bytes")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	app.Upload(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", rec.Code, rec.Body.String())
	}
	got := decodeBody(t, rec)
	if got["job_id"] != "job-1" {
		t.Fatalf("job_id = %v", got["job_id"])
	}
	if got["original_name"] != "holiday.mov" {
		t.Fatalf("original_name = %v", got["original_name"])
	}

	if len(svc.submitted) != 1 {
		t.Fatalf("submitted = %v, want one request", svc.submitted)
	}
	sub := svc.submitted[0]
	if sub.OriginalFilename != "holiday.mov" || sub.OutputFormat != "mkv" {
		t.Fatalf("submit request = %#v", sub)
	}
	if filepath.Ext(sub.InputPath) != ".mov" {
		t.Fatalf("spooled path %q should keep the upload extension", sub.InputPath)
	}
	if strings.Contains(filepath.Base(sub.InputPath), "holiday") {
		t.Fatalf("spooled path %q must not reuse the client filename", sub.InputPath)
	}
	if _, err := os.Stat(sub.InputPath); err != nil {
		t.Fatalf("spooled file missing: %v", err)
	}
}

func TestUploadMissingFile(t *testing.T) {
	app := testApp(t, &fakeService{})

	body, contentType := multipartUpload(t, "document", "notes.txt", "", "text")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	app.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadNotMultipart(t *testing.T) {
	app := testApp(t, &fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("plain body"))
	rec := httptest.NewRecorder()

	app.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadOverloaded(t *testing.T) {
	svc := &fakeService{submitErr: domain.ErrOverloaded}
	app := testApp(t, svc)

	body, contentType := multipartUpload(t, "video", "clip.mov", "", "bytes")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	app.Upload(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if got := decodeBody(t, rec); got["error"] != "overloaded" {
		t.Fatalf("error = %v", got["error"])
	}
	// The spooled file must not linger for a rejected submission.
	if path := svc.submitted[0].InputPath; pathExists(path) {
		t.Fatalf("spooled file %s not removed after rejection", path)
	}
}

func TestUploadDuplicate(t *testing.T) {
	svc := &fakeService{submitErr: domain.ErrDuplicateJob}
	app := testApp(t, svc)

	body, contentType := multipartUpload(t, "video", "clip.mov", "", "bytes")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	app.Upload(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestUploadUnsupportedFormat(t *testing.T) {
	svc := &fakeService{submitErr: errors.New(`unsupported output format "wmv"`)}
	app := testApp(t, svc)

	body, contentType := multipartUpload(t, "video", "clip.mov", "wmv", "bytes")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	app.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func statusRequest(t *testing.T, app *App, id string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/api/status/{id}", app.Status)
	req := httptest.NewRequest(http.MethodGet, "/api/status/"+id, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestStatusActive(t *testing.T) {
	svc := &fakeService{queryRes: jobs.Status{ID: "job-1", State: domain.JobStateActive, Progress: 42}}
	rec := statusRequest(t, testApp(t, svc), "job-1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decodeBody(t, rec)
	if got["state"] != "active" {
		t.Fatalf("state = %v", got["state"])
	}
	if got["progress"] != float64(42) {
		t.Fatalf("progress = %v", got["progress"])
	}
	if _, ok := got["result"]; ok {
		t.Fatal("active job must not carry a result")
	}
	if svc.queried[0] != "job-1" {
		t.Fatalf("queried = %v", svc.queried)
	}
}

func TestStatusCompletedWithDownloadURL(t *testing.T) {
	svc := &fakeService{queryRes: jobs.Status{
		ID:          "job-1",
		State:       domain.JobStateCompleted,
		Progress:    100,
		DownloadURL: "http://minio/signed",
	}}
	rec := statusRequest(t, testApp(t, svc), "job-1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decodeBody(t, rec)
	result, ok := got["result"].(map[string]any)
	if !ok {
		t.Fatalf("result = %v, want object", got["result"])
	}
	if result["download_url"] != "http://minio/signed" {
		t.Fatalf("download_url = %v", result["download_url"])
	}
}

func TestStatusCompletedDegraded(t *testing.T) {
	svc := &fakeService{queryRes: jobs.Status{
		ID:       "job-1",
		State:    domain.JobStateCompleted,
		Progress: 100,
	}}
	rec := statusRequest(t, testApp(t, svc), "job-1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decodeBody(t, rec)
	if got["state"] != "completed" {
		t.Fatalf("state = %v", got["state"])
	}
	if _, ok := got["result"]; ok {
		t.Fatal("expired artifact must omit the result object")
	}
}

func TestStatusFailed(t *testing.T) {
	svc := &fakeService{queryRes: jobs.Status{
		ID:    "job-1",
		State: domain.JobStateFailed,
		Error: "ffmpeg exited with code 1",
	}}
	rec := statusRequest(t, testApp(t, svc), "job-1")

	got := decodeBody(t, rec)
	if got["state"] != "failed" {
		t.Fatalf("state = %v", got["state"])
	}
	if got["error"] != "ffmpeg exited with code 1" {
		t.Fatalf("error = %v", got["error"])
	}
}

func TestStatusNotFound(t *testing.T) {
	svc := &fakeService{queryErr: domain.ErrNotFound}
	rec := statusRequest(t, testApp(t, svc), "missing")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStatusInternalError(t *testing.T) {
	svc := &fakeService{queryErr: errors.New("connection refused")}
	rec := statusRequest(t, testApp(t, svc), "job-1")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	app := testApp(t, &fakeService{})
	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	rec := httptest.NewRecorder()

	app.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decodeBody(t, rec); got["status"] != "ok" {
		t.Fatalf("body = %v", got)
	}
}
