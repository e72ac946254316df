package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"vidconv/internal/jobs"
)

// ConvertService is the submission and status surface the handlers expose
// over HTTP. Tests substitute fakes for it.
type ConvertService interface {
	Submit(ctx context.Context, req jobs.SubmitRequest) (jobs.SubmitResult, error)
	Query(ctx context.Context, id string) (jobs.Status, error)
}

// App carries the handler dependencies.
type App struct {
	Service       ConvertService
	UploadDir     string
	MaxUploadSize int64
	Logger        zerolog.Logger
}

func NewApp(service ConvertService, uploadDir string, maxUploadSize int64, logger zerolog.Logger) *App {
	return &App{Service: service, UploadDir: uploadDir, MaxUploadSize: maxUploadSize, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}
