package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// JobState enumerates the job lifecycle states.
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// Terminal reports whether no further transition can occur from s.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// OutputFormat enumerates supported target containers.
type OutputFormat string

const (
	FormatMP4 OutputFormat = "mp4"
	FormatMOV OutputFormat = "mov"
	FormatAVI OutputFormat = "avi"
	FormatMKV OutputFormat = "mkv"
)

// ParseOutputFormat validates a user-supplied format string. An empty
// string falls back to mp4, matching the upload collaborator's default.
func ParseOutputFormat(s string) (OutputFormat, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FormatMP4, nil
	}
	switch f := OutputFormat(s); f {
	case FormatMP4, FormatMOV, FormatAVI, FormatMKV:
		return f, nil
	}
	return "", fmt.Errorf("domain: unsupported output format %q", s)
}

// MIMEType returns the content type recorded on the uploaded artifact.
func (f OutputFormat) MIMEType() string {
	switch f {
	case FormatMP4:
		return "video/mp4"
	case FormatMOV:
		return "video/quicktime"
	case FormatAVI:
		return "video/x-msvideo"
	case FormatMKV:
		return "video/x-matroska"
	default:
		return "application/octet-stream"
	}
}

// Job is one unit of work mapping an input file and a target format to a
// single remote artifact. A record is created by the submission path,
// mutated only by the worker holding the queue lease, and read by the
// status path.
type Job struct {
	ID               string
	OriginalFilename string
	InputPath        string
	OutputFormat     OutputFormat
	State            JobState
	Progress         int
	ObjectKey        string
	ErrorMessage     string
	Attempts         int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// QueuePayload is the work handed from the submitter to a worker. The job
// id doubles as the queue entry id, which is what guarantees at most one
// live entry per job.
type QueuePayload struct {
	InputPath        string `json:"input_path"`
	OutputFormat     string `json:"output_format"`
	OriginalFilename string `json:"original_filename"`
}

// ArtifactKey derives the remote object key for a job deterministically
// from its original filename and target format. Re-deriving the key on a
// redelivered job makes the re-upload overwrite the same object instead of
// orphaning a duplicate.
func ArtifactKey(originalFilename string, format OutputFormat) string {
	base := strings.TrimSuffix(filepath.Base(originalFilename), filepath.Ext(originalFilename))
	if base == "" {
		base = "output"
	}
	return fmt.Sprintf("converted/%s_converted.%s", base, format)
}
