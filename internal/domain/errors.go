package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both an unknown job id and an expired or never
	// written remote artifact.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateJob signals resubmission of a job id that already exists.
	ErrDuplicateJob = errors.New("duplicate job")
	// ErrOverloaded signals that the queue depth cap was exceeded at
	// submission time; no job record is created in that case.
	ErrOverloaded = errors.New("overloaded")
	// ErrStorage wraps transient upload or presign failures.
	ErrStorage = errors.New("storage failure")
	// ErrTranscodeTimeout marks a transcode that exceeded the configured
	// ceiling and had its process killed.
	ErrTranscodeTimeout = errors.New("transcode timeout")
)

// TranscodeError reports a non-zero exit from the external conversion tool.
type TranscodeError struct {
	ExitCode int
	Stderr   string
}

func (e *TranscodeError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("transcode failed with exit code %d", e.ExitCode)
	}
	return fmt.Sprintf("transcode failed with exit code %d: %s", e.ExitCode, e.Stderr)
}
