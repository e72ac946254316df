// Package transcode invokes the external ffmpeg tool to convert a local
// input file into the requested container. The conversion itself is a
// black box; this package owns process lifecycle, the timeout ceiling and
// coarse progress reporting.
package transcode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vidconv/internal/domain"
)

// Executor runs ffmpeg with a hard timeout. A hung process would otherwise
// hold a queue lease forever, so exceeding the ceiling kills the process
// and surfaces domain.ErrTranscodeTimeout.
type Executor struct {
	FFmpegPath  string
	FFprobePath string
	Timeout     time.Duration
	Logger      zerolog.Logger
}

func New(ffmpegPath, ffprobePath string, timeout time.Duration, logger zerolog.Logger) *Executor {
	return &Executor{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, Timeout: timeout, Logger: logger}
}

// OutputPath derives the local output path for an input file and target
// format. It is deterministic so a redelivered job overwrites the same
// file instead of colliding with a fresh name.
func OutputPath(inputPath string, format domain.OutputFormat) string {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	return filepath.Join(filepath.Dir(inputPath), fmt.Sprintf("%s_converted.%s", base, format))
}

// Run converts inputPath into the target format and returns the output
// path. onProgress, when non-nil, receives coarse percentages in [0,100].
// The subprocess never outlives the call: cancellation and the timeout
// ceiling both kill it.
func (e *Executor) Run(ctx context.Context, inputPath string, format domain.OutputFormat, onProgress func(int)) (string, error) {
	outputPath := OutputPath(inputPath, format)

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	duration := e.probeDuration(ctx, inputPath)

	args := []string{
		"-y",
		"-i", inputPath,
		"-progress", "pipe:1",
		"-nostats",
		outputPath,
	}
	cmd := exec.CommandContext(ctx, e.FFmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("transcode: stdout pipe: %w", err)
	}
	var stderrBuf strings.Builder
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("transcode: start ffmpeg: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		consumeProgress(bufio.NewScanner(stdout), duration, onProgress)
	}()

	waitErr := cmd.Wait()
	<-done

	if waitErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w after %s", domain.ErrTranscodeTimeout, e.Timeout)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return "", &domain.TranscodeError{
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderrTail(stderrBuf.String()),
			}
		}
		return "", fmt.Errorf("transcode: ffmpeg: %w", waitErr)
	}

	if onProgress != nil {
		onProgress(100)
	}
	return outputPath, nil
}

// probeDuration asks ffprobe for the input duration in seconds. Progress
// degrades to coarse jumps when the probe fails; that is not an error.
func (e *Executor) probeDuration(ctx context.Context, inputPath string) float64 {
	if e.FFprobePath == "" {
		return 0
	}
	cmd := exec.CommandContext(ctx, e.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath)
	out, err := cmd.Output()
	if err != nil {
		e.Logger.Warn().Err(err).Str("input", inputPath).Msg("transcode: duration probe failed")
		return 0
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0
	}
	return duration
}

// consumeProgress parses ffmpeg's -progress key=value stream, emitting a
// percentage whenever it advances by at least one point.
func consumeProgress(scanner *bufio.Scanner, duration float64, onProgress func(int)) {
	if onProgress == nil {
		for scanner.Scan() {
		}
		return
	}

	last := -1
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_ms":
			if duration <= 0 {
				continue
			}
			outTimeMs, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil {
				continue
			}
			current := int(math.Min(100, math.Max(0, (outTimeMs/1e6)/duration*100)))
			if current > last {
				last = current
				onProgress(current)
			}
		case "progress":
			if strings.TrimSpace(value) == "end" && last < 100 {
				last = 100
				onProgress(100)
			}
		}
	}
}

func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	const max = 512
	if len(s) > max {
		s = s[len(s)-max:]
	}
	return s
}
