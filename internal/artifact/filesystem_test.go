package artifact

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"vidconv/internal/domain"
)

func testStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	base := t.TempDir()
	s, err := NewFileStore(base, "http://localhost:8080/static")
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	return s, base
}

func writeLocal(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip_converted.mp4")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write local file: %v", err)
	}
	return path
}

func TestNewFileStoreRequiresBasePath(t *testing.T) {
	if _, err := NewFileStore("  ", "http://x"); err == nil {
		t.Fatal("expected error for empty base path")
	}
}

func TestUploadAndSignedURL(t *testing.T) {
	s, base := testStore(t)
	ctx := context.Background()
	local := writeLocal(t, "converted bytes")

	if err := s.Upload(ctx, local, "converted/clip_converted.mp4", "video/mp4"); err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	stored, err := os.ReadFile(filepath.Join(base, "converted", "clip_converted.mp4"))
	if err != nil {
		t.Fatalf("read stored artifact: %v", err)
	}
	if string(stored) != "converted bytes" {
		t.Fatalf("stored content = %q", stored)
	}

	link, err := s.SignedURL(ctx, "converted/clip_converted.mp4", time.Hour)
	if err != nil {
		t.Fatalf("SignedURL returned error: %v", err)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("SignedURL produced unparseable URL %q: %v", link, err)
	}
	if !strings.HasSuffix(u.Path, "/converted/clip_converted.mp4") {
		t.Fatalf("URL path = %q", u.Path)
	}
	expires, err := strconv.ParseInt(u.Query().Get("expires"), 10, 64)
	if err != nil {
		t.Fatalf("expires param = %q: %v", u.Query().Get("expires"), err)
	}
	if until := time.Unix(expires, 0).Sub(time.Now()); until < 55*time.Minute || until > 65*time.Minute {
		t.Fatalf("expiry %s away, want about an hour", until)
	}
}

func TestUploadOverwritesExisting(t *testing.T) {
	s, base := testStore(t)
	ctx := context.Background()

	first := writeLocal(t, "first attempt")
	if err := s.Upload(ctx, first, "converted/clip_converted.mp4", "video/mp4"); err != nil {
		t.Fatalf("first Upload returned error: %v", err)
	}
	second := writeLocal(t, "second attempt")
	if err := s.Upload(ctx, second, "converted/clip_converted.mp4", "video/mp4"); err != nil {
		t.Fatalf("second Upload returned error: %v", err)
	}

	stored, err := os.ReadFile(filepath.Join(base, "converted", "clip_converted.mp4"))
	if err != nil {
		t.Fatalf("read stored artifact: %v", err)
	}
	if string(stored) != "second attempt" {
		t.Fatalf("stored content = %q, want the redone upload", stored)
	}
}

func TestUploadMissingSource(t *testing.T) {
	s, _ := testStore(t)
	err := s.Upload(context.Background(), "/nonexistent/in.mp4", "converted/x.mp4", "video/mp4")
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
}

func TestSignedURLMissingArtifact(t *testing.T) {
	s, _ := testStore(t)
	_, err := s.SignedURL(context.Background(), "converted/gone.mp4", time.Hour)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{"plain", "converted/clip.mp4", "converted/clip.mp4", false},
		{"leading slash", "/converted/clip.mp4", "converted/clip.mp4", false},
		{"dot slash", "./converted/clip.mp4", "converted/clip.mp4", false},
		{"backslashes", `converted\clip.mp4`, "converted/clip.mp4", false},
		{"traversal", "../../etc/passwd", "", true},
		{"nested traversal", "converted/../../secret", "", true},
		{"empty", "   ", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := sanitizeKey(tc.key)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("sanitizeKey(%q) = %q, want error", tc.key, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("sanitizeKey(%q) returned error: %v", tc.key, err)
			}
			if got != tc.want {
				t.Fatalf("sanitizeKey(%q) = %q, want %q", tc.key, got, tc.want)
			}
		})
	}
}

func TestContextCancellationRespected(t *testing.T) {
	s, _ := testStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Upload(ctx, writeLocal(t, "x"), "converted/x.mp4", "video/mp4"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Upload err = %v, want context.Canceled", err)
	}
	if _, err := s.SignedURL(ctx, "converted/x.mp4", time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("SignedURL err = %v, want context.Canceled", err)
	}
}
