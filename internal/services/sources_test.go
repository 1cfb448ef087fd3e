package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"certtrack-backend/internal/models"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ?t=42", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://m.youtube.com/watch?feature=share&v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://example.com/video", ""},
		{"not a url", ""},
	}

	for _, tt := range tests {
		if got := ExtractVideoID(tt.url); got != tt.want {
			t.Errorf("ExtractVideoID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestExtractCaptionURL(t *testing.T) {
	page := `..."captionTracks":[{"baseUrl":"https:\/\/www.youtube.com\/api\/timedtext?v=abc&lang=en","name":{}}],"audioTracks"...`

	got, err := extractCaptionURL(page)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "https://www.youtube.com/api/timedtext?v=abc&lang=en"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	if _, err := extractCaptionURL("<html></html>"); err == nil {
		t.Fatalf("expected an error when the page has no captions")
	}
}

func TestParseCaptionsXML(t *testing.T) {
	data := []byte(`<transcript><text start="0" dur="1">Lock &amp;amp; tag</text><text start="1" dur="1"> </text><text start="2" dur="1">the breaker</text></transcript>`)

	got, err := parseCaptionsXML(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Lock & tag the breaker" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeExtractedText(t *testing.T) {
	got := normalizeExtractedText("  Title  \r\n\r\n\r\n  body line \n\n\n\nend  ")
	if want := "Title\n\nbody line\n\nend"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestStripDOCXML(t *testing.T) {
	got := stripDOCXML([]byte(`<w:p><w:r><w:t>Fire &amp; safety</w:t></w:r></w:p><w:p><w:r><w:t>Exit</w:t><w:br/><w:t>route</w:t></w:r></w:p>`))
	if want := "Fire & safety\nExit\nroute\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSupportedUpload(t *testing.T) {
	for name, want := range map[string]bool{"handbook.PDF": true, "notes.txt": true, "policy.docx": true, "clip.mp4": false, "noext": false} {
		if got := SupportedUpload(name); got != want {
			t.Errorf("SupportedUpload(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestSourceReader_TextAndFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "courses"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "courses", "policy.txt"), []byte("Wear goggles.\n\n\nAlways."), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewSourceReader(nil, dir, zap.NewNop())
	ctx := context.Background()

	got, err := r.Read(ctx, models.GenerateQuestionsRequest{SourceType: SourceFile, FilePath: "courses/policy.txt"})
	if err != nil || got != "Wear goggles.\n\nAlways." {
		t.Fatalf("file source: got %q, %v", got, err)
	}

	if err := os.WriteFile(filepath.Join(filepath.Dir(dir), "secret.txt"), []byte("do not read"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, escape := range []string{"../secret.txt", "courses/../../secret.txt", filepath.Join(filepath.Dir(dir), "secret.txt")} {
		if got, err := r.Read(ctx, models.GenerateQuestionsRequest{SourceType: SourceFile, FilePath: escape}); err == nil {
			t.Fatalf("path %q escaped the upload directory and read %q", escape, got)
		}
	}

	if _, err := r.Read(ctx, models.GenerateQuestionsRequest{SourceType: SourceText, Text: "   "}); err == nil {
		t.Fatalf("blank text source should fail")
	}
	if _, err := r.Read(ctx, models.GenerateQuestionsRequest{SourceType: SourceYouTube, URL: "https://example.com"}); err == nil {
		t.Fatalf("invalid YouTube URL should fail")
	}
	if _, err := r.Read(ctx, models.GenerateQuestionsRequest{SourceType: "fax"}); err == nil {
		t.Fatalf("unknown source type should fail")
	}
}
