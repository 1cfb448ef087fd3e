package services

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	urlpkg "net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	ytapi "github.com/hightemp/youtube-transcript-api-go/api"
	yt "github.com/kkdai/youtube/v2"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"certtrack-backend/internal/models"
)

const (
	SourceText    = "text"
	SourceYouTube = "youtube"
	SourceFile    = "file"

	maxAudioBytes = 100 * 1024 * 1024
)

type AudioTranscriber interface {
	TranscribeAudio(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// SourceReader turns a generation request into plain training text.
type SourceReader struct {
	httpClient    *http.Client
	transcriptAPI *ytapi.YouTubeTranscriptApi
	ytClient      *yt.Client
	transcriber   AudioTranscriber
	uploadPath    string
	log           *zap.Logger
}

func NewSourceReader(transcriber AudioTranscriber, uploadPath string, log *zap.Logger) *SourceReader {
	return &SourceReader{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		transcriptAPI: ytapi.NewYouTubeTranscriptApi(),
		ytClient:      &yt.Client{},
		transcriber:   transcriber,
		uploadPath:    uploadPath,
		log:           log,
	}
}

func (s *SourceReader) Read(ctx context.Context, req models.GenerateQuestionsRequest) (string, error) {
	switch req.SourceType {
	case SourceText:
		text := normalizeExtractedText(req.Text)
		if text == "" {
			return "", fmt.Errorf("source text is empty")
		}
		return text, nil
	case SourceYouTube:
		return s.readYouTube(ctx, req.URL)
	case SourceFile:
		path, err := s.uploadedFile(req.FilePath)
		if err != nil {
			return "", err
		}
		return extractTextFromPath(path)
	default:
		return "", fmt.Errorf("unsupported source type: %q", req.SourceType)
	}
}

// uploadedFile resolves a stored upload. Paths that would leave the upload
// directory are refused.
func (s *SourceReader) uploadedFile(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("file source has no path")
	}
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("file source %q is outside the upload directory", rel)
	}
	return filepath.Join(s.uploadPath, rel), nil
}

// readYouTube prefers published captions and falls back to transcribing the
// audio track.
func (s *SourceReader) readYouTube(ctx context.Context, videoURL string) (string, error) {
	videoID := ExtractVideoID(videoURL)
	if videoID == "" {
		return "", fmt.Errorf("invalid YouTube URL: %s", videoURL)
	}

	transcript, err := s.transcript(videoID)
	if err == nil {
		return transcript, nil
	}
	s.log.Warn("caption extraction failed, trying audio", zap.String("video_id", videoID), zap.Error(err))

	if s.transcriber == nil {
		return "", fmt.Errorf("no captions for video %s and no transcriber configured: %w", videoID, err)
	}
	audio, mimeType, audioErr := s.downloadAudio(videoURL)
	if audioErr != nil {
		return "", fmt.Errorf("no captions for video %s (%v); audio download failed: %w", videoID, err, audioErr)
	}
	return s.transcriber.TranscribeAudio(ctx, audio, mimeType)
}

func (s *SourceReader) transcript(videoID string) (string, error) {
	transcript, err := s.transcriptAPI.GetTranscript(videoID, []string{"en", "en-US", "en-GB"})
	if err != nil {
		// Any available language
		transcript, err = s.transcriptAPI.GetTranscript(videoID, nil)
		if err != nil {
			legacy, legacyErr := s.timedText(videoID)
			if legacyErr == nil {
				return legacy, nil
			}
			return "", fmt.Errorf("transcript API failed (%v) and timedtext fallback failed (%v)", err, legacyErr)
		}
	}

	var parts []string
	for _, entry := range transcript.Entries {
		if text := strings.TrimSpace(entry.Text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("subtitle track is empty")
	}
	return strings.Join(parts, " "), nil
}

type timedTextXML struct {
	XMLName xml.Name `xml:"transcript"`
	Texts   []struct {
		Text string `xml:",chardata"`
	} `xml:"text"`
}

func (s *SourceReader) timedText(videoID string) (string, error) {
	req, _ := http.NewRequest(http.MethodGet, "https://www.youtube.com/watch?v="+videoID, nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch YouTube page: %w", err)
	}
	defer resp.Body.Close()

	page, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read YouTube page: %w", err)
	}

	captionURL, err := extractCaptionURL(string(page))
	if err != nil {
		return "", err
	}

	captionResp, err := s.httpClient.Get(captionURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch captions: %w", err)
	}
	defer captionResp.Body.Close()

	body, err := io.ReadAll(captionResp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read captions: %w", err)
	}
	return parseCaptionsXML(body)
}

var (
	captionTracksPattern = regexp.MustCompile(`"captionTracks"\s*:\s*\[(.*?)\],\s*"`)
	baseURLPattern       = regexp.MustCompile(`"baseUrl"\s*:\s*"(.*?)"`)
)

func extractCaptionURL(pageHTML string) (string, error) {
	matches := captionTracksPattern.FindStringSubmatch(pageHTML)
	if len(matches) < 2 {
		return "", fmt.Errorf("no captions available for this video")
	}

	urlMatches := baseURLPattern.FindStringSubmatch(matches[1])
	if len(urlMatches) < 2 {
		return "", fmt.Errorf("caption track found but baseUrl missing")
	}

	u := strings.ReplaceAll(urlMatches[1], `\u0026`, "&")
	return strings.ReplaceAll(u, `\/`, "/"), nil
}

func parseCaptionsXML(data []byte) (string, error) {
	var tt timedTextXML
	if err := xml.Unmarshal(data, &tt); err != nil {
		return "", fmt.Errorf("failed to parse captions XML: %w", err)
	}

	var parts []string
	for _, t := range tt.Texts {
		if text := strings.TrimSpace(html.UnescapeString(t.Text)); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("captions XML empty")
	}
	return strings.Join(parts, " "), nil
}

// downloadAudio reads the highest bitrate audio stream of a video.
func (s *SourceReader) downloadAudio(videoURL string) ([]byte, string, error) {
	video, err := s.ytClient.GetVideo(videoURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch YouTube video metadata: %w", err)
	}

	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return nil, "", fmt.Errorf("no audio formats available")
	}
	best := formats[0]
	for _, f := range formats {
		if f.Bitrate > best.Bitrate {
			best = f
		}
	}

	stream, _, err := s.ytClient.GetStream(video, &best)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	audio, err := io.ReadAll(io.LimitReader(stream, maxAudioBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read audio stream: %w", err)
	}
	if len(audio) > maxAudioBytes {
		return nil, "", fmt.Errorf("audio stream exceeds %d MB limit", maxAudioBytes/(1024*1024))
	}

	mimeType := strings.TrimSpace(strings.Split(best.MimeType, ";")[0])
	if mimeType == "" {
		mimeType = "audio/mp4"
	}
	return audio, mimeType, nil
}

var videoIDPattern = regexp.MustCompile(`(?:v=|/v/|youtu\.be/|embed/|shorts/)([a-zA-Z0-9_-]{11})`)

// ExtractVideoID returns the 11 character video ID of a YouTube URL, or ""
// when the URL is not a recognizable video link.
func ExtractVideoID(url string) string {
	parsed, err := urlpkg.Parse(url)
	if err == nil {
		host := strings.ToLower(parsed.Host)
		path := strings.Trim(parsed.Path, "/")

		if strings.Contains(host, "youtube.com") {
			if v := parsed.Query().Get("v"); len(v) == 11 {
				return v
			}
			parts := strings.Split(path, "/")
			if len(parts) >= 2 {
				switch parts[0] {
				case "shorts", "embed", "v":
					if len(parts[1]) == 11 {
						return parts[1]
					}
				}
			}
		}

		if strings.Contains(host, "youtu.be") {
			if candidate := strings.Split(path, "/")[0]; len(candidate) == 11 {
				return candidate
			}
		}
	}

	if m := videoIDPattern.FindStringSubmatch(url); len(m) > 1 {
		return m[1]
	}
	return ""
}

// SupportedUpload reports whether an uploaded file name can be read as a
// generation source.
func SupportedUpload(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".txt", ".docx":
		return true
	}
	return false
}

func extractTextFromPath(path string) (string, error) {
	var (
		text string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt":
		text, err = readTXT(path)
	case ".pdf":
		text, err = readPDF(path)
	case ".docx":
		text, err = readDOCX(path)
	default:
		return "", fmt.Errorf("unsupported file type for text extraction: %s", ext)
	}
	if err != nil {
		return "", err
	}

	text = normalizeExtractedText(text)
	if text == "" {
		return "", fmt.Errorf("no extractable text found in %s", filepath.Base(path))
	}
	return text, nil
}

func readTXT(path string) (string, error) {
	b, err := os.ReadFile(path)
	return string(b), err
}

func readPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func readDOCX(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()

		documentXML, err := io.ReadAll(rc)
		if err != nil {
			return "", err
		}
		return stripDOCXML(documentXML), nil
	}
	return "", fmt.Errorf("docx document.xml not found")
}

var (
	xmlTagPattern = regexp.MustCompile(`<[^>]+>`)
	docxBreaks    = strings.NewReplacer("</w:p>", "\n", "<w:br/>", "\n", "<w:br />", "\n", "<w:tab/>", "\t")
	xmlEntities   = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'")
)

func stripDOCXML(src []byte) string {
	s := docxBreaks.Replace(string(src))
	s = xmlTagPattern.ReplaceAllString(s, "")
	return xmlEntities.Replace(s)
}

// normalizeExtractedText trims every line and collapses runs of blank lines.
func normalizeExtractedText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var b strings.Builder
	blank := 0
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			blank++
			if blank == 1 {
				b.WriteString("\n")
			}
			continue
		}
		blank = 0
		b.WriteString(trimmed)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
