package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"certtrack-backend/internal/models"
)

// ErrNoValidQuestions is returned when the model produced nothing usable.
var ErrNoValidQuestions = errors.New("generator returned no valid questions")

const (
	defaultGeneratedQuestions = 10
	maxGeneratedQuestions     = 50
	maxSourceChars            = 60000
)

// QuestionGenerator drafts multiple-choice questions for a course pool with
// Gemini.
type QuestionGenerator struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	rateChan chan struct{} // Token bucket
	log      *zap.Logger
}

func NewQuestionGenerator(apiKey string, concurrentReqs int, log *zap.Logger) (*QuestionGenerator, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel("gemini-2.0-flash")
	model.SetTemperature(0.3)
	model.SetTopP(0.95)
	model.ResponseMIMEType = "application/json"

	concurrentReqs = max(concurrentReqs, 1)
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &QuestionGenerator{client: client, model: model, rateChan: rateChan, log: log}, nil
}

func (g *QuestionGenerator) Close() {
	g.client.Close()
}

// acquireRate blocks until a rate slot is available
func (g *QuestionGenerator) acquireRate(ctx context.Context) error {
	select {
	case <-g.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (g *QuestionGenerator) releaseRate() {
	g.rateChan <- struct{}{}
}

// Generate asks the model for questions grounded in source and returns the
// ones that pass validation.
func (g *QuestionGenerator) Generate(ctx context.Context, req models.GenerateQuestionsRequest, source string) ([]models.Question, error) {
	if err := g.acquireRate(ctx); err != nil {
		return nil, err
	}
	defer g.releaseRate()

	resp, err := g.model.GenerateContent(ctx, genai.Text(buildQuestionPrompt(req, source)))
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}
	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			g.log.Warn("Gemini candidate stopped early", zap.Int("candidate", i), zap.String("reason", cand.FinishReason.String()))
		}
	}

	drafts := parseGeneratedQuestions(extractText(resp))
	questions := validateGeneratedQuestions(drafts)
	g.log.Info("generated questions",
		zap.Int("requested", normalizeQuestionCount(req.NumQuestions)),
		zap.Int("returned", len(drafts)),
		zap.Int("valid", len(questions)),
	)
	if len(questions) == 0 {
		return nil, ErrNoValidQuestions
	}
	return questions, nil
}

// TranscribeAudio uses the Gemini File API to transcribe audio bytes.
func (g *QuestionGenerator) TranscribeAudio(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if err := g.acquireRate(ctx); err != nil {
		return "", err
	}
	defer g.releaseRate()

	if len(audio) == 0 {
		return "", fmt.Errorf("audio payload is empty")
	}

	file, err := g.client.UploadFile(ctx, "", bytes.NewReader(audio), &genai.UploadFileOptions{
		DisplayName: "course-source-audio",
		MIMEType:    mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload audio to Gemini: %w", err)
	}
	defer g.client.DeleteFile(context.Background(), file.Name)

	for i := 0; i < 20 && file.State != genai.FileStateActive; i++ {
		current, getErr := g.client.GetFile(ctx, file.Name)
		if getErr != nil {
			return "", fmt.Errorf("failed to get uploaded file status: %w", getErr)
		}
		if current.State == genai.FileStateFailed {
			return "", fmt.Errorf("Gemini failed to process uploaded audio file")
		}
		file = current
		if file.State == genai.FileStateActive {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if file.State != genai.FileStateActive {
		return "", fmt.Errorf("audio file did not become active in time")
	}

	resp, err := g.client.GenerativeModel("gemini-2.0-flash").GenerateContent(ctx,
		genai.Text("Transcribe the provided audio verbatim. Return plain text only, without markdown, headers, or explanations."),
		genai.FileData{MIMEType: mimeType, URI: file.URI},
	)
	if err != nil {
		return "", fmt.Errorf("Gemini transcription error: %w", err)
	}

	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		return "", fmt.Errorf("Gemini returned empty transcription")
	}
	return text, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}
	return text.String()
}

func normalizeQuestionCount(n int) int {
	if n <= 0 {
		return defaultGeneratedQuestions
	}
	return min(n, maxGeneratedQuestions)
}

func buildQuestionPrompt(req models.GenerateQuestionsRequest, source string) string {
	var b strings.Builder

	b.WriteString("You are an expert certification assessor. Write multiple-choice questions that check understanding of the training material below.\n\n")
	b.WriteString("CRITICAL: Return ONLY a valid JSON array. No preamble, no markdown, no backticks.\n\n")
	fmt.Fprintf(&b, "Generate exactly %d questions.\n", normalizeQuestionCount(req.NumQuestions))

	switch req.Difficulty {
	case "easy":
		b.WriteString("Difficulty: easy = direct recall from the material.\n")
	case "hard":
		b.WriteString("Difficulty: hard = analysis or inference beyond what is explicitly stated.\n")
	default:
		b.WriteString("Difficulty: medium = application of the concepts.\n")
	}

	fmt.Fprintf(&b, `
JSON schema per question:
{"question": "string", "options": ["string"], "correct_index": int, "topic": "string"}

Every question has exactly %d distinct options and exactly one correct option.
`, models.OptionsPerQuestion)

	if len(source) > maxSourceChars {
		source = source[:maxSourceChars]
	}
	b.WriteString("\n---CONTENT---\n")
	b.WriteString(source)
	b.WriteString("\n---END---\n")

	return b.String()
}

// parseGeneratedQuestions reads the model's JSON array, tolerating code fences
// and surrounding prose.
func parseGeneratedQuestions(raw string) []models.GeneratedQuestion {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var drafts []models.GeneratedQuestion
	if err := json.Unmarshal([]byte(raw), &drafts); err == nil {
		return drafts
	}

	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(raw[start:end+1]), &drafts); err == nil {
			return drafts
		}
	}
	return nil
}

// validateGeneratedQuestions keeps drafts with a question, exactly four
// distinct non-empty options and an in-range answer. Option text is trimmed.
func validateGeneratedQuestions(drafts []models.GeneratedQuestion) []models.Question {
	var valid []models.Question
	for _, d := range drafts {
		text := strings.TrimSpace(d.Question)
		if text == "" || len(d.Options) != models.OptionsPerQuestion {
			continue
		}
		if d.CorrectIndex < 0 || d.CorrectIndex >= len(d.Options) {
			continue
		}

		options := make([]string, len(d.Options))
		seen := make(map[string]bool, len(d.Options))
		ok := true
		for i, o := range d.Options {
			o = strings.TrimSpace(o)
			if o == "" || seen[o] {
				ok = false
				break
			}
			seen[o] = true
			options[i] = o
		}
		if !ok {
			continue
		}

		valid = append(valid, models.Question{Text: text, Options: options, CorrectIndex: d.CorrectIndex})
	}
	return valid
}
