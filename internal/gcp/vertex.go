package gcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/searchablepdf/internal/models"
	"github.com/Lllllllleong/searchablepdf/internal/ocr"
)

// --- OCR Model Prompts ---
const OCRSystemPrompt = "You are an optical character recognition engine. You transcribe the text visible in a scanned page image exactly as printed."
const OCRUserPrompt = `Transcribe all text in the provided page image.

Follow these rules:
1.  Output the text in reading order, one printed line per output line.
2.  Do not translate, summarize, correct spelling or add any commentary.
3.  Ignore pictures and decorations that contain no text.
4.  If the page contains no text, output nothing.

Return ONLY the transcribed text.`

// DefaultOCRModel is the Gemini model used for recognition.
const DefaultOCRModel = "gemini-1.5-pro"

// VertexClient holds the pre-configured OCR model.
type VertexClient struct {
	OCRModel   *genai.GenerativeModel
	baseClient *genai.Client
}

// NewVertexClient creates a new client holding the OCR model.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = DefaultOCRModel
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	ocrModel := baseClient.GenerativeModel(modelName)
	ocrModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(OCRSystemPrompt)},
	}
	ocrModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "text/plain",
		Temperature:      genai.Ptr[float32](0.0),
	}
	ocrModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		OCRModel:   ocrModel,
		baseClient: baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// RecognizerFactory returns a factory whose recognizers share the OCR model.
// The language is added to the prompt as a hint.
func (c *VertexClient) RecognizerFactory() ocr.RecognizerFactory {
	return func(ctx context.Context, language string) (ocr.Recognizer, error) {
		return &GeminiRecognizer{model: c.OCRModel, language: language}, nil
	}
}

// GeminiRecognizer recognizes page images with a Gemini model.
type GeminiRecognizer struct {
	model    *genai.GenerativeModel
	language string
}

// Recognize sends the image inline and returns the transcribed text.
func (r *GeminiRecognizer) Recognize(ctx context.Context, imagePath string) (string, error) {
	format, err := imageFormat(imagePath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to read image %s: %w", imagePath, err)
	}

	prompt := OCRUserPrompt
	if r.language != "" {
		prompt += fmt.Sprintf("\n\nThe expected language code is %q.", r.language)
	}
	resp, err := r.model.GenerateContent(ctx, genai.ImageData(format, data), genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("GenerateContent: %w", err)
	}
	return responseText(resp), nil
}

// Close is a no-op; the model is owned by the VertexClient.
func (r *GeminiRecognizer) Close() error { return nil }

func imageFormat(imagePath string) (string, error) {
	switch strings.ToLower(filepath.Ext(imagePath)) {
	case ".png":
		return "png", nil
	case ".jpg", ".jpeg":
		return "jpeg", nil
	}
	return "", fmt.Errorf("%w: %s", models.ErrUnsupportedImageType, imagePath)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return strings.TrimSpace(sb.String())
}
