package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"forgery-sim/internal/core/domain"
	"forgery-sim/internal/core/ports"
	"forgery-sim/internal/imaging"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

const ForensicsPrompt = `You are an expert in digital image forensics analyzing two images for tampering.
Simulate a report from the PFDNet system based on the provided original and tampered images.
Your response must be a valid JSON object.

Simulate the following four phases:

1.  **Cyber Vaccinator:** Describe how imperceptible perturbations pre-applied to the original image helped detect the forgery. Invent a plausible, technical-sounding mechanism.
2.  **Forgery Detector:** Identify the specific forgery. Be descriptive, for example: "Localized a splice forgery in the upper-right quadrant where an object was digitally removed. The PFDNet model identified anomalous pixel variance and inconsistent JPEG compression artifacts."
3.  **Self Recovery:** Describe how the original image content was restored from the embedded data. Mention a technique like 'Discrete Cosine Transform block analysis' to reconstruct the altered region.
4.  **Quality Assurance:** Provide a final verification summary. Mention a technique like 'Run-Length Encoding (RLE) checksum validation' to confirm the integrity of the recovered image.

Analyze the images and return your findings as a single JSON object with keys: "vaccinator", "detector", "recovery", "assurance".`

var analysisKeys = []string{"vaccinator", "detector", "recovery", "assurance"}

// contentGenerator is the slice of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiBrain produces forensic narratives through the Gemini API. Each call
// is a single attempt; callers decide whether to retry.
type GeminiBrain struct {
	models     contentGenerator
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

type Option func(*GeminiBrain)

func WithModel(name string) Option {
	return func(b *GeminiBrain) {
		if name != "" {
			b.model = name
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(b *GeminiBrain) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithHTTPClient sets the client used to download remote original images.
func WithHTTPClient(c *http.Client) Option {
	return func(b *GeminiBrain) { b.httpClient = c }
}

func NewGeminiBrain(ctx context.Context, apiKey string, opts ...Option) (*GeminiBrain, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is required", domain.ErrMissingCredential)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newBrain(client.Models, opts...), nil
}

func newBrain(models contentGenerator, opts ...Option) *GeminiBrain {
	b := &GeminiBrain{
		models:     models,
		model:      DefaultModel,
		httpClient: http.DefaultClient,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Ensure implementation
var _ ports.Analyzer = (*GeminiBrain)(nil)

func (b *GeminiBrain) Model() string { return b.model }

func (b *GeminiBrain) AnalyzeForgery(ctx context.Context, original string, candidate domain.Image) (domain.ForgeryAnalysis, error) {
	orig, err := imaging.Resolve(ctx, b.httpClient, original)
	if err != nil {
		return domain.ForgeryAnalysis{}, fmt.Errorf("load original image: %w", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(ForensicsPrompt),
			genai.NewPartFromBytes(orig.Data, orig.MIMEType),
			genai.NewPartFromBytes(candidate.Data, candidate.MIMEType),
		}, genai.RoleUser),
	}

	b.logger.Debug("requesting forgery analysis",
		zap.String("model", b.model),
		zap.String("original_mime", orig.MIMEType),
		zap.String("candidate_mime", candidate.MIMEType),
		zap.Int("candidate_bytes", len(candidate.Data)))

	result, err := b.models.GenerateContent(ctx, b.model, contents, analysisConfig())
	if err != nil {
		return domain.ForgeryAnalysis{}, fmt.Errorf("generate content: %w", err)
	}

	text := responseText(result)
	if text == "" {
		return domain.ForgeryAnalysis{}, fmt.Errorf("empty response from model %s", b.model)
	}
	return ParseAnalysis(text)
}

func analysisConfig() *genai.GenerateContentConfig {
	props := make(map[string]*genai.Schema, len(analysisKeys))
	for _, k := range analysisKeys {
		props[k] = &genai.Schema{Type: genai.TypeString}
	}
	return &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type:             genai.TypeObject,
			Properties:       props,
			Required:         analysisKeys,
			PropertyOrdering: analysisKeys,
		},
	}
}

func responseText(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 {
		return ""
	}
	c := result.Candidates[0]
	if c == nil || c.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range c.Content.Parts {
		if p != nil && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

// ParseAnalysis decodes the model output strictly: a JSON object whose four
// phase keys are all non-empty strings.
func ParseAnalysis(raw string) (domain.ForgeryAnalysis, error) {
	cleaned := cleanJSON(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return domain.ForgeryAnalysis{}, fmt.Errorf("decode analysis: %w", err)
	}
	for _, k := range analysisKeys {
		v, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return domain.ForgeryAnalysis{}, fmt.Errorf("analysis field %q is not a string", k)
		}
	}

	var a domain.ForgeryAnalysis
	if err := json.Unmarshal([]byte(cleaned), &a); err != nil {
		return domain.ForgeryAnalysis{}, fmt.Errorf("decode analysis: %w", err)
	}
	if err := a.Validate(); err != nil {
		return domain.ForgeryAnalysis{}, err
	}
	return a, nil
}

func cleanJSON(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
