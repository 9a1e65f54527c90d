package textgen

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Generator produces a text completion for a prompt. Implementations
// are fallible and potentially slow; callers decide how a failed
// generation affects the surrounding batch.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

var (
	ErrEmptyPrompt     = errors.New("textgen: prompt is empty")
	ErrEmptyCompletion = errors.New("textgen: model returned no text")
	// ErrGeneratorDisabled is returned by the disabled generator when no
	// model backend is configured.
	ErrGeneratorDisabled = errors.New("textgen: generation disabled")
)

// NewDisabledGenerator returns a generator that fails every request.
// It stands in when no API key is configured so callers that tolerate
// generation failures keep working.
func NewDisabledGenerator() Generator {
	return disabledGenerator{}
}

type disabledGenerator struct{}

func (disabledGenerator) Generate(context.Context, string) (string, error) {
	return "", ErrGeneratorDisabled
}

const defaultRequestTimeout = 45 * time.Second

// GeminiConfig configures the Gemini-backed generator.
type GeminiConfig struct {
	APIKey         string
	Model          string
	RequestTimeout time.Duration
}

// GeminiGenerator calls the Gemini API with low-temperature sampling.
type GeminiGenerator struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiGenerator constructs the generator and its underlying client.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &GeminiGenerator{
		client:  client,
		model:   cfg.Model,
		timeout: timeout,
	}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	response, err := g.client.Models.GenerateContent(callCtx, g.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			MaxOutputTokens: 500,
			Temperature:     genai.Ptr[float32](0.2),
			TopP:            genai.Ptr[float32](0.4),
		},
	)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(response.Text())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
