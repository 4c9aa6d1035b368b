package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
	genai "google.golang.org/genai"
)

// GeminiConfig is injected by the caller; nothing is read from the environment here.
type GeminiConfig struct {
	APIKey            string
	TextModel         string
	ImageModel        string
	RequestsPerMinute int
}

// Gemini implements Generator on the Gemini API.
type Gemini struct {
	client     *genai.Client
	textModel  string
	imageModel string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing Gemini API key (set GEMINI_API_KEY or gemini.api_key)")
	}
	if cfg.TextModel == "" {
		cfg.TextModel = "gemini-2.5-flash"
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = "imagen-4.0-generate-001"
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 30
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{
		client:     c,
		textModel:  cfg.TextModel,
		imageModel: cfg.ImageModel,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 2),
		logger:     logger,
	}, nil
}

func (g *Gemini) generate(ctx context.Context, system, prompt string, conf *genai.GenerateContentConfig) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	if conf == nil {
		conf = &genai.GenerateContentConfig{}
	}
	if system != "" {
		conf.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	start := time.Now()
	res, err := g.client.Models.GenerateContent(ctx, g.textModel, []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}, conf)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}
	if fb := res.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return "", fmt.Errorf("gemini blocked the prompt: %s", fb.BlockReason)
	}
	text := res.Text()
	g.logger.Debug("gemini response",
		"model", g.textModel,
		"prompt_chars", len(prompt),
		"response_chars", len(text),
		"elapsed", time.Since(start))
	return text, nil
}

func (g *Gemini) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	conf := &genai.GenerateContentConfig{Temperature: req.Temperature}
	return g.generate(ctx, req.System, req.Prompt, conf)
}

func (g *Gemini) GenerateJSON(ctx context.Context, req JSONRequest) (json.RawMessage, error) {
	conf := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	if len(req.Schema) > 0 {
		var schema any
		if err := json.Unmarshal(req.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid response schema: %w", err)
		}
		conf.ResponseJsonSchema = schema
	}
	text, err := g.generate(ctx, req.System, req.Prompt, conf)
	if err != nil {
		return nil, err
	}
	raw, err := decodeStructured(text, req.Schema)
	if err != nil {
		preview := text
		if len(preview) > 300 {
			preview = preview[:300] + "..."
		}
		g.logger.Warn("unusable structured response", "error", err, "preview", preview)
		return nil, err
	}
	return raw, nil
}

func (g *Gemini) GenerateImage(ctx context.Context, req ImageRequest) (Image, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return Image{}, fmt.Errorf("rate limit wait: %w", err)
	}
	res, err := g.client.Models.GenerateImages(ctx, g.imageModel, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    req.AspectRatio,
		OutputMIMEType: "image/jpeg",
	})
	if err != nil {
		return Image{}, fmt.Errorf("gemini image call failed: %w", err)
	}
	for _, gi := range res.GeneratedImages {
		if gi == nil || gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
			if gi != nil && gi.RAIFilteredReason != "" {
				return Image{}, fmt.Errorf("image filtered: %s", gi.RAIFilteredReason)
			}
			continue
		}
		mt := gi.Image.MIMEType
		if mt == "" {
			mt = "image/jpeg"
		}
		return Image{MIMEType: strings.ToLower(mt), Data: gi.Image.ImageBytes}, nil
	}
	return Image{}, errors.New("gemini returned no image")
}
