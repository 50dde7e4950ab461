package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/helmsman-ai/helmsman/tool"
	"github.com/helmsman-ai/helmsman/types"
)

// ImageGenerator produces a base64-encoded PNG for a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ImageConfig configures the image generation tool.
type ImageConfig struct {
	Generator ImageGenerator
	Logger    *zap.Logger
}

// RegisterImage registers generate_image_and_show_it_to_user.
func RegisterImage(r *tool.Registry, cfg ImageConfig) {
	r.Register("generate_image_and_show_it_to_user", imageFactory(cfg))
}

func imageFactory(cfg ImageConfig) tool.Factory {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	logger := cfg.Logger.With(zap.String("component", "image_tool"))

	return func(sctx types.SessionContext) (*tool.Capability, error) {
		if cfg.Generator == nil {
			return nil, types.NewConfigError(types.ErrInvalidConfig, "no image generator configured")
		}

		return &tool.Capability{
			Name: "generate_image_and_show_it_to_user",
			Description: "Generates the image specified by the query. This tool automatically shows " +
				"the image to the user.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "What the image should depict."}
				},
				"required": ["query"]
			}`),
			Call: func(ctx context.Context, args map[string]any) (string, error) {
				query, _ := args["query"].(string)

				encoded, err := cfg.Generator.Generate(ctx, query)
				if err != nil {
					logger.Warn("image generation failed", zap.Error(err))
					return "Error: could not generate the image, try again later", nil
				}

				sctx.Tracer().AppendPending(&types.Image{Base64EncodedImage: encoded, Caption: query})
				return "Successfully generated and showed image to user.", nil
			},
		}, nil
	}
}

// HTTPImageGenerator drives an OpenAI-compatible image generation endpoint
// that returns base64 payloads.
type HTTPImageGenerator struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewHTTPImageGenerator creates a generator against baseURL.
func NewHTTPImageGenerator(baseURL, apiKey, model string, timeout time.Duration) *HTTPImageGenerator {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPImageGenerator{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *HTTPImageGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"model":           g.model,
		"prompt":          prompt,
		"response_format": "b64_json",
		"n":               1,
	})
	if err != nil {
		return "", fmt.Errorf("encode image request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/images/generations", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("image request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return "", fmt.Errorf("read image response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image endpoint status %d", resp.StatusCode)
	}

	var decoded struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode image response: %w", err)
	}
	if len(decoded.Data) == 0 || decoded.Data[0].B64JSON == "" {
		return "", fmt.Errorf("image response carried no payload")
	}
	return decoded.Data[0].B64JSON, nil
}
