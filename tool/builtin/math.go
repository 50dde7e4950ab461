package builtin

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/helmsman-ai/helmsman/tool"
	"github.com/helmsman-ai/helmsman/types"
)

const wolframAPIURL = "https://www.wolframalpha.com/api/v1/llm-api"

// WolframConfig configures the Wolfram Alpha tool.
type WolframConfig struct {
	// AppID is the secret credential. It travels as a URL query parameter,
	// so no URL involved in a request may ever reach an agent or the trace.
	AppID   string
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
	Logger  *zap.Logger
}

// RegisterMath registers the Wolfram Alpha tool. A missing app id is a
// configuration error surfaced at session construction.
func RegisterMath(r *tool.Registry, cfg WolframConfig) {
	r.Register("run_wolfram_alpha_tool", wolframFactory(cfg))
}

func wolframFactory(cfg WolframConfig) tool.Factory {
	if cfg.BaseURL == "" {
		cfg.BaseURL = wolframAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	logger := cfg.Logger.With(zap.String("component", "wolfram_tool"))

	return func(sctx types.SessionContext) (*tool.Capability, error) {
		if cfg.AppID == "" {
			return nil, types.NewConfigError(types.ErrMissingSecret, "WOLFRAM_ALPHA_APPID is not set")
		}

		return &tool.Capability{
			Name: "run_wolfram_alpha_tool",
			Description: "Invokes Wolfram Alpha with the given query. Only use when necessary; answer " +
				"basic arithmetic yourself. When the tool output contains plots, they are automatically " +
				"shown to the user.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "The query to evaluate."}
				},
				"required": ["query"]
			}`),
			Call: func(ctx context.Context, args map[string]any) (string, error) {
				query, _ := args["query"].(string)
				return runWolframQuery(ctx, cfg, logger, sctx, query)
			},
		}, nil
	}
}

func runWolframQuery(ctx context.Context, cfg WolframConfig, logger *zap.Logger, sctx types.SessionContext, query string) (string, error) {
	params := url.Values{}
	params.Set("input", query)
	params.Set("appid", cfg.AppID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "Error: could not build the Wolfram Alpha request", nil
	}

	resp, err := cfg.Client.Do(req)
	if err != nil {
		// The transport error may embed the request URL, which carries the
		// app id. Log a redacted form and return a generic message.
		logger.Warn("wolfram request failed", zap.String("reason", redactAppID(err.Error(), cfg.AppID)))
		return "Error: could not reach Wolfram Alpha, try again later", nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "Error: could not read the Wolfram Alpha response", nil
	}

	switch {
	case resp.StatusCode == http.StatusNotImplemented:
		return fmt.Sprintf("Error: The API could not interpret the given query '%s'. The API returned status (501) in response.", query), nil
	case resp.StatusCode != http.StatusOK:
		// Never include the response body or URL: both may carry the app id.
		return fmt.Sprintf("Error: HTTP error occurred: (status %d)", resp.StatusCode), nil
	}

	output := string(body)
	for _, link := range extractImageLinks(output) {
		encoded, err := fetchImageBase64(ctx, cfg.Client, link.url)
		if err != nil {
			logger.Debug("plot fetch failed", zap.String("reason", redactAppID(err.Error(), cfg.AppID)))
			continue
		}
		sctx.Tracer().AppendPending(&types.Image{Base64EncodedImage: encoded, Caption: link.caption})
	}

	return output, nil
}

type imageLink struct {
	url     string
	caption string
}

// extractImageLinks finds "image: <url>" lines in the API response; the
// following line is the plot's caption.
func extractImageLinks(output string) []imageLink {
	lines := strings.Split(output, "\n")
	var links []imageLink
	for i, line := range lines {
		rest, ok := strings.CutPrefix(line, "image: ")
		if !ok {
			continue
		}
		caption := ""
		if i+1 < len(lines) {
			caption = lines[i+1]
		}
		links = append(links, imageLink{url: rest, caption: caption})
	}
	return links
}

func fetchImageBase64(ctx context.Context, client *http.Client, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image fetch status %d", resp.StatusCode)
	}
	content, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(content), nil
}

func redactAppID(s, appID string) string {
	if appID == "" {
		return s
	}
	return strings.ReplaceAll(s, appID, "[redacted]")
}
