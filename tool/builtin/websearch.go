package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/helmsman-ai/helmsman/tool"
	"github.com/helmsman-ai/helmsman/types"
)

const tavilyAPIURL = "https://api.tavily.com/search"

// researchAgentName is the pool member request_external_information asks.
const researchAgentName = "research_agent"

// TavilyConfig configures the web search tool.
type TavilyConfig struct {
	APIKey     string
	BaseURL    string
	MaxResults int
	Timeout    time.Duration
	Client     *http.Client
	Logger     *zap.Logger
}

// RegisterWebSearch registers perform_web_search and the nested
// research-agent delegation tool.
func RegisterWebSearch(r *tool.Registry, cfg TavilyConfig) {
	r.Register("perform_web_search", webSearchFactory(cfg))
	r.Register("request_external_information", requestExternalInfoFactory)
}

func webSearchFactory(cfg TavilyConfig) tool.Factory {
	if cfg.BaseURL == "" {
		cfg.BaseURL = tavilyAPIURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
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
	logger := cfg.Logger.With(zap.String("component", "web_search_tool"))

	return func(types.SessionContext) (*tool.Capability, error) {
		if cfg.APIKey == "" {
			return nil, types.NewConfigError(types.ErrMissingSecret, "TAVILY_API_KEY is not set")
		}

		return &tool.Capability{
			Name:        "perform_web_search",
			Description: "Looks for information on the internet.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "The search query."}
				},
				"required": ["query"]
			}`),
			Call: func(ctx context.Context, args map[string]any) (string, error) {
				query, _ := args["query"].(string)

				payload, err := json.Marshal(map[string]any{
					"query":       query,
					"max_results": cfg.MaxResults,
				})
				if err != nil {
					return "Error: could not encode the search request", nil
				}

				req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL, bytes.NewReader(payload))
				if err != nil {
					return "Error: could not build the search request", nil
				}
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

				resp, err := cfg.Client.Do(req)
				if err != nil {
					logger.Warn("web search failed", zap.Error(err))
					return "Error: could not reach the search service, try again later", nil
				}
				defer resp.Body.Close()

				body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
				if err != nil {
					return "Error: could not read the search response", nil
				}
				if resp.StatusCode != http.StatusOK {
					logger.Warn("web search returned non-200", zap.Int("status", resp.StatusCode))
					return "Error: the search service rejected the request, try again later", nil
				}

				// Pretty-print so the model gets stable, readable JSON.
				var decoded any
				if err := json.Unmarshal(body, &decoded); err != nil {
					return string(body), nil
				}
				pretty, err := json.MarshalIndent(decoded, "", "    ")
				if err != nil {
					return string(body), nil
				}
				return string(pretty), nil
			},
		}, nil
	}
}

func requestExternalInfoFactory(sctx types.SessionContext) (*tool.Capability, error) {
	return &tool.Capability{
		Name: "request_external_information",
		Description: "Asks the research agent for help whenever external information is needed, " +
			"such as external websites or the current date.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "What to ask the research agent."}
			},
			"required": ["query"]
		}`),
		Call: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)

			out, err := sctx.InvokeAgent(ctx, researchAgentName, query)
			if err != nil {
				if types.CodeOf(err) == types.ErrAgentNotFound {
					return "Error: the research agent is not available", nil
				}
				// Trace failures inside the nested turn must fail this turn too.
				return "", err
			}
			return out, nil
		},
	}, nil
}
